package book

import "time"

// Side 表示盘口方向。
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Level 表示盘口档位。
type Level struct {
	Price    float64
	Quantity float64
}

// Update 为来自行情端的单档增量更新。
type Update struct {
	Side     Side
	Price    float64
	Quantity float64
	Sequence int64
}

// Statistics 为一次快照派生出的统计指标。
type Statistics struct {
	MidPrice   float64
	Spread     float64
	SpreadPct  float64
	Imbalance  float64
	BidDepth   float64
	AskDepth   float64
	DepthRatio float64
	Volatility float64
}

// Snapshot 为订单簿的不可变快照，发布后不再修改。
// Bids 按价格严格降序，Asks 按价格严格升序。
type Snapshot struct {
	Symbol    string
	Bids      []Level
	Asks      []Level
	Sequence  int64
	Timestamp time.Time
	Stats     Statistics
}

// BestBid 返回买一档，空侧返回 false。
func (s Snapshot) BestBid() (Level, bool) {
	if len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

// BestAsk 返回卖一档，空侧返回 false。
func (s Snapshot) BestAsk() (Level, bool) {
	if len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}

// SideLevels 返回指定方向的档位。
func (s Snapshot) SideLevels(side Side) []Level {
	if side == SideBid {
		return s.Bids
	}
	return s.Asks
}

// SideDepth 返回指定方向的全部可见数量。
func (s Snapshot) SideDepth(side Side) float64 {
	total := 0.0
	for _, lvl := range s.SideLevels(side) {
		total += lvl.Quantity
	}
	return total
}

// VWAP 沿指定方向吃单 quantity（基础币数量），返回成交均价与实际可成交量。
// 买单吃 ask 侧，卖单吃 bid 侧。
func (s Snapshot) VWAP(side Side, quantity float64) (vwap float64, filled float64) {
	if quantity <= 0 {
		return 0, 0
	}

	remaining := quantity
	cost := 0.0
	for _, lvl := range s.SideLevels(side) {
		if remaining <= 0 {
			break
		}
		executed := remaining
		if lvl.Quantity < executed {
			executed = lvl.Quantity
		}
		cost += executed * lvl.Price
		remaining -= executed
	}

	filled = quantity - remaining
	if filled > 0 {
		vwap = cost / filled
	}
	return vwap, filled
}
