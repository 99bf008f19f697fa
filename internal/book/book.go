package book

import (
	"fmt"
	"math"
	"sort"
	"time"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"costsim/internal/config"
)

// OrderBook 维护单一标的的 L2 盘口状态并派生统计指标。
// 非并发安全：由所属的摄取协程独占写入（见 pipeline 包）。
type OrderBook struct {
	symbol string
	cfg    config.BookConfig
	logger *zap.Logger

	bids ladder // 价格降序，买一在首位
	asks ladder // 价格升序，卖一在首位

	lastSequence int64
	midWindow    []float64
}

// New 创建空订单簿。
func New(symbol string, cfg config.BookConfig, logger *zap.Logger) *OrderBook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 10
	}
	if cfg.ImbalanceLevels <= 0 {
		cfg.ImbalanceLevels = 5
	}
	if cfg.VolatilityWindow < 2 {
		cfg.VolatilityWindow = 120
	}

	return &OrderBook{
		symbol:    symbol,
		cfg:       cfg,
		logger:    logger,
		bids:      ladder{descending: true},
		asks:      ladder{descending: false},
		midWindow: make([]float64, 0, cfg.VolatilityWindow),
	}
}

// LastSequence 返回最近一次成功应用的更新序号。
func (b *OrderBook) LastSequence() int64 {
	return b.lastSequence
}

// Apply 应用单档更新并生成新的不可变快照。
// quantity 为 0 表示删除该档位（档位不存在时为幂等空操作）；
// 导致盘口交叉的更新会被拒绝并回滚，订单簿保持先前状态。
func (b *OrderBook) Apply(update Update) (Snapshot, error) {
	if err := validateUpdate(update); err != nil {
		return Snapshot{}, err
	}
	if update.Sequence <= b.lastSequence {
		return Snapshot{}, ErrStaleUpdate
	}

	side := &b.bids
	if update.Side == SideAsk {
		side = &b.asks
	}

	prevQty, existed := side.get(update.Price)
	if update.Quantity == 0 {
		side.remove(update.Price)
	} else {
		side.set(update.Price, update.Quantity)
	}

	if b.isCrossed() {
		// 回滚本次变更，保留最近一次合法状态。
		if existed {
			side.set(update.Price, prevQty)
		} else {
			side.remove(update.Price)
		}
		return Snapshot{}, fmt.Errorf("%w: 更新 side=%s price=%.8f", ErrCrossedBook, update.Side, update.Price)
	}

	b.lastSequence = update.Sequence
	b.recordMid()

	return b.snapshot(), nil
}

func validateUpdate(update Update) error {
	if update.Side != SideBid && update.Side != SideAsk {
		return fmt.Errorf("%w: 非法方向 %q", ErrMalformedUpdate, update.Side)
	}
	if update.Price <= 0 || math.IsNaN(update.Price) || math.IsInf(update.Price, 0) {
		return fmt.Errorf("%w: 非法价格 %v", ErrMalformedUpdate, update.Price)
	}
	if update.Quantity < 0 || math.IsNaN(update.Quantity) || math.IsInf(update.Quantity, 0) {
		return fmt.Errorf("%w: 非法数量 %v", ErrMalformedUpdate, update.Quantity)
	}
	return nil
}

func (b *OrderBook) isCrossed() bool {
	if len(b.bids.levels) == 0 || len(b.asks.levels) == 0 {
		return false
	}
	return b.bids.levels[0].Price >= b.asks.levels[0].Price
}

func (b *OrderBook) recordMid() {
	if len(b.bids.levels) == 0 || len(b.asks.levels) == 0 {
		return
	}
	mid := (b.bids.levels[0].Price + b.asks.levels[0].Price) / 2
	b.midWindow = append(b.midWindow, mid)
	if len(b.midWindow) > b.cfg.VolatilityWindow {
		b.midWindow = b.midWindow[1:]
	}
}

func (b *OrderBook) snapshot() Snapshot {
	return Snapshot{
		Symbol:    b.symbol,
		Bids:      b.bids.copyLevels(),
		Asks:      b.asks.copyLevels(),
		Sequence:  b.lastSequence,
		Timestamp: time.Now().UTC(),
		Stats:     b.computeStatistics(),
	}
}

func (b *OrderBook) computeStatistics() Statistics {
	stats := Statistics{
		Imbalance:  0.5,
		DepthRatio: 1.0,
		Volatility: b.volatility(),
	}

	bidDepth := sumDepth(b.bids.levels, b.cfg.DepthLevels)
	askDepth := sumDepth(b.asks.levels, b.cfg.DepthLevels)
	stats.BidDepth = bidDepth
	stats.AskDepth = askDepth
	if askDepth > 0 {
		stats.DepthRatio = bidDepth / askDepth
	}

	imbBid := sumDepth(b.bids.levels, b.cfg.ImbalanceLevels)
	imbAsk := sumDepth(b.asks.levels, b.cfg.ImbalanceLevels)
	if total := imbBid + imbAsk; total > 0 {
		stats.Imbalance = imbBid / total
	}

	if len(b.bids.levels) == 0 || len(b.asks.levels) == 0 {
		return stats
	}

	bestBid := b.bids.levels[0].Price
	bestAsk := b.asks.levels[0].Price
	stats.MidPrice = (bestBid + bestAsk) / 2
	stats.Spread = bestAsk - bestBid
	if stats.MidPrice > 0 {
		stats.SpreadPct = stats.Spread / stats.MidPrice * 100
	}

	return stats
}

// volatility 为中间价滚动窗口的总体标准差。
func (b *OrderBook) volatility() float64 {
	n := len(b.midWindow)
	if n < 2 {
		return 0
	}
	out := talib.StdDev(b.midWindow, n, 1.0)
	v := out[len(out)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func sumDepth(levels []Level, limit int) float64 {
	if limit > len(levels) {
		limit = len(levels)
	}
	total := 0.0
	for i := 0; i < limit; i++ {
		total += levels[i].Quantity
	}
	return total
}

// ladder 维护单侧按价格排序的档位，价格唯一。
type ladder struct {
	levels     []Level
	descending bool
}

// search 返回 price 应处的下标；若该价位已存在则 found 为 true。
func (l *ladder) search(price float64) (idx int, found bool) {
	idx = sort.Search(len(l.levels), func(i int) bool {
		if l.descending {
			return l.levels[i].Price <= price
		}
		return l.levels[i].Price >= price
	})
	found = idx < len(l.levels) && l.levels[idx].Price == price
	return idx, found
}

func (l *ladder) get(price float64) (float64, bool) {
	idx, found := l.search(price)
	if !found {
		return 0, false
	}
	return l.levels[idx].Quantity, true
}

func (l *ladder) set(price, quantity float64) {
	idx, found := l.search(price)
	if found {
		l.levels[idx].Quantity = quantity
		return
	}
	l.levels = append(l.levels, Level{})
	copy(l.levels[idx+1:], l.levels[idx:])
	l.levels[idx] = Level{Price: price, Quantity: quantity}
}

func (l *ladder) remove(price float64) {
	idx, found := l.search(price)
	if !found {
		return
	}
	l.levels = append(l.levels[:idx], l.levels[idx+1:]...)
}

func (l *ladder) copyLevels() []Level {
	dst := make([]Level, len(l.levels))
	copy(dst, l.levels)
	return dst
}
