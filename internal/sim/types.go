package sim

import (
	"errors"
	"time"
)

// OrderType 表示订单类型。
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderSide 表示买卖方向。
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// ErrInvalidRequest 表示模拟请求未通过结构校验，直接拒绝给调用方。
var ErrInvalidRequest = errors.New("sim: invalid request")

// Request 为一次成本模拟请求。Quantity 为美元等值名义金额。
type Request struct {
	OrderType  OrderType
	Side       OrderSide
	Quantity   float64
	LimitPrice float64 // 限价单必填
	Volatility float64 // 可选覆盖；0 表示使用统计派生波动率
	FeeTier    string  // 可选；空使用默认档位
}

// Result 为一次模拟的完整输出，推送给 UI 或指标消费方。
type Result struct {
	ID                string        `json:"id"`
	Symbol            string        `json:"symbol"`
	SlippagePct       float64       `json:"slippage_pct"`
	FeeAmount         float64       `json:"fee_amount"`
	MarketImpactPct   float64       `json:"market_impact_pct"`
	MakerProportion   float64       `json:"maker_proportion"`
	TotalCost         float64       `json:"total_cost"`
	Unavailable       bool          `json:"unavailable"`    // 盘口为空或参考成交量为零
	LowConfidence     bool          `json:"low_confidence"` // 请求数量超过可见深度
	SnapshotSequence  int64         `json:"snapshot_sequence"`
	SnapshotTimestamp time.Time     `json:"snapshot_timestamp"`
	ProcessingLatency time.Duration `json:"processing_latency"`
}

// Outcome 为观察到的真实成交结果，回灌给可训练模型。
type Outcome struct {
	ResultID           string
	ObservedSlippage   float64 // 百分比
	ObservedMakerRatio float64 // [0,1]
}
