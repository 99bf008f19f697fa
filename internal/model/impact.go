package model

import (
	"errors"
	"math"
)

// ErrImpactUnavailable 表示盘口为空、参考成交量为零，冲击成本不可得。
var ErrImpactUnavailable = errors.New("model: market impact unavailable")

// 可见深度按参考成交量的 5% 处理，为显式近似，未经校准。
const visibleDepthShare = 0.05

// ImpactInputs 为 Almgren-Chriss 冲击模型输入。
type ImpactInputs struct {
	Quantity  float64
	Sigma     float64 // 波动率，外部给定或由统计派生
	SpreadPct float64
	BidDepth  float64
	AskDepth  float64
}

// MarketImpact 按 Almgren-Chriss 模型估计冲击成本（价格百分比）。
// 临时冲击 eta·sigma·sqrt(q/V)，永久冲击 gamma·sigma·(q/V)；
// eta 随可见深度递减，gamma 随价差与波动率递增。
func MarketImpact(in ImpactInputs) (float64, error) {
	depth := in.BidDepth + in.AskDepth
	referenceVolume := depth / visibleDepthShare
	if referenceVolume <= 0 {
		return 0, ErrImpactUnavailable
	}

	eta := 0.5 + math.Min(1.0, 100/depth)
	gamma := 0.1 + in.SpreadPct/100

	ratio := in.Quantity / referenceVolume
	if ratio < 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0, ErrImpactUnavailable
	}

	temporary := eta * in.Sigma * math.Sqrt(ratio)
	permanent := gamma * in.Sigma * ratio

	return (temporary + permanent) * 100, nil
}
