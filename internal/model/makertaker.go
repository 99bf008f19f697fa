package model

import (
	"math"

	"go.uber.org/zap"

	"costsim/internal/config"
)

const makerTakerFeatureDim = 6

// MakerTakerInputs 为 maker 比例预测的定长特征输入。
type MakerTakerInputs struct {
	IsMarket   bool
	Quantity   float64
	SpreadPct  float64
	Imbalance  float64
	DepthRatio float64
	Volatility float64
}

func (in MakerTakerInputs) vector() []float64 {
	orderType := 1.0
	if in.IsMarket {
		orderType = 0.0
	}
	return []float64{orderType, in.Quantity, in.SpreadPct, in.Imbalance, in.DepthRatio, in.Volatility}
}

// MakerTakerModel 估计订单以 maker 方式成交的比例，取值[0,1]。
type MakerTakerModel struct {
	trainable *Trainable
	logger    *zap.Logger
}

// NewMakerTakerModel 创建 maker/taker 模型。
func NewMakerTakerModel(cfg config.ModelsConfig, logger *zap.Logger) *MakerTakerModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MakerTakerModel{
		trainable: NewTrainable("maker_taker", makerTakerFeatureDim, fitLogistic, Sigmoid, cfg, logger),
		logger:    logger,
	}
}

// Trainable 暴露底层训练单元，供上层驱动重训练协程。
func (m *MakerTakerModel) Trainable() *Trainable {
	return m.trainable
}

// Predict 返回 maker 比例。市价单恒为 0（全部 taker），不经过模型；
// 限价单在未训练时使用启发式，训练后使用逻辑回归概率。
func (m *MakerTakerModel) Predict(in MakerTakerInputs) float64 {
	if in.IsMarket {
		return 0.0
	}

	if probability, err := m.trainable.Predict(in.vector()); err == nil {
		return clamp01(probability)
	}

	// 启发式：价差越宽、数量越小越偏向 maker。
	proportion := 0.5 + math.Min(0.3, in.SpreadPct/10)
	if in.Quantity > 0 {
		proportion += math.Min(0.2, 10/in.Quantity)
	}
	return clamp01(proportion)
}

// Observe 回灌观测到的 maker 比例，按 >0.5 二值化为训练标签。
func (m *MakerTakerModel) Observe(in MakerTakerInputs, observedProportion float64) {
	label := 0.0
	if observedProportion > 0.5 {
		label = 1.0
	}
	if err := m.trainable.Observe(in.vector(), label); err != nil {
		m.logger.Warn("maker/taker 样本写入失败", zap.Error(err))
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
