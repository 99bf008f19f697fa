package model

import (
	"math"

	"go.uber.org/zap"

	"costsim/internal/config"
)

const (
	slippageFeatureDim   = 5
	slippageHeuristicWgt = 0.3
	slippageModelWgt     = 0.7
)

// SlippageInputs 为滑点估计的定长特征输入。
type SlippageInputs struct {
	Quantity   float64
	SpreadPct  float64
	Imbalance  float64
	DepthRatio float64
	Volatility float64
}

func (in SlippageInputs) vector() []float64 {
	return []float64{in.Quantity, in.SpreadPct, in.Imbalance, in.DepthRatio, in.Volatility}
}

// SlippageModel 融合闭式启发式与在线线性回归估计预期滑点（百分比）。
type SlippageModel struct {
	trainable *Trainable
	logger    *zap.Logger
}

// NewSlippageModel 创建滑点模型。
func NewSlippageModel(cfg config.ModelsConfig, logger *zap.Logger) *SlippageModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlippageModel{
		trainable: NewTrainable("slippage", slippageFeatureDim, fitLinear, nil, cfg, logger),
		logger:    logger,
	}
}

// Trainable 暴露底层训练单元，供上层驱动重训练协程。
func (m *SlippageModel) Trainable() *Trainable {
	return m.trainable
}

// Predict 返回预期滑点百分比，恒为非负。
// 启发式：spread_pct/2 + 0.01·ln(qty/100)·(1 + (imbalance-0.5)·0.5)；
// 回归模型训练完成后按 0.3/0.7 与启发式加权融合。
func (m *SlippageModel) Predict(in SlippageInputs) float64 {
	base := in.SpreadPct / 2

	qtyAdj := 0.0
	if in.Quantity > 0 {
		qtyAdj = 0.01 * math.Log(in.Quantity/100)
	}
	imbAdj := (in.Imbalance - 0.5) * 0.5

	slippage := base + qtyAdj*(1+imbAdj)

	if predicted, err := m.trainable.Predict(in.vector()); err == nil {
		slippage = slippageHeuristicWgt*slippage + slippageModelWgt*predicted
	}

	return math.Max(0, slippage)
}

// Observe 回灌真实观测到的滑点作为训练样本。
func (m *SlippageModel) Observe(in SlippageInputs, observedSlippage float64) {
	if err := m.trainable.Observe(in.vector(), observedSlippage); err != nil {
		m.logger.Warn("滑点样本写入失败", zap.Error(err))
	}
}
