package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"costsim/internal/config"
)

var (
	// ErrNotTrained 表示模型尚未完成首次训练。
	ErrNotTrained = errors.New("model: not trained")
	// ErrDegenerateFit 表示训练输入退化（奇异矩阵或单一类别），本次拟合放弃。
	ErrDegenerateFit = errors.New("model: degenerate fit")
)

// Parameters 为一次训练产出的不可变参数集，发布后只读。
type Parameters struct {
	Weights   []float64
	Intercept float64
}

// Sample 为单条训练样本，特征维度在模型构造时固定。
type Sample struct {
	Features []float64
	Label    float64
}

// fitFunc 从当前缓冲区内容拟合一组新参数。
type fitFunc func(features [][]float64, labels []float64) (*Parameters, error)

// Trainable 为增量回归/分类单元：Predict 无锁读取已发布参数，
// Observe 单写者追加样本，重训练在独立协程完成并以原子替换发布。
type Trainable struct {
	name       string
	dim        int
	fit        fitFunc
	activation func(float64) float64
	logger     *zap.Logger

	state atomic.Pointer[Parameters]

	mu         sync.Mutex
	samples    []Sample // 环形缓冲
	head       int
	count      int
	sinceTrain int

	capacity int
	warmup   int
	interval int

	retrainCh chan struct{}
}

// NewTrainable 创建训练单元。activation 作用于线性得分（恒等或 sigmoid）。
func NewTrainable(name string, dim int, fit fitFunc, activation func(float64) float64, cfg config.ModelsConfig, logger *zap.Logger) *Trainable {
	if logger == nil {
		logger = zap.NewNop()
	}
	if activation == nil {
		activation = func(v float64) float64 { return v }
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = 5000
	}
	if cfg.WarmupSamples <= 0 {
		cfg.WarmupSamples = 100
	}
	if cfg.RetrainInterval <= 0 {
		cfg.RetrainInterval = 500
	}

	return &Trainable{
		name:       name,
		dim:        dim,
		fit:        fit,
		activation: activation,
		logger:     logger,
		samples:    make([]Sample, cfg.BufferCapacity),
		capacity:   cfg.BufferCapacity,
		warmup:     cfg.WarmupSamples,
		interval:   cfg.RetrainInterval,
		retrainCh:  make(chan struct{}, 1),
	}
}

// IsTrained 返回模型是否已发布过参数。
func (t *Trainable) IsTrained() bool {
	return t.state.Load() != nil
}

// Predict 基于当前已发布参数计算得分。并发调用只会看到
// 完整的旧参数或完整的新参数，绝不会读到替换中途的状态。
func (t *Trainable) Predict(features []float64) (float64, error) {
	params := t.state.Load()
	if params == nil {
		return 0, ErrNotTrained
	}
	if len(features) != len(params.Weights) {
		return 0, fmt.Errorf("model %s: 特征维度不匹配: %d vs %d", t.name, len(features), len(params.Weights))
	}

	score := params.Intercept
	for i, w := range params.Weights {
		score += w * features[i]
	}
	return t.activation(score), nil
}

// Observe 追加一条样本。缓冲区满时淘汰最旧样本；
// 达到训练阈值时向重训练协程发出信号，绝不阻塞调用方。
func (t *Trainable) Observe(features []float64, label float64) error {
	if len(features) != t.dim {
		return fmt.Errorf("model %s: 特征维度不匹配: %d vs %d", t.name, len(features), t.dim)
	}

	dup := make([]float64, t.dim)
	copy(dup, features)

	t.mu.Lock()
	idx := (t.head + t.count) % t.capacity
	if t.count == t.capacity {
		t.head = (t.head + 1) % t.capacity
		idx = (t.head + t.count - 1) % t.capacity
	} else {
		t.count++
	}
	t.samples[idx] = Sample{Features: dup, Label: label}
	t.sinceTrain++

	trigger := false
	if t.state.Load() == nil {
		trigger = t.count >= t.warmup
	} else {
		trigger = t.sinceTrain >= t.interval
	}
	if trigger {
		t.sinceTrain = 0
	}
	t.mu.Unlock()

	if trigger {
		select {
		case t.retrainCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// SampleCount 返回缓冲区内样本数量。
func (t *Trainable) SampleCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Run 驱动后台重训练，直至 ctx 结束。
func (t *Trainable) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.retrainCh:
			t.Retrain()
		}
	}
}

// Retrain 用缓冲区当前内容拟合新参数并原子发布。
// 拟合失败只记录日志，旧参数继续生效。
func (t *Trainable) Retrain() {
	t.mu.Lock()
	features := make([][]float64, 0, t.count)
	labels := make([]float64, 0, t.count)
	for i := 0; i < t.count; i++ {
		s := t.samples[(t.head+i)%t.capacity]
		features = append(features, s.Features)
		labels = append(labels, s.Label)
	}
	t.mu.Unlock()

	if len(labels) == 0 {
		return
	}

	params, err := t.fit(features, labels)
	if err != nil {
		t.logger.Warn("模型重训练失败，沿用现有参数",
			zap.String("model", t.name),
			zap.Int("samples", len(labels)),
			zap.Error(err),
		)
		return
	}

	t.state.Store(params)
	t.logger.Info("模型参数已更新",
		zap.String("model", t.name),
		zap.Int("samples", len(labels)),
	)
}
