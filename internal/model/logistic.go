package model

import (
	"fmt"
	"math"
)

const (
	logisticIterations   = 300
	logisticLearningRate = 0.1
)

// fitLogistic 用梯度下降拟合逻辑回归。内部先做标准化以保证
// 不同量纲的特征可以共用同一学习率，再把参数折算回原始尺度。
func fitLogistic(features [][]float64, labels []float64) (*Parameters, error) {
	n := len(features)
	if n == 0 || n != len(labels) {
		return nil, fmt.Errorf("%w: 样本数量异常 %d/%d", ErrDegenerateFit, n, len(labels))
	}
	dim := len(features[0])

	positives := 0
	for _, y := range labels {
		if y != 0 && y != 1 {
			return nil, fmt.Errorf("%w: 标签必须为0或1", ErrDegenerateFit)
		}
		if y == 1 {
			positives++
		}
	}
	if positives == 0 || positives == n {
		return nil, fmt.Errorf("%w: 样本只包含单一类别", ErrDegenerateFit)
	}

	means := make([]float64, dim)
	stds := make([]float64, dim)
	for j := 0; j < dim; j++ {
		for i := 0; i < n; i++ {
			means[j] += features[i][j]
		}
		means[j] /= float64(n)
		for i := 0; i < n; i++ {
			diff := features[i][j] - means[j]
			stds[j] += diff * diff
		}
		stds[j] = math.Sqrt(stds[j] / float64(n))
		if stds[j] == 0 {
			stds[j] = 1 // 常量列不参与缩放
		}
	}

	weights := make([]float64, dim)
	intercept := 0.0

	for iter := 0; iter < logisticIterations; iter++ {
		gradW := make([]float64, dim)
		gradB := 0.0
		for i := 0; i < n; i++ {
			score := intercept
			for j := 0; j < dim; j++ {
				score += weights[j] * (features[i][j] - means[j]) / stds[j]
			}
			residual := Sigmoid(score) - labels[i]
			for j := 0; j < dim; j++ {
				gradW[j] += residual * (features[i][j] - means[j]) / stds[j]
			}
			gradB += residual
		}
		for j := 0; j < dim; j++ {
			weights[j] -= logisticLearningRate * gradW[j] / float64(n)
		}
		intercept -= logisticLearningRate * gradB / float64(n)
	}

	// 折回原始尺度：w'ⱼ = wⱼ/σⱼ，b' = b - Σ wⱼ·μⱼ/σⱼ
	origWeights := make([]float64, dim)
	origIntercept := intercept
	for j := 0; j < dim; j++ {
		origWeights[j] = weights[j] / stds[j]
		origIntercept -= weights[j] * means[j] / stds[j]
		if math.IsNaN(origWeights[j]) || math.IsInf(origWeights[j], 0) {
			return nil, fmt.Errorf("%w: 权重发散", ErrDegenerateFit)
		}
	}
	if math.IsNaN(origIntercept) || math.IsInf(origIntercept, 0) {
		return nil, fmt.Errorf("%w: 截距发散", ErrDegenerateFit)
	}

	return &Parameters{Weights: origWeights, Intercept: origIntercept}, nil
}

// Sigmoid 为逻辑函数。
func Sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
