package model

import (
	"fmt"
	"math"
)

// fitLinear 用正规方程拟合线性回归（含截距项）。
// 构造 A = [X | 1]，求解 (AᵀA) w = Aᵀy，高斯消元带部分主元。
func fitLinear(features [][]float64, labels []float64) (*Parameters, error) {
	n := len(features)
	if n == 0 || n != len(labels) {
		return nil, fmt.Errorf("%w: 样本数量异常 %d/%d", ErrDegenerateFit, n, len(labels))
	}
	dim := len(features[0])
	cols := dim + 1

	// AᵀA 与 Aᵀy
	ata := make([][]float64, cols)
	for i := range ata {
		ata[i] = make([]float64, cols)
	}
	aty := make([]float64, cols)

	for r := 0; r < n; r++ {
		row := features[r]
		if len(row) != dim {
			return nil, fmt.Errorf("%w: 特征维度不一致", ErrDegenerateFit)
		}
		for i := 0; i < cols; i++ {
			ai := 1.0
			if i < dim {
				ai = row[i]
			}
			aty[i] += ai * labels[r]
			for j := i; j < cols; j++ {
				aj := 1.0
				if j < dim {
					aj = row[j]
				}
				ata[i][j] += ai * aj
			}
		}
	}
	for i := 0; i < cols; i++ {
		for j := 0; j < i; j++ {
			ata[i][j] = ata[j][i]
		}
	}

	solution, err := solveGaussian(ata, aty)
	if err != nil {
		return nil, err
	}

	return &Parameters{
		Weights:   solution[:dim],
		Intercept: solution[dim],
	}, nil
}

// solveGaussian 解线性方程组 m·x = v，奇异时返回 ErrDegenerateFit。
func solveGaussian(m [][]float64, v []float64) ([]float64, error) {
	n := len(v)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("%w: 正规方程矩阵奇异", ErrDegenerateFit)
		}
		m[col], m[pivot] = m[pivot], m[col]
		v[col], v[pivot] = v[pivot], v[col]

		for r := col + 1; r < n; r++ {
			factor := m[r][col] / m[col][col]
			for c := col; c < n; c++ {
				m[r][c] -= factor * m[col][c]
			}
			v[r] -= factor * v[col]
		}
	}

	solution := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := v[r]
		for c := r + 1; c < n; c++ {
			sum -= m[r][c] * solution[c]
		}
		solution[r] = sum / m[r][r]
	}

	for _, s := range solution {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: 解包含非法数值", ErrDegenerateFit)
		}
	}
	return solution, nil
}
