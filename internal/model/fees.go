package model

import (
	"errors"
	"fmt"
	"sort"

	"costsim/internal/config"
)

// ErrInvalidFeeInput 表示费用计算输入违反调用方契约。
var ErrInvalidFeeInput = errors.New("model: invalid fee input")

// FeeSchedule 持有启动时加载的费率表，运行期只读。
type FeeSchedule struct {
	tiers       map[string]config.FeeTier
	defaultTier string
}

// NewFeeSchedule 从配置构建费率表。
func NewFeeSchedule(cfg config.FeesConfig) (*FeeSchedule, error) {
	if len(cfg.Tiers) == 0 {
		return nil, errors.New("model: 费率表不能为空")
	}
	if _, ok := cfg.Tiers[cfg.DefaultTier]; !ok {
		return nil, fmt.Errorf("model: 默认档位 %q 不在费率表中", cfg.DefaultTier)
	}

	tiers := make(map[string]config.FeeTier, len(cfg.Tiers))
	for name, tier := range cfg.Tiers {
		tiers[name] = tier
	}

	return &FeeSchedule{tiers: tiers, defaultTier: cfg.DefaultTier}, nil
}

// Rates 返回指定档位的费率，未知档位回退到默认档位。
func (s *FeeSchedule) Rates(tier string) config.FeeTier {
	if rates, ok := s.tiers[tier]; ok {
		return rates
	}
	return s.tiers[s.defaultTier]
}

// TierNames 返回全部档位名，按字典序。
func (s *FeeSchedule) TierNames() []string {
	names := make([]string, 0, len(s.tiers))
	for name := range s.tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fee 计算预期手续费：V·m·maker + V·(1-m)·taker。
// 无内部状态；负的订单价值或越界的 maker 比例视为契约违反。
func Fee(orderValue, makerProportion float64, rates config.FeeTier) (float64, error) {
	if orderValue < 0 {
		return 0, fmt.Errorf("%w: 订单价值不能为负: %v", ErrInvalidFeeInput, orderValue)
	}
	if makerProportion < 0 || makerProportion > 1 {
		return 0, fmt.Errorf("%w: maker比例必须位于[0,1]: %v", ErrInvalidFeeInput, makerProportion)
	}

	makerFee := orderValue * makerProportion * rates.Maker
	takerFee := orderValue * (1 - makerProportion) * rates.Taker
	return makerFee + takerFee, nil
}
