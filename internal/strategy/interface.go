package strategy

import "fmt"

// Candidate 卖出阶段的候选标的 (只读快照)
type Candidate struct {
	Symbol string
	Shares float64
	Price  float64
	Weight float64 // 该标的在目标类型中的权重
}

// TypeValue 该标的在目标类型中的市值
func (c Candidate) TypeValue() float64 {
	return c.Shares * c.Price * c.Weight
}

// SellPolicy 卖出阶段的选择策略接口
type SellPolicy interface {
	// Name 策略名称
	Name() string

	// Choose 从候选中选出要卖出一个 lot 的标的，返回下标
	// candidates 保证非空
	Choose(assetType string, candidates []Candidate) int
}

// 策略名
const (
	PolicyLargest = "largest"
	PolicyRandom  = "random"
)

// FromName 按名称创建卖出策略，空名称返回默认的确定性策略
func FromName(name string, seed int64) (SellPolicy, error) {
	switch name {
	case "", PolicyLargest:
		return NewLargestPosition(), nil
	case PolicyRandom:
		return NewRandom(seed), nil
	default:
		return nil, fmt.Errorf("unknown sell policy %q (want %q or %q)", name, PolicyLargest, PolicyRandom)
	}
}
