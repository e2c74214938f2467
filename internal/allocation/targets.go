package allocation

import (
	"errors"
	"fmt"
)

// 历史上出现过的两个美股/国际股拆分比例，二者并不一致，
// 调用方必须显式选择其一 (或者给出自己的比例)
const (
	SplitEightyTwenty SplitRatio = 0.8
	SplitTwoThirds    SplitRatio = 2.0 / 3.0
)

var (
	// ErrSplitRatioUnset 目标中含有聚合类型但没有配置拆分比例
	ErrSplitRatioUnset = errors.New("targets use an aggregate type but no split ratio is configured (historical values disagree: 0.8 and 2/3)")
	// ErrAggregateConflict 聚合类型与其子类型同时出现
	ErrAggregateConflict = errors.New("aggregate type conflicts with one of its sub-types")
	// ErrInvalidSplitRatio 拆分比例不在 [0, 1] 之间
	ErrInvalidSplitRatio = errors.New("split ratio must be within [0, 1]")
)

// SplitRatio 聚合股票类型中美股的占比，国际股为 1 - SplitRatio
// 0 表示全部为国际股，未配置用 nil 表示
type SplitRatio float64

// Ptr 返回指向副本的指针
func (r SplitRatio) Ptr() *SplitRatio {
	return &r
}

// Aggregate 聚合类型及其拆分目标
type Aggregate struct {
	Name string
	US   string
	Intl string
}

// Aggregates 支持的聚合类型
var Aggregates = []Aggregate{
	{Name: "stocks", US: "us_stocks", Intl: "int_stocks"},
	{Name: "stocks_esg", US: "us_stocks_esg", Intl: "int_stocks_esg"},
}

// Targets 根据调用方给出的目标占比构建 Proportions
// 聚合类型按 ratio 拆分为美股/国际股，ratio 为 nil 时不允许出现聚合类型
func Targets(raw map[string]float64, ratio *SplitRatio) (Proportions, error) {
	out := make(map[string]float64, len(raw)+2)

	for t, v := range raw {
		agg, isAgg := findAggregate(t)
		if !isAgg {
			out[t] = v
			continue
		}
		if _, ok := raw[agg.US]; ok {
			return Proportions{}, fmt.Errorf("%w: %s and %s", ErrAggregateConflict, agg.Name, agg.US)
		}
		if _, ok := raw[agg.Intl]; ok {
			return Proportions{}, fmt.Errorf("%w: %s and %s", ErrAggregateConflict, agg.Name, agg.Intl)
		}
		if ratio == nil {
			return Proportions{}, fmt.Errorf("%w: %s", ErrSplitRatioUnset, agg.Name)
		}
		r := float64(*ratio)
		if !(r >= 0 && r <= 1) {
			return Proportions{}, fmt.Errorf("%w: %v", ErrInvalidSplitRatio, r)
		}
		out[agg.US] = r * v
		out[agg.Intl] = (1 - r) * v
	}

	return Proportions{values: out}, nil
}

// UsesAggregate 目标中是否含有聚合类型
func UsesAggregate(raw map[string]float64) bool {
	for t := range raw {
		if _, ok := findAggregate(t); ok {
			return true
		}
	}
	return false
}

func findAggregate(t string) (Aggregate, bool) {
	for _, a := range Aggregates {
		if a.Name == t {
			return a, true
		}
	}
	return Aggregate{}, false
}
