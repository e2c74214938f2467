package allocation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// ErrUnknownType 类型不存在于比例向量中
var ErrUnknownType = errors.New("type not present in proportions")

// Proportions 类型 -> 占比 的分配向量
// 约定不可变：所有运算都返回新的实例
type Proportions struct {
	values map[string]float64
}

// New 从 map 创建 Proportions (会复制输入)
func New(values map[string]float64) Proportions {
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Proportions{values: cp}
}

// Get 获取指定类型的占比
func (p Proportions) Get(t string) (float64, error) {
	v, ok := p.values[t]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return v, nil
}

// Has 是否包含该类型
func (p Proportions) Has(t string) bool {
	_, ok := p.values[t]
	return ok
}

// Diff 返回 p - other，任一侧缺失的 key 视为 0
func (p Proportions) Diff(other Proportions) Proportions {
	out := make(map[string]float64, len(p.values)+len(other.values))
	for k, v := range p.values {
		out[k] = v
	}
	for k, v := range other.values {
		out[k] -= v
	}
	return Proportions{values: out}
}

// Types 按字母序返回所有类型
func (p Proportions) Types() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sum 所有占比之和
func (p Proportions) Sum() float64 {
	vals := make([]float64, 0, len(p.values))
	for _, k := range p.Types() {
		vals = append(vals, p.values[k])
	}
	return floats.Sum(vals)
}

// Len 类型个数
func (p Proportions) Len() int {
	return len(p.values)
}

// Map 返回副本
func (p Proportions) Map() map[string]float64 {
	cp := make(map[string]float64, len(p.values))
	for k, v := range p.values {
		cp[k] = v
	}
	return cp
}

// Deviation 一个类型的偏离
type Deviation struct {
	Type  string
	Value float64
}

// Ranked 按偏离从大到小排序，排除给定类型
// 偏离相同时按类型名排序
func (p Proportions) Ranked(exclude ...string) []Deviation {
	skip := make(map[string]bool, len(exclude))
	for _, t := range exclude {
		skip[t] = true
	}

	out := make([]Deviation, 0, len(p.values))
	for _, t := range p.Types() {
		if skip[t] {
			continue
		}
		out = append(out, Deviation{Type: t, Value: p.values[t]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Value > out[j].Value
	})
	return out
}

// String 形如 'bonds': 0.1000, 'cash': 0.0200
func (p Proportions) String() string {
	parts := make([]string, 0, len(p.values))
	for _, t := range p.Types() {
		parts = append(parts, fmt.Sprintf("'%s': %.4f", t, p.values[t]))
	}
	return strings.Join(parts, ", ")
}
