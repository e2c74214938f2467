package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/opsxjacky/cash-rebalancer/internal/price"
	"github.com/opsxjacky/cash-rebalancer/pkg/types"
	"gonum.org/v1/gonum/floats"
)

// compositionTolerance 权重之和与 1.0 的允许误差 (浮点累加)
const compositionTolerance = 1e-9

var (
	// ErrTypeAndComposition 记录同时给出了 type 和 composition
	ErrTypeAndComposition = errors.New("holding specifies both type and composition")
	// ErrNoType 记录既没有 type 也没有 composition
	ErrNoType = errors.New("holding requires a type or a composition")
	// ErrCompositionSum 权重之和不为 1
	ErrCompositionSum = errors.New("composition weights must sum to 1.0")
	// ErrNegativeWeight 权重为负
	ErrNegativeWeight = errors.New("composition weights must be non-negative")
	// ErrNoSymbol 非现金记录缺少 symbol
	ErrNoSymbol = errors.New("non-cash holding requires a symbol")
	// ErrNotCash 对非现金持仓执行现金合并
	ErrNotCash = errors.New("only cash holdings can be merged")
)

// Kind 持仓种类
type Kind int

const (
	// KindRegular 普通证券
	KindRegular Kind = iota
	// KindCash 现金，价格固定为 1，不可追加买入
	KindCash
)

func (k Kind) String() string {
	if k == KindCash {
		return "cash"
	}
	return "regular"
}

// Holding 单个持仓
type Holding struct {
	Symbol        string
	Kind          Kind
	Shares        float64
	Price         float64
	composition   map[string]float64
	buyAdditional bool
}

// NewHolding 创建普通持仓，composition 权重之和必须为 1
// 价格校验与价格数据源共用 price.Validate
func NewHolding(symbol string, shares, last float64, composition map[string]float64, buyAdditional bool) (*Holding, error) {
	if err := price.Validate(symbol, last); err != nil {
		return nil, err
	}
	comp, err := checkComposition(composition)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	return &Holding{
		Symbol:        symbol,
		Kind:          KindRegular,
		Shares:        shares,
		Price:         last,
		composition:   comp,
		buyAdditional: buyAdditional,
	}, nil
}

// NewCash 创建现金持仓
func NewCash(amount float64) *Holding {
	return &Holding{
		Symbol:        types.CashType,
		Kind:          KindCash,
		Shares:        amount,
		Price:         1.0,
		composition:   map[string]float64{types.CashType: 1.0},
		buyAdditional: false,
	}
}

// CompositionOf 从记录中解析 composition (type 是 {type: 1.0} 的简写)
func CompositionOf(rec types.HoldingRecord) (map[string]float64, error) {
	switch {
	case rec.Type != "" && rec.Composition != nil:
		return nil, ErrTypeAndComposition
	case rec.Type != "":
		return map[string]float64{rec.Type: 1.0}, nil
	case rec.Composition != nil:
		return checkComposition(rec.Composition)
	default:
		return nil, ErrNoType
	}
}

// IsCashRecord 记录是否为现金 (composition 只有 cash 一项)
func IsCashRecord(rec types.HoldingRecord) bool {
	comp, err := CompositionOf(rec)
	if err != nil {
		return false
	}
	return isCashComposition(comp)
}

// FromRecord 从记录创建持仓，现金记录忽略 price
func FromRecord(rec types.HoldingRecord, last float64) (*Holding, error) {
	comp, err := CompositionOf(rec)
	if err != nil {
		return nil, fmt.Errorf("holding %q: %w", rec.Symbol, err)
	}
	if isCashComposition(comp) {
		return NewCash(rec.Shares), nil
	}
	if rec.Symbol == "" {
		return nil, ErrNoSymbol
	}
	return NewHolding(rec.Symbol, rec.Shares, last, comp, rec.IsBuyAdditional())
}

func isCashComposition(comp map[string]float64) bool {
	if len(comp) != 1 {
		return false
	}
	_, ok := comp[types.CashType]
	return ok
}

func checkComposition(composition map[string]float64) (map[string]float64, error) {
	if len(composition) == 0 {
		return nil, ErrNoType
	}
	keys := sortedKeys(composition)
	weights := make([]float64, 0, len(keys))
	comp := make(map[string]float64, len(keys))
	for _, k := range keys {
		w := composition[k]
		if w < 0 || math.IsNaN(w) {
			return nil, fmt.Errorf("%w: %s=%v", ErrNegativeWeight, k, w)
		}
		weights = append(weights, w)
		comp[k] = w
	}
	if sum := floats.Sum(weights); math.Abs(sum-1.0) > compositionTolerance {
		return nil, fmt.Errorf("%w: got %v", ErrCompositionSum, sum)
	}
	return comp, nil
}

// IsCash 是否为现金
func (h *Holding) IsCash() bool {
	return h.Kind == KindCash
}

// Eligible 是否可以追加买入
func (h *Holding) Eligible() bool {
	return !h.IsCash() && h.buyAdditional
}

// Buy 增加份额
func (h *Holding) Buy(n float64) {
	h.Shares += n
}

// Sell 减少份额 (不检查下限，调用方负责)
func (h *Holding) Sell(n float64) {
	h.Shares -= n
}

// Merge 合并另一笔现金
func (h *Holding) Merge(other *Holding) error {
	if !h.IsCash() || !other.IsCash() {
		return ErrNotCash
	}
	h.Shares += other.Shares
	return nil
}

// Value 当前市值
func (h *Holding) Value() float64 {
	return h.Shares * h.Price
}

// Weight 在某类型中的权重，不包含时为 0
func (h *Holding) Weight(t string) float64 {
	return h.composition[t]
}

// Types 按字母序返回所含类型
func (h *Holding) Types() []string {
	return sortedKeys(h.composition)
}

// Composition 返回 composition 副本
func (h *Holding) Composition() map[string]float64 {
	cp := make(map[string]float64, len(h.composition))
	for k, v := range h.composition {
		cp[k] = v
	}
	return cp
}

// ValueByType 按权重拆分市值
func (h *Holding) ValueByType() map[string]float64 {
	value := h.Value()
	out := make(map[string]float64, len(h.composition))
	for t, w := range h.composition {
		out[t] = w * value
	}
	return out
}

func (h *Holding) clone() *Holding {
	cp := *h
	cp.composition = h.Composition()
	return &cp
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
