package portfolio

import (
	"errors"
	"fmt"
	"math"

	"github.com/opsxjacky/cash-rebalancer/internal/allocation"
	"github.com/opsxjacky/cash-rebalancer/internal/limit"
	"github.com/opsxjacky/cash-rebalancer/internal/strategy"
	"github.com/opsxjacky/cash-rebalancer/pkg/types"
)

var (
	// ErrDuplicateSymbol 非现金代码重复
	ErrDuplicateSymbol = errors.New("duplicate symbol in portfolio")
	// ErrZeroValue 总市值为 0，无法计算占比
	ErrZeroValue = errors.New("portfolio total value is zero")
)

// Portfolio 投资组合：持仓集合 + 唯一的现金持仓 + 按类型的可买入索引
type Portfolio struct {
	holdings []*Holding // 第一个永远是现金
	cash     *Holding
	bySymbol map[string]*Holding
	eligible map[string][]*Holding
	trades   []types.Trade
}

// New 创建投资组合
// 现金持仓合并为一个，非现金代码重复时报错
func New(holdings []*Holding) (*Portfolio, error) {
	cash := NewCash(0)
	p := &Portfolio{
		holdings: []*Holding{cash},
		cash:     cash,
		bySymbol: map[string]*Holding{types.CashType: cash},
		eligible: make(map[string][]*Holding),
		trades:   make([]types.Trade, 0),
	}

	for _, h := range holdings {
		if h.IsCash() {
			if err := cash.Merge(h); err != nil {
				return nil, err
			}
			continue
		}
		if _, exists := p.bySymbol[h.Symbol]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, h.Symbol)
		}
		h = h.clone()
		p.bySymbol[h.Symbol] = h
		p.holdings = append(p.holdings, h)
	}

	p.buildIndex()
	return p, nil
}

// buildIndex 构建 类型 -> 可买入持仓 的索引 (按持仓顺序)
func (p *Portfolio) buildIndex() {
	for _, h := range p.holdings {
		if !h.Eligible() {
			continue
		}
		for _, t := range h.Types() {
			if t == types.CashType || t == types.OtherType {
				continue
			}
			p.eligible[t] = append(p.eligible[t], h)
		}
	}
}

// Clone 深拷贝，用作再平衡的工作副本
func (p *Portfolio) Clone() *Portfolio {
	holdings := make([]*Holding, 0, len(p.holdings))
	for _, h := range p.holdings {
		holdings = append(holdings, h.clone())
	}
	// 现金已合并、代码已去重，不会出错
	cp, _ := New(holdings)
	return cp
}

// Holdings 返回全部持仓 (现金在首位)
func (p *Portfolio) Holdings() []*Holding {
	return p.holdings
}

// Holding 按代码查找持仓
func (p *Portfolio) Holding(symbol string) (*Holding, bool) {
	h, ok := p.bySymbol[symbol]
	return h, ok
}

// Eligible 返回某类型的可买入持仓
func (p *Portfolio) Eligible(t string) []*Holding {
	return p.eligible[t]
}

// Trades 返回执行过的交易
func (p *Portfolio) Trades() []types.Trade {
	return p.trades
}

// Cash 现金余额
func (p *Portfolio) Cash() float64 {
	return p.cash.Shares
}

// TotalValue 总市值
func (p *Portfolio) TotalValue() float64 {
	var total float64
	for _, h := range p.holdings {
		total += h.Value()
	}
	return total
}

// ValueByType 按类型汇总市值
func (p *Portfolio) ValueByType() map[string]float64 {
	out := make(map[string]float64)
	for _, h := range p.holdings {
		for t, v := range h.ValueByType() {
			out[t] += v
		}
	}
	return out
}

// Allocation 当前各类型占比
func (p *Portfolio) Allocation() (allocation.Proportions, error) {
	total := p.TotalValue()
	if total == 0 {
		return allocation.Proportions{}, ErrZeroValue
	}
	values := p.ValueByType()
	for t, v := range values {
		values[t] = v / total
	}
	return allocation.New(values), nil
}

// typeValue 某类型的市值
func (p *Portfolio) typeValue(t string) float64 {
	var v float64
	for _, h := range p.holdings {
		v += h.Weight(t) * h.Value()
	}
	return v
}

// BuyOneLot 为类型 t 买入一个 lot，使买入后该类型占比最接近 target
// 没有买得起的持仓时返回 false
func (p *Portfolio) BuyOneLot(t string, target, lot float64) bool {
	cash := p.Cash()
	total := p.TotalValue()
	if total <= 0 {
		return false
	}
	current := p.typeValue(t)

	var (
		best     *Holding
		bestDist float64
	)
	for _, h := range p.eligible[t] {
		cost := h.Price * lot
		if cost >= cash {
			continue
		}
		// 模拟只加份额，现金在真正买入时才扣除
		dist := math.Abs((current+cost*h.Weight(t))/(total+cost) - target)
		if best == nil || dist < bestDist {
			best, bestDist = h, dist
		}
	}
	if best == nil {
		return false
	}

	cost := best.Price * lot
	best.Buy(lot)
	p.cash.Sell(cost)
	p.trades = append(p.trades, types.Trade{
		Symbol:   best.Symbol,
		Type:     t,
		Side:     "BUY",
		Quantity: lot,
		Price:    best.Price,
		Value:    cost,
	})
	return true
}

// SellOneLot 从类型 t 的可买入持仓中卖出一个 lot，由 policy 选择标的
// 份额不足一个 lot 的持仓不参与
func (p *Portfolio) SellOneLot(t string, lot float64, policy strategy.SellPolicy) bool {
	holdings := make([]*Holding, 0, len(p.eligible[t]))
	candidates := make([]strategy.Candidate, 0, len(p.eligible[t]))
	for _, h := range p.eligible[t] {
		if h.Shares < lot {
			continue
		}
		holdings = append(holdings, h)
		candidates = append(candidates, strategy.Candidate{
			Symbol: h.Symbol,
			Shares: h.Shares,
			Price:  h.Price,
			Weight: h.Weight(t),
		})
	}
	if len(candidates) == 0 {
		return false
	}

	i := policy.Choose(t, candidates)
	if i < 0 || i >= len(holdings) {
		return false
	}
	h := holdings[i]
	proceeds := h.Price * lot
	h.Sell(lot)
	p.cash.Buy(proceeds)
	p.trades = append(p.trades, types.Trade{
		Symbol:   h.Symbol,
		Type:     t,
		Side:     "SELL",
		Quantity: lot,
		Price:    h.Price,
		Value:    proceeds,
	})
	return true
}

// ShareDeltas 计算 other 相对 p 的份额变化 (按 other 的持仓顺序)
// other 中新增的代码取其全部份额
func (p *Portfolio) ShareDeltas(other *Portfolio) []types.ShareDelta {
	out := make([]types.ShareDelta, 0, len(other.holdings))
	for _, oh := range other.holdings {
		delta := oh.Shares
		if h, ok := p.bySymbol[oh.Symbol]; ok {
			delta = oh.Shares - h.Shares
		}
		out = append(out, types.ShareDelta{Symbol: oh.Symbol, Delta: delta})
	}
	return out
}

// LimitPrices 为 other 中份额增加的标的计算建议限价
// other 剩余的现金按价格比例分摊
func (p *Portfolio) LimitPrices(other *Portfolio) []types.LimitOrder {
	lines := make([]limit.Line, 0)
	for _, d := range p.ShareDeltas(other) {
		if d.Delta <= 0 || d.Symbol == types.CashType || d.Symbol == types.OtherType {
			continue
		}
		h, ok := p.bySymbol[d.Symbol]
		if !ok {
			h = other.bySymbol[d.Symbol]
		}
		if h.IsCash() {
			continue
		}
		lines = append(lines, limit.Line{Symbol: d.Symbol, Price: h.Price, Delta: d.Delta})
	}
	return limit.Prices(lines, other.Cash())
}
