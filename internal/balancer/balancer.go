package balancer

import (
	"fmt"

	"github.com/opsxjacky/cash-rebalancer/internal/allocation"
	"github.com/opsxjacky/cash-rebalancer/internal/portfolio"
	"github.com/opsxjacky/cash-rebalancer/internal/strategy"
	"github.com/opsxjacky/cash-rebalancer/pkg/types"
	"github.com/rs/zerolog"
)

// Options 再平衡参数
type Options struct {
	// SellShares 买入前先执行卖出阶段
	SellShares bool
	// LotSize 每步买卖的份额，0 表示 1
	LotSize float64
	// Policy 卖出阶段的选择策略，nil 时使用 LargestPosition
	Policy strategy.SellPolicy
}

// Result 一次再平衡的结果
type Result struct {
	Original     *portfolio.Portfolio
	Rebalanced   *portfolio.Portfolio
	Deltas       []types.ShareDelta
	LimitOrders  []types.LimitOrder
	ResidualDiff allocation.Proportions
	Iterations   int
}

// Balancer 贪心再平衡器
// 每一步为最欠配且买得起的类型买入一个 lot，买入后不回退，
// 当所有类型都买不起时停止
type Balancer struct {
	opts Options
	log  zerolog.Logger
}

// New 创建再平衡器
func New(opts Options, log zerolog.Logger) *Balancer {
	if opts.LotSize <= 0 {
		opts.LotSize = 1
	}
	if opts.Policy == nil {
		opts.Policy = strategy.NewLargestPosition()
	}
	return &Balancer{
		opts: opts,
		log:  log.With().Str("component", "balancer").Logger(),
	}
}

// Rebalance 在 p 的副本上执行再平衡，p 本身不变
func (b *Balancer) Rebalance(p *portfolio.Portfolio, targets allocation.Proportions) (*Result, error) {
	if err := checkTargets(p, targets); err != nil {
		return nil, err
	}
	working := p.Clone()

	if b.opts.SellShares {
		if err := b.sellPhase(working, targets); err != nil {
			return nil, err
		}
	}

	iterations, err := b.buyPhase(working, targets)
	if err != nil {
		return nil, err
	}

	current, err := working.Allocation()
	if err != nil {
		return nil, err
	}

	b.log.Info().
		Int("iterations", iterations).
		Int("trades", len(working.Trades())).
		Float64("residual_cash", working.Cash()).
		Msg("rebalance finished")

	return &Result{
		Original:     p,
		Rebalanced:   working,
		Deltas:       p.ShareDeltas(working),
		LimitOrders:  p.LimitPrices(working),
		ResidualDiff: targets.Diff(current),
		Iterations:   iterations,
	}, nil
}

// checkTargets 持仓中的类型 (cash/other 除外) 必须都有目标
func checkTargets(p *portfolio.Portfolio, targets allocation.Proportions) error {
	for _, h := range p.Holdings() {
		for _, t := range h.Types() {
			if t == types.CashType || t == types.OtherType {
				continue
			}
			if _, err := targets.Get(t); err != nil {
				return fmt.Errorf("holding %s: %w", h.Symbol, err)
			}
		}
	}
	return nil
}

// buyPhase 买入阶段
// 一轮中所有类型都买不起时结束
func (b *Balancer) buyPhase(p *portfolio.Portfolio, targets allocation.Proportions) (int, error) {
	iterations := 0
	for {
		iterations++
		current, err := p.Allocation()
		if err != nil {
			return iterations, err
		}

		bought := false
		for _, d := range targets.Diff(current).Ranked(types.CashType, types.OtherType) {
			target, err := targets.Get(d.Type)
			if err != nil {
				return iterations, fmt.Errorf("type %q is held but has no target: %w", d.Type, err)
			}
			if p.BuyOneLot(d.Type, target, b.opts.LotSize) {
				trade := p.Trades()[len(p.Trades())-1]
				b.log.Debug().
					Str("type", d.Type).
					Str("symbol", trade.Symbol).
					Float64("deviation", d.Value).
					Float64("cash", p.Cash()).
					Msg("bought lot")
				bought = true
				break
			}
		}
		if !bought {
			return iterations, nil
		}
	}
}

// sellPhase 卖出阶段
// 欠配之和超过现金占比时，从超配最多的类型卖出
func (b *Balancer) sellPhase(p *portfolio.Portfolio, targets allocation.Proportions) error {
	for {
		current, err := p.Allocation()
		if err != nil {
			return err
		}
		diffs := targets.Diff(current)

		var need float64
		for _, d := range diffs.Ranked() {
			if d.Value > 0 {
				need += d.Value
			}
		}
		cashFraction, _ := current.Get(types.CashType)
		if need <= cashFraction {
			return nil
		}

		ranked := diffs.Ranked(types.CashType, types.OtherType)
		sold := false
		// 从偏离最负 (超配最多) 的类型开始
		for i := len(ranked) - 1; i >= 0; i-- {
			d := ranked[i]
			if d.Value >= 0 {
				break
			}
			if p.SellOneLot(d.Type, b.opts.LotSize, b.opts.Policy) {
				trade := p.Trades()[len(p.Trades())-1]
				b.log.Debug().
					Str("type", d.Type).
					Str("symbol", trade.Symbol).
					Float64("deviation", d.Value).
					Float64("cash", p.Cash()).
					Msg("sold lot")
				sold = true
				break
			}
		}
		if !sold {
			b.log.Warn().
				Float64("needed", need).
				Float64("cash_fraction", cashFraction).
				Msg("sell phase stopped: nothing left to sell")
			return nil
		}
	}
}
