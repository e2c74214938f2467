package balancer

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/opsxjacky/cash-rebalancer/internal/allocation"
	"github.com/opsxjacky/cash-rebalancer/internal/portfolio"
	"github.com/opsxjacky/cash-rebalancer/internal/strategy"
	"github.com/opsxjacky/cash-rebalancer/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func holding(t *testing.T, symbol string, shares, price float64, comp map[string]float64) *portfolio.Holding {
	t.Helper()
	h, err := portfolio.NewHolding(symbol, shares, price, comp, true)
	require.NoError(t, err)
	return h
}

func build(t *testing.T, holdings ...*portfolio.Holding) *portfolio.Portfolio {
	t.Helper()
	p, err := portfolio.New(holdings)
	require.NoError(t, err)
	return p
}

func shares(t *testing.T, p *portfolio.Portfolio, symbol string) float64 {
	t.Helper()
	h, ok := p.Holding(symbol)
	require.True(t, ok, symbol)
	return h.Shares
}

func TestRebalance_SingleTypeSpendsCash(t *testing.T) {
	p := build(t,
		portfolio.NewCash(1000),
		holding(t, "AAA", 0, 100, map[string]float64{"equity": 1}),
		holding(t, "BBB", 0, 50, map[string]float64{"equity": 1}),
	)
	targets := allocation.New(map[string]float64{"equity": 1.0})

	res, err := New(Options{}, zerolog.Nop()).Rebalance(p, targets)
	require.NoError(t, err)

	assert.Equal(t, 9.0, shares(t, res.Rebalanced, "AAA"))
	assert.Equal(t, 1.0, shares(t, res.Rebalanced, "BBB"))
	assert.Equal(t, 50.0, res.Rebalanced.Cash())

	equity, err := res.ResidualDiff.Get("equity")
	require.NoError(t, err)
	assert.InDelta(t, 0.05, equity, 1e-12)

	assert.Equal(t, []types.ShareDelta{
		{Symbol: "cash", Delta: -950},
		{Symbol: "AAA", Delta: 9},
		{Symbol: "BBB", Delta: 1},
	}, res.Deltas)
	require.Len(t, res.LimitOrders, 2)
	assert.Equal(t, 103.70, res.LimitOrders[0].LimitPrice)

	// 原组合不变
	assert.Equal(t, 1000.0, p.Cash())
	assert.Equal(t, 0.0, shares(t, p, "AAA"))
	assert.LessOrEqual(t, res.Iterations, 1000/50+1)
}

func TestRebalance_MultipleTypes(t *testing.T) {
	p := build(t,
		portfolio.NewCash(1000),
		holding(t, "VTI", 0, 200, map[string]float64{"us_stocks": 1}),
		holding(t, "BND", 0, 80, map[string]float64{"bonds": 1}),
	)
	targets := allocation.New(map[string]float64{"us_stocks": 0.6, "bonds": 0.4})

	res, err := New(Options{}, zerolog.Nop()).Rebalance(p, targets)
	require.NoError(t, err)

	assert.InDelta(t, 1000, res.Rebalanced.TotalValue(), 1e-9)
	assert.GreaterOrEqual(t, res.Rebalanced.Cash(), 0.0)
	assert.LessOrEqual(t, res.Rebalanced.Cash(), 80.0)

	a, err := res.Rebalanced.Allocation()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, a.Sum(), 1e-9)
	us, _ := a.Get("us_stocks")
	bonds, _ := a.Get("bonds")
	assert.InDelta(t, 0.6, us, 0.2)
	assert.InDelta(t, 0.4, bonds, 0.2)
}

func TestRebalance_RespectsBuyAdditional(t *testing.T) {
	frozen, err := portfolio.NewHolding("OLD", 1, 10, map[string]float64{"bonds": 1}, false)
	require.NoError(t, err)
	p := build(t, portfolio.NewCash(100), frozen)

	res, err := New(Options{}, zerolog.Nop()).Rebalance(p, allocation.New(map[string]float64{"bonds": 1}))
	require.NoError(t, err)

	assert.Equal(t, 1.0, shares(t, res.Rebalanced, "OLD"))
	assert.Equal(t, 100.0, res.Rebalanced.Cash())
	assert.Empty(t, res.LimitOrders)
}

func TestRebalance_SellPhase(t *testing.T) {
	p := build(t,
		portfolio.NewCash(0),
		holding(t, "VTI", 10, 100, map[string]float64{"us_stocks": 1}),
		holding(t, "BND", 0, 50, map[string]float64{"bonds": 1}),
	)
	targets := allocation.New(map[string]float64{"us_stocks": 0.5, "bonds": 0.5})

	res, err := New(Options{SellShares: true}, zerolog.Nop()).Rebalance(p, targets)
	require.NoError(t, err)

	assert.Equal(t, 5.0, shares(t, res.Rebalanced, "VTI"))
	assert.Equal(t, 9.0, shares(t, res.Rebalanced, "BND"))
	assert.Equal(t, 50.0, res.Rebalanced.Cash())
	assert.Equal(t, []types.ShareDelta{
		{Symbol: "cash", Delta: 50},
		{Symbol: "VTI", Delta: -5},
		{Symbol: "BND", Delta: 9},
	}, res.Deltas)

	require.Len(t, res.LimitOrders, 1)
	assert.Equal(t, "BND", res.LimitOrders[0].Symbol)
}

func TestRebalance_SellPhaseStopsWhenNothingSellable(t *testing.T) {
	// VTI 超配但不足一个 lot，BND 欠配却买不起
	p := build(t,
		portfolio.NewCash(10),
		holding(t, "VTI", 0.5, 100, map[string]float64{"us_stocks": 1}),
		holding(t, "BND", 0, 50, map[string]float64{"bonds": 1}),
	)
	targets := allocation.New(map[string]float64{"us_stocks": 0.5, "bonds": 0.5})

	var buf bytes.Buffer
	res, err := New(Options{SellShares: true}, zerolog.New(&buf)).Rebalance(p, targets)
	require.NoError(t, err)

	assert.Equal(t, 0.5, shares(t, res.Rebalanced, "VTI"))
	assert.Equal(t, 0.0, shares(t, res.Rebalanced, "BND"))
	assert.Equal(t, 10.0, res.Rebalanced.Cash())
	assert.Empty(t, res.Rebalanced.Trades())
	assert.Empty(t, res.LimitOrders)
	assert.Contains(t, buf.String(), "nothing left to sell")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestRebalance_SellPhaseDisabledLeavesHoldings(t *testing.T) {
	p := build(t,
		portfolio.NewCash(0),
		holding(t, "VTI", 10, 100, map[string]float64{"us_stocks": 1}),
		holding(t, "BND", 0, 50, map[string]float64{"bonds": 1}),
	)
	targets := allocation.New(map[string]float64{"us_stocks": 0.5, "bonds": 0.5})

	res, err := New(Options{}, zerolog.Nop()).Rebalance(p, targets)
	require.NoError(t, err)
	assert.Equal(t, 10.0, shares(t, res.Rebalanced, "VTI"))
	assert.Empty(t, res.Rebalanced.Trades())
}

func TestRebalance_RandomPolicyIsReproducible(t *testing.T) {
	run := func() []types.ShareDelta {
		p := build(t,
			portfolio.NewCash(0),
			holding(t, "VTI", 10, 100, map[string]float64{"us_stocks": 1}),
			holding(t, "ITOT", 10, 100, map[string]float64{"us_stocks": 1}),
			holding(t, "SCHB", 10, 100, map[string]float64{"us_stocks": 1}),
			holding(t, "BND", 0, 50, map[string]float64{"bonds": 1}),
		)
		targets := allocation.New(map[string]float64{"us_stocks": 0.5, "bonds": 0.5})
		opts := Options{SellShares: true, Policy: strategy.NewRandom(42)}
		res, err := New(opts, zerolog.Nop()).Rebalance(p, targets)
		require.NoError(t, err)
		return res.Deltas
	}

	assert.Equal(t, run(), run())
}

func TestRebalance_Errors(t *testing.T) {
	t.Run("held type without target", func(t *testing.T) {
		p := build(t,
			portfolio.NewCash(100),
			holding(t, "GLD", 1, 100, map[string]float64{"gold": 1}),
		)
		_, err := New(Options{}, zerolog.Nop()).Rebalance(p, allocation.New(map[string]float64{"bonds": 1}))
		assert.ErrorIs(t, err, allocation.ErrUnknownType)
	})

	t.Run("zero value", func(t *testing.T) {
		p := build(t, holding(t, "BND", 0, 100, map[string]float64{"bonds": 1}))
		_, err := New(Options{}, zerolog.Nop()).Rebalance(p, allocation.New(map[string]float64{"bonds": 1}))
		assert.ErrorIs(t, err, portfolio.ErrZeroValue)
	})
}

func TestRebalance_TerminatesWithinBound(t *testing.T) {
	typeNames := []string{"us_stocks", "int_stocks", "bonds", "reits"}
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 25; i++ {
		t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
			cash := 500 + rng.Float64()*5000
			holdings := []*portfolio.Holding{portfolio.NewCash(cash)}
			minPrice := math.Inf(1)
			raw := make(map[string]float64)
			for j, name := range typeNames {
				price := 5 + rng.Float64()*300
				minPrice = math.Min(minPrice, price)
				holdings = append(holdings, holding(t, fmt.Sprintf("S%d", j), float64(rng.Intn(20)), price, map[string]float64{name: 1}))
				raw[name] = 0.25
			}
			p := build(t, holdings...)

			res, err := New(Options{}, zerolog.Nop()).Rebalance(p, allocation.New(raw))
			require.NoError(t, err)

			bound := int(math.Floor(cash/minPrice)) + len(typeNames)
			assert.LessOrEqual(t, res.Iterations, bound)
			assert.GreaterOrEqual(t, res.Rebalanced.Cash(), 0.0)
			assert.LessOrEqual(t, res.Rebalanced.Cash(), minPrice+1e-9)
		})
	}
}
