package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/opsxjacky/cash-rebalancer/internal/allocation"
	"github.com/opsxjacky/cash-rebalancer/internal/price"
	"github.com/opsxjacky/cash-rebalancer/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const equityAccount = `{
  "targets": {"equity": 1.0},
  "holdings": [
    {"type": "cash", "shares": 1000},
    {"symbol": "AAA", "shares": 0, "type": "equity"},
    {"symbol": "BBB", "shares": 0, "type": "equity", "current_price": 50}
  ]
}`

func writeAccount(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newEngine(opts Options, prices price.Source) *Engine {
	return New(opts, nil, prices, zerolog.Nop())
}

func deltaOf(r types.AccountReport, symbol string) float64 {
	for _, d := range r.Deltas {
		if d.Symbol == symbol {
			return d.Delta
		}
	}
	return 0
}

func TestRun_SingleAccount(t *testing.T) {
	dir := t.TempDir()
	path := writeAccount(t, dir, "equity.json", equityAccount)

	e := newEngine(Options{}, price.Static{"AAA": 100})
	reports, err := e.Run(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	r := reports[0]
	assert.Empty(t, r.Error)
	assert.Equal(t, "equity.json", r.Name)
	assert.Equal(t, 1000.0, r.InitialValue)
	assert.InDelta(t, 1.0, r.InitialDiff["equity"], 1e-9)

	// 先买 AAA 直到现金不足 100，再买一股 BBB
	assert.Equal(t, 9.0, deltaOf(r, "AAA"))
	assert.Equal(t, 1.0, deltaOf(r, "BBB"))
	assert.Equal(t, -950.0, deltaOf(r, types.CashType))
	assert.Equal(t, 50.0, r.ResidualCash)
	assert.InDelta(t, 0.05, r.ResidualDiff["equity"], 1e-9)
	assert.Len(t, r.Trades, 10)
	require.Len(t, r.LimitOrders, 2)
	assert.Equal(t, "AAA", r.LimitOrders[0].Symbol)
	assert.Equal(t, 103.70, r.LimitOrders[0].LimitPrice)
	assert.Equal(t, int64(9), r.LimitOrders[0].Shares)

	s := e.Summary()
	assert.Equal(t, 1, s.Accounts)
	assert.Equal(t, 0, s.Failed)
	assert.Equal(t, 10, s.TotalTrades)
}

func TestRun_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeAccount(t, dir, "good.json", equityAccount)
	// AAA 没有价格
	noPrice := writeAccount(t, dir, "noprice.json", equityAccount)
	broken := writeAccount(t, dir, "broken.json", `{"targets": {}}`)

	e := newEngine(Options{}, price.Static{"AAA": 100})
	reports, err := e.Run(context.Background(), []string{broken, good})
	require.ErrorIs(t, err, ErrAccountsFailed)
	require.Len(t, reports, 2)
	assert.Equal(t, broken, reports[0].Name)
	assert.NotEmpty(t, reports[0].Error)
	assert.Empty(t, reports[1].Error)
	assert.Equal(t, 1, e.Failed())

	e = newEngine(Options{}, nil)
	reports, err = e.Run(context.Background(), []string{noPrice, good})
	require.ErrorIs(t, err, ErrAccountsFailed)
	require.Len(t, reports, 2)
	assert.Equal(t, "noprice.json", reports[0].Name)
	assert.Contains(t, reports[0].Error, "AAA")
	assert.NotEmpty(t, reports[1].Error)
}

func TestRun_FailFast(t *testing.T) {
	dir := t.TempDir()
	bad := writeAccount(t, dir, "bad.json", `{
  "targets": {"stocks": 1.0},
  "holdings": [{"type": "cash", "shares": 10}]
}`)
	good := writeAccount(t, dir, "good.json", equityAccount)

	e := newEngine(Options{FailFast: true}, price.Static{"AAA": 100})
	reports, err := e.Run(context.Background(), []string{bad, good})
	require.ErrorIs(t, err, allocation.ErrSplitRatioUnset)
	assert.Len(t, reports, 1)
}

func TestRun_InvalidPriceIsFatalForAccount(t *testing.T) {
	dir := t.TempDir()
	path := writeAccount(t, dir, "equity.json", equityAccount)

	e := newEngine(Options{FailFast: true}, price.Static{"AAA": 0})
	_, err := e.Run(context.Background(), []string{path})
	assert.ErrorIs(t, err, price.ErrInvalidPrice)
}

func TestRun_NoAccounts(t *testing.T) {
	_, err := newEngine(Options{}, nil).Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeAccount(t, dir, "equity.json", equityAccount)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reports, err := newEngine(Options{}, price.Static{"AAA": 100}).Run(ctx, []string{path})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reports)
}

func TestRunAccount_SplitRatio(t *testing.T) {
	account := &types.Account{
		Name:    "split",
		Targets: map[string]float64{"stocks": 0.9, "bonds": 0.1},
		Holdings: []types.HoldingRecord{
			{Type: types.CashType, Shares: 500},
			{Symbol: "VTI", Shares: 1, Type: "us_stocks"},
			{Symbol: "VXUS", Shares: 1, Type: "int_stocks"},
			{Symbol: "BND", Shares: 1, Type: "bonds"},
		},
	}

	e := newEngine(Options{SplitRatio: allocation.SplitEightyTwenty.Ptr()}, price.Static{"VTI": 100, "VXUS": 50, "BND": 70})
	r, err := e.RunAccount(context.Background(), account)
	require.NoError(t, err)

	assert.InDelta(t, 0.72, r.Targets["us_stocks"], 1e-12)
	assert.InDelta(t, 0.18, r.Targets["int_stocks"], 1e-12)
	assert.NotContains(t, r.Targets, "stocks")
	assert.Equal(t, 720.0, r.InitialValue)
	assert.LessOrEqual(t, r.ResidualCash, 50.0)
	assert.GreaterOrEqual(t, r.ResidualCash, 0.0)
}

func TestWriteJSONAndExport(t *testing.T) {
	dir := t.TempDir()
	path := writeAccount(t, dir, "equity.json", equityAccount)

	e := newEngine(Options{}, price.Static{"AAA": 100})
	assert.Error(t, e.WriteJSON(&bytes.Buffer{}))

	_, err := e.Run(context.Background(), []string{path})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, e.WriteJSON(&buf))

	var out struct {
		Summary  ResultSummary         `json:"summary"`
		Accounts []types.AccountReport `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 1, out.Summary.Accounts)
	require.Len(t, out.Accounts, 1)
	assert.Equal(t, 50.0, out.Accounts[0].ResidualCash)

	exported := filepath.Join(dir, "out.json")
	require.NoError(t, e.ExportResults(exported))
	raw, err := os.ReadFile(exported)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "equity.json", out.Accounts[0].Name)
}
