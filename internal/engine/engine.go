package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/opsxjacky/cash-rebalancer/internal/allocation"
	"github.com/opsxjacky/cash-rebalancer/internal/balancer"
	"github.com/opsxjacky/cash-rebalancer/internal/data"
	"github.com/opsxjacky/cash-rebalancer/internal/portfolio"
	"github.com/opsxjacky/cash-rebalancer/internal/price"
	"github.com/opsxjacky/cash-rebalancer/pkg/types"
	"github.com/rs/zerolog"
)

// ErrAccountsFailed 至少一个账户处理失败
var ErrAccountsFailed = errors.New("one or more accounts failed")

// targetSumTolerance 目标占比之和偏离 1 超过该值时告警
const targetSumTolerance = 1e-6

// Options 引擎参数
type Options struct {
	Balancer   balancer.Options
	// SplitRatio 为 nil 时目标不能含聚合类型
	SplitRatio *allocation.SplitRatio
	// FailFast 任一账户失败即中止整批
	FailFast bool
	// AsOf 价格时点，零值表示当前
	AsOf time.Time
}

// Engine 批量再平衡引擎
// 每个账户独立加载、取价、再平衡，失败只记录在该账户的结果上
type Engine struct {
	opts     Options
	loader   data.AccountLoader
	prices   price.Source
	balancer *balancer.Balancer
	log      zerolog.Logger
	reports  []types.AccountReport
}

// New 创建引擎
// prices 为 nil 时所有非现金持仓必须自带 current_price
func New(opts Options, loader data.AccountLoader, prices price.Source, log zerolog.Logger) *Engine {
	if loader == nil {
		loader = data.NewFileLoader()
	}
	if prices == nil {
		prices = price.None{}
	}
	return &Engine{
		opts:     opts,
		loader:   loader,
		prices:   prices,
		balancer: balancer.New(opts.Balancer, log),
		log:      log.With().Str("component", "engine").Logger(),
	}
}

// Run 按顺序处理账户文件
// 返回的报告与 paths 一一对应 (FailFast 时截止到失败的账户)
func (e *Engine) Run(ctx context.Context, paths []string) ([]types.AccountReport, error) {
	e.reports = make([]types.AccountReport, 0, len(paths))
	var errs []error
	if len(paths) == 0 {
		return e.reports, fmt.Errorf("no account files given")
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return e.reports, err
		}

		var report *types.AccountReport
		account, err := e.loader.Load(path)
		if err == nil {
			report, err = e.RunAccount(ctx, account)
		}
		if err != nil {
			name := path
			if account != nil {
				name = account.Name
			}
			e.log.Error().Err(err).Str("account", name).Msg("account failed")
			e.reports = append(e.reports, types.AccountReport{Name: name, Error: err.Error()})
			errs = append(errs, fmt.Errorf("account %s: %w", name, err))
			if e.opts.FailFast {
				return e.reports, fmt.Errorf("account %s: %w", name, err)
			}
			continue
		}
		e.reports = append(e.reports, *report)
	}

	if n := e.Failed(); n > 0 {
		return e.reports, fmt.Errorf("%w (%d of %d): %w", ErrAccountsFailed, n, len(e.reports), errors.Join(errs...))
	}
	return e.reports, nil
}

// RunAccount 处理单个已加载的账户
func (e *Engine) RunAccount(ctx context.Context, account *types.Account) (*types.AccountReport, error) {
	log := e.log.With().Str("account", account.Name).Logger()

	holdings, err := e.buildHoldings(ctx, account)
	if err != nil {
		return nil, err
	}
	p, err := portfolio.New(holdings)
	if err != nil {
		return nil, err
	}

	targets, err := allocation.Targets(account.Targets, e.opts.SplitRatio)
	if err != nil {
		return nil, err
	}
	if sum := targets.Sum(); math.Abs(sum-1) > targetSumTolerance {
		log.Warn().Float64("sum", sum).Msg("target fractions do not sum to 1")
	}

	initial, err := p.Allocation()
	if err != nil {
		return nil, err
	}
	log.Debug().
		Float64("value", p.TotalValue()).
		Str("allocation", initial.String()).
		Msg("portfolio loaded")

	res, err := e.balancer.Rebalance(p, targets)
	if err != nil {
		return nil, err
	}

	return &types.AccountReport{
		Name:              account.Name,
		Targets:           targets.Map(),
		InitialAllocation: initial.Map(),
		InitialDiff:       targets.Diff(initial).Map(),
		Deltas:            res.Deltas,
		LimitOrders:       res.LimitOrders,
		ResidualDiff:      res.ResidualDiff.Map(),
		Trades:            res.Rebalanced.Trades(),
		InitialValue:      p.TotalValue(),
		ResidualCash:      res.Rebalanced.Cash(),
	}, nil
}

// buildHoldings 把记录转换为持仓，缺少 current_price 的向价格数据源查询
func (e *Engine) buildHoldings(ctx context.Context, account *types.Account) ([]*portfolio.Holding, error) {
	holdings := make([]*portfolio.Holding, 0, len(account.Holdings))
	for _, rec := range account.Holdings {
		var p float64
		switch {
		case portfolio.IsCashRecord(rec):
		case rec.CurrentPrice != nil:
			p = *rec.CurrentPrice
		default:
			fetched, err := e.prices.Price(ctx, rec.Symbol, e.opts.AsOf)
			if err != nil {
				return nil, fmt.Errorf("price for %s: %w", rec.Symbol, err)
			}
			p = fetched
		}

		h, err := portfolio.FromRecord(rec, p)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

// Reports 最近一次 Run 的结果
func (e *Engine) Reports() []types.AccountReport {
	return e.reports
}

// Failed 失败的账户数
func (e *Engine) Failed() int {
	n := 0
	for _, r := range e.reports {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// ResultSummary 结果摘要
type ResultSummary struct {
	Accounts     int       `json:"accounts"`
	Failed       int       `json:"failed"`
	TotalValue   float64   `json:"total_value"`
	ResidualCash float64   `json:"residual_cash"`
	TotalTrades  int       `json:"total_trades"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Summary 汇总所有账户
func (e *Engine) Summary() ResultSummary {
	s := ResultSummary{
		Accounts:    len(e.reports),
		Failed:      e.Failed(),
		GeneratedAt: time.Now().UTC(),
	}
	for _, r := range e.reports {
		s.TotalValue += r.InitialValue
		s.ResidualCash += r.ResidualCash
		s.TotalTrades += len(r.Trades)
	}
	return s
}

// WriteJSON 以 JSON 输出摘要和各账户结果
func (e *Engine) WriteJSON(w io.Writer) error {
	if e.reports == nil {
		return fmt.Errorf("no results to export, run first")
	}

	output := struct {
		Summary  ResultSummary         `json:"summary"`
		Accounts []types.AccountReport `json:"accounts"`
	}{
		Summary:  e.Summary(),
		Accounts: e.reports,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

// ExportResults 导出结果到JSON文件
func (e *Engine) ExportResults(filepath string) error {
	f, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := e.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	e.log.Info().Str("path", filepath).Msg("results exported")
	return nil
}
