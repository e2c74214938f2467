package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/opsxjacky/cash-rebalancer/internal/allocation"
	"github.com/opsxjacky/cash-rebalancer/internal/config"
	"github.com/opsxjacky/cash-rebalancer/internal/data"
	"github.com/opsxjacky/cash-rebalancer/internal/engine"
	"github.com/opsxjacky/cash-rebalancer/internal/report"
	"github.com/opsxjacky/cash-rebalancer/pkg/logger"
	"github.com/spf13/cobra"
)

// flags 命令行参数，显式设置时覆盖配置文件
type flags struct {
	configPath string
	sell       bool
	format     string
	splitRatio float64
	width      int
	logLevel   string
	seed       int64
	policy     string
	output     string
	failFast   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "rebalance [account files...]",
		Short: "Invest spare cash across holdings to approach target allocations",
		Long: `rebalance loads one or more account files (JSON, YAML or TOML), each with
target allocations and current holdings, and greedily buys whole lots with the
available cash so that every asset type moves toward its target. It prints the
share deltas and suggested limit prices per account.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd, f, args, stdout, stderr)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
			}
			return err
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "path to the YAML run configuration")
	fl.BoolVar(&f.sell, "sell", false, "sell over-weighted positions before buying")
	fl.StringVarP(&f.format, "format", "f", config.FormatMarkdown, "output format: markdown, text or json")
	fl.Float64Var(&f.splitRatio, "split-ratio", 0, "US share of aggregate stock targets, e.g. 0.8 or 0.6667 (0 puts everything in international)")
	fl.IntVar(&f.width, "width", config.DefaultWidth, "word wrap width of the rendered markdown report")
	fl.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fl.Int64Var(&f.seed, "seed", 0, "seed for the random sell policy")
	fl.StringVar(&f.policy, "policy", "", "sell policy: largest or random")
	fl.StringVarP(&f.output, "output", "o", "", "also export JSON results to this file")
	fl.BoolVar(&f.failFast, "fail-fast", false, "abort the batch on the first failing account")
	return cmd
}

// loadConfig 读取配置文件并应用命令行覆盖
func loadConfig(cmd *cobra.Command, f *flags, args []string) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("sell") {
		cfg.Rebalance.SellShares = f.sell
	}
	if changed("format") {
		cfg.Output.Format = f.format
	}
	if changed("split-ratio") {
		ratio := f.splitRatio
		cfg.Rebalance.SplitRatio = &ratio
	}
	if changed("width") {
		cfg.Output.Width = f.width
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("seed") {
		cfg.Rebalance.Seed = f.seed
	}
	if changed("policy") {
		cfg.Rebalance.SellPolicy = f.policy
	}
	if changed("output") {
		cfg.Output.Path = f.output
	}
	if changed("fail-fast") {
		cfg.Rebalance.FailFast = f.failFast
	}
	if len(args) > 0 {
		cfg.Accounts = args
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, f *flags, args []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(cmd, f, args)
	if err != nil {
		return err
	}

	logCfg := cfg.ToLoggerConfig()
	logCfg.Out = stderr
	log := logger.New(logCfg)

	balancerOpts, err := cfg.ToBalancerOptions()
	if err != nil {
		return err
	}
	prices, err := cfg.NewPriceSource(log)
	if err != nil {
		return err
	}

	e := engine.New(engine.Options{
		Balancer:   balancerOpts,
		SplitRatio: cfg.GetSplitRatio(),
		FailFast:   cfg.Rebalance.FailFast,
	}, data.NewFileLoader(), prices, log)

	reports, runErr := e.Run(cmd.Context(), cfg.Accounts)
	if errors.Is(runErr, allocation.ErrSplitRatioUnset) {
		log.Warn().Msg("set rebalance.split_ratio or --split-ratio (0.8 and 2/3 are the historical values)")
	}

	if cfg.GetFormat() == config.FormatJSON {
		if err := e.WriteJSON(stdout); err != nil {
			return err
		}
	} else if len(reports) > 0 {
		if err := report.Write(stdout, cfg.GetFormat(), cfg.GetStyle(), cfg.GetWidth(), reports); err != nil {
			return err
		}
	}

	if cfg.Output.Path != "" && len(reports) > 0 {
		if err := e.ExportResults(cfg.Output.Path); err != nil {
			return err
		}
	}
	return runErr
}
