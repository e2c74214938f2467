package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opsxjacky/cash-rebalancer/internal/allocation"
	"github.com/opsxjacky/cash-rebalancer/internal/balancer"
	"github.com/opsxjacky/cash-rebalancer/internal/price"
	"github.com/opsxjacky/cash-rebalancer/internal/strategy"
	"github.com/opsxjacky/cash-rebalancer/pkg/logger"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config 配置文件结构
type Config struct {
	Accounts  []string         `yaml:"accounts"`
	Rebalance RebalanceSection `yaml:"rebalance"`
	Prices    PricesSection    `yaml:"prices"`
	Output    OutputSection    `yaml:"output"`
	Log       LogSection       `yaml:"log"`
}

// RebalanceSection 再平衡配置
type RebalanceSection struct {
	SellShares bool    `yaml:"sell_shares"`
	LotSize    float64 `yaml:"lot_size"`
	SellPolicy string  `yaml:"sell_policy"`
	Seed       int64   `yaml:"seed"`
	SplitRatio *float64 `yaml:"split_ratio"` // 聚合 stocks 中美股的占比，0 表示全部国际股
	FailFast   bool    `yaml:"fail_fast"`
}

// PricesSection 价格数据源配置
type PricesSection struct {
	Source      string        `yaml:"source"` // none | csv | eodhd
	CSVPath     string        `yaml:"csv_path"`
	EODHDAPIKey string        `yaml:"eodhd_api_key"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	RateLimit   int           `yaml:"rate_limit"`
}

// OutputSection 输出配置
type OutputSection struct {
	Format string `yaml:"format"` // markdown | text | json
	Path   string `yaml:"path"`
	Style  string `yaml:"style"`
	Width  int    `yaml:"width"` // markdown 渲染的折行宽度
}

// LogSection 日志配置
type LogSection struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// 价格数据源
const (
	SourceNone  = "none"
	SourceCSV   = "csv"
	SourceEODHD = "eodhd"
)

// DefaultWidth markdown 渲染的默认折行宽度
const DefaultWidth = 100

// 输出格式
const (
	FormatMarkdown = "markdown"
	FormatText     = "text"
	FormatJSON     = "json"
)

// Default 默认配置
func Default() *Config {
	return &Config{
		Rebalance: RebalanceSection{LotSize: 1},
		Output:    OutputSection{Format: FormatMarkdown, Style: "auto"},
		Log:       LogSection{Level: "info", Pretty: true},
	}
}

// LoadConfig 从文件加载配置
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// EODHD key 也可以来自环境变量
	if config.Prices.EODHDAPIKey == "" {
		config.Prices.EODHDAPIKey = os.Getenv("EODHD_API_KEY")
	}

	return config, config.Validate()
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Rebalance.LotSize < 0 {
		return fmt.Errorf("invalid lot_size: %v", c.Rebalance.LotSize)
	}
	if r := c.Rebalance.SplitRatio; r != nil && !(*r >= 0 && *r <= 1) {
		return fmt.Errorf("invalid split_ratio: %v (want a value within [0, 1])", *r)
	}
	if c.Output.Width < 0 {
		return fmt.Errorf("invalid output width: %d", c.Output.Width)
	}
	switch c.GetPriceSource() {
	case SourceNone:
	case SourceCSV:
		if c.Prices.CSVPath == "" {
			return fmt.Errorf("prices.csv_path is required for the csv price source")
		}
	case SourceEODHD:
		if c.Prices.EODHDAPIKey == "" {
			return fmt.Errorf("prices.eodhd_api_key (or EODHD_API_KEY) is required for the eodhd price source")
		}
	default:
		return fmt.Errorf("unknown price source %q", c.Prices.Source)
	}
	switch c.GetFormat() {
	case FormatMarkdown, FormatText, FormatJSON:
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	return nil
}

// GetLotSize 获取 lot 大小
func (c *Config) GetLotSize() float64 {
	if c.Rebalance.LotSize > 0 {
		return c.Rebalance.LotSize
	}
	return 1
}

// GetSplitRatio 获取拆分比例，未配置时为 nil
func (c *Config) GetSplitRatio() *allocation.SplitRatio {
	if c.Rebalance.SplitRatio == nil {
		return nil
	}
	return allocation.SplitRatio(*c.Rebalance.SplitRatio).Ptr()
}

// GetPriceSource 获取价格数据源
func (c *Config) GetPriceSource() string {
	if c.Prices.Source != "" {
		return strings.ToLower(c.Prices.Source)
	}
	return SourceNone
}

// GetCacheTTL 获取价格缓存有效期
func (c *Config) GetCacheTTL() time.Duration {
	if c.Prices.CacheTTL > 0 {
		return c.Prices.CacheTTL
	}
	return price.DefaultTTL
}

// GetFormat 获取输出格式
func (c *Config) GetFormat() string {
	if c.Output.Format != "" {
		return strings.ToLower(c.Output.Format)
	}
	return FormatMarkdown
}

// GetStyle 获取 markdown 渲染风格
func (c *Config) GetStyle() string {
	if c.Output.Style != "" {
		return c.Output.Style
	}
	return "auto"
}

// GetWidth 获取 markdown 折行宽度
func (c *Config) GetWidth() int {
	if c.Output.Width > 0 {
		return c.Output.Width
	}
	return DefaultWidth
}

// ToLoggerConfig 转换为日志配置
func (c *Config) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
	}
}

// ToBalancerOptions 转换为再平衡参数
func (c *Config) ToBalancerOptions() (balancer.Options, error) {
	policy, err := strategy.FromName(strings.ToLower(c.Rebalance.SellPolicy), c.Rebalance.Seed)
	if err != nil {
		return balancer.Options{}, err
	}
	return balancer.Options{
		SellShares: c.Rebalance.SellShares,
		LotSize:    c.GetLotSize(),
		Policy:     policy,
	}, nil
}

// NewPriceSource 按配置创建价格数据源，外层包一层 TTL 缓存
func (c *Config) NewPriceSource(log zerolog.Logger) (price.Source, error) {
	var src price.Source
	switch c.GetPriceSource() {
	case SourceNone:
		src = price.None{}
	case SourceCSV:
		csvSrc, err := price.LoadCSV(c.Prices.CSVPath)
		if err != nil {
			return nil, err
		}
		src = csvSrc
	case SourceEODHD:
		opts := []price.EODHDOption{price.WithEODHDLogger(log)}
		if c.Prices.RateLimit > 0 {
			opts = append(opts, price.WithRateLimit(c.Prices.RateLimit))
		}
		src = price.NewEODHD(c.Prices.EODHDAPIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown price source %q", c.Prices.Source)
	}
	return price.NewCache(src, price.WithTTL(c.GetCacheTTL()), price.WithLogger(log)), nil
}
