package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	// DefaultEODHDBaseURL EODHD API 地址
	DefaultEODHDBaseURL = "https://eodhd.com/api"

	// DefaultTimeout HTTP 超时
	DefaultTimeout = 15 * time.Second

	// DefaultRateLimit 每秒请求数
	DefaultRateLimit = 5

	// DefaultExchange 不带交易所后缀的代码默认视为美股
	DefaultExchange = "US"
)

// EODHD 通过 EODHD real-time 接口获取最新价格
// asOf 被忽略，总是返回最新价格；需要按时间缓存时配合 Cache 使用
type EODHD struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// EODHDOption EODHD 选项
type EODHDOption func(*EODHD)

// WithBaseURL 设置 API 地址
func WithBaseURL(baseURL string) EODHDOption {
	return func(c *EODHD) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient 设置 HTTP 客户端
func WithHTTPClient(httpClient *http.Client) EODHDOption {
	return func(c *EODHD) {
		c.httpClient = httpClient
	}
}

// WithRateLimit 设置每秒请求数
func WithRateLimit(requestsPerSecond int) EODHDOption {
	return func(c *EODHD) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithEODHDLogger 设置日志
func WithEODHDLogger(log zerolog.Logger) EODHDOption {
	return func(c *EODHD) {
		c.log = log
	}
}

// NewEODHD 创建 EODHD 数据源
func NewEODHD(apiKey string, opts ...EODHDOption) *EODHD {
	c := &EODHD{
		baseURL: DefaultEODHDBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError EODHD 返回的错误
type APIError struct {
	StatusCode int
	Message    string
	Symbol     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eodhd API error: %s (status %d, symbol: %s)", e.Message, e.StatusCode, e.Symbol)
}

// Ticker 转换为 EODHD 代码 (SYMBOL.EXCHANGE)
func Ticker(symbol string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + "." + DefaultExchange
}

// Price 获取最新价格
func (c *EODHD) Price(ctx context.Context, symbol string, asOf time.Time) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")
	reqURL := fmt.Sprintf("%s/real-time/%s?%s", c.baseURL, url.PathEscape(Ticker(symbol)), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("symbol", symbol).Str("ticker", Ticker(symbol)).Msg("eodhd request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("eodhd request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body)), Symbol: symbol}
	}

	var payload struct {
		Code  string          `json:"code"`
		Close decimal.Decimal `json:"close"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("failed to parse eodhd response for %s: %w", symbol, err)
	}

	p := payload.Close.InexactFloat64()
	if err := Validate(symbol, p); err != nil {
		return 0, err
	}
	return p, nil
}
