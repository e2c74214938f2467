package price

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidPrice 价格非正或 NaN
	ErrInvalidPrice = errors.New("price must be positive and not NaN")
	// ErrNotFound 数据源中没有该标的
	ErrNotFound = errors.New("no price for symbol")
)

// Source 价格数据源接口
type Source interface {
	// Price 返回 symbol 在 asOf 时刻的价格
	Price(ctx context.Context, symbol string, asOf time.Time) (float64, error)
}

// Validate 校验价格
func Validate(symbol string, p float64) error {
	if math.IsNaN(p) || p <= 0 {
		return fmt.Errorf("%w: %s=%v", ErrInvalidPrice, symbol, p)
	}
	return nil
}

// Static 固定价格表
type Static map[string]float64

// Price 查表
func (s Static) Price(ctx context.Context, symbol string, asOf time.Time) (float64, error) {
	p, ok := s[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	if err := Validate(symbol, p); err != nil {
		return 0, err
	}
	return p, nil
}

// None 不提供价格，所有持仓必须自带 current_price
type None struct{}

// Price 总是返回 ErrNotFound
func (None) Price(ctx context.Context, symbol string, asOf time.Time) (float64, error) {
	return 0, fmt.Errorf("%w: %s (no price source configured and no current_price given)", ErrNotFound, symbol)
}
