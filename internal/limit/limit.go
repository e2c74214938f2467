package limit

import (
	"math"

	"github.com/opsxjacky/cash-rebalancer/pkg/types"
	"github.com/shopspring/decimal"
)

// Line 一个再平衡后需要买入的标的
type Line struct {
	Symbol string
	Price  float64 // 最近观察到的价格
	Delta  float64 // 需要买入的份额
}

// Prices 计算建议限价
// 再平衡后剩余的现金按价格比例分摊到各个买入标的，
// 再折算成每股的滑点空间加到观察价上
func Prices(lines []Line, residualCash float64) []types.LimitOrder {
	var totalPrice float64
	for _, l := range lines {
		if l.Delta > 0 {
			totalPrice += l.Price
		}
	}

	orders := make([]types.LimitOrder, 0, len(lines))
	if totalPrice <= 0 {
		return orders
	}

	for _, l := range lines {
		if l.Delta <= 0 {
			continue
		}
		weight := l.Price / totalPrice
		price := l.Price + weight*residualCash/l.Delta

		orders = append(orders, types.LimitOrder{
			Symbol:     l.Symbol,
			LimitPrice: Truncate(price, 2),
			Shares:     int64(math.Ceil(l.Delta)),
			LastPrice:  l.Price,
		})
	}
	return orders
}

// Truncate 截断 (不四舍五入) 到指定小数位
func Truncate(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Truncate(places).Float64()
	return f
}
