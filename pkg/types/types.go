package types

// CashType 现金类型名 (同时也是现金持仓的代码)
const CashType = "cash"

// OtherType 哨兵类型，不参与买卖
const OtherType = "other"

// Account 账户定义 (targets + holdings)
type Account struct {
	Name     string             `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Targets  map[string]float64 `json:"targets" yaml:"targets" toml:"targets" validate:"required,min=1,dive,keys,required,endkeys,gte=0"`
	Holdings []HoldingRecord    `json:"holdings" yaml:"holdings" toml:"holdings" validate:"required,min=1,dive"`
}

// HoldingRecord 持仓原始记录
// type 与 composition 二选一
type HoldingRecord struct {
	Symbol        string             `json:"symbol,omitempty" yaml:"symbol,omitempty" toml:"symbol,omitempty"`
	Shares        float64            `json:"shares" yaml:"shares" toml:"shares"`
	CurrentPrice  *float64           `json:"current_price,omitempty" yaml:"current_price,omitempty" toml:"current_price,omitempty" validate:"omitempty,gt=0"`
	BuyAdditional *bool              `json:"buy_additional,omitempty" yaml:"buy_additional,omitempty" toml:"buy_additional,omitempty"`
	Type          string             `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty" validate:"required_without=Composition,excluded_with=Composition"`
	Composition   map[string]float64 `json:"composition,omitempty" yaml:"composition,omitempty" toml:"composition,omitempty" validate:"required_without=Type,excluded_with=Type,dive,gte=0"`
}

// IsCash 是否为现金记录，type: cash 或 composition 只有 cash 一项
// 现金记录不需要 symbol
func (r HoldingRecord) IsCash() bool {
	if r.Type != "" {
		return r.Type == CashType && r.Composition == nil
	}
	if len(r.Composition) != 1 {
		return false
	}
	_, ok := r.Composition[CashType]
	return ok
}

// IsBuyAdditional 是否允许追加买入 (默认 true)
func (r HoldingRecord) IsBuyAdditional() bool {
	if r.BuyAdditional == nil {
		return true
	}
	return *r.BuyAdditional
}

// ShareDelta 单个标的的份额变化
// 现金的 Delta 为金额
type ShareDelta struct {
	Symbol string  `json:"symbol"`
	Delta  float64 `json:"delta"`
}

// LimitOrder 建议的限价买单
type LimitOrder struct {
	Symbol     string  `json:"symbol"`
	LimitPrice float64 `json:"limit_price"`
	Shares     int64   `json:"shares"`
	LastPrice  float64 `json:"last_price"`
}

// Trade 再平衡过程中的一次买卖 (一个 lot)
type Trade struct {
	Symbol   string  `json:"symbol"`
	Type     string  `json:"type"`
	Side     string  `json:"side"` // "BUY" or "SELL"
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
}

// AccountReport 单个账户的再平衡结果
type AccountReport struct {
	Name              string             `json:"name"`
	Targets           map[string]float64 `json:"targets"`
	InitialAllocation map[string]float64 `json:"initial_allocation"`
	InitialDiff       map[string]float64 `json:"initial_diff"`
	Deltas            []ShareDelta       `json:"deltas"`
	LimitOrders       []LimitOrder       `json:"limit_orders"`
	ResidualDiff      map[string]float64 `json:"residual_diff"`
	Trades            []Trade            `json:"trades,omitempty"`
	InitialValue      float64            `json:"initial_value"`
	ResidualCash      float64            `json:"residual_cash"`
	Error             string             `json:"error,omitempty"`
}
