package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

type Side string

const (
	SideBuy     Side = "buy"
	SideSell    Side = "sell"
	SideBalance Side = "balance"
)

func (s Side) IsTrade() bool {
	return s == SideBuy || s == SideSell
}

// Field is a canonical order column name.
type Field string

const (
	FieldOrderID    Field = "ORDER_ID"
	FieldOpenTime   Field = "OPEN_DT"
	FieldSide       Field = "SIDE"
	FieldQty        Field = "QTY"
	FieldSymbol     Field = "SYMBOL"
	FieldOpenPrice  Field = "OPEN_PRICE"
	FieldStopLoss   Field = "STOP_LOSS"
	FieldTakeProfit Field = "TAKE_PROFIT"
	FieldCloseTime  Field = "CLOSE_DT"
	FieldClosePrice Field = "CLOSE_PRICE"
	FieldFee        Field = "FEE"
	FieldTaxes      Field = "TAXES"
	FieldSwap       Field = "SWAP"
	FieldProfit     Field = "PROFIT"
	FieldComment    Field = "COMMENT"
)

// ColumnMapping renames broker-specific columns to canonical fields.
type ColumnMapping map[string]Field

// RawTable is an ingested statement table before normalization.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// CashFlow is the decomposition of an order's profit amount.
type CashFlow struct {
	Deposit    float64 `json:"deposit"`
	Withdrawal float64 `json:"withdrawal"`
	Misc       float64 `json:"misc"`
	Profit     float64 `json:"profit"`
}

func (c CashFlow) Total() float64 {
	return c.Deposit + c.Withdrawal + c.Misc + c.Profit
}

type Order struct {
	ID         int64     `json:"id"`
	Side       Side      `json:"side"`
	Symbol     string    `json:"symbol"`
	OpenTime   time.Time `json:"open_time"`
	CloseTime  time.Time `json:"close_time"`
	Qty        float64   `json:"qty"`
	OpenPrice  float64   `json:"open_price"`
	ClosePrice float64   `json:"close_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Fee        float64   `json:"fee"`
	Taxes      float64   `json:"taxes"`
	Swap       float64   `json:"swap"`
	Profit     float64   `json:"profit"`
	Comment    string    `json:"comment"`

	// Filled by Derive.
	OpenValue     float64  `json:"open_value"`
	BalanceBefore float64  `json:"balance_before"`
	BalanceAfter  float64  `json:"balance_after"`
	CashFlow      CashFlow `json:"cash_flow"`
}

// Number is a float aggregate that may be undefined, e.g. a mean over an
// empty set or a ratio with a zero denominator.
type Number struct {
	Float64 float64
	Valid   bool
}

func Defined(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Number{Float64: v, Valid: true}
}

// Ratio returns num/den, undefined when den is zero.
func Ratio(num, den float64) Number {
	if den == 0 {
		return Number{}
	}
	return Defined(num / den)
}

func (n Number) Or(fallback float64) float64 {
	if !n.Valid {
		return fallback
	}
	return n.Float64
}

func (n Number) String() string {
	if !n.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%g", n.Float64)
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n *Number) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Number{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Defined(v)
	return nil
}

// NullDuration is a duration aggregate that may be undefined.
type NullDuration struct {
	Duration time.Duration
	Valid    bool
}

func (d NullDuration) String() string {
	if !d.Valid {
		return "n/a"
	}
	return d.Duration.Round(time.Minute).String()
}

func (d NullDuration) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.Duration.String())
}
