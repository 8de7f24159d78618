package analyzer

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const reconcileTolerance = 1e-9

// coreFields must be present regardless of the template mapping.
var coreFields = []Field{
	FieldOrderID, FieldOpenTime, FieldSide, FieldQty, FieldOpenPrice,
	FieldCloseTime, FieldProfit, FieldComment,
}

var timeLayouts = []string{
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

type NormalizeOptions struct {
	// ProfitScale converts profit to account currency, e.g. 0.01 for cent
	// accounts. Zero means 1.
	ProfitScale float64
	Classifier  CashFlowClassifier
	Location    *time.Location
}

// Normalize renames, validates and types a raw statement table, then derives
// cash flow and running balance. Orders are returned by (open time, ID).
func Normalize(table RawTable, mapping ColumnMapping, opts NormalizeOptions) ([]Order, error) {
	orders, err := ParseTable(table, mapping, opts)
	if err != nil {
		return nil, err
	}
	return Derive(orders, opts.CashFlowClassifier())
}

// CashFlowClassifier returns the configured classifier or the default
// deposit pattern.
func (o NormalizeOptions) CashFlowClassifier() CashFlowClassifier {
	if o.Classifier == nil {
		return &PatternClassifier{Deposit: DefaultDepositPattern}
	}
	return o.Classifier
}

// ParseTable renames, validates and types a raw statement table in row order.
// Derived fields are left zero.
func ParseTable(table RawTable, mapping ColumnMapping, opts NormalizeOptions) ([]Order, error) {
	index := make(map[Field]int, len(table.Columns))
	for i, col := range table.Columns {
		name := strings.TrimSpace(col)
		f, ok := mapping[name]
		if !ok {
			f = Field(name)
		}
		if _, dup := index[f]; !dup {
			index[f] = i
		}
	}

	required := append([]Field{}, coreFields...)
	for _, f := range mapping {
		required = append(required, f)
	}
	schemaErr := &SchemaError{}
	seen := make(map[Field]bool)
	for _, f := range required {
		if seen[f] {
			continue
		}
		seen[f] = true
		if _, ok := index[f]; !ok {
			schemaErr.Missing = append(schemaErr.Missing, f)
		}
	}
	if len(schemaErr.Missing) > 0 {
		sort.Slice(schemaErr.Missing, func(i, j int) bool { return schemaErr.Missing[i] < schemaErr.Missing[j] })
		return nil, schemaErr
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	scale := opts.ProfitScale
	if scale == 0 {
		scale = 1
	}

	orders := make([]Order, 0, len(table.Rows))
	for r, row := range table.Rows {
		p := rowParser{row: row, index: index, rowNum: r + 1, err: schemaErr}
		p.orderID = p.str(FieldOrderID)

		o := Order{
			ID:         p.id(FieldOrderID),
			Side:       Side(strings.ToLower(p.str(FieldSide))),
			Symbol:     p.str(FieldSymbol),
			OpenTime:   p.timestamp(FieldOpenTime, loc),
			CloseTime:  p.timestamp(FieldCloseTime, loc),
			Qty:        p.amount(FieldQty),
			OpenPrice:  p.amount(FieldOpenPrice),
			ClosePrice: p.amount(FieldClosePrice),
			StopLoss:   p.amount(FieldStopLoss),
			TakeProfit: p.amount(FieldTakeProfit),
			Fee:        p.amount(FieldFee),
			Taxes:      p.amount(FieldTaxes),
			Swap:       p.amount(FieldSwap),
			Profit:     p.amount(FieldProfit) * scale,
			Comment:    p.str(FieldComment),
		}
		orders = append(orders, o)
	}
	if !schemaErr.empty() {
		return nil, schemaErr
	}
	return orders, nil
}

// Derive recomputes notional value, cash-flow components and running balance
// on a copy of orders. Balance accumulates in ascending ID order.
func Derive(orders []Order, classifier CashFlowClassifier) ([]Order, error) {
	res := make([]Order, len(orders))
	copy(res, orders)

	sort.SliceStable(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	var balance float64
	for i := range res {
		o := &res[i]
		o.OpenValue = o.OpenPrice * o.Qty

		cf := classifier.Classify(*o)
		if math.Abs(cf.Total()-o.Profit) > reconcileTolerance {
			return nil, &ReconciliationError{OrderID: o.ID, Amount: o.Profit, CashFlow: cf}
		}
		o.CashFlow = cf

		o.BalanceBefore = balance
		balance += o.Profit
		o.BalanceAfter = balance
	}

	SortChronological(res)
	return res, nil
}

// SortChronological orders by open time, ties broken by ID.
func SortChronological(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].OpenTime.Equal(orders[j].OpenTime) {
			return orders[i].OpenTime.Before(orders[j].OpenTime)
		}
		return orders[i].ID < orders[j].ID
	})
}

type rowParser struct {
	row     []string
	index   map[Field]int
	rowNum  int
	orderID string
	err     *SchemaError
}

func (p *rowParser) str(f Field) string {
	i, ok := p.index[f]
	if !ok || i >= len(p.row) {
		return ""
	}
	return strings.TrimSpace(p.row[i])
}

func (p *rowParser) invalid(f Field, v string) {
	p.err.Invalid = append(p.err.Invalid, InvalidValue{Field: f, Row: p.rowNum, OrderID: p.orderID, Value: v})
}

func (p *rowParser) id(f Field) int64 {
	v := p.str(f)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.invalid(f, v)
	}
	return n
}

func (p *rowParser) amount(f Field) float64 {
	v := p.str(f)
	n, ok := ParseAmount(v)
	if !ok {
		p.invalid(f, v)
	}
	return n
}

func (p *rowParser) timestamp(f Field, loc *time.Location) time.Time {
	v := p.str(f)
	t, ok := ParseTime(v, loc)
	if !ok {
		p.invalid(f, v)
	}
	return t
}

// ParseAmount parses a statement number. Blank cells are zero; space
// thousand separators are ignored.
func ParseAmount(v string) (float64, bool) {
	v = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' || r == '\u202f' {
			return -1
		}
		return r
	}, v)
	if v == "" || v == "-" {
		return 0, true
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func ParseTime(v string, loc *time.Location) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
