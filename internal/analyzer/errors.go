package analyzer

import (
	"errors"
	"fmt"
	"strings"
)

var ErrStepOutOfRange = errors.New("multiplier schedule: step out of range")

// InvalidValue describes a cell that could not be parsed.
type InvalidValue struct {
	Field   Field
	Row     int
	OrderID string
	Value   string
}

// SchemaError reports missing canonical fields or unparsable values. It aborts
// the whole batch.
type SchemaError struct {
	Missing []Field
	Invalid []InvalidValue
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		names := make([]string, len(e.Missing))
		for i, f := range e.Missing {
			names[i] = string(f)
		}
		parts = append(parts, fmt.Sprintf("missing fields [%s]", strings.Join(names, ", ")))
	}
	if len(e.Invalid) > 0 {
		items := make([]string, 0, len(e.Invalid))
		for _, iv := range e.Invalid {
			items = append(items, fmt.Sprintf("%s=%q (row %d, order %s)", iv.Field, iv.Value, iv.Row, iv.OrderID))
		}
		parts = append(parts, fmt.Sprintf("invalid values [%s]", strings.Join(items, "; ")))
	}
	return "schema error: " + strings.Join(parts, ", ")
}

func (e *SchemaError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

// ReconciliationError means a row's cash-flow components do not add up to its
// profit amount.
type ReconciliationError struct {
	OrderID  int64
	Amount   float64
	CashFlow CashFlow
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation error: order %d amount %.6f != components %.6f (%+v)",
		e.OrderID, e.Amount, e.CashFlow.Total(), e.CashFlow)
}

// DegenerateGridWarning marks a trading order seen before any start marker of
// its side. The order forms its own grid.
type DegenerateGridWarning struct {
	OrderID int64 `json:"order_id"`
	Side    Side  `json:"side"`
}

func (w DegenerateGridWarning) String() string {
	return fmt.Sprintf("order %d (%s) precedes the first start marker", w.OrderID, w.Side)
}
