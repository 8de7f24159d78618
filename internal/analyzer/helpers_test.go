package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(t *testing.T, s string) time.Time {
	t.Helper()
	ts, ok := ParseTime(s, time.UTC)
	require.True(t, ok, "bad time %q", s)
	return ts
}

func trade(t *testing.T, id int64, side Side, open string, qty, price, profit float64, comment string) Order {
	t.Helper()
	ts := at(t, open)
	return Order{
		ID:        id,
		Side:      side,
		Symbol:    "XAUUSD",
		OpenTime:  ts,
		CloseTime: ts.Add(2 * time.Hour),
		Qty:       qty,
		OpenPrice: price,
		Profit:    profit,
		Comment:   comment,
	}
}

func balanceRow(t *testing.T, id int64, open string, amount float64, comment string) Order {
	t.Helper()
	ts := at(t, open)
	return Order{ID: id, Side: SideBalance, OpenTime: ts, CloseTime: ts, Profit: amount, Comment: comment}
}

func derive(t *testing.T, orders ...Order) []Order {
	t.Helper()
	res, err := Derive(orders, &PatternClassifier{Deposit: DefaultDepositPattern})
	require.NoError(t, err)
	return res
}

func run(t *testing.T, p Params, orders []Order) *Report {
	t.Helper()
	engine, err := NewEngine(p)
	require.NoError(t, err)
	report, err := engine.Run(orders)
	require.NoError(t, err)
	return report
}
