package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/rf-history/internal/analyzer"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewRepository(db)
}

func testOrder(id int64, open time.Time, side analyzer.Side, profit float64, comment string) analyzer.Order {
	return analyzer.Order{
		ID:        id,
		Side:      side,
		Symbol:    "XAUUSD",
		OpenTime:  open,
		CloseTime: open.Add(time.Hour),
		Qty:       0.1,
		OpenPrice: 2000,
		Profit:    profit,
		Comment:   comment,
	}
}

func TestSaveOrdersSkipsKnownTickets(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	first := []analyzer.Order{
		testOrder(1, base, analyzer.SideBalance, 1000, "Deposit"),
		testOrder(2, base.Add(time.Hour), analyzer.SideBuy, 5, "Start BUY"),
	}
	added, err := repo.SaveOrders("ftp1", "a.htm", first)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	second := append(first, testOrder(3, base.Add(2*time.Hour), analyzer.SideBuy, 6, "BUY 2"))
	second[1].Profit = 99
	added, err = repo.SaveOrders("ftp1", "b.htm", second)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = repo.SaveOrders("ftp2", "c.htm", first)
	require.NoError(t, err)
	assert.Equal(t, 2, added, "tickets are unique per account only")

	orders, err := repo.LoadOrders("ftp1")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, int64(1), orders[0].ID)
	assert.Equal(t, analyzer.SideBalance, orders[0].Side)
	assert.InDelta(t, 5, orders[1].Profit, 1e-9, "first stored copy wins")
	assert.Equal(t, "BUY 2", orders[2].Comment)
	assert.True(t, orders[2].OpenTime.Equal(base.Add(2*time.Hour)))

	added, err = repo.SaveOrders("ftp1", "d.htm", nil)
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestOrderSpan(t *testing.T) {
	repo := newTestRepository(t)

	span, err := repo.OrderSpan("nobody")
	require.NoError(t, err)
	assert.Zero(t, span.Count)

	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	_, err = repo.SaveOrders("ftp1", "a.htm", []analyzer.Order{
		testOrder(5, base.Add(48*time.Hour), analyzer.SideSell, 1, "Start SELL"),
		testOrder(4, base, analyzer.SideBuy, 1, "Start BUY"),
	})
	require.NoError(t, err)

	span, err = repo.OrderSpan("ftp1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), span.Count)
	assert.True(t, span.First.Equal(base))
	assert.True(t, span.Last.Equal(base.Add(48*time.Hour)))
}

func TestAccounts(t *testing.T) {
	repo := newTestRepository(t)

	a := &Account{TelegramUserID: 42, FTPUserID: "ftp1", AccountNumber: "12345", Active: true}
	b := &Account{TelegramUserID: 43, FTPUserID: "ftp2", AccountNumber: "777", Active: true}
	off := &Account{TelegramUserID: 44, FTPUserID: "ftp3", AccountNumber: "888"}
	for _, acc := range []*Account{a, b, off} {
		require.NoError(t, repo.SaveAccount(acc))
	}

	got, err := repo.FindAccount("ftp1", "12345")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = repo.FindAccount("ftp1", "777")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = repo.AccountByTelegramUser(43)
	require.NoError(t, err)
	assert.Equal(t, "ftp2", got.FTPUserID)

	_, err = repo.AccountByTelegramUser(44)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = repo.AccountByFTPUser("ftp3")
	require.NoError(t, err)
	assert.False(t, got.Active)

	require.NoError(t, repo.TouchAccount("ftp1", time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)))
	assert.ErrorIs(t, repo.TouchAccount("missing", time.Now()), ErrNotFound)

	active, err := repo.ActiveAccounts()
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "ftp2", active[0].FTPUserID, "never checked accounts come first")
	assert.Equal(t, "ftp1", active[1].FTPUserID)
	require.NotNil(t, active[1].LastCheckAt)
}

func TestStatementLogs(t *testing.T) {
	repo := newTestRepository(t)

	for i, name := range []string{"a.htm", "b.htm", "c.htm"} {
		require.NoError(t, repo.SaveStatementLog(&StatementLog{FTPUserID: "ftp1", FileName: name, RowsNew: i}))
	}
	require.NoError(t, repo.SaveStatementLog(&StatementLog{FTPUserID: "ftp2", FileName: "x.htm"}))

	logs, err := repo.RecentStatementLogs("ftp1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "c.htm", logs[0].FileName)
	assert.Equal(t, "b.htm", logs[1].FileName)
}
