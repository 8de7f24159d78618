package processor

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/rf-history/internal/analyzer"
	"github.com/camuig/rf-history/internal/config"
	"github.com/camuig/rf-history/internal/logger"
	"github.com/camuig/rf-history/internal/metrics"
	"github.com/camuig/rf-history/internal/storage"
)

const statementHTML = `<html><body><b>RoboMarkets Ltd</b>
<table>
<tr><td><b>Account: 12345</b></td><td><b>Name: Test</b></td></tr>
<tr><td>Ticket</td><td>Open Time</td><td>Type</td><td>Size</td><td>Item</td><td>Price</td><td>S / L</td><td>T / P</td><td>Close Time</td><td>Price</td><td>Commission</td><td>Taxes</td><td>Swap</td><td>Profit</td></tr>
<tr><td>1</td><td>2024.03.04 08:00:00</td><td>balance</td><td colspan=10>Deposit</td><td>100 000.00</td></tr>
<tr><td>2</td><td>2024.03.04 10:00:00</td><td>buy</td><td>0.10</td><td>xauusd</td><td>2000.00</td><td>0</td><td>0</td><td>2024.03.05 12:00:00</td><td>2004.00</td><td>0</td><td>0</td><td>0</td><td>1 100.00</td></tr>
<tr><td>3</td><td>2024.03.04 11:00:00</td><td>buy</td><td>0.17</td><td>xauusd</td><td>1998.00</td><td>0</td><td>0</td><td>2024.03.05 12:00:00</td><td>2004.00</td><td>0</td><td>0</td><td>0</td><td>1 020.00</td></tr>
<tr><td></td></tr>
</table></body></html>`

type fixture struct {
	proc    *Processor
	repo    *storage.Repository
	metrics *metrics.Metrics
	dir     string
	src     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	db, err := storage.NewDatabase(filepath.Join(root, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := storage.NewRepository(db)

	cfg := &config.Config{
		Statements: config.StatementsConfig{
			ProcessingDir: filepath.Join(root, "processing"),
			Timezone:      "UTC",
		},
		Grid: config.GridConfig{Markers: analyzer.DefaultMarkers()},
	}
	m := metrics.New()
	proc, err := NewProcessor(repo, m, cfg, logger.Discard())
	require.NoError(t, err)
	proc.now = func() time.Time { return time.Date(2024, 3, 6, 7, 8, 9, 0, time.UTC) }

	src := filepath.Join(root, "ftp", "ftp1", "statement.htm")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte(statementHTML), 0o644))

	return &fixture{proc: proc, repo: repo, metrics: m, dir: cfg.Statements.ProcessingDir, src: src}
}

func TestProcessRejectsForeignAccount(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.SaveAccount(&storage.Account{FTPUserID: "ftp1", AccountNumber: "999", Active: true}))

	_, err := f.proc.Process(context.Background(), "ftp1", f.src)
	assert.ErrorIs(t, err, ErrAccountNotAssigned)

	logs, err := f.repo.RecentStatementLogs("ftp1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "12345", logs[0].AccountNumber)
	assert.NotEmpty(t, logs[0].Error)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Statements.WithLabelValues(metrics.StatusRejected)))
}

func TestProcessStoresNewOrders(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.SaveAccount(&storage.Account{FTPUserID: "ftp1", AccountNumber: "12345", Active: true}))

	res, err := f.proc.Process(context.Background(), "ftp1", f.src)
	require.NoError(t, err)
	assert.Equal(t, "12345", res.Header.Account)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.New)

	name := filepath.Base(res.File)
	assert.Regexp(t, regexp.MustCompile(`^20240306T070809_[0-9a-f-]{36}_statement\.htm$`), name)
	assert.Equal(t, filepath.Join(f.dir, "ftp1"), filepath.Dir(res.File))

	again, err := f.proc.Process(context.Background(), "ftp1", f.src)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Total)
	assert.Zero(t, again.New)
	assert.NotEqual(t, res.File, again.File)

	orders, err := f.repo.LoadOrders("ftp1")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, "Start BUY", orders[1].Comment)
	assert.Equal(t, "BUY 2", orders[2].Comment)
	assert.InDelta(t, 11, orders[1].Profit, 1e-9)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Statements.WithLabelValues(metrics.StatusOK)))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.OrdersSaved))
}

func TestProcessMissingFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.proc.Process(context.Background(), "ftp1", filepath.Join(f.dir, "nope.htm"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.proc.Process(ctx, "ftp1", f.src)
	assert.ErrorIs(t, err, context.Canceled)
}
