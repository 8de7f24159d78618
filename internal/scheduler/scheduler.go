package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/camuig/rf-history/internal/config"
	"github.com/camuig/rf-history/internal/logger"
	"github.com/camuig/rf-history/internal/metrics"
	"github.com/camuig/rf-history/internal/processor"
	"github.com/camuig/rf-history/internal/storage"
)

// StatementProcessor imports one statement file for an FTP user.
type StatementProcessor interface {
	Process(ctx context.Context, ftpUserID, src string) (*processor.Result, error)
}

// Notifier tells an account owner how their statement went.
type Notifier interface {
	NotifyStatement(chatID int64, res *processor.Result, err error)
}

// Scanner polls the FTP upload folders of active accounts and imports
// statements that changed since the account was last checked.
type Scanner struct {
	processor StatementProcessor
	repo      *storage.Repository
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *logger.Logger
	ftpDir    string
	filename  string
	interval  time.Duration
	now       func() time.Time
}

func NewScanner(
	proc StatementProcessor,
	repo *storage.Repository,
	notifier Notifier,
	m *metrics.Metrics,
	cfg *config.Config,
	log *logger.Logger,
) *Scanner {
	return &Scanner{
		processor: proc,
		repo:      repo,
		notifier:  notifier,
		metrics:   m,
		logger:    log,
		ftpDir:    cfg.Statements.FTPDir,
		filename:  cfg.Statements.Filename,
		interval:  cfg.ScanInterval(),
		now:       time.Now,
	}
}

func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scanner started", "interval", s.interval.String(), "ftp_dir", s.ftpDir)

	// Run immediately on start
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanner stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scanner) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in scan cycle", "panic", fmt.Sprint(r))
		}
	}()

	if _, err := s.Scan(ctx); err != nil {
		s.logger.Error("scan cycle", "error", err)
	}
}

// Scan checks every active account once, least recently checked first, and
// returns how many statements were imported.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	accounts, err := s.repo.ActiveAccounts()
	if err != nil {
		return 0, fmt.Errorf("load accounts: %w", err)
	}
	s.logger.Debug("scan cycle", "accounts", len(accounts))

	imported := 0
	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		if s.scanAccount(ctx, acc) {
			imported++
		}
	}
	s.metrics.ScanCycles.Inc()
	return imported, nil
}

func (s *Scanner) scanAccount(ctx context.Context, acc storage.Account) bool {
	src := filepath.Join(s.ftpDir, acc.FTPUserID, s.filename)

	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("no statement uploaded", "file", src)
		return false
	}
	if err != nil {
		s.logger.Error("stat statement", "file", src, "error", err)
		return false
	}
	if acc.LastCheckAt != nil && !info.ModTime().After(*acc.LastCheckAt) {
		s.metrics.Statements.WithLabelValues(metrics.StatusUnmodified).Inc()
		s.logger.Debug("statement not modified", "file", src, "modified", info.ModTime())
		return false
	}

	// Mark first so a broken file is not retried every cycle.
	if err := s.repo.TouchAccount(acc.FTPUserID, s.now()); err != nil {
		s.logger.Error("touch account", "ftp_user", acc.FTPUserID, "error", err)
		return false
	}

	res, err := s.processor.Process(ctx, acc.FTPUserID, src)
	if err != nil {
		s.logger.Error("process statement", "ftp_user", acc.FTPUserID, "file", src, "error", err)
	}
	if acc.TelegramUserID != 0 {
		s.notifier.NotifyStatement(acc.TelegramUserID, res, err)
	}
	return err == nil
}
