package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/camuig/rf-history/internal/analyzer"
	"github.com/camuig/rf-history/internal/config"
	"github.com/camuig/rf-history/internal/logger"
	"github.com/camuig/rf-history/internal/metrics"
	"github.com/camuig/rf-history/internal/statement"
	"github.com/camuig/rf-history/internal/storage"
)

var ErrAccountNotAssigned = errors.New("statement account is not assigned to user")

// Result describes one processed statement.
type Result struct {
	Header statement.Header
	// File is the processing copy the statement was read from.
	File  string
	Total int
	New   int
}

type Processor struct {
	repo       *storage.Repository
	metrics    *metrics.Metrics
	logger     *logger.Logger
	dir        string
	location   *time.Location
	markers    analyzer.Markers
	classifier analyzer.CashFlowClassifier
	now        func() time.Time
}

func NewProcessor(
	repo *storage.Repository,
	m *metrics.Metrics,
	cfg *config.Config,
	log *logger.Logger,
) (*Processor, error) {
	classifier, err := analyzer.NewPatternClassifier(cfg.Statements.DepositPattern)
	if err != nil {
		return nil, fmt.Errorf("deposit pattern: %w", err)
	}
	return &Processor{
		repo:       repo,
		metrics:    m,
		logger:     log,
		dir:        cfg.Statements.ProcessingDir,
		location:   cfg.Location(),
		markers:    cfg.Grid.Markers,
		classifier: classifier,
		now:        time.Now,
	}, nil
}

// Process copies src into the processing directory, checks that the
// statement belongs to the FTP user's account and stores its new orders.
// Every attempt that gets as far as a copy is recorded in the statement log.
func (p *Processor) Process(ctx context.Context, ftpUserID, src string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst, err := p.copyToProcessing(ftpUserID, src)
	if err != nil {
		p.metrics.Statements.WithLabelValues(metrics.StatusFailed).Inc()
		return nil, fmt.Errorf("copy statement: %w", err)
	}
	p.logger.Debug("statement copied", "src", src, "dst", dst)

	res, err := p.process(ftpUserID, dst)
	entry := &storage.StatementLog{
		FTPUserID:     ftpUserID,
		AccountNumber: res.Header.Account,
		Template:      string(res.Header.Template),
		FileName:      filepath.Base(dst),
		RowsTotal:     res.Total,
		RowsNew:       res.New,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if logErr := p.repo.SaveStatementLog(entry); logErr != nil {
		p.logger.Error("save statement log", "ftp_user", ftpUserID, "error", logErr)
	}

	switch {
	case errors.Is(err, ErrAccountNotAssigned), errors.Is(err, statement.ErrUnknownTemplate):
		p.metrics.Statements.WithLabelValues(metrics.StatusRejected).Inc()
		p.logger.Warn("statement rejected", "ftp_user", ftpUserID, "file", dst, "error", err)
		return nil, err
	case err != nil:
		p.metrics.Statements.WithLabelValues(metrics.StatusFailed).Inc()
		return nil, err
	}

	p.metrics.Statements.WithLabelValues(metrics.StatusOK).Inc()
	p.metrics.OrdersSaved.Add(float64(res.New))
	p.logger.Info("statement processed",
		"ftp_user", ftpUserID, "account", res.Header.Account, "template", res.Header.Template,
		"rows", res.Total, "new", res.New)
	return &res, nil
}

func (p *Processor) process(ftpUserID, file string) (Result, error) {
	res := Result{File: file}

	st, err := statement.ReadFile(file)
	if err != nil {
		return res, err
	}
	res.Header = st.Header

	if _, err := p.repo.FindAccount(ftpUserID, st.Header.Account); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return res, fmt.Errorf("%w: account %s, ftp user %s", ErrAccountNotAssigned, st.Header.Account, ftpUserID)
		}
		return res, err
	}

	orders, err := st.Orders(analyzer.NormalizeOptions{
		Classifier: p.classifier,
		Location:   p.location,
	}, p.markers)
	if err != nil {
		return res, err
	}
	res.Total = len(orders)

	res.New, err = p.repo.SaveOrders(ftpUserID, filepath.Base(file), orders)
	return res, err
}

// copyToProcessing keeps every received statement as
// <dir>/<ftp user>/<timestamp>_<uuid>_<name>.
func (p *Processor) copyToProcessing(ftpUserID, src string) (string, error) {
	dir := filepath.Join(p.dir, ftpUserID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s_%s", p.now().Format("20060102T150405"), uuid.NewString(), filepath.Base(src))
	dst := filepath.Join(dir, name)

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, nil
}
