// Package report turns stored order history into window summaries.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/camuig/rf-history/internal/analyzer"
	"github.com/camuig/rf-history/internal/logger"
	"github.com/camuig/rf-history/internal/metrics"
	"github.com/camuig/rf-history/internal/storage"
)

var ErrNoData = errors.New("no orders stored for account")

// Result is one account's analysis for one window.
type Result struct {
	FTPUserID string                           `json:"ftp_user_id"`
	Window    analyzer.Window                  `json:"window"`
	Summary   analyzer.Summary                 `json:"summary"`
	Grids     []analyzer.Grid                  `json:"grids"`
	Report    *analyzer.Report                 `json:"-"`
	Warnings  []analyzer.DegenerateGridWarning `json:"warnings,omitempty"`
}

// Analyze runs the engine over normalized orders and summarizes the window
// of kind anchored at the latest order.
func Analyze(engine *analyzer.Engine, orders []analyzer.Order, kind analyzer.WindowKind) (*Result, error) {
	rep, err := engine.Run(orders)
	if err != nil {
		return nil, err
	}
	w := analyzer.ResolveWindow(kind, rep.LastOpen())
	return &Result{
		Window:   w,
		Summary:  analyzer.Summarize(rep, w),
		Grids:    rep.WindowGrids(w),
		Report:   rep,
		Warnings: rep.Warnings,
	}, nil
}

// TopGrids returns up to n grids with the highest drawdown ratio. Grids with
// an undefined ratio sort last.
func TopGrids(grids []analyzer.Grid, n int) []analyzer.Grid {
	res := append([]analyzer.Grid(nil), grids...)
	sort.SliceStable(res, func(i, j int) bool {
		a, b := res[i].DrawdownRatio, res[j].DrawdownRatio
		if a.Valid != b.Valid {
			return a.Valid
		}
		if a.Float64 != b.Float64 {
			return a.Float64 > b.Float64
		}
		return res[i].ID < res[j].ID
	})
	if n > 0 && len(res) > n {
		res = res[:n]
	}
	return res
}

type Service struct {
	repo       *storage.Repository
	engine     *analyzer.Engine
	classifier analyzer.CashFlowClassifier
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

func NewService(
	repo *storage.Repository,
	engine *analyzer.Engine,
	classifier analyzer.CashFlowClassifier,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:       repo,
		engine:     engine,
		classifier: classifier,
		metrics:    m,
		logger:     log,
	}
}

// Build loads an account's history and analyzes the requested window.
func (s *Service) Build(ctx context.Context, ftpUserID string, kind analyzer.WindowKind) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	stored, err := s.repo.LoadOrders(ftpUserID)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	if len(stored) == 0 {
		return nil, ErrNoData
	}
	orders, err := analyzer.Derive(stored, s.classifier)
	if err != nil {
		return nil, fmt.Errorf("derive balances: %w", err)
	}

	res, err := Analyze(s.engine, orders, kind)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", ftpUserID, err)
	}
	res.FTPUserID = ftpUserID

	for _, w := range res.Warnings {
		s.logger.Warn("degenerate grid", "ftp_user", ftpUserID, "warning", w.String())
	}
	s.metrics.DegenerateGrids.Add(float64(len(res.Warnings)))
	s.metrics.AnalysisRuns.WithLabelValues(string(res.Window.Kind)).Inc()
	s.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug("report built",
		"ftp_user", ftpUserID, "window", res.Window.Kind,
		"orders", res.Summary.OrderCount, "grids", res.Summary.GridCount)
	return res, nil
}
