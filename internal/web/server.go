package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/camuig/rf-history/internal/config"
	"github.com/camuig/rf-history/internal/logger"
	"github.com/camuig/rf-history/internal/metrics"
	"github.com/camuig/rf-history/internal/report"
	"github.com/camuig/rf-history/internal/storage"
)

type Server struct {
	httpServer *http.Server
	repo       *storage.Repository
	reports    *report.Service
	config     *config.Config
	logger     *logger.Logger
}

func NewServer(repo *storage.Repository, reports *report.Service, m *metrics.Metrics, cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		repo:    repo,
		reports: reports,
		config:  cfg,
		logger:  log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /api/accounts/{ftp}/summary", s.handleSummary)
	mux.HandleFunc("GET /api/accounts/{ftp}/grids", s.handleGrids)
	mux.Handle("GET /metrics", m.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Handler exposes the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
