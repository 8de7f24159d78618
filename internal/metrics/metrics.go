package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rf_history"

// Statement processing outcomes.
const (
	StatusOK         = "ok"
	StatusRejected   = "rejected"
	StatusFailed     = "failed"
	StatusUnmodified = "unmodified"
)

type Metrics struct {
	registry *prometheus.Registry

	Statements       *prometheus.CounterVec
	OrdersSaved      prometheus.Counter
	AnalysisRuns     *prometheus.CounterVec
	DegenerateGrids  prometheus.Counter
	AnalysisDuration prometheus.Histogram
	ScanCycles       prometheus.Counter
	BotCommands      *prometheus.CounterVec
}

// New registers the collectors on a private registry so several instances
// can coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Statements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statements_processed_total",
			Help:      "Statement files processed, by outcome.",
		}, []string{"status"}),
		OrdersSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_saved_total",
			Help:      "New order rows stored from statements.",
		}),
		AnalysisRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_runs_total",
			Help:      "Report builds, by window.",
		}, []string{"window"}),
		DegenerateGrids: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degenerate_grids_total",
			Help:      "Grid orders seen before any start marker of their side.",
		}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time to load, analyze and summarize one account.",
			Buckets:   prometheus.DefBuckets,
		}),
		ScanCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_cycles_total",
			Help:      "Completed FTP scan cycles.",
		}),
		BotCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_commands_total",
			Help:      "Telegram commands handled, by command.",
		}, []string{"command"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
