package web

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/camuig/rf-history/internal/analyzer"
	"github.com/camuig/rf-history/internal/report"
	"github.com/camuig/rf-history/internal/storage"
)

const (
	requestTimeout   = 20 * time.Second
	defaultGridLimit = 20
)

type AccountRow struct {
	FTPUserID     string
	AccountNumber string
	Name          string
	LastCheckAt   *time.Time
	Summary       *analyzer.Summary
	Error         string
}

type DashboardData struct {
	Accounts    []AccountRow
	GeneratedAt time.Time
}

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"money": func(n analyzer.Number) string {
		if !n.Valid {
			return "n/a"
		}
		return strconv.FormatFloat(n.Float64, 'f', 2, 64)
	},
	"pct": func(n analyzer.Number) string {
		if !n.Valid {
			return "n/a"
		}
		return strconv.FormatFloat(n.Float64*100, 'f', 1, 64) + "%"
	},
}).Parse(dashboardHTML))

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	data := DashboardData{GeneratedAt: time.Now()}

	accounts, err := s.repo.ActiveAccounts()
	if err != nil {
		s.logger.Error("list accounts for dashboard", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	for _, acc := range accounts {
		row := AccountRow{
			FTPUserID:     acc.FTPUserID,
			AccountNumber: acc.AccountNumber,
			Name:          acc.Name,
			LastCheckAt:   acc.LastCheckAt,
		}
		res, err := s.reports.Build(ctx, acc.FTPUserID, analyzer.WindowAll)
		switch {
		case errors.Is(err, report.ErrNoData):
			row.Error = "нет данных"
		case err != nil:
			s.logger.Error("dashboard report", "ftp_user", acc.FTPUserID, "error", err)
			row.Error = "ошибка анализа"
		default:
			row.Summary = &res.Summary
		}
		data.Accounts = append(data.Accounts, row)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		s.logger.Error("execute template", "error", err)
	}
}

type summaryResponse struct {
	FTPUserID string                           `json:"ftp_user_id"`
	Window    analyzer.Window                  `json:"window"`
	Summary   analyzer.Summary                 `json:"summary"`
	Warnings  []analyzer.DegenerateGridWarning `json:"warnings,omitempty"`
}

type gridsResponse struct {
	FTPUserID string          `json:"ftp_user_id"`
	Window    analyzer.Window `json:"window"`
	Total     int             `json:"total"`
	Grids     []analyzer.Grid `json:"grids"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	res, ok := s.build(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, summaryResponse{
		FTPUserID: res.FTPUserID,
		Window:    res.Window,
		Summary:   res.Summary,
		Warnings:  res.Warnings,
	})
}

// handleGrids returns the window's grids ordered by drawdown ratio, worst
// first. ?limit=0 returns all of them.
func (s *Server) handleGrids(w http.ResponseWriter, r *http.Request) {
	limit := defaultGridLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	res, ok := s.build(w, r)
	if !ok {
		return
	}
	grids := report.TopGrids(res.Grids, limit)
	if grids == nil {
		grids = []analyzer.Grid{}
	}
	s.writeJSON(w, http.StatusOK, gridsResponse{
		FTPUserID: res.FTPUserID,
		Window:    res.Window,
		Total:     len(res.Grids),
		Grids:     grids,
	})
}

func (s *Server) build(w http.ResponseWriter, r *http.Request) (*report.Result, bool) {
	kind, err := analyzer.ParseWindowKind(r.URL.Query().Get("window"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	ftp := r.PathValue("ftp")
	if _, err := s.repo.AccountByFTPUser(ftp); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "account not found")
			return nil, false
		}
		s.logger.Error("find account", "ftp_user", ftp, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.reports.Build(ctx, ftp, kind)
	switch {
	case errors.Is(err, report.ErrNoData):
		s.writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	case err != nil:
		s.logger.Error("build report", "ftp_user", ftp, "window", kind, "error", err)
		s.writeError(w, http.StatusInternalServerError, "analysis failed")
		return nil, false
	}
	return res, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<title>RF History</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: right; }
th:first-child, td:first-child { text-align: left; }
.muted { color: #888; }
</style>
</head>
<body>
<h1>Сеточные счета</h1>
<table>
<tr>
<th>Счёт</th><th>Период</th><th>Баланс</th><th>Прибыль</th><th>ROI</th>
<th>Сеток</th><th>Макс. просадка</th><th>Макс. просадка, %</th><th>Симуляция, %</th><th>Проверен</th>
</tr>
{{range .Accounts}}
<tr>
<td>{{.AccountNumber}} {{if .Name}}<span class="muted">{{.Name}}</span>{{end}}<br>
<a href="/api/accounts/{{.FTPUserID}}/summary">summary</a> · <a href="/api/accounts/{{.FTPUserID}}/grids">grids</a></td>
{{with .Summary}}
<td>{{.Start.Format "2006-01-02"}} - {{.Finish.Format "2006-01-02"}}</td>
<td>{{money .Balance}}</td>
<td>{{printf "%.2f" .Profit}}</td>
<td>{{pct .ROI}}</td>
<td>{{.GridCount}}</td>
<td>{{money .MaxDrawdown}}</td>
<td>{{pct .MaxDrawdownRatio}}</td>
<td>{{pct .MaxSimulatedDrawdownRatio}}</td>
{{else}}
<td colspan="8" class="muted">{{.Error}}</td>
{{end}}
<td>{{if .LastCheckAt}}{{.LastCheckAt.Format "2006-01-02 15:04"}}{{else}}-{{end}}</td>
</tr>
{{else}}
<tr><td colspan="10" class="muted">Нет активных счетов</td></tr>
{{end}}
</table>
<p class="muted">Обновлено {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</p>
</body>
</html>
`
