package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camuig/rf-history/internal/ai"
	"github.com/camuig/rf-history/internal/analyzer"
	"github.com/camuig/rf-history/internal/processor"
	"github.com/camuig/rf-history/internal/statement"
	"github.com/camuig/rf-history/internal/storage"
)

const (
	dateLayout = "2006-01-02"
	na         = "н/д"
)

func money(n analyzer.Number) string {
	if !n.Valid {
		return na
	}
	return fmt.Sprintf("$%.2f", n.Float64)
}

func loss(n analyzer.Number) string {
	if !n.Valid {
		return na
	}
	return fmt.Sprintf("-$%.2f", n.Float64)
}

func percent(n analyzer.Number) string {
	if !n.Valid {
		return na
	}
	return fmt.Sprintf("%.1f%%", n.Float64*100)
}

func lot(n analyzer.Number) string {
	if !n.Valid {
		return na
	}
	return fmt.Sprintf("%.4f", n.Float64)
}

func duration(d analyzer.NullDuration) string {
	if !d.Valid {
		return na
	}
	d.Duration = d.Duration.Round(time.Minute)
	days := d.Duration / (24 * time.Hour)
	rest := d.Duration % (24 * time.Hour)
	if days > 0 {
		return fmt.Sprintf("%dд %s", days, clock(rest))
	}
	return clock(rest)
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// daysSince counts calendar days from last to now in the zone of last.
func daysSince(last, now time.Time) int {
	y, m, d := last.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = now.In(last.Location()).Date()
	to := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// RenderSummary formats a window summary as a list of Markdown messages.
// maxOrders is the grid size the simulated drawdown was computed for.
func RenderSummary(s analyzer.Summary, maxOrders int) []string {
	var period string
	if !s.Start.IsZero() {
		period = fmt.Sprintf("Период: %s - %s\n", s.Start.Format(dateLayout), s.Finish.Format(dateLayout))
	}
	if s.NoOrders {
		return []string{period + "За этот период сделок и движений средств нет."}
	}

	msgs := []string{
		fmt.Sprintf("%sКалендарных дней: %d\nТорговых дней: %d", period, s.CalendarDays, s.TradingDays),

		fmt.Sprintf("Пополнения: $%.2f\nСнятия: $%.2f\nПрочие движения: $%.2f\n*Прибыль: $%.2f*",
			s.Deposits, s.Withdrawals, s.Misc, s.Profit),

		fmt.Sprintf("Баланс: %s\nСобственных средств: $%.2f",
			money(s.Balance), s.OwnFunds),

		fmt.Sprintf("Средний баланс на начало торгового дня: %s\n"+
			"Средняя прибыль в календарный день: %s\n"+
			"Средняя прибыль в торговый день: %s\n"+
			"Доходность в календарный день: %s\n"+
			"Доходность в месяц: %s\n"+
			"Доходность в год: %s\n"+
			"ROI: %s",
			money(s.DayStartBalanceAvg), money(s.ProfitPerCalDay), money(s.ProfitPerDay),
			percent(s.DailyReturn), percent(s.MonthlyReturn), percent(s.YearlyReturn), percent(s.ROI)),

		fmt.Sprintf("Ордеров: %d\nПрибыльных: %d\nWin Rate: %s\n"+
			"Прибыль ордера: AVG=%s | MAX=%s\nУбыток ордера: MAX=%s",
			s.OrderCount, s.WinCount, percent(s.WinRate),
			money(s.AvgOrderProfit), money(s.MaxOrderProfit), money(s.MaxOrderLoss)),
	}
	if s.NoGrids {
		return append(msgs, "Сеток, открытых в этом периоде, нет.")
	}
	return append(msgs,
		fmt.Sprintf("Сеток однонаправленных: %d\n"+
			"Лот на $1000 депозита: MIN=%s | AVG=%s | MAX=%s | LAST=%s\n"+
			"Ордеров в сетке: AVG=%.1f | MAX=%d\n"+
			"Длительность сетки: MIN=%s | AVG=%s | MAX=%s\n"+
			"Прибыль сетки: AVG=%s | MAX=%s\n"+
			"Просадка сетки: AVG=%s | MAX=%s\n"+
			"Просадка сетки от депозита: AVG=%s | MAX=%s\n"+
			"Просадка при %d ордерах: AVG=%s | MAX=%s (%s)",
			s.GridCount,
			lot(s.MinLot1000), lot(s.AvgLot1000), lot(s.MaxLot1000), lot(s.LastLot1000),
			s.AvgGridOrderCount.Or(0), s.MaxGridOrderCount,
			duration(s.MinGridDuration), duration(s.AvgGridDuration), duration(s.MaxGridDuration),
			money(s.AvgGridProfit), money(s.MaxGridProfit),
			loss(s.AvgDrawdown), loss(s.MaxDrawdown),
			percent(s.AvgDrawdownRatio), percent(s.MaxDrawdownRatio),
			maxOrders, loss(s.AvgSimulatedDrawdown), loss(s.MaxSimulatedDrawdown), percent(s.MaxSimulatedDrawdownRatio)),
	)
}

// RenderGrids lists grids worst first.
func RenderGrids(grids []analyzer.Grid, maxOrders int) string {
	if len(grids) == 0 {
		return "Сеток пока нет."
	}
	var b strings.Builder
	b.WriteString("*Самые глубокие просадки*\n")
	for i, g := range grids {
		fmt.Fprintf(&b, "%d. %s %s, ордеров: %d, просадка: -$%.2f (%s), при %d ордерах: %s, прибыль: $%.2f\n",
			i+1, g.OpenTime.Format("2006-01-02 15:04"), strings.ToUpper(string(g.Side)), g.OrderCount,
			g.Drawdown, percent(g.DrawdownRatio), maxOrders, percent(g.SimulatedDrawdownRatio), g.Profit)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderSpan describes how much history is stored for an account. History
// whose last order is older than the day of now is reported as stale.
func RenderSpan(span storage.OrderSpan, logs []storage.StatementLog, now time.Time) string {
	var b strings.Builder
	if span.Count == 0 {
		b.WriteString("История ещё не загружена. Пришлите выписку statement.htm или выложите её на FTP.")
	} else {
		fmt.Fprintf(&b, "Для анализа доступен период: %s - %s\nЗаписей: %d",
			span.First.Format(dateLayout), span.Last.Format(dateLayout), span.Count)
		if days := daysSince(span.Last, now); days > 0 {
			fmt.Fprintf(&b, "\n\nДанные устарели: последней записи %d дн. Отчёты доступны за этот период, "+
				"а чтобы получить отчёты за новый, пришлите свежую выписку statement.htm.", days)
		} else {
			b.WriteString("\n\nЧтобы получить отчёт, выберите команду.")
		}
	}
	if len(logs) > 0 {
		b.WriteString("\n\nПоследние выписки:")
		for _, l := range logs {
			status := fmt.Sprintf("новых %d из %d", l.RowsNew, l.RowsTotal)
			if l.Error != "" {
				status = "ошибка"
			}
			fmt.Fprintf(&b, "\n%s %s: %s", l.CreatedAt.Format("2006-01-02 15:04"), escape(l.FileName), status)
		}
	}
	return b.String()
}

// RenderReview formats the AI risk commentary.
func RenderReview(r *ai.Review) string {
	var b strings.Builder
	b.WriteString("🤖 *Комментарий AI*")
	if r.RiskLevel != "" {
		fmt.Fprintf(&b, "\nРиск: %s", escape(r.RiskLevel))
	}
	fmt.Fprintf(&b, "\n%s", escape(r.Comment))
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "\n• %s", escape(rec))
	}
	return b.String()
}

// RenderStatement reports the outcome of processing one statement.
func RenderStatement(res *processor.Result, err error) string {
	var schema *analyzer.SchemaError
	switch {
	case err == nil:
		return fmt.Sprintf("✅ Выписка по счёту *%s* обработана\nСтрок в файле: %d\nНовых записей: %d",
			escape(res.Header.Account), res.Total, res.New)
	case errors.Is(err, processor.ErrAccountNotAssigned):
		return "⚠️ Счёт из выписки не привязан к вашему профилю. Обратитесь к администратору."
	case errors.Is(err, statement.ErrUnknownTemplate):
		return "⚠️ Принимаю только выписки RoboForex / RoboMarkets в формате HTML (statement.htm)."
	case errors.As(err, &schema):
		return "⚠️ Не удалось разобрать выписку: " + escape(schema.Error())
	default:
		return "⚠️ Ошибка при обработке выписки: " + escape(err.Error())
	}
}
