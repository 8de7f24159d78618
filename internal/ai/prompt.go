package ai

import (
	"fmt"
	"strings"

	"github.com/camuig/rf-history/internal/analyzer"
)

const systemPrompt = `Ты — риск-менеджер, который проверяет работу сеточного советника (grid EA) на рынке Forex/металлов.
Советник открывает сетку ордеров одного направления: каждый следующий ордер открывается
на фиксированный шаг против позиции с увеличенным объёмом, вся сетка закрывается одновременно.

Тебе предоставлены:
- Сводка по счёту за период: прибыль, доходность, win rate, размер лота на $1000
- Фактическая просадка сеток и смоделированная просадка при достройке до максимального числа ордеров
- Самые рискованные сетки периода

Правила:
1. Оцени риск: low, medium или high. Главный ориентир — смоделированная просадка относительно баланса.
2. Кратко (3–5 предложений) объясни оценку простыми словами.
3. Дай не более трёх конкретных рекомендаций (например, уменьшить стартовый лот или вывести прибыль).
4. Не придумывай данные, которых нет во входе.

Ответ строго в JSON:
{
  "risk_level": "medium",
  "comment": "Краткий вывод",
  "recommendations": ["Рекомендация"]
}`

func BuildReviewPrompt(req *ReviewRequest) string {
	var sb strings.Builder
	s := req.Summary

	sb.WriteString(fmt.Sprintf("## Период: %s\n", s.Window.Kind))
	if !s.Start.IsZero() {
		sb.WriteString(fmt.Sprintf("С %s по %s\n", s.Start.Format("2006-01-02"), s.Finish.Format("2006-01-02")))
	}
	sb.WriteString("\n## Сводка\n")
	sb.WriteString(fmt.Sprintf("- Баланс: %s\n", num(s.Balance)))
	sb.WriteString(fmt.Sprintf("- Собственные средства: %.2f\n", s.OwnFunds))
	sb.WriteString(fmt.Sprintf("- Прибыль: %.2f, ROI: %s\n", s.Profit, pct(s.ROI)))
	sb.WriteString(fmt.Sprintf("- Доходность в день/месяц: %s / %s\n", pct(s.DailyReturn), pct(s.MonthlyReturn)))
	sb.WriteString(fmt.Sprintf("- Ордеров: %d, win rate: %s\n", s.OrderCount, pct(s.WinRate)))
	sb.WriteString(fmt.Sprintf("- Сеток: %d, ордеров в сетке ср./макс.: %s / %d\n",
		s.GridCount, num(s.AvgGridOrderCount), s.MaxGridOrderCount))
	sb.WriteString(fmt.Sprintf("- Лот на $1000 мин./ср./макс./последний: %s / %s / %s / %s\n",
		num(s.MinLot1000), num(s.AvgLot1000), num(s.MaxLot1000), num(s.LastLot1000)))
	sb.WriteString(fmt.Sprintf("- Просадка макс.: %s (%s баланса)\n", num(s.MaxDrawdown), pct(s.MaxDrawdownRatio)))
	sb.WriteString(fmt.Sprintf("- Смоделированная просадка макс.: %s (%s баланса)\n",
		num(s.MaxSimulatedDrawdown), pct(s.MaxSimulatedDrawdownRatio)))

	sb.WriteString("\n## Параметры стратегии\n")
	sb.WriteString(fmt.Sprintf("Шаг: %.0f пунктов, размер пункта %g, максимум ордеров: %d\n",
		req.Params.StepPips, req.Params.PipSize, req.Params.MaxOrders))

	if len(req.Grids) > 0 {
		sb.WriteString("\n## Самые рискованные сетки\n")
		sb.WriteString("| Открыта | Сторона | Ордеров | Объём | Просадка | % баланса | Модель % |\n")
		sb.WriteString("|---------|---------|---------|-------|----------|-----------|----------|\n")
		for _, g := range req.Grids {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.2f | %.2f | %s | %s |\n",
				g.OpenTime.Format("2006-01-02 15:04"), g.Side, g.OrderCount, g.Qty,
				g.Drawdown, pct(g.DrawdownRatio), pct(g.SimulatedDrawdownRatio)))
		}
	} else {
		sb.WriteString("\nСеток за период нет.\n")
	}

	sb.WriteString("\nОцени риск и выдай ответ в JSON.")

	return sb.String()
}

func pct(n analyzer.Number) string {
	if !n.Valid {
		return "н/д"
	}
	return fmt.Sprintf("%.2f%%", n.Float64*100)
}

func num(n analyzer.Number) string {
	if !n.Valid {
		return "н/д"
	}
	return fmt.Sprintf("%.2f", n.Float64)
}
