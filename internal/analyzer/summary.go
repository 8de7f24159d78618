package analyzer

import (
	"sort"
	"time"
)

// Summary is the account rollup for one window.
type Summary struct {
	Window Window    `json:"window"`
	Start  time.Time `json:"start"`
	Finish time.Time `json:"finish"`
	// NoOrders is set when nothing at all happened inside the window.
	NoOrders bool `json:"no_orders"`
	// NoGrids is set when no grid opened inside the window. Orders of a grid
	// opened earlier still count towards the order figures.
	NoGrids bool `json:"no_grids"`

	TradingDays  int `json:"trading_days"`
	CalendarDays int `json:"calendar_days"`

	CashFlow    float64 `json:"cash_flow"`
	Deposits    float64 `json:"deposits"`
	Withdrawals float64 `json:"withdrawals"`
	Misc        float64 `json:"misc"`
	Profit      float64 `json:"profit"`

	Balance            Number  `json:"balance"`
	OwnFunds           float64 `json:"own_funds"`
	DayStartBalanceAvg Number  `json:"day_start_balance_avg"`
	ProfitPerDay       Number  `json:"profit_per_day"`
	ProfitPerCalDay    Number  `json:"profit_per_cal_day"`
	DailyReturn        Number  `json:"daily_return"`
	MonthlyReturn      Number  `json:"monthly_return"`
	YearlyReturn       Number  `json:"yearly_return"`
	ROI                Number  `json:"roi"`

	OrderCount     int    `json:"order_count"`
	WinCount       int    `json:"win_count"`
	WinRate        Number `json:"win_rate"`
	AvgOrderProfit Number `json:"avg_order_profit"`
	MinOrderProfit Number `json:"min_order_profit"`
	MaxOrderProfit Number `json:"max_order_profit"`
	MaxOrderLoss   Number `json:"max_order_loss"`

	GridCount         int          `json:"grid_count"`
	MinLot1000        Number       `json:"min_lot_1000"`
	AvgLot1000        Number       `json:"avg_lot_1000"`
	MaxLot1000        Number       `json:"max_lot_1000"`
	LastLot1000       Number       `json:"last_lot_1000"`
	AvgGridOrderCount Number       `json:"avg_grid_order_count"`
	MaxGridOrderCount int          `json:"max_grid_order_count"`
	MinGridDuration   NullDuration `json:"min_grid_duration"`
	AvgGridDuration   NullDuration `json:"avg_grid_duration"`
	MaxGridDuration   NullDuration `json:"max_grid_duration"`
	AvgGridProfit     Number       `json:"avg_grid_profit"`
	MaxGridProfit     Number       `json:"max_grid_profit"`

	AvgDrawdown               Number `json:"avg_drawdown"`
	MaxDrawdown               Number `json:"max_drawdown"`
	AvgDrawdownRatio          Number `json:"avg_drawdown_ratio"`
	MaxDrawdownRatio          Number `json:"max_drawdown_ratio"`
	AvgSimulatedDrawdown      Number `json:"avg_simulated_drawdown"`
	MaxSimulatedDrawdown      Number `json:"max_simulated_drawdown"`
	AvgSimulatedDrawdownRatio Number `json:"avg_simulated_drawdown_ratio"`
	MaxSimulatedDrawdownRatio Number `json:"max_simulated_drawdown_ratio"`
}

// WindowGrids returns the grids opened inside w.
func (r *Report) WindowGrids(w Window) []Grid {
	var res []Grid
	for _, g := range r.Grids {
		if w.Contains(g.OpenTime) {
			res = append(res, g)
		}
	}
	return res
}

// Summarize reduces a report to one row for w. Window figures use only orders
// and grids opened inside w; own funds and balances come from full history.
func Summarize(r *Report, w Window) Summary {
	s := Summary{Window: w, Start: w.Start, Finish: w.Finish}

	var orders []Order
	for _, o := range r.Orders {
		if w.Contains(o.OpenTime) {
			orders = append(orders, o)
		}
	}
	var trades []GridOrder
	for _, o := range r.GridOrders {
		if w.Contains(o.OpenTime) {
			trades = append(trades, o)
		}
	}
	sort.SliceStable(trades, func(i, j int) bool {
		if !trades[i].OpenTime.Equal(trades[j].OpenTime) {
			return trades[i].OpenTime.Before(trades[j].OpenTime)
		}
		return trades[i].ID < trades[j].ID
	})
	grids := r.WindowGrids(w)

	if len(orders) > 0 && !w.Bounded() {
		s.Start = dateOf(orders[0].OpenTime)
		s.Finish = dateOf(orders[len(orders)-1].OpenTime)
	}

	s.reduceCashFlow(r.Orders, orders, w)
	s.reduceOrders(trades)
	s.reduceGrids(grids)

	s.ProfitPerDay = Ratio(s.Profit, float64(s.TradingDays))
	s.ProfitPerCalDay = Ratio(s.Profit, float64(s.CalendarDays))
	if s.ProfitPerCalDay.Valid && s.DayStartBalanceAvg.Valid {
		s.DailyReturn = balanceRatio(s.ProfitPerCalDay.Float64, s.DayStartBalanceAvg.Float64)
	}
	if s.DailyReturn.Valid {
		s.MonthlyReturn = Defined(s.DailyReturn.Float64 * 30)
		s.YearlyReturn = Defined(s.DailyReturn.Float64 * 365)
	}
	s.ROI = balanceRatio(s.Profit, s.OwnFunds)

	s.NoOrders = len(orders) == 0
	s.NoGrids = s.GridCount == 0
	return s
}

func (s *Summary) reduceCashFlow(history, orders []Order, w Window) {
	var lastID int64
	for _, o := range orders {
		s.CashFlow += o.Profit
		s.Deposits += o.CashFlow.Deposit
		s.Withdrawals += o.CashFlow.Withdrawal
		s.Misc += o.CashFlow.Misc
		s.Profit += o.CashFlow.Profit
		if !s.Balance.Valid || o.ID > lastID {
			lastID = o.ID
			s.Balance = Defined(o.BalanceAfter)
		}
	}

	for _, o := range history {
		if w.Bounded() && dateOf(o.OpenTime).After(w.Finish) {
			continue
		}
		s.OwnFunds += o.CashFlow.Deposit + o.CashFlow.Withdrawal + o.CashFlow.Misc
	}

	if len(orders) > 0 {
		first, last := dateOf(orders[0].OpenTime), dateOf(orders[len(orders)-1].OpenTime)
		s.CalendarDays = int(last.Sub(first).Hours()/24) + 1
	}
}

func (s *Summary) reduceOrders(trades []GridOrder) {
	s.OrderCount = len(trades)

	var (
		profits    []float64
		losses     []float64
		dayStart   []float64
		currentDay time.Time
	)
	for _, t := range trades {
		profits = append(profits, t.Profit)
		if t.Profit >= 0 {
			s.WinCount++
		} else {
			losses = append(losses, t.Profit)
		}
		if d := dateOf(t.OpenTime); !d.Equal(currentDay) {
			currentDay = d
			dayStart = append(dayStart, t.BalanceBefore)
		}
	}

	s.TradingDays = len(dayStart)
	s.DayStartBalanceAvg = mean(dayStart)
	s.WinRate = Ratio(float64(s.WinCount), float64(s.OrderCount))
	s.AvgOrderProfit = mean(profits)
	s.MinOrderProfit = minOf(profits)
	s.MaxOrderProfit = maxOf(profits)
	s.MaxOrderLoss = minOf(losses)
}

func (s *Summary) reduceGrids(grids []Grid) {
	s.GridCount = len(grids)

	var (
		lots, counts, profits   []float64
		drawdowns, ratios       []float64
		simDrawdowns, simRatios []float64
		durations               []time.Duration
	)
	for _, g := range grids {
		if g.LotPer1000.Valid {
			lots = append(lots, g.LotPer1000.Float64)
			s.LastLot1000 = g.LotPer1000
		}
		counts = append(counts, float64(g.OrderCount))
		if g.OrderCount > s.MaxGridOrderCount {
			s.MaxGridOrderCount = g.OrderCount
		}
		profits = append(profits, g.Profit)
		drawdowns = append(drawdowns, g.Drawdown)
		if g.DrawdownRatio.Valid {
			ratios = append(ratios, g.DrawdownRatio.Float64)
		}
		simDrawdowns = append(simDrawdowns, g.SimulatedDrawdown)
		if g.SimulatedDrawdownRatio.Valid {
			simRatios = append(simRatios, g.SimulatedDrawdownRatio.Float64)
		}
		durations = append(durations, g.Duration)
	}

	s.MinLot1000, s.AvgLot1000, s.MaxLot1000 = minOf(lots), mean(lots), maxOf(lots)
	s.AvgGridOrderCount = mean(counts)
	s.AvgGridProfit, s.MaxGridProfit = mean(profits), maxOf(profits)
	s.AvgDrawdown, s.MaxDrawdown = mean(drawdowns), maxOf(drawdowns)
	s.AvgDrawdownRatio, s.MaxDrawdownRatio = mean(ratios), maxOf(ratios)
	s.AvgSimulatedDrawdown, s.MaxSimulatedDrawdown = mean(simDrawdowns), maxOf(simDrawdowns)
	s.AvgSimulatedDrawdownRatio, s.MaxSimulatedDrawdownRatio = mean(simRatios), maxOf(simRatios)

	if len(durations) > 0 {
		lo, hi, sum := durations[0], durations[0], time.Duration(0)
		for _, d := range durations {
			if d < lo {
				lo = d
			}
			if d > hi {
				hi = d
			}
			sum += d
		}
		s.MinGridDuration = NullDuration{Duration: lo, Valid: true}
		s.MaxGridDuration = NullDuration{Duration: hi, Valid: true}
		s.AvgGridDuration = NullDuration{Duration: sum / time.Duration(len(durations)), Valid: true}
	}
}

func mean(xs []float64) Number {
	if len(xs) == 0 {
		return Number{}
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return Defined(sum / float64(len(xs)))
}

func minOf(xs []float64) Number {
	if len(xs) == 0 {
		return Number{}
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return Defined(m)
}

func maxOf(xs []float64) Number {
	if len(xs) == 0 {
		return Number{}
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return Defined(m)
}
