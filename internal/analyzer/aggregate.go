package analyzer

import (
	"math"
	"sort"
	"time"
)

// GridOrder is a trading order extended with its grid's running totals.
type GridOrder struct {
	Order
	GridID        int64   `json:"grid_id"`
	GridStart     bool    `json:"grid_start"`
	GridCumQty    float64 `json:"grid_cum_qty"`
	GridCumValue  float64 `json:"grid_cum_value"`
	WorstPrice    float64 `json:"worst_price"`
	Drawdown      float64 `json:"drawdown"`
	DrawdownRatio Number  `json:"drawdown_ratio"`
}

// Grid is one averaging sequence rolled up from its orders.
type Grid struct {
	ID            int64         `json:"id"`
	Side          Side          `json:"side"`
	OpenTime      time.Time     `json:"open_time"`
	CloseTime     time.Time     `json:"close_time"`
	OrderCount    int           `json:"order_count"`
	Profit        float64       `json:"profit"`
	Qty           float64       `json:"qty"`
	Value         float64       `json:"value"`
	FirstQty      float64       `json:"first_qty"`
	FirstPrice    float64       `json:"first_price"`
	LastPrice     float64       `json:"last_price"`
	WorstPrice    float64       `json:"worst_price"`
	AvgPrice      Number        `json:"avg_price"`
	BalanceBefore float64       `json:"balance_before"`
	Drawdown      float64       `json:"drawdown"`
	DrawdownRatio Number        `json:"drawdown_ratio"`
	LotPer1000    Number        `json:"lot_per_1000"`
	Duration      time.Duration `json:"duration"`

	// Filled by the simulator.
	SimulatedDrawdown      float64 `json:"simulated_drawdown"`
	SimulatedDrawdownRatio Number  `json:"simulated_drawdown_ratio"`
}

// balanceRatio divides by the balance before a grid; a non-positive balance
// leaves the ratio undefined.
func balanceRatio(v, balance float64) Number {
	if balance <= 0 {
		return Number{}
	}
	return Defined(v / balance)
}

// Aggregate computes cumulative grid figures for every trading order. The
// result is sorted by (grid id, order id).
func Aggregate(orders []Order, assignments []Assignment, p Params) []GridOrder {
	byID := make(map[int64]Assignment, len(assignments))
	for _, a := range assignments {
		byID[a.OrderID] = a
	}

	res := make([]GridOrder, 0, len(orders))
	for _, o := range orders {
		a, ok := byID[o.ID]
		if !ok {
			continue
		}
		res = append(res, GridOrder{Order: o, GridID: a.GridID, GridStart: a.Start})
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].GridID != res[j].GridID {
			return res[i].GridID < res[j].GridID
		}
		return res[i].ID < res[j].ID
	})

	for start := 0; start < len(res); {
		end := start
		for end < len(res) && res[end].GridID == res[start].GridID {
			end++
		}
		fillGrid(res[start:end], p)
		start = end
	}
	return res
}

// fillGrid works on one grid's members sorted by ID.
func fillGrid(members []GridOrder, p Params) {
	last := members[len(members)-1]
	worst := last.OpenPrice + p.AdverseStep(last.Side)
	balance := members[0].BalanceBefore

	var cumQty, cumValue float64
	for i := range members {
		m := &members[i]
		cumQty += m.Qty
		cumValue += m.OpenValue
		m.GridCumQty = cumQty
		m.GridCumValue = cumValue
		m.WorstPrice = worst
		m.Drawdown = math.Abs(cumQty*worst - cumValue)
		m.DrawdownRatio = balanceRatio(m.Drawdown, balance)
	}
}

// RollupGrids folds grid orders (as returned by Aggregate) into one row per
// grid, ordered by open time then id.
func RollupGrids(orders []GridOrder, p Params) []Grid {
	var grids []Grid
	for start := 0; start < len(orders); {
		end := start
		for end < len(orders) && orders[end].GridID == orders[start].GridID {
			end++
		}
		grids = append(grids, rollup(orders[start:end], p))
		start = end
	}

	sort.SliceStable(grids, func(i, j int) bool {
		if !grids[i].OpenTime.Equal(grids[j].OpenTime) {
			return grids[i].OpenTime.Before(grids[j].OpenTime)
		}
		return grids[i].ID < grids[j].ID
	})
	return grids
}

func rollup(members []GridOrder, p Params) Grid {
	first, last := members[0], members[len(members)-1]
	g := Grid{
		ID:            first.GridID,
		Side:          first.Side,
		OpenTime:      first.OpenTime,
		CloseTime:     first.CloseTime,
		OrderCount:    len(members),
		FirstQty:      first.Qty,
		FirstPrice:    first.OpenPrice,
		LastPrice:     last.OpenPrice,
		WorstPrice:    last.WorstPrice,
		BalanceBefore: first.BalanceBefore,
	}
	for _, m := range members {
		if m.OpenTime.Before(g.OpenTime) {
			g.OpenTime = m.OpenTime
		}
		if m.CloseTime.After(g.CloseTime) {
			g.CloseTime = m.CloseTime
		}
		g.Profit += m.Profit
		g.Qty += m.Qty
		g.Value += m.OpenValue
	}

	g.AvgPrice = Ratio(g.Value, g.Qty)
	g.Drawdown = math.Abs(g.Qty*g.WorstPrice - g.Value)
	g.DrawdownRatio = balanceRatio(g.Drawdown, g.BalanceBefore)
	g.LotPer1000 = balanceRatio(g.FirstQty*p.LotBase, g.BalanceBefore)
	g.Duration = g.CloseTime.Sub(g.OpenTime)

	g.SimulatedDrawdown = g.Drawdown
	g.SimulatedDrawdownRatio = g.DrawdownRatio
	return g
}
