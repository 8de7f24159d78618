package analyzer

import (
	"fmt"
	"time"
)

// Report is the output of one analysis run.
type Report struct {
	Orders     []Order                 `json:"orders"`
	GridOrders []GridOrder             `json:"grid_orders"`
	Grids      []Grid                  `json:"grids"`
	Warnings   []DegenerateGridWarning `json:"warnings,omitempty"`
	// Skipped counts buy/sell rows without a side marker.
	Skipped int `json:"skipped"`
}

// LastOpen is the open time of the latest order, cash-flow rows included.
func (r *Report) LastOpen() time.Time {
	var last time.Time
	for _, o := range r.Orders {
		if o.OpenTime.After(last) {
			last = o.OpenTime
		}
	}
	return last
}

type Engine struct {
	params Params
}

func NewEngine(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("engine params: %w", err)
	}
	return &Engine{params: p}, nil
}

func (e *Engine) Params() Params {
	return e.params
}

// Run segments, aggregates and stress-tests normalized orders. It does not
// modify its input and always yields the same report for the same orders.
func (e *Engine) Run(orders []Order) (*Report, error) {
	all := make([]Order, len(orders))
	copy(all, orders)
	SortChronological(all)

	trading, skipped := TradingOrders(all, e.params.Markers)
	assignments, warnings := Segment(trading, e.params.Markers)
	gridOrders := Aggregate(trading, assignments, e.params)
	grids := RollupGrids(gridOrders, e.params)

	for i := range grids {
		sim, err := Simulate(grids[i], e.params)
		if err != nil {
			return nil, err
		}
		grids[i].SimulatedDrawdown = sim.Drawdown
		grids[i].SimulatedDrawdownRatio = sim.DrawdownRatio
	}

	return &Report{
		Orders:     all,
		GridOrders: gridOrders,
		Grids:      grids,
		Warnings:   warnings,
		Skipped:    skipped,
	}, nil
}
