package analyzer

import "fmt"

// Params are the strategy constants the engine needs.
type Params struct {
	// StepPips is the adverse move, in pips, that triggers the next grid
	// order. The worst price sits one pip short of it.
	StepPips float64
	PipSize  float64
	// MaxOrders is the largest grid the strategy builds.
	MaxOrders int
	Schedule  Schedule
	// LotBase normalises first-order size by balance (lot per $1000).
	LotBase float64
	Markers Markers
}

// DefaultMultiplier is the quantity factor between consecutive grid orders.
const DefaultMultiplier = 1.65

func DefaultParams() Params {
	return Params{
		StepPips:  180,
		PipSize:   0.01,
		MaxOrders: 20,
		Schedule:  ConstantSchedule(DefaultMultiplier),
		LotBase:   1000,
		Markers:   DefaultMarkers(),
	}
}

// PriceStep is the unsigned distance between consecutive grid orders.
func (p Params) PriceStep() float64 {
	return (p.StepPips - 1) * p.PipSize
}

// AdverseStep is PriceStep signed against the grid: down for buy grids, up
// for sell grids.
func (p Params) AdverseStep(side Side) float64 {
	if side == SideBuy {
		return -p.PriceStep()
	}
	return p.PriceStep()
}

func (p Params) Validate() error {
	if p.StepPips <= 1 {
		return fmt.Errorf("step pips must be greater than 1, got %v", p.StepPips)
	}
	if p.PipSize <= 0 {
		return fmt.Errorf("pip size must be positive, got %v", p.PipSize)
	}
	if p.MaxOrders < 1 {
		return fmt.Errorf("max orders must be at least 1, got %d", p.MaxOrders)
	}
	if p.LotBase <= 0 {
		return fmt.Errorf("lot base must be positive, got %v", p.LotBase)
	}
	if p.Markers.Start == "" || p.Markers.Buy == "" || p.Markers.Sell == "" {
		return fmt.Errorf("grid markers must not be empty")
	}
	for step := 1; step < p.MaxOrders; step++ {
		if _, err := p.Schedule.Factor(step); err != nil {
			return fmt.Errorf("schedule does not cover max orders %d: %w", p.MaxOrders, err)
		}
	}
	return nil
}
