package analyzer

import (
	"fmt"
	"math"
)

// Schedule maps a grid step to the quantity multiplier of the next order.
// Step n is the multiplier applied when a grid of n orders adds order n+1.
// It is immutable once built.
type Schedule struct {
	factors []float64
	plateau float64
}

// NewSchedule builds a schedule from an explicit table. Steps past the table
// use plateau; a zero plateau makes them an error.
func NewSchedule(factors []float64, plateau float64) Schedule {
	return Schedule{
		factors: append([]float64(nil), factors...),
		plateau: plateau,
	}
}

func ConstantSchedule(factor float64) Schedule {
	return Schedule{plateau: factor}
}

func (s Schedule) Factor(step int) (float64, error) {
	if step < 1 {
		return 0, fmt.Errorf("%w: step %d", ErrStepOutOfRange, step)
	}
	if step <= len(s.factors) {
		return s.factors[step-1], nil
	}
	if s.plateau > 0 {
		return s.plateau, nil
	}
	return 0, fmt.Errorf("%w: step %d, table has %d", ErrStepOutOfRange, step, len(s.factors))
}

type SimulationResult struct {
	Steps         int
	FinalPrice    float64
	FinalQty      float64
	FinalValue    float64
	Drawdown      float64
	DrawdownRatio Number
}

// Simulate extends a grid to p.MaxOrders orders, each filled one adverse
// price step beyond the previous one, and returns the liability at the next
// trigger price.
func Simulate(g Grid, p Params) (SimulationResult, error) {
	step := p.AdverseStep(g.Side)
	price, value, qty := g.LastPrice, g.Value, g.Qty

	res := SimulationResult{}
	for i := g.OrderCount + 1; i <= p.MaxOrders; i++ {
		factor, err := p.Schedule.Factor(i - 1)
		if err != nil {
			return SimulationResult{}, fmt.Errorf("simulate grid %d: %w", g.ID, err)
		}
		price += step
		value += price * (qty*factor - qty)
		qty *= factor
		res.Steps++
	}

	res.FinalPrice = price
	res.FinalQty = qty
	res.FinalValue = value
	res.Drawdown = math.Abs(value - qty*(price+step))
	res.DrawdownRatio = balanceRatio(res.Drawdown, g.BalanceBefore)
	return res, nil
}
