package analyzer

import "strings"

// Markers are the comment tokens that identify grid orders.
type Markers struct {
	Start string `yaml:"start"`
	Buy   string `yaml:"buy"`
	Sell  string `yaml:"sell"`
}

func DefaultMarkers() Markers {
	return Markers{Start: "Start", Buy: "BUY", Sell: "SELL"}
}

func (m Markers) side(s Side) string {
	switch s {
	case SideBuy:
		return m.Buy
	case SideSell:
		return m.Sell
	}
	return ""
}

// IsTrading reports whether o is a grid trade: a buy or sell order whose
// comment carries its side marker.
func (m Markers) IsTrading(o Order) bool {
	marker := m.side(o.Side)
	return marker != "" && strings.Contains(o.Comment, marker)
}

func (m Markers) IsStart(o Order) bool {
	return m.IsTrading(o) && strings.Contains(o.Comment, m.Start)
}

// TradingOrders keeps grid trades in chronological order and reports how many
// non-balance rows were dropped for lacking a side marker.
func TradingOrders(orders []Order, m Markers) ([]Order, int) {
	res := make([]Order, 0, len(orders))
	skipped := 0
	for _, o := range orders {
		if m.IsTrading(o) {
			res = append(res, o)
			continue
		}
		if o.Side != SideBalance {
			skipped++
		}
	}
	SortChronological(res)
	return res, skipped
}

// Assignment links a trading order to its grid.
type Assignment struct {
	OrderID int64
	GridID  int64
	Start   bool
}

// segState is the per-side "current grid" carried through the scan.
type segState struct {
	buy, sell       int64
	hasBuy, hasSell bool
}

func (s segState) step(o Order, m Markers) (segState, int64, bool) {
	if m.IsStart(o) {
		switch o.Side {
		case SideBuy:
			s.buy, s.hasBuy = o.ID, true
		case SideSell:
			s.sell, s.hasSell = o.ID, true
		}
	}

	switch {
	case o.Side == SideBuy && s.hasBuy:
		return s, s.buy, false
	case o.Side == SideSell && s.hasSell:
		return s, s.sell, false
	}
	return s, o.ID, true
}

// Segment assigns a grid id to every trading order. orders must already be
// filtered with TradingOrders.
func Segment(orders []Order, m Markers) ([]Assignment, []DegenerateGridWarning) {
	var (
		state    segState
		gridID   int64
		orphan   bool
		warnings []DegenerateGridWarning
	)

	assignments := make([]Assignment, 0, len(orders))
	for _, o := range orders {
		state, gridID, orphan = state.step(o, m)
		if orphan {
			warnings = append(warnings, DegenerateGridWarning{OrderID: o.ID, Side: o.Side})
		}
		assignments = append(assignments, Assignment{
			OrderID: o.ID,
			GridID:  gridID,
			Start:   m.IsStart(o),
		})
	}
	return assignments, warnings
}
