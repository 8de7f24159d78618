package statement

import (
	"fmt"
	"sort"

	"github.com/camuig/rf-history/internal/analyzer"
)

// RestoreComments rebuilds grid comments for trades. Statements do not carry
// the expert's comments, but a grid closes all of its orders at once, so
// trades sharing a close time and side form one grid: the lowest ticket is
// "Start BUY", the next ones "BUY 2", "BUY 3" and so on. Balance rows keep
// their comments. The input is not modified.
func RestoreComments(orders []analyzer.Order, m analyzer.Markers) []analyzer.Order {
	res := make([]analyzer.Order, len(orders))
	copy(res, orders)

	idx := make([]int, 0, len(res))
	for i, o := range res {
		if o.Side.IsTrade() {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		x, y := res[idx[a]], res[idx[b]]
		if !x.CloseTime.Equal(y.CloseTime) {
			return x.CloseTime.Before(y.CloseTime)
		}
		if x.Side != y.Side {
			return x.Side < y.Side
		}
		return x.ID < y.ID
	})

	n := 0
	for k, i := range idx {
		o := &res[i]
		if k == 0 || !sameGrid(res[idx[k-1]], *o) {
			n = 0
		}
		n++

		marker := m.Buy
		if o.Side == analyzer.SideSell {
			marker = m.Sell
		}
		if n == 1 {
			o.Comment = fmt.Sprintf("%s %s", m.Start, marker)
		} else {
			o.Comment = fmt.Sprintf("%s %d", marker, n)
		}
	}
	return res
}

func sameGrid(a, b analyzer.Order) bool {
	return a.CloseTime.Equal(b.CloseTime) && a.Side == b.Side
}
