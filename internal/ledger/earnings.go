package ledger

import (
	"sort"

	"github.com/danmuck/parkd/internal/pricing"
)

// LotEarnings is one line of the shutdown summary.
type LotEarnings struct {
	LotID int
	Total pricing.Money
}

// Earnings accumulates settled fees per lot. Totals only grow.
type Earnings struct {
	totals map[int]pricing.Money
}

// NewEarnings seeds a zero entry for each lot so the summary lists lots that
// never earned anything.
func NewEarnings(lotIDs ...int) *Earnings {
	e := &Earnings{totals: make(map[int]pricing.Money, len(lotIDs))}
	for _, id := range lotIDs {
		e.totals[id] = 0
	}
	return e
}

// Add credits amount to lotID. Negative amounts are ignored.
func (e *Earnings) Add(lotID int, amount pricing.Money) {
	if amount < 0 {
		return
	}
	e.totals[lotID] += amount
}

func (e *Earnings) Total(lotID int) pricing.Money {
	return e.totals[lotID]
}

// Grand returns the sum across all lots.
func (e *Earnings) Grand() pricing.Money {
	var sum pricing.Money
	for _, v := range e.totals {
		sum += v
	}
	return sum
}

// Summary returns per-lot totals sorted by lot id.
func (e *Earnings) Summary() []LotEarnings {
	out := make([]LotEarnings, 0, len(e.totals))
	for id, total := range e.totals {
		out = append(out, LotEarnings{LotID: id, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LotID < out[j].LotID
	})
	return out
}
