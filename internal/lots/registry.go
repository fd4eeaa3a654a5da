// Package lots owns the parking lot table.
//
// A Registry is not safe for concurrent use; the coordinator's dispatch
// loop is its only owner.
package lots

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danmuck/parkd/internal/pricing"
)

var (
	ErrNoLots         = errors.New("lots: at least one lot is required")
	ErrInvalidLot     = errors.New("lots: invalid lot")
	ErrInvalidSpaces  = errors.New("lots: requested spaces must be positive")
	ErrDuplicateLotID = errors.New("lots: duplicate lot id")
)

// Lot is one parking facility.
type Lot struct {
	ID             int
	TotalSpaces    int
	OccupiedSpaces int
	PricePerHour   pricing.Money
}

// Available returns the number of free spaces.
func (l Lot) Available() int {
	return l.TotalSpaces - l.OccupiedSpaces
}

// Outcome classifies a TryAllocate result.
type Outcome int

const (
	OutcomeFull Outcome = iota
	OutcomePartial
	OutcomeNotFound
	OutcomeLotFull
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFull:
		return "full"
	case OutcomePartial:
		return "partial"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeLotFull:
		return "lot_full"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Allocation is the read-only answer to TryAllocate. Spaces is the granted
// count for OutcomeFull and the available count for OutcomePartial.
type Allocation struct {
	Outcome Outcome
	Spaces  int
}

// Registry holds lots keyed by id.
type Registry struct {
	items map[int]*Lot
}

// New validates lots and builds a registry. Ids must be dense from 1.
func New(in []Lot) (*Registry, error) {
	if len(in) == 0 {
		return nil, ErrNoLots
	}
	r := &Registry{items: make(map[int]*Lot, len(in))}
	for _, lot := range in {
		if err := validate(lot); err != nil {
			return nil, err
		}
		if _, ok := r.items[lot.ID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateLotID, lot.ID)
		}
		l := lot
		r.items[lot.ID] = &l
	}
	for id := 1; id <= len(in); id++ {
		if _, ok := r.items[id]; !ok {
			return nil, fmt.Errorf("%w: ids must be dense from 1, missing %d", ErrInvalidLot, id)
		}
	}
	return r, nil
}

func validate(l Lot) error {
	switch {
	case l.ID < 1:
		return fmt.Errorf("%w: id %d must be positive", ErrInvalidLot, l.ID)
	case l.TotalSpaces < 0:
		return fmt.Errorf("%w: lot %d total spaces %d", ErrInvalidLot, l.ID, l.TotalSpaces)
	case l.OccupiedSpaces < 0 || l.OccupiedSpaces > l.TotalSpaces:
		return fmt.Errorf("%w: lot %d occupied spaces %d outside 0..%d", ErrInvalidLot, l.ID, l.OccupiedSpaces, l.TotalSpaces)
	case l.PricePerHour < 0:
		return fmt.Errorf("%w: lot %d negative price", ErrInvalidLot, l.ID)
	}
	return nil
}

// TryAllocate reports how a request for spaces would be served without
// mutating the registry.
func (r *Registry) TryAllocate(lotID, spaces int) (Allocation, error) {
	lot, ok := r.items[lotID]
	if !ok {
		return Allocation{Outcome: OutcomeNotFound}, nil
	}
	if spaces < 1 {
		return Allocation{}, fmt.Errorf("%w: %d", ErrInvalidSpaces, spaces)
	}
	available := lot.Available()
	switch {
	case available == 0:
		return Allocation{Outcome: OutcomeLotFull}, nil
	case spaces > available:
		return Allocation{Outcome: OutcomePartial, Spaces: available}, nil
	default:
		return Allocation{Outcome: OutcomeFull, Spaces: spaces}, nil
	}
}

// Available returns the free spaces of a lot.
func (r *Registry) Available(lotID int) (int, bool) {
	lot, ok := r.items[lotID]
	if !ok {
		return 0, false
	}
	return lot.Available(), true
}

// Commit adds spaces to a lot's occupancy. Callers validate availability
// first; exceeding capacity or an unknown lot is a defect.
func (r *Registry) Commit(lotID, spaces int) Lot {
	lot := r.mustGet(lotID)
	if spaces < 0 || lot.OccupiedSpaces+spaces > lot.TotalSpaces {
		panic(fmt.Sprintf("lots: commit of %d spaces exceeds lot %d capacity (%d/%d)",
			spaces, lotID, lot.OccupiedSpaces, lot.TotalSpaces))
	}
	lot.OccupiedSpaces += spaces
	return *lot
}

// Release frees spaces. Underflow is a defect.
func (r *Registry) Release(lotID, spaces int) Lot {
	lot := r.mustGet(lotID)
	if spaces < 0 || lot.OccupiedSpaces-spaces < 0 {
		panic(fmt.Sprintf("lots: release of %d spaces underflows lot %d (%d occupied)",
			spaces, lotID, lot.OccupiedSpaces))
	}
	lot.OccupiedSpaces -= spaces
	return *lot
}

func (r *Registry) mustGet(lotID int) *Lot {
	lot, ok := r.items[lotID]
	if !ok {
		panic(fmt.Sprintf("lots: unknown lot %d", lotID))
	}
	return lot
}

// Lookup returns a copy of one lot.
func (r *Registry) Lookup(lotID int) (Lot, bool) {
	lot, ok := r.items[lotID]
	if !ok {
		return Lot{}, false
	}
	return *lot, true
}

// Len returns the number of lots.
func (r *Registry) Len() int {
	return len(r.items)
}

// Snapshot returns copies of all lots sorted by id.
func (r *Registry) Snapshot() []Lot {
	out := make([]Lot, 0, len(r.items))
	for _, lot := range r.items {
		out = append(out, *lot)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
