// Package ledger records live reservations and accumulated earnings.
package ledger

import (
	"sort"
	"time"

	"github.com/danmuck/parkd/internal/pricing"
)

// Vehicle describes one parked car. The coordinator stores it but never
// interprets it.
type Vehicle struct {
	Manufacturer string
	Model        string
	Color        string
	Plate        string
}

// Reservation is a committed block of spaces awaiting release.
type Reservation struct {
	ID        uint64
	LotID     int
	Spaces    int
	Arrival   time.Time
	Departure pricing.TimeOfDay
	Vehicles  []Vehicle
	SessionID string
}

// Ledger maps reservation ids to reservations. Ids start at 1 and are never
// reused. Not safe for concurrent use.
type Ledger struct {
	next  uint64
	items map[uint64]Reservation
}

func New() *Ledger {
	return &Ledger{next: 1, items: make(map[uint64]Reservation)}
}

// Create assigns the next id to r and stores it.
func (l *Ledger) Create(r Reservation) Reservation {
	r.ID = l.next
	l.next++
	l.items[r.ID] = r
	return r
}

func (l *Ledger) Get(id uint64) (Reservation, bool) {
	r, ok := l.items[id]
	return r, ok
}

// Remove deletes and returns a reservation. A second Remove for the same id
// reports false.
func (l *Ledger) Remove(id uint64) (Reservation, bool) {
	r, ok := l.items[id]
	if ok {
		delete(l.items, id)
	}
	return r, ok
}

func (l *Ledger) Len() int {
	return len(l.items)
}

// List returns live reservations sorted by id.
func (l *Ledger) List() []Reservation {
	out := make([]Reservation, 0, len(l.items))
	for _, r := range l.items {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// SpacesByLot sums the spaces held by live reservations per lot.
func (l *Ledger) SpacesByLot() map[int]int {
	out := make(map[int]int)
	for _, r := range l.items {
		out[r.LotID] += r.Spaces
	}
	return out
}
