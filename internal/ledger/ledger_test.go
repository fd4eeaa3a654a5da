package ledger

import (
	"testing"
	"time"

	"github.com/danmuck/parkd/internal/pricing"
)

func TestCreateAssignsMonotonicIDs(t *testing.T) {
	l := New()
	a := l.Create(Reservation{LotID: 1, Spaces: 2})
	b := l.Create(Reservation{LotID: 2, Spaces: 1})
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids = %d,%d want 1,2", a.ID, b.ID)
	}
	if _, ok := l.Remove(a.ID); !ok {
		t.Fatalf("remove %d failed", a.ID)
	}
	c := l.Create(Reservation{LotID: 1, Spaces: 1})
	if c.ID != 3 {
		t.Fatalf("released id reused: got %d", c.ID)
	}
}

func TestRemoveTwiceReportsMissing(t *testing.T) {
	l := New()
	r := l.Create(Reservation{
		LotID:     1,
		Spaces:    2,
		Arrival:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Departure: pricing.TimeOfDay{Hour: 12},
		Vehicles:  []Vehicle{{Manufacturer: "Skoda", Model: "Octavia", Color: "grey", Plate: "AB-123"}},
	})
	got, ok := l.Get(r.ID)
	if !ok || got.Vehicles[0].Plate != "AB-123" {
		t.Fatalf("get: %+v ok=%v", got, ok)
	}
	if _, ok := l.Remove(r.ID); !ok {
		t.Fatalf("first remove failed")
	}
	if _, ok := l.Remove(r.ID); ok {
		t.Fatalf("second remove must report missing")
	}
	if l.Len() != 0 {
		t.Fatalf("len=%d", l.Len())
	}
}

func TestListAndSpacesByLot(t *testing.T) {
	l := New()
	l.Create(Reservation{LotID: 2, Spaces: 3})
	l.Create(Reservation{LotID: 1, Spaces: 1})
	l.Create(Reservation{LotID: 2, Spaces: 4})

	list := l.List()
	if len(list) != 3 || list[0].ID != 1 || list[2].ID != 3 {
		t.Fatalf("unexpected list: %+v", list)
	}
	by := l.SpacesByLot()
	if by[1] != 1 || by[2] != 7 {
		t.Fatalf("unexpected spaces by lot: %v", by)
	}
}

func TestEarningsSummaryIncludesIdleLots(t *testing.T) {
	e := NewEarnings(1, 2, 3)
	e.Add(2, 1200_00)
	e.Add(2, 50_00)
	e.Add(1, -10)

	summary := e.Summary()
	if len(summary) != 3 {
		t.Fatalf("summary len=%d want 3", len(summary))
	}
	if summary[0].LotID != 1 || summary[0].Total != 0 {
		t.Fatalf("lot 1: %+v", summary[0])
	}
	if summary[1].Total != 1250_00 {
		t.Fatalf("lot 2 total = %s", summary[1].Total)
	}
	if e.Grand() != 1250_00 || e.Total(3) != 0 {
		t.Fatalf("grand=%s lot3=%s", e.Grand(), e.Total(3))
	}
}
