package coordinator

import (
	"strings"
	"testing"

	"github.com/danmuck/parkd/internal/ledger"
)

func TestWriteSummaryListsEveryLot(t *testing.T) {
	var b strings.Builder
	err := WriteSummary(&b, []ledger.LotEarnings{
		{LotID: 1, Total: 1200_00},
		{LotID: 2, Total: 0},
	})
	if err != nil {
		t.Fatalf("write summary: %v", err)
	}
	out := b.String()
	for _, want := range []string{"Parking 1: 1,200.00", "Parking 2: 0.00", "Total: 1,200.00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
