package coordinator

import (
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/parkd/internal/ledger"
	"github.com/danmuck/parkd/internal/pricing"
)

// WriteSummary writes the per-lot earnings report printed on shutdown.
func WriteSummary(w io.Writer, earnings []ledger.LotEarnings) error {
	var b strings.Builder
	var grand pricing.Money
	b.WriteString("Earnings per parking lot:\n")
	for _, e := range earnings {
		fmt.Fprintf(&b, "  Parking %d: %s\n", e.LotID, e.Total.Grouped())
		grand += e.Total
	}
	fmt.Fprintf(&b, "  Total: %s\n", grand.Grouped())
	_, err := io.WriteString(w, b.String())
	return err
}
