package ui

import (
	"fmt"

	"github.com/junior2099/carve/internal/stats"
)

// completionSummary builds a final summary line from a snapshot.
// Format: done ✓  recovered 312  rescued 2.1 GiB  scanned 64.0 GiB  avg 641 MB/s  time 3m 17s  errors 0
func completionSummary(snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesScanned) / snap.Elapsed.Seconds()
	}

	icon := "✓"
	if snap.WriteFailures > 0 {
		icon = "✗"
	}

	base := fmt.Sprintf("done %s  recovered %s  rescued %s  scanned %s  avg %s  time %s",
		icon,
		FormatCount(snap.TotalRecovered()),
		FormatBytes(snap.BytesRescued),
		FormatBytes(snap.BytesScanned),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)

	if snap.Duplicates > 0 {
		base += fmt.Sprintf("  duplicates %s", FormatCount(snap.Duplicates))
	}

	base += fmt.Sprintf("  errors %d", snap.WriteFailures)

	return base
}
