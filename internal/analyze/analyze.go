// Package analyze classifies how densely a scanned device is populated
// with recoverable files.
package analyze

import "fmt"

// Density is the population classification of a scanned device.
type Density uint8

const (
	Empty Density = iota // no recovered files at all
	Sparse
	Well
	Dense
)

var densityNames = [...]string{
	Empty:  "empty or freshly formatted",
	Sparse: "sparsely populated",
	Well:   "well populated",
	Dense:  "densely populated",
}

func (d Density) String() string {
	if int(d) < len(densityNames) {
		return densityNames[d]
	}
	return "unknown"
}

// Classify maps a completed scan to a Density. The density metric is
// recovered files per MiB scanned; thresholds are 0 exclusive for Empty,
// then (0,0.1) Sparse, [0.1,1.0] Well, above that Dense. Both boundary
// values fall in the Well band.
func Classify(files int64, bytesScanned int64) Density {
	if files == 0 || bytesScanned <= 0 {
		return Empty
	}
	density := FilesPerMiB(files, bytesScanned)
	switch {
	case density < 0.1:
		return Sparse
	case density <= 1.0:
		return Well
	default:
		return Dense
	}
}

// FilesPerMiB returns the density metric itself, for reporting.
func FilesPerMiB(files int64, bytesScanned int64) float64 {
	if bytesScanned <= 0 {
		return 0
	}
	return float64(files) / (float64(bytesScanned) / (1 << 20))
}

// Describe renders a one-line report fragment for the final summary.
func Describe(files int64, bytesScanned int64) string {
	d := Classify(files, bytesScanned)
	if d == Empty {
		return d.String()
	}
	return fmt.Sprintf("%s (%.3f files/MiB)", d, FilesPerMiB(files, bytesScanned))
}
