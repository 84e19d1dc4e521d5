package event

import (
	"time"

	"github.com/junior2099/carve/internal/sig"
)

// Type identifies the kind of event.
type Type int

const (
	ScanStarted Type = iota + 1
	BlockScanned
	CandidateFound
	FileRecovered
	CandidateDiscarded
	WriteFailed
	ScanComplete
)

var typeNames = [...]string{
	ScanStarted:        "ScanStarted",
	BlockScanned:       "BlockScanned",
	CandidateFound:     "CandidateFound",
	FileRecovered:      "FileRecovered",
	CandidateDiscarded: "CandidateDiscarded",
	WriteFailed:        "WriteFailed",
	ScanComplete:       "ScanComplete",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the scan session.
type Event struct {
	Type      Type
	Timestamp time.Time
	Format    sig.Format
	Start     int64  // absolute device offset of the candidate start
	End       int64  // absolute end offset, exclusive
	Name      string // assigned output name (FileRecovered, WriteFailed)
	Bytes     int64  // bytes scanned so far (BlockScanned, ScanComplete)
	Error     error
}
