package ui

import "github.com/junior2099/carve/internal/event"

// Event is re-exported so presenters and callers share one channel type.
type Event = event.Event

// Re-export event types for convenience.
const (
	ScanStarted        = event.ScanStarted
	BlockScanned       = event.BlockScanned
	CandidateFound     = event.CandidateFound
	FileRecovered      = event.FileRecovered
	CandidateDiscarded = event.CandidateDiscarded
	WriteFailed        = event.WriteFailed
	ScanComplete       = event.ScanComplete
)
