// Package carver implements the signature-driven extraction state machines
// and the scan session that feeds them from the block stream.
//
// Each format runs its own machine: at most one active candidate per
// format, with candidates of different formats free to overlap in byte
// range. Image formats resolve on their footer; video formats resolve on
// the next same-format header or the size ceiling.
package carver

import (
	"github.com/junior2099/carve/internal/device"
	"github.com/junior2099/carve/internal/sig"
)

// Reason explains how a candidate was resolved.
type Reason uint8

const (
	OK               Reason = iota // accepted by the oracle
	ValidationFailed               // oracle rejected the payload
	CeilingExceeded                // image footer never arrived within the ceiling
	Unterminated                   // stream ended with the candidate still open
)

var reasonNames = [...]string{
	OK:               "ok",
	ValidationFailed: "validation failed",
	CeilingExceeded:  "ceiling exceeded",
	Unterminated:     "unterminated at end of stream",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown"
}

// Resolution is one resolved candidate: either an accepted extraction
// carrying its payload, or a discard carrying only its bounds.
type Resolution struct {
	Format   sig.Format
	Start    int64 // absolute device offset, inclusive
	End      int64 // absolute device offset, exclusive
	Payload  []byte
	Accepted bool
	Reason   Reason
}

// Carver consumes stream windows in offset order and yields resolutions.
// Implementations are single-goroutine by contract; byte arrival order is
// load-bearing for all candidate bookkeeping.
type Carver interface {
	// Process feeds the next window and returns candidates resolved in it.
	Process(w device.Window) []Resolution
	// Finish resolves or discards any still-open candidates at end of stream.
	Finish() []Resolution
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
