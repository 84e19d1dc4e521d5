package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/junior2099/carve/internal/stats"
)

// plainPresenter outputs one line per recovered file to stdout,
// and periodic progress to stderr when not a TTY.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   stats.ReadTicker
	verbose bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			if ticks++; ticks%5 == 0 {
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case FileRecovered:
		fmt.Fprintf(p.w, "%s  %s  %s  @%d\n",
			ev.Name, ev.Format, FormatBytes(ev.Bytes), ev.Start)
	case WriteFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "%s  %s  %s\n", ev.Name, ev.Format, errMsg)
	case CandidateFound:
		if p.verbose {
			fmt.Fprintf(p.errW, "candidate: %s @%d\n", ev.Format, ev.Start)
		}
	case CandidateDiscarded:
		if p.verbose {
			fmt.Fprintf(p.errW, "discarded: %s @%d..%d\n", ev.Format, ev.Start, ev.End)
		}
	case ScanStarted, BlockScanned, ScanComplete:
		// progress comes from the ticker
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	speed := p.stats.RollingSpeed(10)
	if snap.DeviceSize > 0 {
		pct := float64(snap.BytesScanned) / float64(snap.DeviceSize) * 100
		eta := p.stats.ETA()
		fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s  %s files  %s eta %s\n",
			pct,
			FormatBytes(snap.BytesScanned), FormatBytes(snap.DeviceSize),
			FormatCount(snap.TotalRecovered()),
			FormatRate(speed),
			FormatETA(eta),
		)
	} else {
		fmt.Fprintf(p.errW, "progress: %s scanned  %s files  %s\n",
			FormatBytes(snap.BytesScanned),
			FormatCount(snap.TotalRecovered()),
			FormatRate(speed),
		)
	}
}

func (p *plainPresenter) Summary() string {
	return completionSummary(p.stats.Snapshot())
}
