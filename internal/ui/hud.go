package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/junior2099/carve/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

const (
	sparklineWidth   = 20
	progressBarWidth = 20 // minimum; wide terminals get more via hudBarWidth
	maxBarWidth      = 60
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
)

// hudBarWidth sizes the progress bar from the terminal column count,
// leaving room for the counters that share the line.
func hudBarWidth(cols int) int {
	w := cols / 4
	if w < progressBarWidth {
		return progressBarWidth
	}
	if w > maxBarWidth {
		return maxBarWidth
	}
	return w
}

// hudPresenter provides a rich TTY display with a scrolling feed of
// recovered files and a 2-line HUD that redraws in place.
type hudPresenter struct {
	w        io.Writer
	stats    stats.ReadTicker
	verbose  bool
	barWidth int // 0 means progressBarWidth

	// Internal state.
	hudDrawn     bool
	hudLineCount int // actual number of lines in the last HUD draw
	lastHUDDraw  time.Time
}

func (p *hudPresenter) Run(events <-chan Event) error {
	// Fire first tick quickly to seed the ring buffer with initial speed
	// data, then switch to 1s interval.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	// Redraw ticker for when no events are flowing (long empty stretches).
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(1 * time.Second)
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case FileRecovered:
		p.clearHUD()
		fmt.Fprintf(p.w, "✓  %s  %10s  %s\n",
			ev.Name, FormatBytes(ev.Bytes), ev.Format)
		p.drawHUD() // always redraw HUD after feed line

	case WriteFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		p.clearHUD()
		fmt.Fprintf(p.w, "✗  %s  %s\n", ev.Name, errMsg)
		p.drawHUD()

	case CandidateFound:
		if p.verbose {
			p.clearHUD()
			fmt.Fprintf(p.w, "%s?  %s header @%d%s\n", ansiDim, ev.Format, ev.Start, ansiReset)
			p.drawHUD()
		}

	case CandidateDiscarded:
		if p.verbose {
			p.clearHUD()
			fmt.Fprintf(p.w, "%s–  %s @%d..%d discarded%s\n",
				ansiDim, ev.Format, ev.Start, ev.End, ansiReset)
			p.drawHUD()
		}

	case ScanStarted, BlockScanned, ScanComplete:
		// counters drive the HUD; nothing to print
	}
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	now := time.Now()
	if now.Sub(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()

	// Clear previous HUD if drawn.
	p.clearHUD()

	speed := p.stats.RollingSpeed(10)
	eta := p.stats.ETA()

	lines := 0

	// Line 1: throughput sparkline + speed + byte totals.
	spark := Sparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth)
	if snap.DeviceSize > 0 {
		fmt.Fprintf(p.w, "       %s   %s   %s / %s\n",
			spark, FormatRate(speed),
			FormatBytes(snap.BytesScanned), FormatBytes(snap.DeviceSize))
	} else {
		fmt.Fprintf(p.w, "       %s   %s   %s scanned\n",
			spark, FormatRate(speed), FormatBytes(snap.BytesScanned))
	}
	lines++

	// Line 2: progress bar + found/recovered/discarded counters + ETA.
	if snap.DeviceSize > 0 {
		bar := p.barWidth
		if bar == 0 {
			bar = progressBarWidth
		}
		pct := float64(snap.BytesScanned) / float64(snap.DeviceSize)
		fmt.Fprintf(p.w, "%3.0f%%   %s   found %s  recovered %s  discarded %s  eta %s\n",
			pct*100,
			ProgressBar(pct, bar),
			FormatCount(snap.TotalFound()),
			FormatCount(snap.TotalRecovered()),
			FormatCount(snap.TotalDiscarded()),
			FormatETA(eta))
	} else {
		fmt.Fprintf(p.w, "       found %s  recovered %s  discarded %s\n",
			FormatCount(snap.TotalFound()),
			FormatCount(snap.TotalRecovered()),
			FormatCount(snap.TotalDiscarded()))
	}
	lines++

	p.hudDrawn = true
	p.hudLineCount = lines
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	for range p.hudLineCount {
		fmt.Fprint(p.w, "\033[1A\033[2K")
	}
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return completionSummary(p.stats.Snapshot())
}
