package carver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/junior2099/carve/internal/analyze"
	"github.com/junior2099/carve/internal/device"
	"github.com/junior2099/carve/internal/event"
	"github.com/junior2099/carve/internal/manifest"
	"github.com/junior2099/carve/internal/oracle"
	"github.com/junior2099/carve/internal/rescue"
	"github.com/junior2099/carve/internal/sig"
	"github.com/junior2099/carve/internal/stats"
)

// Mode selects which carver set drives a session. The two extraction
// policies assume different offset bookkeeping and never interleave.
type Mode uint8

const (
	ModeImage Mode = iota
	ModeVideo
)

func (m Mode) String() string {
	if m == ModeVideo {
		return "video"
	}
	return "image"
}

// Config describes a scan session.
type Config struct {
	DevicePath string
	OutputDir  string
	Mode       Mode
	BlockSize  int   // 0 means device.DefaultBlockSize
	Offset     int64 // read start offset
	ImageMax   int64 // image safety ceiling override, 0 keeps the default
	VideoMax   int64 // video cap override, 0 keeps the default
	BWLimit    int64 // bytes/sec read throttle, 0 means unthrottled
	Dedupe     bool
	DryRun     bool

	Events    chan<- event.Event // optional progress stream
	Stats     *stats.Collector   // optional counters
	Manifest  *manifest.DB       // optional run manifest
	Validator oracle.Validator   // defaults to oracle.StdlibValidator
	Checker   oracle.Checker     // defaults to oracle.BoxChecker
}

// RecoveredFile is one accepted extraction in the session result set.
type RecoveredFile struct {
	Format  sig.Format
	Start   int64
	End     int64
	Name    string
	Size    int64
	Written bool
}

// Report is the outcome of a completed (or cleanly stopped) scan.
type Report struct {
	Files        []RecoveredFile
	BytesScanned int64
	DeviceSize   int64
	Density      analyze.Density
	Stats        stats.Snapshot
}

// Result pairs a Report with the terminal error, if any. Partial results
// are always populated; only a failed device open yields an empty report.
type Result struct {
	Report Report
	Err    error
}

// Run executes one scan session, blocking until end of device,
// cancellation, or a read failure.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Validator == nil {
		cfg.Validator = oracle.StdlibValidator{}
	}
	if cfg.Checker == nil {
		cfg.Checker = oracle.BoxChecker{}
	}

	sigs, carver := buildCarver(cfg)

	var limiter *rate.Limiter
	if cfg.BWLimit > 0 {
		limiter = device.NewLimiter(cfg.BWLimit)
	}

	r, err := device.Open(cfg.DevicePath, device.Options{
		BlockSize: cfg.BlockSize,
		Carry:     sig.MaxSpan(sigs) - 1,
		Offset:    cfg.Offset,
		Limiter:   limiter,
	})
	if err != nil {
		return Result{Err: err}
	}
	defer r.Close()

	cfg.Stats.SetDeviceSize(r.Size())

	s := &session{
		cfg:    cfg,
		writer: rescue.NewWriter(cfg.OutputDir, rescue.Options{Dedupe: cfg.Dedupe, DryRun: cfg.DryRun}),
	}
	s.emit(event.Event{Type: event.ScanStarted})

	var scanErr error
	for {
		w, err := r.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.handle(carver.Finish())
				break
			}
			if ctx.Err() != nil {
				// Cooperative cancellation at a block boundary: open
				// candidates are dropped, resolved results stay valid.
				slog.Info("scan cancelled", "offset", r.BytesScanned())
				scanErr = ctx.Err()
				break
			}
			// Mid-scan read failure terminates the loop but keeps
			// everything carved so far.
			slog.Warn("read failed, keeping partial results", "error", err)
			scanErr = err
			s.handle(carver.Finish())
			break
		}

		s.handle(carver.Process(w))

		cfg.Stats.AddBlocksRead(1)
		scanned := r.BytesScanned()
		cfg.Stats.AddBytesScanned(scanned - s.lastScanned)
		s.lastScanned = scanned
		s.emit(event.Event{Type: event.BlockScanned, Bytes: scanned})
	}

	report := Report{
		Files:        s.files,
		BytesScanned: r.BytesScanned(),
		DeviceSize:   r.Size(),
		Density:      analyze.Classify(int64(len(s.files)), r.BytesScanned()),
		Stats:        cfg.Stats.Snapshot(),
	}
	s.emit(event.Event{Type: event.ScanComplete, Bytes: report.BytesScanned})

	return Result{Report: report, Err: scanErr}
}

func buildCarver(cfg Config) ([]sig.Signature, Carver) {
	if cfg.Mode == ModeVideo {
		sigs := sig.Videos()
		if cfg.VideoMax > 0 {
			for i := range sigs {
				sigs[i].MaxSize = cfg.VideoMax
			}
		}
		c := NewVideoCarver(sigs, cfg.Checker)
		c.OnFound = onFound(cfg)
		return sigs, c
	}

	sigs := sig.Images()
	if cfg.ImageMax > 0 {
		for i := range sigs {
			sigs[i].MaxSize = cfg.ImageMax
		}
	}
	c := NewImageCarver(sigs, cfg.Validator)
	c.OnFound = onFound(cfg)
	return sigs, c
}

func onFound(cfg Config) func(f sig.Format, start int64) {
	return func(f sig.Format, start int64) {
		cfg.Stats.AddFound(f)
		if cfg.Events != nil {
			cfg.Events <- event.Event{
				Type: event.CandidateFound, Timestamp: time.Now(),
				Format: f, Start: start,
			}
		}
	}
}

// session carries the mutable result-set state for one Run.
type session struct {
	cfg         Config
	writer      *rescue.Writer
	files       []RecoveredFile
	lastScanned int64
}

func (s *session) emit(ev event.Event) {
	if s.cfg.Events == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.cfg.Events <- ev
}

// handle applies carver resolutions: accepted candidates get persisted and
// recorded, discards get counted. Write failures are reported and the scan
// continues.
func (s *session) handle(resolutions []Resolution) {
	for _, res := range resolutions {
		if !res.Accepted {
			s.cfg.Stats.AddDiscarded(res.Format)
			slog.Debug("candidate discarded",
				"format", res.Format.String(),
				"start", res.Start, "end", res.End,
				"reason", res.Reason.String(),
			)
			s.emit(event.Event{
				Type:   event.CandidateDiscarded,
				Format: res.Format, Start: res.Start, End: res.End,
			})
			continue
		}

		saved, err := s.writer.Save(res.Format, res.Payload)
		if err != nil {
			s.cfg.Stats.AddWriteFailed(1)
			slog.Error("failed to persist recovered file",
				"format", res.Format.String(), "start", res.Start, "error", err)
			s.emit(event.Event{
				Type:   event.WriteFailed,
				Format: res.Format, Start: res.Start, End: res.End,
				Name: saved.Name, Error: err,
			})
			// Unwritten entries still belong to the result set.
		}
		if saved.Duplicate {
			s.cfg.Stats.AddDuplicate(1)
			slog.Debug("duplicate payload skipped",
				"format", res.Format.String(), "start", res.Start, "digest", saved.Digest)
			continue
		}

		f := RecoveredFile{
			Format: res.Format,
			Start:  res.Start,
			End:    res.End,
			Name:   saved.Name,
			Size:   saved.Size,
			Written: saved.Written,
		}
		s.files = append(s.files, f)
		s.cfg.Stats.AddRecovered(res.Format)
		if saved.Written {
			s.cfg.Stats.AddBytesRescued(saved.Size)
		}

		if s.cfg.Manifest != nil {
			if mErr := s.cfg.Manifest.Record(manifest.Entry{
				Name: saved.Name, Format: res.Format.String(),
				Start: res.Start, End: res.End, Size: saved.Size,
				Digest: saved.Digest, Written: saved.Written,
			}); mErr != nil {
				slog.Warn("manifest record failed", "error", mErr)
			}
		}

		if err == nil {
			s.emit(event.Event{
				Type:   event.FileRecovered,
				Format: res.Format, Start: res.Start, End: res.End,
				Name: saved.Name, Bytes: saved.Size,
			})
		}
	}
}
