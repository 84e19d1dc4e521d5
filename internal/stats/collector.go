// Package stats tracks scan counters with lock-free atomics plus a small
// ring buffer of per-second throughput samples for progress display.
package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/junior2099/carve/internal/sig"
)

const ringSize = 60

// formatSlots covers every sig.Format value.
const formatSlots = int(sig.FLV) + 1

// Collector tracks scan statistics. Counter methods are safe for
// concurrent use; Tick is called only by the presenter.
type Collector struct {
	bytesScanned  atomic.Int64
	blocksRead    atomic.Int64
	deviceSize    atomic.Int64
	found         [formatSlots]atomic.Int64 // header matches that opened a candidate
	recovered     [formatSlots]atomic.Int64
	discarded     [formatSlots]atomic.Int64 // validation failures + abandoned candidates
	bytesRescued  atomic.Int64
	writeFailures atomic.Int64
	duplicates    atomic.Int64
	startTime     time.Time

	// Ring buffer written only by the presenter's Tick, never by the scan.
	mu         sync.Mutex
	throughput [ringSize]int64 // scanned bytes delta per second
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Reader is the read-only view presenters use.
type Reader interface {
	Snapshot() Snapshot
}

// ReadTicker adds the per-second sampling hooks used by progress display.
type ReadTicker interface {
	Reader
	Tick()
	RollingSpeed(seconds int) float64
	SparklineData(n int) []float64
	ETA() time.Duration
	Elapsed() time.Duration
}

func (c *Collector) AddBytesScanned(n int64) { c.bytesScanned.Add(n) }
func (c *Collector) AddBlocksRead(n int64)   { c.blocksRead.Add(n) }
func (c *Collector) AddBytesRescued(n int64) { c.bytesRescued.Add(n) }
func (c *Collector) AddWriteFailed(n int64)  { c.writeFailures.Add(n) }
func (c *Collector) AddDuplicate(n int64)    { c.duplicates.Add(n) }

func (c *Collector) AddFound(f sig.Format)     { c.found[f].Add(1) }
func (c *Collector) AddRecovered(f sig.Format) { c.recovered[f].Add(1) }
func (c *Collector) AddDiscarded(f sig.Format) { c.discarded[f].Add(1) }

// SetDeviceSize records the device size once known (may stay 0 for
// compressed images until the scan completes).
func (c *Collector) SetDeviceSize(n int64) {
	if n > 0 {
		c.deviceSize.Store(n)
	}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	BytesScanned  int64
	BlocksRead    int64
	DeviceSize    int64
	Found         [formatSlots]int64
	Recovered     [formatSlots]int64
	Discarded     [formatSlots]int64
	BytesRescued  int64
	WriteFailures int64
	Duplicates    int64
	Elapsed       time.Duration
}

// TotalFound sums opened candidates across formats.
func (s Snapshot) TotalFound() int64 {
	var n int64
	for i := range s.Found {
		n += s.Found[i]
	}
	return n
}

// TotalRecovered sums recoveries across formats.
func (s Snapshot) TotalRecovered() int64 {
	var n int64
	for i := range s.Recovered {
		n += s.Recovered[i]
	}
	return n
}

// TotalDiscarded sums discards across formats.
func (s Snapshot) TotalDiscarded() int64 {
	var n int64
	for i := range s.Discarded {
		n += s.Discarded[i]
	}
	return n
}

func (s Snapshot) String() string {
	return fmt.Sprintf("scanned=%d blocks=%d recovered=%d discarded=%d rescued_bytes=%d write_failures=%d",
		s.BytesScanned, s.BlocksRead, s.TotalRecovered(), s.TotalDiscarded(),
		s.BytesRescued, s.WriteFailures)
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		BytesScanned:  c.bytesScanned.Load(),
		BlocksRead:    c.blocksRead.Load(),
		DeviceSize:    c.deviceSize.Load(),
		BytesRescued:  c.bytesRescued.Load(),
		WriteFailures: c.writeFailures.Load(),
		Duplicates:    c.duplicates.Load(),
		Elapsed:       c.Elapsed(),
	}
	for i := 0; i < formatSlots; i++ {
		s.Found[i] = c.found[i].Load()
		s.Recovered[i] = c.recovered[i].Load()
		s.Discarded[i] = c.discarded[i].Load()
	}
	return s
}

// Tick snapshots the scanned-bytes delta into the ring buffer. Called
// once per second by the presenter.
func (c *Collector) Tick() {
	current := c.bytesScanned.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average scanned bytes/sec over the last n samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := seconds
	if count > c.ringCount {
		count = c.ringCount
	}
	if count == 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns the last n per-second throughput samples,
// oldest first, for sparkline rendering.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n > c.ringCount {
		n = c.ringCount
	}
	out := make([]float64, n)
	for i := range n {
		idx := (c.ringIdx - n + i + ringSize) % ringSize
		out[i] = float64(c.throughput[idx])
	}
	return out
}

// ETA estimates remaining scan time from rolling speed and the unscanned
// remainder of the device. Zero when the device size is unknown.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.deviceSize.Load() - c.bytesScanned.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
