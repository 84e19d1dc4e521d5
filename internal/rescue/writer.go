// Package rescue persists accepted carve payloads under collision-free
// names in the configured output directory.
package rescue

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/junior2099/carve/internal/sig"
)

// WriteError marks a persistence failure for one accepted candidate. It is
// reported but never aborts the scan.
type WriteError struct {
	Name string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Name, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Options controls a Writer.
type Options struct {
	Dedupe bool // skip payloads whose digest was already written this run
	DryRun bool // assign names and digests but write nothing
}

// Saved describes the outcome of one Save call.
type Saved struct {
	Name      string
	Path      string
	Size      int64
	Digest    string // hex BLAKE3 of the payload
	Written   bool
	Duplicate bool
}

// Writer assigns unique names and persists payloads. Safe for use from a
// pipelined session: Save calls never interleave identifier assignment.
type Writer struct {
	dir  string
	opts Options

	mu      sync.Mutex
	created bool
	seen    map[string]struct{}

	now     func() time.Time // test hook
	newUUID func() string    // test hook
}

// NewWriter creates a Writer targeting dir. The directory is created on
// first persisted payload, not up front.
func NewWriter(dir string, opts Options) *Writer {
	return &Writer{
		dir:     dir,
		opts:    opts,
		seen:    make(map[string]struct{}),
		now:     time.Now,
		newUUID: func() string { return uuid.New().String() },
	}
}

// Save persists payload under a fresh unique name and returns its record.
// Duplicate payloads (when dedupe is on) and dry runs return a Saved with
// Written false and no error. A failed write returns *WriteError.
func (w *Writer) Save(format sig.Format, payload []byte) (Saved, error) {
	digest := blake3.Sum256(payload)
	s := Saved{
		Size:   int64(len(payload)),
		Digest: hex.EncodeToString(digest[:]),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.opts.Dedupe {
		if _, ok := w.seen[s.Digest]; ok {
			s.Duplicate = true
			return s, nil
		}
		w.seen[s.Digest] = struct{}{}
	}

	s.Name = w.uniqueName(format)
	s.Path = filepath.Join(w.dir, s.Name)

	if w.opts.DryRun {
		return s, nil
	}

	if !w.created {
		if err := os.MkdirAll(w.dir, 0755); err != nil {
			return s, &WriteError{Name: s.Name, Err: err}
		}
		w.created = true
	}

	f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		// Same-second collision on the random fragment; a fresh name
		// resolves it.
		s.Name = w.uniqueName(format)
		s.Path = filepath.Join(w.dir, s.Name)
		f, err = os.OpenFile(s.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	}
	if err != nil {
		return s, &WriteError{Name: s.Name, Err: err}
	}

	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(s.Path)
		return s, &WriteError{Name: s.Name, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(s.Path)
		return s, &WriteError{Name: s.Name, Err: err}
	}

	s.Written = true
	return s, nil
}

// uniqueName combines a collection timestamp with a random disambiguator.
func (w *Writer) uniqueName(format sig.Format) string {
	stamp := w.now().Format("20060102_150405")
	return fmt.Sprintf("rescued_%s_%s.%s", stamp, w.newUUID()[:8], format.Ext())
}
