package carver

import (
	"bytes"

	"github.com/junior2099/carve/internal/device"
	"github.com/junior2099/carve/internal/oracle"
	"github.com/junior2099/carve/internal/sig"
)

// ImageCarver runs the footer-bounded state machine for each image format.
// A candidate is resolved by the first footer occurrence after its header;
// by policy no later footer is ever retried, preferring a truncated carve
// over merging two distinct files.
type ImageCarver struct {
	machines []*imageMachine
	oracle   oracle.Validator

	// OnFound, when set, observes every header match that opens a candidate.
	OnFound func(f sig.Format, start int64)
}

// NewImageCarver builds a carver for the given footer-bounded signatures.
func NewImageCarver(sigs []sig.Signature, v oracle.Validator) *ImageCarver {
	c := &ImageCarver{oracle: v}
	for i := range sigs {
		c.machines = append(c.machines, &imageMachine{sig: sigs[i]})
	}
	return c
}

// Process feeds one window to every format machine.
func (c *ImageCarver) Process(w device.Window) []Resolution {
	var out []Resolution
	for _, m := range c.machines {
		m.process(w, c, &out)
	}
	return out
}

// Finish discards any candidate still accumulating: its footer never
// arrived, and partial extractions are never emitted.
func (c *ImageCarver) Finish() []Resolution {
	var out []Resolution
	for _, m := range c.machines {
		if m.active {
			out = append(out, Resolution{
				Format: m.sig.Format,
				Start:  m.start,
				End:    m.start + int64(len(m.buf)),
				Reason: Unterminated,
			})
			m.reset(m.start + int64(len(m.buf)))
		}
	}
	return out
}

func (c *ImageCarver) resolve(m *imageMachine, payload []byte) Resolution {
	r := Resolution{
		Format: m.sig.Format,
		Start:  m.start,
		End:    m.start + int64(len(payload)),
	}
	if c.oracle.Validate(m.sig.Format, payload) {
		r.Payload = bytes.Clone(payload)
		r.Accepted = true
	} else {
		r.Reason = ValidationFailed
	}
	return r
}

// imageMachine is the per-format Idle/Accumulating state machine. All
// offsets are absolute device positions; buf always spans [start, consumed).
type imageMachine struct {
	sig        sig.Signature
	active     bool
	start      int64
	consumed   int64  // absolute offset up to which bytes were accumulated
	buf        []byte // candidate bytes, header inclusive
	fpos       int    // buf index from which the footer search resumes
	nextSearch int64  // absolute offset where the header search may resume
}

func (m *imageMachine) reset(resumeAt int64) {
	m.active = false
	m.buf = m.buf[:0]
	m.fpos = 0
	m.nextSearch = resumeAt
}

func (m *imageMachine) process(w device.Window, c *ImageCarver, out *[]Resolution) {
	data, base := w.Data, w.Base

	for {
		if !m.active {
			from := max64(m.nextSearch, base) - base
			if from >= int64(len(data)) {
				return
			}
			i := m.sig.Find(data, int(from))
			if i < 0 {
				// The window tail shorter than the pattern span is
				// re-presented by the carry; never search it twice.
				m.nextSearch = max64(m.nextSearch, w.End()-int64(m.sig.Span())+1)
				return
			}
			m.active = true
			m.start = base + int64(i)
			m.buf = append(m.buf[:0], data[i:]...)
			m.consumed = w.End()
			m.fpos = m.sig.Span()
			if c.OnFound != nil {
				c.OnFound(m.sig.Format, m.start)
			}
			continue
		}

		// Accumulating: take in any window bytes not yet buffered.
		if m.consumed < w.End() {
			m.buf = append(m.buf, data[m.consumed-base:]...)
			m.consumed = w.End()
		}

		f := m.sig.FindFooter(m.buf, m.fpos)
		if f >= 0 {
			end := f + len(m.sig.Footer)
			if int64(end) <= m.sig.MaxSize {
				*out = append(*out, c.resolve(m, m.buf[:end]))
				m.reset(m.start + int64(end))
				continue
			}
			// First footer already past the ceiling: same as no footer.
		}

		if int64(len(m.buf)) > m.sig.MaxSize {
			// Abandon; the header search resumes from the abandonment
			// point, never rescanning consumed candidate bytes.
			*out = append(*out, Resolution{
				Format: m.sig.Format,
				Start:  m.start,
				End:    m.consumed,
				Reason: CeilingExceeded,
			})
			m.reset(m.consumed)
			continue
		}

		// Footer may straddle into the next window; keep its possible
		// prefix in range for the next search.
		if next := len(m.buf) - len(m.sig.Footer) + 1; next > m.fpos {
			m.fpos = next
		}
		return
	}
}
