package carver

import (
	"bytes"

	"github.com/junior2099/carve/internal/device"
	"github.com/junior2099/carve/internal/oracle"
	"github.com/junior2099/carve/internal/sig"
)

// VideoCarver runs the cap-bounded state machine for each video format.
// Containers carry no terminal marker, so a candidate ends at the next
// header of the same format or at the size ceiling, whichever comes first.
type VideoCarver struct {
	machines []*videoMachine
	oracle   oracle.Checker

	// OnFound, when set, observes every header match that opens a candidate.
	OnFound func(f sig.Format, start int64)
}

// NewVideoCarver builds a carver for the given cap-bounded signatures.
func NewVideoCarver(sigs []sig.Signature, ch oracle.Checker) *VideoCarver {
	c := &VideoCarver{oracle: ch}
	for i := range sigs {
		c.machines = append(c.machines, &videoMachine{sig: sigs[i]})
	}
	return c
}

// Process feeds one window to every format machine.
func (c *VideoCarver) Process(w device.Window) []Resolution {
	var out []Resolution
	for _, m := range c.machines {
		m.process(w, c, &out)
	}
	return out
}

// Finish promotes any still-open candidate bounded by the end of the
// device; end of stream cuts an unterminated container the same way the
// ceiling does, and the structural check still decides its fate.
func (c *VideoCarver) Finish() []Resolution {
	var out []Resolution
	for _, m := range c.machines {
		if m.active && len(m.buf) > 0 {
			out = append(out, c.resolve(m, m.buf))
			m.reset(m.start + int64(len(m.buf)))
		}
	}
	return out
}

func (c *VideoCarver) resolve(m *videoMachine, payload []byte) Resolution {
	r := Resolution{
		Format: m.sig.Format,
		Start:  m.start,
		End:    m.start + int64(len(payload)),
	}
	if c.oracle.QuickCheck(m.sig.Format, payload) {
		r.Payload = bytes.Clone(payload)
		r.Accepted = true
	} else {
		r.Reason = ValidationFailed
	}
	return r
}

// videoMachine is the per-format state machine. buf spans [start,
// consumed); hpos is the buf index from which the next same-format header
// search resumes.
type videoMachine struct {
	sig        sig.Signature
	active     bool
	start      int64
	consumed   int64
	buf        []byte
	hpos       int
	nextSearch int64
}

func (m *videoMachine) reset(resumeAt int64) {
	m.active = false
	m.buf = m.buf[:0]
	m.hpos = 0
	m.nextSearch = resumeAt
}

func (m *videoMachine) process(w device.Window, c *VideoCarver, out *[]Resolution) {
	data, base := w.Data, w.Base

	for {
		if !m.active {
			from := max64(m.nextSearch, base) - base
			if from >= int64(len(data)) {
				return
			}
			i := m.sig.Find(data, int(from))
			if i < 0 {
				m.nextSearch = max64(m.nextSearch, w.End()-int64(m.sig.Span())+1)
				return
			}
			m.active = true
			m.start = base + int64(i)
			m.buf = append(m.buf[:0], data[i:]...)
			m.consumed = w.End()
			m.hpos = 1
			if c.OnFound != nil {
				c.OnFound(m.sig.Format, m.start)
			}
			continue
		}

		if m.consumed < w.End() {
			m.buf = append(m.buf, data[m.consumed-base:]...)
			m.consumed = w.End()
		}

		// A later header of the same format closes this candidate at the
		// header's start and opens the next one there.
		if i := m.sig.Find(m.buf, m.hpos); i >= 0 && int64(i) <= m.sig.MaxSize {
			*out = append(*out, c.resolve(m, m.buf[:i]))
			m.start += int64(i)
			m.buf = m.buf[:copy(m.buf, m.buf[i:])]
			m.hpos = 1
			if c.OnFound != nil {
				c.OnFound(m.sig.Format, m.start)
			}
			continue
		}

		if int64(len(m.buf)) >= m.sig.MaxSize {
			// Ceiling reached: promote the capped candidate and resume
			// the header search at the cut point. Trailing data up to the
			// next true header is unrecoverable by construction.
			*out = append(*out, c.resolve(m, m.buf[:m.sig.MaxSize]))
			m.reset(m.start + m.sig.MaxSize)
			continue
		}

		if next := len(m.buf) - m.sig.Span() + 1; next > m.hpos {
			m.hpos = next
		}
		return
	}
}
