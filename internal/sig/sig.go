package sig

import "bytes"

// Format identifies a carvable file format.
type Format uint8

const (
	JPEG Format = iota
	PNG
	MP4
	AVI
	MKV
	FLV
)

var formatNames = [...]string{
	JPEG: "jpeg",
	PNG:  "png",
	MP4:  "mp4",
	AVI:  "avi",
	MKV:  "mkv",
	FLV:  "flv",
}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "unknown"
}

// Ext returns the output file extension for the format, without the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return "jpg"
	}
	return f.String()
}

// IsVideo reports whether the format is carved by the video (cap-bounded)
// policy rather than the image (footer-bounded) policy.
func (f Format) IsVideo() bool {
	return f >= MP4
}

// Default extraction ceilings. Images are footer-bounded, so the ceiling
// only limits runaway candidates whose footer never appears. Videos carry
// no terminal marker and are cut at the ceiling when no later header of
// the same format shows up first.
const (
	DefaultImageMax = 256 << 20 // 256 MiB
	DefaultVideoMax = 2 << 30   // 2 GiB
)

// Signature describes the magic bytes and extraction policy for one format.
// Header holds the invariant bytes of the start-of-file pattern; HeaderAt is
// their offset from the true file start (MP4's "ftyp" tag sits after a
// 4-byte box size). Tail, when present, is a second invariant run that must
// also match (AVI's "AVI " tag after the RIFF size field). A nil Footer
// means cap-bounded extraction.
type Signature struct {
	Format   Format
	Header   []byte
	HeaderAt int
	Tail     []byte
	TailAt   int
	Footer   []byte
	MaxSize  int64
}

// FooterBounded reports whether extraction ends at a footer match rather
// than at the next header or the size ceiling.
func (s *Signature) FooterBounded() bool {
	return s.Footer != nil
}

// Span is the number of leading file bytes the matcher must observe
// contiguously to confirm a header match.
func (s *Signature) Span() int {
	n := s.HeaderAt + len(s.Header)
	if t := s.TailAt + len(s.Tail); t > n {
		n = t
	}
	return n
}

// Find locates the first confirmed header match in b at or after from,
// returning the file-start index. Returns -1 when no confirmable match
// exists in b; a pattern truncated by the end of b is not a match (the
// reader's boundary carry re-presents it in the next window).
func (s *Signature) Find(b []byte, from int) int {
	if from < 0 {
		from = 0
	}
	pos := from + s.HeaderAt
	for {
		i := bytes.Index(b[pos:], s.Header)
		if i < 0 {
			return -1
		}
		i += pos
		start := i - s.HeaderAt
		if start < from {
			pos = i + 1
			continue
		}
		if start+s.Span() > len(b) {
			return -1
		}
		if s.Tail != nil && !bytes.Equal(b[start+s.TailAt:start+s.TailAt+len(s.Tail)], s.Tail) {
			pos = i + 1
			continue
		}
		return start
	}
}

// FindFooter locates the first footer match in b at or after from.
// Returns -1 for cap-bounded signatures or when absent.
func (s *Signature) FindFooter(b []byte, from int) int {
	if s.Footer == nil {
		return -1
	}
	if from < 0 {
		from = 0
	}
	i := bytes.Index(b[from:], s.Footer)
	if i < 0 {
		return -1
	}
	return i + from
}

// Images returns the footer-bounded signature set, freshly allocated so a
// session may adjust ceilings without affecting other sessions.
func Images() []Signature {
	return []Signature{
		{
			Format:  JPEG,
			Header:  []byte{0xFF, 0xD8},
			Footer:  []byte{0xFF, 0xD9},
			MaxSize: DefaultImageMax,
		},
		{
			Format:  PNG,
			Header:  []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
			Footer:  []byte{0x49, 0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82},
			MaxSize: DefaultImageMax,
		},
	}
}

// Videos returns the cap-bounded signature set.
func Videos() []Signature {
	return []Signature{
		{
			Format:   MP4,
			Header:   []byte{0x66, 0x74, 0x79, 0x70}, // "ftyp" after the box size
			HeaderAt: 4,
			MaxSize:  DefaultVideoMax,
		},
		{
			Format:  AVI,
			Header:  []byte{0x52, 0x49, 0x46, 0x46}, // "RIFF"
			Tail:    []byte{0x41, 0x56, 0x49, 0x20}, // "AVI " after the size field
			TailAt:  8,
			MaxSize: DefaultVideoMax,
		},
		{
			Format:  MKV,
			Header:  []byte{0x1A, 0x45, 0xDF, 0xA3},
			MaxSize: DefaultVideoMax,
		},
		{
			Format:  FLV,
			Header:  []byte{0x46, 0x4C, 0x56, 0x01},
			MaxSize: DefaultVideoMax,
		},
	}
}

// MaxSpan returns the longest header span plus the longest footer length
// across sigs. The block reader carries MaxSpan-1 trailing bytes between
// physical reads so no pattern is lost on a boundary.
func MaxSpan(sigs []Signature) int {
	max := 0
	for i := range sigs {
		if n := sigs[i].Span(); n > max {
			max = n
		}
		if n := len(sigs[i].Footer); n > max {
			max = n
		}
	}
	return max
}
