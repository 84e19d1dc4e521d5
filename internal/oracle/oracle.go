// Package oracle decides whether carved payloads are structurally sound.
// Image payloads get a full decode check through the standard codecs; video
// payloads get a lightweight container check only, since a full decode of a
// multi-gigabyte carve is not worth the cost for a keep/discard decision.
package oracle

import (
	"bytes"
	"encoding/binary"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/junior2099/carve/internal/sig"
)

// Validator is the decode-validation capability for image payloads. Any
// implementation that can parse-check the format satisfies the contract.
type Validator interface {
	Validate(format sig.Format, payload []byte) bool
}

// Checker is the structural-check capability for video payloads. It
// verifies minimal container well-formedness, never a full decode.
type Checker interface {
	QuickCheck(format sig.Format, payload []byte) bool
}

// StdlibValidator validates images by decoding them with the registered
// standard-library codecs.
type StdlibValidator struct{}

// Validate reports whether payload decodes as the given image format.
func (StdlibValidator) Validate(format sig.Format, payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	_, name, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return false
	}
	return name == format.String()
}

// BoxChecker performs per-container structural checks on video payloads.
type BoxChecker struct{}

// QuickCheck reports whether payload opens with a plausible container
// structure for the given video format.
func (BoxChecker) QuickCheck(format sig.Format, payload []byte) bool {
	switch format {
	case sig.MP4:
		return checkMP4(payload)
	case sig.AVI:
		return checkAVI(payload)
	case sig.MKV:
		return checkMKV(payload)
	case sig.FLV:
		return checkFLV(payload)
	default:
		return false
	}
}

var ftyp = []byte("ftyp")

// checkMP4 walks the leading box headers: the first box must be ftyp, every
// box needs a size of at least 8 and a printable-ASCII type tag.
func checkMP4(b []byte) bool {
	if len(b) < 8 {
		return false
	}
	off := 0
	boxes := 0
	for off+8 <= len(b) && boxes < 4 {
		size := binary.BigEndian.Uint32(b[off : off+4])
		typ := b[off+4 : off+8]
		if boxes == 0 && !bytes.Equal(typ, ftyp) {
			return false
		}
		if size < 8 || !printableASCII(typ) {
			return boxes > 0
		}
		off += int(size)
		boxes++
	}
	return boxes > 0
}

// checkAVI verifies the RIFF/AVI framing and that the declared RIFF size
// is not absurd relative to the payload.
func checkAVI(b []byte) bool {
	if len(b) < 12 {
		return false
	}
	if !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("AVI ")) {
		return false
	}
	declared := int64(binary.LittleEndian.Uint32(b[4:8]))
	// The size field counts everything after itself; zero means a writer
	// died before finalizing, which is exactly what carving recovers, so
	// only reject sizes smaller than the mandatory AVI  tag.
	return declared == 0 || declared >= 4
}

// checkMKV verifies the EBML magic and that the first element length is a
// valid variable-length integer.
func checkMKV(b []byte) bool {
	if len(b) < 5 {
		return false
	}
	if !bytes.Equal(b[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		return false
	}
	// The byte after the magic encodes the EBML header length as a vint;
	// its leading bit pattern must declare a width of 1..8 bytes.
	return vintWidth(b[4]) > 0
}

// checkFLV verifies signature, version, and the fixed 9-byte header length.
func checkFLV(b []byte) bool {
	if len(b) < 9 {
		return false
	}
	if !bytes.Equal(b[0:3], []byte("FLV")) || b[3] != 0x01 {
		return false
	}
	// Flags: only audio/video bits may be set; header length is always 9.
	if b[4]&^0x05 != 0 {
		return false
	}
	return binary.BigEndian.Uint32(b[5:9]) == 9
}

func printableASCII(v []byte) bool {
	for _, c := range v {
		if c < ' ' || c > '~' {
			return false
		}
	}
	return true
}

// vintWidth returns the byte width declared by the leading bits of an EBML
// variable-length integer, or 0 when invalid.
func vintWidth(b byte) int {
	for w := 1; w <= 8; w++ {
		if b&(0x80>>(w-1)) != 0 {
			return w
		}
	}
	return 0
}
