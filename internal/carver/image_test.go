package carver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junior2099/carve/internal/device"
	"github.com/junior2099/carve/internal/sig"
)

// acceptAll and rejectAll stand in for the decode oracle so machine
// mechanics can be tested with synthetic payloads.
type acceptAll struct{}

func (acceptAll) Validate(sig.Format, []byte) bool   { return true }
func (acceptAll) QuickCheck(sig.Format, []byte) bool { return true }

type rejectAll struct{}

func (rejectAll) Validate(sig.Format, []byte) bool   { return false }
func (rejectAll) QuickCheck(sig.Format, []byte) bool { return false }

// windows slices data into stream windows the way the block reader would:
// block-sized reads with the trailing carry bytes repeated in front of
// every window after the first.
func windows(data []byte, block, carry int) []device.Window {
	var out []device.Window
	for off := 0; off < len(data); off += block {
		end := off + block
		if end > len(data) {
			end = len(data)
		}
		c := carry
		if c > off {
			c = off
		}
		out = append(out, device.Window{
			Data:  data[off-c : end],
			Base:  int64(off - c),
			Carry: c,
		})
	}
	return out
}

func carveAll(c Carver, data []byte, block, carry int) []Resolution {
	var out []Resolution
	for _, w := range windows(data, block, carry) {
		out = append(out, c.Process(w)...)
	}
	return append(out, c.Finish()...)
}

var (
	jpegHdr = []byte{0xFF, 0xD8}
	jpegFtr = []byte{0xFF, 0xD9}
	pngHdr  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	pngFtr  = []byte{0x49, 0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82}
)

func pad(n int) []byte { return make([]byte, n) }

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestImageCarveSingleJPEG(t *testing.T) {
	data := concat(pad(10), jpegHdr, pad(20), jpegFtr, pad(10))

	c := NewImageCarver(sig.Images(), acceptAll{})
	got := carveAll(c, data, 64, sig.MaxSpan(sig.Images())-1)

	require.Len(t, got, 1)
	assert.True(t, got[0].Accepted)
	assert.Equal(t, sig.JPEG, got[0].Format)
	assert.EqualValues(t, 10, got[0].Start)
	assert.EqualValues(t, 34, got[0].End)
	assert.Equal(t, concat(jpegHdr, pad(20), jpegFtr), got[0].Payload)
}

func TestImageCarveBoundaryCarry(t *testing.T) {
	// One PNG pair; every block size must bracket it identically no
	// matter where the physical read boundaries land inside the pair.
	data := concat(pad(13), pngHdr, pad(37), pngFtr, pad(11))
	carry := sig.MaxSpan(sig.Images()) - 1

	for _, block := range []int{4, 5, 7, 8, 13, 16, 32, 53, 256} {
		t.Run(fmt.Sprintf("block=%d", block), func(t *testing.T) {
			c := NewImageCarver(sig.Images(), acceptAll{})
			got := carveAll(c, data, block, carry)

			require.Len(t, got, 1)
			assert.True(t, got[0].Accepted)
			assert.Equal(t, sig.PNG, got[0].Format)
			assert.EqualValues(t, 13, got[0].Start)
			assert.EqualValues(t, 13+8+37+8, got[0].End)
		})
	}
}

func TestJPEGFirstFooterWins(t *testing.T) {
	// Two footers after one header: only the first resolves the
	// candidate, truncation preferred over merging.
	data := concat(jpegHdr, pad(5), jpegFtr, pad(5), jpegFtr)

	c := NewImageCarver(sig.Images(), acceptAll{})
	got := carveAll(c, data, 64, 7)

	require.Len(t, got, 1)
	assert.EqualValues(t, 0, got[0].Start)
	assert.EqualValues(t, 9, got[0].End)
}

func TestImageSameFormatCommitment(t *testing.T) {
	// A second JPEG header during accumulation is swallowed by the open
	// candidate; the carver commits to the first unresolved header.
	data := concat(jpegHdr, pad(4), jpegHdr, pad(4), jpegFtr)

	c := NewImageCarver(sig.Images(), acceptAll{})
	got := carveAll(c, data, 64, 7)

	require.Len(t, got, 1)
	assert.EqualValues(t, 0, got[0].Start)
	assert.EqualValues(t, len(data), got[0].End)
}

func TestImageValidationFailureDiscardsSilently(t *testing.T) {
	data := concat(jpegHdr, pad(4), jpegFtr, pad(3), jpegHdr, pad(4), jpegFtr)

	c := NewImageCarver(sig.Images(), rejectAll{})
	got := carveAll(c, data, 64, 7)

	// Both candidates resolve, both rejected, and rejection of the first
	// does not block discovery of the second.
	require.Len(t, got, 2)
	for _, r := range got {
		assert.False(t, r.Accepted)
		assert.Equal(t, ValidationFailed, r.Reason)
		assert.Nil(t, r.Payload)
	}
	assert.EqualValues(t, 11, got[1].Start)
}

func TestImageCeilingAbandon(t *testing.T) {
	sigs := sig.Images()
	for i := range sigs {
		sigs[i].MaxSize = 16
	}

	// First header has no footer within the ceiling; a later pair fits.
	data := concat(jpegHdr, pad(40), jpegHdr, pad(4), jpegFtr)

	c := NewImageCarver(sigs, acceptAll{})
	got := carveAll(c, data, 8, 7)

	require.Len(t, got, 2)
	assert.False(t, got[0].Accepted)
	assert.Equal(t, CeilingExceeded, got[0].Reason)
	assert.EqualValues(t, 0, got[0].Start)

	assert.True(t, got[1].Accepted)
	assert.EqualValues(t, 42, got[1].Start)
	assert.EqualValues(t, 50, got[1].End)
}

func TestImageOverlappingFormats(t *testing.T) {
	// A stray JPEG header sits inside a PNG body. The JPEG machine opens
	// a candidate that never resolves; the PNG machine is unaffected.
	data := concat(pad(3), pngHdr, pad(6), jpegHdr, pad(6), pngFtr)

	c := NewImageCarver(sig.Images(), acceptAll{})
	got := carveAll(c, data, 16, sig.MaxSpan(sig.Images())-1)

	require.Len(t, got, 2)

	var png, jpg *Resolution
	for i := range got {
		switch got[i].Format {
		case sig.PNG:
			png = &got[i]
		case sig.JPEG:
			jpg = &got[i]
		}
	}
	require.NotNil(t, png)
	require.NotNil(t, jpg)

	assert.True(t, png.Accepted)
	assert.EqualValues(t, 3, png.Start)
	assert.EqualValues(t, len(data), png.End)

	assert.False(t, jpg.Accepted)
	assert.Equal(t, Unterminated, jpg.Reason)
	assert.EqualValues(t, 17, jpg.Start)
}

func TestImageFinishDiscardsOpenCandidate(t *testing.T) {
	data := concat(pad(5), jpegHdr, pad(10))

	c := NewImageCarver(sig.Images(), acceptAll{})
	got := carveAll(c, data, 64, 7)

	require.Len(t, got, 1)
	assert.False(t, got[0].Accepted)
	assert.Equal(t, Unterminated, got[0].Reason)
	assert.EqualValues(t, 5, got[0].Start)
	assert.EqualValues(t, len(data), got[0].End)
}

func TestImageOnFoundHook(t *testing.T) {
	data := concat(pad(4), jpegHdr, pad(4), jpegFtr)

	c := NewImageCarver(sig.Images(), acceptAll{})
	var foundAt []int64
	c.OnFound = func(f sig.Format, start int64) {
		assert.Equal(t, sig.JPEG, f)
		foundAt = append(foundAt, start)
	}

	carveAll(c, data, 64, 7)
	assert.Equal(t, []int64{4}, foundAt)
}
