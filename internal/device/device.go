// Package device reads a raw block device or disk image sequentially in
// fixed-size blocks, presenting one logically continuous byte stream with
// boundary carry so signatures split across physical reads are never missed.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"
)

// DefaultBlockSize is the per-read block size.
const DefaultBlockSize = 32 << 20 // 32 MiB

// ErrDeviceUnavailable marks an open failure (missing device, permissions).
// It is the only fatal condition in a scan.
var ErrDeviceUnavailable = errors.New("device unavailable")

// ReadError marks a mid-scan read failure. The scan loop terminates on it
// but partial results remain valid.
type ReadError struct {
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read at offset %d: %v", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Options controls a Reader.
type Options struct {
	BlockSize int           // defaults to DefaultBlockSize
	Carry     int           // trailing bytes retained across reads (max pattern span - 1)
	Offset    int64         // read start offset into the device
	Limiter   *rate.Limiter // optional read throttle, shared across the session
}

// Window is one block of the virtual byte stream. Data[:Carry] repeats the
// tail of the previous window; Base is the absolute device offset of
// Data[0]. Data is only valid until the next call to Next.
type Window struct {
	Data  []byte
	Base  int64
	Carry int
}

// End returns the absolute offset one past the last byte of the window.
func (w Window) End() int64 { return w.Base + int64(len(w.Data)) }

// Reader owns the device handle and the scan cursor for a session. It is
// not restartable; open a fresh Reader to rescan.
type Reader struct {
	f       *os.File
	src     io.Reader
	zr      *zstd.Decoder
	opts    Options
	size    int64
	cursor  int64 // absolute offset of the next unread byte
	start   int64
	buf     []byte
	prevN   int // fresh bytes in the previous block read
	prevLen int // total bytes of Data in the previous window
	done    bool
}

// Open opens the device or image at path for sequential scanning. Paths
// ending in .zst are decompressed transparently; their uncompressed size is
// unknown until EOF and Size reports -1.
func Open(path string, opts Options) (*Reader, error) {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.Carry < 0 {
		opts.Carry = 0
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %v (raw device access usually needs root)", ErrDeviceUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	r := &Reader{
		f:      f,
		src:    f,
		opts:   opts,
		size:   -1,
		cursor: opts.Offset,
		start:  opts.Offset,
		buf:    make([]byte, opts.Carry+opts.BlockSize),
	}

	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: zstd: %v", ErrDeviceUnavailable, err)
		}
		r.zr = zr
		r.src = zr
	} else {
		r.size = probeSize(f)
	}

	if opts.Offset > 0 {
		if err := r.skip(opts.Offset); err != nil {
			r.Close()
			return nil, fmt.Errorf("%w: seek to %d: %v", ErrDeviceUnavailable, opts.Offset, err)
		}
	}

	if opts.Limiter != nil {
		r.src = &throttledReader{r: r.src, limiter: opts.Limiter}
	}

	return r, nil
}

func (r *Reader) skip(n int64) error {
	if r.zr == nil {
		_, err := r.f.Seek(n, io.SeekStart)
		return err
	}
	_, err := io.CopyN(io.Discard, r.src, n)
	return err
}

// Size returns the device size in bytes, or -1 when it cannot be determined
// up front (compressed images, unsized block devices).
func (r *Reader) Size() int64 { return r.size }

// BytesScanned returns the count of distinct device bytes read so far.
func (r *Reader) BytesScanned() int64 { return r.cursor - r.start }

// Next returns the next window of the stream. It returns io.EOF at the end
// of the device, ctx.Err() when cancelled (checked only at block
// boundaries), and a *ReadError on any other failure.
func (r *Reader) Next(ctx context.Context) (Window, error) {
	if r.done {
		return Window{}, io.EOF
	}
	select {
	case <-ctx.Done():
		return Window{}, ctx.Err()
	default:
	}

	// Previous window data occupies buf[Carry-prevCarry : Carry+prevN];
	// its last carry bytes become the head of the new window.
	carry := r.opts.Carry
	if carry > r.prevLen {
		carry = r.prevLen
	}
	if carry > 0 {
		tailEnd := r.opts.Carry + r.prevN
		copy(r.buf[r.opts.Carry-carry:r.opts.Carry], r.buf[tailEnd-carry:tailEnd])
	}

	n, err := io.ReadFull(r.src, r.buf[r.opts.Carry:])
	if n == 0 {
		r.done = true
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Window{}, io.EOF
		}
		return Window{}, &ReadError{Offset: r.cursor, Err: err}
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		r.done = true
	} else if err != nil {
		r.done = true
		return Window{}, &ReadError{Offset: r.cursor, Err: err}
	}

	base := r.cursor - int64(carry)
	data := r.buf[r.opts.Carry-carry : r.opts.Carry+n]
	r.cursor += int64(n)
	r.prevN = n
	r.prevLen = len(data)
	return Window{Data: data, Base: base, Carry: carry}, nil
}

// Close releases the device handle.
func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// throttledReader enforces a shared byte-rate limit on reads. Tokens are
// drained after the read, in burst-sized chunks because WaitN rejects any
// request larger than the burst and block reads routinely exceed it.
type throttledReader struct {
	r       io.Reader
	limiter *rate.Limiter
}

func (t *throttledReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	burst := t.limiter.Burst()
	if burst <= 0 {
		return n, err
	}
	for owed := n; owed > 0; {
		chunk := owed
		if chunk > burst {
			chunk = burst
		}
		if waitErr := t.limiter.WaitN(context.Background(), chunk); waitErr != nil {
			return n, waitErr
		}
		owed -= chunk
	}
	return n, err
}

// NewLimiter builds a read throttle capped at bytesPerSec with a burst
// sized to let whole reads through without stalling on small ones.
func NewLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
