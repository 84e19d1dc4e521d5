package device

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestSingleWindow(t *testing.T) {
	data := []byte("hello raw device")
	path := writeImage(t, "dev.img", data)

	r, err := Open(path, Options{BlockSize: 64, Carry: 7})
	require.NoError(t, err)
	defer r.Close()

	assert.EqualValues(t, len(data), r.Size())

	w, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data, w.Data)
	assert.EqualValues(t, 0, w.Base)
	assert.Equal(t, 0, w.Carry)

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.EqualValues(t, len(data), r.BytesScanned())
}

func TestBoundaryCarry(t *testing.T) {
	// 3 blocks of 10 bytes with a 4-byte carry. Every window after the
	// first must repeat the previous window's last 4 bytes with the
	// correct absolute base.
	data := make([]byte, 30)
	for i := range data {
		data[i] = byte(i)
	}
	path := writeImage(t, "dev.img", data)

	r, err := Open(path, Options{BlockSize: 10, Carry: 4})
	require.NoError(t, err)
	defer r.Close()

	var windows []Window
	var copies [][]byte
	for {
		w, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		windows = append(windows, Window{Base: w.Base, Carry: w.Carry})
		copies = append(copies, bytes.Clone(w.Data))
	}

	require.Len(t, windows, 3)

	assert.EqualValues(t, 0, windows[0].Base)
	assert.Equal(t, 0, windows[0].Carry)
	assert.Equal(t, data[0:10], copies[0])

	assert.EqualValues(t, 6, windows[1].Base)
	assert.Equal(t, 4, windows[1].Carry)
	assert.Equal(t, data[6:20], copies[1])

	assert.EqualValues(t, 16, windows[2].Base)
	assert.Equal(t, 4, windows[2].Carry)
	assert.Equal(t, data[16:30], copies[2])

	// Every device byte appears, in order, exactly once beyond the carry.
	var rebuilt []byte
	for i, c := range copies {
		rebuilt = append(rebuilt, c[windows[i].Carry:]...)
	}
	assert.Equal(t, data, rebuilt)
	assert.EqualValues(t, 30, r.BytesScanned())
}

func TestShortFinalBlock(t *testing.T) {
	data := make([]byte, 25) // 10 + 10 + 5
	for i := range data {
		data[i] = byte(i * 3)
	}
	path := writeImage(t, "dev.img", data)

	r, err := Open(path, Options{BlockSize: 10, Carry: 3})
	require.NoError(t, err)
	defer r.Close()

	var total []byte
	for {
		w, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		total = append(total, w.Data[w.Carry:]...)
	}
	assert.Equal(t, data, total)
}

func TestReadStartOffset(t *testing.T) {
	data := []byte("0123456789abcdef")
	path := writeImage(t, "dev.img", data)

	r, err := Open(path, Options{BlockSize: 8, Offset: 6})
	require.NoError(t, err)
	defer r.Close()

	w, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 6, w.Base)
	assert.Equal(t, data[6:14], w.Data)
}

func TestCancellationAtBlockBoundary(t *testing.T) {
	path := writeImage(t, "dev.img", make([]byte, 64))

	r, err := Open(path, Options{BlockSize: 16})
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, err = r.Next(ctx)
	require.NoError(t, err)

	cancel()
	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestZstdImage(t *testing.T) {
	raw := bytes.Repeat([]byte("carve"), 100)
	var comp bytes.Buffer
	enc, err := zstd.NewWriter(&comp)
	require.NoError(t, err)
	_, err = enc.Write(raw)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	path := writeImage(t, "dev.img.zst", comp.Bytes())

	r, err := Open(path, Options{BlockSize: 128, Carry: 4})
	require.NoError(t, err)
	defer r.Close()

	assert.EqualValues(t, -1, r.Size())

	var total []byte
	for {
		w, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		total = append(total, w.Data[w.Carry:]...)
	}
	assert.Equal(t, raw, total)
	assert.EqualValues(t, len(raw), r.BytesScanned())
}

func TestThrottledReadPacesBlocksLargerThanBurst(t *testing.T) {
	data := make([]byte, 2<<20)
	path := writeImage(t, "dev.img", data)

	// Burst caps at 1 MiB, so a 2 MiB block must drain the bucket twice.
	// The second drain has to wait for a refill at 4 MiB/s, which puts a
	// hard 250ms floor under the read.
	r, err := Open(path, Options{BlockSize: 2 << 20, Limiter: NewLimiter(4 << 20)})
	require.NoError(t, err)
	defer r.Close()

	start := time.Now()
	w, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, w.Data, 2<<20)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestThrottledReadCompletes(t *testing.T) {
	data := make([]byte, 4096)
	path := writeImage(t, "dev.img", data)

	// Generous limit: must not distort the stream, only pace it.
	r, err := Open(path, Options{BlockSize: 1024, Limiter: NewLimiter(1 << 30)})
	require.NoError(t, err)
	defer r.Close()

	var n int64
	for {
		w, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n += int64(len(w.Data) - w.Carry)
	}
	assert.EqualValues(t, len(data), n)
}
