package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	m, err := Open("/dev/test", "/tmp/out")
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestRecordAndEntries(t *testing.T) {
	m := openTestDB(t)

	require.NoError(t, m.Record(Entry{
		Name: "rescued_b.png", Format: "png", Start: 500, End: 900,
		Size: 400, Digest: "beef", Written: true,
	}))
	require.NoError(t, m.Record(Entry{
		Name: "rescued_a.jpg", Format: "jpeg", Start: 100, End: 300,
		Size: 200, Digest: "dead", Written: false,
	}))

	entries, err := m.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Ordered by start offset, not insertion order.
	assert.Equal(t, "rescued_a.jpg", entries[0].Name)
	assert.False(t, entries[0].Written)
	assert.Equal(t, "rescued_b.png", entries[1].Name)
	assert.True(t, entries[1].Written)
	assert.EqualValues(t, 400, entries[1].Size)
}

func TestBatchFlushAtThreshold(t *testing.T) {
	m := openTestDB(t)

	for i := range 150 {
		require.NoError(t, m.Record(Entry{
			Name:   string(rune('a'+i%26)) + string(rune('0'+i/26)),
			Format: "jpeg", Start: int64(i), End: int64(i + 1), Size: 1,
			Digest: "d",
		}))
	}

	entries, err := m.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 150)
}

func TestJobIDDeterministic(t *testing.T) {
	assert.Equal(t, jobID("/dev/sdb1", "out"), jobID("/dev/sdb1", "out"))
	assert.NotEqual(t, jobID("/dev/sdb1", "out"), jobID("/dev/sdb2", "out"))
	assert.NotEqual(t, jobID("/dev/sdb1", "out"), jobID("/dev/sdb1", "out2"))
	assert.Len(t, jobID("a", "b"), 16)
}

func TestCloseFlushesPending(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	m, err := Open("/dev/test", "/tmp/out")
	require.NoError(t, err)

	require.NoError(t, m.Record(Entry{Name: "x.jpg", Format: "jpeg", Digest: "d"}))
	path := m.Path()
	require.NoError(t, m.Close())

	// Reopen the same job: entry must have been flushed.
	m2, err := Open("/dev/test", "/tmp/out")
	require.NoError(t, err)
	defer m2.Close()
	assert.Equal(t, path, m2.Path())

	entries, err := m2.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.jpg", entries[0].Name)
}
