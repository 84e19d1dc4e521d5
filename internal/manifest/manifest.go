// Package manifest keeps a per-run SQLite record of every carve decision so
// a recovery session can be audited after the fact. Failure to open or
// write the manifest degrades to a warning; it never aborts a scan.
package manifest

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"
)

// Entry is one recovered-file record.
type Entry struct {
	Name    string
	Format  string
	Start   int64
	End     int64
	Size    int64
	Digest  string
	Written bool
}

// DB is a batched append-only manifest for one scan run.
type DB struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	batch   []Entry
	done    chan struct{}
	stopped bool
}

// Open creates (or reuses) the manifest database for the given device and
// output directory pair. The DB lives under $XDG_STATE_HOME/carve (or
// ~/.local/state/carve), keyed by a job ID derived from both paths.
func Open(devicePath, outputDir string) (*DB, error) {
	dbPath := manifestPath(jobID(devicePath, outputDir))

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open manifest db: %w", err)
	}

	m := &DB{
		db:   db,
		path: dbPath,
		done: make(chan struct{}),
	}

	if err := m.init(devicePath, outputDir); err != nil {
		db.Close()
		return nil, err
	}

	go m.flushLoop()

	return m, nil
}

func (m *DB) init(devicePath, outputDir string) error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS recovered (
			name    TEXT PRIMARY KEY,
			format  TEXT NOT NULL,
			start   INTEGER NOT NULL,
			end     INTEGER NOT NULL,
			size    INTEGER NOT NULL,
			digest  TEXT NOT NULL,
			written INTEGER NOT NULL,
			at      INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS runs (
			started INTEGER NOT NULL,
			device  TEXT NOT NULL,
			output  TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	_, err = m.db.Exec("INSERT INTO runs (started, device, output) VALUES (?, ?, ?)",
		time.Now().UnixNano(), devicePath, outputDir)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Record queues one entry. Writes are batched and flushed periodically.
func (m *DB) Record(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batch = append(m.batch, e)
	if len(m.batch) >= 100 {
		return m.flushLocked()
	}
	return nil
}

// Flush writes any pending batch entries to the database.
func (m *DB) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *DB) flushLocked() error {
	if len(m.batch) == 0 {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT OR REPLACE INTO recovered (name, format, start, end, size, digest, written, at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range m.batch {
		written := 0
		if e.Written {
			written = 1
		}
		if _, err := stmt.Exec(e.Name, e.Format, e.Start, e.End, e.Size, e.Digest, written, time.Now().UnixNano()); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.batch = m.batch[:0]
	return nil
}

func (m *DB) flushLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			_ = m.flushLocked()
			m.mu.Unlock()
		}
	}
}

// Entries returns all recorded entries ordered by start offset.
func (m *DB) Entries() ([]Entry, error) {
	if err := m.Flush(); err != nil {
		return nil, err
	}

	rows, err := m.db.Query(
		"SELECT name, format, start, end, size, digest, written FROM recovered ORDER BY start")
	if err != nil {
		return nil, fmt.Errorf("query recovered: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var written int
		if err := rows.Scan(&e.Name, &e.Format, &e.Start, &e.End, &e.Size, &e.Digest, &written); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Written = written != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close flushes any pending writes and closes the database.
func (m *DB) Close() error {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		close(m.done)
	}
	_ = m.flushLocked()
	m.mu.Unlock()
	return m.db.Close()
}

// Path returns the manifest database file path.
func (m *DB) Path() string { return m.path }

// jobID computes a deterministic run identifier from the device and output
// paths. xxhash is plenty here; the ID only has to avoid accidental
// collisions between concurrent jobs on one machine.
func jobID(devicePath, outputDir string) string {
	h := xxhash.New()
	h.Write([]byte(devicePath))
	h.Write([]byte{0})
	h.Write([]byte(outputDir))
	return fmt.Sprintf("%016x", h.Sum64())
}

func manifestPath(id string) string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "carve", id+".db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "carve-"+id+".db")
	}
	return filepath.Join(home, ".local", "state", "carve", id+".db")
}
