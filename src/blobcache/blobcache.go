package blobcache

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultMaxAge is how long a cached blob stays usable. Entries older than
// this are treated as absent and deleted on the next lookup.
const DefaultMaxAge = 7 * 24 * time.Hour

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 32*1024)
		return &b
	},
}

// Handle is a caller-owned reference to cached bytes. The backing buffer is
// pooled, so callers must Release the handle once the payload is no longer
// needed. Release is idempotent.
type Handle struct {
	data []byte
	buf  *[]byte
	once sync.Once
}

// NewHandle wraps payload in a pooled buffer and returns a releasable handle.
func NewHandle(payload []byte) *Handle {
	buf := bufPool.Get().(*[]byte)
	*buf = append((*buf)[:0], payload...)
	return &Handle{data: *buf, buf: buf}
}

// Bytes returns the payload. The slice is invalid after Release.
func (h *Handle) Bytes() []byte {
	if h == nil {
		return nil
	}
	return h.data
}

// Len reports the payload size in bytes.
func (h *Handle) Len() int {
	if h == nil {
		return 0
	}
	return len(h.data)
}

// Release returns the backing buffer to the pool. Safe to call more than once.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.data = nil
		bufPool.Put(h.buf)
		h.buf = nil
	})
}

// Store is a durable key->blob cache keyed by resource URL, backed by SQLite.
// It holds at most one row per key with the time it was stored; there is no
// background sweeper, staleness is checked on every read.
//
// Caching is an optimization, never a correctness requirement: reads fail
// open and writes swallow storage errors.
type Store struct {
	db *sql.DB

	// MaxAge bounds entry freshness. Zero means DefaultMaxAge.
	MaxAge time.Duration

	now func() time.Time
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	s := &Store{db: db, MaxAge: DefaultMaxAge, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS blobs (
		url       TEXT PRIMARY KEY,
		blob      BLOB NOT NULL,
		timestamp INTEGER NOT NULL
	);`)
	return err
}

func (s *Store) maxAge() time.Duration {
	if s.MaxAge > 0 {
		return s.MaxAge
	}
	return DefaultMaxAge
}

// Get looks up key. It returns a fresh handle and true on a hit. Storage
// errors, malformed rows and expired entries all report a miss; an expired
// entry is additionally deleted in the background, best effort.
func (s *Store) Get(ctx context.Context, key string) (*Handle, bool) {
	if s == nil || s.db == nil {
		return nil, false
	}

	var payload []byte
	var storedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT blob, timestamp FROM blobs WHERE url = ?`, key).
		Scan(&payload, &storedAt)
	if err != nil {
		return nil, false
	}

	age := s.now().UnixMilli() - storedAt
	if age >= s.maxAge().Milliseconds() {
		go func() {
			if _, err := s.db.Exec(`DELETE FROM blobs WHERE url = ?`, key); err != nil {
				log.Printf("blobcache: delete expired %q: %v", key, err)
			}
		}()
		return nil, false
	}

	return NewHandle(payload), true
}

// Put stores payload under key, overwriting any previous entry. Failures are
// swallowed; callers must not depend on the write landing.
func (s *Store) Put(ctx context.Context, key string, payload []byte) {
	if s == nil || s.db == nil {
		return
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (url, blob, timestamp) VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET blob = excluded.blob, timestamp = excluded.timestamp`,
		key, payload, s.now().UnixMilli())
	if err != nil {
		log.Printf("blobcache: put %q: %v", key, err)
	}
}

// Delete removes key, best effort.
func (s *Store) Delete(ctx context.Context, key string) {
	if s == nil || s.db == nil {
		return
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE url = ?`, key); err != nil {
		log.Printf("blobcache: delete %q: %v", key, err)
	}
}

// DeletePrefix removes every entry whose key starts with prefix and reports
// how many were dropped. Best effort: errors count as zero.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) int {
	if s == nil || s.db == nil || prefix == "" {
		return 0
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE url LIKE ? ESCAPE '\'`, likePattern(prefix))
	if err != nil {
		log.Printf("blobcache: delete prefix %q: %v", prefix, err)
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}

// likePattern escapes LIKE metacharacters in prefix and appends the wildcard.
func likePattern(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// Clear drops every entry, best effort.
func (s *Store) Clear(ctx context.Context) {
	if s == nil || s.db == nil {
		return
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs`); err != nil {
		log.Printf("blobcache: clear: %v", err)
	}
}

// Len counts stored entries, including ones that would read as expired.
func (s *Store) Len(ctx context.Context) int {
	if s == nil || s.db == nil {
		return 0
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
