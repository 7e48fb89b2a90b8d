package blobcache

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, "http://example.com/thumb/1", []byte("jpeg-bytes"))

	h, ok := s.Get(ctx, "http://example.com/thumb/1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	defer h.Release()
	if !bytes.Equal(h.Bytes(), []byte("jpeg-bytes")) {
		t.Errorf("payload mismatch: got %q", h.Bytes())
	}

	// Repeated gets with no intervening writes return equal payloads.
	h2, ok := s.Get(ctx, "http://example.com/thumb/1")
	if !ok {
		t.Fatal("expected second cache hit")
	}
	defer h2.Release()
	if !bytes.Equal(h.Bytes(), h2.Bytes()) {
		t.Error("consecutive gets returned different payloads")
	}
}

func TestStore_Overwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, "k", []byte("v1"))
	s.Put(ctx, "k", []byte("v2"))

	if n := s.Len(ctx); n != 1 {
		t.Fatalf("expected one row per key, got %d", n)
	}
	h, ok := s.Get(ctx, "k")
	if !ok {
		t.Fatal("expected hit")
	}
	defer h.Release()
	if string(h.Bytes()) != "v2" {
		t.Errorf("expected overwrite to win, got %q", h.Bytes())
	}
}

func TestStore_MissingKey(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.Get(context.Background(), "nope"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestStore_Expiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	storedAt := time.Now()
	s.now = func() time.Time { return storedAt }
	s.Put(ctx, "k", []byte("old"))

	// Just inside the window: still present.
	s.now = func() time.Time { return storedAt.Add(DefaultMaxAge - time.Millisecond) }
	if h, ok := s.Get(ctx, "k"); !ok {
		t.Fatal("entry expired too early")
	} else {
		h.Release()
	}

	// Just past the window: treated as absent.
	s.now = func() time.Time { return storedAt.Add(DefaultMaxAge + time.Millisecond) }
	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatal("entry survived past max age")
	}
}

func TestStore_FailsOpenAfterClose(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Put(ctx, "k", []byte("v"))
	s.Close()

	// Reads and writes on a broken store never error out.
	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("expected miss on closed store")
	}
	s.Put(ctx, "k2", []byte("v2"))
	s.Delete(ctx, "k")
	s.Clear(ctx)
}

func TestStore_DeleteAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, "a", []byte("1"))
	s.Put(ctx, "b", []byte("2"))

	s.Delete(ctx, "a")
	if _, ok := s.Get(ctx, "a"); ok {
		t.Error("expected miss after delete")
	}

	s.Clear(ctx)
	if n := s.Len(ctx); n != 0 {
		t.Errorf("expected empty store after clear, got %d rows", n)
	}
}

func TestStore_DeletePrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, "plex:1:aaa", []byte("x"))
	s.Put(ctx, "plex:1:bbb", []byte("y"))
	s.Put(ctx, "plex:2:aaa", []byte("z"))
	s.Put(ctx, "plex_1:ccc", []byte("w")) // underscore must not match as a LIKE wildcard

	if n := s.DeletePrefix(ctx, "plex:1:"); n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
	if _, ok := s.Get(ctx, "plex:1:aaa"); ok {
		t.Error("expected miss for deleted prefix key")
	}
	if _, ok := s.Get(ctx, "plex:2:aaa"); !ok {
		t.Error("other user's entry should survive")
	}
	if _, ok := s.Get(ctx, "plex_1:ccc"); !ok {
		t.Error("underscore key should survive a plex:1: prefix delete")
	}

	if n := s.DeletePrefix(ctx, ""); n != 0 {
		t.Errorf("empty prefix should be a no-op, got %d", n)
	}
}

func TestHandle_ReleaseIdempotent(t *testing.T) {
	h := NewHandle([]byte("payload"))
	if string(h.Bytes()) != "payload" {
		t.Fatalf("unexpected payload %q", h.Bytes())
	}
	h.Release()
	h.Release()
	if h.Bytes() != nil {
		t.Error("expected nil payload after release")
	}
}
