package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/plexmate/plexmate/src/blobcache"
)

// gatedServer counts concurrent in-flight requests and holds every request
// until released, so tests can observe scheduling decisions deterministically.
type gatedServer struct {
	*httptest.Server

	mu       sync.Mutex
	inflight int
	maxSeen  int
	order    []string
	total    int

	arrived chan string
	release chan struct{}
}

func newGatedServer(t *testing.T) *gatedServer {
	t.Helper()
	g := &gatedServer{
		arrived: make(chan string, 64),
		release: make(chan struct{}),
	}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.inflight++
		if g.inflight > g.maxSeen {
			g.maxSeen = g.inflight
		}
		g.order = append(g.order, r.URL.Path)
		g.total++
		g.mu.Unlock()

		g.arrived <- r.URL.Path
		select {
		case <-g.release:
		case <-r.Context().Done():
		}

		g.mu.Lock()
		g.inflight--
		g.mu.Unlock()
		w.Write([]byte("payload:" + r.URL.Path))
	}))
	t.Cleanup(g.Close)
	t.Cleanup(func() {
		// Unblock any stragglers before the server shuts down.
		select {
		case <-g.release:
		default:
			close(g.release)
		}
	})
	return g
}

func (g *gatedServer) stats() (maxSeen, total int, order []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxSeen, g.total, append([]string(nil), g.order...)
}

func waitArrivals(t *testing.T, g *gatedServer, n int) []string {
	t.Helper()
	var got []string
	for len(got) < n {
		select {
		case p := <-g.arrived:
			got = append(got, p)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for request %d of %d", len(got)+1, n)
		}
	}
	return got
}

func assertNoArrival(t *testing.T, g *gatedServer, within time.Duration) {
	t.Helper()
	select {
	case p := <-g.arrived:
		t.Fatalf("unexpected request for %s", p)
	case <-time.After(within):
	}
}

func TestScheduler_ConcurrencyNeverExceedsLimit(t *testing.T) {
	g := newGatedServer(t)
	sched := New(6, nil, nil)

	const burst = 10
	var wg sync.WaitGroup
	errs := make([]error, burst)
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := sched.Fetch(context.Background(), fmt.Sprintf("%s/thumb/%d", g.URL, i))
			errs[i] = err
			if h != nil {
				h.Release()
			}
		}(i)
	}

	// Exactly six start immediately; the other four sit in the queue.
	waitArrivals(t, g, 6)
	assertNoArrival(t, g, 50*time.Millisecond)
	if got := sched.Active(); got != 6 {
		t.Errorf("active = %d, want 6", got)
	}
	if got := sched.QueueLen(); got != 4 {
		t.Errorf("queued = %d, want 4", got)
	}

	close(g.release)
	waitArrivals(t, g, 4)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("fetch %d failed: %v", i, err)
		}
	}
	maxSeen, total, _ := g.stats()
	if maxSeen != 6 {
		t.Errorf("max observed in-flight = %d, want exactly 6", maxSeen)
	}
	if total != burst {
		t.Errorf("total requests = %d, want %d", total, burst)
	}
	if got := sched.Active(); got != 0 {
		t.Errorf("active after drain = %d, want 0", got)
	}
}

func TestScheduler_QueueIsFIFO(t *testing.T) {
	g := newGatedServer(t)
	sched := New(1, nil, nil)

	var wg sync.WaitGroup
	start := func(path string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := sched.Fetch(context.Background(), g.URL+path)
			if err != nil {
				t.Errorf("fetch %s: %v", path, err)
			}
			if h != nil {
				h.Release()
			}
		}()
	}

	start("/first")
	waitArrivals(t, g, 1)

	// Enqueue /a before /b, deterministically.
	start("/a")
	waitQueueLen(t, sched, 1)
	start("/b")
	waitQueueLen(t, sched, 2)

	close(g.release)
	wg.Wait()

	_, _, order := g.stats()
	want := []string{"/first", "/a", "/b"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("request order = %v, want %v", order, want)
	}
}

func waitQueueLen(t *testing.T, sched *Scheduler, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for sched.QueueLen() != n {
		if time.Now().After(deadline) {
			t.Fatalf("queue length never reached %d (now %d)", n, sched.QueueLen())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScheduler_CanceledWhileQueued(t *testing.T) {
	g := newGatedServer(t)
	sched := New(1, nil, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h, _ := sched.Fetch(context.Background(), g.URL+"/occupier")
		if h != nil {
			h.Release()
		}
	}()
	waitArrivals(t, g, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := sched.Fetch(ctx, g.URL+"/canceled")
		done <- err
	}()
	waitQueueLen(t, sched, 1)
	cancel()

	err := <-done
	if !errors.Is(err, ErrAborted) {
		t.Errorf("expected ErrAborted, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if got := sched.QueueLen(); got != 0 {
		t.Errorf("queued = %d after cancel, want 0", got)
	}

	close(g.release)
	wg.Wait()

	// The canceled request never reached the network.
	_, total, _ := g.stats()
	if total != 1 {
		t.Errorf("total requests = %d, want 1", total)
	}
	if got := sched.Active(); got != 0 {
		t.Errorf("active = %d, want 0 (no leaked slot)", got)
	}
}

func TestScheduler_CacheHitSkipsNetworkAndSlot(t *testing.T) {
	g := newGatedServer(t)
	cache, err := blobcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	url := g.URL + "/cached"
	cache.Put(context.Background(), url, []byte("warm"))

	sched := New(6, cache, nil)
	h, err := sched.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer h.Release()

	if string(h.Bytes()) != "warm" {
		t.Errorf("payload = %q, want cached bytes", h.Bytes())
	}
	_, total, _ := g.stats()
	if total != 0 {
		t.Errorf("cache hit reached the network (%d requests)", total)
	}
	if got := sched.Active(); got != 0 {
		t.Errorf("cache hit consumed a slot (active = %d)", got)
	}
}

func TestScheduler_FetchPopulatesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	cache, err := blobcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	sched := New(2, cache, nil)
	h, err := sched.Fetch(context.Background(), srv.URL+"/x")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	h.Release()

	cached, ok := cache.Get(context.Background(), srv.URL+"/x")
	if !ok {
		t.Fatal("expected fetch to populate the cache")
	}
	defer cached.Release()
	if string(cached.Bytes()) != "fresh" {
		t.Errorf("cached payload = %q", cached.Bytes())
	}
}

func TestScheduler_HTTPErrorNamesStatusAndReleasesSlot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	sched := New(1, nil, nil)
	_, err := sched.Fetch(context.Background(), srv.URL+"/missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected error naming status 404, got %v", err)
	}
	if got := sched.Active(); got != 0 {
		t.Fatalf("failed fetch leaked a slot (active = %d)", got)
	}

	// The slot is reusable after the failure.
	h, err := sched.Fetch(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("follow-up fetch: %v", err)
	}
	h.Release()
}
