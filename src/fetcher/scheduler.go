// Package fetcher provides a bounded-concurrency download scheduler with a
// FIFO wait queue, composed with the persistent blob cache, plus a
// visibility-gated debounced loader built on top of it.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/plexmate/plexmate/src/blobcache"
)

// DefaultMaxConcurrent bounds simultaneous network fetches per scheduler.
const DefaultMaxConcurrent = 6

// ErrAborted marks a fetch canceled by its caller, as opposed to a genuine
// network or HTTP failure. Check with errors.Is.
var ErrAborted = errors.New("fetch aborted")

type waiter struct {
	grant chan struct{}
}

// Scheduler limits concurrent fetches across all callers. Excess requests
// queue in FIFO order; queued requests can be canceled through their context
// without ever touching the network. A cache hit never consumes a slot.
//
// Construct one per process (or per test) with New; the zero value is not
// usable.
type Scheduler struct {
	client *http.Client
	cache  *blobcache.Store
	max    int

	mu     sync.Mutex
	active int
	queue  []*waiter
}

// New returns a scheduler with the given slot capacity. maxConcurrent <= 0
// falls back to DefaultMaxConcurrent. cache may be nil to disable caching.
func New(maxConcurrent int, cache *blobcache.Store, client *http.Client) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Scheduler{client: client, cache: cache, max: maxConcurrent}
}

// Active reports the number of currently granted slots.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// QueueLen reports the number of requests waiting for a slot.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// acquire blocks until a slot is granted or ctx is canceled. Waiters are
// granted strictly first-queued first-granted.
func (s *Scheduler) acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.active < s.max {
		s.active++
		s.mu.Unlock()
		return nil
	}
	w := &waiter{grant: make(chan struct{})}
	s.queue = append(s.queue, w)
	s.mu.Unlock()

	select {
	case <-w.grant:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, q := range s.queue {
			if q == w {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				s.mu.Unlock()
				return fmt.Errorf("%w while queued: %w", ErrAborted, ctx.Err())
			}
		}
		s.mu.Unlock()
		// Granted concurrently with cancellation: hand the slot straight back.
		<-w.grant
		s.release()
		return fmt.Errorf("%w while queued: %w", ErrAborted, ctx.Err())
	}
}

// release frees one slot. If anyone is queued the slot is handed off directly,
// keeping the active count constant; otherwise the count drops.
func (s *Scheduler) release() {
	s.mu.Lock()
	if len(s.queue) > 0 {
		w := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		close(w.grant)
		return
	}
	s.active--
	s.mu.Unlock()
}

// Fetch returns the payload for url, consulting the cache first. On a miss it
// takes a scheduler slot, performs an HTTP GET bound to ctx, writes the body
// to the cache best effort, and returns a releasable handle.
//
// Cancellation while queued rejects with ErrAborted and never starts the
// request. Cancellation in flight is forwarded to the transport; the slot is
// released exactly once when the request settles either way.
func (s *Scheduler) Fetch(ctx context.Context, url string) (*blobcache.Handle, error) {
	if h, ok := s.cache.Get(ctx, url); ok {
		return h, nil
	}

	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w in flight: %w", ErrAborted, ctx.Err())
		}
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w in flight: %w", ErrAborted, ctx.Err())
		}
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}

	s.cache.Put(ctx, url, payload)
	return blobcache.NewHandle(payload), nil
}
