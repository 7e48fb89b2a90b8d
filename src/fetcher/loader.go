package fetcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/plexmate/plexmate/src/blobcache"
)

// DefaultDwell is how long a URL must stay wanted before a fetch is issued.
// It absorbs rapid churn, e.g. thumbnails scrolling past the visibility
// threshold, so the scheduler queue is not flooded with instantly-canceled
// work.
const DefaultDwell = 300 * time.Millisecond

// State is an observable snapshot of a loader. Handle is non-nil only after a
// successful fetch; Err is non-nil only on genuine failure, never on
// cancellation.
type State struct {
	Handle  *blobcache.Handle
	Loading bool
	Err     error
}

// Loader resolves a single subject's resource URL through a Scheduler once
// the URL has stayed set for a dwell period. Changing or clearing the URL
// before the dwell elapses issues no fetch; changing it afterwards aborts the
// in-flight fetch for the old URL. Close tears everything down and releases
// the exposed handle.
type Loader struct {
	sched    *Scheduler
	dwell    time.Duration
	onChange func(State)

	mu     sync.Mutex
	url    string
	gen    int
	timer  *time.Timer
	cancel context.CancelFunc
	state  State
	closed bool
}

// NewLoader creates a loader over sched. dwell <= 0 means DefaultDwell.
// onChange, when non-nil, is invoked after every state transition.
func NewLoader(sched *Scheduler, dwell time.Duration, onChange func(State)) *Loader {
	if dwell <= 0 {
		dwell = DefaultDwell
	}
	return &Loader{sched: sched, dwell: dwell, onChange: onChange}
}

// State returns the current snapshot.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SetURL points the loader at a new resource. An empty URL clears the subject.
// Setting the same URL again is a no-op.
func (l *Loader) SetURL(url string) {
	l.mu.Lock()
	if l.closed || url == l.url {
		l.mu.Unlock()
		return
	}

	l.teardownLocked()
	l.url = url
	l.gen++
	gen := l.gen

	if url == "" {
		notify := l.notifierLocked()
		l.mu.Unlock()
		notify()
		return
	}

	l.timer = time.AfterFunc(l.dwell, func() { l.begin(url, gen) })
	notify := l.notifierLocked()
	l.mu.Unlock()
	notify()
}

// Close cancels any pending dwell or fetch and releases the current handle.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.teardownLocked()
	l.closed = true
	l.gen++
	l.mu.Unlock()
}

// teardownLocked stops the dwell timer, aborts any in-flight fetch and
// releases the exposed handle. Callers hold l.mu.
func (l *Loader) teardownLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.state.Handle != nil {
		l.state.Handle.Release()
	}
	l.state = State{}
}

func (l *Loader) notifierLocked() func() {
	if l.onChange == nil {
		return func() {}
	}
	cb, st := l.onChange, l.state
	return func() { cb(st) }
}

// begin runs when the dwell timer fires. A stale generation means the URL
// changed or the loader closed while the timer was pending.
func (l *Loader) begin(url string, gen int) {
	l.mu.Lock()
	if l.closed || gen != l.gen {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.state = State{Loading: true}
	notify := l.notifierLocked()
	l.mu.Unlock()
	notify()

	go func() {
		h, err := l.sched.Fetch(ctx, url)

		l.mu.Lock()
		if l.closed || gen != l.gen {
			// Result arrived after teardown; drop it.
			l.mu.Unlock()
			if h != nil {
				h.Release()
			}
			return
		}
		l.cancel = nil
		switch {
		case err == nil:
			l.state = State{Handle: h}
		case errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled):
			// Cancellation is expected control flow, not an error.
			l.state = State{}
		default:
			l.state = State{Err: err}
		}
		notify := l.notifierLocked()
		l.mu.Unlock()
		notify()
	}()
}
