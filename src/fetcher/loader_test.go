package fetcher

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func waitState(t *testing.T, l *Loader, pred func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := l.State()
		if pred(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never reached: %+v", st)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestLoader_FetchesAfterDwell(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img:" + r.URL.Path))
	}))
	defer srv.Close()

	l := NewLoader(New(2, nil, nil), 20*time.Millisecond, nil)
	defer l.Close()

	l.SetURL(srv.URL + "/poster")
	st := waitState(t, l, func(s State) bool { return s.Handle != nil })
	if string(st.Handle.Bytes()) != "img:/poster" {
		t.Errorf("payload = %q", st.Handle.Bytes())
	}
	if st.Loading || st.Err != nil {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestLoader_URLChangeWithinDwellSkipsFirstFetch(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Write([]byte("img:" + r.URL.Path))
	}))
	defer srv.Close()

	l := NewLoader(New(2, nil, nil), 50*time.Millisecond, nil)
	defer l.Close()

	l.SetURL(srv.URL + "/u1")
	time.Sleep(10 * time.Millisecond) // well inside the dwell window
	l.SetURL(srv.URL + "/u2")

	st := waitState(t, l, func(s State) bool { return s.Handle != nil })
	if string(st.Handle.Bytes()) != "img:/u2" {
		t.Errorf("payload = %q, want /u2 content", st.Handle.Bytes())
	}

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(paths, ",") != "/u2" {
		t.Errorf("requested paths = %v, want only /u2", paths)
	}
}

func TestLoader_ClearBeforeDwellIssuesNothing(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	l := NewLoader(New(2, nil, nil), 30*time.Millisecond, nil)
	defer l.Close()

	l.SetURL(srv.URL + "/u1")
	l.SetURL("")

	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if requests != 0 {
		t.Errorf("expected no requests, got %d", requests)
	}
}

func TestLoader_AbortInFlightIsNotAnError(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	}))
	defer srv.Close()

	l := NewLoader(New(2, nil, nil), 10*time.Millisecond, nil)
	defer l.Close()

	l.SetURL(srv.URL + "/slow")
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}

	l.SetURL("")
	st := waitState(t, l, func(s State) bool { return !s.Loading })
	if st.Err != nil {
		t.Errorf("abort surfaced as error: %v", st.Err)
	}
	if st.Handle != nil {
		t.Error("expected no handle after abort")
	}
}

func TestLoader_GenuineFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := NewLoader(New(2, nil, nil), 10*time.Millisecond, nil)
	defer l.Close()

	l.SetURL(srv.URL + "/broken")
	st := waitState(t, l, func(s State) bool { return s.Err != nil })
	if st.Handle != nil || st.Loading {
		t.Errorf("unexpected state alongside error: %+v", st)
	}
	if !strings.Contains(st.Err.Error(), "500") {
		t.Errorf("error should name the status, got %v", st.Err)
	}
}

func TestLoader_ChangeCallbackObservesTransitions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	var mu sync.Mutex
	var sawLoading, sawLoaded bool
	l := NewLoader(New(2, nil, nil), 5*time.Millisecond, func(s State) {
		mu.Lock()
		defer mu.Unlock()
		if s.Loading {
			sawLoading = true
		}
		if s.Handle != nil {
			sawLoaded = true
		}
	})
	defer l.Close()

	l.SetURL(srv.URL + "/p")
	waitState(t, l, func(s State) bool { return s.Handle != nil })

	mu.Lock()
	defer mu.Unlock()
	if !sawLoading || !sawLoaded {
		t.Errorf("callback missed transitions: loading=%v loaded=%v", sawLoading, sawLoaded)
	}
}
