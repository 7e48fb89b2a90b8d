package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/plexmate/plexmate/src/blobcache"
)

// fakePlex serves plex.tv, discover and media-server endpoints from one
// httptest server, so the client's three base URLs can all point at it.
type fakePlex struct {
	t       *testing.T
	mux     *http.ServeMux
	srv     *httptest.Server
	library []wireMetadata
	// watchlist holds discover entries keyed by guid.
	watchlist map[string]wireMetadata
	requests  map[string]int
}

func newFakePlex(t *testing.T) *fakePlex {
	t.Helper()
	f := &fakePlex{
		t:         t,
		mux:       http.NewServeMux(),
		watchlist: map[string]wireMetadata{},
		requests:  map[string]int{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests[r.URL.Path]++
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)

	u, err := url.Parse(f.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(u.Port())

	f.mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, wireUser{ID: 42, Username: "kate", Email: "kate@example.com"})
	})
	f.mux.HandleFunc("GET /resources", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, resourcesResponse{
			{
				Name: "den", Product: "Plex Media Server", Owned: true,
				ClientIdentifier: "srv-1", AccessToken: "server-token",
				Connections: []wireConnection{
					{Protocol: "http", Address: "192.168.1.5", Port: 32400, Local: true},
					{Protocol: "http", Address: u.Hostname(), Port: port, Local: false},
				},
			},
			{Name: "phone", Product: "Plex for Android"},
		})
	})
	f.mux.HandleFunc("GET /library/sections", func(w http.ResponseWriter, r *http.Request) {
		var body containerResponse
		body.MediaContainer.Directory = []wireDirectory{
			{Key: "1", Title: "Movies", Type: "movie", Count: len(f.library)},
			{Key: "2", Title: "Music", Type: "artist"},
		}
		writeJSON(w, body)
	})
	f.mux.HandleFunc("GET /library/sections/1/all", func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.Header.Get("X-Plex-Container-Start"))
		size, _ := strconv.Atoi(r.Header.Get("X-Plex-Container-Size"))
		end := start + size
		if end > len(f.library) {
			end = len(f.library)
		}
		var body containerResponse
		body.MediaContainer.TotalSize = len(f.library)
		if start < end {
			body.MediaContainer.Metadata = f.library[start:end]
		}
		writeJSON(w, body)
	})
	f.mux.HandleFunc("GET /library/metadata/{key}", func(w http.ResponseWriter, r *http.Request) {
		var body containerResponse
		for _, m := range f.library {
			if m.RatingKey == r.PathValue("key") {
				body.MediaContainer.Metadata = []wireMetadata{m}
			}
		}
		writeJSON(w, body)
	})
	f.mux.HandleFunc("GET /library/sections/watchlist/all", func(w http.ResponseWriter, r *http.Request) {
		var body containerResponse
		for _, m := range f.watchlist {
			body.MediaContainer.Metadata = append(body.MediaContainer.Metadata, m)
		}
		writeJSON(w, body)
	})
	f.mux.HandleFunc("PUT /actions/addToWatchlist", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("ratingKey")
		f.watchlist[key] = wireMetadata{GUID: "plex://movie/" + key}
		w.WriteHeader(http.StatusOK)
	})
	f.mux.HandleFunc("PUT /actions/removeFromWatchlist", func(w http.ResponseWriter, r *http.Request) {
		delete(f.watchlist, r.URL.Query().Get("ratingKey"))
		w.WriteHeader(http.StatusOK)
	})
	return f
}

func (f *fakePlex) client(t *testing.T, store *blobcache.Store) *Client {
	t.Helper()
	c := NewClient("tok", "cid", "PlexMate", store)
	c.PlexTVURL = f.srv.URL
	c.DiscoverURL = f.srv.URL
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func testStore(t *testing.T) *blobcache.Store {
	t.Helper()
	s, err := blobcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func movie(key, title string, year int) wireMetadata {
	return wireMetadata{
		RatingKey: key,
		GUID:      "plex://movie/" + key,
		Title:     title,
		Type:      "movie",
		Year:      year,
		Genre:     []wireTag{{Tag: "Drama"}},
		Rating:    7.5,
	}
}

func TestServersFiltersToRemoteMediaServers(t *testing.T) {
	f := newFakePlex(t)
	c := f.client(t, nil)

	servers, err := c.Servers(context.Background())
	if err != nil {
		t.Fatalf("Servers: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("got %d servers; want 1 remote media server", len(servers))
	}
	s := servers[0]
	if s.Name != "den" || !s.Owned || s.AccessToken != "server-token" {
		t.Fatalf("unexpected server: %+v", s)
	}
	if s.Local {
		t.Fatal("local connection should have been skipped")
	}
}

func TestLibrariesKeepsOnlyMovieAndShowSections(t *testing.T) {
	f := newFakePlex(t)
	c := f.client(t, nil)

	libs, err := c.Libraries(context.Background(), "den")
	if err != nil {
		t.Fatalf("Libraries: %v", err)
	}
	if len(libs) != 1 || libs[0].Title != "Movies" {
		t.Fatalf("libraries = %+v; want just the Movies section", libs)
	}
}

func TestLibraryItemsPaginates(t *testing.T) {
	f := newFakePlex(t)
	for i := 0; i < 5; i++ {
		f.library = append(f.library, movie(strconv.Itoa(i), fmt.Sprintf("Film %d", i), 2000+i))
	}
	c := f.client(t, nil)

	page, err := c.LibraryItems(context.Background(), "den", "1", 0, 2)
	if err != nil {
		t.Fatalf("LibraryItems: %v", err)
	}
	if len(page.Items) != 2 || page.Total != 5 || !page.HasMore {
		t.Fatalf("page = %+v", page)
	}
	if page.Items[0].Title != "Film 0" {
		t.Fatalf("first item = %q", page.Items[0].Title)
	}

	last, err := c.LibraryItems(context.Background(), "den", "1", 4, 2)
	if err != nil {
		t.Fatalf("LibraryItems: %v", err)
	}
	if len(last.Items) != 1 || last.HasMore {
		t.Fatalf("last page = %+v", last)
	}
}

func TestLibraryItemsServedFromCacheOnRepeat(t *testing.T) {
	f := newFakePlex(t)
	f.library = append(f.library, movie("1", "Heat", 1995))
	c := f.client(t, testStore(t))

	for i := 0; i < 3; i++ {
		if _, err := c.LibraryItems(context.Background(), "den", "1", 0, 50); err != nil {
			t.Fatalf("LibraryItems: %v", err)
		}
	}
	if n := f.requests["/library/sections/1/all"]; n != 1 {
		t.Fatalf("section fetched %d times; want 1 (rest from cache)", n)
	}
}

func TestAllLibraryItemsScansEverySectionPage(t *testing.T) {
	f := newFakePlex(t)
	for i := 0; i < scanPageSize+3; i++ {
		f.library = append(f.library, movie(strconv.Itoa(i), fmt.Sprintf("Film %d", i), 2000))
	}
	c := f.client(t, nil)

	items, err := c.AllLibraryItems(context.Background(), "den", "")
	if err != nil {
		t.Fatalf("AllLibraryItems: %v", err)
	}
	if len(items) != scanPageSize+3 {
		t.Fatalf("got %d items; want %d", len(items), scanPageSize+3)
	}
	if n := f.requests["/library/sections/1/all"]; n != 2 {
		t.Fatalf("section fetched %d times; want 2 pages", n)
	}
}

func TestThumbnailURLUsesServerToken(t *testing.T) {
	f := newFakePlex(t)
	c := f.client(t, nil)

	u, err := c.ThumbnailURL(context.Background(), "den", "/library/metadata/1/thumb/5")
	if err != nil {
		t.Fatalf("ThumbnailURL: %v", err)
	}
	want := f.srv.URL + "/library/metadata/1/thumb/5?X-Plex-Token=server-token"
	if u != want {
		t.Fatalf("ThumbnailURL = %q; want %q", u, want)
	}
}

func TestWatchlistRoundTrip(t *testing.T) {
	f := newFakePlex(t)
	f.library = append(f.library, movie("7", "Fargo", 1996))
	c := f.client(t, nil)
	ctx := context.Background()

	st, err := c.WatchlistStatus(ctx, "den", "7")
	if err != nil {
		t.Fatalf("WatchlistStatus: %v", err)
	}
	if st.OnWatchlist {
		t.Fatal("item should start off the watchlist")
	}

	st, err = c.AddToWatchlist(ctx, "den", "7")
	if err != nil {
		t.Fatalf("AddToWatchlist: %v", err)
	}
	if !st.OnWatchlist || st.Title != "Fargo" {
		t.Fatalf("status after add = %+v", st)
	}

	st, err = c.WatchlistStatus(ctx, "den", "7")
	if err != nil {
		t.Fatalf("WatchlistStatus: %v", err)
	}
	if !st.OnWatchlist {
		t.Fatal("item should be on the watchlist after add")
	}

	if _, err := c.RemoveFromWatchlist(ctx, "den", "7"); err != nil {
		t.Fatalf("RemoveFromWatchlist: %v", err)
	}
	items, err := c.Watchlist(ctx)
	if err != nil {
		t.Fatalf("Watchlist: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("watchlist = %+v; want empty after remove", items)
	}
}

func TestDiscoverRatingKey(t *testing.T) {
	key, err := discoverRatingKey("plex://movie/5d776b59ad5437001f79c6f8")
	if err != nil {
		t.Fatalf("discoverRatingKey: %v", err)
	}
	if key != "5d776b59ad5437001f79c6f8" {
		t.Fatalf("key = %q", key)
	}
	if _, err := discoverRatingKey("imdb://tt0116282"); err == nil {
		t.Fatal("expected an error for a non-plex guid")
	}
}
