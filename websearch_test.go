package plexmate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func fakeTavily(t *testing.T) (*httptest.Server, *map[string]string) {
	t.Helper()
	var last map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&last); err != nil {
			t.Errorf("decode search request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"title": "Knives Out (2019) - IMDb"}},
		})
	}))
	t.Cleanup(ts.Close)
	return ts, &last
}

func TestWebSearchDelegatesQuery(t *testing.T) {
	stub, last := fakeTavily(t)

	ws := NewWebSearcher("tvly-key")
	ws.BaseURL = stub.URL
	ts := NewToolset(testCatalogue()).WithWebSearch(ws)

	res := invoke(t, ts, "web_search", map[string]any{"query": "best movies 2024"})

	if got := (*last)["query"]; got != "best movies 2024" {
		t.Fatalf("forwarded query = %q", got)
	}
	if got := (*last)["api_key"]; got != "tvly-key" {
		t.Fatalf("forwarded api key = %q", got)
	}
	body, ok := res.(map[string]any)
	if !ok {
		t.Fatalf("result is %T; want map", res)
	}
	if _, ok := body["results"]; !ok {
		t.Fatalf("result = %+v; want Tavily results passed through", body)
	}
	// Web results never count as library media items.
	if items := extractMediaItems(res); items != nil {
		t.Fatalf("extracted media items = %+v; want none", items)
	}
}

func TestWebSearchErrorsOnUpstreamFailure(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(stub.Close)

	ws := NewWebSearcher("bad-key")
	ws.BaseURL = stub.URL
	if _, err := ws.Search(context.Background(), "anything"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v; want upstream status surfaced", err)
	}
}

func TestWithWebSearchNilLeavesToolsetUnchanged(t *testing.T) {
	ts := NewToolset(testCatalogue()).WithWebSearch(nil)
	for _, spec := range ts.Specs() {
		if spec.Name == "web_search" {
			t.Fatal("web_search registered without a searcher")
		}
	}
}
