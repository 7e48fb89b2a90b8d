package plexmate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/plexmate/plexmate/src/models"
)

// DefaultTavilyURL is the Tavily search API endpoint.
const DefaultTavilyURL = "https://api.tavily.com"

// WebSearcher answers open-ended queries through the Tavily search API,
// giving the assistant facts the library itself cannot: actors, directors,
// release dates, reviews.
type WebSearcher struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

// NewWebSearcher builds a searcher against the public Tavily endpoint.
func NewWebSearcher(apiKey string) *WebSearcher {
	return &WebSearcher{
		APIKey:  apiKey,
		BaseURL: DefaultTavilyURL,
		HTTP:    http.DefaultClient,
	}
}

// Search runs one query and returns Tavily's response as-is; the raw result
// set goes straight into the tool transcript for the model to read.
func (ws *WebSearcher) Search(ctx context.Context, query string) (map[string]any, error) {
	payload, err := json.Marshal(map[string]string{
		"api_key": ws.APIKey,
		"query":   query,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.BaseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search: tavily returned %s", resp.Status)
	}
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("web search: decode response: %w", err)
	}
	return result, nil
}

// WithWebSearch adds the web_search tool backed by the given searcher. A nil
// searcher leaves the toolset unchanged, so the tool simply is not offered
// when no API key is configured.
func (ts *Toolset) WithWebSearch(ws *WebSearcher) *Toolset {
	if ws == nil {
		return ts
	}
	ts.register(Tool{
		Spec: models.ToolSpec{
			Name:        "web_search",
			Description: "Search the web for information about movies, TV shows, actors, etc.",
			Parameters: objectSchema(map[string]any{
				"query": stringParam("The search query"),
			}),
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			return ws.Search(ctx, argString(args, "query"))
		},
	})
	return ts
}
