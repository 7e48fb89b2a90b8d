package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/plexmate/plexmate/src/blobcache"
)

// Plex endpoints. Overridable on the Client for tests.
const (
	DefaultPlexTVURL   = "https://plex.tv/api/v2"
	DefaultDiscoverURL = "https://metadata.provider.plex.tv"

	defaultTimeout = 60 * time.Second
	scanPageSize   = 200
)

// Client talks to plex.tv and the user's media servers on behalf of one
// authenticated account.
type Client struct {
	Token       string
	ClientID    string
	Product     string
	HTTP        *http.Client
	PlexTVURL   string
	DiscoverURL string

	cache *apiCache

	mu      sync.Mutex
	servers []Server
	userID  string
}

// NewClient builds a client for the given plex.tv token. The store may be
// nil to disable response caching.
func NewClient(token, clientID, product string, store *blobcache.Store) *Client {
	return &Client{
		Token:       token,
		ClientID:    clientID,
		Product:     product,
		HTTP:        &http.Client{Timeout: defaultTimeout},
		PlexTVURL:   DefaultPlexTVURL,
		DiscoverURL: DefaultDiscoverURL,
		cache:       &apiCache{store: store},
	}
}

func (c *Client) newRequest(ctx context.Context, method, rawURL, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Client-Identifier", c.ClientID)
	req.Header.Set("X-Plex-Product", c.Product)
	if token != "" {
		req.Header.Set("X-Plex-Token", token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("plex request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("plex request %s: unexpected status %d", req.URL.Path, resp.StatusCode)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("plex request %s: decode response: %w", req.URL.Path, err)
	}
	return nil
}

// User fetches the account behind the token.
func (c *Client) User(ctx context.Context) (*User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.PlexTVURL+"/user", c.Token)
	if err != nil {
		return nil, err
	}
	var wu wireUser
	if err := c.do(req, &wu); err != nil {
		return nil, err
	}
	u := &User{ID: wu.ID, Username: wu.Username, Email: wu.Email, Thumb: wu.Thumb}
	c.mu.Lock()
	c.userID = strconv.FormatInt(u.ID, 10)
	c.mu.Unlock()
	return u, nil
}

// cacheUserID returns a stable per-account component for cache keys, looking
// the account up once if needed.
func (c *Client) cacheUserID(ctx context.Context) string {
	c.mu.Lock()
	id := c.userID
	c.mu.Unlock()
	if id != "" {
		return id
	}
	if _, err := c.User(ctx); err != nil {
		// Fall back to the token so keys stay per-account.
		return c.Token
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// ClearCache evicts every cached API response belonging to this account and
// reports how many entries were dropped.
func (c *Client) ClearCache(ctx context.Context) int {
	return c.cache.clearUser(ctx, c.cacheUserID(ctx))
}

// Servers lists the media servers the account can reach, preferring remote
// connections.
func (c *Client) Servers(ctx context.Context) ([]Server, error) {
	c.mu.Lock()
	if c.servers != nil {
		out := c.servers
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	req, err := c.newRequest(ctx, http.MethodGet, c.PlexTVURL+"/resources?includeHttps=1", c.Token)
	if err != nil {
		return nil, err
	}
	var resources resourcesResponse
	if err := c.do(req, &resources); err != nil {
		return nil, err
	}

	var servers []Server
	for _, r := range resources {
		if r.Product != "Plex Media Server" {
			continue
		}
		for _, conn := range r.Connections {
			if conn.Local {
				continue
			}
			servers = append(servers, Server{
				Name:             r.Name,
				Address:          conn.Address,
				Port:             conn.Port,
				Scheme:           conn.Protocol,
				Local:            conn.Local,
				Owned:            r.Owned,
				ClientIdentifier: r.ClientIdentifier,
				AccessToken:      r.AccessToken,
			})
		}
	}
	c.mu.Lock()
	c.servers = servers
	c.mu.Unlock()
	return servers, nil
}

// server resolves a server by name.
func (c *Client) server(ctx context.Context, name string) (*Server, error) {
	servers, err := c.Servers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range servers {
		if servers[i].Name == name {
			return &servers[i], nil
		}
	}
	return nil, fmt.Errorf("plex server %q not found", name)
}

// Libraries lists the movie and show sections on the named server.
func (c *Client) Libraries(ctx context.Context, serverName string) ([]Library, error) {
	key := c.cache.key("libraries", c.cacheUserID(ctx), serverName)
	var libs []Library
	if c.cache.get(ctx, key, &libs) {
		return libs, nil
	}

	srv, err := c.server(ctx, serverName)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, srv.URL()+"/library/sections", srv.AccessToken)
	if err != nil {
		return nil, err
	}
	var body containerResponse
	if err := c.do(req, &body); err != nil {
		return nil, err
	}
	for _, d := range body.MediaContainer.Directory {
		if d.Type != "movie" && d.Type != "show" {
			continue
		}
		libs = append(libs, Library{
			Key:     d.Key,
			Title:   d.Title,
			Type:    d.Type,
			Agent:   d.Agent,
			Scanner: d.Scanner,
			Thumb:   d.Thumb,
			Count:   d.Count,
		})
	}
	c.cache.put(ctx, key, libs)
	return libs, nil
}

// LibraryItems returns one page of a library section.
func (c *Client) LibraryItems(ctx context.Context, serverName, libraryKey string, offset, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 50
	}
	key := c.cache.key("library_items", c.cacheUserID(ctx), serverName, libraryKey,
		strconv.Itoa(offset), strconv.Itoa(limit))
	var page Page
	if c.cache.get(ctx, key, &page) {
		return &page, nil
	}

	srv, err := c.server(ctx, serverName)
	if err != nil {
		return nil, err
	}
	rawURL := fmt.Sprintf("%s/library/sections/%s/all", srv.URL(), url.PathEscape(libraryKey))
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, srv.AccessToken)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Plex-Container-Start", strconv.Itoa(offset))
	req.Header.Set("X-Plex-Container-Size", strconv.Itoa(limit))

	var body containerResponse
	if err := c.do(req, &body); err != nil {
		return nil, err
	}
	total := body.MediaContainer.TotalSize
	if total == 0 {
		total = body.MediaContainer.Size
	}
	page = Page{
		Items:   make([]MediaItem, 0, len(body.MediaContainer.Metadata)),
		Total:   total,
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+limit < total,
	}
	for _, m := range body.MediaContainer.Metadata {
		page.Items = append(page.Items, m.toMediaItem())
	}
	c.cache.put(ctx, key, &page)
	return &page, nil
}

// AllLibraryItems scans every movie and show section on the server and
// returns the combined catalogue, optionally filtered to one media type.
// The scan pages through each section and is cached as a whole.
func (c *Client) AllLibraryItems(ctx context.Context, serverName, mediaType string) ([]MediaItem, error) {
	key := c.cache.key("all_items", c.cacheUserID(ctx), serverName, mediaType)
	var items []MediaItem
	if c.cache.get(ctx, key, &items) {
		return items, nil
	}

	libs, err := c.Libraries(ctx, serverName)
	if err != nil {
		return nil, err
	}
	for _, lib := range libs {
		if mediaType != "" && lib.Type != mediaType {
			continue
		}
		for offset := 0; ; offset += scanPageSize {
			page, err := c.LibraryItems(ctx, serverName, lib.Key, offset, scanPageSize)
			if err != nil {
				return nil, err
			}
			items = append(items, page.Items...)
			if !page.HasMore || len(page.Items) == 0 {
				break
			}
		}
	}
	c.cache.put(ctx, key, items)
	return items, nil
}

// ThumbnailURL builds a fetchable URL for a server-relative artwork path,
// authenticated with the server's own token so shared servers work.
func (c *Client) ThumbnailURL(ctx context.Context, serverName, thumbPath string) (string, error) {
	srv, err := c.server(ctx, serverName)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(thumbPath, "/") {
		thumbPath = "/" + thumbPath
	}
	return srv.URL() + thumbPath + "?X-Plex-Token=" + url.QueryEscape(srv.AccessToken), nil
}

// item fetches one item by rating key from the named server.
func (c *Client) item(ctx context.Context, srv *Server, ratingKey string) (*MediaItem, error) {
	rawURL := fmt.Sprintf("%s/library/metadata/%s", srv.URL(), url.PathEscape(ratingKey))
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, srv.AccessToken)
	if err != nil {
		return nil, err
	}
	var body containerResponse
	if err := c.do(req, &body); err != nil {
		return nil, err
	}
	if len(body.MediaContainer.Metadata) == 0 {
		return nil, fmt.Errorf("plex item %s not found on %s", ratingKey, srv.Name)
	}
	item := body.MediaContainer.Metadata[0].toMediaItem()
	return &item, nil
}
