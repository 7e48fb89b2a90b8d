package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Watchlist returns the account's plex.tv watchlist.
func (c *Client) Watchlist(ctx context.Context) ([]WatchlistItem, error) {
	key := c.cache.key("watchlist", c.cacheUserID(ctx))
	var items []WatchlistItem
	if c.cache.get(ctx, key, &items) {
		return items, nil
	}

	raw, err := c.fetchWatchlist(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range raw {
		items = append(items, WatchlistItem{
			GUID:  m.guid(),
			Title: m.Title,
			Type:  m.Type,
			Year:  m.Year,
			Thumb: m.Thumb,
		})
	}
	c.cache.put(ctx, key, items)
	return items, nil
}

func (c *Client) fetchWatchlist(ctx context.Context) ([]wireMetadata, error) {
	rawURL := c.DiscoverURL + "/library/sections/watchlist/all"
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, c.Token)
	if err != nil {
		return nil, err
	}
	var body containerResponse
	if err := c.do(req, &body); err != nil {
		return nil, err
	}
	return body.MediaContainer.Metadata, nil
}

// WatchlistStatus reports whether the item with the given rating key on the
// named server is on the account's watchlist. Matching is by guid, falling
// back to title and year since server items and discover items carry
// different identifiers.
func (c *Client) WatchlistStatus(ctx context.Context, serverName, ratingKey string) (*WatchlistStatus, error) {
	srv, err := c.server(ctx, serverName)
	if err != nil {
		return nil, err
	}
	item, err := c.item(ctx, srv, ratingKey)
	if err != nil {
		return nil, err
	}
	raw, err := c.fetchWatchlist(ctx)
	if err != nil {
		return nil, err
	}
	on := false
	for _, m := range raw {
		if matchesWatchlist(item, m) {
			on = true
			break
		}
	}
	return &WatchlistStatus{RatingKey: ratingKey, Title: item.Title, OnWatchlist: on}, nil
}

// AddToWatchlist puts the item on the account's watchlist.
func (c *Client) AddToWatchlist(ctx context.Context, serverName, ratingKey string) (*WatchlistStatus, error) {
	title, err := c.watchlistAction(ctx, serverName, ratingKey, "addToWatchlist")
	if err != nil {
		return nil, err
	}
	return &WatchlistStatus{RatingKey: ratingKey, Title: title, OnWatchlist: true}, nil
}

// RemoveFromWatchlist takes the item off the account's watchlist.
func (c *Client) RemoveFromWatchlist(ctx context.Context, serverName, ratingKey string) (*WatchlistStatus, error) {
	title, err := c.watchlistAction(ctx, serverName, ratingKey, "removeFromWatchlist")
	if err != nil {
		return nil, err
	}
	return &WatchlistStatus{RatingKey: ratingKey, Title: title, OnWatchlist: false}, nil
}

func (c *Client) watchlistAction(ctx context.Context, serverName, ratingKey, action string) (string, error) {
	srv, err := c.server(ctx, serverName)
	if err != nil {
		return "", err
	}
	item, err := c.item(ctx, srv, ratingKey)
	if err != nil {
		return "", err
	}
	discoverKey, err := discoverRatingKey(item.GUID)
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", action, item.Title, err)
	}
	rawURL := fmt.Sprintf("%s/actions/%s?ratingKey=%s", c.DiscoverURL, action, url.QueryEscape(discoverKey))
	req, err := c.newRequest(ctx, http.MethodPut, rawURL, c.Token)
	if err != nil {
		return "", err
	}
	if err := c.do(req, nil); err != nil {
		return "", err
	}
	// The cached watchlist is stale now.
	c.cache.delete(ctx, c.cache.key("watchlist", c.cacheUserID(ctx)))
	return item.Title, nil
}

// discoverRatingKey extracts the plex.tv metadata id from a guid of the form
// plex://movie/5d776b59ad5437001f79c6f8.
func discoverRatingKey(guid string) (string, error) {
	rest, ok := strings.CutPrefix(guid, "plex://")
	if !ok {
		return "", fmt.Errorf("guid %q has no plex.tv metadata id", guid)
	}
	parts := strings.Split(rest, "/")
	id := parts[len(parts)-1]
	if id == "" {
		return "", fmt.Errorf("guid %q has no plex.tv metadata id", guid)
	}
	return id, nil
}

// matchesWatchlist decides whether a server item and a discover watchlist
// entry refer to the same title.
func matchesWatchlist(item *MediaItem, m wireMetadata) bool {
	if item.GUID != "" && item.GUID == m.guid() {
		return true
	}
	for _, g := range m.Guids {
		if g.ID != "" && g.ID == item.GUID {
			return true
		}
	}
	if !strings.EqualFold(item.Title, m.Title) {
		return false
	}
	return item.Year == 0 || m.Year == 0 || item.Year == m.Year
}
