package plex

import (
	"context"
	"encoding/json"

	"github.com/plexmate/plexmate/src/blobcache"
	"github.com/plexmate/plexmate/src/cache"
)

// apiCache stores JSON-encoded API responses in the blob cache, so library
// listings survive restarts. Keys carry the owning user in the clear so a
// single prefix delete can evict everything that user has cached; the request
// shape is hashed after it. A nil store disables caching.
type apiCache struct {
	store *blobcache.Store
}

func (c *apiCache) key(prefix, userID string, args ...string) string {
	return c.userPrefix(userID) + cache.Key(append([]string{prefix}, args...)...)
}

func (c *apiCache) userPrefix(userID string) string {
	return "plex:" + userID + ":"
}

// clearUser drops every cached response belonging to userID and reports how
// many entries were removed.
func (c *apiCache) clearUser(ctx context.Context, userID string) int {
	if c == nil || c.store == nil {
		return 0
	}
	return c.store.DeletePrefix(ctx, c.userPrefix(userID))
}

// get decodes the cached value for key into v, reporting whether a usable
// entry was found.
func (c *apiCache) get(ctx context.Context, key string, v any) bool {
	if c == nil || c.store == nil {
		return false
	}
	h, ok := c.store.Get(ctx, key)
	if !ok {
		return false
	}
	defer h.Release()
	return json.Unmarshal(h.Bytes(), v) == nil
}

// put stores v under key, best effort.
func (c *apiCache) put(ctx context.Context, key string, v any) {
	if c == nil || c.store == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.store.Put(ctx, key, data)
}

func (c *apiCache) delete(ctx context.Context, key string) {
	if c == nil || c.store == nil {
		return
	}
	c.store.Delete(ctx, key)
}
