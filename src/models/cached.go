package models

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/plexmate/plexmate/src/cache"
)

// CachedModel wraps a Model and memoizes Chat replies keyed on the full
// transcript. Replies that request tool calls are never cached, since the
// tool results they lead to are time-sensitive.
type CachedModel struct {
	inner Model
	cache *cache.LRU
	name  string
}

// NewCachedModel wraps inner with an LRU reply cache.
func NewCachedModel(inner Model, capacity int, ttl time.Duration) *CachedModel {
	return &CachedModel{
		inner: inner,
		cache: cache.NewLRU(capacity, ttl),
		name:  fmt.Sprintf("%T", inner),
	}
}

func (m *CachedModel) key(msgs []Message, tools []ToolSpec) string {
	parts := make([]string, 0, len(msgs)*2+len(tools)+1)
	parts = append(parts, m.name)
	for _, msg := range msgs {
		parts = append(parts, msg.Role, msg.Content)
	}
	for _, t := range tools {
		parts = append(parts, t.Name)
	}
	return cache.Key(parts...)
}

func (m *CachedModel) Chat(ctx context.Context, msgs []Message, tools []ToolSpec) (*Reply, error) {
	k := m.key(msgs, tools)
	if v, ok := m.cache.Get(k); ok {
		reply := v.(Reply)
		return &reply, nil
	}
	reply, err := m.inner.Chat(ctx, msgs, tools)
	if err != nil {
		return nil, err
	}
	if len(reply.ToolCalls) == 0 {
		m.cache.Set(k, *reply)
	}
	return reply, nil
}

// ChatStream replays a cached reply as a single chunk when available,
// otherwise delegates to the wrapped model without caching the stream.
func (m *CachedModel) ChatStream(ctx context.Context, msgs []Message, tools []ToolSpec) (<-chan StreamChunk, error) {
	if v, ok := m.cache.Get(m.key(msgs, tools)); ok {
		reply := v.(Reply)
		return singleChunkStream(reply.Content, nil), nil
	}
	return m.inner.ChatStream(ctx, msgs, tools)
}

// MaybeCached wraps inner with a reply cache when MODEL_CACHE_SIZE is set to
// a positive integer. MODEL_CACHE_TTL_SECONDS controls expiry, defaulting to
// an hour.
func MaybeCached(inner Model) Model {
	size, err := strconv.Atoi(os.Getenv("MODEL_CACHE_SIZE"))
	if err != nil || size <= 0 {
		return inner
	}
	ttl := time.Hour
	if secs, err := strconv.Atoi(os.Getenv("MODEL_CACHE_TTL_SECONDS")); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	return NewCachedModel(inner, size, ttl)
}
