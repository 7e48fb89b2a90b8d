package conversations

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/plexmate/plexmate/src/models"
)

type record struct {
	title     string
	createdAt time.Time
	updatedAt time.Time
	msgs      []models.Message
}

// Memory is an in-process Store for single-node runs and tests. Expiry is
// checked on access; no background sweep runs.
type Memory struct {
	mu    sync.Mutex
	users map[int64]map[string]*record

	now func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[int64]map[string]*record),
		now:   time.Now,
	}
}

// get returns the live record for the conversation, dropping it if expired.
// Callers hold s.mu.
func (s *Memory) get(userID int64, conversationID string) *record {
	convs := s.users[userID]
	rec, ok := convs[conversationID]
	if !ok {
		return nil
	}
	if s.now().Sub(rec.updatedAt) >= TTL {
		delete(convs, conversationID)
		return nil
	}
	return rec
}

func (s *Memory) Save(_ context.Context, userID int64, conversationID string, msgs []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs := s.users[userID]
	if convs == nil {
		convs = make(map[string]*record)
		s.users[userID] = convs
	}

	now := s.now()
	rec := s.get(userID, conversationID)
	if rec == nil {
		rec = &record{title: DeriveTitle(msgs), createdAt: now}
		convs[conversationID] = rec
	}
	rec.updatedAt = now
	rec.msgs = append([]models.Message(nil), msgs...)

	if len(convs) > MaxPerUser {
		s.trimLocked(convs)
	}
	return nil
}

// trimLocked drops the oldest conversations down to MaxPerUser.
func (s *Memory) trimLocked(convs map[string]*record) {
	type aged struct {
		id string
		at time.Time
	}
	all := make([]aged, 0, len(convs))
	for id, rec := range convs {
		all = append(all, aged{id, rec.updatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for _, a := range all[:len(all)-MaxPerUser] {
		delete(convs, a.id)
	}
}

func (s *Memory) Load(_ context.Context, userID int64, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.get(userID, conversationID)
	if rec == nil {
		return nil, ErrNotFound
	}
	return append([]models.Message(nil), rec.msgs...), nil
}

func (s *Memory) List(_ context.Context, userID int64, limit int) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	var out []Summary
	for id, rec := range s.users[userID] {
		if s.now().Sub(rec.updatedAt) >= TTL {
			continue
		}
		out = append(out, Summary{
			ConversationID: id,
			Title:          rec.title,
			CreatedAt:      rec.createdAt,
			UpdatedAt:      rec.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) Delete(_ context.Context, userID int64, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs := s.users[userID]
	if _, ok := convs[conversationID]; !ok {
		return false, nil
	}
	delete(convs, conversationID)
	return true, nil
}

func (s *Memory) History(_ context.Context, userID int64, conversationID string) (*History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.get(userID, conversationID)
	if rec == nil {
		return nil, ErrNotFound
	}
	return &History{
		ConversationID: conversationID,
		Title:          rec.title,
		Messages:       displayMessages(rec.msgs),
	}, nil
}

var _ Store = (*Memory)(nil)
