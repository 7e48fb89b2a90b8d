// Package conversations persists per-user chat history. Backends share the
// same retention rules: conversations expire after 30 days of inactivity
// and each user keeps at most the 50 most recently updated ones.
package conversations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/plexmate/plexmate/src/models"
)

const (
	// TTL is how long an untouched conversation survives.
	TTL = 30 * 24 * time.Hour
	// MaxPerUser caps stored conversations per user; the oldest are
	// trimmed on save.
	MaxPerUser = 50
)

// ErrNotFound is returned when a conversation does not exist or has expired.
var ErrNotFound = errors.New("conversation not found")

// Summary is one row of a user's conversation list.
type Summary struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DisplayMessage is a message as shown to the user.
type DisplayMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is a conversation prepared for display.
type History struct {
	ConversationID string           `json:"conversation_id"`
	Title          string           `json:"title"`
	Messages       []DisplayMessage `json:"messages"`
}

// Store persists conversations for the assistant.
type Store interface {
	// Save writes the full message list, deriving a title on first save
	// and trimming the user to MaxPerUser conversations.
	Save(ctx context.Context, userID int64, conversationID string, msgs []models.Message) error
	// Load returns the raw message list, or ErrNotFound.
	Load(ctx context.Context, userID int64, conversationID string) ([]models.Message, error)
	// List returns up to limit summaries, newest first.
	List(ctx context.Context, userID int64, limit int) ([]Summary, error)
	// Delete removes a conversation, reporting whether it existed.
	Delete(ctx context.Context, userID int64, conversationID string) (bool, error)
	// History returns the conversation filtered to displayable messages,
	// or ErrNotFound.
	History(ctx context.Context, userID int64, conversationID string) (*History, error)
}

// DeriveTitle names a conversation after its first user message, truncated
// to 80 characters.
func DeriveTitle(msgs []models.Message) string {
	for _, m := range msgs {
		if m.Role != models.RoleUser {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if runes := []rune(content); len(runes) > 80 {
			return string(runes[:77]) + "..."
		}
		return content
	}
	return "New conversation"
}

// displayMessages keeps only non-empty user and assistant turns.
func displayMessages(msgs []models.Message) []DisplayMessage {
	out := make([]DisplayMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		if m.Content == "" {
			continue
		}
		out = append(out, DisplayMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
