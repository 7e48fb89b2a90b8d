// Package sse implements the assistant's server-sent event stream: an
// Encoder producing `data: <json>` frames and a Decoder turning a byte
// stream of such frames back into typed events.
package sse

import (
	"encoding/json"

	"github.com/plexmate/plexmate/src/plex"
)

// Event types carried in the "type" discriminant.
const (
	EventConversationID = "conversation_id"
	EventToolCall       = "tool_call"
	EventMediaItems     = "media_items"
	EventContent        = "content"
	EventDone           = "done"
)

// Event is one frame of the chat stream. Only the fields relevant to Type
// are populated.
type Event struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Tool           string           `json:"tool,omitempty"`
	Items          []plex.MediaItem `json:"items,omitempty"`
	Content        string           `json:"content,omitempty"`
}

// Marshal renders the event as a wire frame without the trailing delimiter.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Handler receives decoded events. Nil callbacks are skipped. OnError is
// invoked at most once, for transport failures only; malformed frames and
// unknown event types are dropped silently.
type Handler struct {
	OnConversationID func(id string)
	OnToolCall       func(tool string)
	OnMediaItems     func(items []plex.MediaItem)
	OnContent        func(fragment string)
	OnDone           func()
	OnError          func(err error)
}

func (h Handler) dispatch(ev Event) {
	switch ev.Type {
	case EventConversationID:
		if h.OnConversationID != nil {
			h.OnConversationID(ev.ConversationID)
		}
	case EventToolCall:
		if h.OnToolCall != nil {
			h.OnToolCall(ev.Tool)
		}
	case EventMediaItems:
		if h.OnMediaItems != nil {
			h.OnMediaItems(ev.Items)
		}
	case EventContent:
		if h.OnContent != nil {
			h.OnContent(ev.Content)
		}
	case EventDone:
		if h.OnDone != nil {
			h.OnDone()
		}
	}
}
