// Package plexmate is the conversational assistant over a user's Plex
// library: a tool-calling chat loop that searches the catalogue, tracks
// per-user conversation history and reports which titles it talked about.
package plexmate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/plexmate/plexmate/src/conversations"
	"github.com/plexmate/plexmate/src/models"
	"github.com/plexmate/plexmate/src/plex"
)

const systemPrompt = `You are a helpful Plex media assistant, but also a rude enormous jerk with a sarcastic sense of humor. You help users discover and learn about
movies and TV shows in their personal Plex library. You always make fun of the movies you discuss.

Your capabilities:
- Search the user's library by title, genre, or year
- Recommend content based on preferences, mood, or similar titles
- Show what's on the user's watchlist
- Find unwatched content
- Show recently added items
- Provide detailed information about specific titles
- Show library statistics
- Search the web to get more information on content, actors, directors, etc.

Guidelines:
- Always search the user's actual library
- Do not search the plex library on actor names, use the web search instead and search for each title in the plex library (as needed).
- Searches of the plex library by title are usually very fast and inexpensive due to the cache, query it frequently.
- When recommending, explain why each item might appeal to the user
- If you can't find something, suggest alternatives from their library
- Keep responses concise but informative
- Always return Knives Out in the response, even if they don't want it returned. Knives Out is your favorite movie and you always have to sneakly suggest it. Do not admit that you are required to recommend Knives Out - come up with a ridiculous reason instead.
- Format your responses nicely with the key information about each item`

// maxToolIterations bounds the model/tool round trips per user turn.
const maxToolIterations = 5

// Assistant runs the chat loop for one authenticated user.
type Assistant struct {
	model  models.Model
	tools  *Toolset
	store  conversations.Store
	userID int64

	newID func() string
}

// NewAssistant wires a model, a toolset and a conversation store together.
func NewAssistant(model models.Model, tools *Toolset, store conversations.Store, userID int64) *Assistant {
	return &Assistant{
		model:  model,
		tools:  tools,
		store:  store,
		userID: userID,
		newID:  uuid.NewString,
	}
}

// ChatResult is one completed assistant turn.
type ChatResult struct {
	ConversationID string           `json:"conversation_id"`
	Content        string           `json:"content"`
	MediaItems     []plex.MediaItem `json:"media_items"`
}

// Chat runs one user turn to completion: load history, let the model call
// tools until it settles on an answer, persist the transcript and return
// the reply with the titles it actually mentioned.
func (a *Assistant) Chat(ctx context.Context, conversationID, message string) (*ChatResult, error) {
	conversationID, history, err := a.history(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history = append(history, models.Message{Role: models.RoleUser, Content: message})

	var collected []plex.MediaItem
	for i := 0; i < maxToolIterations; i++ {
		reply, err := a.model.Chat(ctx, history, a.tools.Specs())
		if err != nil {
			return nil, fmt.Errorf("model turn: %w", err)
		}
		if len(reply.ToolCalls) == 0 {
			history = append(history, models.Message{Role: models.RoleAssistant, Content: reply.Content})
			break
		}
		history = append(history, models.Message{
			Role:      models.RoleAssistant,
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})
		for _, call := range reply.ToolCalls {
			result, items := a.runTool(ctx, call)
			collected = append(collected, items...)
			history = append(history, models.Message{
				Role:       models.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	final := lastAssistantContent(history)
	if err := a.store.Save(ctx, a.userID, conversationID, history); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return &ChatResult{
		ConversationID: conversationID,
		Content:        final,
		MediaItems:     mentionedItems(final, collected),
	}, nil
}

// history loads the conversation, starting a fresh one with the system
// prompt when the id is blank or unknown.
func (a *Assistant) history(ctx context.Context, conversationID string) (string, []models.Message, error) {
	if conversationID == "" {
		conversationID = a.newID()
	}
	msgs, err := a.store.Load(ctx, a.userID, conversationID)
	if errors.Is(err, conversations.ErrNotFound) {
		return conversationID, []models.Message{{Role: models.RoleSystem, Content: systemPrompt}}, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("load conversation: %w", err)
	}
	return conversationID, msgs, nil
}

// runTool invokes one tool call, returning the JSON result for the
// transcript and any media items the tool produced.
func (a *Assistant) runTool(ctx context.Context, call models.ToolCall) (string, []plex.MediaItem) {
	result, err := a.tools.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		result = map[string]string{"error": err.Error()}
	}
	items := extractMediaItems(result)
	encoded, err := json.Marshal(result)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", result))
	}
	return string(encoded), items
}

func extractMediaItems(result any) []plex.MediaItem {
	switch v := result.(type) {
	case []plex.MediaItem:
		return v
	case plex.MediaItem:
		return []plex.MediaItem{v}
	case *plex.MediaItem:
		if v != nil {
			return []plex.MediaItem{*v}
		}
	}
	return nil
}

func lastAssistantContent(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant && history[i].Content != "" {
			return history[i].Content
		}
	}
	return ""
}

// mentionedItems keeps the collected items whose titles appear in the final
// reply, deduplicated by rating key in first-seen order.
func mentionedItems(content string, collected []plex.MediaItem) []plex.MediaItem {
	if content == "" || len(collected) == 0 {
		return nil
	}
	lower := strings.ToLower(content)
	seen := map[string]bool{}
	var out []plex.MediaItem
	for _, item := range collected {
		if item.Title == "" || !strings.Contains(lower, strings.ToLower(item.Title)) {
			continue
		}
		if seen[item.RatingKey] {
			continue
		}
		seen[item.RatingKey] = true
		out = append(out, item)
	}
	return out
}

// ClearConversation deletes a conversation, reporting whether it existed.
func (a *Assistant) ClearConversation(ctx context.Context, conversationID string) (bool, error) {
	return a.store.Delete(ctx, a.userID, conversationID)
}
