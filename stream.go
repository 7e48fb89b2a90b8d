package plexmate

import (
	"context"
	"fmt"
	"log"

	"github.com/plexmate/plexmate/src/models"
	"github.com/plexmate/plexmate/src/plex"
	"github.com/plexmate/plexmate/src/sse"
)

// ChatStream runs one user turn like Chat but emits the result as a stream
// of events: the conversation id first, a tool_call event per tool the
// model uses, the answer as incremental content events, then the mentioned
// media items and a final done event. Tool rounds themselves are not
// streamed; only the closing answer is. On a model failure the channel is
// closed without a done event.
func (a *Assistant) ChatStream(ctx context.Context, conversationID, message string) <-chan sse.Event {
	out := make(chan sse.Event, 16)
	go func() {
		defer close(out)
		if err := a.chatStream(ctx, conversationID, message, out); err != nil {
			log.Printf("chat stream: %v", err)
		}
	}()
	return out
}

func (a *Assistant) chatStream(ctx context.Context, conversationID, message string, out chan<- sse.Event) error {
	conversationID, history, err := a.history(ctx, conversationID)
	if err != nil {
		return err
	}
	out <- sse.Event{Type: sse.EventConversationID, ConversationID: conversationID}

	history = append(history, models.Message{Role: models.RoleUser, Content: message})

	// Tool rounds run to completion before anything streams.
	var collected []plex.MediaItem
	for i := 0; i < maxToolIterations; i++ {
		reply, err := a.model.Chat(ctx, history, a.tools.Specs())
		if err != nil {
			return fmt.Errorf("model turn: %w", err)
		}
		if len(reply.ToolCalls) == 0 {
			break
		}
		history = append(history, models.Message{
			Role:      models.RoleAssistant,
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})
		for _, call := range reply.ToolCalls {
			out <- sse.Event{Type: sse.EventToolCall, Tool: call.Name}
			result, items := a.runTool(ctx, call)
			collected = append(collected, items...)
			history = append(history, models.Message{
				Role:       models.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	// Stream the closing answer.
	chunks, err := a.model.ChatStream(ctx, history, a.tools.Specs())
	if err != nil {
		return fmt.Errorf("start answer stream: %w", err)
	}
	var full string
	for chunk := range chunks {
		if chunk.Err != nil {
			return fmt.Errorf("answer stream: %w", chunk.Err)
		}
		if chunk.Delta != "" {
			full += chunk.Delta
			out <- sse.Event{Type: sse.EventContent, Content: chunk.Delta}
		}
		if chunk.Done && chunk.FullText != "" {
			full = chunk.FullText
		}
	}

	if full != "" {
		history = append(history, models.Message{Role: models.RoleAssistant, Content: full})
	}
	if err := a.store.Save(ctx, a.userID, conversationID, history); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	if items := mentionedItems(full, collected); len(items) > 0 {
		out <- sse.Event{Type: sse.EventMediaItems, Items: items}
	}
	out <- sse.Event{Type: sse.EventDone}
	return nil
}
