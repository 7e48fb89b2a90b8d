// Package models abstracts the chat models behind the assistant: OpenAI,
// Anthropic, Gemini and Ollama, plus an offline dummy for tests. Native
// function-calling is supported where the provider API exposes it; the
// remaining providers answer from a flattened transcript.
package models

import (
	"context"
	"strings"
)

// Roles used in conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model's request to invoke a named tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolSpec describes a tool offered to the model. Parameters is a JSON
// schema object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Reply is a single model turn: either assistant text or tool calls.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// StreamChunk is one increment of a streaming completion.
type StreamChunk struct {
	Delta    string
	FullText string
	Done     bool
	Err      error
}

// Model is a chat-capable language model.
type Model interface {
	// Chat runs one completion over the conversation so far.
	Chat(ctx context.Context, msgs []Message, tools []ToolSpec) (*Reply, error)
	// ChatStream streams the completion as deltas. The channel is closed
	// after a chunk with Done set.
	ChatStream(ctx context.Context, msgs []Message, tools []ToolSpec) (<-chan StreamChunk, error)
}

// transcript flattens a conversation into a single prompt for providers
// without a structured chat-with-tools API.
func transcript(msgs []Message) string {
	var sb strings.Builder
	sb.Grow(2048)
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case RoleSystem:
			sb.WriteString(content)
		case RoleTool:
			sb.WriteString("Tool result:\n")
			sb.WriteString(content)
		default:
			sb.WriteString(strings.ToUpper(m.Role[:1]) + m.Role[1:])
			sb.WriteString(": ")
			sb.WriteString(content)
		}
		sb.WriteString("\n\n")
	}
	sb.WriteString("Assistant:")
	return sb.String()
}

// singleChunkStream wraps a finished completion in a stream, mirroring how
// non-streaming providers are exposed.
func singleChunkStream(text string, err error) <-chan StreamChunk {
	ch := make(chan StreamChunk, 1)
	if err != nil {
		ch <- StreamChunk{Err: err, Done: true}
	} else {
		ch <- StreamChunk{Delta: text, FullText: text, Done: true}
	}
	close(ch)
	return ch
}
