package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// OllamaModel implements Model against a local Ollama daemon. Tool specs are
// not forwarded; completions run over the structured chat endpoint.
type OllamaModel struct {
	Client *ollama.Client
	Model  string
}

// NewOllamaModel honors OLLAMA_HOST, defaulting to localhost.
func NewOllamaModel(model string) (*OllamaModel, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	client := ollama.NewClient(u, &http.Client{Timeout: 120 * time.Second})
	return &OllamaModel{Client: client, Model: model}, nil
}

func toOllamaMessages(msgs []Message) []ollama.Message {
	out := make([]ollama.Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := m.Role
		if role == RoleTool {
			// Plain chat has no tool role; fold results into user turns.
			role = RoleUser
		}
		out = append(out, ollama.Message{Role: role, Content: m.Content})
	}
	return out
}

func (o *OllamaModel) Chat(ctx context.Context, msgs []Message, _ []ToolSpec) (*Reply, error) {
	stream := false
	var text strings.Builder
	err := o.Client.Chat(ctx, &ollama.ChatRequest{
		Model:    o.Model,
		Messages: toOllamaMessages(msgs),
		Stream:   &stream,
	}, func(resp ollama.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	return &Reply{Content: text.String()}, nil
}

// ChatStream leverages Ollama's native callback-based streaming.
func (o *OllamaModel) ChatStream(ctx context.Context, msgs []Message, _ []ToolSpec) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		var sb strings.Builder
		err := o.Client.Chat(ctx, &ollama.ChatRequest{
			Model:    o.Model,
			Messages: toOllamaMessages(msgs),
		}, func(resp ollama.ChatResponse) error {
			if resp.Message.Content != "" {
				sb.WriteString(resp.Message.Content)
				ch <- StreamChunk{Delta: resp.Message.Content}
			}
			return nil
		})
		if err != nil {
			ch <- StreamChunk{Done: true, FullText: sb.String(), Err: err}
			return
		}
		ch <- StreamChunk{Done: true, FullText: sb.String()}
	}()
	return ch, nil
}

var _ Model = (*OllamaModel)(nil)
