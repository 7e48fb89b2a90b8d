package models

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicModel implements Model over the Messages API. Tool specs are not
// forwarded; the assistant runs tool-free against this provider and the
// conversation is flattened into a single prompt.
type AnthropicModel struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

// NewAnthropicModel reads ANTHROPIC_API_KEY from the environment.
func NewAnthropicModel(model string) *AnthropicModel {
	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
	)
	return &AnthropicModel{Client: &cl, Model: model, MaxTokens: 1024}
}

func (a *AnthropicModel) Chat(ctx context.Context, msgs []Message, _ []ToolSpec) (*Reply, error) {
	msg, err := a.Client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(a.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(transcript(msgs))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return &Reply{Content: b.String()}, nil
}

func (a *AnthropicModel) ChatStream(ctx context.Context, msgs []Message, tools []ToolSpec) (<-chan StreamChunk, error) {
	reply, err := a.Chat(ctx, msgs, tools)
	if err != nil {
		return nil, err
	}
	return singleChunkStream(reply.Content, nil), nil
}

var _ Model = (*AnthropicModel)(nil)
