package models

import (
	"context"
	"errors"
	"fmt"
	"os"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiModel implements Model over the Generative Language API. Tool specs
// are not forwarded; the conversation is flattened into a single prompt.
type GeminiModel struct {
	Client *genai.Client
	Model  string
}

// NewGeminiModel reads GOOGLE_API_KEY (or GEMINI_API_KEY) from the
// environment.
func NewGeminiModel(ctx context.Context, model string) (*GeminiModel, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &GeminiModel{Client: client, Model: model}, nil
}

func (g *GeminiModel) Chat(ctx context.Context, msgs []Message, _ []ToolSpec) (*Reply, error) {
	model := g.Client.GenerativeModel(g.Model)
	resp, err := model.GenerateContent(ctx, genai.Text(transcript(msgs)))
	if err != nil {
		return nil, fmt.Errorf("gemini chat: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: empty response")
	}
	return &Reply{Content: fmt.Sprint(resp.Candidates[0].Content.Parts[0])}, nil
}

func (g *GeminiModel) ChatStream(ctx context.Context, msgs []Message, _ []ToolSpec) (<-chan StreamChunk, error) {
	model := g.Client.GenerativeModel(g.Model)
	iter := model.GenerateContentStream(ctx, genai.Text(transcript(msgs)))

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		var full string
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				ch <- StreamChunk{Done: true, FullText: full}
				return
			}
			if err != nil {
				ch <- StreamChunk{Done: true, FullText: full, Err: err}
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			delta := fmt.Sprint(resp.Candidates[0].Content.Parts[0])
			if delta != "" {
				full += delta
				ch <- StreamChunk{Delta: delta}
			}
		}
	}()
	return ch, nil
}

var _ Model = (*GeminiModel)(nil)
