package models

import (
	"context"
	"fmt"
	"strings"
)

// NewProvider builds a Model for the named provider. Credentials come from
// the environment; see the per-provider constructors for the variables read.
func NewProvider(ctx context.Context, provider, model string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return NewOpenAIModel(model), nil
	case "anthropic", "claude":
		return NewAnthropicModel(model), nil
	case "gemini", "google":
		return NewGeminiModel(ctx, model)
	case "ollama":
		return NewOllamaModel(model)
	case "dummy":
		return NewDummyModel(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", provider)
	}
}
