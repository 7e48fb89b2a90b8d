// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"ADDR" envDefault:":8000"`
	// FrontendURL is allowed as a CORS origin.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// PlexClientIdentifier identifies this app to plex.tv. Left empty, a
	// random identifier is generated per process.
	PlexClientIdentifier string `env:"PLEX_CLIENT_IDENTIFIER"`
	PlexProductName      string `env:"PLEX_PRODUCT_NAME" envDefault:"Plex Media Dashboard"`

	SessionSecretKey string        `env:"SESSION_SECRET_KEY" envDefault:"change-me-in-production"`
	JWTExpiration    time.Duration `env:"JWT_EXPIRATION" envDefault:"168h"`

	// CachePath is the blob cache database file.
	CachePath string        `env:"CACHE_PATH" envDefault:"plexmate-cache.db"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"168h"`

	// ConversationStore selects the history backend: memory, postgres or
	// mongo.
	ConversationStore string `env:"CONVERSATION_STORE" envDefault:"memory"`
	PostgresURL       string `env:"POSTGRES_URL" envDefault:""`
	MongoURL          string `env:"MONGO_URL" envDefault:"mongodb://localhost:27017"`
	MongoDatabase     string `env:"MONGO_DATABASE" envDefault:"plexmate"`

	// LLMProvider selects the chat model backend: openai, anthropic,
	// gemini, ollama or dummy.
	LLMProvider string `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMModel    string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`

	// TavilyAPIKey enables the web_search tool. Empty leaves it off.
	TavilyAPIKey string `env:"TAVILY_API_KEY" envDefault:""`
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.PlexClientIdentifier == "" {
		cfg.PlexClientIdentifier = uuid.NewString()
	}
	return cfg, nil
}
