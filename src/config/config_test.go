package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.JWTExpiration != 168*time.Hour {
		t.Errorf("JWTExpiration = %v", cfg.JWTExpiration)
	}
	if cfg.CacheTTL != 168*time.Hour {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL)
	}
	if cfg.PlexClientIdentifier == "" {
		t.Error("client identifier should be generated when unset")
	}
	if cfg.ConversationStore != "memory" {
		t.Errorf("ConversationStore = %q", cfg.ConversationStore)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("LLM_PROVIDER", "dummy")
	t.Setenv("PLEX_CLIENT_IDENTIFIER", "fixed-id")
	t.Setenv("JWT_EXPIRATION", "2h")
	t.Setenv("TAVILY_API_KEY", "tvly-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.LLMProvider != "dummy" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.PlexClientIdentifier != "fixed-id" {
		t.Errorf("client identifier = %q", cfg.PlexClientIdentifier)
	}
	if cfg.JWTExpiration != 2*time.Hour {
		t.Errorf("JWTExpiration = %v", cfg.JWTExpiration)
	}
	if cfg.TavilyAPIKey != "tvly-test" {
		t.Errorf("TavilyAPIKey = %q", cfg.TavilyAPIKey)
	}
}
