// Command plexmate serves the Plex assistant API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plexmate/plexmate/src/blobcache"
	"github.com/plexmate/plexmate/src/config"
	"github.com/plexmate/plexmate/src/conversations"
	"github.com/plexmate/plexmate/src/fetcher"
	"github.com/plexmate/plexmate/src/httpapi"
	"github.com/plexmate/plexmate/src/models"
	"github.com/plexmate/plexmate/src/plex"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	blobs, err := blobcache.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open blob cache: %w", err)
	}
	defer blobs.Close()
	blobs.MaxAge = cfg.CacheTTL

	conv, closeConv, err := openConversationStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConv()

	model, err := models.NewProvider(ctx, cfg.LLMProvider, cfg.LLMModel)
	if err != nil {
		return err
	}
	model = models.MaybeCached(model)

	sched := fetcher.New(fetcher.DefaultMaxConcurrent, blobs, &http.Client{Timeout: 30 * time.Second})
	auth := plex.NewAuth(cfg.PlexClientIdentifier, cfg.PlexProductName, []byte(cfg.SessionSecretKey), cfg.JWTExpiration)

	api := httpapi.New(cfg, auth, blobs, conv, sched, model)
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses stay open
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s (provider=%s model=%s store=%s)",
			cfg.Addr, cfg.LLMProvider, cfg.LLMModel, cfg.ConversationStore)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Print("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openConversationStore(ctx context.Context, cfg *config.Config) (conversations.Store, func(), error) {
	switch cfg.ConversationStore {
	case "", "memory":
		return conversations.NewMemory(), func() {}, nil
	case "postgres":
		s, err := conversations.NewPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "mongo":
		s, err := conversations.NewMongo(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.Close(closeCtx)
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown conversation store %q", cfg.ConversationStore)
	}
}
