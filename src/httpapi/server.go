// Package httpapi exposes the assistant and the Plex browsing surface over
// HTTP: PIN authentication, media endpoints and the chat endpoints with
// their server-sent event stream.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/plexmate/plexmate"
	"github.com/plexmate/plexmate/src/blobcache"
	"github.com/plexmate/plexmate/src/config"
	"github.com/plexmate/plexmate/src/conversations"
	"github.com/plexmate/plexmate/src/fetcher"
	"github.com/plexmate/plexmate/src/models"
	"github.com/plexmate/plexmate/src/plex"
)

// Server is the HTTP API. One instance serves every user; per-request Plex
// clients are built from the session token.
type Server struct {
	cfg    *config.Config
	auth   *plex.Auth
	blobs  *blobcache.Store
	conv   conversations.Store
	sched  *fetcher.Scheduler
	model  models.Model
	search *plexmate.WebSearcher
	mux    *http.ServeMux

	// newClient builds the per-user Plex client. Tests swap it out.
	newClient func(token string) *plex.Client
}

// New wires the API over the given backends.
func New(cfg *config.Config, auth *plex.Auth, blobs *blobcache.Store, conv conversations.Store, sched *fetcher.Scheduler, model models.Model) *Server {
	s := &Server{
		cfg:   cfg,
		auth:  auth,
		blobs: blobs,
		conv:  conv,
		sched: sched,
		model: model,
	}
	if cfg.TavilyAPIKey != "" {
		s.search = plexmate.NewWebSearcher(cfg.TavilyAPIKey)
	}
	s.newClient = func(token string) *plex.Client {
		return plex.NewClient(token, cfg.PlexClientIdentifier, cfg.PlexProductName, blobs)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/pin", s.handleCreatePin)
	mux.HandleFunc("GET /api/auth/pin/{id}", s.handleCheckPin)
	mux.HandleFunc("POST /api/auth/token", s.handleExchangeToken)
	mux.Handle("GET /api/auth/me", s.requireAuth(s.handleMe))

	mux.Handle("GET /api/media/servers", s.requireAuth(s.handleServers))
	mux.Handle("GET /api/media/libraries", s.requireAuth(s.handleLibraries))
	mux.Handle("GET /api/media/libraries/{key}/items", s.requireAuth(s.handleLibraryItems))
	mux.Handle("GET /api/media/thumbnail", s.requireAuth(s.handleThumbnail))
	mux.Handle("GET /api/media/watchlist", s.requireAuth(s.handleWatchlist))
	mux.Handle("GET /api/media/watchlist/status", s.requireAuth(s.handleWatchlistStatus))
	mux.Handle("POST /api/media/watchlist", s.requireAuth(s.handleWatchlistAdd))
	mux.Handle("DELETE /api/media/watchlist", s.requireAuth(s.handleWatchlistRemove))
	mux.Handle("DELETE /api/media/cache", s.requireAuth(s.handleClearCache))

	mux.Handle("POST /api/agent/chat", s.requireAuth(s.handleChat))
	mux.Handle("POST /api/agent/chat/stream", s.requireAuth(s.handleChatStream))
	mux.Handle("GET /api/agent/conversations", s.requireAuth(s.handleConversations))
	mux.Handle("GET /api/agent/conversations/{id}", s.requireAuth(s.handleConversationHistory))
	mux.Handle("DELETE /api/agent/conversation/{id}", s.requireAuth(s.handleClearConversation))

	s.mux = mux
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.cors(s.mux)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.FrontendURL)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey int

const claimsKey ctxKey = 0

// requireAuth validates the session token from the Authorization header,
// falling back to a token query parameter for resources loaded through
// plain URLs (thumbnails).
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing session token")
			return
		}
		claims, err := s.auth.VerifySessionToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func sessionClaims(r *http.Request) *plex.SessionClaims {
	claims, _ := r.Context().Value(claimsKey).(*plex.SessionClaims)
	return claims
}

// client builds the Plex client for the authenticated user.
func (s *Server) client(r *http.Request) *plex.Client {
	return s.newClient(sessionClaims(r).PlexToken)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
