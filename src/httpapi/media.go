package httpapi

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
)

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.client(r).Servers(r.Context())
	if err != nil {
		log.Printf("list servers: %v", err)
		writeError(w, http.StatusBadGateway, "failed to connect to Plex")
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (s *Server) handleLibraries(w http.ResponseWriter, r *http.Request) {
	serverName := r.URL.Query().Get("server_name")
	if serverName == "" {
		writeError(w, http.StatusBadRequest, "server_name is required")
		return
	}
	libs, err := s.client(r).Libraries(r.Context(), serverName)
	if err != nil {
		log.Printf("list libraries on %s: %v", serverName, err)
		writeError(w, http.StatusBadGateway, "failed to connect to Plex server")
		return
	}
	writeJSON(w, http.StatusOK, libs)
}

func (s *Server) handleLibraryItems(w http.ResponseWriter, r *http.Request) {
	serverName := r.URL.Query().Get("server_name")
	if serverName == "" {
		writeError(w, http.StatusBadRequest, "server_name is required")
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := s.client(r).LibraryItems(r.Context(), serverName, r.PathValue("key"), offset, limit)
	if err != nil {
		log.Printf("library items: %v", err)
		writeError(w, http.StatusBadGateway, "failed to fetch library items")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleThumbnail proxies artwork from the media server. Fetches go through
// the bounded scheduler, so a page of posters cannot stampede the server,
// and land in the blob cache keyed by the upstream URL.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	serverName := r.URL.Query().Get("server_name")
	path := r.URL.Query().Get("path")
	if serverName == "" || path == "" {
		writeError(w, http.StatusBadRequest, "server_name and path are required")
		return
	}
	thumbURL, err := s.client(r).ThumbnailURL(r.Context(), serverName, path)
	if err != nil {
		log.Printf("thumbnail url: %v", err)
		writeError(w, http.StatusBadGateway, "failed to resolve thumbnail")
		return
	}
	handle, err := s.sched.Fetch(r.Context(), thumbURL)
	if err != nil {
		log.Printf("thumbnail fetch: %v", err)
		writeError(w, http.StatusBadGateway, "failed to fetch thumbnail")
		return
	}
	defer handle.Release()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(handle.Bytes())
}

// handleClearCache drops every cached Plex response belonging to the
// authenticated user. Thumbnails stay; they are keyed by URL and age out on
// their own.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	n := s.client(r).ClearCache(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Cleared %d cache entries", n),
	})
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	items, err := s.client(r).Watchlist(r.Context())
	if err != nil {
		log.Printf("watchlist: %v", err)
		writeError(w, http.StatusBadGateway, "failed to get watchlist")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) watchlistParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	serverName := r.URL.Query().Get("server_name")
	ratingKey := r.URL.Query().Get("rating_key")
	if serverName == "" || ratingKey == "" {
		writeError(w, http.StatusBadRequest, "server_name and rating_key are required")
		return "", "", false
	}
	return serverName, ratingKey, true
}

func (s *Server) handleWatchlistStatus(w http.ResponseWriter, r *http.Request) {
	serverName, ratingKey, ok := s.watchlistParams(w, r)
	if !ok {
		return
	}
	st, err := s.client(r).WatchlistStatus(r.Context(), serverName, ratingKey)
	if err != nil {
		log.Printf("watchlist status: %v", err)
		writeError(w, http.StatusBadGateway, "failed to get watchlist status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	serverName, ratingKey, ok := s.watchlistParams(w, r)
	if !ok {
		return
	}
	st, err := s.client(r).AddToWatchlist(r.Context(), serverName, ratingKey)
	if err != nil {
		log.Printf("watchlist add: %v", err)
		writeError(w, http.StatusBadGateway, "failed to add to watchlist")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	serverName, ratingKey, ok := s.watchlistParams(w, r)
	if !ok {
		return
	}
	st, err := s.client(r).RemoveFromWatchlist(r.Context(), serverName, ratingKey)
	if err != nil {
		log.Printf("watchlist remove: %v", err)
		writeError(w, http.StatusBadGateway, "failed to remove from watchlist")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
