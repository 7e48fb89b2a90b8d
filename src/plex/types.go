// Package plex is a REST client for plex.tv and Plex Media Servers: PIN
// authentication, server discovery, library browsing and the watchlist.
// Library responses are cached through the blob cache with a 7-day TTL.
package plex

import (
	"strconv"
	"time"
)

// Server is a Plex Media Server reachable by the user.
type Server struct {
	Name             string `json:"name"`
	Address          string `json:"address"`
	Port             int    `json:"port"`
	Scheme           string `json:"scheme"`
	Local            bool   `json:"local"`
	Owned            bool   `json:"owned"`
	ClientIdentifier string `json:"client_identifier"`
	AccessToken      string `json:"-"`
}

// URL returns the base URL for direct server requests.
func (s Server) URL() string {
	return s.Scheme + "://" + s.Address + ":" + strconv.Itoa(s.Port)
}

// Library is a movie or show section on a server.
type Library struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Agent   string `json:"agent,omitempty"`
	Scanner string `json:"scanner,omitempty"`
	Thumb   string `json:"thumb,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// MediaItem is a movie or TV show from a Plex library.
type MediaItem struct {
	RatingKey             string     `json:"rating_key"`
	GUID                  string     `json:"guid"`
	Title                 string     `json:"title"`
	Type                  string     `json:"type"`
	Summary               string     `json:"summary,omitempty"`
	Year                  int        `json:"year,omitempty"`
	Thumb                 string     `json:"thumb,omitempty"`
	Art                   string     `json:"art,omitempty"`
	DurationMS            int64      `json:"duration_ms,omitempty"`
	AddedAt               *time.Time `json:"added_at,omitempty"`
	OriginallyAvailableAt string     `json:"originally_available_at,omitempty"`

	Genres        []string `json:"genres,omitempty"`
	Rating        float64  `json:"rating,omitempty"`
	ContentRating string   `json:"content_rating,omitempty"`
	ViewCount     int      `json:"view_count,omitempty"`

	SeasonCount  int `json:"season_count,omitempty"`
	EpisodeCount int `json:"episode_count,omitempty"`
}

// Page is one window of a library listing.
type Page struct {
	Items   []MediaItem `json:"items"`
	Total   int         `json:"total"`
	Offset  int         `json:"offset"`
	Limit   int         `json:"limit"`
	HasMore bool        `json:"has_more"`
}

// WatchlistStatus reports whether one item is on the user's watchlist.
type WatchlistStatus struct {
	RatingKey   string `json:"rating_key"`
	Title       string `json:"title"`
	OnWatchlist bool   `json:"on_watchlist"`
}

// WatchlistItem is an entry from the plex.tv discover watchlist.
type WatchlistItem struct {
	GUID  string `json:"guid"`
	Title string `json:"title"`
	Type  string `json:"type"`
	Year  int    `json:"year,omitempty"`
	Thumb string `json:"thumb,omitempty"`
}

// User is the authenticated plex.tv account.
type User struct {
	ID               int64  `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email,omitempty"`
	Thumb            string `json:"thumb,omitempty"`
	ClientIdentifier string `json:"client_identifier,omitempty"`
}

// Pin is a plex.tv authentication PIN.
type Pin struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	ExpiresAt string `json:"expires_at,omitempty"`
	AuthURL   string `json:"auth_url,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
}
