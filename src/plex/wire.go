package plex

import (
	"strconv"
	"time"
)

// Wire-format structs for the Plex JSON API. Plex nests everything under a
// MediaContainer and capitalizes repeated elements (Directory, Metadata,
// Genre, Guid).

type resourcesResponse []wireResource

type wireResource struct {
	Name             string           `json:"name"`
	Product          string           `json:"product"`
	Owned            bool             `json:"owned"`
	ClientIdentifier string           `json:"clientIdentifier"`
	AccessToken      string           `json:"accessToken"`
	Connections      []wireConnection `json:"connections"`
}

type wireConnection struct {
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	URI      string `json:"uri"`
	Local    bool   `json:"local"`
}

type containerResponse struct {
	MediaContainer struct {
		Size      int             `json:"size"`
		TotalSize int             `json:"totalSize"`
		Directory []wireDirectory `json:"Directory"`
		Metadata  []wireMetadata  `json:"Metadata"`
	} `json:"MediaContainer"`
}

type wireDirectory struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Agent   string `json:"agent"`
	Scanner string `json:"scanner"`
	Thumb   string `json:"thumb"`
	Count   int    `json:"count"`
}

type wireMetadata struct {
	RatingKey             string    `json:"ratingKey"`
	Key                   string    `json:"key"`
	GUID                  string    `json:"guid"`
	Guids                 []wireTag `json:"Guid"`
	Title                 string    `json:"title"`
	Type                  string    `json:"type"`
	Summary               string    `json:"summary"`
	Year                  int       `json:"year"`
	Thumb                 string    `json:"thumb"`
	Art                   string    `json:"art"`
	Duration              int64     `json:"duration"`
	AddedAt               int64     `json:"addedAt"`
	OriginallyAvailableAt string    `json:"originallyAvailableAt"`
	Genre                 []wireTag `json:"Genre"`
	Rating                float64   `json:"rating"`
	AudienceRating        float64   `json:"audienceRating"`
	ContentRating         string    `json:"contentRating"`
	ViewCount             int       `json:"viewCount"`
	ChildCount            int       `json:"childCount"`
	LeafCount             int       `json:"leafCount"`
}

type wireTag struct {
	ID  string `json:"id,omitempty"`
	Tag string `json:"tag,omitempty"`
}

type wireUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Thumb    string `json:"thumb"`
}

type wirePin struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	ExpiresAt string `json:"expiresAt"`
	AuthToken string `json:"authToken"`
}

func (m wireMetadata) toMediaItem() MediaItem {
	item := MediaItem{
		RatingKey:             m.RatingKey,
		GUID:                  m.guid(),
		Title:                 m.Title,
		Type:                  m.Type,
		Summary:               m.Summary,
		Year:                  m.Year,
		Thumb:                 m.Thumb,
		Art:                   m.Art,
		DurationMS:            m.Duration,
		OriginallyAvailableAt: m.OriginallyAvailableAt,
		Rating:                m.Rating,
		ContentRating:         m.ContentRating,
		ViewCount:             m.ViewCount,
	}
	if item.Rating == 0 {
		item.Rating = m.AudienceRating
	}
	if m.AddedAt > 0 {
		t := time.Unix(m.AddedAt, 0).UTC()
		item.AddedAt = &t
	}
	for _, g := range m.Genre {
		item.Genres = append(item.Genres, g.Tag)
	}
	if m.Type == "show" {
		item.SeasonCount = m.ChildCount
		item.EpisodeCount = m.LeafCount
	}
	return item
}

// guid returns the most specific identifier available for the item.
func (m wireMetadata) guid() string {
	if m.GUID != "" {
		return m.GUID
	}
	if len(m.Guids) > 0 && m.Guids[0].ID != "" {
		return m.Guids[0].ID
	}
	if m.RatingKey != "" {
		return "plex://" + m.Type + "/" + m.RatingKey
	}
	if m.Key != "" {
		return m.Key
	}
	return "local://" + m.Type + "/" + m.Title + "/" + strconv.Itoa(m.Year)
}
