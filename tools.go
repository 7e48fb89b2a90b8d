package plexmate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/plexmate/plexmate/src/models"
	"github.com/plexmate/plexmate/src/plex"
)

// Library is the catalogue surface the assistant's tools run against.
// mediaType is "movie", "show" or "" for everything.
type Library interface {
	AllItems(ctx context.Context, mediaType string) ([]plex.MediaItem, error)
}

// ServerLibrary exposes one Plex server's full catalogue as a Library.
type ServerLibrary struct {
	Client     *plex.Client
	ServerName string
}

func (l *ServerLibrary) AllItems(ctx context.Context, mediaType string) ([]plex.MediaItem, error) {
	return l.Client.AllLibraryItems(ctx, l.ServerName, mediaType)
}

// Tool is one callable offered to the model.
type Tool struct {
	Spec models.ToolSpec
	Run  func(ctx context.Context, args map[string]any) (any, error)
}

// Toolset is the assistant's tool collection bound to a library.
type Toolset struct {
	lib    Library
	tools  []Tool
	byName map[string]*Tool
}

const (
	searchResultCap = 300
	defaultLimit    = 10
)

// NewToolset builds the standard tools over the given library.
func NewToolset(lib Library) *Toolset {
	ts := &Toolset{lib: lib, byName: map[string]*Tool{}}
	ts.register(searchLibraryTool(lib))
	ts.register(recommendationsTool(lib))
	ts.register(unwatchedTool(lib))
	ts.register(recentlyAddedTool(lib))
	ts.register(mediaDetailsTool(lib))
	ts.register(libraryStatsTool(lib))
	return ts
}

func (ts *Toolset) register(t Tool) {
	ts.tools = append(ts.tools, t)
	ts.byName[t.Spec.Name] = &ts.tools[len(ts.tools)-1]
}

// Specs lists the tool definitions for the model.
func (ts *Toolset) Specs() []models.ToolSpec {
	specs := make([]models.ToolSpec, len(ts.tools))
	for i, t := range ts.tools {
		specs[i] = t.Spec
	}
	return specs
}

// Invoke runs the named tool. Unknown names return an error value rather
// than an error, so the model can recover.
func (ts *Toolset) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := ts.byName[name]
	if !ok {
		return map[string]string{"error": fmt.Sprintf("tool %s not found", name)}, nil
	}
	return t.Run(ctx, args)
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func stringParam(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intParam(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func objectSchema(props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props}
}

func byRatingDesc(items []plex.MediaItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Rating > items[j].Rating })
}

func hasGenre(item plex.MediaItem, genre string) bool {
	for _, g := range item.Genres {
		if strings.EqualFold(g, genre) {
			return true
		}
	}
	return false
}

func searchLibraryTool(lib Library) Tool {
	return Tool{
		Spec: models.ToolSpec{
			Name:        "search_library",
			Description: "Search the user's Plex library for movies or TV shows by title, type or genre.",
			Parameters: objectSchema(map[string]any{
				"query":      stringParam("Search query to match against titles (optional)"),
				"media_type": stringParam("Filter by type - 'movie' or 'show' (optional)"),
				"genre":      stringParam("Filter by genre like 'Action', 'Comedy', 'Drama' (optional)"),
			}),
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			items, err := lib.AllItems(ctx, argString(args, "media_type"))
			if err != nil {
				return nil, err
			}
			items = append([]plex.MediaItem(nil), items...)
			byRatingDesc(items)

			query := strings.ToLower(argString(args, "query"))
			genre := argString(args, "genre")

			results := make([]plex.MediaItem, 0, searchResultCap)
			for _, item := range items {
				if query != "" && !strings.Contains(strings.ToLower(item.Title), query) {
					continue
				}
				if genre != "" && !hasGenre(item, genre) {
					continue
				}
				results = append(results, item)
				if len(results) >= searchResultCap {
					break
				}
			}
			return results, nil
		},
	}
}

func recommendationsTool(lib Library) Tool {
	return Tool{
		Spec: models.ToolSpec{
			Name:        "get_recommendations",
			Description: "Get movie or TV show recommendations from the user's library.",
			Parameters: objectSchema(map[string]any{
				"based_on": stringParam("Title of a movie/show to base recommendations on (optional)"),
				"genre":    stringParam("Genre to filter recommendations by (optional)"),
				"limit":    intParam("Maximum number of recommendations to return (default 10)"),
			}),
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			items, err := lib.AllItems(ctx, "")
			if err != nil {
				return nil, err
			}
			limit := argInt(args, "limit", defaultLimit)
			basedOn := strings.ToLower(argString(args, "based_on"))
			genre := argString(args, "genre")

			switch {
			case basedOn != "":
				var base *plex.MediaItem
				for i := range items {
					if strings.Contains(strings.ToLower(items[i].Title), basedOn) {
						base = &items[i]
						break
					}
				}
				if base == nil {
					return []plex.MediaItem{}, nil
				}
				var results []plex.MediaItem
				for _, item := range items {
					if item.Title == base.Title || item.Type != base.Type {
						continue
					}
					if sharesGenre(base.Genres, item.Genres) {
						results = append(results, item)
						if len(results) >= limit {
							break
						}
					}
				}
				return results, nil

			case genre != "":
				var matching []plex.MediaItem
				for _, item := range items {
					if hasGenre(item, genre) {
						matching = append(matching, item)
					}
				}
				byRatingDesc(matching)
				return head(matching, limit), nil

			default:
				items = append([]plex.MediaItem(nil), items...)
				byRatingDesc(items)
				return head(items, limit), nil
			}
		},
	}
}

func unwatchedTool(lib Library) Tool {
	return Tool{
		Spec: models.ToolSpec{
			Name:        "get_unwatched",
			Description: "Find unwatched movies or TV shows in the user's library.",
			Parameters: objectSchema(map[string]any{
				"media_type": stringParam("Filter by 'movie' or 'show' (optional)"),
				"limit":      intParam("Maximum number of items to return (default 10)"),
			}),
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			items, err := lib.AllItems(ctx, argString(args, "media_type"))
			if err != nil {
				return nil, err
			}
			limit := argInt(args, "limit", defaultLimit)
			var results []plex.MediaItem
			for _, item := range items {
				if item.ViewCount == 0 {
					results = append(results, item)
					if len(results) >= limit {
						break
					}
				}
			}
			return results, nil
		},
	}
}

func recentlyAddedTool(lib Library) Tool {
	return Tool{
		Spec: models.ToolSpec{
			Name:        "get_recently_added",
			Description: "Get recently added movies and TV shows.",
			Parameters: objectSchema(map[string]any{
				"days":  intParam("Number of days to look back (default 30)"),
				"limit": intParam("Maximum number of items to return (default 10)"),
			}),
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			items, err := lib.AllItems(ctx, "")
			if err != nil {
				return nil, err
			}
			days := argInt(args, "days", 30)
			limit := argInt(args, "limit", defaultLimit)
			cutoff := time.Now().AddDate(0, 0, -days)

			var recent []plex.MediaItem
			for _, item := range items {
				if item.AddedAt != nil && !item.AddedAt.Before(cutoff) {
					recent = append(recent, item)
				}
			}
			sort.SliceStable(recent, func(i, j int) bool {
				return recent[i].AddedAt.After(*recent[j].AddedAt)
			})
			return head(recent, limit), nil
		},
	}
}

func mediaDetailsTool(lib Library) Tool {
	return Tool{
		Spec: models.ToolSpec{
			Name:        "get_media_details",
			Description: "Get detailed information about a specific movie or TV show.",
			Parameters: objectSchema(map[string]any{
				"title": stringParam("The title of the movie or TV show to look up"),
			}),
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			items, err := lib.AllItems(ctx, "")
			if err != nil {
				return nil, err
			}
			title := strings.ToLower(argString(args, "title"))
			for _, item := range items {
				if strings.ToLower(item.Title) == title {
					return item, nil
				}
			}
			for _, item := range items {
				if strings.Contains(strings.ToLower(item.Title), title) {
					return item, nil
				}
			}
			return map[string]string{
				"error": fmt.Sprintf("Could not find %q in the library", argString(args, "title")),
			}, nil
		},
	}
}

// LibraryStats summarizes the catalogue for the model.
type LibraryStats struct {
	TotalMovies int      `json:"total_movies"`
	TotalShows  int      `json:"total_shows"`
	MovieGenres []string `json:"movie_genres"`
	ShowGenres  []string `json:"show_genres"`
}

func libraryStatsTool(lib Library) Tool {
	return Tool{
		Spec: models.ToolSpec{
			Name:        "get_library_stats",
			Description: "Get statistics about the user's Plex library.",
			Parameters:  objectSchema(map[string]any{}),
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			items, err := lib.AllItems(ctx, "")
			if err != nil {
				return nil, err
			}
			stats := LibraryStats{}
			movieGenres := map[string]bool{}
			showGenres := map[string]bool{}
			for _, item := range items {
				switch item.Type {
				case "movie":
					stats.TotalMovies++
					for _, g := range item.Genres {
						movieGenres[g] = true
					}
				case "show":
					stats.TotalShows++
					for _, g := range item.Genres {
						showGenres[g] = true
					}
				}
			}
			stats.MovieGenres = sortedKeys(movieGenres)
			stats.ShowGenres = sortedKeys(showGenres)
			return stats, nil
		},
	}
}

func sharesGenre(a, b []string) bool {
	for _, ga := range a {
		for _, gb := range b {
			if strings.EqualFold(ga, gb) {
				return true
			}
		}
	}
	return false
}

func head(items []plex.MediaItem, n int) []plex.MediaItem {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
