package devpost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchHandler(t *testing.T, hackathons []map[string]any) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/hackathons", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("search"))
		payload := map[string]any{"hackathons": hackathons}
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	})
	return mux
}

func TestSearchHackathonsShortQueryReturnsNothing(t *testing.T) {
	scraper := newTestScraper(t, http.NewServeMux())
	suggestions, err := scraper.SearchHackathons(context.Background(), " x ", 5)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestSearchHackathonsRanksPrefixMatchesFirst(t *testing.T) {
	hackathons := []map[string]any{
		{"title": "Global AI Challenge", "url": "https://globalai.devpost.com"},
		{"title": "TreeHacks 2024", "url": "https://treehacks-2024.devpost.com"},
		{"title": "TreeHacks 2025", "url": "https://treehacks-2025.devpost.com"},
		{"title": "Best of TreeHacks Showcase", "url": "https://showcase.devpost.com"},
	}
	scraper := newTestScraper(t, searchHandler(t, hackathons))

	suggestions, err := scraper.SearchHackathons(context.Background(), "treehacks", 10)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)

	// prefix matches outrank substring matches; newer year wins the tie
	assert.Equal(t, "TreeHacks 2025", suggestions[0].Title)
	assert.Equal(t, "TreeHacks 2024", suggestions[1].Title)
	assert.Equal(t, "Best of TreeHacks Showcase", suggestions[2].Title)
}

func TestSearchHackathonsMergesDuplicateURLs(t *testing.T) {
	hackathons := []map[string]any{
		{
			"title": "TreeHacks 2025",
			"url":   "https://treehacks-2025.devpost.com/",
		},
		{
			"title":             "TreeHacks 2025",
			"url":               "https://treehacks-2025.devpost.com",
			"thumbnail_url":     "//cdn.devpost.com/treehacks.png",
			"open_state":        "ended",
			"winners_announced": true,
		},
	}
	scraper := newTestScraper(t, searchHandler(t, hackathons))

	suggestions, err := scraper.SearchHackathons(context.Background(), "treehacks", 10)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	got := suggestions[0]
	assert.Equal(t, "https://treehacks-2025.devpost.com", got.HackathonURL)
	assert.Equal(t, "https://cdn.devpost.com/treehacks.png", got.ThumbnailURL)
	assert.Equal(t, "ended", got.OpenState)
	require.NotNil(t, got.WinnersAnnounced)
	assert.True(t, *got.WinnersAnnounced)
}

func TestSearchHackathonsClampsLimit(t *testing.T) {
	hackathons := make([]map[string]any, 0, 30)
	for i := 0; i < 30; i++ {
		hackathons = append(hackathons, map[string]any{
			"title": "Widget Jam",
			"url":   fmt.Sprintf("https://widget-%02d.devpost.com", i),
		})
	}
	scraper := newTestScraper(t, searchHandler(t, hackathons))

	suggestions, err := scraper.SearchHackathons(context.Background(), "widget", 100)
	require.NoError(t, err)
	assert.Len(t, suggestions, 20)
}

func TestSearchHackathonsSkipsEntriesWithoutURLOrTitle(t *testing.T) {
	hackathons := []map[string]any{
		{"title": "", "url": "https://nameless.devpost.com"},
		{"title": "No URL Jam"},
		{"title": "Off-Devpost", "url": "https://example.com/hack"},
		{"title": "Valid Jam", "url": "https://valid.devpost.com"},
	}
	scraper := newTestScraper(t, searchHandler(t, hackathons))

	suggestions, err := scraper.SearchHackathons(context.Background(), "jam", 10)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Valid Jam", suggestions[0].Title)
}

func TestBuildSearchQueryVariants(t *testing.T) {
	// "TreeHacks2025" dedupes case-insensitively against "treehacks2025"
	variants := buildSearchQueryVariants("Tree Hacks 2025")
	assert.Equal(t, []string{"Tree Hacks 2025", "treehacks2025", "Tree-Hacks-2025"}, variants)

	assert.Equal(t, []string{"treehacks"}, buildSearchQueryVariants("treehacks"))
}

func TestExtractHackathonYear(t *testing.T) {
	assert.Equal(t, 2025, extractHackathonYear(Suggestion{Title: "TreeHacks 2025"}))
	assert.Equal(t, 2024, extractHackathonYear(Suggestion{
		Title:        "TreeHacks",
		HackathonURL: "https://treehacks-2024.devpost.com",
	}))
	assert.Equal(t, 0, extractHackathonYear(Suggestion{Title: "Widget Jam"}))
}
