package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aryan-cs/hackaplan/internal/api"
	"github.com/aryan-cs/hackaplan/internal/config"
	"github.com/aryan-cs/hackaplan/internal/devpost"
	"github.com/aryan-cs/hackaplan/internal/lookup"
	"github.com/aryan-cs/hackaplan/internal/store/memory"
)

type stubScraper struct {
	result *devpost.CrawlResult
	err    error
}

func (s *stubScraper) Scrape(ctx context.Context, rawURL string, events chan<- devpost.Event) (*devpost.CrawlResult, error) {
	if events != nil {
		defer close(events)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubSearcher struct {
	suggestions []devpost.Suggestion
	err         error
}

func (s *stubSearcher) SearchHackathons(ctx context.Context, query string, limit int) ([]devpost.Suggestion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.suggestions, nil
}

type testEnv struct {
	server *api.Server
	store  *memory.Store
	orch   *lookup.Orchestrator
}

func newTestEnv(t *testing.T, scraper lookup.Scraper, searcher api.Searcher, cfg config.Config) *testEnv {
	t.Helper()
	store := memory.NewStore()
	orch := lookup.New(store, scraper, lookup.Config{JobTimeout: 2 * time.Second}, zap.NewNop())
	require.NoError(t, orch.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, orch.Stop(ctx))
	})
	return &testEnv{
		server: api.NewServer(store, orch, searcher, cfg, zap.NewNop()),
		store:  store,
		orch:   orch,
	}
}

func completedResult() *devpost.CrawlResult {
	return &devpost.CrawlResult{
		Hackathon: devpost.HackathonMetadata{
			Name:         "Example Hackathon",
			URL:          "https://example.devpost.com",
			ScannedPages: 1,
			WinnerCount:  1,
		},
		Winners: []devpost.WinnerProject{{
			ProjectTitle: "Winning Project",
			ProjectURL:   "https://devpost.com/software/winning-project",
		}},
		GeneratedAt: time.Now().UTC(),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) waitTerminal(t *testing.T, lookupID string) lookup.Job {
	t.Helper()
	var job lookup.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = e.store.GetJob(context.Background(), lookupID)
		return err == nil && job.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &stubScraper{result: completedResult()}, &stubSearcher{}, config.Config{})

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateLookupRejectsInvalidURL(t *testing.T) {
	env := newTestEnv(t, &stubScraper{result: completedResult()}, &stubSearcher{}, config.Config{})

	rec := env.do(t, http.MethodPost, "/api/v1/lookups",
		map[string]string{"hackathon_url": "https://example.com/not-devpost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation_error", body["error"]["code"])
}

func TestCreateLookupRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t, &stubScraper{result: completedResult()}, &stubSearcher{}, config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lookups", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookupLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, &stubScraper{result: completedResult()}, &stubSearcher{}, config.Config{})

	rec := env.do(t, http.MethodPost, "/api/v1/lookups",
		map[string]string{"hackathon_url": "https://example.devpost.com"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created struct {
		LookupID string `json:"lookup_id"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "queued", created.Status)
	require.NotEmpty(t, created.LookupID)

	env.waitTerminal(t, created.LookupID)

	rec = env.do(t, http.MethodGet, "/api/v1/lookups/"+created.LookupID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail struct {
		Status string `json:"status"`
		Result *struct {
			Winners []struct {
				ProjectTitle string `json:"project_title"`
			} `json:"winners"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "completed", detail.Status)
	require.NotNil(t, detail.Result)
	require.Len(t, detail.Result.Winners, 1)
	assert.Equal(t, "Winning Project", detail.Result.Winners[0].ProjectTitle)
}

func TestGetLookupMissingReturns404(t *testing.T) {
	env := newTestEnv(t, &stubScraper{result: completedResult()}, &stubSearcher{}, config.Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/lookups/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventStreamReplaysFullHistory(t *testing.T) {
	env := newTestEnv(t, &stubScraper{result: completedResult()}, &stubSearcher{}, config.Config{})

	created := env.do(t, http.MethodPost, "/api/v1/lookups",
		map[string]string{"hackathon_url": "https://example.devpost.com"})
	require.Equal(t, http.StatusAccepted, created.Code)

	var resp struct {
		LookupID string `json:"lookup_id"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))
	env.waitTerminal(t, resp.LookupID)

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/lookups/%s/events", resp.LookupID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: queued")
	assert.Contains(t, body, "event: started")
	assert.Contains(t, body, "event: completed")
	assert.Contains(t, body, `"winner_count":1`)
	// queued must come before completed in the replay
	assert.Less(t, strings.Index(body, "event: queued"), strings.Index(body, "event: completed"))
}

func TestEventStreamMissingLookupReturns404(t *testing.T) {
	env := newTestEnv(t, &stubScraper{result: completedResult()}, &stubSearcher{}, config.Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/lookups/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchHackathons(t *testing.T) {
	searcher := &stubSearcher{suggestions: []devpost.Suggestion{{
		Title:        "Example Hackathon 2025",
		HackathonURL: "https://example.devpost.com",
	}}}
	env := newTestEnv(t, &stubScraper{result: completedResult()}, searcher, config.Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/hackathons/search?q=example&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Query       string `json:"query"`
		Suggestions []struct {
			Title string `json:"title"`
		} `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "example", body.Query)
	require.Len(t, body.Suggestions, 1)
	assert.Equal(t, "Example Hackathon 2025", body.Suggestions[0].Title)
}

func TestSearchRejectsBadLimit(t *testing.T) {
	env := newTestEnv(t, &stubScraper{result: completedResult()}, &stubSearcher{}, config.Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/hackathons/search?q=example&limit=lots", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitCapsSubmissions(t *testing.T) {
	cfg := config.Config{}
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.HourlyLimit = 1
	cfg.RateLimit.DailyLimit = 10
	cfg.RateLimit.Salt = "pepper"
	env := newTestEnv(t, &stubScraper{result: completedResult()}, &stubSearcher{}, cfg)

	first := env.do(t, http.MethodPost, "/api/v1/lookups",
		map[string]string{"hackathon_url": "https://example.devpost.com"})
	require.Equal(t, http.StatusAccepted, first.Code)

	second := env.do(t, http.MethodPost, "/api/v1/lookups",
		map[string]string{"hackathon_url": "https://other.devpost.com"})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["error"]["code"])
}
