package devpost

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan-cs/hackaplan/internal/apperr"
)

// rewriteTransport routes requests for any host to the test server so
// fixtures can use real devpost.com URLs.
type rewriteTransport struct {
	host string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestScraper(t *testing.T, handler http.Handler) *Scraper {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)

	client := NewClient(ClientConfig{
		Timeout:     2 * time.Second,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	}, nil)
	client.http = &http.Client{Transport: rewriteTransport{host: serverURL.Host}}

	return NewScraper(client, ScraperConfig{
		ProjectTimeout:          2 * time.Second,
		ProjectMaxRetries:       2,
		ProjectBackoffBase:      time.Millisecond,
		ProjectFetchConcurrency: 2,
	}, nil)
}

func collectEvents(events <-chan Event) func() []Event {
	var collected []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			collected = append(collected, ev)
		}
	}()
	return func() []Event {
		<-done
		return collected
	}
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func landingPage(galleryPath string) string {
	return fmt.Sprintf(`<html>
<head><title>Example Hackathon 2025 - Devpost</title></head>
<body><a href="%s">Project Gallery</a></body>
</html>`, galleryPath)
}

func galleryItem(id, href, title string, badge bool) string {
	badgeHTML := ""
	if badge {
		badgeHTML = `<aside class="entry-badge"><span class="winner">Winner</span></aside>`
	}
	return fmt.Sprintf(`<div class="gallery-item" data-software-id="%s">
  <a class="link-to-software" href="%s"><h5>%s</h5></a>
  %s
</div>`, id, href, title, badgeHTML)
}

func projectPage(title, prizeHTML string) string {
	return fmt.Sprintf(`<html>
<head><meta property="og:title" content="%s"></head>
<body><div id="submissions">%s</div></body>
</html>`, title, prizeHTML)
}

func prizeBlock(challengeURL, challengeName string, prizes ...string) string {
	var items strings.Builder
	for _, prize := range prizes {
		items.WriteString("<li>" + prize + "</li>")
	}
	return fmt.Sprintf(`<ul class="software-list-with-thumbnail">
  <li><div class="software-list-content">
    <p><a href="%s">%s</a></p>
    <ul class="no-bullet">%s</ul>
  </div></li>
</ul>`, challengeURL, challengeName, items.String())
}

func TestScrapeBadgeWinners(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Host != "example.devpost.com" || r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(landingPage("/project-gallery")))
	})
	mux.HandleFunc("/project-gallery", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>` +
			galleryItem("1", "https://devpost.com/software/alpha", "Alpha", true) +
			galleryItem("2", "https://devpost.com/software/beta", "Beta", false) +
			`</body></html>`))
	})
	mux.HandleFunc("/software/alpha", func(w http.ResponseWriter, _ *http.Request) {
		// badge winner with no prize block; the badge alone is trusted
		_, _ = w.Write([]byte(projectPage("Alpha", "")))
	})

	scraper := newTestScraper(t, mux)
	events := make(chan Event, 64)
	wait := collectEvents(events)

	result, err := scraper.Scrape(context.Background(), "https://example.devpost.com", events)
	require.NoError(t, err)

	assert.Equal(t, "Example Hackathon 2025", result.Hackathon.Name)
	assert.Equal(t, 1, result.Hackathon.ScannedPages)
	assert.Equal(t, 2, result.Hackathon.ScannedProjects)
	assert.Equal(t, 1, result.Hackathon.WinnerCount)

	require.Len(t, result.Winners, 1)
	winner := result.Winners[0]
	assert.Equal(t, "Alpha", winner.ProjectTitle)
	require.Len(t, winner.Prizes, 1)
	assert.Equal(t, "Winner", winner.Prizes[0].PrizeName)
	assert.Equal(t, "Example Hackathon 2025", winner.Prizes[0].HackathonName)
	assert.Equal(t, "https://example.devpost.com", winner.Prizes[0].HackathonURL)

	collected := wait()
	types := eventTypes(collected)
	assert.Contains(t, types, EventWinnerProjectFound)
	assert.Contains(t, types, EventGalleryPageScanned)
	assert.Contains(t, types, EventWinnerProjectScraped)
	assert.NotContains(t, types, EventWinnerDetectionFallback)
	assert.NotContains(t, types, EventWinnersNotAnnounced)

	// found precedes scraped for the same project
	foundIdx, scrapedIdx := -1, -1
	for i, ev := range collected {
		switch ev.Type {
		case EventWinnerProjectFound:
			foundIdx = i
		case EventWinnerProjectScraped:
			scrapedIdx = i
		}
	}
	assert.Less(t, foundIdx, scrapedIdx)
}

func TestScrapePaginationFollowsNextLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(landingPage("/project-gallery")))
	})
	mux.HandleFunc("/project-gallery", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			_, _ = w.Write([]byte(`<html><body>` +
				galleryItem("1", "https://devpost.com/software/alpha", "Alpha", true) +
				`<ul class="pagination"><li><a rel="next" href="/project-gallery?page=2">Next</a></li></ul>` +
				`</body></html>`))
		case "2":
			_, _ = w.Write([]byte(`<html><body>` +
				galleryItem("2", "https://devpost.com/software/omega", "Omega", true) +
				`</body></html>`))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/software/alpha", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(projectPage("Alpha", "")))
	})
	mux.HandleFunc("/software/omega", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(projectPage("Omega", "")))
	})

	scraper := newTestScraper(t, mux)
	result, err := scraper.Scrape(context.Background(), "https://example.devpost.com", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Hackathon.ScannedPages)
	assert.Equal(t, 2, result.Hackathon.WinnerCount)
}

func TestScrapeDuplicateEntryAcrossPagesFetchedOnce(t *testing.T) {
	var alphaFetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(landingPage("/project-gallery")))
	})
	mux.HandleFunc("/project-gallery", func(w http.ResponseWriter, r *http.Request) {
		// the same badge-tagged entry appears on both pages
		switch r.URL.Query().Get("page") {
		case "", "1":
			_, _ = w.Write([]byte(`<html><body>` +
				galleryItem("1", "https://devpost.com/software/alpha", "Alpha", true) +
				`<ul class="pagination"><li><a rel="next" href="/project-gallery?page=2">Next</a></li></ul>` +
				`</body></html>`))
		case "2":
			_, _ = w.Write([]byte(`<html><body>` +
				galleryItem("1", "https://devpost.com/software/alpha", "Alpha", true) +
				`</body></html>`))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/software/alpha", func(w http.ResponseWriter, _ *http.Request) {
		alphaFetches.Add(1)
		_, _ = w.Write([]byte(projectPage("Alpha", "")))
	})

	scraper := newTestScraper(t, mux)
	events := make(chan Event, 64)
	wait := collectEvents(events)

	result, err := scraper.Scrape(context.Background(), "https://example.devpost.com", events)
	require.NoError(t, err)

	assert.Equal(t, int32(1), alphaFetches.Load())
	assert.Equal(t, 2, result.Hackathon.ScannedPages)
	assert.Equal(t, 1, result.Hackathon.WinnerCount)
	require.Len(t, result.Winners, 1)
	assert.Equal(t, "Alpha", result.Winners[0].ProjectTitle)

	// the duplicate never bumps the scheduled count, so the scraped
	// payload reports one of one
	var scraped []WinnerProjectScrapedPayload
	for _, ev := range wait() {
		if payload, ok := ev.Payload.(WinnerProjectScrapedPayload); ok {
			scraped = append(scraped, payload)
		}
	}
	require.Len(t, scraped, 1)
	assert.Equal(t, 1, scraped[0].Index)
	assert.Equal(t, 1, scraped[0].Total)
}

func TestScrapeFallbackConfirmsPrizes(t *testing.T) {
	target := "https://example.devpost.com"
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(landingPage("/project-gallery")))
	})
	mux.HandleFunc("/project-gallery", func(w http.ResponseWriter, _ *http.Request) {
		// no badges anywhere
		_, _ = w.Write([]byte(`<html><body>` +
			galleryItem("1", "https://devpost.com/software/alpha", "Alpha", false) +
			galleryItem("2", "https://devpost.com/software/beta", "Beta", false) +
			`</body></html>`))
	})
	mux.HandleFunc("/software/alpha", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(projectPage("Alpha",
			prizeBlock(target, "Example Hackathon 2025", "Winner Grand Prize"))))
	})
	mux.HandleFunc("/software/beta", func(w http.ResponseWriter, _ *http.Request) {
		// participated but won nothing from the target hackathon
		_, _ = w.Write([]byte(projectPage("Beta",
			prizeBlock("https://other.devpost.com", "Other Hackathon", "Winner Runner Up"))))
	})

	scraper := newTestScraper(t, mux)
	events := make(chan Event, 64)
	wait := collectEvents(events)

	result, err := scraper.Scrape(context.Background(), target, events)
	require.NoError(t, err)

	require.Len(t, result.Winners, 1)
	assert.Equal(t, "Alpha", result.Winners[0].ProjectTitle)
	require.Len(t, result.Winners[0].Prizes, 1)
	assert.Equal(t, "Grand Prize", result.Winners[0].Prizes[0].PrizeName)

	collected := wait()
	var fallback *WinnerDetectionFallbackPayload
	var confirmedSource string
	for _, ev := range collected {
		switch payload := ev.Payload.(type) {
		case WinnerDetectionFallbackPayload:
			fallback = &payload
		case WinnerProjectFoundPayload:
			confirmedSource = payload.Source
		}
	}
	require.NotNil(t, fallback)
	assert.Equal(t, "gallery_badges_missing", fallback.Reason)
	assert.Equal(t, 2, fallback.CandidateProjects)
	assert.Equal(t, "project_page_prize_confirmation", confirmedSource)
}

func TestScrapeWinnersNotAnnounced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>
<head><title>Example Hackathon 2025 - Devpost</title></head>
<body>
  <div class="challenge-pre-winners-announced-primary-cta">Judging</div>
  <a href="/project-gallery">Project Gallery</a>
</body></html>`))
	})
	mux.HandleFunc("/project-gallery", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>` +
			galleryItem("1", "https://devpost.com/software/alpha", "Alpha", false) +
			`</body></html>`))
	})

	scraper := newTestScraper(t, mux)
	events := make(chan Event, 64)
	wait := collectEvents(events)

	result, err := scraper.Scrape(context.Background(), "https://example.devpost.com", events)
	require.NoError(t, err)

	assert.Empty(t, result.Winners)
	assert.Equal(t, 0, result.Hackathon.WinnerCount)
	assert.Equal(t, 1, result.Hackathon.ScannedPages)

	types := eventTypes(wait())
	assert.Contains(t, types, EventWinnersNotAnnounced)
	assert.NotContains(t, types, EventWinnerDetectionFallback)
}

func TestScrapeBlockedGalleryFailsCrawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(landingPage("/project-gallery")))
	})
	mux.HandleFunc("/project-gallery", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	scraper := newTestScraper(t, mux)
	events := make(chan Event, 64)
	wait := collectEvents(events)

	_, err := scraper.Scrape(context.Background(), "https://example.devpost.com", events)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBlocked, apperr.CodeOf(err))

	// channel is closed even on failure
	wait()
}

func TestScrapeFailedProjectFetchFailsCrawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(landingPage("/project-gallery")))
	})
	mux.HandleFunc("/project-gallery", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>` +
			galleryItem("1", "https://devpost.com/software/alpha", "Alpha", true) +
			`</body></html>`))
	})
	mux.HandleFunc("/software/alpha", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	scraper := newTestScraper(t, mux)
	_, err := scraper.Scrape(context.Background(), "https://example.devpost.com", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBlocked, apperr.CodeOf(err))
}

func TestScrapeRejectsNonDevpostURL(t *testing.T) {
	scraper := newTestScraper(t, http.NewServeMux())
	_, err := scraper.Scrape(context.Background(), "https://example.com", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestScrapeEmptyGalleryStillCompletes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(landingPage("/project-gallery")))
	})
	mux.HandleFunc("/project-gallery", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>No submissions yet.</p></body></html>`))
	})

	scraper := newTestScraper(t, mux)
	result, err := scraper.Scrape(context.Background(), "https://example.devpost.com", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Hackathon.ScannedPages)
	assert.Equal(t, 0, result.Hackathon.ScannedProjects)
	assert.Empty(t, result.Winners)
}
