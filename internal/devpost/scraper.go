package devpost

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aryan-cs/hackaplan/internal/apperr"
	"github.com/aryan-cs/hackaplan/internal/metrics"
)

// ScraperConfig holds the per-crawl knobs. Project fetches use their own
// tighter timeout/retry budget than landing and gallery fetches.
type ScraperConfig struct {
	ProjectTimeout          time.Duration
	ProjectMaxRetries       int
	ProjectBackoffBase      time.Duration
	ProjectFetchConcurrency int
}

// Scraper walks a hackathon's project gallery and deep-fetches winner
// projects. It is stateless between crawls; every Scrape call owns its own
// visited set, dedup set, and scheduler.
type Scraper struct {
	client *Client
	cfg    ScraperConfig
	logger *zap.Logger
}

// NewScraper builds a Scraper around the shared fetch client.
func NewScraper(client *Client, cfg ScraperConfig, logger *zap.Logger) *Scraper {
	if cfg.ProjectTimeout <= 0 {
		cfg.ProjectTimeout = 8 * time.Second
	}
	if cfg.ProjectMaxRetries <= 0 {
		cfg.ProjectMaxRetries = 2
	}
	if cfg.ProjectBackoffBase <= 0 {
		cfg.ProjectBackoffBase = 250 * time.Millisecond
	}
	if cfg.ProjectFetchConcurrency <= 0 {
		cfg.ProjectFetchConcurrency = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{client: client, cfg: cfg, logger: logger}
}

// Scrape crawls the hackathon at rawURL and streams progress events into
// events (which may be nil for callers that do not observe progress). The
// channel is closed before Scrape returns. A crawl either yields a complete
// CrawlResult or fails with a taxonomy-coded error; on failure no in-flight
// deep fetch survives the return.
func (s *Scraper) Scrape(ctx context.Context, rawURL string, events chan<- Event) (*CrawlResult, error) {
	defer func() {
		if events != nil {
			close(events)
		}
	}()

	target, err := NormalizeHackathonURL(rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sched := newFetchScheduler(s.cfg.ProjectFetchConcurrency)
	defer sched.wait()
	defer cancel()

	emit := func(eventType EventType, payload any) {
		if events == nil {
			return
		}
		select {
		case events <- Event{Type: eventType, Payload: payload}:
		case <-ctx.Done():
		}
	}

	landingHTML, err := s.client.FetchText(ctx, target)
	if err != nil {
		return nil, err
	}
	landing, err := ParseLanding(target, landingHTML)
	if err != nil {
		return nil, err
	}

	var (
		winners         []WinnerProject
		allCandidates   []Candidate
		scannedPages    int
		scannedProjects int
		foundBadges     bool
	)

	// drainCompleted collects finished deep fetches. Non-blocking between
	// gallery pages; blocking once scheduling is done. A failed task fails
	// the whole crawl.
	drainCompleted := func(waitForAll bool) error {
		for sched.outstanding > 0 {
			var res deepFetchResult
			if waitForAll {
				select {
				case res = <-sched.results:
				case <-ctx.Done():
					return fmt.Errorf("crawl interrupted: %w", ctx.Err())
				}
			} else {
				select {
				case res = <-sched.results:
				default:
					return nil
				}
			}
			sched.outstanding--

			switch res.outcome {
			case outcomeFailed:
				return res.err
			case outcomeFiltered:
				continue
			case outcomeKept:
				if res.confirmed {
					emit(EventWinnerProjectFound, WinnerProjectFoundPayload{
						ProjectTitle:    res.project.ProjectTitle,
						ProjectURL:      res.project.ProjectURL,
						SoftwareID:      res.candidate.SoftwareID,
						PreviewImageURL: res.project.PreviewImageURL,
						Source:          "project_page_prize_confirmation",
					})
				}
				winners = append(winners, res.project)
				index := len(winners)
				total := sched.total
				if index > total {
					total = index
				}
				metrics.ObserveWinnerScraped()
				emit(EventWinnerProjectScraped, WinnerProjectScrapedPayload{
					Index:         index,
					Total:         total,
					ProjectTitle:  res.project.ProjectTitle,
					ProjectURL:    res.project.ProjectURL,
					PrizeCount:    len(res.project.Prizes),
					WinnerProject: res.project,
				})
			}
		}
		return nil
	}

	schedule := func(candidate Candidate, requireConfirmation bool) {
		cand := candidate
		sched.schedule(ctx, func(taskCtx context.Context) deepFetchResult {
			return s.scrapeCandidate(taskCtx, target, landing.Name, cand, requireConfirmation)
		}, cand.ProjectURL)
	}

	visited := make(map[string]struct{})
	pageURL := landing.GalleryURL
	for pageURL != "" {
		if _, seen := visited[pageURL]; seen {
			break
		}
		visited[pageURL] = struct{}{}

		pageHTML, err := s.client.FetchText(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		page, err := ParseGalleryPage(pageURL, pageHTML)
		if err != nil {
			return nil, err
		}

		scannedPages++
		scannedProjects += page.ScannedProjects
		allCandidates = append(allCandidates, page.AllEntries...)
		metrics.ObserveGalleryPage()

		for _, entry := range page.WinnerEntries {
			foundBadges = true
			emit(EventWinnerProjectFound, WinnerProjectFoundPayload{
				ProjectTitle:    entry.ProjectTitle,
				ProjectURL:      entry.ProjectURL,
				SoftwareID:      entry.SoftwareID,
				PreviewImageURL: entry.PreviewImageURL,
			})
			schedule(entry, false)
		}

		emit(EventGalleryPageScanned, GalleryPageScannedPayload{
			PageURL:            pageURL,
			PageNumber:         scannedPages,
			ScannedProjects:    page.ScannedProjects,
			WinnersFoundOnPage: len(page.WinnerEntries),
			NextPageURL:        page.NextPageURL,
		})

		if err := drainCompleted(false); err != nil {
			return nil, err
		}
		pageURL = page.NextPageURL
	}

	switch {
	case !foundBadges && landing.WinnersAnnounced:
		// No badges anywhere but winners should exist: confirm every unique
		// candidate through its own project page.
		seen := make(map[string]struct{}, len(allCandidates))
		var unique []Candidate
		for _, candidate := range allCandidates {
			if _, dup := seen[candidate.ProjectURL]; dup {
				continue
			}
			seen[candidate.ProjectURL] = struct{}{}
			unique = append(unique, candidate)
		}
		emit(EventWinnerDetectionFallback, WinnerDetectionFallbackPayload{
			Reason:            "gallery_badges_missing",
			CandidateProjects: len(unique),
		})
		for _, candidate := range unique {
			schedule(candidate, true)
		}
	case !foundBadges:
		emit(EventWinnersNotAnnounced, WinnersNotAnnouncedPayload{
			Message: "Hackathon page indicates winners are not announced yet.",
		})
	}

	if err := drainCompleted(true); err != nil {
		return nil, err
	}

	if scannedPages == 0 {
		return nil, apperr.New(apperr.CodeParse, "Unable to locate or parse the project gallery page")
	}

	if winners == nil {
		winners = []WinnerProject{}
	}
	return &CrawlResult{
		Hackathon: HackathonMetadata{
			Name:            landing.Name,
			URL:             target,
			GalleryURL:      landing.GalleryURL,
			ScannedPages:    scannedPages,
			ScannedProjects: scannedProjects,
			WinnerCount:     len(winners),
		},
		Winners:     winners,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// scrapeCandidate deep-fetches one candidate's project page. In fallback
// mode (requireConfirmation) a page without a matching prize record filters
// the candidate out; badge-tagged entries instead get a synthesized generic
// prize because the gallery badge is a trusted signal on its own.
func (s *Scraper) scrapeCandidate(
	ctx context.Context,
	target string,
	hackathonName string,
	candidate Candidate,
	requireConfirmation bool,
) deepFetchResult {
	html, err := s.client.FetchTextOpts(ctx, candidate.ProjectURL, FetchOptions{
		Timeout:     s.cfg.ProjectTimeout,
		MaxRetries:  s.cfg.ProjectMaxRetries,
		BackoffBase: s.cfg.ProjectBackoffBase,
	})
	if err != nil {
		return deepFetchResult{outcome: outcomeFailed, candidate: candidate, err: err}
	}

	project, err := ParseProjectPage(candidate.ProjectURL, html, target)
	if err != nil {
		return deepFetchResult{outcome: outcomeFailed, candidate: candidate, err: err}
	}

	if len(project.Prizes) == 0 {
		if requireConfirmation {
			return deepFetchResult{outcome: outcomeFiltered, candidate: candidate}
		}
		project.Prizes = []PrizeAward{{
			HackathonName: hackathonName,
			HackathonURL:  target,
			PrizeName:     "Winner",
		}}
	}

	return deepFetchResult{
		outcome:   outcomeKept,
		project:   project,
		candidate: candidate,
		confirmed: requireConfirmation,
	}
}
