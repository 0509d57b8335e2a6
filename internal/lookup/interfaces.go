package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/aryan-cs/hackaplan/internal/devpost"
)

// ErrNotFound is returned by Store lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store persists jobs, crawl results, progress events, and rate-limit
// counters. Implementations must assign strictly increasing per-job event
// sequence numbers in AppendEvent.
type Store interface {
	CreateJob(ctx context.Context, job Job) error
	MarkStarted(ctx context.Context, jobID string, at time.Time) error
	MarkCompleted(ctx context.Context, jobID string, at time.Time) error
	MarkFailed(ctx context.Context, jobID string, at time.Time, code, message string) error
	GetJob(ctx context.Context, jobID string) (Job, error)

	// FindActiveJobByURL returns the most recent queued or started job for
	// the normalized hackathon URL.
	FindActiveJobByURL(ctx context.Context, hackathonURL string) (Job, error)
	// FindRecentCompletedByURL returns the most recent completed job for the
	// URL whose FinishedAt is at or after the cutoff.
	FindRecentCompletedByURL(ctx context.Context, hackathonURL string, finishedSince time.Time) (Job, error)
	// ListPendingJobIDs returns queued and started jobs in creation order,
	// for startup recovery.
	ListPendingJobIDs(ctx context.Context) ([]string, error)

	SaveResult(ctx context.Context, jobID string, result *devpost.CrawlResult) error
	GetResult(ctx context.Context, jobID string) (*devpost.CrawlResult, error)

	AppendEvent(ctx context.Context, jobID string, event Event) (Event, error)
	ListEvents(ctx context.Context, jobID string) ([]Event, error)

	RecordRateLimitEvent(ctx context.Context, ipHash, endpoint string, at time.Time) error
	CountRateLimitEvents(ctx context.Context, ipHash, endpoint string, since time.Time) (int, error)
}

// Scraper is the crawl engine the orchestrator drives. The events channel is
// closed by the implementation before Scrape returns.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string, events chan<- devpost.Event) (*devpost.CrawlResult, error)
}

// Subscriber receives live events for one job. A Send error marks the
// subscriber broken; the orchestrator drops it and never calls it again.
type Subscriber interface {
	Send(event Event) error
}
