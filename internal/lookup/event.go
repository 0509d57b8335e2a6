package lookup

import "time"

// Lifecycle event types appended by the orchestrator. Crawl progress events
// keep the types the scraper emits (see the devpost package).
const (
	EventQueued    = "queued"
	EventStarted   = "started"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// Event is the persisted progress-event envelope for one job. Seq is assigned
// by the store and strictly increases per job; replaying events in Seq order
// reproduces the crawl as observed live.
type Event struct {
	Seq       int64     `json:"-"`
	Type      string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// QueuedPayload accompanies the queued lifecycle event.
type QueuedPayload struct {
	LookupID     string `json:"lookup_id"`
	HackathonURL string `json:"hackathon_url"`
}

// StartedPayload accompanies the started lifecycle event.
type StartedPayload struct {
	LookupID string `json:"lookup_id"`
}

// CompletedPayload accompanies the completed lifecycle event.
type CompletedPayload struct {
	LookupID    string `json:"lookup_id"`
	WinnerCount int    `json:"winner_count"`
}

// FailedPayload accompanies the failed lifecycle event.
type FailedPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
