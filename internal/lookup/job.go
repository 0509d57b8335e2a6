// Package lookup owns the durable lookup-job lifecycle: the state machine,
// the in-process queue feeding the single background worker, progress event
// persistence, and the live-subscriber broadcast.
package lookup

import "time"

// Status is the lifecycle state of a lookup job. Transitions are monotonic:
// queued -> started -> {completed | failed}.
type Status string

// Job status values persisted in the store.
const (
	StatusQueued    Status = "queued"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobError is the taxonomy-coded terminal error of a failed job.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is the persisted metadata for one lookup request. StartedAt is set
// only on the transition into started, FinishedAt only on a terminal
// transition, and Error only on failure.
type Job struct {
	ID           string     `json:"lookup_id"`
	HackathonURL string     `json:"hackathon_url"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Error        *JobError  `json:"error,omitempty"`
}
