// Package memory provides the in-process Store used by tests, the export
// command, and deployments that run without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aryan-cs/hackaplan/internal/devpost"
	"github.com/aryan-cs/hackaplan/internal/lookup"
)

// Store keeps jobs, results, events, and rate-limit counters in maps guarded
// by one mutex. Every accessor copies on the way in and out so callers never
// share memory with the store.
type Store struct {
	mu         sync.Mutex
	jobs       map[string]lookup.Job
	jobOrder   []string
	results    map[string]*devpost.CrawlResult
	events     map[string][]lookup.Event
	rateEvents []rateLimitEvent
}

type rateLimitEvent struct {
	ipHash   string
	endpoint string
	at       time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]lookup.Job),
		results: make(map[string]*devpost.CrawlResult),
		events:  make(map[string][]lookup.Event),
	}
}

func (s *Store) CreateJob(_ context.Context, job lookup.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.jobOrder = append(s.jobOrder, job.ID)
	return nil
}

func (s *Store) MarkStarted(_ context.Context, jobID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return lookup.ErrNotFound
	}
	job.Status = lookup.StatusStarted
	startedAt := at
	job.StartedAt = &startedAt
	s.jobs[jobID] = job
	return nil
}

func (s *Store) MarkCompleted(_ context.Context, jobID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return lookup.ErrNotFound
	}
	job.Status = lookup.StatusCompleted
	finishedAt := at
	job.FinishedAt = &finishedAt
	job.Error = nil
	s.jobs[jobID] = job
	return nil
}

func (s *Store) MarkFailed(_ context.Context, jobID string, at time.Time, code, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return lookup.ErrNotFound
	}
	job.Status = lookup.StatusFailed
	finishedAt := at
	job.FinishedAt = &finishedAt
	job.Error = &lookup.JobError{Code: code, Message: message}
	s.jobs[jobID] = job
	return nil
}

func (s *Store) GetJob(_ context.Context, jobID string) (lookup.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return lookup.Job{}, lookup.ErrNotFound
	}
	return job, nil
}

func (s *Store) FindActiveJobByURL(_ context.Context, hackathonURL string) (lookup.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		job := s.jobs[s.jobOrder[i]]
		if job.HackathonURL != hackathonURL {
			continue
		}
		if job.Status == lookup.StatusQueued || job.Status == lookup.StatusStarted {
			return job, nil
		}
	}
	return lookup.Job{}, lookup.ErrNotFound
}

func (s *Store) FindRecentCompletedByURL(_ context.Context, hackathonURL string, finishedSince time.Time) (lookup.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best lookup.Job
	found := false
	for _, jobID := range s.jobOrder {
		job := s.jobs[jobID]
		if job.HackathonURL != hackathonURL || job.Status != lookup.StatusCompleted {
			continue
		}
		if job.FinishedAt == nil || job.FinishedAt.Before(finishedSince) {
			continue
		}
		if !found || job.FinishedAt.After(*best.FinishedAt) {
			best = job
			found = true
		}
	}
	if !found {
		return lookup.Job{}, lookup.ErrNotFound
	}
	return best, nil
}

func (s *Store) ListPendingJobIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []string
	for _, jobID := range s.jobOrder {
		job := s.jobs[jobID]
		if job.Status == lookup.StatusQueued || job.Status == lookup.StatusStarted {
			pending = append(pending, jobID)
		}
	}
	return pending, nil
}

func (s *Store) SaveResult(_ context.Context, jobID string, result *devpost.CrawlResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *result
	s.results[jobID] = &copied
	return nil
}

func (s *Store) GetResult(_ context.Context, jobID string) (*devpost.CrawlResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[jobID]
	if !ok {
		return nil, lookup.ErrNotFound
	}
	copied := *result
	return &copied, nil
}

func (s *Store) AppendEvent(_ context.Context, jobID string, event lookup.Event) (lookup.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Seq = int64(len(s.events[jobID]) + 1)
	s.events[jobID] = append(s.events[jobID], event)
	return event, nil
}

func (s *Store) ListEvents(_ context.Context, jobID string) ([]lookup.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]lookup.Event, len(s.events[jobID]))
	copy(events, s.events[jobID])
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

func (s *Store) RecordRateLimitEvent(_ context.Context, ipHash, endpoint string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateEvents = append(s.rateEvents, rateLimitEvent{ipHash: ipHash, endpoint: endpoint, at: at})
	return nil
}

func (s *Store) CountRateLimitEvents(_ context.Context, ipHash, endpoint string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, ev := range s.rateEvents {
		if ev.ipHash == ipHash && ev.endpoint == endpoint && !ev.at.Before(since) {
			count++
		}
	}
	return count, nil
}
