package lookup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aryan-cs/hackaplan/internal/apperr"
	"github.com/aryan-cs/hackaplan/internal/devpost"
	"github.com/aryan-cs/hackaplan/internal/metrics"
)

// Config holds the orchestrator knobs.
type Config struct {
	// JobTimeout bounds one whole crawl, landing fetch through the last
	// deep fetch.
	JobTimeout time.Duration
	// ResultTTL is how long a completed result satisfies a repeat submission
	// without a fresh crawl. Zero disables reuse.
	ResultTTL time.Duration
}

// Orchestrator owns the lookup lifecycle: it accepts submissions, runs one
// crawl at a time on a background worker, persists every progress event
// before broadcasting it, and fans events out to live subscribers.
type Orchestrator struct {
	store   Store
	scraper Scraper
	cfg     Config
	logger  *zap.Logger
	queue   *jobQueue

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	subsMu sync.Mutex
	subs   map[string]map[Subscriber]struct{}
}

// New builds an Orchestrator. Start must be called before Submit.
func New(store Store, scraper Scraper, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 300 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:   store,
		scraper: scraper,
		cfg:     cfg,
		logger:  logger,
		queue:   newJobQueue(),
		subs:    make(map[string]map[Subscriber]struct{}),
	}
}

// Start launches the worker and re-enqueues jobs that were queued or started
// when the previous process stopped. Calling Start twice is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}

	pending, err := o.store.ListPendingJobIDs(ctx)
	if err != nil {
		return fmt.Errorf("recovering pending lookups: %w", err)
	}
	for _, jobID := range pending {
		o.queue.push(jobID)
	}
	if len(pending) > 0 {
		o.logger.Info("recovered pending lookups", zap.Int("count", len(pending)))
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	o.running = true
	go o.runWorker(workerCtx)
	return nil
}

// Stop cancels the worker (including any in-flight crawl) and waits for it to
// exit, bounded by ctx. Queued jobs stay persisted and are recovered on the
// next Start.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for lookup worker: %w", ctx.Err())
	}

	o.queue.drain()
	o.subsMu.Lock()
	o.subs = make(map[string]map[Subscriber]struct{})
	o.subsMu.Unlock()
	return nil
}

// Submit registers a lookup for rawURL and returns the job that satisfies it.
// An active job for the same normalized URL is returned as-is (queued jobs are
// re-enqueued so a lost queue entry cannot strand them). A completed job
// fresher than ResultTTL is returned without a new crawl. Otherwise a new job
// is created, its queued event persisted, and the job handed to the worker.
func (o *Orchestrator) Submit(ctx context.Context, rawURL string) (Job, error) {
	target, err := devpost.NormalizeHackathonURL(rawURL)
	if err != nil {
		return Job{}, err
	}

	active, err := o.store.FindActiveJobByURL(ctx, target)
	switch {
	case err == nil:
		if active.Status == StatusQueued {
			o.queue.push(active.ID)
		}
		return active, nil
	case !errors.Is(err, ErrNotFound):
		return Job{}, fmt.Errorf("checking active lookups: %w", err)
	}

	if o.cfg.ResultTTL > 0 {
		cutoff := time.Now().UTC().Add(-o.cfg.ResultTTL)
		recent, err := o.store.FindRecentCompletedByURL(ctx, target, cutoff)
		switch {
		case err == nil:
			return recent, nil
		case !errors.Is(err, ErrNotFound):
			return Job{}, fmt.Errorf("checking recent lookups: %w", err)
		}
	}

	job := Job{
		ID:           uuid.NewString(),
		HackathonURL: target,
		Status:       StatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return Job{}, fmt.Errorf("creating lookup: %w", err)
	}
	if _, err := o.Publish(ctx, job.ID, EventQueued, QueuedPayload{
		LookupID:     job.ID,
		HackathonURL: job.HackathonURL,
	}); err != nil {
		return Job{}, err
	}

	o.queue.push(job.ID)
	metrics.ObserveLookup("queued")
	o.logger.Info("lookup queued",
		zap.String("lookup_id", job.ID),
		zap.String("hackathon_url", job.HackathonURL))
	return job, nil
}

// Publish persists the event for jobID and then broadcasts it to live
// subscribers. Persistence failures abort the publish; broadcast failures
// only drop the broken subscriber.
func (o *Orchestrator) Publish(ctx context.Context, jobID, eventType string, payload any) (Event, error) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	stored, err := o.store.AppendEvent(ctx, jobID, event)
	if err != nil {
		return Event{}, fmt.Errorf("persisting %s event: %w", eventType, err)
	}
	o.broadcast(jobID, stored)
	return stored, nil
}

// Subscribe attaches sub to jobID's live event feed.
func (o *Orchestrator) Subscribe(jobID string, sub Subscriber) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	set, ok := o.subs[jobID]
	if !ok {
		set = make(map[Subscriber]struct{})
		o.subs[jobID] = set
	}
	if _, dup := set[sub]; !dup {
		set[sub] = struct{}{}
		metrics.IncSubscribers()
	}
}

// Unsubscribe detaches sub. Safe to call for a subscriber already dropped.
func (o *Orchestrator) Unsubscribe(jobID string, sub Subscriber) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	o.removeSubscriberLocked(jobID, sub)
}

func (o *Orchestrator) removeSubscriberLocked(jobID string, sub Subscriber) {
	set, ok := o.subs[jobID]
	if !ok {
		return
	}
	if _, present := set[sub]; !present {
		return
	}
	delete(set, sub)
	metrics.DecSubscribers()
	if len(set) == 0 {
		delete(o.subs, jobID)
	}
}

func (o *Orchestrator) broadcast(jobID string, event Event) {
	o.subsMu.Lock()
	targets := make([]Subscriber, 0, len(o.subs[jobID]))
	for sub := range o.subs[jobID] {
		targets = append(targets, sub)
	}
	o.subsMu.Unlock()

	var broken []Subscriber
	for _, sub := range targets {
		if err := sub.Send(event); err != nil {
			broken = append(broken, sub)
		}
	}
	if len(broken) == 0 {
		return
	}

	o.subsMu.Lock()
	for _, sub := range broken {
		o.removeSubscriberLocked(jobID, sub)
	}
	o.subsMu.Unlock()
	o.logger.Debug("dropped broken subscribers",
		zap.String("lookup_id", jobID),
		zap.Int("count", len(broken)))
}

// runWorker drains the queue one job at a time until ctx is cancelled. The
// loop itself never dies: a panicking crawl fails its job, not the worker.
func (o *Orchestrator) runWorker(ctx context.Context) {
	defer close(o.done)
	for {
		jobID, ok := o.queue.pop(ctx)
		if !ok {
			return
		}
		o.processJob(ctx, jobID)
	}
}

func (o *Orchestrator) processJob(ctx context.Context, jobID string) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		o.logger.Error("loading queued lookup", zap.String("lookup_id", jobID), zap.Error(err))
		return
	}
	// Duplicate queue entries (submit re-enqueues, recovery overlap) reach
	// the single worker only after the first run finished; skip anything
	// already terminal. A recovered started job runs again from the top.
	if job.Status.Terminal() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("lookup worker recovered from panic",
				zap.String("lookup_id", jobID), zap.Any("panic", r))
			o.failJob(ctx, jobID, string(apperr.CodeParse), fmt.Sprintf("lookup crashed: %v", r))
		}
	}()

	now := time.Now().UTC()
	if err := o.store.MarkStarted(ctx, jobID, now); err != nil {
		o.logger.Error("marking lookup started", zap.String("lookup_id", jobID), zap.Error(err))
		return
	}
	if _, err := o.Publish(ctx, jobID, EventStarted, StartedPayload{LookupID: jobID}); err != nil {
		o.logger.Error("publishing started event", zap.String("lookup_id", jobID), zap.Error(err))
	}
	metrics.ObserveLookup("started")
	o.logger.Info("lookup started",
		zap.String("lookup_id", jobID),
		zap.String("hackathon_url", job.HackathonURL))

	crawlCtx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()

	// Progress events are forwarded from a dedicated goroutine so the crawl
	// never blocks on persistence; the channel close hands ordering back to
	// this goroutine before the terminal event is published.
	progress := make(chan devpost.Event, 16)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range progress {
			if _, err := o.Publish(ctx, jobID, string(ev.Type), ev.Payload); err != nil {
				o.logger.Error("publishing progress event",
					zap.String("lookup_id", jobID),
					zap.String("event_type", string(ev.Type)),
					zap.Error(err))
			}
		}
	}()

	result, err := o.scraper.Scrape(crawlCtx, job.HackathonURL, progress)
	<-forwarded

	if err != nil {
		code := string(apperr.CodeOf(err))
		message := err.Error()
		if errors.Is(err, context.DeadlineExceeded) && crawlCtx.Err() == context.DeadlineExceeded {
			code = string(apperr.CodeTimeout)
			message = fmt.Sprintf("Lookup timed out after %s", o.cfg.JobTimeout)
		}
		o.failJob(ctx, jobID, code, message)
		return
	}

	if err := o.store.SaveResult(ctx, jobID, result); err != nil {
		o.failJob(ctx, jobID, string(apperr.CodeParse), fmt.Sprintf("persisting result: %v", err))
		return
	}
	if err := o.store.MarkCompleted(ctx, jobID, time.Now().UTC()); err != nil {
		o.logger.Error("marking lookup completed", zap.String("lookup_id", jobID), zap.Error(err))
		return
	}
	if _, err := o.Publish(ctx, jobID, EventCompleted, CompletedPayload{
		LookupID:    jobID,
		WinnerCount: len(result.Winners),
	}); err != nil {
		o.logger.Error("publishing completed event", zap.String("lookup_id", jobID), zap.Error(err))
	}
	metrics.ObserveLookup("completed")
	o.logger.Info("lookup completed",
		zap.String("lookup_id", jobID),
		zap.Int("winner_count", len(result.Winners)))
}

func (o *Orchestrator) failJob(ctx context.Context, jobID, code, message string) {
	if err := o.store.MarkFailed(ctx, jobID, time.Now().UTC(), code, message); err != nil {
		o.logger.Error("marking lookup failed", zap.String("lookup_id", jobID), zap.Error(err))
	}
	if _, err := o.Publish(ctx, jobID, EventFailed, FailedPayload{Code: code, Message: message}); err != nil {
		o.logger.Error("publishing failed event", zap.String("lookup_id", jobID), zap.Error(err))
	}
	metrics.ObserveLookup("failed")
	o.logger.Warn("lookup failed",
		zap.String("lookup_id", jobID),
		zap.String("code", code),
		zap.String("message", message))
}
