package devpost

import (
	"context"
	"fmt"
	"sync"
)

// deepFetchOutcome is the three-way result of a scheduled project fetch.
// Filtered candidates (fallback entries without a matching prize) are not
// errors; they are silently discarded.
type deepFetchOutcome int

const (
	outcomeKept deepFetchOutcome = iota
	outcomeFiltered
	outcomeFailed
)

type deepFetchResult struct {
	outcome   deepFetchOutcome
	project   WinnerProject
	candidate Candidate
	confirmed bool
	err       error
}

// fetchScheduler bounds concurrent deep fetches and deduplicates candidates
// by project URL at schedule time. It is driven entirely from the crawl
// goroutine; only the spawned tasks run concurrently.
type fetchScheduler struct {
	sem         chan struct{}
	results     chan deepFetchResult
	scheduled   map[string]struct{}
	outstanding int
	total       int
	wg          sync.WaitGroup
}

func newFetchScheduler(concurrency int) *fetchScheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &fetchScheduler{
		sem:       make(chan struct{}, concurrency),
		results:   make(chan deepFetchResult),
		scheduled: make(map[string]struct{}),
	}
}

// schedule starts a deep fetch for candidate unless its project URL was
// already scheduled during this crawl.
func (f *fetchScheduler) schedule(ctx context.Context, run func(context.Context) deepFetchResult, projectURL string) {
	if _, dup := f.scheduled[projectURL]; dup {
		return
	}
	f.scheduled[projectURL] = struct{}{}
	f.total++
	f.outstanding++

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		select {
		case f.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-f.sem }()

		res := runTask(ctx, run)
		select {
		case f.results <- res:
		case <-ctx.Done():
		}
	}()
}

// runTask shields the crawl from a panicking task; the panic becomes a
// failed result so the crawl fails instead of the process dying.
func runTask(ctx context.Context, run func(context.Context) deepFetchResult) (res deepFetchResult) {
	defer func() {
		if r := recover(); r != nil {
			res = deepFetchResult{
				outcome: outcomeFailed,
				err:     fmt.Errorf("deep fetch panicked: %v", r),
			}
		}
	}()
	return run(ctx)
}

// wait blocks until every spawned task has exited. Callers cancel the crawl
// context first so in-flight tasks unwind promptly.
func (f *fetchScheduler) wait() {
	f.wg.Wait()
}
