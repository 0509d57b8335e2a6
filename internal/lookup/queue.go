package lookup

import (
	"context"
	"sync"
)

// jobQueue is an unbounded FIFO of job IDs feeding the single worker.
// Submissions never block; enqueueing is O(1) under a short critical section.
type jobQueue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{notify: make(chan struct{}, 1)}
}

func (q *jobQueue) push(jobID string) {
	q.mu.Lock()
	q.items = append(q.items, jobID)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until an item is available or ctx is cancelled.
func (q *jobQueue) pop(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			jobID := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return jobID, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false
		case <-q.notify:
		}
	}
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *jobQueue) drain() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
