package coordinator

import (
	"context"
	"errors"
	"sync"
)

// Task is a unit of work run by a Queue.
type Task func(ctx context.Context) error

// Queue runs at most one task at a time and holds at most one waiting task.
// Submitting replaces the waiting task and cancels the running one, so a
// burst of submissions collapses into the last of them.
type Queue struct {
	mu      sync.Mutex
	pending Task
	cancel  context.CancelFunc
	wake    chan struct{}
	onError func(error)
}

// NewQueue creates a queue passing task errors to onError.
func NewQueue(onError func(error)) *Queue {
	if onError == nil {
		onError = func(error) {}
	}
	return &Queue{
		wake:    make(chan struct{}, 1),
		onError: onError,
	}
}

// Submit schedules task.
func (q *Queue) Submit(task Task) {
	q.mu.Lock()
	q.pending = task
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run executes submitted tasks until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.wake:
		}

		for {
			q.mu.Lock()
			task := q.pending
			q.pending = nil
			if task == nil {
				q.mu.Unlock()
				break
			}
			taskCtx, cancel := context.WithCancel(ctx)
			q.cancel = cancel
			q.mu.Unlock()

			err := task(taskCtx)

			q.mu.Lock()
			q.cancel = nil
			q.mu.Unlock()
			cancel()

			if ctx.Err() != nil {
				return nil
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				q.onError(err)
			}
		}
	}
}
