package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrFull is returned when too many requests are already waiting.
	ErrFull = errors.New("queue full")
	// ErrStopped is returned for work submitted to, or pending in, a stopped queue.
	ErrStopped = errors.New("queue stopped")
)

// Job is one unit of work. It receives the submitter's context.
type Job func(ctx context.Context) error

type item struct {
	ctx  context.Context
	job  Job
	done chan error
}

// Queue runs jobs one at a time in submission order.
type Queue struct {
	name     string
	log      zerolog.Logger
	itemChan chan *item
	stopOnce sync.Once
	stopChan chan struct{}
	finished chan struct{}
}

// NewQueue creates a queue that holds at most maxPending waiting jobs
// besides the one running. With maxPending 0 a job is accepted only while
// the worker is waiting for one.
func NewQueue(name string, maxPending int, log zerolog.Logger) (*Queue, error) {
	if maxPending < 0 {
		return nil, fmt.Errorf("queue '%s': max_pending cannot be negative", name)
	}

	q := &Queue{
		name:     name,
		log:      log.With().Str("queue", name).Logger(),
		itemChan: make(chan *item, maxPending),
		stopChan: make(chan struct{}),
		finished: make(chan struct{}),
	}

	// Start the worker goroutine
	go q.run()

	return q, nil
}

// Submit enqueues job and waits for it to finish. When the queue is full it
// fails immediately with ErrFull.
func (q *Queue) Submit(ctx context.Context, job Job) error {
	select {
	case <-q.stopChan:
		return ErrStopped
	default:
	}

	it := &item{ctx: ctx, job: job, done: make(chan error, 1)}
	select {
	case q.itemChan <- it:
		q.log.Trace().Int("pending", len(q.itemChan)).Msg("Job added to queue")
	default:
		q.log.Debug().Msg("Queue full, rejecting job")
		return fmt.Errorf("%w: %d requests already waiting", ErrFull, cap(q.itemChan))
	}

	select {
	case err := <-it.done:
		return err
	case <-q.finished:
		// Enqueued after the final drain.
		select {
		case err := <-it.done:
			return err
		default:
			return ErrStopped
		}
	}
}

// Pending returns the number of waiting jobs.
func (q *Queue) Pending() int {
	return len(q.itemChan)
}

// Stop signals the queue to stop. The running job finishes; waiting jobs
// fail with ErrStopped.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.log.Debug().Msg("Stopping queue")
		close(q.stopChan)
	})
	<-q.finished
}

// run processes queued jobs.
func (q *Queue) run() {
	q.log.Debug().Msg("Queue processor started")
	defer q.log.Debug().Msg("Queue processor stopped")
	defer close(q.finished)

	for {
		select {
		case <-q.stopChan:
			q.drain()
			return
		case it := <-q.itemChan:
			q.process(it)
		}
	}
}

func (q *Queue) process(it *item) {
	if err := it.ctx.Err(); err != nil {
		q.log.Debug().Err(err).Msg("Skipping canceled job")
		it.done <- err
		return
	}
	err := it.job(it.ctx)
	if err != nil {
		q.log.Debug().Err(err).Msg("Job failed")
	}
	it.done <- err
}

// drain fails every job that is still waiting.
func (q *Queue) drain() {
	for {
		select {
		case it := <-q.itemChan:
			it.done <- ErrStopped
		default:
			return
		}
	}
}
