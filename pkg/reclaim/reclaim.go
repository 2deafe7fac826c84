package reclaim

import (
	"context"
	"errors"
	"sync"

	"github.com/Borislavv/segment-registry/pkg/prometheus/metrics"
	"github.com/rs/zerolog/log"
)

const (
	defaultWorkers  = 2
	defaultCapacity = 200
)

var ErrNegativeWorkers = errors.New("reclaim queue workers must not be negative")

// Strategy decides where the teardown of a segment whose last reference was released runs.
type Strategy interface {
	Submit(name string, destroy func() error) error
}

// Inline runs teardown in the goroutine which released the last reference.
type Inline struct{}

func (Inline) Submit(_ string, destroy func() error) error { return destroy() }

type job struct {
	name    string
	destroy func() error
}

// Queue runs teardowns on background workers. It never drops a teardown: when the queue is
// full or already closed the job runs inline in the submitting goroutine.
type Queue struct {
	meter  metrics.Meter
	jobs   chan job
	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
}

// NewQueue starts workers draining a buffer of the given capacity. Cancelling ctx closes the queue.
func NewQueue(ctx context.Context, meter metrics.Meter, workers, capacity int) (*Queue, error) {
	if workers < 0 {
		return nil, ErrNegativeWorkers
	}
	if workers == 0 {
		workers = defaultWorkers
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	q := &Queue{
		meter: meter,
		jobs:  make(chan job, capacity),
	}
	for id := 0; id < workers; id++ {
		q.wg.Add(1)
		go q.work(id)
	}
	go func() {
		<-ctx.Done()
		q.Close()
	}()

	log.Info().Msgf("[reclaim] background queue started (workers: %d, capacity: %d)", workers, capacity)
	return q, nil
}

// Submit enqueues the teardown. The returned error is only ever non-nil when the job ran inline.
func (q *Queue) Submit(name string, destroy func() error) error {
	q.mu.RLock()
	if !q.closed {
		select {
		case q.jobs <- job{name: name, destroy: destroy}:
			q.mu.RUnlock()
			q.meter.IncReclaimQueued()
			return nil
		default:
		}
	}
	q.mu.RUnlock()

	q.meter.IncReclaimOverflow()
	return destroy()
}

// Pending is the number of queued teardowns not yet picked up by a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Close stops intake and waits until every queued teardown has run.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	})
	q.wg.Wait()
}

func (q *Queue) work(id int) {
	defer q.wg.Done()
	for j := range q.jobs {
		if err := j.destroy(); err != nil {
			log.Error().Err(err).Str("segment", j.name).Msgf("[reclaim] worker #%d: teardown failed", id)
		}
	}
}
