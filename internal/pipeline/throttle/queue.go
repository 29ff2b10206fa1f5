package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/b24/internal/core/domain"
)

// WorkFunc is a deferred unit of work: one transport call.
type WorkFunc func(ctx context.Context) (*domain.Response, error)

// Outcome is the settled result of a submitted unit.
type Outcome struct {
	Response *domain.Response
	Err      error
}

// Future resolves exactly once with the unit's outcome.
type Future struct {
	ch chan Outcome

	mu      sync.Mutex
	settled bool
	out     Outcome
}

func newFuture() *Future {
	return &Future{ch: make(chan Outcome, 1)}
}

// Await blocks until the unit settles or the context is done.
// It may be called multiple times; the outcome is cached.
func (f *Future) Await(ctx context.Context) (*domain.Response, error) {
	f.mu.Lock()
	if f.settled {
		out := f.out
		f.mu.Unlock()
		return out.Response, out.Err
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-f.ch:
		f.mu.Lock()
		f.settled = true
		f.out = out
		f.mu.Unlock()
		return out.Response, out.Err
	}
}

// unit is a queued request awaiting admission.
type unit struct {
	id         uuid.UUID
	method     string
	priority   int
	enqueuedAt time.Time
	retryCount int
	work       WorkFunc
	ctx        context.Context
	future     *Future

	seq   uint64 // insertion order tiebreaker
	index int    // heap bookkeeping
}

func (u *unit) resolve(resp *domain.Response) {
	u.future.ch <- Outcome{Response: resp}
}

func (u *unit) reject(err error) {
	u.future.ch <- Outcome{Err: err}
}

// unitQueue is a binary heap ordered by priority desc, then enqueue time
// asc, then insertion order.
type unitQueue []*unit

func (q unitQueue) Len() int { return len(q) }

func (q unitQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	if !q[i].enqueuedAt.Equal(q[j].enqueuedAt) {
		return q[i].enqueuedAt.Before(q[j].enqueuedAt)
	}
	return q[i].seq < q[j].seq
}

func (q unitQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *unitQueue) Push(x any) {
	u := x.(*unit)
	u.index = len(*q)
	*q = append(*q, u)
}

func (q *unitQueue) Pop() any {
	old := *q
	n := len(old)
	u := old[n-1]
	old[n-1] = nil
	u.index = -1
	*q = old[:n-1]
	return u
}

func (q unitQueue) peek() *unit {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
