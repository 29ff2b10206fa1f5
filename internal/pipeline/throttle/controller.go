// Package throttle implements client-side admission control mirroring the
// portal's leaky-bucket and operating-time rules.
package throttle

import (
	"container/heap"
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/b24/internal/core/domain"
	"github.com/vietddude/b24/internal/pipeline/classify"
	"github.com/vietddude/b24/internal/pipeline/events"
	"github.com/vietddude/b24/internal/pipeline/metrics"
)

// budgetWarnRatio is the usage fraction at which a non-fatal warning fires.
const budgetWarnRatio = 0.8

// Stats is a snapshot of the controller's throttle state.
type Stats struct {
	Counter         float64
	Blocked         bool
	OperatingUsed   float64
	UsagePercentage float64
	BlockedMethods  int
	QueueDepth      int
}

// Controller owns the throttling state machine and the admission queue.
type Controller struct {
	hooks *events.Hooks
	now   func() time.Time

	mu  sync.Mutex
	cfg Config

	counter      float64
	blocked      bool
	operating    float64
	windowStart  time.Time
	methodBlocks map[string]time.Time

	queue     unitQueue
	seq       uint64
	draining  bool
	destroyed bool

	stop     chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewController creates an admission controller. Call Start to begin the
// decay schedule and Destroy to tear it down.
func NewController(cfg Config, hooks *events.Hooks) *Controller {
	c := &Controller{
		hooks:        hooks,
		now:          time.Now,
		cfg:          cfg.withDefaults(),
		methodBlocks: make(map[string]time.Time),
		stop:         make(chan struct{}),
	}
	c.windowStart = c.now()
	return c
}

// Start launches the periodic decay task. Calling Start twice is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started || c.destroyed {
		c.mu.Unlock()
		return
	}
	c.started = true
	interval := c.cfg.DecayInterval
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.decay()
			}
		}
	}()
}

// Destroy stops the decay task and rejects every queued unit. Idempotent.
func (c *Controller) Destroy() {
	c.stopOnce.Do(func() { close(c.stop) })

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	pending := make([]*unit, len(c.queue))
	copy(pending, c.queue)
	c.queue = nil
	c.mu.Unlock()

	for _, u := range pending {
		u.reject(classify.Destroyed())
		metrics.QueueDepth.Dec()
	}
	slog.Debug("Admission controller destroyed", "rejected", len(pending))
}

// Admit reports whether a call to method may run now. An expired method
// block is evicted on the way.
func (c *Controller) Admit(method string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admitLocked(method, c.now())
}

func (c *Controller) admitLocked(method string, now time.Time) bool {
	if resetAt, ok := c.methodBlocks[method]; ok {
		if now.Before(resetAt) {
			return false
		}
		delete(c.methodBlocks, method)
	}
	return c.counter < c.cfg.BurstLimit
}

// RecordDispatch consumes one request credit.
func (c *Controller) RecordDispatch() {
	c.mu.Lock()
	c.recordDispatchLocked()
	c.mu.Unlock()
}

func (c *Controller) recordDispatchLocked() {
	c.counter++
	if c.counter >= c.cfg.BurstLimit {
		c.blocked = true
	}
	metrics.ThrottleCounter.Set(c.counter)
}

// decay releases credits at the configured rate, one fixed amount per tick,
// floored at zero. The blocked flag clears once the bucket is empty.
func (c *Controller) decay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter -= c.cfg.MaxRequestsPerSecond * c.cfg.DecayInterval.Seconds()
	if c.counter <= 0 {
		c.counter = 0
		c.blocked = false
	}
	metrics.ThrottleCounter.Set(c.counter)
}

// RecordUsage folds a response's operating cost into the windowed budget
// and emits a warning once usage crosses the threshold.
func (c *Controller) RecordUsage(method string, info *domain.TimeInfo) {
	if info == nil || info.Operating <= 0 {
		return
	}

	c.mu.Lock()
	now := c.now()
	if now.Sub(c.windowStart) > c.cfg.OperatingWindow {
		c.operating = info.Operating
		c.windowStart = now
	} else {
		c.operating += info.Operating
	}
	used, budget := c.operating, c.cfg.MaxOperatingTime
	metrics.OperatingTimeUsed.Set(used)
	c.mu.Unlock()

	if used >= budget*budgetWarnRatio {
		slog.Warn("Operating time budget nearly exhausted",
			"method", method, "used", used, "budget", budget)
		c.hooks.BudgetWarning(used, budget)
	}
}

// RecordResourceExceeded blocks a method until the given reset instant.
func (c *Controller) RecordResourceExceeded(method string, resetAt time.Time) {
	if resetAt.IsZero() {
		resetAt = c.now().Add(c.cfg.OperatingWindow)
	}
	c.mu.Lock()
	c.methodBlocks[method] = resetAt
	c.mu.Unlock()
	slog.Warn("Method blocked by operating limit", "method", method, "reset_at", resetAt)
}

// Reconfigure atomically replaces the decay rate and burst limit, e.g.
// when the portal switches tariff plans.
func (c *Controller) Reconfigure(maxRequestsPerSecond, burstLimit float64) {
	c.mu.Lock()
	if maxRequestsPerSecond >= 0 {
		c.cfg.MaxRequestsPerSecond = maxRequestsPerSecond
	}
	if burstLimit > 0 {
		c.cfg.BurstLimit = burstLimit
	}
	c.mu.Unlock()
}

// Stats returns a snapshot of the throttle state.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	pct := 0.0
	if c.cfg.MaxOperatingTime > 0 {
		pct = c.operating / c.cfg.MaxOperatingTime * 100
	}
	return Stats{
		Counter:         c.counter,
		Blocked:         c.blocked,
		OperatingUsed:   c.operating,
		UsagePercentage: pct,
		BlockedMethods:  len(c.methodBlocks),
		QueueDepth:      len(c.queue),
	}
}

// Submit hands a unit of work to the controller. With queueing enabled the
// unit is enqueued and served in priority order; otherwise it executes
// inline after at most one blocking admission wait. The returned future
// always settles.
func (c *Controller) Submit(ctx context.Context, method string, priority int, work WorkFunc) *Future {
	u := &unit{
		id:       uuid.New(),
		method:   method,
		priority: priority,
		work:     work,
		ctx:      ctx,
		future:   newFuture(),
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		u.reject(classify.Destroyed())
		return u.future
	}

	if !c.cfg.EnableQueue {
		c.mu.Unlock()
		c.runInline(u)
		return u.future
	}

	if len(c.queue) >= c.cfg.MaxQueueSize {
		capacity := c.cfg.MaxQueueSize
		c.mu.Unlock()
		u.reject(classify.QueueFull(capacity))
		return u.future
	}

	c.enqueueLocked(u)
	c.mu.Unlock()
	return u.future
}

// enqueueLocked pushes a unit and wakes the drain loop if idle.
func (c *Controller) enqueueLocked(u *unit) {
	u.enqueuedAt = c.now()
	u.seq = c.seq
	c.seq++
	heap.Push(&c.queue, u)
	metrics.QueueDepth.Inc()
	if !c.draining {
		c.draining = true
		go c.drain()
	}
}

// runInline executes a unit in the caller's goroutine, waiting once for
// admission if needed. Rate-limit failures are not requeued here; internal
// retry is a queue feature.
func (c *Controller) runInline(u *unit) {
	c.mu.Lock()
	now := c.now()
	if !c.admitLocked(u.method, now) {
		wait := c.waitDurationLocked(u.method, now)
		c.mu.Unlock()
		select {
		case <-u.ctx.Done():
			u.reject(u.ctx.Err())
			return
		case <-c.stop:
			u.reject(classify.Destroyed())
			return
		case <-time.After(wait):
		}
	} else {
		c.mu.Unlock()
	}

	c.RecordDispatch()
	c.settle(u, false)
}

// drain serves the queue while it is non-empty, yielding between
// iterations. It runs in its own goroutine; at most one is active.
func (c *Controller) drain() {
	for {
		c.mu.Lock()
		if c.destroyed {
			c.mu.Unlock()
			return
		}

		now := c.now()
		expired := c.evictExpiredLocked(now)
		if len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			rejectTimeouts(expired)
			return
		}

		head := c.queue.peek()
		if !c.admitLocked(head.method, now) {
			wait := c.waitDurationLocked(head.method, now)
			// Never sleep past the head's eviction deadline.
			if until := head.enqueuedAt.Add(c.cfg.QueueTimeout).Sub(now); until > 0 && wait > until {
				wait = until
			}
			c.mu.Unlock()
			rejectTimeouts(expired)

			select {
			case <-c.stop:
				return
			case <-time.After(wait):
			}
			continue
		}

		u := heap.Pop(&c.queue).(*unit)
		c.recordDispatchLocked()
		metrics.QueueDepth.Dec()
		c.mu.Unlock()

		rejectTimeouts(expired)
		metrics.QueueWaitSeconds.Observe(now.Sub(u.enqueuedAt).Seconds())
		c.settle(u, true)
	}
}

// evictExpiredLocked removes every unit whose age exceeds the queue
// timeout, returning them for rejection outside the lock.
func (c *Controller) evictExpiredLocked(now time.Time) []*unit {
	var expired []*unit
	for i := 0; i < len(c.queue); {
		if now.Sub(c.queue[i].enqueuedAt) > c.cfg.QueueTimeout {
			expired = append(expired, heap.Remove(&c.queue, i).(*unit))
			metrics.QueueDepth.Dec()
			continue
		}
		i++
	}
	return expired
}

func rejectTimeouts(expired []*unit) {
	for _, u := range expired {
		u.reject(classify.QueueTimeout(u.method))
	}
}

// waitDurationLocked computes how long the drain loop should sleep before
// re-evaluating: time until a method block resets, or one decay period's
// worth of credit for global throttling.
func (c *Controller) waitDurationLocked(method string, now time.Time) time.Duration {
	if resetAt, ok := c.methodBlocks[method]; ok && now.Before(resetAt) {
		return resetAt.Sub(now)
	}
	if c.cfg.MaxRequestsPerSecond <= 0 {
		return c.cfg.DecayInterval
	}
	secs := math.Ceil(1 / c.cfg.MaxRequestsPerSecond)
	return time.Duration(secs) * time.Second
}

// settle runs the unit's work and applies the outcome policy: usage on
// success, requeue-with-backoff for rate-limit failures (queued units
// only), method block for resource exhaustion, rejection otherwise.
func (c *Controller) settle(u *unit, queued bool) {
	resp, err := u.work(u.ctx)
	if err == nil {
		var info *domain.TimeInfo
		if resp != nil {
			info = resp.Time
		}
		c.RecordUsage(u.method, info)
		u.resolve(resp)
		return
	}

	ce := classify.From(err)
	switch {
	case classify.IsRateLimit(ce):
		c.markThrottled()
		c.hooks.RateLimited(u.method, ce)

		c.mu.Lock()
		retryable := queued && c.cfg.EnableRetry && u.retryCount < c.cfg.MaxRetries
		delay := c.backoffLocked(u.retryCount)
		c.mu.Unlock()

		if !retryable {
			u.reject(ce)
			return
		}
		metrics.RetriesTotal.WithLabelValues("rate_limit").Inc()
		slog.Debug("Rate limited, requeueing", "method", u.method, "retry", u.retryCount+1, "delay", delay)
		time.AfterFunc(delay, func() { c.requeue(u) })

	case classify.IsResourceExhausted(ce):
		c.RecordResourceExceeded(u.method, ce.ResetAt)
		u.reject(ce)

	default:
		u.reject(ce)
	}
}

// markThrottled fills the bucket so admission denies until decay drains it.
func (c *Controller) markThrottled() {
	c.mu.Lock()
	c.blocked = true
	if c.counter < c.cfg.BurstLimit {
		c.counter = c.cfg.BurstLimit
	}
	metrics.ThrottleCounter.Set(c.counter)
	c.mu.Unlock()
}

// requeue re-enqueues a rate-limited unit with its retry count bumped.
// Units caught by a teardown are rejected, never dropped.
func (c *Controller) requeue(u *unit) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		u.reject(classify.Destroyed())
		return
	}
	if len(c.queue) >= c.cfg.MaxQueueSize {
		capacity := c.cfg.MaxQueueSize
		c.mu.Unlock()
		u.reject(classify.QueueFull(capacity))
		return
	}
	u.retryCount++
	c.enqueueLocked(u)
	c.mu.Unlock()
}

// backoffLocked computes the internal retry delay for a given retry count.
func (c *Controller) backoffLocked(retryCount int) time.Duration {
	base := c.cfg.RetryBaseDelay
	switch c.cfg.RetryBackoff {
	case BackoffLinear:
		return base * time.Duration(retryCount+1)
	default:
		return base * time.Duration(1<<uint(retryCount))
	}
}
