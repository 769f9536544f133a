package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shubh-37/social-autoreply/internal/metrics"
)

// Config describes the quota of one external API.
// A zero Reservoir means no call budget, a zero MaxConcurrent means no concurrency cap.
type Config struct {
	Reservoir       int
	RefreshAmount   int
	RefreshInterval time.Duration
	MaxConcurrent   int
	MinSpacing      time.Duration
}

// Limiter admits calls into one external API in FIFO order.
//
// A call is admitted once a concurrency slot is free, the reservoir holds a permit
// and MinSpacing has passed since the previous admission. The reservoir is reset to
// RefreshAmount every RefreshInterval, the way platform quotas reset, rather than
// trickling back at a smooth rate.
type Limiter struct {
	name string
	cfg  Config

	admission *semaphore.Weighted
	slots     *semaphore.Weighted

	mu         sync.Mutex
	reservoir  int
	lastRefill time.Time
	lastStart  time.Time

	now func() time.Time
}

// New creates a limiter. The name labels its metrics.
func New(name string, cfg Config) *Limiter {
	if cfg.RefreshAmount <= 0 {
		cfg.RefreshAmount = cfg.Reservoir
	}
	l := &Limiter{
		name:      name,
		cfg:       cfg,
		admission: semaphore.NewWeighted(1),
		reservoir: cfg.Reservoir,
		now:       time.Now,
	}
	if cfg.MaxConcurrent > 0 {
		l.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	l.lastRefill = l.now()
	return l
}

// Name returns the limiter's label
func (l *Limiter) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Remaining returns the permits left in the current refresh window, or -1 when unbounded.
func (l *Limiter) Remaining() int {
	if l == nil || l.cfg.Reservoir <= 0 {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.now())
	return l.reservoir
}

// Acquire blocks until a call may start and returns the function that frees its
// concurrency slot. The reservoir permit is spent on admission and never returned.
// A nil limiter admits immediately.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l == nil {
		return func() {}, nil
	}

	start := time.Now()
	queued := metrics.LimiterQueued.WithLabelValues(l.name)
	queued.Inc()
	defer queued.Dec()

	// Holding admission while waiting on slots and permits keeps the queue FIFO.
	if err := l.admission.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.admission.Release(1)

	if l.slots != nil {
		if err := l.slots.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	if err := l.takePermit(ctx); err != nil {
		if l.slots != nil {
			l.slots.Release(1)
		}
		return nil, err
	}

	metrics.LimiterWait.WithLabelValues(l.name).Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			if l.slots != nil {
				l.slots.Release(1)
			}
		})
	}, nil
}

func (l *Limiter) takePermit(ctx context.Context) error {
	for {
		wait := l.tryTake()
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryTake spends a permit and returns 0, or returns how long to wait before retrying.
func (l *Limiter) tryTake() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.refill(now)

	if l.cfg.Reservoir > 0 && l.reservoir <= 0 {
		if l.cfg.RefreshInterval <= 0 {
			// never refills; wait for the caller's context
			return time.Hour
		}
		return l.lastRefill.Add(l.cfg.RefreshInterval).Sub(now)
	}

	if l.cfg.MinSpacing > 0 && !l.lastStart.IsZero() {
		if next := l.lastStart.Add(l.cfg.MinSpacing); next.After(now) {
			return next.Sub(now)
		}
	}

	if l.cfg.Reservoir > 0 {
		l.reservoir--
	}
	l.lastStart = now
	return 0
}

func (l *Limiter) refill(now time.Time) {
	if l.cfg.Reservoir <= 0 || l.cfg.RefreshInterval <= 0 {
		return
	}
	elapsed := now.Sub(l.lastRefill)
	if elapsed < l.cfg.RefreshInterval {
		return
	}
	periods := elapsed / l.cfg.RefreshInterval
	l.lastRefill = l.lastRefill.Add(periods * l.cfg.RefreshInterval)
	l.reservoir = l.cfg.RefreshAmount
}

// Schedule runs task once the limiter admits it. The task's own error is returned
// unchanged; the permit is consumed either way.
func Schedule[T any](ctx context.Context, l *Limiter, task func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	release, err := l.Acquire(ctx)
	if err != nil {
		return zero, fmt.Errorf("rate limiter %s: %w", l.Name(), err)
	}
	defer release()
	return task(ctx)
}
