package waiter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/config"
	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/metrics"
	"example.com/backstage/services/clinops/models"
)

const (
	DefaultTimeout   = 5 * time.Second
	DefaultBaseDelay = 50 * time.Millisecond
	DefaultMaxDelay  = 500 * time.Millisecond
)

// Check reports whether the read store already reflects a write. Errors
// count as "not yet".
type Check func(ctx context.Context) (bool, error)

// Result of one wait
type Result struct {
	Found    bool
	TimedOut bool
	Polls    int
	Elapsed  time.Duration
}

// Waiter polls the read store until a projection becomes visible
type Waiter struct {
	clock        clockwork.Clock
	metrics      *metrics.Metrics
	timeout      time.Duration
	baseDelay    time.Duration
	maxDelay     time.Duration
	initialDelay time.Duration
}

// Option configures a Waiter
type Option func(*Waiter)

// WithClock sets the clock the waiter sleeps on
func WithClock(clock clockwork.Clock) Option {
	return func(w *Waiter) { w.clock = clock }
}

// WithMetrics records wait outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Waiter) { w.metrics = m }
}

// New creates a waiter. Zero config values fall back to the defaults.
func New(cfg config.WaiterConfig, opts ...Option) *Waiter {
	w := &Waiter{
		clock:        clockwork.NewRealClock(),
		timeout:      cfg.Timeout,
		baseDelay:    cfg.BaseDelay,
		maxDelay:     cfg.MaxDelay,
		initialDelay: cfg.InitialDelay,
	}
	if w.timeout <= 0 {
		w.timeout = DefaultTimeout
	}
	if w.baseDelay <= 0 {
		w.baseDelay = DefaultBaseDelay
	}
	if w.maxDelay < w.baseDelay {
		w.maxDelay = DefaultMaxDelay
		if w.maxDelay < w.baseDelay {
			w.maxDelay = w.baseDelay
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Timeout is the wait used when callers pass zero
func (w *Waiter) Timeout() time.Duration {
	return w.timeout
}

// AwaitProjection sleeps baseDelay, doubling up to maxDelay, and runs check
// after every sleep until it passes or timeout has elapsed. The last sleep
// is shortened so the wait never overruns timeout. A timeout is a result,
// not an error; only ctx ending returns an error.
func (w *Waiter) AwaitProjection(ctx context.Context, identity string, check Check, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = w.timeout
	}

	start := w.clock.Now()
	var result Result
	done := func(found bool) Result {
		result.Found = found
		result.TimedOut = !found
		result.Elapsed = w.clock.Since(start)
		w.metrics.ObserveWait(found, result.Polls)
		if !found {
			log.Warn().
				Str("identity", identity).
				Int("polls", result.Polls).
				Dur("elapsed", result.Elapsed).
				Msg("Projection not visible before timeout")
		}
		return result
	}

	poll := func() bool {
		result.Polls++
		ok, err := check(ctx)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return false
			}
			log.Warn().Err(err).Str("identity", identity).Int("poll", result.Polls).Msg("Projection check failed")
			return false
		}
		return ok
	}

	if w.initialDelay > 0 {
		if err := w.sleep(ctx, min(w.initialDelay, timeout)); err != nil {
			return result, err
		}
		if poll() {
			return done(true), nil
		}
	}

	delay := w.baseDelay
	for {
		remaining := timeout - w.clock.Since(start)
		if remaining <= 0 {
			return done(false), nil
		}

		if err := w.sleep(ctx, min(delay, remaining)); err != nil {
			return result, err
		}
		if poll() {
			return done(true), nil
		}

		delay *= 2
		if delay > w.maxDelay {
			delay = w.maxDelay
		}
	}
}

func (w *Waiter) sleep(ctx context.Context, d time.Duration) error {
	timer := w.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RowReader is the slice of the read store the checks need
type RowReader interface {
	FindRow(ctx context.Context, entity lifecycle.EntityType, id uuid.UUID) (models.LegacyRow, error)
	HasStatusTransition(ctx context.Context, aggregateID uuid.UUID, from, to lifecycle.Status) (bool, error)
}

// AtSequence passes once the row of id has projected sequence or later
func AtSequence(reader RowReader, entity lifecycle.EntityType, id uuid.UUID, sequence int) Check {
	return func(ctx context.Context) (bool, error) {
		row, err := reader.FindRow(ctx, entity, id)
		if err != nil {
			return false, err
		}
		return row.ProjectedSequence() >= sequence, nil
	}
}

// StatusAtSequence passes once the row of id shows status at sequence or later
func StatusAtSequence(reader RowReader, entity lifecycle.EntityType, id uuid.UUID, status lifecycle.Status, sequence int) Check {
	return func(ctx context.Context) (bool, error) {
		row, err := reader.FindRow(ctx, entity, id)
		if err != nil {
			return false, err
		}
		return row.ProjectedSequence() >= sequence && lifecycle.Status(row.CurrentStatus()) == status, nil
	}
}

// HistoryRecorded passes once a from -> to status history row exists for id
func HistoryRecorded(reader RowReader, id uuid.UUID, from, to lifecycle.Status) Check {
	return func(ctx context.Context) (bool, error) {
		return reader.HasStatusTransition(ctx, id, from, to)
	}
}
