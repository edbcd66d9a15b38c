package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/domain"
	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/eventstore"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/metrics"
	"example.com/backstage/services/clinops/tracing"
)

// Outcome describes a completed dispatch
type Outcome struct {
	AggregateID uuid.UUID
	EntityType  lifecycle.EntityType
	Sequence    int
	Events      []domain.Event
	NoOp        bool
}

// Pending is an in-flight dispatch
type Pending struct {
	operation string
	done      chan struct{}
	outcome   Outcome
	err       error
}

func resolved(operation string, outcome Outcome, err error) *Pending {
	p := &Pending{operation: operation, done: make(chan struct{}), outcome: outcome, err: err}
	close(p.done)
	return p
}

// Done is closed once the dispatch has an outcome
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the dispatch completes or ctx ends. A deadline yields
// *errs.TimeoutError; the write may still land afterwards.
func (p *Pending) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		return p.outcome, p.err
	default:
	}

	select {
	case <-p.done:
		return p.outcome, p.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome{}, &errs.TimeoutError{Operation: p.operation}
		}
		return Outcome{}, ctx.Err()
	}
}

// Dispatcher turns commands into appended events
type Dispatcher struct {
	store    eventstore.EventStore
	registry *lifecycle.Registry
	clock    clockwork.Clock
	tracer   tracing.Tracer
	metrics  *metrics.Metrics
	notify   func()
	timeout  time.Duration
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithClock sets the clock used for event timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = clock }
}

// WithTracer wraps each dispatch in a transaction
func WithTracer(tracer tracing.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = tracer }
}

// WithMetrics records dispatch counts and latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithNotifier is called after every successful append
func WithNotifier(notify func()) Option {
	return func(d *Dispatcher) { d.notify = notify }
}

// WithTimeout bounds Dispatch when the caller's context has no deadline
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// NewDispatcher creates a new command dispatcher
func NewDispatcher(store eventstore.EventStore, registry *lifecycle.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		registry: registry,
		clock:    clockwork.NewRealClock(),
		tracer:   tracing.Disabled(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch validates and executes cmd, blocking until the append completes.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd domain.Command) (Outcome, error) {
	if _, ok := ctx.Deadline(); !ok && d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.DispatchAsync(ctx, cmd).Wait(ctx)
}

// DispatchAsync validates cmd synchronously and executes it in the
// background. Validation failures come back already resolved.
func (d *Dispatcher) DispatchAsync(ctx context.Context, cmd domain.Command) *Pending {
	if cmd == nil {
		return resolved("dispatch", Outcome{}, errs.NewValidationError("command is required"))
	}

	operation := "dispatch " + cmd.CommandType()
	if err := domain.ValidateCommand(cmd, d.registry); err != nil {
		d.metrics.ObserveCommand(cmd.CommandType(), errs.Code(err), 0)
		return resolved(operation, Outcome{}, err)
	}

	p := &Pending{operation: operation, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		// the write outlives a caller that stopped waiting
		p.outcome, p.err = d.execute(context.WithoutCancel(ctx), cmd)
	}()
	return p
}

func (d *Dispatcher) execute(ctx context.Context, cmd domain.Command) (outcome Outcome, err error) {
	start := d.clock.Now()
	ctx, txn := d.tracer.StartTransaction(ctx, "dispatch/"+cmd.CommandType())
	defer func() {
		d.tracer.RecordError(txn, err)
		d.tracer.EndTransaction(txn)
		d.metrics.ObserveCommand(cmd.CommandType(), errs.Code(err), d.clock.Since(start))
	}()

	id := cmd.AggregateID()
	d.tracer.AddAttribute(txn, "aggregateID", id.String())

	log.Info().
		Str("aggregateID", id.String()).
		Str("command", cmd.CommandType()).
		Msg("Handling command")

	seg := d.tracer.StartSegment(ctx, "load")
	events, err := d.store.ReadAll(ctx, id)
	seg.End()
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load %s %s: %w", cmd.EntityType(), id, err)
	}

	aggregate, err := domain.New(cmd.EntityType(), id, d.registry)
	if err != nil {
		return Outcome{}, err
	}
	if err := aggregate.Replay(events); err != nil {
		return Outcome{}, fmt.Errorf("failed to replay %s %s: %w", cmd.EntityType(), id, err)
	}

	if err := aggregate.Handle(cmd); err != nil {
		return Outcome{}, err
	}

	outcome = Outcome{AggregateID: id, EntityType: cmd.EntityType(), Sequence: aggregate.Sequence()}

	changes := aggregate.Changes()
	if len(changes) == 0 {
		outcome.NoOp = true
		log.Info().Str("aggregateID", id.String()).Str("command", cmd.CommandType()).Msg("Command changed nothing")
		return outcome, nil
	}

	now := d.clock.Now().UTC()
	for i := range changes {
		changes[i].ID = uuid.NewString()
		changes[i].Sequence = aggregate.Sequence() + i + 1
		changes[i].Timestamp = now
	}

	seg = d.tracer.StartSegment(ctx, "append")
	seq, err := d.store.Append(ctx, id, aggregate.Sequence(), changes)
	seg.End()
	if err != nil {
		return Outcome{}, err
	}

	outcome.Events = append([]domain.Event(nil), changes...)
	outcome.Sequence = seq
	aggregate.MarkCommitted()

	if d.notify != nil {
		d.notify()
	}
	return outcome, nil
}
