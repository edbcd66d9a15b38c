package projections

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/config"
	"example.com/backstage/services/clinops/eventstore"
	"example.com/backstage/services/clinops/metrics"
	"example.com/backstage/services/clinops/tracing"
)

// EventProcessor polls unprojected events and hands them to the projector
type EventProcessor struct {
	store      *eventstore.GormEventStore
	projector  *Projector
	clock      clockwork.Clock
	tracer     tracing.Tracer
	metrics    *metrics.Metrics
	batchSize  int
	interval   time.Duration
	retryBase  time.Duration
	retryMax   time.Duration
	stuckAfter int

	wake     chan struct{}
	running  bool
	mutex    sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// ProcessorOption configures an EventProcessor
type ProcessorOption func(*EventProcessor)

// WithClock sets the clock used for polling and retry times
func WithClock(clock clockwork.Clock) ProcessorOption {
	return func(p *EventProcessor) { p.clock = clock }
}

// WithTracer wraps each batch in a transaction
func WithTracer(tracer tracing.Tracer) ProcessorOption {
	return func(p *EventProcessor) { p.tracer = tracer }
}

// WithMetrics records projection counts
func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *EventProcessor) { p.metrics = m }
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(store *eventstore.GormEventStore, projector *Projector, cfg config.ProjectionConfig, opts ...ProcessorOption) *EventProcessor {
	p := &EventProcessor{
		store:      store,
		projector:  projector,
		clock:      clockwork.NewRealClock(),
		tracer:     tracing.Disabled(),
		batchSize:  cfg.BatchSize,
		interval:   cfg.PollInterval,
		retryBase:  cfg.RetryBase,
		retryMax:   cfg.RetryMax,
		stuckAfter: cfg.StuckAfter,
		wake:       make(chan struct{}, 1),
	}
	if p.batchSize <= 0 {
		p.batchSize = 100
	}
	if p.interval <= 0 {
		p.interval = time.Second
	}
	if p.retryBase <= 0 {
		p.retryBase = time.Second
	}
	if p.retryMax < p.retryBase {
		p.retryMax = p.retryBase
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start starts the event processor
func (p *EventProcessor) Start(ctx context.Context) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})
	go p.processEvents(ctx, p.stopChan, p.done)
}

// Stop stops the event processor and waits for the current batch
func (p *EventProcessor) Stop() {
	p.mutex.Lock()
	if !p.running {
		p.mutex.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	done := p.done
	p.mutex.Unlock()

	<-done
}

// Notify asks for a batch without waiting for the next tick. It never blocks.
func (p *EventProcessor) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *EventProcessor) processEvents(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
		case <-p.wake:
		case <-stop:
			return
		case <-ctx.Done():
			return
		}

		// Drain full batches before going back to sleep
		for {
			n, err := p.ProcessBatch(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Failed to process event batch")
				break
			}
			if n < p.batchSize {
				break
			}
		}
	}
}

// ProcessBatch projects one batch of due events and returns how many were
// fetched. Once an aggregate's event fails or is deferred, its later events
// in the batch are left for a later batch.
func (p *EventProcessor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, txn := p.tracer.StartTransaction(ctx, "projection/batch")
	defer p.tracer.EndTransaction(txn)

	now := p.clock.Now().UTC()
	records, err := p.store.Due(ctx, now, p.batchSize)
	if err != nil {
		p.tracer.RecordError(txn, err)
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	log.Debug().Int("count", len(records)).Msg("Processing events")
	p.tracer.AddAttribute(txn, "events", len(records))

	blocked := make(map[uuid.UUID]bool)
	for _, record := range records {
		if blocked[record.AggregateID] {
			continue
		}

		seg := p.tracer.StartSegment(ctx, "project/"+record.Type)
		result, err := p.projector.Project(ctx, record.Event)
		seg.End()

		switch {
		case err != nil:
			blocked[record.AggregateID] = true
			p.fail(ctx, record, err)
		case result == Deferred:
			blocked[record.AggregateID] = true
			p.metrics.EventDeferred()
			if err := p.store.Defer(ctx, record.ID, now.Add(p.retryBase)); err != nil {
				log.Error().Err(err).Str("eventID", record.ID).Msg("Failed to defer event")
			}
			log.Debug().
				Str("aggregateID", record.AggregateID.String()).
				Int("sequence", record.Sequence).
				Msg("Event deferred behind an earlier sequence")
		case result == Applied:
			p.metrics.EventProjected(record.Type)
			log.Info().
				Str("aggregateID", record.AggregateID.String()).
				Str("eventType", record.Type).
				Int("sequence", record.Sequence).
				Msg("Event projected")
		}
	}

	return len(records), nil
}

func (p *EventProcessor) fail(ctx context.Context, record eventstore.Record, cause error) {
	attempts := record.Attempts + 1
	next := p.clock.Now().UTC().Add(p.backoff(attempts))
	p.metrics.ProjectionFailed(record.Type)

	logger := log.Error()
	msg := "Failed to project event"
	if p.stuckAfter > 0 && attempts >= p.stuckAfter {
		msg = "Event projection stuck"
	}
	logger.Err(cause).
		Str("eventID", record.ID).
		Str("aggregateID", record.AggregateID.String()).
		Str("eventType", record.Type).
		Int("sequence", record.Sequence).
		Int("attempts", attempts).
		Time("nextAttemptAt", next).
		Msg(msg)

	if err := p.store.RecordFailure(ctx, record.ID, attempts, next, cause.Error()); err != nil {
		log.Error().Err(err).Str("eventID", record.ID).Msg("Failed to record projection failure")
	}
}

// backoff is retryBase doubled per earlier attempt, capped at retryMax
func (p *EventProcessor) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > 30 {
		return p.retryMax
	}
	delay := p.retryBase << uint(shift)
	if delay <= 0 || delay > p.retryMax {
		return p.retryMax
	}
	return delay
}
