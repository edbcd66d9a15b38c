package projections

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/eventstore"
	"example.com/backstage/services/clinops/metrics"
)

// Reconciler reports the projection backlog and nudges the processor
type Reconciler struct {
	store      *eventstore.GormEventStore
	processor  *EventProcessor
	metrics    *metrics.Metrics
	stuckAfter int
}

// NewReconciler creates a new reconciler. processor may be nil when
// projection runs in another process.
func NewReconciler(store *eventstore.GormEventStore, processor *EventProcessor, m *metrics.Metrics, stuckAfter int) *Reconciler {
	return &Reconciler{store: store, processor: processor, metrics: m, stuckAfter: stuckAfter}
}

// Run takes one backlog measurement
func (r *Reconciler) Run(ctx context.Context) (eventstore.Backlog, error) {
	backlog, err := r.store.Backlog(ctx, r.stuckAfter)
	if err != nil {
		return backlog, err
	}

	r.metrics.SetBacklog(backlog.Pending, backlog.Stuck)

	if backlog.Stuck > 0 {
		event := log.Warn().Int64("stuck", backlog.Stuck).Int64("pending", backlog.Pending)
		if backlog.Oldest != nil {
			event = event.Time("oldest", *backlog.Oldest)
		}
		event.Msg("Projection backlog has stuck events")
	}

	if backlog.Pending > 0 && r.processor != nil {
		r.processor.Notify()
	}
	return backlog, nil
}

// Schedule registers Run as a recurring job on scheduler
func (r *Reconciler) Schedule(ctx context.Context, scheduler gocron.Scheduler, interval time.Duration) (gocron.Job, error) {
	return scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := r.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to reconcile projection backlog")
			}
		}),
		gocron.WithName("projection-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}
