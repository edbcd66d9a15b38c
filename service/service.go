package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/bridge"
	"example.com/backstage/services/clinops/domain"
	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/eventstore"
	"example.com/backstage/services/clinops/handlers"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/models"
	"example.com/backstage/services/clinops/readstore"
	"example.com/backstage/services/clinops/waiter"
)

// View states
const (
	StateCurrent    = "CURRENT"
	StateProcessing = "PROCESSING"
)

// View is what callers get back for an entity. A PROCESSING view means the
// write is durable but the read store has not caught up; Data is empty.
type View struct {
	ID       uuid.UUID            `json:"id"`
	LegacyID *int64               `json:"legacy_id,omitempty"`
	Entity   lifecycle.EntityType `json:"entity"`
	State    string               `json:"state"`
	Sequence int                  `json:"sequence"`
	Data     interface{}          `json:"data,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
}

// Pending reports whether the view is a placeholder
func (v View) Pending() bool {
	return v.State == StateProcessing
}

// Dispatcher executes commands
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd domain.Command) (handlers.Outcome, error)
}

// Service runs the command and query flows of every entity family
type Service struct {
	registry   *lifecycle.Registry
	dispatcher Dispatcher
	events     eventstore.EventStore
	bridge     *bridge.Bridge
	reads      *readstore.Store
	waiter     *waiter.Waiter
	checker    *lifecycle.PreconditionChecker
}

// New creates a new service
func New(
	registry *lifecycle.Registry,
	dispatcher Dispatcher,
	events eventstore.EventStore,
	bridge *bridge.Bridge,
	reads *readstore.Store,
	waiter *waiter.Waiter,
) *Service {
	return &Service{
		registry:   registry,
		dispatcher: dispatcher,
		events:     events,
		bridge:     bridge,
		reads:      reads,
		waiter:     waiter,
		checker:    lifecycle.NewPreconditionChecker(registry, reads),
	}
}

// parseStatus normalises a requested status for entity
func (s *Service) parseStatus(entity lifecycle.EntityType, raw string) (lifecycle.Status, error) {
	m, err := s.registry.Machine(entity)
	if err != nil {
		return "", err
	}
	return m.Parse(raw)
}

// precondition runs the cross-entity rules for moving an entity to requested
func (s *Service) precondition(ctx context.Context, entity lifecycle.EntityType, subject, parentID uuid.UUID, requested lifecycle.Status) (*lifecycle.PreconditionResult, error) {
	result, err := s.checker.ValidateCrossEntityPrecondition(ctx, entity, parentID, requested)
	if err != nil {
		return nil, err
	}
	if err := result.Err(subject.String()); err != nil {
		return nil, err
	}
	return result, nil
}

// visible makes sure the read row of id exists, waiting for the projector
// when the stream is newer than the row.
func (s *Service) visible(ctx context.Context, entity lifecycle.EntityType, id uuid.UUID) error {
	_, err := s.reads.FindRow(ctx, entity, id)
	if err == nil || !errors.Is(err, errs.ErrNotFound) {
		return err
	}

	result, err := s.waiter.AwaitProjection(ctx, id.String(), waiter.AtSequence(s.reads, entity, id, 1), 0)
	if err != nil {
		return err
	}
	if !result.Found {
		return &errs.TimeoutError{Operation: fmt.Sprintf("projection of %s %s", entity, id), After: result.Elapsed}
	}
	return nil
}

func (s *Service) stream(ctx context.Context, entity lifecycle.EntityType, id uuid.UUID) ([]domain.Event, error) {
	events, err := s.events.ReadAll(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", entity, id, err)
	}
	if len(events) == 0 {
		return nil, &errs.NotFoundError{Entity: string(entity), Identity: id.String()}
	}
	return events, nil
}

// creation returns the payload that started the stream of id
func (s *Service) creation(ctx context.Context, entity lifecycle.EntityType, id uuid.UUID) (domain.EventData, error) {
	events, err := s.stream(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	return events[0].Data, nil
}

// transition folds the stream of id and checks requested against the
// lifecycle table before any cross-entity rule runs. It returns the payload
// that started the stream.
func (s *Service) transition(ctx context.Context, entity lifecycle.EntityType, id uuid.UUID, requested lifecycle.Status) (domain.EventData, error) {
	events, err := s.stream(ctx, entity, id)
	if err != nil {
		return nil, err
	}

	aggregate, err := domain.New(entity, id, s.registry)
	if err != nil {
		return nil, err
	}
	if err := aggregate.Replay(events); err != nil {
		return nil, fmt.Errorf("failed to replay %s %s: %w", entity, id, err)
	}
	if err := s.registry.ValidateTransition(entity, aggregate.Status(), requested); err != nil {
		return nil, err
	}
	return events[0].Data, nil
}

// execute dispatches cmd and waits until check passes
func (s *Service) execute(ctx context.Context, cmd domain.Command, check func(handlers.Outcome) waiter.Check, warnings []string) (View, error) {
	outcome, err := s.dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		return View{}, err
	}

	entity, id := cmd.EntityType(), cmd.AggregateID()
	result, err := s.waiter.AwaitProjection(ctx, id.String(), check(outcome), 0)
	if err != nil || !result.Found {
		if err != nil {
			log.Warn().Err(err).Str("aggregateID", id.String()).Msg("Stopped waiting for projection")
		}
		return View{
			ID:       id,
			Entity:   entity,
			State:    StateProcessing,
			Sequence: outcome.Sequence,
			Warnings: warnings,
		}, nil
	}

	row, err := s.reads.FindRow(ctx, entity, id)
	if err != nil {
		return View{}, err
	}
	view := viewOf(entity, id, row)
	view.Warnings = warnings
	return view, nil
}

func atSequence(reads *readstore.Store, entity lifecycle.EntityType, id uuid.UUID) func(handlers.Outcome) waiter.Check {
	return func(o handlers.Outcome) waiter.Check {
		return waiter.AtSequence(reads, entity, id, o.Sequence)
	}
}

func statusAt(reads *readstore.Store, entity lifecycle.EntityType, id uuid.UUID, status lifecycle.Status) func(handlers.Outcome) waiter.Check {
	return func(o handlers.Outcome) waiter.Check {
		return waiter.StatusAtSequence(reads, entity, id, status, o.Sequence)
	}
}

func viewOf(entity lifecycle.EntityType, id uuid.UUID, row models.LegacyRow) View {
	legacyID := row.LegacyID()
	if stored := row.StoredAggregateID(); stored != uuid.Nil {
		id = stored
	}
	return View{
		ID:       id,
		LegacyID: &legacyID,
		Entity:   entity,
		State:    StateCurrent,
		Sequence: row.ProjectedSequence(),
		Data:     row,
	}
}

// Get returns the projected row for an aggregate id or legacy id. A stream
// whose row has not been projected yet yields a PROCESSING view.
func (s *Service) Get(ctx context.Context, entity lifecycle.EntityType, raw string) (View, error) {
	id, legacyID, err := s.bridge.Resolve(ctx, entity, raw)
	if err != nil {
		return View{}, err
	}

	var row models.LegacyRow
	if legacyID != nil {
		row, err = s.reads.FindRowByLegacyID(ctx, entity, *legacyID)
	} else {
		row, err = s.reads.FindRow(ctx, entity, id)
	}
	if err == nil {
		return viewOf(entity, id, row), nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return View{}, err
	}

	exists, existsErr := s.events.Exists(ctx, id)
	if existsErr != nil {
		return View{}, existsErr
	}
	if !exists {
		return View{}, err
	}
	return View{ID: id, LegacyID: legacyID, Entity: entity, State: StateProcessing}, nil
}

// History returns the status changes of an entity oldest first
func (s *Service) History(ctx context.Context, entity lifecycle.EntityType, raw string) ([]models.StatusHistory, error) {
	id, _, err := s.bridge.Resolve(ctx, entity, raw)
	if err != nil {
		return nil, err
	}
	return s.reads.StatusHistory(ctx, id)
}
