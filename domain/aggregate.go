package domain

import (
	"fmt"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/lifecycle"
)

// Aggregate is the interface for all aggregates
type Aggregate interface {
	ID() uuid.UUID
	Type() lifecycle.EntityType
	Sequence() int
	Exists() bool
	Status() lifecycle.Status
	Replay(events []Event) error
	Handle(cmd Command) error
	Changes() []Event
	MarkCommitted()
}

// AggregateBase provides common aggregate functionality
type AggregateBase struct {
	id            uuid.UUID
	aggregateType lifecycle.EntityType
	sequence      int
	changes       []Event
	applier       func(EventData)
}

// NewAggregateBase creates a new aggregate base
func NewAggregateBase(id uuid.UUID, aggregateType lifecycle.EntityType, applier func(EventData)) *AggregateBase {
	return &AggregateBase{
		id:            id,
		aggregateType: aggregateType,
		applier:       applier,
	}
}

// ID returns the aggregate ID
func (a *AggregateBase) ID() uuid.UUID {
	return a.id
}

// Type returns the aggregate type
func (a *AggregateBase) Type() lifecycle.EntityType {
	return a.aggregateType
}

// Sequence returns the sequence of the last committed event, 0 for a new stream.
func (a *AggregateBase) Sequence() int {
	return a.sequence
}

// Exists reports whether the stream has any committed or pending event
func (a *AggregateBase) Exists() bool {
	return a.sequence > 0 || len(a.changes) > 0
}

// Changes returns the uncommitted events
func (a *AggregateBase) Changes() []Event {
	return a.changes
}

// MarkCommitted folds the pending events into the committed sequence
func (a *AggregateBase) MarkCommitted() {
	a.sequence += len(a.changes)
	a.changes = nil
}

// Replay folds stored events into state. Streams must start at 1 and have
// no gaps.
func (a *AggregateBase) Replay(events []Event) error {
	for _, e := range events {
		if e.AggregateID != a.id {
			return fmt.Errorf("event %s belongs to aggregate %s, not %s", e.ID, e.AggregateID, a.id)
		}
		if e.Sequence != a.sequence+1 {
			return fmt.Errorf("sequence gap in aggregate %s: expected %d, got %d", a.id, a.sequence+1, e.Sequence)
		}
		if e.Data == nil {
			return fmt.Errorf("event %d of aggregate %s has no data", e.Sequence, a.id)
		}
		a.applier(e.Data)
		a.sequence = e.Sequence
	}
	return nil
}

// Raise applies a new event and records it as pending
func (a *AggregateBase) Raise(data EventData, actor string) {
	a.applier(data)
	a.changes = append(a.changes, Event{
		AggregateID:   a.id,
		AggregateType: a.aggregateType,
		Type:          data.EventType(),
		Sequence:      a.sequence + len(a.changes) + 1,
		Actor:         actor,
		Data:          data,
	})
}

func (a *AggregateBase) notFound() error {
	return &errs.NotFoundError{Entity: string(a.aggregateType), Identity: a.id.String()}
}

func (a *AggregateBase) alreadyExists() error {
	return &errs.AlreadyExistsError{AggregateID: a.id.String()}
}

func (a *AggregateBase) terminal(status lifecycle.Status) error {
	return &errs.ConflictError{
		AggregateID: a.id.String(),
		Reason:      fmt.Sprintf("cannot modify %s in terminal status %s", a.aggregateType, status),
	}
}

// initialStatus picks the status a create starts in. Only migration creates
// may carry one; ordinary creates use the machine's initial status.
func initialStatus(m *lifecycle.Machine, cmd CreateCommand) (lifecycle.Status, *int64, error) {
	legacyID, initial := cmd.Legacy()
	if initial == "" {
		return m.Initial(), legacyID, nil
	}
	if legacyID == nil {
		return "", nil, &errs.ValidationError{
			Message: "initial status is only accepted when migrating a legacy row",
			Fields:  map[string]string{"initial_status": "requires legacy_id"},
		}
	}
	if !m.Known(initial) {
		return "", nil, m.Validate(m.Initial(), initial)
	}
	return initial, legacyID, nil
}

// New creates an empty aggregate of the given entity type
func New(entity lifecycle.EntityType, id uuid.UUID, registry *lifecycle.Registry) (Aggregate, error) {
	m, err := registry.Machine(entity)
	if err != nil {
		return nil, err
	}

	switch entity {
	case lifecycle.EntityStudy:
		return NewStudyAggregate(id, m), nil
	case lifecycle.EntityPatient:
		return NewPatientAggregate(id, m), nil
	case lifecycle.EntityProtocolVersion:
		return NewProtocolVersionAggregate(id, m), nil
	case lifecycle.EntityVisit:
		return NewVisitAggregate(id, m), nil
	default:
		return nil, errs.NewValidationError("unknown entity type %q", entity)
	}
}
