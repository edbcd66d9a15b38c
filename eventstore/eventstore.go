package eventstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/domain"
)

// EventStore is the interface for event storage
type EventStore interface {
	// Append writes events after expectedSequence and returns the new last
	// sequence. A stale expectedSequence of 0 is an *errs.AlreadyExistsError,
	// any other stale value an *errs.ConflictError.
	Append(ctx context.Context, aggregateID uuid.UUID, expectedSequence int, events []domain.Event) (int, error)

	// ReadAll returns an aggregate's events in ascending sequence
	ReadAll(ctx context.Context, aggregateID uuid.UUID) ([]domain.Event, error)

	// Exists checks if an aggregate has any event
	Exists(ctx context.Context, aggregateID uuid.UUID) (bool, error)
}

// Record is a stored event together with its delivery bookkeeping
type Record struct {
	domain.Event
	Position uint
	Attempts int
}

// Backlog summarises events still waiting for projection
type Backlog struct {
	Pending int64
	Stuck   int64
	Oldest  *time.Time
}
