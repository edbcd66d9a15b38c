package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/domain"
)

// MemoryEventStore keeps streams in process. Append is linearised by a
// mutex, giving the same conflict behaviour as the unique index.
type MemoryEventStore struct {
	mu      sync.RWMutex
	streams map[uuid.UUID][]domain.Event
	appends int
}

// NewMemoryEventStore creates an empty in-memory event store
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{streams: make(map[uuid.UUID][]domain.Event)}
}

// Append writes events after expectedSequence
func (s *MemoryEventStore) Append(ctx context.Context, aggregateID uuid.UUID, expectedSequence int, events []domain.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return expectedSequence, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	if len(stream) != expectedSequence {
		return 0, staleAppend(aggregateID, expectedSequence, len(stream))
	}

	for i, event := range events {
		event.AggregateID = aggregateID
		event.Sequence = expectedSequence + i + 1
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		stream = append(stream, event)
	}
	s.streams[aggregateID] = stream
	s.appends++

	return len(stream), nil
}

// ReadAll returns a copy of the stream
func (s *MemoryEventStore) ReadAll(ctx context.Context, aggregateID uuid.UUID) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Event(nil), s.streams[aggregateID]...), nil
}

// Exists checks if an aggregate has any event
func (s *MemoryEventStore) Exists(ctx context.Context, aggregateID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.streams[aggregateID]) > 0, nil
}

// Appends returns how many successful appends the store has accepted
func (s *MemoryEventStore) Appends() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appends
}
