package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/backstage/services/clinops/domain"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/models"
)

// GormEventStore implements EventStore using GORM. The database must be
// opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
type GormEventStore struct {
	db *gorm.DB
}

// NewGormEventStore creates a new GORM event store
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db}
}

// WithTx returns a store bound to an open transaction
func (s *GormEventStore) WithTx(tx *gorm.DB) *GormEventStore {
	return &GormEventStore{db: tx}
}

// Append writes events after expectedSequence in one transaction
func (s *GormEventStore) Append(ctx context.Context, aggregateID uuid.UUID, expectedSequence int, events []domain.Event) (int, error) {
	if len(events) == 0 {
		return expectedSequence, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current int
		if err := tx.Model(&models.Event{}).
			Where("aggregate_id = ?", aggregateID.String()).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&current).Error; err != nil {
			return fmt.Errorf("failed to read stream head: %w", err)
		}
		if current != expectedSequence {
			return staleAppend(aggregateID, expectedSequence, current)
		}

		for i, event := range events {
			data, err := json.Marshal(event.Data)
			if err != nil {
				return fmt.Errorf("failed to marshal event data: %w", err)
			}

			row := models.Event{
				EventID:       event.ID,
				AggregateID:   aggregateID.String(),
				Sequence:      expectedSequence + i + 1,
				AggregateType: string(event.AggregateType),
				EventType:     event.Type,
				Data:          data,
				Actor:         event.Actor,
				Timestamp:     event.Timestamp,
			}
			if row.EventID == "" {
				row.EventID = uuid.NewString()
			}
			if row.Timestamp.IsZero() {
				row.Timestamp = time.Now().UTC()
			}

			if err := tx.Create(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return staleAppend(aggregateID, expectedSequence, -1)
				}
				return fmt.Errorf("failed to save event: %w", err)
			}

			log.Info().
				Str("aggregateID", row.AggregateID).
				Str("eventType", row.EventType).
				Int("sequence", row.Sequence).
				Msg("Event saved")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return expectedSequence + len(events), nil
}

// ReadAll gets all events for an aggregate
func (s *GormEventStore) ReadAll(ctx context.Context, aggregateID uuid.UUID) ([]domain.Event, error) {
	var rows []models.Event
	if err := s.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID.String()).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		event, err := toDomain(row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Exists checks if an aggregate exists
func (s *GormEventStore) Exists(ctx context.Context, aggregateID uuid.UUID) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("aggregate_id = ?", aggregateID.String()).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check if aggregate exists: %w", err)
	}
	return count > 0, nil
}

// Due returns unprojected events whose retry time has passed, in append order
func (s *GormEventStore) Due(ctx context.Context, now time.Time, limit int) ([]Record, error) {
	var rows []models.Event
	if err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", now).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get due events: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		event, err := toDomain(row)
		if err != nil {
			// Undecodable rows go through the failure path with no data
			log.Error().Err(err).Str("eventID", row.EventID).Msg("Failed to decode stored event")
			aggregateID, _ := uuid.Parse(row.AggregateID)
			event = domain.Event{
				ID:            row.EventID,
				AggregateID:   aggregateID,
				AggregateType: lifecycle.EntityType(row.AggregateType),
				Type:          row.EventType,
				Sequence:      row.Sequence,
				Timestamp:     row.Timestamp,
				Actor:         row.Actor,
			}
		}
		records = append(records, Record{Event: event, Position: row.ID, Attempts: row.Attempts})
	}
	return records, nil
}

// MarkProjected marks an event as processed
func (s *GormEventStore) MarkProjected(ctx context.Context, eventID string) error {
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed":       true,
			"next_attempt_at": nil,
			"error":           nil,
		}).Error; err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	return nil
}

// RecordFailure stores a failed projection attempt and when to retry
func (s *GormEventStore) RecordFailure(ctx context.Context, eventID string, attempts int, nextAttemptAt time.Time, cause string) error {
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"attempts":        attempts,
			"next_attempt_at": nextAttemptAt,
			"error":           cause,
		}).Error; err != nil {
		return fmt.Errorf("failed to record projection failure: %w", err)
	}
	return nil
}

// Defer postpones an event without counting an attempt
func (s *GormEventStore) Defer(ctx context.Context, eventID string, until time.Time) error {
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("event_id = ?", eventID).
		Update("next_attempt_at", until).Error; err != nil {
		return fmt.Errorf("failed to defer event: %w", err)
	}
	return nil
}

// Backlog counts unprojected events; stuck ones have at least stuckAfter attempts.
func (s *GormEventStore) Backlog(ctx context.Context, stuckAfter int) (Backlog, error) {
	var b Backlog

	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Event{}).Where("processed = ?", false).Count(&b.Pending).Error; err != nil {
		return b, fmt.Errorf("failed to count pending events: %w", err)
	}
	if err := db.Model(&models.Event{}).
		Where("processed = ? AND attempts >= ?", false, stuckAfter).
		Count(&b.Stuck).Error; err != nil {
		return b, fmt.Errorf("failed to count stuck events: %w", err)
	}

	if b.Pending > 0 {
		var oldest models.Event
		if err := db.Where("processed = ?", false).Order("id ASC").First(&oldest).Error; err != nil {
			return b, fmt.Errorf("failed to find oldest pending event: %w", err)
		}
		b.Oldest = &oldest.Timestamp
	}
	return b, nil
}

func toDomain(row models.Event) (domain.Event, error) {
	aggregateID, err := uuid.Parse(row.AggregateID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event %s has invalid aggregate id: %w", row.EventID, err)
	}

	data, err := domain.DecodeEventData(row.EventType, row.Data)
	if err != nil {
		return domain.Event{}, err
	}

	return domain.Event{
		ID:            row.EventID,
		AggregateID:   aggregateID,
		AggregateType: lifecycle.EntityType(row.AggregateType),
		Type:          row.EventType,
		Sequence:      row.Sequence,
		Timestamp:     row.Timestamp,
		Actor:         row.Actor,
		Data:          data,
	}, nil
}
