package projections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/backstage/services/clinops/domain"
	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/eventstore"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/models"
)

// Result says what Project did with an event
type Result int

const (
	Applied Result = iota
	Skipped
	Deferred
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Projector applies events to the read store
type Projector struct {
	db     *gorm.DB
	events *eventstore.GormEventStore
	search *SearchIndexer
}

// NewProjector creates a new projector. search may be nil.
func NewProjector(db *gorm.DB, events *eventstore.GormEventStore, search *SearchIndexer) *Projector {
	return &Projector{db: db, events: events, search: search}
}

// Project applies event at most once per aggregate sequence. The read row,
// status history, checkpoint and processed flag change in one transaction.
// Events already covered by the checkpoint are skipped; events ahead of it
// are deferred untouched.
func (p *Projector) Project(ctx context.Context, event domain.Event) (Result, error) {
	result := Applied
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var checkpoint models.ProjectionCheckpoint
		found := true
		err := tx.Where("aggregate_id = ?", event.AggregateID.String()).First(&checkpoint).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
		} else if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}

		events := p.events.WithTx(tx)
		switch {
		case event.Sequence <= checkpoint.LastSequence:
			result = Skipped
			return events.MarkProjected(ctx, event.ID)
		case event.Sequence > checkpoint.LastSequence+1:
			result = Deferred
			return nil
		}

		if event.Data == nil {
			return fmt.Errorf("event %s has no decodable data", event.ID)
		}

		row, err := apply(tx, event)
		if err != nil {
			return err
		}
		if err := advance(tx, event, checkpoint.LastSequence, found); err != nil {
			return err
		}
		if err := events.MarkProjected(ctx, event.ID); err != nil {
			return err
		}

		if err := p.search.IndexRow(ctx, event.AggregateType, event.AggregateID.String(), row); err != nil {
			return err
		}
		return p.search.IndexEvent(ctx, event)
	})
	if err != nil {
		return Applied, err
	}
	return result, nil
}

func apply(tx *gorm.DB, event domain.Event) (interface{}, error) {
	switch data := event.Data.(type) {
	// Study events
	case domain.StudyCreatedEvent:
		row := &models.Study{
			ReadModel:      readModel(event, data.Status),
			Name:           data.Name,
			ProtocolNumber: data.ProtocolNumber,
			Sponsor:        data.Sponsor,
			Phase:          data.Phase,
			StudyType:      data.StudyType,
			Description:    data.Description,
		}
		return row, createRow(tx, event, row, &row.ReadModel, data.LegacyID)
	case domain.StudyDetailsUpdatedEvent:
		return updateRow[models.Study](tx, event, map[string]interface{}{
			"name":        data.Name,
			"sponsor":     data.Sponsor,
			"phase":       data.Phase,
			"description": data.Description,
		})
	case domain.StudyStatusChangedEvent:
		return changeStatus[models.Study](tx, event, data, "")

	// Patient events
	case domain.PatientRegisteredEvent:
		studyID, err := rowID[models.Study](tx, lifecycle.EntityStudy, data.StudyID)
		if err != nil {
			return nil, err
		}
		row := &models.Patient{
			ReadModel:     readModel(event, data.Status),
			StudyID:       studyID,
			StudyUUID:     models.UUIDRef(data.StudyID),
			PatientNumber: data.PatientNumber,
			FirstName:     data.FirstName,
			LastName:      data.LastName,
			DateOfBirth:   data.DateOfBirth,
			Gender:        data.Gender,
			Email:         data.Email,
		}
		return row, createRow(tx, event, row, &row.ReadModel, data.LegacyID)
	case domain.PatientDetailsUpdatedEvent:
		return updateRow[models.Patient](tx, event, map[string]interface{}{
			"first_name":    data.FirstName,
			"last_name":     data.LastName,
			"date_of_birth": data.DateOfBirth,
			"gender":        data.Gender,
			"email":         data.Email,
		})
	case domain.PatientStatusChangedEvent:
		return changeStatus[models.Patient](tx, event, data, data.Notes)

	// Protocol version events
	case domain.ProtocolVersionCreatedEvent:
		studyID, err := rowID[models.Study](tx, lifecycle.EntityStudy, data.StudyID)
		if err != nil {
			return nil, err
		}
		row := &models.ProtocolVersion{
			ReadModel:                  readModel(event, data.Status),
			StudyID:                    studyID,
			StudyUUID:                  models.UUIDRef(data.StudyID),
			VersionNumber:              data.VersionNumber,
			AmendmentType:              data.AmendmentType,
			Description:                data.Description,
			ChangesSummary:             data.ChangesSummary,
			RequiresRegulatoryApproval: data.RequiresRegulatoryApproval,
		}
		return row, createRow(tx, event, row, &row.ReadModel, data.LegacyID)
	case domain.ProtocolVersionUpdatedEvent:
		return updateRow[models.ProtocolVersion](tx, event, map[string]interface{}{
			"description":     data.Description,
			"changes_summary": data.ChangesSummary,
		})
	case domain.ProtocolVersionStatusChangedEvent:
		return changeStatus[models.ProtocolVersion](tx, event, data, "")

	// Visit events
	case domain.VisitScheduledEvent:
		patientID, err := rowID[models.Patient](tx, lifecycle.EntityPatient, data.PatientID)
		if err != nil {
			return nil, err
		}
		studyID, err := rowID[models.Study](tx, lifecycle.EntityStudy, data.StudyID)
		if err != nil {
			return nil, err
		}
		row := &models.Visit{
			ReadModel:     readModel(event, data.Status),
			PatientID:     patientID,
			PatientUUID:   models.UUIDRef(data.PatientID),
			StudyID:       studyID,
			StudyUUID:     models.UUIDRef(data.StudyID),
			VisitName:     data.VisitName,
			ScheduledDate: data.ScheduledDate,
		}
		return row, createRow(tx, event, row, &row.ReadModel, data.LegacyID)
	case domain.VisitRescheduledEvent:
		return updateRow[models.Visit](tx, event, map[string]interface{}{
			"scheduled_date": data.ScheduledDate,
		})
	case domain.VisitStatusChangedEvent:
		return changeStatus[models.Visit](tx, event, data, "")

	default:
		return nil, fmt.Errorf("no projection for event type %s", event.Type)
	}
}

func readModel(event domain.Event, status lifecycle.Status) models.ReadModel {
	return models.ReadModel{
		AggregateUUID: models.UUIDRef(event.AggregateID),
		Status:        string(status),
		Sequence:      event.Sequence,
		CreatedAt:     event.Timestamp,
		UpdatedAt:     event.Timestamp,
	}
}

// createRow inserts a new row, or links the existing row when the stream was
// started from a legacy row. The legacy row keeps its id and created_at.
func createRow(tx *gorm.DB, event domain.Event, row interface{}, base *models.ReadModel, legacyID *int64) error {
	if legacyID != nil {
		base.ID = uint(*legacyID)
		res := tx.Model(row).Select("*").Omit("id", "created_at").Updates(row)
		if res.Error != nil {
			return fmt.Errorf("failed to link %s row %d: %w", event.AggregateType, *legacyID, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
	}

	if err := tx.Create(row).Error; err != nil {
		return fmt.Errorf("failed to create %s row: %w", event.AggregateType, err)
	}
	return nil
}

func updateRow[T any](tx *gorm.DB, event domain.Event, values map[string]interface{}) (*T, error) {
	values["sequence"] = event.Sequence
	values["updated_at"] = event.Timestamp

	res := tx.Model(new(T)).Where("aggregate_uuid = ?", event.AggregateID.String()).Updates(values)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update %s %s: %w", event.AggregateType, event.AggregateID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%s %s has no read row", event.AggregateType, event.AggregateID)
	}

	var row T
	if err := tx.Where("aggregate_uuid = ?", event.AggregateID.String()).First(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to reload %s %s: %w", event.AggregateType, event.AggregateID, err)
	}
	return &row, nil
}

func changeStatus[T any](tx *gorm.DB, event domain.Event, change domain.StatusChange, notes string) (*T, error) {
	from, to, reason := change.Transition()

	row, err := updateRow[T](tx, event, map[string]interface{}{"status": string(to)})
	if err != nil {
		return nil, err
	}

	history := models.StatusHistory{
		AggregateID:   event.AggregateID.String(),
		Sequence:      event.Sequence,
		AggregateType: string(event.AggregateType),
		FromStatus:    string(from),
		ToStatus:      string(to),
		Reason:        reason,
		Notes:         notes,
		Actor:         event.Actor,
		ChangedAt:     event.Timestamp,
	}
	if err := tx.Create(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to record status history of %s: %w", event.AggregateID, err)
	}
	return row, nil
}

// rowID resolves a parent's integer id. A parent without a row fails the
// projection so it is retried after the parent lands.
func rowID[T any](tx *gorm.DB, entity lifecycle.EntityType, id uuid.UUID) (uint, error) {
	var ids []uint
	if err := tx.Model(new(T)).
		Where("aggregate_uuid = ?", id.String()).
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to resolve %s %s: %w", entity, id, err)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%s %s is not projected yet", entity, id)
	}
	return ids[0], nil
}

func advance(tx *gorm.DB, event domain.Event, last int, found bool) error {
	now := time.Now().UTC()
	if !found {
		checkpoint := models.ProjectionCheckpoint{
			AggregateID:   event.AggregateID.String(),
			AggregateType: string(event.AggregateType),
			LastSequence:  event.Sequence,
			UpdatedAt:     now,
		}
		if err := tx.Create(&checkpoint).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &errs.ConflictError{AggregateID: checkpoint.AggregateID, Reason: "checkpoint created concurrently"}
			}
			return fmt.Errorf("failed to create checkpoint: %w", err)
		}
		return nil
	}

	res := tx.Model(&models.ProjectionCheckpoint{}).
		Where("aggregate_id = ? AND last_sequence = ?", event.AggregateID.String(), last).
		Updates(map[string]interface{}{
			"last_sequence": event.Sequence,
			"updated_at":    now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &errs.ConflictError{AggregateID: event.AggregateID.String(), Reason: "checkpoint moved concurrently"}
	}
	return nil
}
