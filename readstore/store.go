package readstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/models"
)

// Store reads projected rows
type Store struct {
	db *gorm.DB
}

// NewStore creates a new read store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func first[T any](ctx context.Context, db *gorm.DB, entity lifecycle.EntityType, identity string, query string, args ...interface{}) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(query, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &errs.NotFoundError{Entity: string(entity), Identity: identity}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", entity, identity, err)
	}
	return &row, nil
}

func byUUID[T any](ctx context.Context, db *gorm.DB, entity lifecycle.EntityType, id uuid.UUID) (*T, error) {
	return first[T](ctx, db, entity, id.String(), "aggregate_uuid = ?", id.String())
}

func byLegacyID[T any](ctx context.Context, db *gorm.DB, entity lifecycle.EntityType, legacyID int64) (*T, error) {
	return first[T](ctx, db, entity, strconv.FormatInt(legacyID, 10), "id = ?", legacyID)
}

// FindStudy loads a study by aggregate id
func (s *Store) FindStudy(ctx context.Context, id uuid.UUID) (*models.Study, error) {
	return byUUID[models.Study](ctx, s.db, lifecycle.EntityStudy, id)
}

// FindStudyByLegacyID loads a study by its integer id
func (s *Store) FindStudyByLegacyID(ctx context.Context, legacyID int64) (*models.Study, error) {
	return byLegacyID[models.Study](ctx, s.db, lifecycle.EntityStudy, legacyID)
}

// FindPatient loads a patient by aggregate id
func (s *Store) FindPatient(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	return byUUID[models.Patient](ctx, s.db, lifecycle.EntityPatient, id)
}

// FindPatientByLegacyID loads a patient by its integer id
func (s *Store) FindPatientByLegacyID(ctx context.Context, legacyID int64) (*models.Patient, error) {
	return byLegacyID[models.Patient](ctx, s.db, lifecycle.EntityPatient, legacyID)
}

// FindProtocolVersion loads a protocol version by aggregate id
func (s *Store) FindProtocolVersion(ctx context.Context, id uuid.UUID) (*models.ProtocolVersion, error) {
	return byUUID[models.ProtocolVersion](ctx, s.db, lifecycle.EntityProtocolVersion, id)
}

// FindProtocolVersionByLegacyID loads a protocol version by its integer id
func (s *Store) FindProtocolVersionByLegacyID(ctx context.Context, legacyID int64) (*models.ProtocolVersion, error) {
	return byLegacyID[models.ProtocolVersion](ctx, s.db, lifecycle.EntityProtocolVersion, legacyID)
}

// FindVisit loads a visit by aggregate id
func (s *Store) FindVisit(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	return byUUID[models.Visit](ctx, s.db, lifecycle.EntityVisit, id)
}

// FindVisitByLegacyID loads a visit by its integer id
func (s *Store) FindVisitByLegacyID(ctx context.Context, legacyID int64) (*models.Visit, error) {
	return byLegacyID[models.Visit](ctx, s.db, lifecycle.EntityVisit, legacyID)
}

// FindRow loads any family's row by aggregate id
func (s *Store) FindRow(ctx context.Context, entity lifecycle.EntityType, id uuid.UUID) (models.LegacyRow, error) {
	var (
		row models.LegacyRow
		err error
	)
	switch entity {
	case lifecycle.EntityStudy:
		var study *models.Study
		study, err = s.FindStudy(ctx, id)
		row = study
	case lifecycle.EntityPatient:
		var patient *models.Patient
		patient, err = s.FindPatient(ctx, id)
		row = patient
	case lifecycle.EntityProtocolVersion:
		var version *models.ProtocolVersion
		version, err = s.FindProtocolVersion(ctx, id)
		row = version
	case lifecycle.EntityVisit:
		var visit *models.Visit
		visit, err = s.FindVisit(ctx, id)
		row = visit
	default:
		return nil, errs.NewValidationError("unknown entity type %q", entity)
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// FindRowByLegacyID loads any family's row by integer id
func (s *Store) FindRowByLegacyID(ctx context.Context, entity lifecycle.EntityType, legacyID int64) (models.LegacyRow, error) {
	var (
		row models.LegacyRow
		err error
	)
	switch entity {
	case lifecycle.EntityStudy:
		var study *models.Study
		study, err = s.FindStudyByLegacyID(ctx, legacyID)
		row = study
	case lifecycle.EntityPatient:
		var patient *models.Patient
		patient, err = s.FindPatientByLegacyID(ctx, legacyID)
		row = patient
	case lifecycle.EntityProtocolVersion:
		var version *models.ProtocolVersion
		version, err = s.FindProtocolVersionByLegacyID(ctx, legacyID)
		row = version
	case lifecycle.EntityVisit:
		var visit *models.Visit
		visit, err = s.FindVisitByLegacyID(ctx, legacyID)
		row = visit
	default:
		return nil, errs.NewValidationError("unknown entity type %q", entity)
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// StudyStatus returns a study's projected status
func (s *Store) StudyStatus(ctx context.Context, studyID uuid.UUID) (lifecycle.Status, error) {
	study, err := s.FindStudy(ctx, studyID)
	if err != nil {
		return "", err
	}
	return lifecycle.Status(study.Status), nil
}

// PatientStatus returns a patient's projected status
func (s *Store) PatientStatus(ctx context.Context, patientID uuid.UUID) (lifecycle.Status, error) {
	patient, err := s.FindPatient(ctx, patientID)
	if err != nil {
		return "", err
	}
	return lifecycle.Status(patient.Status), nil
}

// ProtocolVersionStatuses returns the status of every version of a study
func (s *Store) ProtocolVersionStatuses(ctx context.Context, studyID uuid.UUID) ([]lifecycle.Status, error) {
	var statuses []string
	if err := s.db.WithContext(ctx).
		Model(&models.ProtocolVersion{}).
		Where("study_uuid = ?", studyID.String()).
		Order("id ASC").
		Pluck("status", &statuses).Error; err != nil {
		return nil, fmt.Errorf("failed to load protocol versions of study %s: %w", studyID, err)
	}

	out := make([]lifecycle.Status, len(statuses))
	for i, st := range statuses {
		out[i] = lifecycle.Status(st)
	}
	return out, nil
}

// ListProtocolVersions returns every version of a study
func (s *Store) ListProtocolVersions(ctx context.Context, studyID uuid.UUID) ([]models.ProtocolVersion, error) {
	var versions []models.ProtocolVersion
	if err := s.db.WithContext(ctx).
		Where("study_uuid = ?", studyID.String()).
		Order("id ASC").
		Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list protocol versions of study %s: %w", studyID, err)
	}
	return versions, nil
}

// StatusHistory returns an aggregate's status changes oldest first
func (s *Store) StatusHistory(ctx context.Context, aggregateID uuid.UUID) ([]models.StatusHistory, error) {
	var history []models.StatusHistory
	if err := s.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID.String()).
		Order("sequence ASC").
		Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to load status history of %s: %w", aggregateID, err)
	}
	return history, nil
}

// HasStatusTransition reports whether from -> to has been projected for the aggregate.
func (s *Store) HasStatusTransition(ctx context.Context, aggregateID uuid.UUID, from, to lifecycle.Status) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.StatusHistory{}).
		Where("aggregate_id = ? AND from_status = ? AND to_status = ?", aggregateID.String(), string(from), string(to)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to query status history of %s: %w", aggregateID, err)
	}
	return count > 0, nil
}
