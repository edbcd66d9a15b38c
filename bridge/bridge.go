package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/cache"
	"example.com/backstage/services/clinops/config"
	"example.com/backstage/services/clinops/domain"
	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/handlers"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/metrics"
	"example.com/backstage/services/clinops/models"
)

// MigrationActor is recorded on events synthesised from legacy rows
const MigrationActor = "system:migration"

// Dispatcher executes commands
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd domain.Command) (handlers.Outcome, error)
}

// Streams reports whether an aggregate has events
type Streams interface {
	Exists(ctx context.Context, aggregateID uuid.UUID) (bool, error)
}

// Rows loads read rows by either identity
type Rows interface {
	FindRow(ctx context.Context, entity lifecycle.EntityType, id uuid.UUID) (models.LegacyRow, error)
	FindRowByLegacyID(ctx context.Context, entity lifecycle.EntityType, legacyID int64) (models.LegacyRow, error)
}

// Bridge gives rows written before event sourcing an event stream on first use
type Bridge struct {
	streams    Streams
	rows       Rows
	dispatcher Dispatcher
	cache      *cache.RedisCache
	metrics    *metrics.Metrics
	namespace  uuid.UUID
}

// Option configures a Bridge
type Option func(*Bridge)

// WithCache memoises legacy ids and stream existence
func WithCache(c *cache.RedisCache) Option {
	return func(b *Bridge) { b.cache = c }
}

// WithMetrics counts migrations
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// New creates a bridge. The namespace seeds derived aggregate ids and must
// never change once streams exist.
func New(streams Streams, rows Rows, dispatcher Dispatcher, cfg config.BridgeConfig, opts ...Option) (*Bridge, error) {
	namespace, err := uuid.Parse(cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge namespace %q: %w", cfg.Namespace, err)
	}

	b := &Bridge{
		streams:    streams,
		rows:       rows,
		dispatcher: dispatcher,
		namespace:  namespace,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// DeriveID is the aggregate id of a legacy row that has none stored
func (b *Bridge) DeriveID(entity lifecycle.EntityType, legacyID int64) uuid.UUID {
	return uuid.NewSHA1(b.namespace, []byte(fmt.Sprintf("%s:%d", entity, legacyID)))
}

// Resolve turns an aggregate id or a legacy integer id into an aggregate id.
// The legacy id is returned when raw was one.
func (b *Bridge) Resolve(ctx context.Context, entity lifecycle.EntityType, raw string) (uuid.UUID, *int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, nil, &errs.ValidationError{
			Message: fmt.Sprintf("%s identity is required", entity),
			Fields:  map[string]string{"id": "required"},
		}
	}

	if id, err := uuid.Parse(raw); err == nil {
		if id == uuid.Nil {
			return uuid.Nil, nil, &errs.ValidationError{
				Message: fmt.Sprintf("invalid %s identity", entity),
				Fields:  map[string]string{"id": "must not be the nil uuid"},
			}
		}
		return id, nil, nil
	}

	legacyID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || legacyID <= 0 {
		return uuid.Nil, nil, &errs.ValidationError{
			Message: fmt.Sprintf("invalid %s identity %q", entity, raw),
			Fields:  map[string]string{"id": "must be a uuid or a positive integer"},
		}
	}

	id, err := b.legacyIdentity(ctx, entity, legacyID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return id, &legacyID, nil
}

func (b *Bridge) legacyIdentity(ctx context.Context, entity lifecycle.EntityType, legacyID int64) (uuid.UUID, error) {
	if id, err := b.cache.LegacyIdentity(ctx, entity, legacyID); err == nil {
		return id, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Str("entity", string(entity)).Int64("legacyID", legacyID).Msg("Legacy identity cache read failed")
	}

	id := b.DeriveID(entity, legacyID)
	row, err := b.rows.FindRowByLegacyID(ctx, entity, legacyID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		// no row: the derived id is still the identity, there is just nothing to migrate
		return id, nil
	case err != nil:
		return uuid.Nil, err
	}
	if stored := row.StoredAggregateID(); stored != uuid.Nil {
		id = stored
	}

	if err := b.cache.SetLegacyIdentity(ctx, entity, legacyID, id); err != nil {
		log.Warn().Err(err).Str("entity", string(entity)).Int64("legacyID", legacyID).Msg("Legacy identity cache write failed")
	}
	return id, nil
}

// EnsureAggregateExists resolves raw and, when the aggregate has no events
// yet, migrates its legacy row first. Losing a migration race to another
// caller counts as success.
func (b *Bridge) EnsureAggregateExists(ctx context.Context, entity lifecycle.EntityType, raw string) (uuid.UUID, error) {
	id, legacyID, err := b.Resolve(ctx, entity, raw)
	if err != nil {
		return uuid.Nil, err
	}
	if err := b.ensure(ctx, entity, id, legacyID); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (b *Bridge) ensure(ctx context.Context, entity lifecycle.EntityType, id uuid.UUID, legacyID *int64) error {
	if b.cache.AggregateExists(ctx, id) {
		return nil
	}

	exists, err := b.streams.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check %s %s: %w", entity, id, err)
	}
	if exists {
		b.remember(ctx, id)
		return nil
	}

	var row models.LegacyRow
	if legacyID != nil {
		row, err = b.rows.FindRowByLegacyID(ctx, entity, *legacyID)
	} else {
		row, err = b.rows.FindRow(ctx, entity, id)
	}
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return &errs.NotFoundError{Entity: string(entity), Identity: identity(id, legacyID)}
		}
		return err
	}

	cmd, err := b.migrationCommand(ctx, id, row)
	if err != nil {
		return err
	}

	logger := log.With().
		Str("aggregateID", id.String()).
		Str("entity", string(entity)).
		Int64("legacyID", row.LegacyID()).
		Logger()

	if _, err := b.dispatcher.Dispatch(ctx, cmd); err != nil {
		if !errors.Is(err, errs.ErrAlreadyExists) {
			b.metrics.Migration(string(entity), "failed")
			return fmt.Errorf("failed to migrate %s %d: %w", entity, row.LegacyID(), err)
		}
		b.metrics.Migration(string(entity), "race")
		logger.Info().Msg("Legacy row was migrated concurrently")
	} else {
		b.metrics.Migration(string(entity), "migrated")
		logger.Info().Str("status", row.CurrentStatus()).Msg("Migrated legacy row")
	}

	b.remember(ctx, id)
	return nil
}

func (b *Bridge) remember(ctx context.Context, id uuid.UUID) {
	if err := b.cache.MarkAggregateExists(ctx, id); err != nil {
		log.Warn().Err(err).Str("aggregateID", id.String()).Msg("Aggregate existence cache write failed")
	}
}

// parent ensures the aggregate a row points at, preferring the stored uuid
// over the integer foreign key.
func (b *Bridge) parent(ctx context.Context, entity lifecycle.EntityType, ref *string, legacyID uint) (uuid.UUID, error) {
	if ref != nil {
		if id, err := uuid.Parse(*ref); err == nil && id != uuid.Nil {
			return id, b.ensure(ctx, entity, id, nil)
		}
	}
	if legacyID == 0 {
		return uuid.Nil, &errs.ValidationError{Message: fmt.Sprintf("legacy row has no %s reference", entity)}
	}

	id, err := b.legacyIdentity(ctx, entity, int64(legacyID))
	if err != nil {
		return uuid.Nil, err
	}
	legacy := int64(legacyID)
	return id, b.ensure(ctx, entity, id, &legacy)
}

func identity(id uuid.UUID, legacyID *int64) string {
	if legacyID != nil {
		return strconv.FormatInt(*legacyID, 10)
	}
	return id.String()
}

// A migration create copies the legacy row's values as stored. Only an
// empty sponsor or study type is filled in.
const (
	defaultSponsor   = "Unknown"
	defaultStudyType = "INTERVENTIONAL"
)

func (b *Bridge) migrationCommand(ctx context.Context, id uuid.UUID, row models.LegacyRow) (domain.Command, error) {
	legacyID := row.LegacyID()
	status := lifecycle.Status(strings.ToUpper(strings.TrimSpace(row.CurrentStatus())))

	switch r := row.(type) {
	case *models.Study:
		return domain.CreateStudyCommand{
			StudyID:        id,
			Name:           r.Name,
			ProtocolNumber: r.ProtocolNumber,
			Sponsor:        orDefault(r.Sponsor, defaultSponsor),
			Phase:          r.Phase,
			StudyType:      orDefault(r.StudyType, defaultStudyType),
			Description:    r.Description,
			InitialStatus:  status,
			LegacyID:       &legacyID,
			Actor:          MigrationActor,
		}, nil

	case *models.Patient:
		studyID, err := b.parent(ctx, lifecycle.EntityStudy, r.StudyUUID, r.StudyID)
		if err != nil {
			return nil, err
		}
		return domain.RegisterPatientCommand{
			PatientID:     id,
			StudyID:       studyID,
			PatientNumber: r.PatientNumber,
			FirstName:     r.FirstName,
			LastName:      r.LastName,
			DateOfBirth:   r.DateOfBirth,
			Gender:        r.Gender,
			Email:         r.Email,
			InitialStatus: status,
			LegacyID:      &legacyID,
			Actor:         MigrationActor,
		}, nil

	case *models.ProtocolVersion:
		studyID, err := b.parent(ctx, lifecycle.EntityStudy, r.StudyUUID, r.StudyID)
		if err != nil {
			return nil, err
		}
		return domain.CreateProtocolVersionCommand{
			VersionID:                  id,
			StudyID:                    studyID,
			VersionNumber:              r.VersionNumber,
			AmendmentType:              r.AmendmentType,
			Description:                r.Description,
			ChangesSummary:             r.ChangesSummary,
			RequiresRegulatoryApproval: r.RequiresRegulatoryApproval,
			InitialStatus:              status,
			LegacyID:                   &legacyID,
			Actor:                      MigrationActor,
		}, nil

	case *models.Visit:
		patientID, err := b.parent(ctx, lifecycle.EntityPatient, r.PatientUUID, r.PatientID)
		if err != nil {
			return nil, err
		}
		studyID, err := b.parent(ctx, lifecycle.EntityStudy, r.StudyUUID, r.StudyID)
		if err != nil {
			return nil, err
		}
		return domain.ScheduleVisitCommand{
			VisitID:       id,
			PatientID:     patientID,
			StudyID:       studyID,
			VisitName:     r.VisitName,
			ScheduledDate: r.ScheduledDate,
			InitialStatus: status,
			LegacyID:      &legacyID,
			Actor:         MigrationActor,
		}, nil

	default:
		return nil, fmt.Errorf("cannot migrate row of type %T", row)
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
