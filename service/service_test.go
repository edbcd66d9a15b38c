package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/backstage/services/clinops/bridge"
	"example.com/backstage/services/clinops/config"
	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/eventstore"
	"example.com/backstage/services/clinops/handlers"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/models"
	"example.com/backstage/services/clinops/projections"
	"example.com/backstage/services/clinops/readstore"
	"example.com/backstage/services/clinops/waiter"
)

const namespace = "6ba7b811-9dad-11d1-80b4-00c04fd430c8"

type fixture struct {
	db        *gorm.DB
	events    *eventstore.GormEventStore
	processor *projections.EventProcessor
	bridge    *bridge.Bridge
	svc       *Service
}

// newFixture wires the service over sqlite. With inline set, every append
// is projected before Dispatch returns; otherwise the test drives the
// processor itself.
func newFixture(t *testing.T, inline bool, wait config.WaiterConfig) *fixture {
	t.Helper()
	db, err := models.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	registry, err := lifecycle.DefaultRegistry()
	require.NoError(t, err)

	events := eventstore.NewGormEventStore(db)
	processor := projections.NewEventProcessor(events, projections.NewProjector(db, events, nil), config.ProjectionConfig{
		BatchSize: 50,
		RetryBase: time.Millisecond,
		RetryMax:  time.Millisecond,
	})

	var opts []handlers.Option
	if inline {
		opts = append(opts, handlers.WithNotifier(func() {
			_, _ = processor.ProcessBatch(context.Background())
		}))
	}
	dispatcher := handlers.NewDispatcher(events, registry, opts...)
	reads := readstore.NewStore(db)

	b, err := bridge.New(events, reads, dispatcher, config.BridgeConfig{Namespace: namespace})
	require.NoError(t, err)

	return &fixture{
		db:        db,
		events:    events,
		processor: processor,
		bridge:    b,
		svc:       New(registry, dispatcher, events, b, reads, waiter.New(wait)),
	}
}

func fastWait() config.WaiterConfig {
	return config.WaiterConfig{Timeout: 2 * time.Second, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
}

func status(t *testing.T, v View) string {
	t.Helper()
	row, ok := v.Data.(models.LegacyRow)
	require.True(t, ok, "view has no row: %+v", v)
	return row.CurrentStatus()
}

func change(to, reason string) StatusRequest {
	return StatusRequest{Status: to, Reason: reason, Actor: "coordinator"}
}

func TestStudyToFirstVisit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, fastWait())
	svc := f.svc

	study, err := svc.CreateStudy(ctx, CreateStudyRequest{
		Name: "Cardio-1", Sponsor: "Acme", StudyType: "INTERVENTIONAL", Phase: "PHASE_II", Actor: "coordinator",
	})
	require.NoError(t, err)
	assert.Equal(t, StateCurrent, study.State)
	assert.Equal(t, "PLANNING", status(t, study))
	require.NotNil(t, study.LegacyID)
	studyRef := study.ID.String()

	// review needs a protocol version
	_, err = svc.ChangeStudyStatus(ctx, studyRef, change("PROTOCOL_REVIEW", ""))
	var conflict *errs.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.NotEmpty(t, conflict.Details)

	version, err := svc.CreateProtocolVersion(ctx, CreateProtocolVersionRequest{
		StudyID: studyRef, VersionNumber: "1.0", Actor: "coordinator",
	})
	require.NoError(t, err)
	assert.Equal(t, "DRAFT", status(t, version))
	versionRef := version.ID.String()

	study, err = svc.ChangeStudyStatus(ctx, studyRef, change("protocol_review", "ready"))
	require.NoError(t, err)
	assert.Equal(t, "PROTOCOL_REVIEW", status(t, study))

	for _, to := range []string{"UNDER_REVIEW", "APPROVED", "ACTIVE"} {
		version, err = svc.ChangeProtocolVersionStatus(ctx, versionRef, change(to, "irb"))
		require.NoError(t, err)
		assert.Equal(t, to, status(t, version))
	}

	for _, to := range []string{"APPROVED", "ACTIVE"} {
		study, err = svc.ChangeStudyStatus(ctx, studyRef, change(to, ""))
		require.NoError(t, err)
		assert.Equal(t, to, status(t, study))
	}

	versions, err := svc.ListProtocolVersions(ctx, studyRef)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "ACTIVE", versions[0].Status)

	patient, err := svc.RegisterPatient(ctx, RegisterPatientRequest{
		StudyID: studyRef, PatientNumber: "P-001", FirstName: "Ada", LastName: "Lovelace", Actor: "coordinator",
	})
	require.NoError(t, err)
	assert.Equal(t, "REGISTERED", status(t, patient))
	patientRef := patient.ID.String()

	patient, err = svc.ChangePatientStatus(ctx, patientRef, StatusRequest{
		Status: "SCREENING", Reason: "consented", Notes: "signed ICF", Actor: "coordinator",
	})
	require.NoError(t, err)
	assert.Equal(t, "SCREENING", status(t, patient))

	visit, err := svc.ScheduleVisit(ctx, ScheduleVisitRequest{
		PatientID: patientRef, VisitName: "Baseline", ScheduledDate: "2026-11-02", Actor: "coordinator",
	})
	require.NoError(t, err)
	assert.Equal(t, "SCHEDULED", status(t, visit))
	visitRef := visit.ID.String()

	// a screening patient cannot attend
	_, err = svc.ChangeVisitStatus(ctx, visitRef, change("IN_PROGRESS", ""))
	require.ErrorAs(t, err, &conflict)

	_, err = svc.ChangePatientStatus(ctx, patientRef, change("ENROLLED", "eligible"))
	require.NoError(t, err)

	visit, err = svc.ChangeVisitStatus(ctx, visitRef, change("IN_PROGRESS", ""))
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", status(t, visit))

	history, err := svc.PatientHistory(ctx, patientRef)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "REGISTERED", history[0].FromStatus)
	assert.Equal(t, "SCREENING", history[0].ToStatus)
	assert.Equal(t, "signed ICF", history[0].Notes)
	assert.Equal(t, "ENROLLED", history[1].ToStatus)
}

func TestDesignIsFrozenOnceStudyIsLive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, fastWait())
	svc := f.svc

	study, err := svc.CreateStudy(ctx, CreateStudyRequest{Name: "Onco-7", Sponsor: "Acme", StudyType: "OBSERVATIONAL", Actor: "pm"})
	require.NoError(t, err)
	studyRef := study.ID.String()

	version, err := svc.CreateProtocolVersion(ctx, CreateProtocolVersionRequest{StudyID: studyRef, VersionNumber: "1.0", Actor: "pm"})
	require.NoError(t, err)
	_, err = svc.ChangeStudyStatus(ctx, studyRef, change("PROTOCOL_REVIEW", ""))
	require.NoError(t, err)

	// editable during review
	version, err = svc.UpdateProtocolVersion(ctx, version.ID.String(), UpdateProtocolVersionRequest{Description: "schedule of assessments", Actor: "pm"})
	require.NoError(t, err)
	assert.Equal(t, "schedule of assessments", version.Data.(*models.ProtocolVersion).Description)

	for _, to := range []string{"UNDER_REVIEW", "APPROVED"} {
		_, err = svc.ChangeProtocolVersionStatus(ctx, version.ID.String(), change(to, "irb"))
		require.NoError(t, err)
	}
	_, err = svc.ChangeStudyStatus(ctx, studyRef, change("APPROVED", ""))
	require.NoError(t, err)

	_, err = svc.CreateProtocolVersion(ctx, CreateProtocolVersionRequest{StudyID: studyRef, VersionNumber: "2.0", Actor: "pm"})
	var conflict *errs.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Reason, "APPROVED")

	amendment, err := svc.CreateProtocolVersion(ctx, CreateProtocolVersionRequest{
		StudyID: studyRef, VersionNumber: "1.1", AmendmentType: "SAFETY", Actor: "pm",
	})
	require.NoError(t, err)
	assert.Equal(t, "DRAFT", status(t, amendment))
}

func TestIllegalTransitionIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, fastWait())

	study, err := f.svc.CreateStudy(ctx, CreateStudyRequest{Name: "Neuro-3", Sponsor: "Acme", StudyType: "INTERVENTIONAL", Actor: "pm"})
	require.NoError(t, err)

	_, err = f.svc.ChangeStudyStatus(ctx, study.ID.String(), change("COMPLETED", ""))
	var illegal *errs.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, string(lifecycle.StudyPlanning), illegal.From)

	_, err = f.svc.ChangeStudyStatus(ctx, study.ID.String(), change("PAUSED", ""))
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestLifecycleTableIsCheckedBeforeCrossEntityRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, fastWait())

	study, err := f.svc.CreateStudy(ctx, CreateStudyRequest{Name: "Renal-5", Sponsor: "Acme", StudyType: "INTERVENTIONAL", Actor: "pm"})
	require.NoError(t, err)
	studyRef := study.ID.String()

	patient, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{
		StudyID: studyRef, PatientNumber: "P-014", FirstName: "Mary", LastName: "Jackson", Actor: "site-3",
	})
	require.NoError(t, err)

	// the study is still PLANNING, but skipping SCREENING is the first problem
	_, err = f.svc.ChangePatientStatus(ctx, patient.ID.String(), change("ENROLLED", "eligible"))
	var illegal *errs.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, "REGISTERED", illegal.From)
	assert.Equal(t, "ENROLLED", illegal.To)
	assert.Equal(t, []string{"SCREENING", "WITHDRAWN"}, illegal.Allowed)
	assert.False(t, illegal.Terminal)

	_, err = f.svc.ChangeStudyStatus(ctx, studyRef, change("WITHDRAWN", "sponsor exit"))
	require.NoError(t, err)

	for _, to := range []string{"ACTIVE", "PLANNING", "SUSPENDED"} {
		_, err = f.svc.ChangeStudyStatus(ctx, studyRef, change(to, ""))
		require.ErrorAs(t, err, &illegal, to)
		assert.Equal(t, "WITHDRAWN", illegal.From)
		assert.True(t, illegal.Terminal)
		assert.Empty(t, illegal.Allowed)
	}
}

func TestLegacyRowIsMigratedOnFirstCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, fastWait())
	require.NoError(t, f.db.Create(&models.Study{
		ReadModel: models.ReadModel{ID: 42, Status: "ACTIVE"},
		Name:      "Legacy cardio",
		Sponsor:   "Acme",
		StudyType: "INTERVENTIONAL",
	}).Error)

	view, err := f.svc.ChangeStudyStatus(ctx, "42", change("SUSPENDED", "monitoring visit"))
	require.NoError(t, err)
	assert.Equal(t, f.bridge.DeriveID(lifecycle.EntityStudy, 42), view.ID)
	require.NotNil(t, view.LegacyID)
	assert.Equal(t, int64(42), *view.LegacyID)
	assert.Equal(t, "SUSPENDED", status(t, view))
	assert.NotEmpty(t, view.Warnings)

	byLegacy, err := f.svc.GetStudy(ctx, "42")
	require.NoError(t, err)
	byUUID, err := f.svc.GetStudy(ctx, view.ID.String())
	require.NoError(t, err)
	assert.Equal(t, byLegacy.ID, byUUID.ID)
	assert.Equal(t, 2, byUUID.Sequence)

	history, err := f.svc.StudyHistory(ctx, "42")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "ACTIVE", history[0].FromStatus)
}

func TestMigrationKeepsLegacyValues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, fastWait())
	require.NoError(t, f.db.Create(&models.Study{
		ReadModel:      models.ReadModel{ID: 5, Status: "ACTIVE"},
		Name:           "Legacy hepatology",
		ProtocolNumber: "HEP-2011-04",
		Phase:          "Phase 2",
		StudyType:      "Interventional Study",
	}).Error)
	require.NoError(t, f.db.Create(&models.Patient{
		ReadModel:     models.ReadModel{ID: 9, Status: "ENROLLED"},
		StudyID:       5,
		PatientNumber: "H-009",
		FirstName:     "Katherine",
		LastName:      "Johnson",
		DateOfBirth:   "03/04/1980",
		Gender:        "M",
		Email:         "kj at example",
	}).Error)

	patientID, err := f.bridge.EnsureAggregateExists(ctx, lifecycle.EntityPatient, "9")
	require.NoError(t, err)

	var study models.Study
	require.NoError(t, f.db.First(&study, 5).Error)
	assert.Equal(t, "Legacy hepatology", study.Name)
	assert.Equal(t, "HEP-2011-04", study.ProtocolNumber)
	assert.Equal(t, "Phase 2", study.Phase)
	assert.Equal(t, "Interventional Study", study.StudyType)
	assert.Equal(t, "Unknown", study.Sponsor)
	assert.Equal(t, "ACTIVE", study.Status)
	require.NotNil(t, study.AggregateUUID)
	assert.Equal(t, f.bridge.DeriveID(lifecycle.EntityStudy, 5).String(), *study.AggregateUUID)

	var patient models.Patient
	require.NoError(t, f.db.First(&patient, 9).Error)
	assert.Equal(t, "03/04/1980", patient.DateOfBirth)
	assert.Equal(t, "M", patient.Gender)
	assert.Equal(t, "kj at example", patient.Email)
	assert.Equal(t, "H-009", patient.PatientNumber)
	assert.Equal(t, uint(5), patient.StudyID)
	assert.Equal(t, "ENROLLED", patient.Status)
	require.NotNil(t, patient.AggregateUUID)
	assert.Equal(t, patientID.String(), *patient.AggregateUUID)

	// ordinary writes still get the format rules
	_, err = f.svc.UpdatePatient(ctx, "9", UpdatePatientRequest{
		FirstName: "Katherine", LastName: "Johnson", DateOfBirth: "03/04/1980", Actor: "site-1",
	})
	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "date_of_birth")
}

func TestLaggingProjectionYieldsProcessingView(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false, config.WaiterConfig{Timeout: 30 * time.Millisecond, BaseDelay: 5 * time.Millisecond})

	view, err := f.svc.CreateStudy(ctx, CreateStudyRequest{Name: "Derm-2", Sponsor: "Acme", StudyType: "INTERVENTIONAL", Actor: "pm"})
	require.NoError(t, err)
	assert.True(t, view.Pending())
	assert.Equal(t, 1, view.Sequence)
	assert.Nil(t, view.Data)

	got, err := f.svc.GetStudy(ctx, view.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, got.State)

	// dependants cannot start until the parent row lands
	_, err = f.svc.RegisterPatient(ctx, RegisterPatientRequest{
		StudyID: view.ID.String(), PatientNumber: "P-9", FirstName: "Grace", LastName: "Hopper", Actor: "pm",
	})
	var timeout *errs.TimeoutError
	require.ErrorAs(t, err, &timeout)

	n, err := f.processor.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = f.svc.GetStudy(ctx, view.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StateCurrent, got.State)
	assert.Equal(t, "PLANNING", status(t, got))
}

func TestUnknownEntitiesAreNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, fastWait())

	_, err := f.svc.GetPatient(ctx, uuid.NewString())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.svc.GetVisit(ctx, "77")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.svc.UpdatePatient(ctx, "77", UpdatePatientRequest{FirstName: "A", LastName: "B", Actor: "pm"})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.svc.GetStudy(ctx, "not-an-id")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestParentReferencesMustBeIdentities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, fastWait())

	var verr *errs.ValidationError

	_, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{
		StudyID: "cardio-1", PatientNumber: "P-1", FirstName: "A", LastName: "B", Actor: "pm",
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "study_id")

	_, err = f.svc.CreateProtocolVersion(ctx, CreateProtocolVersionRequest{StudyID: "-3", VersionNumber: "1.0", Actor: "pm"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "study_id")

	_, err = f.svc.ScheduleVisit(ctx, ScheduleVisitRequest{VisitName: "Baseline", ScheduledDate: "2026-11-02", Actor: "pm"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be a UUID or a positive integer id", verr.Fields["patient_id"])
}
