package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/lifecycle"
)

func registry(t *testing.T) *lifecycle.Registry {
	t.Helper()
	r, err := lifecycle.DefaultRegistry()
	require.NoError(t, err)
	return r
}

func newStudy(t *testing.T, id uuid.UUID) Aggregate {
	t.Helper()
	agg, err := New(lifecycle.EntityStudy, id, registry(t))
	require.NoError(t, err)
	return agg
}

func createStudy(id uuid.UUID) CreateStudyCommand {
	return CreateStudyCommand{
		StudyID:   id,
		Name:      "Cardio-1",
		Sponsor:   "Acme",
		StudyType: "INTERVENTIONAL",
		Actor:     "tester",
	}
}

// committed returns an aggregate whose stream already holds the given commands
func committed(t *testing.T, agg Aggregate, cmds ...Command) Aggregate {
	t.Helper()
	for _, cmd := range cmds {
		require.NoError(t, agg.Handle(cmd))
	}
	agg.MarkCommitted()
	return agg
}

func TestCreateStudyStartsInPlanning(t *testing.T) {
	id := uuid.New()
	agg := newStudy(t, id)

	require.NoError(t, agg.Handle(createStudy(id)))

	changes := agg.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, StudyCreated, changes[0].Type)
	assert.Equal(t, 1, changes[0].Sequence)
	assert.Equal(t, id, changes[0].AggregateID)
	assert.Equal(t, "tester", changes[0].Actor)
	assert.Equal(t, lifecycle.StudyPlanning, agg.Status())
	assert.Equal(t, 0, agg.Sequence())
}

func TestCreateOnExistingStreamIsAlreadyExists(t *testing.T) {
	id := uuid.New()
	agg := committed(t, newStudy(t, id), createStudy(id))

	err := agg.Handle(createStudy(id))
	require.Error(t, err)

	var exists *errs.AlreadyExistsError
	assert.True(t, errors.As(err, &exists))
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.Empty(t, agg.Changes())
}

func TestCommandOnMissingAggregateIsNotFound(t *testing.T) {
	id := uuid.New()
	agg := newStudy(t, id)

	err := agg.Handle(ChangeStudyStatusCommand{StudyID: id, NewStatus: lifecycle.StudyProtocolReview, Actor: "tester"})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestIllegalStatusChangeProducesNoEvents(t *testing.T) {
	id := uuid.New()
	agg := committed(t, newStudy(t, id), createStudy(id))

	err := agg.Handle(ChangeStudyStatusCommand{StudyID: id, NewStatus: lifecycle.StudyActive, Actor: "tester"})

	var illegal *errs.IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, []string{"PROTOCOL_REVIEW", "WITHDRAWN"}, illegal.Allowed)
	assert.Empty(t, agg.Changes())
}

func TestStatusChangeRecordsPreviousStatus(t *testing.T) {
	id := uuid.New()
	agg := committed(t, newStudy(t, id), createStudy(id))

	require.NoError(t, agg.Handle(ChangeStudyStatusCommand{
		StudyID:   id,
		NewStatus: lifecycle.StudyProtocolReview,
		Reason:    "ready",
		Actor:     "tester",
	}))

	changes := agg.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, 2, changes[0].Sequence)

	change, ok := changes[0].Data.(StatusChange)
	require.True(t, ok)
	from, to, reason := change.Transition()
	assert.Equal(t, lifecycle.StudyPlanning, from)
	assert.Equal(t, lifecycle.StudyProtocolReview, to)
	assert.Equal(t, "ready", reason)
}

func TestUnchangedDetailsAreANoOp(t *testing.T) {
	id := uuid.New()
	agg := committed(t, newStudy(t, id), createStudy(id))

	require.NoError(t, agg.Handle(UpdateStudyDetailsCommand{
		StudyID: id,
		Name:    "Cardio-1",
		Sponsor: "Acme",
		Actor:   "tester",
	}))
	assert.Empty(t, agg.Changes())

	require.NoError(t, agg.Handle(UpdateStudyDetailsCommand{
		StudyID: id,
		Name:    "Cardio-2",
		Sponsor: "Acme",
		Actor:   "tester",
	}))
	assert.Len(t, agg.Changes(), 1)
}

func TestTerminalEntityRejectsDetailEdits(t *testing.T) {
	id := uuid.New()
	agg, err := New(lifecycle.EntityVisit, id, registry(t))
	require.NoError(t, err)

	committed(t, agg,
		ScheduleVisitCommand{VisitID: id, PatientID: uuid.New(), StudyID: uuid.New(), VisitName: "Baseline", ScheduledDate: "2026-01-10", Actor: "tester"},
		ChangeVisitStatusCommand{VisitID: id, NewStatus: lifecycle.VisitCancelled, Actor: "tester"},
	)

	err = agg.Handle(RescheduleVisitCommand{VisitID: id, ScheduledDate: "2026-02-01", Actor: "tester"})
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.Empty(t, agg.Changes())
}

func TestMigrationCreateKeepsLegacyStatus(t *testing.T) {
	id := uuid.New()
	legacyID := int64(42)
	agg, err := New(lifecycle.EntityPatient, id, registry(t))
	require.NoError(t, err)

	require.NoError(t, agg.Handle(RegisterPatientCommand{
		PatientID:     id,
		StudyID:       uuid.New(),
		PatientNumber: "P-042",
		FirstName:     "Ada",
		LastName:      "Lovelace",
		InitialStatus: lifecycle.PatientEnrolled,
		LegacyID:      &legacyID,
		Actor:         "migration",
	}))

	assert.Equal(t, lifecycle.PatientEnrolled, agg.Status())
	created := agg.Changes()[0].Data.(PatientRegisteredEvent)
	require.NotNil(t, created.LegacyID)
	assert.Equal(t, int64(42), *created.LegacyID)
}

func TestReplayRejectsGaps(t *testing.T) {
	id := uuid.New()
	agg := newStudy(t, id)

	err := agg.Replay([]Event{
		{AggregateID: id, Sequence: 1, Type: StudyCreated, Data: StudyCreatedEvent{Name: "x", Status: lifecycle.StudyPlanning}},
		{AggregateID: id, Sequence: 3, Type: StudyStatusChanged, Data: StudyStatusChangedEvent{From: lifecycle.StudyPlanning, To: lifecycle.StudyProtocolReview}},
	})
	assert.Error(t, err)
}

func TestReplayRebuildsState(t *testing.T) {
	id := uuid.New()
	agg := newStudy(t, id)

	require.NoError(t, agg.Replay([]Event{
		{AggregateID: id, Sequence: 1, Type: StudyCreated, Data: StudyCreatedEvent{Name: "x", Status: lifecycle.StudyPlanning}},
		{AggregateID: id, Sequence: 2, Type: StudyStatusChanged, Data: StudyStatusChangedEvent{From: lifecycle.StudyPlanning, To: lifecycle.StudyProtocolReview}},
	}))

	assert.True(t, agg.Exists())
	assert.Equal(t, 2, agg.Sequence())
	assert.Equal(t, lifecycle.StudyProtocolReview, agg.Status())
}

func TestWrongFamilyCommandIsRejected(t *testing.T) {
	id := uuid.New()
	agg := newStudy(t, id)

	err := agg.Handle(ChangeVisitStatusCommand{VisitID: id, NewStatus: lifecycle.VisitMissed, Actor: "tester"})
	assert.Error(t, err)
}

func TestDecodeEventData(t *testing.T) {
	raw, err := json.Marshal(PatientStatusChangedEvent{From: lifecycle.PatientEnrolled, To: lifecycle.PatientActive, Reason: "first dose"})
	require.NoError(t, err)

	data, err := DecodeEventData(PatientStatusChanged, raw)
	require.NoError(t, err)
	assert.Equal(t, PatientStatusChangedEvent{From: lifecycle.PatientEnrolled, To: lifecycle.PatientActive, Reason: "first dose"}, data)

	_, err = DecodeEventData("V1_UNKNOWN", raw)
	assert.Error(t, err)
}
