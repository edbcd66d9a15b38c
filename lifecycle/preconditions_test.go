package lifecycle

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/clinops/errs"
)

type stubLookup struct {
	study    Status
	versions []Status
	patient  Status
}

func (s stubLookup) StudyStatus(ctx context.Context, studyID uuid.UUID) (Status, error) {
	return s.study, nil
}

func (s stubLookup) ProtocolVersionStatuses(ctx context.Context, studyID uuid.UUID) ([]Status, error) {
	return s.versions, nil
}

func (s stubLookup) PatientStatus(ctx context.Context, patientID uuid.UUID) (Status, error) {
	return s.patient, nil
}

func TestStudyPreconditions(t *testing.T) {
	r := defaultRegistry(t)
	studyID := uuid.New()

	tests := []struct {
		name      string
		versions  []Status
		requested Status
		valid     bool
		warnings  int
	}{
		{"review without versions", nil, StudyProtocolReview, false, 0},
		{"review with draft", []Status{VersionDraft}, StudyProtocolReview, true, 0},
		{"review with only approved", []Status{VersionApproved}, StudyProtocolReview, true, 1},
		{"approve without approved version", []Status{VersionDraft}, StudyApproved, false, 0},
		{"approve with approved version", []Status{VersionDraft, VersionApproved}, StudyApproved, true, 0},
		{"activate without active version", []Status{VersionApproved}, StudyActive, false, 0},
		{"activate with two active versions", []Status{VersionActive, VersionActive}, StudyActive, false, 0},
		{"activate with one active version", []Status{VersionActive, VersionSuperseded}, StudyActive, true, 0},
		{"withdraw with active version", []Status{VersionActive}, StudyWithdrawn, false, 0},
		{"suspend without active version", nil, StudySuspended, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPreconditionChecker(r, stubLookup{versions: tt.versions})
			result, err := c.ValidateCrossEntityPrecondition(context.Background(), EntityStudy, studyID, tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
			assert.Len(t, result.Warnings, tt.warnings)

			if tt.valid {
				assert.NoError(t, result.Err(studyID.String()))
			} else {
				assert.ErrorIs(t, result.Err(studyID.String()), errs.ErrConflict)
			}
		})
	}
}

func TestPatientRequiresActiveStudy(t *testing.T) {
	r := defaultRegistry(t)

	c := NewPreconditionChecker(r, stubLookup{study: StudyApproved})
	result, err := c.ValidateCrossEntityPrecondition(context.Background(), EntityPatient, uuid.New(), PatientEnrolled)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "APPROVED", result.Details["study_status"])

	c = NewPreconditionChecker(r, stubLookup{study: StudyActive})
	result, err = c.ValidateCrossEntityPrecondition(context.Background(), EntityPatient, uuid.New(), PatientEnrolled)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	// Withdrawal never depends on the study
	c = NewPreconditionChecker(r, stubLookup{study: StudyTerminated})
	result, err = c.ValidateCrossEntityPrecondition(context.Background(), EntityPatient, uuid.New(), PatientWithdrawn)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestVisitRequiresEnrolledPatient(t *testing.T) {
	r := defaultRegistry(t)

	c := NewPreconditionChecker(r, stubLookup{patient: PatientScreening})
	result, err := c.ValidateCrossEntityPrecondition(context.Background(), EntityVisit, uuid.New(), VisitInProgress)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	c = NewPreconditionChecker(r, stubLookup{patient: PatientWithdrawn})
	result, err = c.ValidateCrossEntityPrecondition(context.Background(), EntityVisit, uuid.New(), VisitScheduled)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestDesignModification(t *testing.T) {
	r := defaultRegistry(t)
	studyID := uuid.New()

	c := NewPreconditionChecker(r, stubLookup{study: StudyPlanning})
	assert.NoError(t, c.ValidateDesignModification(context.Background(), studyID, false))

	c = NewPreconditionChecker(r, stubLookup{study: StudyActive})
	err := c.ValidateDesignModification(context.Background(), studyID, false)
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.Contains(t, err.Error(), "PLANNING or PROTOCOL_REVIEW")

	assert.NoError(t, c.ValidateDesignModification(context.Background(), studyID, true))

	c = NewPreconditionChecker(r, stubLookup{study: StudyCompleted})
	assert.ErrorIs(t, c.ValidateDesignModification(context.Background(), studyID, true), errs.ErrConflict)
}
