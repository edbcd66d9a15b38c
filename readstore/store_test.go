package readstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func TestFindByIdentityAndLegacyID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewStore(db)

	studyID := uuid.New()
	linked := models.Study{ReadModel: models.ReadModel{AggregateUUID: models.UUIDRef(studyID), Status: "ACTIVE"}, Name: "Linked"}
	legacy := models.Study{ReadModel: models.ReadModel{Status: "PLANNING"}, Name: "Legacy"}
	require.NoError(t, db.Create(&linked).Error)
	require.NoError(t, db.Create(&legacy).Error)

	study, err := store.FindStudy(ctx, studyID)
	require.NoError(t, err)
	assert.Equal(t, "Linked", study.Name)
	assert.Equal(t, studyID, study.StoredAggregateID())

	row, err := store.FindRowByLegacyID(ctx, lifecycle.EntityStudy, int64(legacy.ID))
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, row.StoredAggregateID())
	assert.Equal(t, int64(legacy.ID), row.LegacyID())

	_, err = store.FindStudy(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = store.FindRowByLegacyID(ctx, lifecycle.EntityVisit, 999)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	status, err := store.StudyStatus(ctx, studyID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StudyActive, status)
}

func TestProtocolVersionStatuses(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewStore(db)

	studyID := uuid.New()
	for _, st := range []string{"ACTIVE", "SUPERSEDED"} {
		require.NoError(t, db.Create(&models.ProtocolVersion{
			ReadModel: models.ReadModel{AggregateUUID: models.UUIDRef(uuid.New()), Status: st},
			StudyUUID: models.UUIDRef(studyID),
		}).Error)
	}
	require.NoError(t, db.Create(&models.ProtocolVersion{
		ReadModel: models.ReadModel{AggregateUUID: models.UUIDRef(uuid.New()), Status: "DRAFT"},
		StudyUUID: models.UUIDRef(uuid.New()),
	}).Error)

	statuses, err := store.ProtocolVersionStatuses(ctx, studyID)
	require.NoError(t, err)
	assert.Equal(t, []lifecycle.Status{lifecycle.VersionActive, lifecycle.VersionSuperseded}, statuses)

	// the read store satisfies the precondition lookups
	var _ lifecycle.StatusLookup = store
}

func TestStatusHistory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewStore(db)

	patientID := uuid.New()
	require.NoError(t, db.Create(&models.StatusHistory{AggregateID: patientID.String(), Sequence: 3, FromStatus: "SCREENING", ToStatus: "ENROLLED"}).Error)
	require.NoError(t, db.Create(&models.StatusHistory{AggregateID: patientID.String(), Sequence: 2, FromStatus: "REGISTERED", ToStatus: "SCREENING"}).Error)

	history, err := store.StatusHistory(ctx, patientID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Sequence)

	ok, err := store.HasStatusTransition(ctx, patientID, lifecycle.PatientScreening, lifecycle.PatientEnrolled)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasStatusTransition(ctx, patientID, lifecycle.PatientEnrolled, lifecycle.PatientActive)
	require.NoError(t, err)
	assert.False(t, ok)
}
