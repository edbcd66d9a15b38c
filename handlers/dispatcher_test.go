package handlers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/clinops/domain"
	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/eventstore"
	"example.com/backstage/services/clinops/lifecycle"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Append(ctx context.Context, id uuid.UUID, expected int, events []domain.Event) (int, error) {
	args := m.Called(ctx, id, expected, events)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) ReadAll(ctx context.Context, id uuid.UUID) ([]domain.Event, error) {
	args := m.Called(ctx, id)
	events, _ := args.Get(0).([]domain.Event)
	return events, args.Error(1)
}

func (m *mockStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func registry(t *testing.T) *lifecycle.Registry {
	t.Helper()
	r, err := lifecycle.DefaultRegistry()
	require.NoError(t, err)
	return r
}

func createStudy(id uuid.UUID) domain.CreateStudyCommand {
	return domain.CreateStudyCommand{
		StudyID:   id,
		Name:      "Cardio-1",
		Sponsor:   "Acme",
		StudyType: "INTERVENTIONAL",
		Actor:     "tester",
	}
}

func TestValidationFailsBeforeAnyIO(t *testing.T) {
	store := &mockStore{}
	d := NewDispatcher(store, registry(t))

	_, err := d.Dispatch(context.Background(), domain.CreateStudyCommand{StudyID: uuid.New(), Actor: "tester"})

	var verr *errs.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "sponsor")
	store.AssertNotCalled(t, "ReadAll", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchAppendsOneEvent(t *testing.T) {
	store := eventstore.NewMemoryEventStore()
	var notified int32
	d := NewDispatcher(store, registry(t), WithNotifier(func() { atomic.AddInt32(&notified, 1) }))
	ctx := context.Background()
	id := uuid.New()

	outcome, err := d.Dispatch(ctx, createStudy(id))
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Sequence)
	require.Len(t, outcome.Events, 1)
	assert.Equal(t, domain.StudyCreated, outcome.Events[0].Type)
	assert.NotEmpty(t, outcome.Events[0].ID)

	outcome, err = d.Dispatch(ctx, domain.ChangeStudyStatusCommand{StudyID: id, NewStatus: lifecycle.StudyProtocolReview, Actor: "tester"})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Sequence)

	events, err := store.ReadAll(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Len(t, outcome.Events, 1)
	assert.Equal(t, events[1].Sequence, outcome.Events[0].Sequence)
	assert.Equal(t, events[1].ID, outcome.Events[0].ID)
	assert.Equal(t, events[1].Timestamp, outcome.Events[0].Timestamp)
	assert.Equal(t, int32(2), atomic.LoadInt32(&notified))
}

func TestNoOpAppendsNothing(t *testing.T) {
	store := eventstore.NewMemoryEventStore()
	var notified int32
	d := NewDispatcher(store, registry(t), WithNotifier(func() { atomic.AddInt32(&notified, 1) }))
	ctx := context.Background()
	id := uuid.New()

	_, err := d.Dispatch(ctx, createStudy(id))
	require.NoError(t, err)

	outcome, err := d.Dispatch(ctx, domain.UpdateStudyDetailsCommand{StudyID: id, Name: "Cardio-1", Sponsor: "Acme", Actor: "tester"})
	require.NoError(t, err)
	assert.True(t, outcome.NoOp)
	assert.Empty(t, outcome.Events)
	assert.Equal(t, 1, outcome.Sequence)
	assert.Equal(t, 1, store.Appends())
	assert.Equal(t, int32(1), atomic.LoadInt32(&notified))
}

func TestRejectedCommandLeavesStreamUntouched(t *testing.T) {
	store := eventstore.NewMemoryEventStore()
	d := NewDispatcher(store, registry(t))
	ctx := context.Background()
	id := uuid.New()

	_, err := d.Dispatch(ctx, createStudy(id))
	require.NoError(t, err)

	_, err = d.Dispatch(ctx, domain.ChangeStudyStatusCommand{StudyID: id, NewStatus: lifecycle.StudyCompleted, Actor: "tester"})
	assert.ErrorIs(t, err, errs.ErrIllegalTransition)

	_, err = d.Dispatch(ctx, createStudy(id))
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)

	_, err = d.Dispatch(ctx, domain.ChangeStudyStatusCommand{StudyID: uuid.New(), NewStatus: lifecycle.StudyProtocolReview, Actor: "tester"})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	events, err := store.ReadAll(ctx, id)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestConcurrentCreatesProduceOneStream(t *testing.T) {
	store := eventstore.NewMemoryEventStore()
	d := NewDispatcher(store, registry(t))
	id := uuid.New()

	const n = 20
	var (
		wg        sync.WaitGroup
		succeeded int32
		existed   int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Dispatch(context.Background(), createStudy(id))
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case errors.Is(err, errs.ErrAlreadyExists):
				atomic.AddInt32(&existed, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, int32(n-1), existed)
	assert.Equal(t, 1, store.Appends())
}

func TestDeadlineWhileWaitingIsTimeout(t *testing.T) {
	store := &mockStore{}
	release := make(chan struct{})
	defer close(release)

	store.On("ReadAll", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return([]domain.Event(nil), nil).
		Maybe()
	store.On("Append", mock.Anything, mock.Anything, 0, mock.Anything).Return(1, nil).Maybe()

	d := NewDispatcher(store, registry(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Dispatch(ctx, createStudy(uuid.New()))

	var timeout *errs.TimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
	assert.Contains(t, timeout.Operation, "CreateStudy")
}

func TestDispatchAsyncResolves(t *testing.T) {
	d := NewDispatcher(eventstore.NewMemoryEventStore(), registry(t))
	id := uuid.New()

	pending := d.DispatchAsync(context.Background(), createStudy(id))
	select {
	case <-pending.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatch did not complete")
	}

	outcome, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, outcome.AggregateID)
	assert.Equal(t, lifecycle.EntityStudy, outcome.EntityType)
}
