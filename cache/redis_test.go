package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/clinops/config"
	"example.com/backstage/services/clinops/lifecycle"
)

func TestLegacyIdentityRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	c := NewWithClient(client, time.Hour)

	id := uuid.MustParse("9f1c2d3e-4b5a-4c6d-8e7f-0a1b2c3d4e5f")
	key := GetLegacyIdentityKey(lifecycle.EntityStudy, 42)
	assert.Equal(t, "legacy:study:42", key)

	mock.ExpectSet(key, []byte(`"9f1c2d3e-4b5a-4c6d-8e7f-0a1b2c3d4e5f"`), time.Hour).SetVal("OK")
	require.NoError(t, c.SetLegacyIdentity(ctx, lifecycle.EntityStudy, 42, id))

	mock.ExpectGet(key).SetVal(`"9f1c2d3e-4b5a-4c6d-8e7f-0a1b2c3d4e5f"`)
	got, err := c.LegacyIdentity(ctx, lifecycle.EntityStudy, 42)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMissingKeyIsMiss(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	c := NewWithClient(client, time.Hour)

	id := uuid.New()
	mock.ExpectGet(GetAggregateExistsKey(id)).RedisNil()
	assert.False(t, c.AggregateExists(ctx, id))

	mock.ExpectGet(GetLegacyIdentityKey(lifecycle.EntityVisit, 7)).RedisNil()
	_, err := c.LegacyIdentity(ctx, lifecycle.EntityVisit, 7)
	assert.True(t, errors.Is(err, ErrMiss))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisFailureIsNotAMiss(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	c := NewWithClient(client, time.Hour)

	mock.ExpectGet(GetLegacyIdentityKey(lifecycle.EntityPatient, 1)).SetErr(errors.New("connection refused"))
	_, err := c.LegacyIdentity(ctx, lifecycle.EntityPatient, 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMiss))
}

func TestDisabledCache(t *testing.T) {
	c, err := NewRedisCache(config.RedisConfig{Enabled: false})
	require.NoError(t, err)

	assert.False(t, c.Enabled())
	assert.NoError(t, c.MarkAggregateExists(context.Background(), uuid.New()))
	assert.False(t, c.AggregateExists(context.Background(), uuid.New()))
	assert.NoError(t, c.Close())

	var nilCache *RedisCache
	assert.False(t, nilCache.Enabled())
}
