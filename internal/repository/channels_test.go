package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/telememo/internal/models"
)

func TestChannelsRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ch, err := s.Channels.Upsert(ctx, &models.Channel{ID: 10, AccessHash: 99, Title: "Old", Username: "@news", MemberCount: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, "news", ch.Username)
	assert.Nil(t, ch.LastSyncedMessageID)
	assert.False(t, ch.CreatedAt.IsZero())

	require.NoError(t, s.Channels.SetCheckpoint(ctx, 10, 40))

	// metadata refresh leaves the checkpoint alone, even when the caller passes one
	ch, err = s.Channels.Upsert(ctx, &models.Channel{ID: 10, AccessHash: 99, Title: "New", Username: "news", Description: "desc", LastSyncedMessageID: ptr(int64(1))})
	require.NoError(t, err)
	assert.Equal(t, "New", ch.Title)
	assert.Equal(t, "desc", ch.Description)
	require.NotNil(t, ch.LastSyncedMessageID)
	assert.Equal(t, int64(40), *ch.LastSyncedMessageID)

	all, err := s.Channels.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestChannelsRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Channels.GetByID(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Channels.GetByUsername(ctx, "@missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChannelsRepository_GetByUsername(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedChannel(t, s, 1, "GoNews")

	ch, err := s.Channels.GetByUsername(ctx, "@gonews")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ch.ID)
}

func TestChannelsRepository_SetCheckpoint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedChannel(t, s, 1, "c")

	require.NoError(t, s.Channels.SetCheckpoint(ctx, 1, 10))
	require.NoError(t, s.Channels.SetCheckpoint(ctx, 1, 10), "same value is accepted")

	err := s.Channels.SetCheckpoint(ctx, 1, 5)
	require.ErrorIs(t, err, ErrCheckpointRegression)

	var regression *CheckpointRegressionError
	require.True(t, errors.As(err, &regression))
	assert.Equal(t, int64(10), regression.Stored)
	assert.Equal(t, int64(5), regression.Requested)

	ch, err := s.Channels.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), *ch.LastSyncedMessageID)
	assert.NotNil(t, ch.LastSyncedAt)
}

func TestChannelsRepository_SetCheckpoint_UnknownChannel(t *testing.T) {
	s := newTestStore(t)
	err := s.Channels.SetCheckpoint(context.Background(), 77, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChannelsRepository_Lease(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedChannel(t, s, 1, "news")
	later := time.Now().Add(time.Hour)

	require.NoError(t, s.Channels.AcquireLease(ctx, 1, "a", later))
	require.NoError(t, s.Channels.AcquireLease(ctx, 1, "a", later.Add(time.Hour)), "owner renews")

	err := s.Channels.AcquireLease(ctx, 1, "b", later)
	assert.ErrorIs(t, err, ErrLeaseHeld)
	assert.Contains(t, err.Error(), "held by a")

	// metadata refresh keeps the lease
	_, err = s.Channels.Upsert(ctx, &models.Channel{ID: 1, Title: "renamed", Username: "news"})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Channels.AcquireLease(ctx, 1, "b", later), ErrLeaseHeld)

	require.NoError(t, s.Channels.ReleaseLease(ctx, 1, "b"), "foreign release is a no-op")
	assert.ErrorIs(t, s.Channels.AcquireLease(ctx, 1, "b", later), ErrLeaseHeld)

	require.NoError(t, s.Channels.ReleaseLease(ctx, 1, "a"))
	require.NoError(t, s.Channels.AcquireLease(ctx, 1, "b", later))
}

func TestChannelsRepository_Lease_Expired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedChannel(t, s, 1, "news")

	require.NoError(t, s.Channels.AcquireLease(ctx, 1, "a", time.Now().Add(-time.Second)))
	require.NoError(t, s.Channels.AcquireLease(ctx, 1, "b", time.Now().Add(time.Hour)))

	ch, err := s.Channels.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", ch.RunOwner)
}

func TestChannelsRepository_Lease_UnknownChannel(t *testing.T) {
	s := newTestStore(t)
	err := s.Channels.AcquireLease(context.Background(), 42, "a", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk full")
	err := storageErr("upsert messages", cause)

	assert.ErrorIs(t, err, ErrStorageIO)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, storageErr("noop", nil))

	// our own errors pass through untouched
	assert.Equal(t, ErrNotFound, storageErr("x", ErrNotFound))
}

func TestStorageError_ClosedDB(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = s.Channels.List(context.Background())
	assert.ErrorIs(t, err, ErrStorageIO)
}
