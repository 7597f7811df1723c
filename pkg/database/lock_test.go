package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martforge/martforge/pkg/apperrors"
	"github.com/martforge/martforge/pkg/database"
	"github.com/martforge/martforge/pkg/testhelpers"
)

func TestAcquireRunLock_SingleWriter(t *testing.T) {
	warehouse := testhelpers.GetWarehouseDB(t)
	ctx := context.Background()
	const key = int64(990001)

	lock, err := database.AcquireRunLock(ctx, warehouse.DB, key)
	require.NoError(t, err)

	// A second run over the same key must refuse to start.
	_, err = database.AcquireRunLock(ctx, warehouse.DB, key)
	assert.ErrorIs(t, err, apperrors.ErrRunInProgress)

	require.NoError(t, lock.Release(ctx))

	// Released lock is acquirable again.
	lock, err = database.AcquireRunLock(ctx, warehouse.DB, key)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
}

func TestAcquireRunLock_DistinctKeysIndependent(t *testing.T) {
	warehouse := testhelpers.GetWarehouseDB(t)
	ctx := context.Background()

	a, err := database.AcquireRunLock(ctx, warehouse.DB, 990002)
	require.NoError(t, err)
	defer a.Release(ctx) //nolint:errcheck

	b, err := database.AcquireRunLock(ctx, warehouse.DB, 990003)
	require.NoError(t, err)
	require.NoError(t, b.Release(ctx))
}
