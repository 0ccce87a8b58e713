// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingSessionStore simulates a Redis outage: every call errors.
type failingSessionStore struct{}

var errBackendDown = errors.New("connection refused")

func (store *failingSessionStore) Save(context.Context, string, string) error {
	return errBackendDown
}

func (store *failingSessionStore) Get(context.Context, string) (string, error) {
	return "", errBackendDown
}

func (store *failingSessionStore) Delete(context.Context, string) error {
	return errBackendDown
}

func newHealthyFailover() (*FailoverSessionStore, *MemorySessionStore, *MemorySessionStore) {
	primary := NewMemorySessionStore()
	fallback := NewMemorySessionStore()
	store := NewFailoverSessionStore(primary, fallback, time.Second, testLogger())
	return store, primary, fallback
}

func TestMemorySessionStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()

	_, err := store.Get(ctx, "alice@averia.app")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Save(ctx, "alice@averia.app", "token-1"))

	token, err := store.Get(ctx, "alice@averia.app")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	require.NoError(t, store.Delete(ctx, "alice@averia.app"))
	_, err = store.Get(ctx, "alice@averia.app")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFailoverSessionStore_HealthyPrimarySkipsFallback(t *testing.T) {
	ctx := context.Background()
	store, primary, fallback := newHealthyFailover()

	require.NoError(t, store.Save(ctx, "alice@averia.app", "token-1"))

	// The record lives in the primary only; the unevicted in-process table
	// must stay empty while the primary is healthy
	primaryToken, err := primary.Get(ctx, "alice@averia.app")
	require.NoError(t, err)
	assert.Equal(t, "token-1", primaryToken)

	_, err = fallback.Get(ctx, "alice@averia.app")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFailoverSessionStore_OutageWritesFallback(t *testing.T) {
	ctx := context.Background()
	fallback := NewMemorySessionStore()
	store := NewFailoverSessionStore(&failingSessionStore{}, fallback, time.Second, testLogger())

	require.NoError(t, store.Save(ctx, "alice@averia.app", "token-1"))

	token, err := fallback.Get(ctx, "alice@averia.app")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}

func TestFailoverSessionStore_PrimaryOutage(t *testing.T) {
	ctx := context.Background()
	fallback := NewMemorySessionStore()
	store := NewFailoverSessionStore(&failingSessionStore{}, fallback, time.Second, testLogger())

	// Save must not surface the primary outage
	require.NoError(t, store.Save(ctx, "alice@averia.app", "token-1"))

	// Reads serve from the fallback
	token, err := store.Get(ctx, "alice@averia.app")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	assert.True(t, store.IsValid(ctx, "alice@averia.app", "token-1"))

	// Delete stays silent and still clears the fallback
	require.NoError(t, store.Delete(ctx, "alice@averia.app"))
	_, err = store.Get(ctx, "alice@averia.app")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFailoverSessionStore_PrimaryMissChecksFallback(t *testing.T) {
	ctx := context.Background()
	store, _, fallback := newHealthyFailover()

	// Only the fallback holds the record, e.g. written during an outage
	require.NoError(t, fallback.Save(ctx, "alice@averia.app", "token-1"))

	token, err := store.Get(ctx, "alice@averia.app")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}

func TestFailoverSessionStore_MissEverywhere(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newHealthyFailover()

	_, err := store.Get(ctx, "nobody@averia.app")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFailoverSessionStore_RotationLastWriterWins(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newHealthyFailover()

	require.NoError(t, store.Save(ctx, "alice@averia.app", "token-old"))
	require.NoError(t, store.Save(ctx, "alice@averia.app", "token-new"))

	assert.False(t, store.IsValid(ctx, "alice@averia.app", "token-old"))
	assert.True(t, store.IsValid(ctx, "alice@averia.app", "token-new"))
}

func TestFailoverSessionStore_IsValidDeniesOnAbsence(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newHealthyFailover()

	assert.False(t, store.IsValid(ctx, "alice@averia.app", "token-1"))
	assert.False(t, store.IsValid(ctx, "alice@averia.app", ""))
}
