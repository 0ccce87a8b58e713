// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// # In-Process Session Store

// MemorySessionStore implements SessionStore with an in-process concurrent map.
//
// It serves as the degraded-mode fallback when Redis is unreachable. Records
// are not evicted by TTL; a restart clears them, and expired refresh tokens
// are rejected by signature verification regardless of what is stored here.
type MemorySessionStore struct {
	records sync.Map // subject -> raw refresh token
}

// NewMemorySessionStore creates an empty in-process SessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// Save stores the subject's refresh token, overwriting any previous record.
func (store *MemorySessionStore) Save(_ context.Context, subject, refreshToken string) error {
	store.records.Store(subject, refreshToken)
	return nil
}

// Get retrieves the refresh token on record for the subject.
func (store *MemorySessionStore) Get(_ context.Context, subject string) (string, error) {
	value, found := store.records.Load(subject)
	if !found {
		return "", ErrSessionNotFound
	}
	return value.(string), nil
}

// Delete removes the subject's session record.
func (store *MemorySessionStore) Delete(_ context.Context, subject string) error {
	store.records.Delete(subject)
	return nil
}

// # Failover Session Store

// FailoverSessionStore composes a primary (Redis) and fallback (in-process)
// SessionStore into one resilient store.
//
// # Degraded Mode
//
// Authentication must keep working through a Redis outage. Writes go to the
// primary; only when the primary errors does the record land in the fallback
// instead, so the unevicted in-process table grows only during outages. Reads
// consult the primary first and fall back on any primary error or miss.
// Primary failures are logged but never surface to the caller of Save or
// Delete.
type FailoverSessionStore struct {
	primary  SessionStore
	fallback SessionStore
	timeout  time.Duration
	logger   *slog.Logger
}

// NewFailoverSessionStore composes the primary and fallback stores.
func NewFailoverSessionStore(primary, fallback SessionStore, timeout time.Duration, logger *slog.Logger) *FailoverSessionStore {
	return &FailoverSessionStore{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		logger:   logger,
	}
}

/*
Save stores the subject's refresh token in the primary backend.

Description: The primary write runs under a bounded timeout. On primary error
the record is written to the fallback instead, and the outage is logged. Save
therefore never returns an error from backend outages, and the fallback table
only accumulates entries while the primary is down.

Parameters:
  - context: context.Context
  - subject: string
  - refreshToken: string

Returns:
  - error: Always nil in practice; kept for SessionStore conformance
*/
func (store *FailoverSessionStore) Save(ctx context.Context, subject, refreshToken string) error {

	// 1. Primary write under a bounded timeout
	primaryCtx, cancel := context.WithTimeout(ctx, store.timeout)
	defer cancel()

	err := store.primary.Save(primaryCtx, subject, refreshToken)
	if err == nil {
		return nil
	}

	store.logger.Warn("session_primary_save_failed",
		slog.String("subject", subject),
		slog.String("error", err.Error()),
	)

	// 2. Degraded mode: keep the record in process so this session survives
	_ = store.fallback.Save(ctx, subject, refreshToken)

	return nil
}

/*
Get retrieves the refresh token on record for the subject.

Description: Consults the primary first; on any primary error or miss, the
fallback is checked before giving up.

Parameters:
  - context: context.Context
  - subject: string

Returns:
  - string: Raw refresh token
  - error: ErrSessionNotFound when neither backend holds a record
*/
func (store *FailoverSessionStore) Get(ctx context.Context, subject string) (string, error) {

	// 1. Primary read under a bounded timeout
	primaryCtx, cancel := context.WithTimeout(ctx, store.timeout)
	defer cancel()

	token, err := store.primary.Get(primaryCtx, subject)
	if err == nil {
		return token, nil
	}

	// 2. Log real outages; a plain miss is normal and stays quiet
	if !errors.Is(err, ErrSessionNotFound) {
		store.logger.Warn("session_primary_get_failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
	}

	// 3. Fall back to the in-process store
	return store.fallback.Get(ctx, subject)
}

/*
Delete removes the subject's session record from both backends.

Description: Best-effort on each backend; a primary outage never blocks the
fallback cleanup.

Parameters:
  - context: context.Context
  - subject: string

Returns:
  - error: Always nil in practice; kept for SessionStore conformance
*/
func (store *FailoverSessionStore) Delete(ctx context.Context, subject string) error {

	// 1. Primary delete under a bounded timeout
	primaryCtx, cancel := context.WithTimeout(ctx, store.timeout)
	defer cancel()

	if err := store.primary.Delete(primaryCtx, subject); err != nil {
		store.logger.Warn("session_primary_delete_failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
	}

	// 2. Fallback delete is unconditional
	_ = store.fallback.Delete(ctx, subject)

	return nil
}

/*
IsValid reports whether the presented refresh token matches the record.

Description: A session is valid only when a record exists for the subject and
its stored token is byte-identical to the presented one. Absence of a record
always means invalid.

Parameters:
  - context: context.Context
  - subject: string
  - refreshToken: string

Returns:
  - bool: true when the presented token matches the stored record
*/
func (store *FailoverSessionStore) IsValid(ctx context.Context, subject, refreshToken string) bool {
	stored, err := store.Get(ctx, subject)
	if err != nil {
		return false
	}
	return stored == refreshToken
}
