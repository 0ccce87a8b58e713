// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import (
	"log/slog"
	"sync"
	"time"
)

// # Lockout Guard

// LockoutGuard throttles brute-force login attempts per account key.
//
// State lives in process memory only: counters reset on restart, and each
// instance tracks attempts independently. Counting failures per key (the
// normalized email), not per IP, protects accounts from distributed guessing.
type LockoutGuard struct {
	maxAttempts  int
	lockDuration time.Duration
	logger       *slog.Logger
	entries      sync.Map // key -> *lockoutEntry
	now          func() time.Time
}

type lockoutEntry struct {
	mu          sync.Mutex
	failures    int
	lockedUntil time.Time
}

// NewLockoutGuard constructs a guard locking keys after maxAttempts failures
// for lockDuration.
func NewLockoutGuard(maxAttempts int, lockDuration time.Duration, logger *slog.Logger) *LockoutGuard {
	return &LockoutGuard{
		maxAttempts:  maxAttempts,
		lockDuration: lockDuration,
		logger:       logger,
		now:          time.Now,
	}
}

/*
RecordFailure counts a failed attempt and locks the key when the threshold is hit.

Description: The failure that reaches maxAttempts starts the lock window.
Failures recorded while already locked extend nothing; the window is fixed
from the moment it starts.

Parameters:
  - key: string (Normalized account email)
*/
func (guard *LockoutGuard) RecordFailure(key string) {

	// Resolve or create the entry for this key
	value, _ := guard.entries.LoadOrStore(key, &lockoutEntry{})
	entry := value.(*lockoutEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// An expired lock means a fresh counting window
	if !entry.lockedUntil.IsZero() && guard.now().After(entry.lockedUntil) {
		entry.failures = 0
		entry.lockedUntil = time.Time{}
	}

	entry.failures++

	// Threshold reached: start the lock window
	if entry.failures >= guard.maxAttempts && entry.lockedUntil.IsZero() {
		entry.lockedUntil = guard.now().Add(guard.lockDuration)
		guard.logger.Warn("account_locked",
			slog.String("key", key),
			slog.Int("failures", entry.failures),
			slog.Time("locked_until", entry.lockedUntil),
		)
	}
}

/*
RecordSuccess clears all lockout state for the key.

Description: A successful authentication wipes the failure counter and any
active lock, returning the key to a clean slate.

Parameters:
  - key: string
*/
func (guard *LockoutGuard) RecordSuccess(key string) {
	guard.entries.Delete(key)
}

/*
IsLocked reports whether the key is currently locked out.

Description: The lock holds up to and including its exact expiry instant.
Expiry is lazy: the first check past the window clears the stale state, so
no background sweeper is needed.

Parameters:
  - key: string

Returns:
  - bool: true while the lock window is active
*/
func (guard *LockoutGuard) IsLocked(key string) bool {
	value, found := guard.entries.Load(key)
	if !found {
		return false
	}
	entry := value.(*lockoutEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Never locked
	if entry.lockedUntil.IsZero() {
		return false
	}

	// Lazy expiry: clear stale state on first check past the window
	if guard.now().After(entry.lockedUntil) {
		entry.failures = 0
		entry.lockedUntil = time.Time{}
		return false
	}

	return true
}

/*
RemainingLockSeconds returns the whole seconds left in the key's lock window.

Parameters:
  - key: string

Returns:
  - int: Seconds remaining, clamped to zero when not locked
*/
func (guard *LockoutGuard) RemainingLockSeconds(key string) int {
	value, found := guard.entries.Load(key)
	if !found {
		return 0
	}
	entry := value.(*lockoutEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.lockedUntil.IsZero() {
		return 0
	}

	remaining := int(entry.lockedUntil.Sub(guard.now()).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}
