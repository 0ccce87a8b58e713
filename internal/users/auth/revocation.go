// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/averia/identity/internal/platform/sec"
)

// # Revocation Registry

// RevocationRegistry tracks access tokens invalidated before their natural expiry.
//
// Logout is the producing side: the revoked token stays listed until it would
// have expired anyway, at which point signature verification rejects it and
// the registry entry is garbage. A periodic prune keeps the set from growing
// without bound. State is process-local, like the lockout guard.
type RevocationRegistry struct {
	codec  TokenCodec
	logger *slog.Logger
	tokens sync.Map // raw token string -> revocation time.Time
}

// NewRevocationRegistry constructs an empty registry.
//
// The codec is used during pruning to decide whether a listed token is
// already rejected on its own.
func NewRevocationRegistry(codec TokenCodec, logger *slog.Logger) *RevocationRegistry {
	return &RevocationRegistry{codec: codec, logger: logger}
}

/*
Revoke lists a raw token as invalidated.

Description: Empty tokens are ignored. Revoking the same token twice is a
harmless overwrite.

Parameters:
  - token: string (Raw compact token)
*/
func (registry *RevocationRegistry) Revoke(token string) {
	if token == "" {
		return
	}

	registry.tokens.Store(token, time.Now())
	registry.logger.Info("token_revoked",
		slog.String("token", maskToken(token)),
	)
}

/*
IsRevoked reports whether the exact raw token has been revoked.

Parameters:
  - token: string

Returns:
  - bool: true when the token is listed
*/
func (registry *RevocationRegistry) IsRevoked(token string) bool {
	_, found := registry.tokens.Load(token)
	return found
}

/*
PruneExpired drops listed tokens that verification now rejects on its own.

Description: A token that is expired, malformed, or signed with a rotated key
no longer needs an explicit revocation entry. Removal uses CompareAndDelete so
a concurrent re-revocation of the same token string is never lost.

Returns:
  - int: Number of entries removed
*/
func (registry *RevocationRegistry) PruneExpired() int {
	removed := 0

	registry.tokens.Range(func(key, value any) bool {
		token := key.(string)

		if _, err := registry.codec.Verify(token); err != nil {
			if registry.tokens.CompareAndDelete(key, value) {
				removed++
			}
			// Unexpected verdicts are worth a trace; expiry is the normal case
			if !errors.Is(err, sec.ErrTokenExpired) {
				registry.logger.Debug("revoked_token_pruned_invalid",
					slog.String("token", maskToken(token)),
					slog.String("error", err.Error()),
				)
			}
		}
		return true
	})

	return removed
}

/*
PruneLoop runs PruneExpired on a fixed interval until the context is cancelled.

Description: Intended to run as a background goroutine for the lifetime of the
process.

Parameters:
  - context: context.Context
  - interval: time.Duration
*/
func (registry *RevocationRegistry) PruneLoop(context context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := registry.PruneExpired(); removed > 0 {
				registry.logger.Debug("revocation_prune_completed",
					slog.Int("removed", removed),
				)
			}
		case <-context.Done():
			return
		}
	}
}

// maskToken keeps only the token edges so logs never carry a usable credential.
func maskToken(token string) string {
	if len(token) <= 10 {
		return "***"
	}
	return token[:6] + "..." + token[len(token)-4:]
}
