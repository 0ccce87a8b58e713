// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/averia/identity/internal/platform/sec"
)

// # Gate States

// GateState classifies the outcome of evaluating a request's credentials.
type GateState int

const (
	// StateAnonymous means no access token was presented.
	StateAnonymous GateState = iota

	// StateAuthenticated means the presented access token verified cleanly.
	StateAuthenticated

	// StateRefreshed means the access token failed but a valid refresh token
	// silently produced a replacement.
	StateRefreshed

	// StateUnauthenticated means credentials were presented and rejected.
	StateUnauthenticated
)

// String returns the lowercase state name for logging.
func (state GateState) String() string {
	switch state {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshed:
		return "refreshed"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// GateDecision is the result of one credential evaluation.
//
// Subject and Role are populated only for the Authenticated and Refreshed
// states. NewAccessToken is populated only for Refreshed.
type GateDecision struct {
	State          GateState
	Subject        string
	Role           sec.UserRole
	NewAccessToken string
}

// # Contracts

// SessionValidator checks a presented refresh token against the session record.
type SessionValidator interface {
	IsValid(context context.Context, subject, refreshToken string) bool
}

// UserDirectory resolves a subject into its account for enablement checks.
type UserDirectory interface {
	FindByEmail(context context.Context, email string) (*User, error)
}

// # Authentication Gate

// Gate evaluates request credentials into a GateDecision.
//
// # Architecture
//
// The gate is a pure decision component: it never touches the HTTP layer.
// The middleware adapter translates its decisions into context claims,
// response headers, and status codes. Every rejection degrades to
// StateUnauthenticated rather than surfacing an error, so one malformed
// credential can never break an otherwise public request.
type Gate struct {
	codec     TokenCodec
	sessions  SessionValidator
	revoked   *RevocationRegistry
	directory UserDirectory
	accessTTL time.Duration
	logger    *slog.Logger
}

// NewGate constructs a [Gate] with its collaborators.
func NewGate(
	codec TokenCodec,
	sessions SessionValidator,
	revoked *RevocationRegistry,
	directory UserDirectory,
	accessTTL time.Duration,
	logger *slog.Logger,
) *Gate {
	return &Gate{
		codec:     codec,
		sessions:  sessions,
		revoked:   revoked,
		directory: directory,
		accessTTL: accessTTL,
		logger:    logger,
	}
}

/*
Evaluate classifies the presented credentials.

Description: The decision ladder is strict:

 1. No access token at all is Anonymous; nothing else is consulted.
 2. A revoked access token is Unauthenticated immediately. Revocation
    short-circuits before verification, so logout cannot be undone by a
    refresh token that is still live.
 3. A verifying access token whose account exists and is enabled is
    Authenticated.
 4. Any other access-token failure triggers one silent refresh attempt:
    the refresh token must verify, match the session record exactly, and
    belong to an enabled account. Success mints a replacement access token
    and yields Refreshed.
 5. Everything else is Unauthenticated.

Parameters:
  - context: context.Context
  - accessToken: string (Raw compact token, may be empty)
  - refreshToken: string (Raw compact token, may be empty)

Returns:
  - GateDecision: Never an error; failures are states
*/
func (gate *Gate) Evaluate(ctx context.Context, accessToken, refreshToken string) GateDecision {

	// 1. No credential presented
	if accessToken == "" {
		return GateDecision{State: StateAnonymous}
	}

	// 2. Revocation check runs before verification and blocks any refresh
	if gate.revoked.IsRevoked(accessToken) {
		gate.logger.Info("gate_revoked_token_rejected",
			slog.String("token", maskToken(accessToken)),
		)
		return GateDecision{State: StateUnauthenticated}
	}

	// 3. Primary path: the access token verifies on its own
	subject, err := gate.codec.Verify(accessToken)
	if err == nil {
		user, lookupErr := gate.directory.FindByEmail(ctx, subject)
		if lookupErr != nil || !user.Enabled() {
			gate.logger.Warn("gate_subject_rejected",
				slog.String("subject", subject),
			)
			return GateDecision{State: StateUnauthenticated}
		}

		return GateDecision{
			State:   StateAuthenticated,
			Subject: subject,
			Role:    user.Role,
		}
	}

	// A bad signature is an active tampering signal, not routine expiry
	if errors.Is(err, sec.ErrTokenSignature) {
		gate.logger.Warn("gate_token_signature_mismatch",
			slog.String("token", maskToken(accessToken)),
		)
	}

	// 4. Silent refresh attempt
	return gate.refresh(ctx, refreshToken)
}

// refresh attempts to mint a replacement access token from the refresh token.
// Every failure collapses to StateUnauthenticated.
func (gate *Gate) refresh(ctx context.Context, refreshToken string) GateDecision {
	if refreshToken == "" {
		return GateDecision{State: StateUnauthenticated}
	}

	// The refresh token must verify on its own
	subject, err := gate.codec.Verify(refreshToken)
	if err != nil {
		return GateDecision{State: StateUnauthenticated}
	}

	// And must match the session record exactly. A missing record denies:
	// continuity of a session we cannot confirm is not worth the risk.
	if !gate.sessions.IsValid(ctx, subject, refreshToken) {
		gate.logger.Info("gate_refresh_session_mismatch",
			slog.String("subject", subject),
		)
		return GateDecision{State: StateUnauthenticated}
	}

	// The account must still exist and be enabled
	user, err := gate.directory.FindByEmail(ctx, subject)
	if err != nil || !user.Enabled() {
		return GateDecision{State: StateUnauthenticated}
	}

	// Mint the replacement access token
	newAccessToken, err := gate.codec.Mint(subject, gate.accessTTL)
	if err != nil {
		gate.logger.Error("gate_refresh_mint_failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
		return GateDecision{State: StateUnauthenticated}
	}

	gate.logger.Info("gate_access_token_refreshed",
		slog.String("subject", subject),
	)

	return GateDecision{
		State:          StateRefreshed,
		Subject:        subject,
		Role:           user.Role,
		NewAccessToken: newAccessToken,
	}
}
