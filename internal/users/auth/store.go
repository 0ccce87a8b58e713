// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when no session record exists for a subject.
var ErrSessionNotFound = errors.New("session not found")

// # Token Contracts

// TokenCodec defines the contract for minting and verifying signed credentials.
type TokenCodec interface {

	/*
		Mint creates a signed token string for the given subject.

		Parameters:
		  - subject: string (Normalized account email)
		  - lifetime: time.Duration

		Returns:
		  - string: Compact signed token
		  - error: Signing failures
	*/
	Mint(subject string, lifetime time.Duration) (string, error)

	/*
		Verify checks the token signature and validity window.

		Parameters:
		  - tokenString: string

		Returns:
		  - string: Verified subject
		  - error: sec.ErrTokenExpired, sec.ErrTokenSignature or sec.ErrTokenMalformed
	*/
	Verify(tokenString string) (string, error)
}

// # User Data Access

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByEmail returns the account with the given normalized email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		Create persists a brand-new user account to the storage.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, user *User) error

	/*
		UpdatePassword replaces only the user's password hash.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - newHash: string

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, userID, newHash string) error

	/*
		MarkEmailConfirmed flips the account's email_confirmed flag to true.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	MarkEmailConfirmed(context context.Context, userID string) error
}

// # Session Data Access

// SessionStore defines the contract for per-subject refresh-token session records.
//
// Each subject holds at most one session record: the raw refresh token most
// recently issued to it. Saving overwrites any previous record.
type SessionStore interface {

	/*
		Save stores (or overwrites) the subject's current refresh token.

		Parameters:
		  - context: context.Context
		  - subject: string
		  - refreshToken: string

		Returns:
		  - error: Persistence failures
	*/
	Save(context context.Context, subject, refreshToken string) error

	/*
		Get retrieves the refresh token currently on record for the subject.

		Parameters:
		  - context: context.Context
		  - subject: string

		Returns:
		  - string: Raw refresh token
		  - error: ErrSessionNotFound or retrieval failures
	*/
	Get(context context.Context, subject string) (string, error)

	/*
		Delete removes the subject's session record.

		Parameters:
		  - context: context.Context
		  - subject: string

		Returns:
		  - error: Deletion failures
	*/
	Delete(context context.Context, subject string) error
}

// # Volatile Data Access

// CodeStore defines the contract for short-lived numeric codes keyed by email.
//
// It backs both email verification and password reset flows.
type CodeStore interface {

	/*
		Set stores a code for the given email with a limited duration.

		Parameters:
		  - context: context.Context
		  - email: string
		  - code: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Set(context context.Context, email, code string, ttl time.Duration) error

	/*
		Get retrieves the code currently stored for the email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - string: Stored code
		  - error: apperr.NotFound when absent or expired
	*/
	Get(context context.Context, email string) (string, error)

	/*
		Delete removes the code after successful use.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - error: Deletion failures
	*/
	Delete(context context.Context, email string) error
}
