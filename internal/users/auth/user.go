// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

/*
Package auth implements the user identity and session management layer.

It defines the core domain entity (User) and the logic for credential
verification, session continuity, lockout protection, and token revocation.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to user identity.
*/
package auth

import (
	"time"

	"github.com/averia/identity/internal/platform/sec"
)

// # Domain Entities

// User represents a registered member of the Averia platform.
type User struct {
	ID             string       `json:"id"`
	Email          string       `json:"email"`
	PasswordHash   string       `json:"-"` // Explicitly omitted from JSON for security.
	DisplayName    string       `json:"display_name"`
	Role           sec.UserRole `json:"role"`
	EmailConfirmed bool         `json:"email_confirmed"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Enabled reports whether the account may authenticate.
//
// Accounts remain disabled until their email address is confirmed.
func (user *User) Enabled() bool {
	return user.EmailConfirmed
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldDisplayName = "display_name"
	FieldCode        = "code"
	FieldNewPassword = "new_password"
	FieldAccessToken = "access_token"
	FieldTokenType   = "token_type"
	FieldExpiresIn   = "expires_in"
	FieldUser        = "user"
	FieldMessage     = "message"
	FieldAvailable   = "available"
)
