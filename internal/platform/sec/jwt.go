// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via small interfaces declared at the point of use.
package sec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures collapse into a small taxonomy. Callers log the
// distinction server-side but must never surface it to end users.
var (
	// ErrTokenMalformed indicates a structurally unparseable token.
	ErrTokenMalformed = errors.New("sec: malformed token")

	// ErrTokenSignature indicates tampering or a wrong signing secret.
	ErrTokenSignature = errors.New("sec: token signature mismatch")

	// ErrTokenExpired indicates a well-formed token past its expiry instant.
	ErrTokenExpired = errors.New("sec: token expired")
)

// minSecretBytes is the minimum decoded HMAC secret length (256 bits for HS256).
const minSecretBytes = 32

// AuthClaims represents the authenticated identity reconstructed from a
// verified access token plus the directory lookup.
//
// # Why so small?
//
// The token payload carries only the subject; role and enablement come from
// the user directory at evaluation time, so a role change takes effect on the
// next request rather than at the next token rotation.
type AuthClaims struct {
	// Subject is the account identifier embedded in the token.
	Subject string

	// Role is the authorization role resolved from the user directory.
	Role UserRole
}

// TokenCodec handles stateless generation and verification of compact signed
// credentials using HS256.
//
// Access and refresh tokens share the same encoding and are distinguished
// only by the lifetime a caller mints them with; the kind is not embedded in
// the payload.
type TokenCodec struct {
	secret []byte
	issuer string

	// now is the clock used for minting and expiry checks.
	now func() time.Time
}

// NewTokenCodec validates the base64-encoded signing secret and returns a
// ready codec.
//
// Misconfiguration (undecodable or short secret) is fatal here, at startup —
// Mint and Verify never fail on configuration afterwards.
func NewTokenCodec(base64Secret, issuer string) (*TokenCodec, error) {
	secret, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("sec: signing secret is not valid base64: %w", err)
	}

	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("sec: signing secret must be at least %d bytes after decoding, got %d", minSecretBytes, len(secret))
	}

	return &TokenCodec{
		secret: secret,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// Mint creates a signed credential for the subject, valid for the given
// lifetime. The structure is deterministic: subject, issuer, issued-at and
// expiry, nothing else.
func (codec *TokenCodec) Mint(subject string, lifetime time.Duration) (string, error) {
	currentTime := codec.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    codec.issuer,
		IssuedAt:  jwt.NewNumericDate(currentTime),
		ExpiresAt: jwt.NewNumericDate(currentTime.Add(lifetime)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(codec.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// Verify checks the signature and validity window of a credential and returns
// its subject.
//
// # Expiry Policy
//
// A credential is valid strictly before its expiry instant and rejected at
// and after that exact instant.
//
// Failures map onto [ErrTokenMalformed], [ErrTokenSignature], or
// [ErrTokenExpired]; callers must not leak the distinction to clients.
func (codec *TokenCodec) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, codec.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(codec.now),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrTokenSignature
		default:
			return "", ErrTokenMalformed
		}
	}

	if !token.Valid {
		return "", ErrTokenMalformed
	}

	// Enforce the exact-instant policy regardless of library leeway: a token
	// whose expiry is not strictly in the future is expired.
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.After(codec.now()) {
		return "", ErrTokenExpired
	}

	return claims.Subject, nil
}

// keyFunc returns the shared HMAC secret for signature verification.
func (codec *TokenCodec) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
	}
	return codec.secret, nil
}
