// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

/*
Package identifier normalizes account identifiers into their canonical form.

Every email address is normalized once at the edge and the canonical form is
used everywhere after: storage keys, token subjects, lockout keys, session
records. Two spellings of the same address must never produce two accounts
or two lockout counters.
*/
package identifier

import (
	"strings"

	"golang.org/x/text/secure/precis"
)

// # Normalization

// Normalize returns the canonical form of an account email address.
//
// Surrounding whitespace is trimmed, then the PRECIS UsernameCaseMapped
// profile applies Unicode-aware case folding and width mapping. Addresses the
// profile rejects (bidi violations, disallowed code points) are reported as
// an error rather than silently passed through.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	return precis.UsernameCaseMapped.String(trimmed)
}

// MustNormalize normalizes with an ASCII-lowercase fallback.
//
// Used where a lookup key is needed and a normalization failure must not
// abort the operation, e.g. recording a lockout failure for a hostile input.
func MustNormalize(raw string) string {
	normalized, err := Normalize(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return normalized
}
