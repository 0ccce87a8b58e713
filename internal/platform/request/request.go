// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

/*
Package request provides utilities for extracting data from HTTP requests.

It abstracts body decoding and credential extraction patterns, ensuring
consistent error handling and type safety.
*/
package requestutil

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/averia/identity/internal/platform/apperr"
	"github.com/averia/identity/internal/platform/constants"
	"github.com/averia/identity/internal/platform/ctxutil"
	"github.com/averia/identity/internal/platform/sec"
	"github.com/averia/identity/internal/platform/validate"
)

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - request: *http.Request
  - target: interface{} (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target interface{}) error {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
BearerToken extracts the raw access token from the Authorization header.

Description: Returns the header value with the "Bearer " prefix stripped.
A header without the prefix is returned as-is and left for the credential
codec to reject; an absent header yields an empty string.
*/
func BearerToken(request *http.Request) string {
	header := request.Header.Get(constants.HeaderAuthorization)
	if header == "" {
		return ""
	}

	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}

	return header
}

/*
RefreshToken extracts the refresh token from its cookie side channel.

Returns an empty string when the cookie is absent.
*/
func RefreshToken(request *http.Request) string {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}

/*
Claims extracts the authenticated user claims from the request context.

Returns nil if the request is not authenticated.
*/
func Claims(request *http.Request) *sec.AuthClaims {
	return ctxutil.GetAuthUser(request.Context())
}

/*
RequiredClaims ensures the request is authenticated and returns the user claims.

Returns:
  - *sec.AuthClaims: The authenticated user claims
  - error: apperr.Unauthorized if the request is not authenticated
*/
func RequiredClaims(request *http.Request) (*sec.AuthClaims, error) {

	// Get user claims
	claims := ctxutil.GetAuthUser(request.Context())

	// If the user is not authenticated, return an error
	if claims == nil {
		return nil, apperr.Unauthorized("Authentication required")
	}

	return claims, nil
}

/*
RequiredSubject returns the subject of the currently authenticated user.

Returns:
  - string: Account subject (normalized email)
  - error: apperr.Unauthorized if not authenticated
*/
func RequiredSubject(request *http.Request) (string, error) {

	// Get user claims
	claims, err := RequiredClaims(request)

	// If the user is not authenticated, return an error
	if err != nil {
		return "", err
	}

	return claims.Subject, nil
}
