// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package middleware

import (
	"context"
	"net/http"

	"github.com/averia/identity/internal/platform/constants"
	"github.com/averia/identity/internal/platform/ctxutil"
	requestutil "github.com/averia/identity/internal/platform/request"
	"github.com/averia/identity/internal/platform/sec"
	"github.com/averia/identity/internal/users/auth"
)

// # Authentication

// AuthnGate evaluates request credentials into a gate decision.
//
// [auth.Gate] is the production implementation.
type AuthnGate interface {
	Evaluate(context context.Context, accessToken, refreshToken string) auth.GateDecision
}

// Authenticate evaluates every request's credentials through the gate.
//
// # Behavior
//
//   - Authenticated: user claims are injected into the request context.
//   - Refreshed: claims are injected AND the replacement access token is
//     emitted on the X-New-Access-Token response header for the client to
//     adopt transparently.
//   - Anonymous / Unauthenticated: the request proceeds without claims.
//     Rejection is the business of [RequireAuth], not this middleware, so
//     public endpoints stay reachable with a broken token.
func Authenticate(gate AuthnGate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// 1. Collect both credential channels
			accessToken := requestutil.BearerToken(request)
			refreshToken := requestutil.RefreshToken(request)

			// 2. Let the gate decide
			decision := gate.Evaluate(request.Context(), accessToken, refreshToken)

			// 3. Apply the decision to the request
			switch decision.State {
			case auth.StateAuthenticated:
				request = withClaims(request, decision)

			case auth.StateRefreshed:
				// The header must be set before any handler writes the body
				writer.Header().Set(constants.HeaderNewAccessToken, decision.NewAccessToken)
				request = withClaims(request, decision)
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// withClaims injects the decision's identity into the request context.
func withClaims(request *http.Request, decision auth.GateDecision) *http.Request {
	claims := &sec.AuthClaims{
		Subject: decision.Subject,
		Role:    decision.Role,
	}
	ctx := ctxutil.WithAuthUser(request.Context(), claims)
	return request.WithContext(ctx)
}

// # Authorization

// RequireAuth rejects requests that carry no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.GetAuthUser(request.Context()) == nil {
			writeError(writer, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole rejects authenticated requests below the given role level.
func RequireRole(role sec.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := ctxutil.GetAuthUser(request.Context())
			if claims == nil {
				writeError(writer, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			if !claims.Role.AtLeast(role) {
				writeError(writer, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
