// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averia/identity/internal/platform/constants"
)

func newHandlerFixture(t *testing.T) (*serviceFixture, http.Handler) {
	t.Helper()

	fixture := newServiceFixture(t)
	handler := NewHandler(fixture.service, 15*time.Minute)
	return fixture, handler.Routes()
}

func refreshCookie(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == constants.RefreshTokenCookieName {
			return cookie
		}
	}
	t.Fatalf("no %s cookie in response", constants.RefreshTokenCookieName)
	return nil
}

// # Refresh Cookie Transport

func TestHandler_LoginCookieCoversAllPaths(t *testing.T) {
	fixture, router := newHandlerFixture(t)
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	body := strings.NewReader(`{"email":"alice@averia.app","password":"correct-horse"}`)
	request := httptest.NewRequest(http.MethodPost, "/login", body)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)

	// The cookie must be site-wide: a browser only presents it on matching
	// paths, and the silent refresh has to work on every route
	cookie := refreshCookie(t, recorder)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.NotEmpty(t, cookie.Value)
}

func TestHandler_LogoutClearsCookieSiteWide(t *testing.T) {
	_, router := newHandlerFixture(t)

	request := httptest.NewRequest(http.MethodPost, "/logout", nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	// The clearing cookie must match the path the login cookie was set on
	cookie := refreshCookie(t, recorder)
	assert.Equal(t, "/", cookie.Path)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

// # Email Introspection Endpoints

func TestHandler_CheckEmailStatus(t *testing.T) {
	fixture, router := newHandlerFixture(t)
	fixture.seedUser(t, "alice@averia.app", "correct-horse", false)

	request := httptest.NewRequest(http.MethodGet, "/check-email-status?email=Alice@Averia.App", nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)

	responseBody := recorder.Body.String()
	assert.Contains(t, responseBody, `"email":"alice@averia.app"`)
	assert.Contains(t, responseBody, `"user_exists":true`)
	assert.Contains(t, responseBody, `"email_confirmed":false`)
}

func TestHandler_CheckEmailAvailability(t *testing.T) {
	fixture, router := newHandlerFixture(t)
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	request := httptest.NewRequest(http.MethodGet, "/check-email-availability?email=alice@averia.app", nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"available":false`)

	request = httptest.NewRequest(http.MethodGet, "/check-email-availability?email=bob@averia.app", nil)
	recorder = httptest.NewRecorder()

	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"available":true`)
}

func TestHandler_CheckEmailStatus_MissingParam(t *testing.T) {
	_, router := newHandlerFixture(t)

	request := httptest.NewRequest(http.MethodGet, "/check-email-status", nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandler_ResendVerification(t *testing.T) {
	fixture, router := newHandlerFixture(t)
	fixture.seedUser(t, "alice@averia.app", "correct-horse", false)

	body := strings.NewReader(`{"email":"alice@averia.app"}`)
	request := httptest.NewRequest(http.MethodPost, "/resend-email-verification", body)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)

	// A fresh code is on record for the account
	code, err := fixture.verifyCodes.Get(request.Context(), "alice@averia.app")
	require.NoError(t, err)
	assert.Len(t, code, CodeDigits)
}

func TestHandler_ResendVerification_Confirmed(t *testing.T) {
	fixture, router := newHandlerFixture(t)
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	body := strings.NewReader(`{"email":"alice@averia.app"}`)
	request := httptest.NewRequest(http.MethodPost, "/resend-email-verification", body)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusConflict, recorder.Code)
}
