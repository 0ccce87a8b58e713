// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/averia/identity/internal/platform/apperr"
	"github.com/averia/identity/internal/platform/constants"
	requestutil "github.com/averia/identity/internal/platform/request"
	"github.com/averia/identity/internal/platform/respond"
	"github.com/averia/identity/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages everything related to the account lifecycle entry
// points (Registration, Login, Session refresh, Recovery callbacks). It is
// strictly a transport layer: status codes, headers, cookies and JSON.
type Handler struct {
	authService *Service
	accessTTL   time.Duration
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service, accessTTL time.Duration) *Handler {
	return &Handler{authService: service, accessTTL: accessTTL}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /register                  : Creates a new account.
//   - POST /login                     : Authenticates and returns a token pair.
//   - POST /refresh                   : Rotates the session explicitly.
//   - POST /logout                    : Revokes the access token and drops the session.
//   - POST /verify-email              : Confirms email ownership with a numeric code.
//   - POST /resend-email-verification : Reissues the verification code.
//   - POST /forgot-password           : Issues a password reset code.
//   - POST /reset-password            : Completes the reset with code and new password.
//   - GET  /check-email-status        : Reports existence and confirmation state.
//   - GET  /check-email-availability  : Reports whether an email is free to register.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	router.Post("/verify-email", handler.verifyEmail)
	router.Post("/resend-email-verification", handler.resendVerification)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)
	router.Get("/check-email-status", handler.checkEmailStatus)
	router.Get("/check-email-availability", handler.checkEmailAvailability)

	return router
}

// # Request Payloads

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resendVerificationRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

/*
Register handles the creation of a new user account.

POST /api/v1/auth/register

Description: Validates input, checks for identity conflicts, and persists
a new disabled account pending email confirmation.

Request:
  - Body: registerRequest (Email, Password, DisplayName)

Response:
  - 201: User: Created user profile
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Email already exists
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
Login authenticates a user and establishes a session.

POST /api/v1/auth/login

Description: Verifies credentials behind the lockout guard, generates the
token pair, and injects a secure refresh token cookie into the response.

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: Session: Access token and User profile
  - 401: ErrUnauthorized: Invalid credentials or unconfirmed email
  - 423: ErrLocked: Account temporarily locked
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, session)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldUser:        session.User,
	})
}

/*
Refresh rotates the session explicitly.

POST /api/v1/auth/refresh

Description: Accepts the refresh token from the request body or, failing that,
the session cookie. Issues a fresh token pair and overwrites the cookie.

Request:
  - Body: refreshRequest (RefreshToken, optional when the cookie is set)

Response:
  - 200: RefreshResponse: New access token credentials
  - 401: ErrUnauthorized: Missing or invalid refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {

	// Body token takes precedence over the cookie side channel
	var input refreshRequest
	_ = requestutil.DecodeJSON(request, &input)

	refreshToken := input.RefreshToken
	if refreshToken == "" {
		refreshToken = requestutil.RefreshToken(request)
	}

	if refreshToken == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token"))
		return
	}

	session, err := handler.authService.Refresh(request.Context(), refreshToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, session)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int(handler.accessTTL / time.Second),
	})
}

/*
Logout terminates the current user session.

POST /api/v1/auth/logout

Description: Revokes the presented access token, drops the session record,
and clears the security cookie. Always succeeds, even for dead sessions,
so clients can log out unconditionally.

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {

	// The bearer token is revoked even when already expired; the refresh
	// cookie locates the session record to drop
	accessToken := requestutil.BearerToken(request)
	refreshToken := requestutil.RefreshToken(request)

	_ = handler.authService.Logout(request.Context(), accessToken, refreshToken)

	clearRefreshCookie(writer)

	respond.NoContent(writer)
}

/*
VerifyEmail confirms a user's email ownership.

POST /api/v1/auth/verify-email

Description: Validates the numeric verification code and enables the account.

Request:
  - Body: verifyEmailRequest (Email, Code)

Response:
  - 200: Success: Email verified
  - 401: ErrUnauthorized: Incorrect code
  - 404: ErrNotFound: Code expired or never issued
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input verifyEmailRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldCode, input.Code)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.VerifyEmail(request.Context(), input.Email, input.Code); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Email verified successfully",
	})
}

/*
ResendVerification reissues the email verification code.

POST /api/v1/auth/resend-email-verification

Description: Generates a fresh code for a registered but unconfirmed account,
restarting the code TTL.

Request:
  - Body: resendVerificationRequest (Email)

Response:
  - 200: Success: Code reissued
  - 404: ErrNotFound: No account for this email
  - 409: ErrConflict: Email already confirmed
*/
func (handler *Handler) resendVerification(writer http.ResponseWriter, request *http.Request) {
	var input resendVerificationRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if _, err := handler.authService.ResendVerification(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Verification code sent successfully",
	})
}

/*
CheckEmailStatus reports whether an account exists and is confirmed.

GET /api/v1/auth/check-email-status?email=...

Response:
  - 200: EmailStatus: Existence and confirmation flags
  - 400: ErrValidation: Missing or malformed email parameter
*/
func (handler *Handler) checkEmailStatus(writer http.ResponseWriter, request *http.Request) {
	email := request.URL.Query().Get(FieldEmail)

	v := &validate.Validator{}
	v.Required(FieldEmail, email).Email(FieldEmail, email)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	status, err := handler.authService.CheckEmailStatus(request.Context(), email)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, status)
}

/*
CheckEmailAvailability reports whether an email is free for registration.

GET /api/v1/auth/check-email-availability?email=...

Response:
  - 200: Availability: Email plus availability flag
  - 400: ErrValidation: Missing or malformed email parameter
*/
func (handler *Handler) checkEmailAvailability(writer http.ResponseWriter, request *http.Request) {
	email := request.URL.Query().Get(FieldEmail)

	v := &validate.Validator{}
	v.Required(FieldEmail, email).Email(FieldEmail, email)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	available, err := handler.authService.EmailAvailable(request.Context(), email)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldEmail:     email,
		FieldAvailable: available,
	})
}

/*
ForgotPassword initiates the password recovery flow.

POST /api/v1/auth/forgot-password

Description: Issues a reset code for the provided email if the account exists.

Request:
  - Body: forgotPasswordRequest (Email)

Response:
  - 200: Success: Generic security message regardless of account existence
  - 400: ErrInvalidJSON: Invalid email format
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if _, err := handler.authService.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "If this email is registered, a reset code has been sent.",
	})
}

/*
ResetPassword completes the password recovery flow.

POST /api/v1/auth/reset-password

Description: Validates the reset code and updates the user's password. All
existing sessions are dropped.

Request:
  - Body: resetPasswordRequest (Email, Code, Password)

Response:
  - 200: Success: Password updated
  - 400: ErrInvalidJSON: Bad code or weak password
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldCode, input.Code).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), input.Email, input.Code, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Password updated successfully",
	})
}

// # Cookie Helpers

// setRefreshCookie installs the rotated refresh token site-wide, so the
// authentication gate can attempt a silent refresh on any route.
func setRefreshCookie(writer http.ResponseWriter, session *LoginSession) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    session.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  session.RefreshTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearRefreshCookie expires the refresh token cookie on the client.
func clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
