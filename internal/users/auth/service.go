// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/averia/identity/internal/platform/apperr"
	"github.com/averia/identity/internal/platform/sec"
	"github.com/averia/identity/pkg/identifier"
	"github.com/averia/identity/pkg/uuid"
)

// # Contracts & Types

// SessionManager combines session record storage with refresh-token validation.
//
// [FailoverSessionStore] is the production implementation.
type SessionManager interface {
	SessionStore
	SessionValidator
}

// Service implements user authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, lockout,
// or login logic must be reviewed by the security team.
type Service struct {
	users       UserRepository
	sessions    SessionManager
	verifyCodes CodeStore
	resetCodes  CodeStore
	codec       TokenCodec
	lockout     *LockoutGuard
	revoked     *RevocationRegistry
	accessTTL   time.Duration
	refreshTTL  time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	users UserRepository,
	sessions SessionManager,
	verifyCodes CodeStore,
	resetCodes CodeStore,
	codec TokenCodec,
	lockout *LockoutGuard,
	revoked *RevocationRegistry,
	accessTTL time.Duration,
	refreshTTL time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:       users,
		sessions:    sessions,
		verifyCodes: verifyCodes,
		resetCodes:  resetCodes,
		codec:       codec,
		lockout:     lockout,
		revoked:     revoked,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

/*
Register validates, hashes, and persists a brand new user account.

Description: The account starts disabled until its email is confirmed with the
verification code issued here.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *User: Created entity
  - error: Conflict (if identity exists), validation or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*User, error) {

	// Canonicalize the email so no duplicate account can hide behind casing
	email, err := identifier.Normalize(input.Email)
	if err != nil {
		return nil, apperr.ValidationError("Validation failed",
			apperr.FieldError{Field: FieldEmail, Message: "is not a valid address"},
		)
	}

	// Verify email uniqueness. Return a client-safe Conflict error.
	if _, err := service.users.FindByEmail(context, email); err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	// Prevent storing plain-text passwords. Default cost is used for balance
	// between security and CPU utilization during registration spikes.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	// Construct the new User entity. Time-sortable ID to prevent PG index fragmentation.
	user := &User{
		ID:             uuid.New(),
		Email:          email,
		PasswordHash:   hashedPassword,
		DisplayName:    input.DisplayName,
		Role:           sec.RoleUser,
		EmailConfirmed: false,
	}

	// Persist the user to the database
	if err := service.users.Create(context, user); err != nil {
		return nil, err
	}

	// Issue a verification code as an async-ready side effect
	code, err := sec.GenerateNumericCode(CodeDigits)
	if err == nil {
		_ = service.verifyCodes.Set(context, email, code, VerificationCodeTTL)
		// TODO: Deliver the code through the notification service once it ships
		service.logger.Info("verification_code_issued",
			slog.String("subject", email),
		)
	}

	return user, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email    string
	Password string
}

// LoginSession represents a successfully established user session.
type LoginSession struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	User                  *User
}

/*
Login validates user credentials and issues security tokens.

Description: Enforces the lockout guard before touching storage, performs
constant-time password comparison, and establishes the session record used
for later silent refreshes.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session identifiers
  - error: Locked, Unauthorized or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {

	// Lockout keys use the canonical form even for addresses that fail the
	// strict profile, so hostile spellings cannot dodge the counter
	email := identifier.MustNormalize(input.Email)

	// Locked accounts are refused before any credential work
	if service.lockout.IsLocked(email) {
		return nil, apperr.Locked(service.lockout.RemainingLockSeconds(email))
	}

	// Look up the account. Generic message to prevent enumeration.
	user, err := service.users.FindByEmail(context, email)
	if err != nil {
		service.lockout.RecordFailure(email)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Verify password hash using constant-time comparison in bcrypt to prevent timing attacks
	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		service.lockout.RecordFailure(email)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Correct password but unconfirmed email: refuse without counting a
	// failure, the caller is clearly the account owner
	if !user.Enabled() {
		return nil, apperr.Unauthorized("Email address is not confirmed")
	}

	// Clean slate after a successful authentication
	service.lockout.RecordSuccess(email)

	// Generate short-lived Access Token
	accessToken, err := service.codec.Mint(email, service.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_access_token_failed: %w", err)
	}

	// Generate long-lived Refresh Token
	refreshToken, err := service.codec.Mint(email, service.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	// Record the session; Save is failover-backed and does not fail on outage
	if err := service.sessions.Save(context, email, refreshToken); err != nil {
		return nil, fmt.Errorf("auth_service_session_save_failed: %w", err)
	}

	service.logger.Info("login_succeeded", slog.String("subject", email))

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: service.now().Add(service.refreshTTL),
		User:                  user,
	}, nil
}

/*
Logout revokes the access token and drops the session record.

Description: Idempotent by design; logging out an already-dead session is a
success. The access token lands in the revocation registry so it cannot be
replayed for the remainder of its lifetime.

Parameters:
  - context: context.Context
  - accessToken: string (May be empty)
  - refreshToken: string (May be empty)

Returns:
  - error: Always nil today; kept for interface stability
*/
func (service *Service) Logout(context context.Context, accessToken, refreshToken string) error {

	// Kill the access token for its remaining lifetime
	service.revoked.Revoke(accessToken)

	// Drop the session record so silent refresh stops working. The subject
	// comes from the refresh token itself; an unverifiable token has no
	// session we could locate anyway.
	if refreshToken != "" {
		if subject, err := service.codec.Verify(refreshToken); err == nil {
			_ = service.sessions.Delete(context, subject)
		}
	}

	return nil
}

// # Session Management

/*
Refresh implements the refresh token rotation mechanism.

Description: Verifies the presented refresh token against both its signature
and the session record, then rotates: a fresh token pair is issued and the
session record is overwritten so the old refresh token dies with it.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - *LoginSession: New session credentials
  - error: Unauthorized or storage failures
*/
func (service *Service) Refresh(context context.Context, refreshToken string) (*LoginSession, error) {

	// The token must carry a valid signature and be inside its window
	subject, err := service.codec.Verify(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	// And must match the session record exactly; absence denies
	if !service.sessions.IsValid(context, subject, refreshToken) {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	// The account must still exist and be enabled
	user, err := service.users.FindByEmail(context, subject)
	if err != nil || !user.Enabled() {
		return nil, apperr.Unauthorized("User not found or suspended")
	}

	// Generate a fresh Access Token
	accessToken, err := service.codec.Mint(subject, service.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_access_token_failed: %w", err)
	}

	// Generate a fresh Refresh Token for the rotation
	newRefreshToken, err := service.codec.Mint(subject, service.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	// Overwrite the record: last writer wins, the old token is now orphaned
	if err := service.sessions.Save(context, subject, newRefreshToken); err != nil {
		return nil, fmt.Errorf("auth_service_session_save_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          newRefreshToken,
		RefreshTokenExpiresAt: service.now().Add(service.refreshTTL),
		User:                  user,
	}, nil
}

// # Email Verification

/*
VerifyEmail confirms a user's email address using the issued numeric code.

Parameters:
  - context: context.Context
  - email: string
  - code: string

Returns:
  - error: NotFound (expired code), Unauthorized (wrong code) or database errors
*/
func (service *Service) VerifyEmail(context context.Context, email, code string) error {
	normalized := identifier.MustNormalize(email)

	// Retrieve the stored code; absence means it expired or never existed
	storedCode, err := service.verifyCodes.Get(context, normalized)
	if err != nil {
		return err
	}

	// Exact match required
	if storedCode != code {
		return apperr.Unauthorized("Invalid verification code")
	}

	// Resolve the account and flip the confirmation flag
	user, err := service.users.FindByEmail(context, normalized)
	if err != nil {
		return err
	}

	if err := service.users.MarkEmailConfirmed(context, user.ID); err != nil {
		return err
	}

	// Cleanup the used code
	_ = service.verifyCodes.Delete(context, normalized)

	service.logger.Info("email_confirmed", slog.String("subject", normalized))

	return nil
}

/*
ResendVerification reissues the email verification code for a pending account.

Description: Overwrites any outstanding code with a fresh one, restarting the
TTL. Confirmed accounts have nothing to verify and are refused.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - string: The reissued code
  - error: NotFound (unknown account), Conflict (already confirmed) or storage errors
*/
func (service *Service) ResendVerification(context context.Context, email string) (string, error) {
	normalized := identifier.MustNormalize(email)

	user, err := service.users.FindByEmail(context, normalized)
	if err != nil {
		return "", err
	}

	if user.Enabled() {
		return "", apperr.Conflict("Email is already confirmed")
	}

	code, err := sec.GenerateNumericCode(CodeDigits)
	if err != nil {
		return "", fmt.Errorf("auth_service_generate_verification_code_failed: %w", err)
	}

	if err := service.verifyCodes.Set(context, normalized, code, VerificationCodeTTL); err != nil {
		return "", fmt.Errorf("auth_service_save_verification_code_failed: %w", err)
	}

	// TODO: Deliver the code through the notification service once it ships
	service.logger.Info("verification_code_reissued", slog.String("subject", normalized))

	return code, nil
}

// # Email Introspection

// EmailStatus describes whether an account exists for an email and whether
// that email has been confirmed.
type EmailStatus struct {
	Email     string `json:"email"`
	Exists    bool   `json:"user_exists"`
	Confirmed bool   `json:"email_confirmed"`
}

/*
CheckEmailStatus reports the registration and confirmation state of an email.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *EmailStatus: Existence and confirmation flags for the canonical email
  - error: Storage errors only; an unknown email is a valid status, not an error
*/
func (service *Service) CheckEmailStatus(context context.Context, email string) (*EmailStatus, error) {
	normalized := identifier.MustNormalize(email)

	user, err := service.users.FindByEmail(context, normalized)
	if err != nil {
		// Absence is an answer here, not a failure
		if ae := apperr.As(err); ae != nil && ae.Code == "NOT_FOUND" {
			return &EmailStatus{Email: normalized}, nil
		}
		return nil, err
	}

	return &EmailStatus{
		Email:     normalized,
		Exists:    true,
		Confirmed: user.EmailConfirmed,
	}, nil
}

/*
EmailAvailable reports whether an email can still be used for registration.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - bool: true when no account holds the canonical email
  - error: Storage errors only
*/
func (service *Service) EmailAvailable(context context.Context, email string) (bool, error) {
	status, err := service.CheckEmailStatus(context, email)
	if err != nil {
		return false, err
	}
	return !status.Exists, nil
}

// # Password Recovery

/*
RequestPasswordReset initiates the forgot-password flow.

Description: Generates a numeric reset code and stores it with a short TTL.
NOTE: Unknown emails succeed silently to prevent user enumeration.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - string: Issued code (empty for unknown accounts)
  - error: Generation or storage errors
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) (string, error) {
	normalized := identifier.MustNormalize(email)

	// Unknown accounts are indistinguishable from known ones to the caller
	if _, err := service.users.FindByEmail(context, normalized); err != nil {
		return "", nil
	}

	// Generate the reset code
	code, err := sec.GenerateNumericCode(CodeDigits)
	if err != nil {
		return "", fmt.Errorf("auth_service_generate_reset_code_failed: %w", err)
	}

	// Save to Redis with its TTL
	if err := service.resetCodes.Set(context, normalized, code, ResetCodeTTL); err != nil {
		return "", fmt.Errorf("auth_service_save_reset_code_failed: %w", err)
	}

	// TODO: Deliver the code through the notification service once it ships
	service.logger.Info("reset_code_issued", slog.String("subject", normalized))

	return code, nil
}

/*
ResetPassword completes the forgot-password flow.

Description: Verifies the code, hashes the new password, updates the account,
and drops the session record so every device must log in again.

Parameters:
  - context: context.Context
  - email: string
  - code: string
  - newPassword: string

Returns:
  - error: Validation or update failures
*/
func (service *Service) ResetPassword(context context.Context, email, code, newPassword string) error {
	normalized := identifier.MustNormalize(email)

	// Retrieve the stored code
	storedCode, err := service.resetCodes.Get(context, normalized)
	if err != nil {
		return err
	}

	// Exact match required
	if storedCode != code {
		return apperr.Unauthorized("Invalid reset code")
	}

	// Resolve the account
	user, err := service.users.FindByEmail(context, normalized)
	if err != nil {
		return err
	}

	// Hash the new password securely
	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_password_hash_failed: %w", err)
	}

	// Update the user's password in persistent storage
	if err := service.users.UpdatePassword(context, user.ID, hashedPassword); err != nil {
		return err
	}

	// Security Cleanup: drop the session record and any stale lockout state
	_ = service.sessions.Delete(context, normalized)
	service.lockout.RecordSuccess(normalized)

	// Delete the used code
	_ = service.resetCodes.Delete(context, normalized)

	service.logger.Info("password_reset_completed", slog.String("subject", normalized))

	return nil
}
