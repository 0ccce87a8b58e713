// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averia/identity/internal/platform/apperr"
	"github.com/averia/identity/internal/platform/sec"
)

// # Test Doubles

// stubCodec is a TokenCodec that produces unique, traceable tokens and
// honors the shared fake clock for expiry.
type stubCodec struct {
	mu     sync.Mutex
	seq    int
	issued map[string]stubGrant
	now    func() time.Time
}

type stubGrant struct {
	subject   string
	expiresAt time.Time
}

func newStubCodec(clock *fakeClock) *stubCodec {
	return &stubCodec{
		issued: make(map[string]stubGrant),
		now:    clock.Now,
	}
}

func (codec *stubCodec) Mint(subject string, lifetime time.Duration) (string, error) {
	codec.mu.Lock()
	defer codec.mu.Unlock()

	codec.seq++
	token := fmt.Sprintf("token-%d-%s", codec.seq, subject)
	codec.issued[token] = stubGrant{subject: subject, expiresAt: codec.now().Add(lifetime)}
	return token, nil
}

func (codec *stubCodec) Verify(token string) (string, error) {
	codec.mu.Lock()
	defer codec.mu.Unlock()

	grant, found := codec.issued[token]
	if !found {
		return "", sec.ErrTokenMalformed
	}
	if !grant.expiresAt.After(codec.now()) {
		return "", sec.ErrTokenExpired
	}
	return grant.subject, nil
}

// memoryUserRepo is an in-memory UserRepository.
type memoryUserRepo struct {
	mu      sync.Mutex
	byEmail map[string]*User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{byEmail: make(map[string]*User)}
}

func (repo *memoryUserRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	user, found := repo.byEmail[email]
	if !found {
		return nil, apperr.NotFound("Account")
	}
	clone := *user
	return &clone, nil
}

func (repo *memoryUserRepo) FindByID(_ context.Context, id string) (*User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, user := range repo.byEmail {
		if user.ID == id {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (repo *memoryUserRepo) Create(_ context.Context, user *User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, exists := repo.byEmail[user.Email]; exists {
		return apperr.Conflict("Account already exists")
	}
	clone := *user
	repo.byEmail[user.Email] = &clone
	return nil
}

func (repo *memoryUserRepo) UpdatePassword(_ context.Context, userID, newHash string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, user := range repo.byEmail {
		if user.ID == userID {
			user.PasswordHash = newHash
			return nil
		}
	}
	return apperr.NotFound("Account")
}

func (repo *memoryUserRepo) MarkEmailConfirmed(_ context.Context, userID string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, user := range repo.byEmail {
		if user.ID == userID {
			user.EmailConfirmed = true
			return nil
		}
	}
	return apperr.NotFound("Account")
}

// memoryCodeStore is an in-memory CodeStore; TTLs are not enforced.
type memoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]string
}

func newMemoryCodeStore() *memoryCodeStore {
	return &memoryCodeStore{codes: make(map[string]string)}
}

func (store *memoryCodeStore) Set(_ context.Context, email, code string, _ time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.codes[email] = code
	return nil
}

func (store *memoryCodeStore) Get(_ context.Context, email string) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	code, found := store.codes[email]
	if !found {
		return "", apperr.NotFound("Code")
	}
	return code, nil
}

func (store *memoryCodeStore) Delete(_ context.Context, email string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.codes, email)
	return nil
}

// # Fixture

type serviceFixture struct {
	service     *Service
	users       *memoryUserRepo
	sessions    *FailoverSessionStore
	verifyCodes *memoryCodeStore
	resetCodes  *memoryCodeStore
	codec       *stubCodec
	lockout     *LockoutGuard
	revoked     *RevocationRegistry
	clock       *fakeClock
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	clock := newFakeClock()
	codec := newStubCodec(clock)
	logger := testLogger()

	lockout := NewLockoutGuard(5, 15*time.Minute, logger)
	lockout.now = clock.Now

	revoked := NewRevocationRegistry(codec, logger)

	sessions := NewFailoverSessionStore(
		NewMemorySessionStore(), NewMemorySessionStore(), time.Second, logger,
	)

	users := newMemoryUserRepo()
	verifyCodes := newMemoryCodeStore()
	resetCodes := newMemoryCodeStore()

	service := NewService(
		users, sessions, verifyCodes, resetCodes, codec,
		lockout, revoked, 15*time.Minute, 168*time.Hour, logger,
	)
	service.now = clock.Now

	return &serviceFixture{
		service:     service,
		users:       users,
		sessions:    sessions,
		verifyCodes: verifyCodes,
		resetCodes:  resetCodes,
		codec:       codec,
		lockout:     lockout,
		revoked:     revoked,
		clock:       clock,
	}
}

func (fixture *serviceFixture) seedUser(t *testing.T, email, password string, confirmed bool) *User {
	t.Helper()

	hash, err := sec.HashPassword(password)
	require.NoError(t, err)

	user := &User{
		ID:             "018f0000-0000-7000-8000-" + fmt.Sprintf("%012d", len(fixture.users.byEmail)),
		Email:          email,
		PasswordHash:   hash,
		Role:           sec.RoleUser,
		EmailConfirmed: confirmed,
	}
	require.NoError(t, fixture.users.Create(context.Background(), user))
	return user
}

// # Registration

func TestService_Register(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	user, err := fixture.service.Register(ctx, RegisterInput{
		Email:    "Alice@Averia.App",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	// The account is stored under the canonical email and starts disabled
	assert.Equal(t, "alice@averia.app", user.Email)
	assert.False(t, user.EmailConfirmed)
	assert.Equal(t, sec.RoleUser, user.Role)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)

	// A verification code was issued
	code, err := fixture.verifyCodes.Get(ctx, "alice@averia.app")
	require.NoError(t, err)
	assert.Len(t, code, CodeDigits)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	// Duplicates are caught even under a different spelling
	_, err := fixture.service.Register(ctx, RegisterInput{
		Email:    "  ALICE@averia.app ",
		Password: "another-pass",
	})

	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "CONFLICT", ae.Code)
}

// # Login

func TestService_Login_Success(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	session, err := fixture.service.Login(ctx, LoginInput{
		Email:    "Alice@Averia.App",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.NotEqual(t, session.AccessToken, session.RefreshToken)

	// The session record matches the issued refresh token
	assert.True(t, fixture.sessions.IsValid(ctx, "alice@averia.app", session.RefreshToken))
}

func TestService_Login_WrongPassword(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	_, err := fixture.service.Login(ctx, LoginInput{
		Email:    "alice@averia.app",
		Password: "wrong",
	})

	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "UNAUTHORIZED", ae.Code)
}

func TestService_Login_UnknownAccountSameError(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	_, knownErr := fixture.service.Login(ctx, LoginInput{
		Email: "alice@averia.app", Password: "wrong",
	})
	_, unknownErr := fixture.service.Login(ctx, LoginInput{
		Email: "nobody@averia.app", Password: "wrong",
	})

	// Enumeration resistance: identical client-visible errors
	require.Error(t, knownErr)
	require.Error(t, unknownErr)
	assert.Equal(t, knownErr.Error(), unknownErr.Error())
}

func TestService_Login_UnconfirmedEmail(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", false)

	// Correct password, unconfirmed account
	for i := 0; i < 6; i++ {
		_, err := fixture.service.Login(ctx, LoginInput{
			Email: "alice@averia.app", Password: "correct-horse",
		})
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	}

	// Owner attempts never count toward the lockout
	assert.False(t, fixture.lockout.IsLocked("alice@averia.app"))
}

func TestService_Login_LockoutLifecycle(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	// Five failures lock the account
	for i := 0; i < 5; i++ {
		_, err := fixture.service.Login(ctx, LoginInput{
			Email: "alice@averia.app", Password: "wrong",
		})
		require.Error(t, err)
	}

	// The sixth attempt is refused with the lock error, correct password or not
	_, err := fixture.service.Login(ctx, LoginInput{
		Email: "alice@averia.app", Password: "correct-horse",
	})
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "ACCOUNT_LOCKED", ae.Code)
	assert.Equal(t, 423, ae.HTTPStatus)

	// After the window passes, the owner gets back in
	fixture.clock.Advance(15*time.Minute + time.Second)
	_, err = fixture.service.Login(ctx, LoginInput{
		Email: "alice@averia.app", Password: "correct-horse",
	})
	assert.NoError(t, err)
}

// # Session Rotation

func TestService_Refresh_RotatesSession(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	login, err := fixture.service.Login(ctx, LoginInput{
		Email: "alice@averia.app", Password: "correct-horse",
	})
	require.NoError(t, err)

	refreshed, err := fixture.service.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)

	// Rotation: the old refresh token is orphaned, the new one is on record
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.False(t, fixture.sessions.IsValid(ctx, "alice@averia.app", login.RefreshToken))
	assert.True(t, fixture.sessions.IsValid(ctx, "alice@averia.app", refreshed.RefreshToken))

	// The orphaned token is refused on reuse
	_, err = fixture.service.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

func TestService_Refresh_UnknownToken(t *testing.T) {
	fixture := newServiceFixture(t)

	_, err := fixture.service.Refresh(context.Background(), "never-issued")
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

func TestService_Refresh_AbsentSessionDenies(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	login, err := fixture.service.Login(ctx, LoginInput{
		Email: "alice@averia.app", Password: "correct-horse",
	})
	require.NoError(t, err)

	// Wipe the session record; the token itself is still cryptographically valid
	require.NoError(t, fixture.sessions.Delete(ctx, "alice@averia.app"))

	_, err = fixture.service.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

// # Logout

func TestService_Logout(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	login, err := fixture.service.Login(ctx, LoginInput{
		Email: "alice@averia.app", Password: "correct-horse",
	})
	require.NoError(t, err)

	require.NoError(t, fixture.service.Logout(ctx, login.AccessToken, login.RefreshToken))

	// The access token is revoked for its remaining lifetime
	assert.True(t, fixture.revoked.IsRevoked(login.AccessToken))

	// The session record is gone, so refresh is dead too
	_, err = fixture.service.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)
}

func TestService_Logout_Idempotent(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	// Logging out with nothing at all must succeed
	assert.NoError(t, fixture.service.Logout(ctx, "", ""))
	assert.NoError(t, fixture.service.Logout(ctx, "garbage", "garbage"))
	assert.False(t, fixture.revoked.IsRevoked(""))
}

// # Email Verification

func TestService_VerifyEmail(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	user, err := fixture.service.Register(ctx, RegisterInput{
		Email: "alice@averia.app", Password: "correct-horse",
	})
	require.NoError(t, err)
	require.False(t, user.EmailConfirmed)

	code, err := fixture.verifyCodes.Get(ctx, "alice@averia.app")
	require.NoError(t, err)

	// Wrong code is refused
	err = fixture.service.VerifyEmail(ctx, "alice@averia.app", "000000")
	if code != "000000" {
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	}

	// Correct code enables the account
	require.NoError(t, fixture.service.VerifyEmail(ctx, "alice@averia.app", code))
	confirmed, err := fixture.users.FindByEmail(ctx, "alice@averia.app")
	require.NoError(t, err)
	assert.True(t, confirmed.EmailConfirmed)

	// The code is single-use
	err = fixture.service.VerifyEmail(ctx, "alice@averia.app", code)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
}

func TestService_ResendVerification(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", false)

	code, err := fixture.service.ResendVerification(ctx, "Alice@Averia.App")
	require.NoError(t, err)
	assert.Len(t, code, CodeDigits)

	// The reissued code is the one on record
	stored, err := fixture.verifyCodes.Get(ctx, "alice@averia.app")
	require.NoError(t, err)
	assert.Equal(t, code, stored)
}

func TestService_ResendVerification_UnknownEmail(t *testing.T) {
	fixture := newServiceFixture(t)

	_, err := fixture.service.ResendVerification(context.Background(), "nobody@averia.app")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
}

func TestService_ResendVerification_AlreadyConfirmed(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	_, err := fixture.service.ResendVerification(context.Background(), "alice@averia.app")
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperr.As(err).Code)
}

// # Email Introspection

func TestService_CheckEmailStatus(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", false)

	status, err := fixture.service.CheckEmailStatus(ctx, "Alice@Averia.App")
	require.NoError(t, err)
	assert.Equal(t, "alice@averia.app", status.Email)
	assert.True(t, status.Exists)
	assert.False(t, status.Confirmed)

	// An unknown email is a valid answer, not an error
	unknown, err := fixture.service.CheckEmailStatus(ctx, "nobody@averia.app")
	require.NoError(t, err)
	assert.False(t, unknown.Exists)
	assert.False(t, unknown.Confirmed)
}

func TestService_EmailAvailable(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "correct-horse", true)

	// Taken even under a different spelling
	available, err := fixture.service.EmailAvailable(ctx, "  ALICE@averia.app ")
	require.NoError(t, err)
	assert.False(t, available)

	available, err = fixture.service.EmailAvailable(ctx, "bob@averia.app")
	require.NoError(t, err)
	assert.True(t, available)
}

// # Password Recovery

func TestService_PasswordResetFlow(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	fixture.seedUser(t, "alice@averia.app", "old-password", true)

	// Establish a session that the reset must kill
	login, err := fixture.service.Login(ctx, LoginInput{
		Email: "alice@averia.app", Password: "old-password",
	})
	require.NoError(t, err)

	code, err := fixture.service.RequestPasswordReset(ctx, "alice@averia.app")
	require.NoError(t, err)
	require.Len(t, code, CodeDigits)

	require.NoError(t, fixture.service.ResetPassword(ctx, "alice@averia.app", code, "new-password"))

	// The old session record is dropped
	assert.False(t, fixture.sessions.IsValid(ctx, "alice@averia.app", login.RefreshToken))

	// The old password is dead, the new one works
	_, err = fixture.service.Login(ctx, LoginInput{
		Email: "alice@averia.app", Password: "old-password",
	})
	require.Error(t, err)

	_, err = fixture.service.Login(ctx, LoginInput{
		Email: "alice@averia.app", Password: "new-password",
	})
	assert.NoError(t, err)
}

func TestService_RequestPasswordReset_UnknownEmailSilent(t *testing.T) {
	fixture := newServiceFixture(t)

	// Unknown accounts produce no code and no error
	code, err := fixture.service.RequestPasswordReset(context.Background(), "nobody@averia.app")
	assert.NoError(t, err)
	assert.Empty(t, code)
}
