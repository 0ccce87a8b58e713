// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/averia/identity/internal/platform/apperr"
	"github.com/averia/identity/internal/platform/constants"
)

// # Session Store

// RedisSessionStore implements SessionStore using Redis as the primary backend.
//
// Records carry the refresh-token TTL so abandoned sessions expire on their own.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a new Redis-backed SessionStore.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

/*
Save stores the subject's refresh token, overwriting any previous record.

Parameters:
  - context: context.Context
  - subject: string
  - refreshToken: string

Returns:
  - error: Execution errors
*/
func (store *RedisSessionStore) Save(context context.Context, subject, refreshToken string) error {

	// Use constants for key prefix
	key := constants.RedisPrefixSession + subject

	// Set the token with the session TTL
	if err := store.client.Set(context, key, refreshToken, store.ttl).Err(); err != nil {
		return fmt.Errorf("redis_session_save_failed: %w", err)
	}

	// Return nil on success
	return nil
}

/*
Get retrieves the refresh token on record for the subject.

Description: Returns ErrSessionNotFound if the record is absent or expired.

Parameters:
  - context: context.Context
  - subject: string

Returns:
  - string: Raw refresh token
  - error: ErrSessionNotFound or connectivity errors
*/
func (store *RedisSessionStore) Get(context context.Context, subject string) (string, error) {

	// Use constants for key prefix
	key := constants.RedisPrefixSession + subject

	// Get the token from Redis
	token, err := store.client.Get(context, key).Result()

	// Handle errors
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("redis_session_get_failed: %w", err)
	}

	// Return the token
	return token, nil
}

/*
Delete removes the subject's session record.

Parameters:
  - context: context.Context
  - subject: string

Returns:
  - error: Deletion failures
*/
func (store *RedisSessionStore) Delete(context context.Context, subject string) error {

	// Use constants for key prefix
	key := constants.RedisPrefixSession + subject

	// Delete the record from Redis
	if err := store.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_session_delete_failed: %w", err)
	}

	// Return nil on success
	return nil
}

// # Code Store

// RedisCodeStore implements CodeStore using Redis.
//
// The same implementation backs both verification and reset codes; the key
// prefix keeps the two flows isolated.
type RedisCodeStore struct {
	client *redis.Client
	prefix string
}

// NewVerificationCodeStore creates a Redis-backed CodeStore for email verification codes.
func NewVerificationCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client, prefix: constants.RedisPrefixVerifyCode}
}

// NewResetCodeStore creates a Redis-backed CodeStore for password reset codes.
func NewResetCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client, prefix: constants.RedisPrefixResetCode}
}

/*
Set stores a code for the given email with its TTL.

Parameters:
  - context: context.Context
  - email: string
  - code: string
  - ttl: time.Duration

Returns:
  - error: Storage failures
*/
func (store *RedisCodeStore) Set(context context.Context, email, code string, ttl time.Duration) error {

	// Use the store's key prefix
	key := store.prefix + email

	// Set the code with TTL
	if err := store.client.Set(context, key, code, ttl).Err(); err != nil {
		return fmt.Errorf("redis_code_set_failed: %w", err)
	}

	// Return nil on success
	return nil
}

/*
Get retrieves the code stored for the email.

Description: Returns apperr.NotFound if the code is absent or expired.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - string: Stored code
  - error: apperr.NotFound or connectivity errors
*/
func (store *RedisCodeStore) Get(context context.Context, email string) (string, error) {

	// Use the store's key prefix
	key := store.prefix + email

	// Get the code from Redis
	code, err := store.client.Get(context, key).Result()

	// Handle errors
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.NotFound("Code is invalid or expired")
		}
		return "", fmt.Errorf("redis_code_get_failed: %w", err)
	}

	// Return the code
	return code, nil
}

/*
Delete removes the code after successful use.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: Execution failures
*/
func (store *RedisCodeStore) Delete(context context.Context, email string) error {

	// Use the store's key prefix
	key := store.prefix + email

	// Delete the code from Redis
	if err := store.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_code_delete_failed: %w", err)
	}

	// Return nil on success
	return nil
}
