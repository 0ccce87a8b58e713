// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

// Package redis manages the Redis client lifecycle.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// NewClient creates a Redis client from a URL and verifies connectivity.
//
// The URL follows the standard scheme, e.g. redis://:password@host:6379/0.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {

	// 1. Parse the URL into client options
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	client := redis.NewClient(options)

	// 2. Verify the server is reachable
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return client, nil
}
