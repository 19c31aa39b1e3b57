// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arobito/arobito/internal/errutil"
)

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz")
	errutil.AssertErrorCode(t, err, "DATABASE_CONFIG_INVALID")
}

func TestConnect_UnreachableGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := Connect(ctx, "postgres://arobito@127.0.0.1:1/arobito?connect_timeout=1",
		WithRetries(1),
		WithBackoff(time.Millisecond, time.Millisecond),
	)
	errutil.AssertErrorCode(t, err, "DATABASE_CONNECT_FAILED")
	errutil.AssertErrorContext(t, err, "attempts", 2)
}

func TestConnect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := Connect(ctx, "postgres://arobito@127.0.0.1:1/arobito",
		WithBackoff(time.Second, time.Second),
	)
	errutil.AssertErrorCode(t, err, "DATABASE_CONNECT_FAILED")
	assert.Less(t, time.Since(start), 5*time.Second)
}
