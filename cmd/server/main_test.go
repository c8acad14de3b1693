package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/taskhub/internal/config"
	"github.com/iudanet/taskhub/internal/server/handlers"
)

func TestNewLimiters_RedisKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	checks := map[string]handlers.Pinger{}

	authLimiter, globalLimiter, closeFn, err := newLimiters(context.Background(), config.RateLimitConfig{
		RedisAddr: mr.Addr(),
		Auth:      2,
		Global:    5,
		Window:    time.Minute,
	}, logger, checks)
	require.NoError(t, err)
	t.Cleanup(closeFn)
	require.NotNil(t, globalLimiter)
	assert.Contains(t, checks, "redis")

	ctx := context.Background()
	_, err = authLimiter.Allow(ctx, "192.0.2.1")
	require.NoError(t, err)
	_, err = globalLimiter.Allow(ctx, "192.0.2.1")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"rl:auth:192.0.2.1", "rl:global:192.0.2.1"}, mr.Keys())
}

func TestNewLimiters_LocalWithoutGlobal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authLimiter, globalLimiter, closeFn, err := newLimiters(context.Background(), config.RateLimitConfig{
		Auth:   1,
		Window: time.Minute,
	}, logger, map[string]handlers.Pinger{})
	require.NoError(t, err)
	t.Cleanup(closeFn)

	assert.Nil(t, globalLimiter)
	ok, err := authLimiter.Allow(context.Background(), "192.0.2.1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = authLimiter.Allow(context.Background(), "192.0.2.1")
	require.NoError(t, err)
	assert.False(t, ok)
}
