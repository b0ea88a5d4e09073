package rpc

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func enabledConfig() RateLimitConfig {
	cfg := DefaultRateLimitConfig()
	cfg.Enabled = true
	cfg.GlobalRPS = 0
	cfg.PerClientRPS = 0.001
	cfg.Burst = 2
	return cfg
}

func TestRateLimiter_Disabled(t *testing.T) {
	var nilLimiter *RateLimiter
	require.NoError(t, nilLimiter.Allow("a", MethodStatus))
	require.Zero(t, nilLimiter.Clients())

	rl := NewRateLimiter(DefaultRateLimitConfig())
	for range 1000 {
		require.NoError(t, rl.Allow("a", MethodStatus))
	}
	require.Zero(t, rl.Clients())
}

func TestRateLimiter_PerClientBurst(t *testing.T) {
	rl := NewRateLimiter(enabledConfig())

	require.NoError(t, rl.Allow("a", MethodStatus))
	require.NoError(t, rl.Allow("a", MethodABCIQuery))
	err := rl.Allow("a", MethodStatus)
	require.ErrorIs(t, err, ErrRateLimited)
	require.Contains(t, err.Error(), "rate limit exceeded for a")

	// Other clients have their own bucket.
	require.NoError(t, rl.Allow("b", MethodStatus))
	require.Equal(t, 2, rl.Clients())
}

func TestRateLimiter_ExemptMethods(t *testing.T) {
	rl := NewRateLimiter(enabledConfig())

	for range 10 {
		require.NoError(t, rl.Allow("a", MethodHealth))
	}
	require.Zero(t, rl.Clients())
}

func TestRateLimiter_Global(t *testing.T) {
	cfg := enabledConfig()
	cfg.GlobalRPS = 0.001
	cfg.PerClientRPS = 0
	cfg.Burst = 1
	rl := NewRateLimiter(cfg)

	// The global burst is ten times the per-client burst.
	for i := range 10 {
		require.NoError(t, rl.Allow(fmt.Sprintf("client-%d", i), MethodStatus))
	}
	err := rl.Allow("client-x", MethodStatus)
	require.ErrorIs(t, err, ErrRateLimited)
	require.Contains(t, err.Error(), "global")
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	cfg := enabledConfig()
	cfg.PerClientRPS = 0
	cfg.IdleTTL = time.Nanosecond
	rl := NewRateLimiter(cfg)

	for i := range sweepEvery - 1 {
		require.NoError(t, rl.Allow(fmt.Sprintf("client-%d", i), MethodStatus))
	}
	require.Equal(t, sweepEvery-1, rl.Clients())

	time.Sleep(time.Millisecond)
	require.NoError(t, rl.Allow("last", MethodStatus))
	require.LessOrEqual(t, rl.Clients(), 1)
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"", "unknown"},
		{"  ", "unknown"},
		{"10.0.0.1:5000", "10.0.0.1"},
		{"[::1]:26657", "::1"},
		{"10.0.0.1", "10.0.0.1"},
		{"bufconn", "bufconn"},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			require.Equal(t, tt.want, ClientKey(tt.remote))
		})
	}
}
