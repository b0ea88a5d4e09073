package rpc

import (
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig contains rate limiting configuration shared by every
// transport.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool

	// GlobalRPS is the overall requests per second for all clients.
	GlobalRPS float64

	// PerClientRPS is the requests per second per client address.
	PerClientRPS float64

	// Burst is the maximum per-client burst. The global burst is ten times larger.
	Burst int

	// IdleTTL is how long an idle client's limiter is retained.
	IdleTTL time.Duration

	// ExemptMethods bypass rate limiting.
	ExemptMethods []string
}

// DefaultRateLimitConfig returns sensible rate limiting defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:       false,
		GlobalRPS:     1000,
		PerClientRPS:  100,
		Burst:         50,
		IdleTTL:       10 * time.Minute,
		ExemptMethods: []string{MethodHealth},
	}
}

// sweepEvery is the number of admitted checks between idle-limiter sweeps.
const sweepEvery = 512

// RateLimiter admits requests against a global and a per-client token
// bucket. A nil or disabled RateLimiter admits everything. It is safe for
// concurrent use.
type RateLimiter struct {
	config  RateLimitConfig
	global  *rate.Limiter
	clients *xsync.Map[string, *clientLimiter]
	exempt  map[string]struct{}
	checks  atomic.Uint64
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// NewRateLimiter creates a rate limiter from config.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		global:  rate.NewLimiter(limitOf(config.GlobalRPS), config.Burst*10),
		clients: xsync.NewMap[string, *clientLimiter](),
		exempt:  make(map[string]struct{}, len(config.ExemptMethods)),
	}
	for _, method := range config.ExemptMethods {
		rl.exempt[method] = struct{}{}
	}
	return rl
}

// Allow reports whether a call of method from client may proceed.
// Rejections return ErrRateLimited.
func (rl *RateLimiter) Allow(client, method string) error {
	if rl == nil || !rl.config.Enabled {
		return nil
	}
	if _, ok := rl.exempt[method]; ok {
		return nil
	}

	now := time.Now()
	if !rl.global.AllowN(now, 1) {
		return ErrRateLimited.WithData("global rate limit exceeded")
	}

	entry, _ := rl.clients.LoadOrCompute(client, func() (*clientLimiter, bool) {
		return &clientLimiter{limiter: rate.NewLimiter(limitOf(rl.config.PerClientRPS), rl.config.Burst)}, false
	})
	entry.lastSeen.Store(now.UnixNano())
	allowed := entry.limiter.AllowN(now, 1)

	if rl.checks.Add(1)%sweepEvery == 0 {
		rl.sweep(now)
	}
	if !allowed {
		return ErrRateLimited.WithDataf("rate limit exceeded for %s", client)
	}
	return nil
}

// Clients returns the number of tracked client limiters.
func (rl *RateLimiter) Clients() int {
	if rl == nil {
		return 0
	}
	return rl.clients.Size()
}

func (rl *RateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-rl.config.IdleTTL).UnixNano()
	rl.clients.Range(func(key string, entry *clientLimiter) bool {
		if entry.lastSeen.Load() < cutoff {
			rl.clients.Delete(key)
		}
		return true
	})
}

func limitOf(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// ClientKey derives the rate limiting key of a remote address, dropping
// the port so that every connection from one host shares a bucket.
func ClientKey(remoteAddr string) string {
	remote := strings.TrimSpace(remoteAddr)
	if remote == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil || host == "" {
		return remote
	}
	return host
}
