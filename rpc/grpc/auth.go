package grpc

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/blockberries/queryberry/rpc"
)

// Metadata keys carrying API keys.
const (
	authorizationKey = "authorization"
	apiKeyKey        = "x-api-key"
	bearerPrefix     = "Bearer "
)

// AuthConfig contains authentication configuration.
type AuthConfig struct {
	// Enabled controls whether authentication is required.
	Enabled bool

	// APIKeys is a list of valid API keys.
	APIKeys []string

	// PublicMethods are methods that don't require authentication.
	// Format: "/queryberry.Node/health".
	PublicMethods []string
}

// DefaultAuthConfig returns authentication configuration with auth disabled.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled: false,
		PublicMethods: []string{
			FullMethod(rpc.MethodHealth),
			FullMethod(rpc.MethodStatus),
		},
	}
}

// Authenticator checks API keys sent as "authorization: Bearer <key>" or
// "x-api-key: <key>". It is safe for concurrent use.
type Authenticator struct {
	enabled       bool
	publicMethods map[string]struct{}

	mu      sync.RWMutex
	apiKeys map[string]struct{}
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(config AuthConfig) *Authenticator {
	a := &Authenticator{
		enabled:       config.Enabled,
		publicMethods: make(map[string]struct{}, len(config.PublicMethods)),
		apiKeys:       make(map[string]struct{}, len(config.APIKeys)),
	}
	for _, method := range config.PublicMethods {
		a.publicMethods[method] = struct{}{}
	}
	for _, key := range config.APIKeys {
		a.apiKeys[key] = struct{}{}
	}
	return a
}

// UnaryInterceptor returns a unary server interceptor for authentication.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := a.check(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor returns a stream server interceptor for authentication.
func (a *Authenticator) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := a.check(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// AddAPIKey adds an API key at runtime.
func (a *Authenticator) AddAPIKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apiKeys[key] = struct{}{}
}

// RemoveAPIKey removes an API key at runtime.
func (a *Authenticator) RemoveAPIKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.apiKeys, key)
}

func (a *Authenticator) check(ctx context.Context, fullMethod string) error {
	if !a.enabled {
		return nil
	}
	if _, ok := a.publicMethods[fullMethod]; ok {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	for _, auth := range md.Get(authorizationKey) {
		if key, ok := strings.CutPrefix(auth, bearerPrefix); ok && a.validKey(key) {
			return nil
		}
	}
	for _, key := range md.Get(apiKeyKey) {
		if a.validKey(key) {
			return nil
		}
	}
	return status.Error(codes.Unauthenticated, "invalid or missing credentials")
}

// validKey compares key against every known key in constant time.
func (a *Authenticator) validKey(key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	valid := false
	for known := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(known)) == 1 {
			valid = true
		}
	}
	return valid
}
