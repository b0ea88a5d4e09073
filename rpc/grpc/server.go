package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/metrics"
	"github.com/blockberries/queryberry/rpc"
)

// headerSubscribed is sent once a subscription is registered on the bus,
// so clients learn about rejected subscriptions before the first event.
const headerSubscribed = "subscribed"

// Config contains gRPC server configuration.
type Config struct {
	// ListenAddr is the address to listen on, optionally prefixed with "tcp://".
	ListenAddr string

	// MaxRecvMsgSize is the maximum message size in bytes the server can receive.
	MaxRecvMsgSize int

	// MaxSendMsgSize is the maximum message size in bytes the server can send.
	MaxSendMsgSize int

	// MaxConcurrentStreams is the maximum number of concurrent streams per connection.
	MaxConcurrentStreams uint32

	// TLS enables TLS when set.
	TLS *TLSConfig

	// Auth contains authentication configuration.
	Auth AuthConfig
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// DefaultConfig returns sensible defaults for gRPC configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:           "tcp://127.0.0.1:26658",
		MaxRecvMsgSize:       4 * 1024 * 1024,
		MaxSendMsgSize:       4 * 1024 * 1024,
		MaxConcurrentStreams: 100,
		Auth:                 DefaultAuthConfig(),
	}
}

// Server serves rpc.Service over gRPC, plus an event subscription stream
// fed by the event bus.
type Server struct {
	svc    rpc.Service
	bus    *events.Bus
	config Config

	grpcServer *grpc.Server
	listener   net.Listener
	running    atomic.Bool
	mu         sync.Mutex

	// done ends open subscription streams, which GracefulStop waits for.
	done     chan struct{}
	stopOnce sync.Once
	nextID   atomic.Uint64

	auth    *Authenticator
	limiter *rpc.RateLimiter
	logger  *logging.Logger
	metrics metrics.Metrics
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithRateLimiter applies rl to every call and subscription.
func WithRateLimiter(rl *rpc.RateLimiter) Option {
	return func(s *Server) {
		s.limiter = rl
	}
}

// NewServer creates a gRPC server for svc. bus may be nil, in which case
// subscriptions are rejected as unsupported. TLS credentials are loaded here.
func NewServer(svc rpc.Service, bus *events.Bus, config Config, opts ...Option) (*Server, error) {
	s := &Server{
		svc:     svc,
		bus:     bus,
		config:  config,
		done:    make(chan struct{}),
		logger:  logging.NewNopLogger(),
		metrics: metrics.NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("grpc")
	s.auth = NewAuthenticator(config.Auth)

	serverOpts := []grpc.ServerOption{
		grpc.MaxConcurrentStreams(config.MaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              2 * time.Minute,
			Timeout:           20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             time.Minute,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			unaryRateLimit(s.limiter, s.metrics),
			s.auth.UnaryInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			streamRateLimit(s.limiter, s.metrics),
			s.auth.StreamInterceptor(),
		),
	}
	if config.MaxRecvMsgSize > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(config.MaxRecvMsgSize))
	}
	if config.MaxSendMsgSize > 0 {
		serverOpts = append(serverOpts, grpc.MaxSendMsgSize(config.MaxSendMsgSize))
	}
	if config.TLS != nil {
		creds, err := credentials.NewServerTLSFromFile(config.TLS.CertFile, config.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	s.grpcServer = grpc.NewServer(serverOpts...)
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	addr := strings.TrimPrefix(s.config.ListenAddr, "tcp://")
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	go func() {
		if err := s.Serve(listener); err != nil {
			s.logger.Error("grpc server stopped", logging.Error(err))
		}
	}()
	return nil
}

// Serve serves on lis until Stop is called. It returns nil after Stop.
func (s *Server) Serve(lis net.Listener) error {
	select {
	case <-s.done:
		_ = lis.Close()
		return nil
	default:
	}
	if s.running.Swap(true) {
		_ = lis.Close()
		return errors.New("grpc server already serving")
	}

	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("serving grpc", logging.Address(lis.Addr().String()))
	err := s.grpcServer.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop ends open subscriptions and gracefully stops the server. A stopped
// server cannot be restarted.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.grpcServer.GracefulStop()
		s.running.Store(false)
	})
	return nil
}

// IsRunning returns true if the server is serving.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Addr returns the address the server listens on, or "" before serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Authenticator returns the server's authenticator, whose API keys may be
// changed at runtime.
func (s *Server) Authenticator() *Authenticator {
	return s.auth
}

func (s *Server) call(ctx context.Context, method string, req rpc.Request) (any, error) {
	start := time.Now()
	result, err := rpc.Serve(incomingTrace(ctx), s.svc, req)
	s.metrics.ObserveRPCLatency(method, time.Since(start))
	s.metrics.IncRPCRequests(metrics.TransportGRPC, method, metrics.Result(err))
	if err != nil {
		if rpc.AsRPCError(err).Code == rpc.CodeInternalError {
			s.logger.Warn("rpc call failed", logging.Method(method), logging.Error(err))
		}
		return nil, err
	}
	return result, nil
}

func (s *Server) subscribe(req *SubscribeRequest, stream grpc.ServerStream) error {
	if s.bus == nil || !s.bus.IsRunning() {
		return rpc.ErrMethodUnsupported.WithData("event bus unavailable")
	}
	query, err := events.ParseQuery(req.Query)
	if err != nil {
		return rpc.ErrInvalidParams.WithData(err.Error())
	}

	ctx := stream.Context()
	subscriber := s.subscriberID(ctx)
	eventCh, err := s.bus.Subscribe(ctx, subscriber, query)
	if err != nil {
		return rpc.ErrSubscription.WithData(err.Error())
	}
	defer func() { _ = s.bus.Unsubscribe(subscriber, query) }()

	if err := stream.SendHeader(metadata.Pairs(headerSubscribed, req.Query)); err != nil {
		return err
	}
	s.logger.Debug("subscribed", slog.String("subscriber", subscriber), slog.String("query", req.Query))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return status.Error(codes.Unavailable, "server stopping")
		case ev, ok := <-eventCh:
			if !ok {
				return rpc.ErrSubscription.WithData("subscription closed by the event bus")
			}
			if err := stream.SendMsg(&ev); err != nil {
				return err
			}
		}
	}
}

func (s *Server) subscriberID(ctx context.Context) string {
	addr := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr = p.Addr.String()
	}
	return fmt.Sprintf("grpc:%s#%d", addr, s.nextID.Add(1))
}
