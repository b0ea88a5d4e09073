package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.opentelemetry.io/otel/propagation"

	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/memory"
	"github.com/blockberries/queryberry/metrics"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/tracing"
)

// Config contains the HTTP server configuration.
type Config struct {
	// ListenAddr is the address to listen on, optionally prefixed with "tcp://".
	ListenAddr string

	// MaxBodyBytes is the maximum request body size.
	MaxBodyBytes int64

	// MaxHeaderBytes is the maximum request header size.
	MaxHeaderBytes int

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration

	// MaxBatchSize is the maximum number of requests in a batch.
	MaxBatchSize int

	// BatchWorkers bounds the number of batch entries executed concurrently
	// across all batches.
	BatchWorkers int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     "tcp://127.0.0.1:26657",
		MaxBodyBytes:   1024 * 1024,
		MaxHeaderBytes: 1 << 20,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxBatchSize:   20,
		BatchWorkers:   8,
	}
}

// Server is a JSON-RPC 2.0 server over HTTP.
type Server struct {
	config    Config
	processor *Processor
	pool      pond.Pool
	mux       *http.ServeMux

	httpServer *http.Server
	listener   net.Listener
	running    atomic.Bool
	mu         sync.Mutex
	stopPool   sync.Once

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

// WithRateLimiter applies rl to every call.
func WithRateLimiter(rl *rpc.RateLimiter) Option {
	return func(s *Server) {
		s.limiter = rl
	}
}

// NewServer creates a JSON-RPC server serving svc at "/".
func NewServer(svc rpc.Service, config Config, opts ...Option) *Server {
	s := &Server{
		config:  config,
		mux:     http.NewServeMux(),
		logger:  logging.NewNopLogger(),
		metrics: metrics.NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.BatchWorkers <= 0 {
		s.config.BatchWorkers = 1
	}
	s.logger = s.logger.WithComponent("jsonrpc")
	s.processor = NewProcessor(svc, metrics.TransportHTTP, s.limiter, s.logger, s.metrics)
	s.pool = pond.NewPool(s.config.BatchWorkers)
	s.mux.HandleFunc("/", s.handleHTTP)
	return s
}

// Handle mounts an additional handler, such as the websocket endpoint or
// the metrics exporter. It must be called before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts listening and serving in the background.
func (s *Server) Start() error {
	if s.running.Swap(true) {
		return nil
	}

	addr := strings.TrimPrefix(s.config.ListenAddr, "tcp://")
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:        s.mux,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("serving json-rpc", logging.Address(listener.Addr().String()))
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("json-rpc server stopped", logging.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts the server down and releases the batch workers.
// A server used only through Handler must still be stopped.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		s.stopPool.Do(s.pool.StopAndWait)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()

	var err error
	if httpServer != nil {
		if shutdownErr := httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shutdown server: %w", shutdownErr)
		}
	}
	s.stopPool.Do(s.pool.StopAndWait)
	return err
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodyBytes+1))
	if err != nil {
		s.writeJSON(w, NewErrorResponse(nil, rpc.ErrParseError))
		return
	}
	if int64(len(body)) > s.config.MaxBodyBytes {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	ctx := tracing.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	client := rpc.ClientKey(r.RemoteAddr)
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		s.handleBatch(w, ctx, client, body)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeJSON(w, NewErrorResponse(nil, rpc.ErrParseError.WithData(err.Error())))
		return
	}

	resp := s.processor.Process(ctx, client, &req)
	if len(req.ID) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, resp)
}

// handleBatch executes batch entries concurrently on the shared worker pool
// and replies in request order. Notifications get no response entry.
func (s *Server) handleBatch(w http.ResponseWriter, ctx context.Context, client string, body []byte) {
	var batch BatchRequest
	if err := json.Unmarshal(body, &batch); err != nil {
		s.writeJSON(w, NewErrorResponse(nil, rpc.ErrParseError.WithData(err.Error())))
		return
	}
	if len(batch) == 0 {
		s.writeJSON(w, NewErrorResponse(nil, rpc.ErrInvalidRequest.WithData("empty batch")))
		return
	}
	if s.config.MaxBatchSize > 0 && len(batch) > s.config.MaxBatchSize {
		s.writeJSON(w, NewErrorResponse(nil, rpc.ErrInvalidRequest.WithDataf(
			"batch of %d requests exceeds the maximum of %d", len(batch), s.config.MaxBatchSize)))
		return
	}

	responses := make([]*Response, len(batch))
	group := s.pool.NewGroupContext(ctx)
	for i := range batch {
		group.Submit(func() {
			responses[i] = s.processor.Process(group.Context(), client, &batch[i])
		})
	}
	if err := group.Wait(); err != nil {
		s.logger.Debug("batch interrupted", logging.Count(len(batch)), logging.Error(err))
	}

	out := make(BatchResponse, 0, len(batch))
	for i, resp := range responses {
		if len(batch[i].ID) == 0 {
			continue
		}
		if resp == nil {
			resp = NewErrorResponse(batch[i].ID, rpc.ErrInternalError.WithData("request was not processed"))
		}
		out = append(out, *resp)
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := memory.WriteJSON(w, v); err != nil {
		s.logger.Debug("writing response", logging.Error(err))
	}
}
