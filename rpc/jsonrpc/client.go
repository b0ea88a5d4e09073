package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/tracing"
	"github.com/blockberries/queryberry/types"
)

// ClientConfig contains the HTTP client transport configuration.
type ClientConfig struct {
	// Endpoints are the node URLs tried in order, e.g. "http://127.0.0.1:26657".
	Endpoints []string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of extra rounds over the endpoints after the
	// first one fails. Node-reported errors are never retried.
	MaxRetries int

	// RetryBackoff is the delay before the first retry round. It doubles
	// every round up to MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	// RPS and Burst bound the client's outgoing request rate. Zero RPS
	// disables client-side limiting.
	RPS   float64
	Burst int

	// BreakerFailures consecutive connection failures open an endpoint's
	// circuit for BreakerCooldown.
	BreakerFailures int
	BreakerCooldown time.Duration

	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
}

// DefaultClientConfig returns a ClientConfig for a single local endpoint.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoints:       []string{"http://127.0.0.1:26657"},
		Timeout:         15 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    200 * time.Millisecond,
		MaxBackoff:      5 * time.Second,
		BreakerFailures: 3,
		BreakerCooldown: 5 * time.Second,
	}
}

// ErrNoEndpoints is returned when a client is created without endpoints.
var ErrNoEndpoints = errors.New("no endpoints configured")

// errCircuitOpen is the last error when every endpoint's circuit is open.
var errCircuitOpen = errors.New("all endpoint circuits are open")

// HTTPClient is a client.Transport speaking JSON-RPC 2.0 over HTTP. It
// fails over across endpoints and retries connection-level failures with
// exponential backoff. It is safe for concurrent use.
type HTTPClient struct {
	config    ClientConfig
	endpoints []string
	client    *http.Client
	limiter   *rate.Limiter
	nextID    atomic.Uint64

	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	logger *logging.Logger
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithClientLogger sets the logger of an HTTPClient.
func WithClientLogger(logger *logging.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// NewHTTPClient creates an HTTP transport from config.
func NewHTTPClient(config ClientConfig, opts ...ClientOption) (*HTTPClient, error) {
	endpoints := dedup(config.Endpoints)
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.BreakerFailures <= 0 {
		config.BreakerFailures = 3
	}
	if config.BreakerCooldown <= 0 {
		config.BreakerCooldown = 5 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	c := &HTTPClient{
		config:    config,
		endpoints: endpoints,
		client:    httpClient,
		failures:  make(map[string]int),
		opened:    make(map[string]time.Time),
		logger:    logging.NewNopLogger(),
	}
	if config.RPS > 0 {
		burst := max(config.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(config.RPS), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("jsonrpc-client")
	return c, nil
}

// Call invokes method with params and decodes the result into result.
// Errors reported by the node are returned as *rpc.RPCError.
func (c *HTTPClient) Call(ctx context.Context, method string, params, result any) error {
	payload, err := c.encode(method, params)
	if err != nil {
		return err
	}

	backoff := c.config.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying call",
				logging.Method(method),
				logging.Attempt(attempt),
				logging.Error(lastErr))
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, c.config.MaxBackoff)
		}

		done, err := c.round(ctx, payload, result)
		if done {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", method, c.config.MaxRetries+1, lastErr)
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// round tries every endpoint whose circuit is closed once. It reports
// done when the call produced a final outcome.
func (c *HTTPClient) round(ctx context.Context, payload []byte, result any) (bool, error) {
	lastErr := errCircuitOpen
	for _, ep := range c.endpoints {
		if c.isOpen(ep) {
			continue
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return true, err
			}
		}

		body, retry, err := c.post(ctx, ep, payload)
		if err != nil {
			if retry {
				c.noteFailure(ep)
			}
			lastErr = fmt.Errorf("%s: %w", ep, err)
			if retry {
				continue
			}
			return true, lastErr
		}
		c.noteSuccess(ep)
		return true, decodeResponse(body, result)
	}
	return false, lastErr
}

// post sends payload to ep and reports whether a failure is worth retrying.
func (c *HTTPClient) post(ctx context.Context, ep string, payload []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("server %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, false, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return body, false, nil
}

func (c *HTTPClient) encode(method string, params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding %s params: %w", method, err)
	}
	id, err := json.Marshal(c.nextID.Add(1))
	if err != nil {
		return nil, err
	}
	return json.Marshal(Request{
		JSONRPC: Version,
		Method:  method,
		Params:  raw,
		ID:      id,
	})
}

// decodeResponse unpacks a response body into result. An error member is
// returned as is.
func decodeResponse(body []byte, result any) error {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: response envelope: %v", types.ErrDecode, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("%w: %T: %v", types.ErrDecode, result, err)
	}
	return nil
}

func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.config.BreakerFailures {
		c.opened[ep] = time.Now().Add(c.config.BreakerCooldown)
		c.logger.Warn("endpoint circuit opened", logging.Address(ep))
	}
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep] = 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func dedup(endpoints []string) []string {
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimRight(strings.TrimSpace(ep), "/")
		if ep == "" || slices.Contains(out, ep) {
			continue
		}
		out = append(out, ep)
	}
	return out
}
