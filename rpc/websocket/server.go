// Package websocket serves rpc.Service over JSON-RPC on websocket
// connections, adding event subscriptions fed by the event bus. It uses
// gobwas/ws for zero-allocation upgrades.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/puzpuzpuz/xsync/v4"
	"go.opentelemetry.io/otel/propagation"

	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/memory"
	"github.com/blockberries/queryberry/metrics"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/rpc/jsonrpc"
	"github.com/blockberries/queryberry/tracing"
)

// Subscription methods handled by the websocket server itself.
const (
	MethodSubscribe      = "subscribe"
	MethodUnsubscribe    = "unsubscribe"
	MethodUnsubscribeAll = "unsubscribe_all"

	// MethodEvent names the notifications carrying subscribed events.
	MethodEvent = "event"
)

// Config contains websocket server configuration.
type Config struct {
	// MaxClients is the maximum number of connected clients. Zero means no limit.
	MaxClients int

	// MaxSubscriptionsPerClient is the max subscriptions per client.
	MaxSubscriptionsPerClient int

	// SendBuffer is the number of outgoing messages queued per client.
	SendBuffer int

	// PingInterval is the interval for sending ping messages.
	PingInterval time.Duration

	// WriteTimeout is the timeout for write operations.
	WriteTimeout time.Duration

	// ReadTimeout is the maximum idle time between client messages. Zero
	// disables it; dead peers are then detected by failing pings.
	ReadTimeout time.Duration

	// AllowedOrigins restricts allowed origins. Empty means all allowed.
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for websocket configuration.
func DefaultConfig() Config {
	return Config{
		MaxClients:                100,
		MaxSubscriptionsPerClient: 10,
		SendBuffer:                256,
		PingInterval:              30 * time.Second,
		WriteTimeout:              10 * time.Second,
	}
}

// SubscribeParams are the params of subscribe and unsubscribe calls.
type SubscribeParams struct {
	Query string `json:"query"`
}

// SubscribeResult acknowledges subscribe and unsubscribe calls.
type SubscribeResult struct {
	Query string `json:"query,omitempty"`
}

// EventData is the params payload of an event notification.
type EventData struct {
	Query string       `json:"query"`
	Event events.Event `json:"event"`
}

// Notification is a server-initiated message without an id.
type Notification struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  EventData `json:"params"`
}

// Server handles websocket connections.
type Server struct {
	processor *jsonrpc.Processor
	bus       *events.Bus
	cfg       Config
	upgrader  ws.HTTPUpgrader
	logger    *logging.Logger
	metrics   metrics.Metrics
	limiter   *rpc.RateLimiter

	clients *xsync.Map[string, *session]
	nextID  atomic.Uint64
	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
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

// NewServer creates a websocket server over svc. bus may be nil, in which
// case subscriptions are rejected.
func NewServer(svc rpc.Service, bus *events.Bus, cfg Config, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		bus:     bus,
		cfg:     cfg,
		logger:  logging.NewNopLogger(),
		metrics: metrics.NewNopMetrics(),
		clients: xsync.NewMap[string, *session](),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.SendBuffer <= 0 {
		s.cfg.SendBuffer = 256
	}
	s.logger = s.logger.WithComponent("websocket")
	s.processor = jsonrpc.NewProcessor(svc, metrics.TransportWebsocket, s.limiter, s.logger, s.metrics)
	s.upgrader = ws.HTTPUpgrader{Timeout: 10 * time.Second}
	return s
}

// Start starts accepting connections.
func (s *Server) Start() error {
	s.running.Store(true)
	return nil
}

// Stop disconnects all clients and waits for their goroutines.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}

	s.cancel()
	s.clients.Range(func(_ string, client *session) bool {
		client.Close()
		return true
	})
	s.wg.Wait()
	s.metrics.SetWebsocketConnections(0)
	return nil
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Handler returns an HTTP handler for websocket connections.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWebSocket)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.clients.Size()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.running.Load() {
		http.Error(w, "server not running", http.StatusServiceUnavailable)
		return
	}
	if !s.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	if s.cfg.MaxClients > 0 && s.clients.Size() >= s.cfg.MaxClients {
		http.Error(w, "max clients reached", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := s.upgrader.Upgrade(r, w)
	if err != nil {
		return // Upgrader already wrote error response
	}

	client := newSession(s, conn, r.RemoteAddr, r.Header)
	s.clients.Store(client.id, client)
	s.metrics.SetWebsocketConnections(s.clients.Size())
	client.logger.Debug("client connected")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		client.run()
		s.clients.Delete(client.id)
		s.metrics.SetWebsocketConnections(s.clients.Size())
		client.logger.Debug("client disconnected")
	}()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// session is a connected websocket client.
type session struct {
	id     string
	key    string
	server *Server
	conn   net.Conn
	logger *logging.Logger

	mu            sync.Mutex
	subscriptions map[string]events.Query

	writeMu   sync.Mutex
	sendCh    chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// newSession creates a session whose calls continue the trace of the
// upgrade request, if any.
func newSession(s *Server, conn net.Conn, remoteAddr string, header http.Header) *session {
	ctx, cancel := context.WithCancel(tracing.Extract(s.ctx, propagation.HeaderCarrier(header)))
	id := fmt.Sprintf("%s#%d", remoteAddr, s.nextID.Add(1))
	return &session{
		id:            id,
		key:           rpc.ClientKey(remoteAddr),
		server:        s,
		conn:          conn,
		logger:        s.logger.With(slog.String("client_id", id)),
		subscriptions: make(map[string]events.Query),
		sendCh:        make(chan []byte, s.cfg.SendBuffer),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// run handles the connection lifecycle.
func (c *session) run() {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()
	go func() {
		defer wg.Done()
		c.readLoop()
	}()
	go func() {
		defer wg.Done()
		c.pingLoop()
	}()

	<-c.ctx.Done()
	c.Close()
	wg.Wait()
}

func (c *session) readLoop() {
	defer c.cancel()

	for {
		if c.server.cfg.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.ReadTimeout))
		}
		data, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && c.ctx.Err() == nil {
				c.logger.Debug("read failed", logging.Error(err))
			}
			return
		}
		if op == ws.OpText || op == ws.OpBinary {
			c.handleMessage(data)
		}
	}
}

func (c *session) writeLoop() {
	defer c.cancel()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.sendCh:
			if err := c.writeMessage(ws.OpText, msg); err != nil {
				return
			}
		}
	}
}

func (c *session) writeMessage(op ws.OpCode, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.server.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
	}
	return wsutil.WriteServerMessage(c.conn, op, data)
}

func (c *session) pingLoop() {
	if c.server.cfg.PingInterval <= 0 {
		<-c.ctx.Done()
		return
	}
	ticker := time.NewTicker(c.server.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeMessage(ws.OpPing, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *session) handleMessage(data []byte) {
	var req jsonrpc.Request
	if err := json.Unmarshal(data, &req); err != nil {
		c.send(jsonrpc.NewErrorResponse(nil, rpc.ErrParseError.WithData(err.Error())))
		return
	}

	var resp *jsonrpc.Response
	switch req.Method {
	case MethodSubscribe:
		resp = c.handleSubscribe(&req)
	case MethodUnsubscribe:
		resp = c.handleUnsubscribe(&req)
	case MethodUnsubscribeAll:
		resp = c.handleUnsubscribeAll(&req)
	default:
		resp = c.server.processor.Process(c.ctx, c.key, &req)
	}
	if len(req.ID) == 0 {
		return
	}
	c.send(resp)
}

func (c *session) handleSubscribe(req *jsonrpc.Request) *jsonrpc.Response {
	if c.server.bus == nil || !c.server.bus.IsRunning() {
		return jsonrpc.NewErrorResponse(req.ID, rpc.ErrMethodUnsupported.WithData("event bus unavailable"))
	}
	if err := c.server.limiter.Allow(c.key, req.Method); err != nil {
		c.server.metrics.IncRateLimited(metrics.TransportWebsocket)
		return jsonrpc.NewErrorResponse(req.ID, rpc.AsRPCError(err))
	}
	params, rpcErr := decodeSubscribeParams(req.Params)
	if rpcErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}
	query, err := events.ParseQuery(params.Query)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpc.ErrInvalidParams.WithData(err.Error()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	result := &SubscribeResult{Query: params.Query}
	if _, exists := c.subscriptions[params.Query]; exists {
		return mustRespond(req.ID, result)
	}
	if limit := c.server.cfg.MaxSubscriptionsPerClient; limit > 0 && len(c.subscriptions) >= limit {
		return jsonrpc.NewErrorResponse(req.ID, rpc.ErrSubscription.WithDataf(
			"maximum of %d subscriptions reached", limit))
	}

	eventCh, err := c.server.bus.Subscribe(c.ctx, c.id, query)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpc.ErrSubscription.WithData(err.Error()))
	}
	c.subscriptions[params.Query] = query
	go c.forwardEvents(params.Query, eventCh)

	c.logger.Debug("subscribed", slog.String("query", params.Query))
	return mustRespond(req.ID, result)
}

func (c *session) handleUnsubscribe(req *jsonrpc.Request) *jsonrpc.Response {
	params, rpcErr := decodeSubscribeParams(req.Params)
	if rpcErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}

	c.mu.Lock()
	query, exists := c.subscriptions[params.Query]
	delete(c.subscriptions, params.Query)
	c.mu.Unlock()

	if !exists {
		return jsonrpc.NewErrorResponse(req.ID, rpc.ErrSubscription.WithDataf(
			"no subscription for %q", params.Query))
	}
	if c.server.bus != nil {
		_ = c.server.bus.Unsubscribe(c.id, query)
	}
	return mustRespond(req.ID, &SubscribeResult{Query: params.Query})
}

func (c *session) handleUnsubscribeAll(req *jsonrpc.Request) *jsonrpc.Response {
	c.unsubscribeAll()
	return mustRespond(req.ID, &SubscribeResult{})
}

func (c *session) unsubscribeAll() {
	c.mu.Lock()
	c.subscriptions = make(map[string]events.Query)
	c.mu.Unlock()

	if c.server.bus != nil {
		c.server.bus.UnsubscribeAll(c.id)
	}
}

// forwardEvents relays events until the bus closes the channel.
func (c *session) forwardEvents(query string, eventCh <-chan events.Event) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			c.send(&Notification{
				JSONRPC: jsonrpc.Version,
				Method:  MethodEvent,
				Params:  EventData{Query: query, Event: event},
			})
		}
	}
}

// send queues msg for the writer. Messages are dropped when the queue is full.
func (c *session) send(msg any) {
	data, err := memory.MarshalJSON(msg)
	if err != nil {
		c.logger.Error("encoding message", logging.Error(err))
		return
	}

	select {
	case c.sendCh <- data:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("message dropped: send channel full")
	}
}

// Close closes the connection and drops its subscriptions.
func (c *session) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.unsubscribeAll()

		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		c.writeMu.Unlock()

		_ = c.conn.Close()
	})
}

func decodeSubscribeParams(raw json.RawMessage) (SubscribeParams, *rpc.RPCError) {
	var params SubscribeParams
	if len(raw) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, rpc.ErrInvalidParams.WithData(err.Error())
	}
	return params, nil
}

func mustRespond(id json.RawMessage, result any) *jsonrpc.Response {
	resp, err := jsonrpc.NewResponse(id, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(id, rpc.ErrInternalError)
	}
	return resp
}
