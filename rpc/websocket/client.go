package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/rpc/jsonrpc"
	"github.com/blockberries/queryberry/types"
)

// ErrClientClosed is returned by calls on a closed or disconnected client.
var ErrClientClosed = errors.New("websocket client closed")

// Client is a client.Transport multiplexing JSON-RPC calls and event
// subscriptions over one websocket connection. It is safe for concurrent use.
type Client struct {
	conn   net.Conn
	logger *logging.Logger

	nextID  atomic.Uint64
	pending *xsync.Map[string, chan *message]
	buffer  int

	subMu sync.RWMutex
	subs  map[string]chan events.Event

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// message is any frame sent by the server: a response or a notification.
type message struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *rpc.RPCError   `json:"error"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger of a Client.
func WithClientLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithEventBuffer sets the channel buffer of each subscription.
func WithEventBuffer(n int) ClientOption {
	return func(c *Client) {
		c.buffer = n
	}
}

// Dial connects to the websocket endpoint at url, e.g.
// "ws://127.0.0.1:26657/websocket".
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		logger:  logging.NewNopLogger(),
		pending: xsync.NewMap[string, chan *message](),
		subs:    make(map[string]chan events.Event),
		buffer:  100,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("websocket-client")
	go c.readLoop()
	return c, nil
}

// Call invokes method with params and decodes the result into result.
// Errors reported by the node are returned as *rpc.RPCError.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}
	payload, err := json.Marshal(jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		Method:  method,
		Params:  raw,
		ID:      json.RawMessage(id),
	})
	if err != nil {
		return err
	}

	replyCh := make(chan *message, 1)
	c.pending.Store(id, replyCh)
	defer c.pending.Delete(id)

	if err := c.write(payload); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.closedErr()
	case msg := <-replyCh:
		if msg.Error != nil {
			return msg.Error
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("%w: %T: %v", types.ErrDecode, result, err)
		}
		return nil
	}
}

// Subscribe subscribes to events matching query. The channel is closed by
// Unsubscribe or when the connection ends. Events are dropped when the
// channel is full.
func (c *Client) Subscribe(ctx context.Context, query string) (<-chan events.Event, error) {
	ch := make(chan events.Event, c.buffer)
	c.subMu.Lock()
	if _, exists := c.subs[query]; exists {
		c.subMu.Unlock()
		return nil, fmt.Errorf("already subscribed to %q", query)
	}
	c.subs[query] = ch
	c.subMu.Unlock()
	if err := c.Call(ctx, MethodSubscribe, SubscribeParams{Query: query}, nil); err != nil {
		c.dropSubscription(query)
		return nil, err
	}
	return ch, nil
}

// Unsubscribe cancels the subscription for query.
func (c *Client) Unsubscribe(ctx context.Context, query string) error {
	err := c.Call(ctx, MethodUnsubscribe, SubscribeParams{Query: query}, nil)
	c.dropSubscription(query)
	return err
}

// Close closes the connection. Pending calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) write(payload []byte) error {
	select {
	case <-c.done:
		return c.closedErr()
	default:
	}

	c.writeMu.Lock()
	err := wsutil.WriteClientMessage(c.conn, ws.OpText, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.shutdown(err)
		return fmt.Errorf("%w: %v", ErrClientClosed, err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		data, op, err := wsutil.ReadServerData(c.conn)
		if err != nil {
			c.shutdown(err)
			return
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("undecodable message", logging.Error(err))
			continue
		}
		if msg.Method == MethodEvent {
			c.deliver(msg.Params)
			continue
		}
		if replyCh, ok := c.pending.Load(string(msg.ID)); ok {
			select {
			case replyCh <- &msg:
			default:
			}
		}
	}
}

func (c *Client) deliver(params json.RawMessage) {
	var data EventData
	if err := json.Unmarshal(params, &data); err != nil {
		c.logger.Warn("undecodable event", logging.Error(err))
		return
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	ch, ok := c.subs[data.Query]
	if !ok {
		return
	}
	select {
	case ch <- data.Event:
	default:
		c.logger.Warn("event dropped: subscription channel full")
	}
}

func (c *Client) dropSubscription(query string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if ch, ok := c.subs[query]; ok {
		delete(c.subs, query)
		close(ch)
	}
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.err = cause
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		c.writeMu.Unlock()
		_ = c.conn.Close()

		c.subMu.Lock()
		for query, ch := range c.subs {
			delete(c.subs, query)
			close(ch)
		}
		c.subMu.Unlock()
	})
}

func (c *Client) closedErr() error {
	if c.err != nil {
		return fmt.Errorf("%w: %v", ErrClientClosed, c.err)
	}
	return ErrClientClosed
}
