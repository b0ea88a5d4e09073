// Package testing provides test utilities for queryberry integration tests:
// an in-memory chain with deterministic block times, and HTTP, websocket and
// gRPC servers exposing it.
package testing

import (
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/blockberries/queryberry/blockstore"
	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/ledger"
	"github.com/blockberries/queryberry/mempool"
	"github.com/blockberries/queryberry/query"
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/rpc/core"
	qbgrpc "github.com/blockberries/queryberry/rpc/grpc"
	"github.com/blockberries/queryberry/rpc/jsonrpc"
	"github.com/blockberries/queryberry/rpc/websocket"
	"github.com/blockberries/queryberry/statestore"
	"github.com/blockberries/queryberry/types"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// GenesisTime is the genesis time of test chains. Block n is committed
// BlockInterval after block n-1.
var GenesisTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// TestChainConfig configures a TestChain.
type TestChainConfig struct {
	ChainID string

	// Genesis defaults to ledger.DefaultGenesis(ChainID) at GenesisTime.
	Genesis *ledger.Genesis

	BlockInterval       time.Duration
	EpochLength         uint64
	ReadPastHeightLimit uint64
	EventLogCapacity    int
}

// DefaultTestChainConfig returns the default test chain configuration.
func DefaultTestChainConfig() *TestChainConfig {
	return &TestChainConfig{
		ChainID:          "test-chain",
		BlockInterval:    time.Second,
		EventLogCapacity: 1000,
	}
}

// TestChain is a single in-memory node with genesis committed at height 1.
type TestChain struct {
	cfg *TestChainConfig

	State    *statestore.IAVLStore
	Blocks   *blockstore.MemoryBlockStore
	EventLog *events.Log
	Bus      *events.Bus
	Mempool  *mempool.SimpleMempool
	Ledger   *ledger.Ledger
	Env      *core.Environment
	Root     *router.Router
	Local    *client.Local
	Genesis  *ledger.Genesis

	mu    sync.Mutex
	clock time.Time
}

// NewTestChain creates a test chain and commits its genesis.
func NewTestChain(tc *TestChainConfig) (*TestChain, error) {
	if tc == nil {
		tc = DefaultTestChainConfig()
	}
	g := tc.Genesis
	if g == nil {
		g = ledger.DefaultGenesis(tc.ChainID)
		g.GenesisTime = GenesisTime
	}

	c := &TestChain{
		cfg:      tc,
		State:    statestore.NewMemoryIAVLStore(0),
		Blocks:   blockstore.NewMemoryBlockStore(),
		EventLog: events.NewLog(tc.EventLogCapacity),
		Bus:      events.NewBus(events.DefaultBusConfig()),
		Mempool:  mempool.NewSimpleMempool(1000, 1<<20, 1<<16),
		Root:     query.Root(),
		Genesis:  g,
		clock:    g.GenesisTime,
	}
	c.Mempool.SetTxValidator(mempool.AcceptAllTxValidator)
	c.EventLog.SetBus(c.Bus)
	if err := c.Bus.Start(); err != nil {
		return nil, err
	}

	c.Ledger = ledger.New(tc.ChainID, c.State, c.Blocks, c.EventLog,
		ledger.WithMempool(c.Mempool),
		ledger.WithEpochLength(tc.EpochLength))
	if _, err := c.Ledger.InitGenesis(g); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("committing genesis: %w", err)
	}

	c.Env = core.NewEnvironment(c.Blocks, c.State, c.EventLog, c.Root,
		core.WithMempool(c.Mempool),
		core.WithConsensusParams(g.ConsensusParams),
		core.WithReadPastHeightLimit(tc.ReadPastHeightLimit),
		core.WithNodeInfo(rpc.NodeInfo{
			ID:      "test-node",
			Network: tc.ChainID,
			Version: "test",
			Moniker: "test",
		}))
	c.Local = client.NewLocal(c.Root, c.State, c.EventLog,
		client.WithService(c.Env),
		client.WithReadPastHeightLimit(tc.ReadPastHeightLimit))
	return c, nil
}

// Commit commits the next block applying writes, with txs as its transactions.
func (c *TestChain) Commit(txs []types.Tx, writes ...ledger.Write) (*types.Block, error) {
	return c.Ledger.CommitBlock(types.TimeToTimestamp(c.tick()), txs, writes...)
}

// CommitN commits n empty blocks.
func (c *TestChain) CommitN(n int) error {
	for range n {
		if _, err := c.Commit(nil); err != nil {
			return err
		}
	}
	return nil
}

// ProduceBlock commits the next block from the mempool.
func (c *TestChain) ProduceBlock() (*types.Block, error) {
	return c.Ledger.ProduceBlock(c.tick())
}

// Height returns the last committed height.
func (c *TestChain) Height() types.Height {
	return c.Ledger.Height()
}

// Close stops the event bus and closes the stores.
func (c *TestChain) Close() error {
	_ = c.Bus.Stop()
	if err := c.Blocks.Close(); err != nil {
		return err
	}
	return c.State.Close()
}

func (c *TestChain) tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = c.clock.Add(c.cfg.BlockInterval)
	return c.clock
}

// TestServer serves a TestChain over JSON-RPC on HTTP and websocket.
type TestServer struct {
	HTTP      *httptest.Server
	Websocket *websocket.Server
	JSONRPC   *jsonrpc.Server
}

// Serve starts a TestServer over the chain's RPC environment. limiter may be nil.
func (c *TestChain) Serve(limiter *rpc.RateLimiter) *TestServer {
	srv := jsonrpc.NewServer(c.Env, jsonrpc.DefaultConfig(), jsonrpc.WithRateLimiter(limiter))
	ws := websocket.NewServer(c.Env, c.Bus, websocket.DefaultConfig(), websocket.WithRateLimiter(limiter))
	_ = ws.Start()
	srv.Handle("/websocket", ws.Handler())
	return &TestServer{
		HTTP:      httptest.NewServer(srv.Handler()),
		Websocket: ws,
		JSONRPC:   srv,
	}
}

// URL returns the JSON-RPC endpoint.
func (s *TestServer) URL() string {
	return s.HTTP.URL
}

// WebsocketURL returns the websocket endpoint.
func (s *TestServer) WebsocketURL() string {
	return strings.Replace(s.HTTP.URL, "http://", "ws://", 1) + "/websocket"
}

// Remote returns a client of the server over the HTTP transport.
func (s *TestServer) Remote() (*client.Remote, error) {
	cfg := jsonrpc.DefaultClientConfig()
	cfg.Endpoints = []string{s.URL()}
	cfg.MaxRetries = 0
	transport, err := jsonrpc.NewHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return client.NewRemote(transport), nil
}

// DialWebsocket returns a websocket transport to the server.
func (s *TestServer) DialWebsocket(ctx context.Context) (*websocket.Client, error) {
	return websocket.Dial(ctx, s.WebsocketURL())
}

// Close stops the servers.
func (s *TestServer) Close() {
	_ = s.Websocket.Stop()
	s.HTTP.Close()
	_ = s.JSONRPC.Stop()
}

// bufSize is the in-memory buffer of TestGRPCServer connections.
const bufSize = 1 << 20

// TestGRPCServer serves a TestChain over gRPC on an in-memory listener.
type TestGRPCServer struct {
	Server   *qbgrpc.Server
	listener *bufconn.Listener
	done     chan struct{}
}

// ServeGRPC starts a TestGRPCServer with cfg. limiter may be nil.
func (c *TestChain) ServeGRPC(cfg qbgrpc.Config, limiter *rpc.RateLimiter) (*TestGRPCServer, error) {
	srv, err := qbgrpc.NewServer(c.Env, c.Bus, cfg, qbgrpc.WithRateLimiter(limiter))
	if err != nil {
		return nil, err
	}
	s := &TestGRPCServer{
		Server:   srv,
		listener: bufconn.Listen(bufSize),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		_ = srv.Serve(s.listener)
	}()
	return s, nil
}

// Dial returns a gRPC client connected to the server.
func (s *TestGRPCServer) Dial(opts ...qbgrpc.ClientOption) (*qbgrpc.Client, error) {
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return s.listener.DialContext(ctx)
	}
	opts = append(opts, qbgrpc.WithDialOptions(grpc.WithContextDialer(dialer)))
	return qbgrpc.Dial("passthrough:///bufnet", opts...)
}

// Remote returns a client of the server over the gRPC transport.
func (s *TestGRPCServer) Remote(opts ...qbgrpc.ClientOption) (*client.Remote, error) {
	transport, err := s.Dial(opts...)
	if err != nil {
		return nil, err
	}
	return client.NewRemote(transport), nil
}

// Close stops the server and waits for it to return.
func (s *TestGRPCServer) Close() {
	_ = s.Server.Stop()
	<-s.done
}
