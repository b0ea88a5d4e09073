// Package node assembles a standalone queryberry node from its configuration:
// the state and block stores, the ledger with its block producer, and the
// JSON-RPC, websocket and gRPC servers exposing the query router.
package node

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/blockberries/queryberry/blockstore"
	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/config"
	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/internal/container"
	"github.com/blockberries/queryberry/ledger"
	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/mempool"
	"github.com/blockberries/queryberry/metrics"
	"github.com/blockberries/queryberry/query"
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/rpc/core"
	qbgrpc "github.com/blockberries/queryberry/rpc/grpc"
	"github.com/blockberries/queryberry/rpc/jsonrpc"
	"github.com/blockberries/queryberry/rpc/websocket"
	"github.com/blockberries/queryberry/statestore"
	"github.com/blockberries/queryberry/tracing"
	"github.com/blockberries/queryberry/types"
)

// Lifecycle errors.
var (
	ErrNodeAlreadyStarted = errors.New("node already started")
	ErrNodeNotStarted     = errors.New("node not started")
)

// Node is the main coordinator for a queryberry node.
// It aggregates all components and manages their lifecycle.
type Node struct {
	// Configuration
	cfg     *config.Config
	nodeKey ed25519.PrivateKey
	nodeID  string
	version string

	// Stores
	state    *statestore.IAVLStore
	blocks   blockstore.BlockStore
	eventLog *events.Log
	bus      *events.Bus
	mempool  *mempool.SimpleMempool
	ledger   *ledger.Ledger

	// Query surface
	root  *router.Router
	env   *core.Environment
	local *client.Local

	// Servers
	limiter       *rpc.RateLimiter
	rpcServer     *jsonrpc.Server
	wsServer      *websocket.Server
	grpcServer    *qbgrpc.Server
	metricsServer *http.Server
	scheduler     *cron.Cron
	traceShutdown func(context.Context) error
	components    *container.Container

	logger  *logging.Logger
	metrics metrics.Metrics

	// Lifecycle
	started bool
	mu      sync.RWMutex
}

// Option is a functional option for configuring a Node.
type Option func(*Node)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(n *Node) {
		n.logger = logger
	}
}

// WithMetrics sets the metrics collector, replacing the one built from the
// metrics configuration.
func WithMetrics(m metrics.Metrics) Option {
	return func(n *Node) {
		n.metrics = m
	}
}

// WithVersion sets the version reported by status.
func WithVersion(v string) Option {
	return func(n *Node) {
		n.version = v
	}
}

// NewNode opens the stores named by cfg and commits the genesis file unless
// the stores already hold a chain. The node serves nothing until Start.
func NewNode(cfg *config.Config, opts ...Option) (*Node, error) {
	n := &Node{
		cfg:     cfg,
		version: "dev",
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.metrics == nil {
		n.metrics = metrics.NewNopMetrics()
		if cfg.Metrics.Enabled {
			n.metrics = metrics.NewPrometheusMetrics(cfg.Metrics.Namespace)
		}
	}

	nodeKey, err := loadOrGenerateKey(cfg.Node.NodeKeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading node key: %w", err)
	}
	publicKey, ok := nodeKey.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected public key type")
	}
	n.nodeKey = nodeKey
	n.nodeID = hex.EncodeToString(publicKey)

	genesis, err := ledger.LoadGenesis(cfg.Node.GenesisFile)
	if err != nil {
		return nil, err
	}

	if err := n.openStores(); err != nil {
		return nil, err
	}
	if err := n.initLedger(genesis, publicKey); err != nil {
		_ = n.closeStores()
		return nil, err
	}
	n.buildServices(genesis)
	if err := n.buildScheduler(); err != nil {
		_ = n.closeStores()
		return nil, err
	}
	if err := n.buildServers(); err != nil {
		_ = n.closeStores()
		return nil, err
	}
	if err := n.registerComponents(); err != nil {
		_ = n.closeStores()
		return nil, err
	}
	return n, nil
}

func (n *Node) openStores() error {
	cfg := n.cfg
	state, err := statestore.NewIAVLStore(cfg.StateStore.Path, cfg.StateStore.CacheSize)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	blocks, err := blockstore.Open(cfg.BlockStore.Backend, cfg.BlockStore.Path, cfg.BlockStore.CacheSize)
	if err != nil {
		_ = state.Close()
		return fmt.Errorf("opening block store: %w", err)
	}
	n.state = state
	n.blocks = blocks

	n.eventLog = events.NewLog(cfg.Events.LogCapacity)
	n.bus = events.NewBus(events.BusConfig{
		BufferSize:     cfg.Events.BufferSize,
		MaxSubscribers: cfg.Events.MaxSubscribers,
	})
	n.eventLog.SetBus(n.bus)

	n.mempool = mempool.NewSimpleMempool(cfg.Mempool.MaxTxs, cfg.Mempool.MaxBytes, cfg.Mempool.MaxTxSize)
	n.mempool.SetTxValidator(mempool.AcceptAllTxValidator)
	return nil
}

// initLedger commits genesis on an empty chain and resumes otherwise.
func (n *Node) initLedger(genesis *ledger.Genesis, publicKey ed25519.PublicKey) error {
	n.ledger = ledger.New(n.cfg.Node.ChainID, n.state, n.blocks, n.eventLog,
		ledger.WithMempool(n.mempool),
		ledger.WithEpochLength(n.cfg.Producer.EpochLength),
		ledger.WithProposer(proposerAddress(publicKey)),
		ledger.WithLogger(n.logger),
		ledger.WithMetrics(n.metrics))

	if n.blocks.Height() == 0 {
		if _, err := n.ledger.InitGenesis(genesis); err != nil {
			return fmt.Errorf("committing genesis: %w", err)
		}
		return nil
	}
	if genesis.ChainID != n.cfg.Node.ChainID {
		return fmt.Errorf("%w: genesis chain %s does not match %s", ledger.ErrInvalidGenesis, genesis.ChainID, n.cfg.Node.ChainID)
	}
	if stateHeight := n.state.LastBlockHeight(); stateHeight != n.blocks.Height() {
		return fmt.Errorf("%w: state at %d, blocks at %d", ledger.ErrStoresDiverged, stateHeight, n.blocks.Height())
	}
	n.ledger.SetConsensusParams(genesis.ConsensusParams)
	n.logger.Info("resuming chain", logging.Height(uint64(n.blocks.Height())))
	return nil
}

func (n *Node) buildServices(genesis *ledger.Genesis) {
	cfg := n.cfg
	n.root = query.Root()

	listeners := []string{cfg.RPC.ListenAddr}
	if cfg.GRPC.Enabled {
		listeners = append(listeners, cfg.GRPC.ListenAddr)
	}
	n.env = core.NewEnvironment(n.blocks, n.state, n.eventLog, n.root,
		core.WithMempool(n.mempool),
		core.WithConsensusParams(genesis.ConsensusParams),
		core.WithListeners(listeners...),
		core.WithReadPastHeightLimit(cfg.StateStore.ReadPastHeightLimit),
		core.WithNodeInfo(rpc.NodeInfo{
			ID:         n.nodeID,
			ListenAddr: cfg.RPC.ListenAddr,
			Network:    cfg.Node.ChainID,
			Version:    n.version,
			Moniker:    cfg.Node.Moniker,
		}),
		core.WithLogger(n.logger),
		core.WithMetrics(n.metrics))

	n.local = client.NewLocal(n.root, n.state, n.eventLog,
		client.WithService(n.env),
		client.WithReadPastHeightLimit(cfg.StateStore.ReadPastHeightLimit))
}

func (n *Node) buildServers() error {
	cfg := n.cfg
	rl := cfg.RPC.RateLimit
	limiterCfg := rpc.DefaultRateLimitConfig()
	limiterCfg.Enabled = rl.Enabled
	limiterCfg.GlobalRPS = rl.GlobalRPS
	limiterCfg.PerClientRPS = rl.PerClientRPS
	limiterCfg.Burst = rl.Burst
	limiterCfg.ExemptMethods = rl.ExemptMethods
	n.limiter = rpc.NewRateLimiter(limiterCfg)

	n.rpcServer = jsonrpc.NewServer(n.env, jsonrpc.Config{
		ListenAddr:     cfg.RPC.ListenAddr,
		MaxBodyBytes:   cfg.RPC.MaxBodyBytes,
		MaxHeaderBytes: cfg.RPC.MaxHeaderBytes,
		ReadTimeout:    cfg.RPC.ReadTimeout.Duration(),
		WriteTimeout:   cfg.RPC.WriteTimeout.Duration(),
		MaxBatchSize:   cfg.RPC.MaxBatchSize,
		BatchWorkers:   cfg.RPC.BatchWorkers,
	},
		jsonrpc.WithLogger(n.logger),
		jsonrpc.WithMetrics(n.metrics),
		jsonrpc.WithRateLimiter(n.limiter))

	if ws := cfg.RPC.Websocket; ws.Enabled {
		wsCfg := websocket.DefaultConfig()
		wsCfg.MaxClients = ws.MaxClients
		wsCfg.MaxSubscriptionsPerClient = ws.MaxSubscriptionsPerClient
		wsCfg.PingInterval = ws.PingInterval.Duration()
		wsCfg.WriteTimeout = ws.WriteTimeout.Duration()
		wsCfg.AllowedOrigins = ws.AllowedOrigins
		n.wsServer = websocket.NewServer(n.env, n.bus, wsCfg,
			websocket.WithLogger(n.logger),
			websocket.WithMetrics(n.metrics),
			websocket.WithRateLimiter(n.limiter))
		n.rpcServer.Handle(ws.Endpoint, n.wsServer.Handler())
	}

	if g := cfg.GRPC; g.Enabled {
		grpcCfg := qbgrpc.DefaultConfig()
		grpcCfg.ListenAddr = g.ListenAddr
		grpcCfg.MaxRecvMsgSize = g.MaxRecvMsgSize
		grpcCfg.MaxSendMsgSize = g.MaxSendMsgSize
		grpcCfg.MaxConcurrentStreams = g.MaxConcurrentStreams
		grpcCfg.Auth.Enabled = g.AuthEnabled
		grpcCfg.Auth.APIKeys = g.APIKeys
		if g.TLSCertFile != "" {
			grpcCfg.TLS = &qbgrpc.TLSConfig{CertFile: g.TLSCertFile, KeyFile: g.TLSKeyFile}
		}
		srv, err := qbgrpc.NewServer(n.env, n.bus, grpcCfg,
			qbgrpc.WithLogger(n.logger),
			qbgrpc.WithMetrics(n.metrics),
			qbgrpc.WithRateLimiter(n.limiter))
		if err != nil {
			_ = n.rpcServer.Stop()
			return fmt.Errorf("creating grpc server: %w", err)
		}
		n.grpcServer = srv
	}

	if cfg.Metrics.Enabled {
		if handler := n.metrics.HTTPHandler(); handler != nil {
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)
			n.metricsServer = &http.Server{
				Addr:              cfg.Metrics.ListenAddr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
		}
	}
	return nil
}

func (n *Node) buildScheduler() error {
	n.scheduler = cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)))

	if n.cfg.Producer.Enabled {
		sched, err := config.ParseSchedule(n.cfg.Producer.Schedule)
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidProducerSchedule, err)
		}
		n.scheduler.Schedule(sched, cron.FuncJob(n.produceBlock))
	}
	if keep := n.cfg.StateStore.KeepRecent; keep > 0 {
		sched, err := config.ParseSchedule(n.cfg.StateStore.PruneSchedule)
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidPruneSchedule, err)
		}
		n.scheduler.Schedule(sched, cron.FuncJob(n.pruneState))
	}
	return nil
}

// registerComponents adds the bus, servers, tracer provider and scheduler
// to the lifecycle container. The scheduler starts last so no block is
// produced before every server is up.
func (n *Node) registerComponents() error {
	n.components = container.New()
	var err error
	register := func(name string, c container.Component, deps ...string) {
		if err == nil {
			err = n.components.Register(name, c, deps...)
		}
	}

	register("tracing", container.Func{OnStart: n.startTracing, OnStop: n.stopTracing})
	register("bus", n.bus)
	jsonrpcDeps := []string{"tracing", "bus"}
	if n.wsServer != nil {
		register("websocket", n.wsServer, "tracing", "bus")
		jsonrpcDeps = append(jsonrpcDeps, "websocket")
	}
	register("jsonrpc", n.rpcServer, jsonrpcDeps...)
	schedulerDeps := []string{"jsonrpc"}
	if n.grpcServer != nil {
		register("grpc", n.grpcServer, "tracing", "bus")
		schedulerDeps = append(schedulerDeps, "grpc")
	}
	if n.metricsServer != nil {
		register("metrics", container.Func{OnStart: n.startMetrics, OnStop: n.stopMetrics})
	}
	register("scheduler", container.Func{
		OnStart: func() error {
			n.scheduler.Start()
			return nil
		},
		OnStop: func() error {
			// Wait for a running producer or pruning job before the
			// stores close.
			<-n.scheduler.Stop().Done()
			return nil
		},
	}, schedulerDeps...)
	return err
}

func (n *Node) startTracing() error {
	t := n.cfg.Tracing
	if !t.Enabled {
		return nil
	}
	shutdown, err := tracing.Setup(tracing.ProviderConfig{
		ServiceName:    "queryberry",
		ServiceVersion: n.version,
		Environment:    t.Environment,
		Exporter:       t.Exporter,
		Endpoint:       t.Endpoint,
		SampleRate:     t.SampleRate,
		Insecure:       t.Insecure,
	})
	if err != nil {
		return err
	}
	n.traceShutdown = shutdown
	return nil
}

func (n *Node) stopTracing() error {
	if n.traceShutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := n.traceShutdown(ctx)
	n.traceShutdown = nil
	if err != nil {
		return fmt.Errorf("flushing traces: %w", err)
	}
	return nil
}

func (n *Node) startMetrics() error {
	listener, err := net.Listen("tcp", n.metricsServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", n.metricsServer.Addr, err)
	}
	n.logger.Info("serving metrics", logging.Address(listener.Addr().String()))
	go func() {
		if err := n.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("metrics server stopped", logging.Error(err))
		}
	}()
	return nil
}

func (n *Node) stopMetrics() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return n.metricsServer.Shutdown(ctx)
}

// Start starts the node and all its components.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return ErrNodeAlreadyStarted
	}
	if err := n.components.StartAll(); err != nil {
		return err
	}

	n.started = true
	n.logger.Info("node started",
		logging.Height(uint64(n.ledger.Height())),
		logging.Address(n.rpcServer.Addr()))
	return nil
}

// Stop stops the node and all its components, then closes the stores.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return ErrNodeNotStarted
	}

	if err := n.components.StopAll(); err != nil {
		n.logger.Warn("stopping components", logging.Error(err))
	}
	if err := n.closeStores(); err != nil {
		return err
	}
	n.started = false
	n.logger.Info("node stopped")
	return nil
}

// Components returns the names of the node's components in startup order,
// or nil before Start.
func (n *Node) Components() []string {
	return n.components.StartupOrder()
}

func (n *Node) closeStores() error {
	if err := n.blocks.Close(); err != nil {
		return fmt.Errorf("closing block store: %w", err)
	}
	if err := n.state.Close(); err != nil {
		return fmt.Errorf("closing state store: %w", err)
	}
	return nil
}

// IsRunning returns whether the node is running.
func (n *Node) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.started
}

// NodeID returns the node's hex-encoded public key ID.
func (n *Node) NodeID() string {
	return n.nodeID
}

// Ledger returns the ledger.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// Mempool returns the mempool.
func (n *Node) Mempool() mempool.Mempool {
	return n.mempool
}

// Environment returns the RPC service shared by all transports.
func (n *Node) Environment() *core.Environment {
	return n.env
}

// Client returns an in-process client of the node.
func (n *Node) Client() *client.Local {
	return n.local
}

// RPCAddr returns the JSON-RPC listen address, or "" before Start.
func (n *Node) RPCAddr() string {
	return n.rpcServer.Addr()
}

// GRPCAddr returns the gRPC listen address, or "" when gRPC is disabled.
func (n *Node) GRPCAddr() string {
	if n.grpcServer == nil {
		return ""
	}
	return n.grpcServer.Addr()
}

func (n *Node) produceBlock() {
	if _, err := n.ledger.ProduceBlock(time.Now()); err != nil {
		n.logger.Error("producing block", logging.Error(err))
	}
}

func (n *Node) pruneState() {
	keep := n.cfg.StateStore.KeepRecent
	if err := n.ledger.Prune(keep); err != nil {
		n.logger.Error("pruning state", logging.Error(err))
		return
	}
	n.logger.Debug("pruned state", logging.Height(uint64(n.ledger.Height())))
}

// proposerAddress is the address recorded in produced block headers.
func proposerAddress(publicKey ed25519.PublicKey) []byte {
	hash := types.HashBytes(publicKey)
	return hash[:20]
}

// loadOrGenerateKey loads a private key from file or generates a new one.
// An empty path yields an ephemeral key.
func loadOrGenerateKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		_, privateKey, err := ed25519.GenerateKey(nil)
		return privateKey, err
	}

	// Try to load existing key
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) == ed25519.PrivateKeySize {
			return ed25519.PrivateKey(data), nil
		}
		// Try hex-encoded key
		decoded, decodeErr := hex.DecodeString(string(data))
		if decodeErr == nil && len(decoded) == ed25519.PrivateKeySize {
			return ed25519.PrivateKey(decoded), nil
		}
		return nil, fmt.Errorf("invalid key file: expected %d bytes", ed25519.PrivateKeySize)
	}

	// Generate new key
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	_, privateKey, genErr := ed25519.GenerateKey(nil)
	if genErr != nil {
		return nil, fmt.Errorf("generating key: %w", genErr)
	}

	// Save key
	if writeErr := os.WriteFile(path, []byte(privateKey), 0600); writeErr != nil {
		return nil, fmt.Errorf("saving key: %w", writeErr)
	}

	return privateKey, nil
}
