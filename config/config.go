package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

// Client transports.
const (
	TransportHTTP      = "http"
	TransportWebsocket = "websocket"
	TransportGRPC      = "grpc"
)

// Block store backends.
const (
	BackendLevelDB  = "leveldb"
	BackendBadgerDB = "badgerdb"
	BackendMemory   = "memory"
)

// Config is the main configuration for a queryberry node and its clients.
type Config struct {
	Node       NodeConfig       `toml:"node"`
	RPC        RPCConfig        `toml:"rpc"`
	GRPC       GRPCConfig       `toml:"grpc"`
	Client     ClientConfig     `toml:"client"`
	Mempool    MempoolConfig    `toml:"mempool"`
	BlockStore BlockStoreConfig `toml:"blockstore"`
	StateStore StateStoreConfig `toml:"statestore"`
	Events     EventsConfig     `toml:"events"`
	Producer   ProducerConfig   `toml:"producer"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Tracing    TracingConfig    `toml:"tracing"`
	Logging    LoggingConfig    `toml:"logging"`
}

// NodeConfig contains node identity and chain configuration.
type NodeConfig struct {
	// ChainID is the unique identifier for the blockchain network.
	ChainID string `toml:"chain_id"`

	// Moniker is the human readable node name reported by status.
	Moniker string `toml:"moniker"`

	// GenesisFile is the path of the JSON genesis document committed on
	// first start.
	GenesisFile string `toml:"genesis_file"`

	// NodeKeyFile is the ed25519 node key, generated on first start. The
	// node ID and the proposer address derive from it.
	NodeKeyFile string `toml:"node_key_file"`
}

// RPCConfig contains the JSON-RPC server configuration.
type RPCConfig struct {
	// ListenAddr is the HTTP listen address, optionally prefixed with "tcp://".
	ListenAddr string `toml:"listen_addr"`

	// MaxBodyBytes is the maximum request body size.
	MaxBodyBytes int64 `toml:"max_body_bytes"`

	// MaxHeaderBytes is the maximum request header size.
	MaxHeaderBytes int `toml:"max_header_bytes"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout Duration `toml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout Duration `toml:"write_timeout"`

	// MaxBatchSize is the maximum number of requests in a batch.
	MaxBatchSize int `toml:"max_batch_size"`

	// BatchWorkers bounds concurrent execution of batch entries.
	BatchWorkers int `toml:"batch_workers"`

	// Websocket contains websocket endpoint configuration.
	Websocket WebsocketConfig `toml:"websocket"`

	// RateLimit applies to every transport.
	RateLimit RateLimitConfig `toml:"ratelimit"`
}

// WebsocketConfig contains websocket endpoint configuration.
type WebsocketConfig struct {
	// Enabled mounts the websocket endpoint on the JSON-RPC server.
	Enabled bool `toml:"enabled"`

	// Endpoint is the HTTP path of the websocket endpoint.
	Endpoint string `toml:"endpoint"`

	// MaxClients is the maximum number of connected clients. Zero means no limit.
	MaxClients int `toml:"max_clients"`

	// MaxSubscriptionsPerClient is the max subscriptions per client.
	MaxSubscriptionsPerClient int `toml:"max_subscriptions_per_client"`

	// PingInterval is the interval between pings.
	PingInterval Duration `toml:"ping_interval"`

	// WriteTimeout is the timeout for write operations.
	WriteTimeout Duration `toml:"write_timeout"`

	// AllowedOrigins restricts allowed origins. Empty means all allowed.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool `toml:"enabled"`

	// GlobalRPS is the overall requests per second for all clients.
	GlobalRPS float64 `toml:"global_rps"`

	// PerClientRPS is the requests per second per client address.
	PerClientRPS float64 `toml:"per_client_rps"`

	// Burst is the maximum per-client burst.
	Burst int `toml:"burst"`

	// ExemptMethods bypass rate limiting.
	ExemptMethods []string `toml:"exempt_methods"`
}

// GRPCConfig contains gRPC server configuration.
type GRPCConfig struct {
	// Enabled starts the gRPC server.
	Enabled bool `toml:"enabled"`

	// ListenAddr is the gRPC listen address.
	ListenAddr string `toml:"listen_addr"`

	// MaxRecvMsgSize is the maximum message size in bytes the server can receive.
	MaxRecvMsgSize int `toml:"max_recv_msg_size"`

	// MaxSendMsgSize is the maximum message size in bytes the server can send.
	MaxSendMsgSize int `toml:"max_send_msg_size"`

	// MaxConcurrentStreams is the maximum number of concurrent streams per connection.
	MaxConcurrentStreams uint32 `toml:"max_concurrent_streams"`

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`

	// AuthEnabled requires one of APIKeys on every non-public method.
	AuthEnabled bool     `toml:"auth_enabled"`
	APIKeys     []string `toml:"api_keys"`
}

// ClientConfig configures the client used by the CLI.
type ClientConfig struct {
	// Transport is "http", "websocket" or "grpc".
	Transport string `toml:"transport"`

	// Endpoints are the node addresses. The HTTP transport fails over
	// between them; the others use the first.
	Endpoints []string `toml:"endpoints"`

	// APIKey is sent to gRPC nodes requiring authentication.
	APIKey string `toml:"api_key"`

	// Timeout bounds a single call.
	Timeout Duration `toml:"timeout"`

	// MaxRetries is the number of retry rounds after a connection failure.
	MaxRetries int `toml:"max_retries"`

	// RetryBackoff is the delay before the first retry round.
	RetryBackoff Duration `toml:"retry_backoff"`
}

// MempoolConfig contains transaction mempool configuration.
type MempoolConfig struct {
	// MaxTxs is the maximum number of transactions in the mempool.
	MaxTxs int `toml:"max_txs"`

	// MaxBytes is the maximum total size of transactions in the mempool.
	MaxBytes int64 `toml:"max_bytes"`

	// MaxTxSize is the maximum size of a single transaction.
	MaxTxSize int64 `toml:"max_tx_size"`
}

// BlockStoreConfig contains block storage configuration.
type BlockStoreConfig struct {
	// Backend is the storage backend ("leveldb", "badgerdb" or "memory").
	Backend string `toml:"backend"`

	// Path is the directory path for block storage.
	Path string `toml:"path"`

	// CacheSize is the number of decoded blocks kept in memory.
	CacheSize int `toml:"cache_size"`
}

// StateStoreConfig contains state storage configuration.
type StateStoreConfig struct {
	// Path is the directory path for state storage.
	Path string `toml:"path"`

	// CacheSize is the IAVL node cache size.
	CacheSize int `toml:"cache_size"`

	// ReadPastHeightLimit rejects reads more than this many heights behind
	// the last committed one. Zero means no limit.
	ReadPastHeightLimit uint64 `toml:"read_past_height_limit"`

	// KeepRecent is the number of recent versions kept by pruning.
	// Zero disables pruning.
	KeepRecent int64 `toml:"keep_recent"`

	// PruneSchedule is the cron schedule of pruning runs.
	PruneSchedule string `toml:"prune_schedule"`
}

// EventsConfig contains event log and bus configuration.
type EventsConfig struct {
	// LogCapacity is the number of events retained for queries and search.
	LogCapacity int `toml:"log_capacity"`

	// BufferSize is the channel buffer of each subscription.
	BufferSize int `toml:"buffer_size"`

	// MaxSubscribers bounds subscriptions across all clients. Zero means unlimited.
	MaxSubscribers int `toml:"max_subscribers"`
}

// ProducerConfig contains the local block producer configuration. The
// producer commits mempool transactions on a schedule so that a
// standalone node has a moving chain to query.
type ProducerConfig struct {
	// Enabled starts the block producer.
	Enabled bool `toml:"enabled"`

	// Schedule is the cron schedule of block production, e.g. "@every 1s".
	Schedule string `toml:"schedule"`

	// EpochLength advances the epoch every n blocks. Zero keeps it fixed.
	EpochLength uint64 `toml:"epoch_length"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	// Enabled determines whether metrics collection is active.
	Enabled bool `toml:"enabled"`

	// Namespace is the Prometheus metrics namespace prefix.
	Namespace string `toml:"namespace"`

	// ListenAddr is the address to serve metrics on (e.g., ":9090").
	ListenAddr string `toml:"listen_addr"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled installs a tracer provider exporting RPC and query spans.
	Enabled bool `toml:"enabled"`

	// Exporter is "none", "stdout", "otlp-grpc", "otlp-http" or "zipkin".
	Exporter string `toml:"exporter"`

	// Endpoint is the exporter endpoint.
	Endpoint string `toml:"endpoint"`

	// SampleRate is the fraction of root spans sampled, from 0 to 1.
	SampleRate float64 `toml:"sample_rate"`

	// Environment is the deployment environment recorded on spans.
	Environment string `toml:"environment"`

	// Insecure disables TLS for the OTLP exporters.
	Insecure bool `toml:"insecure"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `toml:"level"`

	// Format is the log output format ("text" or "json").
	Format string `toml:"format"`

	// Output is the log output destination ("stdout", "stderr", or a file path).
	Output string `toml:"output"`
}

// Duration is a wrapper around time.Duration for TOML unmarshaling.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ChainID:     "queryberry-devnet-1",
			Moniker:     "queryberry",
			GenesisFile: "genesis.json",
			NodeKeyFile: "node_key",
		},
		RPC: RPCConfig{
			ListenAddr:     "tcp://127.0.0.1:26657",
			MaxBodyBytes:   1024 * 1024,
			MaxHeaderBytes: 1 << 20,
			ReadTimeout:    Duration(10 * time.Second),
			WriteTimeout:   Duration(10 * time.Second),
			MaxBatchSize:   20,
			BatchWorkers:   8,
			Websocket: WebsocketConfig{
				Enabled:                   true,
				Endpoint:                  "/websocket",
				MaxClients:                100,
				MaxSubscriptionsPerClient: 10,
				PingInterval:              Duration(30 * time.Second),
				WriteTimeout:              Duration(10 * time.Second),
			},
			RateLimit: RateLimitConfig{
				Enabled:       false,
				GlobalRPS:     1000,
				PerClientRPS:  100,
				Burst:         50,
				ExemptMethods: []string{"health"},
			},
		},
		GRPC: GRPCConfig{
			Enabled:              false,
			ListenAddr:           "tcp://127.0.0.1:26658",
			MaxRecvMsgSize:       4 * 1024 * 1024,
			MaxSendMsgSize:       4 * 1024 * 1024,
			MaxConcurrentStreams: 100,
		},
		Client: ClientConfig{
			Transport:    TransportHTTP,
			Endpoints:    []string{"http://127.0.0.1:26657"},
			Timeout:      Duration(15 * time.Second),
			MaxRetries:   2,
			RetryBackoff: Duration(200 * time.Millisecond),
		},
		Mempool: MempoolConfig{
			MaxTxs:    5000,
			MaxBytes:  1073741824, // 1GB
			MaxTxSize: 1024 * 1024,
		},
		BlockStore: BlockStoreConfig{
			Backend:   BackendLevelDB,
			Path:      "data/blockstore",
			CacheSize: 1000,
		},
		StateStore: StateStoreConfig{
			Path:          "data/state",
			CacheSize:     10000,
			KeepRecent:    0,
			PruneSchedule: "@every 10m",
		},
		Events: EventsConfig{
			LogCapacity: 10000,
			BufferSize:  100,
		},
		Producer: ProducerConfig{
			Enabled:     true,
			Schedule:    "@every 1s",
			EpochLength: 100,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			Namespace:  "queryberry",
			ListenAddr: ":9090",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "none",
			Endpoint:    "localhost:4317",
			SampleRate:  0.1,
			Environment: "development",
			Insecure:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// LoadConfig loads configuration from a TOML file.
// Missing values are filled with defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validation errors.
var (
	ErrEmptyChainID             = errors.New("chain_id cannot be empty")
	ErrEmptyGenesisFile         = errors.New("genesis_file cannot be empty")
	ErrEmptyRPCListenAddr       = errors.New("rpc listen_addr cannot be empty")
	ErrInvalidMaxBodyBytes      = errors.New("max_body_bytes must be positive")
	ErrInvalidRPCTimeout        = errors.New("rpc read_timeout and write_timeout must be positive")
	ErrInvalidMaxBatchSize      = errors.New("max_batch_size must be positive")
	ErrInvalidBatchWorkers      = errors.New("batch_workers must be positive")
	ErrEmptyWebsocketEndpoint   = errors.New("websocket endpoint must start with '/' when enabled")
	ErrInvalidMaxClients        = errors.New("websocket max_clients must be non-negative")
	ErrInvalidMaxSubscriptions  = errors.New("websocket max_subscriptions_per_client must be non-negative")
	ErrInvalidPingInterval      = errors.New("websocket ping_interval must be positive")
	ErrInvalidRateLimit         = errors.New("ratelimit per_client_rps and burst must be positive when enabled")
	ErrEmptyGRPCListenAddr      = errors.New("grpc listen_addr cannot be empty when enabled")
	ErrIncompleteTLS            = errors.New("grpc tls_cert_file and tls_key_file must be set together")
	ErrNoAPIKeys                = errors.New("grpc api_keys cannot be empty when auth is enabled")
	ErrInvalidClientTransport   = errors.New("client transport must be 'http', 'websocket' or 'grpc'")
	ErrNoClientEndpoints        = errors.New("client endpoints cannot be empty")
	ErrInvalidClientTimeout     = errors.New("client timeout must be positive")
	ErrInvalidClientRetries     = errors.New("client max_retries must be non-negative")
	ErrInvalidMaxTxs            = errors.New("max_txs must be positive")
	ErrInvalidMaxBytes          = errors.New("max_bytes must be positive")
	ErrInvalidMaxTxSize         = errors.New("max_tx_size must be positive and at most max_bytes")
	ErrInvalidBlockStoreBackend = errors.New("blockstore backend must be 'leveldb', 'badgerdb' or 'memory'")
	ErrEmptyBlockStorePath      = errors.New("blockstore path cannot be empty")
	ErrInvalidBlockCacheSize    = errors.New("blockstore cache_size must be non-negative")
	ErrEmptyStateStorePath      = errors.New("statestore path cannot be empty")
	ErrInvalidStateCacheSize    = errors.New("statestore cache_size must be non-negative")
	ErrInvalidKeepRecent        = errors.New("statestore keep_recent must be non-negative")
	ErrInvalidPruneSchedule     = errors.New("statestore prune_schedule is not a valid cron schedule")
	ErrInvalidEventLogCapacity  = errors.New("events log_capacity must be positive")
	ErrInvalidEventBufferSize   = errors.New("events buffer_size must be positive")
	ErrInvalidProducerSchedule  = errors.New("producer schedule is not a valid cron schedule")
	ErrEmptyMetricsNamespace    = errors.New("metrics namespace cannot be empty when enabled")
	ErrEmptyMetricsListenAddr   = errors.New("metrics listen_addr cannot be empty when enabled")
	ErrInvalidTracingExporter   = errors.New("tracing exporter must be one of: none, stdout, otlp-grpc, otlp-http, zipkin")
	ErrInvalidSampleRate        = errors.New("tracing sample_rate must be between 0 and 1")
	ErrInvalidLogLevel          = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("log format must be 'text' or 'json'")
	ErrEmptyLogOutput           = errors.New("log output cannot be empty")
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node config: %w", err)
	}
	if err := c.RPC.Validate(); err != nil {
		return fmt.Errorf("rpc config: %w", err)
	}
	if err := c.GRPC.Validate(); err != nil {
		return fmt.Errorf("grpc config: %w", err)
	}
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	if err := c.Mempool.Validate(); err != nil {
		return fmt.Errorf("mempool config: %w", err)
	}
	if err := c.BlockStore.Validate(); err != nil {
		return fmt.Errorf("blockstore config: %w", err)
	}
	if err := c.StateStore.Validate(); err != nil {
		return fmt.Errorf("statestore config: %w", err)
	}
	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events config: %w", err)
	}
	if err := c.Producer.Validate(); err != nil {
		return fmt.Errorf("producer config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate checks the node configuration for errors.
func (c *NodeConfig) Validate() error {
	if c.ChainID == "" {
		return ErrEmptyChainID
	}
	if c.GenesisFile == "" {
		return ErrEmptyGenesisFile
	}
	return nil
}

// Validate checks the JSON-RPC configuration for errors.
func (c *RPCConfig) Validate() error {
	if c.ListenAddr == "" {
		return ErrEmptyRPCListenAddr
	}
	if c.MaxBodyBytes <= 0 {
		return ErrInvalidMaxBodyBytes
	}
	if c.ReadTimeout.Duration() <= 0 || c.WriteTimeout.Duration() <= 0 {
		return ErrInvalidRPCTimeout
	}
	if c.MaxBatchSize <= 0 {
		return ErrInvalidMaxBatchSize
	}
	if c.BatchWorkers <= 0 {
		return ErrInvalidBatchWorkers
	}
	if err := c.Websocket.Validate(); err != nil {
		return fmt.Errorf("websocket: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}
	return nil
}

// Validate checks the websocket configuration for errors.
func (c *WebsocketConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Endpoint) == 0 || c.Endpoint[0] != '/' {
		return ErrEmptyWebsocketEndpoint
	}
	if c.MaxClients < 0 {
		return ErrInvalidMaxClients
	}
	if c.MaxSubscriptionsPerClient < 0 {
		return ErrInvalidMaxSubscriptions
	}
	if c.PingInterval.Duration() <= 0 {
		return ErrInvalidPingInterval
	}
	return nil
}

// Validate checks the rate limit configuration for errors.
func (c *RateLimitConfig) Validate() error {
	if c.Enabled && (c.PerClientRPS <= 0 || c.Burst <= 0) {
		return ErrInvalidRateLimit
	}
	return nil
}

// Validate checks the gRPC configuration for errors.
func (c *GRPCConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ListenAddr == "" {
		return ErrEmptyGRPCListenAddr
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return ErrIncompleteTLS
	}
	if c.AuthEnabled && len(c.APIKeys) == 0 {
		return ErrNoAPIKeys
	}
	return nil
}

// Validate checks the client configuration for errors.
func (c *ClientConfig) Validate() error {
	switch c.Transport {
	case TransportHTTP, TransportWebsocket, TransportGRPC:
	default:
		return ErrInvalidClientTransport
	}
	if len(c.Endpoints) == 0 {
		return ErrNoClientEndpoints
	}
	if c.Timeout.Duration() <= 0 {
		return ErrInvalidClientTimeout
	}
	if c.MaxRetries < 0 {
		return ErrInvalidClientRetries
	}
	return nil
}

// Validate checks the mempool configuration for errors.
func (c *MempoolConfig) Validate() error {
	if c.MaxTxs <= 0 {
		return ErrInvalidMaxTxs
	}
	if c.MaxBytes <= 0 {
		return ErrInvalidMaxBytes
	}
	if c.MaxTxSize <= 0 || c.MaxTxSize > c.MaxBytes {
		return ErrInvalidMaxTxSize
	}
	return nil
}

// Validate checks the block store configuration for errors.
func (c *BlockStoreConfig) Validate() error {
	switch c.Backend {
	case BackendLevelDB, BackendBadgerDB:
		if c.Path == "" {
			return ErrEmptyBlockStorePath
		}
	case BackendMemory:
	default:
		return ErrInvalidBlockStoreBackend
	}
	if c.CacheSize < 0 {
		return ErrInvalidBlockCacheSize
	}
	return nil
}

// Validate checks the state store configuration for errors.
func (c *StateStoreConfig) Validate() error {
	if c.Path == "" {
		return ErrEmptyStateStorePath
	}
	if c.CacheSize < 0 {
		return ErrInvalidStateCacheSize
	}
	if c.KeepRecent < 0 {
		return ErrInvalidKeepRecent
	}
	if c.KeepRecent > 0 {
		if _, err := ParseSchedule(c.PruneSchedule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPruneSchedule, err)
		}
	}
	return nil
}

// Validate checks the events configuration for errors.
func (c *EventsConfig) Validate() error {
	if c.LogCapacity <= 0 {
		return ErrInvalidEventLogCapacity
	}
	if c.BufferSize <= 0 {
		return ErrInvalidEventBufferSize
	}
	return nil
}

// Validate checks the producer configuration for errors.
func (c *ProducerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := ParseSchedule(c.Schedule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProducerSchedule, err)
	}
	return nil
}

// Validate checks the metrics configuration for errors.
func (c *MetricsConfig) Validate() error {
	if c.Enabled {
		if c.Namespace == "" {
			return ErrEmptyMetricsNamespace
		}
		if c.ListenAddr == "" {
			return ErrEmptyMetricsListenAddr
		}
	}
	return nil
}

// Validate checks the tracing configuration for errors.
func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Exporter {
	case "none", "stdout", "otlp-grpc", "otlp-http", "zipkin":
	default:
		return ErrInvalidTracingExporter
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return ErrInvalidSampleRate
	}
	return nil
}

// Validate checks the logging configuration for errors.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return ErrInvalidLogLevel
	}

	switch c.Format {
	case "text", "json":
		// Valid formats
	default:
		return ErrInvalidLogFormat
	}

	if c.Output == "" {
		return ErrEmptyLogOutput
	}

	return nil
}

// scheduleParser accepts standard five-field specs and descriptors such
// as "@every 1s".
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a cron schedule as used by the producer and pruning.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return scheduleParser.Parse(spec)
}

// WriteConfigFile writes the configuration to a TOML file.
func WriteConfigFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return nil
}

// EnsureDataDirs creates the data directories specified in the configuration.
func (c *Config) EnsureDataDirs() error {
	dirs := []string{
		filepath.Dir(c.Node.GenesisFile),
		c.StateStore.Path,
	}
	if c.BlockStore.Backend != BackendMemory {
		dirs = append(dirs, c.BlockStore.Path)
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	return nil
}

// ResolvePaths makes relative data paths relative to home.
func (c *Config) ResolvePaths(home string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(home, *p)
		}
	}
	resolve(&c.Node.GenesisFile)
	resolve(&c.Node.NodeKeyFile)
	resolve(&c.BlockStore.Path)
	resolve(&c.StateStore.Path)
}
