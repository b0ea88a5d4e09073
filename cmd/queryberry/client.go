package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/config"
	qbgrpc "github.com/blockberries/queryberry/rpc/grpc"
	"github.com/blockberries/queryberry/rpc/jsonrpc"
	"github.com/blockberries/queryberry/rpc/websocket"
)

// Client flags shared by the query and status commands.
var (
	clientNode      string
	clientTransport string
	clientAPIKey    string
)

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&clientNode, "node", "", "node endpoint (default from config)")
	cmd.Flags().StringVar(&clientTransport, "transport", "", "transport: http, websocket or grpc (default from config)")
	cmd.Flags().StringVar(&clientAPIKey, "api-key", "", "API key for gRPC nodes requiring authentication")
}

// clientConfig returns the client configuration from the config file, or
// the defaults when there is none, with the command line flags applied.
func clientConfig() (config.ClientConfig, error) {
	cfg := config.DefaultConfig().Client
	if _, err := os.Stat(configPath()); err == nil {
		loaded, err := config.LoadConfig(configPath())
		if err != nil {
			return cfg, err
		}
		cfg = loaded.Client
	}
	if clientNode != "" {
		cfg.Endpoints = []string{clientNode}
	}
	if clientTransport != "" {
		cfg.Transport = clientTransport
	}
	if clientAPIKey != "" {
		cfg.APIKey = clientAPIKey
	}
	return cfg, cfg.Validate()
}

// newClient connects a Remote client over the configured transport.
func newClient(ctx context.Context, cfg config.ClientConfig) (*client.Remote, error) {
	var transport client.Transport
	switch cfg.Transport {
	case config.TransportHTTP:
		httpCfg := jsonrpc.DefaultClientConfig()
		httpCfg.Endpoints = cfg.Endpoints
		httpCfg.Timeout = cfg.Timeout.Duration()
		httpCfg.MaxRetries = cfg.MaxRetries
		httpCfg.RetryBackoff = cfg.RetryBackoff.Duration()
		c, err := jsonrpc.NewHTTPClient(httpCfg)
		if err != nil {
			return nil, err
		}
		transport = c
	case config.TransportWebsocket:
		c, err := websocket.Dial(ctx, cfg.Endpoints[0])
		if err != nil {
			return nil, err
		}
		transport = c
	case config.TransportGRPC:
		c, err := qbgrpc.Dial(cfg.Endpoints[0], qbgrpc.WithAPIKey(cfg.APIKey))
		if err != nil {
			return nil, err
		}
		transport = c
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidClientTransport, cfg.Transport)
	}
	return client.NewRemote(transport), nil
}

// withClient runs fn with a connected client bounded by the client timeout.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Remote) error) error {
	cfg, err := clientConfig()
	if err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout.Duration())
	defer cancel()

	c, err := newClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to node: %w", err)
	}
	defer c.Close()
	return fn(ctx, c)
}
