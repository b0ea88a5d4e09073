package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blockberries/queryberry/config"
	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/node"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node",
	Long: `Start the Queryberry node with the specified configuration.

The node will run until interrupted (Ctrl+C) or receives a termination signal.

Example:
  queryberry start --home ./node`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Initialize logger based on config
	logger, closeLog, err := createLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("Starting Queryberry node",
		"chain_id", cfg.Node.ChainID,
		"moniker", cfg.Node.Moniker,
		"version", Version,
	)

	// Create node
	n, err := node.NewNode(cfg, node.WithLogger(logger), node.WithVersion(Version))
	if err != nil {
		return fmt.Errorf("creating node: %w", err)
	}

	// Start node
	if err := n.Start(); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}

	logger.Info("Node started successfully",
		"node_id", n.NodeID(),
		"rpc", n.RPCAddr(),
		"grpc", n.GRPCAddr(),
	)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received signal, shutting down", "signal", sig)

	// Stop node
	if err := n.Stop(); err != nil {
		logger.Error("Error stopping node", "error", err)
		return fmt.Errorf("stopping node: %w", err)
	}

	logger.Info("Node stopped gracefully")
	return nil
}

// createLogger creates a logger based on configuration. The returned
// function closes the log file, if any.
func createLogger(cfg config.LoggingConfig) (*logging.Logger, func(), error) {
	var (
		w       io.Writer = os.Stderr
		closeFn           = func() {}
	)
	switch cfg.Output {
	case "stdout":
		w = os.Stdout
	case "stderr", "":
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}

	logger, err := logging.NewFromConfig(w, cfg.Level, cfg.Format)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return logger, closeFn, nil
}
