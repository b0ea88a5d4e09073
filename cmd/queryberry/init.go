package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockberries/queryberry/config"
	"github.com/blockberries/queryberry/ledger"
)

var (
	initChainID  string
	initMoniker  string
	initBackend  string
	initGRPC     bool
	initOverride bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new node",
	Long: `Initialize a new Queryberry node home directory.

This command creates:
  - config.toml: Node and client configuration
  - genesis.json: Genesis state committed on first start
  - data/: Data directory for blocks and state

Example:
  queryberry init --home ./node --chain-id mychain --moniker mynode`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initChainID, "chain-id", "queryberry-devnet-1", "chain ID for the network")
	initCmd.Flags().StringVar(&initMoniker, "moniker", "", "node moniker (human-readable name)")
	initCmd.Flags().StringVar(&initBackend, "blockstore", config.BackendLevelDB, "block store backend (leveldb, badgerdb, memory)")
	initCmd.Flags().BoolVar(&initGRPC, "grpc", false, "enable the gRPC server")
	initCmd.Flags().BoolVar(&initOverride, "force", false, "override existing configuration")
}

func runInit(cmd *cobra.Command, args []string) error {
	// Check if config already exists
	path := configPath()
	if _, err := os.Stat(path); err == nil && !initOverride {
		return fmt.Errorf("%s already exists; use --force to override", path)
	}

	// Generate moniker if not provided
	moniker := initMoniker
	if moniker == "" {
		hostname, err := os.Hostname()
		if err != nil {
			moniker = "queryberry-node"
		} else {
			moniker = hostname
		}
	}

	// Create default config; data paths stay relative to the home directory.
	cfg := config.DefaultConfig()
	cfg.Node.ChainID = initChainID
	cfg.Node.Moniker = moniker
	cfg.BlockStore.Backend = initBackend
	cfg.GRPC.Enabled = initGRPC
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.WriteConfigFile(path, cfg); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	cfg.ResolvePaths(homeDir)
	if err := cfg.EnsureDataDirs(); err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Node.GenesisFile); os.IsNotExist(err) || initOverride {
		if err := ledger.WriteGenesis(cfg.Node.GenesisFile, ledger.DefaultGenesis(initChainID)); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized Queryberry node\n")
	fmt.Fprintf(out, "  Chain ID:    %s\n", initChainID)
	fmt.Fprintf(out, "  Moniker:     %s\n", moniker)
	fmt.Fprintf(out, "  Config:      %s\n", path)
	fmt.Fprintf(out, "  Genesis:     %s\n", cfg.Node.GenesisFile)
	fmt.Fprintf(out, "  Block store: %s\n", cfg.BlockStore.Backend)
	return nil
}
