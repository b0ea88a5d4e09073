package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/queryberry/config"
	"github.com/blockberries/queryberry/ledger"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestInitCommand(t *testing.T) {
	home := t.TempDir()
	out := execute(t, "init", "--home", home, "--chain-id", "cli-chain", "--moniker", "cli", "--blockstore", config.BackendMemory)
	require.Contains(t, out, "cli-chain")

	cfg, err := config.LoadConfig(filepath.Join(home, "config.toml"))
	require.NoError(t, err)
	require.Equal(t, "cli-chain", cfg.Node.ChainID)
	require.Equal(t, "cli", cfg.Node.Moniker)
	require.Equal(t, config.BackendMemory, cfg.BlockStore.Backend)
	require.Equal(t, "genesis.json", cfg.Node.GenesisFile, "paths stay relative to the home directory")

	g, err := ledger.LoadGenesis(filepath.Join(home, "genesis.json"))
	require.NoError(t, err)
	require.Equal(t, "cli-chain", g.ChainID)

	// A second init without --force leaves the config alone.
	rootCmd.SetArgs([]string{"init", "--home", home})
	require.Error(t, rootCmd.Execute())
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	require.Contains(t, out, "Queryberry "+Version)
}
