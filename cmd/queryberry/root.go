package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blockberries/queryberry/config"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"

	// Global flags
	homeDir string
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "queryberry",
	Short: "Queryberry query node",
	Long: `Queryberry serves path-addressed ledger queries over JSON-RPC,
websocket and gRPC, and queries running nodes from the command line.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", ".", "node home directory")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default <home>/config.toml)")

	// Add subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Queryberry %s\n", Version)
		fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Built:      %s\n", BuildTime)
	},
}

// configPath returns the config file path selected by the global flags.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return filepath.Join(homeDir, "config.toml")
}

// loadConfig loads the configuration and resolves its data paths against
// the home directory.
func loadConfig() (*config.Config, error) {
	path := configPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'queryberry init')", path)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.ResolvePaths(homeDir)
	return cfg, nil
}
