package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockberries/queryberry/client"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the node status",
	Long: `Query the status of a running Queryberry node.

Example:
  queryberry status
  queryberry status --node http://localhost:26657`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	addClientFlags(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *client.Remote) error {
		status, err := client.Status(ctx, c)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}

		// Pretty print status
		fmt.Fprintln(out, "Node Status")
		fmt.Fprintln(out, "===========")
		fmt.Fprintf(out, "Node ID:         %s\n", status.NodeInfo.ID)
		fmt.Fprintf(out, "Network:         %s\n", status.NodeInfo.Network)
		fmt.Fprintf(out, "Moniker:         %s\n", status.NodeInfo.Moniker)
		fmt.Fprintf(out, "Version:         %s\n", status.NodeInfo.Version)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sync Info")
		fmt.Fprintln(out, "---------")
		fmt.Fprintf(out, "Latest Height:   %d\n", status.SyncInfo.LatestBlockHeight)
		fmt.Fprintf(out, "Latest Hash:     %s\n", status.SyncInfo.LatestBlockHash)
		fmt.Fprintf(out, "Latest App Hash: %s\n", status.SyncInfo.LatestAppHash)
		fmt.Fprintf(out, "Earliest Height: %d\n", status.SyncInfo.EarliestBlockHeight)
		fmt.Fprintf(out, "Catching Up:     %v\n", status.SyncInfo.CatchingUp)
		return nil
	})
}
