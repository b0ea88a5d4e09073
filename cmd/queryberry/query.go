package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/types"
)

var (
	queryData   string
	queryHeight uint64
	queryProve  bool
)

var queryCmd = &cobra.Command{
	Use:   "query <path>",
	Short: "Query a ledger path",
	Long: `Send a path query to a running node and print the response.

The payload is printed hex-encoded, together with the diagnostic info
and the proof when one was requested.

Example:
  queryberry query shell/epoch
  queryberry query vp/token/balance/nam/validator-0 --height 10 --prove
  queryberry query shell/native_token --transport grpc --node 127.0.0.1:26658`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryData, "data", "", "hex-encoded request data")
	queryCmd.Flags().Uint64Var(&queryHeight, "height", 0, "height to query at (0 is the latest)")
	queryCmd.Flags().BoolVar(&queryProve, "prove", false, "request a proof")
	addClientFlags(queryCmd)
}

// queryOutput is the printed form of a query response.
type queryOutput struct {
	Path  string       `json:"path"`
	Data  string       `json:"data"`
	Info  string       `json:"info,omitempty"`
	Proof *types.Proof `json:"proof,omitempty"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	path := args[0]
	var data []byte
	if queryData != "" {
		decoded, err := hex.DecodeString(queryData)
		if err != nil {
			return fmt.Errorf("decoding --data: %w", err)
		}
		data = decoded
	}

	return withClient(cmd, func(ctx context.Context, c *client.Remote) error {
		resp, err := c.Request(ctx, path, data, types.Height(queryHeight), queryProve)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(queryOutput{
			Path:  path,
			Data:  hex.EncodeToString(resp.Data),
			Info:  resp.Info,
			Proof: resp.Proof,
		})
	})
}
