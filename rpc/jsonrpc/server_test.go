package jsonrpc_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/rpc/core"
	"github.com/blockberries/queryberry/rpc/jsonrpc"
	qbtesting "github.com/blockberries/queryberry/testing"
)

func newChain(t *testing.T) *qbtesting.TestChain {
	t.Helper()
	chain, err := qbtesting.NewTestChain(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = chain.Close() })
	return chain
}

func serve(t *testing.T, limiter *rpc.RateLimiter) (*qbtesting.TestChain, *qbtesting.TestServer) {
	t.Helper()
	chain := newChain(t)
	srv := chain.Serve(limiter)
	t.Cleanup(srv.Close)
	return chain, srv
}

func post(t *testing.T, url, body string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode(t *testing.T, data []byte) jsonrpc.Response {
	t.Helper()
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestDefaultConfig(t *testing.T) {
	cfg := jsonrpc.DefaultConfig()
	require.Equal(t, "tcp://127.0.0.1:26657", cfg.ListenAddr)
	require.Equal(t, int64(1024*1024), cfg.MaxBodyBytes)
	require.Equal(t, 20, cfg.MaxBatchSize)
	require.Positive(t, cfg.BatchWorkers)
}

func TestServer_SingleCall(t *testing.T) {
	_, srv := serve(t, nil)

	status, data := post(t, srv.URL(), `{"jsonrpc":"2.0","method":"health","id":1}`)
	require.Equal(t, http.StatusOK, status)

	resp := decode(t, data)
	require.Nil(t, resp.Error)
	require.JSONEq(t, "1", string(resp.ID))

	var health rpc.HealthResponse
	require.NoError(t, json.Unmarshal(resp.Result, &health))
	require.Equal(t, core.HealthOK, health.Status)
}

func TestServer_TypedParams(t *testing.T) {
	chain, srv := serve(t, nil)
	require.NoError(t, chain.CommitN(2))

	status, data := post(t, srv.URL(), `{"jsonrpc":"2.0","method":"block","params":{"height":2},"id":"a"}`)
	require.Equal(t, http.StatusOK, status)

	resp := decode(t, data)
	require.Nil(t, resp.Error)
	require.JSONEq(t, `"a"`, string(resp.ID))

	var block rpc.BlockResponse
	require.NoError(t, json.Unmarshal(resp.Result, &block))
	require.NotNil(t, block.Block)
	require.EqualValues(t, 2, block.Block.Header.Height)
}

func TestServer_Errors(t *testing.T) {
	_, srv := serve(t, nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"parse error", `{not json`, rpc.CodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","method":"health","id":1}`, rpc.CodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, rpc.CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"nope","id":1}`, rpc.CodeMethodNotFound},
		{"invalid params", `{"jsonrpc":"2.0","method":"block","params":{"height":"x"},"id":1}`, rpc.CodeInvalidParams},
		{"height ahead of chain", `{"jsonrpc":"2.0","method":"block","params":{"height":99},"id":1}`, rpc.CodeInvalidHeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := post(t, srv.URL(), tt.body)
			require.Equal(t, http.StatusOK, status)

			resp := decode(t, data)
			require.NotNil(t, resp.Error)
			require.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestServer_Notification(t *testing.T) {
	_, srv := serve(t, nil)

	status, data := post(t, srv.URL(), `{"jsonrpc":"2.0","method":"health"}`)
	require.Equal(t, http.StatusNoContent, status)
	require.Empty(t, data)
}

func TestServer_Batch(t *testing.T) {
	_, srv := serve(t, nil)

	body := `[
		{"jsonrpc":"2.0","method":"health","id":1},
		{"jsonrpc":"2.0","method":"status"},
		{"jsonrpc":"2.0","method":"nope","id":2},
		{"jsonrpc":"2.0","method":"abci_info","id":3}
	]`
	status, data := post(t, srv.URL(), body)
	require.Equal(t, http.StatusOK, status)

	var batch jsonrpc.BatchResponse
	require.NoError(t, json.Unmarshal(data, &batch))
	require.Len(t, batch, 3)
	require.JSONEq(t, "1", string(batch[0].ID))
	require.Nil(t, batch[0].Error)
	require.JSONEq(t, "2", string(batch[1].ID))
	require.Equal(t, rpc.CodeMethodNotFound, batch[1].Error.Code)
	require.JSONEq(t, "3", string(batch[2].ID))
	require.Nil(t, batch[2].Error)
}

func TestServer_BatchLimits(t *testing.T) {
	_, srv := serve(t, nil)

	status, data := post(t, srv.URL(), `[]`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, rpc.CodeInvalidRequest, decode(t, data).Error.Code)

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := range jsonrpc.DefaultConfig().MaxBatchSize + 1 {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"jsonrpc":"2.0","method":"health","id":1}`)
	}
	buf.WriteByte(']')
	status, data = post(t, srv.URL(), buf.String())
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, rpc.CodeInvalidRequest, decode(t, data).Error.Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	_, srv := serve(t, nil)

	resp, err := http.Get(srv.URL())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_RateLimited(t *testing.T) {
	cfg := rpc.DefaultRateLimitConfig()
	cfg.Enabled = true
	cfg.PerClientRPS = 0.001
	cfg.Burst = 1
	_, srv := serve(t, rpc.NewRateLimiter(cfg))

	_, data := post(t, srv.URL(), `{"jsonrpc":"2.0","method":"status","id":1}`)
	require.Nil(t, decode(t, data).Error)

	status, data := post(t, srv.URL(), `{"jsonrpc":"2.0","method":"status","id":2}`)
	require.Equal(t, http.StatusOK, status)
	resp := decode(t, data)
	require.NotNil(t, resp.Error)
	require.Equal(t, rpc.CodeRateLimited, resp.Error.Code)

	// Exempt methods are never limited.
	_, data = post(t, srv.URL(), `{"jsonrpc":"2.0","method":"health","id":3}`)
	require.Nil(t, decode(t, data).Error)
}

func TestServer_StartStop(t *testing.T) {
	chain := newChain(t)

	cfg := jsonrpc.DefaultConfig()
	cfg.ListenAddr = "tcp://127.0.0.1:0"
	srv := jsonrpc.NewServer(chain.Env, cfg)
	require.Empty(t, srv.Addr())

	require.NoError(t, srv.Start())
	require.True(t, srv.IsRunning())
	require.NotEmpty(t, srv.Addr())

	status, data := post(t, "http://"+srv.Addr(), `{"jsonrpc":"2.0","method":"health","id":1}`)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, decode(t, data).Error)

	require.NoError(t, srv.Stop())
	require.False(t, srv.IsRunning())
	require.NoError(t, srv.Stop())
}
