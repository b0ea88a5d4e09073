package grpc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/query/shell"
	"github.com/blockberries/queryberry/rpc"
	qbgrpc "github.com/blockberries/queryberry/rpc/grpc"
	qbtesting "github.com/blockberries/queryberry/testing"
	"github.com/blockberries/queryberry/types"
)

type fixture struct {
	chain  *qbtesting.TestChain
	server *qbtesting.TestGRPCServer
}

func newFixture(t *testing.T, cfg qbgrpc.Config, limiter *rpc.RateLimiter) *fixture {
	t.Helper()
	chain, err := qbtesting.NewTestChain(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = chain.Close() })

	srv, err := chain.ServeGRPC(cfg, limiter)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return &fixture{chain: chain, server: srv}
}

func (f *fixture) dial(t *testing.T, opts ...qbgrpc.ClientOption) *qbgrpc.Client {
	t.Helper()
	c, err := f.server.Dial(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDefaultConfig(t *testing.T) {
	cfg := qbgrpc.DefaultConfig()
	require.Equal(t, "tcp://127.0.0.1:26658", cfg.ListenAddr)
	require.Equal(t, 4*1024*1024, cfg.MaxRecvMsgSize)
	require.EqualValues(t, 100, cfg.MaxConcurrentStreams)
	require.False(t, cfg.Auth.Enabled)
	require.Contains(t, cfg.Auth.PublicMethods, "/queryberry.Node/health")
}

func TestFullMethod(t *testing.T) {
	require.Equal(t, "/queryberry.Node/abci_query", qbgrpc.FullMethod(rpc.MethodABCIQuery))
}

func TestCodec(t *testing.T) {
	codec := qbgrpc.NewCodec()
	require.Equal(t, qbgrpc.CodecName, codec.Name())

	in := &rpc.ABCIQueryRequest{Path: "shell/epoch", Data: []byte{1, 2}, Height: 7, Prove: true}
	data, err := codec.Marshal(in)
	require.NoError(t, err)

	out := new(rpc.ABCIQueryRequest)
	require.NoError(t, codec.Unmarshal(data, out))
	require.Equal(t, in, out)

	require.NoError(t, codec.Unmarshal(nil, new(rpc.HealthRequest)))
	require.Error(t, codec.Unmarshal(data, rpc.ABCIQueryRequest{}))
}

func TestClient_Call(t *testing.T) {
	f := newFixture(t, qbgrpc.DefaultConfig(), nil)
	require.NoError(t, f.chain.CommitN(2))
	c := f.dial(t)
	ctx := context.Background()

	var health rpc.HealthResponse
	require.NoError(t, c.Call(ctx, rpc.MethodHealth, nil, &health))
	require.Equal(t, "ok", health.Status)

	var block rpc.BlockResponse
	require.NoError(t, c.Call(ctx, rpc.MethodBlock, &rpc.BlockRequest{Height: rpc.HeightPtr(2)}, &block))
	require.NotNil(t, block.Block)
	require.EqualValues(t, 2, block.Block.Header.Height)

	require.NoError(t, c.Call(ctx, rpc.MethodStatus, &rpc.StatusRequest{}, nil))
}

func TestClient_NodeErrors(t *testing.T) {
	f := newFixture(t, qbgrpc.DefaultConfig(), nil)
	c := f.dial(t)

	err := c.Call(context.Background(), rpc.MethodBlock, &rpc.BlockRequest{Height: rpc.HeightPtr(99)}, new(rpc.BlockResponse))
	require.ErrorIs(t, err, rpc.ErrInvalidHeight)

	rpcErr, ok := rpc.IsRPCError(err)
	require.True(t, ok)
	require.Equal(t, rpc.CodeInvalidHeight, rpcErr.Code)
	require.NotEmpty(t, rpcErr.Message)

	err = c.Call(context.Background(), "nope", &rpc.HealthRequest{}, new(rpc.HealthResponse))
	require.ErrorIs(t, err, rpc.ErrMethodNotFound)
}

func TestClient_ContextCanceled(t *testing.T) {
	f := newFixture(t, qbgrpc.DefaultConfig(), nil)
	c := f.dial(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Call(ctx, rpc.MethodHealth, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_AsRemoteTransport(t *testing.T) {
	f := newFixture(t, qbgrpc.DefaultConfig(), nil)
	remote := client.NewRemote(f.dial(t))
	ctx := context.Background()

	token, err := client.Get[string](ctx, remote, shell.Prefix+"/native_token")
	require.NoError(t, err)
	require.Equal(t, f.chain.Genesis.NativeToken, token)

	_, err = remote.Request(ctx, "shell/nope", nil, types.LatestHeight, false)
	qerr, ok := types.IsQueryError(err)
	require.True(t, ok)
	require.Equal(t, types.CodePathNotFound, qerr.Code)
}

func TestServer_Auth(t *testing.T) {
	cfg := qbgrpc.DefaultConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"secret"}
	f := newFixture(t, cfg, nil)
	ctx := context.Background()

	anonymous := f.dial(t)
	require.NoError(t, anonymous.Call(ctx, rpc.MethodHealth, nil, nil), "public methods need no key")

	err := anonymous.Call(ctx, rpc.MethodABCIInfo, nil, nil)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	wrong := f.dial(t, qbgrpc.WithAPIKey("guess"))
	require.Equal(t, codes.Unauthenticated, status.Code(wrong.Call(ctx, rpc.MethodABCIInfo, nil, nil)))

	authed := f.dial(t, qbgrpc.WithAPIKey("secret"))
	require.NoError(t, authed.Call(ctx, rpc.MethodABCIInfo, nil, nil))

	f.server.Server.Authenticator().AddAPIKey("guess")
	require.NoError(t, wrong.Call(ctx, rpc.MethodABCIInfo, nil, nil))

	f.server.Server.Authenticator().RemoveAPIKey("secret")
	require.Equal(t, codes.Unauthenticated, status.Code(authed.Call(ctx, rpc.MethodABCIInfo, nil, nil)))
}

func TestServer_RateLimited(t *testing.T) {
	cfg := rpc.DefaultRateLimitConfig()
	cfg.Enabled = true
	cfg.PerClientRPS = 0.001
	cfg.Burst = 1
	f := newFixture(t, qbgrpc.DefaultConfig(), rpc.NewRateLimiter(cfg))
	c := f.dial(t)
	ctx := context.Background()

	require.NoError(t, c.Call(ctx, rpc.MethodStatus, nil, nil))
	err := c.Call(ctx, rpc.MethodStatus, nil, nil)
	require.ErrorIs(t, err, rpc.ErrRateLimited)

	// Exempt methods are never limited.
	require.NoError(t, c.Call(ctx, rpc.MethodHealth, nil, nil))
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t, qbgrpc.DefaultConfig(), nil)
	c := f.dial(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	evCh, err := c.Subscribe(ctx, "kind='NewBlock'")
	require.NoError(t, err)

	_, err = f.chain.Commit(nil)
	require.NoError(t, err)

	select {
	case ev := <-evCh:
		require.Equal(t, events.KindNewBlock, ev.Kind)
		require.Equal(t, f.chain.Height(), ev.Height)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-evCh:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return f.chain.Bus.NumSubscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribe_Rejected(t *testing.T) {
	f := newFixture(t, qbgrpc.DefaultConfig(), nil)
	c := f.dial(t)

	_, err := c.Subscribe(context.Background(), "height >>> 1")
	require.ErrorIs(t, err, rpc.ErrInvalidParams)

	require.NoError(t, f.chain.Bus.Stop())
	_, err = c.Subscribe(context.Background(), "all")
	require.ErrorIs(t, err, rpc.ErrMethodUnsupported)
}

func TestServer_StopEndsSubscriptions(t *testing.T) {
	f := newFixture(t, qbgrpc.DefaultConfig(), nil)
	c := f.dial(t)

	evCh, err := c.Subscribe(context.Background(), "all")
	require.NoError(t, err)

	f.server.Close()
	require.False(t, f.server.Server.IsRunning())

	select {
	case _, open := <-evCh:
		require.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription outlived the server")
	}
}

func TestServer_StartStop(t *testing.T) {
	chain, err := qbtesting.NewTestChain(nil)
	require.NoError(t, err)
	defer chain.Close()

	cfg := qbgrpc.DefaultConfig()
	cfg.ListenAddr = "tcp://127.0.0.1:0"
	srv, err := qbgrpc.NewServer(chain.Env, chain.Bus, cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	require.Eventually(t, srv.IsRunning, time.Second, 5*time.Millisecond)

	c, err := qbgrpc.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Call(context.Background(), rpc.MethodHealth, nil, nil))

	require.NoError(t, srv.Stop())
	require.False(t, srv.IsRunning())
	require.NoError(t, srv.Stop())
}
