package websocket_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/query/shell"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/rpc/websocket"
	"github.com/blockberries/queryberry/types"
)

func dialClient(t *testing.T, f *fixture) *websocket.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := websocket.Dial(ctx, f.url())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Call(t *testing.T) {
	f := newFixture(t, websocket.DefaultConfig())
	c := dialClient(t, f)

	var status rpc.StatusResponse
	require.NoError(t, c.Call(context.Background(), rpc.MethodStatus, &rpc.StatusRequest{}, &status))
	require.EqualValues(t, 1, status.SyncInfo.LatestBlockHeight)

	err := c.Call(context.Background(), rpc.MethodBlock, &rpc.BlockRequest{Height: rpc.HeightPtr(50)}, new(rpc.BlockResponse))
	require.ErrorIs(t, err, rpc.ErrInvalidHeight)
}

func TestClient_ConcurrentCalls(t *testing.T) {
	f := newFixture(t, websocket.DefaultConfig())
	c := dialClient(t, f)

	errCh := make(chan error, 16)
	for range 16 {
		go func() {
			var health rpc.HealthResponse
			errCh <- c.Call(context.Background(), rpc.MethodHealth, &rpc.HealthRequest{}, &health)
		}()
	}
	for range 16 {
		require.NoError(t, <-errCh)
	}
}

func TestClient_Subscribe(t *testing.T) {
	f := newFixture(t, websocket.DefaultConfig())
	c := dialClient(t, f)
	ctx := context.Background()

	evCh, err := c.Subscribe(ctx, "kind='applied'")
	require.NoError(t, err)

	_, err = c.Subscribe(ctx, "kind='applied'")
	require.Error(t, err)

	tx := types.Tx("transfer")
	_, err = f.chain.Commit([]types.Tx{tx})
	require.NoError(t, err)

	select {
	case ev := <-evCh:
		require.Equal(t, events.KindApplied, ev.Kind)
		hash, ok := ev.Attr(events.AttributeKeyHash)
		require.True(t, ok)
		require.Equal(t, types.HashTx(tx).String(), hash)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	require.NoError(t, c.Unsubscribe(ctx, "kind='applied'"))
	_, open := <-evCh
	require.False(t, open)
}

func TestClient_SubscribeRejected(t *testing.T) {
	cfg := websocket.DefaultConfig()
	cfg.MaxSubscriptionsPerClient = 1
	f := newFixture(t, cfg)
	c := dialClient(t, f)
	ctx := context.Background()

	_, err := c.Subscribe(ctx, "kind='accepted'")
	require.NoError(t, err)

	_, err = c.Subscribe(ctx, "kind='applied'")
	require.ErrorIs(t, err, rpc.ErrSubscription)
}

func TestClient_Close(t *testing.T) {
	f := newFixture(t, websocket.DefaultConfig())
	c := dialClient(t, f)

	evCh, err := c.Subscribe(context.Background(), "all")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	_, open := <-evCh
	require.False(t, open)

	err = c.Call(context.Background(), rpc.MethodHealth, &rpc.HealthRequest{}, nil)
	require.ErrorIs(t, err, websocket.ErrClientClosed)
}

func TestClient_ServerStop(t *testing.T) {
	f := newFixture(t, websocket.DefaultConfig())
	c := dialClient(t, f)
	require.NoError(t, c.Call(context.Background(), rpc.MethodHealth, &rpc.HealthRequest{}, nil))

	require.NoError(t, f.server.Stop())
	require.Eventually(t, func() bool {
		return c.Call(context.Background(), rpc.MethodHealth, &rpc.HealthRequest{}, nil) != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_AsRemoteTransport(t *testing.T) {
	f := newFixture(t, websocket.DefaultConfig())
	remote := client.NewRemote(dialClient(t, f))
	ctx := context.Background()

	token, err := client.Get[string](ctx, remote, shell.Prefix+"/native_token")
	require.NoError(t, err)
	require.Equal(t, f.chain.Genesis.NativeToken, token)

	_, err = remote.Request(ctx, "shell/nope", nil, types.LatestHeight, false)
	qerr, ok := types.IsQueryError(err)
	require.True(t, ok)
	require.Equal(t, types.CodePathNotFound, qerr.Code)
}
