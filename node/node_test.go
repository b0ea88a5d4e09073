package node

import (
	"context"
	"crypto/ed25519"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/config"
	"github.com/blockberries/queryberry/ledger"
	"github.com/blockberries/queryberry/query/shell"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/rpc/jsonrpc"
	"github.com/blockberries/queryberry/types"
)

func TestLoadOrGenerateKey_Generate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node_key")

	// Should generate new key
	key, err := loadOrGenerateKey(path)
	require.NoError(t, err)
	require.Len(t, key, ed25519.PrivateKeySize)

	// Key should be saved to file
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte(key), data)
}

func TestLoadOrGenerateKey_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node_key")

	// Generate a key
	_, originalKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	// Save it
	err = os.WriteFile(path, originalKey, 0600)
	require.NoError(t, err)

	// Load should return same key
	key, err := loadOrGenerateKey(path)
	require.NoError(t, err)
	require.Equal(t, originalKey, key)
}

func TestLoadOrGenerateKey_LoadHex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node_key")

	// Generate a key
	_, originalKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	// Save as hex
	hexKey := make([]byte, len(originalKey)*2)
	for i, b := range originalKey {
		hexKey[i*2] = "0123456789abcdef"[b>>4]
		hexKey[i*2+1] = "0123456789abcdef"[b&0x0f]
	}
	err = os.WriteFile(path, hexKey, 0600)
	require.NoError(t, err)

	// Load should return same key
	key, err := loadOrGenerateKey(path)
	require.NoError(t, err)
	require.Equal(t, originalKey, key)
}

func TestLoadOrGenerateKey_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node_key")

	// Write invalid data
	err := os.WriteFile(path, []byte("invalid"), 0600)
	require.NoError(t, err)

	// Should fail
	_, err = loadOrGenerateKey(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid key file")
}

func TestLoadOrGenerateKey_Ephemeral(t *testing.T) {
	a, err := loadOrGenerateKey("")
	require.NoError(t, err)
	b, err := loadOrGenerateKey("")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestProposerAddress(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	addr := proposerAddress(pub)
	require.Len(t, addr, 20)
	require.Equal(t, addr, proposerAddress(pub))
}

// testConfig returns a config rooted at a temp dir with a written genesis,
// listening on ephemeral ports and with the producer disabled.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	home := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Node.ChainID = "node-test"
	cfg.ResolvePaths(home)
	cfg.RPC.ListenAddr = "tcp://127.0.0.1:0"
	cfg.GRPC.ListenAddr = "tcp://127.0.0.1:0"
	cfg.Producer.Enabled = false
	require.NoError(t, cfg.EnsureDataDirs())
	require.NoError(t, ledger.WriteGenesis(cfg.Node.GenesisFile, ledger.DefaultGenesis(cfg.Node.ChainID)))
	return cfg
}

func TestNewNode_MissingGenesis(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.Remove(cfg.Node.GenesisFile))

	_, err := NewNode(cfg)
	require.Error(t, err)
}

func TestNewNode_GenesisChainMismatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Node.ChainID = "other-chain"

	_, err := NewNode(cfg)
	require.ErrorIs(t, err, ledger.ErrInvalidGenesis)
}

func TestNode_StartFailureRollsBack(t *testing.T) {
	cfg := testConfig(t)
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = busy.Addr().String()

	n, err := NewNode(cfg)
	require.NoError(t, err)

	err = n.Start()
	require.ErrorContains(t, err, "starting metrics")
	require.False(t, n.IsRunning())
	require.Nil(t, n.Components())
	require.NoError(t, n.closeStores())
}

func TestNode_StopNotStarted(t *testing.T) {
	n := &Node{}

	err := n.Stop()
	require.ErrorIs(t, err, ErrNodeNotStarted)
}

func TestNode_StartServeStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.GRPC.Enabled = true

	n, err := NewNode(cfg, WithVersion("v1.2.3"))
	require.NoError(t, err)
	require.Equal(t, types.Height(1), n.Ledger().Height())
	require.Empty(t, n.RPCAddr())

	require.NoError(t, n.Start())
	require.True(t, n.IsRunning())
	require.ErrorIs(t, n.Start(), ErrNodeAlreadyStarted)
	require.NotEmpty(t, n.GRPCAddr())
	require.Equal(t, []string{"tracing", "bus", "websocket", "grpc", "jsonrpc", "scheduler"}, n.Components())

	ctx := context.Background()
	token, err := client.Get[string](ctx, n.Client(), shell.Prefix+"/native_token")
	require.NoError(t, err)
	require.Equal(t, "nam", token)

	clientCfg := jsonrpc.DefaultClientConfig()
	clientCfg.Endpoints = []string{"http://" + n.RPCAddr()}
	transport, err := jsonrpc.NewHTTPClient(clientCfg)
	require.NoError(t, err)
	remote := client.NewRemote(transport)
	defer remote.Close()

	status, err := client.Status(ctx, remote)
	require.NoError(t, err)
	require.Equal(t, n.NodeID(), status.NodeInfo.ID)
	require.Equal(t, "v1.2.3", status.NodeInfo.Version)
	require.Equal(t, "node-test", status.NodeInfo.Network)
	require.EqualValues(t, 1, status.SyncInfo.LatestBlockHeight)

	remoteToken, err := client.Get[string](ctx, remote, shell.Prefix+"/native_token")
	require.NoError(t, err)
	require.Equal(t, token, remoteToken)

	require.NoError(t, n.Stop())
	require.False(t, n.IsRunning())
}

func TestNode_ResumesChain(t *testing.T) {
	cfg := testConfig(t)

	n, err := NewNode(cfg)
	require.NoError(t, err)
	require.NoError(t, n.Start())
	firstID := n.NodeID()

	_, err = n.Ledger().ProduceBlock(time.Now())
	require.NoError(t, err)
	require.NoError(t, n.Stop())

	n, err = NewNode(cfg)
	require.NoError(t, err)
	require.Equal(t, types.Height(2), n.Ledger().Height(), "genesis is not committed twice")
	require.Equal(t, firstID, n.NodeID(), "node key is reused")

	require.NoError(t, n.Start())
	defer n.Stop()

	resp, err := client.Perform[*rpc.BlockResponse](context.Background(), n.Client(), &rpc.BlockRequest{Height: rpc.HeightPtr(2)})
	require.NoError(t, err)
	require.EqualValues(t, 2, resp.Block.Header.Height)
	require.Len(t, resp.Block.Header.ProposerAddress, 20)
}

func TestNode_ProducesBlocks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Producer.Enabled = true
	cfg.Producer.Schedule = "@every 100ms"
	cfg.StateStore.KeepRecent = 2
	cfg.StateStore.PruneSchedule = "@every 200ms"

	n, err := NewNode(cfg)
	require.NoError(t, err)
	require.NoError(t, n.Start())
	defer n.Stop()

	require.NoError(t, n.Mempool().AddTx(types.Tx("hello")))

	require.Eventually(t, func() bool {
		return n.Ledger().Height() >= 3 && n.Mempool().Size() == 0
	}, 5*time.Second, 20*time.Millisecond)
}
