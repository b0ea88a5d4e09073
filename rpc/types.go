package rpc

import (
	"github.com/blockberries/queryberry/types"
)

// Method names served by the node.
const (
	MethodABCIInfo        = "abci_info"
	MethodABCIQuery       = "abci_query"
	MethodBlock           = "block"
	MethodBlockResults    = "block_results"
	MethodBlockSearch     = "block_search"
	MethodBlockchain      = "blockchain"
	MethodBroadcastTxSync = "broadcast_tx_sync"
	MethodCommit          = "commit"
	MethodConsensusParams = "consensus_params"
	MethodConsensusState  = "consensus_state"
	MethodHealth          = "health"
	MethodNetInfo         = "net_info"
	MethodStatus          = "status"
	MethodTxSearch        = "tx_search"
)

// Search orderings accepted by BlockSearch and TxSearch.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Request is a typed consensus-native RPC request.
// Every request knows its method name and how to allocate its response.
type Request interface {
	Method() string
	NewResponse() any
}

// ABCIInfoRequest asks for application information.
type ABCIInfoRequest struct{}

// ABCIInfo describes the application behind the node.
type ABCIInfo struct {
	Data             string     `json:"data" cramberry:"1"`
	Version          string     `json:"version" cramberry:"2"`
	AppVersion       uint64     `json:"app_version" cramberry:"3"`
	LastBlockHeight  int64      `json:"last_block_height" cramberry:"4"`
	LastBlockAppHash types.Hash `json:"last_block_app_hash" cramberry:"5"`
}

// ABCIInfoResponse is the result of abci_info.
type ABCIInfoResponse struct {
	Response ABCIInfo `json:"response" cramberry:"1"`
}

// ABCIQueryRequest carries a path query over the wire.
// Height 0 means the latest committed height.
type ABCIQueryRequest struct {
	Path   string `json:"path" cramberry:"1"`
	Data   []byte `json:"data" cramberry:"2"`
	Height int64  `json:"height" cramberry:"3"`
	Prove  bool   `json:"prove" cramberry:"4"`
}

// ResponseQuery is the wire form of a served path query.
type ResponseQuery struct {
	Code      types.ResultCode `json:"code" cramberry:"1"`
	Log       string           `json:"log" cramberry:"2"`
	Info      string           `json:"info" cramberry:"3"`
	Index     int64            `json:"index" cramberry:"4"`
	Key       []byte           `json:"key" cramberry:"5"`
	Value     []byte           `json:"value" cramberry:"6"`
	ProofOps  *types.Proof     `json:"proof_ops,omitempty" cramberry:"7"`
	Height    int64            `json:"height" cramberry:"8"`
	Codespace string           `json:"codespace" cramberry:"9"`
}

// ABCIQueryResponse is the result of abci_query.
type ABCIQueryResponse struct {
	Response ResponseQuery `json:"response" cramberry:"1"`
}

// BlockRequest asks for a block. A nil height selects the latest block.
type BlockRequest struct {
	Height *int64 `json:"height,omitempty" cramberry:"1"`
}

// BlockID identifies a block by hash.
type BlockID struct {
	Hash types.Hash `json:"hash" cramberry:"1"`
}

// BlockResponse is the result of block.
type BlockResponse struct {
	BlockID BlockID      `json:"block_id" cramberry:"1"`
	Block   *types.Block `json:"block" cramberry:"2"`
}

// BlockResultsRequest asks for the results of a block.
// A nil height selects the latest block.
type BlockResultsRequest struct {
	Height *int64 `json:"height,omitempty" cramberry:"1"`
}

// BlockResultsResponse is the result of block_results.
type BlockResultsResponse struct {
	Height     int64            `json:"height" cramberry:"1"`
	TxsResults []types.TxResult `json:"txs_results" cramberry:"2"`
	AppHash    types.Hash       `json:"app_hash" cramberry:"3"`
}

// BlockSearchRequest searches blocks by their NewBlock events.
type BlockSearchRequest struct {
	Query   string `json:"query" cramberry:"1"`
	Page    int32  `json:"page,omitempty" cramberry:"2"`
	PerPage int32  `json:"per_page,omitempty" cramberry:"3"`
	OrderBy string `json:"order_by,omitempty" cramberry:"4"`
}

// BlockSearchResponse is a page of matching blocks.
type BlockSearchResponse struct {
	Blocks     []BlockResponse `json:"blocks" cramberry:"1"`
	TotalCount int32           `json:"total_count" cramberry:"2"`
}

// BlockchainRequest asks for block headers in [MinHeight, MaxHeight].
// Zero bounds are filled in by the node.
type BlockchainRequest struct {
	MinHeight int64 `json:"minHeight" cramberry:"1"`
	MaxHeight int64 `json:"maxHeight" cramberry:"2"`
}

// BlockMeta summarizes a block.
type BlockMeta struct {
	BlockID   BlockID           `json:"block_id" cramberry:"1"`
	BlockSize int64             `json:"block_size" cramberry:"2"`
	Header    types.BlockHeader `json:"header" cramberry:"3"`
	NumTxs    int64             `json:"num_txs" cramberry:"4"`
}

// BlockchainResponse lists block metas in descending height order.
type BlockchainResponse struct {
	LastHeight int64       `json:"last_height" cramberry:"1"`
	BlockMetas []BlockMeta `json:"block_metas" cramberry:"2"`
}

// BroadcastTxRequest submits a transaction and waits for its check result.
type BroadcastTxRequest struct {
	Tx types.Tx `json:"tx" cramberry:"1"`
}

// BroadcastTxResponse is the check result of a submitted transaction.
type BroadcastTxResponse struct {
	Code      uint32     `json:"code" cramberry:"1"`
	Data      []byte     `json:"data" cramberry:"2"`
	Log       string     `json:"log" cramberry:"3"`
	Codespace string     `json:"codespace" cramberry:"4"`
	Hash      types.Hash `json:"hash" cramberry:"5"`
}

// CommitRequest asks for the commit of a block.
// A nil height selects the latest block.
type CommitRequest struct {
	Height *int64 `json:"height,omitempty" cramberry:"1"`
}

// SignedHeader is a header together with its commit.
type SignedHeader struct {
	Header types.BlockHeader `json:"header" cramberry:"1"`
	Commit *types.Commit     `json:"commit" cramberry:"2"`
}

// CommitResponse is the result of commit.
type CommitResponse struct {
	SignedHeader SignedHeader `json:"signed_header" cramberry:"1"`
	Canonical    bool         `json:"canonical" cramberry:"2"`
}

// ConsensusParamsRequest asks for the consensus parameters in force at a
// height. A nil height selects the latest block.
type ConsensusParamsRequest struct {
	Height *int64 `json:"height,omitempty" cramberry:"1"`
}

// ConsensusParamsResponse is the result of consensus_params.
type ConsensusParamsResponse struct {
	BlockHeight     int64                 `json:"block_height" cramberry:"1"`
	ConsensusParams types.ConsensusParams `json:"consensus_params" cramberry:"2"`
}

// ConsensusStateRequest asks for the node's consensus round state.
type ConsensusStateRequest struct{}

// RoundState is a summary of the consensus state machine.
type RoundState struct {
	Height    int64           `json:"height" cramberry:"1"`
	Round     uint32          `json:"round" cramberry:"2"`
	Step      string          `json:"step" cramberry:"3"`
	StartTime types.Timestamp `json:"start_time" cramberry:"4"`
}

// ConsensusStateResponse is the result of consensus_state.
type ConsensusStateResponse struct {
	RoundState RoundState `json:"round_state" cramberry:"1"`
}

// HealthRequest asks whether the node is healthy.
type HealthRequest struct{}

// HealthCheck is the result of a single named health check.
type HealthCheck struct {
	Name    string `json:"name" cramberry:"1"`
	Status  string `json:"status" cramberry:"2"`
	Message string `json:"message,omitempty" cramberry:"3"`
}

// HealthResponse is the result of health.
type HealthResponse struct {
	Status string        `json:"status" cramberry:"1"`
	Checks []HealthCheck `json:"checks,omitempty" cramberry:"2"`
}

// NetInfoRequest asks for network information.
type NetInfoRequest struct{}

// NodeInfo identifies a node.
type NodeInfo struct {
	ID         string `json:"id" cramberry:"1"`
	ListenAddr string `json:"listen_addr" cramberry:"2"`
	Network    string `json:"network" cramberry:"3"`
	Version    string `json:"version" cramberry:"4"`
	Moniker    string `json:"moniker" cramberry:"5"`
}

// PeerInfo describes a connected peer.
type PeerInfo struct {
	NodeInfo   NodeInfo `json:"node_info" cramberry:"1"`
	IsOutbound bool     `json:"is_outbound" cramberry:"2"`
	RemoteIP   string   `json:"remote_ip" cramberry:"3"`
}

// NetInfoResponse is the result of net_info.
type NetInfoResponse struct {
	Listening bool       `json:"listening" cramberry:"1"`
	Listeners []string   `json:"listeners" cramberry:"2"`
	NPeers    int64      `json:"n_peers" cramberry:"3"`
	Peers     []PeerInfo `json:"peers" cramberry:"4"`
}

// StatusRequest asks for the node status.
type StatusRequest struct{}

// SyncInfo describes the node's view of the chain.
type SyncInfo struct {
	LatestBlockHash     types.Hash      `json:"latest_block_hash" cramberry:"1"`
	LatestAppHash       types.Hash      `json:"latest_app_hash" cramberry:"2"`
	LatestBlockHeight   int64           `json:"latest_block_height" cramberry:"3"`
	LatestBlockTime     types.Timestamp `json:"latest_block_time" cramberry:"4"`
	EarliestBlockHeight int64           `json:"earliest_block_height" cramberry:"5"`
	EarliestBlockTime   types.Timestamp `json:"earliest_block_time" cramberry:"6"`
	CatchingUp          bool            `json:"catching_up" cramberry:"7"`
}

// StatusResponse is the result of status.
type StatusResponse struct {
	NodeInfo NodeInfo `json:"node_info" cramberry:"1"`
	SyncInfo SyncInfo `json:"sync_info" cramberry:"2"`
}

// TxSearchRequest searches transactions by their events.
type TxSearchRequest struct {
	Query   string `json:"query" cramberry:"1"`
	Prove   bool   `json:"prove,omitempty" cramberry:"2"`
	Page    int32  `json:"page,omitempty" cramberry:"3"`
	PerPage int32  `json:"per_page,omitempty" cramberry:"4"`
	OrderBy string `json:"order_by,omitempty" cramberry:"5"`
}

// TxResponse is a transaction located by a search.
type TxResponse struct {
	Hash     types.Hash     `json:"hash" cramberry:"1"`
	Height   int64          `json:"height" cramberry:"2"`
	Index    uint32         `json:"index" cramberry:"3"`
	TxResult types.TxResult `json:"tx_result" cramberry:"4"`
	Tx       types.Tx       `json:"tx" cramberry:"5"`
}

// TxSearchResponse is a page of matching transactions.
type TxSearchResponse struct {
	Txs        []TxResponse `json:"txs" cramberry:"1"`
	TotalCount int32        `json:"total_count" cramberry:"2"`
}

func (*ABCIInfoRequest) Method() string        { return MethodABCIInfo }
func (*ABCIQueryRequest) Method() string       { return MethodABCIQuery }
func (*BlockRequest) Method() string           { return MethodBlock }
func (*BlockResultsRequest) Method() string    { return MethodBlockResults }
func (*BlockSearchRequest) Method() string     { return MethodBlockSearch }
func (*BlockchainRequest) Method() string      { return MethodBlockchain }
func (*BroadcastTxRequest) Method() string     { return MethodBroadcastTxSync }
func (*CommitRequest) Method() string          { return MethodCommit }
func (*ConsensusParamsRequest) Method() string { return MethodConsensusParams }
func (*ConsensusStateRequest) Method() string  { return MethodConsensusState }
func (*HealthRequest) Method() string          { return MethodHealth }
func (*NetInfoRequest) Method() string         { return MethodNetInfo }
func (*StatusRequest) Method() string          { return MethodStatus }
func (*TxSearchRequest) Method() string        { return MethodTxSearch }

func (*ABCIInfoRequest) NewResponse() any        { return new(ABCIInfoResponse) }
func (*ABCIQueryRequest) NewResponse() any       { return new(ABCIQueryResponse) }
func (*BlockRequest) NewResponse() any           { return new(BlockResponse) }
func (*BlockResultsRequest) NewResponse() any    { return new(BlockResultsResponse) }
func (*BlockSearchRequest) NewResponse() any     { return new(BlockSearchResponse) }
func (*BlockchainRequest) NewResponse() any      { return new(BlockchainResponse) }
func (*BroadcastTxRequest) NewResponse() any     { return new(BroadcastTxResponse) }
func (*CommitRequest) NewResponse() any          { return new(CommitResponse) }
func (*ConsensusParamsRequest) NewResponse() any { return new(ConsensusParamsResponse) }
func (*ConsensusStateRequest) NewResponse() any  { return new(ConsensusStateResponse) }
func (*HealthRequest) NewResponse() any          { return new(HealthResponse) }
func (*NetInfoRequest) NewResponse() any         { return new(NetInfoResponse) }
func (*StatusRequest) NewResponse() any          { return new(StatusResponse) }
func (*TxSearchRequest) NewResponse() any        { return new(TxSearchResponse) }

// HeightPtr returns a pointer to h, for the optional height of a request.
func HeightPtr(h int64) *int64 {
	return &h
}
