package types

import (
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// Timestamp is a wire-safe representation of a point in time.
// Uses seconds since Unix epoch plus a nanosecond offset.
type Timestamp struct {
	Seconds int64 `json:"seconds" cramberry:"1"`
	Nanos   int32 `json:"nanos" cramberry:"2"`
}

// TimeToTimestamp converts a time.Time to a Timestamp.
func TimeToTimestamp(t time.Time) Timestamp {
	return Timestamp{
		Seconds: t.Unix(),
		Nanos:   int32(t.Nanosecond()),
	}
}

// ToTime converts a Timestamp to a time.Time (UTC).
func (ts Timestamp) ToTime() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// BlockHeader contains block metadata.
type BlockHeader struct {
	ChainID         string    `json:"chain_id" cramberry:"1"`
	Height          Height    `json:"height" cramberry:"2"`
	Time            Timestamp `json:"time" cramberry:"3"`
	LastBlockHash   Hash      `json:"last_block_hash" cramberry:"4"`
	DataHash        Hash      `json:"data_hash" cramberry:"5"`
	AppHash         Hash      `json:"app_hash" cramberry:"6"`
	ProposerAddress []byte    `json:"proposer_address" cramberry:"7"`
}

// Block is a committed block: a header plus its ordered transactions.
type Block struct {
	Header BlockHeader `json:"header" cramberry:"1"`
	Txs    []Tx        `json:"txs" cramberry:"2"`
}

// Hash returns the block hash, the SHA-256 of the encoded header.
func (b *Block) Hash() Hash {
	data, err := cramberry.Marshal(b.Header)
	if err != nil {
		// Headers contain only fixed-shape fields; encoding cannot fail.
		panic(err)
	}
	return HashBytes(data)
}

// Encode serializes the block.
func (b *Block) Encode() ([]byte, error) {
	return cramberry.Marshal(b)
}

// DecodeBlock deserializes a block produced by Encode.
func DecodeBlock(data []byte) (*Block, error) {
	var b Block
	if err := cramberry.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// LastBlock describes the last committed block as seen by the query layer.
type LastBlock struct {
	Height Height    `json:"height" cramberry:"1"`
	Hash   Hash      `json:"hash" cramberry:"2"`
	Time   Timestamp `json:"time" cramberry:"3"`
}

// TxResult is the execution outcome of one transaction in a block.
type TxResult struct {
	Code      uint32 `json:"code" cramberry:"1"`
	Data      []byte `json:"data" cramberry:"2"`
	Log       string `json:"log" cramberry:"3"`
	GasWanted int64  `json:"gas_wanted" cramberry:"4"`
	GasUsed   int64  `json:"gas_used" cramberry:"5"`
}

// BlockResults holds the execution outcomes of every transaction in a block.
type BlockResults struct {
	Height    Height     `json:"height" cramberry:"1"`
	TxResults []TxResult `json:"tx_results" cramberry:"2"`
	AppHash   Hash       `json:"app_hash" cramberry:"3"`
}

// CommitSig is one validator's signature over a block.
type CommitSig struct {
	ValidatorAddress []byte    `json:"validator_address" cramberry:"1"`
	Timestamp        Timestamp `json:"timestamp" cramberry:"2"`
	Signature        []byte    `json:"signature" cramberry:"3"`
}

// Commit is the set of signatures that finalized a block.
type Commit struct {
	Height     Height      `json:"height" cramberry:"1"`
	Round      uint32      `json:"round" cramberry:"2"`
	BlockHash  Hash        `json:"block_hash" cramberry:"3"`
	Signatures []CommitSig `json:"signatures" cramberry:"4"`
}

// ConsensusParams bound the size and timing of blocks.
type ConsensusParams struct {
	MaxBlockBytes   int64    `json:"max_block_bytes" cramberry:"1"`
	MaxBlockGas     int64    `json:"max_block_gas" cramberry:"2"`
	MaxEvidenceAge  int64    `json:"max_evidence_age" cramberry:"3"`
	PubKeyTypes     []string `json:"pub_key_types" cramberry:"4"`
	TimeIotaMillis  int64    `json:"time_iota_ms" cramberry:"5"`
	AppVersion      uint64   `json:"app_version" cramberry:"6"`
	EffectiveHeight Height   `json:"effective_height" cramberry:"7"`
}
