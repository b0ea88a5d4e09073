package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/blockberries/queryberry/query/vp/pos"
	"github.com/blockberries/queryberry/types"
)

// Genesis validation errors.
var (
	ErrInvalidGenesis = errors.New("invalid genesis")
)

// Genesis contains the initial ledger state committed as the first block.
type Genesis struct {
	// ChainID is the unique identifier for this blockchain.
	ChainID string `json:"chain_id"`

	// GenesisTime is the timestamp of the genesis block.
	GenesisTime time.Time `json:"genesis_time"`

	// NativeToken is the address of the token used for staking and fees.
	NativeToken string `json:"native_token"`

	// ConsensusParams are the initial consensus parameters.
	ConsensusParams types.ConsensusParams `json:"consensus_params"`

	// Validators are the initial validators.
	Validators []GenesisValidator `json:"validators"`

	// Tokens are the initial token ledgers.
	Tokens []GenesisToken `json:"tokens"`
}

// GenesisValidator is a validator present at genesis.
type GenesisValidator struct {
	Address    string             `json:"address"`
	Stake      types.Amount       `json:"stake"`
	Commission pos.CommissionPair `json:"commission"`
}

// GenesisToken is a token ledger present at genesis.
type GenesisToken struct {
	Address      string                  `json:"address"`
	Denomination uint8                   `json:"denomination"`
	Balances     map[string]types.Amount `json:"balances"`
}

// LoadGenesis reads a JSON genesis document.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// WriteGenesis writes g as an indented JSON document.
func WriteGenesis(path string, g *Genesis) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}
	return nil
}

// DefaultGenesis returns a single-validator genesis for local development.
func DefaultGenesis(chainID string) *Genesis {
	const (
		nativeToken = "nam"
		validator   = "validator-0"
	)
	return &Genesis{
		ChainID:     chainID,
		GenesisTime: time.Now().UTC().Truncate(time.Second),
		NativeToken: nativeToken,
		ConsensusParams: types.ConsensusParams{
			MaxBlockBytes:  1024 * 1024,
			MaxBlockGas:    -1,
			MaxEvidenceAge: 100_000,
			PubKeyTypes:    []string{"ed25519"},
			TimeIotaMillis: 1000,
		},
		Validators: []GenesisValidator{{
			Address:    validator,
			Stake:      1_000_000,
			Commission: pos.CommissionPair{Rate: 500, MaxChangePerEpoch: 100},
		}},
		Tokens: []GenesisToken{{
			Address:      nativeToken,
			Denomination: 6,
			Balances:     map[string]types.Amount{validator: 1_000_000_000},
		}},
	}
}

// Validate checks the genesis document for consistency.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("%w: chain_id is required", ErrInvalidGenesis)
	}
	seen := make(map[string]struct{}, len(g.Validators))
	for _, v := range g.Validators {
		if v.Address == "" {
			return fmt.Errorf("%w: validator address is required", ErrInvalidGenesis)
		}
		if _, dup := seen[v.Address]; dup {
			return fmt.Errorf("%w: duplicate validator %s", ErrInvalidGenesis, v.Address)
		}
		seen[v.Address] = struct{}{}
		if err := v.Commission.Validate(); err != nil {
			return fmt.Errorf("%w: validator %s: %w", ErrInvalidGenesis, v.Address, err)
		}
	}
	tokens := make(map[string]struct{}, len(g.Tokens))
	for _, t := range g.Tokens {
		if t.Address == "" {
			return fmt.Errorf("%w: token address is required", ErrInvalidGenesis)
		}
		if _, dup := tokens[t.Address]; dup {
			return fmt.Errorf("%w: duplicate token %s", ErrInvalidGenesis, t.Address)
		}
		tokens[t.Address] = struct{}{}
	}
	if g.NativeToken != "" {
		if _, ok := tokens[g.NativeToken]; !ok {
			return fmt.Errorf("%w: native token %s has no token ledger", ErrInvalidGenesis, g.NativeToken)
		}
	}
	return nil
}
