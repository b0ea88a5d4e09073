package statestore

import (
	"fmt"

	ics23 "github.com/cosmos/ics23/go"

	"github.com/blockberries/queryberry/types"
)

// VerifyProof checks an IAVL proof against a root hash. A nil value verifies
// the non-existence of key; otherwise the existence of key with value.
func VerifyProof(proof *types.Proof, root []byte, key, value []byte) error {
	if proof.Len() == 0 {
		return fmt.Errorf("%w: empty proof", types.ErrInvalidProof)
	}

	for _, op := range proof.Ops {
		if op.Type != ProofOpIAVL {
			continue
		}
		var cp ics23.CommitmentProof
		if err := cp.Unmarshal(op.Data); err != nil {
			return fmt.Errorf("%w: decoding commitment proof: %v", types.ErrInvalidProof, err)
		}

		var ok bool
		if value == nil {
			ok = ics23.VerifyNonMembership(ics23.IavlSpec, root, &cp, key)
		} else {
			ok = ics23.VerifyMembership(ics23.IavlSpec, root, &cp, key, value)
		}
		if !ok {
			return fmt.Errorf("%w: key %x does not verify against root %x", types.ErrInvalidProof, key, root)
		}
		return nil
	}
	return fmt.Errorf("%w: no %s op", types.ErrInvalidProof, ProofOpIAVL)
}
