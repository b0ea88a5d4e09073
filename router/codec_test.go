package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/queryberry/types"
)

type pair struct {
	Key   string `cramberry:"1"`
	Value []byte `cramberry:"2"`
}

func TestRespondAndDecodeResponse(t *testing.T) {
	proof := &types.Proof{Ops: []types.ProofOp{{Type: "ics23:iavl", Key: []byte("k")}}}

	resp, err := RespondWithProof([]pair{{Key: "a", Value: []byte{1}}, {Key: "b"}}, proof)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Data)
	assert.Same(t, proof, resp.Proof)

	decoded, err := DecodeResponse[[]pair](resp)
	require.NoError(t, err)
	require.Len(t, decoded.Data, 2)
	assert.Equal(t, "a", decoded.Data[0].Key)
	assert.Equal(t, []byte{1}, decoded.Data[0].Value)
	assert.Same(t, proof, decoded.Proof)
}

func TestEncode_IsDeterministic(t *testing.T) {
	a := MustEncode(types.Amount(1_000_000))
	b := MustEncode(types.Amount(1_000_000))
	assert.Equal(t, a, b)

	v, err := Decode[types.Amount](a)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(1_000_000), v)
}
