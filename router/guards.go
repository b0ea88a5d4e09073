package router

import (
	"fmt"

	"github.com/blockberries/queryberry/types"
)

// RequireLatestHeight rejects requests for any height other than the
// latest-height sentinel or the last committed height.
func RequireLatestHeight(ctx RequestCtx, req *RequestQuery) error {
	if req.Height.IsLatest() || req.Height == ctx.Storage.LastBlockHeight() {
		return nil
	}
	return fmt.Errorf("%w: this query doesn't support arbitrary block heights, "+
		"only the latest committed block height ('0' can be used as a special "+
		"value that means the latest block height)", types.ErrInvalidHeight)
}

// RequireNoProof rejects requests that ask for a proof.
func RequireNoProof(req *RequestQuery) error {
	if req.Prove {
		return fmt.Errorf("%w: this query doesn't support proofs", types.ErrProofNotSupported)
	}
	return nil
}

// RequireNoData rejects requests that carry a payload.
func RequireNoData(req *RequestQuery) error {
	if len(req.Data) != 0 {
		return fmt.Errorf("%w: this query doesn't accept request data", types.ErrUnexpectedData)
	}
	return nil
}

// RequireData rejects requests without a payload.
func RequireData(req *RequestQuery) error {
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: this query requires request data", types.ErrMissingData)
	}
	return nil
}

// ResolveHeight maps a requested height onto a concrete committed height for
// endpoints that serve history. The latest-height sentinel resolves to the
// last committed height; heights ahead of it, or further behind it than the
// context's read-past-height limit allows, are rejected.
func ResolveHeight(ctx RequestCtx, h types.Height) (types.Height, error) {
	last := ctx.Storage.LastBlockHeight()
	if h.IsLatest() {
		return last, nil
	}
	if h > last {
		return 0, fmt.Errorf("%w: height %d is ahead of the last committed block height %d",
			types.ErrInvalidHeight, h, last)
	}
	if limit := ctx.ReadPastHeightLimit; limit > 0 && uint64(last-h) > limit {
		return 0, fmt.Errorf("%w: height %d is more than %d blocks behind the last committed block height %d",
			types.ErrInvalidHeight, h, limit, last)
	}
	return h, nil
}
