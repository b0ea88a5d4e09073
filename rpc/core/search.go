package core

import (
	"bytes"
	"context"
	"encoding/hex"
	"slices"
	"strconv"

	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/types"
)

// BlockSearch returns the blocks whose NewBlock events match the query.
func (e *Environment) BlockSearch(_ context.Context, req *rpc.BlockSearchRequest) (*rpc.BlockSearchResponse, error) {
	q, err := parseSearchQuery(events.KindNewBlock, req.Query)
	if err != nil {
		return nil, err
	}

	heights := uniqueHeights(e.eventLog.Search(q, 0))
	if err := orderHeights(heights, req.OrderBy); err != nil {
		return nil, err
	}
	start, end, err := paginate(len(heights), req.Page, req.PerPage)
	if err != nil {
		return nil, err
	}

	blocks := make([]rpc.BlockResponse, 0, end-start)
	for _, h := range heights[start:end] {
		block, err := e.loadBlock(h)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, rpc.BlockResponse{
			BlockID: rpc.BlockID{Hash: block.Hash()},
			Block:   block,
		})
	}
	return &rpc.BlockSearchResponse{
		Blocks:     blocks,
		TotalCount: int32(len(heights)),
	}, nil
}

// TxSearch returns the transactions whose applied events match the query.
func (e *Environment) TxSearch(_ context.Context, req *rpc.TxSearchRequest) (*rpc.TxSearchResponse, error) {
	if req.Prove {
		return nil, rpc.ErrInvalidParams.WithData("transaction proofs are not supported")
	}
	q, err := parseSearchQuery(events.KindApplied, req.Query)
	if err != nil {
		return nil, err
	}

	matched := e.eventLog.Search(q, 0)
	switch req.OrderBy {
	case "", rpc.OrderAsc:
	case rpc.OrderDesc:
		slices.Reverse(matched)
	default:
		return nil, invalidOrder(req.OrderBy)
	}
	start, end, err := paginate(len(matched), req.Page, req.PerPage)
	if err != nil {
		return nil, err
	}

	txs := make([]rpc.TxResponse, 0, end-start)
	for _, ev := range matched[start:end] {
		tx, err := e.locateTx(ev)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return &rpc.TxSearchResponse{
		Txs:        txs,
		TotalCount: int32(len(matched)),
	}, nil
}

// locateTx finds the transaction an applied event refers to in its block.
func (e *Environment) locateTx(ev events.Event) (rpc.TxResponse, error) {
	hexHash, _ := ev.Attr(events.AttributeKeyHash)
	hash, err := hex.DecodeString(hexHash)
	if err != nil {
		return rpc.TxResponse{}, rpc.ErrInternalError.WithDataf("event at height %d has a malformed hash %q", ev.Height, hexHash)
	}

	resp := rpc.TxResponse{Hash: hash, Height: int64(ev.Height)}
	if code, ok := ev.Attr(events.AttributeKeyCode); ok {
		if c, err := strconv.ParseUint(code, 10, 32); err == nil {
			resp.TxResult.Code = uint32(c)
		}
	}
	resp.TxResult.Log, _ = ev.Attr(events.AttributeKeyLog)

	block, err := e.loadBlock(ev.Height)
	if err != nil {
		return resp, nil
	}
	for i, tx := range block.Txs {
		if !bytes.Equal(types.HashTx(tx), hash) {
			continue
		}
		resp.Index = uint32(i)
		resp.Tx = tx
		if results, err := e.blocks.LoadBlockResults(ev.Height); err == nil && i < len(results.TxResults) {
			resp.TxResult = results.TxResults[i]
		}
		break
	}
	return resp, nil
}

// parseSearchQuery restricts a query string to events of kind.
func parseSearchQuery(kind, query string) (events.Query, error) {
	q, err := events.ParseQuery(query)
	if err != nil {
		return nil, rpc.ErrInvalidParams.WithData(err.Error())
	}
	return events.QueryAnd{Queries: []events.Query{events.QueryEventKind{Kind: kind}, q}}, nil
}

func uniqueHeights(evs []events.Event) []types.Height {
	heights := make([]types.Height, 0, len(evs))
	for _, ev := range evs {
		heights = append(heights, ev.Height)
	}
	slices.Sort(heights)
	return slices.Compact(heights)
}

func orderHeights(heights []types.Height, order string) error {
	switch order {
	case "", rpc.OrderAsc:
	case rpc.OrderDesc:
		slices.Reverse(heights)
	default:
		return invalidOrder(order)
	}
	return nil
}

func invalidOrder(order string) error {
	return rpc.ErrInvalidParams.WithDataf("expected order_by to be either %q or %q, got %q",
		rpc.OrderAsc, rpc.OrderDesc, order)
}

// paginate returns the [start, end) slice bounds of a 1-based page.
func paginate(total int, page, perPage int32) (int, int, error) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	perPage = min(perPage, MaxPerPage)
	if page <= 0 {
		page = 1
	}

	pages := (total + int(perPage) - 1) / int(perPage)
	if pages == 0 {
		pages = 1
	}
	if int(page) > pages {
		return 0, 0, rpc.ErrInvalidParams.WithDataf("page should be within [1, %d] range, given %d", pages, page)
	}

	start := (int(page) - 1) * int(perPage)
	end := min(start+int(perPage), total)
	return start, end, nil
}
