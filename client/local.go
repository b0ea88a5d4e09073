package client

import (
	"context"

	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/types"
)

// Local is a Client that dispatches path queries in-process against a
// storage snapshot. It performs no serialization of the query envelope.
type Local struct {
	root     *router.Router
	storage  router.Storage
	eventLog events.Reader

	service             rpc.Service
	vpWasmCache         any
	txWasmCache         any
	readPastHeightLimit uint64
}

// LocalOption configures a Local client.
type LocalOption func(*Local)

// WithService lets Perform serve consensus-native calls from svc.
func WithService(svc rpc.Service) LocalOption {
	return func(l *Local) {
		l.service = svc
	}
}

// WithWasmCaches hands the given compilation cache handles to every handler.
func WithWasmCaches(vp, tx any) LocalOption {
	return func(l *Local) {
		l.vpWasmCache = vp
		l.txWasmCache = tx
	}
}

// WithReadPastHeightLimit bounds how far behind the last committed height
// historical queries may read.
func WithReadPastHeightLimit(limit uint64) LocalOption {
	return func(l *Local) {
		l.readPastHeightLimit = limit
	}
}

// NewLocal creates an in-process client over root and its collaborators.
func NewLocal(root *router.Router, storage router.Storage, eventLog events.Reader, opts ...LocalOption) *Local {
	l := &Local{
		root:     root,
		storage:  storage,
		eventLog: eventLog,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Request dispatches a path query synchronously.
func (l *Local) Request(_ context.Context, path string, data []byte, height types.Height, prove bool) (*router.EncodedResponseQuery, error) {
	ctx := router.NewRequestCtx(l.storage, l.eventLog)
	ctx.VPWasmCache = l.vpWasmCache
	ctx.TxWasmCache = l.txWasmCache
	ctx.ReadPastHeightLimit = l.readPastHeightLimit
	return l.root.Handle(ctx, &router.RequestQuery{
		Path:   path,
		Data:   data,
		Height: height,
		Prove:  prove,
	})
}

// Perform serves a consensus-native call from the configured service.
// Without one it fails with types.ErrPerformUnsupported.
func (l *Local) Perform(ctx context.Context, req rpc.Request) (any, error) {
	if l.service == nil {
		return nil, types.ErrPerformUnsupported
	}
	return rpc.Serve(ctx, l.service, req)
}

var _ Client = (*Local)(nil)
