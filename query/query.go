// Package query assembles the root of the query path tree from the shell
// and validity predicate subtrees, and exposes typed queriers over a client.
package query

import (
	"sync"

	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/query/shell"
	"github.com/blockberries/queryberry/query/vp"
	"github.com/blockberries/queryberry/query/vp/pos"
	"github.com/blockberries/queryberry/query/vp/token"
	"github.com/blockberries/queryberry/router"
)

// NewRoot builds a fresh root router.
func NewRoot() *router.Router {
	return router.New(
		router.Sub(shell.Prefix, shell.Router()),
		router.Sub(vp.Prefix, vp.Router()),
	)
}

var (
	rootOnce sync.Once
	root     *router.Router
)

// Root returns the process-wide root router. It is built on first use and
// never modified afterwards.
func Root() *router.Router {
	rootOnce.Do(func() {
		root = NewRoot()
	})
	return root
}

// HandlePath dispatches req through the root router.
func HandlePath(ctx router.RequestCtx, req *router.RequestQuery) (*router.EncodedResponseQuery, error) {
	return Root().Handle(ctx, req)
}

// Queriers groups the typed queriers of every subtree.
type Queriers struct {
	Shell *shell.Querier
	PoS   *pos.Querier
	Token *token.Querier
}

// Of returns typed queriers issuing their queries through c.
func Of(c client.Client) *Queriers {
	return &Queriers{
		Shell: shell.NewQuerier(c),
		PoS:   pos.NewQuerier(c, vp.Prefix+"/"+pos.Prefix),
		Token: token.NewQuerier(c, vp.Prefix+"/"+token.Prefix),
	}
}
