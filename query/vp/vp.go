// Package vp composes the query subtrees of the native validity predicates.
package vp

import (
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/query/vp/pos"
	"github.com/blockberries/queryberry/query/vp/token"
)

// Prefix is the path segment the validity predicate subtree is mounted under.
const Prefix = "vp"

// Router returns the validity predicate subtree.
func Router() *router.Router {
	return router.New(
		router.Sub(pos.Prefix, pos.Router()),
		router.Sub(token.Prefix, token.Router()),
	)
}
