package router

import (
	"fmt"
	"strings"

	"github.com/blockberries/queryberry/types"
)

// Handler serves one leaf endpoint. Args holds the path segments that follow
// the leaf's prefix.
type Handler func(ctx RequestCtx, req *RequestQuery, args []string) (*EncodedResponseQuery, error)

// Route binds a path prefix to either a nested router or a leaf handler.
// Routes are created with Sub and Leaf.
type Route struct {
	prefix string
	sub    *Router
	leaf   *leaf
}

// Prefix returns the path segment the route is registered under.
func (r Route) Prefix() string {
	return r.prefix
}

// variadic marks a leaf that accepts one or more trailing segments.
const variadic = -1

type leaf struct {
	handler Handler

	// withOptions leaves receive height, proof and data untouched and
	// apply guards themselves. Plain leaves get all three guards applied
	// before the handler runs.
	withOptions bool

	arity    int
	argNames []string
}

func (l *leaf) accepts(n int) bool {
	if l.arity == variadic {
		return n > 0
	}
	return n == l.arity
}

// LeafOption configures a leaf route.
type LeafOption func(*leaf)

// WithOptions marks a leaf as handling height, proof and request data
// itself. Without it the leaf only serves data-less, proof-less requests at
// the latest height.
func WithOptions() LeafOption {
	return func(l *leaf) {
		l.withOptions = true
	}
}

// Args declares the named path arguments that follow the leaf prefix.
// The leaf matches only paths with exactly that many trailing segments.
func Args(names ...string) LeafOption {
	return func(l *leaf) {
		l.arity = len(names)
		l.argNames = names
	}
}

// Variadic declares a single argument that absorbs every remaining segment,
// for arguments such as storage keys that may themselves contain '/'.
func Variadic(name string) LeafOption {
	return func(l *leaf) {
		l.arity = variadic
		l.argNames = []string{name}
	}
}

// Sub mounts a nested router under prefix.
func Sub(prefix string, r *Router) Route {
	if r == nil {
		panic(fmt.Sprintf("router: nil sub-router for prefix %q", prefix))
	}
	return Route{prefix: prefix, sub: r}
}

// Leaf binds a handler to prefix.
func Leaf(prefix string, h Handler, opts ...LeafOption) Route {
	if h == nil {
		panic(fmt.Sprintf("router: nil handler for prefix %q", prefix))
	}
	l := &leaf{handler: h}
	for _, opt := range opts {
		opt(l)
	}
	return Route{prefix: prefix, leaf: l}
}

// Router is an immutable level of the path tree.
type Router struct {
	order  []string
	routes map[string]Route
}

// New builds a router from routes in declaration order.
// It panics on an empty prefix, a prefix containing '/', or a duplicate
// prefix; these are static configuration errors.
func New(routes ...Route) *Router {
	r := &Router{
		order:  make([]string, 0, len(routes)),
		routes: make(map[string]Route, len(routes)),
	}
	for _, route := range routes {
		switch {
		case route.prefix == "":
			panic("router: empty route prefix")
		case strings.Contains(route.prefix, "/"):
			panic(fmt.Sprintf("router: route prefix %q contains '/'", route.prefix))
		case route.sub == nil && route.leaf == nil:
			panic(fmt.Sprintf("router: route %q has no target", route.prefix))
		}
		if _, exists := r.routes[route.prefix]; exists {
			panic(fmt.Sprintf("router: duplicate route prefix %q", route.prefix))
		}
		r.order = append(r.order, route.prefix)
		r.routes[route.prefix] = route
	}
	return r
}

// SplitPath splits a query path into segments, dropping a single leading
// empty segment produced by a leading '/'.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	segments := strings.Split(path, "/")
	if segments[0] == "" {
		segments = segments[1:]
	}
	return segments
}

// Handle resolves req.Path to exactly one leaf and invokes it.
// Unmatched paths fail with types.ErrPathNotFound.
func (r *Router) Handle(ctx RequestCtx, req *RequestQuery) (*EncodedResponseQuery, error) {
	segments := SplitPath(req.Path)
	level := r
	for i, segment := range segments {
		route, ok := level.routes[segment]
		if !ok {
			break
		}
		if route.sub != nil {
			level = route.sub
			continue
		}

		args := segments[i+1:]
		if !route.leaf.accepts(len(args)) {
			break
		}
		if route.leaf.arity == variadic && len(args) == 1 && args[0] == "" {
			return nil, fmt.Errorf("%w: empty %s in %q", types.ErrInvalidArgument, route.leaf.argNames[0], req.Path)
		}
		if !route.leaf.withOptions {
			if err := applyGuards(ctx, req); err != nil {
				return nil, err
			}
		}
		return route.leaf.handler(ctx, req, args)
	}
	return nil, fmt.Errorf("%w: %q", types.ErrPathNotFound, req.Path)
}

// applyGuards runs the storage-free checks before RequireLatestHeight so a
// rejected payload or proof request never reaches storage.
func applyGuards(ctx RequestCtx, req *RequestQuery) error {
	if err := RequireNoData(req); err != nil {
		return err
	}
	if err := RequireNoProof(req); err != nil {
		return err
	}
	return RequireLatestHeight(ctx, req)
}

// Prefixes returns the prefixes registered at this level in declaration order.
func (r *Router) Prefixes() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Paths lists every leaf path pattern reachable from this router in
// declaration order. Arguments are rendered as "{name}" and variadic
// arguments as "{name...}".
func (r *Router) Paths() []string {
	var out []string
	r.walk(nil, func(pattern string) {
		out = append(out, pattern)
	})
	return out
}

func (r *Router) walk(parents []string, fn func(string)) {
	for _, prefix := range r.order {
		route := r.routes[prefix]
		segments := append(append([]string(nil), parents...), prefix)
		if route.sub != nil {
			route.sub.walk(segments, fn)
			continue
		}
		for _, name := range route.leaf.argNames {
			if route.leaf.arity == variadic {
				name += "..."
			}
			segments = append(segments, "{"+name+"}")
		}
		fn(strings.Join(segments, "/"))
	}
}
