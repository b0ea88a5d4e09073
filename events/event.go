// Package events holds the ledger event log consulted by queries and the
// pub/sub bus that feeds websocket subscriptions.
package events

import (
	"strconv"

	"github.com/blockberries/queryberry/types"
)

// Common event kinds.
const (
	// KindAccepted is emitted when a transaction passes admission into a block.
	KindAccepted = "accepted"

	// KindApplied is emitted when a transaction has been executed.
	KindApplied = "applied"

	// KindNewBlock is emitted once per committed block.
	KindNewBlock = "NewBlock"
)

// Common attribute keys.
const (
	AttributeKeyHash   = "hash"
	AttributeKeyHeight = "height"
	AttributeKeyCode   = "code"
	AttributeKeyLog    = "log"
	AttributeKeyInfo   = "info"
)

// Attribute is a single key-value tag within an event.
type Attribute struct {
	Key   string `json:"key" cramberry:"1"`
	Value string `json:"value" cramberry:"2"`
	Index bool   `json:"index" cramberry:"3"`
}

// Event is a ledger event recorded at a block height.
type Event struct {
	Kind       string       `json:"kind" cramberry:"1"`
	Height     types.Height `json:"height" cramberry:"2"`
	Attributes []Attribute  `json:"attributes" cramberry:"3"`
}

// New creates an event from alternating key/value pairs. A trailing key
// without a value is ignored.
func New(kind string, height types.Height, kv ...string) Event {
	ev := Event{Kind: kind, Height: height}
	for i := 0; i+1 < len(kv); i += 2 {
		ev.Attributes = append(ev.Attributes, Attribute{Key: kv[i], Value: kv[i+1], Index: true})
	}
	return ev
}

// Attr returns the value of the first attribute with the given key.
func (e Event) Attr(key string) (string, bool) {
	for _, attr := range e.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// lookup resolves a query key against an event. The reserved keys
// "tx.height" and "block.height" refer to the event height.
func (e Event) lookup(key string) (string, bool) {
	switch key {
	case "tx.height", "block.height":
		return strconv.FormatUint(uint64(e.Height), 10), true
	case "kind", "type":
		return e.Kind, true
	}
	return e.Attr(key)
}
