package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/queryberry/types"
)

func TestEvent_Attr(t *testing.T) {
	ev := New(KindApplied, 7, AttributeKeyHash, "AB", AttributeKeyCode, "0", "dangling")

	v, ok := ev.Attr(AttributeKeyHash)
	require.True(t, ok)
	assert.Equal(t, "AB", v)

	_, ok = ev.Attr("dangling")
	assert.False(t, ok)
	assert.Len(t, ev.Attributes, 2)
}

func TestParseQuery(t *testing.T) {
	applied := New(KindApplied, 7, AttributeKeyHash, "AB12", "memo", "hello world", "fee", "3")

	tests := []struct {
		query string
		match bool
	}{
		{"", true},
		{"all", true},
		{"kind='applied'", true},
		{"type='accepted'", false},
		{"hash='AB12'", true},
		{"hash='ab12'", false},
		{"tx.height=7", true},
		{"tx.height>=7", true},
		{"tx.height>7", false},
		{"block.height<10", true},
		{"tx.height<=6", false},
		{"fee!=3", false},
		{"memo CONTAINS 'world'", true},
		{"fee EXISTS", true},
		{"missing EXISTS", false},
		{"kind='applied' AND hash='AB12' AND tx.height>5", true},
		{"kind='applied' AND hash='nope'", false},
		{"memo='hello world'", true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.match, q.Matches(applied))
		})
	}
}

func TestParseQuery_QuotedSeparator(t *testing.T) {
	q, err := ParseQuery("memo='a AND b' AND fee=1")
	require.NoError(t, err)

	and, ok := q.(QueryAnd)
	require.True(t, ok)
	require.Len(t, and.Queries, 2)
	assert.Equal(t, Condition{Key: "memo", Op: OpEqual, Value: "a AND b"}, and.Queries[0])
}

func TestParseQuery_Errors(t *testing.T) {
	for _, s := range []string{
		"hash",
		"='x'",
		"hash='unterminated",
		"hash=abc",
		"hash=",
		" EXISTS",
	} {
		t.Run(s, func(t *testing.T) {
			_, err := ParseQuery(s)
			require.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestCondition_String(t *testing.T) {
	assert.Equal(t, "tx.height>=5", Condition{Key: "tx.height", Op: OpGreaterEqual, Value: "5"}.String())
	assert.Equal(t, "hash='AB'", Condition{Key: "hash", Op: OpEqual, Value: "AB"}.String())
	assert.Equal(t, "fee EXISTS", Condition{Key: "fee", Op: OpExists}.String())

	q := MustParseQuery("kind='applied' AND tx.height>5")
	reparsed, err := ParseQuery(q.String())
	require.NoError(t, err)
	assert.Equal(t, q, reparsed)
}

func TestLog_LatestAndSearch(t *testing.T) {
	log := NewLog(0)
	log.Append(
		New(KindAccepted, 1, AttributeKeyHash, "A"),
		New(KindApplied, 1, AttributeKeyHash, "A", AttributeKeyCode, "1"),
		New(KindApplied, 2, AttributeKeyHash, "A", AttributeKeyCode, "0"),
		New(KindApplied, 2, AttributeKeyHash, "B"),
	)
	assert.Equal(t, 4, log.Len())

	ev, ok := log.Latest(MustParseQuery("kind='applied' AND hash='A'"))
	require.True(t, ok)
	assert.Equal(t, "0", mustAttr(t, ev, AttributeKeyCode))

	_, ok = log.Latest(MustParseQuery("hash='C'"))
	assert.False(t, ok)

	found := log.Search(QueryEventKind{Kind: KindApplied}, 0)
	require.Len(t, found, 3)
	assert.Equal(t, "1", mustAttr(t, found[0], AttributeKeyCode))

	assert.Len(t, log.Search(QueryAll{}, 2), 2)

	ev, ok = log.Find(KindAccepted, AttributeKeyHash, "A")
	require.True(t, ok)
	assert.Equal(t, types.Height(1), ev.Height)
	_, ok = log.Find(KindAccepted, AttributeKeyHash, "B")
	assert.False(t, ok)
}

func TestLog_DropsOldest(t *testing.T) {
	log := NewLog(2)
	log.Append(New("a", 1), New("b", 2), New("c", 3))

	assert.Equal(t, 2, log.Len())
	found := log.Search(QueryAll{}, 0)
	require.Len(t, found, 2)
	assert.Equal(t, "b", found[0].Kind)
	assert.Equal(t, "c", found[1].Kind)
}

func TestLog_PublishesToBus(t *testing.T) {
	bus := NewBus(DefaultBusConfig())
	require.NoError(t, bus.Start())
	defer bus.Stop()

	log := NewLog(10)
	log.SetBus(bus)

	ch, err := bus.Subscribe(context.Background(), "sub", QueryEventKind{Kind: KindNewBlock})
	require.NoError(t, err)

	log.Append(New(KindApplied, 1), New(KindNewBlock, 1))

	select {
	case ev := <-ch:
		assert.Equal(t, KindNewBlock, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_StartStop(t *testing.T) {
	bus := NewBus(DefaultBusConfig())
	assert.False(t, bus.IsRunning())

	require.NoError(t, bus.Start())
	require.NoError(t, bus.Start())
	assert.True(t, bus.IsRunning())

	require.NoError(t, bus.Stop())
	require.NoError(t, bus.Stop())
	assert.False(t, bus.IsRunning())
}

func TestBus_NotRunning(t *testing.T) {
	bus := NewBus(DefaultBusConfig())

	_, err := bus.Subscribe(context.Background(), "sub", QueryAll{})
	assert.ErrorIs(t, err, ErrBusNotRunning)
	assert.ErrorIs(t, bus.Publish(context.Background(), Event{}), ErrBusNotRunning)
}

func TestBus_Subscriptions(t *testing.T) {
	bus := NewBus(BusConfig{MaxSubscribers: 2})
	require.NoError(t, bus.Start())
	defer bus.Stop()

	_, err := bus.Subscribe(context.Background(), "a", QueryAll{})
	require.NoError(t, err)

	_, err = bus.Subscribe(context.Background(), "a", QueryAll{})
	assert.ErrorIs(t, err, ErrSubscriberExists)

	ch, err := bus.Subscribe(context.Background(), "a", QueryEventKind{Kind: "x"})
	require.NoError(t, err)

	_, err = bus.Subscribe(context.Background(), "b", QueryAll{})
	assert.ErrorIs(t, err, ErrTooManySubscribers)

	require.NoError(t, bus.Unsubscribe("a", QueryEventKind{Kind: "x"}))
	_, open := <-ch
	assert.False(t, open)
	assert.ErrorIs(t, bus.Unsubscribe("a", QueryEventKind{Kind: "x"}), ErrSubscriberNotFound)

	bus.UnsubscribeAll("a")
	assert.Equal(t, 0, bus.NumSubscribers())
}

func TestBus_ContextCancelUnsubscribes(t *testing.T) {
	bus := NewBus(DefaultBusConfig())
	require.NoError(t, bus.Start())
	defer bus.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, "sub", QueryAll{})
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed")
	}
	assert.Eventually(t, func() bool { return bus.NumSubscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewBus(BusConfig{BufferSize: 1})
	require.NoError(t, bus.Start())
	defer bus.Stop()

	slow, err := bus.Subscribe(context.Background(), "slow", QueryAll{})
	require.NoError(t, err)
	other, err := bus.Subscribe(context.Background(), "other", QueryEventKind{Kind: KindNewBlock})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), New(KindNewBlock, 1)))
	require.NoError(t, bus.Publish(context.Background(), New(KindApplied, 1)))

	assert.Equal(t, uint64(1), bus.Dropped())
	assert.Equal(t, KindNewBlock, (<-slow).Kind)
	assert.Equal(t, KindNewBlock, (<-other).Kind)
}

func TestBus_StopClosesSubscriptions(t *testing.T) {
	bus := NewBus(DefaultBusConfig())
	require.NoError(t, bus.Start())

	ch, err := bus.Subscribe(context.Background(), "sub", QueryAll{})
	require.NoError(t, err)
	require.NoError(t, bus.Stop())

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, bus.NumSubscribers())
}

func mustAttr(t *testing.T, ev Event, key string) string {
	t.Helper()
	v, ok := ev.Attr(key)
	require.True(t, ok, "missing attribute %q", key)
	return v
}
