package memory

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPool_Basic(t *testing.T) {
	pool := NewBufferPool(1024)

	buf := pool.Get()
	require.NotNil(t, buf)
	require.Equal(t, 0, buf.Len())
	require.GreaterOrEqual(t, buf.Cap(), 1024)

	buf.WriteString("hello world")
	pool.Put(buf)

	buf2 := pool.Get()
	require.Equal(t, 0, buf2.Len())
}

func TestBufferPool_NilPut(t *testing.T) {
	NewBufferPool(1024).Put(nil)
	PutBuffer(nil)
}

func TestBufferPool_DefaultSize(t *testing.T) {
	for _, size := range []int{0, -100} {
		buf := NewBufferPool(size).Get()
		require.GreaterOrEqual(t, buf.Cap(), SmallBufferSize)
	}
}

func TestBufferPool_LargeBufferNotReturned(t *testing.T) {
	pool := NewBufferPool(1024)

	buf := pool.Get()
	buf.Write(make([]byte, 1024*1024))
	pool.Put(buf)

	require.LessOrEqual(t, pool.Get().Cap(), 1024*4)
}

func TestGetBuffer(t *testing.T) {
	tests := []struct {
		hint int
		min  int
	}{
		{0, SmallBufferSize},
		{SmallBufferSize, SmallBufferSize},
		{SmallBufferSize + 1, MediumBufferSize},
		{LargeBufferSize, LargeBufferSize},
	}
	for _, tt := range tests {
		buf := GetBuffer(tt.hint)
		require.GreaterOrEqual(t, buf.Cap(), tt.min, "hint %d", tt.hint)
		PutBuffer(buf)
	}
}

func TestBufferPool_Concurrent(t *testing.T) {
	pool := NewBufferPool(1024)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := pool.Get()
			buf.WriteString("test data")
			pool.Put(buf)
		}()
	}
	wg.Wait()
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestWriteJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, WriteJSON(&out, map[string]int{"height": 3}))
	require.Equal(t, "{\"height\":3}\n", out.String())

	out.Reset()
	require.Error(t, WriteJSON(&out, math.NaN()))
	require.Zero(t, out.Len(), "nothing is written on encode failure")

	require.EqualError(t, WriteJSON(failingWriter{}, 1), "closed")
}

func TestMarshalJSON_MatchesStdlib(t *testing.T) {
	for _, v := range []any{
		nil,
		"<b>&</b>",
		[]byte{1, 2, 3},
		map[string]any{"b": 2, "a": []int{1}},
	} {
		want, err := json.Marshal(v)
		require.NoError(t, err)
		got, err := MarshalJSON(v)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	first, err := MarshalJSON("first")
	require.NoError(t, err)
	_, err = MarshalJSON("second value")
	require.NoError(t, err)
	require.Equal(t, `"first"`, string(first), "result does not alias the pooled buffer")
}

func BenchmarkWriteJSON(b *testing.B) {
	v := map[string]any{"jsonrpc": "2.0", "id": 1, "result": []int{1, 2, 3}}
	var out bytes.Buffer
	for i := 0; i < b.N; i++ {
		out.Reset()
		_ = WriteJSON(&out, v)
	}
}
