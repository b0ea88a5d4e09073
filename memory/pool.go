// Package memory pools the scratch buffers used to encode RPC responses.
package memory

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
)

// Buffer size classes.
const (
	// SmallBufferSize fits most query responses (4KB).
	SmallBufferSize = 4 * 1024
	// MediumBufferSize fits block and batch responses (64KB).
	MediumBufferSize = 64 * 1024
	// LargeBufferSize fits prefix iterations with proofs (1MB).
	LargeBufferSize = 1024 * 1024
)

// BufferPool is a pool of reusable buffers of one size class.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a pool whose buffers start with size bytes of capacity.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = SmallBufferSize
	}
	p := &BufferPool{size: size}
	p.pool.New = func() any {
		return bytes.NewBuffer(make([]byte, 0, size))
	}
	return p
}

// Get returns an empty buffer.
func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put resets buf and returns it to the pool. Buffers that grew past four
// times the size class are left for the garbage collector.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	buf.Reset()
	if buf.Cap() <= p.size*4 {
		p.pool.Put(buf)
	}
}

var (
	small  = NewBufferPool(SmallBufferSize)
	medium = NewBufferPool(MediumBufferSize)
	large  = NewBufferPool(LargeBufferSize)
)

// GetBuffer returns a buffer from the size class that fits sizeHint.
func GetBuffer(sizeHint int) *bytes.Buffer {
	switch {
	case sizeHint <= SmallBufferSize:
		return small.Get()
	case sizeHint <= MediumBufferSize:
		return medium.Get()
	default:
		return large.Get()
	}
}

// PutBuffer returns buf to the size class matching its capacity.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	switch c := buf.Cap(); {
	case c <= SmallBufferSize*4:
		small.Put(buf)
	case c <= MediumBufferSize*4:
		medium.Put(buf)
	default:
		large.Put(buf)
	}
}

// WriteJSON encodes v into a pooled buffer and writes it to w in a single
// call. Nothing is written when encoding fails.
func WriteJSON(w io.Writer, v any) error {
	buf := GetBuffer(0)
	defer PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// MarshalJSON encodes v like json.Marshal, using a pooled buffer for the
// encoder's scratch space. The returned slice is owned by the caller.
func MarshalJSON(v any) ([]byte, error) {
	buf := GetBuffer(0)
	defer PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return bytes.Clone(out), nil
}
