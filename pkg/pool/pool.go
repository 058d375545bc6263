// Package pool provides typed object pooling for tabula.
//
// The codec encodes chunks into pooled byte buffers so that concurrent
// chunk encoding does not allocate a fresh buffer per chunk:
//
//	buf := pool.Buffers.Get()
//	defer pool.Buffers.Put(buf)
//
// Custom pools are created with New:
//
//	myPool := pool.New(
//	    func() *MyType { return &MyType{} },
//	    func(obj *MyType) { obj.Reset() },
//	)
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool is a generic object pool over sync.Pool with reset-on-put and usage
// statistics. It is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a typed pool. newFn creates objects when the pool is empty;
// reset, if non-nil, cleans an object before it is returned to the pool.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, creating one if needed
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put resets obj and returns it to the pool
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the number of objects created, currently checked out, and
// the total number of Get calls. Gets minus allocated is the reuse count.
func (p *Pool[T]) Stats() (allocated, inUse, gets int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.gets)
}

// maxPooledBuffer caps the capacity of buffers kept for reuse
const maxPooledBuffer = 16 << 20

// Buffers pools byte buffers used to encode chunks
var Buffers = New(
	func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 64*1024)) },
	func(b *bytes.Buffer) {
		if b.Cap() > maxPooledBuffer {
			*b = bytes.Buffer{}
			return
		}
		b.Reset()
	},
)
