package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type counter struct{ n int }

func TestPoolResetsOnPut(t *testing.T) {
	p := New(func() *counter { return &counter{} }, func(c *counter) { c.n = 0 })

	c := p.Get()
	c.n = 42
	p.Put(c)

	again := p.Get()
	assert.Equal(t, 0, again.n)
	p.Put(again)

	allocated, inUse, gets := p.Stats()
	assert.GreaterOrEqual(t, allocated, int64(1))
	assert.Equal(t, int64(0), inUse)
	assert.Equal(t, int64(2), gets)
}

func TestBuffersConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buf := Buffers.Get()
			defer Buffers.Put(buf)
			assert.Equal(t, 0, buf.Len())
			buf.WriteByte(byte(i))
		}(i)
	}
	wg.Wait()
}
