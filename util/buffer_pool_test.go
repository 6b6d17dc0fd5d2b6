package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytePoolGetPut(t *testing.T) {
	p := &BytePool{}

	buf := p.Get(5000)
	assert.Len(t, buf, 5000)
	assert.Equal(t, 8192, cap(buf))

	buf[0] = 42
	p.Put(buf)

	// Get again - should be cleared
	buf2 := p.Get(6000)
	assert.Len(t, buf2, 6000)
	assert.Equal(t, byte(0), buf2[0])
	p.Put(buf2)

	_, _, outstanding := p.GetMetrics()
	assert.Equal(t, int64(0), outstanding)
}

func TestBytePoolSmallRequestsShareMinimumClass(t *testing.T) {
	p := &BytePool{}
	buf := p.Get(10)
	assert.Len(t, buf, 10)
	assert.Equal(t, 1<<minPoolShift, cap(buf))
	p.Put(buf)
}

func TestBytePoolZeroSize(t *testing.T) {
	p := &BytePool{}
	buf := p.Get(0)
	assert.Len(t, buf, 0)
	p.Put(buf) // Should not panic
	_, _, outstanding := p.GetMetrics()
	assert.Equal(t, int64(0), outstanding)
}

func TestBytePoolForeignBufferIgnored(t *testing.T) {
	p := &BytePool{}
	p.Get(100)
	p.Put(make([]byte, 1000)) // cap not a power of two
	hits, misses, outstanding := p.GetMetrics()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, int64(0), outstanding)
}

func TestBytePoolConcurrentAccess(t *testing.T) {
	const goroutines = 10
	const iterations = 100
	p := &BytePool{}

	done := make(chan bool, goroutines)

	for g := 0; g < goroutines; g++ {
		go func() {
			for i := 0; i < iterations; i++ {
				buf := p.Get(64 * 64 * 4)
				buf[0] = byte(i)
				p.Put(buf)
			}
			done <- true
		}()
	}

	for g := 0; g < goroutines; g++ {
		<-done
	}
	_, _, outstanding := p.GetMetrics()
	assert.Equal(t, int64(0), outstanding)
}

func BenchmarkBytePool(b *testing.B) {
	p := &BytePool{}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := p.Get(256 * 256 * 4)
		p.Put(buf)
	}
}
