// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BytePool hands out buffers from per-size-class sync.Pools. Classes are
// powers of two; a request larger than the biggest class falls through to
// a plain allocation that is not recycled.

package pool

import (
	"sync"
	"sync/atomic"
)

const (
	minClassBits = 9  // 512 B
	maxClassBits = 16 // 64 KiB
)

// Stats aggregates pool accounting.
type Stats struct {
	Gets   int64
	Puts   int64
	Allocs int64
}

// BytePool is a size-classed buffer pool. The zero value is not usable;
// call NewBytePool.
type BytePool struct {
	classes [maxClassBits - minClassBits + 1]sync.Pool
	gets    atomic.Int64
	puts    atomic.Int64
	allocs  atomic.Int64
}

// NewBytePool creates an empty pool.
func NewBytePool() *BytePool {
	p := &BytePool{}
	for i := range p.classes {
		size := 1 << (minClassBits + i)
		cls := &p.classes[i]
		cls.New = func() any {
			p.allocs.Add(1)
			return make([]byte, size)
		}
	}
	return p
}

func classFor(size int) int {
	for i := minClassBits; i <= maxClassBits; i++ {
		if size <= 1<<i {
			return i - minClassBits
		}
	}
	return -1
}

// Get returns a buffer with len >= size. Larger-than-class requests
// allocate directly.
func (p *BytePool) Get(size int) []byte {
	p.gets.Add(1)
	c := classFor(size)
	if c < 0 {
		p.allocs.Add(1)
		return make([]byte, size)
	}
	return p.classes[c].Get().([]byte)
}

// Put recycles a buffer obtained from Get. Foreign or oversized buffers
// are dropped.
func (p *BytePool) Put(b []byte) {
	c := classFor(cap(b))
	if c < 0 || cap(b) != 1<<(minClassBits+c) {
		return
	}
	p.puts.Add(1)
	p.classes[c].Put(b[:cap(b)]) //nolint:staticcheck // slice is class-sized
}

// Stats returns a snapshot of pool accounting.
func (p *BytePool) Stats() Stats {
	return Stats{
		Gets:   p.gets.Load(),
		Puts:   p.puts.Load(),
		Allocs: p.allocs.Load(),
	}
}
