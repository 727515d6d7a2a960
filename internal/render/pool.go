// Package render owns the framebuffer, the per-tile draw buffers, and the
// draw and picking passes.
package render

import (
	"fmt"
	"sync"
)

// BufferPool is an allocator for per-tile vertex buffers, keyed
// "{tileKey}_{purpose}". Released buffers return to a free list and are
// reused for later tiles of similar size.
type BufferPool struct {
	mu      sync.Mutex
	buffers map[string][]float32
	bytes   map[string][]byte
	free    [][]float32
	freeB   [][]byte
}

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		buffers: make(map[string][]float32),
		bytes:   make(map[string][]byte),
	}
}

// BufferKey builds the pool key for one tile buffer.
func BufferKey(tileKey, purpose string) string {
	return fmt.Sprintf("%s_%s", tileKey, purpose)
}

// AcquireFloats returns a float buffer of length n bound to the key,
// reusing a free buffer when one is large enough.
func (p *BufferPool) AcquireFloats(key string, n int) []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if buf, ok := p.buffers[key]; ok && cap(buf) >= n {
		buf = buf[:n]
		p.buffers[key] = buf
		return buf
	}

	for i, buf := range p.free {
		if cap(buf) >= n {
			p.free = append(p.free[:i], p.free[i+1:]...)
			buf = buf[:n]
			p.buffers[key] = buf
			return buf
		}
	}

	buf := make([]float32, n)
	p.buffers[key] = buf
	return buf
}

// AcquireBytes returns a byte buffer of length n bound to the key.
func (p *BufferPool) AcquireBytes(key string, n int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if buf, ok := p.bytes[key]; ok && cap(buf) >= n {
		buf = buf[:n]
		p.bytes[key] = buf
		return buf
	}

	for i, buf := range p.freeB {
		if cap(buf) >= n {
			p.freeB = append(p.freeB[:i], p.freeB[i+1:]...)
			buf = buf[:n]
			p.bytes[key] = buf
			return buf
		}
	}

	buf := make([]byte, n)
	p.bytes[key] = buf
	return buf
}

// Release returns every buffer bound under the tile key prefix to the free
// list. Safe to call for tiles that were never initialized.
func (p *BufferPool) Release(tileKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prefix := tileKey + "_"
	for key, buf := range p.buffers {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			p.free = append(p.free, buf)
			delete(p.buffers, key)
		}
	}
	for key, buf := range p.bytes {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			p.freeB = append(p.freeB, buf)
			delete(p.bytes, key)
		}
	}
}

// Len reports the number of live (bound) buffers.
func (p *BufferPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffers) + len(p.bytes)
}
