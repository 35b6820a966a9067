/*
 * Copyright 2025 blocksparse Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mempool pools previously released buffers for reuse, so hot
// numerical loops that cycle scratch buffers thousands of times per second
// don't pay the underlying allocation cost on every call. Freed buffers are
// retained, not released; Clear hands everything back to the raw allocator.
//
// Tips for usage:
//   - a buffer returned by Malloc is NOT zero-initialized, use at your own risk.
//   - DO NOT touch a buffer after Free, and free every buffer exactly once;
//     the pool performs no double-free or use-after-free detection.
//   - the returned cap may exceed the requested size, never use beyond len.
package mempool

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/blocksparse/mempool/alloc"
)

// block is one allocation tracked by a pool: the full-capacity buffer plus
// the size the current (or last) holder asked for.
type block struct {
	buf  []byte
	size int
}

// Pool is one memory domain's allocator: a free list of reusable blocks, a
// ledger of blocks currently handed out, and the raw allocator misses fall
// through to. All methods are safe for concurrent use.
type Pool struct {
	raw      alloc.Allocator
	disabled bool

	mu    sync.Mutex
	free  []*block          // pooled, reusable blocks
	inUse map[uintptr]*block // data pointer -> outstanding block

	stats stats
}

// Option configures a Pool.
type Option struct {
	// Allocator is the raw capability backing the pool, host memory if nil.
	Allocator alloc.Allocator

	// Disable bypasses pooling: Malloc goes straight to the allocator and
	// Free releases immediately. Escape hatch for debugging memory issues
	// with external tooling, which pooled reuse would otherwise mask.
	Disable bool
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{Allocator: alloc.Host()}
}

// New creates a Pool. A nil opt means DefaultOption().
func New(opt *Option) *Pool {
	if opt == nil {
		opt = DefaultOption()
	}
	raw := opt.Allocator
	if raw == nil {
		raw = alloc.Host()
	}
	return &Pool{
		raw:      raw,
		disabled: opt.Disable,
		inUse:    make(map[uintptr]*block),
	}
}

// Malloc returns a buffer with len == size. The pool is searched best-fit:
// the pooled block with the smallest capacity >= size is reused, so the
// returned cap may exceed size. On a miss the raw allocator is invoked for
// exactly size bytes; its failure is returned as-is, the pool never evicts
// to make room. size 0 returns an empty buffer without touching the pool.
func (p *Pool) Malloc(size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	if size < 0 {
		return nil, fmt.Errorf("mempool: invalid size %d", size)
	}
	if p.disabled {
		return p.raw.Allocate(size)
	}

	p.mu.Lock()
	if b := p.take(size); b != nil {
		b.size = size
		p.inUse[keyOf(b.buf)] = b
		p.stats.hit(cap(b.buf))
		p.mu.Unlock()
		return b.buf[:size], nil
	}
	p.mu.Unlock()

	buf, err := p.raw.Allocate(size)
	if err != nil {
		return nil, err
	}
	b := &block{buf: buf, size: size}
	p.mu.Lock()
	p.inUse[keyOf(buf)] = b
	p.stats.miss(cap(buf))
	p.mu.Unlock()
	return buf[:size], nil
}

// take removes and returns the best-fit free block for size, nil on a miss.
// Caller must hold p.mu.
func (p *Pool) take(size int) *block {
	best := -1
	for i, b := range p.free {
		if cap(b.buf) < size {
			continue
		}
		if best < 0 || cap(b.buf) < cap(p.free[best].buf) {
			best = i
			if cap(b.buf) == size {
				break
			}
		}
	}
	if best < 0 {
		return nil
	}
	b := p.free[best]
	n := len(p.free) - 1
	p.free[best] = p.free[n]
	p.free[n] = nil
	p.free = p.free[:n]
	return b
}

// Free returns buf to the pool for later reuse; nothing is released to the
// raw allocator. buf must be a buffer obtained from this pool's Malloc (any
// len, same start). A pointer the pool didn't issue is ignored.
func (p *Pool) Free(buf []byte) {
	p.tryFree(buf)
}

func (p *Pool) tryFree(buf []byte) bool {
	if cap(buf) == 0 {
		return true
	}
	if p.disabled {
		p.raw.Free(buf)
		return true
	}
	k := keyOf(buf)
	p.mu.Lock()
	b, ok := p.inUse[k]
	if ok {
		delete(p.inUse, k)
		p.free = append(p.free, b)
		p.stats.put(cap(b.buf))
	}
	p.mu.Unlock()
	return ok
}

// Realloc resizes buf to size through the raw allocator's resize primitive,
// preserving the overlapping prefix. The free list is not consulted. On
// failure buf stays valid and still owned by the caller; on success the new
// buffer replaces buf in the pool's ledger and buf must not be used again.
func (p *Pool) Realloc(buf []byte, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mempool: invalid size %d", size)
	}
	nb, err := p.raw.Reallocate(size, buf)
	if err != nil {
		return nil, err
	}
	if !p.disabled {
		b := &block{buf: nb, size: size}
		p.mu.Lock()
		if cap(buf) > 0 {
			if old, ok := p.inUse[keyOf(buf)]; ok {
				delete(p.inUse, keyOf(buf))
				p.stats.dropInUse(cap(old.buf))
			}
		}
		p.inUse[keyOf(nb)] = b
		p.stats.trackInUse(cap(nb))
		p.mu.Unlock()
	}
	return nb[:size], nil
}

// Clear releases every pooled block back to the raw allocator and empties
// the free list. Outstanding buffers stay with their callers and may still
// be freed into the pool afterwards. Callers must quiesce Malloc/Free on
// this pool around Clear, see the package contract.
func (p *Pool) Clear() {
	p.mu.Lock()
	free := p.free
	p.free = nil
	for _, b := range free {
		p.stats.dropPooled(cap(b.buf))
	}
	p.mu.Unlock()
	for _, b := range free {
		p.raw.Free(b.buf)
	}
}

// keyOf identifies a buffer by its data pointer. Pooled and in-use blocks
// keep the backing array referenced, so the pointer stays stable and unique
// for the lifetime of the ledger entry.
func keyOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
