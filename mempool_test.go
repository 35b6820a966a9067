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

package mempool

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocksparse/mempool/alloc"
)

// countingAllocator counts raw calls so tests can tell hits from misses.
type countingAllocator struct {
	alloc.Allocator
	allocs atomic.Int32
	frees  atomic.Int32
}

func newCountingAllocator() *countingAllocator {
	return &countingAllocator{Allocator: alloc.Host()}
}

func (c *countingAllocator) Allocate(size int) ([]byte, error) {
	c.allocs.Add(1)
	return c.Allocator.Allocate(size)
}

func (c *countingAllocator) Free(b []byte) {
	c.frees.Add(1)
	c.Allocator.Free(b)
}

func sameAddr(a, b []byte) bool {
	return unsafe.SliceData(a) == unsafe.SliceData(b)
}

func TestMallocFree(t *testing.T) {
	p := New(nil)
	for size := 1; size < 1<<16; size += 777 {
		b, err := p.Malloc(size)
		require.NoError(t, err)
		require.Equal(t, size, len(b))
		p.Free(b)
	}
}

func TestMallocZero(t *testing.T) {
	p := New(nil)
	b, err := p.Malloc(0)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Equal(t, 0, len(b))
	p.Free(b) // no-op

	_, err = p.Malloc(-1)
	require.Error(t, err)

	st := p.Stats()
	assert.Equal(t, 0, st.PooledBlocks)
	assert.Equal(t, 0, st.InUseBlocks)
}

func TestRoundTripSameAddress(t *testing.T) {
	p := New(nil)
	b1, err := p.Malloc(4096)
	require.NoError(t, err)
	p.Free(b1)
	b2, err := p.Malloc(4096)
	require.NoError(t, err)
	assert.True(t, sameAddr(b1, b2))
}

func TestOversizedReuse(t *testing.T) {
	p := New(nil)
	b1, err := p.Malloc(100)
	require.NoError(t, err)
	p.Free(b1)

	b2, err := p.Malloc(50)
	require.NoError(t, err)
	assert.True(t, sameAddr(b1, b2))
	assert.Equal(t, 50, len(b2))
	assert.Equal(t, 100, cap(b2))
}

func TestBestFit(t *testing.T) {
	p := New(nil)
	var bufs [][]byte
	for _, size := range []int{64, 256, 128} {
		b, err := p.Malloc(size)
		require.NoError(t, err)
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		p.Free(b)
	}

	// 100 bytes fits 128 and 256, best-fit must pick 128.
	b, err := p.Malloc(100)
	require.NoError(t, err)
	assert.Equal(t, 128, cap(b))

	// 200 bytes now only fits 256.
	b, err = p.Malloc(200)
	require.NoError(t, err)
	assert.Equal(t, 256, cap(b))

	// 65 no longer has a candidate, raw allocation of exactly 65.
	b, err = p.Malloc(65)
	require.NoError(t, err)
	assert.Equal(t, 65, cap(b))
}

func TestReuseAvoidsRawAlloc(t *testing.T) {
	raw := newCountingAllocator()
	p := New(&Option{Allocator: raw})

	b, err := p.Malloc(100)
	require.NoError(t, err)
	require.EqualValues(t, 1, raw.allocs.Load())
	p.Free(b)

	// Equal or smaller requests must be served from the pool.
	for _, size := range []int{100, 80, 1} {
		b, err = p.Malloc(size)
		require.NoError(t, err)
		require.EqualValues(t, 1, raw.allocs.Load(), "size=%d", size)
		p.Free(b)
	}

	// A larger request is a genuine miss.
	b, err = p.Malloc(101)
	require.NoError(t, err)
	require.EqualValues(t, 2, raw.allocs.Load())
	p.Free(b)

	st := p.Stats()
	assert.EqualValues(t, 3, st.Hits)
	assert.EqualValues(t, 2, st.Misses)
	assert.EqualValues(t, 5, st.Frees)
}

func TestClear(t *testing.T) {
	raw := newCountingAllocator()
	p := New(&Option{Allocator: raw})

	held, err := p.Malloc(64)
	require.NoError(t, err)
	for _, size := range []int{32, 48, 96} {
		b, err := p.Malloc(size)
		require.NoError(t, err)
		p.Free(b)
	}
	require.Equal(t, 3, p.Stats().PooledBlocks)

	p.Clear()

	st := p.Stats()
	assert.Equal(t, 0, st.PooledBlocks)
	assert.EqualValues(t, 0, st.PooledBytes)
	assert.EqualValues(t, 3, raw.frees.Load())
	// The outstanding buffer survives Clear and can still come back.
	assert.Equal(t, 1, st.InUseBlocks)

	// No stale reuse: the next request must hit the raw allocator.
	allocs := raw.allocs.Load()
	b, err := p.Malloc(32)
	require.NoError(t, err)
	assert.EqualValues(t, allocs+1, raw.allocs.Load())
	p.Free(b)
	p.Free(held)
	p.Clear()
	assert.EqualValues(t, 0, p.Stats().InUseBytes)
}

func TestAllocationFailure(t *testing.T) {
	p := New(&Option{Allocator: alloc.Limited(alloc.Host(), 128)})

	b, err := p.Malloc(100)
	require.NoError(t, err)

	_, err = p.Malloc(100)
	require.Error(t, err)
	require.True(t, errors.Is(err, alloc.ErrExhausted))

	// The failure evicted nothing, the first buffer is still usable.
	b[0], b[99] = 1, 2
	p.Free(b)

	// After the free the pooled block satisfies the retry without raw calls.
	b2, err := p.Malloc(100)
	require.NoError(t, err)
	assert.True(t, sameAddr(b, b2))
}

func TestFreeForeignPointer(t *testing.T) {
	p := New(nil)
	p.Free(make([]byte, 16))
	assert.Equal(t, 0, p.Stats().PooledBlocks)
}

func TestDisabled(t *testing.T) {
	raw := newCountingAllocator()
	p := New(&Option{Allocator: raw, Disable: true})

	b, err := p.Malloc(64)
	require.NoError(t, err)
	p.Free(b)
	require.EqualValues(t, 1, raw.frees.Load())

	b, err = p.Malloc(64)
	require.NoError(t, err)
	require.EqualValues(t, 2, raw.allocs.Load())
	p.Free(b)
}

func TestRealloc(t *testing.T) {
	p := New(nil)
	b, err := p.Malloc(8)
	require.NoError(t, err)
	copy(b, "abcdefgh")

	b2, err := p.Realloc(b, 16)
	require.NoError(t, err)
	require.Equal(t, 16, len(b2))
	assert.Equal(t, "abcdefgh", string(b2[:8]))

	b3, err := p.Realloc(b2, 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(b3))

	// Realloc hands the replacement to the ledger, Free pools it.
	p.Free(b3)
	st := p.Stats()
	assert.Equal(t, 1, st.PooledBlocks)
	assert.Equal(t, 0, st.InUseBlocks)
}

func TestReallocFailure(t *testing.T) {
	p := New(&Option{Allocator: alloc.Limited(alloc.Host(), 100)})
	b, err := p.Malloc(64)
	require.NoError(t, err)
	copy(b, "scratch")

	// 64 in use, growing to 128 cannot be satisfied while copying.
	_, err = p.Realloc(b, 128)
	require.Error(t, err)
	require.True(t, errors.Is(err, alloc.ErrExhausted))

	// Original untouched, still owned and freeable by the caller.
	assert.Equal(t, "scratch", string(b[:7]))
	p.Free(b)
	assert.Equal(t, 1, p.Stats().PooledBlocks)
}

func TestConcurrent(t *testing.T) {
	const (
		workers = 8
		cycles  = 300
	)
	p := New(nil)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(id)))
			for i := 0; i < cycles; i++ {
				size := 1 + r.Intn(2048)
				b, err := p.Malloc(size)
				if !assert.NoError(t, err) {
					return
				}
				// Stamp the buffer, a double-issued block would get
				// overwritten by the other holder before we read it back.
				for j := range b {
					b[j] = id
				}
				for j := range b {
					if b[j] != id {
						t.Errorf("buffer issued twice: got %d want %d", b[j], id)
						return
					}
				}
				p.Free(b)
			}
		}(byte(w + 1))
	}
	wg.Wait()

	st := p.Stats()
	assert.Equal(t, 0, st.InUseBlocks)
	assert.EqualValues(t, workers*cycles, st.Hits+st.Misses)
	p.Clear()
	assert.Equal(t, 0, p.Stats().PooledBlocks)
}

func Benchmark_MallocFree(b *testing.B) {
	p := New(nil)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			buf, _ := p.Malloc(1 + i&0x3fff)
			p.Free(buf)
			i++
		}
	})
}
