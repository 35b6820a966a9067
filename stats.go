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

import "sync/atomic"

// Stats is a snapshot of a pool's counters.
type Stats struct {
	// Hits counts Malloc calls served from the free list,
	// Misses those that went to the raw allocator.
	Hits   int64
	Misses int64
	// Frees counts buffers returned to the free list.
	Frees int64

	// PooledBlocks/PooledBytes cover the free list,
	// InUseBlocks/InUseBytes the buffers currently handed out.
	// Byte figures are capacities, not requested sizes.
	PooledBlocks int
	PooledBytes  int64
	InUseBlocks  int
	InUseBytes   int64
}

type stats struct {
	hits   atomic.Int64
	misses atomic.Int64
	frees  atomic.Int64

	pooledBytes atomic.Int64
	inUseBytes  atomic.Int64
}

func (s *stats) hit(c int) {
	s.hits.Add(1)
	s.pooledBytes.Add(-int64(c))
	s.inUseBytes.Add(int64(c))
}

func (s *stats) miss(c int) {
	s.misses.Add(1)
	s.inUseBytes.Add(int64(c))
}

func (s *stats) put(c int) {
	s.frees.Add(1)
	s.inUseBytes.Add(-int64(c))
	s.pooledBytes.Add(int64(c))
}

// trackInUse registers an in-use buffer that didn't come through Malloc,
// i.e. the replacement handed out by Realloc.
func (s *stats) trackInUse(c int) { s.inUseBytes.Add(int64(c)) }

func (s *stats) dropPooled(c int) { s.pooledBytes.Add(-int64(c)) }

func (s *stats) dropInUse(c int) { s.inUseBytes.Add(-int64(c)) }

// Stats returns a consistent snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	st := Stats{
		Hits:         p.stats.hits.Load(),
		Misses:       p.stats.misses.Load(),
		Frees:        p.stats.frees.Load(),
		PooledBlocks: len(p.free),
		PooledBytes:  p.stats.pooledBytes.Load(),
		InUseBlocks:  len(p.inUse),
		InUseBytes:   p.stats.inUseBytes.Load(),
	}
	p.mu.Unlock()
	return st
}
