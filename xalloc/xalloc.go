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

// Package xalloc layers typed allocation over a byte pool: raw buffers are
// reinterpreted as []T without copying. T must not contain pointers, the
// garbage collector does not see through the reinterpretation.
package xalloc

import (
	"fmt"
	"math"
	"math/bits"
	"unsafe"

	"github.com/blocksparse/mempool"
)

// Malloc allocates n elements of T from p. The elements are NOT
// zero-initialized, reused pool blocks carry their previous contents.
func Malloc[T any](p *mempool.Pool, n int) ([]T, error) {
	size, err := byteCount[T](n)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []T{}, nil
	}
	buf, err := p.Malloc(size)
	if err != nil {
		return nil, err
	}
	return asTyped[T](buf, n), nil
}

// Calloc allocates n elements of T from p with every byte zeroed.
func Calloc[T any](p *mempool.Pool, n int) ([]T, error) {
	s, err := Malloc[T](p, n)
	if err != nil {
		return nil, err
	}
	clear(s)
	return s, nil
}

// Realloc resizes s to n elements, preserving the first min(len(s), n)
// elements. It goes through the raw resize primitive, not the pool's free
// list. On failure s stays valid and still owned by the caller; on success
// s must not be used again. A nil s behaves like Malloc.
func Realloc[T any](p *mempool.Pool, s []T, n int) ([]T, error) {
	size, err := byteCount[T](n)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		Free(p, s)
		return []T{}, nil
	}
	buf, err := p.Realloc(asBytes(s), size)
	if err != nil {
		return nil, err
	}
	return asTyped[T](buf, n), nil
}

// Free returns a typed allocation to p. s must be the slice returned by
// Malloc/Calloc/Realloc on the same pool (any len, same start).
func Free[T any](p *mempool.Pool, s []T) {
	if cap(s) == 0 {
		return
	}
	p.Free(asBytes(s[:cap(s)]))
}

// HostAlloc allocates n elements of T from the process-wide host pool.
func HostAlloc[T any](n int) ([]T, error) {
	return Malloc[T](mempool.Host(), n)
}

// HostCalloc allocates n zeroed elements of T from the host pool.
func HostCalloc[T any](n int) ([]T, error) {
	return Calloc[T](mempool.Host(), n)
}

// HostRealloc resizes a host-pool allocation to n elements.
func HostRealloc[T any](s []T, n int) ([]T, error) {
	return Realloc(mempool.Host(), s, n)
}

// HostFree returns a host-pool typed allocation.
func HostFree[T any](s []T) {
	Free(mempool.Host(), s)
}

// byteCount computes n*sizeof(T), rejecting negative counts and overflow
// instead of wrapping around.
func byteCount[T any](n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("xalloc: invalid count %d", n)
	}
	var zero T
	elem := uint64(unsafe.Sizeof(zero))
	hi, lo := bits.Mul64(uint64(n), elem)
	if hi != 0 || lo > uint64(math.MaxInt) {
		return 0, fmt.Errorf("xalloc: %d elements of %d bytes overflows", n, elem)
	}
	return int(lo), nil
}

func asTyped[T any](b []byte, n int) []T {
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

func asBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}
