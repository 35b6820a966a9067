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

// Package alloc provides the raw allocation capabilities backing the memory
// pools: a host (Go heap) backend and a device backend standing in for an
// accelerator's memory manager. Allocations are NOT zero-initialized.
package alloc

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when an allocator's byte budget cannot satisfy a
// request. Check with errors.Is, the returned error carries the amounts.
var ErrExhausted = errors.New("alloc: out of memory")

// Allocator is the raw allocation capability of one memory domain.
//
// Allocate returns a buffer with len == cap == size, or an error when the
// underlying primitive cannot satisfy the request. Reallocate returns a new
// buffer of the given size with the overlapping prefix of b copied in; on
// error b is untouched and stays valid. Free releases a buffer obtained from
// the same allocator immediately, passing any other buffer is undefined.
type Allocator interface {
	Allocate(size int) ([]byte, error)
	Reallocate(size int, b []byte) ([]byte, error)
	Free(b []byte)
}

func errSize(size int) error {
	return fmt.Errorf("alloc: invalid size %d", size)
}
