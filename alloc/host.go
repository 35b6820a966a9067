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

package alloc

import (
	"github.com/bytedance/gopkg/lang/dirtmake"
)

type hostAllocator struct{}

// Host returns the Go-heap allocator. Buffers come back dirty, matching raw
// malloc semantics, and Free is a no-op since the garbage collector reclaims
// buffers once the pool drops them.
func Host() Allocator { return hostAllocator{} }

func (hostAllocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errSize(size)
	}
	return dirtmake.Bytes(size, size), nil
}

func (hostAllocator) Reallocate(size int, b []byte) ([]byte, error) {
	if size <= 0 {
		return nil, errSize(size)
	}
	nb := dirtmake.Bytes(size, size)
	copy(nb, b)
	return nb, nil
}

func (hostAllocator) Free(b []byte) {}
