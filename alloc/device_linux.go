//go:build linux
// +build linux

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
	"fmt"

	"golang.org/x/sys/unix"
)

type deviceAllocator struct{}

// Device returns the device-domain allocator. On linux buffers are anonymous
// private mappings outside the Go heap, standing in for pinned/accelerator
// memory: allocation carries a real syscall cost and Free unmaps immediately.
func Device() Allocator { return deviceAllocator{} }

func (deviceAllocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errSize(size)
	}
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("alloc: device mmap %d bytes: %w", size, err)
	}
	return data, nil
}

func (d deviceAllocator) Reallocate(size int, b []byte) ([]byte, error) {
	nb, err := d.Allocate(size)
	if err != nil {
		return nil, err
	}
	copy(nb, b)
	d.Free(b)
	return nb, nil
}

func (deviceAllocator) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	// Munmap needs the mapping as returned by Mmap, reslice back to full cap.
	_ = unix.Munmap(b[:cap(b)])
}
