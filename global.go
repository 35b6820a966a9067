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
	"sync"

	"github.com/blocksparse/mempool/alloc"
)

// The process-wide pools, one per memory domain. Lazily initialized so the
// device backend is never touched by host-only programs.
var (
	hostOnce sync.Once
	hostPool *Pool

	deviceOnce sync.Once
	devicePool *Pool
)

// Host returns the process-wide host-memory pool.
func Host() *Pool {
	hostOnce.Do(func() {
		hostPool = New(&Option{Allocator: alloc.Host()})
	})
	return hostPool
}

// Device returns the process-wide device-memory pool.
func Device() *Pool {
	deviceOnce.Do(func() {
		devicePool = New(&Option{Allocator: alloc.Device()})
	})
	return devicePool
}

// HostMalloc allocates size bytes from the host pool.
func HostMalloc(size int) ([]byte, error) {
	return Host().Malloc(size)
}

// DeviceMalloc allocates size bytes from the device pool.
func DeviceMalloc(size int) ([]byte, error) {
	return Device().Malloc(size)
}

// Free returns buf to whichever process-wide pool issued it. Buffers from
// pools built with New must go through that pool's own Free.
func Free(buf []byte) {
	if Host().tryFree(buf) {
		return
	}
	Device().tryFree(buf)
}

// Clear releases all pooled memory of both domains back to the system.
// Callers must quiesce in-flight kernels first, see Pool.Clear.
func Clear() {
	Host().Clear()
	Device().Clear()
}

// HostStats returns the host pool's counters.
func HostStats() Stats { return Host().Stats() }

// DeviceStats returns the device pool's counters.
func DeviceStats() Stats { return Device().Stats() }
