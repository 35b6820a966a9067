package alloc

import (
	"fmt"
	"sync"
)

type limitedAllocator struct {
	inner Allocator

	mu     sync.Mutex
	budget int
	used   int
}

// Limited wraps inner with a total byte budget, the way accelerator runtimes
// cap device memory. Requests that would push the outstanding bytes past
// maxBytes fail with ErrExhausted instead of reaching the inner allocator.
func Limited(inner Allocator, maxBytes int) Allocator {
	return &limitedAllocator{inner: inner, budget: maxBytes}
}

func (l *limitedAllocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errSize(size)
	}
	if err := l.charge(size); err != nil {
		return nil, err
	}
	b, err := l.inner.Allocate(size)
	if err != nil {
		l.refund(size)
		return nil, err
	}
	return b, nil
}

func (l *limitedAllocator) Reallocate(size int, b []byte) ([]byte, error) {
	if size <= 0 {
		return nil, errSize(size)
	}
	// The old buffer stays charged while its contents are copied over.
	if err := l.charge(size); err != nil {
		return nil, err
	}
	nb, err := l.inner.Reallocate(size, b)
	if err != nil {
		l.refund(size)
		return nil, err
	}
	l.refund(cap(b))
	return nb, nil
}

func (l *limitedAllocator) Free(b []byte) {
	l.inner.Free(b)
	l.refund(cap(b))
}

func (l *limitedAllocator) charge(size int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used+size > l.budget {
		return fmt.Errorf("alloc: %d bytes with %d of %d in use: %w",
			size, l.used, l.budget, ErrExhausted)
	}
	l.used += size
	return nil
}

func (l *limitedAllocator) refund(size int) {
	l.mu.Lock()
	l.used -= size
	l.mu.Unlock()
}
