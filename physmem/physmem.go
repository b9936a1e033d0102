// Package physmem implements the physical memory arena shared by every
// process in the kernel: a fixed byte array with a page-granular
// first-fit allocator layered on top.
package physmem

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

const (
	// PageSize is the allocation granularity, in bytes.
	PageSize = 0x1000

	// Size is the total size of the physical arena, in bytes.
	Size = 0x100000

	pageCount = Size / PageSize
)

// ErrOutOfMemory is returned by Mmap when there are not enough free pages
// to satisfy a request.
var ErrOutOfMemory = errors.New("physmem: insufficient free pages")

// ErrOutOfBounds is returned by Read/Write when the requested range does
// not lie entirely within the arena.
var ErrOutOfBounds = errors.New("physmem: access out of bounds")

// Memory is the physical memory arena. All fields are guarded by mu; the
// zero value is not ready for use, call New instead.
type Memory struct {
	mu   sync.Mutex
	bank [Size]byte
	used [pageCount]bool
	log  *log.Logger
}

// New allocates a zeroed physical memory arena. log may be nil, in which
// case allocation failures are not traced.
func New(logger *log.Logger) *Memory {
	return &Memory{log: logger}
}

// Mmap reserves the first n free pages and returns their physical base
// offsets. Reservation is atomic: either all n pages are reserved, or
// none are and ErrOutOfMemory is returned.
func (m *Memory) Mmap(n int) ([]uint32, error) {
	if n <= 0 {
		return nil, fmt.Errorf("physmem: page count must be > 0, got %d", n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	free := make([]int, 0, n)
	for idx, busy := range m.used {
		if !busy {
			free = append(free, idx)
			if len(free) == n {
				break
			}
		}
	}

	if len(free) < n {
		if m.log != nil {
			m.log.Printf("physmem: mmap(%d) failed, only %d pages free", n, len(free))
		}
		return nil, ErrOutOfMemory
	}

	bases := make([]uint32, n)
	for i, idx := range free {
		m.used[idx] = true
		bases[i] = uint32(idx * PageSize)
	}
	return bases, nil
}

// Read copies n bytes starting at the physical address phys.
func (m *Memory) Read(phys uint32, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := uint64(phys) + uint64(n)
	if end > Size {
		return nil, ErrOutOfBounds
	}

	out := make([]byte, n)
	copy(out, m.bank[phys:uint32(end)])
	return out, nil
}

// Write copies data into the arena starting at the physical address phys.
func (m *Memory) Write(phys uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := uint64(phys) + uint64(len(data))
	if end > Size {
		return ErrOutOfBounds
	}

	copy(m.bank[phys:uint32(end)], data)
	return nil
}
