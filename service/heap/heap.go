// Package heap provides the kernel general-purpose allocator used for
// process stacks. It is a bump allocator over one contiguous kernel virtual
// range; memory is never returned.
package heap

import (
	"fmt"
	"sync"

	"github.com/viant/kproc/model/types"
)

// Allocator reserves blocks of kernel memory
type Allocator interface {
	Alloc(size, align uint64) (uint64, error)
}

// Heap is a bump allocator over [start, start+size)
type Heap struct {
	start uint64
	end   uint64
	next  uint64
	mux   sync.Mutex
}

var _ Allocator = (*Heap)(nil)

// Alloc reserves size bytes aligned to align (a power of two, 0 means 16).
func (h *Heap) Alloc(size, align uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("heap: zero size allocation")
	}
	if align == 0 {
		align = 16
	}
	if align&(align-1) != 0 {
		return 0, fmt.Errorf("heap: alignment %d is not a power of two", align)
	}
	h.mux.Lock()
	defer h.mux.Unlock()
	addr := (h.next + align - 1) &^ (align - 1)
	if addr < h.next || addr+size > h.end || addr+size < addr {
		return 0, fmt.Errorf("heap: %d bytes requested, %d left: %w", size, h.end-h.next, types.ErrOutOfMemory)
	}
	h.next = addr + size
	return addr, nil
}

// Used returns the number of bytes handed out, including alignment padding.
func (h *Heap) Used() uint64 {
	h.mux.Lock()
	defer h.mux.Unlock()
	return h.next - h.start
}

// Free returns the number of bytes left.
func (h *Heap) Free() uint64 {
	h.mux.Lock()
	defer h.mux.Unlock()
	return h.end - h.next
}

// New creates a heap over [start, start+size).
func New(start, size uint64) (*Heap, error) {
	if start == 0 {
		return nil, fmt.Errorf("heap: start address is required")
	}
	if size == 0 || start+size < start {
		return nil, fmt.Errorf("heap: invalid size %d", size)
	}
	return &Heap{start: start, end: start + size, next: start}, nil
}
