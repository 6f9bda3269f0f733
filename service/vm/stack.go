package vm

import (
	"fmt"

	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/heap"
)

const (
	// DefaultKernelStackSize is the kernel stack size of a process.
	DefaultKernelStackSize = 8 * 1024
	// DefaultUserStackSize is the user stack size of a process.
	DefaultUserStackSize = 16 * 1024
)

// Stacks reserves process stacks from the kernel heap. Stacks are never freed.
type Stacks struct {
	heap       heap.Allocator
	kernelSize uint64
	userSize   uint64
}

// AllocateKernelStack reserves a kernel stack; use Top() as the initial stack pointer.
func (s *Stacks) AllocateKernelStack() (process.Stack, error) {
	return s.allocate("kernel", s.kernelSize)
}

// AllocateUserStack reserves a user stack; use Top() as the initial stack pointer.
func (s *Stacks) AllocateUserStack() (process.Stack, error) {
	return s.allocate("user", s.userSize)
}

func (s *Stacks) allocate(kind string, size uint64) (process.Stack, error) {
	base, err := s.heap.Alloc(size, process.PageSize)
	if err != nil {
		return process.Stack{}, fmt.Errorf("failed to allocate %v stack: %w", kind, err)
	}
	return process.Stack{Base: base, Size: size}, nil
}

// NewStacks creates a stack allocator; zero sizes fall back to defaults.
func NewStacks(allocator heap.Allocator, kernelSize, userSize uint64) (*Stacks, error) {
	if allocator == nil {
		return nil, fmt.Errorf("heap allocator is required")
	}
	if kernelSize == 0 {
		kernelSize = DefaultKernelStackSize
	}
	if userSize == 0 {
		userSize = DefaultUserStackSize
	}
	if kernelSize%16 != 0 || userSize%16 != 0 {
		return nil, fmt.Errorf("stack sizes must be 16 byte multiples: %d, %d", kernelSize, userSize)
	}
	return &Stacks{heap: allocator, kernelSize: kernelSize, userSize: userSize}, nil
}
