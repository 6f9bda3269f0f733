package types

import (
	"errors"
	"fmt"
)

// Kernel error kinds. Callers match them with errors.Is; constructors below
// wrap them with the offending value.
var (
	// ErrOutOfMemory is returned on frame or heap exhaustion.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrProcessTableFull is returned when the registry reached its capacity.
	ErrProcessTableFull = errors.New("process table full")

	// ErrProcessNotFound is returned for an unknown pid.
	ErrProcessNotFound = errors.New("process not found")

	// ErrInvalidPid is returned for a pid that cannot be used in the given context,
	// e.g. a nonexistent parent.
	ErrInvalidPid = errors.New("invalid pid")

	// ErrInvalidState is returned for an illegal state transition.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidMemoryLayout is returned when a process layout cannot be mapped.
	ErrInvalidMemoryLayout = errors.New("invalid memory layout")

	// ErrMappingFailed is returned when a page cannot be installed in a page table.
	ErrMappingFailed = errors.New("mapping failed")

	// ErrNotInitialized is returned when a component is used before its init call.
	ErrNotInitialized = errors.New("not initialized")
)

func NewProcessNotFoundError(pid uint64) error {
	return fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
}

func NewInvalidPidError(pid uint64, reason string) error {
	return fmt.Errorf("pid %d %s: %w", pid, reason, ErrInvalidPid)
}

func NewInvalidStateError(pid uint64, from, to string) error {
	return fmt.Errorf("pid %d: %v -> %v: %w", pid, from, to, ErrInvalidState)
}

func NewProcessTableFullError(capacity int) error {
	return fmt.Errorf("capacity %d: %w", capacity, ErrProcessTableFull)
}

func NewMappingFailedError(virt uint64, reason string) error {
	return fmt.Errorf("page %#x %s: %w", virt, reason, ErrMappingFailed)
}
