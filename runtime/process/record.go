package process

import (
	"strconv"

	"github.com/viant/kproc/arch"
)

// PID identifies a process. PIDs are never reused.
type PID uint64

// KernelPID is the kernel bootstrap context; it cannot be terminated.
const KernelPID PID = 0

func (p PID) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// Suspension tells how the saved machine state of a record is stored.
type Suspension string

const (
	// SuspendedNone means the record never left the CPU (or never ran and has no frame).
	SuspendedNone Suspension = ""
	// SuspendedTrap means Context holds the state captured from a trap frame.
	SuspendedTrap Suspension = "trap"
	// SuspendedStack means the state sits on the kernel stack at SavedStackPointer.
	SuspendedStack Suspension = "stack"
)

// Record is a process control block
type Record struct {
	PID               PID           `json:"pid"`
	ParentPID         *PID          `json:"parentPid,omitempty"`
	Name              string        `json:"name"`
	State             State         `json:"state"`
	Priority          int           `json:"priority"`
	Entry             uint64        `json:"entry"`
	// Context is the saved CPU state. While suspended on the stack it keeps
	// only the selectors and RSP; the registers sit at SavedStackPointer.
	Context           arch.Context  `json:"context"`
	AddressSpace      *AddressSpace `json:"addressSpace,omitempty"`
	KernelStack       Stack         `json:"kernelStack"`
	UserStack         Stack         `json:"userStack"`
	SavedStackPointer uint64        `json:"savedStackPointer"`
	Suspension        Suspension    `json:"suspension,omitempty"`
	CreatedAt         uint64        `json:"createdAt"`
	TerminatedAt      uint64        `json:"terminatedAt,omitempty"`
}

// IsActive returns true when the process is Ready or Running.
func (r *Record) IsActive() bool {
	return r.State.IsActive()
}

// IsChildOf returns true when parent created this process.
func (r *Record) IsChildOf(parent PID) bool {
	return r.ParentPID != nil && *r.ParentPID == parent
}

// IsKernel returns true for the bootstrap record.
func (r *Record) IsKernel() bool {
	return r.PID == KernelPID
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	ret := *r
	if r.ParentPID != nil {
		parent := *r.ParentPID
		ret.ParentPID = &parent
	}
	ret.AddressSpace = r.AddressSpace.Clone()
	return &ret
}

// GetState returns the record state; used by generic criteria filters.
func (r *Record) GetState() string {
	return string(r.State)
}
