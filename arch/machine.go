package arch

import "reflect"

// InterruptController masks and acknowledges hardware interrupts.
type InterruptController interface {
	// DisableInterrupts clears the interrupt flag and reports whether it was set.
	DisableInterrupts() bool
	// RestoreInterrupts ends a DisableInterrupts section, setting the
	// interrupt flag back to enabled.
	RestoreInterrupts(enabled bool)
	// AcknowledgeTimer sends end-of-interrupt for the timer line.
	AcknowledgeTimer()
}

// Memory is word-granular access to kernel-visible memory. Physical memory
// is reached through the physical-memory offset mapping.
type Memory interface {
	ReadWord(addr uint64) uint64
	WriteWord(addr uint64, value uint64)
}

// CPU exposes the register file and control-transfer primitives.
type CPU interface {
	// SaveRegisters copies the general-purpose registers out of the CPU.
	SaveRegisters() Registers
	// LoadRegisters copies the general-purpose registers into the CPU.
	LoadRegisters(regs Registers)
	// Capture returns the full context at the call site; RIP is the return address.
	Capture() Context
	// Resume performs a return-like transfer into ctx. On hardware it does not return.
	Resume(ctx Context)
	// ActivePageTable returns the physical address of the active top-level table.
	ActivePageTable() uint64
	// SwitchPageTable loads a new top-level table.
	SwitchPageTable(root uint64)
}

// Machine is the single-CPU hardware the kernel core runs on.
type Machine interface {
	InterruptController
	Memory
	CPU
	// SetTimerHandler installs the timer trap entry point.
	SetTimerHandler(handler func(frame *TrapFrame))
}

// EntryAddress returns the code address of a process entry point.
func EntryAddress(entry func()) uint64 {
	if entry == nil {
		return 0
	}
	return uint64(reflect.ValueOf(entry).Pointer())
}
