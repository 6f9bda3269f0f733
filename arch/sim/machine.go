// Package sim implements arch.Machine in software: one CPU with an interrupt
// flag, a register file, a sparse memory and a timer line. Timer interrupts
// raised while interrupts are masked stay pending and are delivered as soon
// as the flag is set again, which is what makes lock-discipline bugs
// observable in tests.
//
// Goroutines share the one CPU. A section opened by DisableInterrupts owns
// the CPU until RestoreInterrupts, and a delivered interrupt owns it until
// its handler returns, so ordinary code never interleaves with a handler.
package sim

import (
	"sync"

	"github.com/viant/kproc/arch"
)

// Config describes the boot state of a simulated machine.
type Config struct {
	// ActivePageTable is the physical address of the boot top-level table.
	ActivePageTable uint64
	// BootStack is the stack pointer of the boot execution context.
	BootStack uint64
	// InterruptsDisabled starts the CPU with the interrupt flag cleared.
	InterruptsDisabled bool
}

// Counters reports timer line activity.
type Counters struct {
	Raised       int
	Delivered    int
	Acknowledged int
	Pending      int
}

// Machine is a simulated single-CPU machine.
type Machine struct {
	memory   *Memory
	cpu      arch.Context
	root     uint64
	handler  func(frame *arch.TrapFrame)
	counters Counters
	mux      sync.Mutex
	// exec is held by the owner of the CPU: a masked section or a handler.
	exec sync.Mutex
}

var _ arch.Machine = (*Machine)(nil)

// ReadWord reads memory.
func (m *Machine) ReadWord(addr uint64) uint64 { return m.memory.ReadWord(addr) }

// WriteWord writes memory.
func (m *Machine) WriteWord(addr uint64, value uint64) { m.memory.WriteWord(addr, value) }

// Memory returns the backing memory.
func (m *Machine) Memory() *Memory { return m.memory }

// DisableInterrupts waits for the CPU, clears IF and reports its previous
// value. The caller owns the CPU until RestoreInterrupts; sections do not
// nest.
func (m *Machine) DisableInterrupts() bool {
	m.exec.Lock()
	m.mux.Lock()
	defer m.mux.Unlock()
	enabled := m.cpu.RFlags&arch.InterruptFlag != 0
	m.cpu.RFlags &^= arch.InterruptFlag
	return enabled
}

// RestoreInterrupts ends a section opened by DisableInterrupts, setting IF
// back to enabled. Pending timer ticks are delivered once IF is set.
func (m *Machine) RestoreInterrupts(enabled bool) {
	m.mux.Lock()
	if enabled {
		m.cpu.RFlags |= arch.InterruptFlag
	}
	m.mux.Unlock()
	m.exec.Unlock()
	m.drain()
}

// InterruptsEnabled reports the IF bit.
func (m *Machine) InterruptsEnabled() bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.cpu.RFlags&arch.InterruptFlag != 0
}

// AcknowledgeTimer records an end-of-interrupt.
func (m *Machine) AcknowledgeTimer() {
	m.mux.Lock()
	m.counters.Acknowledged++
	m.mux.Unlock()
}

// SaveRegisters returns the general-purpose registers.
func (m *Machine) SaveRegisters() arch.Registers {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.cpu.Registers
}

// LoadRegisters replaces the general-purpose registers.
func (m *Machine) LoadRegisters(regs arch.Registers) {
	m.mux.Lock()
	m.cpu.Registers = regs
	m.mux.Unlock()
}

// Capture returns the current CPU context.
func (m *Machine) Capture() arch.Context {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.cpu
}

// Resume loads ctx into the CPU. The interrupt flag is left as is: it is
// restored when the caller's critical section ends.
func (m *Machine) Resume(ctx arch.Context) {
	m.mux.Lock()
	defer m.mux.Unlock()
	flag := m.cpu.RFlags & arch.InterruptFlag
	m.cpu = ctx
	m.cpu.RFlags = ctx.RFlags&^arch.InterruptFlag | flag
}

// ActivePageTable returns the active top-level table.
func (m *Machine) ActivePageTable() uint64 {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.root
}

// SwitchPageTable loads a new top-level table.
func (m *Machine) SwitchPageTable(root uint64) {
	m.mux.Lock()
	m.root = root
	m.mux.Unlock()
}

// SetTimerHandler installs the timer trap entry point.
func (m *Machine) SetTimerHandler(handler func(frame *arch.TrapFrame)) {
	m.mux.Lock()
	m.handler = handler
	m.mux.Unlock()
}

// SetState replaces the CPU context, including the interrupt flag.
func (m *Machine) SetState(ctx arch.Context) {
	m.mux.Lock()
	m.cpu = ctx
	m.mux.Unlock()
	m.drain()
}

// Counters returns timer line counters.
func (m *Machine) Counters() Counters {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.counters
}

// RaiseTimer signals the timer line. It reports whether the tick was
// delivered immediately; otherwise it stays pending until the CPU is free
// with interrupts enabled. It never blocks, so it may be called from inside
// a masked section.
func (m *Machine) RaiseTimer() bool {
	m.mux.Lock()
	m.counters.Raised++
	m.counters.Pending++
	m.mux.Unlock()
	if !m.exec.TryLock() {
		return false
	}
	delivered := false
	for m.takePending() {
		m.deliver()
		delivered = true
	}
	m.exec.Unlock()
	m.drain()
	return delivered
}

// takePending claims one pending tick if it can be delivered now.
func (m *Machine) takePending() bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.counters.Pending == 0 || m.cpu.RFlags&arch.InterruptFlag == 0 || m.handler == nil {
		return false
	}
	m.counters.Pending--
	return true
}

func (m *Machine) deliverable() bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.counters.Pending > 0 && m.cpu.RFlags&arch.InterruptFlag != 0 && m.handler != nil
}

// deliver emulates interrupt entry, the handler call and interrupt return.
// The caller owns the CPU.
func (m *Machine) deliver() {
	m.mux.Lock()
	handler := m.handler
	frame := arch.TrapFrame{IP: m.cpu.RIP, CS: m.cpu.CS, Flags: m.cpu.RFlags, SP: m.cpu.RSP, SS: m.cpu.SS}
	m.cpu.RFlags &^= arch.InterruptFlag
	m.counters.Delivered++
	m.mux.Unlock()

	handler(&frame)

	m.mux.Lock()
	m.cpu.RIP = frame.IP
	m.cpu.CS = frame.CS
	m.cpu.RFlags = frame.Flags
	m.cpu.RSP = frame.SP
	m.cpu.SS = frame.SS
	m.mux.Unlock()
}

// drain delivers pending ticks while the CPU is free. A busy CPU is left
// alone: its owner drains when it lets go.
func (m *Machine) drain() {
	for m.deliverable() {
		if !m.exec.TryLock() {
			return
		}
		for m.takePending() {
			m.deliver()
		}
		m.exec.Unlock()
	}
}

// New creates a simulated machine.
func New(config Config) *Machine {
	ret := &Machine{memory: NewMemory(), root: config.ActivePageTable}
	ret.cpu = arch.NewContext(0, config.BootStack)
	if config.InterruptsDisabled {
		ret.cpu.RFlags &^= arch.InterruptFlag
	}
	return ret
}
