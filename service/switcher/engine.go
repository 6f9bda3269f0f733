// Package switcher suspends one execution context and resumes another. The
// timer path rewrites the trap frame so that interrupt return lands in the
// incoming process; the yield path swaps register frames on the kernel
// stacks of the two processes. A record suspended by either path can be
// resumed by the other.
package switcher

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/viant/kproc/arch"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/registry"
)

// DefaultQuantum is the number of timer ticks a process runs before the
// scheduler reconsiders.
const DefaultQuantum = 18

// Mode tells which path performed a switch
type Mode string

const (
	ModePreempt Mode = "preempt"
	ModeYield   Mode = "yield"
)

// Switch describes a completed context switch
type Switch struct {
	From     process.PID
	HasFrom  bool
	To       process.PID
	Mode     Mode
	Tick     uint64
	RootSwap bool
}

// Observer is notified of timer ticks and completed switches. It is called
// after the registry lock is released; on the timer path it runs in
// interrupt context and must not block.
type Observer interface {
	Ticked(tick uint64, reschedule bool)
	Switched(sw Switch)
}

// Engine is the context-switch engine
type Engine struct {
	machine  arch.Machine
	registry *registry.Registry
	quantum  uint64
	ticks    atomic.Uint64
	observer Observer
	logger   *slog.Logger
	// CPU owner; guarded by the registry lock.
	onCPU    process.PID
	hasOwner bool
}

// Ticks returns the number of timer ticks handled.
func (e *Engine) Ticks() uint64 {
	return e.ticks.Load()
}

// Quantum returns the reschedule period in ticks.
func (e *Engine) Quantum() uint64 {
	return e.quantum
}

// Owner returns the pid whose state is on the CPU.
func (e *Engine) Owner() (process.PID, bool) {
	var pid process.PID
	var ok bool
	_ = e.registry.Exclusive(func(t *registry.Table) error {
		pid, ok = e.onCPU, e.hasOwner
		return nil
	})
	return pid, ok
}

// OnTimer is the timer trap handler. Every tick is acknowledged; every
// quantum-th tick reschedules and, when another process is chosen, rewrites
// frame to resume it.
func (e *Engine) OnTimer(frame *arch.TrapFrame) {
	tick := e.ticks.Add(1)
	reschedule := tick%e.quantum == 0
	var sw *Switch
	if reschedule {
		e.registry.Interrupt(func(t *registry.Table) {
			sw = e.preempt(t, frame, tick)
		})
	}
	e.machine.AcknowledgeTimer()
	if e.observer != nil {
		e.observer.Ticked(tick, reschedule)
		if sw != nil {
			e.observer.Switched(*sw)
		}
	}
}

func (e *Engine) preempt(t *registry.Table, frame *arch.TrapFrame, tick uint64) *Switch {
	outgoing := e.owner(t)
	next, ok := t.Schedule()
	if !ok || (e.hasOwner && next == e.onCPU) {
		return nil
	}
	incoming := t.Lookup(next)
	if incoming == nil {
		return nil
	}
	if outgoing != nil {
		outgoing.Context.RIP = frame.IP
		outgoing.Context.CS = frame.CS
		outgoing.Context.RFlags = frame.Flags
		outgoing.Context.RSP = frame.SP
		outgoing.Context.SS = frame.SS
		outgoing.Context.Registers = e.machine.SaveRegisters()
		outgoing.Suspension = process.SuspendedTrap
	}
	ctx := e.resumeContext(incoming)
	frame.IP = ctx.RIP
	frame.CS = ctx.CS
	frame.Flags = ctx.RFlags
	frame.SP = ctx.RSP
	frame.SS = ctx.SS
	e.machine.LoadRegisters(ctx.Registers)
	sw := e.transfer(incoming, ModePreempt, tick)
	e.logger.Debug("preempted", "from", sw.From, "to", sw.To, "tick", tick)
	return sw
}

// Yield gives up the CPU. The caller's registers are pushed onto its stack
// and the scheduled process is resumed from its saved frame or context.
// Yield returns nil without switching when nothing else is runnable.
func (e *Engine) Yield() error {
	var sw *Switch
	err := e.registry.Exclusive(func(t *registry.Table) error {
		// the caller runs with interrupts enabled; only the lock masks them
		ctx := e.machine.Capture()
		ctx.RFlags |= arch.InterruptFlag
		outgoing := e.owner(t)
		if outgoing != nil && ctx.RSP == 0 {
			return fmt.Errorf("pid %v: no stack to suspend on", outgoing.PID)
		}
		next, ok := t.Schedule()
		if !ok || (e.hasOwner && next == e.onCPU) {
			return nil
		}
		incoming := t.Lookup(next)
		if incoming == nil {
			return nil
		}
		if outgoing != nil {
			sp := PushContext(e.machine, ctx.RSP, ctx)
			outgoing.SavedStackPointer = sp
			outgoing.Context = arch.Context{CS: ctx.CS, SS: ctx.SS, RSP: sp}
			outgoing.Suspension = process.SuspendedStack
		}
		resume := e.resumeContext(incoming)
		sw = e.transfer(incoming, ModeYield, e.ticks.Load())
		e.machine.Resume(resume)
		return nil
	})
	if err != nil {
		return err
	}
	if sw != nil {
		e.logger.Debug("yielded", "from", sw.From, "to", sw.To)
		if e.observer != nil {
			e.observer.Switched(*sw)
		}
	}
	return nil
}

// owner returns the live record whose state is on the CPU.
func (e *Engine) owner(t *registry.Table) *process.Record {
	if !e.hasOwner {
		return nil
	}
	return t.Lookup(e.onCPU)
}

// resumeContext returns the full context of a suspended record, popping its
// stack frame when it was suspended on its stack.
func (e *Engine) resumeContext(record *process.Record) arch.Context {
	if record.Suspension == process.SuspendedStack {
		ctx := PopContext(e.machine, record.SavedStackPointer)
		ctx.CS, ctx.SS = record.Context.CS, record.Context.SS
		if ctx.CS == 0 {
			ctx.CS, ctx.SS = arch.KernelCodeSelector, arch.KernelDataSelector
		}
		record.Context = ctx
		record.SavedStackPointer = 0
	}
	record.Suspension = process.SuspendedNone
	return record.Context
}

// transfer switches the address space and records the new CPU owner.
func (e *Engine) transfer(incoming *process.Record, mode Mode, tick uint64) *Switch {
	sw := &Switch{From: e.onCPU, HasFrom: e.hasOwner, To: incoming.PID, Mode: mode, Tick: tick}
	if space := incoming.AddressSpace; space != nil && space.Root != 0 && space.Root != e.machine.ActivePageTable() {
		e.machine.SwitchPageTable(space.Root)
		sw.RootSwap = true
	}
	e.onCPU, e.hasOwner = incoming.PID, true
	return sw
}

// New creates an engine and installs OnTimer as the machine's timer handler.
// The running registry record, normally the kernel, is taken as the initial
// CPU owner.
func New(machine arch.Machine, reg *registry.Registry, options ...Option) (*Engine, error) {
	if machine == nil {
		return nil, fmt.Errorf("machine is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	ret := &Engine{machine: machine, registry: reg, quantum: DefaultQuantum}
	for _, option := range options {
		option(ret)
	}
	if ret.quantum == 0 {
		return nil, fmt.Errorf("quantum must be > 0")
	}
	if ret.logger == nil {
		ret.logger = slog.Default()
	}
	ret.onCPU, ret.hasOwner = reg.Running()
	machine.SetTimerHandler(ret.OnTimer)
	return ret, nil
}
