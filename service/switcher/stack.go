package switcher

import (
	"github.com/viant/kproc/arch"
)

// FrameWords is the size of a stack-swap frame: return address, flags and
// fifteen general-purpose registers.
const FrameWords = 17

// FrameSize is the size of a stack-swap frame in bytes.
const FrameSize = FrameWords * arch.WordSize

// PushContext pushes ctx onto the stack at sp in switch order (return
// address, flags, rax ... r15) and returns the new stack pointer.
func PushContext(memory arch.Memory, sp uint64, ctx arch.Context) uint64 {
	push := func(value uint64) {
		sp -= arch.WordSize
		memory.WriteWord(sp, value)
	}
	push(ctx.RIP)
	push(ctx.RFlags)
	for _, reg := range ctx.Registers.PushOrder() {
		push(*reg)
	}
	return sp
}

// PopContext pops a frame written by PushContext. The returned context
// resumes at the popped return address with RSP just above the frame;
// selectors are left zero.
func PopContext(memory arch.Memory, sp uint64) arch.Context {
	var ctx arch.Context
	pop := func() uint64 {
		value := memory.ReadWord(sp)
		sp += arch.WordSize
		return value
	}
	regs := ctx.Registers.PushOrder()
	for i := len(regs) - 1; i >= 0; i-- {
		*regs[i] = pop()
	}
	ctx.RFlags = pop()
	ctx.RIP = pop()
	ctx.RSP = sp
	return ctx
}

// PrepareStack writes the first frame of a process onto its empty stack so
// that popping it starts execution at entry with interrupts enabled. It
// returns the stack pointer to store in the record.
func PrepareStack(memory arch.Memory, top, entry uint64) uint64 {
	ctx := arch.Context{RIP: entry, RFlags: arch.InitialFlags}
	ctx.RBP = top - 2*arch.WordSize
	return PushContext(memory, top, ctx)
}

// Frame prepares initial stacks in a given memory.
type Frame struct {
	memory arch.Memory
}

// Prepare implements registry.InitialFrame.
func (f *Frame) Prepare(top, entry uint64) uint64 {
	return PrepareStack(f.memory, top, entry)
}

// NewFrame creates an initial frame writer.
func NewFrame(memory arch.Memory) *Frame {
	return &Frame{memory: memory}
}
