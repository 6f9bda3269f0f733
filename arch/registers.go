package arch

const (
	// KernelCodeSelector is the GDT selector of the kernel code segment.
	KernelCodeSelector uint64 = 0x08
	// KernelDataSelector is the GDT selector of the kernel data/stack segment.
	KernelDataSelector uint64 = 0x10

	// InterruptFlag is the IF bit of RFLAGS.
	InterruptFlag uint64 = 1 << 9
	// InitialFlags is a fresh flags value with interrupts enabled (IF plus reserved bit 1).
	InitialFlags uint64 = 0x202

	// WordSize is the size of a stack slot.
	WordSize = 8
)

// Registers is the general-purpose register set.
type Registers struct {
	RAX uint64 `json:"rax" yaml:"rax"`
	RBX uint64 `json:"rbx" yaml:"rbx"`
	RCX uint64 `json:"rcx" yaml:"rcx"`
	RDX uint64 `json:"rdx" yaml:"rdx"`
	RSI uint64 `json:"rsi" yaml:"rsi"`
	RDI uint64 `json:"rdi" yaml:"rdi"`
	RBP uint64 `json:"rbp" yaml:"rbp"`
	R8  uint64 `json:"r8" yaml:"r8"`
	R9  uint64 `json:"r9" yaml:"r9"`
	R10 uint64 `json:"r10" yaml:"r10"`
	R11 uint64 `json:"r11" yaml:"r11"`
	R12 uint64 `json:"r12" yaml:"r12"`
	R13 uint64 `json:"r13" yaml:"r13"`
	R14 uint64 `json:"r14" yaml:"r14"`
	R15 uint64 `json:"r15" yaml:"r15"`
}

// PushOrder returns pointers to the registers in the order a stack-swap
// switch pushes them. Popping walks the slice backwards.
func (r *Registers) PushOrder() []*uint64 {
	return []*uint64{
		&r.RAX, &r.RBX, &r.RCX, &r.RDX, &r.RSI, &r.RDI, &r.RBP,
		&r.R8, &r.R9, &r.R10, &r.R11, &r.R12, &r.R13, &r.R14, &r.R15,
	}
}

// Context is everything needed to resume execution: the general-purpose
// registers plus instruction pointer, stack pointer, flags and selectors.
type Context struct {
	Registers `json:",inline" yaml:",inline"`
	RIP       uint64 `json:"rip" yaml:"rip"`
	RSP       uint64 `json:"rsp" yaml:"rsp"`
	RFlags    uint64 `json:"rflags" yaml:"rflags"`
	CS        uint64 `json:"cs" yaml:"cs"`
	SS        uint64 `json:"ss" yaml:"ss"`
}

// NewContext returns a zeroed kernel-mode context that starts at entry on
// the supplied stack with interrupts enabled.
func NewContext(entry, stackTop uint64) Context {
	return Context{
		RIP:    entry,
		RSP:    stackTop,
		RFlags: InitialFlags,
		CS:     KernelCodeSelector,
		SS:     KernelDataSelector,
	}
}

// TrapFrame is the frame the CPU pushes on interrupt entry, in push order
// reversed (lowest address first). Interrupt return reloads all five fields.
type TrapFrame struct {
	IP    uint64
	CS    uint64
	Flags uint64
	SP    uint64
	SS    uint64
}
