package registry

import (
	"log/slog"

	"github.com/viant/kproc/internal/clock"
	"github.com/viant/kproc/internal/irq"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/dao"
	"github.com/viant/kproc/service/scheduler"
)

type Option func(*Registry)

// WithConfig sets the registry configuration
func WithConfig(config Config) Option {
	return func(r *Registry) {
		r.config = config
	}
}

// WithLock sets the interrupt-safe lock guarding the table
func WithLock(lock *irq.Lock) Option {
	return func(r *Registry) {
		r.lock = lock
	}
}

// WithAddressSpaceBuilder sets the per-process address space builder
func WithAddressSpaceBuilder(builder AddressSpaceBuilder) Option {
	return func(r *Registry) {
		r.spaces = builder
	}
}

// WithStackAllocator sets the kernel/user stack allocator
func WithStackAllocator(stacks StackAllocator) Option {
	return func(r *Registry) {
		r.stacks = stacks
	}
}

// WithInitialFrame sets the writer of the first stack-swap frame of new processes
func WithInitialFrame(frame InitialFrame) Option {
	return func(r *Registry) {
		r.frame = frame
	}
}

// WithScheduler overrides the scheduling policy selected by config
func WithScheduler(s scheduler.Scheduler) Option {
	return func(r *Registry) {
		r.scheduler = s
	}
}

// WithHistory sets the log receiving killed records
func WithHistory(history dao.Service[process.PID, process.Record]) Option {
	return func(r *Registry) {
		r.history = history
	}
}

// WithCounter sets the logical clock used for creation times
func WithCounter(counter *clock.Counter) Option {
	return func(r *Registry) {
		r.counter = counter
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}
