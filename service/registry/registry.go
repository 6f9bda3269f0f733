// Package registry is the authoritative process table: pid allocation,
// lookup, parent/child indexing and lifecycle transitions. The table, the
// ready queue and the current-running cache are guarded by one irq.Lock;
// ordinary callers hold it with interrupts masked, the timer handler takes
// it through Interrupt.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/viant/kproc/arch"
	"github.com/viant/kproc/internal/clock"
	"github.com/viant/kproc/internal/irq"
	"github.com/viant/kproc/model/types"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/dao"
	"github.com/viant/kproc/service/dao/process/memory"
	"github.com/viant/kproc/service/scheduler"
)

// AddressSpaceBuilder creates the address space of a new process
type AddressSpaceBuilder interface {
	Create(entry uint64) (*process.AddressSpace, error)
}

// StackAllocator reserves process stacks
type StackAllocator interface {
	AllocateKernelStack() (process.Stack, error)
	AllocateUserStack() (process.Stack, error)
}

// InitialFrame writes the first stack-swap frame of a process onto its
// kernel stack and returns the resulting stack pointer.
type InitialFrame interface {
	Prepare(top, entry uint64) uint64
}

// Config represents registry configuration
type Config struct {
	// Capacity is the maximum number of live records, the kernel record included.
	Capacity int `json:"capacity" yaml:"capacity"`
	// AutoAdmit moves new records to Ready on creation; otherwise call Admit.
	AutoAdmit bool `json:"autoAdmit" yaml:"autoAdmit"`
	// Policy is the scheduling policy name: fifo or scan.
	Policy string `json:"policy" yaml:"policy"`
}

// DefaultConfig returns the default registry configuration
func DefaultConfig() Config {
	return Config{
		Capacity:  1024,
		AutoAdmit: true,
		Policy:    scheduler.PolicyFIFO,
	}
}

// Request describes a process to create
type Request struct {
	Name     string
	Parent   *process.PID
	Priority int
	Entry    uint64
}

// Registry is the process table
type Registry struct {
	config     Config
	lock       *irq.Lock
	table      *memory.Service
	queue      *scheduler.Queue
	scheduler  scheduler.Scheduler
	current    process.PID
	hasCurrent bool
	nextPID    process.PID
	schedules  uint64
	spaces     AddressSpaceBuilder
	stacks     StackAllocator
	frame      InitialFrame
	history    dao.Service[process.PID, process.Record]
	counter    *clock.Counter
	logger     *slog.Logger
}

// Exclusive runs fn holding the lock with interrupts masked.
func (r *Registry) Exclusive(fn func(t *Table) error) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return fn(&Table{r: r})
}

// Interrupt runs fn holding the lock from interrupt context.
func (r *Registry) Interrupt(fn func(t *Table)) {
	r.lock.LockInterrupt()
	defer r.lock.UnlockInterrupt()
	fn(&Table{r: r})
}

// Bootstrap installs pid 0, the kernel's own execution context, as the
// running process. root is the active page-table root.
func (r *Registry) Bootstrap(root uint64) error {
	return r.Exclusive(func(t *Table) error {
		if t.Lookup(process.KernelPID) != nil {
			return fmt.Errorf("kernel process already bootstrapped")
		}
		if r.hasCurrent {
			return types.NewInvalidStateError(uint64(process.KernelPID), string(process.StateNew), string(process.StateRunning))
		}
		record := &process.Record{
			PID:          process.KernelPID,
			Name:         "kernel",
			State:        process.StateRunning,
			Context:      arch.NewContext(0, 0),
			AddressSpace: &process.AddressSpace{Root: root},
			CreatedAt:    r.counter.Next(),
		}
		if err := r.table.Save(context.Background(), record); err != nil {
			return err
		}
		r.current, r.hasCurrent = process.KernelPID, true
		return nil
	})
}

// Create builds stacks and an address space and inserts a New record. The
// pid is assigned only once everything succeeded, so a failed creation leaves
// the registry unchanged.
func (r *Registry) Create(ctx context.Context, request *Request) (process.PID, error) {
	if request == nil {
		return 0, fmt.Errorf("request is required")
	}
	if request.Entry == 0 {
		return 0, fmt.Errorf("entry point is required")
	}
	var pid process.PID
	err := r.Exclusive(func(t *Table) error {
		if request.Parent != nil && t.Lookup(*request.Parent) == nil {
			return types.NewInvalidPidError(uint64(*request.Parent), "parent does not exist")
		}
		if r.table.Len() >= r.config.Capacity {
			return types.NewProcessTableFullError(r.config.Capacity)
		}
		kernelStack, err := r.stacks.AllocateKernelStack()
		if err != nil {
			return err
		}
		userStack, err := r.stacks.AllocateUserStack()
		if err != nil {
			return err
		}
		space, err := r.spaces.Create(request.Entry)
		if err != nil {
			return err
		}
		record := &process.Record{
			PID:          r.nextPID,
			Name:         request.Name,
			State:        process.StateNew,
			Priority:     request.Priority,
			Entry:        request.Entry,
			Context:      arch.NewContext(request.Entry, kernelStack.Top()),
			AddressSpace: space,
			KernelStack:  kernelStack,
			UserStack:    userStack,
			CreatedAt:    r.counter.Next(),
		}
		if request.Parent != nil {
			parent := *request.Parent
			record.ParentPID = &parent
		}
		if r.frame != nil {
			record.SavedStackPointer = r.frame.Prepare(kernelStack.Top(), request.Entry)
			record.Suspension = process.SuspendedStack
		}
		if err = r.table.Save(ctx, record); err != nil {
			return err
		}
		r.nextPID++
		pid = record.PID
		if r.config.AutoAdmit {
			return t.transition(record, process.StateReady)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create process %q: %w", request.Name, err)
	}
	r.logger.Debug("process created", "pid", pid, "name", request.Name)
	return pid, nil
}

// Admit moves a New record to Ready and queues it.
func (r *Registry) Admit(pid process.PID) error {
	return r.Exclusive(func(t *Table) error {
		record := t.Lookup(pid)
		if record == nil {
			return types.NewProcessNotFoundError(uint64(pid))
		}
		if record.State != process.StateNew {
			return types.NewInvalidStateError(uint64(pid), record.State.String(), process.StateReady.String())
		}
		return t.transition(record, process.StateReady)
	})
}

// Get returns a copy of the record.
func (r *Registry) Get(pid process.PID) (*process.Record, error) {
	var ret *process.Record
	err := r.Exclusive(func(t *Table) error {
		record := t.Lookup(pid)
		if record == nil {
			return types.NewProcessNotFoundError(uint64(pid))
		}
		ret = record.Clone()
		return nil
	})
	return ret, err
}

// Update runs fn on the stored record. Changing PID or State is rejected and
// rolled back; use SetState for transitions.
func (r *Registry) Update(pid process.PID, fn func(record *process.Record) error) error {
	return r.Exclusive(func(t *Table) error {
		record := t.Lookup(pid)
		if record == nil {
			return types.NewProcessNotFoundError(uint64(pid))
		}
		before := *record.Clone()
		if err := fn(record); err != nil {
			*record = before
			return err
		}
		if record.PID != before.PID || record.State != before.State {
			from, to := before.State, record.State
			*record = before
			return types.NewInvalidStateError(uint64(pid), from.String(), to.String())
		}
		return nil
	})
}

// SetState changes the lifecycle state of pid.
func (r *Registry) SetState(pid process.PID, state process.State) error {
	return r.Exclusive(func(t *Table) error {
		record := t.Lookup(pid)
		if record == nil {
			return types.NewProcessNotFoundError(uint64(pid))
		}
		return t.transition(record, state)
	})
}

// Kill erases pid from the table, the ready queue and the current-running
// cache. Killing pid 0 is a no-op. Stacks and frames of the process are not
// reclaimed. The erased record is appended to the history log, if any.
func (r *Registry) Kill(ctx context.Context, pid process.PID) error {
	if pid == process.KernelPID {
		r.logger.Debug("ignoring kill of kernel process")
		return nil
	}
	var killed *process.Record
	err := r.Exclusive(func(t *Table) error {
		record := t.Lookup(pid)
		if record == nil {
			return types.NewProcessNotFoundError(uint64(pid))
		}
		r.queue.Remove(pid)
		if r.hasCurrent && r.current == pid {
			r.hasCurrent = false
		}
		if err := r.table.Delete(ctx, pid); err != nil {
			return err
		}
		record.State = process.StateTerminated
		record.TerminatedAt = r.counter.Next()
		killed = record
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Debug("process killed", "pid", pid)
	if r.history != nil {
		if err = r.history.Save(ctx, killed); err != nil {
			r.logger.Warn("failed to record terminated process", "pid", pid, "error", err)
		}
	}
	return nil
}

// Schedule runs the scheduling policy and returns the pid now Running.
func (r *Registry) Schedule() (process.PID, bool) {
	var pid process.PID
	var ok bool
	_ = r.Exclusive(func(t *Table) error {
		pid, ok = t.Schedule()
		return nil
	})
	return pid, ok
}

// Running returns the pid cached as Running.
func (r *Registry) Running() (process.PID, bool) {
	var pid process.PID
	var ok bool
	_ = r.Exclusive(func(t *Table) error {
		pid, ok = t.Current()
		return nil
	})
	return pid, ok
}

// List returns copies of live records in slot order.
func (r *Registry) List(parameters ...*dao.Parameter) ([]*process.Record, error) {
	var ret []*process.Record
	err := r.Exclusive(func(t *Table) error {
		records, err := r.table.List(context.Background(), parameters...)
		if err != nil {
			return err
		}
		ret = cloneAll(records)
		return nil
	})
	return ret, err
}

// ListByState returns copies of live records in any of states.
func (r *Registry) ListByState(states ...process.State) ([]*process.Record, error) {
	if len(states) == 0 {
		return r.List()
	}
	return r.List(dao.NewStateParameter(states...))
}

// Children returns copies of the live records created by pid.
func (r *Registry) Children(pid process.PID) []*process.Record {
	var ret []*process.Record
	_ = r.Exclusive(func(t *Table) error {
		t.Each(func(_ int, record *process.Record) bool {
			if record.IsChildOf(pid) {
				ret = append(ret, record.Clone())
			}
			return true
		})
		return nil
	})
	return ret
}

// ReadyQueue returns the queued pids head first.
func (r *Registry) ReadyQueue() []process.PID {
	var ret []process.PID
	_ = r.Exclusive(func(t *Table) error {
		ret = r.queue.Snapshot()
		return nil
	})
	return ret
}

// ActiveCount returns the number of live records.
func (r *Registry) ActiveCount() int {
	var ret int
	_ = r.Exclusive(func(t *Table) error {
		ret = r.table.Len()
		return nil
	})
	return ret
}

// TotalCount returns the number of processes ever created, pid 0 excluded.
func (r *Registry) TotalCount() uint64 {
	var ret uint64
	_ = r.Exclusive(func(t *Table) error {
		ret = uint64(r.nextPID) - 1
		return nil
	})
	return ret
}

// Schedules returns the number of scheduling decisions made.
func (r *Registry) Schedules() uint64 {
	var ret uint64
	_ = r.Exclusive(func(t *Table) error {
		ret = r.schedules
		return nil
	})
	return ret
}

// History returns terminated records from the history log.
func (r *Registry) History(ctx context.Context) ([]*process.Record, error) {
	if r.history == nil {
		return nil, nil
	}
	return r.history.List(ctx)
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	return r.config
}

func cloneAll(records []*process.Record) []*process.Record {
	ret := make([]*process.Record, len(records))
	for i, record := range records {
		ret[i] = record.Clone()
	}
	return ret
}

// New creates a registry. A lock, an address space builder and a stack
// allocator are required.
func New(options ...Option) (*Registry, error) {
	ret := &Registry{config: DefaultConfig(), nextPID: 1}
	for _, option := range options {
		option(ret)
	}
	if ret.lock == nil {
		return nil, fmt.Errorf("lock is required")
	}
	if ret.spaces == nil {
		return nil, fmt.Errorf("address space builder is required")
	}
	if ret.stacks == nil {
		return nil, fmt.Errorf("stack allocator is required")
	}
	if ret.config.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be > 0")
	}
	if ret.scheduler == nil {
		s, err := scheduler.New(ret.config.Policy)
		if err != nil {
			return nil, err
		}
		ret.scheduler = s
	}
	if ret.counter == nil {
		ret.counter = &clock.Counter{}
	}
	if ret.logger == nil {
		ret.logger = slog.Default()
	}
	ret.table = memory.New(ret.config.Capacity)
	ret.queue = scheduler.NewQueue()
	return ret, nil
}

// IsNotFound reports whether err is a process-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, types.ErrProcessNotFound)
}
