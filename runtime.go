package kproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/viant/kproc/arch"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/dao"
	"github.com/viant/kproc/service/event"
	"github.com/viant/kproc/service/frame"
	"github.com/viant/kproc/service/heap"
	"github.com/viant/kproc/service/messaging"
	"github.com/viant/kproc/service/registry"
	"github.com/viant/kproc/service/switcher"
	"github.com/viant/kproc/service/timer"
	"github.com/viant/kproc/stats"
	"github.com/viant/kproc/tracing"
)

// Runtime is the kernel core: process lifecycle, scheduling and context
// switching over one machine.
type Runtime struct {
	registry *registry.Registry
	engine   *switcher.Engine
	machine  arch.Machine
	frames   *frame.Allocator
	heap     *heap.Heap
	timer    *timer.Service
	stats    *stats.Counters
	logger   *slog.Logger

	events    *event.Service
	lifecycle *event.Publisher[event.Lifecycle]
	switches  *event.Publisher[event.Switch]
	sequence  atomic.Uint64

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
}

// Create builds a process for request. It is Ready on return unless
// admission is manual.
func (r *Runtime) Create(ctx context.Context, request *registry.Request) (pid process.PID, err error) {
	ctx, span := tracing.StartSpan(ctx, "process.create", "INTERNAL")
	defer func() { tracing.EndSpan(span.WithPID(uint64(pid)), err) }()
	if pid, err = r.registry.Create(ctx, request); err != nil {
		return 0, err
	}
	r.stats.Update(stats.Delta{Created: 1})
	record, err := r.registry.Get(pid)
	if err != nil {
		return pid, nil
	}
	r.publishLifecycle(ctx, event.TypeCreated, record, "", record.State)
	return pid, nil
}

// Spawn creates a process running entry.
func (r *Runtime) Spawn(ctx context.Context, name string, parent *process.PID, entry func()) (process.PID, error) {
	return r.Create(ctx, &registry.Request{Name: name, Parent: parent, Entry: arch.EntryAddress(entry)})
}

// Admit moves a New process to Ready.
func (r *Runtime) Admit(ctx context.Context, pid process.PID) (err error) {
	ctx, span := tracing.StartSpan(ctx, "process.admit", "INTERNAL")
	defer func() { tracing.EndSpan(span.WithPID(uint64(pid)), err) }()
	if err = r.registry.Admit(pid); err != nil {
		return err
	}
	if record, _ := r.registry.Get(pid); record != nil {
		r.publishLifecycle(ctx, event.TypeAdmitted, record, process.StateNew, record.State)
	}
	return nil
}

// Get returns a copy of the process record.
func (r *Runtime) Get(pid process.PID) (*process.Record, error) {
	return r.registry.Get(pid)
}

// Update applies fn to the record in place; pid and state cannot be changed
// this way.
func (r *Runtime) Update(pid process.PID, fn func(record *process.Record) error) error {
	return r.registry.Update(pid, fn)
}

// SetState applies a lifecycle transition.
func (r *Runtime) SetState(ctx context.Context, pid process.PID, state process.State) (err error) {
	ctx, span := tracing.StartSpan(ctx, "process.state", "INTERNAL")
	span.WithAttributes(map[string]string{"state": string(state)})
	defer func() { tracing.EndSpan(span.WithPID(uint64(pid)), err) }()
	before, err := r.registry.Get(pid)
	if err != nil {
		return err
	}
	if err = r.registry.SetState(pid, state); err != nil {
		return err
	}
	r.publishLifecycle(ctx, event.TypeState, before, before.State, state)
	return nil
}

// Kill erases a process. Killing the kernel process is a no-op.
func (r *Runtime) Kill(ctx context.Context, pid process.PID) (err error) {
	ctx, span := tracing.StartSpan(ctx, "process.kill", "INTERNAL")
	defer func() { tracing.EndSpan(span.WithPID(uint64(pid)), err) }()
	if pid == process.KernelPID {
		return r.registry.Kill(ctx, pid)
	}
	before, err := r.registry.Get(pid)
	if err != nil {
		return err
	}
	if err = r.registry.Kill(ctx, pid); err != nil {
		return err
	}
	r.stats.Update(stats.Delta{Killed: 1})
	r.publishLifecycle(ctx, event.TypeKilled, before, before.State, process.StateTerminated)
	return nil
}

// Schedule runs the scheduling policy without switching context and returns
// the pid now marked Running.
func (r *Runtime) Schedule() (process.PID, bool) {
	return r.registry.Schedule()
}

// Yield gives up the CPU on behalf of the running process.
func (r *Runtime) Yield(ctx context.Context) (err error) {
	_, span := tracing.StartSpan(ctx, "process.yield", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	return r.engine.Yield()
}

// Tick raises n timer interrupts and returns how many were delivered at
// once; the rest stay pending until interrupts are enabled.
func (r *Runtime) Tick(n int) int {
	delivered := 0
	for i := 0; i < n; i++ {
		if r.timer != nil {
			before := r.timer.Deferred()
			r.timer.Tick()
			if r.timer.Deferred() == before {
				delivered++
			}
			continue
		}
		if source, ok := r.machine.(timer.Source); ok && source.RaiseTimer() {
			delivered++
		}
	}
	return delivered
}

// Running returns the pid marked Running.
func (r *Runtime) Running() (process.PID, bool) {
	return r.registry.Running()
}

// Owner returns the pid whose state is on the CPU.
func (r *Runtime) Owner() (process.PID, bool) {
	return r.engine.Owner()
}

// List returns copies of live records, filtered by parameters.
func (r *Runtime) List(parameters ...*dao.Parameter) ([]*process.Record, error) {
	return r.registry.List(parameters...)
}

// ListByState returns copies of live records in any of states.
func (r *Runtime) ListByState(states ...process.State) ([]*process.Record, error) {
	return r.registry.ListByState(states...)
}

// Children returns copies of the live children of pid.
func (r *Runtime) Children(pid process.PID) []*process.Record {
	return r.registry.Children(pid)
}

// ReadyQueue returns the queued pids in scheduling order.
func (r *Runtime) ReadyQueue() []process.PID {
	return r.registry.ReadyQueue()
}

// ActiveCount returns the number of live processes, the kernel included.
func (r *Runtime) ActiveCount() int {
	return r.registry.ActiveCount()
}

// TotalCount returns the number of pids ever assigned.
func (r *Runtime) TotalCount() uint64 {
	return r.registry.TotalCount()
}

// History returns terminated records, oldest first.
func (r *Runtime) History(ctx context.Context) ([]*process.Record, error) {
	return r.registry.History(ctx)
}

// Memory reports frame and heap usage
type Memory struct {
	FramesAllocated uint64
	FramesAvailable uint64
	HeapUsed        uint64
	HeapFree        uint64
}

// Memory returns frame and heap usage.
func (r *Runtime) Memory() Memory {
	return Memory{
		FramesAllocated: r.frames.Allocated(),
		FramesAvailable: r.frames.Available(),
		HeapUsed:        r.heap.Used(),
		HeapFree:        r.heap.Free(),
	}
}

// Stats returns a counter snapshot. Schedules counts every policy run that
// picked a process, whichever path ran it.
func (r *Runtime) Stats() stats.Stats {
	ret := r.stats.Snapshot()
	ret.Schedules = int(r.registry.Schedules())
	return ret
}

// OnStatsChange registers a callback invoked after every counter update. It
// may run in interrupt context, so it must not call back into the Runtime.
func (r *Runtime) OnStatsChange(cb func(stats.Stats)) {
	r.stats.OnChange(cb)
}

// Start runs the timer until ctx is done or Shutdown is called.
func (r *Runtime) Start(ctx context.Context) error {
	if r.timer == nil {
		return fmt.Errorf("machine has no timer source")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.timer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("timer stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the timer and event listeners.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.shutdown.Do(func() {
		if r.timer != nil {
			r.timer.Shutdown()
		}
		if r.cancel != nil {
			r.cancel()
		}
		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
		if r.events != nil {
			r.events.Shutdown()
		}
	})
	return ctx.Err()
}

// initEvents binds the typed publishers. Every typed queue gets a listener,
// a no-op one by default, so that only real overflow drops events.
func (r *Runtime) initEvents(service *event.Service, onLifecycle func(*event.Event[event.Lifecycle]), onSwitch func(*event.Event[event.Switch])) error {
	var err error
	r.events = service
	if r.lifecycle, err = event.PublisherOf[event.Lifecycle](service); err != nil {
		return err
	}
	if r.switches, err = event.PublisherOf[event.Switch](service); err != nil {
		return err
	}
	if onLifecycle == nil {
		onLifecycle = func(*event.Event[event.Lifecycle]) {}
	}
	if onSwitch == nil {
		onSwitch = func(*event.Event[event.Switch]) {}
	}
	if err = event.SetListenerOf[event.Lifecycle](service, onLifecycle); err != nil {
		return err
	}
	return event.SetListenerOf[event.Switch](service, onSwitch)
}

func (r *Runtime) eventContext(eventType, source string, pid process.PID) *event.Context {
	return &event.Context{
		Type:     eventType,
		Source:   source,
		PID:      uint64(pid),
		BootID:   r.stats.BootID(),
		Sequence: r.sequence.Add(1),
	}
}

func (r *Runtime) publishLifecycle(ctx context.Context, eventType string, record *process.Record, from, to process.State) {
	if r.lifecycle == nil {
		return
	}
	data := event.Lifecycle{PID: uint64(record.PID), Name: record.Name, From: string(from), To: string(to)}
	if record.ParentPID != nil {
		parent := uint64(*record.ParentPID)
		data.Parent = &parent
	}
	e := event.NewEvent(r.eventContext(eventType, "registry", record.PID), data)
	if err := r.lifecycle.Publish(ctx, e); err != nil {
		r.dropped(err, true)
	}
}

func (r *Runtime) dropped(err error, report bool) {
	if errors.Is(err, messaging.ErrQueueFull) {
		r.stats.Update(stats.Delta{DroppedEvents: 1})
	}
	if report {
		r.logger.Warn("failed to publish event", "error", err)
	}
}

func (r *Runtime) logEvent(e *event.Event[any]) {
	r.logger.Debug("event", "type", e.Context.Type, "pid", e.Context.PID, "seq", e.Context.Sequence, "data", e.Data)
}

// observer turns engine notifications into counters and switch events.
type observer struct {
	runtime *Runtime
}

func (o *observer) Ticked(tick uint64, reschedule bool) {
	o.runtime.stats.Update(stats.Delta{Ticks: 1})
}

func (o *observer) Switched(sw switcher.Switch) {
	r := o.runtime
	delta := stats.Delta{Switches: 1}
	eventType := event.TypePreempt
	if sw.Mode == switcher.ModeYield {
		delta.Yields = 1
		eventType = event.TypeYield
	} else {
		delta.Preemptions = 1
	}
	r.stats.Update(delta)
	if r.switches == nil {
		return
	}
	e := event.NewEvent(r.eventContext(eventType, "switcher", sw.To), event.Switch{
		From:     uint64(sw.From),
		HasFrom:  sw.HasFrom,
		To:       uint64(sw.To),
		Tick:     sw.Tick,
		RootSwap: sw.RootSwap,
	})
	if err := r.switches.Publish(context.Background(), e); err != nil {
		// interrupt context: count only
		r.dropped(err, sw.Mode == switcher.ModeYield)
	}
}
