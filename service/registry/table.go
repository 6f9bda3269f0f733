package registry

import (
	"context"

	"github.com/viant/kproc/model/types"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/scheduler"
)

// Table is the view of the registry available while its lock is held. It is
// only valid inside Exclusive or Interrupt callbacks.
type Table struct {
	r *Registry
}

var _ scheduler.Table = (*Table)(nil)

// Current returns the pid cached as Running.
func (t *Table) Current() (process.PID, bool) {
	return t.r.current, t.r.hasCurrent
}

// Lookup returns the live record for pid or nil. The record may be mutated
// in place while the lock is held.
func (t *Table) Lookup(pid process.PID) *process.Record {
	record, err := t.r.table.Load(context.Background(), pid)
	if err != nil {
		return nil
	}
	return record
}

// Queue returns the ready queue.
func (t *Table) Queue() *scheduler.Queue {
	return t.r.queue
}

// Promote makes pid the only Running record.
func (t *Table) Promote(pid process.PID) {
	record := t.Lookup(pid)
	if record == nil {
		return
	}
	if t.r.hasCurrent && t.r.current != pid {
		if previous := t.Lookup(t.r.current); previous != nil && previous.State == process.StateRunning {
			previous.State = process.StateReady
			if !previous.IsKernel() {
				t.r.queue.Push(previous.PID)
			}
		}
	}
	t.r.queue.Remove(pid)
	record.State = process.StateRunning
	t.r.current, t.r.hasCurrent = pid, true
}

// Demote moves a Running record to Ready without queueing it.
func (t *Table) Demote(pid process.PID) {
	record := t.Lookup(pid)
	if record == nil || record.State != process.StateRunning {
		return
	}
	record.State = process.StateReady
	if t.r.hasCurrent && t.r.current == pid {
		t.r.hasCurrent = false
	}
}

// Each visits live records in slot order. fn must not insert or delete records.
func (t *Table) Each(fn func(slot int, record *process.Record) bool) {
	t.r.table.Each(fn)
}

// Schedule runs the scheduling policy.
func (t *Table) Schedule() (process.PID, bool) {
	pid, ok := t.r.scheduler.Schedule(t)
	if ok {
		t.r.schedules++
	}
	return pid, ok
}

// transition applies a state change while keeping the ready queue and the
// current-running cache consistent.
func (t *Table) transition(record *process.Record, next process.State) error {
	if record.State == next {
		return nil
	}
	if !record.State.CanTransition(next) || (record.IsKernel() && next == process.StateTerminated) {
		return types.NewInvalidStateError(uint64(record.PID), record.State.String(), next.String())
	}
	if next == process.StateRunning {
		if t.r.hasCurrent && t.r.current != record.PID {
			return types.NewInvalidStateError(uint64(record.PID), record.State.String(), next.String())
		}
		t.Promote(record.PID)
		return nil
	}
	previous := record.State
	record.State = next
	switch previous {
	case process.StateReady:
		t.r.queue.Remove(record.PID)
	case process.StateRunning:
		if t.r.hasCurrent && t.r.current == record.PID {
			t.r.hasCurrent = false
		}
	}
	switch next {
	case process.StateReady:
		if !record.IsKernel() {
			t.r.queue.Push(record.PID)
		}
	case process.StateTerminated:
		record.TerminatedAt = t.r.counter.Next()
	}
	return nil
}
