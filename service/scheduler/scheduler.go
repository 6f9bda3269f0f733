// Package scheduler selects the next process to run. Policies operate on a
// Table view supplied by the registry while its lock is held.
package scheduler

import (
	"fmt"
	"strings"

	"github.com/viant/kproc/runtime/process"
)

// Table is the locked registry view a policy works on
type Table interface {
	// Current returns the pid cached as Running.
	Current() (process.PID, bool)
	// Lookup returns the live record for pid or nil.
	Lookup(pid process.PID) *process.Record
	// Queue returns the ready queue.
	Queue() *Queue
	// Promote makes pid Running and current; it is removed from the queue.
	Promote(pid process.PID)
	// Demote moves the current Running record to Ready without queueing it.
	Demote(pid process.PID)
	// Each visits live records in slot order until fn returns false.
	Each(fn func(slot int, record *process.Record) bool)
}

// Scheduler picks the next pid to run
type Scheduler interface {
	Schedule(table Table) (process.PID, bool)
	Name() string
}

// Policy names
const (
	PolicyFIFO = "fifo"
	PolicyScan = "scan"
)

// New returns the scheduler for a policy name; empty means FIFO.
func New(policy string) (Scheduler, error) {
	switch strings.ToLower(policy) {
	case "", PolicyFIFO:
		return &RoundRobin{}, nil
	case PolicyScan:
		return &Scan{}, nil
	}
	return nil, fmt.Errorf("unsupported scheduler policy: %v", policy)
}

// RoundRobin is strict FIFO round robin over the ready queue. Priorities are
// ignored. The kernel record is never queued: it only runs when nothing else
// is runnable.
type RoundRobin struct{}

func (r *RoundRobin) Name() string { return PolicyFIFO }

// Schedule demotes the running process to the tail of the queue, pops the
// head and promotes it.
func (r *RoundRobin) Schedule(table Table) (process.PID, bool) {
	current, running := runningRecord(table)
	if running {
		table.Demote(current)
		if current != process.KernelPID {
			table.Queue().Push(current)
		}
	}
	if next, ok := table.Queue().Pop(); ok {
		table.Promote(next)
		return next, true
	}
	return fallback(table, current, running)
}

// Scan walks the table instead of popping the queue. Among Ready records
// the one that became ready first wins; records missing from the queue rank
// last, lowest slot first.
type Scan struct{}

func (s *Scan) Name() string { return PolicyScan }

// Schedule demotes the running process and promotes the next Ready record.
func (s *Scan) Schedule(table Table) (process.PID, bool) {
	current, running := runningRecord(table)
	if running {
		table.Demote(current)
		if current != process.KernelPID {
			table.Queue().Push(current)
		}
	}
	order := map[process.PID]int{}
	for i, pid := range table.Queue().Snapshot() {
		order[pid] = i
	}
	var next *process.Record
	best := 0
	table.Each(func(slot int, record *process.Record) bool {
		if record.State != process.StateReady || record.IsKernel() {
			return true
		}
		rank, ok := order[record.PID]
		if !ok {
			rank = len(order) + slot
		}
		if next == nil || rank < best {
			next, best = record, rank
		}
		return true
	})
	if next != nil {
		table.Promote(next.PID)
		return next.PID, true
	}
	return fallback(table, current, running)
}

func runningRecord(table Table) (process.PID, bool) {
	current, ok := table.Current()
	if !ok {
		return 0, false
	}
	record := table.Lookup(current)
	if record == nil || record.State != process.StateRunning {
		return current, false
	}
	return current, true
}

// fallback keeps the previous running pid, then the kernel idle context.
func fallback(table Table, current process.PID, running bool) (process.PID, bool) {
	if running {
		table.Promote(current)
		return current, true
	}
	if record := table.Lookup(process.KernelPID); record != nil && record.State != process.StateTerminated {
		table.Promote(process.KernelPID)
		return process.KernelPID, true
	}
	return 0, false
}
