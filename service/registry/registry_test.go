package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/kproc/arch"
	"github.com/viant/kproc/arch/sim"
	"github.com/viant/kproc/internal/irq"
	"github.com/viant/kproc/model/types"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/dao/process/fs"
	"github.com/viant/kproc/service/frame"
	"github.com/viant/kproc/service/heap"
	"github.com/viant/kproc/service/vm"
)

const (
	testOffset    uint64 = 0xffff_8000_0000_0000
	testBootTable uint64 = 0x1000
	testEntry     uint64 = 0x40_0000
)

type recordingFrame struct {
	tops []uint64
}

func (f *recordingFrame) Prepare(top, entry uint64) uint64 {
	f.tops = append(f.tops, top)
	return top - 17*arch.WordSize
}

type fixture struct {
	registry *Registry
	machine  *sim.Machine
	frames   *frame.Allocator
	frame    *recordingFrame
}

func newFixture(t *testing.T, frames uint64, options ...Option) *fixture {
	machine := sim.New(sim.Config{ActivePageTable: testBootTable})
	allocator := frame.New()
	require.NoError(t, allocator.Init([]frame.Region{
		{Start: 0x10_0000, End: 0x10_0000 + frames*frame.Size, Kind: frame.KindUsable},
	}))
	tables := vm.NewPageTables(machine, testOffset)
	builder, err := vm.NewBuilder(tables, allocator, machine, []process.Region{
		{Name: process.RegionCode, Start: 0x40_0000, Size: process.PageSize, Permission: process.PermissionPresent | process.PermissionUser | process.PermissionExecutable},
		{Name: process.RegionStack, Start: 0x7000_0000, Size: process.PageSize, Permission: process.PermissionPresent | process.PermissionUser | process.PermissionWritable},
	})
	require.NoError(t, err)
	kernelHeap, err := heap.New(0x4000_0000, 4*1024*1024)
	require.NoError(t, err)
	stacks, err := vm.NewStacks(kernelHeap, vm.DefaultKernelStackSize, vm.DefaultUserStackSize)
	require.NoError(t, err)
	initial := &recordingFrame{}
	options = append([]Option{
		WithLock(irq.New(machine)),
		WithAddressSpaceBuilder(builder),
		WithStackAllocator(stacks),
		WithInitialFrame(initial),
	}, options...)
	registry, err := New(options...)
	require.NoError(t, err)
	require.NoError(t, registry.Bootstrap(testBootTable))
	return &fixture{registry: registry, machine: machine, frames: allocator, frame: initial}
}

func (f *fixture) spawn(t *testing.T, name string, parent *process.PID) process.PID {
	pid, err := f.registry.Create(context.Background(), &Request{Name: name, Parent: parent, Entry: testEntry})
	require.NoError(t, err)
	return pid
}

func assertSingleRunning(t *testing.T, r *Registry) {
	running, err := r.ListByState(process.StateRunning)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(running), 1)
	if pid, ok := r.Running(); ok {
		require.Len(t, running, 1)
		assert.Equal(t, pid, running[0].PID)
	}
}

func TestRegistry_Bootstrap(t *testing.T) {
	f := newFixture(t, 64)
	kernel, err := f.registry.Get(process.KernelPID)
	require.NoError(t, err)
	assert.Equal(t, process.StateRunning, kernel.State)
	assert.EqualValues(t, testBootTable, kernel.AddressSpace.Root)
	pid, ok := f.registry.Running()
	assert.True(t, ok)
	assert.Equal(t, process.KernelPID, pid)
	assert.Equal(t, 1, f.registry.ActiveCount())
	assert.EqualValues(t, 0, f.registry.TotalCount())
	assert.Error(t, f.registry.Bootstrap(testBootTable))
}

func TestRegistry_Create(t *testing.T) {
	f := newFixture(t, 64)
	kernel := process.KernelPID
	a := f.spawn(t, "a", &kernel)
	b := f.spawn(t, "b", &a)
	c := f.spawn(t, "c", nil)
	assert.Equal(t, []process.PID{1, 2, 3}, []process.PID{a, b, c})
	assert.EqualValues(t, 3, f.registry.TotalCount())
	assert.Equal(t, 4, f.registry.ActiveCount())
	assert.Equal(t, []process.PID{1, 2, 3}, f.registry.ReadyQueue())

	record, err := f.registry.Get(b)
	require.NoError(t, err)
	assert.Equal(t, "b", record.Name)
	assert.Equal(t, process.StateReady, record.State)
	require.NotNil(t, record.ParentPID)
	assert.Equal(t, a, *record.ParentPID)
	assert.EqualValues(t, testEntry, record.Context.RIP)
	assert.EqualValues(t, record.KernelStack.Top(), record.Context.RSP)
	assert.EqualValues(t, arch.InitialFlags, record.Context.RFlags)
	assert.EqualValues(t, arch.KernelCodeSelector, record.Context.CS)
	assert.EqualValues(t, arch.KernelDataSelector, record.Context.SS)
	assert.Equal(t, process.SuspendedStack, record.Suspension)
	assert.EqualValues(t, record.KernelStack.Top()-17*arch.WordSize, record.SavedStackPointer)
	assert.NotEqual(t, testBootTable, record.AddressSpace.Root)
	assert.Len(t, f.frame.tops, 3)

	children := f.registry.Children(a)
	require.Len(t, children, 1)
	assert.Equal(t, b, children[0].PID)
	assert.Len(t, f.registry.Children(process.KernelPID), 1)

	first, _ := f.registry.Get(a)
	assert.Less(t, first.CreatedAt, record.CreatedAt)
	assert.False(t, first.KernelStack.Overlaps(record.KernelStack))
	assert.NotEqual(t, first.AddressSpace.Root, record.AddressSpace.Root)
}

func TestRegistry_CreateErrors(t *testing.T) {
	missing := process.PID(42)
	testCases := []struct {
		name      string
		frames    uint64
		config    Config
		prefill   int
		request   *Request
		expectErr error
	}{
		{name: "missing parent", frames: 64, config: DefaultConfig(), request: &Request{Name: "x", Parent: &missing, Entry: testEntry}, expectErr: types.ErrInvalidPid},
		{name: "table full", frames: 64, config: Config{Capacity: 3, AutoAdmit: true}, prefill: 2, request: &Request{Name: "x", Entry: testEntry}, expectErr: types.ErrProcessTableFull},
		{name: "out of frames", frames: 3, config: DefaultConfig(), request: &Request{Name: "x", Entry: testEntry}, expectErr: types.ErrOutOfMemory},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.frames, WithConfig(tc.config))
			for i := 0; i < tc.prefill; i++ {
				f.spawn(t, "filler", nil)
			}
			total := f.registry.TotalCount()
			active := f.registry.ActiveCount()
			_, err := f.registry.Create(context.Background(), tc.request)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.expectErr), err.Error())
			assert.Equal(t, total, f.registry.TotalCount())
			assert.Equal(t, active, f.registry.ActiveCount())
		})
	}

	f := newFixture(t, 64)
	_, err := f.registry.Create(context.Background(), &Request{Name: "no entry"})
	assert.Error(t, err)
	_, err = f.registry.Create(context.Background(), nil)
	assert.Error(t, err)
}

func TestRegistry_FailedCreateKeepsPid(t *testing.T) {
	f := newFixture(t, 64)
	missing := process.PID(7)
	_, err := f.registry.Create(context.Background(), &Request{Name: "x", Parent: &missing, Entry: testEntry})
	require.Error(t, err)
	assert.Equal(t, process.PID(1), f.spawn(t, "a", nil))
}

func TestRegistry_Admit(t *testing.T) {
	f := newFixture(t, 64, WithConfig(Config{Capacity: 8, AutoAdmit: false, Policy: "fifo"}))
	pid := f.spawn(t, "a", nil)
	record, err := f.registry.Get(pid)
	require.NoError(t, err)
	assert.Equal(t, process.StateNew, record.State)
	assert.Empty(t, f.registry.ReadyQueue())

	require.NoError(t, f.registry.Admit(pid))
	assert.Equal(t, []process.PID{pid}, f.registry.ReadyQueue())
	assert.True(t, errors.Is(f.registry.Admit(pid), types.ErrInvalidState))
	assert.True(t, errors.Is(f.registry.Admit(99), types.ErrProcessNotFound))
}

func TestRegistry_Kill(t *testing.T) {
	ctx := context.Background()
	history, err := fs.New(ctx, nil, "mem://localhost/registry/kill", 10)
	require.NoError(t, err)
	f := newFixture(t, 64, WithHistory(history))
	a := f.spawn(t, "a", nil)
	b := f.spawn(t, "b", nil)

	pid, ok := f.registry.Schedule()
	require.True(t, ok)
	require.Equal(t, a, pid)

	require.NoError(t, f.registry.Kill(ctx, a))
	_, ok = f.registry.Running()
	assert.False(t, ok)
	_, err = f.registry.Get(a)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, []process.PID{b}, f.registry.ReadyQueue())
	assert.Equal(t, 2, f.registry.ActiveCount())
	assert.EqualValues(t, 2, f.registry.TotalCount())
	assert.True(t, errors.Is(f.registry.Kill(ctx, a), types.ErrProcessNotFound))

	require.NoError(t, f.registry.Kill(ctx, process.KernelPID))
	_, err = f.registry.Get(process.KernelPID)
	assert.NoError(t, err)

	killed, err := f.registry.History(ctx)
	require.NoError(t, err)
	require.Len(t, killed, 1)
	assert.Equal(t, a, killed[0].PID)
	assert.Equal(t, process.StateTerminated, killed[0].State)
	assert.NotZero(t, killed[0].TerminatedAt)

	c := f.spawn(t, "c", nil)
	assert.Equal(t, process.PID(3), c)

	next, ok := f.registry.Schedule()
	require.True(t, ok)
	assert.Equal(t, b, next)
}

func TestRegistry_SetState(t *testing.T) {
	testCases := []struct {
		name        string
		config      *Config
		setup       func(t *testing.T, f *fixture) process.PID
		state       process.State
		expectErr   bool
		expectQueue bool
	}{
		{
			name:  "ready to waiting",
			setup: func(t *testing.T, f *fixture) process.PID { return f.spawn(t, "a", nil) },
			state: process.StateWaiting,
		},
		{
			name: "waiting to ready",
			setup: func(t *testing.T, f *fixture) process.PID {
				pid := f.spawn(t, "a", nil)
				require.NoError(t, f.registry.SetState(pid, process.StateWaiting))
				return pid
			},
			state:       process.StateReady,
			expectQueue: true,
		},
		{
			name: "terminated is absorbing",
			setup: func(t *testing.T, f *fixture) process.PID {
				pid := f.spawn(t, "a", nil)
				require.NoError(t, f.registry.SetState(pid, process.StateTerminated))
				return pid
			},
			state:     process.StateReady,
			expectErr: true,
		},
		{
			name:      "new cannot be re-entered",
			setup:     func(t *testing.T, f *fixture) process.PID { return f.spawn(t, "a", nil) },
			state:     process.StateNew,
			expectErr: true,
		},
		{
			name:      "running while kernel runs",
			setup:     func(t *testing.T, f *fixture) process.PID { return f.spawn(t, "a", nil) },
			state:     process.StateRunning,
			expectErr: true,
		},
		{
			name:   "new cannot run before admission",
			config: &Config{Capacity: 8, Policy: "fifo"},
			setup: func(t *testing.T, f *fixture) process.PID {
				pid := f.spawn(t, "a", nil)
				require.NoError(t, f.registry.SetState(process.KernelPID, process.StateWaiting))
				return pid
			},
			state:     process.StateRunning,
			expectErr: true,
		},
		{
			name: "waiting must wake to ready first",
			setup: func(t *testing.T, f *fixture) process.PID {
				pid := f.spawn(t, "a", nil)
				require.NoError(t, f.registry.SetState(pid, process.StateWaiting))
				require.NoError(t, f.registry.SetState(process.KernelPID, process.StateWaiting))
				return pid
			},
			state:     process.StateRunning,
			expectErr: true,
		},
		{
			name: "ready to running when the cpu is free",
			setup: func(t *testing.T, f *fixture) process.PID {
				pid := f.spawn(t, "a", nil)
				require.NoError(t, f.registry.SetState(process.KernelPID, process.StateWaiting))
				return pid
			},
			state: process.StateRunning,
		},
		{
			name:      "kernel cannot terminate",
			setup:     func(t *testing.T, f *fixture) process.PID { return process.KernelPID },
			state:     process.StateTerminated,
			expectErr: true,
		},
		{
			name: "running to waiting clears current",
			setup: func(t *testing.T, f *fixture) process.PID {
				pid := f.spawn(t, "a", nil)
				_, _ = f.registry.Schedule()
				return pid
			},
			state: process.StateWaiting,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var options []Option
			if tc.config != nil {
				options = append(options, WithConfig(*tc.config))
			}
			f := newFixture(t, 64, options...)
			pid := tc.setup(t, f)
			err := f.registry.SetState(pid, tc.state)
			if tc.expectErr {
				assert.True(t, errors.Is(err, types.ErrInvalidState), "%v", err)
				return
			}
			require.NoError(t, err)
			record, err := f.registry.Get(pid)
			require.NoError(t, err)
			assert.Equal(t, tc.state, record.State)
			assert.Equal(t, tc.expectQueue, contains(f.registry.ReadyQueue(), pid))
			if current, ok := f.registry.Running(); ok && tc.state != process.StateRunning {
				assert.NotEqual(t, pid, current)
			}
			assertSingleRunning(t, f.registry)
		})
	}

	f := newFixture(t, 64)
	assert.True(t, errors.Is(f.registry.SetState(9, process.StateReady), types.ErrProcessNotFound))
	pid := f.spawn(t, "a", nil)
	require.NoError(t, f.registry.SetState(pid, process.StateTerminated))
	record, err := f.registry.Get(pid)
	require.NoError(t, err)
	assert.NotZero(t, record.TerminatedAt)
	assert.Empty(t, f.registry.ReadyQueue())
}

func TestRegistry_Update(t *testing.T) {
	f := newFixture(t, 64)
	pid := f.spawn(t, "a", nil)
	require.NoError(t, f.registry.Update(pid, func(record *process.Record) error {
		record.Priority = 5
		record.Name = "renamed"
		return nil
	}))
	record, _ := f.registry.Get(pid)
	assert.Equal(t, 5, record.Priority)
	assert.Equal(t, "renamed", record.Name)

	err := f.registry.Update(pid, func(record *process.Record) error {
		record.Priority = 9
		record.State = process.StateRunning
		return nil
	})
	assert.True(t, errors.Is(err, types.ErrInvalidState))
	record, _ = f.registry.Get(pid)
	assert.Equal(t, 5, record.Priority)
	assert.Equal(t, process.StateReady, record.State)

	err = f.registry.Update(pid, func(record *process.Record) error {
		record.Name = "lost"
		return errors.New("abort")
	})
	assert.EqualError(t, err, "abort")
	record, _ = f.registry.Get(pid)
	assert.Equal(t, "renamed", record.Name)
	assert.True(t, IsNotFound(f.registry.Update(77, func(*process.Record) error { return nil })))
}

func TestRegistry_Schedule(t *testing.T) {
	testCases := []struct {
		name   string
		policy string
	}{
		{name: "fifo", policy: "fifo"},
		{name: "scan", policy: "scan"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 64, WithConfig(Config{Capacity: 16, AutoAdmit: true, Policy: tc.policy}))
			pid, ok := f.registry.Schedule()
			require.True(t, ok)
			assert.Equal(t, process.KernelPID, pid)

			a := f.spawn(t, "a", nil)
			b := f.spawn(t, "b", nil)
			c := f.spawn(t, "c", nil)
			var order []process.PID
			for i := 0; i < 6; i++ {
				pid, ok := f.registry.Schedule()
				require.True(t, ok)
				order = append(order, pid)
				assertSingleRunning(t, f.registry)
			}
			assert.Equal(t, []process.PID{a, b, c, a, b, c}, order)

			kernel, _ := f.registry.Get(process.KernelPID)
			assert.Equal(t, process.StateReady, kernel.State)

			require.NoError(t, f.registry.SetState(b, process.StateWaiting))
			order = order[:0]
			for i := 0; i < 4; i++ {
				pid, _ := f.registry.Schedule()
				order = append(order, pid)
			}
			assert.Equal(t, []process.PID{a, c, a, c}, order)
			assert.EqualValues(t, 11, f.registry.Schedules())
		})
	}
}

func TestRegistry_ScheduleFallback(t *testing.T) {
	f := newFixture(t, 64)
	a := f.spawn(t, "a", nil)
	pid, _ := f.registry.Schedule()
	require.Equal(t, a, pid)
	pid, _ = f.registry.Schedule()
	assert.Equal(t, a, pid, "sole runnable process keeps the cpu")

	require.NoError(t, f.registry.SetState(a, process.StateWaiting))
	pid, ok := f.registry.Schedule()
	require.True(t, ok)
	assert.Equal(t, process.KernelPID, pid, "kernel idles when nothing is ready")
}

func TestRegistry_ListByState(t *testing.T) {
	f := newFixture(t, 64)
	a := f.spawn(t, "a", nil)
	b := f.spawn(t, "b", nil)
	require.NoError(t, f.registry.SetState(b, process.StateWaiting))

	ready, err := f.registry.ListByState(process.StateReady)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, a, ready[0].PID)

	some, err := f.registry.ListByState(process.StateWaiting, process.StateRunning)
	require.NoError(t, err)
	assert.Len(t, some, 2)

	all, err := f.registry.ListByState()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	all[0].Name = "mutated"
	kernel, _ := f.registry.Get(process.KernelPID)
	assert.Equal(t, "kernel", kernel.Name)
}

func TestRegistry_Interrupt(t *testing.T) {
	f := newFixture(t, 64)
	a := f.spawn(t, "a", nil)
	var picked process.PID
	f.machine.SetTimerHandler(func(frame *arch.TrapFrame) {
		f.registry.Interrupt(func(table *Table) {
			picked, _ = table.Schedule()
		})
	})
	require.NoError(t, f.registry.Exclusive(func(_ *Table) error {
		assert.False(t, f.machine.RaiseTimer(), "tick must stay pending while the table is locked")
		return nil
	}))
	assert.Equal(t, a, picked)
	assert.Equal(t, 1, f.machine.Counters().Delivered)
}

func TestNew_Validation(t *testing.T) {
	machine := sim.New(sim.Config{})
	_, err := New()
	assert.Error(t, err)
	_, err = New(WithLock(irq.New(machine)))
	assert.Error(t, err)
	f := newFixture(t, 8)
	_, err = New(WithLock(irq.New(machine)), WithAddressSpaceBuilder(f.registry.spaces), WithStackAllocator(f.registry.stacks), WithConfig(Config{Capacity: 1, Policy: "lottery"}))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "lottery"))
}

func contains(pids []process.PID, pid process.PID) bool {
	for _, candidate := range pids {
		if candidate == pid {
			return true
		}
	}
	return false
}
