package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/kproc/runtime/process"
)

type testTable struct {
	records    []*process.Record
	queue      *Queue
	current    process.PID
	hasCurrent bool
}

func (t *testTable) Current() (process.PID, bool) { return t.current, t.hasCurrent }

func (t *testTable) Lookup(pid process.PID) *process.Record {
	for _, r := range t.records {
		if r != nil && r.PID == pid {
			return r
		}
	}
	return nil
}

func (t *testTable) Queue() *Queue { return t.queue }

func (t *testTable) Promote(pid process.PID) {
	t.Lookup(pid).State = process.StateRunning
	t.queue.Remove(pid)
	t.current, t.hasCurrent = pid, true
}

func (t *testTable) Demote(pid process.PID) {
	t.Lookup(pid).State = process.StateReady
	t.hasCurrent = false
}

func (t *testTable) Each(fn func(slot int, record *process.Record) bool) {
	for i, r := range t.records {
		if r == nil {
			continue
		}
		if !fn(i, r) {
			return
		}
	}
}

func (t *testTable) SlotOf(pid process.PID) (int, bool) {
	for i, r := range t.records {
		if r != nil && r.PID == pid {
			return i, true
		}
	}
	return 0, false
}

func (t *testTable) kill(pid process.PID) {
	slot, _ := t.SlotOf(pid)
	t.records[slot] = nil
	t.queue.Remove(pid)
	if t.hasCurrent && t.current == pid {
		t.hasCurrent = false
	}
}

func (t *testTable) wait(pid process.PID) {
	t.Lookup(pid).State = process.StateWaiting
	t.queue.Remove(pid)
}

func (t *testTable) wakeUp(pid process.PID) {
	t.Lookup(pid).State = process.StateReady
	t.queue.Push(pid)
}

func newTestTable(kernel bool, pids ...process.PID) *testTable {
	ret := &testTable{queue: NewQueue()}
	if kernel {
		ret.records = append(ret.records, &process.Record{PID: process.KernelPID, State: process.StateRunning})
		ret.current, ret.hasCurrent = process.KernelPID, true
	}
	for _, pid := range pids {
		ret.records = append(ret.records, &process.Record{PID: pid, State: process.StateReady})
		ret.queue.Push(pid)
	}
	return ret
}

func TestScheduler_Cycle(t *testing.T) {
	testCases := []struct {
		name   string
		policy string
		kernel bool
		wake   []process.PID
		expect []process.PID
	}{
		{name: "fifo without kernel", policy: PolicyFIFO, expect: []process.PID{1, 2, 3, 1, 2, 3, 1}},
		{name: "fifo with kernel idle", policy: PolicyFIFO, kernel: true, expect: []process.PID{1, 2, 3, 1, 2, 3, 1}},
		{name: "scan without kernel", policy: PolicyScan, expect: []process.PID{1, 2, 3, 1, 2, 3, 1}},
		{name: "scan with kernel idle", policy: PolicyScan, kernel: true, expect: []process.PID{1, 2, 3, 1, 2, 3, 1}},
		{name: "fifo woken process goes last", policy: PolicyFIFO, wake: []process.PID{2}, expect: []process.PID{1, 3, 2, 1, 3, 2, 1}},
		{name: "scan woken process goes last", policy: PolicyScan, wake: []process.PID{2}, expect: []process.PID{1, 3, 2, 1, 3, 2, 1}},
		{name: "scan keeps readiness order over slots", policy: PolicyScan, kernel: true, wake: []process.PID{3, 2}, expect: []process.PID{1, 3, 2, 1, 3, 2, 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			policy, err := New(tc.policy)
			require.NoError(t, err)
			table := newTestTable(tc.kernel, 1, 2, 3)
			var actual []process.PID
			for i := range tc.expect {
				pid, ok := policy.Schedule(table)
				require.True(t, ok)
				actual = append(actual, pid)
				if i == 0 {
					for _, woken := range tc.wake {
						table.wait(woken)
						table.wakeUp(woken)
					}
				}
				running := 0
				table.Each(func(_ int, r *process.Record) bool {
					if r.State == process.StateRunning {
						running++
					}
					return true
				})
				assert.Equal(t, 1, running)
			}
			assert.Equal(t, tc.expect, actual)
			if tc.kernel {
				assert.Equal(t, process.StateReady, table.Lookup(process.KernelPID).State)
				assert.False(t, table.queue.Contains(process.KernelPID))
			}
		})
	}
}

func TestScheduler_KillRunning(t *testing.T) {
	for _, policy := range []string{PolicyFIFO, PolicyScan} {
		t.Run(policy, func(t *testing.T) {
			s, err := New(policy)
			require.NoError(t, err)
			table := newTestTable(false, 1, 2, 3)
			pid, _ := s.Schedule(table)
			require.EqualValues(t, 1, pid)
			table.kill(1)
			pid, ok := s.Schedule(table)
			assert.True(t, ok)
			assert.EqualValues(t, 2, pid)
			assert.Equal(t, process.StateReady, table.Lookup(3).State)
		})
	}
}

func TestScheduler_Fallback(t *testing.T) {
	testCases := []struct {
		name      string
		kernel    bool
		pids      []process.PID
		killFirst bool
		expectPID process.PID
		expectOK  bool
	}{
		{name: "nothing ever ran", expectOK: false},
		{name: "kernel keeps running when queue empty", kernel: true, expectPID: process.KernelPID, expectOK: true},
		{name: "single process keeps running", pids: []process.PID{7}, expectPID: 7, expectOK: true},
		{name: "kernel resumes after last process dies", kernel: true, pids: []process.PID{7}, killFirst: true, expectPID: process.KernelPID, expectOK: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, policy := range []string{PolicyFIFO, PolicyScan} {
				s, _ := New(policy)
				table := newTestTable(tc.kernel, tc.pids...)
				if len(tc.pids) > 0 {
					first, ok := s.Schedule(table)
					require.True(t, ok)
					if tc.killFirst {
						table.kill(first)
					}
				}
				pid, ok := s.Schedule(table)
				assert.Equal(t, tc.expectOK, ok, policy)
				if ok {
					assert.Equal(t, tc.expectPID, pid, policy)
					assert.Equal(t, process.StateRunning, table.Lookup(pid).State)
				}
			}
		})
	}
}

func TestScheduler_SkipsWaiting(t *testing.T) {
	for _, policy := range []string{PolicyFIFO, PolicyScan} {
		s, _ := New(policy)
		table := newTestTable(false, 1, 2, 3)
		table.Lookup(2).State = process.StateWaiting
		table.queue.Remove(2)
		var actual []process.PID
		for i := 0; i < 4; i++ {
			pid, _ := s.Schedule(table)
			actual = append(actual, pid)
		}
		assert.Equal(t, []process.PID{1, 3, 1, 3}, actual, policy)
	}
}

func TestNew_UnknownPolicy(t *testing.T) {
	_, err := New("lottery")
	assert.Error(t, err)
}

func TestQueue(t *testing.T) {
	q := NewQueue()
	assert.True(t, q.Push(1))
	assert.True(t, q.Push(2))
	assert.False(t, q.Push(1))
	assert.True(t, q.Push(3))
	assert.Equal(t, []process.PID{1, 2, 3}, q.Snapshot())
	assert.True(t, q.Remove(2))
	assert.False(t, q.Remove(2))
	pid, ok := q.Pop()
	assert.True(t, ok)
	assert.EqualValues(t, 1, pid)
	assert.True(t, q.Push(1))
	assert.Equal(t, []process.PID{3, 1}, q.Snapshot())
	assert.Equal(t, 2, q.Len())
	q.Pop()
	q.Pop()
	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}
