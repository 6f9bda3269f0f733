package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_CanTransition(t *testing.T) {
	testCases := []struct {
		name   string
		from   State
		to     State
		expect bool
	}{
		{name: "admit", from: StateNew, to: StateReady, expect: true},
		{name: "dispatch", from: StateReady, to: StateRunning, expect: true},
		{name: "preempt", from: StateRunning, to: StateReady, expect: true},
		{name: "block", from: StateRunning, to: StateWaiting, expect: true},
		{name: "wake", from: StateWaiting, to: StateReady, expect: true},
		{name: "kill new", from: StateNew, to: StateTerminated, expect: true},
		{name: "terminated is absorbing", from: StateTerminated, to: StateReady},
		{name: "no return to new", from: StateReady, to: StateNew},
		{name: "new skips ready", from: StateNew, to: StateRunning},
		{name: "waiting skips ready", from: StateWaiting, to: StateRunning},
		{name: "unknown state", from: StateReady, to: State("zombie")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.from.CanTransition(tc.to))
		})
	}
	assert.True(t, StateRunning.IsActive())
	assert.False(t, StateBlocked.IsActive())
	assert.True(t, StateTerminated.IsTerminal())
}

func TestParsePermission(t *testing.T) {
	testCases := []struct {
		name         string
		names        []string
		expect       Permission
		expectString string
		expectOK     bool
	}{
		{name: "code", names: []string{"present", "user", "executable"}, expect: PermissionPresent | PermissionUser | PermissionExecutable, expectString: "p-ux", expectOK: true},
		{name: "mixed case", names: []string{" Present ", "WRITABLE"}, expect: PermissionPresent | PermissionWritable, expectString: "pw--", expectOK: true},
		{name: "none", expectString: "----", expectOK: true},
		{name: "unknown", names: []string{"present", "dirty"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual, ok := ParsePermission(tc.names...)
			assert.Equal(t, tc.expectOK, ok)
			if !tc.expectOK {
				return
			}
			assert.Equal(t, tc.expect, actual)
			assert.Equal(t, tc.expectString, actual.String())
		})
	}
	assert.Equal(t, []string{"present", "writable", "user"}, (PermissionPresent | PermissionWritable | PermissionUser).Names())
}

func TestRegion(t *testing.T) {
	code := &Region{Name: RegionCode, Start: 0x40_0000, Size: 0x1800}
	assert.EqualValues(t, 0x40_1800, code.End())
	assert.EqualValues(t, 2, code.Pages())
	assert.True(t, code.Contains(0x40_17ff))
	assert.False(t, code.Contains(0x40_1800))
	assert.True(t, code.Overlaps(&Region{Start: 0x40_1000, Size: 0x1000}))
	assert.False(t, code.Overlaps(&Region{Start: 0x40_1800, Size: 0x1000}))
}

func TestStack(t *testing.T) {
	stack := Stack{Base: 0x1000, Size: 0x2000}
	assert.EqualValues(t, 0x3000, stack.Top())
	assert.False(t, stack.IsZero())
	assert.True(t, stack.Overlaps(Stack{Base: 0x2000, Size: 0x2000}))
	assert.False(t, stack.Overlaps(Stack{Base: 0x3000, Size: 0x1000}))
	assert.False(t, stack.Overlaps(Stack{}))
}

func TestRecord_Clone(t *testing.T) {
	parent := KernelPID
	record := &Record{
		PID:       3,
		ParentPID: &parent,
		Name:      "worker",
		State:     StateReady,
		AddressSpace: &AddressSpace{Root: 0x20_0000, Regions: []Region{
			{Name: RegionCode, Start: 0x40_0000, Size: PageSize},
		}},
	}
	clone := record.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, record, clone)

	*clone.ParentPID = 9
	clone.AddressSpace.Regions[0].Size = 0
	assert.Equal(t, KernelPID, *record.ParentPID)
	assert.EqualValues(t, PageSize, record.AddressSpace.Region(RegionCode).Size)
	assert.Nil(t, record.AddressSpace.Region(RegionHeap))

	assert.True(t, record.IsChildOf(KernelPID))
	assert.False(t, record.IsKernel())
	assert.True(t, record.IsActive())
	assert.Equal(t, "ready", record.GetState())
	assert.Equal(t, "3", record.PID.String())
	assert.Nil(t, (*Record)(nil).Clone())
}
