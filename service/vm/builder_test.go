package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/kproc/arch/sim"
	"github.com/viant/kproc/model/types"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/frame"
	"github.com/viant/kproc/service/heap"
)

const (
	testOffset    uint64 = 0xffff_8000_0000_0000
	testBootTable uint64 = 0x1000
)

func testLayout() []process.Region {
	return []process.Region{
		{Name: process.RegionCode, Start: 0x40_0000, Size: process.PageSize, Permission: userPermission | process.PermissionExecutable},
		{Name: process.RegionData, Start: 0x80_0000, Size: 2 * process.PageSize, Permission: rwPermission},
		{Name: process.RegionStack, Start: 0x7000_0000, Size: process.PageSize, Permission: rwPermission},
	}
}

func newTestBuilder(t *testing.T, frames uint64, layout []process.Region) (*Builder, *frame.Allocator, *sim.Machine) {
	machine := sim.New(sim.Config{ActivePageTable: testBootTable})
	allocator := frame.New()
	require.NoError(t, allocator.Init([]frame.Region{
		{Start: 0, End: 0x10_0000, Kind: frame.KindReserved},
		{Start: 0x10_0000, End: 0x10_0000 + frames*frame.Size, Kind: frame.KindUsable},
	}))
	tables := NewPageTables(machine, testOffset)
	tables.SetEntry(testBootTable, 256, 0x20_0003)
	tables.SetEntry(testBootTable, 511, 0x30_0003)
	builder, err := NewBuilder(tables, allocator, machine, layout)
	require.NoError(t, err)
	return builder, allocator, machine
}

func TestBuilder_Create(t *testing.T) {
	builder, allocator, _ := newTestBuilder(t, 64, testLayout())
	space, err := builder.Create(0xdead_0000)
	require.NoError(t, err)
	require.NotNil(t, space)
	assert.EqualValues(t, 0xdead_0000, space.Entry)
	assert.Len(t, space.Regions, 3)
	assert.EqualValues(t, 11, allocator.Allocated())

	tables := builder.Tables()
	for i := kernelHalf; i < entriesPerTable; i++ {
		assert.Equal(t, tables.Entry(testBootTable, i), tables.Entry(space.Root, i), "kernel entry %d", i)
	}
	for i := 1; i < kernelHalf; i++ {
		assert.Zero(t, tables.Entry(space.Root, i), "user entry %d", i)
	}

	testCases := []struct {
		name        string
		virt        uint64
		writable    bool
		noExecute   bool
		expectFound bool
	}{
		{name: "code page", virt: 0x40_0000, noExecute: false, expectFound: true},
		{name: "data first page", virt: 0x80_0000, writable: true, noExecute: true, expectFound: true},
		{name: "data second page", virt: 0x80_1000, writable: true, noExecute: true, expectFound: true},
		{name: "stack page", virt: 0x7000_0000, writable: true, noExecute: true, expectFound: true},
		{name: "unmapped gap", virt: 0x40_1000},
		{name: "heap not in layout", virt: 0x100_0000},
	}
	frames := map[uint64]bool{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			phys, flags, ok := tables.Translate(space.Root, tc.virt+0x10)
			assert.Equal(t, tc.expectFound, ok)
			if !ok {
				return
			}
			assert.EqualValues(t, 0x10, phys%process.PageSize)
			assert.False(t, frames[phys], "frame reused")
			frames[phys] = true
			assert.NotZero(t, flags&EntryPresent)
			assert.NotZero(t, flags&EntryUser)
			assert.Equal(t, tc.writable, flags&EntryWritable != 0)
			assert.Equal(t, tc.noExecute, flags&EntryNoExecute != 0)
		})
	}
}

func TestBuilder_CreateDistinctSpaces(t *testing.T) {
	builder, _, _ := newTestBuilder(t, 64, testLayout())
	first, err := builder.Create(1)
	require.NoError(t, err)
	second, err := builder.Create(2)
	require.NoError(t, err)
	assert.NotEqual(t, first.Root, second.Root)
	p1, _, _ := builder.Tables().Translate(first.Root, 0x80_0000)
	p2, _, _ := builder.Tables().Translate(second.Root, 0x80_0000)
	assert.NotEqual(t, p1, p2)
}

func TestBuilder_OutOfMemory(t *testing.T) {
	builder, allocator, _ := newTestBuilder(t, 5, testLayout())
	space, err := builder.Create(1)
	assert.Nil(t, space)
	assert.ErrorIs(t, err, types.ErrOutOfMemory)
	assert.EqualValues(t, 5, allocator.Allocated())
}

func TestPageTables_MapTwice(t *testing.T) {
	builder, allocator, _ := newTestBuilder(t, 16, testLayout())
	root, err := allocator.Allocate()
	require.NoError(t, err)
	tables := builder.Tables()
	require.NoError(t, tables.Map(root.Address(), 0x40_0000, 0x50_0000, EntryPresent, allocator))
	err = tables.Map(root.Address(), 0x40_0000, 0x60_0000, EntryPresent, allocator)
	assert.ErrorIs(t, err, types.ErrMappingFailed)
	err = tables.Map(root.Address(), 0x40_0010, 0x60_0000, EntryPresent, allocator)
	assert.ErrorIs(t, err, types.ErrMappingFailed)
	err = tables.Map(root.Address(), 0xffff_8000_0000_0000, 0x60_0000, EntryPresent, allocator)
	assert.ErrorIs(t, err, types.ErrMappingFailed)
}

func TestValidateLayout(t *testing.T) {
	testCases := []struct {
		name      string
		regions   []process.Region
		expectErr bool
	}{
		{name: "standard layout", regions: StandardLayout()},
		{name: "empty layout", regions: nil, expectErr: true},
		{name: "zero size", regions: []process.Region{{Name: "a", Start: 0x1000, Permission: userPermission}}, expectErr: true},
		{name: "unaligned", regions: []process.Region{{Name: "a", Start: 0x1010, Size: 0x1000, Permission: userPermission}}, expectErr: true},
		{name: "not present", regions: []process.Region{{Name: "a", Start: 0x1000, Size: 0x1000, Permission: process.PermissionUser}}, expectErr: true},
		{name: "kernel half", regions: []process.Region{{Name: "a", Start: 0xffff_8000_0000_0000, Size: 0x1000, Permission: userPermission}}, expectErr: true},
		{
			name: "overlap",
			regions: []process.Region{
				{Name: "a", Start: 0x1000, Size: 0x2000, Permission: userPermission},
				{Name: "b", Start: 0x2000, Size: 0x1000, Permission: userPermission},
			},
			expectErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateLayout(tc.regions)
			if tc.expectErr {
				assert.ErrorIs(t, err, types.ErrInvalidMemoryLayout)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStacks_Disjoint(t *testing.T) {
	h, err := heap.New(0x4000_0000, 1<<20)
	require.NoError(t, err)
	stacks, err := NewStacks(h, 0, 0)
	require.NoError(t, err)

	var all []process.Stack
	for i := 0; i < 3; i++ {
		kernel, err := stacks.AllocateKernelStack()
		require.NoError(t, err)
		user, err := stacks.AllocateUserStack()
		require.NoError(t, err)
		assert.EqualValues(t, DefaultKernelStackSize, kernel.Size)
		assert.EqualValues(t, DefaultUserStackSize, user.Size)
		assert.NotZero(t, kernel.Top())
		assert.NotZero(t, user.Top())
		all = append(all, kernel, user)
	}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			assert.False(t, all[i].Overlaps(all[j]), "%v overlaps %v", all[i], all[j])
		}
	}
}

func TestStacks_OutOfMemory(t *testing.T) {
	h, err := heap.New(0x4000_0000, 12*1024)
	require.NoError(t, err)
	stacks, err := NewStacks(h, 0, 0)
	require.NoError(t, err)
	_, err = stacks.AllocateKernelStack()
	require.NoError(t, err)
	_, err = stacks.AllocateUserStack()
	assert.ErrorIs(t, err, types.ErrOutOfMemory)
}
