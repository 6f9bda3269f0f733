package vm

import (
	"fmt"

	"github.com/viant/kproc/arch"
	"github.com/viant/kproc/model/types"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/frame"
)

// Page-table entry bits
const (
	EntryPresent   uint64 = 1 << 0
	EntryWritable  uint64 = 1 << 1
	EntryUser      uint64 = 1 << 2
	EntryNoExecute uint64 = 1 << 63

	addressMask     uint64 = 0x000f_ffff_ffff_f000
	entriesPerTable        = 512
	// kernelHalf is the first top-level index of the kernel (upper) half.
	kernelHalf = entriesPerTable / 2
	// userLimit is the first non-canonical lower-half address.
	userLimit uint64 = 1 << 47
)

// FrameAllocator supplies physical frames for tables and pages
type FrameAllocator interface {
	Allocate() (frame.Frame, error)
}

// EntryFlags converts region permissions to page-table entry bits.
func EntryFlags(perm process.Permission) uint64 {
	var ret uint64
	if perm.Has(process.PermissionPresent) {
		ret |= EntryPresent
	}
	if perm.Has(process.PermissionWritable) {
		ret |= EntryWritable
	}
	if perm.Has(process.PermissionUser) {
		ret |= EntryUser
	}
	if !perm.Has(process.PermissionExecutable) {
		ret |= EntryNoExecute
	}
	return ret
}

// PageTables reads and writes 4-level page tables through the
// physical-memory offset mapping.
type PageTables struct {
	memory arch.Memory
	offset uint64
}

// Entry returns entry index of the table at physical address table.
func (p *PageTables) Entry(table uint64, index int) uint64 {
	return p.memory.ReadWord(p.entryAddress(table, index))
}

// SetEntry writes entry index of the table at physical address table.
func (p *PageTables) SetEntry(table uint64, index int, value uint64) {
	p.memory.WriteWord(p.entryAddress(table, index), value)
}

// Zero clears all entries of a table.
func (p *PageTables) Zero(table uint64) {
	for i := 0; i < entriesPerTable; i++ {
		p.SetEntry(table, i, 0)
	}
}

// CopyKernelHalf copies the upper-half entries of src into dst.
func (p *PageTables) CopyKernelHalf(dst, src uint64) {
	for i := kernelHalf; i < entriesPerTable; i++ {
		p.SetEntry(dst, i, p.Entry(src, i))
	}
}

// Map installs virt -> phys with flags, allocating intermediate tables as needed.
func (p *PageTables) Map(root, virt, phys, flags uint64, frames FrameAllocator) error {
	if virt%process.PageSize != 0 || phys%process.PageSize != 0 {
		return types.NewMappingFailedError(virt, "not page aligned")
	}
	if virt >= userLimit {
		return types.NewMappingFailedError(virt, "outside the user half")
	}
	table := root
	for level := 4; level > 1; level-- {
		index := tableIndex(virt, level)
		entry := p.Entry(table, index)
		if entry&EntryPresent == 0 {
			next, err := frames.Allocate()
			if err != nil {
				return fmt.Errorf("page %#x level %d table: %w", virt, level-1, err)
			}
			p.Zero(next.Address())
			entry = next.Address() | EntryPresent | EntryWritable | EntryUser
			p.SetEntry(table, index, entry)
		}
		table = entry & addressMask
	}
	index := tableIndex(virt, 1)
	if p.Entry(table, index)&EntryPresent != 0 {
		return types.NewMappingFailedError(virt, "already mapped")
	}
	p.SetEntry(table, index, phys&addressMask|flags)
	return nil
}

// Translate walks the tables and returns the frame and leaf flags for virt.
func (p *PageTables) Translate(root, virt uint64) (phys uint64, flags uint64, ok bool) {
	table := root
	for level := 4; level > 1; level-- {
		entry := p.Entry(table, tableIndex(virt, level))
		if entry&EntryPresent == 0 {
			return 0, 0, false
		}
		table = entry & addressMask
	}
	entry := p.Entry(table, tableIndex(virt, 1))
	if entry&EntryPresent == 0 {
		return 0, 0, false
	}
	return entry&addressMask | virt&(process.PageSize-1), entry &^ addressMask, true
}

func tableIndex(virt uint64, level int) int {
	return int(virt>>(12+9*uint(level-1))) & (entriesPerTable - 1)
}

// NewPageTables creates page-table accessors; offset is the virtual address
// at which all physical memory is mapped.
func NewPageTables(memory arch.Memory, offset uint64) *PageTables {
	return &PageTables{memory: memory, offset: offset}
}

func (p *PageTables) entryAddress(table uint64, index int) uint64 {
	return p.offset + table + uint64(index)*8
}
