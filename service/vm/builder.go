// Package vm builds per-process address spaces and allocates process stacks.
package vm

import (
	"fmt"

	"github.com/viant/kproc/runtime/process"
)

// ActiveTable reports the top-level table currently loaded on the CPU
type ActiveTable interface {
	ActivePageTable() uint64
}

// Builder creates address spaces that share the kernel half of the active
// table and own private user regions
type Builder struct {
	tables *PageTables
	frames FrameAllocator
	active ActiveTable
	layout []process.Region
}

// Create allocates a top-level table, mirrors the kernel half of the active
// table and maps every layout region one frame per page. A failure aborts
// the remaining mapping; frames already installed are not reclaimed.
func (b *Builder) Create(entry uint64) (*process.AddressSpace, error) {
	rootFrame, err := b.frames.Allocate()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate top-level table: %w", err)
	}
	root := rootFrame.Address()
	b.tables.Zero(root)
	b.tables.CopyKernelHalf(root, b.active.ActivePageTable())
	for i := range b.layout {
		if err = b.mapRegion(root, &b.layout[i]); err != nil {
			return nil, fmt.Errorf("failed to map %v region: %w", b.layout[i].Name, err)
		}
	}
	return &process.AddressSpace{
		Root:    root,
		Entry:   entry,
		Regions: append([]process.Region(nil), b.layout...),
	}, nil
}

func (b *Builder) mapRegion(root uint64, region *process.Region) error {
	flags := EntryFlags(region.Permission)
	for page := uint64(0); page < region.Pages(); page++ {
		f, err := b.frames.Allocate()
		if err != nil {
			return err
		}
		if err = b.tables.Map(root, region.Start+page*process.PageSize, f.Address(), flags, b.frames); err != nil {
			return err
		}
	}
	return nil
}

// Layout returns a copy of the regions mapped into every address space.
func (b *Builder) Layout() []process.Region {
	return append([]process.Region(nil), b.layout...)
}

// Tables returns the page-table accessor.
func (b *Builder) Tables() *PageTables {
	return b.tables
}

// NewBuilder creates a builder; an empty layout means StandardLayout.
func NewBuilder(tables *PageTables, frames FrameAllocator, active ActiveTable, layout []process.Region) (*Builder, error) {
	if tables == nil {
		return nil, fmt.Errorf("page tables are required")
	}
	if frames == nil {
		return nil, fmt.Errorf("frame allocator is required")
	}
	if active == nil {
		return nil, fmt.Errorf("active table source is required")
	}
	if len(layout) == 0 {
		layout = StandardLayout()
	}
	if err := ValidateLayout(layout); err != nil {
		return nil, err
	}
	return &Builder{tables: tables, frames: frames, active: active, layout: append([]process.Region(nil), layout...)}, nil
}
