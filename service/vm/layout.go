package vm

import (
	"fmt"
	"sort"

	"github.com/viant/kproc/model/types"
	"github.com/viant/kproc/runtime/process"
)

const (
	userPermission = process.PermissionPresent | process.PermissionUser
	rwPermission   = userPermission | process.PermissionWritable
)

// StandardLayout returns the per-process user regions: code, data, heap and a
// stack near the top of the low user range.
func StandardLayout() []process.Region {
	return []process.Region{
		{Name: process.RegionCode, Start: 0x0040_0000, Size: 0x0010_0000, Permission: userPermission | process.PermissionExecutable},
		{Name: process.RegionData, Start: 0x0080_0000, Size: 0x0010_0000, Permission: rwPermission},
		{Name: process.RegionHeap, Start: 0x0100_0000, Size: 0x0040_0000, Permission: rwPermission},
		{Name: process.RegionStack, Start: 0x7000_0000, Size: 0x0001_0000, Permission: rwPermission},
	}
}

// ValidateLayout checks that regions are page aligned, non-empty, present,
// inside the user half and disjoint.
func ValidateLayout(regions []process.Region) error {
	if len(regions) == 0 {
		return fmt.Errorf("no regions: %w", types.ErrInvalidMemoryLayout)
	}
	sorted := append([]process.Region(nil), regions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i := range sorted {
		region := &sorted[i]
		switch {
		case region.Size == 0:
			return fmt.Errorf("region %v: empty: %w", region.Name, types.ErrInvalidMemoryLayout)
		case region.Start%process.PageSize != 0 || region.Size%process.PageSize != 0:
			return fmt.Errorf("region %v: not page aligned: %w", region.Name, types.ErrInvalidMemoryLayout)
		case region.End() > userLimit || region.End() < region.Start:
			return fmt.Errorf("region %v: outside the user half: %w", region.Name, types.ErrInvalidMemoryLayout)
		case !region.Permission.Has(process.PermissionPresent):
			return fmt.Errorf("region %v: not present: %w", region.Name, types.ErrInvalidMemoryLayout)
		}
		if i > 0 && sorted[i-1].Overlaps(region) {
			return fmt.Errorf("region %v overlaps %v: %w", region.Name, sorted[i-1].Name, types.ErrInvalidMemoryLayout)
		}
	}
	return nil
}
