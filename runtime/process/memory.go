package process

import "strings"

// PageSize is the size of a page and of a physical frame.
const PageSize = 4096

// Permission is a set of region access bits.
type Permission uint8

const (
	PermissionPresent Permission = 1 << iota
	PermissionWritable
	PermissionUser
	PermissionExecutable
)

var permissionNames = []struct {
	bit  Permission
	name string
}{
	{PermissionPresent, "present"},
	{PermissionWritable, "writable"},
	{PermissionUser, "user"},
	{PermissionExecutable, "executable"},
}

// Has returns true when all bits of p are set.
func (m Permission) Has(p Permission) bool {
	return m&p == p
}

// ParsePermission builds a permission from names like "present", "writable".
func ParsePermission(names ...string) (Permission, bool) {
	var ret Permission
	for _, name := range names {
		found := false
		for _, candidate := range permissionNames {
			if strings.EqualFold(strings.TrimSpace(name), candidate.name) {
				ret |= candidate.bit
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return ret, true
}

// Names returns the permission bit names.
func (m Permission) Names() []string {
	var ret []string
	for _, candidate := range permissionNames {
		if m.Has(candidate.bit) {
			ret = append(ret, candidate.name)
		}
	}
	return ret
}

func (m Permission) String() string {
	var b strings.Builder
	for _, c := range []struct {
		bit  Permission
		flag byte
	}{{PermissionPresent, 'p'}, {PermissionWritable, 'w'}, {PermissionUser, 'u'}, {PermissionExecutable, 'x'}} {
		if m.Has(c.bit) {
			b.WriteByte(c.flag)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Region is a named virtual memory range of a process
type Region struct {
	Name       string     `json:"name" yaml:"name"`
	Start      uint64     `json:"start" yaml:"start"`
	Size       uint64     `json:"size" yaml:"size"`
	Permission Permission `json:"permission" yaml:"permission"`
}

// End returns the first address past the region.
func (r *Region) End() uint64 {
	return r.Start + r.Size
}

// Pages returns the number of pages the region spans.
func (r *Region) Pages() uint64 {
	return (r.Size + PageSize - 1) / PageSize
}

// Contains returns true if addr falls into the region.
func (r *Region) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End()
}

// Overlaps returns true if both regions share an address.
func (r *Region) Overlaps(other *Region) bool {
	return r.Start < other.End() && other.Start < r.End()
}

// Region names of the standard layout
const (
	RegionCode  = "code"
	RegionData  = "data"
	RegionHeap  = "heap"
	RegionStack = "stack"
)

// AddressSpace is a page-table root plus the regions mapped into it
type AddressSpace struct {
	Root    uint64   `json:"root"`
	Entry   uint64   `json:"entry,omitempty"`
	Regions []Region `json:"regions,omitempty"`
}

// Region returns a region by name.
func (a *AddressSpace) Region(name string) *Region {
	if a == nil {
		return nil
	}
	for i := range a.Regions {
		if a.Regions[i].Name == name {
			return &a.Regions[i]
		}
	}
	return nil
}

// Clone returns a deep copy.
func (a *AddressSpace) Clone() *AddressSpace {
	if a == nil {
		return nil
	}
	ret := *a
	ret.Regions = append([]Region(nil), a.Regions...)
	return &ret
}

// Stack is an exclusively owned memory block used as an execution stack.
type Stack struct {
	Base uint64 `json:"base"`
	Size uint64 `json:"size"`
}

// Top returns the highest address; stacks grow downward from it.
func (s Stack) Top() uint64 {
	return s.Base + s.Size
}

// IsZero returns true for an unallocated stack.
func (s Stack) IsZero() bool {
	return s.Size == 0
}

// Overlaps returns true if both stacks share an address.
func (s Stack) Overlaps(other Stack) bool {
	if s.IsZero() || other.IsZero() {
		return false
	}
	return s.Base < other.Top() && other.Base < s.Top()
}
