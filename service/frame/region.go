package frame

import (
	"fmt"
	"strings"
)

// Kind classifies a boot memory map entry
type Kind string

const (
	KindUsable     Kind = "usable"
	KindReserved   Kind = "reserved"
	KindBootloader Kind = "bootloader"
	KindKernel     Kind = "kernel"
)

// Region is one entry of the boot-supplied physical memory map; End is exclusive.
type Region struct {
	Start uint64 `json:"start" yaml:"start"`
	End   uint64 `json:"end" yaml:"end"`
	Kind  Kind   `json:"kind" yaml:"kind"`
}

// IsUsable returns true if frames may be handed out from the region.
func (r *Region) IsUsable() bool {
	return Kind(strings.ToLower(string(r.Kind))) == KindUsable
}

// Validate checks region bounds.
func (r *Region) Validate() error {
	if r.End <= r.Start {
		return fmt.Errorf("invalid memory region [%#x, %#x)", r.Start, r.End)
	}
	return nil
}
