// Package frame hands out physical memory frames from the boot memory map.
// It is a pure bump allocator: the cursor walks the usable regions in order,
// only ever advances and frames are never returned.
package frame

import (
	"errors"
	"fmt"
	"sync"

	"github.com/viant/kproc/model/types"
)

// Size is the size of a physical frame.
const Size = 4096

// ErrAlreadyInitialized is returned by a second Init call.
var ErrAlreadyInitialized = errors.New("frame allocator already initialized")

// Frame is the physical start address of a 4 KiB frame.
type Frame uint64

// Address returns the physical address of the frame.
func (f Frame) Address() uint64 {
	return uint64(f)
}

// Allocator is a bump frame allocator over the usable memory ranges
type Allocator struct {
	regions     []Region
	region      int
	next        uint64
	allocated   uint64
	initialized bool
	mux         sync.Mutex
}

// Init installs the memory map; it must be called exactly once before Allocate.
func (a *Allocator) Init(regions []Region) error {
	a.mux.Lock()
	defer a.mux.Unlock()
	if a.initialized {
		return ErrAlreadyInitialized
	}
	usable := make([]Region, 0, len(regions))
	for i := range regions {
		region := regions[i]
		if !region.IsUsable() {
			continue
		}
		if err := region.Validate(); err != nil {
			return err
		}
		usable = append(usable, region)
	}
	a.regions = usable
	a.region = 0
	if len(usable) > 0 {
		a.next = alignUp(usable[0].Start)
	}
	a.initialized = true
	return nil
}

// Allocate returns the next free frame, types.ErrOutOfMemory when the
// usable ranges are exhausted or types.ErrNotInitialized before Init.
func (a *Allocator) Allocate() (Frame, error) {
	a.mux.Lock()
	defer a.mux.Unlock()
	if !a.initialized {
		return 0, fmt.Errorf("frame allocator: %w", types.ErrNotInitialized)
	}
	for a.region < len(a.regions) {
		region := &a.regions[a.region]
		if a.next >= region.Start && a.next+Size <= region.End {
			ret := Frame(a.next)
			a.next += Size
			a.allocated++
			return ret, nil
		}
		a.region++
		if a.region < len(a.regions) {
			a.next = alignUp(a.regions[a.region].Start)
		}
	}
	return 0, fmt.Errorf("frame allocator: %d frames handed out: %w", a.allocated, types.ErrOutOfMemory)
}

// Allocated returns the number of frames handed out so far.
func (a *Allocator) Allocated() uint64 {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.allocated
}

// Available returns the number of frames still available.
func (a *Allocator) Available() uint64 {
	a.mux.Lock()
	defer a.mux.Unlock()
	if !a.initialized {
		return 0
	}
	var ret uint64
	for i := a.region; i < len(a.regions); i++ {
		region := &a.regions[i]
		start := alignUp(region.Start)
		if i == a.region {
			start = a.next
		}
		if region.End > start {
			ret += (region.End - start) / Size
		}
	}
	return ret
}

// IsInitialized reports whether Init has been called.
func (a *Allocator) IsInitialized() bool {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.initialized
}

func alignUp(addr uint64) uint64 {
	return (addr + Size - 1) &^ (Size - 1)
}

// New creates an uninitialized allocator.
func New() *Allocator {
	return &Allocator{}
}
