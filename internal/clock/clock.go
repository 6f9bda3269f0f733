package clock

import (
	"sync/atomic"
	"time"
)

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }

// Counter is a monotonic logical clock; process creation times are taken
// from it instead of the wall clock.
type Counter struct {
	value atomic.Uint64
}

// Next advances the counter and returns the new value.
func (c *Counter) Next() uint64 {
	return c.value.Add(1)
}

// Value returns the last issued value.
func (c *Counter) Value() uint64 {
	return c.value.Load()
}
