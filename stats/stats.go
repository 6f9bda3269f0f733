package stats

import (
	"sync"
	"time"
)

// Delta represents an incremental counter change. Fields are signed so a
// caller can also correct a counter.
type Delta struct {
	Created       int
	Killed        int
	Schedules     int
	Switches      int
	Preemptions   int
	Yields        int
	Ticks         int
	DroppedEvents int
}

// Stats is a point-in-time copy of the counters
type Stats struct {
	BootID    string
	StartedAt time.Time

	Created       int
	Killed        int
	Schedules     int
	Switches      int
	Preemptions   int
	Yields        int
	Ticks         int
	DroppedEvents int
}

func (s *Stats) apply(d Delta) {
	s.Created += d.Created
	s.Killed += d.Killed
	s.Schedules += d.Schedules
	s.Switches += d.Switches
	s.Preemptions += d.Preemptions
	s.Yields += d.Yields
	s.Ticks += d.Ticks
	s.DroppedEvents += d.DroppedEvents
}

// Counters keeps aggregated counters. It is safe for concurrent use.
type Counters struct {
	mux      sync.Mutex
	stats    Stats
	onChange func(Stats)
}

// Update applies d. The change callback, if any, is called with a snapshot
// outside the critical section.
func (c *Counters) Update(d Delta) {
	if c == nil {
		return
	}
	c.mux.Lock()
	c.stats.apply(d)
	snapshot := c.stats
	cb := c.onChange
	c.mux.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy for read-only inspection.
func (c *Counters) Snapshot() Stats {
	if c == nil {
		return Stats{}
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.stats
}

// BootID returns the boot the counters belong to.
func (c *Counters) BootID() string {
	if c == nil {
		return ""
	}
	return c.stats.BootID
}

// OnChange registers the callback invoked after every Update; nil disables it.
func (c *Counters) OnChange(cb func(Stats)) {
	if c == nil {
		return
	}
	c.mux.Lock()
	c.onChange = cb
	c.mux.Unlock()
}

// New creates counters for a boot.
func New(bootID string, startedAt time.Time) *Counters {
	return &Counters{stats: Stats{BootID: bootID, StartedAt: startedAt}}
}
