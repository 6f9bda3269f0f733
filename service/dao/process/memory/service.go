// Package memory implements the live process table: an array of optional
// records plus a pid to slot index. Freed slots are reused; pids are not.
package memory

import (
	"context"
	"sync"

	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/dao"
	"github.com/viant/kproc/service/dao/criteria"
)

// Service is the slot-array process table. Load returns the stored record
// itself so the registry can mutate it in place under its own lock; List
// returns the stored pointers in slot order.
type Service struct {
	slots []*process.Record
	index map[process.PID]int
	live  int
	mux   sync.RWMutex
}

var _ dao.Service[process.PID, process.Record] = (*Service)(nil)

// Save inserts a record into the lowest free slot or replaces the record
// stored under the same pid.
func (s *Service) Save(_ context.Context, record *process.Record) error {
	if record == nil {
		return dao.ErrNilEntity
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if slot, ok := s.index[record.PID]; ok {
		s.slots[slot] = record
		return nil
	}
	slot := s.freeSlot()
	s.slots[slot] = record
	s.index[record.PID] = slot
	s.live++
	return nil
}

func (s *Service) Load(_ context.Context, pid process.PID) (*process.Record, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	slot, ok := s.index[pid]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return s.slots[slot], nil
}

func (s *Service) Delete(_ context.Context, pid process.PID) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	slot, ok := s.index[pid]
	if !ok {
		return dao.ErrNotFound
	}
	s.slots[slot] = nil
	delete(s.index, pid)
	s.live--
	return nil
}

func (s *Service) List(_ context.Context, parameters ...*dao.Parameter) ([]*process.Record, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make([]*process.Record, 0, s.live)
	for _, record := range s.slots {
		if record == nil || !criteria.FilterByState(record.GetState(), parameters) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

// Each visits live records in slot order until fn returns false.
func (s *Service) Each(fn func(slot int, record *process.Record) bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	for slot, record := range s.slots {
		if record == nil {
			continue
		}
		if !fn(slot, record) {
			return
		}
	}
}

// SlotOf returns the slot holding pid.
func (s *Service) SlotOf(pid process.PID) (int, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	slot, ok := s.index[pid]
	return slot, ok
}

// Len returns the number of live records.
func (s *Service) Len() int {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.live
}

func (s *Service) freeSlot() int {
	for i, record := range s.slots {
		if record == nil {
			return i
		}
	}
	s.slots = append(s.slots, nil)
	return len(s.slots) - 1
}

// New creates a table with room for capacity records before growing.
func New(capacity int) *Service {
	if capacity < 0 {
		capacity = 0
	}
	return &Service{slots: make([]*process.Record, 0, capacity), index: make(map[process.PID]int, capacity)}
}
