package sim

import (
	"sync"

	"github.com/viant/kproc/arch"
)

// Memory is a sparse word-addressed memory. Unwritten words read as zero.
type Memory struct {
	words map[uint64]uint64
	mux   sync.RWMutex
}

var _ arch.Memory = (*Memory)(nil)

// ReadWord returns the word stored at addr.
func (m *Memory) ReadWord(addr uint64) uint64 {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return m.words[addr]
}

// WriteWord stores value at addr.
func (m *Memory) WriteWord(addr uint64, value uint64) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if value == 0 {
		delete(m.words, addr)
		return
	}
	m.words[addr] = value
}

// Len returns the number of non-zero words.
func (m *Memory) Len() int {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return len(m.words)
}

func NewMemory() *Memory {
	return &Memory{words: map[uint64]uint64{}}
}
