// Package irq provides the lock that guards state shared between ordinary
// kernel control flow and the timer interrupt handler.
package irq

import "sync"

// Controller masks interrupts on the current CPU
type Controller interface {
	// DisableInterrupts clears the interrupt flag and reports whether it was set.
	DisableInterrupts() bool
	// RestoreInterrupts ends the section, setting the flag back to enabled.
	RestoreInterrupts(enabled bool)
}

// Lock is a mutex that keeps interrupts masked while it is held from
// ordinary control flow. A timer tick firing in that window stays pending
// until Unlock, so the handler can never spin on a lock its own interruptee
// holds.
type Lock struct {
	mux        sync.Mutex
	controller Controller
	restore    bool
}

// Lock masks interrupts and acquires the lock.
func (l *Lock) Lock() {
	enabled := l.controller.DisableInterrupts()
	l.mux.Lock()
	l.restore = enabled
}

// Unlock releases the lock and restores the interrupt flag Lock found.
func (l *Lock) Unlock() {
	restore := l.restore
	l.restore = false
	l.mux.Unlock()
	l.controller.RestoreInterrupts(restore)
}

// LockInterrupt acquires the lock from interrupt context, where the CPU has
// already masked interrupts.
func (l *Lock) LockInterrupt() {
	l.mux.Lock()
}

// UnlockInterrupt releases a lock taken with LockInterrupt.
func (l *Lock) UnlockInterrupt() {
	l.mux.Unlock()
}

// New creates a lock bound to controller.
func New(controller Controller) *Lock {
	return &Lock{controller: controller}
}
