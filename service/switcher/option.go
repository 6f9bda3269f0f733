package switcher

import "log/slog"

type Option func(*Engine)

// WithQuantum sets the number of timer ticks between reschedules
func WithQuantum(quantum uint64) Option {
	return func(e *Engine) {
		e.quantum = quantum
	}
}

// WithObserver sets the observer notified of ticks and switches
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}
