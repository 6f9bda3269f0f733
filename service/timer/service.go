// Package timer drives the timer interrupt line at a fixed interval.
package timer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Source raises a timer interrupt; it reports whether the tick was
// delivered right away or left pending.
type Source interface {
	RaiseTimer() bool
}

// Config represents timer configuration
type Config struct {
	// Interval is the period between ticks.
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// DefaultConfig returns the default timer configuration, roughly the PIT
// default of 18.2 Hz.
func DefaultConfig() Config {
	return Config{
		Interval: 55 * time.Millisecond,
	}
}

// Service raises ticks on a source until shut down
type Service struct {
	config     Config
	source     Source
	logger     *slog.Logger
	raised     atomic.Uint64
	pending    atomic.Uint64
	shutdownCh chan struct{}
	once       sync.Once
}

// Start runs the tick loop; it returns when ctx is done or on Shutdown.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick raises a single tick.
func (s *Service) Tick() {
	s.raised.Add(1)
	if !s.source.RaiseTimer() {
		s.pending.Add(1)
	}
}

// Raised returns the number of ticks raised.
func (s *Service) Raised() uint64 {
	return s.raised.Load()
}

// Deferred returns the number of ticks that found interrupts masked.
func (s *Service) Deferred() uint64 {
	return s.pending.Load()
}

// Shutdown stops the tick loop
func (s *Service) Shutdown() {
	s.once.Do(func() {
		close(s.shutdownCh)
		s.logger.Debug("timer stopped", "raised", s.raised.Load())
	})
}

// New creates a timer service
func New(source Source, config Config, logger *slog.Logger) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("timer source is required")
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("invalid timer interval: %v", config.Interval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config:     config,
		source:     source,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}, nil
}
