package kproc

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/viant/afs"
	"github.com/viant/kproc/arch"
	"github.com/viant/kproc/arch/sim"
	"github.com/viant/kproc/internal/clock"
	"github.com/viant/kproc/internal/idgen"
	"github.com/viant/kproc/internal/irq"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/dao"
	hfs "github.com/viant/kproc/service/dao/process/fs"
	"github.com/viant/kproc/service/event"
	"github.com/viant/kproc/service/frame"
	"github.com/viant/kproc/service/heap"
	"github.com/viant/kproc/service/messaging"
	mmemory "github.com/viant/kproc/service/messaging/memory"
	"github.com/viant/kproc/service/registry"
	"github.com/viant/kproc/service/switcher"
	"github.com/viant/kproc/service/timer"
	"github.com/viant/kproc/service/vm"
	"github.com/viant/kproc/stats"
	"github.com/viant/kproc/tracing"
)

// Service wires the kernel core components
type Service struct {
	runtime       *Runtime
	config        *Config
	machine       arch.Machine
	logger        *slog.Logger
	history       dao.Service[process.PID, process.Record]
	eventService  *event.Service
	eventListener func(*event.Event[any])

	lifecycleListener func(*event.Event[event.Lifecycle])
	switchListener    func(*event.Event[event.Switch])
}

// Runtime returns the kernel runtime
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Config returns the effective configuration
func (s *Service) Config() *Config {
	return s.config
}

// Machine returns the machine the core runs on
func (s *Service) Machine() arch.Machine {
	return s.machine
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.logger == nil {
		level, _ := s.config.Log.SlogLevel()
		s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	if s.machine == nil {
		s.machine = sim.New(sim.Config{
			ActivePageTable: s.config.Memory.BootPageTable,
			BootStack:       s.config.Memory.BootStack,
		})
	}
	if s.config.Tracing.Enabled {
		tc := s.config.Tracing
		if err := tracing.Init(tc.ServiceName, tc.Version, tc.OutputFile); err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
	}
	return s.ensureBaseSetup()
}

func (s *Service) ensureBaseSetup() error {
	config := s.config
	frames := frame.New()
	if err := frames.Init(config.Memory.Regions); err != nil {
		return err
	}
	kernelHeap, err := heap.New(config.Memory.HeapStart, config.Memory.HeapSize)
	if err != nil {
		return err
	}
	stacks, err := vm.NewStacks(kernelHeap, config.Stacks.Kernel, config.Stacks.User)
	if err != nil {
		return err
	}
	layout, err := config.ProcessLayout()
	if err != nil {
		return err
	}
	builder, err := vm.NewBuilder(vm.NewPageTables(s.machine, config.Memory.PhysicalOffset), frames, s.machine, layout)
	if err != nil {
		return err
	}
	if s.history == nil && config.History.URL != "" {
		if s.history, err = hfs.New(context.Background(), afs.New(), config.History.URL, config.History.Limit); err != nil {
			return err
		}
	}
	registryOptions := []registry.Option{
		registry.WithConfig(config.registryConfig()),
		registry.WithLock(irq.New(s.machine)),
		registry.WithAddressSpaceBuilder(builder),
		registry.WithStackAllocator(stacks),
		registry.WithInitialFrame(switcher.NewFrame(s.machine)),
		registry.WithCounter(&clock.Counter{}),
		registry.WithLogger(s.logger.With("component", "registry")),
	}
	if s.history != nil {
		registryOptions = append(registryOptions, registry.WithHistory(s.history))
	}
	reg, err := registry.New(registryOptions...)
	if err != nil {
		return err
	}
	if config.Registry.BootstrapKernel {
		if err = reg.Bootstrap(s.machine.ActivePageTable()); err != nil {
			return err
		}
	}

	rt := &Runtime{
		registry: reg,
		machine:  s.machine,
		frames:   frames,
		heap:     kernelHeap,
		stats:    stats.New(idgen.New(), clock.Now()),
		logger:   s.logger,
	}
	if s.eventService == nil && config.Events.Enabled {
		buffer := config.Events.Buffer
		if s.eventService, err = event.New(messaging.VendorMemory,
			event.WithLogger(s.logger.With("component", "event")),
			event.WithNewMemoryQueueConfig(func(string) mmemory.Config {
				ret := mmemory.DefaultConfig()
				ret.QueueBuffer = buffer
				ret.NonBlocking = true
				return ret
			})); err != nil {
			return err
		}
	}
	if s.eventService != nil {
		if err = rt.initEvents(s.eventService, s.lifecycleListener, s.switchListener); err != nil {
			return err
		}
		listener := s.eventListener
		if listener == nil {
			listener = rt.logEvent
		}
		s.eventService.SetListener(listener)
	}

	if rt.engine, err = switcher.New(s.machine, reg,
		switcher.WithQuantum(config.Switch.Quantum),
		switcher.WithObserver(&observer{runtime: rt}),
		switcher.WithLogger(s.logger.With("component", "switcher"))); err != nil {
		return err
	}
	if source, ok := s.machine.(timer.Source); ok {
		if rt.timer, err = timer.New(source, config.Timer, s.logger.With("component", "timer")); err != nil {
			return err
		}
	}
	s.runtime = rt
	return nil
}

// New creates a kernel core service
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}
