package kproc

import (
	"log/slog"

	"github.com/viant/kproc/arch"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/dao"
	"github.com/viant/kproc/service/event"
	"github.com/viant/kproc/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures Service
type Option func(s *Service)

// WithConfig sets the configuration; it is validated by New
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithMachine sets the hardware boundary; by default a simulated machine is
// built from the memory configuration
func WithMachine(machine arch.Machine) Option {
	return func(s *Service) {
		s.machine = machine
	}
}

// WithLogger sets the logger shared by all components
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHistory sets the terminated-process log, overriding history.url
func WithHistory(history dao.Service[process.PID, process.Record]) Option {
	return func(s *Service) {
		s.history = history
	}
}

// WithEventService sets the event service, overriding the events section
func WithEventService(service *event.Service) Option {
	return func(s *Service) {
		s.eventService = service
	}
}

// WithEventListener sets the catch-all event listener
func WithEventListener(listener func(*event.Event[any])) Option {
	return func(s *Service) {
		s.eventListener = listener
	}
}

// WithLifecycleListener sets the listener of process lifecycle events
func WithLifecycleListener(listener func(*event.Event[event.Lifecycle])) Option {
	return func(s *Service) {
		s.lifecycleListener = listener
	}
}

// WithSwitchListener sets the listener of context switch events. It runs on
// its own goroutine, never in interrupt context.
func WithSwitchListener(listener func(*event.Event[event.Switch])) Option {
	return func(s *Service) {
		s.switchListener = listener
	}
}

// WithTracing configures OpenTelemetry tracing with the stdout exporter, or
// a file when outputFile is set. The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing with a custom exporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
