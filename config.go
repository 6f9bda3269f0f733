package kproc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/frame"
	"github.com/viant/kproc/service/meta"
	"github.com/viant/kproc/service/registry"
	"github.com/viant/kproc/service/scheduler"
	"github.com/viant/kproc/service/switcher"
	"github.com/viant/kproc/service/timer"
	"github.com/viant/kproc/service/vm"
)

// Config is a serialisable representation of the kernel core configuration.
// Zero-valued sections are not defaulted field by field; start from
// DefaultConfig or LoadConfig, which decodes over the defaults.
type Config struct {
	Registry RegistryConfig `json:"registry" yaml:"registry"`
	Switch   SwitchConfig   `json:"switch" yaml:"switch"`
	Memory   MemoryConfig   `json:"memory" yaml:"memory"`
	Stacks   StacksConfig   `json:"stacks" yaml:"stacks"`
	// Layout lists the user regions mapped into every process; empty means
	// the standard code/data/heap/stack layout.
	Layout  []RegionConfig `json:"layout,omitempty" yaml:"layout,omitempty"`
	History HistoryConfig  `json:"history" yaml:"history"`
	Events  EventsConfig   `json:"events" yaml:"events"`
	Timer   timer.Config   `json:"timer" yaml:"timer"`
	Tracing TracingConfig  `json:"tracing" yaml:"tracing"`
	Log     LogConfig      `json:"log" yaml:"log"`
}

type RegistryConfig struct {
	Capacity  int    `json:"capacity" yaml:"capacity"`
	AutoAdmit bool   `json:"autoAdmit" yaml:"autoAdmit"`
	Policy    string `json:"policy" yaml:"policy"`
	// BootstrapKernel installs pid 0 as the running kernel context on start up.
	BootstrapKernel bool `json:"bootstrapKernel" yaml:"bootstrapKernel"`
}

type SwitchConfig struct {
	Quantum uint64 `json:"quantum" yaml:"quantum"`
}

type MemoryConfig struct {
	// PhysicalOffset is the virtual address where all physical memory is mapped.
	PhysicalOffset uint64         `json:"physicalOffset" yaml:"physicalOffset"`
	Regions        []frame.Region `json:"regions" yaml:"regions"`
	HeapStart      uint64         `json:"heapStart" yaml:"heapStart"`
	HeapSize       uint64         `json:"heapSize" yaml:"heapSize"`
	// BootPageTable and BootStack describe the simulated machine at boot.
	BootPageTable uint64 `json:"bootPageTable" yaml:"bootPageTable"`
	BootStack     uint64 `json:"bootStack" yaml:"bootStack"`
}

type StacksConfig struct {
	Kernel uint64 `json:"kernel" yaml:"kernel"`
	User   uint64 `json:"user" yaml:"user"`
}

type RegionConfig struct {
	Name        string   `json:"name" yaml:"name"`
	Start       uint64   `json:"start" yaml:"start"`
	Size        uint64   `json:"size" yaml:"size"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

type HistoryConfig struct {
	// URL of the terminated-process log; empty disables it.
	URL   string `json:"url" yaml:"url"`
	Limit int    `json:"limit" yaml:"limit"`
}

type EventsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Buffer  int  `json:"buffer" yaml:"buffer"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
	Version     string `json:"version" yaml:"version"`
	OutputFile  string `json:"outputFile" yaml:"outputFile"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// DefaultConfig returns the default configuration: a 1 GiB usable memory map
// above the first MiB, a 32 MiB kernel heap and the standard process layout.
func DefaultConfig() *Config {
	registryConfig := registry.DefaultConfig()
	return &Config{
		Registry: RegistryConfig{
			Capacity:        registryConfig.Capacity,
			AutoAdmit:       registryConfig.AutoAdmit,
			Policy:          registryConfig.Policy,
			BootstrapKernel: true,
		},
		Switch: SwitchConfig{Quantum: switcher.DefaultQuantum},
		Memory: MemoryConfig{
			PhysicalOffset: 0xffff_8000_0000_0000,
			Regions: []frame.Region{
				{Start: 0, End: 0x10_0000, Kind: frame.KindReserved},
				{Start: 0x10_0000, End: 0x4000_0000, Kind: frame.KindUsable},
			},
			HeapStart:     0x4444_4444_0000,
			HeapSize:      32 * 1024 * 1024,
			BootPageTable: 0x1000,
			BootStack:     0x8_0000,
		},
		Stacks:  StacksConfig{Kernel: vm.DefaultKernelStackSize, User: vm.DefaultUserStackSize},
		History: HistoryConfig{Limit: 100},
		Events:  EventsConfig{Enabled: true, Buffer: 256},
		Timer:   timer.DefaultConfig(),
		Tracing: TracingConfig{ServiceName: "kproc", Version: "0.1.0"},
		Log:     LogConfig{Level: "info"},
	}
}

// Validate returns the first invalid setting or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Registry.Capacity <= 0 {
		return fmt.Errorf("registry.capacity must be > 0")
	}
	if _, err := scheduler.New(c.Registry.Policy); err != nil {
		return fmt.Errorf("registry.policy: %w", err)
	}
	if c.Switch.Quantum == 0 {
		return fmt.Errorf("switch.quantum must be > 0")
	}
	if len(c.Memory.Regions) == 0 {
		return fmt.Errorf("memory.regions must not be empty")
	}
	for i := range c.Memory.Regions {
		if !c.Memory.Regions[i].IsUsable() {
			continue
		}
		if err := c.Memory.Regions[i].Validate(); err != nil {
			return fmt.Errorf("memory.regions[%d]: %w", i, err)
		}
	}
	if c.Memory.HeapSize == 0 {
		return fmt.Errorf("memory.heapSize must be > 0")
	}
	if c.Stacks.Kernel == 0 || c.Stacks.User == 0 {
		return fmt.Errorf("stacks.kernel and stacks.user must be > 0")
	}
	layout, err := c.ProcessLayout()
	if err != nil {
		return err
	}
	if err = vm.ValidateLayout(layout); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must be >= 0")
	}
	if c.Timer.Interval <= 0 {
		return fmt.Errorf("timer.interval must be > 0")
	}
	if _, err = c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// ProcessLayout returns the user regions mapped into every process.
func (c *Config) ProcessLayout() ([]process.Region, error) {
	if len(c.Layout) == 0 {
		return vm.StandardLayout(), nil
	}
	ret := make([]process.Region, 0, len(c.Layout))
	for _, region := range c.Layout {
		permission, ok := process.ParsePermission(region.Permissions...)
		if !ok {
			return nil, fmt.Errorf("layout %v: invalid permissions %v", region.Name, region.Permissions)
		}
		ret = append(ret, process.Region{Name: region.Name, Start: region.Start, Size: region.Size, Permission: permission})
	}
	return ret, nil
}

// registryConfig returns the registry section as registry.Config.
func (c *Config) registryConfig() registry.Config {
	return registry.Config{
		Capacity:  c.Registry.Capacity,
		AutoAdmit: c.Registry.AutoAdmit,
		Policy:    c.Registry.Policy,
	}
}

// SlogLevel maps the configured level name.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level: unsupported level %q", c.Level)
}

// LoadConfig decodes the YAML document at URL over DefaultConfig and
// validates the result. Options are passed to afs (e.g. an *embed.FS).
func LoadConfig(ctx context.Context, URL string, options ...storage.Option) (*Config, error) {
	ret := DefaultConfig()
	if err := meta.New(afs.New(), "", options...).Load(ctx, URL, ret); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %v: %w", URL, err)
	}
	return ret, nil
}
