package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/hypernet/pkg/network"
	"github.com/cuemby/hypernet/pkg/topology"
	"gopkg.in/yaml.v3"
)

const (
	AllocatorRange     = "range"
	AllocatorEphemeral = "ephemeral"

	LauncherProcess   = "process"
	LauncherInProcess = "inprocess"
)

// Config is the coordinator configuration, usually read from hypernet.yaml
type Config struct {
	// Name identifies the cube in the state store
	Name      string `yaml:"name"`
	Dimension int    `yaml:"dimension"`

	Host      string    `yaml:"host"`
	Ports     PortRange `yaml:"ports"`
	Allocator string    `yaml:"allocator"`

	Launcher   string `yaml:"launcher"`
	NodeBinary string `yaml:"node_binary"`

	// AdminBasePort gives node L an admin HTTP endpoint on AdminBasePort+L.
	// Zero disables the endpoints.
	AdminBasePort int `yaml:"admin_base_port"`

	DataDir string `yaml:"data_dir"`

	Timeouts    Timeouts `yaml:"timeouts"`
	Concurrency int      `yaml:"concurrency"`
	BestEffort  bool     `yaml:"best_effort"`

	Log Log `yaml:"log"`
}

// PortRange is the half-open range [Min, Max) scanned for node ports
type PortRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Timeouts bound the coordinator's waits
type Timeouts struct {
	// Request bounds one coordinator call to one node
	Request time.Duration `yaml:"request"`

	// Forward bounds one relay between neighbors
	Forward time.Duration `yaml:"forward"`

	// Launch bounds waiting for every node to answer ping
	Launch time.Duration `yaml:"launch"`

	// Convergence bounds waiting for a flood to visit every node
	Convergence time.Duration `yaml:"convergence"`

	PollInterval time.Duration `yaml:"poll_interval"`
}

// Log configures the process logger
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Name:      "default",
		Dimension: 3,
		Host:      network.DefaultHost.String(),
		Ports: PortRange{
			Min: network.DefaultMinPort,
			Max: network.DefaultMaxPort,
		},
		Allocator:  AllocatorRange,
		Launcher:   LauncherProcess,
		NodeBinary: "hypernode",
		DataDir:    defaultDataDir(),
		Timeouts: Timeouts{
			Request:      2 * time.Second,
			Forward:      2 * time.Second,
			Launch:       10 * time.Second,
			Convergence:  10 * time.Second,
			PollInterval: 50 * time.Millisecond,
		},
		Concurrency: 16,
		Log: Log{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".hypernet")
	}
	return ".hypernet"
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field
func (c *Config) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.Dimension < 0 || c.Dimension > topology.MaxDimension {
		errs = append(errs, fmt.Errorf("dimension %d out of range [0, %d]", c.Dimension, topology.MaxDimension))
	}
	if _, err := netip.ParseAddr(c.Host); err != nil {
		errs = append(errs, fmt.Errorf("host: %w", err))
	}
	switch c.Allocator {
	case AllocatorRange:
		if c.Ports.Min <= 0 || c.Ports.Max > 65535 || c.Ports.Min >= c.Ports.Max {
			errs = append(errs, fmt.Errorf("ports: invalid range [%d, %d)", c.Ports.Min, c.Ports.Max))
		}
	case AllocatorEphemeral:
	default:
		errs = append(errs, fmt.Errorf("allocator must be %q or %q, got %q", AllocatorRange, AllocatorEphemeral, c.Allocator))
	}
	switch c.Launcher {
	case LauncherProcess:
		if c.NodeBinary == "" {
			errs = append(errs, errors.New("node_binary is required for the process launcher"))
		}
	case LauncherInProcess:
	default:
		errs = append(errs, fmt.Errorf("launcher must be %q or %q, got %q", LauncherProcess, LauncherInProcess, c.Launcher))
	}
	if c.AdminBasePort < 0 || c.AdminBasePort+topology.Size(max(c.Dimension, 0)) > 65536 {
		errs = append(errs, fmt.Errorf("admin_base_port %d leaves no room for %d nodes", c.AdminBasePort, topology.Size(max(c.Dimension, 0))))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	for name, d := range map[string]time.Duration{
		"request":       c.Timeouts.Request,
		"forward":       c.Timeouts.Forward,
		"launch":        c.Timeouts.Launch,
		"convergence":   c.Timeouts.Convergence,
		"poll_interval": c.Timeouts.PollInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("timeouts.%s must be positive", name))
		}
	}
	if c.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}

	return errors.Join(errs...)
}

// NewAllocator builds the address allocator the config names
func (c *Config) NewAllocator() (network.Allocator, error) {
	host, err := netip.ParseAddr(c.Host)
	if err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}
	if c.Allocator == AllocatorEphemeral {
		return network.NewEphemeralAllocator(host), nil
	}
	a := network.NewRangeAllocator(host)
	a.MinPort = uint16(c.Ports.Min)
	a.MaxPort = uint16(c.Ports.Max)
	return a, nil
}
