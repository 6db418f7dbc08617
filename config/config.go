// Package config loads the settings of a simulation from the environment and
// from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sarchlab/rados/memory"
)

// Environment variables read by Load.
const (
	EnvMemorySize  = "RADOS_MEMORY_SIZE"
	EnvPageSize    = "RADOS_PAGE_SIZE"
	EnvQuantum     = "RADOS_QUANTUM"
	EnvMonitorPort = "RADOS_MONITOR_PORT"
	EnvOpenBrowser = "RADOS_OPEN_BROWSER"
	EnvRecord      = "RADOS_RECORD"
	EnvRecordPath  = "RADOS_RECORD_PATH"
	EnvLogEvents   = "RADOS_LOG_EVENTS"
)

// DefaultFile is loaded when Load is given no file. It may be missing.
const DefaultFile = ".env"

// ErrInvalidGeometry is returned when the memory cannot be split into pages.
var ErrInvalidGeometry = memory.ErrInvalidGeometry

// Config holds the settings of a simulation.
type Config struct {
	MemorySize  int
	PageSize    int
	Quantum     time.Duration
	MonitorPort int
	OpenBrowser bool
	Record      bool
	RecordPath  string
	LogEvents   bool
}

// Default returns 100 units of memory in pages of 10 units and a 5 second
// quantum. The monitor listens on a random port.
func Default() Config {
	return Config{
		MemorySize: 100,
		PageSize:   10,
		Quantum:    5 * time.Second,
	}
}

// Load reads the files into the environment and builds a configuration from
// the environment on top of the defaults. Variables already set in the
// environment win over the files.
func Load(files ...string) (Config, error) {
	return Overrides(nil).Load(files...)
}

// Overrides holds settings given outside the environment, such as command
// line flags, keyed by variable name and written the way the variable would
// be. They win over the environment and the files. A variable that is
// overridden is not parsed from the environment.
type Overrides map[string]string

// Load works like the package level Load, with the overrides applied before
// the configuration is validated.
func (o Overrides) Load(files ...string) (Config, error) {
	if len(files) == 0 {
		err := godotenv.Load(DefaultFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", DefaultFile, err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("load %v: %w", files, err)
	}

	c, err := o.apply(Default())
	if err != nil {
		return Config{}, err
	}

	return c, c.Validate()
}

// FromEnv overrides the fields of base with the variables that are set.
func FromEnv(base Config) (Config, error) {
	return Overrides(nil).apply(base)
}

func (o Overrides) apply(base Config) (Config, error) {
	c := base
	p := envParser{lookup: o.lookup}

	p.int(EnvMemorySize, &c.MemorySize)
	p.int(EnvPageSize, &c.PageSize)
	p.duration(EnvQuantum, &c.Quantum)
	p.int(EnvMonitorPort, &c.MonitorPort)
	p.bool(EnvOpenBrowser, &c.OpenBrowser)
	p.bool(EnvRecord, &c.Record)
	p.bool(EnvLogEvents, &c.LogEvents)

	if path, ok := o.lookup(EnvRecordPath); ok {
		c.RecordPath = path
	}

	return c, errors.Join(p.errs...)
}

func (o Overrides) lookup(name string) (string, bool) {
	if v, ok := o[name]; ok {
		return v, true
	}

	return os.LookupEnv(name)
}

// Validate checks that the memory splits into whole pages and that the
// quantum is not negative.
func (c Config) Validate() error {
	if c.MemorySize <= 0 || c.PageSize <= 0 || c.MemorySize%c.PageSize != 0 {
		return fmt.Errorf("memory of %d units in pages of %d units: %w",
			c.MemorySize, c.PageSize, ErrInvalidGeometry)
	}

	if c.Quantum < 0 {
		return fmt.Errorf("quantum %s is negative", c.Quantum)
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("monitor port %d is out of range", c.MonitorPort)
	}

	return nil
}

type envParser struct {
	lookup func(name string) (string, bool)
	errs   []error
}

func (p *envParser) int(name string, dst *int) {
	s, ok := p.lookup(name)
	if !ok {
		return
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", name, err))
		return
	}

	*dst = v
}

// duration accepts Go durations such as "500ms" and plain milliseconds.
func (p *envParser) duration(name string, dst *time.Duration) {
	s, ok := p.lookup(name)
	if !ok {
		return
	}

	if ms, err := strconv.Atoi(s); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", name, err))
		return
	}

	*dst = v
}

func (p *envParser) bool(name string, dst *bool) {
	s, ok := p.lookup(name)
	if !ok {
		return
	}

	v, err := strconv.ParseBool(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", name, err))
		return
	}

	*dst = v
}
