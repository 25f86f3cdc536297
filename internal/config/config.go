package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/govm/pkg/model"
)

// Config is the full govm configuration file.
type Config struct {
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Units     []model.UnitSpec `yaml:"units"`
	Log       LogConfig        `yaml:"log"`
	Server    ServerConfig     `yaml:"server"`
	Journal   JournalConfig    `yaml:"journal"`
}

// SchedulerConfig holds tick and backpressure settings.
type SchedulerConfig struct {
	TickInterval        time.Duration `yaml:"tick_interval"`
	MaxWaitingPerObject int           `yaml:"max_waiting_per_object"` // 0 = unbounded
	MaxInbound          int           `yaml:"max_inbound"`            // 0 = unbounded
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ServerConfig holds configuration for the govm server.
type ServerConfig struct {
	Addr string `yaml:"addr"` // Listen address (default ":8090")
}

// JournalConfig locates the SQLite dispatch journal.
type JournalConfig struct {
	Path string `yaml:"path"` // empty disables the journal, ":memory:" for testing

	// Buffer is how many writes may queue for the background writer.
	// 0 writes on the tick goroutine.
	Buffer int `yaml:"buffer"`
}

// Default returns sensible defaults: one "cpu" unit, a 10ms tick.
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{
			TickInterval:        10 * time.Millisecond,
			MaxWaitingPerObject: 1024,
			MaxInbound:          65536,
		},
		Units:   []model.UnitSpec{{Type: "cpu", Count: 1}},
		Log:     LogConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{Addr: ":8090"},
		Journal: JournalConfig{Buffer: 4096},
	}
}

// Load reads a YAML config file over Default. Unknown fields are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result. A units list
// in data replaces the default topology.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		cfg.Units = nil
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode: %w", err)
		}
		if cfg.Units == nil {
			cfg.Units = Default().Units
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.Scheduler.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.tick_interval must be positive, got %s", c.Scheduler.TickInterval))
	}
	if c.Scheduler.MaxWaitingPerObject < 0 {
		errs = append(errs, fmt.Errorf("scheduler.max_waiting_per_object must not be negative"))
	}
	if c.Scheduler.MaxInbound < 0 {
		errs = append(errs, fmt.Errorf("scheduler.max_inbound must not be negative"))
	}

	if len(c.Units) == 0 {
		errs = append(errs, errors.New("units: at least one unit type is required"))
	}
	seen := make(map[model.UnitType]bool)
	for i, u := range c.Units {
		switch {
		case u.Type == "":
			errs = append(errs, fmt.Errorf("units[%d].type is required", i))
		case u.Type == model.ControlUnitType:
			errs = append(errs, fmt.Errorf("units[%d].type: %q is reserved", i, u.Type))
		case seen[u.Type]:
			errs = append(errs, fmt.Errorf("units[%d].type: %q declared twice", i, u.Type))
		}
		seen[u.Type] = true
		if u.Count <= 0 {
			errs = append(errs, fmt.Errorf("units[%d].count must be positive, got %d", i, u.Count))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Journal.Buffer < 0 {
		errs = append(errs, errors.New("journal.buffer must not be negative"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	return errors.Join(errs...)
}

// TotalUnits returns the number of execution units across all types.
func (c Config) TotalUnits() int {
	n := 0
	for _, u := range c.Units {
		n += u.Count
	}
	return n
}
