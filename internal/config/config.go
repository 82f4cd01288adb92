// Package config loads the symtree configuration.
//
// Settings are resolved in three layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  3. Environment (SYMTREE_*) │  ← Highest priority
//	├─────────────────────────────┤
//	│  2. Config file (TOML/YAML) │
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// Command line flags are applied on top by the caller.
//
// Example config.toml:
//
//	scripts = ["dumpers/qt.lua"]
//
//	[log]
//	level = "debug"
//
//	[dump]
//	human_readable = true
//	type_formats = { "unsigned char" = 1 }
//
//	[[dumpers]]
//	name = "vector"
//	match = "^std::vector<"
//	kind = "array"
//	size_field = "size"
//	data_field = "data"
package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dshills/symtree/internal/dumper"
	"github.com/dshills/symtree/internal/logging"
	"github.com/dshills/symtree/internal/symbolgroup"
)

// Config is the complete configuration.
type Config struct {
	Log     LogConfig       `toml:"log" yaml:"log"`
	Dump    DumpConfig      `toml:"dump" yaml:"dump"`
	Dumpers []dumper.Config `toml:"dumpers" yaml:"dumpers"`
	// Scripts are Lua dumper files. Relative paths are resolved against the
	// directory of the config file.
	Scripts []string      `toml:"scripts" yaml:"scripts"`
	Adapter AdapterConfig `toml:"adapter" yaml:"adapter"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`
}

// DumpConfig holds the default dump parameters.
type DumpConfig struct {
	HumanReadable  bool `toml:"human_readable" yaml:"human_readable"`
	ComplexDumpers bool `toml:"complex_dumpers" yaml:"complex_dumpers"`
	// TypeFormats maps type names to format codes.
	TypeFormats map[string]int `toml:"type_formats" yaml:"type_formats"`
	// Formats maps inames to format codes.
	Formats map[string]int `toml:"formats" yaml:"formats"`
}

// AdapterConfig describes how to reach a debug adapter.
type AdapterConfig struct {
	// ID is sent with initialize.
	ID string `toml:"id" yaml:"id"`
	// Address is the host:port of a listening adapter.
	Address string `toml:"address" yaml:"address"`
	// Command starts an adapter speaking on stdio when Address is empty.
	Command []string `toml:"command" yaml:"command"`
	// Request is attach or launch.
	Request string `toml:"request" yaml:"request"`
	// Arguments are passed with the request unchanged.
	Arguments map[string]any `toml:"arguments" yaml:"arguments"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Dump: DumpConfig{
			ComplexDumpers: true,
		},
		Adapter: AdapterConfig{
			ID:      "go",
			Request: "attach",
		},
	}
}

var logLevels = []string{"debug", "info", "warn", "warning", "error"}

// Validate checks every setting and joins all failures.
func (c *Config) Validate() error {
	var errs []error
	add := func(path, msg string, value any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: value})
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		add("log.level", "must be one of "+strings.Join(logLevels, ", "), c.Log.Level)
	}
	for _, section := range []struct {
		path    string
		formats map[string]int
	}{
		{"dump.type_formats", c.Dump.TypeFormats},
		{"dump.formats", c.Dump.Formats},
	} {
		for _, key := range slices.Sorted(maps.Keys(section.formats)) {
			code := section.formats[key]
			if key == "" {
				add(section.path, "empty key", code)
			}
			if code < 0 || code > symbolgroup.MaxFormatCode {
				add(section.path+"."+key, fmt.Sprintf("format code out of range 0..%d", symbolgroup.MaxFormatCode), code)
			}
		}
	}
	for i, d := range c.Dumpers {
		if _, err := dumper.NewLayout(d); err != nil {
			add(fmt.Sprintf("dumpers[%d]", i), err.Error(), d.Name)
		}
	}
	for i, s := range c.Scripts {
		if strings.TrimSpace(s) == "" {
			add(fmt.Sprintf("scripts[%d]", i), "empty path", s)
		}
	}
	switch c.Adapter.Request {
	case "", "attach", "launch":
	default:
		add("adapter.request", "must be attach or launch", c.Adapter.Request)
	}
	return errors.Join(errs...)
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Log.Level)
}

// DumpParameters builds the dump parameters from the dump section.
func (c *Config) DumpParameters() symbolgroup.DumpParameters {
	var p symbolgroup.DumpParameters
	if c.Dump.HumanReadable {
		p.Flags |= symbolgroup.DumpHumanReadable
	}
	if c.Dump.ComplexDumpers {
		p.Flags |= symbolgroup.DumpComplexDumpers
	}
	if len(c.Dump.TypeFormats) > 0 {
		p.TypeFormats = symbolgroup.FormatMap(maps.Clone(c.Dump.TypeFormats))
	}
	if len(c.Dump.Formats) > 0 {
		p.IndividualFormats = symbolgroup.FormatMap(maps.Clone(c.Dump.Formats))
	}
	return p
}
