package config

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dshills/symtree/internal/symbolgroup"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SYMTREE_"

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envSetter applies one environment variable to the config.
type envSetter func(c *Config, value string) error

// envMapping maps environment variables to the settings they override.
//
//	SYMTREE_LOG_LEVEL             log.level
//	SYMTREE_DUMP_HUMAN_READABLE   dump.human_readable
//	SYMTREE_DUMP_COMPLEX_DUMPERS  dump.complex_dumpers
//	SYMTREE_DUMP_TYPE_FORMATS     dump.type_formats, merged ("type:code,...")
//	SYMTREE_DUMP_FORMATS          dump.formats, merged ("iname:code,...")
//	SYMTREE_SCRIPTS               scripts, appended (path list)
//	SYMTREE_ADAPTER_ID            adapter.id
//	SYMTREE_ADAPTER_ADDRESS       adapter.address
//	SYMTREE_ADAPTER_REQUEST       adapter.request
var envMapping = map[string]envSetter{
	"LOG_LEVEL": func(c *Config, v string) error {
		c.Log.Level = v
		return nil
	},
	"DUMP_HUMAN_READABLE": func(c *Config, v string) (err error) {
		c.Dump.HumanReadable, err = parseBool(v)
		return err
	},
	"DUMP_COMPLEX_DUMPERS": func(c *Config, v string) (err error) {
		c.Dump.ComplexDumpers, err = parseBool(v)
		return err
	},
	"DUMP_TYPE_FORMATS": func(c *Config, v string) error {
		c.Dump.TypeFormats = MergeFormats(c.Dump.TypeFormats, v)
		return nil
	},
	"DUMP_FORMATS": func(c *Config, v string) error {
		c.Dump.Formats = MergeFormats(c.Dump.Formats, v)
		return nil
	},
	"SCRIPTS": func(c *Config, v string) error {
		for _, p := range filepath.SplitList(v) {
			if p != "" {
				c.Scripts = append(c.Scripts, p)
			}
		}
		return nil
	},
	"ADAPTER_ID": func(c *Config, v string) error {
		c.Adapter.ID = v
		return nil
	},
	"ADAPTER_ADDRESS": func(c *Config, v string) error {
		c.Adapter.Address = v
		return nil
	},
	"ADAPTER_REQUEST": func(c *Config, v string) error {
		c.Adapter.Request = v
		return nil
	},
}

// EnvVars returns the recognized environment variable names.
func EnvVars() []string {
	names := make([]string, 0, len(envMapping))
	for _, k := range slices.Sorted(maps.Keys(envMapping)) {
		names = append(names, EnvPrefix+k)
	}
	return names
}

// ApplyEnv applies the environment overrides found by lookup.
// Empty values are treated as set.
func ApplyEnv(c *Config, lookup LookupFunc) error {
	for _, name := range slices.Sorted(maps.Keys(envMapping)) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := envMapping[name](c, v); err != nil {
			return fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, v, err)
		}
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0", "":
		return false, nil
	}
	return false, ErrBadEnv
}

// MergeFormats parses "key:code,..." into dst, allocating it if needed.
// Malformed entries are skipped.
func MergeFormats(dst map[string]int, s string) map[string]int {
	parsed := symbolgroup.ParseFormatMap(s)
	if len(parsed) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]int, len(parsed))
	}
	maps.Copy(dst, parsed)
	return dst
}
