package memory

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Address is a debuggee address. In YAML it may be written as an integer
// or as a string in any Go integer syntax ("0x1000").
type Address uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: address must be a scalar", value.Line)
	}
	n, err := strconv.ParseUint(value.Value, 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: invalid address %q", value.Line, value.Value)
	}
	*a = Address(n)
	return nil
}

// Variable is a debuggee value and its children.
type Variable struct {
	Name         string      `yaml:"name"`
	Type         string      `yaml:"type"`
	Value        string      `yaml:"value"`
	Address      Address     `yaml:"address,omitempty"`
	Size         uint64      `yaml:"size,omitempty"`
	Pointer      bool        `yaml:"pointer,omitempty"`
	ReadOnly     bool        `yaml:"readonly,omitempty"`
	Inaccessible bool        `yaml:"inaccessible,omitempty"`
	Children     []*Variable `yaml:"children,omitempty"`
}

// Region is a block of debuggee memory given as text or hex bytes.
type Region struct {
	Address Address `yaml:"address"`
	Text    string  `yaml:"text,omitempty"`
	Hex     string  `yaml:"hex,omitempty"`
}

// Bytes returns the region contents.
func (r Region) Bytes() ([]byte, error) {
	if r.Hex != "" {
		return hex.DecodeString(r.Hex)
	}
	return []byte(r.Text), nil
}

// Snapshot is the state of a stopped frame.
type Snapshot struct {
	// Locals are the frame's variables, in display order.
	Locals []*Variable `yaml:"locals"`
	// Globals are resolvable by expression but not listed.
	Globals []*Variable `yaml:"globals,omitempty"`
	// Uninitialized lists inames of locals not yet initialized.
	Uninitialized []string `yaml:"uninitialized,omitempty"`
	Memory        []Region `yaml:"memory,omitempty"`
}

// Parse decodes a YAML snapshot.
func Parse(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a YAML snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Snapshot) validate() error {
	var check func(path string, vars []*Variable) error
	check = func(path string, vars []*Variable) error {
		for i, v := range vars {
			if v == nil || v.Name == "" {
				return fmt.Errorf("%s[%d]: %w", path, i, ErrUnnamedVariable)
			}
			if err := check(path+"."+v.Name, v.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := check("locals", s.Locals); err != nil {
		return err
	}
	if err := check("globals", s.Globals); err != nil {
		return err
	}
	for i, r := range s.Memory {
		if _, err := r.Bytes(); err != nil {
			return fmt.Errorf("memory[%d]: %w", i, err)
		}
	}
	return nil
}
