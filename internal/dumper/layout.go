package dumper

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dshills/symtree/internal/symbolgroup"
)

// Layout kinds besides the container kinds.
const kindString = "string"

// Config describes a layout dumper: where a type keeps its size and its
// elements.
//
//	array, set  elements are the children of DataField (or of the value)
//	list        HeadField, then NextField links; ValueField is the payload
//	map         entries are the children of DataField; KeyField/ValueField
//	string      DataField holds the text, or its address when SizeField is set
type Config struct {
	Name       string `toml:"name" yaml:"name"`
	Match      string `toml:"match" yaml:"match"`
	Kind       string `toml:"kind" yaml:"kind"`
	SizeField  string `toml:"size_field" yaml:"size_field"`
	DataField  string `toml:"data_field" yaml:"data_field"`
	HeadField  string `toml:"head_field" yaml:"head_field"`
	NextField  string `toml:"next_field" yaml:"next_field"`
	ValueField string `toml:"value_field" yaml:"value_field"`
	KeyField   string `toml:"key_field" yaml:"key_field"`
	Limit      int    `toml:"limit" yaml:"limit"`
}

// DefaultConfigs cover Go slices and fixed-size arrays.
func DefaultConfigs() []Config {
	return []Config{
		{Name: "slice", Match: "[]", Kind: "array"},
		{Name: "array", Match: `^\[\d+\]`, Kind: "array"},
	}
}

// Layout formats a type from a Config.
type Layout struct {
	cfg   Config
	match func(string) bool
	kind  symbolgroup.ContainerKind
	str   bool
	limit int
}

// NewLayout validates cfg and creates the dumper.
func NewLayout(cfg Config) (*Layout, error) {
	match, err := Matcher(cfg.Match)
	if err != nil {
		return nil, fmt.Errorf("dumper %q: %w", cfg.Name, err)
	}
	l := &Layout{cfg: cfg, match: match, limit: cfg.Limit}
	if l.limit <= 0 {
		l.limit = DefaultLimit
	}
	if l.cfg.Name == "" {
		l.cfg.Name = cfg.Match
	}

	switch cfg.Kind {
	case kindString:
		l.str = true
	default:
		l.kind = symbolgroup.ParseContainerKind(cfg.Kind)
		if !l.kind.IsContainer() {
			return nil, fmt.Errorf("dumper %q: %w: unknown kind %q", cfg.Name, ErrBadConfig, cfg.Kind)
		}
	}
	if l.kind == symbolgroup.ContainerList && (cfg.HeadField == "" || cfg.NextField == "") {
		return nil, fmt.Errorf("dumper %q: %w: list needs head_field and next_field", cfg.Name, ErrBadConfig)
	}
	if l.kind == symbolgroup.ContainerMap && cfg.DataField == "" {
		return nil, fmt.Errorf("dumper %q: %w: map needs data_field", cfg.Name, ErrBadConfig)
	}
	return l, nil
}

// Name returns the dumper name.
func (l *Layout) Name() string { return l.cfg.Name }

// Matches reports whether the layout applies to typeName.
func (l *Layout) Matches(typeName string) bool { return l.match(typeName) }

// SimpleFormat implements symbolgroup.Dumper.
func (l *Layout) SimpleFormat(ctx context.Context, v symbolgroup.Value, vc symbolgroup.ValueContext) (symbolgroup.SimpleResult, bool, error) {
	if l.str {
		text, err := l.text(ctx, v, vc)
		if err != nil {
			return symbolgroup.SimpleResult{}, false, err
		}
		return symbolgroup.SimpleResult{Value: text, ContainerSize: -1}, true, nil
	}

	n, err := l.size(ctx, v)
	if err != nil {
		return symbolgroup.SimpleResult{}, false, err
	}
	return symbolgroup.SimpleResult{Value: itemsValue(n), Kind: l.kind, ContainerSize: n}, true, nil
}

// ComplexFormat implements symbolgroup.Dumper.
func (l *Layout) ComplexFormat(ctx context.Context, v symbolgroup.Value, _ symbolgroup.ValueContext) ([]symbolgroup.ChildSpec, error) {
	if l.str {
		return nil, nil
	}
	limit := l.limit
	if l.cfg.SizeField != "" {
		n, err := l.size(ctx, v)
		if err != nil {
			return nil, err
		}
		limit = min(limit, n)
	}

	switch l.kind {
	case symbolgroup.ContainerList:
		nodes, err := l.walk(ctx, v, limit)
		if err != nil {
			return nil, err
		}
		specs := make([]symbolgroup.ChildSpec, len(nodes))
		for i, n := range nodes {
			specs[i] = symbolgroup.ElementSpec(n)
		}
		return specs, nil

	case symbolgroup.ContainerMap:
		entries, err := l.elements(ctx, v, limit)
		if err != nil {
			return nil, err
		}
		specs := make([]symbolgroup.ChildSpec, 0, len(entries))
		for _, e := range entries {
			key, err := fieldPath(ctx, e, orDefault(l.cfg.KeyField, "key"))
			if err != nil {
				return nil, err
			}
			value, err := fieldPath(ctx, e, orDefault(l.cfg.ValueField, "value"))
			if err != nil {
				return nil, err
			}
			specs = append(specs, symbolgroup.MapEntrySpec(key, value, e.Address(), e.Type()))
		}
		return specs, nil

	default:
		elems, err := l.elements(ctx, v, limit)
		if err != nil {
			return nil, err
		}
		specs := make([]symbolgroup.ChildSpec, len(elems))
		for i, e := range elems {
			specs[i] = symbolgroup.ElementSpec(e)
		}
		return specs, nil
	}
}

// size returns SizeField or counts the elements.
func (l *Layout) size(ctx context.Context, v symbolgroup.Value) (int, error) {
	if l.cfg.SizeField != "" {
		f, err := fieldPath(ctx, v, l.cfg.SizeField)
		if err != nil {
			return 0, err
		}
		n, err := f.Int(ctx)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, fmt.Errorf("%s: negative size %d", v.Name(), n)
		}
		return int(n), nil
	}
	if l.kind == symbolgroup.ContainerList {
		nodes, err := l.walk(ctx, v, l.limit)
		return len(nodes), err
	}
	container, err := l.container(ctx, v)
	if err != nil {
		return 0, err
	}
	return min(container.SubElements(), l.limit), nil
}

func (l *Layout) container(ctx context.Context, v symbolgroup.Value) (symbolgroup.Value, error) {
	if l.cfg.DataField == "" {
		return v, nil
	}
	return fieldPath(ctx, v, l.cfg.DataField)
}

func (l *Layout) elements(ctx context.Context, v symbolgroup.Value, limit int) ([]symbolgroup.Value, error) {
	container, err := l.container(ctx, v)
	if err != nil {
		return nil, err
	}
	if container.SubElements() == 0 {
		return nil, nil
	}
	children, err := container.Children(ctx)
	if err != nil {
		return nil, err
	}
	if len(children) > limit {
		children = children[:limit]
	}
	return children, nil
}

// walk follows the list links and returns up to limit payload values.
func (l *Layout) walk(ctx context.Context, v symbolgroup.Value, limit int) ([]symbolgroup.Value, error) {
	node, err := fieldPath(ctx, v, l.cfg.HeadField)
	if err != nil {
		return nil, err
	}
	var out []symbolgroup.Value
	for len(out) < limit && !node.IsNull(ctx) {
		payload := node
		if l.cfg.ValueField != "" {
			if payload, err = fieldPath(ctx, node, l.cfg.ValueField); err != nil {
				return nil, err
			}
		}
		out = append(out, payload)
		if node, err = fieldPath(ctx, node, l.cfg.NextField); err != nil {
			break
		}
	}
	return out, nil
}

// text returns the string value, reading memory when DataField holds the
// address of SizeField bytes.
func (l *Layout) text(ctx context.Context, v symbolgroup.Value, vc symbolgroup.ValueContext) (string, error) {
	if l.cfg.DataField == "" {
		return v.Raw(ctx)
	}
	data, err := fieldPath(ctx, v, l.cfg.DataField)
	if err != nil {
		return "", err
	}
	if l.cfg.SizeField != "" {
		n, err := l.size(ctx, v)
		if err != nil {
			return "", err
		}
		addr, err := data.Int(ctx)
		if err == nil {
			if b, err := vc.ReadMemory(ctx, uint64(addr), n); err == nil {
				return strconv.Quote(string(b)), nil
			}
		}
	}
	return data.Raw(ctx)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
