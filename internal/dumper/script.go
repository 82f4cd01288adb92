package dumper

import (
	"context"
	"fmt"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/symtree/internal/logging"
	"github.com/dshills/symtree/internal/plugin/lua"
	"github.com/dshills/symtree/internal/symbolgroup"
)

const valueTypeName = "symtree.value"

// Scripts loads Lua dumper scripts into one sandboxed state. A script
// registers dumpers with
//
//	dumper.register("MyList", {
//		kind = "list",
//		simple = function(v) return "<" .. v:field("count"):value() .. " items>" end,
//		size = function(v) return v:field("count"):int() end,
//		complex = function(v) ... return {v:field("a"), v:field("b")} end,
//	})
//
// simple returns the display value (nil if not applicable) and optionally
// the container size. complex returns a list whose items are values,
// expression strings, or {key = v1, value = v2, address = n, type = s}
// map entries.
type Scripts struct {
	state   *lua.State
	log     *logging.Logger
	dumpers []*ScriptDumper
}

// NewScripts creates a script host. Lua print goes to the logger.
func NewScripts(log *logging.Logger, opts ...lua.StateOption) *Scripts {
	if log == nil {
		log = logging.Nop()
	}
	s := &Scripts{log: log.WithComponent("lua")}
	opts = append([]lua.StateOption{lua.WithPrint(func(line string) { s.log.Info("%s", line) })}, opts...)
	s.state = lua.NewState(opts...)
	s.state.RegisterType(valueTypeName, valueMethods)
	s.state.RegisterModule("dumper", map[string]glua.LGFunction{
		"register": s.register,
	})
	return s
}

// LoadFile runs a script file.
func (s *Scripts) LoadFile(ctx context.Context, path string) error {
	if err := s.state.DoFile(ctx, path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadString runs a script chunk.
func (s *Scripts) LoadString(ctx context.Context, code string) error {
	if err := s.state.DoString(ctx, code); err != nil {
		return fmt.Errorf("load script: %w", err)
	}
	return nil
}

// Dumpers returns the registered dumpers in registration order.
func (s *Scripts) Dumpers() []TypeDumper {
	out := make([]TypeDumper, len(s.dumpers))
	for i, d := range s.dumpers {
		out[i] = d
	}
	return out
}

// Close releases the Lua state.
func (s *Scripts) Close() error { return s.state.Close() }

// register implements dumper.register(pattern, spec).
func (s *Scripts) register(L *glua.LState) int {
	pattern := L.CheckString(1)
	spec := L.CheckTable(2)

	match, err := Matcher(pattern)
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	d := &ScriptDumper{scripts: s, name: pattern, match: match}
	if kind, ok := lua.TableString(spec, "kind"); ok {
		d.kind = symbolgroup.ParseContainerKind(kind)
		if !d.kind.IsContainer() {
			L.ArgError(2, fmt.Sprintf("unknown kind %q", kind))
			return 0
		}
	}
	if name, ok := lua.TableString(spec, "name"); ok {
		d.name = name
	}
	d.simple, _ = lua.TableFunc(spec, "simple")
	d.complex, _ = lua.TableFunc(spec, "complex")
	d.size, _ = lua.TableFunc(spec, "size")
	if d.simple == nil && d.complex == nil {
		L.ArgError(2, "simple or complex function required")
		return 0
	}

	s.dumpers = append(s.dumpers, d)
	s.log.Debug("registered dumper %s", d.name)
	return 0
}

// ScriptDumper is a dumper implemented by Lua functions.
type ScriptDumper struct {
	scripts *Scripts
	name    string
	match   func(string) bool
	kind    symbolgroup.ContainerKind
	simple  *glua.LFunction
	complex *glua.LFunction
	size    *glua.LFunction
}

// Name returns the registration name.
func (d *ScriptDumper) Name() string { return d.name }

// Matches reports whether the pattern matches typeName.
func (d *ScriptDumper) Matches(typeName string) bool { return d.match(typeName) }

func (d *ScriptDumper) call(ctx context.Context, fn *glua.LFunction, v symbolgroup.Value, vc symbolgroup.ValueContext) ([]glua.LValue, error) {
	ud := d.scripts.state.NewUserData(&luaValue{ctx: ctx, v: v, vc: vc}, valueTypeName)
	return d.scripts.state.Call(ctx, fn, ud)
}

// SimpleFormat implements symbolgroup.Dumper.
func (d *ScriptDumper) SimpleFormat(ctx context.Context, v symbolgroup.Value, vc symbolgroup.ValueContext) (symbolgroup.SimpleResult, bool, error) {
	res := symbolgroup.SimpleResult{Kind: d.kind, ContainerSize: -1}
	if d.simple == nil {
		if !d.kind.IsContainer() || d.size == nil {
			return res, false, nil
		}
	} else {
		out, err := d.call(ctx, d.simple, v, vc)
		if err != nil {
			return res, false, err
		}
		if len(out) == 0 || out[0] == glua.LNil {
			return res, false, nil
		}
		res.Value = glua.LVAsString(out[0])
		if len(out) > 1 {
			if n, ok := out[1].(glua.LNumber); ok {
				res.ContainerSize = int(n)
			}
		}
	}

	if d.size != nil {
		out, err := d.call(ctx, d.size, v, vc)
		if err != nil {
			return res, false, err
		}
		if len(out) > 0 {
			if n, ok := out[0].(glua.LNumber); ok {
				res.ContainerSize = int(n)
			}
		}
	}
	if d.simple == nil {
		res.Value = itemsValue(res.ContainerSize)
	}
	return res, true, nil
}

// ComplexFormat implements symbolgroup.Dumper.
func (d *ScriptDumper) ComplexFormat(ctx context.Context, v symbolgroup.Value, vc symbolgroup.ValueContext) ([]symbolgroup.ChildSpec, error) {
	if d.complex == nil {
		return nil, nil
	}
	out, err := d.call(ctx, d.complex, v, vc)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 || out[0] == glua.LNil {
		return nil, nil
	}
	list, ok := out[0].(*glua.LTable)
	if !ok {
		return nil, fmt.Errorf("complex returned %s, want table", out[0].Type())
	}

	var specs []symbolgroup.ChildSpec
	for i, item := range lua.Array(list) {
		spec, err := childSpec(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func childSpec(item glua.LValue) (symbolgroup.ChildSpec, error) {
	switch it := item.(type) {
	case glua.LString:
		return symbolgroup.ExpressionSpec(string(it)), nil
	case *glua.LUserData:
		lv, ok := it.Value.(*luaValue)
		if !ok {
			return symbolgroup.ChildSpec{}, fmt.Errorf("foreign userdata")
		}
		return symbolgroup.ElementSpec(lv.v), nil
	case *glua.LTable:
		key, kok := asValue(it.RawGetString("key"))
		value, vok := asValue(it.RawGetString("value"))
		if !kok || !vok {
			return symbolgroup.ChildSpec{}, fmt.Errorf("map entry needs key and value")
		}
		typeName, _ := lua.TableString(it, "type")
		var addr uint64
		if n, ok := it.RawGetString("address").(glua.LNumber); ok {
			addr = uint64(n)
		}
		return symbolgroup.MapEntrySpec(key, value, addr, typeName), nil
	}
	return symbolgroup.ChildSpec{}, fmt.Errorf("unexpected %s", item.Type())
}

func asValue(lv glua.LValue) (symbolgroup.Value, bool) {
	if ud, ok := lv.(*glua.LUserData); ok {
		if v, ok := ud.Value.(*luaValue); ok {
			return v.v, true
		}
	}
	return symbolgroup.Value{}, false
}
