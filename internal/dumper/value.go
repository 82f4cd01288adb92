package dumper

import (
	"context"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/symtree/internal/symbolgroup"
)

// luaValue is the userdata payload handed to scripts.
type luaValue struct {
	ctx context.Context
	v   symbolgroup.Value
	vc  symbolgroup.ValueContext
}

var valueMethods = map[string]glua.LGFunction{
	"type":     valueType,
	"name":     valueName,
	"value":    valueRaw,
	"int":      valueInt,
	"address":  valueAddress,
	"size":     valueSize,
	"isnull":   valueIsNull,
	"field":    valueField,
	"child":    valueChild,
	"count":    valueCount,
	"children": valueChildren,
	"memory":   valueMemory,
}

func checkValue(L *glua.LState) *luaValue {
	ud := L.CheckUserData(1)
	if v, ok := ud.Value.(*luaValue); ok {
		return v
	}
	L.ArgError(1, "value expected")
	return nil
}

func pushValue(L *glua.LState, parent *luaValue, v symbolgroup.Value) {
	ud := L.NewUserData()
	ud.Value = &luaValue{ctx: parent.ctx, v: v, vc: parent.vc}
	L.SetMetatable(ud, L.GetTypeMetatable(valueTypeName))
	L.Push(ud)
}

func valueType(L *glua.LState) int {
	L.Push(glua.LString(checkValue(L).v.Type()))
	return 1
}

func valueName(L *glua.LState) int {
	L.Push(glua.LString(checkValue(L).v.Name()))
	return 1
}

func valueRaw(L *glua.LState) int {
	lv := checkValue(L)
	raw, err := lv.v.Raw(lv.ctx)
	if err != nil {
		L.Push(glua.LNil)
		return 1
	}
	L.Push(glua.LString(raw))
	return 1
}

func valueInt(L *glua.LState) int {
	lv := checkValue(L)
	n, err := lv.v.Int(lv.ctx)
	if err != nil {
		L.Push(glua.LNil)
		return 1
	}
	L.Push(glua.LNumber(n))
	return 1
}

func valueAddress(L *glua.LState) int {
	L.Push(glua.LNumber(checkValue(L).v.Address()))
	return 1
}

func valueSize(L *glua.LState) int {
	L.Push(glua.LNumber(checkValue(L).v.Size()))
	return 1
}

func valueIsNull(L *glua.LState) int {
	lv := checkValue(L)
	L.Push(glua.LBool(lv.v.IsNull(lv.ctx)))
	return 1
}

// valueField accepts dotted member paths.
func valueField(L *glua.LState) int {
	lv := checkValue(L)
	f, err := fieldPath(lv.ctx, lv.v, L.CheckString(2))
	if err != nil {
		L.Push(glua.LNil)
		return 1
	}
	pushValue(L, lv, f)
	return 1
}

// valueChild is 0-based like the element inames.
func valueChild(L *glua.LState) int {
	lv := checkValue(L)
	c, err := lv.v.Index(lv.ctx, L.CheckInt(2))
	if err != nil {
		L.Push(glua.LNil)
		return 1
	}
	pushValue(L, lv, c)
	return 1
}

func valueCount(L *glua.LState) int {
	L.Push(glua.LNumber(checkValue(L).v.SubElements()))
	return 1
}

func valueChildren(L *glua.LState) int {
	lv := checkValue(L)
	t := L.NewTable()
	if lv.v.SubElements() > 0 {
		children, err := lv.v.Children(lv.ctx)
		if err == nil {
			for _, c := range children {
				pushValue(L, lv, c)
				t.Append(L.Get(-1))
				L.Pop(1)
			}
		}
	}
	L.Push(t)
	return 1
}

// valueMemory reads n bytes at the value's address, or at the address
// given as second argument.
func valueMemory(L *glua.LState) int {
	lv := checkValue(L)
	n := L.CheckInt(2)
	if n < 0 {
		L.ArgError(2, "negative size")
		return 0
	}
	addr := uint64(L.OptInt64(3, int64(lv.v.Address())))
	data, err := lv.vc.ReadMemory(lv.ctx, addr, n)
	if err != nil {
		L.Push(glua.LNil)
		return 1
	}
	L.Push(glua.LString(data))
	return 1
}
