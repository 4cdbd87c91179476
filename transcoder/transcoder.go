package transcoder

import (
	lua "github.com/yuin/gopher-lua"
)

// DefaultMaxDepth bounds structural recursion in both directions.
const DefaultMaxDepth = 128

// nullMarker tags the userdata singleton representing present-but-empty.
type nullMarker struct{}

// LuaValuer lets host types supply their own engine representation.
type LuaValuer interface {
	LuaValue() lua.LValue
}

// EncodeOptions control host-to-engine translation.
type EncodeOptions struct {
	// SetArrayMetatable tags tables built from slices and arrays with the
	// array metatable so sequence classification survives the way back.
	SetArrayMetatable bool

	// NilToNull encodes nil values as the null sentinel instead of engine
	// nil, keeping container shapes intact.
	NilToNull bool

	// MaxDepth bounds recursion; DefaultMaxDepth when zero or negative.
	MaxDepth int
}

// DefaultEncodeOptions returns the options Encode uses.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		SetArrayMetatable: true,
		NilToNull:         true,
		MaxDepth:          DefaultMaxDepth,
	}
}

// DecodeOptions control engine-to-host translation.
type DecodeOptions struct {
	// Permissive coerces engine kinds without a host representation to
	// absence instead of failing.
	Permissive bool

	// MaxDepth bounds recursion; DefaultMaxDepth when zero or negative.
	MaxDepth int
}

// DefaultDecodeOptions returns the options Decode and DecodeAny use.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{MaxDepth: DefaultMaxDepth}
}

// Converter translates structured values between Go and one engine state.
type Converter struct {
	ls      *lua.LState
	null    *lua.LUserData
	arrayMT *lua.LTable
}

// New creates a converter bound to L and allocates the per-state
// singletons.
func New(L *lua.LState) *Converter {
	c := &Converter{ls: L}

	c.null = L.NewUserData()
	c.null.Value = nullMarker{}
	mt := L.CreateTable(0, 1)
	mt.RawSetString("__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("null"))
		return 1
	}))
	c.null.Metatable = mt

	c.arrayMT = L.CreateTable(0, 0)
	return c
}

// Null returns the absence sentinel, distinct from engine nil.
func (c *Converter) Null() lua.LValue {
	return c.null
}

// IsNull reports whether v is this converter's null sentinel.
func (c *Converter) IsNull(v lua.LValue) bool {
	return v == lua.LValue(c.null)
}

// ArrayMetatable returns the marker metatable that forces sequence
// classification on a table.
func (c *Converter) ArrayMetatable() *lua.LTable {
	return c.arrayMT
}

// IsArray reports whether t carries the array metatable.
func (c *Converter) IsArray(t *lua.LTable) bool {
	return t != nil && t.Metatable == lua.LValue(c.arrayMT)
}

func extend(path []string, elem string) []string {
	return append(path[:len(path):len(path)], elem)
}
