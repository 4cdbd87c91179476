// Package udata defines the payload carried by every bridge-managed
// userdata. It sits below the public packages so the runtime and the
// transcoder can share it without a cycle.
package udata

import (
	"reflect"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-bridge/cell"
)

// Subtype distinguishes plain registered objects from engine-native
// extension kinds.
type Subtype uint8

const (
	SubtypeNone Subtype = iota
	SubtypeBuffer
)

// User value layout. Indices below FastSlots live in the in-box array;
// everything else, including named values, spills into a lazily-attached
// engine table.
const (
	UserValueMax = 65535
	FastSlots    = 8
)

// Box is the Value of a bridge-managed *lua.LUserData.
type Box struct {
	Cell     *cell.Cell
	Type     reflect.Type
	TypeName string
	Sub      Subtype

	// Fast user-value slots 1..FastSlots-1 (index 0 unused so slot
	// numbers map directly).
	Fast [FastSlots]lua.LValue
	// Spill holds user values >= FastSlots and all named user values.
	Spill *lua.LTable
}

// New creates a box around an already-constructed cell.
func New(c *cell.Cell, typ reflect.Type, typeName string, sub Subtype) *Box {
	return &Box{Cell: c, Type: typ, TypeName: typeName, Sub: sub}
}

// Unwrap extracts the box from a userdata, reporting whether the userdata
// is bridge-managed at all.
func Unwrap(ud *lua.LUserData) (*Box, bool) {
	if ud == nil {
		return nil, false
	}
	box, ok := ud.Value.(*Box)
	return box, ok
}
