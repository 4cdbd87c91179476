package luabridge

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-bridge/errors"
)

// Metatable is a restricted view over an object's dispatch table.
// Reads hide nothing; writes go through the same name validation as
// registration, and the dispatch entries themselves stay immutable.
type Metatable struct {
	rt *Runtime
	mt *lua.LTable
}

// Metatable returns the restricted view for the handle's object.
func (h *Handle) Metatable() (*Metatable, error) {
	ud, _, err := h.resolve()
	if err != nil {
		return nil, err
	}
	mt, ok := ud.Metatable.(*lua.LTable)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "object has no dispatch table")
	}
	return &Metatable{rt: h.rt, mt: mt}, nil
}

// Get reads a metatable entry. Unset names yield engine nil.
func (m *Metatable) Get(name MetaMethod) lua.LValue {
	return m.mt.RawGetString(string(name))
}

// Contains reports whether the entry is set.
func (m *Metatable) Contains(name MetaMethod) bool {
	return m.mt.RawGetString(string(name)) != lua.LNil
}

// Set writes a metatable entry. Restricted names are refused, and so
// are __index and __newindex: dispatch is compiled once and objects
// sharing the table must keep behaving alike.
func (m *Metatable) Set(name MetaMethod, v any) error {
	if err := name.Validate(); err != nil {
		return err
	}
	if name == MetaIndex || name == MetaNewIndex {
		return errors.MetaRestricted(errors.PhaseRuntime, string(name))
	}
	lv, err := m.rt.conv.Encode(v)
	if err != nil {
		return err
	}
	m.mt.RawSetString(string(name), lv)
	return nil
}

// ForEach visits every set entry until fn returns false.
func (m *Metatable) ForEach(fn func(name string, v lua.LValue) bool) {
	stopped := false
	m.mt.ForEach(func(k, v lua.LValue) {
		if stopped {
			return
		}
		key, ok := k.(lua.LString)
		if !ok {
			return
		}
		if !fn(string(key), v) {
			stopped = true
		}
	})
}
