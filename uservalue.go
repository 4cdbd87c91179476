package luabridge

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-bridge/errors"
	"github.com/wippyai/lua-bridge/internal/udata"
)

// User values associate extra engine data with an object without
// touching the host value. Indices 1 through UserValueMax are
// addressable; the first few live in fast in-box slots and the rest
// spill into a lazily attached table alongside all named values.
const UserValueMax = udata.UserValueMax

// SetUserValue sets the first user value.
func (h *Handle) SetUserValue(v any) error {
	return h.SetNthUserValue(1, v)
}

// UserValue reads the first user value.
func (h *Handle) UserValue() (lua.LValue, error) {
	return h.NthUserValue(1)
}

// SetNthUserValue sets the n-th user value. n must be in 1..UserValueMax.
func (h *Handle) SetNthUserValue(n int, v any) error {
	_, box, err := h.resolve()
	if err != nil {
		return err
	}
	if n < 1 || n > udata.UserValueMax {
		return errors.UserValueRange(n, udata.UserValueMax)
	}
	lv, err := h.rt.conv.Encode(v)
	if err != nil {
		return err
	}
	if n < udata.FastSlots {
		box.Fast[n] = lv
		return nil
	}
	h.spill(box).RawSetInt(n, lv)
	return nil
}

// NthUserValue reads the n-th user value. Unset slots yield engine
// nil, not an error.
func (h *Handle) NthUserValue(n int) (lua.LValue, error) {
	_, box, err := h.resolve()
	if err != nil {
		return nil, err
	}
	if n < 1 || n > udata.UserValueMax {
		return nil, errors.UserValueRange(n, udata.UserValueMax)
	}
	if n < udata.FastSlots {
		if box.Fast[n] == nil {
			return lua.LNil, nil
		}
		return box.Fast[n], nil
	}
	if box.Spill == nil {
		return lua.LNil, nil
	}
	return box.Spill.RawGetInt(n), nil
}

// SetNamedUserValue associates v with an arbitrary name.
func (h *Handle) SetNamedUserValue(name string, v any) error {
	_, box, err := h.resolve()
	if err != nil {
		return err
	}
	lv, err := h.rt.conv.Encode(v)
	if err != nil {
		return err
	}
	h.spill(box).RawSetString(name, lv)
	return nil
}

// NamedUserValue reads a named user value. Unset names yield engine nil.
func (h *Handle) NamedUserValue(name string) (lua.LValue, error) {
	_, box, err := h.resolve()
	if err != nil {
		return nil, err
	}
	if box.Spill == nil {
		return lua.LNil, nil
	}
	return box.Spill.RawGetString(name), nil
}

func (h *Handle) spill(box *udata.Box) *lua.LTable {
	if box.Spill == nil {
		box.Spill = h.rt.ls.CreateTable(0, 4)
	}
	return box.Spill
}
