package luabridge

import (
	goerrors "errors"
	"reflect"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-bridge/cell"
	"github.com/wippyai/lua-bridge/errors"
	"github.com/wippyai/lua-bridge/internal/udata"
	"github.com/wippyai/lua-bridge/refs"
)

// Handle is the host's grip on one engine-owned object. The engine
// stores the value; the handle pins it against collection and carries
// the slot needed to find it again. Handles are not safe for
// concurrent use.
type Handle struct {
	rt       *Runtime
	slot     refs.Slot
	sub      Subtype
	released bool
}

// NewObject boxes a host value into the engine under the type's
// dispatch table. Types never registered get a default empty table.
// The object stays pinned until the handle is released or the runtime
// closes.
func NewObject[T any](rt *Runtime, value T) (*Handle, error) {
	if rt.closed {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "runtime is closed")
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	entry := rt.entryFor(typ)

	boxed := value
	box := udata.New(cell.New(&boxed, rt.shared), typ, entry.name, udata.SubtypeNone)
	ud := rt.ls.NewUserData()
	ud.Value = box
	ud.Metatable = entry.mt

	slot, err := rt.refs.Pin(ud)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "pin new object")
	}
	rt.log.Debug("object created",
		zap.String("type", entry.name),
		zap.Int("slot", int(slot)))
	return &Handle{rt: rt, slot: slot, sub: udata.SubtypeNone}, nil
}

// resolve finds the pinned userdata and its box. It panics when the
// handle was released (a programming fault) and errors when the
// runtime is closed.
func (h *Handle) resolve() (*lua.LUserData, *udata.Box, error) {
	if h.released {
		panic("luabridge: use of a released handle")
	}
	if h.rt.closed {
		return nil, nil, errors.InvalidInput(errors.PhaseRuntime, "runtime is closed")
	}
	v := h.rt.refs.Get(h.slot)
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil, nil, errors.InvalidInput(errors.PhaseRuntime, "handle slot no longer holds an object")
	}
	box, ok := udata.Unwrap(ud)
	if !ok {
		return nil, nil, errors.InvalidInput(errors.PhaseRuntime, "handle slot holds foreign userdata")
	}
	return ud, box, nil
}

// LuaValue exposes the pinned userdata so encoded structures can embed
// handles. It panics on released handles and closed runtimes.
func (h *Handle) LuaValue() lua.LValue {
	ud, _, err := h.resolve()
	if err != nil {
		panic("luabridge: " + err.Error())
	}
	return ud
}

// TypeName reports the registered name of the object's type, or the
// empty string when the runtime is closed.
func (h *Handle) TypeName() string {
	_, box, err := h.resolve()
	if err != nil {
		return ""
	}
	return box.TypeName
}

// Subtype reports the engine-native flavor of the object.
func (h *Handle) Subtype() Subtype {
	return h.sub
}

// Runtime returns the owning runtime.
func (h *Handle) Runtime() *Runtime {
	return h.rt
}

// Release unpins the object, letting the engine collect it once
// scripts drop their references. Using the handle afterwards panics.
func (h *Handle) Release() {
	if h.released {
		panic("luabridge: handle released twice")
	}
	h.released = true
	h.rt.refs.Unpin(h.slot)
}

// Equals compares two handles the way scripts compare their objects:
// raw identity first, then a shared dispatch table's __eq. Objects of
// different types are never equal.
func (h *Handle) Equals(other *Handle) (bool, error) {
	if other == nil {
		return false, nil
	}
	ud1, _, err := h.resolve()
	if err != nil {
		return false, err
	}
	ud2, _, err := other.resolve()
	if err != nil {
		return false, err
	}
	if ud1 == ud2 {
		return true, nil
	}
	if h.rt != other.rt {
		return false, nil
	}
	if ud1.Metatable != ud2.Metatable {
		return false, nil
	}
	mt, ok := ud1.Metatable.(*lua.LTable)
	if !ok {
		return false, nil
	}
	eq := mt.RawGetString("__eq")
	if eq == lua.LNil {
		return false, nil
	}

	if err := h.rt.ls.CallByParam(lua.P{Fn: eq, NRet: 1, Protect: true}, ud1, ud2); err != nil {
		return false, errors.HostCallback(err)
	}
	out := h.rt.ls.Get(-1)
	h.rt.ls.Pop(1)
	return lua.LVAsBool(out), nil
}

// Is reports whether the handle holds exactly a T. Buffer handles and
// mismatched types report false.
func Is[T any](h *Handle) bool {
	_, box, err := h.resolve()
	if err != nil {
		return false
	}
	return box.Sub == udata.SubtypeNone && box.Type == reflect.TypeOf((*T)(nil)).Elem()
}

// Borrow takes a shared borrow on the handle's value. The type check
// precedes the borrow attempt, so a mismatch never touches the cell.
func Borrow[T any](h *Handle) (*Ref[T], error) {
	box, err := checkType[T](h)
	if err != nil {
		return nil, err
	}
	inner, err := box.Cell.TryBorrow()
	if err != nil {
		return nil, enrich(err, box.TypeName)
	}
	return &Ref[T]{inner: inner}, nil
}

// BorrowMut takes an exclusive borrow on the handle's value.
func BorrowMut[T any](h *Handle) (*RefMut[T], error) {
	box, err := checkType[T](h)
	if err != nil {
		return nil, err
	}
	inner, err := box.Cell.TryBorrowMut()
	if err != nil {
		return nil, enrich(err, box.TypeName)
	}
	return &RefMut[T]{inner: inner}, nil
}

// Take extracts the value, destructing the object. It requires the
// unborrowed state; afterwards every host and script access fails with
// a Destructed error. Ownership moves out, so Drop never runs for
// taken values.
func Take[T any](h *Handle) (T, error) {
	var zero T
	box, err := checkType[T](h)
	if err != nil {
		return zero, err
	}
	value, err := box.Cell.Take()
	if err != nil {
		return zero, enrich(err, box.TypeName)
	}

	ud, _, rerr := h.resolve()
	if rerr == nil {
		ud.Metatable = h.rt.destructedMT
	}
	h.rt.log.Debug("object taken", zap.String("type", box.TypeName))
	return *(value.(*T)), nil
}

func checkType[T any](h *Handle) (*udata.Box, error) {
	_, box, err := h.resolve()
	if err != nil {
		return nil, err
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if box.Sub != udata.SubtypeNone || box.Type != typ {
		return nil, errors.WrongType(errors.PhaseBorrow, typ.String(), box.TypeName)
	}
	return box, nil
}

// enrich stamps the object's type name onto a fresh cell error.
func enrich(err error, typeName string) error {
	var be *errors.Error
	if goerrors.As(err, &be) && be.TypeName == "" {
		be.TypeName = typeName
	}
	return err
}

// Ref is a shared borrow guard over a T.
type Ref[T any] struct {
	inner *cell.Ref
}

// Value returns the borrowed value. It panics after Release.
func (r *Ref[T]) Value() *T {
	return r.inner.Value().(*T)
}

// Release ends the borrow. Releasing twice panics.
func (r *Ref[T]) Release() {
	r.inner.Release()
}

// RefMut is an exclusive borrow guard over a T.
type RefMut[T any] struct {
	inner *cell.RefMut
}

// Value returns the borrowed value. It panics after Release.
func (r *RefMut[T]) Value() *T {
	return r.inner.Value().(*T)
}

// Release ends the borrow. Releasing twice panics.
func (r *RefMut[T]) Release() {
	r.inner.Release()
}
