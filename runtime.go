package luabridge

import (
	"reflect"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-bridge/appdata"
	"github.com/wippyai/lua-bridge/errors"
	"github.com/wippyai/lua-bridge/internal/udata"
	"github.com/wippyai/lua-bridge/refs"
	"github.com/wippyai/lua-bridge/transcoder"
)

// Subtype tags the engine-native flavor of a bridge object.
type Subtype = udata.Subtype

const (
	SubtypeNone   = udata.SubtypeNone
	SubtypeBuffer = udata.SubtypeBuffer
)

// Dropper is optionally implemented by host values that need cleanup.
// Drop runs once, when Runtime.Close drains an object that was never
// taken out of the engine.
type Dropper interface {
	Drop()
}

// Options configures a Runtime.
type Options struct {
	// State is an existing engine state to adopt. When nil the Runtime
	// creates and owns a fresh state with the standard libraries open.
	State *lua.LState

	// Logger overrides the package logger for this Runtime.
	Logger *zap.Logger

	// Shared makes object cells use atomic borrow counters so guards
	// may be released from goroutines other than the script's.
	Shared bool
}

// Runtime binds one engine state to the bridge: it owns the reference
// table pinning live objects, the per-type dispatch tables, the value
// converter and the app-data store.
//
// A Runtime is NOT safe for concurrent use; like the underlying state
// it belongs to a single goroutine. Shared mode only relaxes where
// borrow guards may be released.
type Runtime struct {
	ls           *lua.LState
	log          *zap.Logger
	conv         *transcoder.Converter
	refs         *refs.Table
	app          *appdata.Store
	types        map[reflect.Type]*typeEntry
	buffer       *typeEntry
	destructedMT *lua.LTable
	asyncRun     *lua.LFunction
	shared       bool
	ownState     bool
	closed       bool
}

// New creates a Runtime with a fresh engine state and default options.
func New() *Runtime {
	return NewWith(Options{})
}

// NewWith creates a Runtime from explicit options.
func NewWith(opts Options) *Runtime {
	ls := opts.State
	own := false
	if ls == nil {
		ls = lua.NewState()
		own = true
	}
	log := opts.Logger
	if log == nil {
		log = Logger()
	}

	rt := &Runtime{
		ls:       ls,
		log:      log,
		conv:     transcoder.New(ls),
		refs:     refs.New(ls),
		app:      appdata.New(opts.Shared),
		types:    make(map[reflect.Type]*typeEntry),
		shared:   opts.Shared,
		ownState: own,
	}
	rt.destructedMT = rt.buildDestructedTable()
	rt.buffer = rt.buildBufferEntry()
	return rt
}

// State exposes the underlying engine state for direct script work.
func (rt *Runtime) State() *lua.LState {
	return rt.ls
}

// AppData returns the runtime's typed app-state store.
func (rt *Runtime) AppData() *appdata.Store {
	return rt.app
}

// Close drains the reference table, dropping still-live host values
// that implement Dropper, and closes the engine state if the Runtime
// created it. Objects with outstanding borrows are skipped with a
// warning. Close is idempotent.
func (rt *Runtime) Close() error {
	if rt.closed {
		return nil
	}
	rt.closed = true

	rt.refs.Each(func(slot refs.Slot, v lua.LValue) bool {
		ud, ok := v.(*lua.LUserData)
		if !ok {
			return true
		}
		box, ok := udata.Unwrap(ud)
		if !ok || box.Cell.Destructed() {
			return true
		}
		value, err := box.Cell.Take()
		if err != nil {
			rt.log.Warn("close: object still borrowed, skipping drop",
				zap.String("type", box.TypeName),
				zap.Int("slot", int(slot)))
			return true
		}
		if d, ok := value.(Dropper); ok {
			d.Drop()
		}
		return true
	})
	rt.refs.Close()

	if rt.ownState {
		rt.ls.Close()
	}
	return nil
}

// ToValue encodes a Go value into an engine value with default options.
func (rt *Runtime) ToValue(v any) (lua.LValue, error) {
	return rt.conv.Encode(v)
}

// ToValueWith encodes a Go value with explicit options.
func (rt *Runtime) ToValueWith(v any, opts transcoder.EncodeOptions) (lua.LValue, error) {
	return rt.conv.EncodeWith(v, opts)
}

// FromValue decodes an engine value into the Go value target points to.
func (rt *Runtime) FromValue(lv lua.LValue, target any) error {
	return rt.conv.Decode(lv, target)
}

// FromValueWith decodes with explicit options.
func (rt *Runtime) FromValueWith(lv lua.LValue, target any, opts transcoder.DecodeOptions) error {
	return rt.conv.DecodeWith(lv, target, opts)
}

// FromValueAny decodes an engine value into a dynamically shaped Go value.
func (rt *Runtime) FromValueAny(lv lua.LValue) (any, error) {
	return rt.conv.DecodeAny(lv)
}

// Null returns the runtime's absence sentinel (distinct from engine nil).
func (rt *Runtime) Null() lua.LValue {
	return rt.conv.Null()
}

// ArrayMetatable returns the marker table forcing sequence classification.
func (rt *Runtime) ArrayMetatable() *lua.LTable {
	return rt.conv.ArrayMetatable()
}

// Converter exposes the runtime's value converter.
func (rt *Runtime) Converter() *transcoder.Converter {
	return rt.conv
}

// SetGlobal encodes v and binds it to a script global.
func (rt *Runtime) SetGlobal(name string, v any) error {
	lv, err := rt.conv.Encode(v)
	if err != nil {
		return err
	}
	rt.ls.SetGlobal(name, lv)
	return nil
}

// Global reads a script global as a raw engine value.
func (rt *Runtime) Global(name string) lua.LValue {
	return rt.ls.GetGlobal(name)
}

// PushHandle places the handle's object on the engine stack. Exactly
// one value is pushed.
func (rt *Runtime) PushHandle(h *Handle) error {
	ud, _, err := h.resolve()
	if err != nil {
		return err
	}
	rt.ls.Push(ud)
	return nil
}

// PopHandle claims the bridge object on top of the engine stack,
// pinning it under a fresh handle. The value is popped even when it
// turns out not to be a bridge object.
func (rt *Runtime) PopHandle() (*Handle, error) {
	top := rt.ls.Get(-1)
	rt.ls.Pop(1)

	ud, ok := top.(*lua.LUserData)
	if !ok {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			LuaType(top.Type().String()).
			Detail("stack top is not a bridge object").
			Build()
	}
	box, ok := udata.Unwrap(ud)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "stack top is foreign userdata")
	}
	slot, err := rt.refs.Pin(ud)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "pin popped object")
	}
	return &Handle{rt: rt, slot: slot, sub: box.Sub}, nil
}

// DecodeValue decodes an engine value straight into a T.
func DecodeValue[T any](rt *Runtime, lv lua.LValue) (T, error) {
	var out T
	err := rt.conv.Decode(lv, &out)
	return out, err
}
