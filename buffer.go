package luabridge

import (
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-bridge/cell"
	"github.com/wippyai/lua-bridge/errors"
	"github.com/wippyai/lua-bridge/internal/udata"
)

var bytesSliceType = reflect.TypeOf((*[]byte)(nil)).Elem()

// NewBuffer boxes a copy of b as an engine-native byte buffer. The
// handle reports SubtypeBuffer and scripts see the built-in buffer
// dispatch table. Panics if the runtime is closed.
func (rt *Runtime) NewBuffer(b []byte) *Handle {
	if rt.closed {
		panic("luabridge: runtime is closed")
	}
	data := make([]byte, len(b))
	copy(data, b)
	box := udata.New(cell.New(&data, rt.shared), bytesSliceType, "buffer", udata.SubtypeBuffer)
	ud := rt.ls.NewUserData()
	ud.Value = box
	ud.Metatable = rt.buffer.mt
	slot, err := rt.refs.Pin(ud)
	if err != nil {
		panic("luabridge: " + err.Error())
	}
	rt.log.Debug("buffer created",
		zap.Int("len", len(data)),
		zap.Int("slot", int(slot)))
	return &Handle{rt: rt, slot: slot, sub: SubtypeBuffer}
}

// buildBufferEntry compiles the dispatch table every buffer shares.
// Methods go through the same index path as registered types so reads
// and writes get the same resolution order and error texture.
func (rt *Runtime) buildBufferEntry() *typeEntry {
	e := &typeEntry{
		name:    "buffer",
		goType:  bytesSliceType,
		mt:      rt.ls.CreateTable(0, 6),
		methods: rt.ls.CreateTable(0, 5),
		fields:  make(map[string]lua.LValue),
		getters: make(map[string]*boundHandler),
		setters: make(map[string]*boundHandler),
	}
	e.mt.RawSetString("__name", lua.LString("buffer"))
	e.mt.RawSetString("__metatable", lua.LFalse)

	e.methods.RawSetString("bytes", rt.ls.NewFunction(rt.bufBytes))
	e.methods.RawSetString("get", rt.ls.NewFunction(rt.bufGet))
	e.methods.RawSetString("set", rt.ls.NewFunction(rt.bufSet))
	e.methods.RawSetString("len", rt.ls.NewFunction(rt.bufLen))
	e.methods.RawSetString("slice", rt.ls.NewFunction(rt.bufSlice))

	e.mt.RawSetString("__index", rt.ls.NewFunction(indexClosure(e)))
	e.mt.RawSetString("__newindex", rt.ls.NewFunction(newIndexClosure(e)))
	e.mt.RawSetString("__len", rt.ls.NewFunction(rt.bufLen))
	e.mt.RawSetString("__tostring", rt.ls.NewFunction(rt.bufString))
	return e
}

func bufferRecv(L *lua.LState) (*udata.Box, error) {
	ud := L.CheckUserData(1)
	box, ok := udata.Unwrap(ud)
	if !ok || box.Sub != udata.SubtypeBuffer {
		return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			TypeName("buffer").
			Detail("receiver is not a buffer").
			Build()
	}
	return box, nil
}

func (rt *Runtime) bufIndex(v lua.LValue, length int) (int, error) {
	var i int
	if err := rt.conv.Decode(v, &i); err != nil {
		return 0, err
	}
	if i < 1 || i > length {
		return 0, errors.InvalidInput(errors.PhaseDispatch,
			fmt.Sprintf("buffer index %d out of range (length %d)", i, length))
	}
	return i, nil
}

func (rt *Runtime) bufBytes(L *lua.LState) int {
	box, err := bufferRecv(L)
	if err != nil {
		return raise(L, err)
	}
	ref, err := box.Cell.TryBorrow()
	if err != nil {
		return raise(L, enrich(err, "buffer"))
	}
	defer ref.Release()
	b := *ref.Value().(*[]byte)
	L.Push(lua.LString(string(b)))
	return 1
}

func (rt *Runtime) bufGet(L *lua.LState) int {
	box, err := bufferRecv(L)
	if err != nil {
		return raise(L, err)
	}
	ref, err := box.Cell.TryBorrow()
	if err != nil {
		return raise(L, enrich(err, "buffer"))
	}
	defer ref.Release()
	b := *ref.Value().(*[]byte)
	i, err := rt.bufIndex(L.Get(2), len(b))
	if err != nil {
		return raise(L, err)
	}
	L.Push(lua.LNumber(b[i-1]))
	return 1
}

func (rt *Runtime) bufSet(L *lua.LState) int {
	box, err := bufferRecv(L)
	if err != nil {
		return raise(L, err)
	}
	var val uint8
	if err := rt.conv.Decode(L.Get(3), &val); err != nil {
		return raise(L, err)
	}
	ref, err := box.Cell.TryBorrowMut()
	if err != nil {
		return raise(L, enrich(err, "buffer"))
	}
	defer ref.Release()
	b := *ref.Value().(*[]byte)
	i, err := rt.bufIndex(L.Get(2), len(b))
	if err != nil {
		return raise(L, err)
	}
	b[i-1] = val
	return 0
}

func (rt *Runtime) bufLen(L *lua.LState) int {
	box, err := bufferRecv(L)
	if err != nil {
		return raise(L, err)
	}
	ref, err := box.Cell.TryBorrow()
	if err != nil {
		return raise(L, enrich(err, "buffer"))
	}
	defer ref.Release()
	L.Push(lua.LNumber(len(*ref.Value().(*[]byte))))
	return 1
}

func (rt *Runtime) bufString(L *lua.LState) int {
	box, err := bufferRecv(L)
	if err != nil {
		return raise(L, err)
	}
	ref, err := box.Cell.TryBorrow()
	if err != nil {
		return raise(L, enrich(err, "buffer"))
	}
	defer ref.Release()
	L.Push(lua.LString(fmt.Sprintf("buffer(%d)", len(*ref.Value().(*[]byte)))))
	return 1
}

// bufSlice copies the inclusive 1-based range i..j out as a string.
// j == i-1 selects the empty range.
func (rt *Runtime) bufSlice(L *lua.LState) int {
	box, err := bufferRecv(L)
	if err != nil {
		return raise(L, err)
	}
	ref, err := box.Cell.TryBorrow()
	if err != nil {
		return raise(L, enrich(err, "buffer"))
	}
	defer ref.Release()
	b := *ref.Value().(*[]byte)
	i, err := rt.bufIndex(L.Get(2), len(b))
	if err != nil {
		return raise(L, err)
	}
	var j int
	if err := rt.conv.Decode(L.Get(3), &j); err != nil {
		return raise(L, err)
	}
	if j < i-1 || j > len(b) {
		return raise(L, errors.InvalidInput(errors.PhaseDispatch,
			fmt.Sprintf("buffer slice %d..%d out of range (length %d)", i, j, len(b))))
	}
	L.Push(lua.LString(string(b[i-1 : j])))
	return 1
}
