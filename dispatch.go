package luabridge

import (
	goerrors "errors"
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-bridge/errors"
	"github.com/wippyai/lua-bridge/internal/udata"
)

var (
	runtimeType = reflect.TypeOf((**Runtime)(nil)).Elem()
	handleType  = reflect.TypeOf((**Handle)(nil)).Elem()
	argsType    = reflect.TypeOf((*Args)(nil)).Elem()
	errType     = reflect.TypeOf((*error)(nil)).Elem()
)

// typeEntry is a compiled dispatch table: the metatable scripts see
// plus the Go-side maps __index and __newindex consult.
type typeEntry struct {
	name         string
	goType       reflect.Type
	mt           *lua.LTable
	methods      *lua.LTable
	fields       map[string]lua.LValue
	getters      map[string]*boundHandler
	setters      map[string]*boundHandler
	metaIndex    *boundHandler
	metaIndexTbl lua.LValue
	metaNewIndex *boundHandler
}

// entryFor returns the type's dispatch entry, creating the default
// empty one (just __name and a protected metatable) on first sight of
// an unregistered type.
func (rt *Runtime) entryFor(typ reflect.Type) *typeEntry {
	if e, ok := rt.types[typ]; ok {
		return e
	}
	e := &typeEntry{name: typ.String(), goType: typ}
	e.mt = rt.ls.CreateTable(0, 2)
	e.mt.RawSetString("__name", lua.LString(e.name))
	e.mt.RawSetString("__metatable", lua.LFalse)
	rt.types[typ] = e
	return e
}

func (rt *Runtime) registerType(typ reflect.Type, name string, caps []capability) error {
	if rt.closed {
		return errors.InvalidInput(errors.PhaseRegistry, "runtime is closed")
	}

	e := &typeEntry{
		name:    name,
		goType:  typ,
		mt:      rt.ls.CreateTable(0, len(caps)+2),
		methods: rt.ls.CreateTable(0, len(caps)),
		fields:  make(map[string]lua.LValue),
		getters: make(map[string]*boundHandler),
		setters: make(map[string]*boundHandler),
	}
	e.mt.RawSetString("__name", lua.LString(name))
	e.mt.RawSetString("__metatable", lua.LFalse)

	// One owner per name in the __index namespace: a field, a getter
	// and a method with the same name would shadow each other.
	indexOwner := make(map[string]capKind)
	setterSeen := make(map[string]bool)
	metaSeen := make(map[MetaMethod]bool)

	claimIndex := func(c capability) error {
		if prev, ok := indexOwner[c.name]; ok {
			return errors.Registration(name, c.kind.label()+" "+c.name,
				fmt.Errorf("name already taken by a %s", prev.label()))
		}
		indexOwner[c.name] = c.kind
		return nil
	}
	claimMeta := func(c capability) error {
		if err := c.meta.Validate(); err != nil {
			return errors.Registration(name, c.kind.label()+" "+string(c.meta), err)
		}
		if metaSeen[c.meta] {
			return errors.Registration(name, c.kind.label()+" "+string(c.meta),
				fmt.Errorf("metamethod registered twice"))
		}
		metaSeen[c.meta] = true
		return nil
	}

	for _, c := range caps {
		switch c.kind {
		case capField:
			if err := claimIndex(c); err != nil {
				return err
			}
			lv, err := rt.conv.Encode(c.value)
			if err != nil {
				return errors.Registration(name, c.kind.label()+" "+c.name, err)
			}
			e.fields[c.name] = lv

		case capFieldGet, capFieldGetFn:
			if err := claimIndex(c); err != nil {
				return err
			}
			bh, err := rt.newBoundHandler(e, c, shapeGetter)
			if err != nil {
				return err
			}
			e.getters[c.name] = bh

		case capFieldSet, capFieldSetFn:
			if setterSeen[c.name] {
				return errors.Registration(name, c.kind.label()+" "+c.name,
					fmt.Errorf("setter registered twice"))
			}
			setterSeen[c.name] = true
			bh, err := rt.newBoundHandler(e, c, shapeSetter)
			if err != nil {
				return err
			}
			e.setters[c.name] = bh

		case capMethod, capMethodMut, capFunction:
			if err := claimIndex(c); err != nil {
				return err
			}
			bh, err := rt.newBoundHandler(e, c, shapeFree)
			if err != nil {
				return err
			}
			e.methods.RawSetString(c.name, rt.ls.NewFunction(methodClosure(bh)))

		case capAsyncMethod, capAsyncMethodMut, capAsyncFunction:
			if err := claimIndex(c); err != nil {
				return err
			}
			bh, err := rt.newBoundHandler(e, c, shapeFree)
			if err != nil {
				return err
			}
			fn, err := rt.asyncClosure(bh)
			if err != nil {
				return errors.Registration(name, c.kind.label()+" "+c.name, err)
			}
			e.methods.RawSetString(c.name, fn)

		case capMetaField:
			if err := claimMeta(c); err != nil {
				return err
			}
			lv, err := rt.conv.Encode(c.value)
			if err != nil {
				return errors.Registration(name, c.kind.label()+" "+string(c.meta), err)
			}
			e.setMetaEntry(c.meta, lv, nil)

		case capMetaFieldFn:
			if err := claimMeta(c); err != nil {
				return err
			}
			lv, err := rt.computeMetaField(name, c)
			if err != nil {
				return err
			}
			e.setMetaEntry(c.meta, lv, nil)

		case capMetaMethod, capMetaMethodMut, capMetaFunction:
			if err := claimMeta(c); err != nil {
				return err
			}
			bh, err := rt.newBoundHandler(e, c, shapeFree)
			if err != nil {
				return err
			}
			e.setMetaEntry(c.meta, nil, bh)
		}
	}

	e.mt.RawSetString("__index", rt.ls.NewFunction(indexClosure(e)))
	e.mt.RawSetString("__newindex", rt.ls.NewFunction(newIndexClosure(e)))

	rt.types[typ] = e
	rt.log.Debug("type registered",
		zap.String("type", name),
		zap.String("go_type", typ.String()),
		zap.Int("capabilities", len(caps)))
	return nil
}

// setMetaEntry routes a meta capability either into the metatable or,
// for the two dispatch fallbacks, into the entry itself.
func (e *typeEntry) setMetaEntry(name MetaMethod, static lua.LValue, bh *boundHandler) {
	switch name {
	case MetaIndex:
		if bh != nil {
			e.metaIndex = bh
		} else {
			e.metaIndexTbl = static
		}
	case MetaNewIndex:
		e.metaNewIndex = bh
	default:
		if bh != nil {
			e.mt.RawSetString(string(name), bh.rt.ls.NewFunction(metaClosure(e, bh)))
		} else {
			e.mt.RawSetString(string(name), static)
		}
	}
}

// computeMetaField runs a computed meta field handler once.
func (rt *Runtime) computeMetaField(typeName string, c capability) (lua.LValue, error) {
	label := c.kind.label() + " " + string(c.meta)
	rv := reflect.ValueOf(c.fn)
	if rv.Kind() != reflect.Func {
		return nil, errors.Registration(typeName, label,
			fmt.Errorf("handler must be a function, got %T", c.fn))
	}
	ft := rv.Type()
	var in []reflect.Value
	if ft.NumIn() == 1 && ft.In(0) == runtimeType {
		in = []reflect.Value{reflect.ValueOf(rt)}
	} else if ft.NumIn() != 0 {
		return nil, errors.Registration(typeName, label,
			fmt.Errorf("computed meta field takes at most a *Runtime"))
	}
	numOut := ft.NumOut()
	hasErr := numOut > 0 && ft.Out(numOut-1) == errType
	if numOut-boolToInt(hasErr) != 1 {
		return nil, errors.Registration(typeName, label,
			fmt.Errorf("computed meta field returns exactly one value"))
	}
	out := rv.Call(in)
	if hasErr {
		if !out[len(out)-1].IsNil() {
			return nil, errors.Registration(typeName, label, out[len(out)-1].Interface().(error))
		}
		out = out[:len(out)-1]
	}
	lv, err := rt.conv.Encode(out[0].Interface())
	if err != nil {
		return nil, errors.Registration(typeName, label, err)
	}
	return lv, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type recvMode uint8

const (
	recvNone recvMode = iota
	recvTyped
	recvHandle
)

type borrowMode uint8

const (
	borrowNone borrowMode = iota
	borrowShared
	borrowExclusive
)

type handlerShape uint8

const (
	shapeFree handlerShape = iota
	shapeGetter
	shapeSetter
)

// boundHandler is a registered Go func with its calling convention
// resolved at registration: receiver mode, borrow mode, decodable
// parameter types and result layout.
type boundHandler struct {
	rt       *Runtime
	label    string
	typeName string
	goType   reflect.Type
	fn       reflect.Value
	wantsRT  bool
	recv     recvMode
	borrow   borrowMode
	params   []reflect.Type
	argsTail bool
	hasErr   bool
}

func capConvention(kind capKind) (recvMode, borrowMode) {
	switch kind {
	case capMethod, capAsyncMethod, capFieldGet, capMetaMethod:
		return recvTyped, borrowShared
	case capMethodMut, capAsyncMethodMut, capFieldSet, capMetaMethodMut:
		return recvTyped, borrowExclusive
	case capFieldGetFn, capFieldSetFn:
		return recvHandle, borrowNone
	default:
		return recvNone, borrowNone
	}
}

func (rt *Runtime) newBoundHandler(e *typeEntry, c capability, shape handlerShape) (*boundHandler, error) {
	label := c.kind.label() + " " + c.name
	if c.name == "" {
		label = c.kind.label() + " " + string(c.meta)
	}
	fail := func(format string, args ...any) error {
		return errors.Registration(e.name, label, fmt.Errorf(format, args...))
	}

	rv := reflect.ValueOf(c.fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return nil, fail("handler must be a function, got %T", c.fn)
	}
	ft := rv.Type()
	if ft.IsVariadic() {
		return nil, fail("variadic handlers are not supported; declare a trailing Args parameter")
	}

	recv, borrow := capConvention(c.kind)
	bh := &boundHandler{
		rt:       rt,
		label:    e.name + "." + label,
		typeName: e.name,
		goType:   e.goType,
		fn:       rv,
		recv:     recv,
		borrow:   borrow,
	}

	in := 0
	if in < ft.NumIn() && ft.In(in) == runtimeType {
		bh.wantsRT = true
		in++
	}
	switch recv {
	case recvTyped:
		want := reflect.PointerTo(e.goType)
		if in >= ft.NumIn() || ft.In(in) != want {
			return nil, fail("receiver parameter must be %s", want)
		}
		in++
	case recvHandle:
		if in >= ft.NumIn() || ft.In(in) != handleType {
			return nil, fail("receiver parameter must be *luabridge.Handle")
		}
		in++
	}
	for ; in < ft.NumIn(); in++ {
		pt := ft.In(in)
		if pt == argsType && in != ft.NumIn()-1 {
			return nil, fail("Args must be the final parameter")
		}
		bh.params = append(bh.params, pt)
	}
	if n := len(bh.params); n > 0 && bh.params[n-1] == argsType {
		bh.argsTail = true
	}

	numOut := ft.NumOut()
	bh.hasErr = numOut > 0 && ft.Out(numOut-1) == errType
	results := numOut - boolToInt(bh.hasErr)

	switch shape {
	case shapeGetter:
		if len(bh.params) != 0 {
			return nil, fail("getter takes no parameters")
		}
		if results != 1 {
			return nil, fail("getter returns exactly one value")
		}
	case shapeSetter:
		if len(bh.params) != 1 {
			return nil, fail("setter takes exactly one value parameter")
		}
		if results != 0 {
			return nil, fail("setter returns no values")
		}
	}
	return bh, nil
}

// invoke runs the handler against a receiver userdata and raw engine
// args, pushing encoded results.
func (bh *boundHandler) invoke(L *lua.LState, ud *lua.LUserData, args []lua.LValue) int {
	results, err := bh.call(ud, args)
	if err != nil {
		return raise(L, err)
	}
	pushed := 0
	for _, res := range results {
		lv, err := bh.rt.conv.Encode(res.Interface())
		if err != nil {
			return raise(L, err)
		}
		L.Push(lv)
		pushed++
	}
	return pushed
}

// call resolves the receiver, decodes parameters, runs the Go func
// and peels a trailing error result. The borrow lives exactly as long
// as the underlying call: it is released before results are reported,
// and on a handler panic the deferred release still runs.
func (bh *boundHandler) call(ud *lua.LUserData, args []lua.LValue) ([]reflect.Value, error) {
	callArgs := make([]reflect.Value, 0, 2+len(bh.params))
	if bh.wantsRT {
		callArgs = append(callArgs, reflect.ValueOf(bh.rt))
	}

	switch bh.recv {
	case recvTyped:
		box, err := bh.unwrapRecv(ud)
		if err != nil {
			return nil, err
		}
		if bh.borrow == borrowExclusive {
			ref, err := box.Cell.TryBorrowMut()
			if err != nil {
				return nil, enrich(err, box.TypeName)
			}
			defer ref.Release()
			callArgs = append(callArgs, reflect.ValueOf(ref.Value()))
		} else {
			ref, err := box.Cell.TryBorrow()
			if err != nil {
				return nil, enrich(err, box.TypeName)
			}
			defer ref.Release()
			callArgs = append(callArgs, reflect.ValueOf(ref.Value()))
		}
	case recvHandle:
		h, err := bh.rt.wrapArg(ud)
		if err != nil {
			return nil, err
		}
		callArgs = append(callArgs, reflect.ValueOf(h))
	}

	for i, pt := range bh.params {
		if bh.argsTail && i == len(bh.params)-1 {
			rest := Args{}
			if i < len(args) {
				rest = Args(args[i:])
			}
			callArgs = append(callArgs, reflect.ValueOf(rest))
			break
		}
		var raw lua.LValue = lua.LNil
		if i < len(args) {
			raw = args[i]
		}
		av, err := bh.decodeParam(raw, pt)
		if err != nil {
			return nil, err
		}
		callArgs = append(callArgs, av)
	}

	results := bh.fn.Call(callArgs)
	if bh.hasErr {
		last := results[len(results)-1]
		if !last.IsNil() {
			return nil, hostErr(last.Interface().(error))
		}
		results = results[:len(results)-1]
	}
	return results, nil
}

func hostErr(err error) error {
	var be *errors.Error
	if goerrors.As(err, &be) {
		return err
	}
	return errors.HostCallback(err)
}

func (bh *boundHandler) unwrapRecv(ud *lua.LUserData) (*udata.Box, error) {
	if ud == nil {
		return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			TypeName(bh.typeName).
			Detail("method called without a receiver; use ':' not '.'").
			Build()
	}
	box, ok := udata.Unwrap(ud)
	if !ok {
		return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			TypeName(bh.typeName).
			Detail("receiver is foreign userdata").
			Build()
	}
	if box.Sub != udata.SubtypeNone || box.Type != bh.goType {
		return nil, errors.WrongType(errors.PhaseDispatch, bh.goType.String(), box.TypeName)
	}
	return box, nil
}

func (bh *boundHandler) decodeParam(raw lua.LValue, pt reflect.Type) (reflect.Value, error) {
	if pt == handleType {
		if raw == lua.LNil {
			return reflect.Zero(pt), nil
		}
		ud, ok := raw.(*lua.LUserData)
		if !ok {
			return reflect.Value{}, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
				GoType("*luabridge.Handle").
				LuaType(raw.Type().String()).
				Build()
		}
		h, err := bh.rt.wrapArg(ud)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(h), nil
	}
	ptr := reflect.New(pt)
	if err := bh.rt.conv.Decode(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// wrapArg pins a userdata argument under a fresh handle for the host
// handler. The handle stays pinned until released or the runtime
// closes.
func (rt *Runtime) wrapArg(ud *lua.LUserData) (*Handle, error) {
	if ud == nil {
		return nil, errors.InvalidInput(errors.PhaseDispatch, "handler needs an object argument")
	}
	box, ok := udata.Unwrap(ud)
	if !ok {
		return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			Detail("argument is foreign userdata").
			Build()
	}
	slot, err := rt.refs.Pin(ud)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDispatch, errors.KindInvalidInput, err, "pin handler argument")
	}
	return &Handle{rt: rt, slot: slot, sub: box.Sub}, nil
}

func stackValues(L *lua.LState, from int) []lua.LValue {
	top := L.GetTop()
	if top < from {
		return nil
	}
	out := make([]lua.LValue, 0, top-from+1)
	for i := from; i <= top; i++ {
		out = append(out, L.Get(i))
	}
	return out
}

// methodClosure adapts a handler to a stack call: obj:m(a, b) arrives
// as (ud, a, b). Receiverless handlers see every argument raw.
func methodClosure(bh *boundHandler) lua.LGFunction {
	return func(L *lua.LState) int {
		if bh.recv == recvNone {
			return bh.invoke(L, nil, stackValues(L, 1))
		}
		ud, _ := L.Get(1).(*lua.LUserData)
		return bh.invoke(L, ud, stackValues(L, 2))
	}
}

// metaClosure adapts an operator handler: the receiving operand may
// sit on either side, so the first argument of the expected type
// becomes the receiver and the rest stay in order.
func metaClosure(e *typeEntry, bh *boundHandler) lua.LGFunction {
	return func(L *lua.LState) int {
		raw := stackValues(L, 1)
		if bh.recv == recvNone {
			return bh.invoke(L, nil, raw)
		}
		for i, v := range raw {
			ud, ok := v.(*lua.LUserData)
			if !ok {
				continue
			}
			box, ok := udata.Unwrap(ud)
			if !ok || box.Sub != udata.SubtypeNone || box.Type != bh.goType {
				continue
			}
			rest := make([]lua.LValue, 0, len(raw)-1)
			rest = append(rest, raw[:i]...)
			rest = append(rest, raw[i+1:]...)
			return bh.invoke(L, ud, rest)
		}
		return raise(L, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			TypeName(e.name).
			Detail("no operand of the expected type").
			Build())
	}
}

// indexClosure resolves reads in the documented order: static fields
// and getters, then methods, then the user fallback.
func indexClosure(e *typeEntry) lua.LGFunction {
	return func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		key := L.Get(2)

		if ks, ok := key.(lua.LString); ok {
			name := string(ks)
			if lv, ok := e.fields[name]; ok {
				L.Push(lv)
				return 1
			}
			if g, ok := e.getters[name]; ok {
				return g.invoke(L, ud, nil)
			}
			if m := e.methods.RawGetString(name); m != lua.LNil {
				L.Push(m)
				return 1
			}
		}

		if e.metaIndex != nil {
			if e.metaIndex.recv == recvNone {
				return e.metaIndex.invoke(L, nil, []lua.LValue{ud, key})
			}
			return e.metaIndex.invoke(L, ud, []lua.LValue{key})
		}
		if e.metaIndexTbl != nil {
			L.Push(L.GetTable(e.metaIndexTbl, key))
			return 1
		}
		L.Push(lua.LNil)
		return 1
	}
}

// newIndexClosure resolves writes: setters first, then the user
// fallback, otherwise a structured refusal.
func newIndexClosure(e *typeEntry) lua.LGFunction {
	return func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		key := L.Get(2)
		val := L.Get(3)

		if ks, ok := key.(lua.LString); ok {
			if s, ok := e.setters[string(ks)]; ok {
				return s.invoke(L, ud, []lua.LValue{val})
			}
		}
		if e.metaNewIndex != nil {
			if e.metaNewIndex.recv == recvNone {
				return e.metaNewIndex.invoke(L, nil, []lua.LValue{ud, key, val})
			}
			return e.metaNewIndex.invoke(L, ud, []lua.LValue{key, val})
		}
		return raise(L, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			TypeName(e.name).
			Detail("cannot assign %q", lua.LVAsString(key)).
			Build())
	}
}

// buildDestructedTable makes the permanent sentinel metatable swapped
// onto objects whose value was taken.
func (rt *Runtime) buildDestructedTable() *lua.LTable {
	deny := func(L *lua.LState) int {
		name := "object"
		if ud, ok := L.Get(1).(*lua.LUserData); ok {
			if box, ok := udata.Unwrap(ud); ok {
				name = box.TypeName
			}
		}
		return raise(L, errors.Destructed(errors.PhaseDispatch, name))
	}

	mt := rt.ls.CreateTable(0, 5)
	mt.RawSetString("__name", lua.LString("destructed"))
	mt.RawSetString("__metatable", lua.LFalse)
	mt.RawSetString("__index", rt.ls.NewFunction(deny))
	mt.RawSetString("__newindex", rt.ls.NewFunction(deny))
	mt.RawSetString("__call", rt.ls.NewFunction(deny))
	mt.RawSetString("__tostring", rt.ls.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("destructed"))
		return 1
	}))
	return mt
}

// raise reports a bridge error through the engine's native error
// channel so scripts can intercept it with pcall.
func raise(L *lua.LState, err error) int {
	L.RaiseError("%s", err.Error())
	return 0
}
