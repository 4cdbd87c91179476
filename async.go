package luabridge

import (
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// Future is the handle an async handler returns for work that
// completes later. Done is closed exactly once when the result is
// ready; Result must not be called before that.
type Future interface {
	Done() <-chan struct{}
	Result() (any, error)
}

var futureType = reflect.TypeOf((*Future)(nil)).Elem()

// asyncTrampoline drives an async handler from inside a coroutine.
// start either finishes inline (false, results...) or hands back a
// poll step that is retried after every yield.
const asyncTrampoline = `
local start = ...
return function(...)
	local r = {start(...)}
	if r[1] == false then
		return unpack(r, 2)
	end
	local poll = r[1]
	while true do
		local s = {poll()}
		if s[1] then
			return unpack(s, 2)
		end
		coroutine.yield()
	end
end
`

func (rt *Runtime) ensureAsyncRunner() error {
	if rt.asyncRun != nil {
		return nil
	}
	if rt.ls.GetGlobal("coroutine") == lua.LNil {
		return fmt.Errorf("engine state has no coroutine library")
	}
	if rt.ls.GetGlobal("unpack") == lua.LNil {
		return fmt.Errorf("engine state has no unpack function")
	}
	fn, err := rt.ls.LoadString(asyncTrampoline)
	if err != nil {
		return fmt.Errorf("compile async trampoline: %w", err)
	}
	rt.asyncRun = fn
	return nil
}

// asyncClosure wraps a handler so a coroutine can call it, suspend
// while the returned Future runs, and resume with its result.
func (rt *Runtime) asyncClosure(bh *boundHandler) (*lua.LFunction, error) {
	if err := rt.ensureAsyncRunner(); err != nil {
		return nil, err
	}
	start := rt.ls.NewFunction(asyncStart(bh))
	if err := rt.ls.CallByParam(lua.P{Fn: rt.asyncRun, NRet: 1, Protect: true}, start); err != nil {
		return nil, err
	}
	wrapped := rt.ls.Get(-1)
	rt.ls.Pop(1)
	fn, ok := wrapped.(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("async trampoline returned %s", wrapped.Type())
	}
	return fn, nil
}

// asyncStart is the first poll. The borrow is acquired and released
// inside call, so by the time a Future comes back the object is free
// for other borrowers.
func asyncStart(bh *boundHandler) lua.LGFunction {
	return func(L *lua.LState) int {
		var ud *lua.LUserData
		var args []lua.LValue
		if bh.recv == recvNone {
			args = stackValues(L, 1)
		} else {
			ud, _ = L.Get(1).(*lua.LUserData)
			args = stackValues(L, 2)
		}

		results, err := bh.call(ud, args)
		if err != nil {
			return raise(L, err)
		}

		if len(results) == 1 {
			if fut, ok := futureOf(results[0]); ok {
				L.Push(L.NewFunction(pollStep(bh.rt, fut)))
				return 1
			}
		}

		L.Push(lua.LFalse)
		pushed := 1
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
}

// pollStep checks the future without blocking. Not ready pushes
// false so the trampoline yields; ready pushes true plus the encoded
// result.
func pollStep(rt *Runtime, fut Future) lua.LGFunction {
	return func(L *lua.LState) int {
		select {
		case <-fut.Done():
		default:
			L.Push(lua.LFalse)
			return 1
		}
		out, err := fut.Result()
		if err != nil {
			return raise(L, hostErr(err))
		}
		lv, err := rt.conv.Encode(out)
		if err != nil {
			return raise(L, err)
		}
		L.Push(lua.LTrue)
		L.Push(lv)
		return 2
	}
}

// futureOf inspects one handler result, unwrapping an interface box,
// and reports whether it carries a usable Future.
func futureOf(res reflect.Value) (Future, bool) {
	if !res.IsValid() {
		return nil, false
	}
	if res.Kind() == reflect.Interface {
		if res.IsNil() {
			return nil, false
		}
		res = res.Elem()
	}
	t := res.Type()
	if !t.Implements(futureType) {
		return nil, false
	}
	if t.Kind() == reflect.Pointer && res.IsNil() {
		return nil, false
	}
	return res.Interface().(Future), true
}
