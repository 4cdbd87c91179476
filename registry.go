package luabridge

import (
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// Args receives all remaining raw engine arguments when declared as
// the final parameter of a handler.
type Args []lua.LValue

type capKind uint8

const (
	capMethod capKind = iota
	capMethodMut
	capAsyncMethod
	capAsyncMethodMut
	capFunction
	capAsyncFunction
	capField
	capFieldGet
	capFieldSet
	capFieldGetFn
	capFieldSetFn
	capMetaField
	capMetaFieldFn
	capMetaMethod
	capMetaMethodMut
	capMetaFunction
)

func (k capKind) label() string {
	switch k {
	case capMethod:
		return "method"
	case capMethodMut:
		return "mutating method"
	case capAsyncMethod:
		return "async method"
	case capAsyncMethodMut:
		return "async mutating method"
	case capFunction:
		return "function"
	case capAsyncFunction:
		return "async function"
	case capField:
		return "field"
	case capFieldGet:
		return "field getter"
	case capFieldSet:
		return "field setter"
	case capFieldGetFn:
		return "field getter function"
	case capFieldSetFn:
		return "field setter function"
	case capMetaField:
		return "meta field"
	case capMetaFieldFn:
		return "computed meta field"
	case capMetaMethod:
		return "metamethod"
	case capMetaMethodMut:
		return "mutating metamethod"
	case capMetaFunction:
		return "meta function"
	}
	return "capability"
}

type capability struct {
	kind  capKind
	name  string
	meta  MetaMethod
	fn    any
	value any
}

// Registry collects the capabilities a host type T exposes to scripts.
// Add calls only record; Register validates everything and compiles
// the dispatch table. Handlers are ordinary Go funcs:
//
//	func([rt *Runtime,] recv *T, params...) (results..., [error])   methods
//	func([rt *Runtime,] params...)          (results..., [error])   functions
//
// Parameters decode from engine values through the runtime's
// converter; lua.LValue parameters receive the raw value, *Handle
// parameters receive pinned handles, and a trailing Args parameter
// receives all remaining raw arguments. Results encode back the same
// way; a trailing error result raises inside the engine when non-nil.
type Registry[T any] struct {
	name string
	caps []capability
}

// NewRegistry starts a registry for T under the given script-facing
// type name. An empty name falls back to the Go type name.
func NewRegistry[T any](name string) *Registry[T] {
	if name == "" {
		name = reflect.TypeOf((*T)(nil)).Elem().String()
	}
	return &Registry[T]{name: name}
}

// AddMethod registers a method holding a shared borrow of the
// receiver for the duration of the call.
func (r *Registry[T]) AddMethod(name string, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capMethod, name: name, fn: fn})
	return r
}

// AddMethodMut registers a method holding an exclusive borrow of the
// receiver for the duration of the call.
func (r *Registry[T]) AddMethodMut(name string, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capMethodMut, name: name, fn: fn})
	return r
}

// AddAsyncMethod registers a deferred method. The call suspends the
// running coroutine until the handler's Future completes; the shared
// borrow is held only while the handler itself runs, never across a
// suspension.
func (r *Registry[T]) AddAsyncMethod(name string, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capAsyncMethod, name: name, fn: fn})
	return r
}

// AddAsyncMethodMut is AddAsyncMethod with an exclusive borrow.
func (r *Registry[T]) AddAsyncMethodMut(name string, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capAsyncMethodMut, name: name, fn: fn})
	return r
}

// AddFunction registers a free function in the type's namespace. No
// receiver is borrowed; declare a *Handle parameter to receive the
// subject explicitly.
func (r *Registry[T]) AddFunction(name string, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capFunction, name: name, fn: fn})
	return r
}

// AddAsyncFunction registers a deferred free function.
func (r *Registry[T]) AddAsyncFunction(name string, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capAsyncFunction, name: name, fn: fn})
	return r
}

// AddField registers a static field, encoded once at registration.
func (r *Registry[T]) AddField(name string, value any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capField, name: name, value: value})
	return r
}

// AddFieldGet registers a per-instance getter holding a shared borrow.
// The handler returns exactly one value.
func (r *Registry[T]) AddFieldGet(name string, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capFieldGet, name: name, fn: fn})
	return r
}

// AddFieldSet registers a per-instance setter holding an exclusive
// borrow. The handler takes the new value and returns nothing.
func (r *Registry[T]) AddFieldSet(name string, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capFieldSet, name: name, fn: fn})
	return r
}

// AddFieldGetFn registers a handle-level getter; fn receives a
// *Handle and takes no implicit borrow.
func (r *Registry[T]) AddFieldGetFn(name string, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capFieldGetFn, name: name, fn: fn})
	return r
}

// AddFieldSetFn registers a handle-level setter.
func (r *Registry[T]) AddFieldSetFn(name string, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capFieldSetFn, name: name, fn: fn})
	return r
}

// AddMetaField registers a static metatable entry such as __name.
func (r *Registry[T]) AddMetaField(name MetaMethod, value any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capMetaField, meta: name, value: value})
	return r
}

// AddMetaFieldFn registers a metatable entry computed once at
// registration; fn takes an optional *Runtime and returns the value.
func (r *Registry[T]) AddMetaFieldFn(name MetaMethod, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capMetaFieldFn, meta: name, fn: fn})
	return r
}

// AddMetaMethod registers an operator overload holding a shared
// borrow of the receiving operand.
func (r *Registry[T]) AddMetaMethod(name MetaMethod, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capMetaMethod, meta: name, fn: fn})
	return r
}

// AddMetaMethodMut is AddMetaMethod with an exclusive borrow.
func (r *Registry[T]) AddMetaMethodMut(name MetaMethod, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capMetaMethodMut, meta: name, fn: fn})
	return r
}

// AddMetaFunction registers an operator overload with no implicit
// receiver or borrow; all operands arrive as declared parameters.
func (r *Registry[T]) AddMetaFunction(name MetaMethod, fn any) *Registry[T] {
	r.caps = append(r.caps, capability{kind: capMetaFunction, meta: name, fn: fn})
	return r
}

// Register validates the collected capabilities and installs the
// compiled dispatch table on the runtime. Re-registering a type
// replaces the table for objects created afterwards; existing objects
// keep the table they were born with.
func (r *Registry[T]) Register(rt *Runtime) error {
	return rt.registerType(reflect.TypeOf((*T)(nil)).Elem(), r.name, r.caps)
}
