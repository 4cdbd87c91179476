// Package luabridge hosts Go objects inside an embedded Lua engine without
// giving up Go's aliasing discipline.
//
// The engine (github.com/yuin/gopher-lua) is garbage-collected and
// dynamically typed; it has no notion of exclusive references. This library
// supplies the missing contract at runtime: every hosted object lives in a
// borrow-checked cell, scripts reach it only through a compiled dispatch
// table, and the host reaches it only through typed handles that enforce
// single-writer-or-many-readers before any memory is touched.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	luabridge/           Root package: Runtime, Registry, Handle, dispatch, async
//	├── cell/            Borrow-checked container for one host value
//	├── refs/            Reference-slot table pinning engine values against GC
//	├── appdata/         Typed per-runtime state store with a borrow gate
//	├── transcoder/      Structural value translation between Go and Lua
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Register a type, create an object, and let a script use it:
//
//	type Account struct {
//	    Balance int
//	}
//
//	rt := luabridge.New()
//	defer rt.Close()
//
//	err := luabridge.NewRegistry[Account]("account").
//	    AddMethod("balance", func(a *Account) int { return a.Balance }).
//	    AddMethodMut("deposit", func(a *Account, n int) { a.Balance += n }).
//	    Register(rt)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	h, err := luabridge.NewObject(rt, Account{Balance: 100})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rt.State().SetGlobal("acct", h.LuaValue())
//
//	if err := rt.State().DoString(`acct:deposit(50)`); err != nil {
//	    log.Fatal(err)
//	}
//
//	got, err := luabridge.Take[Account](h) // Balance == 150
//
// # Borrow Discipline
//
// Borrow and BorrowMut hand out guards; a conflicting request fails
// immediately with a borrow_conflict error rather than blocking, matching
// the engine's non-blocking reentrant call model. Take extracts the value
// only from the unborrowed state and permanently destructs the object:
// afterwards both host access and script access fail with a destructed
// error. Method dispatch acquires the declared borrow around the handler
// call and releases it on every exit path, including handler panics.
//
// # Dispatch Order
//
// The compiled __index resolves reads in a fixed order: static fields and
// field getters, then methods, then a user-declared __index fallback.
// Writes resolve through field setters, then a user-declared __newindex
// fallback. This order is part of the contract, not an implementation
// detail.
//
// # Async Methods
//
// Async capabilities run inside Lua coroutines. The handler's borrow is
// held only while the handler itself executes; when it returns a Future
// the coroutine yields between polls with no borrow outstanding, so other
// script or host code can use the object while the work completes.
//
// # Thread Safety
//
// A Runtime belongs to a single goroutine, like the LState it wraps.
// Options.Shared switches the borrow counters to atomic operations for
// embedders that guard the engine with their own lock and release guards
// from other goroutines; it does not make the engine itself concurrent.
package luabridge
