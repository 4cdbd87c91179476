// Package appdata implements the runtime-wide typed state store.
//
// The store keeps at most one value per Go type, each in its own borrow-
// checked cell, so embedders can stash context (connection pools, loggers,
// request state) and retrieve it from any host callback without threading it
// through every signature.
//
//	appdata.Insert(store, &Config{...})
//
//	ref, err := appdata.Borrow[*Config](store)
//	if err != nil { ... }
//	defer ref.Release()
//
// # The Gate
//
// Besides per-entry cells the store keeps one gate counter of outstanding
// borrows across all entries. Insert, Remove and Clear mutate the map that
// every live guard resolved through, so they refuse to run while the gate is
// held, no matter which entry the guard belongs to. The fallible variants
// (TryInsert, TryRemove) report a borrow conflict; the plain ones treat it
// as a programming fault and panic.
//
// Generic access goes through package-level functions because Go methods
// cannot introduce type parameters.
package appdata
