// Package refs implements the reference-slot table that pins engine values
// on behalf of host-held handles.
//
// The engine owns object storage; the host only ever holds a slot index.
// Pinning a value claims a slot in an engine-side holder table, which keeps
// the value reachable for the engine's collector for as long as the host
// needs it. Unpinning vacates the slot; vacated slots are reused before the
// table grows.
//
//	table := refs.New(L)
//
//	slot, err := table.Pin(ud)     // claim a slot
//	v := table.Get(slot)           // resolve (LNil once vacated)
//	table.Unpin(slot)              // vacate; idempotent
//
// Slot 0 is never issued and always resolves to LNil. The table is not
// synchronized; it lives on the engine's thread like the engine itself.
package refs
