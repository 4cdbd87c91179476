// Package transcoder translates structured values between Go and the
// scripting engine.
//
// A Converter is bound to one engine state and owns two per-state
// singletons: the null sentinel and the array metatable.
//
//	conv := transcoder.New(L)
//
//	lv, err := conv.Encode(map[string]any{"id": 7})
//	var out map[string]any
//	err = conv.Decode(lv, &out)
//
// # The Null Sentinel
//
// The engine's nil erases table entries, so a nil inside a container would
// silently change its shape. Null() is a dedicated userdata meaning
// "present but empty": encoding a nil slice element stores the sentinel and
// the sequence keeps its length; decoding maps it back to Go nil.
//
// # Sequence Classification
//
// Engine tables are one type for both arrays and maps. Decoding classifies:
//
//   - A table carrying ArrayMetatable() is always a sequence: its elements
//     are the contiguous run of integer keys from 1, and anything else in
//     the table is ignored.
//   - An untagged table is a sequence only when every key is a positive
//     integer and the key set is exactly {1..n}. The empty untagged table
//     is a map.
//
// Encoding slices with EncodeOptions.SetArrayMetatable (the default) tags
// the built tables, so even empty and null-holding sequences survive a
// round trip.
//
// # Supported Kinds
//
// Encoding covers booleans, all integer and float kinds, strings, []byte
// (as engine strings), slices, arrays, maps with string or integer keys,
// structs (honoring `lua` field tags, `-` skips, anonymous fields are
// flattened), pointers, interfaces, time.Time and time.Duration. Values
// implementing LuaValuer supply their own representation; lua.LValue passes
// through untouched. Channels, functions and complex numbers have no engine
// representation and are rejected.
//
// Decoding is strict by default: engine functions, threads and foreign
// userdata fail with unsupported_value_kind. DecodeOptions.Permissive
// coerces them to absence instead. Bridge-managed userdata passes through
// dynamic decoding as an opaque lua.LValue; buffer userdata decodes to
// []byte.
//
// # Depth Guard
//
// Both directions bound recursion (DefaultMaxDepth, overridable per call).
// Self-referential tables and cyclic host values fail with depth_exceeded
// instead of hanging.
package transcoder
