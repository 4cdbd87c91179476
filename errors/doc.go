// Package errors provides structured error types for the lua-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: value path, Go/Lua type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
//		Path("user", "age").
//		GoType("int").
//		LuaType("string").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseDecode, path, "int", "string")
//	err := errors.BorrowConflict(errors.PhaseDispatch, "Account", "value is exclusively borrowed")
//
// All errors implement the standard error interface and support errors.Is/As.
//
// The bridge distinguishes recoverable conditions from programming faults.
// Everything in this package is the former: fallible entry points return
// these errors. Faults (double release, use after handle release, mutation
// under an open borrow gate) panic at the call site and never produce an
// Error value.
package errors
