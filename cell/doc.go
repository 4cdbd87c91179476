// Package cell implements the dynamic borrow discipline for host values
// owned by the scripting engine.
//
// A Cell holds exactly one host value together with a borrow counter. The
// static aliasing rules a compiler would enforce do not survive the trip
// through a dynamically-typed engine, so the Cell enforces them at runtime
// instead: any number of shared borrows, or exactly one exclusive borrow,
// never both.
//
// # Borrow States
//
// A cell is in exactly one of four states at any instant:
//
//	unborrowed   no guards outstanding
//	shared       1..n Ref guards outstanding
//	exclusive    exactly one RefMut guard outstanding
//	destructed   value extracted by Take; permanent
//
// All transitions go through the counter; there is no other path between
// states.
//
// # Guards
//
// TryBorrow and TryBorrowMut hand out Ref and RefMut guards. Every
// successful borrow must be paired with exactly one Release:
//
//	ref, err := c.TryBorrow()
//	if err != nil {
//		return err // borrow_conflict or destructed
//	}
//	defer ref.Release()
//	use(ref.Value())
//
// Releasing a guard twice, or reading through a released guard, is a
// programming fault and panics.
//
// # Destruction
//
// Take extracts the value and leaves the cell permanently destructed. It
// succeeds only from the unborrowed state; a cell with live guards reports
// a borrow conflict and stays fully usable. After a successful Take every
// subsequent borrow fails with a destructed error.
//
// # Shared Mode
//
// Cells are built for a single-threaded engine by default. New(v, true)
// selects an atomic counter for embedders that drive the engine from
// multiple goroutines behind their own lock. The semantics are identical;
// only the memory ordering differs.
package cell
