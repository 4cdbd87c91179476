package cell

import (
	"sync/atomic"

	"github.com/wippyai/lua-bridge/errors"
)

// Borrow-state encoding. All four states live in one signed counter so the
// atomic variant can transition with a single CAS.
const (
	stateUnborrowed int64 = 0
	stateExclusive  int64 = -1
	stateDestructed int64 = -2
)

// maxShared caps simultaneous shared borrows. Exceeding it is a programming
// fault, distinct from a borrow conflict.
const maxShared int64 = 1<<31 - 1

// counter is the borrow-state machine. The two implementations differ only
// in memory ordering.
type counter interface {
	// tryShared and tryExclusive return the blocking state on failure.
	tryShared() (int64, bool)
	tryExclusive() (int64, bool)
	releaseShared()
	releaseExclusive()
	// destruct moves unborrowed to destructed, returning the blocking
	// state on failure.
	destruct() (int64, bool)
	load() int64
}

type plainCounter struct {
	n int64
}

func (c *plainCounter) tryShared() (int64, bool) {
	if c.n < 0 {
		return c.n, false
	}
	if c.n >= maxShared {
		panic("cell: shared borrow counter overflow")
	}
	c.n++
	return c.n, true
}

func (c *plainCounter) tryExclusive() (int64, bool) {
	if c.n != stateUnborrowed {
		return c.n, false
	}
	c.n = stateExclusive
	return c.n, true
}

func (c *plainCounter) releaseShared() {
	if c.n <= 0 {
		panic("cell: release of a shared borrow that is not held")
	}
	c.n--
}

func (c *plainCounter) releaseExclusive() {
	if c.n != stateExclusive {
		panic("cell: release of an exclusive borrow that is not held")
	}
	c.n = stateUnborrowed
}

func (c *plainCounter) destruct() (int64, bool) {
	if c.n != stateUnborrowed {
		return c.n, false
	}
	c.n = stateDestructed
	return stateDestructed, true
}

func (c *plainCounter) load() int64 {
	return c.n
}

type atomicCounter struct {
	n atomic.Int64
}

func (c *atomicCounter) tryShared() (int64, bool) {
	for {
		cur := c.n.Load()
		if cur < 0 {
			return cur, false
		}
		if cur >= maxShared {
			panic("cell: shared borrow counter overflow")
		}
		if c.n.CompareAndSwap(cur, cur+1) {
			return cur + 1, true
		}
	}
}

func (c *atomicCounter) tryExclusive() (int64, bool) {
	for {
		cur := c.n.Load()
		if cur != stateUnborrowed {
			return cur, false
		}
		if c.n.CompareAndSwap(cur, stateExclusive) {
			return stateExclusive, true
		}
	}
}

func (c *atomicCounter) releaseShared() {
	for {
		cur := c.n.Load()
		if cur <= 0 {
			panic("cell: release of a shared borrow that is not held")
		}
		if c.n.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (c *atomicCounter) releaseExclusive() {
	if !c.n.CompareAndSwap(stateExclusive, stateUnborrowed) {
		panic("cell: release of an exclusive borrow that is not held")
	}
}

func (c *atomicCounter) destruct() (int64, bool) {
	for {
		cur := c.n.Load()
		if cur != stateUnborrowed {
			return cur, false
		}
		if c.n.CompareAndSwap(cur, stateDestructed) {
			return stateDestructed, true
		}
	}
}

func (c *atomicCounter) load() int64 {
	return c.n.Load()
}

// Cell holds exactly one host value together with its borrow state.
type Cell struct {
	state counter
	value any
}

// New creates a cell around value. With shared set, the borrow counter is
// atomic so the cell may be used from multiple goroutines; the borrow
// semantics are unchanged.
func New(value any, shared bool) *Cell {
	c := &Cell{value: value}
	if shared {
		c.state = &atomicCounter{}
	} else {
		c.state = &plainCounter{}
	}
	return c
}

// TryBorrow acquires a shared borrow. It fails with a borrow conflict while
// an exclusive borrow is live and with a destructed error after Take.
func (c *Cell) TryBorrow() (*Ref, error) {
	if st, ok := c.state.tryShared(); !ok {
		return nil, blocked(st, "borrow")
	}
	return &Ref{cell: c}, nil
}

// TryBorrowMut acquires the exclusive borrow. It fails with a borrow
// conflict while any borrow is live and with a destructed error after Take.
func (c *Cell) TryBorrowMut() (*RefMut, error) {
	if st, ok := c.state.tryExclusive(); !ok {
		return nil, blocked(st, "borrow mutably")
	}
	return &RefMut{cell: c}, nil
}

// Take extracts the value, leaving the cell permanently destructed. Only the
// unborrowed state permits it; with guards outstanding the cell is untouched
// and a borrow conflict is returned.
func (c *Cell) Take() (any, error) {
	if st, ok := c.state.destruct(); !ok {
		return nil, blocked(st, "take")
	}
	v := c.value
	c.value = nil
	return v, nil
}

// IntoInner extracts the value without the borrow handshake. The caller must
// already hold proof of exclusivity; a live borrow or a second extraction is
// a fault.
func (c *Cell) IntoInner() any {
	st, ok := c.state.destruct()
	if !ok {
		if st == stateDestructed {
			panic("cell: IntoInner on a destructed cell")
		}
		panic("cell: IntoInner with outstanding borrows")
	}
	v := c.value
	c.value = nil
	return v
}

// Borrowed reports whether any guard is outstanding.
func (c *Cell) Borrowed() bool {
	st := c.state.load()
	return st > 0 || st == stateExclusive
}

// Destructed reports whether the value has been taken.
func (c *Cell) Destructed() bool {
	return c.state.load() == stateDestructed
}

func blocked(state int64, op string) *errors.Error {
	switch {
	case state == stateDestructed:
		return errors.Destructed(errors.PhaseBorrow, "")
	case state == stateExclusive:
		return errors.BorrowConflict(errors.PhaseBorrow, "", op+" while an exclusive borrow is held")
	default:
		return errors.BorrowConflict(errors.PhaseBorrow, "", op+" while shared borrows are held")
	}
}

// Ref is a shared borrow guard.
type Ref struct {
	cell     *Cell
	released bool
}

// Value returns the guarded value. Mutating through it violates the shared
// contract; use TryBorrowMut for mutation.
func (r *Ref) Value() any {
	if r.released {
		panic("cell: value access through a released borrow")
	}
	return r.cell.value
}

// Release returns the borrow. Releasing twice is a fault.
func (r *Ref) Release() {
	if r.released {
		panic("cell: double release of a shared borrow")
	}
	r.released = true
	r.cell.state.releaseShared()
}

// RefMut is the exclusive borrow guard.
type RefMut struct {
	cell     *Cell
	released bool
}

// Value returns the guarded value.
func (r *RefMut) Value() any {
	if r.released {
		panic("cell: value access through a released borrow")
	}
	return r.cell.value
}

// Release returns the borrow. Releasing twice is a fault.
func (r *RefMut) Release() {
	if r.released {
		panic("cell: double release of an exclusive borrow")
	}
	r.released = true
	r.cell.state.releaseExclusive()
}
