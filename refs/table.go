package refs

import (
	"errors"

	lua "github.com/yuin/gopher-lua"
)

var (
	ErrClosed   = errors.New("refs: table closed")
	ErrNilValue = errors.New("refs: cannot pin nil")
)

// Slot is an index into the reference table. The zero slot is never issued.
type Slot int

// Table pins engine values into a holder table so they stay reachable for
// the engine's collector while the host references them by slot.
type Table struct {
	holder *lua.LTable
	valid  []bool
	free   []Slot
	live   int
	closed bool
}

// New creates a reference table backed by a fresh holder table in L.
func New(L *lua.LState) *Table {
	return &Table{
		holder: L.CreateTable(64, 0),
		valid:  make([]bool, 0, 64),
		free:   make([]Slot, 0, 16),
	}
}

// Pin claims a slot for v, reusing a vacated slot when one exists.
func (t *Table) Pin(v lua.LValue) (Slot, error) {
	if t.closed {
		return 0, ErrClosed
	}
	if v == nil || v == lua.LNil {
		return 0, ErrNilValue
	}

	if len(t.free) > 0 {
		slot := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.valid[slot-1] = true
		t.holder.RawSetInt(int(slot), v)
		t.live++
		return slot, nil
	}

	t.valid = append(t.valid, true)
	slot := Slot(len(t.valid))
	t.holder.RawSetInt(int(slot), v)
	t.live++
	return slot, nil
}

// Get resolves a slot to its pinned value. Vacated or never-issued slots
// resolve to LNil.
func (t *Table) Get(slot Slot) lua.LValue {
	if t.closed || slot <= 0 || int(slot) > len(t.valid) || !t.valid[slot-1] {
		return lua.LNil
	}
	return t.holder.RawGetInt(int(slot))
}

// Unpin vacates a slot. Unpinning a vacated slot is a no-op.
func (t *Table) Unpin(slot Slot) {
	if t.closed || slot <= 0 || int(slot) > len(t.valid) || !t.valid[slot-1] {
		return
	}
	t.valid[slot-1] = false
	t.holder.RawSetInt(int(slot), lua.LNil)
	t.free = append(t.free, slot)
	t.live--
}

// Len returns the number of pinned slots.
func (t *Table) Len() int {
	return t.live
}

// Each visits every pinned value until fn returns false.
func (t *Table) Each(fn func(Slot, lua.LValue) bool) {
	for i, ok := range t.valid {
		if !ok {
			continue
		}
		slot := Slot(i + 1)
		if !fn(slot, t.holder.RawGetInt(int(slot))) {
			break
		}
	}
}

// Close vacates everything and refuses further pins.
func (t *Table) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.holder = nil
	t.valid = nil
	t.free = nil
	t.live = 0
}
