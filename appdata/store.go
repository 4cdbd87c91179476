package appdata

import (
	"reflect"
	"sync"

	"github.com/wippyai/lua-bridge/cell"
	"github.com/wippyai/lua-bridge/errors"
)

// Store holds one value per Go type, each behind its own borrow-checked
// cell, plus a gate counting outstanding borrows across all entries.
type Store struct {
	mu      sync.Mutex
	entries map[reflect.Type]*cell.Cell
	gate    int
	shared  bool
}

// New creates an empty store. The shared flag is passed through to the
// cells it creates.
func New(shared bool) *Store {
	return &Store{
		entries: make(map[reflect.Type]*cell.Cell),
		shared:  shared,
	}
}

// Len returns the number of stored values.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear removes every entry. It fails with a borrow conflict while any
// borrow is outstanding.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate > 0 {
		return errors.BorrowConflict(errors.PhaseAppData, "", "clear while borrows are outstanding")
	}
	s.entries = make(map[reflect.Type]*cell.Cell)
	return nil
}

// Insert stores v, replacing any previous value of the same type. Inserting
// while any borrow on any entry is outstanding is a programming fault and
// panics; use TryInsert for the recoverable form.
func Insert[T any](s *Store, v T) (prev T, had bool) {
	prev, had, err := TryInsert(s, v)
	if err != nil {
		panic("appdata: insert while borrows are outstanding")
	}
	return prev, had
}

// TryInsert stores v, replacing any previous value of the same type. It
// fails with a borrow conflict while any borrow is outstanding, leaving the
// store untouched.
func TryInsert[T any](s *Store, v T) (prev T, had bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reflect.TypeOf((*T)(nil)).Elem()
	if s.gate > 0 {
		return prev, false, errors.BorrowConflict(errors.PhaseAppData, key.String(), "insert while borrows are outstanding")
	}

	if old, ok := s.entries[key]; ok {
		prev = *old.IntoInner().(*T)
		had = true
	}
	boxed := v
	s.entries[key] = cell.New(&boxed, s.shared)
	return prev, had, nil
}

// Borrow acquires a shared borrow on the stored value of type T.
func Borrow[T any](s *Store) (*Ref[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reflect.TypeOf((*T)(nil)).Elem()
	c, ok := s.entries[key]
	if !ok {
		return nil, errors.NotFound(errors.PhaseAppData, "app data", key.String())
	}
	inner, err := c.TryBorrow()
	if err != nil {
		return nil, errors.BorrowConflict(errors.PhaseAppData, key.String(), "value is exclusively borrowed")
	}
	s.gate++
	return &Ref[T]{store: s, inner: inner, val: inner.Value().(*T)}, nil
}

// BorrowMut acquires the exclusive borrow on the stored value of type T.
func BorrowMut[T any](s *Store) (*RefMut[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reflect.TypeOf((*T)(nil)).Elem()
	c, ok := s.entries[key]
	if !ok {
		return nil, errors.NotFound(errors.PhaseAppData, "app data", key.String())
	}
	inner, err := c.TryBorrowMut()
	if err != nil {
		return nil, errors.BorrowConflict(errors.PhaseAppData, key.String(), "value is borrowed")
	}
	s.gate++
	return &RefMut[T]{store: s, inner: inner, val: inner.Value().(*T)}, nil
}

// Remove extracts the stored value of type T. Removing while any borrow on
// any entry is outstanding is a programming fault and panics; use TryRemove
// for the recoverable form.
func Remove[T any](s *Store) (T, bool) {
	v, had, err := TryRemove[T](s)
	if err != nil {
		panic("appdata: remove while borrows are outstanding")
	}
	return v, had
}

// TryRemove extracts the stored value of type T. It fails with a borrow
// conflict while any borrow is outstanding.
func TryRemove[T any](s *Store) (v T, had bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reflect.TypeOf((*T)(nil)).Elem()
	if s.gate > 0 {
		return v, false, errors.BorrowConflict(errors.PhaseAppData, key.String(), "remove while borrows are outstanding")
	}

	c, ok := s.entries[key]
	if !ok {
		return v, false, nil
	}
	delete(s.entries, key)
	return *c.IntoInner().(*T), true, nil
}

func (s *Store) releaseGate() {
	s.mu.Lock()
	s.gate--
	s.mu.Unlock()
}

// Ref is a shared borrow guard on a store entry.
type Ref[T any] struct {
	store    *Store
	inner    *cell.Ref
	val      *T
	released bool
}

// Value returns the borrowed value. Mutating through it violates the shared
// contract.
func (r *Ref[T]) Value() *T {
	if r.released {
		panic("appdata: value access through a released borrow")
	}
	return r.val
}

// Release returns the borrow and lowers the store gate.
func (r *Ref[T]) Release() {
	if r.released {
		panic("appdata: double release")
	}
	r.released = true
	r.inner.Release()
	r.store.releaseGate()
}

// RefMut is the exclusive borrow guard on a store entry.
type RefMut[T any] struct {
	store    *Store
	inner    *cell.RefMut
	val      *T
	released bool
}

// Value returns the borrowed value.
func (r *RefMut[T]) Value() *T {
	if r.released {
		panic("appdata: value access through a released borrow")
	}
	return r.val
}

// Release returns the borrow and lowers the store gate.
func (r *RefMut[T]) Release() {
	if r.released {
		panic("appdata: double release")
	}
	r.released = true
	r.inner.Release()
	r.store.releaseGate()
}
