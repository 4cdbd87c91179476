package refs

import (
	"errors"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestTable_Basic(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	tbl := New(L)

	v := lua.LString("pinned")
	slot, err := tbl.Pin(v)
	if err != nil {
		t.Fatalf("Pin failed: %v", err)
	}
	if slot == 0 {
		t.Fatal("Expected non-zero slot")
	}

	got := tbl.Get(slot)
	if got != v {
		t.Fatalf("Expected pinned value back, got %v", got)
	}

	tbl.Unpin(slot)
	if tbl.Get(slot) != lua.LNil {
		t.Fatal("Expected LNil after Unpin")
	}
}

func TestTable_UnpinIdempotent(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	tbl := New(L)

	slot, _ := tbl.Pin(lua.LNumber(1))
	tbl.Unpin(slot)
	tbl.Unpin(slot) // no-op

	if tbl.Len() != 0 {
		t.Fatalf("Expected Len() == 0, got %d", tbl.Len())
	}
}

func TestTable_SlotReuse(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	tbl := New(L)

	s1, _ := tbl.Pin(lua.LNumber(1))
	s2, _ := tbl.Pin(lua.LNumber(2))
	s3, _ := tbl.Pin(lua.LNumber(3))

	tbl.Unpin(s2)
	tbl.Unpin(s1)

	s4, _ := tbl.Pin(lua.LNumber(4))
	s5, _ := tbl.Pin(lua.LNumber(5))

	if s4 != s1 && s4 != s2 {
		t.Fatalf("Expected slot reuse, got fresh slot %d", s4)
	}
	if s5 != s1 && s5 != s2 {
		t.Fatalf("Expected slot reuse, got fresh slot %d", s5)
	}

	if tbl.Get(s3) != lua.LNumber(3) {
		t.Fatal("Untouched slot should still resolve")
	}
	if tbl.Get(s4) != lua.LNumber(4) {
		t.Fatal("Reused slot should resolve to the new value")
	}
}

func TestTable_PinNil(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	tbl := New(L)

	if _, err := tbl.Pin(lua.LNil); !errors.Is(err, ErrNilValue) {
		t.Fatalf("Expected ErrNilValue, got %v", err)
	}
	if _, err := tbl.Pin(nil); !errors.Is(err, ErrNilValue) {
		t.Fatalf("Expected ErrNilValue for untyped nil, got %v", err)
	}
}

func TestTable_InvalidSlots(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	tbl := New(L)

	if tbl.Get(0) != lua.LNil {
		t.Fatal("Slot 0 should resolve to LNil")
	}
	if tbl.Get(999) != lua.LNil {
		t.Fatal("Never-issued slot should resolve to LNil")
	}
	tbl.Unpin(0)
	tbl.Unpin(999) // no-ops
}

func TestTable_Len(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	tbl := New(L)

	if tbl.Len() != 0 {
		t.Fatal("Expected Len() == 0 initially")
	}

	s1, _ := tbl.Pin(lua.LNumber(1))
	tbl.Pin(lua.LNumber(2))

	if tbl.Len() != 2 {
		t.Fatalf("Expected Len() == 2, got %d", tbl.Len())
	}

	tbl.Unpin(s1)
	if tbl.Len() != 1 {
		t.Fatalf("Expected Len() == 1, got %d", tbl.Len())
	}
}

func TestTable_Each(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	tbl := New(L)

	tbl.Pin(lua.LNumber(1))
	s2, _ := tbl.Pin(lua.LNumber(2))
	tbl.Pin(lua.LNumber(3))
	tbl.Unpin(s2)

	count := 0
	tbl.Each(func(Slot, lua.LValue) bool {
		count++
		return true
	})
	if count != 2 {
		t.Fatalf("Expected to visit 2 pinned values, got %d", count)
	}

	count = 0
	tbl.Each(func(Slot, lua.LValue) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("Expected early termination after 1, got %d", count)
	}
}

func TestTable_Close(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	tbl := New(L)

	slot, _ := tbl.Pin(lua.LString("v"))
	tbl.Close()

	if tbl.Get(slot) != lua.LNil {
		t.Fatal("Expected LNil after Close")
	}
	if _, err := tbl.Pin(lua.LNumber(1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
	tbl.Close() // idempotent
}
