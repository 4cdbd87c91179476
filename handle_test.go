package luabridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	berrors "github.com/wippyai/lua-bridge/errors"
)

func TestHandle_Identity(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)
	h := newAccount(t, rt, "ada", 1)

	assert.True(t, Is[account](h))
	assert.False(t, Is[widget](h))
	assert.Equal(t, "account", h.TypeName())
	assert.Equal(t, SubtypeNone, h.Subtype())
	assert.Same(t, rt, h.Runtime())
}

func TestHandle_SharedBorrows(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)
	h := newAccount(t, rt, "ada", 1)

	r1, err := Borrow[account](h)
	require.NoError(t, err)
	r2, err := Borrow[account](h)
	require.NoError(t, err)
	assert.Equal(t, "ada", r1.Value().Owner)
	assert.Equal(t, "ada", r2.Value().Owner)

	_, err = BorrowMut[account](h)
	require.Error(t, err)
	assert.Equal(t, berrors.KindBorrowConflict, kindOf(t, err))

	r1.Release()
	_, err = BorrowMut[account](h)
	require.Error(t, err, "one shared guard still out")

	r2.Release()
	m, err := BorrowMut[account](h)
	require.NoError(t, err)
	m.Value().Balance = 7
	m.Release()

	r3, err := Borrow[account](h)
	require.NoError(t, err)
	defer r3.Release()
	assert.Equal(t, 7, r3.Value().Balance)
}

func TestHandle_ExclusiveBorrowExcludesAll(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)
	h := newAccount(t, rt, "ada", 1)

	m, err := BorrowMut[account](h)
	require.NoError(t, err)

	_, err = Borrow[account](h)
	assert.Equal(t, berrors.KindBorrowConflict, kindOf(t, err))
	_, err = BorrowMut[account](h)
	assert.Equal(t, berrors.KindBorrowConflict, kindOf(t, err))

	m.Release()
	r, err := Borrow[account](h)
	require.NoError(t, err)
	r.Release()
}

func TestHandle_BorrowConflictNamesType(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)
	h := newAccount(t, rt, "ada", 1)

	m, err := BorrowMut[account](h)
	require.NoError(t, err)
	defer m.Release()

	_, err = Borrow[account](h)
	require.Error(t, err)
	var be *berrors.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "account", be.TypeName)
}

func TestHandle_WrongTypeNeverTouchesCell(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)
	h := newAccount(t, rt, "ada", 1)

	_, err := Borrow[widget](h)
	require.Error(t, err)
	assert.Equal(t, berrors.KindTypeMismatch, kindOf(t, err))

	_, err = Take[widget](h)
	assert.Equal(t, berrors.KindTypeMismatch, kindOf(t, err))

	// The mismatches above left no borrow behind.
	m, err := BorrowMut[account](h)
	require.NoError(t, err)
	m.Release()
}

func TestHandle_Take(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)
	h := newAccount(t, rt, "ada", 42)

	r, err := Borrow[account](h)
	require.NoError(t, err)
	_, err = Take[account](h)
	assert.Equal(t, berrors.KindBorrowConflict, kindOf(t, err))
	r.Release()

	v, err := Take[account](h)
	require.NoError(t, err)
	assert.Equal(t, account{Owner: "ada", Balance: 42}, v)

	_, err = Take[account](h)
	assert.Equal(t, berrors.KindDestructed, kindOf(t, err))
	_, err = Borrow[account](h)
	assert.Equal(t, berrors.KindDestructed, kindOf(t, err))
	_, err = BorrowMut[account](h)
	assert.Equal(t, berrors.KindDestructed, kindOf(t, err))
}

func TestHandle_ReleasePanics(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)

	h := newAccount(t, rt, "ada", 1)
	h.Release()

	assert.Panics(t, func() { h.Release() })
	assert.Panics(t, func() { Is[account](h) })
	assert.Panics(t, func() { h.LuaValue() })
}

func TestHandle_GuardReleaseTwicePanics(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)
	h := newAccount(t, rt, "ada", 1)

	r, err := Borrow[account](h)
	require.NoError(t, err)
	r.Release()
	assert.Panics(t, func() { r.Release() })
}

func TestHandle_EqualsIdentity(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)
	h := newAccount(t, rt, "ada", 1)

	require.NoError(t, rt.PushHandle(h))
	again, err := rt.PopHandle()
	require.NoError(t, err)

	eq, err := h.Equals(again)
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = h.Equals(nil)
	require.NoError(t, err)
	assert.False(t, eq)
}

func TestHandle_EqualsConsultsMetamethod(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)

	a := newAccount(t, rt, "ada", 5)
	b := newAccount(t, rt, "ada", 5)
	c := newAccount(t, rt, "grace", 5)

	eq, err := a.Equals(b)
	require.NoError(t, err)
	assert.True(t, eq, "distinct objects, equal by __eq")

	eq, err = a.Equals(c)
	require.NoError(t, err)
	assert.False(t, eq)
}

func TestHandle_EqualsWithoutMetamethod(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, NewRegistry[widget]("widget").Register(rt))

	a, err := NewObject(rt, widget{Label: "x"})
	require.NoError(t, err)
	b, err := NewObject(rt, widget{Label: "x"})
	require.NoError(t, err)

	eq, err := a.Equals(b)
	require.NoError(t, err)
	assert.False(t, eq, "no __eq, distinct objects stay unequal")
}

func TestHandle_EqualsAcrossTypes(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)
	require.NoError(t, NewRegistry[widget]("widget").Register(rt))

	a := newAccount(t, rt, "ada", 1)
	w, err := NewObject(rt, widget{})
	require.NoError(t, err)

	eq, err := a.Equals(w)
	require.NoError(t, err)
	assert.False(t, eq)
}

func TestHandle_EmbeddedInEncodedStructures(t *testing.T) {
	rt := newTestRuntime(t)
	registerAccount(t, rt)
	h := newAccount(t, rt, "ada", 1)

	lv, err := rt.ToValue(map[string]any{"obj": h, "n": 1})
	require.NoError(t, err)
	tbl, ok := lv.(*lua.LTable)
	require.True(t, ok)
	assert.Equal(t, h.LuaValue(), tbl.RawGetString("obj"))

	// Dynamic decode hands the object back untranslated.
	out, err := rt.FromValueAny(lv)
	require.NoError(t, err)
	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, h.LuaValue(), m["obj"])
	assert.Equal(t, int64(1), m["n"])
}

func TestHandle_TypeNameAfterClose(t *testing.T) {
	rt := New()
	registerAccount(t, rt)
	h := newAccount(t, rt, "ada", 1)

	require.NoError(t, rt.Close())
	assert.Equal(t, "", h.TypeName())
	assert.False(t, Is[account](h))

	_, err := Borrow[account](h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime is closed")
}
