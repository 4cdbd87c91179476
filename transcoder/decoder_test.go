package transcoder

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-bridge/cell"
	berrors "github.com/wippyai/lua-bridge/errors"
	"github.com/wippyai/lua-bridge/internal/udata"
)

func kindOf(t *testing.T, err error) berrors.Kind {
	t.Helper()
	var be *berrors.Error
	require.ErrorAs(t, err, &be)
	return be.Kind
}

func evalTable(t *testing.T, L *lua.LState, src string) *lua.LTable {
	t.Helper()
	require.NoError(t, L.DoString("result = "+src))
	tbl, ok := L.GetGlobal("result").(*lua.LTable)
	require.True(t, ok, "expression must evaluate to a table")
	return tbl
}

func TestDecode_TargetValidation(t *testing.T) {
	_, c := newTestConverter(t)

	err := c.Decode(lua.LNumber(1), 42)
	require.Error(t, err)
	assert.Equal(t, berrors.KindInvalidInput, kindOf(t, err))

	var p *int
	err = c.Decode(lua.LNumber(1), p)
	require.Error(t, err)
	assert.Equal(t, berrors.KindInvalidInput, kindOf(t, err))
}

func TestDecode_Scalars(t *testing.T) {
	_, c := newTestConverter(t)

	var b bool
	require.NoError(t, c.Decode(lua.LTrue, &b))
	assert.True(t, b)

	var i int
	require.NoError(t, c.Decode(lua.LNumber(-3), &i))
	assert.Equal(t, -3, i)

	var u uint16
	require.NoError(t, c.Decode(lua.LNumber(512), &u))
	assert.Equal(t, uint16(512), u)

	var f float64
	require.NoError(t, c.Decode(lua.LNumber(2.5), &f))
	assert.Equal(t, 2.5, f)

	var s string
	require.NoError(t, c.Decode(lua.LString("hi"), &s))
	assert.Equal(t, "hi", s)
}

func TestDecode_NumberChecks(t *testing.T) {
	_, c := newTestConverter(t)

	tests := []struct {
		name   string
		value  lua.LValue
		target any
	}{
		{"fraction into int", lua.LNumber(1.5), new(int)},
		{"negative into uint", lua.LNumber(-1), new(uint)},
		{"overflow int8", lua.LNumber(300), new(int8)},
		{"overflow uint8", lua.LNumber(300), new(uint8)},
		{"bool into int", lua.LTrue, new(int)},
		{"string into float", lua.LString("1.5"), new(float64)},
		{"number into bool", lua.LNumber(1), new(bool)},
		{"number into string", lua.LNumber(1), new(string)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Decode(tt.value, tt.target)
			require.Error(t, err)
			assert.Equal(t, berrors.KindTypeMismatch, kindOf(t, err))
		})
	}
}

func TestDecode_AbsenceZeroesTarget(t *testing.T) {
	_, c := newTestConverter(t)

	i := 42
	require.NoError(t, c.Decode(lua.LNil, &i))
	assert.Equal(t, 0, i)

	s := "old"
	require.NoError(t, c.Decode(c.Null(), &s))
	assert.Equal(t, "", s)

	p := &i
	require.NoError(t, c.Decode(lua.LNil, &p))
	assert.Nil(t, p)
}

func TestDecode_RawLuaValueTargets(t *testing.T) {
	L, c := newTestConverter(t)

	var lv lua.LValue
	require.NoError(t, c.Decode(lua.LString("raw"), &lv))
	assert.Equal(t, lua.LString("raw"), lv)

	tbl := L.CreateTable(0, 0)
	var target *lua.LTable
	require.NoError(t, c.Decode(tbl, &target))
	assert.Same(t, tbl, target)

	err := c.Decode(lua.LString("not a table"), &target)
	require.Error(t, err)
	assert.Equal(t, berrors.KindTypeMismatch, kindOf(t, err))
}

func TestDecode_Bytes(t *testing.T) {
	L, c := newTestConverter(t)

	var b []byte
	require.NoError(t, c.Decode(lua.LString("abc"), &b))
	assert.Equal(t, []byte("abc"), b)

	data := []byte{1, 2, 3}
	box := udata.New(cell.New(&data, false), reflect.TypeOf((*[]byte)(nil)).Elem(), "buffer", udata.SubtypeBuffer)
	ud := L.NewUserData()
	ud.Value = box

	b = nil
	require.NoError(t, c.Decode(ud, &b))
	assert.Equal(t, []byte{1, 2, 3}, b)
	b[0] = 99
	assert.Equal(t, byte(1), data[0], "decoded bytes are a copy")
}

func TestDecode_Slice(t *testing.T) {
	L, c := newTestConverter(t)

	var got []int
	require.NoError(t, c.Decode(evalTable(t, L, `{4, 5, 6}`), &got))
	assert.Equal(t, []int{4, 5, 6}, got)

	var empty []int
	require.NoError(t, c.Decode(evalTable(t, L, `{}`), &empty))
	assert.NotNil(t, empty)
	assert.Len(t, empty, 0)

	err := c.Decode(lua.LNumber(1), &got)
	require.Error(t, err)
	assert.Equal(t, berrors.KindTypeMismatch, kindOf(t, err))
}

func TestDecode_Array(t *testing.T) {
	L, c := newTestConverter(t)

	var got [3]int
	require.NoError(t, c.Decode(evalTable(t, L, `{7, 8, 9}`), &got))
	assert.Equal(t, [3]int{7, 8, 9}, got)

	err := c.Decode(evalTable(t, L, `{7, 8}`), &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shorter")

	err = c.Decode(evalTable(t, L, `{7, 8, 9, 10}`), &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "longer")
}

func TestDecode_Map(t *testing.T) {
	L, c := newTestConverter(t)

	var got map[string]int
	require.NoError(t, c.Decode(evalTable(t, L, `{a = 1, b = 2}`), &got))
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, got)

	var byNum map[int]string
	require.NoError(t, c.Decode(evalTable(t, L, `{[1] = "one", [2] = "two"}`), &byNum))
	assert.Equal(t, map[int]string{1: "one", 2: "two"}, byNum)

	var bad map[string]int
	err := c.Decode(evalTable(t, L, `{[1.5] = 1}`), &bad)
	require.Error(t, err)
	assert.Equal(t, berrors.KindTypeMismatch, kindOf(t, err))

	require.NoError(t, c.DecodeWith(evalTable(t, L, `{[1.5] = 1, a = 2}`), &bad,
		DecodeOptions{Permissive: true}))
	assert.Equal(t, map[string]int{"a": 2}, bad, "permissive mode drops keys with no host shape")
}

func TestDecode_Struct(t *testing.T) {
	L, c := newTestConverter(t)

	var u encUser
	require.NoError(t, c.Decode(evalTable(t, L, `{
		name = "grace",
		age = 41,
		city = "Oslo",
		zip = "0150",
		extra = "ignored",
	}`), &u))

	assert.Equal(t, "grace", u.Name)
	assert.Equal(t, 41, u.Age)
	assert.Equal(t, "Oslo", u.City, "embedded fields fill from flattened keys")
	assert.Equal(t, "0150", u.Zip)
	assert.Equal(t, "", u.Secret)

	u = encUser{Age: 7}
	require.NoError(t, c.Decode(evalTable(t, L, `{name = "partial"}`), &u))
	assert.Equal(t, "partial", u.Name)
	assert.Equal(t, 7, u.Age, "absent keys leave existing values alone")
}

func TestDecode_PointerAllocation(t *testing.T) {
	L, c := newTestConverter(t)

	var u *encUser
	require.NoError(t, c.Decode(evalTable(t, L, `{name = "pp"}`), &u))
	require.NotNil(t, u)
	assert.Equal(t, "pp", u.Name)
}

func TestDecode_TimeAndDuration(t *testing.T) {
	_, c := newTestConverter(t)

	var ts time.Time
	require.NoError(t, c.Decode(lua.LString("2024-05-17T10:30:00.5Z"), &ts))
	assert.Equal(t, time.Date(2024, 5, 17, 10, 30, 0, 500000000, time.UTC), ts.UTC())

	require.NoError(t, c.Decode(lua.LNumber(1700000000), &ts))
	assert.Equal(t, int64(1700000000), ts.Unix())

	err := c.Decode(lua.LString("yesterday"), &ts)
	require.Error(t, err)
	assert.Equal(t, berrors.KindTypeMismatch, kindOf(t, err))

	var d time.Duration
	require.NoError(t, c.Decode(lua.LNumber(1.5), &d))
	assert.Equal(t, 1500*time.Millisecond, d)
}

func TestDecode_DepthGuard(t *testing.T) {
	L, c := newTestConverter(t)

	tbl := evalTable(t, L, `{a = {b = {c = {d = {e = 1}}}}}`)
	var got map[string]any
	err := c.DecodeWith(tbl, &got, DecodeOptions{MaxDepth: 2})
	require.Error(t, err)
	assert.Equal(t, berrors.KindDepthExceeded, kindOf(t, err))
}

func TestDecodeAny_Scalars(t *testing.T) {
	_, c := newTestConverter(t)

	tests := []struct {
		name  string
		input lua.LValue
		want  any
	}{
		{"nil", lua.LNil, nil},
		{"bool", lua.LTrue, true},
		{"integral number", lua.LNumber(7), int64(7)},
		{"fractional number", lua.LNumber(7.5), 7.5},
		{"string", lua.LString("s"), "s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.DecodeAny(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := c.DecodeAny(c.Null())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeAny_TableClassification(t *testing.T) {
	L, c := newTestConverter(t)

	tests := []struct {
		name string
		src  string
		want any
	}{
		{"contiguous keys make a sequence", `{10, 20, 30}`, []any{int64(10), int64(20), int64(30)}},
		{"gap forces a map", `{[1] = "a", [2] = "b", [4] = "c"}`, map[string]any{"1": "a", "2": "b", "4": "c"}},
		{"string keys make a map", `{a = 1}`, map[string]any{"a": int64(1)}},
		{"mixed keys make a map", `{1, two = 2}`, map[string]any{"1": int64(1), "two": int64(2)}},
		{"zero key forces a map", `{[0] = "z", [1] = "a"}`, map[string]any{"0": "z", "1": "a"}},
		{"empty table makes a map", `{}`, map[string]any{}},
		{"nested", `{list = {1, 2}, meta = {ok = true}}`, map[string]any{
			"list": []any{int64(1), int64(2)},
			"meta": map[string]any{"ok": true},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.DecodeAny(evalTable(t, L, tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAny_ArrayMetatableForcesSequence(t *testing.T) {
	L, c := newTestConverter(t)

	tbl := L.CreateTable(0, 0)
	tbl.Metatable = c.ArrayMetatable()
	got, err := c.DecodeAny(tbl)
	require.NoError(t, err)
	assert.Equal(t, []any{}, got, "an empty tagged table is still a sequence")

	plain := L.CreateTable(0, 0)
	got, err = c.DecodeAny(plain)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got, "an empty untagged table is a map")
}

func TestDecodeAny_Unsupported(t *testing.T) {
	L, c := newTestConverter(t)

	fn := L.NewFunction(func(*lua.LState) int { return 0 })
	_, err := c.DecodeAny(fn)
	require.Error(t, err)
	assert.Equal(t, berrors.KindUnsupported, kindOf(t, err))

	got, err := c.DecodeAnyWith(fn, DecodeOptions{Permissive: true})
	require.NoError(t, err)
	assert.Nil(t, got)

	foreign := L.NewUserData()
	foreign.Value = 42
	_, err = c.DecodeAny(foreign)
	require.Error(t, err)
	assert.Equal(t, berrors.KindUnsupported, kindOf(t, err))
}

func TestDecodeAny_BufferBecomesBytes(t *testing.T) {
	L, c := newTestConverter(t)

	data := []byte("buf")
	box := udata.New(cell.New(&data, false), reflect.TypeOf((*[]byte)(nil)).Elem(), "buffer", udata.SubtypeBuffer)
	ud := L.NewUserData()
	ud.Value = box

	got, err := c.DecodeAny(ud)
	require.NoError(t, err)
	assert.Equal(t, []byte("buf"), got)
}

func TestDecodeAny_HostObjectPassesThrough(t *testing.T) {
	L, c := newTestConverter(t)

	type widget struct{ N int }
	w := &widget{N: 1}
	box := udata.New(cell.New(w, false), reflect.TypeOf((*widget)(nil)).Elem(), "widget", udata.SubtypeNone)
	ud := L.NewUserData()
	ud.Value = box

	got, err := c.DecodeAny(ud)
	require.NoError(t, err)
	assert.Same(t, ud, got)
}
