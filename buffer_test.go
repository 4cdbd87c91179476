package luabridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	berrors "github.com/wippyai/lua-bridge/errors"
)

func TestBuffer_ScriptOperations(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.NewBuffer([]byte("hello"))
	require.NoError(t, rt.SetGlobal("buf", h))

	L := rt.State()
	require.NoError(t, L.DoString(`
		n = buf:len()
		hash = #buf
		first = buf:get(1)
		buf:set(1, 72)
		s = buf:bytes()
		mid = buf:slice(2, 4)
		empty = buf:slice(2, 1)
		str = tostring(buf)
	`))
	assert.Equal(t, lua.LNumber(5), L.GetGlobal("n"))
	assert.Equal(t, lua.LNumber(5), L.GetGlobal("hash"))
	assert.Equal(t, lua.LNumber(104), L.GetGlobal("first"))
	assert.Equal(t, lua.LString("Hello"), L.GetGlobal("s"))
	assert.Equal(t, lua.LString("ell"), L.GetGlobal("mid"))
	assert.Equal(t, lua.LString(""), L.GetGlobal("empty"))
	assert.Equal(t, lua.LString("buffer(5)"), L.GetGlobal("str"))
}

func TestBuffer_RangeErrors(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.SetGlobal("buf", rt.NewBuffer([]byte("hello"))))

	L := rt.State()
	for _, src := range []string{
		`buf:get(0)`,
		`buf:get(6)`,
		`buf:set(0, 1)`,
		`buf:slice(1, 6)`,
	} {
		err := L.DoString(src)
		require.Error(t, err, src)
		assert.Contains(t, err.Error(), "out of range", src)
	}

	// Byte values are uint8-checked before any write happens.
	err := L.DoString(`buf:set(1, 300)`)
	require.Error(t, err)
	require.NoError(t, L.DoString(`first = buf:get(1)`))
	assert.Equal(t, lua.LNumber('h'), L.GetGlobal("first"))
}

func TestBuffer_HostAccess(t *testing.T) {
	rt := newTestRuntime(t)
	src := []byte{1, 2, 3}
	h := rt.NewBuffer(src)

	assert.Equal(t, SubtypeBuffer, h.Subtype())
	assert.Equal(t, "buffer", h.TypeName())
	assert.False(t, Is[[]byte](h), "buffers are not plain objects")

	_, err := Borrow[[]byte](h)
	require.Error(t, err)
	assert.Equal(t, berrors.KindTypeMismatch, kindOf(t, err))

	// NewBuffer copies, so later writes to the source are invisible.
	src[0] = 99
	var out []byte
	require.NoError(t, rt.FromValue(h.LuaValue(), &out))
	assert.Equal(t, []byte{1, 2, 3}, out)
}

func TestBuffer_MutationVisibleToHost(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.NewBuffer([]byte("abc"))
	require.NoError(t, rt.SetGlobal("buf", h))
	require.NoError(t, rt.State().DoString(`buf:set(2, 66)`))

	var out []byte
	require.NoError(t, rt.FromValue(h.LuaValue(), &out))
	assert.Equal(t, []byte("aBc"), out)

	// Decoding copies; writing through the copy must not reach back.
	out[0] = 'z'
	dyn, err := rt.FromValueAny(h.LuaValue())
	require.NoError(t, err)
	assert.Equal(t, []byte("aBc"), dyn)
}

func TestBuffer_Empty(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.SetGlobal("buf", rt.NewBuffer(nil)))

	L := rt.State()
	require.NoError(t, L.DoString(`
		n = buf:len()
		s = buf:bytes()
	`))
	assert.Equal(t, lua.LNumber(0), L.GetGlobal("n"))
	assert.Equal(t, lua.LString(""), L.GetGlobal("s"))

	err := L.DoString(`buf:get(1)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
