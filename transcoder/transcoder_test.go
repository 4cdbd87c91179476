package transcoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func TestConverter_NullIdentity(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	c := New(L)

	require.Same(t, c.Null(), c.Null())
	assert.True(t, c.IsNull(c.Null()))
	assert.False(t, c.IsNull(lua.LNil))
	assert.False(t, c.IsNull(lua.LNumber(0)))

	other := L.NewUserData()
	assert.False(t, c.IsNull(other))
}

func TestConverter_NullPrintsAsNull(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	c := New(L)

	L.SetGlobal("null", c.Null())
	require.NoError(t, L.DoString(`result = tostring(null)`))
	assert.Equal(t, lua.LString("null"), L.GetGlobal("result"))
}

func TestConverter_ArrayMetatable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	c := New(L)

	require.NotNil(t, c.ArrayMetatable())
	require.Same(t, c.ArrayMetatable(), c.ArrayMetatable())

	tbl := L.CreateTable(0, 0)
	assert.False(t, c.IsArray(tbl))
	tbl.Metatable = c.ArrayMetatable()
	assert.True(t, c.IsArray(tbl))
}

func TestConverter_TwoStatesAreIndependent(t *testing.T) {
	l1 := lua.NewState()
	defer l1.Close()
	l2 := lua.NewState()
	defer l2.Close()

	c1 := New(l1)
	c2 := New(l2)
	assert.False(t, c1.IsNull(c2.Null()))
	assert.NotSame(t, c1.ArrayMetatable(), c2.ArrayMetatable())
}

func TestDefaultOptions(t *testing.T) {
	enc := DefaultEncodeOptions()
	assert.True(t, enc.SetArrayMetatable)
	assert.True(t, enc.NilToNull)
	assert.Equal(t, DefaultMaxDepth, enc.MaxDepth)

	dec := DefaultDecodeOptions()
	assert.False(t, dec.Permissive)
	assert.Equal(t, DefaultMaxDepth, dec.MaxDepth)
}
