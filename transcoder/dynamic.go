package transcoder

import (
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-bridge/errors"
	"github.com/wippyai/lua-bridge/internal/udata"
)

// DecodeAny translates an engine value into a dynamically shaped Go value
// using default options. Tables become []any or map[string]any depending on
// their key set, numbers become int64 when integral and float64 otherwise.
func (c *Converter) DecodeAny(lv lua.LValue) (any, error) {
	return c.DecodeAnyWith(lv, DefaultDecodeOptions())
}

// DecodeAnyWith translates an engine value into a dynamically shaped Go value.
func (c *Converter) DecodeAnyWith(lv lua.LValue, opts DecodeOptions) (any, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	d := decoder{c: c, opts: opts}
	return d.dynamic(lv, nil, 0)
}

func (d *decoder) dynamic(lv lua.LValue, path []string, depth int) (any, error) {
	if depth > d.opts.MaxDepth {
		return nil, errors.DepthExceeded(errors.PhaseDecode, path, d.opts.MaxDepth)
	}

	switch v := lv.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		f := float64(v)
		if isIntegral(f) {
			return int64(f), nil
		}
		return f, nil
	case lua.LString:
		return string(v), nil
	case *lua.LTable:
		return d.dynamicTable(v, path, depth)
	case *lua.LUserData:
		if d.c.IsNull(v) {
			return nil, nil
		}
		if box, ok := udata.Unwrap(v); ok {
			if box.Sub == udata.SubtypeBuffer {
				return bufferBytes(box)
			}
			// Host objects pass through untranslated so callers can
			// hand them back to the engine.
			return v, nil
		}
		return d.dynamicUnsupported(lv, path)
	default:
		return d.dynamicUnsupported(lv, path)
	}
}

func (d *decoder) dynamicUnsupported(lv lua.LValue, path []string) (any, error) {
	if d.opts.Permissive {
		return nil, nil
	}
	return nil, errors.New(errors.PhaseDecode, errors.KindUnsupported).
		Path(path...).
		LuaType(luaTypeName(lv)).
		Detail("no host representation").
		Build()
}

func (d *decoder) dynamicTable(tbl *lua.LTable, path []string, depth int) (any, error) {
	if d.c.IsArray(tbl) {
		return d.dynamicSequence(tbl, path, depth)
	}

	// Classify by key set: exactly the integers 1..n means a sequence,
	// anything else means a map. An empty table has no elements to prove
	// sequence intent, so it decodes as an empty map.
	count := 0
	maxKey := 0
	allInt := true
	tbl.ForEach(func(k, _ lua.LValue) {
		count++
		if !allInt {
			return
		}
		n, ok := k.(lua.LNumber)
		if !ok || !isIntegral(float64(n)) || n < 1 {
			allInt = false
			return
		}
		if int(n) > maxKey {
			maxKey = int(n)
		}
	})

	if count > 0 && allInt && maxKey == count {
		return d.dynamicSequence(tbl, path, depth)
	}
	return d.dynamicMap(tbl, path, depth)
}

func (d *decoder) dynamicSequence(tbl *lua.LTable, path []string, depth int) (any, error) {
	out := []any{}
	for i := 1; ; i++ {
		ev := tbl.RawGetInt(i)
		if ev == lua.LNil {
			break
		}
		elem, err := d.dynamic(ev, extend(path, strconv.Itoa(i)), depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
	}
	return out, nil
}

func (d *decoder) dynamicMap(tbl *lua.LTable, path []string, depth int) (any, error) {
	out := map[string]any{}
	var ferr error
	tbl.ForEach(func(k, v lua.LValue) {
		if ferr != nil {
			return
		}
		var name string
		switch kv := k.(type) {
		case lua.LString:
			name = string(kv)
		case lua.LNumber:
			if !isIntegral(float64(kv)) {
				if d.opts.Permissive {
					return
				}
				ferr = errors.New(errors.PhaseDecode, errors.KindUnsupported).
					Path(path...).
					LuaType("number").
					Detail("map keys must be strings or integers").
					Build()
				return
			}
			name = strconv.FormatInt(int64(kv), 10)
		default:
			if d.opts.Permissive {
				return
			}
			ferr = errors.New(errors.PhaseDecode, errors.KindUnsupported).
				Path(path...).
				LuaType(luaTypeName(k)).
				Detail("map keys must be strings or integers").
				Build()
			return
		}
		elem, err := d.dynamic(v, extend(path, name), depth+1)
		if err != nil {
			ferr = err
			return
		}
		out[name] = elem
	})
	if ferr != nil {
		return nil, ferr
	}
	return out, nil
}
