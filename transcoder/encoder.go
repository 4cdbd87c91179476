package transcoder

import (
	"reflect"
	"strconv"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-bridge/errors"
)

// Encode translates v into an engine value using default options.
func (c *Converter) Encode(v any) (lua.LValue, error) {
	return c.EncodeWith(v, DefaultEncodeOptions())
}

// EncodeWith translates v into an engine value.
func (c *Converter) EncodeWith(v any, opts EncodeOptions) (lua.LValue, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	e := encoder{c: c, opts: opts}
	return e.encode(v, nil, 0)
}

type encoder struct {
	c    *Converter
	opts EncodeOptions
}

func (e *encoder) nilValue() lua.LValue {
	if e.opts.NilToNull {
		return e.c.null
	}
	return lua.LNil
}

func (e *encoder) encode(v any, path []string, depth int) (lua.LValue, error) {
	if depth > e.opts.MaxDepth {
		return nil, errors.DepthExceeded(errors.PhaseEncode, path, e.opts.MaxDepth)
	}

	switch tv := v.(type) {
	case nil:
		return e.nilValue(), nil
	case lua.LValue:
		return tv, nil
	case LuaValuer:
		return tv.LuaValue(), nil
	case bool:
		return lua.LBool(tv), nil
	case int:
		return lua.LNumber(tv), nil
	case int8:
		return lua.LNumber(tv), nil
	case int16:
		return lua.LNumber(tv), nil
	case int32:
		return lua.LNumber(tv), nil
	case int64:
		return lua.LNumber(tv), nil
	case uint:
		return lua.LNumber(tv), nil
	case uint8:
		return lua.LNumber(tv), nil
	case uint16:
		return lua.LNumber(tv), nil
	case uint32:
		return lua.LNumber(tv), nil
	case uint64:
		return lua.LNumber(tv), nil
	case float32:
		return lua.LNumber(tv), nil
	case float64:
		return lua.LNumber(tv), nil
	case string:
		return lua.LString(tv), nil
	case []byte:
		return lua.LString(tv), nil
	case time.Duration:
		return lua.LNumber(tv.Seconds()), nil
	case time.Time:
		return lua.LString(tv.Format(time.RFC3339Nano)), nil
	}

	return e.encodeReflect(reflect.ValueOf(v), path, depth)
}

func (e *encoder) encodeReflect(rv reflect.Value, path []string, depth int) (lua.LValue, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return e.nilValue(), nil
		}
		return e.encode(rv.Elem().Interface(), path, depth)

	case reflect.Bool:
		return lua.LBool(rv.Bool()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int()), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return lua.LNumber(rv.Uint()), nil

	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float()), nil

	case reflect.String:
		return lua.LString(rv.String()), nil

	case reflect.Slice:
		if rv.IsNil() {
			return e.nilValue(), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return lua.LString(rv.Bytes()), nil
		}
		return e.encodeSequence(rv, path, depth)

	case reflect.Array:
		return e.encodeSequence(rv, path, depth)

	case reflect.Map:
		if rv.IsNil() {
			return e.nilValue(), nil
		}
		return e.encodeMap(rv, path, depth)

	case reflect.Struct:
		return e.encodeStruct(rv, path, depth)

	default:
		return nil, errors.New(errors.PhaseEncode, errors.KindUnsupported).
			Path(path...).
			GoType(rv.Type().String()).
			Detail("no engine representation for Go kind %s", rv.Kind()).
			Build()
	}
}

func (e *encoder) encodeSequence(rv reflect.Value, path []string, depth int) (lua.LValue, error) {
	n := rv.Len()
	tbl := e.c.ls.CreateTable(n, 0)
	for i := 0; i < n; i++ {
		ev, err := e.encode(rv.Index(i).Interface(), extend(path, strconv.Itoa(i+1)), depth+1)
		if err != nil {
			return nil, err
		}
		tbl.RawSetInt(i+1, ev)
	}
	if e.opts.SetArrayMetatable {
		tbl.Metatable = e.c.arrayMT
	}
	return tbl, nil
}

func (e *encoder) encodeMap(rv reflect.Value, path []string, depth int) (lua.LValue, error) {
	tbl := e.c.ls.CreateTable(0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		for k.Kind() == reflect.Interface {
			if k.IsNil() {
				return nil, errors.Unsupported(errors.PhaseEncode, path, "nil map key")
			}
			k = k.Elem()
		}

		var key lua.LValue
		var keyName string
		switch k.Kind() {
		case reflect.String:
			keyName = k.String()
			key = lua.LString(keyName)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			keyName = strconv.FormatInt(k.Int(), 10)
			key = lua.LNumber(k.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			keyName = strconv.FormatUint(k.Uint(), 10)
			key = lua.LNumber(k.Uint())
		default:
			return nil, errors.New(errors.PhaseEncode, errors.KindUnsupported).
				Path(path...).
				GoType(k.Type().String()).
				Detail("map keys must be strings or integers").
				Build()
		}

		ev, err := e.encode(iter.Value().Interface(), extend(path, keyName), depth+1)
		if err != nil {
			return nil, err
		}
		tbl.RawSet(key, ev)
	}
	return tbl, nil
}

func (e *encoder) encodeStruct(rv reflect.Value, path []string, depth int) (lua.LValue, error) {
	fields := cachedFields(rv.Type())
	tbl := e.c.ls.CreateTable(0, len(fields))
	for _, f := range fields {
		fv, ok := fieldByIndex(rv, f.index)
		if !ok {
			continue // nil embedded pointer
		}
		ev, err := e.encode(fv.Interface(), extend(path, f.name), depth+1)
		if err != nil {
			return nil, err
		}
		tbl.RawSetString(f.name, ev)
	}
	return tbl, nil
}

// luaTypeName names an engine value's type for error context.
func luaTypeName(v lua.LValue) string {
	if v == nil {
		return "nil"
	}
	return v.Type().String()
}
