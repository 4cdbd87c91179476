package transcoder

import (
	"math"
	"reflect"
	"strconv"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-bridge/errors"
	"github.com/wippyai/lua-bridge/internal/udata"
)

var (
	luaValueType = reflect.TypeOf((*lua.LValue)(nil)).Elem()
	timeType     = reflect.TypeOf((*time.Time)(nil)).Elem()
	durationType = reflect.TypeOf((*time.Duration)(nil)).Elem()
)

// Decode translates an engine value into the Go value target points to,
// using default options.
func (c *Converter) Decode(lv lua.LValue, target any) error {
	return c.DecodeWith(lv, target, DefaultDecodeOptions())
}

// DecodeWith translates an engine value into the Go value target points to.
func (c *Converter) DecodeWith(lv lua.LValue, target any, opts DecodeOptions) error {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.InvalidInput(errors.PhaseDecode, "decode target must be a non-nil pointer")
	}
	d := decoder{c: c, opts: opts}
	return d.decode(lv, rv.Elem(), nil, 0)
}

type decoder struct {
	c    *Converter
	opts DecodeOptions
}

func (d *decoder) mismatch(lv lua.LValue, dst reflect.Type, path []string, detail string) error {
	b := errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
		Path(path...).
		GoType(dst.String()).
		LuaType(luaTypeName(lv))
	if detail != "" {
		b = b.Detail(detail)
	}
	return b.Build()
}

func (d *decoder) unsupported(lv lua.LValue, dst reflect.Value, path []string) error {
	if d.opts.Permissive {
		dst.SetZero()
		return nil
	}
	return errors.New(errors.PhaseDecode, errors.KindUnsupported).
		Path(path...).
		GoType(dst.Type().String()).
		LuaType(luaTypeName(lv)).
		Detail("no host representation").
		Build()
}

func (d *decoder) decode(lv lua.LValue, dst reflect.Value, path []string, depth int) error {
	if depth > d.opts.MaxDepth {
		return errors.DepthExceeded(errors.PhaseDecode, path, d.opts.MaxDepth)
	}

	// Absence maps to the zero value regardless of target shape.
	if lv == lua.LNil || d.c.IsNull(lv) {
		dst.SetZero()
		return nil
	}

	// Raw engine-value targets take the value untouched.
	if dst.Type() == luaValueType {
		dst.Set(reflect.ValueOf(lv))
		return nil
	}
	if dst.Kind() != reflect.Interface && dst.Type().Implements(luaValueType) {
		rv := reflect.ValueOf(lv)
		if !rv.Type().AssignableTo(dst.Type()) {
			return d.mismatch(lv, dst.Type(), path, "")
		}
		dst.Set(rv)
		return nil
	}

	switch dst.Type() {
	case timeType:
		return d.decodeTime(lv, dst, path)
	case durationType:
		n, ok := lv.(lua.LNumber)
		if !ok {
			return d.mismatch(lv, dst.Type(), path, "duration wants seconds")
		}
		dst.SetInt(int64(float64(n) * float64(time.Second)))
		return nil
	}

	switch dst.Kind() {
	case reflect.Pointer:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return d.decode(lv, dst.Elem(), path, depth)

	case reflect.Interface:
		if dst.Type().NumMethod() != 0 {
			return d.mismatch(lv, dst.Type(), path, "cannot decode into non-empty interface")
		}
		v, err := d.dynamic(lv, path, depth)
		if err != nil {
			return err
		}
		if v == nil {
			dst.SetZero()
		} else {
			dst.Set(reflect.ValueOf(v))
		}
		return nil

	case reflect.Bool:
		b, ok := lv.(lua.LBool)
		if !ok {
			return d.mismatch(lv, dst.Type(), path, "")
		}
		dst.SetBool(bool(b))
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, err := d.number(lv, dst.Type(), path)
		if err != nil {
			return err
		}
		if !isIntegral(f) {
			return d.mismatch(lv, dst.Type(), path, "number is not an integer")
		}
		i := int64(f)
		if dst.OverflowInt(i) {
			return d.mismatch(lv, dst.Type(), path, "value "+strconv.FormatInt(i, 10)+" overflows target")
		}
		dst.SetInt(i)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		f, err := d.number(lv, dst.Type(), path)
		if err != nil {
			return err
		}
		if !isIntegral(f) || f < 0 {
			return d.mismatch(lv, dst.Type(), path, "number is not a non-negative integer")
		}
		u := uint64(f)
		if dst.OverflowUint(u) {
			return d.mismatch(lv, dst.Type(), path, "value "+strconv.FormatUint(u, 10)+" overflows target")
		}
		dst.SetUint(u)
		return nil

	case reflect.Float32, reflect.Float64:
		f, err := d.number(lv, dst.Type(), path)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
		return nil

	case reflect.String:
		s, ok := lv.(lua.LString)
		if !ok {
			return d.mismatch(lv, dst.Type(), path, "")
		}
		dst.SetString(string(s))
		return nil

	case reflect.Slice:
		return d.decodeSlice(lv, dst, path, depth)

	case reflect.Array:
		return d.decodeArray(lv, dst, path, depth)

	case reflect.Map:
		return d.decodeMap(lv, dst, path, depth)

	case reflect.Struct:
		return d.decodeStruct(lv, dst, path, depth)

	default:
		return d.unsupported(lv, dst, path)
	}
}

func (d *decoder) number(lv lua.LValue, dst reflect.Type, path []string) (float64, error) {
	n, ok := lv.(lua.LNumber)
	if !ok {
		return 0, d.mismatch(lv, dst, path, "")
	}
	return float64(n), nil
}

func (d *decoder) decodeTime(lv lua.LValue, dst reflect.Value, path []string) error {
	switch v := lv.(type) {
	case lua.LString:
		t, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
				Path(path...).
				GoType("time.Time").
				LuaType("string").
				Detail("not an RFC 3339 timestamp").
				Cause(err).
				Build()
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	case lua.LNumber:
		sec, frac := math.Modf(float64(v))
		dst.Set(reflect.ValueOf(time.Unix(int64(sec), int64(frac*float64(time.Second)))))
		return nil
	default:
		return d.mismatch(lv, dst.Type(), path, "time wants an RFC 3339 string or epoch seconds")
	}
}

func (d *decoder) decodeSlice(lv lua.LValue, dst reflect.Value, path []string, depth int) error {
	// []byte accepts engine strings and buffer userdata.
	if dst.Type().Elem().Kind() == reflect.Uint8 {
		switch v := lv.(type) {
		case lua.LString:
			dst.SetBytes([]byte(v))
			return nil
		case *lua.LUserData:
			if box, ok := udata.Unwrap(v); ok && box.Sub == udata.SubtypeBuffer {
				b, err := bufferBytes(box)
				if err != nil {
					return err
				}
				dst.SetBytes(b)
				return nil
			}
		}
		return d.mismatch(lv, dst.Type(), path, "")
	}

	tbl, ok := lv.(*lua.LTable)
	if !ok {
		return d.mismatch(lv, dst.Type(), path, "")
	}

	out := reflect.MakeSlice(dst.Type(), 0, 8)
	for i := 1; ; i++ {
		ev := tbl.RawGetInt(i)
		if ev == lua.LNil {
			break
		}
		elem := reflect.New(dst.Type().Elem()).Elem()
		if err := d.decode(ev, elem, extend(path, strconv.Itoa(i)), depth+1); err != nil {
			return err
		}
		out = reflect.Append(out, elem)
	}
	dst.Set(out)
	return nil
}

func (d *decoder) decodeArray(lv lua.LValue, dst reflect.Value, path []string, depth int) error {
	tbl, ok := lv.(*lua.LTable)
	if !ok {
		return d.mismatch(lv, dst.Type(), path, "")
	}

	n := dst.Len()
	for i := 0; i < n; i++ {
		ev := tbl.RawGetInt(i + 1)
		if ev == lua.LNil {
			return d.mismatch(lv, dst.Type(), path,
				"sequence shorter than array length "+strconv.Itoa(n))
		}
		if err := d.decode(ev, dst.Index(i), extend(path, strconv.Itoa(i+1)), depth+1); err != nil {
			return err
		}
	}
	if tbl.RawGetInt(n+1) != lua.LNil {
		return d.mismatch(lv, dst.Type(), path,
			"sequence longer than array length "+strconv.Itoa(n))
	}
	return nil
}

func (d *decoder) decodeMap(lv lua.LValue, dst reflect.Value, path []string, depth int) error {
	tbl, ok := lv.(*lua.LTable)
	if !ok {
		return d.mismatch(lv, dst.Type(), path, "")
	}

	out := reflect.MakeMap(dst.Type())
	keyType := dst.Type().Key()

	var ferr error
	tbl.ForEach(func(k, v lua.LValue) {
		if ferr != nil {
			return
		}
		key := reflect.New(keyType).Elem()
		if err := d.decode(k, key, extend(path, lua.LVAsString(k)), depth+1); err != nil {
			if d.opts.Permissive {
				return // skip entries whose keys have no host shape
			}
			ferr = err
			return
		}
		val := reflect.New(dst.Type().Elem()).Elem()
		if err := d.decode(v, val, extend(path, lua.LVAsString(k)), depth+1); err != nil {
			ferr = err
			return
		}
		out.SetMapIndex(key, val)
	})
	if ferr != nil {
		return ferr
	}
	dst.Set(out)
	return nil
}

func (d *decoder) decodeStruct(lv lua.LValue, dst reflect.Value, path []string, depth int) error {
	tbl, ok := lv.(*lua.LTable)
	if !ok {
		return d.mismatch(lv, dst.Type(), path, "")
	}

	for _, f := range cachedFields(dst.Type()) {
		ev := tbl.RawGetString(f.name)
		if ev == lua.LNil {
			continue // absent keys leave the zero value
		}
		fv := fieldByIndexAlloc(dst, f.index)
		if err := d.decode(ev, fv, extend(path, f.name), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func bufferBytes(box *udata.Box) ([]byte, error) {
	ref, err := box.Cell.TryBorrow()
	if err != nil {
		return nil, err
	}
	defer ref.Release()
	src := *ref.Value().(*[]byte)
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

func isIntegral(f float64) bool {
	return f == math.Trunc(f) && f >= -9223372036854775808.0 && f < 9223372036854775808.0
}
