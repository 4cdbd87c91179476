package transcoder

import (
	"reflect"
	"strings"
	"sync"
)

// fieldInfo describes one encodable struct field after tag resolution and
// embedded-field flattening.
type fieldInfo struct {
	name  string
	index []int
}

var structFields sync.Map // reflect.Type -> []fieldInfo

// cachedFields returns the visible fields of a struct type. Anonymous
// embedded structs are flattened breadth-first, so shallower fields shadow
// deeper ones of the same name, matching the stdlib marshaling rule.
func cachedFields(t reflect.Type) []fieldInfo {
	if v, ok := structFields.Load(t); ok {
		return v.([]fieldInfo)
	}
	fields := collectFields(t)
	structFields.Store(t, fields)
	return fields
}

type fieldScan struct {
	typ   reflect.Type
	index []int
}

func collectFields(root reflect.Type) []fieldInfo {
	var out []fieldInfo
	seen := map[string]bool{}
	visited := map[reflect.Type]bool{}
	level := []fieldScan{{typ: root}}

	for len(level) > 0 {
		var next []fieldScan
		for _, scan := range level {
			if visited[scan.typ] {
				continue
			}
			visited[scan.typ] = true

			for i := 0; i < scan.typ.NumField(); i++ {
				f := scan.typ.Field(i)
				if f.PkgPath != "" {
					continue // unexported
				}

				tag := f.Tag.Get("lua")
				if tag == "-" {
					continue
				}
				name, _, _ := strings.Cut(tag, ",")

				index := make([]int, len(scan.index)+1)
				copy(index, scan.index)
				index[len(scan.index)] = i

				if f.Anonymous && name == "" {
					ft := f.Type
					if ft.Kind() == reflect.Pointer {
						ft = ft.Elem()
					}
					if ft.Kind() == reflect.Struct {
						next = append(next, fieldScan{typ: ft, index: index})
						continue
					}
				}

				if name == "" {
					name = f.Name
				}
				if seen[name] {
					continue
				}
				seen[name] = true
				out = append(out, fieldInfo{name: name, index: index})
			}
		}
		level = next
	}
	return out
}

// fieldByIndex walks an index path, reporting false when a nil embedded
// pointer interrupts it.
func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for _, i := range index {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v, true
}

// fieldByIndexAlloc walks an index path for writing, allocating nil
// embedded pointers along the way.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for _, i := range index {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v
}
