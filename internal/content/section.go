package content

import "reflect"

// Section is one arbitrarily nested, JSON-representable block of a page.
type Section map[string]any

// CloneSections returns a structural deep copy of sections.
// Snapshots rely on this so stored history never aliases live documents.
func CloneSections(sections []Section) []Section {
	if sections == nil {
		return nil
	}
	out := make([]Section, len(sections))
	for i, s := range sections {
		out[i] = CloneSection(s)
	}
	return out
}

// CloneSection returns a structural deep copy of s.
func CloneSection(s Section) Section {
	if s == nil {
		return nil
	}
	out := make(Section, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Section:
		return CloneSection(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case map[any]any:
		out := make(map[any]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	case []Section:
		return CloneSections(t)
	case []string:
		return append([]string(nil), t...)
	case nil:
		return nil
	default:
		return cloneReflect(reflect.ValueOf(v)).Interface()
	}
}

// cloneReflect copies typed containers such as []map[string]any or
// map[string]string that the fast paths above do not name.
func cloneReflect(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value(), rv.Type().Elem()))
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneElem(rv.Index(i), rv.Type().Elem()))
		}
		return out
	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneElem(rv.Index(i), rv.Type().Elem()))
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Type().Elem())
		out.Elem().Set(cloneReflect(rv.Elem()))
		return out
	default:
		return rv
	}
}

func cloneElem(v reflect.Value, elem reflect.Type) reflect.Value {
	if elem.Kind() != reflect.Interface {
		return cloneReflect(v)
	}
	if v.IsNil() {
		return reflect.Zero(elem)
	}
	return reflect.ValueOf(cloneValue(v.Interface()))
}
