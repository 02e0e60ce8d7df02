// Package reflector names Go types for use as fallback event type tags.
package reflector

import (
	"reflect"
	"sync"
)

var names sync.Map // reflect.Type -> string

// TypeName returns "<pkgpath>.<name>" of v's type, dereferencing one pointer
// level. Predeclared types have no package path; unnamed types and nil yield "".
func TypeName(v any) string {
	return NameOf(reflect.TypeOf(v))
}

// TypeNameFor is TypeName for a type parameter.
func TypeNameFor[T any]() string {
	return NameOf(reflect.TypeFor[T]())
}

func NameOf(t reflect.Type) string {
	if t == nil {
		return ""
	}
	if n, ok := names.Load(t); ok {
		return n.(string)
	}

	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	name := base.Name()
	if name != "" && base.PkgPath() != "" {
		name = base.PkgPath() + "." + name
	}
	names.Store(t, name)
	return name
}
