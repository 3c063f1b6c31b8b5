package apistub

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// URLFormatter turns a path or query argument into its string form.
// Format is the optional format string declared on the parameter.
type URLFormatter interface {
	FormatValue(v any, format string) string
}

// URLFormatterFunc adapts a function to URLFormatter.
type URLFormatterFunc func(v any, format string) string

func (f URLFormatterFunc) FormatValue(v any, format string) string { return f(v, format) }

// DefaultURLFormatter formats values with these rules:
//   - time.Time uses format as a layout, RFC 3339 by default
//   - a format containing '%' is passed to fmt.Sprintf
//   - fmt.Stringer and encoding.TextMarshaler are honored
//   - bool, integer and float kinds use strconv
type DefaultURLFormatter struct{}

func (DefaultURLFormatter) FormatValue(v any, format string) string {
	if t, ok := v.(time.Time); ok {
		if format == "" {
			format = time.RFC3339
		}
		return t.Format(format)
	}
	if strings.Contains(format, "%") {
		return fmt.Sprintf(format, v)
	}
	switch x := textMarshalerOf(v).(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case encoding.TextMarshaler:
		if b, err := x.MarshalText(); err == nil {
			return string(b)
		}
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// textMarshalerOf returns a pointer to a copy of v when only *T implements
// encoding.TextMarshaler, so the method is honored for plain values.
func textMarshalerOf(v any) any {
	t := reflect.TypeOf(v)
	if t == nil || t.Kind() == reflect.Pointer || t.Implements(textMarshalerType) {
		return v
	}
	if !reflect.PointerTo(t).Implements(textMarshalerType) {
		return v
	}
	p := reflect.New(t)
	p.Elem().Set(reflect.ValueOf(v))
	return p.Interface()
}

// isScalar reports whether t is formatted as a single value rather than
// flattened field by field or element by element.
func isScalar(t reflect.Type) bool {
	if t == timeType {
		return true
	}
	if t.Implements(stringerType) || t.Implements(textMarshalerType) {
		return true
	}
	if reflect.PointerTo(t).Implements(textMarshalerType) && t.Kind() == reflect.Struct {
		return true
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
	}
	return true
}

var (
	timeType          = reflect.TypeFor[time.Time]()
	stringerType      = reflect.TypeFor[fmt.Stringer]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// indirect follows pointers and interfaces. ok is false for nil.
func indirect(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}

// isNil reports whether v is an untyped nil or a nil pointer, map, slice,
// interface, func or chan.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
