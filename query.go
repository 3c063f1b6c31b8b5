package apistub

import (
	"net/url"
	"reflect"
	"slices"
	"strings"
)

// URLEscaping selects how query keys and values are escaped.
type URLEscaping int

const (
	// EscapeDataString percent-encodes everything outside the unreserved set.
	EscapeDataString URLEscaping = iota
	// EscapeNone writes keys and values as given.
	EscapeNone
)

// queryPair is one key=value entry. Order is preserved.
type queryPair struct {
	key, value string
}

// flattener turns query arguments into ordered key/value pairs.
type flattener struct {
	cache      *TypeCache
	serializer ContentSerializer
	formatter  URLFormatter
	collection CollectionFormat // builder default
	pairs      []queryPair
}

// add appends value under key using the binding's format and collection policy.
// Nil values are omitted.
func (f *flattener) add(key string, p Param, value any) {
	rv, ok := indirect(reflect.ValueOf(value))
	if !ok {
		return
	}
	f.addValue(key, p, rv)
}

func (f *flattener) addValue(key string, p Param, rv reflect.Value) {
	t := rv.Type()
	if isScalar(t) {
		f.pairs = append(f.pairs, queryPair{key, f.formatter.FormatValue(rv.Interface(), p.Format)})
		return
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		f.addCollection(key, p, rv)
	case reflect.Map:
		keys := rv.MapKeys()
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = f.formatter.FormatValue(k.Interface(), "")
		}
		order := make([]int, len(keys))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int { return strings.Compare(names[a], names[b]) })
		for _, i := range order {
			if ev, ok := indirect(rv.MapIndex(keys[i])); ok {
				f.addValue(f.join(key, names[i], p), p, ev)
			}
		}
	case reflect.Struct:
		for _, fd := range f.cache.fields(t, f.serializer) {
			fv, err := rv.FieldByIndexErr(fd.index)
			if err != nil {
				continue
			}
			if ev, ok := indirect(fv); ok {
				f.addValue(f.join(key, fd.name, p), p, ev)
			}
		}
	}
}

func (f *flattener) addCollection(key string, p Param, rv reflect.Value) {
	format := p.Collection
	if format == CollectionDefault {
		format = f.collection
	}
	values := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ev, ok := indirect(rv.Index(i))
		if !ok {
			continue
		}
		values = append(values, f.formatter.FormatValue(ev.Interface(), p.Format))
	}
	if len(values) == 0 {
		return
	}
	if sep, ok := format.separator(); ok {
		f.pairs = append(f.pairs, queryPair{key, strings.Join(values, sep)})
		return
	}
	if format == CollectionBrackets {
		key += "[]"
	}
	for _, v := range values {
		f.pairs = append(f.pairs, queryPair{key, v})
	}
}

// join nests name under prefix with the binding's delimiter.
func (f *flattener) join(prefix, name string, p Param) string {
	if prefix == "" {
		return name
	}
	delim := p.Delimiter
	if delim == "" {
		delim = "."
	}
	return prefix + delim + name
}

// encodeQuery appends pairs to an existing raw query.
func encodeQuery(existing string, pairs []queryPair, mode URLEscaping) string {
	var b strings.Builder
	b.WriteString(existing)
	for _, kv := range pairs {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeQuery(kv.key, mode))
		b.WriteByte('=')
		b.WriteString(escapeQuery(kv.value, mode))
	}
	return b.String()
}

// encodeFormPairs encodes pairs like url.Values.Encode without sorting them.
func encodeFormPairs(pairs []queryPair) string {
	var b strings.Builder
	for i, kv := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.value))
	}
	return b.String()
}

func escapeQuery(s string, mode URLEscaping) string {
	if mode == EscapeNone {
		return s
	}
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// queryKey returns the key prefix for a query binding. Scalars and
// collections use the wire name; structs and maps use the declared prefix.
func queryKey(p Param, rv reflect.Value) string {
	t := rv.Type()
	if !isScalar(t) && (t.Kind() == reflect.Struct || t.Kind() == reflect.Map) {
		return p.Prefix
	}
	return p.WireName()
}
