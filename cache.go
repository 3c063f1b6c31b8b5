package apistub

import (
	"reflect"
	"sync"
)

// TypeCache memoizes per-type and per-template work shared by all calls on
// a RequestBuilder. It is safe for concurrent use; when two calls race to
// fill the same key the first stored value wins and both calls observe it.
type TypeCache struct {
	m sync.Map
}

// NewTypeCache returns an empty cache.
func NewTypeCache() *TypeCache {
	return &TypeCache{}
}

// Load returns the cached value for key.
func (c *TypeCache) Load(key any) (any, bool) {
	return c.m.Load(key)
}

// LoadOrStore returns the cached value for key, computing it with fn on a miss.
// fn may run more than once under contention; only one result is kept.
func (c *TypeCache) LoadOrStore(key any, fn func() any) any {
	if v, ok := c.m.Load(key); ok {
		return v
	}
	v, _ := c.m.LoadOrStore(key, fn())
	return v
}

// Len returns the number of cached entries.
func (c *TypeCache) Len() int {
	n := 0
	c.m.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

type templateKey string

type templateEntry struct {
	t   *Template
	err error
}

func (c *TypeCache) template(path string) (*Template, error) {
	e := c.LoadOrStore(templateKey(path), func() any {
		t, err := ParseTemplate(path)
		return templateEntry{t: t, err: err}
	}).(templateEntry)
	return e.t, e.err
}

type fieldsKey struct {
	t          reflect.Type
	serializer reflect.Type
}

// field is an exported struct field with its resolved wire name.
type field struct {
	index []int
	name  string
}

// fields returns the flattenable fields of struct type t, named by s.
func (c *TypeCache) fields(t reflect.Type, s ContentSerializer) []field {
	key := fieldsKey{t: t, serializer: reflect.TypeOf(s)}
	return c.LoadOrStore(key, func() any {
		var out []field
		for _, f := range reflect.VisibleFields(t) {
			if !f.IsExported() || f.Anonymous {
				continue
			}
			name := s.FieldName(f)
			if name == "-" {
				continue
			}
			if name == "" {
				name = f.Name
			}
			out = append(out, field{index: f.Index, name: name})
		}
		return out
	}).([]field)
}
