package apistub

import (
	"fmt"
	"net/url"
	"reflect"

	"github.com/gorilla/schema"
)

// FormFormatter turns a body value into url-encoded form fields.
type FormFormatter interface {
	FormatForm(v any) (url.Values, error)
}

// DefaultFormFormatter flattens structs and maps the same way query
// parameters are flattened, naming fields with the serializer.
type DefaultFormFormatter struct {
	Serializer ContentSerializer
	Formatter  URLFormatter
	Collection CollectionFormat
	cache      *TypeCache
}

// OrderedFormFormatter is a FormFormatter that also encodes a body
// directly, keeping fields in declaration order.
type OrderedFormFormatter interface {
	FormFormatter
	EncodeForm(v any) (string, error)
}

var _ OrderedFormFormatter = DefaultFormFormatter{}

func (d DefaultFormFormatter) FormatForm(v any) (url.Values, error) {
	pairs, err := d.pairs(v)
	if err != nil {
		return nil, err
	}
	out := make(url.Values, len(pairs))
	for _, kv := range pairs {
		out.Add(kv.key, kv.value)
	}
	return out, nil
}

// EncodeForm returns the application/x-www-form-urlencoded form of v.
func (d DefaultFormFormatter) EncodeForm(v any) (string, error) {
	pairs, err := d.pairs(v)
	if err != nil {
		return "", err
	}
	return encodeFormPairs(pairs), nil
}

func (d DefaultFormFormatter) pairs(v any) ([]queryPair, error) {
	rv, ok := indirect(reflect.ValueOf(v))
	if !ok {
		return nil, nil
	}
	if isScalar(rv.Type()) || (rv.Kind() != reflect.Struct && rv.Kind() != reflect.Map) {
		return nil, fmt.Errorf("form body must be a struct or map, got %s", rv.Type())
	}
	f := &flattener{
		cache:      d.cache,
		serializer: d.Serializer,
		formatter:  d.Formatter,
		collection: d.Collection,
	}
	if f.cache == nil {
		f.cache = NewTypeCache()
	}
	if f.serializer == nil {
		f.serializer = JSONSerializer{}
	}
	if f.formatter == nil {
		f.formatter = DefaultURLFormatter{}
	}
	if f.collection == CollectionDefault {
		f.collection = CollectionMulti
	}
	f.addValue("", Param{}, rv)
	return f.pairs, nil
}

// SchemaFormFormatter encodes structs with gorilla/schema, so form bodies
// use the same tags a gorilla/schema server decodes.
type SchemaFormFormatter struct {
	encoder *schema.Encoder
}

// NewSchemaFormFormatter returns a formatter reading field names from tag
// ("schema" when empty).
func NewSchemaFormFormatter(tag string) *SchemaFormFormatter {
	enc := schema.NewEncoder()
	if tag != "" {
		enc.SetAliasTag(tag)
	}
	return &SchemaFormFormatter{encoder: enc}
}

func (s *SchemaFormFormatter) FormatForm(v any) (url.Values, error) {
	rv, ok := indirect(reflect.ValueOf(v))
	if !ok {
		return url.Values{}, nil
	}
	if rv.Kind() == reflect.Map {
		return DefaultFormFormatter{}.FormatForm(v)
	}
	out := url.Values{}
	if err := s.encoder.Encode(rv.Interface(), out); err != nil {
		return nil, err
	}
	return out, nil
}
