package apistub

import (
	"fmt"
	"strings"
)

// Role describes how a method parameter contributes to the outgoing request.
type Role int

const (
	RoleQuery            Role = iota // query string value (the fallback role)
	RolePath                         // substituted into a {placeholder}
	RoleHeader                       // single dynamic header
	RoleHeaderCollection             // map of dynamic headers
	RoleAuthorize                    // Authorization header with a scheme
	RoleBody                         // request content
	RoleProperty                     // raw entry in the request property bag
	RoleContext                      // cancellation signal, never sent
	RoleTypeWitness                  // runtime type token for a type parameter
	RolePart                         // multipart/form-data part
)

var roleNames = [...]string{
	RoleQuery:            "query",
	RolePath:             "path",
	RoleHeader:           "header",
	RoleHeaderCollection: "headers",
	RoleAuthorize:        "authorize",
	RoleBody:             "body",
	RoleProperty:         "property",
	RoleContext:          "context",
	RoleTypeWitness:      "witness",
	RolePart:             "part",
}

func (r Role) String() string {
	if r >= 0 && int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// BodyMethod selects how a body parameter is turned into request content.
type BodyMethod int

const (
	BodyDefault    BodyMethod = iota // strings pass through, everything else is serialized
	BodyJSON                         // always encoding/json
	BodyForm                         // application/x-www-form-urlencoded
	BodySerialized                   // the builder's ContentSerializer
)

var bodyMethodNames = [...]string{
	BodyDefault:    "default",
	BodyJSON:       "json",
	BodyForm:       "form",
	BodySerialized: "serialized",
}

func (m BodyMethod) String() string {
	if m >= 0 && int(m) < len(bodyMethodNames) {
		return bodyMethodNames[m]
	}
	return fmt.Sprintf("BodyMethod(%d)", int(m))
}

func (m BodyMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ParseBodyMethod parses the name used in //apistub:body directives.
func ParseBodyMethod(s string) (BodyMethod, bool) {
	for i, name := range bodyMethodNames {
		if strings.EqualFold(s, name) {
			return BodyMethod(i), true
		}
	}
	return BodyDefault, false
}

// CollectionFormat is the policy for encoding a multi-valued query parameter.
type CollectionFormat int

const (
	CollectionDefault  CollectionFormat = iota // defer to the builder setting
	CollectionCSV                              // a=1,2,3
	CollectionSSV                              // a=1 2 3
	CollectionTSV                              // a=1\t2\t3
	CollectionPipes                            // a=1|2|3
	CollectionMulti                            // a=1&a=2&a=3
	CollectionBrackets                         // a[]=1&a[]=2&a[]=3
)

var collectionNames = [...]string{
	CollectionDefault:  "default",
	CollectionCSV:      "csv",
	CollectionSSV:      "ssv",
	CollectionTSV:      "tsv",
	CollectionPipes:    "pipes",
	CollectionMulti:    "multi",
	CollectionBrackets: "brackets",
}

func (c CollectionFormat) String() string {
	if c >= 0 && int(c) < len(collectionNames) {
		return collectionNames[c]
	}
	return fmt.Sprintf("CollectionFormat(%d)", int(c))
}

func (c CollectionFormat) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// ParseCollectionFormat parses a collection format name such as "csv" or "multi".
func ParseCollectionFormat(s string) (CollectionFormat, bool) {
	for i, name := range collectionNames {
		if strings.EqualFold(s, name) {
			return CollectionFormat(i), true
		}
	}
	return CollectionDefault, false
}

// separator returns the join separator for delimited formats.
func (c CollectionFormat) separator() (string, bool) {
	switch c {
	case CollectionCSV:
		return ",", true
	case CollectionSSV:
		return " ", true
	case CollectionTSV:
		return "\t", true
	case CollectionPipes:
		return "|", true
	}
	return "", false
}

// Header is a static header attached to every request of a method.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Param binds one method parameter to a part of the request.
type Param struct {
	Name       string           `json:"name"`
	Role       Role             `json:"role"`
	Key        string           `json:"key,omitempty"` // alias, header name, property key or part name
	Type       string           `json:"type"`
	Nullable   bool             `json:"nullable,omitempty"`
	Format     string           `json:"format,omitempty"`
	Collection CollectionFormat `json:"collection,omitempty"`
	Prefix     string           `json:"prefix,omitempty"`
	Delimiter  string           `json:"delimiter,omitempty"`
	Body       BodyMethod       `json:"body,omitempty"`
	Streamed   bool             `json:"streamed,omitempty"`
	Scheme     string           `json:"scheme,omitempty"`
}

// WireName returns the alias if one is declared, otherwise the parameter name.
func (p Param) WireName() string {
	if p.Key != "" {
		return p.Key
	}
	return p.Name
}

// ShapeKind classifies how a response is handed back to the caller.
type ShapeKind int

const (
	ShapeFireAndForget ShapeKind = iota // error only
	ShapeValue                          // (T, error)
	ShapeEnvelope                       // (Response[T], error)
	ShapeRaw                            // (*http.Response, error)
	ShapeStream                         // iter.Seq2[T, error]
)

var shapeNames = [...]string{
	ShapeFireAndForget: "fire-and-forget",
	ShapeValue:         "value",
	ShapeEnvelope:      "envelope",
	ShapeRaw:           "raw",
	ShapeStream:        "stream",
}

func (k ShapeKind) String() string {
	if k >= 0 && int(k) < len(shapeNames) {
		return shapeNames[k]
	}
	return fmt.Sprintf("ShapeKind(%d)", int(k))
}

func (k ShapeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ReturnShape is the classified return type of a method.
type ReturnShape struct {
	Kind    ShapeKind `json:"kind"`
	Type    string    `json:"type,omitempty"`    // T for value, envelope and stream shapes
	Pointer bool      `json:"pointer,omitempty"` // envelope returned as *Response[T]
}

// TypeParam is a type parameter of a generic interface.
type TypeParam struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
}

// RequestDescriptor is the resolved description of one interface method.
// Descriptors are created once and shared read-only by every call.
type RequestDescriptor struct {
	Interface  string      `json:"interface"`
	Method     string      `json:"method"`
	Verb       string      `json:"verb"`
	Path       string      `json:"path"`
	Headers    []Header    `json:"headers,omitempty"`
	Params     []Param     `json:"params,omitempty"`
	Return     ReturnShape `json:"return"`
	TypeParams []TypeParam `json:"typeParams,omitempty"`
	Multipart  bool        `json:"multipart,omitempty"`
	Boundary   string      `json:"boundary,omitempty"`
}

// Name returns "Interface.Method".
func (d *RequestDescriptor) Name() string {
	return d.Interface + "." + d.Method
}

// BodyIndex returns the index of the body parameter, or -1.
// It panics if more than one parameter has the body role.
func (d *RequestDescriptor) BodyIndex() int {
	idx := -1
	for i, p := range d.Params {
		if p.Role != RoleBody {
			continue
		}
		if idx >= 0 {
			panic(fmt.Sprintf("apistub: %s declares more than one body parameter", d.Name()))
		}
		idx = i
	}
	return idx
}
