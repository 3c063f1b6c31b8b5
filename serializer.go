package apistub

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"reflect"
	"strings"
)

// Content is a serialized request payload.
type Content struct {
	ContentType string
	Body        io.Reader
	// Length is the body size in bytes, or -1 when unknown.
	Length int64

	encodeErr chan error // streamed bodies only
}

// encodeError returns the error of a streamed body's writer, if it failed.
func (c *Content) encodeError() error {
	if c == nil || c.encodeErr == nil {
		return nil
	}
	select {
	case err := <-c.encodeErr:
		c.encodeErr <- err
		return err
	default:
		return nil
	}
}

// abort unblocks the writer of a streamed body that will never be read.
func (c *Content) abort(err error) {
	if c == nil || c.encodeErr == nil {
		return
	}
	if pr, ok := c.Body.(*io.PipeReader); ok {
		pr.CloseWithError(err)
	}
}

// ContentSerializer converts between values and wire-format bodies.
type ContentSerializer interface {
	// ContentType is the media type produced by ToRequestContent.
	ContentType() string

	// ToRequestContent serializes v into a buffered payload.
	ToRequestContent(v any) (*Content, error)

	// FromResponseContent decodes r into v, which must be a pointer.
	// An empty body leaves v untouched and returns nil.
	FromResponseContent(ctx context.Context, r io.Reader, v any) error

	// FieldName returns the on-wire name of a struct field, "" to fall back
	// to the Go field name, or "-" when the field is never serialized.
	FieldName(f reflect.StructField) string
}

// StreamingSerializer is implemented by serializers that can write a value
// directly to a writer. It is used for bodies marked as streamed.
type StreamingSerializer interface {
	ContentSerializer
	Encode(w io.Writer, v any) error
}

// ValueDecoder reads successive values from one body.
type ValueDecoder interface {
	// Decode reads the next value into v. It returns io.EOF after the last one.
	Decode(v any) error
}

// SequenceSerializer is a ContentSerializer that can read a body holding
// several concatenated values, as streamed responses do.
type SequenceSerializer interface {
	ContentSerializer
	NewDecoder(r io.Reader) ValueDecoder
}

// JSONSerializer is the default ContentSerializer, backed by encoding/json.
type JSONSerializer struct {
	// DisallowUnknownFields rejects response fields missing from the target.
	DisallowUnknownFields bool
}

var (
	_ StreamingSerializer = JSONSerializer{}
	_ SequenceSerializer  = JSONSerializer{}
)

func (JSONSerializer) ContentType() string { return "application/json; charset=utf-8" }

func (s JSONSerializer) ToRequestContent(v any) (*Content, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf, v); err != nil {
		return nil, err
	}
	return &Content{ContentType: s.ContentType(), Body: &buf, Length: int64(buf.Len())}, nil
}

func (JSONSerializer) Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (s JSONSerializer) FromResponseContent(ctx context.Context, r io.Reader, v any) error {
	br, empty := peekEmpty(ctx, r)
	if empty {
		return nil
	}
	dec := json.NewDecoder(br)
	if s.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}

func (s JSONSerializer) NewDecoder(r io.Reader) ValueDecoder {
	dec := json.NewDecoder(r)
	if s.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	return dec
}

func (JSONSerializer) FieldName(f reflect.StructField) string {
	return tagName(f.Tag.Get("json"))
}

// XMLSerializer encodes bodies with encoding/xml.
type XMLSerializer struct{}

var (
	_ StreamingSerializer = XMLSerializer{}
	_ SequenceSerializer  = XMLSerializer{}
)

func (XMLSerializer) ContentType() string { return "application/xml; charset=utf-8" }

func (s XMLSerializer) ToRequestContent(v any) (*Content, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf, v); err != nil {
		return nil, err
	}
	return &Content{ContentType: s.ContentType(), Body: &buf, Length: int64(buf.Len())}, nil
}

func (XMLSerializer) Encode(w io.Writer, v any) error {
	return xml.NewEncoder(w).Encode(v)
}

func (XMLSerializer) FromResponseContent(ctx context.Context, r io.Reader, v any) error {
	br, empty := peekEmpty(ctx, r)
	if empty {
		return nil
	}
	return xml.NewDecoder(br).Decode(v)
}

func (XMLSerializer) NewDecoder(r io.Reader) ValueDecoder {
	return xml.NewDecoder(r)
}

func (XMLSerializer) FieldName(f reflect.StructField) string {
	name := tagName(f.Tag.Get("xml"))
	// "parent>child" paths are not usable as flat keys.
	if i := strings.LastIndexByte(name, '>'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func tagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}

// peekEmpty wraps r so reads observe ctx, and reports whether the body is
// empty or only whitespace.
func peekEmpty(ctx context.Context, r io.Reader) (*bufio.Reader, bool) {
	br := bufio.NewReader(&ctxReader{ctx: ctx, r: r})
	for {
		b, err := br.Peek(1)
		if err != nil || len(b) == 0 {
			return br, errors.Is(err, io.EOF)
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
			continue
		}
		return br, false
	}
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
