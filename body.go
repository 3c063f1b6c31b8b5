package apistub

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"path/filepath"
	"reflect"
	"strings"
)

const formContentType = "application/x-www-form-urlencoded"

// FilePart is a multipart file upload.
type FilePart struct {
	FileName    string
	ContentType string // default application/octet-stream
	Content     io.Reader
}

type partValue struct {
	param Param
	value any
}

// bodyContent turns a non-nil body argument into request content.
func (b *RequestBuilder) bodyContent(p Param, v any) (*Content, error) {
	switch p.Body {
	case BodyDefault:
		if b.settings.BodyPolicy == StringsAsIs {
			if c, ok := rawContent(v); ok {
				return c, nil
			}
		}
		return serialize(b.serializer, v, p.Streamed)
	case BodyJSON:
		return serialize(JSONSerializer{}, v, p.Streamed)
	case BodyForm:
		encoded, err := b.encodeForm(v)
		if err != nil {
			return nil, err
		}
		return &Content{ContentType: formContentType, Body: strings.NewReader(encoded), Length: int64(len(encoded))}, nil
	case BodySerialized:
		return serialize(b.serializer, v, p.Streamed)
	}
	panic(fmt.Sprintf("apistub: unknown body method %v", p.Body))
}

// encodeForm encodes a form body. Strings are sent as given and url.Values
// are sorted by key; other values keep field order when the formatter can.
func (b *RequestBuilder) encodeForm(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case url.Values:
		return x.Encode(), nil
	}
	if of, ok := b.formFormatter.(OrderedFormFormatter); ok {
		return of.EncodeForm(v)
	}
	values, err := b.formFormatter.FormatForm(v)
	if err != nil {
		return "", err
	}
	return values.Encode(), nil
}

// rawContent passes strings, byte slices and readers through unchanged.
func rawContent(v any) (*Content, bool) {
	switch x := v.(type) {
	case string:
		return &Content{ContentType: "text/plain; charset=utf-8", Body: strings.NewReader(x), Length: int64(len(x))}, true
	case []byte:
		return &Content{ContentType: "application/octet-stream", Body: bytes.NewReader(x), Length: int64(len(x))}, true
	case io.Reader:
		return &Content{ContentType: "application/octet-stream", Body: x, Length: -1}, true
	}
	return nil, false
}

// serialize encodes v with s. Streamed bodies are written through a pipe
// while the transport reads them, when s supports it.
func serialize(s ContentSerializer, v any, streamed bool) (*Content, error) {
	ss, ok := s.(StreamingSerializer)
	if !streamed || !ok {
		return s.ToRequestContent(v)
	}
	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		err := ss.Encode(pw, v)
		errc <- err
		pw.CloseWithError(err)
	}()
	return &Content{ContentType: s.ContentType(), Body: pr, Length: -1, encodeErr: errc}, nil
}

// multipartContent streams every part through a multipart writer.
func (b *RequestBuilder) multipartContent(d *RequestDescriptor, parts []partValue) (*Content, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	if d.Boundary != "" {
		if err := mw.SetBoundary(d.Boundary); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
	}
	errc := make(chan error, 1)
	go func() {
		err := b.writeParts(mw, parts)
		if err == nil {
			err = mw.Close()
		}
		errc <- err
		pw.CloseWithError(err)
	}()
	return &Content{ContentType: mw.FormDataContentType(), Body: pr, Length: -1, encodeErr: errc}, nil
}

func (b *RequestBuilder) writeParts(mw *multipart.Writer, parts []partValue) error {
	for _, pv := range parts {
		name := pv.param.WireName()
		switch x := pv.value.(type) {
		case *FilePart:
			if err := writeFilePart(mw, name, x); err != nil {
				return err
			}
		case FilePart:
			if err := writeFilePart(mw, name, &x); err != nil {
				return err
			}
		case string:
			if err := mw.WriteField(name, x); err != nil {
				return err
			}
		case []byte:
			if err := writeFilePart(mw, name, &FilePart{FileName: name, Content: bytes.NewReader(x)}); err != nil {
				return err
			}
		case io.Reader:
			fileName := name
			if n, ok := x.(interface{ Name() string }); ok {
				fileName = filepath.Base(n.Name())
			}
			if err := writeFilePart(mw, name, &FilePart{FileName: fileName, Content: x}); err != nil {
				return err
			}
		default:
			if err := b.writeValuePart(mw, name, pv.param, x); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeFilePart(mw *multipart.Writer, name string, f *FilePart) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, f.FileName))
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if f.Content == nil {
		return nil
	}
	_, err = io.Copy(w, f.Content)
	return err
}

// writeValuePart writes scalars as form fields and serializes anything else.
func (b *RequestBuilder) writeValuePart(mw *multipart.Writer, name string, p Param, v any) error {
	rv, ok := indirect(reflect.ValueOf(v))
	if !ok {
		return nil
	}
	if isScalar(rv.Type()) {
		return mw.WriteField(name, b.urlFormatter.FormatValue(rv.Interface(), p.Format))
	}
	c, err := b.serializer.ToRequestContent(v)
	if err != nil {
		return err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, name))
	h.Set("Content-Type", c.ContentType)
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, c.Body)
	return err
}
