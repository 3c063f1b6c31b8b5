package apistub

import (
	"fmt"
	"net/url"
	"strings"
)

// TemplateError reports a malformed path template.
type TemplateError struct {
	Template string
	Offset   int
	Message  string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("path template %q: %s at offset %d", e.Template, e.Message, e.Offset)
}

// Placeholder is a {name} or {**name} segment of a path template.
type Placeholder struct {
	Name string
	// RoundTrip is set for {**name}: slashes in the value are kept
	// and every segment between them is escaped separately.
	RoundTrip bool
}

type segment struct {
	literal string
	ph      *Placeholder
}

// Template is a parsed path template. It is immutable and safe to share.
type Template struct {
	raw      string
	segments []segment
}

// ParseTemplate tokenizes a path template into literal text and placeholders.
// Placeholder order and case are preserved.
func ParseTemplate(raw string) (*Template, error) {
	t := &Template{raw: raw}
	var lit strings.Builder
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; c {
		case '{':
			end := strings.IndexAny(raw[i+1:], "{}")
			if end < 0 || raw[i+1+end] != '}' {
				return nil, &TemplateError{Template: raw, Offset: i, Message: "unbalanced '{'"}
			}
			name := raw[i+1 : i+1+end]
			ph := &Placeholder{Name: name}
			if rest, ok := strings.CutPrefix(name, "**"); ok {
				ph.Name, ph.RoundTrip = rest, true
			}
			if ph.Name == "" || strings.ContainsAny(ph.Name, " \t/?#") {
				return nil, &TemplateError{Template: raw, Offset: i, Message: fmt.Sprintf("invalid placeholder %q", name)}
			}
			if lit.Len() > 0 {
				t.segments = append(t.segments, segment{literal: lit.String()})
				lit.Reset()
			}
			t.segments = append(t.segments, segment{ph: ph})
			i += end + 1
		case '}':
			return nil, &TemplateError{Template: raw, Offset: i, Message: "unbalanced '}'"}
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		t.segments = append(t.segments, segment{literal: lit.String()})
	}
	return t, nil
}

// String returns the template source.
func (t *Template) String() string { return t.raw }

// Placeholders returns the placeholders in template order.
func (t *Template) Placeholders() []Placeholder {
	var out []Placeholder
	for _, s := range t.segments {
		if s.ph != nil {
			out = append(out, *s.ph)
		}
	}
	return out
}

// Has reports whether the template contains a placeholder with the given name.
func (t *Template) Has(name string) bool {
	for _, s := range t.segments {
		if s.ph != nil && s.ph.Name == name {
			return true
		}
	}
	return false
}

// Expand substitutes placeholder values, escaping them for use in a path.
// A missing value is an error; callers check for nil arguments first.
func (t *Template) Expand(values map[string]string) (string, error) {
	var b strings.Builder
	for _, s := range t.segments {
		if s.ph == nil {
			b.WriteString(s.literal)
			continue
		}
		v, ok := values[s.ph.Name]
		if !ok {
			return "", fmt.Errorf("no value for placeholder {%s}", s.ph.Name)
		}
		if s.ph.RoundTrip {
			parts := strings.Split(v, "/")
			for i, p := range parts {
				parts[i] = url.PathEscape(p)
			}
			b.WriteString(strings.Join(parts, "/"))
		} else {
			b.WriteString(url.PathEscape(v))
		}
	}
	return b.String(), nil
}
