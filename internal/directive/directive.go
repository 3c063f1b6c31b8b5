// Package directive parses apistub directives from Go source files.
//
// Directives are line comments in the doc comment of an interface or an
// interface method:
//
//	//apistub:get /users/{id}
//	//apistub:method PROPFIND "/dav/{path}"
//	//apistub:header Accept: application/json
//	//apistub:header token X-Api-Key
//	//apistub:headers extra
//	//apistub:authorize token Bearer
//	//apistub:path id name=userId format=%05d
//	//apistub:query tags collection=csv name=tag
//	//apistub:body user json streamed
//	//apistub:property traceID trace
//	//apistub:multipart boundary-0123
//
// A header directive whose first word contains ':' declares a static header;
// otherwise it binds a parameter.
package directive

import (
	"fmt"
	"go/ast"
	"go/token"
	"net/http"
	"strconv"
	"strings"
)

// Prefix starts every directive line.
const Prefix = "//apistub:"

// Kind represents the type of directive.
type Kind string

const (
	KindVerb      Kind = "verb"
	KindHeader    Kind = "header" // static header when HeaderName is set
	KindHeaders   Kind = "headers"
	KindAuthorize Kind = "authorize"
	KindPath      Kind = "path"
	KindQuery     Kind = "query"
	KindBody      Kind = "body"
	KindProperty  Kind = "property"
	KindMultipart Kind = "multipart"
)

var verbs = map[string]string{
	"get":     http.MethodGet,
	"post":    http.MethodPost,
	"put":     http.MethodPut,
	"delete":  http.MethodDelete,
	"patch":   http.MethodPatch,
	"head":    http.MethodHead,
	"options": http.MethodOptions,
}

// Directive represents a parsed apistub directive.
type Directive struct {
	Kind Kind
	Pos  token.Position

	// Verb directives.
	Verb string
	Path string
	// PathErr explains why the path is not a usable string literal.
	PathErr string

	// Static header directives.
	HeaderName  string
	HeaderValue string

	// Parameter directives: the parameter name, positional
	// arguments and key=value options.
	Param   string
	Args    []string
	Options map[string]string
}

// IsStaticHeader reports whether d declares a static header.
func (d Directive) IsStaticHeader() bool {
	return d.Kind == KindHeader && d.HeaderName != ""
}

// Error is a malformed directive.
type Error struct {
	Pos token.Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// ScanFile parses every directive in f, keyed by the comment group holding it.
// The caller decides which groups are attached to declarations.
func ScanFile(fset *token.FileSet, f *ast.File) (map[*ast.CommentGroup][]Directive, []*Error) {
	out := make(map[*ast.CommentGroup][]Directive)
	var errs []*Error
	for _, cg := range f.Comments {
		ds, es := ParseGroup(fset, cg)
		if len(ds) > 0 {
			out[cg] = ds
		}
		errs = append(errs, es...)
	}
	return out, errs
}

// ParseGroup parses the directives in one comment group.
func ParseGroup(fset *token.FileSet, cg *ast.CommentGroup) ([]Directive, []*Error) {
	if cg == nil {
		return nil, nil
	}
	var (
		directives []Directive
		errs       []*Error
	)
	for _, c := range cg.List {
		if !strings.HasPrefix(c.Text, Prefix) {
			continue
		}
		pos := fset.Position(c.Pos())
		d, err := parseLine(strings.TrimPrefix(c.Text, Prefix), pos)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		directives = append(directives, d)
	}
	return directives, errs
}

func parseLine(text string, pos token.Position) (Directive, *Error) {
	text = strings.TrimSpace(text)
	name, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)
	bad := func(format string, args ...any) (Directive, *Error) {
		return Directive{}, &Error{Pos: pos, Msg: fmt.Sprintf("//apistub:%s: ", name) + fmt.Sprintf(format, args...)}
	}
	if name == "" {
		return bad("empty directive")
	}

	d := Directive{Pos: pos}
	if verb, ok := verbs[name]; ok {
		d.Kind, d.Verb = KindVerb, verb
		args, err := tokenize(rest)
		if err != nil {
			d.PathErr = err.Error()
			return d, nil
		}
		return withPath(d, args, bad)
	}

	switch Kind(name) {
	case "method":
		args, err := tokenize(rest)
		if err != nil {
			return bad("%v", err)
		}
		if len(args) == 0 {
			return bad("missing HTTP method")
		}
		d.Kind, d.Verb = KindVerb, strings.ToUpper(args[0].text)
		return withPath(d, args[1:], bad)

	case KindHeader:
		first, _, _ := strings.Cut(rest, " ")
		if strings.Contains(first, ":") {
			hname, value, _ := strings.Cut(rest, ":")
			d.Kind = KindHeader
			d.HeaderName = strings.TrimSpace(hname)
			d.HeaderValue = strings.TrimSpace(value)
			if d.HeaderName == "" {
				return bad("empty header name")
			}
			return d, nil
		}
		return paramDirective(KindHeader, rest, 1, d, bad)

	case KindHeaders, KindAuthorize, KindProperty:
		return paramDirective(Kind(name), rest, 1, d, bad)

	case KindPath, KindQuery:
		return paramDirective(Kind(name), rest, 0, d, bad)

	case KindBody:
		d, err := paramDirective(KindBody, rest, 2, d, bad)
		if err != nil {
			return d, err
		}
		for _, a := range d.Args {
			switch strings.ToLower(a) {
			case "default", "json", "form", "serialized", "buffered", "streamed":
			default:
				return bad("unknown body option %q", a)
			}
		}
		return d, nil

	case KindMultipart:
		args, err := tokenize(rest)
		if err != nil {
			return bad("%v", err)
		}
		if len(args) > 1 {
			return bad("expected at most one boundary")
		}
		d.Kind = KindMultipart
		for _, a := range args {
			d.Args = append(d.Args, a.text)
		}
		return d, nil
	}
	return Directive{}, &Error{Pos: pos, Msg: fmt.Sprintf("unknown directive //apistub:%s", name)}
}

func withPath(d Directive, args []word, bad func(string, ...any) (Directive, *Error)) (Directive, *Error) {
	switch len(args) {
	case 0:
		d.PathErr = "missing path"
	case 1:
		a := args[0]
		if !a.quoted && !looksLiteral(a.text) {
			d.PathErr = fmt.Sprintf("path %s is not a string literal", a.text)
		} else {
			d.Path = a.text
		}
	default:
		return bad("expected a single path, got %d arguments", len(args))
	}
	return d, nil
}

// looksLiteral accepts bare paths that cannot be mistaken for Go expressions.
func looksLiteral(s string) bool {
	if strings.Contains(s, "://") {
		return !strings.ContainsAny(s, "+\"`")
	}
	switch s[0] {
	case '/', '?', '{':
		return !strings.ContainsAny(s, "+\"`")
	}
	return false
}

// paramDirective parses "param [positional...] [key=value...]".
func paramDirective(kind Kind, rest string, maxArgs int, d Directive, bad func(string, ...any) (Directive, *Error)) (Directive, *Error) {
	args, err := tokenize(rest)
	if err != nil {
		return bad("%v", err)
	}
	if len(args) == 0 {
		return bad("missing parameter name")
	}
	d.Kind = kind
	d.Param = args[0].text
	for _, a := range args[1:] {
		if k, v, ok := strings.Cut(a.text, "="); ok && !a.quoted {
			if d.Options == nil {
				d.Options = make(map[string]string)
			}
			if v != "" && (v[0] == '"' || v[0] == '`') {
				if uq, err := strconv.Unquote(v); err == nil {
					v = uq
				}
			}
			d.Options[k] = v
			continue
		}
		d.Args = append(d.Args, a.text)
	}
	if len(d.Args) > maxArgs {
		return bad("too many arguments")
	}
	return d, nil
}

type word struct {
	text   string
	quoted bool
}

// tokenize splits on whitespace, honoring Go string literals.
func tokenize(s string) ([]word, error) {
	var out []word
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return out, nil
		}
		if s[0] == '"' || s[0] == '`' {
			lit, err := strconv.QuotedPrefix(s)
			if err != nil {
				return nil, fmt.Errorf("malformed string literal %s", s)
			}
			text, err := strconv.Unquote(lit)
			if err != nil {
				return nil, fmt.Errorf("malformed string literal %s", lit)
			}
			out = append(out, word{text: text, quoted: true})
			s = s[len(lit):]
			continue
		}
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			end = len(s)
		}
		w := s[:end]
		// key="quoted value" stays one token.
		if i := strings.IndexByte(w, '='); i >= 0 && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '`') {
			lit, err := strconv.QuotedPrefix(s[i+1:])
			if err != nil {
				return nil, fmt.Errorf("malformed string literal %s", s[i+1:])
			}
			end = i + 1 + len(lit)
			w = s[:end]
		}
		out = append(out, word{text: w})
		s = s[end:]
	}
}
