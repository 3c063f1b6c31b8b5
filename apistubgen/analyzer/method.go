package analyzer

import (
	"fmt"
	"go/types"
	"net/http"
	"slices"
	"strings"

	"github.com/broady/apistub"
	"github.com/broady/apistub/apistubgen/ir"
	"github.com/broady/apistub/internal/directive"
)

const runtimePath = "github.com/broady/apistub"

type declDirectives struct {
	decl methodDecl
	ds   []directive.Directive
}

// analyzeMethod resolves one method of iface. chain lists its declarations,
// most derived first.
func (a *analyzer) analyzeMethod(iface *ir.Interface, chain []methodDecl, ifaceHeaders []apistub.Header) *ir.Method {
	top := chain[0]
	sig := top.fn.Type().(*types.Signature)
	names := paramNames(sig)
	pos := a.fset.Position(top.fn.Origin().Pos())

	m := &ir.Method{
		Name:       top.fn.Name(),
		DeclaredIn: top.owner,
		Variadic:   sig.Variadic(),
		Pos:        pos,
		Signature:  sig,
	}
	for i := 0; i < sig.Params().Len(); i++ {
		m.Params = append(m.Params, ir.Param{Name: names[i], Type: a.typeString(sig.Params().At(i).Type())})
	}
	for i := 0; i < sig.Results().Len(); i++ {
		m.Results = append(m.Results, a.typeString(sig.Results().At(i).Type()))
	}

	fail := func(code ir.Code, format string, args ...any) *ir.Method {
		m.NotImplemented = a.diag(iface, m.Name, pos, code, ir.SeverityError, format, args...)
		return m
	}

	var decls []declDirectives
	for _, md := range chain {
		if md.field == nil {
			continue
		}
		if ds := a.groups[md.field.Doc]; len(ds) > 0 {
			decls = append(decls, declDirectives{decl: md, ds: ds})
		}
	}

	// The most derived declaration carrying a verb supplies it.
	var verbs []directive.Directive
	for _, dd := range decls {
		for _, d := range dd.ds {
			if d.Kind == directive.KindVerb {
				verbs = append(verbs, d)
			}
		}
		if len(verbs) > 0 {
			m.DeclaredIn = dd.decl.owner
			break
		}
	}
	switch {
	case len(verbs) == 0:
		m.NotImplemented = a.diag(iface, m.Name, pos, ir.CodeNoDirective, ir.SeverityWarning, "%s", NotImplementedText)
		return m
	case len(verbs) > 1:
		return fail(ir.CodeMultipleVerbs, "method carries %d HTTP operation directives", len(verbs))
	}
	verb := verbs[0]
	if verb.PathErr != "" {
		m.NotImplemented = a.diag(iface, m.Name, pos, ir.CodeNoDirective, ir.SeverityWarning, "%s: %s", NotImplementedText, verb.PathErr)
		return m
	}

	if len(decls) > 1 {
		var owners []string
		for _, dd := range decls[1:] {
			if !slices.Contains(owners, dd.decl.owner) {
				owners = append(owners, dd.decl.owner)
			}
		}
		a.diag(iface, m.Name, pos, ir.CodePartialOverride, ir.SeverityInfo,
			"redeclared method merges directives from %s", strings.Join(owners, ", "))
	}

	tmpl, err := apistub.ParseTemplate(verb.Path)
	if err != nil {
		iface.Failed = true
		return fail(ir.CodeBadTemplate, "%v", err)
	}

	// Apply directives base first so derived declarations override them.
	desc := &apistub.RequestDescriptor{
		Interface:  iface.Name,
		Method:     m.Name,
		Verb:       verb.Verb,
		Path:       verb.Path,
		Headers:    slices.Clone(ifaceHeaders),
		TypeParams: iface.TypeParams,
	}
	bound := make([]map[directive.Kind]directive.Directive, sig.Params().Len())
	for i := len(decls) - 1; i >= 0; i-- {
		dd := decls[i]
		declNames := paramNames(dd.decl.fn.Type().(*types.Signature))
		for _, d := range dd.ds {
			switch {
			case d.Kind == directive.KindVerb:
			case d.Kind == directive.KindMultipart:
				desc.Multipart = true
				if len(d.Args) > 0 {
					desc.Boundary = d.Args[0]
				}
			case d.IsStaticHeader():
				desc.Headers = mergeHeaders(desc.Headers, []apistub.Header{{Name: d.HeaderName, Value: d.HeaderValue}})
			default:
				idx := slices.Index(declNames, d.Param)
				if idx < 0 {
					return fail(ir.CodeBadDirective, "//apistub:%s names unknown parameter %q", d.Kind, d.Param)
				}
				if bound[idx] == nil {
					bound[idx] = make(map[directive.Kind]directive.Directive)
				}
				bound[idx][d.Kind] = d
			}
		}
	}

	bodies := 0
	for i := 0; i < sig.Params().Len(); i++ {
		t := sig.Params().At(i).Type()
		p, err := a.classifyParam(names[i], t, bound[i], tmpl, desc.Multipart)
		if err != "" {
			return fail(ir.CodeBadDirective, "%s", err)
		}
		if p.Role == apistub.RoleBody {
			bodies++
		}
		desc.Params = append(desc.Params, p)
	}
	if bodies > 1 {
		return fail(ir.CodeMultipleBodies, "method has %d body parameters", bodies)
	}

	for _, ph := range tmpl.Placeholders() {
		ok := slices.ContainsFunc(desc.Params, func(p apistub.Param) bool {
			return p.Role == apistub.RolePath && p.WireName() == ph.Name
		})
		if !ok {
			iface.Failed = true
			return fail(ir.CodeUnboundPlaceholder, "placeholder {%s} in %q matches no parameter", ph.Name, verb.Path)
		}
	}

	shape, ok := a.classifyReturn(sig.Results())
	if !ok {
		return fail(ir.CodeUnsupportedReturn, "unsupported result list (%s)", strings.Join(m.Results, ", "))
	}
	desc.Return = shape

	for _, tp := range iface.TypeParams {
		desc.Params = append(desc.Params, apistub.Param{
			Name: tp.Name,
			Role: apistub.RoleTypeWitness,
			Type: "reflect.Type",
		})
	}

	m.Descriptor = desc
	return m
}

// classifyParam returns a non-empty message for an invalid binding.
func (a *analyzer) classifyParam(name string, t types.Type, ds map[directive.Kind]directive.Directive, tmpl *apistub.Template, multipart bool) (apistub.Param, string) {
	p := apistub.Param{
		Name:     name,
		Type:     a.typeString(t),
		Nullable: nullable(t),
	}
	opts := func(k directive.Kind) map[string]string { return ds[k].Options }
	alias := opts(directive.KindPath)["name"]
	if alias == "" {
		alias = opts(directive.KindQuery)["name"]
	}
	wire := name
	if alias != "" {
		wire = alias
	}

	has := func(k directive.Kind) (directive.Directive, bool) {
		d, ok := ds[k]
		return d, ok
	}

	if isNamed(t, "context", "Context") {
		p.Role = apistub.RoleContext
		return p, ""
	}
	if tmpl.Has(wire) {
		p.Role = apistub.RolePath
		p.Key = alias
		p.Format = opts(directive.KindPath)["format"]
		return p, ""
	}
	if _, ok := has(directive.KindPath); ok {
		return p, fmt.Sprintf("parameter %s is bound to placeholder {%s} which %q does not contain", name, wire, tmpl.String())
	}
	if _, ok := has(directive.KindHeaders); ok {
		if _, isMap := t.Underlying().(*types.Map); !isMap {
			return p, fmt.Sprintf("//apistub:headers parameter %s must be a map", name)
		}
		p.Role = apistub.RoleHeaderCollection
		return p, ""
	}
	if d, ok := has(directive.KindHeader); ok {
		p.Role = apistub.RoleHeader
		p.Key = name
		if len(d.Args) > 0 {
			p.Key = d.Args[0]
		}
		p.Format = d.Options["format"]
		return p, ""
	}
	if d, ok := has(directive.KindAuthorize); ok {
		p.Role = apistub.RoleAuthorize
		if len(d.Args) > 0 {
			p.Scheme = d.Args[0]
		}
		return p, ""
	}
	if d, ok := has(directive.KindBody); ok {
		p.Role = apistub.RoleBody
		for _, arg := range d.Args {
			switch strings.ToLower(arg) {
			case "streamed":
				p.Streamed = true
			case "buffered":
				p.Streamed = false
			default:
				p.Body, _ = apistub.ParseBodyMethod(arg)
			}
		}
		return p, ""
	}
	if d, ok := has(directive.KindProperty); ok {
		p.Role = apistub.RoleProperty
		p.Key = name
		if len(d.Args) > 0 {
			p.Key = d.Args[0]
		}
		return p, ""
	}

	if multipart {
		p.Role = apistub.RolePart
		p.Key = alias
		p.Format = opts(directive.KindQuery)["format"]
		return p, ""
	}

	p.Role = apistub.RoleQuery
	p.Key = alias
	q := opts(directive.KindQuery)
	p.Format = q["format"]
	p.Prefix = q["prefix"]
	p.Delimiter = q["delimiter"]
	if c, ok := q["collection"]; ok {
		format, ok := apistub.ParseCollectionFormat(c)
		if !ok {
			return p, fmt.Sprintf("unknown collection format %q for parameter %s", c, name)
		}
		p.Collection = format
	}
	return p, ""
}

// classifyReturn maps a result list to a return shape.
func (a *analyzer) classifyReturn(results *types.Tuple) (apistub.ReturnShape, bool) {
	switch results.Len() {
	case 1:
		t := results.At(0).Type()
		if isError(t) {
			return apistub.ReturnShape{Kind: apistub.ShapeFireAndForget}, true
		}
		if n, ok := namedType(t, "iter", "Seq2"); ok && n.TypeArgs().Len() == 2 && isError(n.TypeArgs().At(1)) {
			return apistub.ReturnShape{Kind: apistub.ShapeStream, Type: a.typeString(n.TypeArgs().At(0))}, true
		}
	case 2:
		if !isError(results.At(1).Type()) {
			return apistub.ReturnShape{}, false
		}
		t := results.At(0).Type()
		if ptr, ok := t.(*types.Pointer); ok {
			if isNamed(ptr.Elem(), "net/http", "Response") {
				return apistub.ReturnShape{Kind: apistub.ShapeRaw}, true
			}
			if n, ok := namedType(ptr.Elem(), runtimePath, "Response"); ok && n.TypeArgs().Len() == 1 {
				return apistub.ReturnShape{Kind: apistub.ShapeEnvelope, Type: a.typeString(n.TypeArgs().At(0)), Pointer: true}, true
			}
		}
		if n, ok := namedType(t, runtimePath, "Response"); ok && n.TypeArgs().Len() == 1 {
			return apistub.ReturnShape{Kind: apistub.ShapeEnvelope, Type: a.typeString(n.TypeArgs().At(0))}, true
		}
		if isError(t) {
			return apistub.ReturnShape{}, false
		}
		return apistub.ReturnShape{Kind: apistub.ShapeValue, Type: a.typeString(t)}, true
	}
	return apistub.ReturnShape{}, false
}

func (a *analyzer) typeString(t types.Type) string {
	return types.TypeString(t, a.qual)
}

// paramNames names unnamed and blank parameters argN.
func paramNames(sig *types.Signature) []string {
	params := sig.Params()
	names := make([]string, params.Len())
	taken := make(map[string]bool)
	for i := range names {
		if n := params.At(i).Name(); n != "" && n != "_" {
			taken[n] = true
		}
	}
	for i := range names {
		n := params.At(i).Name()
		if n == "" || n == "_" {
			n = fmt.Sprintf("arg%d", i)
			for taken[n] {
				n += "_"
			}
			taken[n] = true
		}
		names[i] = n
	}
	return names
}

func mergeHeaders(dst, src []apistub.Header) []apistub.Header {
	out := slices.Clone(dst)
	for _, h := range src {
		i := slices.IndexFunc(out, func(e apistub.Header) bool {
			return http.CanonicalHeaderKey(e.Name) == http.CanonicalHeaderKey(h.Name)
		})
		if i >= 0 {
			out[i] = h
			continue
		}
		out = append(out, h)
	}
	return out
}

func namedType(t types.Type, pkgPath, name string) (*types.Named, bool) {
	n, ok := types.Unalias(t).(*types.Named)
	if !ok || n.Obj().Pkg() == nil {
		return nil, false
	}
	return n, n.Obj().Pkg().Path() == pkgPath && n.Obj().Name() == name
}

func isNamed(t types.Type, pkgPath, name string) bool {
	_, ok := namedType(t, pkgPath, name)
	return ok
}

var errorType = types.Universe.Lookup("error").Type()

func isError(t types.Type) bool {
	return types.Identical(t, errorType)
}

func isCloser(fn *types.Func) bool {
	sig := fn.Type().(*types.Signature)
	return sig.Params().Len() == 0 && sig.Results().Len() == 1 && isError(sig.Results().At(0).Type())
}

func nullable(t types.Type) bool {
	switch t.Underlying().(type) {
	case *types.Pointer, *types.Slice, *types.Map, *types.Interface, *types.Chan, *types.Signature:
		return true
	}
	return false
}
