// Package golang emits Go client stubs for analyzed interfaces.
//
// For every emittable interface the generated file declares one
// *apistub.RequestDescriptor per method, a method table, a client type
// holding an *apistub.Stub, and a constructor. Each client method passes its
// arguments, in declaration order followed by one reflect.Type per
// interface type parameter, to the runtime helper matching its return shape.
package golang

import (
	"bytes"
	"fmt"
	"go/format"
	"go/types"
	"strings"

	"github.com/broady/apistub"
	"github.com/broady/apistub/apistubgen/ir"
)

// FileName is the default name of the generated file.
const FileName = "apistub_gen.go"

// BuildConstraint keeps generated files out of analysis.
const BuildConstraint = "//go:build !apistub_gen"

const runtimePath = "github.com/broady/apistub"

// Emit renders the generated file for pkg. It returns nil when pkg has no
// interface to emit.
func Emit(pkg *ir.Package) ([]byte, error) {
	ifaces := pkg.Emittable()
	if len(ifaces) == 0 {
		return nil, nil
	}

	e := &emitter{
		pkg:     pkg,
		imports: newImportSet(pkg.Path, pkg.Reserved),
		names:   newNamer(pkg.Reserved...),
	}
	e.rt = e.imports.add(runtimePath, "apistub")
	e.reflect = e.imports.add("reflect", "reflect")

	// Record every import before naming parameters, so parameters can be
	// renamed away from package names.
	for _, iface := range ifaces {
		e.typeParams(iface)
		for _, m := range iface.Methods {
			e.signature(m, m.Params)
		}
	}

	var body bytes.Buffer
	for _, iface := range ifaces {
		e.emitInterface(&body, iface)
	}

	var out bytes.Buffer
	out.WriteString("// Code generated by apistub. DO NOT EDIT.\n\n")
	out.WriteString(BuildConstraint + "\n\n")
	fmt.Fprintf(&out, "package %s\n\n", pkg.Name)
	e.imports.write(&out)
	out.Write(body.Bytes())

	src, err := format.Source(out.Bytes())
	if err != nil {
		return out.Bytes(), fmt.Errorf("format generated code: %w", err)
	}
	return src, nil
}

type emitter struct {
	pkg     *ir.Package
	imports *importSet
	names   *namer
	rt      string // runtime package name
	reflect string
}

func (e *emitter) typeString(t types.Type) string {
	return types.TypeString(t, e.imports.qualifier)
}

// typeParams returns the declaration and use forms of the interface type
// parameters, such as "[K comparable, V any]" and "[K, V]".
func (e *emitter) typeParams(iface *ir.Interface) (decl, use string) {
	if len(iface.TypeParams) == 0 {
		return "", ""
	}
	var (
		decls, names []string
		tps          *types.TypeParamList
	)
	if iface.Named != nil {
		tps = iface.Named.TypeParams()
	}
	for i, tp := range iface.TypeParams {
		constraint := tp.Constraint
		if tps != nil && i < tps.Len() {
			constraint = e.typeString(tps.At(i).Constraint())
		}
		decls = append(decls, tp.Name+" "+constraint)
		names = append(names, tp.Name)
	}
	return "[" + strings.Join(decls, ", ") + "]", "[" + strings.Join(names, ", ") + "]"
}

type local struct {
	name string
	typ  string
}

// signature renders the parameter and result lists of m. Parameter names
// are taken from params and made unique against imports and type parameters.
func (e *emitter) signature(m *ir.Method, params []ir.Param) (in []local, results []string) {
	sig := m.Signature
	for i := 0; i < sig.Params().Len(); i++ {
		t := sig.Params().At(i).Type()
		typ := e.typeString(t)
		if sig.Variadic() && i == sig.Params().Len()-1 {
			typ = "..." + e.typeString(t.(*types.Slice).Elem())
		}
		in = append(in, local{name: params[i].Name, typ: typ})
	}
	for i := 0; i < sig.Results().Len(); i++ {
		results = append(results, e.typeString(sig.Results().At(i).Type()))
	}
	return in, results
}

func (e *emitter) emitInterface(buf *bytes.Buffer, iface *ir.Interface) {
	base := exported(iface.Name)
	client := e.names.alloc(iface.Name + "Client")
	ctorPrefix := "New"
	if !iface.Exported {
		ctorPrefix = "new"
	}
	ctor := e.names.alloc(ctorPrefix + base + "Client")
	table := e.names.alloc("apistub" + base + "Methods")

	descs := make(map[*ir.Method]string)
	fmt.Fprintf(buf, "var (\n")
	for _, m := range iface.Methods {
		if m.Descriptor == nil {
			continue
		}
		name := e.names.alloc("apistubDesc" + base + exported(m.Name))
		descs[m] = name
		e.writeDescriptor(buf, name, m.Descriptor)
	}
	fmt.Fprintf(buf, ")\n\n")

	fmt.Fprintf(buf, "// %s maps interface-qualified method names to descriptors.\n", table)
	fmt.Fprintf(buf, "var %s = %s.MethodTable{\n", table, e.rt)
	for _, m := range iface.Methods {
		if name, ok := descs[m]; ok {
			fmt.Fprintf(buf, "\t%q: %s,\n", iface.Name+"."+m.Name, name)
		}
	}
	fmt.Fprintf(buf, "}\n\n")

	tpDecl, tpUse := e.typeParams(iface)
	fmt.Fprintf(buf, "// %s implements %s over HTTP.\n", client, iface.Name)
	fmt.Fprintf(buf, "type %s%s struct {\n\tstub *%s.Stub\n}\n\n", client, tpDecl, e.rt)

	fmt.Fprintf(buf, "// %s returns a %s that sends requests through transport.\n", ctor, iface.Name)
	fmt.Fprintf(buf, "// A nil transport uses http.DefaultClient and a nil builder uses\n")
	fmt.Fprintf(buf, "// apistub.DefaultRequestBuilder.\n")
	fmt.Fprintf(buf, "func %s%s(transport %s.Doer, builder *%s.RequestBuilder) *%s%s {\n", ctor, tpDecl, e.rt, e.rt, client, tpUse)
	fmt.Fprintf(buf, "\tstub := %s.NewStub(transport, builder, %s.TypeFor[%s%s]())\n", e.rt, e.reflect, iface.Name, tpUse)
	fmt.Fprintf(buf, "\treturn &%s%s{stub: stub.WithMethods(%s)}\n}\n\n", client, tpUse, table)

	if len(iface.TypeParams) == 0 {
		fmt.Fprintf(buf, "var _ %s = (*%s)(nil)\n\n", iface.Name, client)
	}

	for _, m := range iface.Methods {
		e.emitMethod(buf, iface, client+tpUse, m, descs[m])
	}

	if iface.Disposable {
		fmt.Fprintf(buf, "// Close releases the transport. It is safe to call more than once.\n")
		fmt.Fprintf(buf, "func (c *%s%s) Close() error {\n\treturn c.stub.Close()\n}\n\n", client, tpUse)
	}
}

func (e *emitter) emitMethod(buf *bytes.Buffer, iface *ir.Interface, recvType string, m *ir.Method, desc string) {
	// Parameters must not shadow imports, type parameters or the receiver.
	scope := newNamer(e.imports.names()...)
	for _, tp := range iface.TypeParams {
		scope.taken[tp.Name] = true
	}
	params := make([]ir.Param, len(m.Params))
	for i, p := range m.Params {
		params[i] = ir.Param{Name: scope.alloc(p.Name), Type: p.Type}
	}
	recv := scope.alloc("c")
	in, results := e.signature(m, params)

	var sig strings.Builder
	sig.WriteString("(")
	for i, p := range in {
		if i > 0 {
			sig.WriteString(", ")
		}
		sig.WriteString(p.name + " " + p.typ)
	}
	sig.WriteString(")")
	switch len(results) {
	case 0:
	case 1:
		sig.WriteString(" " + results[0])
	default:
		sig.WriteString(" (" + strings.Join(results, ", ") + ")")
	}

	fmt.Fprintf(buf, "func (%s *%s) %s%s {\n", recv, recvType, m.Name, sig.String())
	defer buf.WriteString("}\n\n")

	if m.Descriptor == nil {
		e.emitNotImplemented(buf, iface, m, results)
		return
	}

	args := []string{recv + ".stub", desc}
	for _, p := range in {
		args = append(args, p.name)
	}
	for _, tp := range iface.TypeParams {
		args = append(args, fmt.Sprintf("%s.TypeFor[%s]()", e.reflect, tp.Name))
	}
	call := strings.Join(args, ", ")

	res := m.Signature.Results()
	switch m.Descriptor.Return.Kind {
	case apistub.ShapeFireAndForget:
		fmt.Fprintf(buf, "\treturn %s.Exec(%s)\n", e.rt, call)
	case apistub.ShapeValue:
		fmt.Fprintf(buf, "\treturn %s.Value[%s](%s)\n", e.rt, e.typeString(res.At(0).Type()), call)
	case apistub.ShapeRaw:
		fmt.Fprintf(buf, "\treturn %s.Raw(%s)\n", e.rt, call)
	case apistub.ShapeStream:
		elem := typeArg(res.At(0).Type(), 0)
		fmt.Fprintf(buf, "\treturn %s.Stream[%s](%s)\n", e.rt, e.typeString(elem), call)
	case apistub.ShapeEnvelope:
		t := res.At(0).Type()
		if m.Descriptor.Return.Pointer {
			elem := typeArg(t.(*types.Pointer).Elem(), 0)
			fmt.Fprintf(buf, "\treturn %s.Envelope[%s](%s)\n", e.rt, e.typeString(elem), call)
			return
		}
		elem := e.typeString(typeArg(t, 0))
		resp, err := scope.alloc("resp"), scope.alloc("err")
		fmt.Fprintf(buf, "\t%s, %s := %s.Envelope[%s](%s)\n", resp, err, e.rt, elem, call)
		fmt.Fprintf(buf, "\tif %s != nil {\n\t\treturn %s.Response[%s]{}, %s\n\t}\n", err, e.rt, elem, err)
		fmt.Fprintf(buf, "\treturn *%s, nil\n", resp)
	}
}

// emitNotImplemented writes a body returning apistub.NotImplemented, or
// panicking with it when the method cannot return an error.
func (e *emitter) emitNotImplemented(buf *bytes.Buffer, iface *ir.Interface, m *ir.Method, results []string) {
	errExpr := fmt.Sprintf("%s.NotImplemented(%q, %q, %q)", e.rt, iface.Name, m.Name, m.NotImplemented)
	if len(results) == 0 || results[len(results)-1] != "error" {
		fmt.Fprintf(buf, "\tpanic(%s)\n", errExpr)
		return
	}
	var vals []string
	for _, r := range results[:len(results)-1] {
		vals = append(vals, fmt.Sprintf("*new(%s)", r))
	}
	vals = append(vals, errExpr)
	fmt.Fprintf(buf, "\treturn %s\n", strings.Join(vals, ", "))
}

func typeArg(t types.Type, i int) types.Type {
	return types.Unalias(t).(*types.Named).TypeArgs().At(i)
}

func (e *emitter) writeDescriptor(buf *bytes.Buffer, name string, d *apistub.RequestDescriptor) {
	rt := e.rt
	fmt.Fprintf(buf, "\t%s = &%s.RequestDescriptor{\n", name, rt)
	fmt.Fprintf(buf, "\t\tInterface: %q,\n", d.Interface)
	fmt.Fprintf(buf, "\t\tMethod: %q,\n", d.Method)
	fmt.Fprintf(buf, "\t\tVerb: %q,\n", d.Verb)
	fmt.Fprintf(buf, "\t\tPath: %q,\n", d.Path)
	if len(d.Headers) > 0 {
		fmt.Fprintf(buf, "\t\tHeaders: []%s.Header{\n", rt)
		for _, h := range d.Headers {
			fmt.Fprintf(buf, "\t\t\t{Name: %q, Value: %q},\n", h.Name, h.Value)
		}
		buf.WriteString("\t\t},\n")
	}
	if len(d.Params) > 0 {
		fmt.Fprintf(buf, "\t\tParams: []%s.Param{\n", rt)
		for _, p := range d.Params {
			fmt.Fprintf(buf, "\t\t\t{%s},\n", e.paramFields(p))
		}
		buf.WriteString("\t\t},\n")
	}
	fmt.Fprintf(buf, "\t\tReturn: %s.ReturnShape{Kind: %s.%s", rt, rt, shapeConsts[d.Return.Kind])
	if d.Return.Type != "" {
		fmt.Fprintf(buf, ", Type: %q", d.Return.Type)
	}
	if d.Return.Pointer {
		buf.WriteString(", Pointer: true")
	}
	buf.WriteString("},\n")
	if len(d.TypeParams) > 0 {
		fmt.Fprintf(buf, "\t\tTypeParams: []%s.TypeParam{\n", rt)
		for _, tp := range d.TypeParams {
			fmt.Fprintf(buf, "\t\t\t{Name: %q, Constraint: %q},\n", tp.Name, tp.Constraint)
		}
		buf.WriteString("\t\t},\n")
	}
	if d.Multipart {
		buf.WriteString("\t\tMultipart: true,\n")
	}
	if d.Boundary != "" {
		fmt.Fprintf(buf, "\t\tBoundary: %q,\n", d.Boundary)
	}
	buf.WriteString("\t}\n")
}

func (e *emitter) paramFields(p apistub.Param) string {
	rt := e.rt
	fields := []string{
		fmt.Sprintf("Name: %q", p.Name),
		fmt.Sprintf("Role: %s.%s", rt, roleConsts[p.Role]),
	}
	if p.Key != "" {
		fields = append(fields, fmt.Sprintf("Key: %q", p.Key))
	}
	fields = append(fields, fmt.Sprintf("Type: %q", p.Type))
	if p.Nullable {
		fields = append(fields, "Nullable: true")
	}
	if p.Format != "" {
		fields = append(fields, fmt.Sprintf("Format: %q", p.Format))
	}
	if p.Collection != apistub.CollectionDefault {
		fields = append(fields, fmt.Sprintf("Collection: %s.%s", rt, collectionConsts[p.Collection]))
	}
	if p.Prefix != "" {
		fields = append(fields, fmt.Sprintf("Prefix: %q", p.Prefix))
	}
	if p.Delimiter != "" {
		fields = append(fields, fmt.Sprintf("Delimiter: %q", p.Delimiter))
	}
	if p.Body != apistub.BodyDefault {
		fields = append(fields, fmt.Sprintf("Body: %s.%s", rt, bodyConsts[p.Body]))
	}
	if p.Streamed {
		fields = append(fields, "Streamed: true")
	}
	if p.Scheme != "" {
		fields = append(fields, fmt.Sprintf("Scheme: %q", p.Scheme))
	}
	return strings.Join(fields, ", ")
}

var roleConsts = map[apistub.Role]string{
	apistub.RoleQuery:            "RoleQuery",
	apistub.RolePath:             "RolePath",
	apistub.RoleHeader:           "RoleHeader",
	apistub.RoleHeaderCollection: "RoleHeaderCollection",
	apistub.RoleAuthorize:        "RoleAuthorize",
	apistub.RoleBody:             "RoleBody",
	apistub.RoleProperty:         "RoleProperty",
	apistub.RoleContext:          "RoleContext",
	apistub.RoleTypeWitness:      "RoleTypeWitness",
	apistub.RolePart:             "RolePart",
}

var bodyConsts = map[apistub.BodyMethod]string{
	apistub.BodyJSON:       "BodyJSON",
	apistub.BodyForm:       "BodyForm",
	apistub.BodySerialized: "BodySerialized",
}

var collectionConsts = map[apistub.CollectionFormat]string{
	apistub.CollectionCSV:      "CollectionCSV",
	apistub.CollectionSSV:      "CollectionSSV",
	apistub.CollectionTSV:      "CollectionTSV",
	apistub.CollectionPipes:    "CollectionPipes",
	apistub.CollectionMulti:    "CollectionMulti",
	apistub.CollectionBrackets: "CollectionBrackets",
}

var shapeConsts = map[apistub.ShapeKind]string{
	apistub.ShapeFireAndForget: "ShapeFireAndForget",
	apistub.ShapeValue:         "ShapeValue",
	apistub.ShapeEnvelope:      "ShapeEnvelope",
	apistub.ShapeRaw:           "ShapeRaw",
	apistub.ShapeStream:        "ShapeStream",
}
