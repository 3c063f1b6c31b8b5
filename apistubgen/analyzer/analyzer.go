// Package analyzer turns annotated Go interfaces into request descriptors.
//
// Packages are loaded with golang.org/x/tools/go/packages. Every interface
// whose method set carries at least one //apistub: directive is analyzed;
// each of its methods either gets an apistub.RequestDescriptor or a reason
// for a not-implemented stub, and findings are reported as ir.Diagnostics.
package analyzer

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"

	"github.com/broady/apistub"
	"github.com/broady/apistub/apistubgen/ir"
	"github.com/broady/apistub/internal/directive"
)

// BuildTag is set while loading packages. Generated files are constrained
// with !BuildTag so they never influence their own regeneration.
const BuildTag = "apistub_gen"

// NotImplementedText is the RF001 message repeated by generated stubs.
const NotImplementedText = "method has no recognized HTTP directive or its path is not a string literal"

// Config controls package loading.
type Config struct {
	// Dir is the working directory for package patterns.
	Dir string
	// Tags are extra build tags.
	Tags []string
}

// Load loads the packages matching patterns and analyzes each of them.
func Load(ctx context.Context, cfg Config, patterns ...string) ([]*ir.Package, error) {
	tags := append([]string{BuildTag}, cfg.Tags...)
	pcfg := &packages.Config{
		Context: ctx,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedImports |
			packages.NeedTypes | packages.NeedSyntax | packages.NeedTypesInfo,
		Dir:        cfg.Dir,
		BuildFlags: []string{"-tags=" + strings.Join(tags, ",")},
	}

	pkgs, err := packages.Load(pcfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found matching %q", patterns)
	}

	out := make([]*ir.Package, 0, len(pkgs))
	for _, pkg := range pkgs {
		if pkg.Types == nil || len(pkg.Syntax) == 0 {
			if len(pkg.Errors) > 0 {
				return nil, fmt.Errorf("package %s: %v", pkg.PkgPath, pkg.Errors[0])
			}
			return nil, fmt.Errorf("package %s: not type-checked", pkg.PkgPath)
		}
		for _, e := range pkg.Errors {
			if !tolerable(pkg, e) {
				return nil, fmt.Errorf("package %s: %v", pkg.PkgPath, e)
			}
		}
		out = append(out, Analyze(pkg))
	}
	return out, nil
}

// Analyze analyzes one type-checked package.
func Analyze(pkg *packages.Package) *ir.Package {
	a := &analyzer{
		pkg:    pkg,
		fset:   pkg.Fset,
		groups: make(map[*ast.CommentGroup][]directive.Directive),
		used:   make(map[*ast.CommentGroup]bool),
		fields: make(map[token.Pos]*ast.Field),
		docs:   make(map[*types.TypeName]*ast.CommentGroup),
		out: &ir.Package{
			Path:  pkg.PkgPath,
			Name:  pkg.Name,
			Types: pkg.Types,
		},
	}
	if len(pkg.GoFiles) > 0 {
		a.out.Dir = dirOf(pkg.GoFiles[0])
	}
	a.qual = types.RelativeTo(pkg.Types)
	a.run()
	return a.out
}

type analyzer struct {
	pkg  *packages.Package
	fset *token.FileSet
	out  *ir.Package
	qual types.Qualifier

	groups map[*ast.CommentGroup][]directive.Directive
	used   map[*ast.CommentGroup]bool
	// fields maps a method name position to its declaration.
	fields map[token.Pos]*ast.Field
	// docs maps interface type names to their doc comments.
	docs map[*types.TypeName]*ast.CommentGroup
}

func (a *analyzer) run() {
	var decls []*types.Named
	for _, f := range a.pkg.Syntax {
		groups, errs := directive.ScanFile(a.fset, f)
		for cg, ds := range groups {
			a.groups[cg] = ds
		}
		for _, e := range errs {
			a.out.AddDiagnostic(ir.Diagnostic{
				Code:     ir.CodeBadDirective,
				Severity: ir.SeverityError,
				Message:  e.Msg,
				Pos:      e.Pos,
			})
		}

		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				it, ok := ts.Type.(*ast.InterfaceType)
				if !ok {
					continue
				}
				obj, ok := a.pkg.TypesInfo.Defs[ts.Name].(*types.TypeName)
				if !ok {
					continue
				}
				doc := ts.Doc
				if doc == nil && len(gd.Specs) == 1 {
					doc = gd.Doc
				}
				a.docs[obj] = doc
				a.used[doc] = true
				for _, field := range it.Methods.List {
					a.used[field.Doc] = true
					for _, name := range field.Names {
						a.fields[name.Pos()] = field
					}
				}
				if named, ok := obj.Type().(*types.Named); ok {
					decls = append(decls, named)
				}
			}
		}
	}

	for _, named := range decls {
		if iface := a.analyzeInterface(named); iface != nil {
			a.out.Interfaces = append(a.out.Interfaces, iface)
		}
	}

	var orphans []ir.Diagnostic
	for cg, ds := range a.groups {
		if a.used[cg] {
			continue
		}
		orphans = append(orphans, ir.Diagnostic{
			Code:     ir.CodeBadDirective,
			Severity: ir.SeverityWarning,
			Message:  "directive must precede an interface or interface method",
			Pos:      ds[0].Pos,
		})
	}
	slices.SortFunc(orphans, func(x, y ir.Diagnostic) int { return comparePos(x.Pos, y.Pos) })
	for _, d := range orphans {
		a.out.AddDiagnostic(d)
	}

	a.out.Reserved = a.pkg.Types.Scope().Names()
}

// methodDecl is one declaration of a method in an interface hierarchy.
type methodDecl struct {
	fn    *types.Func
	owner string
	field *ast.Field // nil for interfaces declared outside the package
}

// collect walks named and its embedded interfaces. Explicit methods come
// first in source order, then embedded interfaces in the order written, so
// the first declaration of a name is the most derived one.
func (a *analyzer) collect(t types.Type, seen map[*types.Func]bool, visit func(methodDecl)) {
	iface, ok := t.Underlying().(*types.Interface)
	if !ok {
		return
	}
	owner := ""
	if n, ok := t.(*types.Named); ok {
		owner = n.Obj().Name()
	}
	explicit := make([]*types.Func, 0, iface.NumExplicitMethods())
	for i := 0; i < iface.NumExplicitMethods(); i++ {
		explicit = append(explicit, iface.ExplicitMethod(i))
	}
	slices.SortStableFunc(explicit, func(x, y *types.Func) int { return int(x.Origin().Pos() - y.Origin().Pos()) })
	for _, fn := range explicit {
		if seen[fn.Origin()] {
			continue
		}
		seen[fn.Origin()] = true
		visit(methodDecl{fn: fn, owner: owner, field: a.fields[fn.Origin().Pos()]})
	}
	for i := 0; i < iface.NumEmbeddeds(); i++ {
		a.collect(iface.EmbeddedType(i), seen, visit)
	}
}

// interfaceHeaders returns static headers declared on t and the interfaces it
// embeds. Embedded headers come first so the embedding interface overrides them.
func (a *analyzer) interfaceHeaders(t types.Type, depth int) []apistub.Header {
	if depth > 32 {
		return nil
	}
	iface, ok := t.Underlying().(*types.Interface)
	if !ok {
		return nil
	}
	var out []apistub.Header
	for i := 0; i < iface.NumEmbeddeds(); i++ {
		out = mergeHeaders(out, a.interfaceHeaders(iface.EmbeddedType(i), depth+1))
	}
	if n, ok := t.(*types.Named); ok {
		for _, d := range a.directivesOf(a.docs[n.Origin().Obj()]) {
			if d.IsStaticHeader() {
				out = mergeHeaders(out, []apistub.Header{{Name: d.HeaderName, Value: d.HeaderValue}})
			}
		}
	}
	return out
}

func (a *analyzer) directivesOf(cg *ast.CommentGroup) []directive.Directive {
	if cg == nil {
		return nil
	}
	return a.groups[cg]
}

// analyzeInterface returns nil for interfaces without any directive.
func (a *analyzer) analyzeInterface(named *types.Named) *ir.Interface {
	iface, ok := named.Underlying().(*types.Interface)
	if !ok || !iface.IsMethodSet() {
		return nil
	}

	type entry struct {
		name  string
		chain []methodDecl
	}
	var (
		entries []*entry
		byName  = make(map[string]*entry)
		marked  = len(a.directivesOf(a.docs[named.Obj()])) > 0
	)
	a.collect(named, make(map[*types.Func]bool), func(md methodDecl) {
		e, ok := byName[md.fn.Name()]
		if !ok {
			e = &entry{name: md.fn.Name()}
			byName[md.fn.Name()] = e
			entries = append(entries, e)
		}
		e.chain = append(e.chain, md)
		if md.field != nil && len(a.directivesOf(md.field.Doc)) > 0 {
			marked = true
		}
	})
	if !marked {
		return nil
	}

	out := &ir.Interface{
		Name:     named.Obj().Name(),
		Exported: named.Obj().Exported(),
		Pos:      a.fset.Position(named.Obj().Pos()),
		Named:    named,
	}
	if tps := named.TypeParams(); tps != nil {
		for i := 0; i < tps.Len(); i++ {
			tp := tps.At(i)
			out.TypeParams = append(out.TypeParams, apistub.TypeParam{
				Name:       tp.Obj().Name(),
				Constraint: types.TypeString(tp.Constraint(), a.qual),
			})
		}
	}
	for i := 0; i < iface.NumEmbeddeds(); i++ {
		out.Embeds = append(out.Embeds, types.TypeString(iface.EmbeddedType(i), a.qual))
	}
	headers := a.interfaceHeaders(named, 0)

	for _, e := range entries {
		if e.name == "Close" && isCloser(e.chain[0].fn) && !a.hasVerb(e.chain) {
			out.Disposable = true
			continue
		}
		m := a.analyzeMethod(out, e.chain, headers)
		out.Methods = append(out.Methods, m)
	}
	return out
}

func (a *analyzer) hasVerb(chain []methodDecl) bool {
	for _, md := range chain {
		if md.field == nil {
			continue
		}
		for _, d := range a.groups[md.field.Doc] {
			if d.Kind == directive.KindVerb {
				return true
			}
		}
	}
	return false
}

func (a *analyzer) diag(iface *ir.Interface, method string, pos token.Position, code ir.Code, sev ir.Severity, format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	a.out.AddDiagnostic(ir.Diagnostic{
		Code:      code,
		Severity:  sev,
		Message:   msg,
		Pos:       pos,
		Interface: iface.Name,
		Method:    method,
	})
	return msg
}

// tolerable reports whether a load error can be ignored. Until the generated
// file exists, code calling the client does not type-check; go list reports
// that as a list error positioned in one of the package's files.
func tolerable(pkg *packages.Package, e packages.Error) bool {
	switch e.Kind {
	case packages.TypeError:
		return true
	case packages.ParseError:
		return false
	}
	candidates := []string{e.Pos}
	candidates = append(candidates, strings.Split(e.Msg, "\n")...)
	for _, c := range candidates {
		file := positionFile(c)
		if file == "" {
			continue
		}
		for _, f := range pkg.GoFiles {
			f = filepath.ToSlash(f)
			if f == file || strings.HasSuffix(f, "/"+file) {
				return true
			}
		}
	}
	return false
}

// positionFile extracts the file of a "file:line:col: msg" position.
func positionFile(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), ": ")
	for range 2 {
		i := strings.LastIndexByte(s, ':')
		if i < 0 {
			break
		}
		if _, err := strconv.Atoi(s[i+1:]); err != nil {
			break
		}
		s = s[:i]
	}
	if !strings.HasSuffix(s, ".go") {
		return ""
	}
	return strings.TrimPrefix(filepath.ToSlash(s), "./")
}

func dirOf(file string) string {
	i := strings.LastIndexAny(file, `/\`)
	if i < 0 {
		return "."
	}
	return file[:i]
}

func comparePos(x, y token.Position) int {
	if c := strings.Compare(x.Filename, y.Filename); c != 0 {
		return c
	}
	if x.Line != y.Line {
		return x.Line - y.Line
	}
	return x.Column - y.Column
}
