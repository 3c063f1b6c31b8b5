package analyzer

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/broady/apistub"
	"github.com/broady/apistub/apistubgen/ir"
)

const (
	apiPkg = "github.com/broady/apistub/apistubgen/analyzer/testdata/api"
	badPkg = "github.com/broady/apistub/apistubgen/analyzer/testdata/bad"
)

func load(t *testing.T, path string) *ir.Package {
	t.Helper()
	pkgs, err := Load(context.Background(), Config{}, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("expected 1 package, got %d", len(pkgs))
	}
	if errs := pkgs[0].Validate(); errs != nil {
		t.Fatalf("analysis is inconsistent: %v", errs)
	}
	return pkgs[0]
}

func method(t *testing.T, iface *ir.Interface, name string) *ir.Method {
	t.Helper()
	for _, m := range iface.Methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("method %s.%s not found", iface.Name, name)
	return nil
}

func param(t *testing.T, d *apistub.RequestDescriptor, name string) apistub.Param {
	t.Helper()
	for _, p := range d.Params {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("param %s not found in %s", name, d.Name())
	return apistub.Param{}
}

func findDiagnostic(pkg *ir.Package, code ir.Code, method string) *ir.Diagnostic {
	for i, d := range pkg.Diagnostics {
		if d.Code == code && d.Method == method {
			return &pkg.Diagnostics[i]
		}
	}
	return nil
}

func TestLoad_Interfaces(t *testing.T) {
	pkg := load(t, apiPkg)

	var names []string
	for _, i := range pkg.Interfaces {
		names = append(names, i.Name)
	}
	if want := []string{"Base", "GitHub", "Store"}; !slices.Equal(names, want) {
		t.Errorf("interfaces = %v, want %v", names, want)
	}
	if pkg.FindInterface("Plain") != nil {
		t.Error("Plain has no directives and should be skipped")
	}
	if !slices.Contains(pkg.Reserved, "GitHub") || !slices.Contains(pkg.Reserved, "User") {
		t.Errorf("reserved names missing package declarations: %v", pkg.Reserved)
	}
}

func TestLoad_MethodOrder(t *testing.T) {
	pkg := load(t, apiPkg)
	gh := pkg.FindInterface("GitHub")

	var names []string
	for _, m := range gh.Methods {
		names = append(names, m.Name)
	}
	want := []string{"GetUser", "ListRepos", "CreateIssue", "Raw", "Events", "DeleteUser", "Search", "Upload", "Unannotated", "Ping"}
	if !slices.Equal(names, want) {
		t.Errorf("methods = %v, want %v", names, want)
	}
	if !gh.Disposable {
		t.Error("GitHub declares Close() error and should be disposable")
	}
	if !slices.Equal(gh.Embeds, []string{"Base"}) {
		t.Errorf("embeds = %v", gh.Embeds)
	}
}

func TestLoad_InheritedOverride(t *testing.T) {
	pkg := load(t, apiPkg)
	m := method(t, pkg.FindInterface("GitHub"), "GetUser")

	if m.Descriptor == nil {
		t.Fatalf("GetUser not implemented: %s", m.NotImplemented)
	}
	if m.DeclaredIn != "Base" {
		t.Errorf("DeclaredIn = %q, want Base", m.DeclaredIn)
	}
	d := m.Descriptor
	if d.Verb != "GET" || d.Path != "/users/{user}" {
		t.Errorf("verb/path = %s %s", d.Verb, d.Path)
	}
	want := []apistub.Header{
		{Name: "User-Agent", Value: "apistub-test"},
		{Name: "Accept", Value: "application/vnd.github+json"},
		{Name: "X-Trace", Value: "derived"},
	}
	if !slices.Equal(d.Headers, want) {
		t.Errorf("headers = %+v\nwant %+v", d.Headers, want)
	}

	diag := findDiagnostic(pkg, ir.CodePartialOverride, "GetUser")
	if diag == nil {
		t.Fatal("expected RF008 for GetUser")
	}
	if diag.Severity != ir.SeverityInfo || diag.Interface != "GitHub" {
		t.Errorf("diagnostic = %s", diag)
	}
}

func TestLoad_ParameterRoles(t *testing.T) {
	pkg := load(t, apiPkg)
	gh := pkg.FindInterface("GitHub")

	tests := []struct {
		method string
		param  string
		role   apistub.Role
		check  func(t *testing.T, p apistub.Param)
	}{
		{"CreateIssue", "ctx", apistub.RoleContext, nil},
		{"CreateIssue", "owner", apistub.RolePath, nil},
		{"CreateIssue", "repo", apistub.RolePath, nil},
		{"CreateIssue", "issue", apistub.RoleBody, func(t *testing.T, p apistub.Param) {
			if p.Body != apistub.BodyJSON || p.Streamed || !p.Nullable {
				t.Errorf("issue = %+v", p)
			}
		}},
		{"CreateIssue", "token", apistub.RoleAuthorize, func(t *testing.T, p apistub.Param) {
			if p.Scheme != "token" {
				t.Errorf("scheme = %q", p.Scheme)
			}
		}},
		{"ListRepos", "tags", apistub.RoleQuery, func(t *testing.T, p apistub.Param) {
			if p.Collection != apistub.CollectionCSV {
				t.Errorf("collection = %v", p.Collection)
			}
		}},
		{"ListRepos", "page", apistub.RoleQuery, func(t *testing.T, p apistub.Param) {
			if !p.Nullable || p.Type != "*int" {
				t.Errorf("page = %+v", p)
			}
		}},
		{"DeleteUser", "id", apistub.RolePath, func(t *testing.T, p apistub.Param) {
			if p.WireName() != "userID" {
				t.Errorf("wire name = %q", p.WireName())
			}
		}},
		{"Raw", "path", apistub.RolePath, nil},
		{"Search", "q", apistub.RoleQuery, nil},
		{"Search", "extra", apistub.RoleHeaderCollection, nil},
		{"Search", "trace", apistub.RoleProperty, func(t *testing.T, p apistub.Param) {
			if p.Key != "trace-id" {
				t.Errorf("key = %q", p.Key)
			}
		}},
		{"Upload", "name", apistub.RolePart, nil},
		{"Upload", "file", apistub.RolePart, nil},
	}

	for _, tt := range tests {
		t.Run(tt.method+"."+tt.param, func(t *testing.T) {
			m := method(t, gh, tt.method)
			if m.Descriptor == nil {
				t.Fatalf("not implemented: %s", m.NotImplemented)
			}
			p := param(t, m.Descriptor, tt.param)
			if p.Role != tt.role {
				t.Errorf("role = %v, want %v", p.Role, tt.role)
			}
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}

	if d := method(t, gh, "Upload").Descriptor; !d.Multipart {
		t.Error("Upload should be multipart")
	}
}

func TestLoad_ReturnShapes(t *testing.T) {
	pkg := load(t, apiPkg)
	gh := pkg.FindInterface("GitHub")

	tests := []struct {
		method string
		want   apistub.ReturnShape
	}{
		{"Ping", apistub.ReturnShape{Kind: apistub.ShapeFireAndForget}},
		{"GetUser", apistub.ReturnShape{Kind: apistub.ShapeValue, Type: "*User"}},
		{"ListRepos", apistub.ReturnShape{Kind: apistub.ShapeValue, Type: "[]string"}},
		{"CreateIssue", apistub.ReturnShape{Kind: apistub.ShapeEnvelope, Type: "Issue"}},
		{"Search", apistub.ReturnShape{Kind: apistub.ShapeEnvelope, Type: "[]User", Pointer: true}},
		{"Raw", apistub.ReturnShape{Kind: apistub.ShapeRaw}},
		{"Events", apistub.ReturnShape{Kind: apistub.ShapeStream, Type: "Event"}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			m := method(t, gh, tt.method)
			if m.Descriptor == nil {
				t.Fatalf("not implemented: %s", m.NotImplemented)
			}
			if m.Descriptor.Return != tt.want {
				t.Errorf("return = %+v, want %+v", m.Descriptor.Return, tt.want)
			}
		})
	}
}

func TestLoad_Unannotated(t *testing.T) {
	pkg := load(t, apiPkg)
	m := method(t, pkg.FindInterface("GitHub"), "Unannotated")
	if m.Descriptor != nil {
		t.Fatal("Unannotated should have no descriptor")
	}
	if m.NotImplemented != NotImplementedText {
		t.Errorf("reason = %q", m.NotImplemented)
	}
	d := findDiagnostic(pkg, ir.CodeNoDirective, "Unannotated")
	if d == nil || d.Severity != ir.SeverityWarning {
		t.Errorf("expected RF001 warning, got %v", d)
	}
	if pkg.HasErrors() {
		t.Errorf("unexpected errors: %v", pkg.Diagnostics)
	}
}

func TestLoad_Generic(t *testing.T) {
	pkg := load(t, apiPkg)
	store := pkg.FindInterface("Store")

	if want := []apistub.TypeParam{{Name: "T", Constraint: "any"}}; !slices.Equal(store.TypeParams, want) {
		t.Errorf("type params = %+v", store.TypeParams)
	}
	d := method(t, store, "Get").Descriptor
	if d.Return.Type != "T" {
		t.Errorf("return type = %q", d.Return.Type)
	}
	last := d.Params[len(d.Params)-1]
	if last.Role != apistub.RoleTypeWitness || last.Name != "T" {
		t.Errorf("last param = %+v, want the T witness", last)
	}
}

func TestLoad_Diagnostics(t *testing.T) {
	pkg := load(t, badPkg)

	if b := pkg.FindInterface("Broken"); b == nil || !b.Failed {
		t.Error("Broken should fail on its malformed template")
	}
	if d := findDiagnostic(pkg, ir.CodeBadTemplate, "Unbalanced"); d == nil {
		t.Error("expected RF002")
	}
	if u := pkg.FindInterface("Unbound"); u == nil || !u.Failed {
		t.Error("Unbound should fail on its unbound placeholder")
	}
	if d := findDiagnostic(pkg, ir.CodeUnboundPlaceholder, "Get"); d == nil || !strings.Contains(d.Message, "{id}") {
		t.Errorf("expected RF003 naming {id}, got %v", d)
	}

	methods := pkg.FindInterface("Methods")
	if methods.Failed {
		t.Fatal("method level problems must not fail the interface")
	}
	tests := []struct {
		method string
		code   ir.Code
		reason string
	}{
		{"Computed", ir.CodeNoDirective, "path BasePath is not a string literal"},
		{"TwoBodies", ir.CodeMultipleBodies, "2 body parameters"},
		{"Numbers", ir.CodeUnsupportedReturn, "unsupported result list"},
		{"TwoVerbs", ir.CodeMultipleVerbs, "2 HTTP operation directives"},
		{"Unknown", ir.CodeBadDirective, `unknown parameter "missing"`},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			m := method(t, methods, tt.method)
			if m.Descriptor != nil {
				t.Fatal("expected a not-implemented method")
			}
			if !strings.Contains(m.NotImplemented, tt.reason) {
				t.Errorf("reason = %q, want substring %q", m.NotImplemented, tt.reason)
			}
			if findDiagnostic(pkg, tt.code, tt.method) == nil {
				t.Errorf("expected %s for %s", tt.code, tt.method)
			}
		})
	}
	if method(t, methods, "OK").Descriptor == nil {
		t.Error("OK should still be implemented")
	}

	var emittable []string
	for _, i := range pkg.Emittable() {
		emittable = append(emittable, i.Name)
	}
	if !slices.Equal(emittable, []string{"Methods"}) {
		t.Errorf("emittable = %v, want [Methods]", emittable)
	}

	orphan := false
	for _, d := range pkg.Diagnostics {
		if d.Code == ir.CodeBadDirective && d.Severity == ir.SeverityWarning && d.Pos.Line > 0 {
			orphan = true
		}
	}
	if !orphan {
		t.Error("expected a warning for the directive above a var declaration")
	}
}

func TestLoad_NonexistentPackage(t *testing.T) {
	_, err := Load(context.Background(), Config{}, "github.com/broady/apistub/does/not/exist")
	if err == nil {
		t.Fatal("expected error for nonexistent package")
	}
}

func TestLoad_ToleratesMissingGeneratedCode(t *testing.T) {
	pkgs, err := Load(context.Background(), Config{}, "./testdata/consumer")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p := pkgs[0].FindInterface("Pinger")
	if p == nil || p.Qualifying() != 1 {
		t.Fatalf("Pinger not analyzed: %+v", p)
	}
}

func TestLoad_Example(t *testing.T) {
	// main.go calls NewGitHubClient, which only exists in the generated file.
	pkg := load(t, "github.com/broady/apistub/examples/github")
	if pkg.HasErrors() {
		t.Fatalf("diagnostics: %v", pkg.Diagnostics)
	}
	gh := pkg.FindInterface("GitHub")
	if gh == nil {
		t.Fatal("GitHub interface not analyzed")
	}
	if n := gh.Qualifying(); n != 5 {
		t.Errorf("Qualifying() = %d, want 5", n)
	}
}
