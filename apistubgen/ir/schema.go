package ir

import (
	"fmt"
	"go/token"
	"go/types"

	"github.com/broady/apistub"
)

// Package is the analysis result for one Go package. It is the descriptor
// surface handed from the analyzer to the emitter.
type Package struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Dir  string `json:"dir"`

	// Interfaces lists the analyzed interfaces in source order.
	Interfaces []*Interface `json:"interfaces"`

	// Diagnostics contains every finding for the package.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	// Reserved holds package-scope identifiers that generated
	// declarations must not reuse.
	Reserved []string `json:"-"`

	// Types is the type-checked package, used to qualify type names.
	Types *types.Package `json:"-"`
}

// AddDiagnostic records a finding.
func (p *Package) AddDiagnostic(d Diagnostic) {
	p.Diagnostics = append(p.Diagnostics, d)
}

// HasErrors reports whether any diagnostic has error severity.
func (p *Package) HasErrors() bool {
	for _, d := range p.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// FindInterface looks up an interface by name. Returns nil if not found.
func (p *Package) FindInterface(name string) *Interface {
	for _, i := range p.Interfaces {
		if i.Name == name {
			return i
		}
	}
	return nil
}

// Emittable returns the interfaces a stub is generated for: those that did
// not fail and have at least one qualifying method.
func (p *Package) Emittable() []*Interface {
	var out []*Interface
	for _, i := range p.Interfaces {
		if !i.Failed && i.Qualifying() > 0 {
			out = append(out, i)
		}
	}
	return out
}

// Validate checks internal consistency of the analysis result.
// Returns nil if valid, or a slice of errors describing all violations.
func (p *Package) Validate() []error {
	var errs []error
	seen := make(map[string]bool)
	for _, iface := range p.Interfaces {
		if seen[iface.Name] {
			errs = append(errs, &ValidationError{
				Code:    "duplicate_interface",
				Message: fmt.Sprintf("interface %s appears more than once", iface.Name),
			})
		}
		seen[iface.Name] = true

		methods := make(map[string]bool)
		for _, m := range iface.Methods {
			if methods[m.Name] {
				errs = append(errs, &ValidationError{
					Code:    "duplicate_method",
					Message: fmt.Sprintf("%s.%s appears more than once", iface.Name, m.Name),
				})
			}
			methods[m.Name] = true

			d := m.Descriptor
			if d == nil {
				if m.NotImplemented == "" {
					errs = append(errs, &ValidationError{
						Code:    "missing_reason",
						Message: fmt.Sprintf("%s.%s has neither a descriptor nor a not-implemented reason", iface.Name, m.Name),
					})
				}
				continue
			}
			if len(d.Params) != len(m.Params)+len(iface.TypeParams) {
				errs = append(errs, &ValidationError{
					Code:    "param_count",
					Message: fmt.Sprintf("%s.%s descriptor has %d params, signature has %d", iface.Name, m.Name, len(d.Params), len(m.Params)),
				})
			}
			bodies := 0
			for _, prm := range d.Params {
				if prm.Role == apistub.RoleBody {
					bodies++
				}
			}
			if bodies > 1 {
				errs = append(errs, &ValidationError{
					Code:    "multiple_bodies",
					Message: fmt.Sprintf("%s.%s has %d body parameters", iface.Name, m.Name, bodies),
				})
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidationError represents an analysis consistency error.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Interface is an analyzed interface declaration.
type Interface struct {
	Name       string              `json:"name"`
	Exported   bool                `json:"exported"`
	TypeParams []apistub.TypeParam `json:"typeParams,omitempty"`
	// Embeds lists embedded interfaces, as written.
	Embeds []string `json:"embeds,omitempty"`
	// Disposable is set when the method set contains Close() error.
	Disposable bool      `json:"disposable,omitempty"`
	Methods    []*Method `json:"methods"`
	// Failed is set when a malformed path template invalidates the whole interface.
	Failed bool           `json:"failed,omitempty"`
	Pos    token.Position `json:"pos"`

	// Named is the declared type.
	Named *types.Named `json:"-"`
}

// Qualifying returns the number of methods with a descriptor.
func (i *Interface) Qualifying() int {
	n := 0
	for _, m := range i.Methods {
		if m.Descriptor != nil {
			n++
		}
	}
	return n
}

// Method is one member of an interface's method set, excluding Close.
type Method struct {
	Name string `json:"name"`
	// DeclaredIn names the interface whose declaration supplied the verb.
	DeclaredIn string   `json:"declaredIn"`
	Params     []Param  `json:"params"`
	Results    []string `json:"results"`
	Variadic   bool     `json:"variadic,omitempty"`

	// Descriptor is nil for methods that get a not-implemented stub.
	Descriptor *apistub.RequestDescriptor `json:"descriptor,omitempty"`
	// NotImplemented is the reason repeated by the generated error.
	NotImplemented string `json:"notImplemented,omitempty"`

	Pos token.Position `json:"pos"`

	// Signature is the method signature as seen through the interface.
	Signature *types.Signature `json:"-"`
}

// Param is a method parameter as declared.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
