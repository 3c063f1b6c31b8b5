package ir

import (
	"fmt"
	"go/token"
)

// Code identifies a class of diagnostic.
type Code string

const (
	// CodeNoDirective: method has no recognized HTTP directive or its path is
	// not a string literal. The method gets a stub returning NotImplementedError.
	CodeNoDirective Code = "RF001"
	// CodeBadTemplate: unbalanced braces or an invalid placeholder.
	CodeBadTemplate Code = "RF002"
	// CodeUnboundPlaceholder: a placeholder matches no parameter name or alias.
	CodeUnboundPlaceholder Code = "RF003"
	// CodeMultipleBodies: more than one parameter has the body role.
	CodeMultipleBodies Code = "RF004"
	// CodeUnsupportedReturn: the result list maps to no return shape.
	CodeUnsupportedReturn Code = "RF005"
	// CodeMultipleVerbs: a method carries more than one HTTP operation directive.
	CodeMultipleVerbs Code = "RF006"
	// CodeBadDirective: malformed directive or one naming an unknown parameter.
	CodeBadDirective Code = "RF007"
	// CodePartialOverride: a redeclared method merges directives from an
	// embedded interface.
	CodePartialOverride Code = "RF008"
)

// Severity orders diagnostics by impact.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Diagnostic is a build-time finding. Diagnostics never reach runtime callers.
type Diagnostic struct {
	Code      Code           `json:"code"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Pos       token.Position `json:"pos"`
	Interface string         `json:"interface,omitempty"`
	Method    string         `json:"method,omitempty"`
}

func (d Diagnostic) String() string {
	subject := d.Interface
	if d.Method != "" {
		subject += "." + d.Method
	}
	pos := d.Pos.String()
	if !d.Pos.IsValid() {
		pos = "-"
	}
	return fmt.Sprintf("%s: %s %s: %s: %s", pos, d.Code, d.Severity, subject, d.Message)
}
