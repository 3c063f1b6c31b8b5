package apistub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrCanceled marks a call that stopped because its context was done.
	// The context error is wrapped too, so errors.Is(err, context.Canceled)
	// and errors.Is(err, context.DeadlineExceeded) keep working.
	ErrCanceled = errors.New("apistub: request canceled")

	// ErrClientClosed is returned by calls made after the stub was closed.
	ErrClientClosed = errors.New("apistub: client closed")

	// ErrNotImplemented is matched by every *NotImplementedError.
	ErrNotImplemented = errors.New("apistub: method not implemented")

	// ErrStreamConsumed is yielded when a stream is ranged over twice.
	ErrStreamConsumed = errors.New("apistub: stream already consumed")
)

// ApiError is returned when a value or fire-and-forget call receives a
// non-success status. It carries everything needed to inspect the failure.
type ApiError struct {
	StatusCode int
	Status     string
	Method     string
	URL        string
	Header     http.Header
	Content    []byte

	// Problem is set when the response is application/problem+json
	// or the JSON error envelope {"code","message","details"}.
	Problem *Problem
}

func (e *ApiError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.URL, status)
	if e.Problem != nil {
		if d := e.Problem.Message(); d != "" {
			msg += ": " + d
		}
	}
	return msg
}

// Problem is an RFC 9457 problem document. The Code, ErrMessage and Details
// fields also accept the common {"code","message","details"} error envelope.
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Status   int    `json:"status,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Code       string         `json:"code,omitempty"`
	ErrMessage string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Message returns the most specific human-readable text in the problem.
func (p *Problem) Message() string {
	switch {
	case p.Detail != "":
		return p.Detail
	case p.ErrMessage != "":
		if p.Code != "" {
			return p.Code + ": " + p.ErrMessage
		}
		return p.ErrMessage
	default:
		return p.Title
	}
}

// newApiError builds an ApiError from a response whose body was already read.
func newApiError(resp *http.Response, content []byte) *ApiError {
	e := &ApiError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Content:    content,
	}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		e.URL = resp.Request.URL.String()
	}
	if len(content) > 0 && isJSONContent(resp.Header.Get("Content-Type")) {
		var p Problem
		if err := json.Unmarshal(content, &p); err == nil && (p.Title != "" || p.Detail != "" || p.Code != "" || p.ErrMessage != "") {
			e.Problem = &p
		}
	}
	return e
}

func isJSONContent(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// ArgumentError reports a call argument that cannot be turned into a request.
// It is returned before any network I/O.
type ArgumentError struct {
	Method  string // Interface.Method
	Param   string
	Message string
	Err     error
}

func (e *ArgumentError) Error() string {
	msg := fmt.Sprintf("%s: argument %q: %s", e.Method, e.Param, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// NotImplementedError is returned by generated methods that had no usable
// HTTP directive. Reason repeats the generator warning.
type NotImplementedError struct {
	Interface string
	Method    string
	Reason    string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s.%s is not implemented: %s", e.Interface, e.Method, e.Reason)
}

func (e *NotImplementedError) Is(target error) bool { return target == ErrNotImplemented }

// NotImplemented is called by generated stubs for methods without a usable directive.
func NotImplemented(iface, method, reason string) error {
	return &NotImplementedError{Interface: iface, Method: method, Reason: reason}
}

// canceled normalizes a failure that happened while ctx was done.
// Other errors are returned unchanged.
func canceled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(err, ErrCanceled) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCanceled, ctxErr)
	}
	return err
}

// ConfigError reports invalid RequestBuilder settings.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("apistub: invalid setting %s: %s", e.Field, e.Message)
}

// configErrors converts validator failures into ConfigErrors.
func configErrors(err error) error {
	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		return err
	}
	errs := make([]error, 0, len(valErrs))
	for _, ve := range valErrs {
		errs = append(errs, &ConfigError{Field: ve.Field(), Message: formatValidationError(ve)})
	}
	return errors.Join(errs...)
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return "required"
	case "url", "http_url":
		return "must be a valid URL"
	case "gte":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", ve.Param())
	default:
		if ve.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", ve.Tag(), ve.Param())
		}
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}
