package apistub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Doer sends HTTP requests. *http.Client satisfies it. A Doer must be safe
// for concurrent use; stubs share one across all calls.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Stub is the runtime half of a generated client. Generated types hold a
// *Stub and pass it, with a descriptor and the call arguments, to Exec,
// Value, Envelope, Raw or Stream.
type Stub struct {
	transport Doer
	builder   *RequestBuilder
	iface     reflect.Type
	methods   MethodTable

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// NewStub creates a stub for the interface type iface. A nil transport
// means http.DefaultClient and a nil builder means DefaultRequestBuilder().
func NewStub(transport Doer, builder *RequestBuilder, iface reflect.Type) *Stub {
	if transport == nil {
		transport = http.DefaultClient
	}
	if builder == nil {
		builder = DefaultRequestBuilder()
	}
	return &Stub{transport: transport, builder: builder, iface: iface}
}

// MethodTable maps interface-qualified method names, such as
// "GitHub.GetUser", to their descriptors.
type MethodTable map[string]*RequestDescriptor

// WithMethods registers the method table of a generated client.
func (s *Stub) WithMethods(t MethodTable) *Stub {
	s.methods = t
	return s
}

// Describe returns the descriptor registered for an interface-qualified
// method name.
func (s *Stub) Describe(name string) (*RequestDescriptor, bool) {
	d, ok := s.methods[name]
	return d, ok
}

// Builder returns the stub's request builder.
func (s *Stub) Builder() *RequestBuilder { return s.builder }

// Close releases the transport. It is idempotent and safe to call
// concurrently with in-flight calls, which may then fail with a transport
// error. Calls started after Close return ErrClientClosed.
//
// The transport is closed with its Close method when it has one, otherwise
// idle connections are dropped with CloseIdleConnections.
func (s *Stub) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		switch t := s.transport.(type) {
		case io.Closer:
			s.closeErr = t.Close()
		case interface{ CloseIdleConnections() }:
			t.CloseIdleConnections()
		}
	})
	return s.closeErr
}

// Closed reports whether Close was called.
func (s *Stub) Closed() bool { return s.closed.Load() }

// contextArg returns the context argument of a call, or context.Background().
func contextArg(d *RequestDescriptor, args []any) context.Context {
	for i, p := range d.Params {
		if p.Role == RoleContext && i < len(args) {
			if ctx, ok := args[i].(context.Context); ok && ctx != nil {
				return ctx
			}
		}
	}
	return context.Background()
}

// send builds and sends one request. The caller owns the response body.
func (s *Stub) send(ctx context.Context, d *RequestDescriptor, args []any) (*http.Response, error) {
	if s.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, canceled(ctx, err)
	}
	b := s.builder
	req, content, err := b.build(ctx, d, s.iface, args)
	if err != nil {
		return nil, err
	}

	ctx, span := b.tracer.Start(req.Context(), d.Name(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
			attribute.String("apistub.interface", d.Interface),
			attribute.String("apistub.method", d.Method),
		),
	)
	defer span.End()
	req = req.WithContext(ctx)

	start := time.Now()
	b.logger.DebugContext(ctx, "request started",
		slog.String("call", d.Name()),
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
	)

	var sent bool
	invoke := chainInterceptors(b.interceptors, func(_ context.Context, r *http.Request) (*http.Response, error) {
		sent = true
		return s.transport.Do(r)
	})
	resp, err := invoke(ctx, req)
	// The transport closes the body it was given; anything else is ours.
	if req.Body != nil && (err != nil || !sent) {
		_ = req.Body.Close()
	}
	if err != nil {
		if encErr := content.encodeError(); encErr != nil && !errors.Is(encErr, io.ErrClosedPipe) {
			err = encErr
		} else {
			err = canceled(ctx, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.ErrorContext(ctx, "request failed",
			slog.String("call", d.Name()),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if !isSuccess(resp.StatusCode) {
		span.SetStatus(codes.Error, resp.Status)
	}
	b.logger.DebugContext(ctx, "request completed",
		slog.String("call", d.Name()),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func isSuccess(code int) bool { return code >= 200 && code <= 299 }

// readBody reads and closes the response body, normalizing cancellation.
func readBody(ctx context.Context, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return data, canceled(ctx, err)
	}
	return data, nil
}

// Exec performs a call whose response body is discarded. Non-success
// statuses are returned as *ApiError.
func Exec(s *Stub, d *RequestDescriptor, args ...any) error {
	ctx := contextArg(d, args)
	resp, err := s.send(ctx, d, args)
	if err != nil {
		return err
	}
	if !isSuccess(resp.StatusCode) {
		content, err := readBody(ctx, resp)
		if err != nil {
			return err
		}
		return newApiError(resp, content)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Value performs a call and decodes the response body into T.
//
// Non-success statuses are returned as *ApiError. string and []byte targets
// receive the raw body; other types are decoded by the builder's
// serializer, and an empty body yields the zero value. Serializer errors are
// returned unchanged.
func Value[T any](s *Stub, d *RequestDescriptor, args ...any) (T, error) {
	var zero T
	ctx := contextArg(d, args)
	resp, err := s.send(ctx, d, args)
	if err != nil {
		return zero, err
	}
	if !isSuccess(resp.StatusCode) {
		content, err := readBody(ctx, resp)
		if err != nil {
			return zero, err
		}
		return zero, newApiError(resp, content)
	}
	defer resp.Body.Close()
	v, err := decode[T](ctx, s.builder.serializer, resp.Body)
	if err != nil {
		return zero, canceled(ctx, err)
	}
	return v, nil
}

// decode reads a body into T.
func decode[T any](ctx context.Context, ser ContentSerializer, r io.Reader) (T, error) {
	var v T
	switch p := any(&v).(type) {
	case *string:
		data, err := io.ReadAll(&ctxReader{ctx: ctx, r: r})
		*p = string(data)
		return v, err
	case *[]byte:
		data, err := io.ReadAll(&ctxReader{ctx: ctx, r: r})
		*p = data
		return v, err
	}
	err := ser.FromResponseContent(ctx, r, &v)
	return v, err
}

// Raw performs a call and returns the transport response untouched,
// whatever its status. The caller must close the body.
func Raw(s *Stub, d *RequestDescriptor, args ...any) (*http.Response, error) {
	return s.send(contextArg(d, args), d, args)
}

// Envelope performs a call and wraps the outcome in a Response. It never
// fails because of the status code; only transport errors, cancellation
// and argument errors are returned.
func Envelope[T any](s *Stub, d *RequestDescriptor, args ...any) (*Response[T], error) {
	ctx := contextArg(d, args)
	resp, err := s.send(ctx, d, args)
	if err != nil {
		return nil, err
	}
	content, err := readBody(ctx, resp)
	if err != nil {
		return nil, err
	}
	return newResponse[T](ctx, s.builder.serializer, resp, content), nil
}
