package apistub

import (
	"context"
	"reflect"
)

type contextKey struct {
	name string
}

var callKey = &contextKey{"call"}

// CallInfo identifies the interface method behind an outgoing request.
type CallInfo struct {
	Descriptor *RequestDescriptor
	Interface  reflect.Type
}

// Name returns "Interface.Method".
func (c *CallInfo) Name() string { return c.Descriptor.Name() }

// CallFromContext returns the call being executed. Interceptors use it to
// label logs and metrics.
func CallFromContext(ctx context.Context) (*CallInfo, bool) {
	info, ok := ctx.Value(callKey).(*CallInfo)
	return info, ok
}

// MethodFromContext returns the interface and method name of the current call.
func MethodFromContext(ctx context.Context) (iface, method string, ok bool) {
	if info, ok := CallFromContext(ctx); ok {
		return info.Descriptor.Interface, info.Descriptor.Method, true
	}
	return "", "", false
}

func newCallContext(ctx context.Context, info *CallInfo, props Properties) context.Context {
	ctx = context.WithValue(ctx, callKey, info)
	ctx = context.WithValue(ctx, propertiesKey, props)
	return ctx
}

// WithCall returns a context carrying info. It is useful for exercising
// interceptors outside a stub.
func WithCall(ctx context.Context, info *CallInfo) context.Context {
	return context.WithValue(ctx, callKey, info)
}
