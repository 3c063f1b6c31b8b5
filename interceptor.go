package apistub

import (
	"context"
	"net/http"
)

// Invoker sends a built request. The innermost invoker is the transport.
type Invoker func(ctx context.Context, req *http.Request) (*http.Response, error)

// Interceptor wraps the sending of every request built by a RequestBuilder.
//
//	func timing(ctx context.Context, req *http.Request, next apistub.Invoker) (*http.Response, error) {
//	    start := time.Now()
//	    resp, err := next(ctx, req)
//	    iface, method, _ := apistub.MethodFromContext(ctx)
//	    log.Printf("%s.%s took %v", iface, method, time.Since(start))
//	    return resp, err
//	}
//
// Interceptors can:
//   - Inspect or modify the request before calling next
//   - Inspect or replace the response after calling next
//   - Short-circuit by returning without calling next
//
// The request context carries the CallInfo and the property bag.
type Interceptor func(ctx context.Context, req *http.Request, next Invoker) (*http.Response, error)

// chainInterceptors combines multiple interceptors around final.
// The first interceptor in the slice is the outer-most one (runs first).
func chainInterceptors(interceptors []Interceptor, final Invoker) Invoker {
	chain := final
	for i := len(interceptors) - 1; i >= 0; i-- {
		current := interceptors[i]
		next := chain
		chain = func(ctx context.Context, req *http.Request) (*http.Response, error) {
			return current(ctx, req, next)
		}
	}
	return chain
}
