package apistub

import (
	"bytes"
	"context"
	"net/http"
)

// Response is the envelope return type. It exposes the status, headers and
// raw content of a response and never turns a failure status into an error.
//
//	//apistub:get /users/{id}
//	GetUser(ctx context.Context, id int) (*apistub.Response[User], error)
type Response[T any] struct {
	StatusCode int
	Status     string
	Header     http.Header
	RawContent []byte

	// Content is the decoded body for 2xx responses and the zero value otherwise.
	Content T

	// Error is an *ApiError for non-2xx responses, or the serializer error
	// when a 2xx body could not be decoded.
	Error error

	// Request is the request that produced this response.
	Request *http.Request
}

// IsSuccess reports whether the status code is 2xx and the content decoded.
func (r *Response[T]) IsSuccess() bool {
	return isSuccess(r.StatusCode) && r.Error == nil
}

// EnsureSuccess returns r.Error, so callers can opt into value semantics.
func (r *Response[T]) EnsureSuccess() error {
	return r.Error
}

func newResponse[T any](ctx context.Context, ser ContentSerializer, resp *http.Response, content []byte) *Response[T] {
	r := &Response[T]{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		RawContent: content,
		Request:    resp.Request,
	}
	if !isSuccess(resp.StatusCode) {
		r.Error = newApiError(resp, content)
		return r
	}
	v, err := decode[T](ctx, ser, bytes.NewReader(content))
	if err != nil {
		r.Error = err
		return r
	}
	r.Content = v
	return r
}
