package apistub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
)

func response(status int, contentType string) *http.Response {
	u, _ := url.Parse("https://api.example.com/users/1")
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     h,
		Request:    &http.Request{Method: http.MethodGet, URL: u},
	}
}

func TestNewApiError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantMsg     string
		wantProblem bool
	}{
		{
			name: "problem", status: 422, contentType: "application/problem+json",
			body:        `{"type":"about:blank","title":"Unprocessable","detail":"name is required"}`,
			wantMsg:     "GET https://api.example.com/users/1: 422 Unprocessable Entity: name is required",
			wantProblem: true,
		},
		{
			name: "error envelope", status: 403, contentType: "application/json",
			body:        `{"code":"forbidden","message":"token lacks scope"}`,
			wantMsg:     "GET https://api.example.com/users/1: 403 Forbidden: forbidden: token lacks scope",
			wantProblem: true,
		},
		{
			name: "title only", status: 500, contentType: "application/vnd.api+json",
			body:        `{"title":"Server Error"}`,
			wantMsg:     "GET https://api.example.com/users/1: 500 Internal Server Error: Server Error",
			wantProblem: true,
		},
		{
			name: "unrelated json", status: 404, contentType: "application/json",
			body:    `{"id":1}`,
			wantMsg: "GET https://api.example.com/users/1: 404 Not Found",
		},
		{
			name: "html", status: 502, contentType: "text/html",
			body:    `<h1>Bad Gateway</h1>`,
			wantMsg: "GET https://api.example.com/users/1: 502 Bad Gateway",
		},
		{
			name: "invalid json", status: 400, contentType: "application/json",
			body:    `{`,
			wantMsg: "GET https://api.example.com/users/1: 400 Bad Request",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newApiError(response(tt.status, tt.contentType), []byte(tt.body))
			if got := err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if (err.Problem != nil) != tt.wantProblem {
				t.Errorf("Problem = %+v, wantProblem %v", err.Problem, tt.wantProblem)
			}
			if string(err.Content) != tt.body {
				t.Errorf("Content = %q", err.Content)
			}
		})
	}
}

func TestApiError_StatusFallback(t *testing.T) {
	err := &ApiError{StatusCode: 418, Method: "PUT", URL: "/pot"}
	if got, want := err.Error(), "PUT /pot: 418 I'm a teapot"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNotImplemented(t *testing.T) {
	err := NotImplemented("GitHub", "Search", "no HTTP method directive")
	if !errors.Is(err, ErrNotImplemented) {
		t.Error("NotImplemented should match ErrNotImplemented")
	}
	var nie *NotImplementedError
	if !errors.As(err, &nie) || nie.Method != "Search" {
		t.Fatalf("errors.As failed: %v", err)
	}
	if got, want := err.Error(), "GitHub.Search is not implemented: no HTTP method directive"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestArgumentError(t *testing.T) {
	inner := errors.New("boom")
	err := &ArgumentError{Method: "API.Get", Param: "id", Message: "cannot format", Err: inner}
	if got, want := err.Error(), `API.Get: argument "id": cannot format: boom`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, inner) {
		t.Error("ArgumentError should unwrap")
	}
}

func TestCanceled(t *testing.T) {
	other := errors.New("other")
	if got := canceled(context.Background(), other); got != other {
		t.Errorf("live context changed the error: %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := canceled(ctx, other)
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Errorf("canceled() = %v", err)
	}
	if again := canceled(ctx, err); again != err {
		t.Errorf("already-normalized errors should pass through, got %v", again)
	}
}
