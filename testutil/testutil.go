// Package testutil provides an HTTP test server that records the requests
// generated clients send, plus canned responders and assertions.
// This package is designed to be import-cycle safe and can be used from any package.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// Recorded is a request as the server received it. Body is fully read.
type Recorded struct {
	Method   string
	Path     string
	RawPath  string
	RawQuery string
	Query    url.Values
	Header   http.Header
	Body     []byte
}

// Server is an httptest.Server that records every request before handing
// it to the wrapped handler.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Recorded
}

// NewServer starts a recording server in front of h. A nil handler replies
// 204 No Content. The server is closed when the test ends.
func NewServer(t testing.TB, h http.Handler) *Server {
	t.Helper()
	if h == nil {
		h = Respond(http.StatusNoContent, "", "")
	}
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		s.mu.Lock()
		s.requests = append(s.requests, Recorded{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawPath:  r.URL.EscapedPath(),
			RawQuery: r.URL.RawQuery,
			Query:    r.URL.Query(),
			Header:   r.Header.Clone(),
			Body:     body,
		})
		s.mu.Unlock()
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// Requests returns a copy of the recorded requests in arrival order.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recorded(nil), s.requests...)
}

// Last returns the most recent request, failing the test if there is none.
func (s *Server) Last(t testing.TB) Recorded {
	t.Helper()
	reqs := s.Requests()
	if len(reqs) == 0 {
		t.Fatal("no request recorded")
	}
	return reqs[len(reqs)-1]
}

// Respond replies with a fixed status, content type and body.
func Respond(status int, contentType, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// JSON replies with v encoded as JSON.
func JSON(status int, v any) http.HandlerFunc {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Respond(status, "application/json", string(data))
}

// ErrorResponse is the {"code","message","details"} error envelope.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error replies with the error envelope.
func Error(status int, code, message string) http.HandlerFunc {
	data, _ := json.Marshal(ErrorResponse{Code: code, Message: message})
	return Respond(status, "application/json", string(data))
}

// Problem replies with an RFC 9457 problem document.
func Problem(status int, title, detail string) http.HandlerFunc {
	data, _ := json.Marshal(map[string]any{"title": title, "detail": detail, "status": status})
	return Respond(status, "application/problem+json", string(data))
}

// AssertHeader checks that a recorded request header has the expected value.
func AssertHeader(t testing.TB, r Recorded, key, expectedValue string) {
	t.Helper()
	actual := r.Header.Get(key)
	if actual != expectedValue {
		t.Errorf("expected header %s=%q, got %q", key, expectedValue, actual)
	}
}

// AssertJSONBody compares the recorded body with expected, ignoring formatting.
func AssertJSONBody(t testing.TB, r Recorded, expected any) {
	t.Helper()

	expectedJSON, _ := json.Marshal(expected)
	var expectedData, actualData any
	_ = json.Unmarshal(expectedJSON, &expectedData)
	if err := json.Unmarshal(r.Body, &actualData); err != nil {
		t.Fatalf("request body is not JSON: %v\nBody: %s", err, r.Body)
	}

	expectedStr, _ := json.MarshalIndent(expectedData, "", "  ")
	actualStr, _ := json.MarshalIndent(actualData, "", "  ")
	if string(expectedStr) != string(actualStr) {
		t.Errorf("body mismatch:\nExpected:\n%s\nActual:\n%s", expectedStr, actualStr)
	}
}

// DecodeJSON decodes the recorded body into v.
func DecodeJSON(t testing.TB, r Recorded, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		t.Fatalf("failed to decode request body: %v\nBody: %s", err, r.Body)
	}
}
