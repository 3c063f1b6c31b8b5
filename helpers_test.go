package apistub

import (
	"context"
	"net/http"
	"reflect"
	"testing"

	"github.com/broady/apistub/testutil"
)

type User struct {
	ID    int    `json:"id" xml:"id"`
	Login string `json:"login" xml:"login"`
}

type testAPI interface {
	GetUser(ctx context.Context, id int) (User, error)
}

var testAPIType = reflect.TypeFor[testAPI]()

// desc returns a descriptor for testAPI with the given verb, path and params.
func desc(verb, path string, params ...Param) *RequestDescriptor {
	return &RequestDescriptor{
		Interface: "testAPI",
		Method:    "Call",
		Verb:      verb,
		Path:      path,
		Params:    params,
	}
}

// ctxParam is the conventional leading context parameter.
var ctxParam = Param{Name: "ctx", Role: RoleContext, Type: "context.Context"}

// newTestStub starts a recording server with h and returns a stub pointed at it.
func newTestStub(t *testing.T, h http.Handler, configure ...func(*RequestBuilder)) (*Stub, *testutil.Server) {
	t.Helper()
	srv := testutil.NewServer(t, h)
	b := NewRequestBuilder().WithBaseURL(srv.URL)
	for _, fn := range configure {
		fn(b)
	}
	return NewStub(srv.Client(), b, testAPIType), srv
}

// build assembles a request with a fresh builder, failing the test on error.
func build(t *testing.T, b *RequestBuilder, d *RequestDescriptor, args ...any) *http.Request {
	t.Helper()
	if b == nil {
		b = NewRequestBuilder()
	}
	req, err := b.Build(context.Background(), d, testAPIType, args)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return req
}
