// Package collide declares interfaces whose generated names collide.
package collide

import (
	"context"
	"net/http"
)

// NewAClient is user code the generated constructor must not replace.
func NewAClient() {}

type AB interface {
	//apistub:get /c
	C(ctx context.Context) error
}

type A interface {
	//apistub:get /bc
	BC(ctx context.Context) error

	//apistub:get /search
	Search(ctx context.Context, http string, c int) (*http.Response, error)

	//apistub:get BasePath
	Computed(ctx context.Context) (map[string]int, error)

	Legacy() int
}
