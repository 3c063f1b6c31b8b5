// Package bad holds interfaces with invalid directives.
package bad

const BasePath = "/v1"

type Broken interface {
	//apistub:get /a/{id
	Unbalanced(id string) error
}

type Unbound interface {
	//apistub:get /a/{id}
	Get(name string) error
}

type Methods interface {
	//apistub:get BasePath
	Computed() error

	//apistub:post /x
	//apistub:body a
	//apistub:body b
	TwoBodies(a, b string) error

	//apistub:get /y
	Numbers() chan int

	//apistub:get /z
	//apistub:put /z
	TwoVerbs() error

	//apistub:get /w
	//apistub:query missing
	Unknown(q string) error

	//apistub:get /ok
	OK() error
}

//apistub:get /orphan
var orphan = 1

var _ = orphan
