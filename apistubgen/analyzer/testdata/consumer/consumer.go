// Package consumer uses the client generated from its own interface.
package consumer

import "context"

type Pinger interface {
	//apistub:get /ping
	Ping(ctx context.Context) error
}

// Check only type-checks once the generated file exists.
func Check(ctx context.Context) error {
	return NewPingerClient(nil, nil).Ping(ctx)
}
