// Package check implements the check command: it analyzes packages and
// fails when generated files are missing or out of date.
package check

import (
	"github.com/broady/apistub/cmd/apistub/internal/gen"
)

type Cmd struct {
	gen.Flags `embed:""`
}

func (c *Cmd) Run() error {
	return gen.RunCheck(c.Flags)
}
