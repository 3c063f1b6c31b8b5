package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/broady/apistub/cmd/apistub/internal/check"
	"github.com/broady/apistub/cmd/apistub/internal/gen"
)

type CLI struct {
	Version VersionCmd `cmd:"" help:"Print version information."`
	Gen     gen.Cmd    `cmd:"" help:"Generate HTTP client stubs for annotated interfaces."`
	Check   check.Cmd  `cmd:"" help:"Verify generated stubs are up to date without writing files."`
}

type VersionCmd struct {
	Verbose bool `help:"Include Go version and VCS details." short:"v"`
}

func (c *VersionCmd) Run() error {
	if c.Verbose {
		fmt.Println(BuildInfo())
		return nil
	}
	fmt.Println(Version())
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("apistub"),
		kong.Description("Generate HTTP client stubs from annotated Go interfaces."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
