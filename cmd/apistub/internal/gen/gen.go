// Package gen implements the gen and check commands.
package gen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/broady/apistub/apistubgen"
	"github.com/broady/apistub/apistubgen/sink"
	"github.com/broady/apistub/cmd/apistub/internal/ui"
)

// ErrFailed is returned when a run produced failing diagnostics.
var ErrFailed = errors.New("generation failed")

// ErrStale is returned by check mode when generated files are out of date.
var ErrStale = errors.New("generated files are out of date")

// Flags are shared by gen and check.
type Flags struct {
	Packages       []string `arg:"" optional:"" help:"Package patterns to analyze (default: from config, or \".\")."`
	Config         string   `help:"Path to a config file (default: apistub.yaml in --dir)." short:"c" type:"path"`
	Dir            string   `help:"Directory patterns and output paths are relative to." short:"C" type:"existingdir"`
	Output         string   `help:"Generated file name in each package." short:"o"`
	Tags           []string `help:"Extra build tags." sep:","`
	LogLevel       string   `help:"Log level (debug, info, warn, error)." name:"log-level"`
	LogFormat      string   `help:"Log encoding." name:"log-format" enum:"json,console" default:"console"`
	FailOnWarnings bool     `help:"Treat warning diagnostics as failures." name:"fail-on-warnings"`
}

// Cmd is the gen command.
type Cmd struct {
	Flags `embed:""`

	Check      bool   `help:"Verify generated files are up to date without writing."`
	Watch      bool   `help:"Regenerate when source files change." short:"w"`
	Dump       string `help:"Write the analysis result as JSON to this file (- for stdout)." placeholder:"FILE"`
	NoProgress bool   `help:"Hide the progress bar." name:"no-progress"`
}

func (c *Cmd) Run() error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := c.config()
	if err != nil {
		return err
	}
	cfg.Check = cfg.Check || c.Check
	cfg.Watch = cfg.Watch || c.Watch
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := ui.NewLogger(os.Stderr, cfg.LogLevel, c.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	g := apistubgen.New(cfg).WithLogger(logger)
	root, err := g.Root()
	if err != nil {
		return err
	}

	switch {
	case cfg.Check:
		return check(ctx, g, root, cfg.FailOnWarnings)
	case cfg.Watch:
		logger.Info("watching for changes", zap.Strings("packages", cfg.Packages))
		return g.Watch(ctx, sink.NewFilesystemSink(root), func(res *apistubgen.Result, err error) {
			if err != nil {
				logger.Error("generation failed", zap.Error(err))
				return
			}
			if err := c.dump(res); err != nil {
				logger.Warn("dump analysis", zap.Error(err))
			}
		})
	}

	g.WithProgress(ui.NewProgress(os.Stderr, c.NoProgress || c.Dump == "-"))
	res, err := g.Run(ctx, sink.NewFilesystemSink(root))
	if err != nil {
		return err
	}
	if err := c.dump(res); err != nil {
		return err
	}
	return verdict(res, cfg.FailOnWarnings)
}

// RunCheck runs the check mode of gen with f.
func RunCheck(f Flags) error {
	c := &Cmd{Flags: f, Check: true, NoProgress: true}
	return c.Run()
}

// config loads the config file and applies flag overrides.
func (f *Flags) config() (apistubgen.Config, error) {
	cfg, err := apistubgen.LoadConfig(f.Config, f.Dir)
	if err != nil {
		return cfg, err
	}
	if len(f.Packages) > 0 {
		cfg.Packages = f.Packages
	}
	if f.Dir != "" {
		cfg.Dir = f.Dir
	}
	if f.Output != "" {
		cfg.Output = f.Output
	}
	if len(f.Tags) > 0 {
		cfg.Tags = f.Tags
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	cfg.FailOnWarnings = cfg.FailOnWarnings || f.FailOnWarnings
	return cfg, nil
}

func (c *Cmd) dump(res *apistubgen.Result) error {
	if c.Dump == "" {
		return nil
	}
	var w io.Writer = os.Stdout
	if c.Dump != "-" {
		f, err := os.Create(c.Dump)
		if err != nil {
			return fmt.Errorf("create dump: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// check compares generated output with the files under root.
func check(ctx context.Context, g *apistubgen.Generator, root string, failOnWarnings bool) error {
	out := sink.NewCheckSink(root)
	res, err := g.Run(ctx, out)
	if err != nil {
		return err
	}
	if stale := out.Stale(); len(stale) > 0 {
		return fmt.Errorf("%w: %s (run apistub gen)", ErrStale, strings.Join(stale, ", "))
	}
	return verdict(res, failOnWarnings)
}

func verdict(res *apistubgen.Result, failOnWarnings bool) error {
	if res.Failed(failOnWarnings) {
		return fmt.Errorf("%w: %d errors, %d warnings", ErrFailed, res.Errors, res.Warnings)
	}
	return nil
}
