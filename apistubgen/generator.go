// Package apistubgen generates HTTP client stubs from annotated Go interfaces.
//
// A Generator loads the configured packages, analyzes every interface that
// carries //apistub: directives and writes one generated file per package:
//
//	cfg := apistubgen.DefaultConfig()
//	cfg.Packages = []string{"./api/..."}
//	res, err := apistubgen.New(cfg).
//	    WithLogger(logger).
//	    Run(ctx, sink.NewFilesystemSink("."))
package apistubgen

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/broady/apistub/apistubgen/analyzer"
	"github.com/broady/apistub/apistubgen/golang"
	"github.com/broady/apistub/apistubgen/ir"
	"github.com/broady/apistub/apistubgen/sink"
	"github.com/broady/apistub/internal/discover"
)

// Progress observes a generation run.
type Progress interface {
	Start(total int)
	Advance(pkg string)
	Finish()
}

// Result summarizes a generation run.
type Result struct {
	Packages []*ir.Package `json:"packages"`
	// Written lists the generated paths, relative to the sink root.
	Written []string `json:"written,omitempty"`
	// Removed lists the paths handed to the sink for removal because their
	// package has nothing to emit.
	Removed  []string `json:"removed,omitempty"`
	Errors   int      `json:"errors"`
	Warnings int      `json:"warnings"`
}

// Failed reports whether the run should fail the build.
func (r *Result) Failed(failOnWarnings bool) bool {
	return r.Errors > 0 || (failOnWarnings && r.Warnings > 0)
}

// Generator runs analysis and emission.
type Generator struct {
	cfg      Config
	logger   *zap.Logger
	progress Progress
}

// New creates a Generator for cfg.
func New(cfg Config) *Generator {
	return &Generator{cfg: cfg, logger: zap.NewNop()}
}

// WithLogger sets the logger for diagnostics and progress.
func (g *Generator) WithLogger(logger *zap.Logger) *Generator {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithProgress reports per-package progress to p.
func (g *Generator) WithProgress(p Progress) *Generator {
	g.progress = p
	return g
}

// Root returns the absolute directory generated paths are relative to.
func (g *Generator) Root() (string, error) {
	dir := g.cfg.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Abs(dir)
}

// Run generates stubs for every configured package and hands them to out.
// Diagnostics never abort the run; they are logged and counted.
func (g *Generator) Run(ctx context.Context, out sink.OutputSink) (*Result, error) {
	if err := g.cfg.Validate(); err != nil {
		return nil, err
	}
	root, err := g.Root()
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	start := time.Now()
	pkgs, err := analyzer.Load(ctx, analyzer.Config{Dir: g.cfg.Dir, Tags: g.cfg.Tags}, g.cfg.Packages...)
	if err != nil {
		return nil, err
	}

	if g.progress != nil {
		g.progress.Start(len(pkgs))
		defer g.progress.Finish()
	}

	res := &Result{Packages: pkgs}
	for _, pkg := range pkgs {
		g.report(pkg, res)
		if errs := pkg.Validate(); errs != nil {
			return res, fmt.Errorf("package %s: inconsistent analysis: %w", pkg.Path, errors.Join(errs...))
		}

		path, err := outputPath(root, pkg.Dir, g.cfg.Output)
		if err != nil {
			return res, fmt.Errorf("package %s: %w", pkg.Path, err)
		}

		src, err := golang.Emit(pkg)
		if err != nil {
			return res, fmt.Errorf("package %s: %w", pkg.Path, err)
		}
		switch {
		case src != nil:
			if err := out.WriteFile(ctx, path, src); err != nil {
				return res, fmt.Errorf("write %s: %w", path, err)
			}
			res.Written = append(res.Written, path)
			g.logger.Debug("generated stubs",
				zap.String("package", pkg.Path),
				zap.String("path", path),
				zap.Int("interfaces", len(pkg.Emittable())),
			)
		default:
			if r, ok := out.(sink.Remover); ok {
				if err := r.RemoveFile(ctx, path); err != nil {
					return res, err
				}
				res.Removed = append(res.Removed, path)
			}
		}

		if g.progress != nil {
			g.progress.Advance(pkg.Path)
		}
	}

	g.logger.Info("generation finished",
		zap.Int("packages", len(pkgs)),
		zap.Int("files", len(res.Written)),
		zap.Int("errors", res.Errors),
		zap.Int("warnings", res.Warnings),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// report logs the diagnostics of pkg and counts them into res.
func (g *Generator) report(pkg *ir.Package, res *Result) {
	for _, d := range pkg.Diagnostics {
		fields := []zap.Field{
			zap.String("code", string(d.Code)),
			zap.String("pos", d.Pos.String()),
		}
		if d.Interface != "" {
			fields = append(fields, zap.String("interface", d.Interface))
		}
		if d.Method != "" {
			fields = append(fields, zap.String("method", d.Method))
		}
		switch d.Severity {
		case ir.SeverityError:
			res.Errors++
			g.logger.Error(d.Message, fields...)
		case ir.SeverityWarning:
			res.Warnings++
			g.logger.Warn(d.Message, fields...)
		default:
			g.logger.Debug(d.Message, fields...)
		}
	}
}

// outputPath returns the slash-separated path of the generated file for a
// package directory, relative to root.
func outputPath(root, dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("package has no Go files")
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("package directory %s is outside %s", dir, root)
	}
	return filepath.ToSlash(filepath.Join(rel, name)), nil
}

// Watch runs the generator, then again whenever a Go source file in one of
// the analyzed package directories changes. Each run is reported to onRun.
// Watch returns when ctx is done.
func (g *Generator) Watch(ctx context.Context, out sink.OutputSink, onRun func(*Result, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch first: edits made during a run must still produce events.
	run := func() {
		if err := g.watchDirs(ctx, w); err != nil {
			g.logger.Warn("update watch list", zap.Error(err))
		}
		res, err := g.Run(ctx, out)
		if onRun != nil {
			onRun(res, err)
		}
	}
	run()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !g.relevant(ev) {
				continue
			}
			g.logger.Debug("source changed", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(g.cfg.Debounce)
			} else {
				timer.Reset(g.cfg.Debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			g.logger.Warn("watch error", zap.Error(err))
		case <-fire:
			fire = nil
			run()
		}
	}
}

// watchDirs adds every package directory to w. Adding a watched directory
// again is harmless.
func (g *Generator) watchDirs(ctx context.Context, w *fsnotify.Watcher) error {
	tags := append([]string{analyzer.BuildTag}, g.cfg.Tags...)
	pkgs, err := discover.Find(ctx, g.cfg.Dir, tags, g.cfg.Packages...)
	if err != nil {
		return err
	}
	for _, dir := range discover.Dirs(pkgs) {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return nil
}

// relevant filters out generated files, temp files and attribute changes.
func (g *Generator) relevant(ev fsnotify.Event) bool {
	base := filepath.Base(ev.Name)
	switch {
	case !strings.HasSuffix(base, ".go"):
		return false
	case base == g.cfg.Output, strings.HasPrefix(base, ".apistub-"):
		return false
	case ev.Op == fsnotify.Chmod:
		return false
	}
	return true
}
