// Package discover resolves package patterns to the directories and files
// the generator reads.
//
// It performs a light load (names, files and module) so watch mode can
// decide what to observe without type-checking anything.
package discover

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/tools/go/packages"
)

// Package describes one package selected by a pattern.
type Package struct {
	Path       string
	Name       string
	Dir        string   // directory containing the package
	Files      []string // Go files, generated files excluded
	ModulePath string
	ModuleDir  string // directory containing go.mod
}

// Find resolves patterns relative to dir. The pattern follows go command
// semantics:
//   - "." for the current directory
//   - "./..." for every package below it
//   - an import path like "github.com/foo/bar"
//
// tags are passed as build tags, so files excluded by them are not listed.
func Find(ctx context.Context, dir string, tags []string, patterns ...string) ([]Package, error) {
	cfg := &packages.Config{
		Context: ctx,
		Mode:    packages.NeedName | packages.NeedFiles | packages.NeedModule,
		Dir:     dir,
	}
	if len(tags) > 0 {
		cfg.BuildFlags = []string{"-tags=" + strings.Join(tags, ",")}
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load package: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found matching %q", patterns)
	}

	out := make([]Package, 0, len(pkgs))
	for _, pkg := range pkgs {
		// Errors in a package that has files are left to the analyzer.
		if len(pkg.Errors) > 0 && len(pkg.GoFiles) == 0 {
			return nil, fmt.Errorf("package errors: %v", pkg.Errors[0])
		}
		p := Package{
			Path:  pkg.PkgPath,
			Name:  pkg.Name,
			Files: slices.Clone(pkg.GoFiles),
		}
		if pkg.Module != nil {
			p.ModulePath = pkg.Module.Path
			p.ModuleDir = pkg.Module.Dir
		}
		if len(pkg.GoFiles) > 0 {
			p.Dir = filepath.Dir(pkg.GoFiles[0])
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Package) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// Dirs returns the distinct package directories.
func Dirs(pkgs []Package) []string {
	var dirs []string
	for _, p := range pkgs {
		if p.Dir != "" && !slices.Contains(dirs, p.Dir) {
			dirs = append(dirs, p.Dir)
		}
	}
	slices.Sort(dirs)
	return dirs
}
