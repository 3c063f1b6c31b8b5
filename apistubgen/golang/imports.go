package golang

import (
	"bytes"
	"fmt"
	"go/types"
	"path"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// importSet tracks the packages referenced by generated code and assigns
// each a unique name.
type importSet struct {
	self     string
	byPath   map[string]string
	taken    map[string]bool
	reserved map[string]bool
}

func newImportSet(self string, reserved []string) *importSet {
	s := &importSet{
		self:     self,
		byPath:   make(map[string]string),
		taken:    make(map[string]bool),
		reserved: make(map[string]bool, len(reserved)),
	}
	for _, r := range reserved {
		s.reserved[r] = true
	}
	return s
}

// add returns the name under which path is imported.
func (s *importSet) add(pkgPath, name string) string {
	if alias, ok := s.byPath[pkgPath]; ok {
		return alias
	}
	alias := name
	for i := 2; s.taken[alias] || s.reserved[alias]; i++ {
		alias = fmt.Sprintf("%s%d", name, i)
	}
	s.byPath[pkgPath] = alias
	s.taken[alias] = true
	return alias
}

// qualifier is a types.Qualifier that records every package it sees.
func (s *importSet) qualifier(p *types.Package) string {
	if p == nil || p.Path() == s.self {
		return ""
	}
	return s.add(p.Path(), p.Name())
}

// names returns the import names in use.
func (s *importSet) names() []string {
	out := make([]string, 0, len(s.byPath))
	for _, alias := range s.byPath {
		out = append(out, alias)
	}
	return out
}

// write renders the import block, standard library first.
func (s *importSet) write(buf *bytes.Buffer) {
	if len(s.byPath) == 0 {
		return
	}
	var std, other []string
	for p := range s.byPath {
		if first, _, _ := strings.Cut(p, "/"); strings.Contains(first, ".") {
			other = append(other, p)
		} else {
			std = append(std, p)
		}
	}
	slices.Sort(std)
	slices.Sort(other)

	buf.WriteString("import (\n")
	for i, group := range [][]string{std, other} {
		if i > 0 && len(std) > 0 && len(other) > 0 {
			buf.WriteString("\n")
		}
		for _, p := range group {
			alias := s.byPath[p]
			if alias == path.Base(p) {
				fmt.Fprintf(buf, "\t%q\n", p)
			} else {
				fmt.Fprintf(buf, "\t%s %q\n", alias, p)
			}
		}
	}
	buf.WriteString(")\n\n")
}

// namer hands out identifiers unique within one scope. A name that is
// already taken gets the first free numeric suffix, starting at 2.
type namer struct {
	taken map[string]bool
}

func newNamer(reserved ...string) *namer {
	n := &namer{taken: make(map[string]bool)}
	for _, r := range reserved {
		n.taken[r] = true
	}
	return n
}

func (n *namer) alloc(base string) string {
	name := base
	for i := 2; n.taken[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	n.taken[name] = true
	return name
}

// exported upper-cases the first letter of name.
func exported(name string) string {
	return cases.Title(language.Und, cases.NoLower).String(name)
}
