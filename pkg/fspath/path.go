// Package fspath provides the hierarchical path value used by every
// filesystem interface in TreeDFS.
//
// Paths are immutable, rooted at "/", and composed of non-empty components
// that may not contain the separator '/' or the reserved ':' character.
// The string form is the canonical serialization: a path survives a
// String/Parse round trip unchanged.
package fspath

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Path is an immutable hierarchical name. The zero value is the root.
type Path struct {
	comps []string
}

// Root returns the root path "/".
func Root() Path {
	return Path{}
}

// Parse converts a path string into a Path.
//
// The string must begin with a forward slash and may not contain a colon.
// Empty components ("//", trailing slash) are dropped.
func Parse(s string) (Path, error) {
	if !strings.HasPrefix(s, "/") {
		return Path{}, fmt.Errorf("path %q does not begin with '/'", s)
	}
	if strings.Contains(s, ":") {
		return Path{}, fmt.Errorf("path %q contains reserved character ':'", s)
	}

	var comps []string
	for _, c := range strings.Split(s, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}
	return Path{comps: comps}, nil
}

// MustParse is Parse for statically known strings; it panics on error.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Join returns the path formed by appending component to p.
func (p Path) Join(component string) (Path, error) {
	if component == "" {
		return Path{}, fmt.Errorf("empty path component")
	}
	if strings.ContainsAny(component, "/:") {
		return Path{}, fmt.Errorf("component %q contains a reserved character", component)
	}

	comps := make([]string, 0, len(p.comps)+1)
	comps = append(comps, p.comps...)
	comps = append(comps, component)
	return Path{comps: comps}, nil
}

// IsRoot reports whether p is the root directory.
func (p Path) IsRoot() bool {
	return len(p.comps) == 0
}

// Parent returns the path with the last component removed.
// The root is its own parent.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return p
	}
	return Path{comps: p.comps[:len(p.comps)-1]}
}

// Last returns the final component, or "" for the root.
func (p Path) Last() string {
	if p.IsRoot() {
		return ""
	}
	return p.comps[len(p.comps)-1]
}

// Components returns a copy of the path's components, root first excluded.
func (p Path) Components() []string {
	out := make([]string, len(p.comps))
	copy(out, p.comps)
	return out
}

// Depth returns the number of components.
func (p Path) Depth() int {
	return len(p.comps)
}

// Equal reports whether two paths have identical component sequences.
func (p Path) Equal(q Path) bool {
	if len(p.comps) != len(q.comps) {
		return false
	}
	for i := range p.comps {
		if p.comps[i] != q.comps[i] {
			return false
		}
	}
	return true
}

// IsSubpath reports whether other is a prefix of p. Every path is a
// subpath of itself, and every path is a descendant of the root.
func (p Path) IsSubpath(other Path) bool {
	if len(other.comps) > len(p.comps) {
		return false
	}
	for i := range other.comps {
		if p.comps[i] != other.comps[i] {
			return false
		}
	}
	return true
}

// Ancestors returns the strict ancestors of p, root first. The root has
// no ancestors.
func (p Path) Ancestors() []Path {
	if p.IsRoot() {
		return nil
	}
	out := make([]Path, 0, len(p.comps))
	for i := 0; i < len(p.comps); i++ {
		out = append(out, Path{comps: p.comps[:i]})
	}
	return out
}

// Compare defines a total order on paths in which a parent precedes all of
// its descendants and siblings order lexicographically by component. Locking
// multiple paths in ascending order acquires non-overlapping subtrees
// without deadlock.
func (p Path) Compare(q Path) int {
	n := min(len(p.comps), len(q.comps))
	for i := 0; i < n; i++ {
		if c := strings.Compare(p.comps[i], q.comps[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(p.comps) < len(q.comps):
		return -1
	case len(p.comps) > len(q.comps):
		return 1
	default:
		return 0
	}
}

// String returns the canonical string form: "/" for the root, otherwise
// slash-joined components.
func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}
	return "/" + strings.Join(p.comps, "/")
}

// Filename maps p onto the local filesystem below root.
func (p Path) Filename(root string) string {
	return filepath.Join(root, filepath.FromSlash(strings.Join(p.comps, "/")))
}

// List enumerates every regular file below the given local directory,
// returning its path relative to that directory.
func List(root string) ([]Path, error) {
	var paths []Path

	err := filepath.WalkDir(root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, name)
		if err != nil {
			return err
		}
		p, err := Parse("/" + filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("local file %q: %w", name, err)
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
