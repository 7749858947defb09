// Package model defines the core value types of the migration pipeline.
package model

import "strings"

// RootProject is the canonical root path of a source archive.
const RootProject = Path("$/")

// Path is a logical source-archive path, "$/"-rooted and "/"-separated.
type Path string

// ItemID is the stable physical identity of a file or project. It survives
// rename and move; two logical paths sharing one item carry the same ID.
type ItemID string

// Join appends a child name to p.
func (p Path) Join(name string) Path {
	s := strings.TrimSuffix(string(p), "/")
	return Path(s + "/" + name)
}

// Base returns the last element of p.
func (p Path) Base() string {
	s := strings.TrimSuffix(string(p), "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}

	return s
}

// Dir returns the parent of p, or the root when p has no parent.
func (p Path) Dir() Path {
	s := strings.TrimSuffix(string(p), "/")
	i := strings.LastIndex(s, "/")
	if i <= 0 {
		return RootProject
	}

	d := s[:i]
	if d == "$" {
		return RootProject
	}

	return Path(d)
}

// IsUnder reports whether p equals root or lies inside it.
func (p Path) IsUnder(root Path) bool {
	if p == root {
		return true
	}

	prefix := strings.TrimSuffix(string(root), "/") + "/"

	return strings.HasPrefix(string(p), prefix)
}

// Rebase rewrites the root prefix of p from oldRoot to newRoot.
// It returns p unchanged when p is not under oldRoot.
func (p Path) Rebase(oldRoot, newRoot Path) Path {
	if !p.IsUnder(oldRoot) {
		return p
	}

	if p == oldRoot {
		return newRoot
	}

	rest := strings.TrimPrefix(string(p), strings.TrimSuffix(string(oldRoot), "/"))
	rest = strings.TrimPrefix(rest, "/")

	return newRoot.Join(rest)
}

// Rel returns the path of p relative to root, without a leading slash.
// The second result is false when p is not under root.
func (p Path) Rel(root Path) (string, bool) {
	if !p.IsUnder(root) {
		return "", false
	}

	if p == root {
		return "", true
	}

	rest := strings.TrimPrefix(string(p), strings.TrimSuffix(string(root), "/"))

	return strings.TrimPrefix(rest, "/"), true
}
