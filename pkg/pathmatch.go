// Package pkg is a package that provides utilities for vss2git.
package pkg

import (
	"fmt"
	"path"
	"strings"
)

// Matcher is a compiled set of exclusion patterns. A pattern containing a
// slash is matched against the whole logical path, otherwise against the
// base name. Matching is case-insensitive, as source archives are.
type Matcher interface {
	Match(p string) bool
	Patterns() []string
}

type matcherImpl struct {
	patterns []string // original spelling, for reporting
	byName   []string
	byPath   []string
}

// NewMatcher compiles exclusion patterns using shell glob syntax
// (`*`, `?`, character classes). An invalid pattern is rejected up front so
// the pipeline never fails mid-traversal on a bad glob.
func NewMatcher(patterns []string) (Matcher, error) {
	m := &matcherImpl{}

	for _, pat := range patterns {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}

		lower := strings.ToLower(pat)
		if _, err := path.Match(lower, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pat, err)
		}

		m.patterns = append(m.patterns, pat)

		if strings.Contains(lower, "/") {
			m.byPath = append(m.byPath, strings.TrimPrefix(lower, "$/"))
		} else {
			m.byName = append(m.byName, lower)
		}
	}

	return m, nil
}

// Match implements Matcher.
func (m *matcherImpl) Match(p string) bool {
	lower := strings.ToLower(strings.TrimPrefix(p, "$/"))
	base := path.Base(lower)

	for _, pat := range m.byName {
		if ok, _ := path.Match(pat, base); ok {
			return true
		}
	}

	for _, pat := range m.byPath {
		if ok, _ := path.Match(pat, lower); ok {
			return true
		}
	}

	return false
}

// Patterns implements Matcher.
func (m *matcherImpl) Patterns() []string {
	return m.patterns
}
