package extract

import (
	"fmt"

	"github.com/gobwas/glob"
)

// DefaultExcludes skips the usual system include directories.
var DefaultExcludes = []string{
	"/usr/include/**",
	"/usr/local/include/**",
	"/usr/lib/**",
	"/Library/Developer/**",
}

// Matcher is a compiled set of file path patterns.
type Matcher []glob.Glob

// CompileExcludes compiles glob patterns with '/' as the separator.
func CompileExcludes(patterns []string) (Matcher, error) {
	m := make(Matcher, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		m = append(m, g)
	}
	return m, nil
}

// Match reports whether path matches any pattern.
func (m Matcher) Match(path string) bool {
	for _, g := range m {
		if g.Match(path) {
			return true
		}
	}
	return false
}
