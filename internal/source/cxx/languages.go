package cxx

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Dialect selects the grammar a unit is parsed with.
type Dialect string

const (
	DialectC   Dialect = "c"
	DialectCPP Dialect = "cpp"
)

// extToDialect maps file extensions to dialects. Headers are parsed as C++
// since the C++ grammar accepts the C subset.
var extToDialect = map[string]Dialect{
	".c":   DialectC,
	".h":   DialectCPP,
	".cpp": DialectCPP,
	".cc":  DialectCPP,
	".cxx": DialectCPP,
	".c++": DialectCPP,
	".hpp": DialectCPP,
	".hh":  DialectCPP,
	".hxx": DialectCPP,
	".ipp": DialectCPP,
	".inl": DialectCPP,
}

// Lazily initialized on first call via sync.Once.
var (
	grammars     map[Dialect]*sitter.Language
	grammarsOnce sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		grammars = map[Dialect]*sitter.Language{
			DialectC:   c.GetLanguage(),
			DialectCPP: cpp.GetLanguage(),
		}
	})
}

// DialectForFile returns the dialect for a file path based on its
// extension. Returns ("", false) if the extension is not recognized.
func DialectForFile(path string) (Dialect, bool) {
	d, ok := extToDialect[strings.ToLower(filepath.Ext(path))]
	return d, ok
}

// Extensions lists the file extensions the provider handles.
func Extensions() []string {
	out := make([]string, 0, len(extToDialect))
	for ext := range extToDialect {
		out = append(out, ext)
	}
	return out
}

func grammarFor(d Dialect) (*sitter.Language, bool) {
	initGrammars()
	l, ok := grammars[d]
	return l, ok
}
