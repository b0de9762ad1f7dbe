// Package cxx is a source.Provider for C and C++ built on tree-sitter.
//
// tree-sitter gives a concrete syntax tree without semantic analysis, so
// the provider lowers it into a memtree and answers references with a
// declaration index built from the same unit: locals and parameters, class
// members and their bases, enclosing namespaces, macros. Names declared only
// in headers that are not part of the unit stay unresolved unless
// SynthesizeExternals is set.
package cxx

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/xref/internal/source"
)

// ErrNoTree is returned when tree-sitter produces no syntax tree.
var ErrNoTree = errors.New("cxx: parser returned no tree")

// Provider parses C and C++ units.
type Provider struct {
	// Dialect forces a grammar; empty selects by file extension.
	Dialect Dialect
	// SynthesizeExternals gives unresolved callees a detached declaration
	// named as spelled at the call site, so the call is kept.
	SynthesizeExternals bool
}

var _ source.Provider = Provider{}

// Parse implements source.Provider.
func (p Provider) Parse(ctx context.Context, path string, src []byte) (source.Node, error) {
	d := p.Dialect
	if d == "" {
		var ok bool
		if d, ok = DialectForFile(path); !ok {
			d = DialectCPP
		}
	}
	lang, ok := grammarFor(d)
	if !ok {
		return nil, fmt.Errorf("cxx: unsupported dialect %q", d)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("cxx: parse %s: %w", path, err)
	}
	if tree == nil {
		return nil, ErrNoTree
	}
	defer tree.Close()

	l := newLowerer(path, src, lang, p.SynthesizeExternals)
	l.items(tree.RootNode(), l.top())
	l.finish()
	return l.tree.Root(), nil
}
