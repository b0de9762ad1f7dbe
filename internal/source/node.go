// Package source defines the capability set the extractor needs from a parsed
// C/C++ translation unit. Providers (tree-sitter, in-memory trees, dumps from
// external analyzers) implement Node; the extractor never looks behind it.
package source

import "context"

// NodeID identifies a node within a single tree. IDs are only comparable
// between nodes of the same tree.
type NodeID uint64

// Node is an opaque handle into a parsed source tree.
//
// Methods that return another node return Invalid (never nil) when the
// relationship does not exist; use IsInvalid to check.
type Node interface {
	ID() NodeID
	Kind() Kind
	Valid() bool

	// Spelling is the simple name of a declaration or the written text of a
	// reference / operator.
	Spelling() string
	// DisplayName is the disambiguated name, e.g. "f(int)".
	DisplayName() string

	Type() Type
	ResultType() Type
	NumArguments() int
	Argument(i int) Node

	// Children returns the lexical children in source order. For a variable
	// declaration the initializer expression, when present, is the last child.
	Children() []Node

	// Referenced returns the declaration a reference or call resolves to.
	Referenced() Node
	// Definition returns the defining declaration (a macro definition for a
	// macro expansion).
	Definition() Node
	SemanticParent() Node
	// SpecializedTemplate returns the primary template of a specialization.
	SpecializedTemplate() Node

	Location() Location
	IsVirtualMethod() bool
	IsDynamicCall() bool
}

// Location is a position in a source file. Line and Column are 1-based.
type Location struct {
	File   string
	Line   int
	Column int
}

// Provider parses one translation unit into a tree.
type Provider interface {
	Parse(ctx context.Context, path string, src []byte) (Node, error)
}

// IsInvalid reports whether n is nil or the invalid sentinel.
func IsInvalid(n Node) bool {
	return n == nil || !n.Valid() || n.Kind() == KindInvalid
}

// SameNode reports whether a and b are the same valid node.
func SameNode(a, b Node) bool {
	if IsInvalid(a) || IsInvalid(b) {
		return false
	}
	return a.ID() == b.ID()
}

// Invalid is the sentinel returned for missing relationships.
var Invalid Node = invalidNode{}

type invalidNode struct{}

func (invalidNode) ID() NodeID                { return 0 }
func (invalidNode) Kind() Kind                { return KindInvalid }
func (invalidNode) Valid() bool               { return false }
func (invalidNode) Spelling() string          { return "" }
func (invalidNode) DisplayName() string       { return "" }
func (invalidNode) Type() Type                { return Type{} }
func (invalidNode) ResultType() Type          { return Type{} }
func (invalidNode) NumArguments() int         { return 0 }
func (invalidNode) Argument(int) Node         { return Invalid }
func (invalidNode) Children() []Node          { return nil }
func (invalidNode) Referenced() Node          { return Invalid }
func (invalidNode) Definition() Node          { return Invalid }
func (invalidNode) SemanticParent() Node      { return Invalid }
func (invalidNode) SpecializedTemplate() Node { return Invalid }
func (invalidNode) Location() Location        { return Location{} }
func (invalidNode) IsVirtualMethod() bool     { return false }
func (invalidNode) IsDynamicCall() bool       { return false }
