// Package memtree is an in-memory source.Node implementation. Trees are
// built programmatically or loaded from a YAML/JSON description, which lets
// external analyzers hand a fully resolved tree to the extractor.
package memtree

import "github.com/jward/xref/internal/source"

// Tree owns a set of nodes rooted at a translation unit.
type Tree struct {
	path string
	next source.NodeID
	root *Node
}

// New returns a tree for the unit at path with an empty translation unit root.
func New(path string) *Tree {
	t := &Tree{path: path}
	t.root = t.newNode(source.KindTranslationUnit, path)
	t.root.loc.Line = 1
	t.root.loc.Column = 1
	return t
}

// Root returns the translation unit node.
func (t *Tree) Root() *Node { return t.root }

// Path returns the unit path.
func (t *Tree) Path() string { return t.path }

// Detached creates a node that is reachable only through references, such
// as an implicit template specialization. Its semantic parent is the root.
func (t *Tree) Detached(kind source.Kind, spelling string) *Node {
	n := t.newNode(kind, spelling)
	n.semParent = t.root
	return n
}

func (t *Tree) newNode(kind source.Kind, spelling string) *Node {
	t.next++
	return &Node{
		tree:     t,
		id:       t.next,
		kind:     kind,
		spelling: spelling,
		loc:      source.Location{File: t.path},
	}
}

// Node is a mutable tree node. The fluent setters return the receiver so
// fixtures read top-down.
type Node struct {
	tree     *Tree
	id       source.NodeID
	kind     source.Kind
	spelling string
	display  string
	typ      source.Type
	result   source.Type
	params   []*Node
	children []*Node

	lexParent *Node
	semParent *Node
	ref       *Node
	def       *Node
	tmpl      *Node

	loc     source.Location
	virtual bool
	dynamic bool
}

var _ source.Node = (*Node)(nil)

// Add appends a lexical child and returns it. The child's semantic parent is
// the nearest declaration at or above n.
func (n *Node) Add(kind source.Kind, spelling string) *Node {
	c := n.tree.newNode(kind, spelling)
	c.lexParent = n
	c.semParent = n.nearestDecl()
	c.loc.Line = n.loc.Line
	c.loc.Column = n.loc.Column
	n.children = append(n.children, c)
	return c
}

func (n *Node) nearestDecl() *Node {
	for p := n; p != nil; p = p.lexParent {
		k := p.kind
		if k == source.KindTranslationUnit || k == source.KindNamespace ||
			k.IsTypeDecl() || k.IsFunctionLike() {
			return p
		}
	}
	return nil
}

// At sets the line and column.
func (n *Node) At(line, col int) *Node {
	n.loc.Line = line
	n.loc.Column = col
	return n
}

// InFile overrides the file the node is located in.
func (n *Node) InFile(path string) *Node {
	n.loc.File = path
	return n
}

// Display sets the display name.
func (n *Node) Display(s string) *Node {
	n.display = s
	return n
}

// Typed sets the node type.
func (n *Node) Typed(kind source.TypeKind, spelling string) *Node {
	n.typ = source.Type{Kind: kind, Spelling: spelling, Canonical: spelling}
	return n
}

// Deduced sets an auto placeholder type with its deduced canonical spelling.
func (n *Node) Deduced(canonical string) *Node {
	n.typ = source.Type{Kind: source.TypeAuto, Spelling: "auto", Canonical: canonical}
	return n
}

// Returns sets the result type.
func (n *Node) Returns(spelling string) *Node {
	kind := source.TypeOther
	if spelling == "" {
		kind = source.TypeInvalid
	}
	n.result = source.Type{Kind: kind, Spelling: spelling, Canonical: spelling}
	return n
}

// Param appends a parameter declaration and returns the receiver.
func (n *Node) Param(name, typeSpelling string) *Node {
	n.AddParam(name, typeSpelling)
	return n
}

// AddParam appends a parameter declaration and returns it.
func (n *Node) AddParam(name, typeSpelling string) *Node {
	p := n.tree.newNode(source.KindParmDecl, name)
	p.semParent = n
	p.loc = n.loc
	kind := source.TypeOther
	if isPointerSpelling(typeSpelling) {
		kind = source.TypePointer
	}
	p.typ = source.Type{Kind: kind, Spelling: typeSpelling, Canonical: typeSpelling}
	n.params = append(n.params, p)
	return p
}

// Refers sets the referenced declaration.
func (n *Node) Refers(decl *Node) *Node {
	n.ref = decl
	return n
}

// DefinedBy sets the defining declaration.
func (n *Node) DefinedBy(def *Node) *Node {
	n.def = def
	return n
}

// AsDefinition marks n as its own definition.
func (n *Node) AsDefinition() *Node {
	n.def = n
	return n
}

// WithParent overrides the semantic parent, e.g. for out-of-line members.
func (n *Node) WithParent(p *Node) *Node {
	n.semParent = p
	return n
}

// Specializes sets the primary template of a specialization.
func (n *Node) Specializes(tmpl *Node) *Node {
	n.tmpl = tmpl
	return n
}

// Virtual marks a method as virtual.
func (n *Node) Virtual() *Node {
	n.virtual = true
	return n
}

// Dynamic marks a call as dynamically dispatched.
func (n *Node) Dynamic() *Node {
	n.dynamic = true
	return n
}

func (n *Node) ID() source.NodeID       { return n.id }
func (n *Node) Kind() source.Kind       { return n.kind }
func (n *Node) Valid() bool             { return n != nil && n.kind != source.KindInvalid }
func (n *Node) Spelling() string        { return n.spelling }
func (n *Node) Type() source.Type       { return n.typ }
func (n *Node) ResultType() source.Type { return n.result }
func (n *Node) NumArguments() int       { return len(n.params) }
func (n *Node) IsVirtualMethod() bool   { return n.virtual }
func (n *Node) IsDynamicCall() bool     { return n.dynamic }

func (n *Node) Location() source.Location { return n.loc }

func (n *Node) DisplayName() string {
	if n.display != "" {
		return n.display
	}
	return n.spelling
}

func (n *Node) Argument(i int) source.Node {
	if i < 0 || i >= len(n.params) {
		return source.Invalid
	}
	return n.params[i]
}

func (n *Node) Children() []source.Node {
	out := make([]source.Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

func (n *Node) Referenced() source.Node          { return orInvalid(n.ref) }
func (n *Node) Definition() source.Node          { return orInvalid(n.def) }
func (n *Node) SemanticParent() source.Node      { return orInvalid(n.semParent) }
func (n *Node) SpecializedTemplate() source.Node { return orInvalid(n.tmpl) }

func orInvalid(n *Node) source.Node {
	if n == nil {
		return source.Invalid
	}
	return n
}

func isPointerSpelling(s string) bool {
	for _, r := range s {
		if r == '*' {
			return true
		}
	}
	return false
}
