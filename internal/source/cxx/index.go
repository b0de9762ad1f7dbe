package cxx

import (
	"github.com/jward/xref/internal/source"
	"github.com/jward/xref/internal/source/memtree"
)

// typeEntry collects every declaration of one class.
type typeEntry struct {
	qual     string
	name     string
	nodes    []*memtree.Node
	def      *memtree.Node
	bases    []baseRef
	resolved []*typeEntry
	fields   map[string]*local
}

func (t *typeEntry) primary() *memtree.Node {
	if t.def != nil {
		return t.def
	}
	return t.nodes[0]
}

type baseRef struct {
	spec   *memtree.Node
	name   string
	scopes []string
}

// funcEntry collects the declarations of one function identity, i.e. one
// qualified name and parameter signature.
type funcEntry struct {
	qual     string
	name     string
	sig      string
	params   []string
	result   string
	class    *typeEntry
	parent   *memtree.Node
	nodes    []*memtree.Node
	def      *memtree.Node
	virtual  bool
	template bool
}

func (f *funcEntry) primary() *memtree.Node {
	return f.nodes[0]
}

// local is a variable, parameter or field visible to name lookup.
type local struct {
	node     *memtree.Node
	typeName string
	indirect bool
	lambda   *memtree.Node
}

type macroEntry struct {
	node   *memtree.Node
	name   string
	params []string
	// calls are the callee names spelled in the body, in order.
	calls        []string
	functionLike bool
}

func (m *macroEntry) param(name string) int {
	for i, p := range m.params {
		if p == name {
			return i
		}
	}
	return -1
}

func (l *lowerer) typeEntry(qual, name string) *typeEntry {
	t, ok := l.types[qual]
	if !ok {
		t = &typeEntry{qual: qual, name: name, fields: make(map[string]*local)}
		l.types[qual] = t
		l.typeOrder = append(l.typeOrder, t)
	}
	return t
}

func (l *lowerer) funcEntry(qual, name, sig string) (*funcEntry, bool) {
	for _, f := range l.funcs[qual] {
		if f.sig == sig {
			return f, false
		}
	}
	f := &funcEntry{qual: qual, name: name, sig: sig}
	l.funcs[qual] = append(l.funcs[qual], f)
	l.funcOrder = append(l.funcOrder, f)
	return f, true
}

// lookupType resolves a spelled type name from the given scopes.
func (l *lowerer) lookupType(name string, scopes []string) *typeEntry {
	name = baseTypeName(name)
	if name == "" || primitives[name] {
		return nil
	}
	for _, s := range scopes {
		if t, ok := l.types[joinQualified(s, name)]; ok {
			return t
		}
	}
	return nil
}

// lookupFunc resolves a function name from the given scopes, preferring
// the overload with argc parameters.
func (l *lowerer) lookupFunc(name string, scopes []string, argc int) *funcEntry {
	for _, s := range scopes {
		if fs := l.funcs[joinQualified(s, name)]; len(fs) > 0 {
			return pick(fs, argc)
		}
	}
	return nil
}

// findMethod looks name up in t and then in its bases, breadth first.
func (l *lowerer) findMethod(t *typeEntry, name string, argc int) *funcEntry {
	seen := map[*typeEntry]bool{}
	queue := []*typeEntry{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if fs := l.funcs[cur.qual+"::"+name]; len(fs) > 0 {
			return pick(fs, argc)
		}
		queue = append(queue, cur.resolved...)
	}
	return nil
}

// findField looks a data member up in t and its bases.
func (l *lowerer) findField(t *typeEntry, name string) *local {
	seen := map[*typeEntry]bool{}
	queue := []*typeEntry{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if f, ok := cur.fields[name]; ok {
			return f
		}
		queue = append(queue, cur.resolved...)
	}
	return nil
}

func pick(fs []*funcEntry, argc int) *funcEntry {
	if argc >= 0 {
		for _, f := range fs {
			if len(f.params) == argc {
				return f
			}
		}
	}
	return fs[0]
}

// namespaceChain returns detached namespace nodes for qual, creating them
// on first use. It anchors declarations whose scope is not declared in the
// unit.
func (l *lowerer) namespaceChain(qual string) *memtree.Node {
	if qual == "" {
		return l.tree.Root()
	}
	if n, ok := l.chains[qual]; ok {
		return n
	}
	parts := splitQualified(qual)
	parent := l.namespaceChain(joinAll(parts[:len(parts)-1]))
	n := l.tree.Detached(source.KindNamespace, parts[len(parts)-1]).WithParent(parent)
	l.chains[qual] = n
	return n
}

// external returns a synthesized declaration for an unresolved callee.
func (l *lowerer) external(name string) *memtree.Node {
	if n, ok := l.externs[name]; ok {
		return n
	}
	parts := splitQualified(name)
	parent := l.namespaceChain(joinAll(parts[:len(parts)-1]))
	n := l.tree.Detached(source.KindFunctionDecl, parts[len(parts)-1]).WithParent(parent)
	l.externs[name] = n
	return n
}

// specialization returns the implicit specialization of a function
// template for the spelled arguments.
func (l *lowerer) specialization(f *funcEntry, args string) *memtree.Node {
	key := f.qual + "(" + f.sig + ")<" + args + ">"
	if n, ok := l.specs[key]; ok {
		return n
	}
	n := l.tree.Detached(source.KindFunctionDecl, f.name).
		WithParent(f.parent).
		Typed(source.TypeOther, args).
		Specializes(f.primary())
	l.specs[key] = n
	return n
}

func joinAll(parts []string) string {
	out := ""
	for _, p := range parts {
		out = joinQualified(out, p)
	}
	return out
}
