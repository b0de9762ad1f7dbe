package extract

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jward/xref/internal/source"
)

// DefaultNameCacheSize bounds the qualified-name memo of one extraction.
const DefaultNameCacheSize = 4096

// namer computes scope-qualified names, memoized per node identity.
type namer struct {
	cache *lru.Cache[source.NodeID, string]
}

func newNamer(size int) (*namer, error) {
	if size <= 0 {
		size = DefaultNameCacheSize
	}
	c, err := lru.New[source.NodeID, string](size)
	if err != nil {
		return nil, err
	}
	return &namer{cache: c}, nil
}

// Qualified returns the enclosing scope's qualified name joined to n's
// spelling with "::". Templates carry their type spelling in angle
// brackets and auto variables carry their deduced type.
func (q *namer) Qualified(n source.Node) string {
	if source.IsInvalid(n) {
		return ""
	}
	if v, ok := q.cache.Get(n.ID()); ok {
		return v
	}

	name := n.Spelling()
	switch {
	case n.Kind().IsTemplate():
		name += "<" + n.Type().Spelling + ">"
	case n.Kind() == source.KindVarDecl && n.Type().Kind == source.TypeAuto:
		name += "/* deduced as " + deducedSpelling(n) + " */"
	}

	v := join(q.Scope(n), name)
	q.cache.Add(n.ID(), v)
	return v
}

// Scope returns the qualified name of n's enclosing declaration, or "" at
// file scope.
func (q *namer) Scope(n source.Node) string {
	parent := n.SemanticParent()
	if source.IsInvalid(parent) || parent.Kind() == source.KindTranslationUnit {
		return ""
	}
	return q.Qualified(parent)
}

// Plain is Qualified without template or deduction decorations on n itself.
func (q *namer) Plain(n source.Node) string {
	if source.IsInvalid(n) {
		return ""
	}
	return join(q.Scope(n), n.Spelling())
}

func deducedSpelling(n source.Node) string {
	if t := n.Type(); t.Canonical != "" && t.Canonical != t.Spelling {
		return t.Canonical
	}
	if r := n.ResultType(); r.Canonical != "" {
		return r.Canonical
	}
	return n.Type().Spelling
}

func join(scope, name string) string {
	switch {
	case scope == "":
		return name
	case name == "":
		return scope
	}
	return scope + "::" + name
}
