package cxx

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/xref/internal/source"
	"github.com/jward/xref/internal/source/memtree"
)

// macroProbe wraps a macro body so the grammar parses it as statements.
const macroProbe = "void __xref_macro__(void) {\n%s\n;}\n"

func (l *lowerer) macroDef(n *sitter.Node, s scope) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	m := &macroEntry{
		name:         l.text(nameNode),
		functionLike: n.Type() == "preproc_function_def",
	}
	m.node = s.parent.Add(source.KindMacroDefinition, m.name).At(position(nameNode))
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			m.params = append(m.params, l.text(params.NamedChild(i)))
		}
	}
	if value := n.ChildByFieldName("value"); value != nil {
		m.calls = l.bodyCalls(l.text(value))
	}
	l.macros[m.name] = m
}

// bodyCalls parses a macro replacement list and returns the names it calls.
// Bodies that are not expressions or statements yield nothing.
func (l *lowerer) bodyCalls(body string) []string {
	body = strings.ReplaceAll(body, "\\\r\n", " ")
	body = strings.ReplaceAll(body, "\\\n", " ")
	if strings.TrimSpace(body) == "" {
		return nil
	}
	src := []byte(strings.Replace(macroProbe, "%s", body, 1))

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(l.lang)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil || tree == nil {
		return nil
	}
	defer tree.Close()

	var calls []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "call_expression" {
			if fn := n.ChildByFieldName("function"); fn != nil {
				switch fn.Type() {
				case "identifier", "qualified_identifier":
					calls = append(calls, compact(fn.Content(src)))
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.RootNode())
	return calls
}

// expand lowers a macro invocation. The calls spelled in the macro body
// become children of the expansion, with calls through a macro parameter
// renamed to the argument the invocation passes.
func (l *lowerer) expand(n *sitter.Node, m *macroEntry, args *sitter.Node, s scope) *memtree.Node {
	exp := s.parent.Add(source.KindMacroExpansion, m.name).At(position(n)).DefinedBy(m.node)

	var argv []string
	if args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			if c := args.NamedChild(i); c.Type() != "comment" {
				argv = append(argv, compact(l.text(c)))
			}
		}
	}

	inner := s.with(exp)
	for _, name := range m.calls {
		if i := m.param(name); i >= 0 {
			if i >= len(argv) {
				continue
			}
			name = argv[i]
		}
		if _, nested := l.macros[name]; nested || name == m.name {
			continue
		}
		call := exp.Add(source.KindCallExpr, name).At(position(n))
		ref := call.Add(source.KindDeclRefExpr, name).At(position(n))
		l.bindCallee(call, ref, name, "", -1, inner)
	}
	if args != nil {
		l.code(args, inner)
	}
	return exp
}
