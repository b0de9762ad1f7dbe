package cxx

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/xref/internal/source"
	"github.com/jward/xref/internal/source/memtree"
)

// lowerer turns one tree-sitter syntax tree into a memtree. Declarations
// are indexed while walking; references are recorded as pending and bound
// in finish once the whole unit has been seen.
type lowerer struct {
	path  string
	src   []byte
	lang  *sitter.Language
	synth bool
	tree  *memtree.Tree

	types     map[string]*typeEntry
	typeOrder []*typeEntry
	funcs     map[string][]*funcEntry
	funcOrder []*funcEntry
	globals   map[string]*local
	macros    map[string]*macroEntry

	pending []*pendingRef
	chains  map[string]*memtree.Node
	externs map[string]*memtree.Node
	specs   map[string]*memtree.Node
}

func newLowerer(path string, src []byte, lang *sitter.Language, synth bool) *lowerer {
	return &lowerer{
		path:    path,
		src:     src,
		lang:    lang,
		synth:   synth,
		tree:    memtree.New(path),
		types:   make(map[string]*typeEntry),
		funcs:   make(map[string][]*funcEntry),
		globals: make(map[string]*local),
		macros:  make(map[string]*macroEntry),
		chains:  make(map[string]*memtree.Node),
		externs: make(map[string]*memtree.Node),
		specs:   make(map[string]*memtree.Node),
	}
}

// scope is the lowering position: where new nodes are added and how names
// are looked up from there.
type scope struct {
	parent *memtree.Node
	// qual is the enclosing namespace or class, never a function.
	qual  string
	class *typeEntry
	fn    *fnScope
	// tmpl holds the parameters of an enclosing template declaration and
	// applies to the next declaration only.
	tmpl string
}

type fnScope struct {
	locals map[string]*local
}

func (l *lowerer) top() scope {
	return scope{parent: l.tree.Root()}
}

func (s scope) with(parent *memtree.Node) scope {
	s.parent = parent
	s.tmpl = ""
	return s
}

func (s scope) local(name string) *local {
	if s.fn == nil {
		return nil
	}
	return s.fn.locals[name]
}

func (s scope) scopes() []string {
	return scopesOf(s.qual)
}

type pendingKind int

const (
	pendCall pendingKind = iota
	pendValue
	pendMember
	pendOperator
)

type pendingRef struct {
	kind   pendingKind
	node   *memtree.Node
	callee *memtree.Node
	name   string
	scopes []string
	class  *typeEntry
	// recv yields the receiver type spelling of a member call.
	recv    func() string
	operand *typeEntry
	argc    int
	targs   string
	dynamic bool
}

// =============================================================================
// Declarations
// =============================================================================

func (l *lowerer) items(n *sitter.Node, s scope) {
	if n == nil {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		l.item(n.NamedChild(i), s)
	}
}

func (l *lowerer) item(n *sitter.Node, s scope) {
	switch n.Type() {
	case "namespace_definition":
		l.namespace(n, s)
	case "class_specifier", "struct_specifier", "union_specifier":
		l.class(n, s)
	case "function_definition":
		l.functionDefinition(n, s)
	case "declaration", "field_declaration":
		l.declaration(n, s, n.Type() == "field_declaration")
	case "template_declaration":
		inner := s
		inner.tmpl = l.templateParams(n.ChildByFieldName("parameters"))
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c.IsNamed() && n.FieldNameForChild(i) != "parameters" {
				l.item(c, inner)
			}
		}
	case "preproc_def", "preproc_function_def":
		l.macroDef(n, s)
	case "linkage_specification":
		if body := n.ChildByFieldName("body"); body != nil {
			if body.Type() == "declaration_list" {
				l.items(body, s)
			} else {
				l.item(body, s)
			}
		}
	case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef",
		"declaration_list", "field_declaration_list":
		s.tmpl = ""
		l.items(n, s)
	}
}

func (l *lowerer) namespace(n *sitter.Node, s scope) {
	body := n.ChildByFieldName("body")
	name := compact(l.text(n.ChildByFieldName("name")))
	line, col := position(n)
	parent, qual := s.parent, s.qual
	if name == "" {
		parent = parent.Add(source.KindNamespace, "").At(line, col)
	} else {
		for _, part := range splitQualified(name) {
			parent = parent.Add(source.KindNamespace, part).At(line, col)
			qual = joinQualified(qual, part)
		}
	}
	l.items(body, scope{parent: parent, qual: qual})
}

func (l *lowerer) templateParams(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	var names []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "type_parameter_declaration", "variadic_type_parameter_declaration":
			if c.NamedChildCount() > 0 {
				names = append(names, l.text(c.NamedChild(int(c.NamedChildCount())-1)))
			}
		case "optional_type_parameter_declaration":
			names = append(names, l.text(c.ChildByFieldName("name")))
		case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
			if info := inspect(c.ChildByFieldName("declarator")); info.name != nil {
				names = append(names, l.text(info.name))
			}
		case "template_template_parameter_declaration":
			names = append(names, compact(l.text(c.NamedChild(int(c.NamedChildCount())-1))))
		}
	}
	return strings.Join(names, ", ")
}

// owner resolves the scope named by the qualifier of an out-of-line
// declaration such as "A::f": a class of the unit or a namespace chain.
func (l *lowerer) owner(qualifier string, s scope) (*memtree.Node, *typeEntry, string) {
	parts := splitQualified(qualifier)
	for i, p := range parts {
		parts[i] = stripTemplateArgs(p)
	}
	plain := joinAll(parts)
	for _, sc := range s.scopes() {
		if te, ok := l.types[joinQualified(sc, plain)]; ok {
			return te.primary(), te, te.qual
		}
	}
	qual := joinQualified(s.qual, plain)
	return l.namespaceChain(qual), nil, qual
}

func (l *lowerer) class(n *sitter.Node, s scope) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	parts := splitQualified(compact(l.text(nameNode)))
	simple := parts[len(parts)-1]

	var (
		ownerNode *memtree.Node
		qual      = joinQualified(s.qual, simple)
	)
	if len(parts) > 1 {
		var ownerQual string
		ownerNode, _, ownerQual = l.owner(joinAll(parts[:len(parts)-1]), s)
		qual = joinQualified(ownerQual, simple)
	}

	kind := source.KindStructDecl
	if n.Type() == "class_specifier" {
		kind = source.KindClassDecl
	}
	if s.tmpl != "" {
		kind = source.KindClassTemplate
	}
	node := s.parent.Add(kind, simple).At(position(nameNode))
	if kind == source.KindClassTemplate {
		node.Typed(source.TypeOther, s.tmpl)
	} else {
		node.Typed(source.TypeRecord, qual)
	}
	if ownerNode != nil {
		node.WithParent(ownerNode)
	}

	te := l.typeEntry(qual, stripTemplateArgs(simple))
	te.nodes = append(te.nodes, node)

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	node.AsDefinition()
	te.def = node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "base_class_clause" {
			l.bases(c, node, te, s)
		}
	}
	l.items(body, scope{parent: node, qual: qual, class: te})
}

func (l *lowerer) bases(clause *sitter.Node, node *memtree.Node, te *typeEntry, s scope) {
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		c := clause.NamedChild(i)
		switch c.Type() {
		case "type_identifier", "qualified_identifier", "template_type":
		default:
			continue
		}
		name := compact(l.text(c))
		spec := node.Add(source.KindBaseSpecifier, name).At(position(c)).Typed(source.TypeRecord, name)
		te.bases = append(te.bases, baseRef{spec: spec, name: name, scopes: s.scopes()})
	}
}

func (l *lowerer) functionDefinition(n *sitter.Node, s scope) {
	if typ := n.ChildByFieldName("type"); typ != nil && isClassSpecifier(typ) && typ.ChildByFieldName("body") != nil {
		l.class(typ, s)
	}
	declarator := n.ChildByFieldName("declarator")
	info := inspect(declarator)
	if !info.isFunction || info.name == nil {
		return
	}
	l.function(n, declarator, info, s, n.ChildByFieldName("body"))
}

func isClassSpecifier(n *sitter.Node) bool {
	switch n.Type() {
	case "class_specifier", "struct_specifier", "union_specifier":
		return true
	}
	return false
}

// simpleName returns the unqualified declared name and the qualifier in
// front of it, if any.
func (l *lowerer) simpleName(n *sitter.Node) (name, qualifier string) {
	var scopes []string
	for n != nil && n.Type() == "qualified_identifier" {
		if sc := n.ChildByFieldName("scope"); sc != nil {
			scopes = append(scopes, compact(l.text(sc)))
		}
		n = n.ChildByFieldName("name")
	}
	if n == nil {
		return "", joinAll(scopes)
	}
	switch n.Type() {
	case "operator_name":
		name = operatorName(l.text(n))
	case "operator_cast":
		rest := strings.TrimSpace(strings.TrimPrefix(l.text(n), "operator"))
		if i := strings.IndexByte(rest, '('); i >= 0 {
			rest = rest[:i]
		}
		name = "operator " + normalize(rest)
	case "template_function":
		name = compact(l.text(n.ChildByFieldName("name")))
	default:
		name = compact(l.text(n))
	}
	return name, joinAll(scopes)
}

func (l *lowerer) function(decl, declarator *sitter.Node, info declInfo, s scope, body *sitter.Node) {
	name, qualifier := l.simpleName(info.name)
	if name == "" {
		return
	}

	class := s.class
	ownerQual := s.qual
	var ownerNode *memtree.Node
	if qualifier != "" {
		var te *typeEntry
		ownerNode, te, ownerQual = l.owner(qualifier, s)
		class = te
	}
	qual := joinQualified(ownerQual, name)

	kind := source.KindFunctionDecl
	switch {
	case strings.HasPrefix(name, "~"):
		kind = source.KindDestructor
	case innermostName(info.name).Type() == "operator_cast":
		kind = source.KindConversionFunction
	case class != nil && name == class.name:
		kind = source.KindConstructor
	case s.tmpl != "":
		kind = source.KindFunctionTemplate
	case class != nil:
		kind = source.KindMethod
	}

	node := s.parent.Add(kind, name).At(position(info.name))
	if ownerNode != nil {
		node.WithParent(ownerNode)
	}
	if kind == source.KindFunctionTemplate {
		node.Typed(source.TypeOther, s.tmpl)
	}

	var (
		params []string
		locals = make(map[string]*local)
	)
	if info.fn != nil {
		params = l.params(info.fn.ChildByFieldName("parameters"), node, locals)
	}
	result := ""
	if kind != source.KindConstructor && kind != source.KindDestructor {
		result = normalize(l.declarationPrefix(decl, declarator) + " " + info.resultSuffix)
	}
	node.Display(name + "(" + strings.Join(params, ", ") + ")").Returns(result)

	entry, _ := l.funcEntry(qual, name, strings.Join(params, ","))
	if entry.parent == nil {
		entry.parent = ownerNode
		if entry.parent == nil {
			entry.parent = semanticOwner(s)
		}
	}
	entry.params = params
	entry.result = result
	entry.class = class
	entry.template = entry.template || kind == source.KindFunctionTemplate
	entry.virtual = entry.virtual || l.declaredVirtual(decl, info.fn)
	entry.nodes = append(entry.nodes, node)

	if body == nil {
		return
	}
	node.AsDefinition()
	entry.def = node
	inner := scope{parent: node, qual: ownerQual, class: class, fn: &fnScope{locals: locals}}
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		if c := decl.NamedChild(i); c.Type() == "field_initializer_list" {
			l.code(c, inner)
		}
	}
	l.code(body, inner)
}

func innermostName(n *sitter.Node) *sitter.Node {
	for n.Type() == "qualified_identifier" && n.ChildByFieldName("name") != nil {
		n = n.ChildByFieldName("name")
	}
	return n
}

// semanticOwner is the declaration node new children of s belong to.
func semanticOwner(s scope) *memtree.Node {
	if s.class != nil {
		return s.class.primary()
	}
	return s.parent
}

// params lowers a parameter list and returns the parameter type spellings.
func (l *lowerer) params(list *sitter.Node, fn *memtree.Node, locals map[string]*local) []string {
	if list == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(list.ChildCount()); i++ {
		c := list.Child(i)
		if c.Type() == "..." {
			fn.AddParam("", "...")
			out = append(out, "...")
			continue
		}
		switch c.Type() {
		case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
		default:
			continue
		}
		declarator := c.ChildByFieldName("declarator")
		info := inspect(declarator)
		var spelling, name string
		switch {
		case c.Type() == "variadic_parameter_declaration":
			spelling = normalize(l.declarationPrefix(c, declarator)) + "..."
			if declarator != nil {
				name = l.text(firstNamed(declarator))
			}
		case declarator == nil:
			spelling = normalize(l.text(c.ChildByFieldName("type")))
			if prefix := l.declarationPrefix(c, c.ChildByFieldName("type")); prefix != "" {
				spelling = normalize(prefix + " " + spelling)
			}
		default:
			spelling = normalize(l.declarationPrefix(c, declarator) + " " + l.without(info.inner, info.name))
			name = l.text(info.name)
		}
		if spelling == "void" && name == "" {
			continue
		}
		p := fn.AddParam(name, spelling)
		if info.name != nil {
			p.At(position(info.name))
		}
		out = append(out, spelling)
		if name != "" && locals != nil {
			locals[name] = &local{node: p, typeName: spelling, indirect: isIndirectSpelling(spelling)}
		}
	}
	return out
}

func (l *lowerer) declaredVirtual(decl, fn *sitter.Node) bool {
	for i := 0; i < int(decl.ChildCount()); i++ {
		c := decl.Child(i)
		switch c.Type() {
		case "virtual", "virtual_function_specifier":
			return true
		case "storage_class_specifier":
			if l.text(c) == "virtual" {
				return true
			}
		}
	}
	if fn != nil {
		for i := 0; i < int(fn.NamedChildCount()); i++ {
			if fn.NamedChild(i).Type() == "virtual_specifier" {
				return true
			}
		}
	}
	return false
}

// declaration lowers a declaration statement: variables, fields, function
// prototypes and any class defined in its type.
func (l *lowerer) declaration(n *sitter.Node, s scope, field bool) {
	if typ := n.ChildByFieldName("type"); typ != nil && isClassSpecifier(typ) && typ.ChildByFieldName("body") != nil {
		l.class(typ, s)
	}
	var first *sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) != "declarator" {
			continue
		}
		d := n.Child(i)
		if first == nil {
			first = d
		}
		info := inspect(d)
		if info.name == nil {
			continue
		}
		if info.isFunction {
			// Block-scope prototypes only redeclare.
			if s.fn == nil {
				l.function(n, d, info, s, nil)
			}
			continue
		}
		l.variable(n, first, info, s, field)
	}
}

func (l *lowerer) variable(decl, first *sitter.Node, info declInfo, s scope, field bool) {
	if info.name.Type() == "qualified_identifier" {
		return
	}
	name := l.text(info.name)
	prefix := l.declarationPrefix(decl, first)
	spelling := normalize(prefix + " " + l.without(info.inner, info.name))

	kind := source.KindVarDecl
	if field {
		kind = source.KindFieldDecl
	}
	node := s.parent.Add(kind, name).At(position(info.name))
	v := &local{node: node}

	if strings.HasPrefix(spelling, "auto") || strings.HasPrefix(spelling, "const auto") {
		canonical := l.deduce(info.init, s)
		if ptr := strings.Count(spelling, "*"); ptr > 0 && !strings.Contains(canonical, "*") {
			canonical += " " + strings.Repeat("*", ptr)
		}
		node.Deduced(canonical)
		v.typeName = canonical
		v.indirect = strings.Contains(canonical, "*")
	} else {
		tk := typeKindOf(spelling)
		node.Typed(tk, spelling)
		v.typeName = spelling
		v.indirect = tk == source.TypePointer || tk == source.TypeFunction || strings.Contains(spelling, "&")
	}

	switch {
	case s.fn != nil:
		s.fn.locals[name] = v
	case field && s.class != nil:
		s.class.fields[name] = v
	default:
		l.globals[joinQualified(s.qual, name)] = v
	}

	if info.init == nil {
		return
	}
	inner := s.with(node)
	switch info.init.Type() {
	case "lambda_expression":
		v.lambda = l.lambda(info.init, node, inner)
	case "argument_list", "initializer_list":
		l.code(info.init, inner)
	default:
		l.valueExpr(info.init, node, inner)
	}
}

// deduce spells the type an auto variable is deduced to, as far as the
// syntax tells.
func (l *lowerer) deduce(init *sitter.Node, s scope) string {
	if init == nil {
		return "auto"
	}
	for init.Type() == "parenthesized_expression" && firstNamed(init) != nil {
		init = firstNamed(init)
	}
	switch init.Type() {
	case "lambda_expression":
		line, col := position(init)
		return fmt.Sprintf("(lambda at %s:%d:%d)", l.path, line, col)
	case "new_expression":
		return normalize(l.text(init.ChildByFieldName("type"))) + " *"
	case "pointer_expression":
		if l.text(init.ChildByFieldName("operator")) == "&" || strings.HasPrefix(l.text(init), "&") {
			if f := l.functionNamed(init.ChildByFieldName("argument"), s); f != nil {
				return functionPointerSpelling(f)
			}
		}
	case "identifier", "qualified_identifier":
		if s.local(l.text(init)) == nil {
			if f := l.functionNamed(init, s); f != nil {
				return functionPointerSpelling(f)
			}
		}
	case "call_expression":
		fn := init.ChildByFieldName("function")
		if fn != nil && fn.Type() == "template_function" {
			switch l.text(fn.ChildByFieldName("name")) {
			case "dynamic_cast", "static_cast", "reinterpret_cast", "const_cast":
				return templateArgs(l.text(fn.ChildByFieldName("arguments")))
			}
		}
		if f := l.functionNamed(fn, s); f != nil && f.result != "" {
			return f.result
		}
	}
	return "auto"
}

func (l *lowerer) functionNamed(n *sitter.Node, s scope) *funcEntry {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier", "qualified_identifier":
	default:
		return nil
	}
	name := compact(l.text(n))
	if s.class != nil {
		if f := l.findMethod(s.class, name, -1); f != nil {
			return f
		}
	}
	return l.lookupFunc(name, s.scopes(), -1)
}

func functionPointerSpelling(f *funcEntry) string {
	return normalize(f.result + " (*)(" + strings.Join(f.params, ", ") + ")")
}

func templateArgs(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	return normalize(s)
}

// =============================================================================
// Function bodies
// =============================================================================

// code lowers the statements and expressions below n.
func (l *lowerer) code(n *sitter.Node, s scope) {
	if n == nil {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		l.stmt(n.NamedChild(i), s)
	}
}

func (l *lowerer) stmt(n *sitter.Node, s scope) {
	switch n.Type() {
	case "comment", "string_literal", "raw_string_literal", "number_literal", "char_literal",
		"true", "false", "null", "nullptr":
	case "declaration":
		l.declaration(n, s, false)
	case "class_specifier", "struct_specifier", "union_specifier":
		l.class(n, s)
	case "try_statement":
		try := s.parent.Add(source.KindTryStmt, "").At(position(n))
		l.code(n.ChildByFieldName("body"), s.with(try))
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() != "catch_clause" {
				continue
			}
			catch := try.Add(source.KindCatchStmt, "").At(position(c))
			l.code(c.ChildByFieldName("body"), s.with(catch))
		}
	case "throw_statement", "throw_expression":
		throw := s.parent.Add(source.KindThrowExpr, "").At(position(n))
		l.code(n, s.with(throw))
	case "preproc_def", "preproc_function_def":
		l.macroDef(n, s)
	case "lambda_expression":
		l.lambda(n, nil, s)
	case "call_expression":
		l.call(n, s)
	case "assignment_expression", "binary_expression", "pointer_expression", "field_expression":
		l.valueExpr(n, s.parent, s)
	case "identifier":
		if m, ok := l.macros[l.text(n)]; ok && !m.functionLike {
			l.expand(n, m, nil, s)
		}
	default:
		l.code(n, s)
	}
}

// call lowers a call expression into a CallExpr whose first child is the
// callee expression followed by the arguments.
func (l *lowerer) call(n *sitter.Node, s scope) *memtree.Node {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	argc := countArgs(args)
	if fn == nil {
		l.code(n, s)
		return nil
	}

	var (
		name  string
		targs string
	)
	switch fn.Type() {
	case "identifier":
		name = l.text(fn)
		if m, ok := l.macros[name]; ok && m.functionLike {
			return l.expand(n, m, args, s)
		}
		if name == "typeid" {
			node := s.parent.Add(source.KindTypeidExpr, "").At(position(n))
			l.code(args, s.with(node))
			return node
		}
	case "qualified_identifier":
		name = compact(l.text(fn))
	case "template_function":
		name = compact(l.text(fn.ChildByFieldName("name")))
		targs = templateArgs(l.text(fn.ChildByFieldName("arguments")))
		switch name {
		case "dynamic_cast":
			node := s.parent.Add(source.KindDynamicCastExpr, "").At(position(n))
			l.code(args, s.with(node))
			return node
		case "static_cast", "reinterpret_cast", "const_cast":
			node := s.parent.Add(source.KindOther, "").At(position(n))
			l.code(args, s.with(node))
			return node
		}
	}

	if fn.Type() == "field_expression" {
		field := fn.ChildByFieldName("field")
		member, _ := l.simpleName(field)
		call := s.parent.Add(source.KindCallExpr, member).At(position(n))
		ref := call.Add(source.KindMemberRefExpr, member).At(position(field))
		receiver := fn.ChildByFieldName("argument")
		l.valueExpr(receiver, ref, s.with(ref))
		scopes := s.scopes()
		l.pending = append(l.pending, &pendingRef{
			kind:    pendMember,
			node:    call,
			callee:  ref,
			name:    member,
			scopes:  scopes,
			recv:    func() string { return l.typeOfExpr(receiver, s) },
			argc:    argc,
			dynamic: l.arrow(fn) || l.indirectExpr(receiver, s),
		})
		l.code(args, s.with(call))
		return call
	}

	if name == "" {
		call := s.parent.Add(source.KindCallExpr, "").At(position(n))
		callee := l.valueExpr(fn, call, s.with(call))
		if target := l.calleeVariable(fn, s); target != nil {
			call.Refers(target)
		} else if callee != nil && callee.Kind() == source.KindLambdaExpr {
			call.Refers(callee)
		}
		l.code(args, s.with(call))
		return call
	}

	call := s.parent.Add(source.KindCallExpr, name).At(position(n))
	ref := call.Add(source.KindDeclRefExpr, name).At(position(fn))
	l.bindCallee(call, ref, name, targs, argc, s)
	l.code(args, s.with(call))
	return call
}

// bindCallee resolves a named callee: locals directly, everything else in
// finish.
func (l *lowerer) bindCallee(call, ref *memtree.Node, name, targs string, argc int, s scope) {
	if v := s.local(name); v != nil {
		ref.Refers(v.node)
		switch {
		case v.lambda != nil:
			call.Refers(v.lambda)
		case v.indirect && !l.classTyped(v, s):
			call.Refers(v.node)
		default:
			scopes := s.scopes()
			l.pending = append(l.pending, &pendingRef{
				kind:   pendMember,
				node:   call,
				name:   "operator()",
				scopes: scopes,
				recv:   func() string { return v.typeName },
				argc:   argc,
			})
		}
		return
	}
	l.pending = append(l.pending, &pendingRef{
		kind:   pendCall,
		node:   call,
		callee: ref,
		name:   name,
		scopes: s.scopes(),
		class:  s.class,
		argc:   argc,
		targs:  targs,
	})
}

// classTyped reports whether v holds a class object or reference, which is
// called through its operator().
func (l *lowerer) classTyped(v *local, s scope) bool {
	if strings.Contains(v.typeName, "*") || strings.Contains(v.typeName, "function<") {
		return false
	}
	return l.lookupType(v.typeName, s.scopes()) != nil
}

// calleeVariable finds the pointer variable behind a callee expression such
// as "(*fp)".
func (l *lowerer) calleeVariable(n *sitter.Node, s scope) *memtree.Node {
	for n != nil {
		switch n.Type() {
		case "parenthesized_expression":
			n = firstNamed(n)
		case "pointer_expression":
			n = n.ChildByFieldName("argument")
		case "identifier":
			if v := s.local(l.text(n)); v != nil && v.indirect {
				if v.lambda != nil {
					return v.lambda
				}
				return v.node
			}
			return nil
		default:
			return nil
		}
	}
	return nil
}

func (l *lowerer) arrow(field *sitter.Node) bool {
	for i := 0; i < int(field.ChildCount()); i++ {
		if c := field.Child(i); !c.IsNamed() && c.Type() == "->" {
			return true
		}
	}
	return false
}

// indirectExpr reports whether a receiver is reached through a pointer or
// reference, the precondition for dynamic dispatch.
func (l *lowerer) indirectExpr(n *sitter.Node, s scope) bool {
	switch n.Type() {
	case "identifier":
		if v := s.local(l.text(n)); v != nil {
			return v.indirect
		}
	case "parenthesized_expression":
		if inner := firstNamed(n); inner != nil {
			return inner.Type() == "pointer_expression" || l.indirectExpr(inner, s)
		}
	case "pointer_expression":
		return true
	}
	return false
}

// typeOfExpr spells the static type of an expression where the syntax
// allows it to be known.
func (l *lowerer) typeOfExpr(n *sitter.Node, s scope) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "this":
		if s.class != nil {
			return s.class.qual + " *"
		}
	case "identifier":
		name := l.text(n)
		if v := s.local(name); v != nil {
			return v.typeName
		}
		if s.class != nil {
			if f := l.findField(s.class, name); f != nil {
				return f.typeName
			}
		}
		for _, sc := range s.scopes() {
			if g, ok := l.globals[joinQualified(sc, name)]; ok {
				return g.typeName
			}
		}
	case "qualified_identifier":
		if g := l.lookupGlobal(compact(l.text(n)), s.scopes()); g != nil {
			return g.typeName
		}
	case "parenthesized_expression", "pointer_expression":
		inner := n.ChildByFieldName("argument")
		if inner == nil {
			inner = firstNamed(n)
		}
		return l.typeOfExpr(inner, s)
	case "field_expression":
		recv := l.lookupType(l.typeOfExpr(n.ChildByFieldName("argument"), s), s.scopes())
		if recv == nil {
			return ""
		}
		field, _ := l.simpleName(n.ChildByFieldName("field"))
		if f := l.findField(recv, field); f != nil {
			return f.typeName
		}
	case "new_expression":
		return normalize(l.text(n.ChildByFieldName("type"))) + " *"
	case "call_expression":
		return l.deduce(n, s)
	}
	return ""
}

func (l *lowerer) lookupGlobal(name string, scopes []string) *local {
	for _, sc := range scopes {
		if g, ok := l.globals[joinQualified(sc, name)]; ok {
			return g
		}
	}
	return nil
}

// valueExpr lowers an expression used as a value and returns its node.
func (l *lowerer) valueExpr(n *sitter.Node, parent *memtree.Node, s scope) *memtree.Node {
	if n == nil {
		return nil
	}
	s = s.with(parent)
	switch n.Type() {
	case "identifier":
		name := l.text(n)
		if m, ok := l.macros[name]; ok && !m.functionLike {
			return l.expand(n, m, nil, s)
		}
		ref := parent.Add(source.KindDeclRefExpr, name).At(position(n))
		if v := s.local(name); v != nil {
			ref.Refers(v.node)
			return ref
		}
		l.pending = append(l.pending, &pendingRef{kind: pendValue, node: ref, name: name, scopes: s.scopes(), class: s.class, argc: -1})
		return ref
	case "qualified_identifier":
		name := compact(l.text(n))
		ref := parent.Add(source.KindDeclRefExpr, name).At(position(n))
		l.pending = append(l.pending, &pendingRef{kind: pendValue, node: ref, name: name, scopes: s.scopes(), class: s.class, argc: -1})
		return ref
	case "template_function":
		name := compact(l.text(n.ChildByFieldName("name")))
		ref := parent.Add(source.KindDeclRefExpr, name).At(position(n))
		l.pending = append(l.pending, &pendingRef{
			kind: pendValue, node: ref, name: name, scopes: s.scopes(), class: s.class, argc: -1,
			targs: templateArgs(l.text(n.ChildByFieldName("arguments"))),
		})
		return ref
	case "pointer_expression":
		op := l.text(n.ChildByFieldName("operator"))
		if op == "" && n.ChildCount() > 0 {
			op = l.text(n.Child(0))
		}
		node := parent.Add(source.KindUnaryOperator, op).At(position(n))
		l.valueExpr(n.ChildByFieldName("argument"), node, s)
		return node
	case "parenthesized_expression":
		if inner := firstNamed(n); inner != nil {
			return l.valueExpr(inner, parent, s)
		}
	case "field_expression":
		field, _ := l.simpleName(n.ChildByFieldName("field"))
		node := parent.Add(source.KindMemberRefExpr, field).At(position(n))
		l.valueExpr(n.ChildByFieldName("argument"), node, s)
		return node
	case "assignment_expression":
		op := l.text(n.ChildByFieldName("operator"))
		node := parent.Add(source.KindBinaryOperator, op).At(position(n))
		l.valueExpr(n.ChildByFieldName("left"), node, s)
		l.valueExpr(n.ChildByFieldName("right"), node, s)
		return node
	case "binary_expression":
		return l.binary(n, parent, s)
	case "call_expression":
		return l.call(n, s)
	case "lambda_expression":
		return l.lambda(n, nil, s)
	}
	node := parent.Add(source.KindOther, "").At(position(n))
	l.stmt(n, s.with(node))
	return node
}

// binary lowers a binary expression. An operand of class type makes it a
// call to the overloaded operator.
func (l *lowerer) binary(n *sitter.Node, parent *memtree.Node, s scope) *memtree.Node {
	op := l.text(n.ChildByFieldName("operator"))
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")

	lhs := l.typeOfExpr(left, s)
	var operand *typeEntry
	if lhs != "" && !strings.Contains(lhs, "*") {
		operand = l.lookupType(lhs, s.scopes())
	}
	if operand == nil {
		node := parent.Add(source.KindBinaryOperator, op).At(position(n))
		l.valueExpr(left, node, s)
		l.valueExpr(right, node, s)
		return node
	}

	name := "operator" + op
	call := parent.Add(source.KindCallExpr, name).At(position(n))
	l.valueExpr(left, call, s)
	l.valueExpr(right, call, s)
	l.pending = append(l.pending, &pendingRef{
		kind:    pendOperator,
		node:    call,
		name:    name,
		scopes:  s.scopes(),
		operand: operand,
		argc:    1,
	})
	return call
}

// lambda lowers a lambda expression. A lambda stored in a variable has that
// variable as its semantic parent so calls through it are named after it.
func (l *lowerer) lambda(n *sitter.Node, owner *memtree.Node, s scope) *memtree.Node {
	node := s.parent.Add(source.KindLambdaExpr, "").At(position(n))
	if owner != nil {
		node.WithParent(owner)
	}
	locals := make(map[string]*local)
	if s.fn != nil {
		for k, v := range s.fn.locals {
			locals[k] = v
		}
	}
	if d := n.ChildByFieldName("declarator"); d != nil {
		l.params(d.ChildByFieldName("parameters"), node, locals)
	}
	inner := s.with(node)
	inner.fn = &fnScope{locals: locals}
	l.code(n.ChildByFieldName("body"), inner)
	return node
}

func countArgs(args *sitter.Node) int {
	if args == nil {
		return 0
	}
	n := 0
	for i := 0; i < int(args.NamedChildCount()); i++ {
		if args.NamedChild(i).Type() != "comment" {
			n++
		}
	}
	return n
}

// =============================================================================
// Binding
// =============================================================================

// finish binds everything that needs the complete unit: base classes,
// definitions, inherited virtual-ness and pending references.
func (l *lowerer) finish() {
	for _, te := range l.typeOrder {
		for _, b := range te.bases {
			bt := l.lookupType(b.name, b.scopes)
			if bt == nil || bt == te {
				continue
			}
			b.spec.Refers(bt.primary())
			te.resolved = append(te.resolved, bt)
		}
		if te.def != nil {
			for _, n := range te.nodes {
				if n != te.def {
					n.DefinedBy(te.def)
				}
			}
		}
	}

	for _, f := range l.funcOrder {
		if f.def == nil {
			continue
		}
		for _, n := range f.nodes {
			if n != f.def {
				n.DefinedBy(f.def)
			}
		}
	}

	l.propagateVirtual()
	for _, p := range l.pending {
		l.resolve(p)
	}
}

// propagateVirtual marks methods that override a virtual base method.
func (l *lowerer) propagateVirtual() {
	for changed := true; changed; {
		changed = false
		for _, f := range l.funcOrder {
			if f.virtual || f.class == nil {
				continue
			}
			for _, base := range f.class.resolved {
				if m := l.findMethod(base, f.name, len(f.params)); m != nil && m.virtual {
					f.virtual = true
					changed = true
					break
				}
			}
		}
	}
	for _, f := range l.funcOrder {
		if !f.virtual {
			continue
		}
		for _, n := range f.nodes {
			n.Virtual()
		}
	}
}

func (l *lowerer) resolve(p *pendingRef) {
	var (
		target  *memtree.Node
		fe      *funcEntry
		viaThis bool
	)
	switch p.kind {
	case pendMember:
		te := l.lookupType(p.recv(), p.scopes)
		if te == nil {
			break
		}
		if fe = l.findMethod(te, p.name, p.argc); fe == nil {
			if f := l.findField(te, p.name); f != nil && f.indirect {
				target = f.node
			}
		}
	case pendOperator:
		if fe = l.findMethod(p.operand, p.name, p.argc); fe == nil {
			fe = l.lookupFunc(p.name, p.scopes, p.argc+1)
		}
	default:
		if p.class != nil && !strings.Contains(p.name, "::") {
			fe = l.findMethod(p.class, p.name, p.argc)
			viaThis = fe != nil
		}
		if fe == nil {
			fe = l.lookupFunc(p.name, p.scopes, p.argc)
		}
		if fe != nil {
			break
		}
		if p.class != nil {
			if f := l.findField(p.class, p.name); f != nil && (p.kind == pendValue || f.indirect) {
				target = f.node
				break
			}
		}
		if g := l.lookupGlobal(p.name, p.scopes); g != nil && (p.kind == pendValue || g.indirect) {
			target = g.node
			if g.lambda != nil && p.kind == pendCall {
				target = g.lambda
			}
		}
	}

	if fe != nil {
		target = fe.primary()
		if fe.template && p.targs != "" {
			target = l.specialization(fe, p.targs)
		}
		if fe.virtual && (p.dynamic || viaThis) {
			p.node.Dynamic()
		}
	}
	if target == nil && l.synth && p.kind == pendCall {
		target = l.external(p.name)
	}
	if target == nil {
		return
	}
	p.node.Refers(target)
	if p.callee != nil {
		p.callee.Refers(target)
	}
}
