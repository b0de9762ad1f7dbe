// Package extract walks a source tree and produces the facts of one
// translation unit: functions, types, inheritance edges and call edges with
// their resolved callee identities.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jward/xref/internal/facts"
	"github.com/jward/xref/internal/source"
)

var tracer = otel.Tracer("github.com/jward/xref/internal/extract")

// ErrInvalidRoot is returned when the provider hands over no tree.
var ErrInvalidRoot = errors.New("extract: invalid root node")

// Option configures an extraction.
type Option func(*options)

type options struct {
	exclude       Matcher
	nameCacheSize int
	logger        *slog.Logger
	unitPath      string
}

// WithExclude skips nodes located in files matched by m, subtrees included.
func WithExclude(m Matcher) Option {
	return func(o *options) { o.exclude = m }
}

// WithNameCacheSize bounds the qualified-name memo.
func WithNameCacheSize(n int) Option {
	return func(o *options) { o.nameCacheSize = n }
}

// WithLogger sets the logger used for debug diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithUnitPath overrides the unit path recorded on the result.
func WithUnitPath(p string) Option {
	return func(o *options) { o.unitPath = p }
}

// frame is the per-recursion state. It is passed by value so a push in one
// subtree never leaks into siblings.
type frame struct {
	context     []string
	signatures  []string
	exceptional bool
	dynamicCast bool
	typeid      bool
}

func (f frame) push(qualified, signature string) frame {
	return frame{
		context:    append(slices.Clip(f.context), qualified),
		signatures: append(slices.Clip(f.signatures), signature),
	}
}

// caller returns the innermost callable and its signature, or empty
// strings at namespace scope.
func (f frame) caller() (string, string) {
	if len(f.context) == 0 {
		return "", ""
	}
	return f.context[len(f.context)-1], f.signatures[len(f.signatures)-1]
}

type methodInfo struct {
	qualified string
	virtual   bool
}

type pendingBase struct {
	derived string
	base    string
}

type pendingVirtual struct {
	call     int
	class    string
	method   string
	declared string
}

type extractor struct {
	unit    *facts.Unit
	names   *namer
	aliases *AliasState
	exclude Matcher
	log     *slog.Logger

	emitted   map[source.NodeID]struct{}
	consumed  map[source.NodeID]struct{}
	typeIndex map[string]int
	methods   map[string]map[string]methodInfo
	derived   map[string][]string

	pendingBases   []pendingBase
	pendingVirtual []pendingVirtual
}

// Extract walks the tree rooted at root. Each call owns its alias state and
// name cache, so concurrent extractions of different units are independent.
func Extract(ctx context.Context, root source.Node, opts ...Option) (*facts.Unit, error) {
	o := options{nameCacheSize: DefaultNameCacheSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if source.IsInvalid(root) {
		return nil, ErrInvalidRoot
	}

	path := o.unitPath
	if path == "" {
		path = root.Location().File
	}
	_, span := tracer.Start(ctx, "extract.Extract",
		trace.WithAttributes(attribute.String("unit", path)))
	defer span.End()

	names, err := newNamer(o.nameCacheSize)
	if err != nil {
		return nil, fmt.Errorf("extract: name cache: %w", err)
	}
	x := &extractor{
		unit:      &facts.Unit{Path: path},
		names:     names,
		aliases:   NewAliasState(),
		exclude:   o.exclude,
		log:       o.logger.With(slog.String("unit", path)),
		emitted:   make(map[source.NodeID]struct{}),
		consumed:  make(map[source.NodeID]struct{}),
		typeIndex: make(map[string]int),
		methods:   make(map[string]map[string]methodInfo),
		derived:   make(map[string][]string),
	}

	x.visitChildren(root, frame{})
	x.resolveInheritance()
	x.resolveVirtualCalls()

	span.SetAttributes(
		attribute.Int("functions", len(x.unit.Functions)),
		attribute.Int("types", len(x.unit.Types)),
		attribute.Int("calls", len(x.unit.Calls)),
	)
	recordUnit(x.unit)
	x.log.Debug("unit extracted",
		slog.Int("functions", len(x.unit.Functions)),
		slog.Int("types", len(x.unit.Types)),
		slog.Int("calls", len(x.unit.Calls)),
		slog.Int("unresolved_calls", x.unit.Stats.UnresolvedCalls),
		slog.Int("dropped_inheritance", x.unit.Stats.DroppedInheritance))
	return x.unit, nil
}

func (x *extractor) visit(n source.Node, f frame) {
	if source.IsInvalid(n) {
		return
	}
	if x.excluded(n) {
		x.unit.Stats.ExcludedNodes++
		return
	}

	switch kind := n.Kind(); {
	case kind.IsFunctionLike():
		f = f.push(x.function(n))
	case kind.IsTypeDecl():
		x.typeDecl(n)
	case kind == source.KindBaseSpecifier:
		x.baseSpecifier(n)
	case kind == source.KindCallExpr, kind == source.KindMacroExpansion:
		if _, ok := x.consumed[n.ID()]; !ok {
			x.call(n, f)
		}
	case kind == source.KindVarDecl:
		x.trackDeclaration(n)
	case kind == source.KindBinaryOperator:
		x.trackAssignment(n)
	case kind == source.KindTryStmt:
		x.diagnostic(n, "try")
		for _, c := range n.Children() {
			cf := f
			if c.Kind() != source.KindCatchStmt {
				cf.exceptional = true
			}
			x.visit(c, cf)
		}
		return
	case kind == source.KindCatchStmt:
		x.diagnostic(n, "catch")
	case kind == source.KindThrowExpr:
		x.diagnostic(n, "throw")
		f.exceptional = true
	case kind == source.KindDynamicCastExpr:
		x.diagnostic(n, "dynamic_cast")
		f.dynamicCast = true
	case kind == source.KindTypeidExpr:
		x.diagnostic(n, "typeid")
		f.typeid = true
	}
	x.visitChildren(n, f)
}

func (x *extractor) visitChildren(n source.Node, f frame) {
	for _, c := range n.Children() {
		x.visit(c, f)
	}
}

func (x *extractor) excluded(n source.Node) bool {
	if x.exclude == nil {
		return false
	}
	file := n.Location().File
	return file != "" && x.exclude.Match(file)
}

// markEmitted reports whether n has not produced a fact yet.
func (x *extractor) markEmitted(n source.Node) bool {
	if _, ok := x.emitted[n.ID()]; ok {
		return false
	}
	x.emitted[n.ID()] = struct{}{}
	return true
}

func (x *extractor) diagnostic(n source.Node, what string) {
	loc := n.Location()
	x.log.Debug(what, slog.String("file", loc.File), slog.Int("line", loc.Line))
}

func (x *extractor) function(n source.Node) (qualified, signature string) {
	qualified = x.names.Qualified(n)
	params := make([]string, n.NumArguments())
	for i := range params {
		params[i] = n.Argument(i).Type().Spelling
	}
	signature = facts.Signature(params)
	if !x.markEmitted(n) {
		return qualified, signature
	}

	fn := facts.FunctionFact{
		Name:          n.Spelling(),
		QualifiedName: qualified,
		DisplayName:   n.DisplayName(),
		Kind:          functionKind(n.Kind()),
		ReturnType:    n.ResultType().Spelling,
		Parameters:    params,
		Location:      location(n),
		IsDefinition:  source.SameNode(n.Definition(), n),
		IsVirtual:     n.IsVirtualMethod(),
	}
	x.unit.Functions = append(x.unit.Functions, fn)

	if parent := n.SemanticParent(); !source.IsInvalid(parent) && parent.Kind().IsTypeDecl() {
		x.recordMethod(x.names.Qualified(parent), n.Spelling(), qualified, fn.IsVirtual)
	}
	switch n.Kind() {
	case source.KindConstructor:
		x.diagnostic(n, "constructor")
	case source.KindDestructor:
		x.diagnostic(n, "destructor")
	}
	return qualified, signature
}

func (x *extractor) recordMethod(typeName, spelling, qualified string, virtual bool) {
	table, ok := x.methods[typeName]
	if !ok {
		table = make(map[string]methodInfo)
		x.methods[typeName] = table
	}
	prev, seen := table[spelling]
	if seen {
		// Out-of-line definitions do not repeat the virtual keyword.
		virtual = virtual || prev.virtual
	}
	table[spelling] = methodInfo{qualified: qualified, virtual: virtual}
}

func (x *extractor) typeDecl(n source.Node) {
	if !x.markEmitted(n) {
		return
	}
	qualified := x.names.Qualified(n)
	isDef := source.SameNode(n.Definition(), n)
	if i, ok := x.typeIndex[qualified]; ok {
		// A later definition replaces the location of a forward declaration.
		if isDef && !x.unit.Types[i].IsDefinition {
			x.unit.Types[i].Location = location(n)
			x.unit.Types[i].IsDefinition = true
		}
		return
	}
	x.typeIndex[qualified] = len(x.unit.Types)
	x.unit.Types = append(x.unit.Types, facts.TypeFact{
		Name:          n.Spelling(),
		QualifiedName: qualified,
		Kind:          typeKind(n.Kind()),
		Location:      location(n),
		IsDefinition:  isDef,
	})
}

func (x *extractor) baseSpecifier(n source.Node) {
	derived := x.names.Qualified(n.SemanticParent())
	base := n.Type().Spelling
	if ref := n.Referenced(); !source.IsInvalid(ref) {
		base = x.names.Qualified(ref)
	}
	if base == "" {
		base = n.Spelling()
	}
	if derived == "" || base == "" {
		x.unit.Stats.DroppedInheritance++
		return
	}
	x.pendingBases = append(x.pendingBases, pendingBase{derived: derived, base: base})
}

func (x *extractor) call(n source.Node, f frame) {
	if !x.markEmitted(n) {
		return
	}
	fact, pending, ok := x.resolveCall(n)
	if !ok {
		x.unit.Stats.UnresolvedCalls++
		return
	}
	fact.Caller, fact.CallerSignature = f.caller()
	fact.ContextStack = slices.Clone(f.context)
	fact.ContextSignatures = slices.Clone(f.signatures)
	fact.Location = location(n)
	fact.ExceptionPath = f.exceptional
	fact.DynamicCast = f.dynamicCast || receiverContains(n, source.KindDynamicCastExpr)
	fact.Typeid = f.typeid || receiverContains(n, source.KindTypeidExpr)
	fact.Virtual = fact.Virtual || n.IsDynamicCall()
	fact.Async = isAsync(fact.Callee)

	if pending != nil {
		pending.call = len(x.unit.Calls)
		x.pendingVirtual = append(x.pendingVirtual, *pending)
	}
	x.unit.Calls = append(x.unit.Calls, fact)
}

// receiverContains reports whether the callee expression of a call (its
// first child) contains a node of the given kind, without entering nested
// calls or lambdas.
func receiverContains(call source.Node, kind source.Kind) bool {
	children := call.Children()
	if len(children) == 0 {
		return false
	}
	var walk func(n source.Node) bool
	walk = func(n source.Node) bool {
		if source.IsInvalid(n) {
			return false
		}
		switch n.Kind() {
		case kind:
			return true
		case source.KindCallExpr, source.KindLambdaExpr:
			return false
		}
		for _, c := range n.Children() {
			if walk(c) {
				return true
			}
		}
		return false
	}
	return walk(children[0])
}

func isAsync(callee string) bool {
	return strings.Contains(callee, "std::async") || strings.Contains(callee, "std::thread")
}

func (x *extractor) trackDeclaration(n source.Node) {
	if !isIndirectType(n.Type()) {
		return
	}
	children := n.Children()
	if len(children) == 0 {
		return
	}
	x.bind(n.Spelling(), children[len(children)-1])
}

func (x *extractor) trackAssignment(n source.Node) {
	if n.Spelling() != "=" {
		return
	}
	children := n.Children()
	if len(children) < 2 {
		return
	}
	lhs := unwrap(children[0])
	ref := lhs.Referenced()
	if source.IsInvalid(ref) || !ref.Kind().IsVariable() || !isIndirectType(ref.Type()) {
		return
	}
	x.bind(ref.Spelling(), children[1])
}

func (x *extractor) bind(lhs string, expr source.Node) {
	target, alias := x.assignmentTarget(expr)
	if target == "" {
		return
	}
	if alias {
		x.aliases.AddAlias(lhs, target)
		return
	}
	x.aliases.AddAssignment(lhs, target)
}

// assignmentTarget names what an initializer points at. alias is true when
// the expression is another tracked pointer variable.
func (x *extractor) assignmentTarget(expr source.Node) (target string, alias bool) {
	expr = unwrap(expr)
	if source.IsInvalid(expr) {
		return "", false
	}
	switch expr.Kind() {
	case source.KindDeclRefExpr, source.KindMemberRefExpr:
		ref := expr.Referenced()
		switch {
		case source.IsInvalid(ref):
			return expr.Spelling(), false
		case ref.Kind().IsVariable() && isIndirectType(ref.Type()):
			return ref.Spelling(), true
		}
		return x.names.Qualified(ref), false
	case source.KindLambdaExpr, source.KindCallExpr:
		return "", false
	}
	return expr.Spelling(), false
}

// unwrap strips unary operators (address-of, dereference) and other
// single-child wrappers.
func unwrap(n source.Node) source.Node {
	for !source.IsInvalid(n) {
		if n.Kind() != source.KindUnaryOperator && n.Kind() != source.KindOther {
			return n
		}
		children := n.Children()
		if len(children) != 1 {
			return n
		}
		n = children[0]
	}
	return n
}

func isIndirectType(t source.Type) bool {
	if t.IsCallableIndirect() {
		return true
	}
	return t.Kind == source.TypeAuto && strings.Contains(t.Canonical, "*")
}

func location(n source.Node) facts.Location {
	loc := n.Location()
	return facts.Location{File: loc.File, Line: loc.Line, Column: loc.Column}
}

func functionKind(k source.Kind) string {
	switch k {
	case source.KindMethod:
		return facts.KindMethod
	case source.KindConstructor:
		return facts.KindConstructor
	case source.KindDestructor:
		return facts.KindDestructor
	case source.KindConversionFunction:
		return facts.KindConversion
	case source.KindFunctionTemplate:
		return facts.KindTemplate
	}
	return facts.KindFunction
}

func typeKind(k source.Kind) string {
	switch k {
	case source.KindStructDecl:
		return facts.KindStruct
	case source.KindClassTemplate:
		return facts.KindClassTemplate
	}
	return facts.KindClass
}
