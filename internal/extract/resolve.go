package extract

import (
	"strings"
	"unicode"

	"github.com/jward/xref/internal/facts"
	"github.com/jward/xref/internal/source"
)

// resolveCall classifies a call site. The first matching heuristic wins:
// macro expansion, virtual dispatch, function pointer, lambda, template
// instantiation, operator overload, then the plain qualified name. ok is
// false when the callee cannot be determined and the call is dropped.
func (x *extractor) resolveCall(n source.Node) (fact facts.CallFact, pending *pendingVirtual, ok bool) {
	if n.Kind() == source.KindMacroExpansion {
		return x.resolveMacro(n), nil, true
	}

	ref := n.Referenced()
	if source.IsInvalid(ref) {
		return fact, nil, false
	}
	fact.CalleeSignature = signatureOf(ref)

	switch {
	case ref.IsVirtualMethod():
		declared := x.names.Qualified(ref)
		fact.Callee = facts.MarkerVirtual + declared
		fact.Candidates = []string{declared}
		fact.Virtual = true
		pending = &pendingVirtual{
			class:    x.names.Qualified(enclosingType(ref)),
			method:   ref.Spelling(),
			declared: declared,
		}

	case isIndirectReference(ref):
		name := ref.Spelling()
		fact.FunctionPointer = true
		fact.CalleeSignature = ""
		if targets := x.aliases.Resolve(name); len(targets) > 0 {
			fact.Callee = facts.MarkerResolvedFunctionPointer + strings.Join(targets, facts.CandidateSeparator)
			fact.Candidates = x.aliases.Targets(name)
		} else {
			fact.Callee = facts.MarkerFunctionPointer + name
		}

	case ref.Kind() == source.KindLambdaExpr:
		fact.Callee = facts.MarkerLambda + x.names.Plain(ref.SemanticParent())
		fact.CalleeSignature = ""

	case isTemplateReference(ref):
		tmpl, args := templateOf(ref)
		fact.Callee = facts.MarkerTemplate + x.names.Plain(tmpl) + "<" + args + ">"
		fact.Candidates = []string{x.names.Qualified(tmpl)}
		fact.TemplateInstantiation = true

	case isOperator(ref):
		fact.Callee = facts.MarkerOperator + ref.Spelling()
		fact.Candidates = []string{x.names.Qualified(ref)}

	default:
		fact.Callee = x.names.Qualified(ref)
	}
	return fact, pending, true
}

// resolveMacro records the macro origin separately from the expansion site.
// When the expansion holds exactly one resolvable call, that call becomes
// the callee and is not emitted again on its own.
func (x *extractor) resolveMacro(n source.Node) facts.CallFact {
	x.unit.Stats.MacroExpansions++
	x.diagnostic(n, "macro expansion")

	fact := facts.CallFact{}
	fact.MacroExpansion = true
	if def := n.Definition(); !source.IsInvalid(def) {
		loc := def.Location()
		fact.MacroFile = loc.File
		fact.MacroLine = loc.Line
	}
	if inner := singleCall(n); inner != nil {
		if ref := inner.Referenced(); !source.IsInvalid(ref) {
			fact.Callee = x.names.Qualified(ref)
			fact.CalleeSignature = signatureOf(ref)
			x.consumed[inner.ID()] = struct{}{}
			return fact
		}
	}
	fact.Callee = facts.MarkerMacro + n.Spelling()
	return fact
}

// singleCall returns the only call inside an expansion, or nil when there
// are none or several.
func singleCall(n source.Node) source.Node {
	var found []source.Node
	var walk func(source.Node)
	walk = func(c source.Node) {
		for _, child := range c.Children() {
			if source.IsInvalid(child) {
				continue
			}
			if child.Kind() == source.KindCallExpr || child.Kind() == source.KindMacroExpansion {
				found = append(found, child)
				continue
			}
			walk(child)
		}
	}
	walk(n)
	if len(found) != 1 || found[0].Kind() != source.KindCallExpr {
		return nil
	}
	return found[0]
}

// enclosingType walks semantic parents from the method's definition up to
// the nearest class-like declaration.
func enclosingType(method source.Node) source.Node {
	start := method
	if def := method.Definition(); !source.IsInvalid(def) {
		start = def
	}
	for p := start.SemanticParent(); !source.IsInvalid(p); p = p.SemanticParent() {
		if p.Kind().IsTypeDecl() {
			return p
		}
	}
	return source.Invalid
}

func isIndirectReference(ref source.Node) bool {
	if ref.Kind() == source.KindDeclRefExpr {
		return true
	}
	return ref.Kind().IsVariable() && isIndirectType(ref.Type())
}

func isTemplateReference(ref source.Node) bool {
	if ref.Kind().IsTemplate() {
		return true
	}
	return !source.IsInvalid(ref.SpecializedTemplate())
}

// templateOf returns the primary template and the argument spelling. For a
// specialization the arguments are its type spelling; a bare template
// reports its own.
func templateOf(ref source.Node) (source.Node, string) {
	if tmpl := ref.SpecializedTemplate(); !source.IsInvalid(tmpl) {
		return tmpl, ref.Type().Spelling
	}
	return ref, ref.Type().Spelling
}

func isOperator(ref source.Node) bool {
	if !ref.Kind().IsFunctionLike() {
		return false
	}
	rest, ok := strings.CutPrefix(ref.Spelling(), "operator")
	if !ok || rest == "" {
		return false
	}
	r := rune(rest[0])
	return r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func signatureOf(ref source.Node) string {
	if !ref.Kind().IsFunctionLike() {
		return ""
	}
	params := make([]string, ref.NumArguments())
	for i := range params {
		params[i] = ref.Argument(i).Type().Spelling
	}
	return facts.Signature(params)
}
