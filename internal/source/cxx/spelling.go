package cxx

import (
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/xref/internal/source"
)

// declInfo describes one declarator.
type declInfo struct {
	// name is the innermost declared name.
	name *sitter.Node
	// inner is the declarator without its initializer.
	inner *sitter.Node
	init  *sitter.Node
	// fn is the function declarator applied directly to name.
	fn         *sitter.Node
	isFunction bool
	// resultSuffix holds the pointer and reference markers wrapping fn.
	resultSuffix string
}

// inspect walks a declarator down to the declared name. The declaration is
// a function when the nearest wrapper of the name is a function declarator;
// "int (*fp)(int)" is a pointer and therefore a variable.
func inspect(d *sitter.Node) declInfo {
	var info declInfo
	if d == nil {
		return info
	}
	if d.Type() == "init_declarator" {
		info.init = d.ChildByFieldName("value")
		d = d.ChildByFieldName("declarator")
	}
	info.inner = d

	var path []*sitter.Node
	for cur := d; cur != nil; {
		switch cur.Type() {
		case "identifier", "field_identifier", "qualified_identifier", "destructor_name",
			"operator_name", "template_function", "type_identifier":
			info.name = cur
			cur = nil
		case "operator_cast":
			info.name = cur
			info.isFunction = true
			return info
		case "function_declarator", "pointer_declarator", "array_declarator", "attributed_declarator":
			path = append(path, cur)
			cur = cur.ChildByFieldName("declarator")
		case "reference_declarator", "parenthesized_declarator":
			path = append(path, cur)
			cur = firstNamed(cur)
		default:
			cur = nil
		}
	}
	if info.name == nil {
		return info
	}
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i].Type() {
		case "attributed_declarator":
			continue
		case "function_declarator":
			info.isFunction = true
			info.fn = path[i]
			var suffix strings.Builder
			for _, w := range path[:i] {
				switch w.Type() {
				case "pointer_declarator":
					suffix.WriteString("*")
				case "reference_declarator":
					suffix.WriteString("&")
				}
			}
			info.resultSuffix = suffix.String()
		}
		break
	}
	return info
}

func firstNamed(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "comment", "attribute_specifier", "ms_call_modifier":
			continue
		}
		return c
	}
	return nil
}

// text returns the source text of n.
func (l *lowerer) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(l.src)
}

// without returns the text of n with the byte range of hole removed.
func (l *lowerer) without(n, hole *sitter.Node) string {
	if hole == nil || hole.StartByte() < n.StartByte() || hole.EndByte() > n.EndByte() {
		return l.text(n)
	}
	return string(l.src[n.StartByte():hole.StartByte()]) + string(l.src[hole.EndByte():n.EndByte()])
}

// declarationPrefix returns the specifier text in front of the first
// declarator with storage and function specifiers dropped.
func (l *lowerer) declarationPrefix(n, declarator *sitter.Node) string {
	if declarator == nil || declarator.StartByte() < n.StartByte() {
		return ""
	}
	raw := string(l.src[n.StartByte():declarator.StartByte()])
	var kept []string
	for _, f := range strings.Fields(raw) {
		switch f {
		case "static", "extern", "inline", "virtual", "explicit", "constexpr", "consteval",
			"friend", "thread_local", "register", "mutable":
			continue
		}
		kept = append(kept, f)
	}
	return normalize(strings.Join(kept, " "))
}

// normalize produces clang-like type spellings: single spaces, a space
// before the first pointer or reference marker, none inside parentheses.
func normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch r {
		case ' ':
			if i+1 < len(runes) && (runes[i+1] == ')' || runes[i+1] == ',' || runes[i+1] == '*' && i > 0 && runes[i-1] == '*') {
				continue
			}
			if i > 0 && runes[i-1] == '(' {
				continue
			}
		case '*', '&':
			if i > 0 && (unicode.IsLetter(runes[i-1]) || unicode.IsDigit(runes[i-1]) || runes[i-1] == '_' || runes[i-1] == '>') {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// compact removes all whitespace; used for names such as "ns :: f".
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// operatorName turns "operator +" into "operator+" and keeps "operator new".
func operatorName(s string) string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "operator")
	if !ok {
		return compact(s)
	}
	rest = strings.TrimSpace(rest)
	if rest != "" && (unicode.IsLetter(rune(rest[0])) || rest[0] == '_') {
		return "operator " + rest
	}
	return "operator" + compact(rest)
}

// splitQualified splits "a::b<c::d>::f" on top-level "::".
func splitQualified(name string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ':':
			if depth == 0 && i+1 < len(name) && name[i+1] == ':' {
				parts = append(parts, name[start:i])
				start = i + 2
				i++
			}
		}
	}
	return append(parts, name[start:])
}

func joinQualified(scope, name string) string {
	switch {
	case scope == "":
		return name
	case name == "":
		return scope
	}
	return scope + "::" + name
}

// scopesOf lists the lookup prefixes of qual from innermost to file scope.
func scopesOf(qual string) []string {
	parts := splitQualified(qual)
	if qual == "" {
		return []string{""}
	}
	out := make([]string, 0, len(parts)+1)
	for i := len(parts); i > 0; i-- {
		out = append(out, strings.Join(parts[:i], "::"))
	}
	return append(out, "")
}

// stripTemplateArgs removes a trailing argument list: "Box<int>" -> "Box".
func stripTemplateArgs(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		return name[:i]
	}
	return name
}

var primitives = map[string]bool{
	"": true, "void": true, "bool": true, "char": true, "short": true, "int": true,
	"long": true, "float": true, "double": true, "unsigned": true, "signed": true,
	"size_t": true, "auto": true, "wchar_t": true, "char16_t": true, "char32_t": true,
	"int8_t": true, "int16_t": true, "int32_t": true, "int64_t": true,
	"uint8_t": true, "uint16_t": true, "uint32_t": true, "uint64_t": true,
}

// baseTypeName reduces a type spelling to the name of the type it
// denotes: "const std::vector<int> &" -> "std::vector".
func baseTypeName(spelling string) string {
	var kept []string
	for _, f := range strings.Fields(strings.NewReplacer("*", " ", "&", " ").Replace(spelling)) {
		switch f {
		case "const", "volatile", "struct", "class", "union", "typename", "enum":
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 {
		return ""
	}
	return stripTemplateArgs(compact(strings.Join(kept, " ")))
}

// typeKindOf classifies a spelled type.
func typeKindOf(spelling string) source.TypeKind {
	switch {
	case spelling == "":
		return source.TypeInvalid
	case strings.Contains(spelling, "(*") || strings.HasSuffix(spelling, "*"):
		return source.TypePointer
	case strings.Contains(spelling, "function<"):
		return source.TypeFunction
	case strings.HasPrefix(spelling, "auto") || strings.HasPrefix(spelling, "const auto"):
		return source.TypeAuto
	}
	return source.TypeOther
}

func isIndirectSpelling(spelling string) bool {
	return strings.ContainsAny(spelling, "*&") || strings.Contains(spelling, "function<")
}

func position(n *sitter.Node) (line, col int) {
	p := n.StartPoint()
	return int(p.Row) + 1, int(p.Column) + 1
}
