package source

import "strings"

// Kind classifies a node.
type Kind int

const (
	KindInvalid Kind = iota
	KindOther
	KindTranslationUnit
	KindNamespace

	KindFunctionDecl
	KindMethod
	KindConstructor
	KindDestructor
	KindConversionFunction
	KindFunctionTemplate

	KindClassDecl
	KindStructDecl
	KindClassTemplate
	KindBaseSpecifier

	KindVarDecl
	KindParmDecl
	KindFieldDecl

	KindCallExpr
	KindMacroExpansion
	KindMacroDefinition
	KindDeclRefExpr
	KindMemberRefExpr
	KindUnaryOperator
	KindBinaryOperator
	KindLambdaExpr
	KindDynamicCastExpr
	KindTypeidExpr

	KindTryStmt
	KindCatchStmt
	KindThrowExpr
	KindCompoundStmt
)

var kindNames = map[Kind]string{
	KindInvalid:            "invalid",
	KindOther:              "other",
	KindTranslationUnit:    "translation_unit",
	KindNamespace:          "namespace",
	KindFunctionDecl:       "function",
	KindMethod:             "method",
	KindConstructor:        "constructor",
	KindDestructor:         "destructor",
	KindConversionFunction: "conversion",
	KindFunctionTemplate:   "function_template",
	KindClassDecl:          "class",
	KindStructDecl:         "struct",
	KindClassTemplate:      "class_template",
	KindBaseSpecifier:      "base_specifier",
	KindVarDecl:            "var",
	KindParmDecl:           "param",
	KindFieldDecl:          "field",
	KindCallExpr:           "call",
	KindMacroExpansion:     "macro_expansion",
	KindMacroDefinition:    "macro_definition",
	KindDeclRefExpr:        "decl_ref",
	KindMemberRefExpr:      "member_ref",
	KindUnaryOperator:      "unary_operator",
	KindBinaryOperator:     "binary_operator",
	KindLambdaExpr:         "lambda",
	KindDynamicCastExpr:    "dynamic_cast",
	KindTypeidExpr:         "typeid",
	KindTryStmt:            "try",
	KindCatchStmt:          "catch",
	KindThrowExpr:          "throw",
	KindCompoundStmt:       "compound",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String. Unknown names map to KindOther.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindOther
}

// IsFunctionLike reports whether k declares something callable.
func (k Kind) IsFunctionLike() bool {
	switch k {
	case KindFunctionDecl, KindMethod, KindConstructor, KindDestructor,
		KindConversionFunction, KindFunctionTemplate:
		return true
	}
	return false
}

// IsTypeDecl reports whether k declares a class-like type.
func (k Kind) IsTypeDecl() bool {
	switch k {
	case KindClassDecl, KindStructDecl, KindClassTemplate:
		return true
	}
	return false
}

// IsVariable reports whether k declares a named storage location.
func (k Kind) IsVariable() bool {
	switch k {
	case KindVarDecl, KindParmDecl, KindFieldDecl:
		return true
	}
	return false
}

// IsTemplate reports whether k is a primary template declaration.
func (k Kind) IsTemplate() bool {
	return k == KindFunctionTemplate || k == KindClassTemplate
}

// TypeKind classifies a Type.
type TypeKind int

const (
	TypeInvalid TypeKind = iota
	TypeOther
	TypePointer
	TypeFunction
	TypeAuto
	TypeRecord
)

var typeKindNames = map[TypeKind]string{
	TypeInvalid:  "invalid",
	TypeOther:    "other",
	TypePointer:  "pointer",
	TypeFunction: "function",
	TypeAuto:     "auto",
	TypeRecord:   "record",
}

func (k TypeKind) String() string {
	if s, ok := typeKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseTypeKind is the inverse of TypeKind.String. Unknown names map to TypeOther.
func ParseTypeKind(s string) TypeKind {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TypeInvalid
	}
	for k, name := range typeKindNames {
		if name == s {
			return k
		}
	}
	return TypeOther
}

// Type is the provider's view of a declaration or expression type.
type Type struct {
	Kind     TypeKind
	Spelling string
	// Canonical is the fully resolved spelling. For auto placeholders it is
	// the deduced type.
	Canonical string
}

// IsCallableIndirect reports whether a variable of this type can be called
// through: function pointers and function references.
func (t Type) IsCallableIndirect() bool {
	return t.Kind == TypePointer || t.Kind == TypeFunction
}
