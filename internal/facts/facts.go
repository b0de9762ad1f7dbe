// Package facts holds the entities and edges extracted from one translation
// unit before they are persisted.
package facts

import (
	"strings"
)

// Function kinds.
const (
	KindFunction    = "function"
	KindMethod      = "method"
	KindConstructor = "constructor"
	KindDestructor  = "destructor"
	KindConversion  = "conversion"
	KindTemplate    = "template"
)

// Type kinds.
const (
	KindClass         = "class"
	KindStruct        = "struct"
	KindClassTemplate = "class_template"
)

// Location is a declaration or call site.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// FunctionFact describes one function-like declaration.
type FunctionFact struct {
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualified_name"`
	DisplayName   string   `json:"display_name"`
	Kind          string   `json:"kind"`
	ReturnType    string   `json:"return_type"`
	Parameters    []string `json:"parameters,omitempty"`
	Location
	IsDefinition bool `json:"is_definition"`
	IsVirtual    bool `json:"is_virtual"`
}

// Signature is the comma-joined parameter spellings; it separates overloads
// that share a qualified name.
func (f *FunctionFact) Signature() string {
	return Signature(f.Parameters)
}

// IsFunctionPointer reports whether the function returns a function pointer.
func (f *FunctionFact) IsFunctionPointer() bool {
	return IsFunctionPointerSpelling(f.ReturnType)
}

// PointerLevel is the indirection level of the return type.
func (f *FunctionFact) PointerLevel() int {
	return PointerLevel(f.ReturnType)
}

// TypeFact describes a class, struct or class template.
type TypeFact struct {
	Name          string `json:"name"`
	QualifiedName string `json:"qualified_name"`
	Kind          string `json:"kind"`
	Location
	IsDefinition bool     `json:"is_definition"`
	BaseClasses  []string `json:"base_classes,omitempty"`
}

// InheritanceEdge links two TypeFacts of the same unit by qualified name.
type InheritanceEdge struct {
	Derived string `json:"derived"`
	Base    string `json:"base"`
	Ordinal int    `json:"ordinal"`
}

// Flags are the fidelity markers of a call.
type Flags struct {
	Virtual               bool `json:"virtual,omitempty"`
	TemplateInstantiation bool `json:"template_instantiation,omitempty"`
	ExceptionPath         bool `json:"exception_path,omitempty"`
	MacroExpansion        bool `json:"macro_expansion,omitempty"`
	DynamicCast           bool `json:"dynamic_cast,omitempty"`
	Typeid                bool `json:"typeid,omitempty"`
	FunctionPointer       bool `json:"function_pointer,omitempty"`
	Async                 bool `json:"async,omitempty"`
}

// CallFact is one call site.
type CallFact struct {
	// Caller is empty for calls at namespace scope.
	Caller          string `json:"caller"`
	CallerSignature string `json:"caller_signature,omitempty"`
	Callee string `json:"callee"`
	// CalleeSignature is the parameter signature of the referenced
	// declaration, used to pick an overload.
	CalleeSignature string `json:"callee_signature,omitempty"`
	// Candidates are qualified names of possible targets when Callee
	// encodes a set (virtual overrides, resolved function pointers) or a
	// decorated name (template, operator).
	Candidates []string `json:"candidates,omitempty"`
	Location
	Flags
	MacroFile string `json:"macro_file,omitempty"`
	MacroLine int    `json:"macro_line,omitempty"`
	// ContextStack lists the enclosing callables, outermost first. Its last
	// element equals Caller.
	ContextStack []string `json:"context_stack,omitempty"`
	// ContextSignatures holds the parameter signature of each ContextStack
	// entry, index for index.
	ContextSignatures []string `json:"context_signatures,omitempty"`
}

// Stats counts what extraction dropped or skipped.
type Stats struct {
	UnresolvedCalls    int `json:"unresolved_calls"`
	DroppedInheritance int `json:"dropped_inheritance"`
	ExcludedNodes      int `json:"excluded_nodes"`
	MacroExpansions    int `json:"macro_expansions"`
}

// Unit is everything extracted from one translation unit.
type Unit struct {
	Path        string            `json:"path"`
	Functions   []FunctionFact    `json:"functions"`
	Types       []TypeFact        `json:"types"`
	Inheritance []InheritanceEdge `json:"inheritance"`
	Calls       []CallFact        `json:"calls"`
	Stats       Stats             `json:"stats"`
}

// Signature joins parameter spellings.
func Signature(params []string) string {
	return strings.Join(params, ",")
}

// PointerLevel counts indirection markers in a type spelling.
func PointerLevel(spelling string) int {
	return strings.Count(spelling, "*")
}

// IsFunctionPointerSpelling reports whether a type spelling names a pointer
// to function, e.g. "int (*)(int)".
func IsFunctionPointerSpelling(spelling string) bool {
	return strings.Contains(spelling, "(*")
}
