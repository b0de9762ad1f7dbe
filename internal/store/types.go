package store

import "time"

// Function kinds stored for placeholder rows.
const (
	KindExternal  = "external"
	KindSynthetic = "synthetic"
)

// Function is a row of the functions table.
type Function struct {
	ID                int64    `json:"id"`
	QualifiedName     string   `json:"qualified_name"`
	Signature         string   `json:"signature"`
	Name              string   `json:"name"`
	DisplayName       string   `json:"display_name,omitempty"`
	Kind              string   `json:"kind"`
	ReturnType        string   `json:"return_type,omitempty"`
	Parameters        []string `json:"parameters,omitempty"`
	FilePath          string   `json:"file_path,omitempty"`
	Line              int      `json:"line,omitempty"`
	Column            int      `json:"column,omitempty"`
	IsDefinition      bool     `json:"is_definition"`
	IsVirtual         bool     `json:"is_virtual"`
	IsFunctionPointer bool     `json:"is_function_pointer"`
	PointerLevel      int      `json:"pointer_level"`
	IsExternal        bool     `json:"is_external"`
}

// Type is a row of the types table.
type Type struct {
	ID            int64  `json:"id"`
	QualifiedName string `json:"qualified_name"`
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	FilePath      string `json:"file_path,omitempty"`
	Line          int    `json:"line,omitempty"`
	Column        int    `json:"column,omitempty"`
	IsDefinition  bool   `json:"is_definition"`
	IsExternal    bool   `json:"is_external"`
}

// CallEdge is a call row joined with its endpoint names, context stack and
// candidate targets.
type CallEdge struct {
	ID             int64     `json:"id"`
	CallerID       int64     `json:"caller_id"`
	CalleeID       int64     `json:"callee_id"`
	Caller         string    `json:"caller"`
	Callee         string    `json:"callee"`
	CalleeIdentity string    `json:"callee_identity"`
	FilePath       string    `json:"file_path"`
	Line           int       `json:"line"`
	Column         int       `json:"column"`
	UnitPath       string    `json:"unit_path,omitempty"`
	Flags          CallFlags `json:"flags"`
	MacroFile      *string   `json:"macro_file,omitempty"`
	MacroLine      *int      `json:"macro_line,omitempty"`
	ContextStack   []string  `json:"context_stack,omitempty"`
	Candidates     []string  `json:"candidates,omitempty"`
	RunID          string    `json:"run_id,omitempty"`
}

// CallFlags mirrors the flag columns of the calls table.
type CallFlags struct {
	Virtual               bool `json:"virtual,omitempty"`
	TemplateInstantiation bool `json:"template_instantiation,omitempty"`
	ExceptionPath         bool `json:"exception_path,omitempty"`
	MacroExpansion        bool `json:"macro_expansion,omitempty"`
	DynamicCast           bool `json:"dynamic_cast,omitempty"`
	Typeid                bool `json:"typeid,omitempty"`
	FunctionPointer       bool `json:"function_pointer,omitempty"`
	Async                 bool `json:"async,omitempty"`
}

// Run is one flushed unit.
type Run struct {
	ID         string    `json:"id"`
	UnitPath   string    `json:"unit_path"`
	FactsHash  string    `json:"facts_hash"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Functions  int       `json:"functions"`
	Types      int       `json:"types"`
	Calls      int       `json:"calls"`
	Rejected   int       `json:"rejected"`
}

// FunctionRef is the outcome of looking up an edge endpoint by name.
// External refs name something with no declaration in the store; under the
// placeholder policy they still carry the ID of the placeholder row, under
// the reject policy their ID is zero.
type FunctionRef struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	External bool   `json:"external"`
}

// Resolved returns a ref to a stored declaration.
func Resolved(id int64, name string) FunctionRef {
	return FunctionRef{ID: id, Name: name}
}

// External returns a ref to something with no stored declaration.
func External(id int64, name string) FunctionRef {
	return FunctionRef{ID: id, Name: name, External: true}
}

// Linkable reports whether the ref can be used as a foreign key.
func (r FunctionRef) Linkable() bool {
	return r.ID > 0
}

// EdgeResult reports what PutCallEdge did.
type EdgeResult struct {
	CallID   int64       `json:"call_id,omitempty"`
	Caller   FunctionRef `json:"caller"`
	Callee   FunctionRef `json:"callee"`
	Inserted bool        `json:"inserted"`
	Rejected bool        `json:"rejected"`
	// DroppedContexts counts context stack entries that could not be linked.
	DroppedContexts int `json:"dropped_contexts,omitempty"`
}
