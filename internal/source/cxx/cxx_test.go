package cxx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/xref/internal/extract"
	"github.com/jward/xref/internal/facts"
	"github.com/jward/xref/internal/source"
)

func extractSource(t *testing.T, p Provider, path, src string) *facts.Unit {
	t.Helper()
	root, err := p.Parse(context.Background(), path, []byte(src))
	require.NoError(t, err)
	require.False(t, source.IsInvalid(root))
	unit, err := extract.Extract(context.Background(), root)
	require.NoError(t, err)
	return unit
}

func callAt(t *testing.T, unit *facts.Unit, line int) facts.CallFact {
	t.Helper()
	for _, c := range unit.Calls {
		if c.Line == line {
			return c
		}
	}
	t.Fatalf("no call at line %d in %+v", line, unit.Calls)
	return facts.CallFact{}
}

func qualifiedNames(unit *facts.Unit) []string {
	var out []string
	for _, f := range unit.Functions {
		out = append(out, f.QualifiedName)
	}
	return out
}

// =============================================================================
// Scenarios
// =============================================================================

func TestProvider_VirtualDispatch(t *testing.T) {
	t.Parallel()
	src := `class Base {
public:
    virtual void f() {}
};
class Derived : public Base {
public:
    void f() override {}
};

int main() {
    Base *b = new Derived();
    b->f();
    return 0;
}
`
	unit := extractSource(t, Provider{}, "virtual.cpp", src)

	assert.Equal(t, []string{"Base::f", "Derived::f", "main"}, qualifiedNames(unit))
	assert.Equal(t, []facts.InheritanceEdge{{Derived: "Derived", Base: "Base"}}, unit.Inheritance)

	c := callAt(t, unit, 12)
	assert.Equal(t, "main", c.Caller)
	assert.Equal(t, "[virtual] Derived::f|[virtual] Base::f", c.Callee)
	assert.Equal(t, []string{"Derived::f", "Base::f"}, c.Candidates)
	assert.True(t, c.Virtual)
}

func TestProvider_MacroExpansion(t *testing.T) {
	t.Parallel()
	src := `#define CALL(x) doWork(x)

void doWork(int x) {}

int main() {
    CALL(5);
    return 0;
}
`
	unit := extractSource(t, Provider{}, "macro.cpp", src)

	require.Len(t, unit.Calls, 1)
	c := unit.Calls[0]
	assert.Equal(t, "main", c.Caller)
	assert.Equal(t, "doWork", c.Callee)
	assert.Equal(t, "int", c.CalleeSignature)
	assert.True(t, c.MacroExpansion)
	assert.Equal(t, "macro.cpp", c.MacroFile)
	assert.Equal(t, 1, c.MacroLine)
	assert.Equal(t, 6, c.Line)
}

func TestProvider_FunctionPointer(t *testing.T) {
	t.Parallel()
	src := `int helper(int x) { return x; }

void caller1() {
    int (*fp)(int) = &helper;
    fp(5);
}
`
	unit := extractSource(t, Provider{}, "fp.cpp", src)

	c := callAt(t, unit, 5)
	assert.Equal(t, "caller1", c.Caller)
	assert.Equal(t, "[resolved function pointer] helper", c.Callee)
	assert.Equal(t, []string{"helper"}, c.Candidates)
	assert.True(t, c.FunctionPointer)
}

// =============================================================================
// Heuristics
// =============================================================================

func TestProvider_Lambda(t *testing.T) {
	t.Parallel()
	src := `int main() {
    auto f = [](int x) { return x; };
    f(1);
    return 0;
}
`
	unit := extractSource(t, Provider{}, "lambda.cpp", src)

	assert.Equal(t, "[lambda] main::f", callAt(t, unit, 3).Callee)
}

func TestProvider_TemplateInstantiation(t *testing.T) {
	t.Parallel()
	src := `template <typename T>
T max(T a, T b) { return a > b ? a : b; }

int main() {
    return max<int>(1, 2);
}
`
	unit := extractSource(t, Provider{}, "tmpl.cpp", src)

	assert.Equal(t, facts.KindTemplate, unit.Functions[0].Kind)
	c := callAt(t, unit, 5)
	assert.Equal(t, "[template] max<int>", c.Callee)
	assert.Equal(t, []string{"max<T>"}, c.Candidates)
	assert.True(t, c.TemplateInstantiation)
}

func TestProvider_OperatorOverload(t *testing.T) {
	t.Parallel()
	src := `struct Vec {
    int x;
    Vec operator+(const Vec &other) const { return other; }
};

int main() {
    Vec a;
    Vec b;
    Vec c = a + b;
    return 0;
}
`
	unit := extractSource(t, Provider{}, "op.cpp", src)

	c := callAt(t, unit, 9)
	assert.Equal(t, "[operator] operator+", c.Callee)
	assert.Equal(t, []string{"Vec::operator+"}, c.Candidates)
	assert.Equal(t, "const Vec &", c.CalleeSignature)
}

func TestProvider_DynamicCastReceiver(t *testing.T) {
	t.Parallel()
	src := `struct Shape { virtual double area() { return 0; } };
struct Circle : Shape { double area() override { return 1; } };

double measure(Shape *s) {
    return dynamic_cast<Circle *>(s)->area();
}
`
	unit := extractSource(t, Provider{}, "rtti.cpp", src)

	c := callAt(t, unit, 5)
	assert.True(t, c.DynamicCast)
	assert.True(t, c.Virtual)
	assert.Contains(t, c.Candidates, "Circle::area")
}

// =============================================================================
// Declarations and context
// =============================================================================

func TestProvider_OutOfLineMethod(t *testing.T) {
	t.Parallel()
	src := `namespace app {
class Widget {
public:
    void draw();
    void refresh();
};
}

void app::Widget::draw() {
    refresh();
}
`
	unit := extractSource(t, Provider{}, "widget.cpp", src)

	assert.Equal(t, []string{"app::Widget::draw", "app::Widget::refresh", "app::Widget::draw"}, qualifiedNames(unit))
	assert.False(t, unit.Functions[0].IsDefinition)
	assert.True(t, unit.Functions[2].IsDefinition)
	assert.Equal(t, facts.KindMethod, unit.Functions[2].Kind)

	c := callAt(t, unit, 10)
	assert.Equal(t, "app::Widget::draw", c.Caller)
	assert.Equal(t, "app::Widget::refresh", c.Callee)
}

func TestProvider_ExceptionPath(t *testing.T) {
	t.Parallel()
	src := `void risky() {}
void recover() {}

void f() {
    try {
        risky();
    } catch (...) {
        recover();
    }
}
`
	unit := extractSource(t, Provider{}, "eh.cpp", src)

	assert.True(t, callAt(t, unit, 6).ExceptionPath)
	assert.False(t, callAt(t, unit, 8).ExceptionPath)
}

func TestProvider_SignaturesAndKinds(t *testing.T) {
	t.Parallel()
	src := `struct Node {
    Node(int v);
    ~Node();
    char **names(int count, const char *prefix);
};
`
	unit := extractSource(t, Provider{}, "node.hpp", src)

	require.Len(t, unit.Functions, 3)
	assert.Equal(t, facts.KindConstructor, unit.Functions[0].Kind)
	assert.Equal(t, facts.KindDestructor, unit.Functions[1].Kind)
	names := unit.Functions[2]
	assert.Equal(t, "Node::names", names.QualifiedName)
	assert.Equal(t, []string{"int", "const char *"}, names.Parameters)
	assert.Equal(t, "char **", names.ReturnType)
	assert.Equal(t, 2, names.PointerLevel())
	require.Len(t, unit.Types, 1)
	assert.Equal(t, facts.KindStruct, unit.Types[0].Kind)
}

func TestProvider_OverloadContextSignatures(t *testing.T) {
	t.Parallel()
	src := `void g() {}
void f(int a) {
    g();
}
void f(double d) {
    g();
}
`
	unit := extractSource(t, Provider{}, "overload.cpp", src)

	first := callAt(t, unit, 3)
	assert.Equal(t, "int", first.CallerSignature)
	assert.Equal(t, []string{"f"}, first.ContextStack)
	assert.Equal(t, []string{"int"}, first.ContextSignatures)

	second := callAt(t, unit, 6)
	assert.Equal(t, "double", second.CallerSignature)
	assert.Equal(t, []string{"f"}, second.ContextStack)
	assert.Equal(t, []string{"double"}, second.ContextSignatures)
}

// =============================================================================
// Unresolved callees
// =============================================================================

func TestProvider_UnresolvedCalls(t *testing.T) {
	t.Parallel()
	src := `void run() {
    undefined_thing(1);
    std::puts("x");
}
`
	unit := extractSource(t, Provider{}, "ext.cpp", src)
	assert.Empty(t, unit.Calls)
	assert.Equal(t, 2, unit.Stats.UnresolvedCalls)

	unit = extractSource(t, Provider{SynthesizeExternals: true}, "ext.cpp", src)
	require.Len(t, unit.Calls, 2)
	assert.Equal(t, "undefined_thing", callAt(t, unit, 2).Callee)
	assert.Equal(t, "std::puts", callAt(t, unit, 3).Callee)
	assert.Equal(t, 0, unit.Stats.UnresolvedCalls)
}

func TestProvider_DialectForFile(t *testing.T) {
	t.Parallel()
	d, ok := DialectForFile("src/a.C")
	assert.True(t, ok)
	assert.Equal(t, DialectC, d)
	d, ok = DialectForFile("include/a.hpp")
	assert.True(t, ok)
	assert.Equal(t, DialectCPP, d)
	_, ok = DialectForFile("README.md")
	assert.False(t, ok)
	assert.Contains(t, Extensions(), ".cc")
}
