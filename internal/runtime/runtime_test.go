package runtime

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/xref/internal/facts"
	"github.com/jward/xref/internal/store"
)

func loc(line, col int) facts.Location {
	return facts.Location{File: "a.cpp", Line: line, Column: col}
}

// newGraphStore flushes a small unit: main calls helper and an undeclared
// puts, helper calls Shape::area virtually, Circle derives from Shape.
func newGraphStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "xref.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(ctx))

	unit := &facts.Unit{
		Path: "a.cpp",
		Functions: []facts.FunctionFact{
			{Name: "main", QualifiedName: "main", Kind: facts.KindFunction, ReturnType: "int", Location: loc(1, 1), IsDefinition: true},
			{Name: "helper", QualifiedName: "helper", Kind: facts.KindFunction, ReturnType: "void", Location: loc(10, 1), IsDefinition: true},
			{Name: "area", QualifiedName: "Shape::area", Kind: facts.KindMethod, ReturnType: "double", Location: loc(20, 3), IsVirtual: true},
		},
		Types: []facts.TypeFact{
			{Name: "Shape", QualifiedName: "Shape", Kind: facts.KindClass, Location: loc(19, 1), IsDefinition: true},
			{Name: "Circle", QualifiedName: "Circle", Kind: facts.KindClass, Location: loc(30, 1), IsDefinition: true, BaseClasses: []string{"Shape"}},
		},
		Inheritance: []facts.InheritanceEdge{{Derived: "Circle", Base: "Shape"}},
		Calls: []facts.CallFact{
			{Caller: "main", Callee: "helper", Location: loc(2, 3), ContextStack: []string{"main"}},
			{Caller: "main", Callee: "puts", Location: loc(3, 3), ContextStack: []string{"main"}},
			{Caller: "helper", Callee: "Shape::area", Location: loc(11, 3), ContextStack: []string{"helper"}},
		},
	}
	_, err = s.Flush(ctx, unit)
	require.NoError(t, err)
	return s
}

func run(t *testing.T, rt *Runtime, src string) any {
	t.Helper()
	got, err := rt.RunSource(context.Background(), src, nil)
	require.NoError(t, err)
	return got
}

// --- Graph host functions ---

func TestRunSource_ReturnsLastExpression(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil)
	assert.Equal(t, int64(3), run(t, rt, `1 + 2`))
}

func TestCallers(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newGraphStore(t))

	assert.Equal(t, int64(1), run(t, rt, `len(callers("helper"))`))
	assert.Equal(t, "main", run(t, rt, `callers("helper")[0]["caller"]`))
	assert.Equal(t, int64(2), run(t, rt, `callers("helper")[0]["line"]`))
}

func TestCallers_UnknownNameIsEmpty(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newGraphStore(t))
	assert.Equal(t, int64(0), run(t, rt, `len(callers("nope"))`))
}

func TestCallees(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newGraphStore(t))

	got := run(t, rt, `
names := []
for _, e := range callees("main") {
	names.append(e["callee"])
}
names
`)
	assert.ElementsMatch(t, []any{"helper", "puts"}, got)
}

func TestCallsWithin(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newGraphStore(t))
	assert.Equal(t, int64(2), run(t, rt, `len(calls_within("main"))`))
	assert.Equal(t, int64(3), run(t, rt, `len(calls_in_unit("a.cpp"))`))
}

func TestFunctions(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newGraphStore(t))

	assert.Equal(t, int64(1), run(t, rt, `len(functions("%help%"))`))
	assert.Equal(t, "puts", run(t, rt, `functions("", {"external": true})[0]["name"]`))
	assert.Equal(t, int64(1), run(t, rt, `len(functions("", {"external": false, "limit": 1}))`))
	assert.Equal(t, "Shape::area", run(t, rt, `function("area")[0]["qualified_name"]`))
	assert.Equal(t, true, run(t, rt, `function("Shape::area")[0]["is_virtual"]`))
}

func TestTypesAndHierarchy(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newGraphStore(t))

	assert.Equal(t, int64(2), run(t, rt, `len(types())`))
	assert.Equal(t, "Shape", run(t, rt, `bases("Circle")[0]["name"]`))
	assert.Equal(t, "Circle", run(t, rt, `derived("Shape")[0]["name"]`))
	assert.Equal(t, int64(0), run(t, rt, `len(bases("Unknown"))`))
}

func TestUnitsCallingAndCounts(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newGraphStore(t))

	assert.Equal(t, []any{"a.cpp"}, run(t, rt, `units_calling("helper")`))
	assert.Equal(t, int64(3), run(t, rt, `counts()["calls"]`))
}

func TestDBQuery(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newGraphStore(t))

	got := run(t, rt, `db_query("SELECT COUNT(*) AS n FROM calls WHERE line > ?", 2)[0]["n"]`)
	assert.Equal(t, int64(2), got)

	got = run(t, rt, `db_query("SELECT qualified_name FROM functions WHERE id = ?", 1)[0]["qualified_name"]`)
	assert.Equal(t, "main", got)
	assert.Equal(t, int64(0), run(t, rt, `len(db_query("SELECT id FROM calls WHERE line > 100"))`))
}

func TestDBQuery_RejectsWrites(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newGraphStore(t))

	_, err := rt.RunSource(context.Background(), `db_query("DELETE FROM calls")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only SELECT")
}

func TestHostFunction_ArgumentErrors(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newGraphStore(t))

	for _, src := range []string{
		`callers()`, `callers(1)`, `counts(1)`, `functions(1)`,
		`functions("", {"externl": true})`, `functions("", {"limit": "2"})`, `db_query()`,
	} {
		_, err := rt.RunSource(context.Background(), src, nil)
		assert.Error(t, err, src)
	}
}

func TestNilStore_NoGraphGlobals(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil)

	_, err := rt.RunSource(context.Background(), `callers("main")`, nil)
	require.Error(t, err)
}

// --- emit and log ---

func TestEmit(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	rt := NewRuntime(nil, WithOutput(&buf))

	run(t, rt, `emit("hello", 3)`)
	assert.Equal(t, "hello\n3\n", buf.String())
}

func TestLog_WritesThroughSlog(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rt := NewRuntime(nil, WithLogger(logger))

	run(t, rt, `log.Warn("careful")`)
	assert.Contains(t, buf.String(), "careful")
	assert.Contains(t, buf.String(), "source=script")
}

func TestExtraGlobals(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil)

	got, err := rt.RunSource(context.Background(), `limit * 2`, map[string]any{"limit": 21})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

// --- Script loading ---

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()

	content := `x := 42`
	rt := NewRuntime(nil, WithFS(fstest.MapFS{
		"reports/hot.risor": &fstest.MapFile{Data: []byte(content)},
	}))

	got, err := rt.LoadScript("reports/hot.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	got, err = rt.LoadScript("/reports/hot.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLoadScript_FromFS_NotFound(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, WithFS(fstest.MapFS{}))

	_, err := rt.LoadScript("nonexistent.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestLoadScript_FromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(`z := 7`), 0644))
	rt := NewRuntime(nil, WithScriptsDir(dir))

	got, err := rt.LoadScript("test.risor")
	require.NoError(t, err)
	assert.Equal(t, `z := 7`, got)
}

func TestRunScript_FromFS(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, WithFS(fstest.MapFS{
		"test.risor": &fstest.MapFile{Data: []byte("x := 20\nx + 1")},
	}))

	got, err := rt.RunScript(context.Background(), "test.risor", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(21), got)
}

func TestScripts(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, WithFS(fstest.MapFS{
		"b.risor":     &fstest.MapFile{Data: []byte(`1`)},
		"a.risor":     &fstest.MapFile{Data: []byte(`1`)},
		"notes.txt":   &fstest.MapFile{Data: []byte(`x`)},
		"lib/c.risor": &fstest.MapFile{Data: []byte(`1`)},
	}))

	names, err := rt.Scripts()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	names, err = NewRuntime(nil).Scripts()
	require.NoError(t, err)
	assert.Empty(t, names)
}

// --- Importer wiring ---

func TestImport_FSImporter(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, WithFS(fstest.MapFS{
		"lib_helpers.risor": &fstest.MapFile{Data: []byte(`
func greet(name) {
	return "hello " + name
}
`)},
	}))

	got := run(t, rt, `
import lib_helpers
lib_helpers.greet("world")
`)
	assert.Equal(t, "hello world", got)
}

func TestImport_LocalImporter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "math_utils.risor"), []byte(`
func double(x) {
	return x * 2
}
`), 0644))
	rt := NewRuntime(nil, WithScriptsDir(dir))

	got := run(t, rt, `
import math_utils
math_utils.double(21)
`)
	assert.Equal(t, int64(42), got)
}

func TestImport_GlobalsAvailableInImportedModules(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newGraphStore(t), WithFS(fstest.MapFS{
		"fanin.risor": &fstest.MapFile{Data: []byte(`
func of(name) {
	return len(callers(name))
}
`)},
	}))

	got := run(t, rt, `
import fanin
fanin.of("helper")
`)
	assert.Equal(t, int64(1), got)
}

func TestImport_BuiltinsAvailableInImportedModules(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lists.risor"), []byte(`
func first_sorted(items) {
	out := sorted(items)
	return [out[0], len(out)]
}
`), 0644))
	rt := NewRuntime(nil, WithScriptsDir(dir))

	got := run(t, rt, `
import lists
lists.first_sorted([3, 1, 2])
`)
	assert.Equal(t, []any{int64(1), int64(3)}, got)
}
