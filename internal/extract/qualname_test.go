package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/xref/internal/source"
	"github.com/jward/xref/internal/source/memtree"
)

func TestNamer_Qualified(t *testing.T) {
	t.Parallel()
	tree := memtree.New("names.cpp")
	root := tree.Root()
	ns := root.Add(source.KindNamespace, "ns")
	box := ns.Add(source.KindClassTemplate, "Box").Typed(source.TypeOther, "T")
	get := box.Add(source.KindMethod, "get")
	x := ns.Add(source.KindVarDecl, "x").Deduced("int")
	anon := ns.Add(source.KindNamespace, "")
	hidden := anon.Add(source.KindFunctionDecl, "hidden")
	top := root.Add(source.KindFunctionDecl, "top")

	q, err := newNamer(8)
	require.NoError(t, err)

	tests := []struct {
		name string
		node source.Node
		want string
	}{
		{"namespace member", box, "ns::Box<T>"},
		{"template member", get, "ns::Box<T>::get"},
		{"auto variable", x, "ns::x/* deduced as int */"},
		{"anonymous namespace collapses", hidden, "ns::hidden"},
		{"file scope", top, "top"},
		{"invalid", source.Invalid, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, q.Qualified(tt.node))
		})
	}

	assert.Equal(t, "ns::Box", q.Plain(box))
}

func TestNamer_MemoizesByNode(t *testing.T) {
	t.Parallel()
	tree := memtree.New("memo.cpp")
	fn := tree.Root().Add(source.KindFunctionDecl, "f")

	q, err := newNamer(2)
	require.NoError(t, err)
	assert.Equal(t, "f", q.Qualified(fn))

	v, ok := q.cache.Get(fn.ID())
	assert.True(t, ok)
	assert.Equal(t, "f", v)
}
