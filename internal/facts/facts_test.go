package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVirtualIdentity(t *testing.T) {
	assert.Equal(t, "[virtual] Derived::f|[virtual] Base::f", VirtualIdentity([]string{"Derived::f", "Base::f"}))
	assert.Equal(t, "", VirtualIdentity(nil))
}

func TestMarkerAndIsSynthetic(t *testing.T) {
	tests := []struct {
		identity string
		marker   string
	}{
		{"[macro] CALL", "[macro]"},
		{"[virtual] B::f|[virtual] A::f", "[virtual]"},
		{"[resolved function pointer] helper", "[resolved function pointer]"},
		{"[function pointer] fp", "[function pointer]"},
		{"[lambda] main", "[lambda]"},
		{"[template] max<int>", "[template]"},
		{"[operator] operator+", "[operator]"},
		{"ns::helper", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.marker, Marker(tt.identity), tt.identity)
		assert.Equal(t, tt.marker != "", IsSynthetic(tt.identity), tt.identity)
	}
}

func TestFunctionFact_ReturnTypeHelpers(t *testing.T) {
	f := &FunctionFact{ReturnType: "int (*)(int)", Parameters: []string{"int", "const char *"}}
	assert.Equal(t, "int,const char *", f.Signature())
	assert.True(t, f.IsFunctionPointer())
	assert.Equal(t, 1, f.PointerLevel())

	plain := &FunctionFact{ReturnType: "char **"}
	assert.False(t, plain.IsFunctionPointer())
	assert.Equal(t, 2, plain.PointerLevel())
	assert.Equal(t, "", plain.Signature())
}
