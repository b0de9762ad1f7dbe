package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKind_RoundTrip(t *testing.T) {
	for k, name := range kindNames {
		assert.Equal(t, k, ParseKind(name), name)
		assert.Equal(t, name, k.String())
	}
}

func TestParseKind_NormalizesAndDefaults(t *testing.T) {
	assert.Equal(t, KindMethod, ParseKind("  Method "))
	assert.Equal(t, KindOther, ParseKind("paren_expr"))
	assert.Equal(t, KindOther, ParseKind(""))
	assert.Equal(t, "unknown", Kind(999).String())
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, KindConstructor.IsFunctionLike())
	assert.True(t, KindFunctionTemplate.IsFunctionLike())
	assert.False(t, KindCallExpr.IsFunctionLike())

	assert.True(t, KindStructDecl.IsTypeDecl())
	assert.False(t, KindBaseSpecifier.IsTypeDecl())

	assert.True(t, KindFieldDecl.IsVariable())
	assert.False(t, KindDeclRefExpr.IsVariable())

	assert.True(t, KindClassTemplate.IsTemplate())
	assert.False(t, KindClassDecl.IsTemplate())
}

func TestParseTypeKind(t *testing.T) {
	for k, name := range typeKindNames {
		assert.Equal(t, k, ParseTypeKind(name), name)
	}
	assert.Equal(t, TypeInvalid, ParseTypeKind(""))
	assert.Equal(t, TypeOther, ParseTypeKind("lvalue_reference"))
}

func TestType_IsCallableIndirect(t *testing.T) {
	assert.True(t, Type{Kind: TypePointer}.IsCallableIndirect())
	assert.True(t, Type{Kind: TypeFunction}.IsCallableIndirect())
	assert.False(t, Type{Kind: TypeRecord}.IsCallableIndirect())
}

func TestInvalidSentinel(t *testing.T) {
	assert.True(t, IsInvalid(nil))
	assert.True(t, IsInvalid(Invalid))
	assert.True(t, IsInvalid(Invalid.Referenced()))
	assert.Nil(t, Invalid.Children())
}
