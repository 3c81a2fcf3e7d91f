package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdentityNormalizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		objType  Type
		objName  string
		subGroup string
		wantKey  string
	}{
		{
			name:    "uppercase passthrough",
			objType: TypeClass,
			objName: "ZCL_WIDGET",
			wantKey: "CLAS/ZCL_WIDGET",
		},
		{
			name:    "lowercase name is uppercased",
			objType: TypeDomain,
			objName: "z_test_1",
			wantKey: "DOMA/Z_TEST_1",
		},
		{
			name:    "surrounding whitespace is trimmed",
			objType: TypeTable,
			objName: "  ztab  ",
			wantKey: "TABL/ZTAB",
		},
		{
			name:     "sub group participates in the key",
			objType:  TypeFunctionModule,
			objName:  "z_do_thing",
			subGroup: "zfg_tools",
			wantKey:  "FUNC/ZFG_TOOLS/Z_DO_THING",
		},
		{
			name:    "custom type token is preserved",
			objType: Type("widget"),
			objName: "Z_TEST_1",
			wantKey: "WIDGET/Z_TEST_1",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, err := NewGroupedIdentity(tt.objType, tt.objName, tt.subGroup)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, id.Key())
			assert.Equal(t, tt.wantKey, id.String())
		})
	}
}

func TestNewIdentityRejectsMissingFields(t *testing.T) {
	t.Parallel()

	_, err := NewIdentity(TypeClass, "   ")
	require.ErrorIs(t, err, ErrNoName)

	_, err = NewIdentity(Type(""), "Z_TEST_1")
	require.ErrorIs(t, err, ErrNoType)

	_, err = NewIdentity(TypeUnspecified, "Z_TEST_1")
	require.ErrorIs(t, err, ErrNoType)
}

func TestIdentityEquality(t *testing.T) {
	t.Parallel()

	a, err := NewIdentity(Type("CLAS"), "zcl_widget")
	require.NoError(t, err)
	b, err := NewIdentity(TypeClass, "ZCL_WIDGET")
	require.NoError(t, err)

	// Normalization makes differently cased inputs the same identity,
	// so identities are usable directly as map keys.
	assert.Equal(t, a, b)
	seen := map[Identity]bool{a: true}
	assert.True(t, seen[b])
}

func TestIdentityIsZero(t *testing.T) {
	t.Parallel()

	var zero Identity
	assert.True(t, zero.IsZero())

	id, err := NewIdentity(TypeClass, "ZCL_WIDGET")
	require.NoError(t, err)
	assert.False(t, id.IsZero())
}

func TestParseType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  Type
	}{
		{"class", TypeClass},
		{"CLAS", TypeClass},
		{"domain", TypeDomain},
		{"table", TypeTable},
		{"view", TypeView},
		{"function_group", TypeFunctionGroup},
		{"function_module", TypeFunctionModule},
		{"behavior_definition", TypeBehaviorDefinition},
		{"", TypeUnspecified},
		{"widget", Type("WIDGET")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseType(tt.input))
		})
	}
}

func TestDefinitionAttribute(t *testing.T) {
	t.Parallel()

	id, err := NewIdentity(TypeDomain, "Z_TEST_1")
	require.NoError(t, err)

	def := Definition{
		Identity:   id,
		Attributes: map[string]string{"datatype": "CHAR"},
	}
	assert.Equal(t, "CHAR", def.Attribute("datatype"))
	assert.Empty(t, def.Attribute("missing"))

	var empty Definition
	assert.Empty(t, empty.Attribute("datatype"))
}
