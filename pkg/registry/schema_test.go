package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regdelta/regdelta/pkg/errors"
)

func TestDefaultSchema(t *testing.T) {
	s := DefaultSchema()

	assert.Equal(t, "company-registry", s.Name)
	assert.Equal(t, "cin", s.KeyField())

	f, ok := s.Field("authorized_capital")
	require.True(t, ok)
	assert.Equal(t, FieldNumber, f.Kind)

	// Metadata fields exist but never participate in diffing.
	for _, f := range s.DiffFields() {
		assert.NotEqual(t, "snapshot_date", f.Name)
		assert.NotEqual(t, "snapshot_timestamp", f.Name)
		assert.NotEqual(t, "cin", f.Name)
	}
}

func TestParseSchemaValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "no key field",
			yaml: "name: t\nfields:\n  - name: a\n    kind: string\n",
		},
		{
			name: "two key fields",
			yaml: "name: t\nfields:\n  - name: a\n    kind: string\n    key: true\n  - name: b\n    kind: string\n    key: true\n",
		},
		{
			name: "duplicate field",
			yaml: "name: t\nfields:\n  - name: a\n    kind: string\n    key: true\n  - name: a\n    kind: string\n",
		},
		{
			name: "unknown kind",
			yaml: "name: t\nfields:\n  - name: a\n    kind: blob\n    key: true\n",
		},
		{
			name: "metadata key",
			yaml: "name: t\nfields:\n  - name: a\n    kind: string\n    key: true\n    metadata: true\n",
		},
		{
			name: "empty",
			yaml: "name: t\nfields: []\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchema([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err), "expected validation error, got %v", err)
		})
	}
}

func TestSchemaColumnsOrder(t *testing.T) {
	s, err := ParseSchema([]byte(
		"name: t\nfields:\n" +
			"  - name: id\n    kind: string\n    key: true\n" +
			"  - name: b\n    kind: string\n" +
			"  - name: a\n    kind: string\n",
	))
	require.NoError(t, err)

	// Declaration order, not alphabetical.
	assert.Equal(t, []string{"id", "b", "a"}, s.Columns())
}

func TestRecordKey(t *testing.T) {
	s := DefaultSchema()

	rec := Record{"cin": "  U12345MH2001PTC000111 ", "company_name": "Acme"}
	assert.Equal(t, "U12345MH2001PTC000111", rec.Key(s))

	assert.Equal(t, "", Record{"company_name": "Acme"}.Key(s))
	assert.Equal(t, "", Record{"cin": "   "}.Key(s))
}
