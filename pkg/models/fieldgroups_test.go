package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldGroupRegistry(t *testing.T) {
	t.Run("every group names its schema and at least one column", func(t *testing.T) {
		for name, schema := range FieldGroups {
			assert.Equal(t, name, schema.Name)
			assert.NotEmpty(t, schema.Columns, "group %s", name)
			assert.NotEmpty(t, schema.Description, "group %s", name)
		}
	})

	t.Run("lookup distinguishes known from unknown", func(t *testing.T) {
		schema, ok := LookupFieldGroup("identity")
		require.True(t, ok)
		assert.Contains(t, schema.Columns, "first_name")

		_, ok = LookupFieldGroup("criminal_record")
		assert.False(t, ok)
	})

	t.Run("names are sorted and complete", func(t *testing.T) {
		names := FieldGroupNames()
		assert.Len(t, names, len(FieldGroups))
		assert.IsIncreasing(t, names)
	})

	t.Run("company projection only where declared", func(t *testing.T) {
		identity := FieldGroups[FieldGroupIdentity]
		cols, ok := identity.GroupColumns(ClientTypeCompany)
		require.True(t, ok)
		assert.Contains(t, cols, "company_name")

		visa := FieldGroups[FieldGroupVisa]
		_, ok = visa.GroupColumns(ClientTypeCompany)
		assert.False(t, ok)
	})
}
