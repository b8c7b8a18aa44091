package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsentry/internal/domain"
)

func column(name, dataType string, hidden bool) *Object {
	return &Object{
		Type:  domain.ObjectTypeDataColumn,
		Table: "Sales",
		Name:  name,
		Path:  domain.ObjectPath("Sales", name),
		Attrs: map[string]interface{}{
			"name":         name,
			"objecttype":   domain.ObjectTypeDataColumn,
			"datatype":     dataType,
			"ishidden":     hidden,
			"expression":   "",
			"formatstring": "",
			"summarizeby":  "Sum",
			"tablename":    "Sales",
		},
	}
}

func TestCompileComparisons(t *testing.T) {
	tests := []struct {
		name string
		expr string
		obj  *Object
		want bool
	}{
		{"equality matches", `DataType = "Double"`, column("Amount", "Double", false), true},
		{"equality is case-insensitive", `DataType = "double"`, column("Amount", "Double", false), true},
		{"inequality", `DataType <> "Double"`, column("Amount", "Int64", false), true},
		{"bare boolean attribute", `IsHidden`, column("Amount", "Double", true), true},
		{"negated boolean", `not IsHidden`, column("Amount", "Double", false), true},
		{"boolean literal comparison", `IsHidden = false`, column("Amount", "Double", false), true},
		{"contains", `Name.Contains("mou")`, column("Amount", "Double", false), true},
		{"contains is case-insensitive", `Name.Contains("AMOUNT")`, column("Amount", "Double", false), true},
		{"startswith", `Name.StartsWith("Am")`, column("Amount", "Double", false), true},
		{"endswith", `Name.EndsWith("Key")`, column("OrderKey", "Int64", false), true},
		{"matches regex", `Name.Matches("^[A-Z][a-z]+Key$")`, column("OrderKey", "Int64", false), true},
		{"length compare", `Name.Length() > 5`, column("Amount", "Double", false), true},
		{"and", `DataType = "Double" and not IsHidden`, column("Amount", "Double", false), true},
		{"or short-circuits", `IsHidden or DataType = "Double"`, column("Amount", "Double", false), true},
		{"parentheses", `not (IsHidden or DataType = "Int64")`, column("Amount", "Double", false), true},
		{"no match", `DataType = "Int64"`, column("Amount", "Double", false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := Compile(tt.expr)
			require.NoError(t, err)

			got, err := pred(tt.obj)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileStringEscapes(t *testing.T) {
	pred, err := Compile(`Name = "Say ""Hi"""`)
	require.NoError(t, err)

	obj := column(`Say "Hi"`, "String", false)
	got, err := pred(obj)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"unterminated string", `Name = "oops`},
		{"dangling operator", `DataType =`},
		{"unknown function", `Name.Frobnicate("x")`},
		{"missing paren", `(IsHidden`},
		{"bad regex", `Name.Matches("[")`},
		{"trailing garbage", `IsHidden IsHidden`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr)
			assert.Error(t, err)
		})
	}
}

func TestEvalErrors(t *testing.T) {
	obj := column("Amount", "Double", false)

	t.Run("unknown attribute", func(t *testing.T) {
		pred, err := Compile(`Mode = "Import"`)
		require.NoError(t, err)
		_, err = pred(obj)
		assert.Error(t, err)
	})

	t.Run("string function on boolean", func(t *testing.T) {
		pred, err := Compile(`IsHidden.Contains("x")`)
		require.NoError(t, err)
		_, err = pred(obj)
		assert.Error(t, err)
	})

	t.Run("ordering on strings", func(t *testing.T) {
		pred, err := Compile(`Name > "A"`)
		require.NoError(t, err)
		_, err = pred(obj)
		assert.Error(t, err)
	})
}

func TestFlattenSnapshotOrder(t *testing.T) {
	snap := &domain.ModelSnapshot{
		Name: "M",
		Tables: []domain.SnapshotTable{
			{
				Name:    "Sales",
				Columns: []domain.SnapshotColumn{{Name: "A"}, {Name: "B", IsCalculated: true}},
				Measures: []domain.SnapshotMeasure{
					{Name: "Total"},
				},
				Partitions: []domain.SnapshotPartition{{Name: "P1"}},
			},
			{Name: "Customer", Columns: []domain.SnapshotColumn{{Name: "C"}}},
		},
		Relationships: []domain.SnapshotRelation{
			{Name: "R", FromTable: "Sales", FromColumn: "A", ToTable: "Customer", ToColumn: "C"},
		},
	}

	objs := FlattenSnapshot(snap)

	var paths []string
	var types []string
	for _, o := range objs {
		paths = append(paths, o.Path)
		types = append(types, o.Type)
	}
	assert.Equal(t, []string{
		"M",
		"Sales", "Sales[A]", "Sales[B]", "Sales[Total]", "Sales[P1]",
		"Customer", "Customer[C]",
		"Sales[A] -> Customer[C]",
	}, paths)
	assert.Equal(t, []string{
		domain.ObjectTypeModel,
		domain.ObjectTypeTable,
		domain.ObjectTypeDataColumn,
		domain.ObjectTypeCalculatedColumn,
		domain.ObjectTypeMeasure,
		domain.ObjectTypePartition,
		domain.ObjectTypeTable,
		domain.ObjectTypeDataColumn,
		domain.ObjectTypeRelationship,
	}, types)

	// Flattening is deterministic.
	again := FlattenSnapshot(snap)
	assert.Equal(t, objs, again)
}
