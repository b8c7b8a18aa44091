package domain

import "fmt"

// Object types as used in rule scopes and finding records.
const (
	ObjectTypeModel            = "Model"
	ObjectTypeTable            = "Table"
	ObjectTypeCalculatedTable  = "CalculatedTable"
	ObjectTypeDataColumn       = "DataColumn"
	ObjectTypeCalculatedColumn = "CalculatedColumn"
	ObjectTypeMeasure          = "Measure"
	ObjectTypePartition        = "Partition"
	ObjectTypeRelationship     = "Relationship"
)

// ModelSnapshot is the metadata tree returned by the introspection
// collaborator. Slice order is schema declaration order and must be
// preserved: finding order depends on it.
type ModelSnapshot struct {
	Name          string               `json:"name"`
	Tables        []SnapshotTable      `json:"tables"`
	Relationships []SnapshotRelation   `json:"relationships"`
}

// SnapshotTable is one table with its columns, measures, and partitions.
type SnapshotTable struct {
	Name         string              `json:"name"`
	IsHidden     bool                `json:"isHidden"`
	IsCalculated bool                `json:"isCalculated"`
	Expression   string              `json:"expression,omitempty"`
	Columns      []SnapshotColumn    `json:"columns"`
	Measures     []SnapshotMeasure   `json:"measures"`
	Partitions   []SnapshotPartition `json:"partitions"`
}

// SnapshotColumn is one column of a table.
type SnapshotColumn struct {
	Name         string `json:"name"`
	DataType     string `json:"dataType"`
	IsHidden     bool   `json:"isHidden"`
	IsCalculated bool   `json:"isCalculated"`
	IsKey        bool   `json:"isKey"`
	Expression   string `json:"expression,omitempty"`
	FormatString string `json:"formatString,omitempty"`
	SummarizeBy  string `json:"summarizeBy,omitempty"`
}

// SnapshotMeasure is one measure of a table.
type SnapshotMeasure struct {
	Name         string `json:"name"`
	Expression   string `json:"expression"`
	FormatString string `json:"formatString,omitempty"`
	IsHidden     bool   `json:"isHidden"`
}

// SnapshotPartition is one partition of a table.
type SnapshotPartition struct {
	Name       string `json:"name"`
	Mode       string `json:"mode"`
	Expression string `json:"expression,omitempty"`
}

// SnapshotRelation is one relationship between two tables.
type SnapshotRelation struct {
	Name          string `json:"name"`
	FromTable     string `json:"fromTable"`
	FromColumn    string `json:"fromColumn"`
	ToTable       string `json:"toTable"`
	ToColumn      string `json:"toColumn"`
	IsActive      bool   `json:"isActive"`
	CrossFiltering string `json:"crossFiltering,omitempty"`
}

// ObjectPath renders the stable human-readable path for a table-scoped
// object, e.g. `Sales[Amount]`.
func ObjectPath(table, object string) string {
	return fmt.Sprintf("%s[%s]", table, object)
}
