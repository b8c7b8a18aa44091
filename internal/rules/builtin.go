package rules

import "modelsentry/internal/domain"

// Builtin returns the embedded rule set served when no remote catalog is
// configured. It is a small slice of the published best-practice catalog
// covering each category and scope the engine understands.
func Builtin() []domain.Rule {
	return []domain.Rule{
		{
			ID:            "AVOID_FLOATING_POINT",
			Name:          "Do not use floating point data types",
			Category:      domain.CategoryErrorPrevention,
			Description:   "The Double data type accumulates rounding errors in aggregations. Use Decimal (fixed) or Int64 instead.",
			Severity:      domain.SeverityError,
			Scope:         "DataColumn, CalculatedColumn",
			Expression:    `DataType = "Double"`,
			FixExpression: `DataType = "Decimal"`,
		},
		{
			ID:          "AVOID_IFERROR",
			Name:        "Avoid using the IFERROR function",
			Category:    domain.CategoryDAXExpressions,
			Description: "IFERROR forces row-by-row evaluation. Prefer DIVIDE or defensive filters.",
			Severity:    domain.SeverityWarning,
			Scope:       "Measure, CalculatedColumn",
			Expression:  `Expression.Contains("IFERROR")`,
		},
		{
			ID:            "HIDE_KEY_COLUMNS",
			Name:          "Hide key columns",
			Category:      domain.CategoryMaintenance,
			Severity:      domain.SeverityInfo,
			Scope:         "DataColumn",
			Expression:    `Name.EndsWith("Key") and not IsHidden`,
			FixExpression: `IsHidden = true`,
		},
		{
			ID:            "SUMMARIZE_NONE_FOR_KEYS",
			Name:          "Set SummarizeBy to None for key columns",
			Category:      domain.CategoryPerformance,
			Description:   "Implicit aggregation over surrogate keys produces meaningless totals and defeats aggregations.",
			Severity:      domain.SeverityWarning,
			Scope:         "DataColumn",
			Expression:    `Name.EndsWith("Key") and SummarizeBy <> "None"`,
			FixExpression: `SummarizeBy = "None"`,
		},
		{
			ID:          "PROVIDE_FORMAT_STRING_MEASURES",
			Name:        "Provide format string for measures",
			Category:    domain.CategoryFormatting,
			Severity:    domain.SeverityInfo,
			Scope:       "Measure",
			Expression:  `FormatString = "" and not Name.Contains("Text")`,
		},
		{
			ID:          "NO_LEADING_OR_TRAILING_SPACES",
			Name:        "Object names must not start or end with a space",
			Category:    domain.CategoryNamingConventions,
			Severity:    domain.SeverityWarning,
			Scope:       "Table, DataColumn, CalculatedColumn, Measure",
			Expression:  `Name.StartsWith(" ") or Name.EndsWith(" ")`,
		},
		{
			ID:          "AVOID_FULLY_QUALIFIED_MEASURES",
			Name:        "Do not fully qualify measure references",
			Category:    domain.CategoryDAXExpressions,
			Description: "Table-qualified measure references break when measures move between tables.",
			Severity:    domain.SeverityInfo,
			Scope:       "Measure",
			Expression:  `Expression.Matches("'[^']+'\[")`,
		},
		{
			ID:          "PARTITION_NO_SELECT_STAR",
			Name:        "Partition sources should not use SELECT *",
			Category:    domain.CategoryPerformance,
			Description: "SELECT * imports every upstream column and silently widens the model when the source changes.",
			Severity:    domain.SeverityWarning,
			Scope:       "Partition",
			Expression:  `Expression.Contains("SELECT *")`,
		},
	}
}
