package rules

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsentry/internal/domain"
)

func testSnapshot() *domain.ModelSnapshot {
	return &domain.ModelSnapshot{
		Name: "AdventureWorks",
		Tables: []domain.SnapshotTable{
			{
				Name: "Sales",
				Columns: []domain.SnapshotColumn{
					{Name: "SalesKey", DataType: "Int64", SummarizeBy: "Sum"},
					{Name: "Amount", DataType: "Double", SummarizeBy: "Sum"},
				},
				Measures: []domain.SnapshotMeasure{
					{Name: "Total Sales", Expression: "SUM(Sales[Amount])", FormatString: "#,0.00"},
					{Name: "Safe Ratio", Expression: "IFERROR([Total Sales] / [Order Count], 0)", FormatString: "0.0%"},
				},
			},
			{
				Name: "Customer",
				Columns: []domain.SnapshotColumn{
					{Name: "CustomerKey", DataType: "Int64", IsHidden: true, SummarizeBy: "None"},
				},
			},
		},
	}
}

func newTestEngine() *Engine {
	return NewEngine(slog.Default())
}

func TestEvaluateProducesOrderedFindings(t *testing.T) {
	engine := newTestEngine()
	catalog := []domain.Rule{
		{
			ID: "AVOID_FLOATING_POINT", Name: "No doubles",
			Category: domain.CategoryErrorPrevention, Severity: domain.SeverityError,
			Scope: "DataColumn", Expression: `DataType = "Double"`,
		},
		{
			ID: "AVOID_IFERROR", Name: "No IFERROR",
			Category: domain.CategoryDAXExpressions, Severity: domain.SeverityWarning,
			Scope: "Measure", Expression: `Expression.Contains("IFERROR")`,
		},
	}

	findings, ruleErrs := engine.Evaluate(testSnapshot(), catalog)
	require.Empty(t, ruleErrs)
	require.Len(t, findings, 2)

	// Catalog order first, then schema declaration order within a rule.
	assert.Equal(t, "AVOID_FLOATING_POINT", findings[0].RuleID)
	assert.Equal(t, "Sales[Amount]", findings[0].AffectedObject)
	assert.Equal(t, domain.ObjectTypeDataColumn, findings[0].ObjectType)
	assert.Equal(t, domain.FixStatusUnfixed, findings[0].FixStatus)

	assert.Equal(t, "AVOID_IFERROR", findings[1].RuleID)
	assert.Equal(t, "Sales[Safe Ratio]", findings[1].AffectedObject)

	// Identical inputs produce identically ordered findings.
	again, _ := engine.Evaluate(testSnapshot(), catalog)
	assert.Equal(t, findings, again)
}

func TestEvaluateScopeFiltering(t *testing.T) {
	engine := newTestEngine()

	// Every measure expression contains "(" but the rule only scopes to
	// partitions, of which the snapshot has none.
	catalog := []domain.Rule{{
		ID: "PARTITION_ONLY", Name: "n", Severity: 1,
		Scope: "Partition", Expression: `Expression.Contains("(")`,
	}}

	findings, ruleErrs := engine.Evaluate(testSnapshot(), catalog)
	assert.Empty(t, findings)
	assert.Empty(t, ruleErrs)
}

func TestEvaluateIsolatesMalformedRules(t *testing.T) {
	engine := newTestEngine()
	catalog := []domain.Rule{
		{ID: "BROKEN", Name: "n", Severity: 1, Scope: "DataColumn", Expression: `DataType = `},
		{
			ID: "OK", Name: "n", Severity: 1, Scope: "DataColumn",
			Expression: `DataType = "Double"`,
		},
	}

	findings, ruleErrs := engine.Evaluate(testSnapshot(), catalog)
	require.Len(t, ruleErrs, 1)
	assert.Equal(t, "BROKEN", ruleErrs[0].RuleID)
	require.Len(t, findings, 1)
	assert.Equal(t, "OK", findings[0].RuleID)
}

func TestEvaluateIsolatesEvaluationErrors(t *testing.T) {
	engine := newTestEngine()

	// Mode is a partition attribute; referencing it on a column fails at
	// evaluation time, not compile time.
	catalog := []domain.Rule{
		{ID: "EVAL_ERR", Name: "n", Severity: 1, Scope: "DataColumn", Expression: `Mode = "Import"`},
		{ID: "OK", Name: "n", Severity: 1, Scope: "DataColumn", Expression: `DataType = "Double"`},
	}

	findings, ruleErrs := engine.Evaluate(testSnapshot(), catalog)
	require.Len(t, ruleErrs, 1)
	assert.Equal(t, "EVAL_ERR", ruleErrs[0].RuleID)
	require.Len(t, findings, 1)
	assert.Equal(t, "OK", findings[0].RuleID)
}

func TestPredicateCacheRecompilesOnExpressionChange(t *testing.T) {
	engine := newTestEngine()

	rule := domain.Rule{ID: "R", Name: "n", Severity: 1, Scope: "DataColumn", Expression: `DataType = "Double"`}
	findings, _ := engine.Evaluate(testSnapshot(), []domain.Rule{rule})
	require.Len(t, findings, 1)

	// Same id, new expression: the cache must not serve the old predicate.
	rule.Expression = `DataType = "Int64"`
	findings, _ = engine.Evaluate(testSnapshot(), []domain.Rule{rule})
	require.Len(t, findings, 2)
	assert.Equal(t, "Sales[SalesKey]", findings[0].AffectedObject)
	assert.Equal(t, "Customer[CustomerKey]", findings[1].AffectedObject)
}

func TestBuiltinRulesCompile(t *testing.T) {
	for _, rule := range Builtin() {
		_, err := Compile(rule.Expression)
		assert.NoError(t, err, "rule %s", rule.ID)
		if rule.HasFixExpression() {
			assert.NotEmpty(t, rule.FixExpression)
		}
		assert.NotEmpty(t, rule.ScopeTypes(), "rule %s", rule.ID)
	}
}

func TestBuiltinRulesAgainstSnapshot(t *testing.T) {
	engine := newTestEngine()
	findings, ruleErrs := engine.Evaluate(testSnapshot(), Builtin())
	require.Empty(t, ruleErrs)

	byRule := map[string][]string{}
	for _, f := range findings {
		byRule[f.RuleID] = append(byRule[f.RuleID], f.AffectedObject)
	}
	assert.Equal(t, []string{"Sales[Amount]"}, byRule["AVOID_FLOATING_POINT"])
	assert.Equal(t, []string{"Sales[Safe Ratio]"}, byRule["AVOID_IFERROR"])
	assert.Equal(t, []string{"Sales[SalesKey]"}, byRule["HIDE_KEY_COLUMNS"])
	assert.Equal(t, []string{"Sales[SalesKey]"}, byRule["SUMMARIZE_NONE_FOR_KEYS"])
}
