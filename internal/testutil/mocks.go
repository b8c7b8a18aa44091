// Package testutil provides shared mock implementations of domain
// interfaces for use in tests across the codebase.
package testutil

import (
	"context"
	"sync"

	"modelsentry/internal/domain"
)

// === Model introspector ===

// MockIntrospector implements domain.ModelIntrospector.
type MockIntrospector struct {
	SnapshotFn func(ctx context.Context, serverAddress, databaseName string) (*domain.ModelSnapshot, error)
}

func (m *MockIntrospector) Snapshot(ctx context.Context, serverAddress, databaseName string) (*domain.ModelSnapshot, error) {
	if m.SnapshotFn != nil {
		return m.SnapshotFn(ctx, serverAddress, databaseName)
	}
	panic("unexpected call to MockIntrospector.Snapshot")
}

// === Query engine ===

// MockQueryEngine implements domain.QueryEngine and, through
// CancelQuery, domain.QueryCanceller.
type MockQueryEngine struct {
	RunFn    func(ctx context.Context, queryText string) (*domain.QueryResult, error)
	CancelFn func(ctx context.Context, executionID string) error

	mu        sync.Mutex
	RanText   []string
	Cancelled []string
}

func (m *MockQueryEngine) Run(ctx context.Context, queryText string) (*domain.QueryResult, error) {
	m.mu.Lock()
	m.RanText = append(m.RanText, queryText)
	m.mu.Unlock()
	if m.RunFn != nil {
		return m.RunFn(ctx, queryText)
	}
	panic("unexpected call to MockQueryEngine.Run")
}

func (m *MockQueryEngine) CancelQuery(ctx context.Context, executionID string) error {
	m.mu.Lock()
	m.Cancelled = append(m.Cancelled, executionID)
	m.mu.Unlock()
	if m.CancelFn != nil {
		return m.CancelFn(ctx, executionID)
	}
	return nil
}

// === Query translator ===

// MockTranslator implements domain.QueryTranslator.
type MockTranslator struct {
	TranslateFn func(ctx context.Context, prompt string) (string, error)
}

func (m *MockTranslator) Translate(ctx context.Context, prompt string) (string, error) {
	if m.TranslateFn != nil {
		return m.TranslateFn(ctx, prompt)
	}
	panic("unexpected call to MockTranslator.Translate")
}

// === Model editor ===

// MockEditor implements domain.ModelEditor and records every update.
type MockEditor struct {
	UpdateFn func(ctx context.Context, serverAddress, databaseName, objectPath, property, value string) error

	mu      sync.Mutex
	Updates []EditorUpdate
}

// EditorUpdate is one recorded UpdateObject call.
type EditorUpdate struct {
	ObjectPath string
	Property   string
	Value      string
}

func (m *MockEditor) UpdateObject(ctx context.Context, serverAddress, databaseName, objectPath, property, value string) error {
	m.mu.Lock()
	m.Updates = append(m.Updates, EditorUpdate{ObjectPath: objectPath, Property: property, Value: value})
	m.mu.Unlock()
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, serverAddress, databaseName, objectPath, property, value)
	}
	return nil
}

// === Rule provider ===

// MockRuleProvider implements domain.RuleProvider over a fixed slice.
type MockRuleProvider struct {
	Rules       []domain.Rule
	FetchFn     func(ctx context.Context) ([]domain.Rule, error)
	Invalidated int
}

func (m *MockRuleProvider) Fetch(ctx context.Context) ([]domain.Rule, error) {
	if m.FetchFn != nil {
		return m.FetchFn(ctx)
	}
	return m.Rules, nil
}

func (m *MockRuleProvider) Invalidate() {
	m.Invalidated++
}

// === Snapshot fixtures ===

// Snapshot builds a small two-table model snapshot that trips the
// floating point, IFERROR, and summarize-by built-in rules.
func Snapshot() *domain.ModelSnapshot {
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
					{Name: "CustomerKey", DataType: "Int64", IsHidden: true, IsKey: true, SummarizeBy: "None"},
					{Name: "FullName", DataType: "String", SummarizeBy: "None"},
				},
			},
		},
		Relationships: []domain.SnapshotRelation{
			{
				Name:       "SalesToCustomer",
				FromTable:  "Sales",
				FromColumn: "CustomerKey",
				ToTable:    "Customer",
				ToColumn:   "CustomerKey",
				IsActive:   true,
			},
		},
	}
}
