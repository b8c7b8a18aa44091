package domain

import "strings"

// Finding severities, ascending.
const (
	SeverityInfo    = 1
	SeverityWarning = 2
	SeverityError   = 3
)

// Rule categories as published by the best-practice catalog.
const (
	CategoryPerformance       = "Performance"
	CategoryDAXExpressions    = "DAX Expressions"
	CategoryErrorPrevention   = "Error Prevention"
	CategoryMaintenance       = "Maintenance"
	CategoryNamingConventions = "Naming Conventions"
	CategoryFormatting        = "Formatting"
)

// Rule is one best-practice analyzer rule from the external catalog.
// Rules are read-only to this service.
type Rule struct {
	ID            string `json:"ID"`
	Name          string `json:"Name"`
	Category      string `json:"Category"`
	Description   string `json:"Description"`
	Severity      int    `json:"Severity"`
	Scope         string `json:"Scope"` // comma-separated object types
	Expression    string `json:"Expression"`
	FixExpression string `json:"FixExpression,omitempty"`
}

// HasFixExpression reports whether the rule carries an automated fix.
func (r *Rule) HasFixExpression() bool {
	return strings.TrimSpace(r.FixExpression) != ""
}

// ScopeTypes splits the comma-separated scope into trimmed object types.
func (r *Rule) ScopeTypes() []string {
	parts := strings.Split(r.Scope, ",")
	types := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// AppliesTo reports whether objectType is listed in the rule's scope.
func (r *Rule) AppliesTo(objectType string) bool {
	for _, t := range r.ScopeTypes() {
		if strings.EqualFold(t, objectType) {
			return true
		}
	}
	return false
}
