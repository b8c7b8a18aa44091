package rules

import (
	"crypto/sha256"
	"log/slog"
	"sync"

	"modelsentry/internal/domain"
)

// RuleError records one rule that failed to compile or evaluate. Rule
// failures are isolated: a bad rule never blocks the rest of the
// catalog.
type RuleError struct {
	RuleID  string
	Message string
}

// Engine evaluates a rule catalog against model snapshots. Evaluation
// is a pure function of (snapshot, rules); the engine only caches
// compiled predicates across runs.
type Engine struct {
	logger *slog.Logger

	mu       sync.Mutex
	compiled map[string]compiledRule
}

type compiledRule struct {
	hash [32]byte
	pred Predicate
	err  error
}

// NewEngine creates an Engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		logger:   logger,
		compiled: make(map[string]compiledRule),
	}
}

// Evaluate produces findings for every (rule, object) pair where the
// object's type is in the rule's scope and the rule's predicate holds.
// Rules are visited in catalog order and objects in schema declaration
// order, so the finding list is identically ordered on repeated runs
// over the same inputs.
func (e *Engine) Evaluate(snap *domain.ModelSnapshot, catalog []domain.Rule) ([]domain.Finding, []RuleError) {
	objects := FlattenSnapshot(snap)

	var findings []domain.Finding
	var ruleErrs []RuleError

	for i := range catalog {
		rule := &catalog[i]

		pred, err := e.predicate(rule)
		if err != nil {
			e.logger.Warn("skipping malformed rule", "rule_id", rule.ID, "error", err)
			ruleErrs = append(ruleErrs, RuleError{RuleID: rule.ID, Message: err.Error()})
			continue
		}

		for j := range objects {
			obj := &objects[j]
			if !rule.AppliesTo(obj.Type) {
				continue
			}
			match, err := pred(obj)
			if err != nil {
				// First evaluation error poisons the rule for this run.
				e.logger.Warn("rule evaluation failed", "rule_id", rule.ID, "object", obj.Path, "error", err)
				ruleErrs = append(ruleErrs, RuleError{RuleID: rule.ID, Message: err.Error()})
				break
			}
			if match {
				findings = append(findings, domain.Finding{
					RuleID:         rule.ID,
					RuleName:       rule.Name,
					Severity:       rule.Severity,
					Category:       rule.Category,
					AffectedObject: obj.Path,
					ObjectType:     obj.Type,
					FixStatus:      domain.FixStatusUnfixed,
				})
			}
		}
	}

	return findings, ruleErrs
}

// predicate returns the compiled predicate for a rule, compiling once
// per (rule id, expression) and caching the outcome, including compile
// failures.
func (e *Engine) predicate(rule *domain.Rule) (Predicate, error) {
	hash := sha256.Sum256([]byte(rule.Expression))

	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.compiled[rule.ID]; ok && c.hash == hash {
		return c.pred, c.err
	}

	pred, err := Compile(rule.Expression)
	e.compiled[rule.ID] = compiledRule{hash: hash, pred: pred, err: err}
	return pred, err
}
