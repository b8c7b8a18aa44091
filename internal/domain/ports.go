package domain

import "context"

// RuleProvider supplies the immutable best-practice rule catalog. Fetch
// is idempotent and cacheable until Invalidate is called.
type RuleProvider interface {
	Fetch(ctx context.Context) ([]Rule, error)
	Invalidate()
}

// ModelIntrospector retrieves the metadata tree of a remote tabular
// model.
type ModelIntrospector interface {
	Snapshot(ctx context.Context, serverAddress, databaseName string) (*ModelSnapshot, error)
}

// QueryEngine executes a query against the remote tabular model.
type QueryEngine interface {
	Run(ctx context.Context, queryText string) (*QueryResult, error)
}

// QueryCanceller is optionally implemented by engines that expose a
// native cancel primitive. Cancellation of the remote side is
// best-effort: the executor only guarantees it stops waiting.
type QueryCanceller interface {
	CancelQuery(ctx context.Context, executionID string) error
}

// QueryTranslator turns a natural-language prompt into executable query
// text. Treated as a black-box text-to-text function.
type QueryTranslator interface {
	Translate(ctx context.Context, prompt string) (string, error)
}

// ModelEditor applies metadata changes to the remote tabular model.
// Used by the autofix agent's tools.
type ModelEditor interface {
	UpdateObject(ctx context.Context, serverAddress, databaseName, objectPath, property, value string) error
}
