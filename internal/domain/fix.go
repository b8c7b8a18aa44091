package domain

import "time"

// Fix step event types, in the order a typical agent iteration emits
// them: a reasoning step, tool_call/tool_result pairs, then a final
// message (or error on abort).
const (
	StepEventReasoning  = "reasoning"
	StepEventToolCall   = "tool_call"
	StepEventToolResult = "tool_result"
	StepEventMessage    = "message"
	StepEventError      = "error"
)

// FixSession is one AI-driven attempt to resolve a finding, recorded as
// an append-only step trail.
type FixSession struct {
	ID           string
	FindingID    string
	Status       JobStatus
	ErrorMessage *string
	FixSummary   *string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// FixStep is one entry in a session's step trail. StepNumber is
// strictly increasing and gap-free, starting at 1. Steps are never
// mutated or reordered once appended.
type FixStep struct {
	SessionID  string
	StepNumber int
	EventType  string
	Content    string
	CreatedAt  time.Time
}
