package domain

// JobStatus is the lifecycle state shared by analysis runs, autofix
// sessions, and query executions.
type JobStatus string

// Job lifecycle statuses.
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Cancellation reasons stored as the error message of a FAILED job.
const (
	CancelReasonBeforeStart = "cancelled before start"
	CancelReasonCancelled   = "cancelled"
	CancelReasonStepLimit   = "step limit exceeded"
)
