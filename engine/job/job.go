package job

import (
	"time"
)

// Status is the lifecycle state of an asynchronous workflow run.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one asynchronous execution of a workflow. Result stays empty until
// a terminal state is reached.
type Job struct {
	ID         string    `json:"jobId"`
	WorkflowID string    `json:"workflowId,omitempty"`
	Status     Status    `json:"status"`
	Result     string    `json:"result"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}
