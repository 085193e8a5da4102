package workflow

// Error codes reported by the workflow store and engine.
const (
	ErrCodeWorkflowNotFound = "WORKFLOW_NOT_FOUND"
	ErrCodeWorkflowInvalid  = "WORKFLOW_INVALID"
	ErrCodeAgentNotFound    = "AGENT_NOT_FOUND"
	ErrCodeAgentNotAllowed  = "AGENT_NOT_ALLOWED"
)
