package models

import "time"

// AgentRunStatus represents the lifecycle state of an agent run
type AgentRunStatus string

const (
	AgentRunRunning   AgentRunStatus = "running"
	AgentRunSucceeded AgentRunStatus = "succeeded"
	AgentRunFailed    AgentRunStatus = "failed"
	AgentRunCancelled AgentRunStatus = "cancelled"
)

// AgentRun is the status row written for each background agent execution
type AgentRun struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Task       string         `json:"task"`
	Status     AgentRunStatus `json:"status"`
	Output     string         `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// IsTerminal reports whether the run has finished
func (s AgentRunStatus) IsTerminal() bool {
	return s == AgentRunSucceeded || s == AgentRunFailed || s == AgentRunCancelled
}
