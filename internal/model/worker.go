package model

import "time"

// OutputStatus is the execution status of a single worker run. Workers never
// throw past the executor boundary; every failure mode lands in one of these.
type OutputStatus string

const (
	OutputOK      OutputStatus = "ok"
	OutputPartial OutputStatus = "partial"
	OutputError   OutputStatus = "error"
	OutputSkipped OutputStatus = "skipped"
)

// WorkerAssignment is the immutable work order a worker produces during
// planning: which queries to run, how many results to keep, and the budget
// for the whole execution.
type WorkerAssignment struct {
	WorkerID   string   `json:"worker_id"`
	Queries    []string `json:"queries"`
	MaxResults int      `json:"max_results"`
	TimeoutMS  int64    `json:"timeout_ms,omitempty"`
}

// Timeout returns the assignment's execution budget, or fallback when the
// assignment does not carry one.
func (a WorkerAssignment) Timeout(fallback time.Duration) time.Duration {
	if a.TimeoutMS <= 0 {
		return fallback
	}
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

// TokenUsage tracks LLM token consumption for cost attribution.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates usage from another call.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Total returns combined input and output tokens.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// WorkerOutput is the always-produced result of executing one assignment.
type WorkerOutput struct {
	WorkerID   string       `json:"worker_id"`
	Status     OutputStatus `json:"status"`
	Candidates []Candidate  `json:"candidates,omitempty"`
	Error      string       `json:"error,omitempty"`
	DurationMS int64        `json:"duration_ms"`
	Usage      *TokenUsage  `json:"usage,omitempty"`
}
