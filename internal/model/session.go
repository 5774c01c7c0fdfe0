package model

import "time"

// SessionIntent captures what the traveler asked for. It is supplied by the
// session-management layer; the pipeline treats session and run IDs as
// opaque path-safe keys.
type SessionIntent struct {
	SessionID    string   `json:"session_id"`
	Destination  string   `json:"destination"`
	Interests    []string `json:"interests,omitempty"`
	DurationDays int      `json:"duration_days,omitempty"`
	Season       string   `json:"season,omitempty"`
}

// RunStatus tracks a pipeline run through its lifecycle.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusCollecting RunStatus = "collecting"
	RunStatusProcessing RunStatus = "processing"
	RunStatusValidating RunStatus = "validating"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// Run is the persisted record of one pipeline execution.
type Run struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Intent    SessionIntent `json:"intent"`
	Status    RunStatus     `json:"status"`
	Result    *RunResult    `json:"result,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StageStatus tracks a single stage within a run.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageRecord is the persisted record of one stage execution.
type StageRecord struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	Duration  int64       `json:"duration_ms"`
	StartedAt time.Time   `json:"started_at"`
}

// RunResult summarizes a completed (or failed) run.
type RunResult struct {
	CandidatesFound int     `json:"candidates_found"`
	ClustersFormed  int     `json:"clusters_formed"`
	AverageScore    float64 `json:"average_score"`
	ValidatedCount  int     `json:"validated_count"`
	TotalTokens     int64   `json:"total_tokens"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	FinalStage      string  `json:"final_stage"`
	DurationMS      int64   `json:"duration_ms"`
}
