// Package pipeline sequences the ordered processing stages of a run, feeding
// each stage the prior stage's checkpoint and supporting resume-from-stage.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/cost"
	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/resilience"
)

// StageContext carries per-run identity and the collaborators shared by all
// stages. It lives for the duration of one run and is never persisted.
type StageContext struct {
	SessionID string
	RunID     string
	Intent    model.SessionIntent

	Tracker  *cost.Tracker
	Breakers *resilience.Breakers
	Log      *zap.Logger

	// Stats accumulates cross-stage figures for the final report. Stages run
	// strictly sequentially, so plain field writes are safe.
	Stats RunStats

	StartedAt time.Time
}

// RunStats collects the figures each stage contributes to the run summary.
type RunStats struct {
	SourcesOK       int
	SourcesFailed   int
	CandidatesFound int
	ClustersFormed  int
	Merged          int
	AverageScore    float64
	ValidatedCount  int
}

// Logger returns the context logger, falling back to the global one.
func (sc *StageContext) Logger() *zap.Logger {
	if sc.Log != nil {
		return sc.Log
	}
	return zap.L()
}

// Stage is one named step of the pipeline. Execute receives the prior
// stage's checkpoint bytes (nil for the first stage) and returns the value
// to persist as this stage's checkpoint.
type Stage interface {
	ID() string
	Execute(ctx context.Context, sc *StageContext, input json.RawMessage) (any, error)
}
