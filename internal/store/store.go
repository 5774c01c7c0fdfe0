// Package store persists run and stage records so sessions can be listed,
// inspected, and resumed across process restarts.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/roamline/trip-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: run not found")

// RunStore persists pipeline runs and their stage records.
type RunStore interface {
	CreateRun(ctx context.Context, run model.Run) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	SetRunResult(ctx context.Context, runID string, result model.RunResult) error
	GetRun(ctx context.Context, runID string) (model.Run, error)
	ListRuns(ctx context.Context, sessionID string, limit int) ([]model.Run, error)
	RecordStage(ctx context.Context, record model.StageRecord) error
	ListStages(ctx context.Context, runID string) ([]model.StageRecord, error)
	Close() error
}
