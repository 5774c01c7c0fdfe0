package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/checkpoint"
	"github.com/roamline/trip-cli/internal/metrics"
	"github.com/roamline/trip-cli/internal/model"
)

// Engine runs the ordered stage sequence. Stages execute strictly one after
// another; stage k+1 never starts before stage k's checkpoint is durably
// written.
type Engine struct {
	store  *checkpoint.Store
	stages []Stage

	// OnStage, when set, observes every stage transition for run bookkeeping.
	OnStage func(model.StageRecord)
}

// NewEngine creates an engine over the given stage order.
func NewEngine(store *checkpoint.Store, stages ...Stage) *Engine {
	return &Engine{store: store, stages: stages}
}

// StageIDs returns the engine's stage order.
func (e *Engine) StageIDs() []string {
	ids := make([]string, len(e.stages))
	for i, s := range e.stages {
		ids[i] = s.ID()
	}
	return ids
}

// RunOptions controls a single engine run.
type RunOptions struct {
	// ResumeFrom names the first stage to re-execute; stages before it are
	// skipped and their checkpoints reloaded. Empty means a full run.
	ResumeFrom string
}

// Run executes the pipeline. On any stage failure the manifest is still
// finalized with Success=false so the run stays inspectable and resumable;
// the stage error is returned alongside it.
func (e *Engine) Run(ctx context.Context, sc *StageContext, opts RunOptions) (*checkpoint.RunManifest, error) {
	log := sc.Logger().With(
		zap.String("session_id", sc.SessionID),
		zap.String("run_id", sc.RunID),
	)
	sc.StartedAt = time.Now()

	resumeIdx := 0
	var prior *checkpoint.RunManifest
	if opts.ResumeFrom != "" {
		idx, err := e.stageIndex(opts.ResumeFrom)
		if err != nil {
			return nil, err
		}
		resumeIdx = idx
		prior = &checkpoint.RunManifest{}
		if err := e.store.Read(e.store.ManifestPath(sc.SessionID, sc.RunID), prior); err != nil {
			return nil, eris.Wrapf(err, "pipeline: load manifest for resume from %q", opts.ResumeFrom)
		}
	}

	manifest := checkpoint.NewManifest(sc.SessionID, sc.RunID)
	var input json.RawMessage
	upstream := ""

	for i, stage := range e.stages {
		stageID := stage.ID()
		stagePath := e.store.StagePath(sc.SessionID, sc.RunID, stageID)

		if i < resumeIdx {
			raw, entry, err := e.reload(stageID, stagePath, prior)
			if err != nil {
				return nil, err
			}
			manifest.Stages = append(manifest.Stages, entry)
			manifest.StagesSkipped = append(manifest.StagesSkipped, stageID)
			input, upstream = raw, stageID
			e.record(sc, stageID, model.StageStatusSkipped, 0, "")
			log.Info("pipeline: stage skipped", zap.String("stage", stageID))
			continue
		}

		log.Info("pipeline: stage starting", zap.String("stage", stageID))
		e.record(sc, stageID, model.StageStatusRunning, 0, "")
		started := time.Now()

		output, err := stage.Execute(ctx, sc, input)
		elapsed := time.Since(started)
		if err != nil {
			err = eris.Wrapf(err, "pipeline: stage %s", stageID)
			e.record(sc, stageID, model.StageStatusFailed, elapsed.Milliseconds(), err.Error())
			log.Error("pipeline: stage failed", zap.String("stage", stageID), zap.Error(err))
			manifest.Success = false
			if werr := e.store.Write(e.store.ManifestPath(sc.SessionID, sc.RunID), manifest); werr != nil {
				log.Error("pipeline: finalize manifest after failure", zap.Error(werr))
			}
			return manifest, err
		}

		if err := e.store.Write(stagePath, output); err != nil {
			return manifest, eris.Wrapf(err, "pipeline: checkpoint stage %s", stageID)
		}
		raw, err := os.ReadFile(stagePath)
		if err != nil {
			return manifest, eris.Wrapf(err, "pipeline: reload checkpoint %s", stageID)
		}

		entry, err := checkpoint.CreateStageEntry(stageID, stagePath, upstream)
		if err != nil {
			return manifest, err
		}
		manifest.Stages = append(manifest.Stages, entry)
		manifest.StagesExecuted = append(manifest.StagesExecuted, stageID)
		manifest.FinalStage = stageID
		if err := e.store.Write(e.store.ManifestPath(sc.SessionID, sc.RunID), manifest); err != nil {
			return manifest, eris.Wrapf(err, "pipeline: persist manifest after %s", stageID)
		}

		input, upstream = raw, stageID
		e.record(sc, stageID, model.StageStatusComplete, elapsed.Milliseconds(), "")
		metrics.ObserveStage(stageID, elapsed)
		log.Info("pipeline: stage complete",
			zap.String("stage", stageID),
			zap.Duration("elapsed", elapsed),
		)
	}

	manifest.Success = true
	if err := e.store.Write(e.store.ManifestPath(sc.SessionID, sc.RunID), manifest); err != nil {
		return manifest, eris.Wrap(err, "pipeline: finalize manifest")
	}
	if err := e.store.WriteLatest(sc.SessionID, sc.RunID); err != nil {
		return manifest, eris.Wrap(err, "pipeline: update latest pointer")
	}

	log.Info("pipeline: run complete",
		zap.Strings("executed", manifest.StagesExecuted),
		zap.Strings("skipped", manifest.StagesSkipped),
	)
	return manifest, nil
}

// reload fetches a skipped stage's checkpoint and its manifest entry from the
// prior run, hashing the file directly when the prior manifest lacks it.
func (e *Engine) reload(stageID, stagePath string, prior *checkpoint.RunManifest) (json.RawMessage, checkpoint.StageEntry, error) {
	raw, err := os.ReadFile(stagePath)
	if err != nil {
		return nil, checkpoint.StageEntry{}, eris.Wrapf(err, "pipeline: reload skipped stage %s", stageID)
	}

	if prior != nil {
		if entry := prior.Entry(stageID); entry != nil {
			return raw, *entry, nil
		}
	}
	entry, err := checkpoint.CreateStageEntry(stageID, stagePath, "")
	if err != nil {
		return nil, checkpoint.StageEntry{}, err
	}
	return raw, entry, nil
}

func (e *Engine) stageIndex(id string) (int, error) {
	for i, s := range e.stages {
		if s.ID() == id {
			return i, nil
		}
	}
	return 0, eris.Errorf("pipeline: unknown stage %q", id)
}

func (e *Engine) record(sc *StageContext, stageID string, status model.StageStatus, durationMS int64, errMsg string) {
	if e.OnStage == nil {
		return
	}
	e.OnStage(model.StageRecord{
		RunID:     sc.RunID,
		Name:      stageID,
		Status:    status,
		Error:     errMsg,
		Duration:  durationMS,
		StartedAt: time.Now().UTC(),
	})
}
