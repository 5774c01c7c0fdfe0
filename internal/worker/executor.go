package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roamline/trip-cli/internal/checkpoint"
	"github.com/roamline/trip-cli/internal/metrics"
	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/resilience"
)

// DefaultWorkerTimeout bounds a worker execution when its assignment does not
// carry a budget.
const DefaultWorkerTimeout = 60 * time.Second

// Executor drives every assignment in a plan concurrently, bounded by the
// limiter, with per-assignment timeouts and circuit-breaker gating. Every
// failure mode becomes a typed output; Execute never loses an assignment.
type Executor struct {
	registry *Registry
	breakers *resilience.Breakers
	limiter  *resilience.Limiter
	store    *checkpoint.Store // nil disables raw-output persistence

	defaultTimeout time.Duration
}

// NewExecutor creates an Executor. store may be nil when raw outputs do not
// need to be persisted.
func NewExecutor(registry *Registry, breakers *resilience.Breakers, limiter *resilience.Limiter, store *checkpoint.Store) *Executor {
	return &Executor{
		registry:       registry,
		breakers:       breakers,
		limiter:        limiter,
		store:          store,
		defaultTimeout: DefaultWorkerTimeout,
	}
}

// WithDefaultTimeout overrides the fallback execution budget.
func (e *Executor) WithDefaultTimeout(d time.Duration) *Executor {
	e.defaultTimeout = d
	return e
}

// Execute runs all assignments with settle-all semantics: one assignment's
// failure never prevents the others from being collected. Outputs come back
// in assignment order and, when a store is configured, are persisted keyed
// by worker identifier. The returned error covers persistence only.
func (e *Executor) Execute(ctx context.Context, sessionID, runID string, assignments []model.WorkerAssignment) ([]model.WorkerOutput, error) {
	outputs := make([]model.WorkerOutput, len(assignments))

	g, gctx := errgroup.WithContext(ctx)
	for i, assignment := range assignments {
		g.Go(func() error {
			return e.limiter.Run(gctx, func(ctx context.Context) error {
				outputs[i] = e.executeOne(ctx, assignment)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		// Only limiter acquisition on a dead context can end up here; mark
		// any slot that never ran.
		for i := range outputs {
			if outputs[i].WorkerID == "" {
				outputs[i] = errorOutput(assignments[i].WorkerID, 0, eris.Wrap(err, "worker: execution aborted").Error())
			}
		}
	}

	if e.store != nil {
		for _, out := range outputs {
			path := e.store.OutputPath(sessionID, runID, out.WorkerID)
			if err := e.store.Write(path, out); err != nil {
				return outputs, eris.Wrapf(err, "worker: persist output %s", out.WorkerID)
			}
		}
	}
	return outputs, nil
}

// executeOne resolves and runs a single assignment, converting every failure
// mode into a typed output.
func (e *Executor) executeOne(ctx context.Context, assignment model.WorkerAssignment) (out model.WorkerOutput) {
	id := assignment.WorkerID
	log := zap.L().With(zap.String("worker", id))
	started := time.Now()

	defer func() {
		// A worker that panics must not take the rest of the plan down.
		if r := recover(); r != nil {
			log.Error("worker: execution panicked", zap.Any("panic", r))
			out = errorOutput(id, time.Since(started), fmt.Sprintf("worker panicked: %v", r))
			e.breakers.RecordFailure(e.providerFor(id))
		}
		metrics.ObserveWorkerCall(id, string(out.Status), len(out.Candidates))
	}()

	w, err := e.registry.Get(id)
	if err != nil {
		log.Error("worker: resolution failed", zap.Error(err))
		return errorOutput(id, time.Since(started), err.Error())
	}
	if w == nil {
		log.Warn("worker: unknown identifier")
		return errorOutput(id, time.Since(started), fmt.Sprintf("unknown worker %q", id))
	}

	provider := w.Provider()
	if e.breakers.IsOpen(provider) {
		log.Warn("worker: circuit open, skipping", zap.String("provider", provider))
		return model.WorkerOutput{
			WorkerID:   id,
			Status:     model.OutputSkipped,
			Error:      fmt.Sprintf("circuit open for provider %q", provider),
			DurationMS: time.Since(started).Milliseconds(),
		}
	}

	timeout := assignment.Timeout(e.defaultTimeout)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	done := make(chan model.WorkerOutput, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errorOutput(id, time.Since(started), fmt.Sprintf("worker panicked: %v", r))
			}
		}()
		done <- w.Execute(callCtx, assignment)
	}()

	select {
	case result := <-done:
		result.WorkerID = id
		result.DurationMS = time.Since(started).Milliseconds()
		switch result.Status {
		case model.OutputOK, model.OutputPartial:
			e.breakers.RecordSuccess(provider)
		case model.OutputError:
			e.breakers.RecordFailure(provider)
		}
		if result.Usage != nil {
			metrics.ObserveTokens(id, result.Usage.InputTokens, result.Usage.OutputTokens)
		}
		log.Debug("worker: execution finished",
			zap.String("status", string(result.Status)),
			zap.Int("candidates", len(result.Candidates)),
			zap.Int64("duration_ms", result.DurationMS),
		)
		return result
	case <-callCtx.Done():
		// Timed out or the run was canceled. The in-flight result, if it
		// ever arrives, is discarded.
		e.breakers.RecordFailure(provider)
		log.Warn("worker: execution timed out", zap.Duration("timeout", timeout))
		return errorOutput(id, time.Since(started), fmt.Sprintf("execution timed out after %s", timeout))
	}
}

// providerFor looks up the provider for an already-resolved worker, falling
// back to the worker ID when resolution itself failed.
func (e *Executor) providerFor(id string) string {
	if w, err := e.registry.Get(id); err == nil && w != nil {
		return w.Provider()
	}
	return id
}

func errorOutput(workerID string, elapsed time.Duration, msg string) model.WorkerOutput {
	return model.WorkerOutput{
		WorkerID:   workerID,
		Status:     model.OutputError,
		Error:      msg,
		DurationMS: elapsed.Milliseconds(),
	}
}
