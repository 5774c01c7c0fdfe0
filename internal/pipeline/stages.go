package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/cost"
	"github.com/roamline/trip-cli/internal/dedupe"
	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/rank"
	"github.com/roamline/trip-cli/internal/validate"
	"github.com/roamline/trip-cli/internal/worker"
)

// Stage identifiers, in pipeline order.
const (
	StageCollect   = "collect"
	StageNormalize = "normalize"
	StageDedupe    = "dedupe"
	StageRank      = "rank"
	StageValidate  = "validate"
	StageReport    = "report"
)

// CollectOutput is the collect stage's checkpoint: the plan that was
// executed and every worker's typed output.
type CollectOutput struct {
	Assignments []model.WorkerAssignment `json:"assignments"`
	Outputs     []model.WorkerOutput     `json:"outputs"`
}

// CollectStage plans one assignment per registered worker and fans them out
// through the executor.
type CollectStage struct {
	registry  *worker.Registry
	executor  *worker.Executor
	workerIDs []string
}

// NewCollectStage creates the collect stage over the given workers.
func NewCollectStage(registry *worker.Registry, executor *worker.Executor, workerIDs []string) *CollectStage {
	return &CollectStage{registry: registry, executor: executor, workerIDs: workerIDs}
}

func (s *CollectStage) ID() string { return StageCollect }

func (s *CollectStage) Execute(ctx context.Context, sc *StageContext, _ json.RawMessage) (any, error) {
	assignments := make([]model.WorkerAssignment, 0, len(s.workerIDs))
	for _, id := range s.workerIDs {
		w, err := s.registry.Get(id)
		if err != nil {
			return nil, err
		}
		if w == nil {
			// Let the executor turn this into an error output; the plan
			// still carries the assignment so the miss is visible.
			assignments = append(assignments, model.WorkerAssignment{WorkerID: id})
			continue
		}
		assignments = append(assignments, w.Plan(sc.Intent))
	}

	outputs, err := s.executor.Execute(ctx, sc.SessionID, sc.RunID, assignments)
	if err != nil {
		return nil, err
	}

	for _, out := range outputs {
		switch out.Status {
		case model.OutputOK, model.OutputPartial:
			sc.Stats.SourcesOK++
		default:
			sc.Stats.SourcesFailed++
		}
	}
	return CollectOutput{Assignments: assignments, Outputs: outputs}, nil
}

// NormalizeOutput is the normalize stage's checkpoint: the flattened and
// cleaned candidate set plus source-level degradation notes.
type NormalizeOutput struct {
	Candidates    []model.Candidate `json:"candidates"`
	SourcesOK     int               `json:"sources_ok"`
	SourcesFailed []string          `json:"sources_failed,omitempty"`
	TotalTokens   int64             `json:"total_tokens"`
}

// NormalizeStage flattens worker outputs into one candidate list, filling
// defaults so downstream stages can rely on every field.
type NormalizeStage struct{}

func (NormalizeStage) ID() string { return StageNormalize }

func (NormalizeStage) Execute(_ context.Context, sc *StageContext, input json.RawMessage) (any, error) {
	var collected CollectOutput
	if err := json.Unmarshal(input, &collected); err != nil {
		return nil, eris.Wrap(err, "normalize: decode collect checkpoint")
	}

	out := NormalizeOutput{}
	for _, wo := range collected.Outputs {
		if wo.Usage != nil {
			out.TotalTokens += wo.Usage.Total()
		}
		switch wo.Status {
		case model.OutputOK, model.OutputPartial:
			out.SourcesOK++
		default:
			out.SourcesFailed = append(out.SourcesFailed, wo.WorkerID)
			continue
		}
		for _, c := range wo.Candidates {
			if normalized, ok := normalizeCandidate(c, wo.WorkerID); ok {
				out.Candidates = append(out.Candidates, normalized)
			}
		}
	}

	if len(out.Candidates) == 0 {
		// Nothing usable from any source aborts the run; the manifest still
		// records the collect checkpoint for inspection.
		return nil, eris.Errorf("normalize: no usable candidates from %d sources", len(collected.Outputs))
	}

	sc.Stats.CandidatesFound = len(out.Candidates)
	sc.Logger().Debug("normalize: flattened outputs",
		zap.Int("candidates", len(out.Candidates)),
		zap.Strings("failed_sources", out.SourcesFailed),
	)
	return out, nil
}

func normalizeCandidate(c model.Candidate, origin string) (model.Candidate, bool) {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return c, false
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Origin == "" {
		c.Origin = origin
	}
	if c.Type == "" {
		c.Type = model.TypePlace
	}
	if c.Confidence == "" {
		c.Confidence = model.ConfidenceProvisional
	}
	c.Summary = strings.TrimSpace(c.Summary)
	c.LocationText = strings.TrimSpace(c.LocationText)
	return c, true
}

// DedupeStage clusters near-duplicate candidates.
type DedupeStage struct {
	cfg dedupe.Config
}

// NewDedupeStage creates the dedupe stage with the given similarity config.
func NewDedupeStage(cfg dedupe.Config) *DedupeStage {
	return &DedupeStage{cfg: cfg}
}

func (s *DedupeStage) ID() string { return StageDedupe }

func (s *DedupeStage) Execute(_ context.Context, sc *StageContext, input json.RawMessage) (any, error) {
	var normalized NormalizeOutput
	if err := json.Unmarshal(input, &normalized); err != nil {
		return nil, eris.Wrap(err, "dedupe: decode normalize checkpoint")
	}

	result := dedupe.Cluster(normalized.Candidates, s.cfg)
	sc.Stats.ClustersFormed = len(result.Clusters)
	sc.Stats.Merged = result.Merged
	return result, nil
}

// RankStage orders the deduplicated candidates.
type RankStage struct {
	profile rank.Profile
}

// NewRankStage creates the rank stage with the given scoring profile.
func NewRankStage(profile rank.Profile) *RankStage {
	return &RankStage{profile: profile}
}

func (s *RankStage) ID() string { return StageRank }

func (s *RankStage) Execute(_ context.Context, sc *StageContext, input json.RawMessage) (any, error) {
	var deduped dedupe.Result
	if err := json.Unmarshal(input, &deduped); err != nil {
		return nil, eris.Wrap(err, "rank: decode dedupe checkpoint")
	}

	result := rank.New(s.profile).Rank(deduped.Candidates, sc.Intent)
	sc.Stats.AverageScore = result.Stats.AverageScore
	return result, nil
}

// ValidateStage re-verifies low-confidence candidates.
type ValidateStage struct {
	validator *validate.Validator
}

// NewValidateStage creates the validate stage.
func NewValidateStage(validator *validate.Validator) *ValidateStage {
	return &ValidateStage{validator: validator}
}

func (s *ValidateStage) ID() string { return StageValidate }

func (s *ValidateStage) Execute(ctx context.Context, sc *StageContext, input json.RawMessage) (any, error) {
	var ranked rank.Result
	if err := json.Unmarshal(input, &ranked); err != nil {
		return nil, eris.Wrap(err, "validate: decode rank checkpoint")
	}

	result := s.validator.Validate(ctx, ranked.Candidates)
	sc.Stats.ValidatedCount = result.Selected
	return result, nil
}

// Report is the final stage's checkpoint: the run summary plus the top
// candidates ready for export.
type Report struct {
	Result     model.RunResult   `json:"result"`
	Top        []model.Candidate `json:"top"`
	Cost       cost.Summary      `json:"cost"`
	FinishedAt time.Time         `json:"finished_at"`
}

// TopCandidateCount bounds how many candidates the report retains.
const TopCandidateCount = 10

// ReportStage assembles the final run summary.
type ReportStage struct{}

func (ReportStage) ID() string { return StageReport }

func (ReportStage) Execute(_ context.Context, sc *StageContext, input json.RawMessage) (any, error) {
	var validated validate.Result
	if err := json.Unmarshal(input, &validated); err != nil {
		return nil, eris.Wrap(err, "report: decode validate checkpoint")
	}

	top := validated.Candidates
	if len(top) > TopCandidateCount {
		top = top[:TopCandidateCount]
	}

	var summary cost.Summary
	if sc.Tracker != nil {
		summary = sc.Tracker.Summary()
	}

	return Report{
		Result: model.RunResult{
			CandidatesFound: sc.Stats.CandidatesFound,
			ClustersFormed:  sc.Stats.ClustersFormed,
			AverageScore:    sc.Stats.AverageScore,
			ValidatedCount:  sc.Stats.ValidatedCount,
			TotalTokens:     summary.TotalTokens,
			TotalCostUSD:    summary.TotalCostUSD,
			FinalStage:      StageReport,
			DurationMS:      time.Since(sc.StartedAt).Milliseconds(),
		},
		Top:        top,
		Cost:       summary,
		FinishedAt: time.Now().UTC(),
	}, nil
}
