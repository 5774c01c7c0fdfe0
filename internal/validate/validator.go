// Package validate re-verifies low-confidence candidates against an
// independent source, converting check outcomes into a validation status
// taxonomy.
package validate

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roamline/trip-cli/internal/metrics"
	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/resilience"
)

// CheckResult is the outcome of one independent confirmation query. A check
// that could not be resolved at all is reported via the error return of
// Checker.Check instead.
type CheckResult struct {
	// Exists reports whether the source knows a matching entry at all.
	Exists bool
	// LocationChecked is false when either side lacks coordinates.
	LocationChecked bool
	// LocationMatches is meaningful only when LocationChecked is true.
	LocationMatches bool
	// Sources lists the URLs consulted.
	Sources []string
}

// Checker issues one confirmation query for a candidate.
type Checker interface {
	Check(ctx context.Context, c model.Candidate) (CheckResult, error)
}

// Config bounds the validation stage.
type Config struct {
	// MaxCandidates caps how many candidates are validated per run.
	MaxCandidates int
	// Concurrency bounds simultaneous validation calls.
	Concurrency int
	// AttemptTimeout bounds each individual confirmation query.
	AttemptTimeout time.Duration
	// LowTrustOrigins marks origins whose candidates are validated even when
	// their confidence is above provisional.
	LowTrustOrigins []string
}

// DefaultConfig returns the standard validation bounds.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:   10,
		Concurrency:     3,
		AttemptTimeout:  10 * time.Second,
		LowTrustOrigins: []string{"narrative"},
	}
}

// Validator drives cross-source validation.
type Validator struct {
	checker Checker
	cfg     Config
	nowFunc func() time.Time
}

// New creates a Validator.
func New(checker Checker, cfg Config) *Validator {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	return &Validator{checker: checker, cfg: cfg, nowFunc: time.Now}
}

// Result summarizes a validation pass.
type Result struct {
	Candidates []model.Candidate `json:"candidates"`
	Selected   int               `json:"selected"`
	Verified   int               `json:"verified"`
	Conflicts  int               `json:"conflicts"`
}

// Validate re-checks the selected subset concurrently and returns the full
// candidate list with only that subset's validation and confidence updated.
// Check failures and timeouts degrade to "unverified"; they never fail the
// stage.
func (v *Validator) Validate(ctx context.Context, candidates []model.Candidate) Result {
	out := make([]model.Candidate, len(candidates))
	copy(out, candidates)

	selected := v.selectIndices(out)
	log := zap.L().With(zap.Int("selected", len(selected)))

	// Seed every selected entry up front. A run canceled mid-stage leaves
	// unstarted checks at this seed instead of a nil Validation; validateOne
	// replaces it once the check actually runs.
	for _, idx := range selected {
		out[idx].Validation = &model.Validation{
			Status: model.ValidationUnverified,
			Notes:  "confirmation not attempted: run canceled",
		}
	}

	limiter := resilience.NewLimiter(v.cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range selected {
		g.Go(func() error {
			return limiter.Run(gctx, func(ctx context.Context) error {
				v.validateOne(ctx, &out[idx])
				return nil
			})
		})
	}
	// Run errors only when the context dies before a slot frees up; those
	// entries keep their seeded unverified status.
	_ = g.Wait()

	result := Result{Candidates: out, Selected: len(selected)}
	for _, idx := range selected {
		switch out[idx].Validation.Status {
		case model.ValidationVerified:
			result.Verified++
		case model.ValidationConflictDetected:
			result.Conflicts++
		}
	}
	log.Info("validate: pass complete",
		zap.Int("verified", result.Verified),
		zap.Int("conflicts", result.Conflicts),
	)
	return result
}

// selectIndices picks provisional or low-trust-origin candidates, in input
// order, up to the configured cap.
func (v *Validator) selectIndices(candidates []model.Candidate) []int {
	lowTrust := make(map[string]struct{}, len(v.cfg.LowTrustOrigins))
	for _, origin := range v.cfg.LowTrustOrigins {
		lowTrust[origin] = struct{}{}
	}

	var selected []int
	for i, c := range candidates {
		if len(selected) >= v.cfg.MaxCandidates {
			break
		}
		_, untrusted := lowTrust[c.Origin]
		if c.Confidence == model.ConfidenceProvisional || untrusted {
			selected = append(selected, i)
		}
	}
	return selected
}

func (v *Validator) validateOne(ctx context.Context, c *model.Candidate) {
	checkCtx, cancel := context.WithTimeout(ctx, v.cfg.AttemptTimeout)
	defer cancel()

	result, err := v.checker.Check(checkCtx, *c)
	validation := &model.Validation{CheckedAt: v.nowFunc().UTC()}
	if err != nil {
		zap.L().Debug("validate: check unresolved",
			zap.String("candidate", c.Title), zap.Error(err))
		validation.Status = model.ValidationUnverified
		validation.Notes = "confirmation query failed: " + err.Error()
	} else {
		validation.Status = status(result)
		validation.Sources = result.Sources
	}

	c.Validation = validation
	c.Confidence = confidenceFor(validation.Status, c.Confidence)
	metrics.ObserveValidation(string(validation.Status))
}

// status maps check outcomes onto the taxonomy: all positive → verified,
// some positive and none negative → partially_verified, any explicit
// negative → conflict_detected.
func status(r CheckResult) model.ValidationStatus {
	if !r.Exists {
		return model.ValidationConflictDetected
	}
	if r.LocationChecked && !r.LocationMatches {
		return model.ValidationConflictDetected
	}
	if r.LocationChecked {
		return model.ValidationVerified
	}
	return model.ValidationPartiallyVerified
}

func confidenceFor(s model.ValidationStatus, prior model.Confidence) model.Confidence {
	switch s {
	case model.ValidationVerified:
		return model.ConfidenceConfirmed
	case model.ValidationPartiallyVerified:
		return model.ConfidenceLikely
	case model.ValidationConflictDetected:
		return model.ConfidenceProvisional
	default:
		return prior
	}
}
