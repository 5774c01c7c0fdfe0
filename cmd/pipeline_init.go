package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/checkpoint"
	"github.com/roamline/trip-cli/internal/cost"
	"github.com/roamline/trip-cli/internal/dedupe"
	"github.com/roamline/trip-cli/internal/metrics"
	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/pipeline"
	"github.com/roamline/trip-cli/internal/rank"
	"github.com/roamline/trip-cli/internal/resilience"
	"github.com/roamline/trip-cli/internal/store"
	"github.com/roamline/trip-cli/internal/validate"
	"github.com/roamline/trip-cli/internal/worker"
	anthropicpkg "github.com/roamline/trip-cli/pkg/anthropic"
	atlaspkg "github.com/roamline/trip-cli/pkg/atlas"
	placespkg "github.com/roamline/trip-cli/pkg/places"
)

// pipelineEnv bundles everything a run needs: stores, clients, workers, and
// the stage engine.
type pipelineEnv struct {
	Runs        store.RunStore
	Checkpoints *checkpoint.Store
	Registry    *worker.Registry
	Breakers    *resilience.Breakers
	Tracker     *cost.Tracker
	Engine      *pipeline.Engine
	WorkerIDs   []string
}

// Close releases the env's resources.
func (e *pipelineEnv) Close() {
	if e.Runs != nil {
		_ = e.Runs.Close()
	}
}

func initStore(ctx context.Context) (store.RunStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "trip.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline wires the full run environment from the loaded config.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	metrics.Init()

	runs, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	ckpt := checkpoint.NewStore(cfg.Checkpoint.Dir)
	tracker := cost.NewTracker(cost.NewCalculator(pricingRates()))

	breakers := resilience.NewBreakers(resilience.CircuitConfig{
		FailureThreshold: cfg.Workers.FailureThreshold,
		Cooldown:         time.Duration(cfg.Workers.CooldownSecs) * time.Second,
		OnStateChange: func(provider string, from, to resilience.CircuitState) {
			if to == resilience.CircuitOpen {
				metrics.ObserveBreakerTrip(provider)
			}
			zap.L().Warn("circuit state change",
				zap.String("provider", provider),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	registry, workerIDs, err := initWorkers(tracker)
	if err != nil {
		runs.Close()
		return nil, err
	}

	limiter := resilience.NewLimiter(cfg.Workers.Concurrency)
	executor := worker.NewExecutor(registry, breakers, limiter, ckpt).
		WithDefaultTimeout(time.Duration(cfg.Workers.TimeoutSecs) * time.Second)

	validator := validate.New(
		validate.NewAtlasChecker(atlaspkg.NewClient(cfg.Atlas.Key, atlaspkg.WithBaseURL(cfg.Atlas.BaseURL))),
		validate.Config{
			MaxCandidates:   cfg.Validation.MaxCandidates,
			Concurrency:     cfg.Validation.Concurrency,
			AttemptTimeout:  time.Duration(cfg.Validation.TimeoutSecs) * time.Second,
			LowTrustOrigins: cfg.Validation.LowTrustOrigins,
		},
	)

	engine := pipeline.NewEngine(ckpt,
		pipeline.NewCollectStage(registry, executor, workerIDs),
		pipeline.NormalizeStage{},
		pipeline.NewDedupeStage(dedupe.Config{
			TitleWeight:      cfg.Dedupe.TitleWeight,
			LocationWeight:   cfg.Dedupe.LocationWeight,
			ClusterThreshold: cfg.Dedupe.ClusterThreshold,
		}),
		pipeline.NewRankStage(rank.DefaultProfile()),
		pipeline.NewValidateStage(validator),
		pipeline.ReportStage{},
	)

	return &pipelineEnv{
		Runs:        runs,
		Checkpoints: ckpt,
		Registry:    registry,
		Breakers:    breakers,
		Tracker:     tracker,
		Engine:      engine,
		WorkerIDs:   workerIDs,
	}, nil
}

// initWorkers registers every enabled worker whose provider credentials are
// configured. Workers missing a key are skipped with a warning rather than
// failing the run.
func initWorkers(tracker *cost.Tracker) (*worker.Registry, []string, error) {
	registry := worker.NewRegistry()
	var ids []string

	for _, id := range cfg.Workers.Enabled {
		switch id {
		case "places":
			if cfg.Places.Key == "" {
				zap.L().Warn("places worker disabled: no API key configured")
				continue
			}
			client := placespkg.NewClient(cfg.Places.Key,
				placespkg.WithBaseURL(cfg.Places.BaseURL),
				placespkg.WithRateLimit(cfg.Places.RateQPS, cfg.Places.Burst),
			)
			if err := registry.Register(worker.NewPlacesWorker(client, tracker)); err != nil {
				return nil, nil, err
			}
		case "atlas":
			if cfg.Atlas.Key == "" {
				zap.L().Warn("atlas worker disabled: no API key configured")
				continue
			}
			client := atlaspkg.NewClient(cfg.Atlas.Key, atlaspkg.WithBaseURL(cfg.Atlas.BaseURL))
			if err := registry.Register(worker.NewAtlasWorker(client, tracker)); err != nil {
				return nil, nil, err
			}
		case "narrative":
			if cfg.Anthropic.Key == "" {
				zap.L().Warn("narrative worker disabled: no API key configured")
				continue
			}
			client := anthropicpkg.NewClient(cfg.Anthropic.Key)
			if err := registry.Register(worker.NewNarrativeWorker(client, cfg.Anthropic.Model, tracker)); err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, eris.Errorf("unknown worker %q in workers.enabled", id)
		}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, nil, eris.New("no workers available: configure at least one provider key")
	}
	return registry, ids, nil
}

// pricingRates builds the cost calculator's rates from config, falling back
// to the built-in defaults for anything unset.
func pricingRates() cost.Rates {
	rates := cost.DefaultRates()
	for name, p := range cfg.Pricing.Anthropic {
		rates.Models[name] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}
	if cfg.Pricing.Places.PerQuery > 0 {
		rates.PerQuery["places"] = cfg.Pricing.Places.PerQuery
	}
	if cfg.Pricing.Atlas.PerQuery > 0 {
		rates.PerQuery["atlas"] = cfg.Pricing.Atlas.PerQuery
	}
	return rates
}

// statusForStage maps a stage transition onto the run's coarse lifecycle.
func statusForStage(stage string) (model.RunStatus, bool) {
	switch stage {
	case pipeline.StageCollect:
		return model.RunStatusCollecting, true
	case pipeline.StageNormalize, pipeline.StageDedupe, pipeline.StageRank:
		return model.RunStatusProcessing, true
	case pipeline.StageValidate:
		return model.RunStatusValidating, true
	default:
		return "", false
	}
}
