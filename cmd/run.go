package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/pipeline"
)

var (
	runDestination string
	runInterests   []string
	runDays        int
	runSeason      string
	runSession     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full recommendation pipeline for a destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sessionID := runSession
		if sessionID == "" {
			sessionID = sessionSlug(runDestination)
		}
		intent := model.SessionIntent{
			SessionID:    sessionID,
			Destination:  runDestination,
			Interests:    runInterests,
			DurationDays: runDays,
			Season:       runSeason,
		}

		runID := uuid.NewString()
		now := time.Now().UTC()
		if err := env.Runs.CreateRun(ctx, model.Run{
			ID:        runID,
			SessionID: intent.SessionID,
			Intent:    intent,
			Status:    model.RunStatusQueued,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return eris.Wrap(err, "create run record")
		}

		report, err := executeRun(ctx, env, intent, runID, "")
		if err != nil {
			return err
		}

		zap.L().Info("run complete",
			zap.String("run_id", runID),
			zap.Int("candidates", report.Result.CandidatesFound),
			zap.Int("validated", report.Result.ValidatedCount),
			zap.Float64("cost_usd", report.Result.TotalCostUSD),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

// executeRun drives one engine run end to end, keeping the run store in sync
// with stage transitions. The run record for runID must already exist;
// resumeFrom is empty for a fresh run.
func executeRun(ctx context.Context, env *pipelineEnv, intent model.SessionIntent, runID, resumeFrom string) (pipeline.Report, error) {
	sc := &pipeline.StageContext{
		SessionID: intent.SessionID,
		RunID:     runID,
		Intent:    intent,
		Tracker:   env.Tracker,
		Breakers:  env.Breakers,
		Log:       zap.L(),
	}

	env.Engine.OnStage = func(rec model.StageRecord) {
		if rec.Status == model.StageStatusRunning {
			if status, ok := statusForStage(rec.Name); ok {
				if err := env.Runs.UpdateRunStatus(ctx, runID, status); err != nil {
					zap.L().Warn("update run status failed", zap.Error(err))
				}
			}
			return
		}
		if err := env.Runs.RecordStage(ctx, rec); err != nil {
			zap.L().Warn("record stage failed", zap.Error(err))
		}
	}

	opts := pipeline.RunOptions{ResumeFrom: resumeFrom}
	if _, err := env.Engine.Run(ctx, sc, opts); err != nil {
		if serr := env.Runs.UpdateRunStatus(ctx, runID, model.RunStatusFailed); serr != nil {
			zap.L().Warn("mark run failed", zap.Error(serr))
		}
		return pipeline.Report{}, eris.Wrap(err, "pipeline run")
	}

	var report pipeline.Report
	reportPath := env.Checkpoints.StagePath(intent.SessionID, runID, pipeline.StageReport)
	if err := env.Checkpoints.Read(reportPath, &report); err != nil {
		return pipeline.Report{}, eris.Wrap(err, "read report checkpoint")
	}

	if err := env.Runs.SetRunResult(ctx, runID, report.Result); err != nil {
		zap.L().Warn("persist run result failed", zap.Error(err))
	}
	if err := env.Runs.UpdateRunStatus(ctx, runID, model.RunStatusComplete); err != nil {
		zap.L().Warn("mark run complete failed", zap.Error(err))
	}
	return report, nil
}

// sessionSlug derives a path-safe session key from the destination.
func sessionSlug(destination string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(destination)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			sb.WriteByte('-')
		}
	}
	if sb.Len() == 0 {
		return "session"
	}
	return sb.String()
}

func init() {
	runCmd.Flags().StringVar(&runDestination, "destination", "", "destination to research (required)")
	runCmd.Flags().StringSliceVar(&runInterests, "interests", nil, "traveler interests (e.g. food,temples)")
	runCmd.Flags().IntVar(&runDays, "days", 0, "trip duration in days")
	runCmd.Flags().StringVar(&runSeason, "season", "", "travel season (e.g. spring)")
	runCmd.Flags().StringVar(&runSession, "session", "", "session key (default derived from destination)")
	_ = runCmd.MarkFlagRequired("destination")
	rootCmd.AddCommand(runCmd)
}
