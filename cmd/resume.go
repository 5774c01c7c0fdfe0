package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/checkpoint"
	"github.com/roamline/trip-cli/internal/pipeline"
)

var (
	resumeSession string
	resumeRun     string
	resumeFrom    string
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a prior run from a pipeline stage",
	Long:  "Re-executes the pipeline from the named stage, reusing the earlier stages' checkpoints from the prior run.",
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

		runID := resumeRun
		if runID == "" {
			runID, err = env.Checkpoints.ReadLatest(resumeSession)
			if err != nil {
				if eris.Is(err, checkpoint.ErrNotFound) {
					return eris.Errorf("no prior run for session %q", resumeSession)
				}
				return eris.Wrap(err, "resolve latest run")
			}
		}

		run, err := env.Runs.GetRun(ctx, runID)
		if err != nil {
			return eris.Wrapf(err, "load run %s", runID)
		}

		zap.L().Info("resuming run",
			zap.String("run_id", runID),
			zap.String("from", resumeFrom),
		)

		report, err := executeRun(ctx, env, run.Intent, runID, resumeFrom)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	resumeCmd.Flags().StringVar(&resumeSession, "session", "", "session key (used to resolve the latest run)")
	resumeCmd.Flags().StringVar(&resumeRun, "run", "", "run ID to resume (default: session's latest run)")
	resumeCmd.Flags().StringVar(&resumeFrom, "from", pipeline.StageDedupe, "first stage to re-execute")
	resumeCmd.MarkFlagsOneRequired("session", "run")
	rootCmd.AddCommand(resumeCmd)
}
