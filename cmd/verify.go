package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/roamline/trip-cli/internal/checkpoint"
)

var (
	verifySession string
	verifyRun     string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a run's checkpoint integrity against its manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ckpt := checkpoint.NewStore(cfg.Checkpoint.Dir)

		runID := verifyRun
		if runID == "" {
			var err error
			runID, err = ckpt.ReadLatest(verifySession)
			if err != nil {
				if eris.Is(err, checkpoint.ErrNotFound) {
					return eris.Errorf("no prior run for session %q", verifySession)
				}
				return eris.Wrap(err, "resolve latest run")
			}
		}

		var manifest checkpoint.RunManifest
		if err := ckpt.Read(ckpt.ManifestPath(verifySession, runID), &manifest); err != nil {
			return eris.Wrapf(err, "read manifest for run %s", runID)
		}

		dir := filepath.Join(ckpt.RunDir(verifySession, runID), "checkpoints")
		result := checkpoint.VerifyManifest(&manifest, dir)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		if !result.Valid {
			return eris.Errorf("run %s failed integrity verification", runID)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifySession, "session", "", "session key (required)")
	verifyCmd.Flags().StringVar(&verifyRun, "run", "", "run ID (default: session's latest run)")
	_ = verifyCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(verifyCmd)
}
