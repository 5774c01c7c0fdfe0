package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/checkpoint"
	"github.com/roamline/trip-cli/internal/export"
	"github.com/roamline/trip-cli/internal/pipeline"
)

var (
	exportSession string
	exportRun     string
	exportFormat  string
	exportOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a finished run's report",
	Long:  "Renders the report checkpoint of a completed run as markdown, JSON, or an XLSX workbook.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ckpt := checkpoint.NewStore(cfg.Checkpoint.Dir)

		runID := exportRun
		if runID == "" {
			var err error
			runID, err = ckpt.ReadLatest(exportSession)
			if err != nil {
				if eris.Is(err, checkpoint.ErrNotFound) {
					return eris.Errorf("no prior run for session %q", exportSession)
				}
				return eris.Wrap(err, "resolve latest run")
			}
		}

		var report pipeline.Report
		if err := ckpt.Read(ckpt.StagePath(exportSession, runID, pipeline.StageReport), &report); err != nil {
			if eris.Is(err, checkpoint.ErrNotFound) {
				return eris.Errorf("run %s has no report checkpoint; did it finish?", runID)
			}
			return eris.Wrap(err, "read report checkpoint")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return eris.Wrapf(err, "load run %s", runID)
		}

		out := exportOut
		if out == "" {
			out = fmt.Sprintf("trip-report-%s.%s", truncateID(runID), exportFormat)
		}

		switch exportFormat {
		case "md", "markdown":
			err = export.WriteMarkdown(out, run.Intent, report)
		case "json":
			err = export.WriteJSON(out, report)
		case "xlsx":
			err = export.WriteXLSX(out, run.Intent, report)
		default:
			return eris.Errorf("unsupported format %q (md, json, xlsx)", exportFormat)
		}
		if err != nil {
			return err
		}

		zap.L().Info("report exported",
			zap.String("run_id", runID),
			zap.String("format", exportFormat),
			zap.String("path", out),
		)
		fmt.Println(out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSession, "session", "", "session key (required)")
	exportCmd.Flags().StringVar(&exportRun, "run", "", "run ID (default: session's latest run)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "md", "output format: md, json, or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default derived from run ID)")
	_ = exportCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(exportCmd)
}
