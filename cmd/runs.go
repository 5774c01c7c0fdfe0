package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/roamline/trip-cli/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run history",
	Long:  "Commands for listing and viewing pipeline runs and their stage records.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs for a session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		session, _ := cmd.Flags().GetString("session")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, session, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stages --

var runsStagesCmd = &cobra.Command{
	Use:   "stages <run-id>",
	Short: "Show a run's stage records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.ListStages(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs stages")
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No stage records found.")
			return nil
		}

		formatStageList(os.Stdout, records)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("session", "", "session key (required)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	_ = runsListCmd.MarkFlagRequired("session")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStagesCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDESTINATION\tSTATUS\tCANDIDATES\tCOST\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-----------\t------\t----------\t----\t-------")

	for _, r := range runs {
		candidates := ""
		costUSD := ""
		if r.Result != nil {
			candidates = fmt.Sprintf("%d", r.Result.CandidatesFound)
			costUSD = fmt.Sprintf("$%.4f", r.Result.TotalCostUSD)
		}

		destination := r.Intent.Destination
		if len(destination) > 30 {
			destination = destination[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			destination,
			r.Status,
			candidates,
			costUSD,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatStageList writes a tabular list of stage records to w.
func formatStageList(out io.Writer, records []model.StageRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tSTATUS\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "-----\t------\t--------\t-----")

	for _, rec := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rec.Name,
			rec.Status,
			(time.Duration(rec.Duration) * time.Millisecond).String(),
			rec.Error,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
