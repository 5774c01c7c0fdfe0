package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roamline/trip-cli/internal/model"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List configured workers and their query plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		destination, _ := cmd.Flags().GetString("destination")
		intent := model.SessionIntent{Destination: destination}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "WORKER\tPROVIDER\tQUERIES\tTIMEOUT")
		_, _ = fmt.Fprintln(w, "------\t--------\t-------\t-------")

		for _, id := range env.WorkerIDs {
			wk, err := env.Registry.Get(id)
			if err != nil || wk == nil {
				continue
			}
			plan := wk.Plan(intent)
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%dms\n",
				wk.ID(), wk.Provider(), len(plan.Queries), plan.TimeoutMS)
			if destination != "" {
				printQueries(w, plan.Queries)
			}
		}
		return w.Flush()
	},
}

func printQueries(w io.Writer, queries []string) {
	for _, q := range queries {
		_, _ = fmt.Fprintf(w, "  %s\t\t\t\n", q)
	}
}

func init() {
	workersCmd.Flags().String("destination", "", "show each worker's planned queries for a destination")
	rootCmd.AddCommand(workersCmd)
}
