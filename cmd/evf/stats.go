package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ellis-anderson/evf/internal/duckdb"
)

func newStatsCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize logged train and filter runs",
		Long: `Summarize a run logged with --db. Filter runs show per-type totals and
how many calls were filtered; training runs show row counts per label.
Without --run the most recent filter run is shown.`,
		Example: `  evf stats --db runs.duckdb
  evf stats --db runs.duckdb --run 1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed
  evf stats --db runs.duckdb --list`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := viper.GetString(keyDB)
			if dbPath == "" {
				return usageErr(fmt.Errorf("required flag(s) --%s not set", keyDB))
			}
			list, _ := cmd.Flags().GetBool("list")
			return runStats(cmd.OutOrStdout(), dbPath, runID, list)
		},
	}

	cmd.Flags().String(keyDB, "", "DuckDB file written by train or apply")
	cmd.Flags().StringVar(&runID, "run", "", "Run ID (default: latest filter run)")
	cmd.Flags().Bool("list", false, "List all runs")

	return cmd
}

func runStats(w io.Writer, dbPath, runID string, list bool) error {
	store, err := duckdb.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if list {
		fmt.Fprintln(tw, "RUN\tKIND\tCREATED\tDESCRIPTION")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Description)
		}
		return nil
	}

	if runID == "" {
		runID, err = store.LatestRun(duckdb.RunFilter)
		if err != nil {
			return err
		}
		if runID == "" {
			return fmt.Errorf("no filter runs in %s", dbPath)
		}
	}

	var run *duckdb.Run
	for i := range runs {
		if runs[i].ID == runID {
			run = &runs[i]
			break
		}
	}
	if run == nil {
		return fmt.Errorf("run %q not found in %s", runID, dbPath)
	}

	fmt.Fprintf(tw, "# %s run %s (%s)\n", run.Kind, run.ID, run.Description)

	switch run.Kind {
	case duckdb.RunTrain:
		sum, err := store.TrainingSummary(runID)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "LABEL\tROWS")
		for _, ls := range sum {
			name := "false_positive"
			if ls.Label == 1 {
				name = "true_positive"
			}
			fmt.Fprintf(tw, "%s\t%d\n", name, ls.Rows)
		}
	default:
		sum, err := store.FilterSummary(runID)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "TYPE\tTOTAL\tFILTERED\tFRACTION")
		for _, cs := range sum {
			frac := 0.0
			if cs.Total > 0 {
				frac = float64(cs.Filtered) / float64(cs.Total)
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.4f\n", cs.Class, cs.Total, cs.Filtered, frac)
		}
	}
	return nil
}
