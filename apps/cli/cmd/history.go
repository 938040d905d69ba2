package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apicheck/packages/core/config"
	"github.com/abdul-hamid-achik/apicheck/packages/history"
)

var (
	historyLimitFlag  int
	historySuiteFlag  string
	historyDBPathFlag string
	historyConfigFlag string
)

var historyCmd = &cobra.Command{
	Use:   "history [run id]",
	Short: "Show recorded runs",
	Long: `Show recent runs from the history database, or the cases of one run.
Runs are recorded by 'apicheck run' when history_db or --history-db is set.

Examples:
  apicheck history
  apicheck history --suite reqres --limit 5
  apicheck history 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Number of runs to show")
	historyCmd.Flags().StringVar(&historySuiteFlag, "suite", "", "Only show runs of this suite")
	historyCmd.Flags().StringVar(&historyDBPathFlag, "history-db", "", "History database (default: history_db from the config)")
	historyCmd.Flags().StringVar(&historyConfigFlag, "config", "", "Path to config file")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	location := historyDBPathFlag
	if location == "" {
		cfg, err := config.Load(historyConfigFlag)
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		location = cfg.HistoryDB
	}
	if location == "" {
		return withExitCode(ExitConfigError, errors.New("no history database configured (set history_db or --history-db)"))
	}

	store, err := history.Open(location)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer store.Close()

	ctx := contextOf(cmd)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return withExitCode(ExitUsageError, fmt.Errorf("invalid run id %q", args[0]))
		}
		run, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		printRun(w, run)
		return nil
	}

	runs, err := store.Recent(ctx, historySuiteFlag, historyLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return nil
	}

	fmt.Fprintln(w, "ID\tSTARTED\tSUITE\tENV\tPASSED\tFAILED\tERRORED\tSKIPPED\tP95\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Suite,
			r.Environment,
			r.Passed,
			countCell(r.Failed),
			countCell(r.Errored),
			r.Skipped,
			r.P95.Round(time.Millisecond),
			r.Duration.Round(time.Millisecond),
		)
	}
	return nil
}

func countCell(n int) string {
	if n == 0 {
		return "0"
	}
	return color.RedString("%d", n)
}

func printRun(w *tabwriter.Writer, run *history.Run) {
	status := color.GreenString("passed")
	if !run.OK() {
		status = color.RedString("failed")
	}
	fmt.Fprintf(w, "Run %d: %s (%s) %s\n", run.ID, run.Suite, run.Environment, status)
	fmt.Fprintf(w, "Started %s against %s, took %s\n\n",
		run.StartedAt.Local().Format(time.RFC3339), run.BaseURL, run.Duration.Round(time.Millisecond))

	fmt.Fprintln(w, "CASE\tOUTCOME\tSTATUS\tDURATION\tMESSAGE")
	for _, c := range run.Cases {
		statusCode := "-"
		if c.Status > 0 {
			statusCode = strconv.Itoa(c.Status)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.Outcome, statusCode, c.Duration.Round(time.Millisecond), c.Message)
	}
}
