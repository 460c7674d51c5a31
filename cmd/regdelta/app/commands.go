package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/regdelta/regdelta/internal/cli/output"
	"github.com/regdelta/regdelta/pkg/differ"
	"github.com/regdelta/regdelta/pkg/registry"
)

// NewDetectCommand creates the detect command.
func (a *App) NewDetectCommand() *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Diff a snapshot against its predecessor and record the changes",
		Long: `Detect loads the snapshot for the given date (default today), compares
it against the most recent earlier snapshot, and persists the resulting
change log to the per-date artifact and the change-log database.

Re-running detect for the same date is safe: both sinks are replaced,
not appended to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := resolveDate(dateFlag)
			if err != nil {
				return err
			}

			tracker, err := a.Tracker()
			if err != nil {
				return err
			}

			report, runErr := tracker.Detect(cmd.Context(), date)
			if report != nil {
				formatter := output.NewFormatter(output.DetectFormat(a.config.Format))
				if err := formatter.Format(os.Stdout, report); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "snapshot date to process (YYYY-MM-DD, default today)")
	return cmd
}

// NewCompareCommand creates the compare command.
func (a *App) NewCompareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <old-date> <new-date>",
		Short: "Diff two snapshots without recording anything",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldDate, err := registry.ParseDate(args[0])
			if err != nil {
				return err
			}
			newDate, err := registry.ParseDate(args[1])
			if err != nil {
				return err
			}

			tracker, err := a.Tracker()
			if err != nil {
				return err
			}

			changeset, err := tracker.Compare(cmd.Context(), oldDate, newDate)
			if err != nil {
				return err
			}

			return a.printRecords(changeset.Records)
		},
	}
	return cmd
}

// NewSummaryCommand creates the summary command.
func (a *App) NewSummaryCommand() *cobra.Command {
	var days int
	var fromFlag, toFlag string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate change counts per date over a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tracker, err := a.Tracker()
			if err != nil {
				return err
			}

			svc := tracker.Query()
			ctx := cmd.Context()

			var (
				summary any
				qErr    error
			)
			if fromFlag != "" || toFlag != "" {
				from, err := registry.ParseDate(fromFlag)
				if err != nil {
					return err
				}
				to, err := registry.ParseDate(toFlag)
				if err != nil {
					return err
				}
				summary, qErr = svc.SummarizeRange(ctx, from, to)
			} else {
				summary, qErr = svc.Summarize(ctx, days)
			}
			if qErr != nil {
				return qErr
			}

			formatter := output.NewFormatter(output.DetectFormat(a.config.Format))
			return formatter.Format(os.Stdout, summary)
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "window size in days, counting back from today")
	cmd.Flags().StringVar(&fromFlag, "from", "", "window start date (YYYY-MM-DD, overrides --days)")
	cmd.Flags().StringVar(&toFlag, "to", "", "window end date (YYYY-MM-DD, overrides --days)")
	return cmd
}

// NewHistoryCommand creates the history command.
func (a *App) NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <key>",
		Short: "Show the full change history of one company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := a.Tracker()
			if err != nil {
				return err
			}

			records, err := tracker.Query().ByKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printRecords(records)
		},
	}
	return cmd
}

// NewLatestCommand creates the latest command.
func (a *App) NewLatestCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recently recorded changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tracker, err := a.Tracker()
			if err != nil {
				return err
			}

			records, err := tracker.Query().Latest(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return a.printRecords(records)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records to show")
	return cmd
}

// NewSnapshotsCommand creates the snapshots command.
func (a *App) NewSnapshotsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List available snapshot dates",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			tracker, err := a.Tracker()
			if err != nil {
				return err
			}

			dates, err := tracker.Snapshots().Dates()
			if err != nil {
				return err
			}

			format := output.DetectFormat(a.config.Format)
			if format == output.FormatTable {
				rows := make([][]string, 0, len(dates))
				for _, d := range dates {
					rows = append(rows, []string{d.String()})
				}
				formatter := output.NewFormatter(format)
				return formatter.Format(os.Stdout, output.Data{
					Headers: []string{"DATE"},
					Rows:    rows,
				})
			}

			formatter := output.NewFormatter(format)
			return formatter.Format(os.Stdout, dates)
		},
	}
	return cmd
}

// NewPurgeCommand creates the purge command.
func (a *App) NewPurgeCommand() *cobra.Command {
	var keepDays int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove change logs older than the retention window",
		Long: `Purge removes change artifacts and stored change records older than
the retention window. Snapshot files are never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tracker, err := a.Tracker()
			if err != nil {
				return err
			}

			result, err := tracker.Purge(cmd.Context(), keepDays)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "Removed %d artifacts and %d stored records older than %s\n",
				result.Artifacts, result.Rows, result.Cutoff)
			return nil
		},
	}

	cmd.Flags().IntVar(&keepDays, "keep-days", 90, "days of change history to keep")
	return cmd
}

// printRecords renders change records in the configured output format.
func (a *App) printRecords(records []differ.ChangeRecord) error {
	format := output.DetectFormat(a.config.Format)
	formatter := output.NewFormatter(format)

	if format != output.FormatTable {
		return formatter.Format(os.Stdout, records)
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.Date.String(),
			string(rec.Kind),
			rec.Key,
			strings.Join(rec.ChangedFields, ", "),
		})
	}
	if err := formatter.Format(os.Stdout, output.Data{
		Headers: []string{"DATE", "TYPE", "KEY", "CHANGED FIELDS"},
		Rows:    rows,
	}); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "\n%d record(s)\n", len(records))
	return nil
}

// resolveDate parses the --date flag, defaulting to today.
func resolveDate(flag string) (registry.Date, error) {
	if flag == "" {
		return registry.Today(), nil
	}
	return registry.ParseDate(flag)
}
