package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dendrascience/logfs/journal"
	"github.com/spf13/cobra"
)

// NewJournalCmd creates and returns the journal subcommand for the logfs CLI.
func NewJournalCmd() *cobra.Command {
	var (
		op      string
		asJSON  bool
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "journal FILE",
		Short: "Inspect a saved activity journal",
		Long: `Print the activity journal saved by "logfs mount --journal-out".

Records are printed oldest first. Use --op to keep one operation,
--summary to print counts per operation instead of records.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if summary {
				return printSummary(out, j)
			}
			records := filterRecords(j, op)
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return printRecords(out, records, j.Dropped())
		},
	}

	cmd.Flags().StringVar(&op, "op", "", "Only show records of this operation")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print record counts per operation")

	return cmd
}

func filterRecords(j *journal.Journal, op string) []journal.Record {
	records := make([]journal.Record, 0, j.Len())
	for r := range j.Iterate {
		if op != "" && r.Op != op {
			continue
		}
		records = append(records, r)
	}
	return records
}

func printRecords(w io.Writer, records []journal.Record, dropped uint64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tOP\tDEVICE\tINO\tNAME\tOUTCOME\tDURATION")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.Seq, r.Time.Format(time.RFC3339), r.Op, r.Device, r.Ino, r.Name, r.Outcome, r.Duration)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if dropped > 0 {
		fmt.Fprintf(w, "%d older records were dropped\n", dropped)
	}
	return nil
}

func printSummary(w io.Writer, j *journal.Journal) error {
	counts := j.CountByOp()
	ops := make([]string, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OP\tCOUNT")
	for _, op := range ops {
		fmt.Fprintf(tw, "%s\t%d\n", op, counts[op])
	}
	return tw.Flush()
}
