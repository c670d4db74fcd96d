package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Print the attendance ledger of a session",
	Long: `Print every enrolled student's record for a session, followed by the
totals. Students without a stored record are shown as absent.

Example:
  attendctl report 3f0c... --json`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	deps, err := open(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	rep, err := deps.Service.Report(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), rep)
	}

	loc := deps.Service.Location()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s on %s %s-%s (%s), late after %s\n\n",
		rep.Session.ID, rep.Session.Date.Format(time.DateOnly), rep.Session.Start, rep.Session.End,
		rep.Session.State(), rep.LateAfter.In(loc).Format("15:04"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT\tSTATUS\tSOURCE\tCHECK-IN\tCONFIDENCE\tMODIFIED BY")
	fmt.Fprintln(w, "-------\t------\t------\t--------\t----------\t-----------")
	for _, r := range rep.Records {
		checkIn, conf, by := "-", "-", "-"
		if r.CheckInAt != nil {
			checkIn = r.CheckInAt.In(loc).Format("15:04:05")
		}
		if r.MatchConfidence != nil {
			conf = fmt.Sprintf("%.2f", *r.MatchConfidence)
		}
		if r.ModifiedBy != nil {
			by = *r.ModifiedBy
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.StudentID, r.Status, r.Source, checkIn, conf, by)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return printSummary(cmd, rep.Summary)
}
