package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"classattend/internal/attendance"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Schedule and run class sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Schedule a session",
	Long: `Schedule a session for a course. Sessions of one course may not overlap
on the same date.

Example:
  attendctl session create --course <id> --date 2024-03-01 --start 09:00 --end 10:30`,
	Args: cobra.NoArgs,
	RunE: runSessionCreate,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <session-id>",
	Short: "Open check-in and seed absent records",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStart,
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close check-in and store the summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionClose,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionCreateCmd, sessionListCmd, sessionStartCmd, sessionCloseCmd)

	sessionCreateCmd.Flags().String("course", "", "Course id")
	sessionCreateCmd.Flags().String("date", "", "Date (YYYY-MM-DD)")
	sessionCreateCmd.Flags().String("start", "", "Start time (HH:MM)")
	sessionCreateCmd.Flags().String("end", "", "End time (HH:MM)")
	sessionCreateCmd.Flags().Int("late", 0, "Late tolerance in minutes (0 = default)")
	for _, f := range []string{"course", "date", "start", "end"} {
		_ = sessionCreateCmd.MarkFlagRequired(f)
	}

	sessionListCmd.Flags().String("course", "", "Only sessions of this course")
	sessionListCmd.Flags().String("from", "", "Earliest date (YYYY-MM-DD)")
	sessionListCmd.Flags().String("to", "", "Latest date (YYYY-MM-DD)")
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	date, err := attendance.ParseDate(mustGetString(cmd, "date"))
	if err != nil {
		return err
	}
	start, err := attendance.ParseTimeOfDay(mustGetString(cmd, "start"))
	if err != nil {
		return err
	}
	end, err := attendance.ParseTimeOfDay(mustGetString(cmd, "end"))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	deps, err := open(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	s, err := deps.Service.CreateSession(ctx, attendance.NewSession{
		CourseID:      mustGetString(cmd, "course"),
		Date:          date,
		Start:         start,
		End:           end,
		LateTolerance: time.Duration(mustGetInt(cmd, "late")) * time.Minute,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), s)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Scheduled session %s on %s %s-%s\n", s.ID, s.Date.Format(time.DateOnly), s.Start, s.End)
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	f := attendance.SessionFilter{CourseID: mustGetString(cmd, "course")}
	for flag, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := mustGetString(cmd, flag); v != "" {
			d, err := attendance.ParseDate(v)
			if err != nil {
				return err
			}
			*dst = d
		}
	}

	ctx := cmd.Context()
	deps, err := open(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	sessions, err := deps.Service.ListSessions(ctx, f)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOURSE\tDATE\tTIME\tSTATE")
	fmt.Fprintln(w, "--\t------\t----\t----\t-----")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s-%s\t%s\n", s.ID, s.CourseID, s.Date.Format(time.DateOnly), s.Start, s.End, s.State())
	}
	return w.Flush()
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	deps, err := open(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	res, err := deps.Service.StartSession(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s started, %d absent record(s) seeded\n", res.Session.ID, res.Seeded)
	return nil
}

func runSessionClose(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	deps, err := open(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	s, err := deps.Service.CloseSession(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), s)
	}
	return printSummary(cmd, *s.Summary)
}

func printSummary(cmd *cobra.Command, sum attendance.Summary) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "present\t%d\n", sum.Present)
	fmt.Fprintf(w, "late\t%d\n", sum.Late)
	fmt.Fprintf(w, "absent\t%d\n", sum.Absent)
	fmt.Fprintf(w, "excused\t%d\n", sum.Excused)
	fmt.Fprintf(w, "total\t%d\n", sum.Total)
	fmt.Fprintf(w, "rate\t%.1f%%\n", sum.AttendanceRate)
	return w.Flush()
}
