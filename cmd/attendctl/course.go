package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"classattend/internal/attendance"
)

var courseCmd = &cobra.Command{
	Use:   "course",
	Short: "Manage courses and enrollment",
}

var courseCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a course",
	Long: `Create a course and print its id.

Example:
  attendctl course create --code CS101 --name "Intro to CS" --instructor prof-7`,
	Args: cobra.NoArgs,
	RunE: runCourseCreate,
}

var courseEnrollCmd = &cobra.Command{
	Use:   "enroll <course-id> <student-id>...",
	Short: "Enroll students in a course",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCourseEnroll,
}

func init() {
	rootCmd.AddCommand(courseCmd)
	courseCmd.AddCommand(courseCreateCmd, courseEnrollCmd)

	courseCreateCmd.Flags().String("code", "", "Course code (unique)")
	courseCreateCmd.Flags().String("name", "", "Course name")
	courseCreateCmd.Flags().String("instructor", "", "Instructor id")
	_ = courseCreateCmd.MarkFlagRequired("code")
	_ = courseCreateCmd.MarkFlagRequired("name")
}

func runCourseCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	deps, err := open(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	c, err := deps.Service.CreateCourse(ctx, attendance.NewCourse{
		Code:         mustGetString(cmd, "code"),
		Name:         mustGetString(cmd, "name"),
		InstructorID: mustGetString(cmd, "instructor"),
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), c)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created course %s (%s) id=%s\n", c.Code, c.Name, c.ID)
	return nil
}

func runCourseEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	deps, err := open(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.Service.Enroll(ctx, args[0], args[1:]...); err != nil {
		return err
	}
	students, err := deps.Service.ListEnrolled(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Course %s now has %d student(s)\n", args[0], len(students))
	return nil
}
