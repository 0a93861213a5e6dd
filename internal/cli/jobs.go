package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/streamscribe/internal/client"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect jobs on the job service",
	Long: `List the most recent jobs or inspect a specific job by ID.

Examples:
  streamscribe jobs           # List recent jobs
  streamscribe jobs abc12345  # Show details for job abc12345`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	c := apiClient()
	if len(args) == 1 {
		job, err := c.GetJob(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		printJob(cmd, job)
		return nil
	}

	jobs, err := c.ListJobs(cmd.Context())
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "%-10s %-14s %-11s %-10s %s\n", "ID", "TYPE", "STATUS", "SEGMENTS", "ELAPSED")
	fmt.Fprintln(out, "----------------------------------------------------------------")
	for _, job := range jobs {
		segments := ""
		if job.SegmentsTotal > 0 {
			segments = fmt.Sprintf("%d/%d", job.SegmentsDone, job.SegmentsTotal)
		}
		fmt.Fprintf(out, "%-10s %-14s %-11s %-10s %.1fs\n", job.JobID, job.Type, job.Status, segments, job.ElapsedSeconds)
	}
	return nil
}

func printJob(cmd *cobra.Command, job *client.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job: %s\n", job.JobID)
	fmt.Fprintf(out, "  Type: %s\n", job.Type)
	fmt.Fprintf(out, "  Source: %s\n", job.Source)
	fmt.Fprintf(out, "  Status: %s\n", job.Status)
	if job.SegmentsTotal > 0 {
		fmt.Fprintf(out, "  Segments: %d/%d\n", job.SegmentsDone, job.SegmentsTotal)
	}
	fmt.Fprintf(out, "  Elapsed: %.1fs\n", job.ElapsedSeconds)
	if job.ResultFile != "" {
		fmt.Fprintf(out, "  Result: %s\n", job.ResultFile)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", job.Error)
	}
}
