package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/streamscribe/internal/client"
	"github.com/raphaelgruber/streamscribe/internal/models"
)

var (
	submitType     string
	submitDuration int
	submitWait     bool
	uploadWait     bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <url>",
	Short: "Start a transcription job on the job service",
	Long: `Submit a YouTube or direct stream URL to streamscribe-server.

Examples:
  streamscribe submit https://youtu.be/dQw4w9WgXcQ
  streamscribe submit https://youtu.be/live123 --type youtube_live --duration 300 --wait
  streamscribe submit https://radio.example.com/live.mp3 --type direct_stream`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().SubmitURL(cmd.Context(), args[0], submitType, submitDuration)
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		return followJob(cmd, resp, submitWait)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an audio file to the job service and transcribe it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().Upload(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		return followJob(cmd, resp, uploadWait)
	},
}

func init() {
	submitCmd.Flags().StringVarP(&submitType, "type", "t", string(models.SourceYouTubeVideo), "youtube_video, youtube_live or direct_stream")
	submitCmd.Flags().IntVarP(&submitDuration, "duration", "d", models.DefaultCaptureSeconds, "seconds to capture from live and direct streams")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "wait for the job to finish")
	uploadCmd.Flags().BoolVarP(&uploadWait, "wait", "w", false, "wait for the job to finish")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(uploadCmd)
}

// followJob prints the submission and, with wait, follows the job to its end.
func followJob(cmd *cobra.Command, resp *client.SubmitResponse, wait bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %s: %s\n", resp.JobID, resp.Message)
	if !wait {
		fmt.Fprintf(out, "Use 'streamscribe jobs %s' to check status.\n", resp.JobID)
		return nil
	}

	c := apiClient()
	if term.IsTerminal(int(os.Stdout.Fd())) {
		final, err := RunJobProgress(c, &client.Job{JobID: resp.JobID, Status: resp.Status})
		if err != nil || final == nil {
			return err
		}
	} else {
		final, err := c.WaitForJob(cmd.Context(), resp.JobID, pollInterval)
		if err != nil {
			return fmt.Errorf("wait for job: %w", err)
		}
		if final.Status == "failed" {
			return fmt.Errorf("job %s failed: %s", final.JobID, final.Error)
		}
	}

	res, err := c.GetResult(cmd.Context(), resp.JobID)
	if err != nil {
		return fmt.Errorf("fetch result: %w", err)
	}
	printPreview(out, res.Text)
	return nil
}
