package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var downloadOutput string

var downloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Download the result document of a completed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var buf bytes.Buffer
		name, err := apiClient().Download(cmd.Context(), args[0], &buf)
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}

		path := downloadOutput
		if path == "" {
			path = name
		}
		if path == "-" {
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		}
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output file, - for stdout (default: server file name)")
	rootCmd.AddCommand(downloadCmd)
}
