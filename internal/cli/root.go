// Package cli provides the command-line interface for streamscribe.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/streamscribe/internal/client"
	"github.com/raphaelgruber/streamscribe/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global config, set in PersistentPreRunE
	cfg         config.Config
	closeLogger func() error
)

// rootCmd transcribes synchronously when given a source flag.
var rootCmd = &cobra.Command{
	Use:   "streamscribe",
	Short: "Transcribe YouTube videos, live streams, audio streams and files",
	Long: `Streamscribe turns spoken audio into text.

Give exactly one source: a YouTube URL, a direct audio stream URL, or a
local audio file. Live and direct streams are captured for --duration
seconds. Long audio is split into segments and recognized concurrently.

Examples:
  streamscribe --youtube https://www.youtube.com/watch?v=dQw4w9WgXcQ
  streamscribe --youtube https://youtu.be/live123 --live --duration 300
  streamscribe --stream https://radio.example.com/live.mp3 --json
  streamscribe --audio interview.wav --output interview.txt

Remote job service:
  streamscribe submit https://youtu.be/dQw4w9WgXcQ --wait
  streamscribe jobs`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, closeFn := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)
		closeLogger = closeFn
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogger != nil {
			if err := closeLogger(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
	RunE: runTranscribe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "job service URL (default $STREAMSCRIBE_SERVER_URL or http://localhost:5000)")

	registerTranscribeFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
}

// apiClient returns a job service client for the remote subcommands.
func apiClient() *client.Client {
	url := serverURL
	if url == "" {
		url = cfg.ServerURL
	}
	return client.New(url)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "streamscribe %s\n", Version)
	},
}
