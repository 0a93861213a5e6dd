package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/streamscribe/internal/metrics"
	"github.com/raphaelgruber/streamscribe/internal/models"
	"github.com/raphaelgruber/streamscribe/internal/service"
	"github.com/raphaelgruber/streamscribe/internal/store"
)

const (
	previewChars = 500
	previewRule  = "----------------------------------------"
)

var (
	youtubeRef string
	streamRef  string
	audioRef   string
	live       bool
	duration   int
	outputPath string
	asJSON     bool
	noCleanup  bool
)

func registerTranscribeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&youtubeRef, "youtube", "", "YouTube video or live stream URL")
	f.StringVar(&streamRef, "stream", "", "direct audio stream URL")
	f.StringVar(&audioRef, "audio", "", "local audio file")
	f.BoolVar(&live, "live", false, "treat the YouTube URL as a live stream")
	f.IntVar(&duration, "duration", models.DefaultCaptureSeconds, "seconds to capture from live and direct streams")
	f.StringVarP(&outputPath, "output", "o", "", "output file (default transcription_<timestamp>.txt)")
	f.BoolVar(&asJSON, "json", false, "write a JSON document with source, duration, timestamp and text")
	f.BoolVar(&noCleanup, "no-cleanup", false, "keep downloaded and intermediate audio files")
	cmd.MarkFlagsMutuallyExclusive("youtube", "stream", "audio")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	req, err := transcribeRequest(time.Now())
	if err != nil {
		if errors.Is(err, errNoSource) {
			return cmd.Help()
		}
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewCollector()
	jobs := service.NewJobManager(nil, nil, m)
	orch := service.NewPipeline(cfg, jobs, nil, m)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Transcribing %s ...\n", req.Ref)

	_, res, err := orch.RunSync(ctx, req)
	if res != nil && res.Text != "" {
		printPreview(out, res.Text)
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("interrupted: %w", err)
		}
		return err
	}
	fmt.Fprintf(out, "Transcript saved to %s\n", res.ArtifactPath)
	return nil
}

var errNoSource = errors.New("no source given")

// transcribeRequest maps the source flags onto a pipeline request.
func transcribeRequest(now time.Time) (service.Request, error) {
	if duration <= 0 {
		return service.Request{}, fmt.Errorf("--duration must be positive, got %d", duration)
	}

	req := service.Request{
		DurationHint:  duration,
		KeepArtifacts: noCleanup,
		Output:        service.OutputText,
		OutputPath:    outputPath,
	}

	switch {
	case youtubeRef != "":
		req.Ref = youtubeRef
		req.Kind = models.SourceYouTubeVideo
		if live {
			req.Kind = models.SourceYouTubeLive
		}
	case streamRef != "":
		req.Ref = streamRef
		req.Kind = models.SourceDirectStream
	case audioRef != "":
		req.Ref = audioRef
		req.Kind = models.SourceAudioFile
	default:
		return service.Request{}, errNoSource
	}
	if live && req.Kind != models.SourceYouTubeLive {
		return service.Request{}, errors.New("--live only applies to --youtube")
	}

	if req.OutputPath == "" {
		req.OutputPath = store.DefaultOutputName(now, asJSON)
	}
	if asJSON {
		req.Output = service.OutputJSON
		req.OutputPath = store.JSONPath(req.OutputPath)
	}
	return req, nil
}

// printPreview writes the first characters of the transcript between rules.
func printPreview(w io.Writer, text string) {
	fmt.Fprintln(w, previewRule)
	fmt.Fprintln(w, preview(text, previewChars))
	fmt.Fprintln(w, previewRule)
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
