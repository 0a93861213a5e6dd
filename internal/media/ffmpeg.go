package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrTranscodeFailed marks a failure to normalize audio to PCM WAV.
var ErrTranscodeFailed = errors.New("transcode failed")

// Transcoder normalizes audio into decode-ready WAV.
type Transcoder interface {
	ToWAV(ctx context.Context, in, out string) error
}

// FFmpeg implements Transcoder and stream capture with the ffmpeg binary.
type FFmpeg struct {
	Path   string
	Runner Runner
	OnLog  func(CommandLog)
}

// NewFFmpeg returns an FFmpeg using the given binary path and os/exec.
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path, Runner: ExecRunner{}}
}

// ToWAV re-encodes in as 16 kHz mono signed 16-bit PCM at out.
func (f *FFmpeg) ToWAV(ctx context.Context, in, out string) error {
	log, err := Invoke(ctx, f.Runner, f.OnLog, f.Path, TranscodeArgs(in, out)...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranscodeFailed, err)
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("%w: %s produced no output: %w", ErrTranscodeFailed, log.Command, err)
	}
	return nil
}

// Capture records seconds of audio from url into out as MP3.
func (f *FFmpeg) Capture(ctx context.Context, url string, seconds int, out string) (CommandLog, error) {
	return Invoke(ctx, f.Runner, f.OnLog, f.Path, CaptureArgs(url, seconds, out)...)
}

// TranscodeArgs builds ffmpeg args for mono 16k PCM WAV output.
func TranscodeArgs(in, out string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		out,
	}
}

// CaptureArgs builds ffmpeg args that stop strictly after seconds.
func CaptureArgs(url string, seconds int, out string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", url,
		"-t", strconv.Itoa(seconds),
		"-c:a", "libmp3lame",
		"-q:a", "3",
		out,
	}
}
