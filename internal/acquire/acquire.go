// Package acquire obtains a local audio artifact for each source kind by
// driving yt-dlp and ffmpeg.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/streamscribe/internal/media"
	"github.com/raphaelgruber/streamscribe/internal/models"
)

// ErrAcquisitionFailed matches every *Error.
var ErrAcquisitionFailed = errors.New("acquisition failed")

// Error describes why audio could not be obtained.
type Error struct {
	Reason string
	Log    *media.CommandLog
	Err    error
}

func (e *Error) Error() string {
	msg := "acquisition failed: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrAcquisitionFailed) hold for any *Error.
func (e *Error) Is(target error) bool { return target == ErrAcquisitionFailed }

// Request describes what to acquire.
type Request struct {
	Kind         models.SourceKind
	Ref          string
	DurationHint int    // seconds; capture kinds only
	WorkDir      string // job-owned directory for downloaded audio

	// OnLog receives every command this request runs, in addition to the
	// acquirer's own OnLog.
	OnLog func(media.CommandLog)
}

// CaptureSeconds returns the requested capture length or the default.
func (r Request) CaptureSeconds() int {
	if r.DurationHint > 0 {
		return r.DurationHint
	}
	return models.DefaultCaptureSeconds
}

// Acquirer produces a local audio artifact.
type Acquirer interface {
	Acquire(ctx context.Context, req Request) (models.AudioArtifact, error)
}

const (
	primaryFormat  = "bestaudio/best"
	fallbackFormat = "140/bestaudio"
)

// ToolAcquirer implements Acquirer with yt-dlp and ffmpeg.
type ToolAcquirer struct {
	YtDLPath   string
	FFmpegPath string
	Runner     media.Runner
	OnLog      func(media.CommandLog)

	now func() time.Time
}

// NewToolAcquirer returns an acquirer that executes real binaries.
func NewToolAcquirer(ytdlPath, ffmpegPath string) *ToolAcquirer {
	return &ToolAcquirer{
		YtDLPath:   ytdlPath,
		FFmpegPath: ffmpegPath,
		Runner:     media.ExecRunner{},
		now:        time.Now,
	}
}

// Acquire dispatches on req.Kind.
func (a *ToolAcquirer) Acquire(ctx context.Context, req Request) (models.AudioArtifact, error) {
	switch req.Kind {
	case models.SourceAudioFile:
		return localFile(req.Ref)
	case models.SourceYouTubeVideo:
		return a.downloadVideo(ctx, req)
	case models.SourceYouTubeLive:
		streamURL, err := a.resolveLive(ctx, req)
		if err != nil {
			return models.AudioArtifact{}, err
		}
		return a.capture(ctx, streamURL, req)
	case models.SourceDirectStream:
		return a.capture(ctx, req.Ref, req)
	default:
		return models.AudioArtifact{}, &Error{Reason: fmt.Sprintf("unsupported source kind %q", req.Kind)}
	}
}

// downloadVideo fetches the full audio track. Not retried.
func (a *ToolAcquirer) downloadVideo(ctx context.Context, req Request) (models.AudioArtifact, error) {
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return models.AudioArtifact{}, &Error{Reason: "cannot create work directory", Err: err}
	}

	base := "video_audio_" + a.stamp()
	template := filepath.Join(req.WorkDir, base+".%(ext)s")
	args := []string{
		"--format", primaryFormat,
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--no-playlist",
		"--no-warnings",
		"--output", template,
		req.Ref,
	}
	log, err := media.Invoke(ctx, a.Runner, a.logFunc(req), a.YtDLPath, args...)
	if err != nil {
		return models.AudioArtifact{}, &Error{Reason: "video download failed", Log: &log, Err: err}
	}

	path := filepath.Join(req.WorkDir, base+".mp3")
	if _, err := os.Stat(path); err != nil {
		return models.AudioArtifact{}, &Error{Reason: "downloader produced no audio file", Log: &log, Err: err}
	}
	return models.AudioArtifact{Path: path, Format: models.FormatCompressed}, nil
}

// resolveLive turns a YouTube live URL into a direct stream URL. The
// fallback format selector is tried exactly once.
func (a *ToolAcquirer) resolveLive(ctx context.Context, req Request) (string, error) {
	var lastLog media.CommandLog
	var lastErr error
	for _, format := range []string{primaryFormat, fallbackFormat} {
		log, err := media.Invoke(ctx, a.Runner, a.logFunc(req), a.YtDLPath,
			"--format", format, "--get-url", "--no-warnings", req.Ref)
		lastLog = log
		if err == nil {
			if u := firstLine(log.Stdout); u != "" {
				return u, nil
			}
			err = errors.New("no stream URL in output")
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", &Error{Reason: "could not resolve live stream URL", Log: &lastLog, Err: lastErr}
}

// capture records exactly CaptureSeconds from url. Not retried.
func (a *ToolAcquirer) capture(ctx context.Context, url string, req Request) (models.AudioArtifact, error) {
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return models.AudioArtifact{}, &Error{Reason: "cannot create work directory", Err: err}
	}

	out := filepath.Join(req.WorkDir, "stream_audio_"+a.stamp()+".mp3")
	ff := &media.FFmpeg{Path: a.FFmpegPath, Runner: a.Runner, OnLog: a.logFunc(req)}
	log, err := ff.Capture(ctx, url, req.CaptureSeconds(), out)
	if err != nil {
		return models.AudioArtifact{}, &Error{Reason: "stream capture failed", Log: &log, Err: err}
	}
	if _, err := os.Stat(out); err != nil {
		return models.AudioArtifact{}, &Error{Reason: "capture produced no audio file", Log: &log, Err: err}
	}
	return models.AudioArtifact{Path: out, Format: models.FormatCompressed}, nil
}

// logFunc combines the acquirer-wide and per-request log callbacks.
func (a *ToolAcquirer) logFunc(req Request) func(media.CommandLog) {
	switch {
	case a.OnLog == nil:
		return req.OnLog
	case req.OnLog == nil:
		return a.OnLog
	default:
		return func(l media.CommandLog) {
			a.OnLog(l)
			req.OnLog(l)
		}
	}
}

func localFile(path string) (models.AudioArtifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.AudioArtifact{}, &Error{Reason: "audio file not accessible", Err: err}
	}
	if !info.Mode().IsRegular() {
		return models.AudioArtifact{}, &Error{Reason: fmt.Sprintf("%s is not a regular file", path)}
	}
	format := models.FormatCompressed
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		format = models.FormatRaw
	}
	return models.AudioArtifact{Path: path, Format: format}, nil
}

func (a *ToolAcquirer) stamp() string {
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	return now().Format("20060102_150405")
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
