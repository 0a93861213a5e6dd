package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/streamscribe/internal/media"
	"github.com/raphaelgruber/streamscribe/internal/models"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls []call
	run   func(n int, name string, args []string) (media.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (media.Result, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.run == nil {
		return media.Result{}, nil
	}
	return f.run(len(f.calls), name, args)
}

func newTestAcquirer(r media.Runner) *ToolAcquirer {
	return &ToolAcquirer{
		YtDLPath:   "yt-dlp",
		FFmpegPath: "ffmpeg",
		Runner:     r,
		now:        func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) },
	}
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
}

func TestAcquireVideo(t *testing.T) {
	work := t.TempDir()
	r := &fakeRunner{run: func(_ int, _ string, args []string) (media.Result, error) {
		tmpl := argAfter(args, "--output")
		touch(t, strings.Replace(tmpl, "%(ext)s", "mp3", 1))
		return media.Result{}, nil
	}}

	art, err := newTestAcquirer(r).Acquire(context.Background(), Request{
		Kind: models.SourceYouTubeVideo, Ref: "https://youtu.be/abc123", WorkDir: work,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "video_audio_20260301_123000.mp3"), art.Path)
	assert.Equal(t, models.FormatCompressed, art.Format)
	require.Len(t, r.calls, 1)
	assert.Equal(t, "bestaudio/best", argAfter(r.calls[0].args, "--format"))
}

func TestAcquireVideoFailureNotRetried(t *testing.T) {
	r := &fakeRunner{run: func(int, string, []string) (media.Result, error) {
		return media.Result{ExitCode: 1, Stderr: "ERROR: Video unavailable"}, errors.New("exit status 1")
	}}

	_, err := newTestAcquirer(r).Acquire(context.Background(), Request{
		Kind: models.SourceYouTubeVideo, Ref: "https://youtu.be/abc123", WorkDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquisitionFailed)
	assert.Len(t, r.calls, 1)

	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	require.NotNil(t, acqErr.Log)
	assert.Equal(t, 1, acqErr.Log.ExitCode)
}

func TestAcquireLiveFallsBackOnce(t *testing.T) {
	work := t.TempDir()
	r := &fakeRunner{run: func(n int, name string, args []string) (media.Result, error) {
		switch n {
		case 1:
			return media.Result{ExitCode: 1}, errors.New("requested format not available")
		case 2:
			assert.Equal(t, "140/bestaudio", argAfter(args, "--format"))
			return media.Result{Stdout: "https://manifest.googlevideo.com/live.m3u8\n"}, nil
		default:
			assert.Equal(t, "ffmpeg", name)
			assert.Equal(t, "https://manifest.googlevideo.com/live.m3u8", argAfter(args, "-i"))
			assert.Equal(t, "90", argAfter(args, "-t"))
			touch(t, args[len(args)-1])
			return media.Result{}, nil
		}
	}}

	art, err := newTestAcquirer(r).Acquire(context.Background(), Request{
		Kind: models.SourceYouTubeLive, Ref: "https://www.youtube.com/watch?v=live1", DurationHint: 90, WorkDir: work,
	})
	require.NoError(t, err)
	assert.Len(t, r.calls, 3)
	assert.Equal(t, filepath.Join(work, "stream_audio_20260301_123000.mp3"), art.Path)
}

func TestAcquireLiveBothResolutionsFail(t *testing.T) {
	r := &fakeRunner{run: func(n int, _ string, _ []string) (media.Result, error) {
		if n == 1 {
			return media.Result{}, errors.New("boom")
		}
		return media.Result{Stdout: "  \n"}, nil
	}}

	_, err := newTestAcquirer(r).Acquire(context.Background(), Request{
		Kind: models.SourceYouTubeLive, Ref: "https://www.youtube.com/watch?v=live1", WorkDir: t.TempDir(),
	})
	require.ErrorIs(t, err, ErrAcquisitionFailed)
	assert.Len(t, r.calls, 2, "exactly one fallback, no capture")
}

func TestAcquireDirectStreamDefaultDuration(t *testing.T) {
	r := &fakeRunner{run: func(_ int, _ string, args []string) (media.Result, error) {
		touch(t, args[len(args)-1])
		return media.Result{}, nil
	}}

	_, err := newTestAcquirer(r).Acquire(context.Background(), Request{
		Kind: models.SourceDirectStream, Ref: "https://cdn.example.com/a.m3u8", WorkDir: t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, r.calls, 1)
	assert.Equal(t, "120", argAfter(r.calls[0].args, "-t"))
}

func TestAcquireDirectStreamCaptureFails(t *testing.T) {
	r := &fakeRunner{run: func(int, string, []string) (media.Result, error) {
		return media.Result{ExitCode: 8, Stderr: "Connection refused"}, errors.New("exit status 8")
	}}

	_, err := newTestAcquirer(r).Acquire(context.Background(), Request{
		Kind: models.SourceDirectStream, Ref: "https://cdn.example.com/a.m3u8", WorkDir: t.TempDir(),
	})
	require.ErrorIs(t, err, ErrAcquisitionFailed)
	assert.Contains(t, err.Error(), "Connection refused")
	assert.Len(t, r.calls, 1)
}

func TestAcquireLocalFile(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "a.WAV")
	mp3 := filepath.Join(dir, "b.mp3")
	touch(t, wav)
	touch(t, mp3)

	a := newTestAcquirer(&fakeRunner{})

	art, err := a.Acquire(context.Background(), Request{Kind: models.SourceAudioFile, Ref: wav})
	require.NoError(t, err)
	assert.Equal(t, models.FormatRaw, art.Format)
	assert.Equal(t, wav, art.Path)

	art, err = a.Acquire(context.Background(), Request{Kind: models.SourceAudioFile, Ref: mp3})
	require.NoError(t, err)
	assert.Equal(t, models.FormatCompressed, art.Format)

	_, err = a.Acquire(context.Background(), Request{Kind: models.SourceAudioFile, Ref: filepath.Join(dir, "missing.mp3")})
	assert.ErrorIs(t, err, ErrAcquisitionFailed)
}

func TestAcquireReportsLogs(t *testing.T) {
	var logs []media.CommandLog
	a := newTestAcquirer(&fakeRunner{run: func(_ int, _ string, args []string) (media.Result, error) {
		touch(t, args[len(args)-1])
		return media.Result{}, nil
	}})
	a.OnLog = func(l media.CommandLog) { logs = append(logs, l) }

	_, err := a.Acquire(context.Background(), Request{
		Kind: models.SourceDirectStream, Ref: "https://cdn.example.com/a.m3u8", WorkDir: t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "ffmpeg", logs[0].Command)
}
