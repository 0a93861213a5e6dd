package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/streamscribe/internal/audio"
	"github.com/raphaelgruber/streamscribe/internal/media"
	"github.com/raphaelgruber/streamscribe/internal/metrics"
	"github.com/raphaelgruber/streamscribe/internal/models"
	"github.com/raphaelgruber/streamscribe/internal/speech"
)

const testRate = 8000

// levelService answers by the DC level of the buffer, so segments can be
// told apart regardless of completion order.
type levelService struct {
	mu    sync.Mutex
	calls int
	texts map[int16]string
}

func (s *levelService) Recognize(_ context.Context, pcm *audio.PCM) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	level := pcm.Samples[len(pcm.Samples)-1]
	text, ok := s.texts[level]
	if !ok || text == "" {
		return "", speech.ErrNoSpeech
	}
	return text, nil
}

type fakeTranscoder struct {
	pcm *audio.PCM
	err error
	in  string
}

func (f *fakeTranscoder) ToWAV(_ context.Context, in, out string) error {
	f.in = in
	if f.err != nil {
		return f.err
	}
	return f.pcm.WriteFile(out)
}

// levels builds audio made of 30s blocks at the given DC levels.
func levels(width time.Duration, values ...int16) *audio.PCM {
	per := int(width * testRate / time.Second)
	p := &audio.PCM{SampleRate: testRate}
	for _, v := range values {
		for range per {
			p.Samples = append(p.Samples, v)
		}
	}
	return p
}

func writeWAV(t *testing.T, p *audio.PCM) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	require.NoError(t, p.WriteFile(path))
	return path
}

func TestAggregate(t *testing.T) {
	segs := []models.Segment{
		{Index: 0, Outcome: &models.Outcome{Kind: models.OutcomeSuccess, Text: "a"}},
		{Index: 1, Outcome: &models.Outcome{Kind: models.OutcomeSuccess, Text: "b"}},
		{Index: 2, Outcome: &models.Outcome{Kind: models.OutcomeNoSpeech}},
	}
	assert.Equal(t, "a b", Aggregate(segs))

	segs[0].Outcome = &models.Outcome{Kind: models.OutcomeServiceError, Detail: "503"}
	assert.Equal(t, "b", Aggregate(segs))
	assert.Empty(t, Aggregate(nil))
}

func TestTranscribeChunkedPreservesOrder(t *testing.T) {
	svc := &levelService{texts: map[int16]string{1000: "a", 2000: "b", 3000: ""}}
	m := metrics.NewCollector()
	eng := NewEngine(&fakeTranscoder{}, svc, speech.DefaultSettings(), WithConcurrency(3), WithMetrics(m))

	var mu sync.Mutex
	var progress []int
	work := t.TempDir()
	res, err := eng.Transcribe(context.Background(), Request{
		JobID:    "job1",
		Kind:     models.SourceAudioFile,
		Artifact: models.AudioArtifact{Path: writeWAV(t, levels(30*time.Second, 1000, 2000, 3000)), Format: models.FormatRaw},
		WorkDir:  work,
		OnProgress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 3, total)
			progress = append(progress, done)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "a b", res.Text)
	assert.True(t, res.Chunked)
	require.Len(t, res.Segments, 3)
	assert.Equal(t, models.OutcomeNoSpeech, res.Segments[2].Outcome.Kind)
	assert.ElementsMatch(t, []int{1, 2, 3}, progress)
	require.NotNil(t, res.Artifact.Duration)
	assert.Equal(t, 90*time.Second, *res.Artifact.Duration)
	assert.Equal(t, 3, svc.calls)

	for _, seg := range res.Segments {
		assert.FileExists(t, seg.Path)
	}
	assert.Equal(t, int64(2), m.Snapshot().Segments["success"])
}

func TestTranscribeAllSegmentsFail(t *testing.T) {
	svc := &levelService{texts: map[int16]string{}}
	eng := NewEngine(&fakeTranscoder{}, svc, speech.DefaultSettings())

	_, err := eng.Transcribe(context.Background(), Request{
		Kind:     models.SourceAudioFile,
		Artifact: models.AudioArtifact{Path: writeWAV(t, levels(30*time.Second, 1000, 2000)), Format: models.FormatRaw},
		WorkDir:  t.TempDir(),
	})
	assert.ErrorIs(t, err, ErrNoTranscript)
}

func TestTranscribeSilentSegmentsReachService(t *testing.T) {
	svc := &levelService{texts: map[int16]string{1000: "a"}}
	eng := NewEngine(&fakeTranscoder{}, svc, speech.DefaultSettings())

	res, err := eng.Transcribe(context.Background(), Request{
		Kind:     models.SourceAudioFile,
		Artifact: models.AudioArtifact{Path: writeWAV(t, levels(30*time.Second, 0, 1000, 0)), Format: models.FormatRaw},
		WorkDir:  t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, "a", res.Text)
	assert.Equal(t, 3, svc.calls, "every segment is sent regardless of energy")
}

func TestTranscribeWholeFileSteadySpeech(t *testing.T) {
	// Speech from the first sample onward raises the calibrated threshold,
	// which must not keep the audio from the service.
	svc := &levelService{texts: map[int16]string{2000: "hello world"}}
	eng := NewEngine(&fakeTranscoder{}, svc, speech.DefaultSettings())

	res, err := eng.Transcribe(context.Background(), Request{
		Kind:     models.SourceYouTubeVideo,
		Artifact: models.AudioArtifact{Path: writeWAV(t, levels(20*time.Second, 2000)), Format: models.FormatRaw},
		WorkDir:  t.TempDir(),
	})
	require.NoError(t, err)
	assert.False(t, res.Chunked)
	assert.Equal(t, "hello world", res.Text)
	assert.Equal(t, 1, svc.calls)
}

func TestTranscribeQuietFileReachesService(t *testing.T) {
	svc := &levelService{texts: map[int16]string{250: "quiet words"}}
	eng := NewEngine(&fakeTranscoder{}, svc, speech.DefaultSettings())

	res, err := eng.Transcribe(context.Background(), Request{
		Kind:     models.SourceAudioFile,
		Artifact: models.AudioArtifact{Path: writeWAV(t, levels(30*time.Second, 250, 250)), Format: models.FormatRaw},
		WorkDir:  t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, "quiet words quiet words", res.Text)
	assert.Equal(t, 2, svc.calls)
}

func TestTranscribeTranscodesCompressed(t *testing.T) {
	// One second of silence for calibration, then speech-level audio.
	pcm := levels(time.Second, 0, 1000, 1000)
	tc := &fakeTranscoder{pcm: pcm}
	svc := &levelService{texts: map[int16]string{1000: "hello world"}}
	eng := NewEngine(tc, svc, speech.DefaultSettings())

	work := t.TempDir()
	res, err := eng.Transcribe(context.Background(), Request{
		Kind:     models.SourceYouTubeVideo,
		Artifact: models.AudioArtifact{Path: "/downloads/video_audio.mp3", Format: models.FormatCompressed},
		WorkDir:  work,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello world", res.Text)
	assert.False(t, res.Chunked, "short video is transcribed whole")
	assert.Equal(t, "/downloads/video_audio.mp3", tc.in)
	assert.Equal(t, filepath.Join(work, "normalized.wav"), res.Artifact.Path)
	assert.Equal(t, models.FormatRaw, res.Artifact.Format)
}

func TestTranscribeWholeFileFailureIsTerminal(t *testing.T) {
	svc := &levelService{texts: map[int16]string{}}
	eng := NewEngine(&fakeTranscoder{pcm: levels(time.Second, 0, 1000)}, svc, speech.DefaultSettings())

	_, err := eng.Transcribe(context.Background(), Request{
		Kind:      models.SourceDirectStream,
		Requested: 60 * time.Second,
		Artifact:  models.AudioArtifact{Path: "stream.mp3", Format: models.FormatCompressed},
		WorkDir:   t.TempDir(),
	})
	assert.ErrorIs(t, err, ErrNoTranscript)
}

func TestTranscribeTranscodeFailure(t *testing.T) {
	tc := &fakeTranscoder{err: &media.CommandError{Err: errors.New("exit status 1")}}
	eng := NewEngine(tc, &levelService{}, speech.DefaultSettings())

	_, err := eng.Transcribe(context.Background(), Request{
		Kind:     models.SourceYouTubeVideo,
		Artifact: models.AudioArtifact{Path: "broken.mp3", Format: models.FormatCompressed},
		WorkDir:  t.TempDir(),
	})
	require.Error(t, err)
	var cmdErr *media.CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestTranscribeRawFallsBackToTranscode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.wav")
	require.NoError(t, os.WriteFile(path, []byte("not really a wav"), 0o644))

	tc := &fakeTranscoder{pcm: levels(30*time.Second, 1000)}
	eng := NewEngine(tc, &levelService{texts: map[int16]string{1000: "ok"}}, speech.DefaultSettings())

	res, err := eng.Transcribe(context.Background(), Request{
		Kind:     models.SourceAudioFile,
		Artifact: models.AudioArtifact{Path: path, Format: models.FormatRaw},
		WorkDir:  t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, path, tc.in)
	assert.Equal(t, "ok", res.Text)
}

func TestTranscribeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := NewEngine(&fakeTranscoder{}, &levelService{texts: map[int16]string{1000: "a"}}, speech.DefaultSettings())
	_, err := eng.Transcribe(ctx, Request{
		Kind:     models.SourceAudioFile,
		Artifact: models.AudioArtifact{Path: writeWAV(t, levels(30*time.Second, 1000, 1000)), Format: models.FormatRaw},
		WorkDir:  t.TempDir(),
	})
	assert.ErrorIs(t, err, context.Canceled)
}
