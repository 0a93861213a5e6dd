package audio

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(rate int, d time.Duration, amp float64) *PCM {
	n := int(d * time.Duration(rate) / time.Second)
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(amp * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return &PCM{SampleRate: rate, Samples: s}
}

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	src := tone(16000, 1500*time.Millisecond, 8000)

	require.NoError(t, src.WriteFile(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, got.SampleRate)
	assert.Equal(t, src.Samples, got.Samples)
	assert.Equal(t, 1500*time.Millisecond, got.Duration())
}

func TestDecodeRejectsNonWAV(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("ID3\x03\x00 definitely an mp3")))
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSliceClamps(t *testing.T) {
	p := &PCM{SampleRate: 10, Samples: make([]int16, 95)} // 9.5s

	assert.Len(t, p.Slice(0, 3*time.Second).Samples, 30)
	assert.Len(t, p.Slice(9*time.Second, 3*time.Second).Samples, 5)
	assert.Empty(t, p.Slice(20*time.Second, time.Second).Samples)
}

func TestFrameRMS(t *testing.T) {
	p := &PCM{SampleRate: 10, Samples: []int16{3, -3, 3, -3, 0, 0, 0, 0, 4}}
	rms := p.FrameRMS(400 * time.Millisecond) // 4 samples per frame

	require.Len(t, rms, 3)
	assert.InDelta(t, 3, rms[0], 1e-9)
	assert.InDelta(t, 0, rms[1], 1e-9)
	assert.InDelta(t, 4, rms[2], 1e-9)
}

func TestLINEAR16(t *testing.T) {
	p := &PCM{Samples: []int16{1, -2}}
	assert.Equal(t, []byte{0x01, 0x00, 0xfe, 0xff}, p.LINEAR16())
}
