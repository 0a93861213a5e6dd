// Package audio holds decoded mono PCM and the WAV codec around it.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned when input is not a PCM WAV stream.
var ErrNotWAV = errors.New("not a PCM WAV file")

const bitDepth = 16

// PCM is mono signed 16-bit audio.
type PCM struct {
	SampleRate int
	Samples    []int16
}

// Duration returns the playing time of the buffer.
func (p *PCM) Duration() time.Duration {
	if p == nil || p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}

// Slice returns the samples in [start, start+length), clamped to the buffer.
// The returned PCM shares storage with p.
func (p *PCM) Slice(start, length time.Duration) *PCM {
	from := p.offset(start)
	to := p.offset(start + length)
	return &PCM{SampleRate: p.SampleRate, Samples: p.Samples[from:to]}
}

func (p *PCM) offset(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(int64(d) * int64(p.SampleRate) / int64(time.Second))
	return min(n, len(p.Samples))
}

// FrameRMS splits the buffer into frames of the given width and returns
// the root-mean-square amplitude of each. A trailing partial frame counts.
func (p *PCM) FrameRMS(frame time.Duration) []float64 {
	size := p.offset(frame)
	if size <= 0 || len(p.Samples) == 0 {
		return nil
	}
	out := make([]float64, 0, len(p.Samples)/size+1)
	for i := 0; i < len(p.Samples); i += size {
		end := min(i+size, len(p.Samples))
		var sum float64
		for _, s := range p.Samples[i:end] {
			v := float64(s)
			sum += v * v
		}
		out = append(out, math.Sqrt(sum/float64(end-i)))
	}
	return out
}

// LINEAR16 returns little-endian signed 16-bit sample bytes.
func (p *PCM) LINEAR16() []byte {
	b := make([]byte, 2*len(p.Samples))
	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

// Decode reads a PCM WAV stream, downmixing to mono and rescaling to 16 bits.
func Decode(r io.ReadSeeker) (*PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: unsupported encoding %d", ErrNotWAV, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	channels := int(dec.NumChans)
	if channels <= 0 {
		return nil, fmt.Errorf("%w: no channels", ErrNotWAV)
	}

	shift := int(dec.BitDepth) - bitDepth
	frames := len(buf.Data) / channels
	samples := make([]int16, frames)
	for i := range frames {
		var sum int
		for c := range channels {
			v := buf.Data[i*channels+c]
			if dec.BitDepth == 8 {
				v = (v - 128) << 8
			} else if shift > 0 {
				v >>= shift
			}
			sum += v
		}
		samples[i] = clamp16(sum / channels)
	}
	return &PCM{SampleRate: int(dec.SampleRate), Samples: samples}, nil
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Encode writes p as a 16-bit mono PCM WAV stream.
func (p *PCM) Encode(w io.WriteSeeker) error {
	enc := wav.NewEncoder(w, p.SampleRate, bitDepth, 1, 1)
	data := make([]int, len(p.Samples))
	for i, s := range p.Samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: p.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}

// WriteFile writes p to path as WAV.
func (p *PCM) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func clamp16(v int) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
