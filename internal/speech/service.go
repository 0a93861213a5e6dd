// Package speech turns PCM audio into text through a hosted recognition
// service.
package speech

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/streamscribe/internal/audio"
)

// ErrNoSpeech means the audio contained nothing intelligible.
var ErrNoSpeech = errors.New("no speech detected")

// Service recognizes speech in one buffer.
type Service interface {
	Recognize(ctx context.Context, pcm *audio.PCM) (string, error)
}

// ServiceError is a failure of the recognition backend.
type ServiceError struct {
	StatusCode int // 0 when no response was received
	Detail     string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("speech service error (HTTP %d): %s", e.StatusCode, e.Detail)
	}
	return "speech service error: " + e.Detail
}

func (e *ServiceError) Unwrap() error { return e.Err }
