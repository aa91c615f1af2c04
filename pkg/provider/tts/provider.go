// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider turns one tutor reply into a complete WAV clip that the
// learner's client can play back. Implementations must be safe for concurrent
// use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when Synthesize is called without any text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and returns a WAV file.
	// An empty voice selects the provider's default voice.
	//
	// Returns an error wrapping ErrEmptyText for blank input, or the backend
	// error if synthesis fails or ctx is cancelled.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
