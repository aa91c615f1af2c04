// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider wraps a transcription service (a local whisper.cpp server, the
// OpenAI transcription API, Deepgram) and turns one complete learner
// recording into a [types.TranscriptionResult]. Recordings are handed over in
// the canonical form produced by audio.Normalize: a 16 kHz mono 16-bit PCM
// WAV file.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/lingoxa/pkg/types"
)

// ErrEmptyAudio is returned when Transcribe is called without audio.
var ErrEmptyAudio = errors.New("stt: audio must not be empty")

// DefaultLanguage is used when [Options.Language] is empty.
const DefaultLanguage = "en"

// Options tunes a single transcription.
type Options struct {
	// WithTimestamps requests per-word timing. Providers that cannot produce
	// timestamps leave [types.TranscriptionResult.Words] empty.
	WithTimestamps bool

	// Language is the BCP-47 language tag to recognise. Empty means
	// [DefaultLanguage]; learners practise English.
	Language string
}

// LanguageOrDefault returns o.Language or [DefaultLanguage].
func (o Options) LanguageOrDefault() string {
	if o.Language == "" {
		return DefaultLanguage
	}
	return o.Language
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises the speech in audio, a complete canonical WAV
	// recording. The returned result has Confidence clamped to [0, 1] and a
	// non-negative ProcessingTimeMs. A recording without recognisable speech
	// yields an empty Text and no error.
	Transcribe(ctx context.Context, audio []byte, opts Options) (*types.TranscriptionResult, error)
}
