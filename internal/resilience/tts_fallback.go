package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/lingoxa/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in the order they are tried.
func (f *TTSFallback) Names() []string {
	return f.group.Names()
}

// Synthesize renders text with the first healthy backend. Blank text is
// rejected before any backend is called so it never trips a breaker.
func (f *TTSFallback) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("resilience: %w", tts.ErrEmptyText)
	}
	wav, name, err := ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("speech synthesised", "provider", name, "bytes", len(wav))
	return wav, nil
}
