// Package speech turns tutor replies into playable audio.
//
// A [Synthesizer] sits in front of a [tts.Provider] and keeps recently
// rendered clips in a [Cache], so phrases a learner replays (model answers,
// corrections, lesson prompts) are synthesised only once.
package speech

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/lingoxa/internal/observe"
	"github.com/MrWong99/lingoxa/pkg/provider/tts"
)

// Option configures a [Synthesizer].
type Option func(*Synthesizer)

// WithCache replaces the default LRU cache.
func WithCache(c Cache) Option {
	return func(s *Synthesizer) {
		s.cache = c
	}
}

// WithVoice sets the voice passed to the backend.
func WithVoice(voice string) Option {
	return func(s *Synthesizer) {
		s.voice = voice
	}
}

// WithMetrics records synthesis latency and cache lookups.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Synthesizer) {
		s.metrics = m
	}
}

// WithProviderName sets the provider label used on metrics.
func WithProviderName(name string) Option {
	return func(s *Synthesizer) {
		s.name = name
	}
}

// Synthesizer renders text through a TTS backend with a clip cache in front.
// It is safe for concurrent use.
type Synthesizer struct {
	provider tts.Provider
	cache    Cache
	voice    string
	name     string
	metrics  *observe.Metrics
}

// New creates a Synthesizer over provider. Without [WithCache] an LRU cache
// of [DefaultCacheSize] clips is used.
func New(provider tts.Provider, opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{provider: provider, name: "tts"}
	for _, o := range opts {
		o(s)
	}
	if s.cache == nil {
		c, err := NewLRUCache(DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = c
	}
	return s, nil
}

// GetCached returns the clip stored under key, if any. An empty key never
// matches.
func (s *Synthesizer) GetCached(key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}
	return s.cache.Get(key)
}

// Synthesize returns the clip for text. When cacheKey is non-empty a cached
// clip is returned without calling the backend, and a fresh clip is stored
// under cacheKey.
func (s *Synthesizer) Synthesize(ctx context.Context, text, cacheKey string) ([]byte, error) {
	audio, _, err := s.SynthesizeCached(ctx, text, cacheKey)
	return audio, err
}

// SynthesizeCached is [Synthesizer.Synthesize] that also reports whether the
// clip came from the cache.
func (s *Synthesizer) SynthesizeCached(ctx context.Context, text, cacheKey string) ([]byte, bool, error) {
	if cacheKey != "" {
		audio, ok := s.cache.Get(cacheKey)
		if s.metrics != nil {
			s.metrics.RecordCacheLookup(ctx, ok)
		}
		if ok {
			return audio, true, nil
		}
	}

	ctx, span := observe.StartSpan(ctx, "speech.synthesize")
	defer span.End()

	start := time.Now()
	audio, err := s.provider.Synthesize(ctx, text, s.voice)
	s.record(ctx, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("speech: synthesize: %w", err)
	}

	if cacheKey != "" {
		s.cache.Set(cacheKey, audio)
	}
	return audio, false, nil
}

// Evict drops the clip stored under key.
func (s *Synthesizer) Evict(key string) bool {
	return s.cache.Evict(key)
}

func (s *Synthesizer) record(ctx context.Context, d time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.TTSDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", s.name)))
	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.RecordProviderError(ctx, s.name, observe.KindTTS)
	}
	s.metrics.RecordProviderRequest(ctx, s.name, observe.KindTTS, status)
}
