// Package config provides the configuration schema, loader, hot-reload watcher
// and provider registry for the Lingoxa tutor.
package config

import (
	"time"

	"github.com/MrWong99/lingoxa/pkg/types"
)

// LogLevel controls log verbosity for the Lingoxa server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Lingoxa.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Tutor     TutorConfig     `yaml:"tutor"`
	Learners  LearnersConfig  `yaml:"learners"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health and metrics endpoint
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the backends of every pipeline stage. Each entry
// selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// LLM is the ordered conversational model registry. Order is the fallback
	// order of the router.
	LLM []ModelEntry `yaml:"llm"`

	STT ProviderEntry `yaml:"stt"`

	// TTS lists the synthesis backends; the first is primary and the rest are
	// fallbacks in order.
	TTS []ProviderEntry `yaml:"tts"`

	Pronunciation ProviderEntry `yaml:"pronunciation"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// ModelEntry is one conversational model in the router registry.
type ModelEntry struct {
	// ID is the router registration ID. Empty means Name.
	ID string `yaml:"id"`

	ProviderEntry `yaml:",inline"`
}

// ModelID returns the registration ID of e.
func (e ModelEntry) ModelID() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}

// TutorConfig holds the orchestration settings. The fields marked
// hot-reloadable take effect without a restart.
type TutorConfig struct {
	// AdapterTimeout bounds every single backend call. Hot-reloadable for
	// transcription, pronunciation and synthesis. Default: 10s.
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`

	// Temperature of tutor replies, in [0, 2]. Hot-reloadable. Zero means 0.7.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps reply length. Hot-reloadable. Zero leaves the model default.
	MaxTokens int `yaml:"max_tokens"`

	// PreferredModel is tried first for every reply. Must name an entry of
	// providers.llm. Hot-reloadable.
	PreferredModel string `yaml:"preferred_model"`

	// SystemPrompt overrides the tutor persona. Hot-reloadable.
	SystemPrompt string `yaml:"system_prompt"`

	// VoiceID selects the synthesis voice. Empty uses the backend default.
	VoiceID string `yaml:"voice_id"`

	// Language is the transcription language. Default: en.
	Language string `yaml:"language"`

	// SynthesisCacheSize bounds the number of cached reply clips. Default: 512.
	SynthesisCacheSize int `yaml:"synthesis_cache_size"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the per-model circuit breakers. Zero values use
// the breaker defaults.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// LearnersConfig configures the learner profile store.
type LearnersConfig struct {
	// PostgresDSN selects the PostgreSQL profile store. Empty uses an
	// in-memory store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// DefaultLevel is used for learners without a stored profile. Default: A2.
	DefaultLevel types.Level `yaml:"default_level"`
}
