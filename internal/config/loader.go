package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":           {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":           {"whisper", "openai", "deepgram"},
	"tts":           {"elevenlabs", "coqui"},
	"pronunciation": {"phonetic", "azure"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
	}

	// Conversational models
	if len(cfg.Providers.LLM) == 0 {
		slog.Warn("no conversational model configured; every tutor reply will fail")
	}
	ids := make(map[string]int, len(cfg.Providers.LLM))
	for i, m := range cfg.Providers.LLM {
		prefix := fmt.Sprintf("providers.llm[%d]", i)
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName("llm", m.Name)
		if prev, ok := ids[m.ModelID()]; ok {
			errs = append(errs, fmt.Errorf("%s id %q is a duplicate of providers.llm[%d]", prefix, m.ModelID(), prev))
		}
		ids[m.ModelID()] = i
	}

	// Speech backends
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, t := range cfg.Providers.TTS {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts[%d].name is required", i))
			continue
		}
		validateProviderName("tts", t.Name)
	}
	validateProviderName("pronunciation", cfg.Providers.Pronunciation.Name)
	if cfg.Providers.Pronunciation.Name == "phonetic" && cfg.Providers.STT.Name == "" {
		errs = append(errs, fmt.Errorf("providers.pronunciation %q requires providers.stt", "phonetic"))
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; audio input will be rejected")
	}

	// Tutor
	t := cfg.Tutor
	if t.AdapterTimeout < 0 {
		errs = append(errs, fmt.Errorf("tutor.adapter_timeout %s must not be negative", t.AdapterTimeout))
	}
	if t.Temperature < 0 || t.Temperature > 2 {
		errs = append(errs, fmt.Errorf("tutor.temperature %.2f is out of range [0, 2]", t.Temperature))
	}
	if t.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("tutor.max_tokens %d must not be negative", t.MaxTokens))
	}
	if t.SynthesisCacheSize < 0 {
		errs = append(errs, fmt.Errorf("tutor.synthesis_cache_size %d must not be negative", t.SynthesisCacheSize))
	}
	if t.PreferredModel != "" {
		if _, ok := ids[t.PreferredModel]; !ok {
			errs = append(errs, fmt.Errorf("tutor.preferred_model %q does not name an entry of providers.llm", t.PreferredModel))
		}
	}
	cb := t.CircuitBreaker
	if cb.MaxFailures < 0 || cb.ResetTimeout < 0 || cb.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("tutor.circuit_breaker values must not be negative"))
	}

	// Learners
	if cfg.Learners.PostgresDSN == "" {
		slog.Warn("learners.postgres_dsn is empty; learner profiles and usage are kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
