package main

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/lingoxa/internal/app"
	"github.com/MrWong99/lingoxa/internal/config"
	"github.com/MrWong99/lingoxa/pkg/provider/llm"
	"github.com/MrWong99/lingoxa/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/lingoxa/pkg/provider/llm/openai"
	"github.com/MrWong99/lingoxa/pkg/provider/pronunciation"
	"github.com/MrWong99/lingoxa/pkg/provider/pronunciation/azure"
	"github.com/MrWong99/lingoxa/pkg/provider/pronunciation/phonetic"
	"github.com/MrWong99/lingoxa/pkg/provider/stt"
	"github.com/MrWong99/lingoxa/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/lingoxa/pkg/provider/stt/openai"
	"github.com/MrWong99/lingoxa/pkg/provider/stt/whisper"
	"github.com/MrWong99/lingoxa/pkg/provider/tts"
	"github.com/MrWong99/lingoxa/pkg/provider/tts/coqui"
	"github.com/MrWong99/lingoxa/pkg/provider/tts/elevenlabs"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai uses the first-party SDK so that token logprobs feed the
	// confidence score.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptString("organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		if n := entry.OptInt("max_retries", -1); n >= 0 {
			opts = append(opts, oallm.WithMaxRetries(n))
		}
		opts = append(opts, oallm.WithLogprobs(entry.OptBool("logprobs", true)))
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining backends share the same pattern: optional API key plus
	// optional BaseURL. Local servers (ollama, llamacpp, llamafile) only use
	// BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq",
		"ollama", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, entry.APIKey, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if rms := entry.OptFloat("silence_threshold", 0); rms > 0 {
			opts = append(opts, whisper.WithSilenceThreshold(rms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, oastt.WithTimeout(d))
		}
		if prompt := entry.OptString("prompt"); prompt != "" {
			opts = append(opts, oastt.WithPrompt(prompt))
		}
		return oastt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		if outputFmt := entry.OptString("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := entry.OptString("voice_id"); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.OptString("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if speaker := entry.OptString("speaker"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if rate := entry.OptInt("output_sample_rate", 0); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Pronunciation ─────────────────────────────────────────────────────────

	reg.RegisterPronunciation("phonetic", func(entry config.ProviderEntry, transcriber stt.Provider) (pronunciation.Provider, error) {
		var opts []phonetic.Option
		if th := entry.OptFloat("threshold", 0); th > 0 {
			opts = append(opts, phonetic.WithThreshold(th))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, phonetic.WithLanguage(lang))
		}
		return phonetic.New(transcriber, opts...)
	})

	reg.RegisterPronunciation("azure", func(entry config.ProviderEntry, _ stt.Provider) (pronunciation.Provider, error) {
		var opts []azure.Option
		if entry.BaseURL != "" {
			opts = append(opts, azure.WithEndpoint(entry.BaseURL))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, azure.WithLanguage(lang))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, azure.WithTimeout(d))
		}
		opts = append(opts, azure.WithProsody(entry.OptBool("prosody", true)))
		return azure.New(entry.APIKey, entry.OptString("region"), opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts", "pronunciation"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// Names without a registered factory are skipped with a warning.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	for _, entry := range cfg.Providers.LLM {
		p, err := reg.CreateLLM(entry.ProviderEntry)
		if skip(err, "llm", entry.Name) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", entry.ModelID(), err)
		}
		ps.Models = append(ps.Models, app.Model{ID: entry.ModelID(), Provider: p})
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "id", entry.ModelID(), "model", entry.Model)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		switch {
		case skip(err, "stt", name):
		case err != nil:
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		default:
			ps.STT, ps.STTName = p, name
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	for _, entry := range cfg.Providers.TTS {
		p, err := reg.CreateTTS(entry)
		if skip(err, "tts", entry.Name) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		ps.TTS = append(ps.TTS, app.Voice{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", "tts", "name", entry.Name)
	}

	if name := cfg.Providers.Pronunciation.Name; name != "" {
		p, err := reg.CreatePronunciation(cfg.Providers.Pronunciation, ps.STT)
		switch {
		case skip(err, "pronunciation", name):
		case err != nil:
			return nil, fmt.Errorf("create pronunciation provider %q: %w", name, err)
		default:
			ps.Pronunciation, ps.PronunciationName = p, name
			slog.Info("provider created", "kind", "pronunciation", "name", name)
		}
	}

	return ps, nil
}

func skip(err error, kind, name string) bool {
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		return false
	}
	slog.Warn("provider not registered, skipping", "kind", kind, "name", name)
	return true
}
