package config_test

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lingoxa/internal/config"
)

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	a, b := mustLoad(t, sampleYAML), mustLoad(t, sampleYAML)
	d := config.Diff(a, b)
	if d.LogLevelChanged || d.TutorChanged || len(d.RestartRequired) != 0 {
		t.Errorf("diff = %+v, want empty", d)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()

	old := mustLoad(t, sampleYAML)
	next := mustLoad(t, sampleYAML)
	next.Server.LogLevel = config.LogDebug
	next.Tutor.SystemPrompt = "Only speak about travel."
	next.Tutor.Temperature = 0.2
	next.Tutor.PreferredModel = "gpt"
	next.Tutor.AdapterTimeout = 5 * time.Second

	d := config.Diff(old, next)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	want := config.TutorDiff{SystemPrompt: true, Temperature: true, PreferredModel: true, AdapterTimeout: true}
	if !d.TutorChanged || d.Tutor != want {
		t.Errorf("tutor diff = %+v, want %+v", d.Tutor, want)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	old := mustLoad(t, sampleYAML)
	next := mustLoad(t, sampleYAML)
	next.Providers.LLM[0].Model = "gpt-4o"
	next.Providers.TTS = next.Providers.TTS[:1]
	next.Providers.Pronunciation.Options["threshold"] = 0.9
	next.Tutor.VoiceID = "Adam"
	next.Learners.PostgresDSN = ""

	d := config.Diff(old, next)
	if d.TutorChanged {
		t.Errorf("TutorChanged = true for restart-only edits")
	}
	want := []string{"providers.llm", "providers.tts", "providers.pronunciation", "tutor.voice_id", "learners"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
}
