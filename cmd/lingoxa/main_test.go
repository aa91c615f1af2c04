package main

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/lingoxa/internal/app"
	"github.com/MrWong99/lingoxa/internal/config"
	"github.com/MrWong99/lingoxa/internal/resilience"
	"github.com/MrWong99/lingoxa/pkg/provider/llm"
	llmmock "github.com/MrWong99/lingoxa/pkg/provider/llm/mock"
	"github.com/MrWong99/lingoxa/pkg/provider/pronunciation"
	pronmock "github.com/MrWong99/lingoxa/pkg/provider/pronunciation/mock"
	"github.com/MrWong99/lingoxa/pkg/provider/stt"
	sttmock "github.com/MrWong99/lingoxa/pkg/provider/stt/mock"
	"github.com/MrWong99/lingoxa/pkg/provider/tts"
	ttsmock "github.com/MrWong99/lingoxa/pkg/provider/tts/mock"
	"github.com/MrWong99/lingoxa/pkg/types"
)

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	want := map[string][]string{
		"llm":           {"anthropic", "deepseek", "gemini", "groq", "llamacpp", "llamafile", "mistral", "ollama", "openai"},
		"stt":           {"deepgram", "openai", "whisper"},
		"tts":           {"coqui", "elevenlabs"},
		"pronunciation": {"azure", "phonetic"},
	}
	for kind, names := range want {
		got := reg.Names(kind)
		slices.Sort(got)
		if !slices.Equal(got, names) {
			t.Errorf("Names(%q) = %v, want %v", kind, got, names)
		}
		for _, n := range got {
			if !slices.Contains(config.ValidProviderNames[kind], n) {
				t.Errorf("%s provider %q is registered but not a valid config name", kind, n)
			}
		}
	}

	// A local model without credentials is created unconfigured.
	p, err := reg.CreateLLM(config.ProviderEntry{Name: "ollama", Model: "llama3.2"})
	if err != nil {
		t.Fatalf("CreateLLM(ollama): %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM(ollama) returned nil provider")
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	transcriber := &sttmock.Provider{}
	var gotTranscriber stt.Provider

	reg := config.NewRegistry()
	reg.RegisterLLM("fake", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{IsConfigured: true}, nil
	})
	reg.RegisterSTT("fake", func(config.ProviderEntry) (stt.Provider, error) {
		return transcriber, nil
	})
	reg.RegisterTTS("fake", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})
	reg.RegisterPronunciation("fake", func(_ config.ProviderEntry, tr stt.Provider) (pronunciation.Provider, error) {
		gotTranscriber = tr
		return &pronmock.Provider{}, nil
	})

	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM: []config.ModelEntry{
			{ID: "main", ProviderEntry: config.ProviderEntry{Name: "fake"}},
			{ProviderEntry: config.ProviderEntry{Name: "fake"}},
			{ProviderEntry: config.ProviderEntry{Name: "unregistered"}},
		},
		STT:           config.ProviderEntry{Name: "fake"},
		TTS:           []config.ProviderEntry{{Name: "fake"}, {Name: "unregistered"}},
		Pronunciation: config.ProviderEntry{Name: "fake"},
	}}

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}

	var ids []string
	for _, m := range ps.Models {
		ids = append(ids, m.ID)
	}
	if !slices.Equal(ids, []string{"main", "fake"}) {
		t.Errorf("model IDs = %v, want [main fake]", ids)
	}
	if ps.STT != transcriber || ps.STTName != "fake" {
		t.Errorf("STT = %v/%q, want the fake transcriber", ps.STT, ps.STTName)
	}
	if len(ps.TTS) != 1 {
		t.Errorf("len(TTS) = %d, want 1", len(ps.TTS))
	}
	if ps.Pronunciation == nil || ps.PronunciationName != "fake" {
		t.Errorf("Pronunciation = %v/%q, want the fake scorer", ps.Pronunciation, ps.PronunciationName)
	}
	if gotTranscriber != transcriber {
		t.Error("pronunciation factory did not receive the configured transcriber")
	}
}

func TestBuildProviders_FactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad key")
	reg := config.NewRegistry()
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) {
		return nil, boom
	})
	cfg := &config.Config{Providers: config.ProvidersConfig{
		TTS: []config.ProviderEntry{{Name: "broken"}},
	}}

	if _, err := buildProviders(cfg, reg); !errors.Is(err, boom) {
		t.Fatalf("buildProviders error = %v, want %v", err, boom)
	}
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":9090"},
		Providers: config.ProvidersConfig{
			LLM: []config.ModelEntry{
				{ID: "gpt", ProviderEntry: config.ProviderEntry{Name: "openai", Model: "gpt-4o"}},
				{ProviderEntry: config.ProviderEntry{Name: "ollama"}},
			},
		},
		Learners: config.LearnersConfig{PostgresDSN: "postgres://localhost/lingoxa"},
	}

	var buf bytes.Buffer
	printStartupSummary(&buf, cfg)
	out := buf.String()

	for _, want := range []string{"gpt / gpt-4o", "LLM fallback", "ollama", "(not configured)", "postgres", ":9090"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestChatLoop(t *testing.T) {
	t.Parallel()

	model := &llmmock.Provider{
		IsConfigured:     true,
		CompleteResponse: &llm.CompletionResponse{Content: "Nice! You went home."},
	}
	router := resilience.NewRouter(resilience.RouterConfig{})
	if err := router.Register("main", model); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sessions, err := app.NewSessionManager(app.SessionManagerConfig{
		Router:       router,
		DefaultLevel: types.LevelC1,
	})
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	ctx := context.Background()
	info, err := sessions.Start(ctx, "learner-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	in := strings.NewReader("I went home yesterday\n\n/quit\nnever answered\n")
	var out bytes.Buffer
	last, err := chatLoop(ctx, in, &out, sessions, info.SessionID, false)
	if err != nil {
		t.Fatalf("chatLoop: %v", err)
	}

	// One line answered; the one after /quit never reaches the model.
	if model.CallCount() == 0 {
		t.Error("model was never called")
	}
	if strings.Contains(out.String(), "never answered") {
		t.Errorf("input after /quit was processed:\n%s", out.String())
	}
	if last == nil || last.ResponseEn != "Nice! You went home." {
		t.Fatalf("last response = %+v", last)
	}
	if !strings.Contains(out.String(), "tutor: Nice! You went home.") {
		t.Errorf("output missing tutor reply:\n%s", out.String())
	}
}

func TestPrintResponse_JSON(t *testing.T) {
	t.Parallel()

	vi := "Dùng thì quá khứ."
	resp := &types.TutorResponse{ResponseEn: "Good try!", ResponseVi: &vi, Confidence: 0.8}

	var buf bytes.Buffer
	if err := printResponse(&buf, resp, true); err != nil {
		t.Fatalf("printResponse: %v", err)
	}
	for _, want := range []string{`"responseEn": "Good try!"`, `"responseVi"`, `"confidence": 0.8`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("JSON output missing %s:\n%s", want, buf.String())
		}
	}
}
