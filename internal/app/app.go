// Package app wires all Lingoxa subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the model router, the
// speech synthesizer, the learner store and the session manager from the
// config, ApplyConfig hot-reloads tutor settings, and Shutdown tears
// everything down in order.
//
// For testing, inject implementations via functional options
// (WithLearnerStore, WithMetrics, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/lingoxa/internal/config"
	"github.com/MrWong99/lingoxa/internal/grammar"
	"github.com/MrWong99/lingoxa/internal/health"
	"github.com/MrWong99/lingoxa/internal/learner"
	"github.com/MrWong99/lingoxa/internal/learner/postgres"
	"github.com/MrWong99/lingoxa/internal/observe"
	"github.com/MrWong99/lingoxa/internal/resilience"
	"github.com/MrWong99/lingoxa/internal/speech"
	"github.com/MrWong99/lingoxa/internal/tutor"
	"github.com/MrWong99/lingoxa/pkg/provider/llm"
	"github.com/MrWong99/lingoxa/pkg/provider/pronunciation"
	"github.com/MrWong99/lingoxa/pkg/provider/stt"
	"github.com/MrWong99/lingoxa/pkg/provider/tts"
)

// Model is one conversational model adapter with its registration ID.
type Model struct {
	ID       string
	Provider llm.Provider
}

// Voice is one named TTS backend.
type Voice struct {
	Name     string
	Provider tts.Provider
}

// Providers holds the instantiated provider adapters. Nil or empty means the
// slot is not configured. Populated by the command from the config registry.
type Providers struct {
	// Models are registered with the router in this order.
	Models []Model

	STT     stt.Provider
	STTName string

	// TTS lists the primary synthesis backend first, then its fallbacks.
	TTS []Voice

	Pronunciation     pronunciation.Provider
	PronunciationName string
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	analyzer grammar.Analyzer

	router   *resilience.Router
	synth    *speech.Synthesizer
	settings *tutor.SettingsStore
	learners learner.Store
	sessions *SessionManager

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLearnerStore injects a learner store instead of creating one from config.
func WithLearnerStore(s learner.Store) Option {
	return func(a *App) { a.learners = s }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets ApplyConfig change the level of the process logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithAnalyzer replaces the rule-based grammar detector in every session.
func WithAnalyzer(an grammar.Analyzer) Option {
	return func(a *App) { a.analyzer = an }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from the command (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Model router ──────────────────────────────────────────────────
	if err := a.initRouter(); err != nil {
		return nil, fmt.Errorf("app: init router: %w", err)
	}

	// ── 2. Speech synthesis ──────────────────────────────────────────────
	if err := a.initSpeech(); err != nil {
		return nil, fmt.Errorf("app: init speech: %w", err)
	}

	// ── 3. Learner store ─────────────────────────────────────────────────
	if err := a.initLearners(ctx); err != nil {
		return nil, fmt.Errorf("app: init learners: %w", err)
	}

	// ── 4. Sessions ──────────────────────────────────────────────────────
	a.settings = tutor.NewSettingsStore(tutorSettings(cfg.Tutor))
	sm, err := NewSessionManager(SessionManagerConfig{
		Router:       a.router,
		Learners:     a.learners,
		DefaultLevel: cfg.Learners.DefaultLevel,
		Metrics:      a.metrics,
		TutorOptions: a.tutorOptions(),
	})
	if err != nil {
		return nil, fmt.Errorf("app: init sessions: %w", err)
	}
	a.sessions = sm

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initRouter registers every configured model in config order.
func (a *App) initRouter() error {
	a.router = resilience.NewRouter(resilience.RouterConfig{
		Timeout:        a.cfg.Tutor.AdapterTimeout,
		CircuitBreaker: breakerConfig(a.cfg.Tutor.CircuitBreaker),
		Metrics:        a.metrics,
	})
	for _, m := range a.providers.Models {
		if err := a.router.Register(m.ID, m.Provider); err != nil {
			return err
		}
		slog.Info("registered conversational model", "id", m.ID, "configured", m.Provider.Configured())
	}
	if !a.router.HasConfiguredService() {
		slog.Warn("no configured conversational model; tutor replies will fail")
	}
	return nil
}

// initSpeech chains the TTS backends behind one cached synthesizer.
func (a *App) initSpeech() error {
	voices := a.providers.TTS
	if len(voices) == 0 {
		slog.Info("no tts backend configured; speech synthesis disabled")
		return nil
	}

	fb := resilience.NewTTSFallback(voices[0].Provider, voices[0].Name, resilience.FallbackConfig{
		CircuitBreaker: breakerConfig(a.cfg.Tutor.CircuitBreaker),
	})
	for _, v := range voices[1:] {
		fb.AddFallback(v.Name, v.Provider)
	}

	size := a.cfg.Tutor.SynthesisCacheSize
	if size == 0 {
		size = speech.DefaultCacheSize
	}
	cache, err := speech.NewLRUCache(size)
	if err != nil {
		return err
	}

	synth, err := speech.New(fb,
		speech.WithCache(cache),
		speech.WithVoice(a.cfg.Tutor.VoiceID),
		speech.WithMetrics(a.metrics),
		speech.WithProviderName(voices[0].Name),
	)
	if err != nil {
		return err
	}
	a.synth = synth
	slog.Info("speech synthesis ready", "backends", fb.Names(), "cache_size", size)
	return nil
}

// initLearners connects to PostgreSQL when a DSN is configured and falls
// back to an in-memory store otherwise.
func (a *App) initLearners(ctx context.Context) error {
	if a.learners != nil {
		return nil
	}

	dsn := a.cfg.Learners.PostgresDSN
	if dsn == "" {
		a.learners = learner.NewMemStore()
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.learners = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// tutorOptions returns the orchestrator options shared by every session.
func (a *App) tutorOptions() []tutor.Option {
	opts := []tutor.Option{
		tutor.WithSettingsStore(a.settings),
		tutor.WithMetrics(a.metrics),
		tutor.WithProviderNames(
			cmp.Or(a.providers.STTName, "stt"),
			cmp.Or(a.providers.PronunciationName, "pronunciation"),
		),
	}
	if a.analyzer != nil {
		opts = append(opts, tutor.WithAnalyzer(a.analyzer))
	}
	if a.providers.STT != nil {
		opts = append(opts, tutor.WithTranscriber(a.providers.STT))
	}
	if lang := a.cfg.Tutor.Language; lang != "" {
		opts = append(opts, tutor.WithTranscriptionLanguage(lang))
	}
	if a.providers.Pronunciation != nil {
		opts = append(opts, tutor.WithPronunciation(a.providers.Pronunciation))
	}
	if a.synth != nil {
		opts = append(opts, tutor.WithSynthesizer(a.synth))
	}
	return opts
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Router returns the conversational model router.
func (a *App) Router() *resilience.Router { return a.router }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Settings returns the live tutor settings.
func (a *App) Settings() tutor.Settings { return a.settings.Load() }

// CachedSpeech returns audio synthesised earlier under key.
func (a *App) CachedSpeech(key string) ([]byte, bool) {
	if a.synth == nil {
		return nil, false
	}
	return a.synth.GetCached(key)
}

// Ready probes every model adapter and fails with
// [health.ErrNoHealthyModel] when none is healthy.
func (a *App) Ready(ctx context.Context) error {
	return health.CheckModels(ctx, a.router)
}

// Checkers returns the readiness checks of the application.
func (a *App) Checkers() []health.Checker {
	return []health.Checker{health.Models(a.router)}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a config change. Settings
// that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.TutorChanged {
		a.settings.Store(tutorSettings(new.Tutor))
		if d.Tutor.AdapterTimeout {
			a.router.SetTimeout(new.Tutor.AdapterTimeout)
		}
		slog.Info("tutor settings reloaded",
			"system_prompt", d.Tutor.SystemPrompt,
			"temperature", d.Tutor.Temperature,
			"max_tokens", d.Tutor.MaxTokens,
			"preferred_model", d.Tutor.PreferredModel,
			"adapter_timeout", d.Tutor.AdapterTimeout,
		)
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "fields", d.RestartRequired)
	}
	a.cfg = new
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends all sessions, then runs the closers in order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", len(a.sessions.Active()), "closers", len(a.closers))

		a.sessions.EndAll(ctx)

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// tutorSettings converts the tutor config block into live settings. A zero
// temperature keeps the tutor default.
func tutorSettings(tc config.TutorConfig) tutor.Settings {
	s := tutor.Settings{
		SystemPrompt:   tc.SystemPrompt,
		Temperature:    tc.Temperature,
		MaxTokens:      tc.MaxTokens,
		PreferredModel: tc.PreferredModel,
		AdapterTimeout: tc.AdapterTimeout,
	}
	if s.Temperature == 0 {
		s.Temperature = tutor.DefaultTemperature
	}
	return s
}

func breakerConfig(cb config.CircuitBreakerConfig) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: cb.ResetTimeout,
		HalfOpenMax:  cb.HalfOpenMax,
	}
}

// SlogLevel maps a config log level to its slog level. Unknown values map to
// info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
