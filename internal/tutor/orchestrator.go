// Package tutor turns one learner utterance, typed or spoken, into a tutoring
// reply.
//
// An [Orchestrator] belongs to a single learning session. It runs
// transcription and pronunciation scoring for audio, grammar analysis, routes
// the prompt through the conversational model router and decides whether the
// reply needs a Vietnamese explanation. The router and adapters it calls are
// shared between sessions; the [session.Context] it owns is not.
//
// Only transcription and synthesis failures are terminal for their call.
// Grammar and pronunciation failures degrade to "no analysis", and a failed
// translation falls back to a templated Vietnamese explanation.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/lingoxa/internal/grammar"
	"github.com/MrWong99/lingoxa/internal/observe"
	"github.com/MrWong99/lingoxa/internal/resilience"
	"github.com/MrWong99/lingoxa/internal/session"
	"github.com/MrWong99/lingoxa/pkg/audio"
	"github.com/MrWong99/lingoxa/pkg/provider/pronunciation"
	"github.com/MrWong99/lingoxa/pkg/provider/stt"
	"github.com/MrWong99/lingoxa/pkg/types"
)

const defaultAdapterTimeout = resilience.DefaultAdapterTimeout

// translationTemperature keeps the Vietnamese rendering close to the reply.
const translationTemperature = 0.3

var (
	// ErrEmptyInput is returned when the learner message is blank.
	ErrEmptyInput = errors.New("tutor: empty learner message")

	// ErrTranscriptionFailed is returned by [Orchestrator.ProcessAudio] when
	// the recording could not be turned into text.
	ErrTranscriptionFailed = errors.New("tutor: transcription failed")

	// ErrSynthesisFailed is returned by [Orchestrator.SynthesizeReply] when no
	// audio could be produced.
	ErrSynthesisFailed = errors.New("tutor: synthesis failed")
)

// Responder routes a prompt to a conversational model.
type Responder interface {
	GetResponse(ctx context.Context, req resilience.Request) (*resilience.Response, error)
}

// Synthesizer produces reply audio, optionally through a cache.
type Synthesizer interface {
	SynthesizeCached(ctx context.Context, text, cacheKey string) ([]byte, bool, error)
	GetCached(key string) ([]byte, bool)
}

var _ Responder = (*resilience.Router)(nil)

// SynthesisResult is the outcome of [Orchestrator.SynthesizeReply].
type SynthesisResult struct {
	// Audio is a WAV file.
	Audio []byte

	// Cached reports whether Audio came from the synthesis cache.
	Cached bool

	Usage types.ComponentUsage
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithAnalyzer replaces the rule-based grammar detector.
func WithAnalyzer(a grammar.Analyzer) Option {
	return func(o *Orchestrator) { o.analyzer = a }
}

// WithTranscriber sets the speech-to-text backend used by ProcessAudio.
func WithTranscriber(p stt.Provider) Option {
	return func(o *Orchestrator) { o.transcriber = p }
}

// WithTranscriptionLanguage sets the language requested from the transcriber.
func WithTranscriptionLanguage(lang string) Option {
	return func(o *Orchestrator) { o.language = lang }
}

// WithPronunciation sets the pronunciation scorer used by ProcessAudio.
// Without one, audio replies carry no pronunciation result.
func WithPronunciation(p pronunciation.Provider) Option {
	return func(o *Orchestrator) { o.pronunciation = p }
}

// WithSynthesizer sets the speech synthesizer used by SynthesizeReply.
func WithSynthesizer(s Synthesizer) Option {
	return func(o *Orchestrator) { o.synth = s }
}

// WithSettings uses a fixed copy of s.
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) { o.settings = NewSettingsStore(s) }
}

// WithSettingsStore shares a live settings store, typically one updated by
// the config watcher.
func WithSettingsStore(st *SettingsStore) Option {
	return func(o *Orchestrator) { o.settings = st }
}

// WithMetrics records tutor and adapter metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithStageObserver registers fn for stage transitions.
func WithStageObserver(fn StageObserver) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithProviderNames sets the provider labels used on STT and pronunciation
// metrics.
func WithProviderNames(sttName, pronunciationName string) Option {
	return func(o *Orchestrator) {
		o.sttName = sttName
		o.pronName = pronunciationName
	}
}

// Orchestrator coordinates one learning session.
//
// Calls must be serialised by the caller: the owned [session.Context] is not
// safe for concurrent use.
type Orchestrator struct {
	router        Responder
	sc            *session.Context
	analyzer      grammar.Analyzer
	transcriber   stt.Provider
	language      string
	pronunciation pronunciation.Provider
	synth         Synthesizer
	settings      *SettingsStore
	metrics       *observe.Metrics
	observer      StageObserver
	sttName       string
	pronName      string
}

// New returns an Orchestrator that routes replies through router and keeps
// its history in sc. A nil sc starts an empty session.
func New(router Responder, sc *session.Context, opts ...Option) (*Orchestrator, error) {
	if router == nil {
		return nil, errors.New("tutor: router must not be nil")
	}
	if sc == nil {
		sc = session.NewContext()
	}
	o := &Orchestrator{
		router:   router,
		sc:       sc,
		analyzer: grammar.Detector{},
		sttName:  "stt",
		pronName: "pronunciation",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.settings == nil {
		o.settings = NewSettingsStore(DefaultSettings())
	}
	return o, nil
}

// Context returns the session state owned by o.
func (o *Orchestrator) Context() *session.Context {
	return o.sc
}

// ProcessText produces a reply to typed learner text.
func (o *Orchestrator) ProcessText(ctx context.Context, text string) (*types.TutorResponse, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "tutor.process_text")
	defer span.End()

	tr := &tracker{ctx: ctx, observer: o.observer}
	resp, err := o.respond(ctx, tr, text, o.settings.Load())
	if err != nil {
		tr.enter(StageError)
		span.RecordError(err)
		return nil, err
	}
	o.finish(ctx, tr, resp, start, "text")
	return resp, nil
}

// ProcessAudio transcribes a WAV recording, scores its pronunciation and
// replies to the transcript.
func (o *Orchestrator) ProcessAudio(ctx context.Context, recording []byte) (*types.TutorResponse, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "tutor.process_audio")
	defer span.End()

	tr := &tracker{ctx: ctx, observer: o.observer}
	settings := o.settings.Load()

	tr.enter(StageTranscribing)
	wav, transcript, err := o.transcribe(ctx, recording, settings)
	if err != nil {
		tr.enter(StageError)
		span.RecordError(err)
		return nil, err
	}

	pron := o.scorePronunciation(ctx, wav, transcript, settings)

	resp, err := o.respond(ctx, tr, transcript, settings)
	if err != nil {
		tr.enter(StageError)
		span.RecordError(err)
		return nil, err
	}
	resp.Analysis.Pronunciation = pron
	resp.ComponentUsage.UsedSTT = true
	resp.ComponentUsage.UsedPronunciation = pron != nil
	o.finish(ctx, tr, resp, start, "audio")
	return resp, nil
}

// SynthesizeReply renders text as speech. A non-empty cacheKey is looked up
// first and stores the result on a miss. The session is not touched.
func (o *Orchestrator) SynthesizeReply(ctx context.Context, text, cacheKey string) (*SynthesisResult, error) {
	if o.synth == nil {
		return nil, fmt.Errorf("%w: no synthesizer configured", ErrSynthesisFailed)
	}
	ctx, span := observe.StartSpan(ctx, "tutor.synthesize_reply")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.settings.Load().adapterTimeout())
	defer cancel()

	res, err := guard(ctx, "synthesizer", func(ctx context.Context) (*SynthesisResult, error) {
		wav, cached, err := o.synth.SynthesizeCached(ctx, text, cacheKey)
		if err != nil {
			return nil, err
		}
		return &SynthesisResult{
			Audio:  wav,
			Cached: cached,
			Usage:  types.ComponentUsage{UsedTTS: true},
		}, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	return res, nil
}

// GetCached returns previously synthesized audio for key.
func (o *Orchestrator) GetCached(key string) ([]byte, bool) {
	if o.synth == nil {
		return nil, false
	}
	return o.synth.GetCached(key)
}

// respond runs analysis, generation and the explanation policy for text and
// records the turn.
func (o *Orchestrator) respond(ctx context.Context, tr *tracker, text string, settings Settings) (*types.TutorResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	tr.enter(StageAnalyzing)
	grammarErrs := o.analyze(ctx, text, settings)

	tr.enter(StageGenerating)
	reply, err := o.router.GetResponse(ctx, resilience.Request{
		Prompt:         buildPrompt(o.sc.ProfileSummary(), text, grammarErrs),
		SystemPrompt:   settings.systemPrompt(),
		History:        o.sc.History(),
		Temperature:    settings.Temperature,
		MaxTokens:      settings.MaxTokens,
		PreferredModel: settings.PreferredModel,
	})
	if err != nil {
		return nil, fmt.Errorf("tutor: generate reply: %w", err)
	}

	var modelConf float64
	if reply.Confidence != nil {
		modelConf = *reply.Confidence
	}
	decision := session.Decide(o.sc.Level(), len(grammarErrs), modelConf, reply.Confidence != nil)

	resp := &types.TutorResponse{
		ResponseEn: reply.Content,
		Analysis:   types.Analysis{GrammarErrors: grammarErrs},
		Confidence: decision.Confidence,
		ComponentUsage: types.ComponentUsage{
			ModelID: reply.ModelID,
		},
	}

	if decision.NeedsExplanation {
		tr.enter(StageTranslating)
		vi := o.explain(ctx, text, reply.Content, grammarErrs, settings)
		resp.ResponseVi = &vi
	}

	o.sc.AddTurn(types.ConversationTurn{
		UserMessage: text,
		AIResponse:  reply.Content,
		Timestamp:   time.Now(),
	})
	return resp, nil
}

// analyze runs the grammar analyzer. Failures, timeouts and panics yield no
// errors.
func (o *Orchestrator) analyze(ctx context.Context, text string, settings Settings) []types.GrammarError {
	callCtx, cancel := context.WithTimeout(ctx, settings.adapterTimeout())
	defer cancel()

	found, err := guard(callCtx, "grammar analyzer", func(ctx context.Context) ([]types.GrammarError, error) {
		return o.analyzer.Analyze(ctx, text)
	})
	if err != nil {
		observe.Logger(ctx).Warn("grammar analysis failed, continuing without it", "error", err)
		return []types.GrammarError{}
	}
	if found == nil {
		found = []types.GrammarError{}
	}
	return found
}

// explain returns the Vietnamese explanation for a reply. It prefers a model
// translation and falls back to a template, so the result is never empty.
func (o *Orchestrator) explain(ctx context.Context, text, reply string, errs []types.GrammarError, settings Settings) string {
	resp, err := o.router.GetResponse(ctx, resilience.Request{
		Prompt:         translationPrompt(text, reply, errs),
		SystemPrompt:   translationSystemPrompt,
		Temperature:    translationTemperature,
		PreferredModel: settings.PreferredModel,
	})
	if err == nil {
		if vi := strings.TrimSpace(resp.Content); vi != "" {
			o.recordExplanation(ctx, "model")
			return vi
		}
		err = errors.New("empty translation")
	}
	observe.Logger(ctx).Warn("vietnamese translation failed, using template", "error", err)
	o.recordExplanation(ctx, "template")
	return templateExplanation(reply, errs)
}

// transcribe normalises the recording and runs STT on it. It returns the
// canonical WAV and the transcript.
func (o *Orchestrator) transcribe(ctx context.Context, recording []byte, settings Settings) ([]byte, string, error) {
	if o.transcriber == nil {
		return nil, "", fmt.Errorf("%w: no transcriber configured", ErrTranscriptionFailed)
	}
	wav, _, err := audio.Normalize(recording)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, settings.adapterTimeout())
	defer cancel()

	start := time.Now()
	res, err := guard(callCtx, "transcriber", func(ctx context.Context) (*types.TranscriptionResult, error) {
		return o.transcriber.Transcribe(ctx, wav, stt.Options{Language: o.language})
	})
	o.recordAdapter(ctx, o.sttName, observe.KindSTT, start, err)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	if res == nil || strings.TrimSpace(res.Text) == "" {
		return nil, "", fmt.Errorf("%w: no speech recognised", ErrTranscriptionFailed)
	}
	return wav, strings.TrimSpace(res.Text), nil
}

// scorePronunciation grades wav against the transcript. Any failure yields nil.
func (o *Orchestrator) scorePronunciation(ctx context.Context, wav []byte, reference string, settings Settings) *types.PronunciationResult {
	if o.pronunciation == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, settings.adapterTimeout())
	defer cancel()

	start := time.Now()
	res, err := guard(callCtx, "pronunciation scorer", func(ctx context.Context) (*types.PronunciationResult, error) {
		return o.pronunciation.Analyze(ctx, wav, reference)
	})
	if err == nil && res == nil {
		err = fmt.Errorf("%w: no result", pronunciation.ErrAnalysisFailed)
	}
	o.recordAdapter(ctx, o.pronName, observe.KindPronunciation, start, err)
	if err != nil {
		observe.Logger(ctx).Warn("pronunciation analysis failed, continuing without it", "error", err)
		return nil
	}
	return res
}

func (o *Orchestrator) finish(ctx context.Context, tr *tracker, resp *types.TutorResponse, start time.Time, modality string) {
	elapsed := time.Since(start)
	resp.LatencyMs = elapsed.Milliseconds()
	tr.enter(StageDone)
	if o.metrics == nil {
		return
	}
	o.metrics.TutorDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("modality", modality)))
	o.metrics.RecordTutorResponse(ctx, o.sc.Level().String(), modality)
}

func (o *Orchestrator) recordExplanation(ctx context.Context, source string) {
	if o.metrics != nil {
		o.metrics.RecordExplanation(ctx, source)
	}
}

func (o *Orchestrator) recordAdapter(ctx context.Context, name, kind string, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	hist := o.metrics.STTDuration
	if kind == observe.KindPronunciation {
		hist = o.metrics.PronunciationDuration
	}
	hist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("provider", name)))
	status := "ok"
	if err != nil {
		status = "error"
		o.metrics.RecordProviderError(ctx, name, kind)
	}
	o.metrics.RecordProviderRequest(ctx, name, kind, status)
}

// guard runs one backend call bounded by ctx. A call that outlives ctx or
// panics is reported as an error naming component.
func guard[T any](ctx context.Context, component string, fn func(context.Context) (T, error)) (T, error) {
	v, err := resilience.Bounded(ctx, fn)
	if err != nil && (errors.Is(err, resilience.ErrPanicked) || ctx.Err() != nil) {
		err = fmt.Errorf("tutor: %s: %w", component, err)
	}
	return v, err
}
