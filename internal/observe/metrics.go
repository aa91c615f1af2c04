// Package observe provides application-wide observability primitives for
// Lingoxa: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Lingoxa metrics.
const meterName = "github.com/MrWong99/lingoxa"

// Provider kinds used as the "kind" attribute on provider metrics.
const (
	KindSTT           = "stt"
	KindLLM           = "llm"
	KindTTS           = "tts"
	KindPronunciation = "pronunciation"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the OTel instruments do their own
// locking.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks single model-adapter call latency. Use with attribute:
	//   attribute.String("provider", ...)
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency (cache misses only).
	TTSDuration metric.Float64Histogram

	// PronunciationDuration tracks pronunciation assessment latency.
	PronunciationDuration metric.Float64Histogram

	// TutorDuration tracks end-to-end orchestration latency. Use with attribute:
	//   attribute.String("modality", "text"|"audio")
	TutorDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// TutorResponses counts completed tutor replies. Use with attributes:
	//   attribute.String("level", ...), attribute.String("modality", ...)
	TutorResponses metric.Int64Counter

	// Explanations counts Vietnamese explanations attached to replies. Use with attribute:
	//   attribute.String("source", "model"|"template")
	Explanations metric.Int64Counter

	// ModelSwitches counts changes of the router's current model. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...), attribute.String("reason", ...)
	ModelSwitches metric.Int64Counter

	// SynthesisCacheLookups counts synthesis cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	SynthesisCacheLookups metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live learning sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// tutoring round-trips, which are dominated by model inference.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "lingoxa.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "lingoxa.llm.duration", "Latency of a single model adapter call."},
		{&met.TTSDuration, "lingoxa.tts.duration", "Latency of text-to-speech synthesis."},
		{&met.PronunciationDuration, "lingoxa.pronunciation.duration", "Latency of pronunciation assessment."},
		{&met.TutorDuration, "lingoxa.tutor.duration", "End-to-end latency of one tutoring turn."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "lingoxa.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.TutorResponses, "lingoxa.tutor.responses", "Total tutor replies by learner level and modality."},
		{&met.Explanations, "lingoxa.tutor.explanations", "Total Vietnamese explanations by source."},
		{&met.ModelSwitches, "lingoxa.router.switches", "Total changes of the current conversational model."},
		{&met.SynthesisCacheLookups, "lingoxa.synthesis.cache_lookups", "Total synthesis cache lookups by result."},
		{&met.ProviderErrors, "lingoxa.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("lingoxa.active_sessions",
		metric.WithDescription("Number of live learning sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("lingoxa.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTutorResponse records one completed tutoring turn.
func (m *Metrics) RecordTutorResponse(ctx context.Context, level, modality string) {
	m.TutorResponses.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("level", level),
			attribute.String("modality", modality),
		),
	)
}

// RecordExplanation records a Vietnamese explanation and where it came from.
func (m *Metrics) RecordExplanation(ctx context.Context, source string) {
	m.Explanations.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordModelSwitch records a change of the router's current model.
func (m *Metrics) RecordModelSwitch(ctx context.Context, from, to, reason string) {
	m.ModelSwitches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
			attribute.String("reason", reason),
		),
	)
}

// RecordCacheLookup records a synthesis cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SynthesisCacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
