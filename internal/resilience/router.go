package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingoxa/internal/observe"
	"github.com/MrWong99/lingoxa/pkg/provider/llm"
	"github.com/MrWong99/lingoxa/pkg/types"
)

// DefaultAdapterTimeout bounds every single adapter call made by the [Router].
const DefaultAdapterTimeout = 10 * time.Second

var (
	// ErrUnknownModel is returned when a model ID was never registered.
	ErrUnknownModel = errors.New("resilience: unknown model")

	// ErrAdapterUnavailable is returned when a model exists but cannot be
	// called: it lacks credentials or its circuit breaker is open.
	ErrAdapterUnavailable = errors.New("resilience: adapter unavailable")

	// ErrAdapterCallFailed wraps the error of a single failed adapter attempt.
	ErrAdapterCallFailed = errors.New("resilience: adapter call failed")

	// ErrAllServicesFailed is matched by [*AllServicesFailedError].
	ErrAllServicesFailed = errors.New("resilience: all conversational services failed")
)

// AllServicesFailedError is returned by [Router.GetResponse] when no
// configured adapter produced a reply.
type AllServicesFailedError struct {
	// Attempts is the number of adapters actually invoked.
	Attempts int

	// Last is the error of the final attempt, or the reason no attempt was made.
	Last error
}

func (e *AllServicesFailedError) Error() string {
	return fmt.Sprintf("resilience: all conversational services failed after %d attempt(s): %v", e.Attempts, e.Last)
}

// Is makes errors.Is(err, ErrAllServicesFailed) hold.
func (e *AllServicesFailedError) Is(target error) bool {
	return target == ErrAllServicesFailed
}

func (e *AllServicesFailedError) Unwrap() error {
	return e.Last
}

// Request is one tutoring prompt routed to a conversational model.
type Request struct {
	// Prompt is the final user message.
	Prompt string

	// SystemPrompt is the tutor persona and instructions.
	SystemPrompt string

	// History is replayed as alternating user/assistant messages, oldest first.
	History []types.ConversationTurn

	// Temperature is forwarded to the adapter. Zero leaves the adapter default.
	Temperature float64

	// MaxTokens caps the reply length. Zero leaves the adapter default.
	MaxTokens int

	// PreferredModel, if set and configured, is tried first for this request
	// only. It never changes the router's current model.
	PreferredModel string
}

// Response is a successful reply together with the model that produced it.
type Response struct {
	Content string

	// ModelID is the registration ID of the adapter that answered.
	ModelID string

	// Confidence is the adapter-reported confidence, nil if not reported.
	Confidence *float64

	// Attempts is the number of adapters invoked, including the successful one.
	Attempts int

	// Latency is the duration of the successful adapter call.
	Latency time.Duration
}

// RouterConfig configures a [Router].
type RouterConfig struct {
	// Timeout bounds each adapter call. Default: [DefaultAdapterTimeout].
	Timeout time.Duration

	// CircuitBreaker is the template for the per-adapter breakers.
	CircuitBreaker CircuitBreakerConfig

	// Metrics receives per-attempt instrumentation. Optional.
	Metrics *observe.Metrics
}

// routeEntry is one registered adapter. configured never changes after
// registration.
type routeEntry struct {
	id         string
	configured bool
	provider   llm.Provider
	breaker    *CircuitBreaker
}

// Router is the conversational model router. It holds an ordered registry of
// model adapters, the ID of the current adapter, and routes each request
// through preferred → current → remaining adapters in registration order until
// one succeeds.
//
// The current pointer only ever references a configured adapter, and an
// adapter that is not configured is never invoked. The internal lock is held
// only around registry reads and pointer swaps, never across adapter calls.
type Router struct {
	cbCfg   CircuitBreakerConfig
	metrics *observe.Metrics

	mu      sync.RWMutex
	entries []*routeEntry
	byID    map[string]*routeEntry
	current string
	timeout time.Duration
}

// NewRouter creates an empty [Router].
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAdapterTimeout
	}
	return &Router{
		cbCfg:   cfg.CircuitBreaker,
		metrics: cfg.Metrics,
		byID:    make(map[string]*routeEntry),
		timeout: cfg.Timeout,
	}
}

// Register appends an adapter under id. Whether it is configured is read once
// from p.Configured(). The first configured adapter becomes current.
func (r *Router) Register(id string, p llm.Provider) error {
	if id == "" {
		return fmt.Errorf("resilience: model id must not be empty")
	}
	if p == nil {
		return fmt.Errorf("resilience: provider for model %q must not be nil", id)
	}

	cbCfg := r.cbCfg
	cbCfg.Name = id
	e := &routeEntry{
		id:         id,
		configured: p.Configured(),
		provider:   p,
		breaker:    NewCircuitBreaker(cbCfg),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[id]; dup {
		return fmt.Errorf("resilience: model %q already registered", id)
	}
	r.entries = append(r.entries, e)
	r.byID[id] = e
	if r.current == "" && e.configured {
		r.current = id
	}
	return nil
}

// SetTimeout changes the per-adapter timeout for subsequent calls.
func (r *Router) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultAdapterTimeout
	}
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

// Current returns the ID of the current model, or "" if none is set.
func (r *Router) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// ConfiguredServices returns the IDs of all configured adapters in
// registration order.
func (r *Router) ConfiguredServices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, e := range r.entries {
		if e.configured {
			ids = append(ids, e.id)
		}
	}
	return ids
}

// HasConfiguredService reports whether at least one adapter is configured.
func (r *Router) HasConfiguredService() bool {
	return len(r.ConfiguredServices()) > 0
}

// Models returns all registered IDs in registration order.
func (r *Router) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.id
	}
	return ids
}

// SwitchModel makes id the current model. It fails with [ErrUnknownModel] or
// [ErrAdapterUnavailable] and leaves the current model unchanged in that case.
func (r *Router) SwitchModel(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	if !e.configured {
		r.mu.Unlock()
		return fmt.Errorf("%w: model %q is not configured", ErrAdapterUnavailable, id)
	}
	prev := r.current
	r.current = id
	r.mu.Unlock()

	if prev != id {
		observe.Logger(ctx).Info("switched conversational model", "from", prev, "to", id)
		if r.metrics != nil {
			r.metrics.RecordModelSwitch(ctx, prev, id, "manual")
		}
	}
	return nil
}

// candidates snapshots the routing order for one request.
func (r *Router) candidates(ctx context.Context, preferred string) (order []*routeEntry, preferredEntry *routeEntry, timeout time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.entries))
	add := func(e *routeEntry) {
		if e == nil || seen[e.id] || !e.configured {
			return
		}
		seen[e.id] = true
		order = append(order, e)
	}

	if preferred != "" {
		e, ok := r.byID[preferred]
		switch {
		case !ok:
			observe.Logger(ctx).Warn("preferred model is not registered, ignoring", "model", preferred)
		case !e.configured:
			observe.Logger(ctx).Warn("preferred model is not configured, ignoring", "model", preferred)
		default:
			preferredEntry = e
			add(e)
		}
	}
	if r.current != "" {
		add(r.byID[r.current])
	}
	for _, e := range r.entries {
		add(e)
	}
	return order, preferredEntry, r.timeout
}

// GetResponse routes req through the configured adapters and returns the
// first successful reply.
//
// Order: the preferred model (one-shot, never becomes current), then the
// current model, then every other configured adapter in registration order.
// Each adapter is invoked at most once. The first adapter other than the
// preferred one to succeed becomes current. When every candidate fails an
// [*AllServicesFailedError] is returned and the current model is unchanged.
func (r *Router) GetResponse(ctx context.Context, req Request) (*Response, error) {
	ctx, span := observe.StartSpan(ctx, "router.GetResponse")
	defer span.End()

	order, preferred, timeout := r.candidates(ctx, req.PreferredModel)
	if len(order) == 0 {
		return nil, &AllServicesFailedError{
			Last: fmt.Errorf("%w: no configured model adapters", ErrAdapterUnavailable),
		}
	}

	creq := buildCompletionRequest(req)
	log := observe.Logger(ctx)

	var (
		attempts int
		lastErr  error
	)
	for _, e := range order {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		start := time.Now()
		resp, err := r.attempt(ctx, e, creq, timeout)
		if errors.Is(err, ErrCircuitOpen) {
			log.Debug("skipping model (circuit open)", "model", e.id)
			lastErr = fmt.Errorf("%w: model %q circuit open", ErrAdapterUnavailable, e.id)
			continue
		}
		attempts++
		latency := time.Since(start)
		r.record(ctx, e.id, latency, err)

		if err != nil {
			lastErr = fmt.Errorf("%w: model %q: %w", ErrAdapterCallFailed, e.id, err)
			log.Warn("provider failed, trying next", "provider", e.id, "attempt", attempts, "error", err)
			continue
		}

		if e != preferred {
			r.promote(ctx, e.id)
		}
		span.SetAttributes(
			attribute.String("lingoxa.model", e.id),
			attribute.Int("lingoxa.attempts", attempts),
		)
		return &Response{
			Content:    resp.Content,
			ModelID:    e.id,
			Confidence: resp.Confidence,
			Attempts:   attempts,
			Latency:    latency,
		}, nil
	}

	span.SetAttributes(attribute.Int("lingoxa.attempts", attempts))
	return nil, &AllServicesFailedError{Attempts: attempts, Last: lastErr}
}

// attempt invokes one adapter under its own timeout and circuit breaker.
// The timeout holds even when the adapter ignores its context, and panics
// inside the adapter are converted into errors.
func (r *Router) attempt(ctx context.Context, e *routeEntry, creq llm.CompletionRequest, timeout time.Duration) (*llm.CompletionResponse, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp *llm.CompletionResponse
	err := e.breaker.Execute(func() error {
		var err error
		resp, err = Bounded(actx, func(ctx context.Context) (*llm.CompletionResponse, error) {
			return e.provider.Complete(ctx, creq)
		})
		if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
			err = errors.New("empty completion")
		}
		return err
	})
	return resp, err
}

// promote makes id the current model if it is not already.
func (r *Router) promote(ctx context.Context, id string) {
	r.mu.Lock()
	prev := r.current
	r.current = id
	r.mu.Unlock()

	if prev != id {
		observe.Logger(ctx).Info("conversational model failed over", "from", prev, "to", id)
		if r.metrics != nil {
			r.metrics.RecordModelSwitch(ctx, prev, id, "fallback")
		}
	}
}

func (r *Router) record(ctx context.Context, id string, d time.Duration, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.LLMDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", id)))
	status := "ok"
	if err != nil {
		status = "error"
		r.metrics.RecordProviderError(ctx, id, observe.KindLLM)
	}
	r.metrics.RecordProviderRequest(ctx, id, observe.KindLLM, status)
}

// TestAllServices probes every registered adapter concurrently and reports
// which ones are healthy. Unconfigured adapters are reported as false without
// being called. A failing, hanging or panicking probe only affects its own
// entry. The current model is never changed.
func (r *Router) TestAllServices(ctx context.Context) map[string]bool {
	r.mu.RLock()
	entries := make([]*routeEntry, len(r.entries))
	copy(entries, r.entries)
	timeout := r.timeout
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]bool, len(entries))
		g       errgroup.Group
	)
	for _, e := range entries {
		if !e.configured {
			results[e.id] = false
			continue
		}
		g.Go(func() error {
			ok := probe(ctx, e, timeout)
			mu.Lock()
			results[e.id] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func probe(ctx context.Context, e *routeEntry, timeout time.Duration) bool {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := Bounded(pctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.provider.Ping(ctx)
	})
	switch {
	case err == nil:
		return true
	case pctx.Err() != nil && !errors.Is(err, ErrPanicked):
		observe.Logger(ctx).Warn("model probe timed out", "model", e.id)
	default:
		observe.Logger(ctx).Warn("model probe failed", "model", e.id, "error", err)
	}
	return false
}

// buildCompletionRequest flattens a routing request into adapter messages.
func buildCompletionRequest(req Request) llm.CompletionRequest {
	msgs := make([]types.Message, 0, 2*len(req.History)+1)
	for _, t := range req.History {
		msgs = append(msgs,
			types.Message{Role: "user", Content: t.UserMessage},
			types.Message{Role: "assistant", Content: t.AIResponse},
		)
	}
	msgs = append(msgs, types.Message{Role: "user", Content: req.Prompt})
	return llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}
}
