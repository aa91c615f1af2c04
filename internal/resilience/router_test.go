package resilience

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lingoxa/pkg/provider/llm"
	"github.com/MrWong99/lingoxa/pkg/provider/llm/mock"
	"github.com/MrWong99/lingoxa/pkg/types"
)

func okModel(content string) *mock.Provider {
	return &mock.Provider{
		IsConfigured:     true,
		CompleteResponse: &llm.CompletionResponse{Content: content},
	}
}

func failingModel() *mock.Provider {
	return &mock.Provider{IsConfigured: true, CompleteErr: errTest}
}

func newTestRouter(t *testing.T, models ...any) *Router {
	t.Helper()
	r := NewRouter(RouterConfig{Timeout: time.Second})
	for i := 0; i < len(models); i += 2 {
		if err := r.Register(models[i].(string), models[i+1].(*mock.Provider)); err != nil {
			t.Fatalf("Register(%v): %v", models[i], err)
		}
	}
	return r
}

func TestRouter_Register(t *testing.T) {
	t.Parallel()

	r := NewRouter(RouterConfig{})
	if err := r.Register("", okModel("x")); err == nil {
		t.Error("expected error for empty id")
	}
	if err := r.Register("a", nil); err == nil {
		t.Error("expected error for nil provider")
	}

	if err := r.Register("offline", &mock.Provider{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := r.Current(); got != "" {
		t.Errorf("Current() = %q after registering unconfigured model, want empty", got)
	}
	if err := r.Register("openai", okModel("x")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("claude", okModel("y")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := r.Current(); got != "openai" {
		t.Errorf("Current() = %q, want first configured model openai", got)
	}
	if err := r.Register("openai", okModel("z")); err == nil {
		t.Error("expected error for duplicate id")
	}

	if got := r.ConfiguredServices(); !slices.Equal(got, []string{"openai", "claude"}) {
		t.Errorf("ConfiguredServices() = %v", got)
	}
	if got := r.Models(); !slices.Equal(got, []string{"offline", "openai", "claude"}) {
		t.Errorf("Models() = %v", got)
	}
	if !r.HasConfiguredService() {
		t.Error("HasConfiguredService() = false")
	}
}

func TestRouter_SwitchModel(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, "openai", okModel("a"), "claude", okModel("b"), "offline", &mock.Provider{})
	ctx := context.Background()

	tests := []struct {
		id      string
		wantErr error
		want    string
	}{
		{"claude", nil, "claude"},
		{"nope", ErrUnknownModel, "claude"},
		{"offline", ErrAdapterUnavailable, "claude"},
		{"openai", nil, "openai"},
	}
	for _, tc := range tests {
		err := r.SwitchModel(ctx, tc.id)
		if tc.wantErr == nil && err != nil {
			t.Errorf("SwitchModel(%q) error: %v", tc.id, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Errorf("SwitchModel(%q) = %v, want %v", tc.id, err, tc.wantErr)
		}
		if got := r.Current(); got != tc.want {
			t.Errorf("after SwitchModel(%q): Current() = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestRouter_GetResponse_UsesCurrent(t *testing.T) {
	t.Parallel()

	a, b := okModel("from a"), okModel("from b")
	r := newTestRouter(t, "a", a, "b", b)

	resp, err := r.GetResponse(context.Background(), Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if resp.Content != "from a" || resp.ModelID != "a" || resp.Attempts != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if b.CallCount() != 0 {
		t.Errorf("b called %d times, want 0", b.CallCount())
	}
}

func TestRouter_GetResponse_FallbackBecomesCurrent(t *testing.T) {
	t.Parallel()

	a, b, c := failingModel(), okModel("from b"), okModel("from c")
	r := newTestRouter(t, "a", a, "b", b, "c", c)

	resp, err := r.GetResponse(context.Background(), Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if resp.ModelID != "b" || resp.Attempts != 2 {
		t.Errorf("resp = %+v, want served by b after 2 attempts", resp)
	}
	if got := r.Current(); got != "b" {
		t.Errorf("Current() = %q, want b", got)
	}
	if c.CallCount() != 0 {
		t.Error("c should not be called after b succeeded")
	}

	// The next request starts at the new current model.
	a.Reset()
	if _, err := r.GetResponse(context.Background(), Request{Prompt: "again"}); err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if a.CallCount() != 0 {
		t.Error("a should not be tried before the current model")
	}
}

func TestRouter_GetResponse_PreferredIsOneShot(t *testing.T) {
	t.Parallel()

	a, b := okModel("from a"), okModel("from b")
	r := newTestRouter(t, "a", a, "b", b)

	resp, err := r.GetResponse(context.Background(), Request{Prompt: "hi", PreferredModel: "b"})
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if resp.ModelID != "b" {
		t.Errorf("ModelID = %q, want b", resp.ModelID)
	}
	if got := r.Current(); got != "a" {
		t.Errorf("Current() = %q, preferred model must not become current", got)
	}
	if a.CallCount() != 0 {
		t.Error("current model called although preferred succeeded")
	}
}

func TestRouter_GetResponse_PreferredFailsFallsBackToCurrent(t *testing.T) {
	t.Parallel()

	a, b := okModel("from a"), failingModel()
	r := newTestRouter(t, "a", a, "b", b)

	resp, err := r.GetResponse(context.Background(), Request{Prompt: "hi", PreferredModel: "b"})
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if resp.ModelID != "a" || resp.Attempts != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if got := r.Current(); got != "a" {
		t.Errorf("Current() = %q, want a", got)
	}
	if b.CallCount() != 1 {
		t.Errorf("b called %d times, want exactly 1", b.CallCount())
	}
}

func TestRouter_GetResponse_UnknownOrUnconfiguredPreferredIgnored(t *testing.T) {
	t.Parallel()

	offline := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "never"}}
	r := newTestRouter(t, "a", okModel("from a"), "offline", offline)

	for _, pref := range []string{"ghost", "offline"} {
		resp, err := r.GetResponse(context.Background(), Request{Prompt: "hi", PreferredModel: pref})
		if err != nil {
			t.Fatalf("GetResponse(preferred=%q): %v", pref, err)
		}
		if resp.ModelID != "a" {
			t.Errorf("preferred=%q: ModelID = %q, want a", pref, resp.ModelID)
		}
	}
	if offline.CallCount() != 0 {
		t.Error("unconfigured adapter was invoked")
	}
}

func TestRouter_GetResponse_AllFail(t *testing.T) {
	t.Parallel()

	offline := &mock.Provider{}
	r := newTestRouter(t, "a", failingModel(), "offline", offline, "b", failingModel())

	resp, err := r.GetResponse(context.Background(), Request{Prompt: "hi"})
	if resp != nil {
		t.Errorf("resp = %+v, want nil", resp)
	}
	if !errors.Is(err, ErrAllServicesFailed) {
		t.Fatalf("err = %v, want ErrAllServicesFailed", err)
	}
	var asf *AllServicesFailedError
	if !errors.As(err, &asf) {
		t.Fatalf("err is %T, want *AllServicesFailedError", err)
	}
	if asf.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", asf.Attempts)
	}
	if !errors.Is(err, ErrAdapterCallFailed) || !errors.Is(err, errTest) {
		t.Errorf("err = %v, want to wrap the last adapter error", err)
	}
	if got := r.Current(); got != "a" {
		t.Errorf("Current() = %q, want unchanged a", got)
	}
	if offline.CallCount() != 0 {
		t.Error("unconfigured adapter was invoked")
	}
}

func TestRouter_GetResponse_NoConfiguredModels(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, "offline", &mock.Provider{})
	_, err := r.GetResponse(context.Background(), Request{Prompt: "hi"})
	if !errors.Is(err, ErrAllServicesFailed) || !errors.Is(err, ErrAdapterUnavailable) {
		t.Errorf("err = %v", err)
	}
	if r.HasConfiguredService() {
		t.Error("HasConfiguredService() = true")
	}
}

func TestRouter_GetResponse_EmptyContentIsFailure(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, "a", okModel("   "), "b", okModel("real"))
	resp, err := r.GetResponse(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if resp.ModelID != "b" {
		t.Errorf("ModelID = %q, want b", resp.ModelID)
	}
}

func TestRouter_GetResponse_PerAttemptTimeout(t *testing.T) {
	t.Parallel()

	slow := &mock.Provider{
		IsConfigured: true,
		CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r := newTestRouter(t, "slow", slow, "fast", okModel("quick"))
	r.SetTimeout(20 * time.Millisecond)

	start := time.Now()
	resp, err := r.GetResponse(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if resp.ModelID != "fast" {
		t.Errorf("ModelID = %q, want fast", resp.ModelID)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("GetResponse took %v, timeout not applied", elapsed)
	}
}

func TestRouter_GetResponse_TimeoutIgnoredByAdapter(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stubborn := &mock.Provider{
		IsConfigured: true,
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-release
			return &llm.CompletionResponse{Content: "too late"}, nil
		},
	}

	t.Run("falls back to the next model", func(t *testing.T) {
		t.Parallel()
		r := newTestRouter(t, "stubborn", stubborn, "fast", okModel("quick"))
		r.SetTimeout(50 * time.Millisecond)

		start := time.Now()
		resp, err := r.GetResponse(context.Background(), Request{Prompt: "hi"})
		if err != nil {
			t.Fatalf("GetResponse: %v", err)
		}
		if resp.ModelID != "fast" || resp.Attempts != 2 {
			t.Errorf("resp = %+v, want fast after 2 attempts", resp)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("GetResponse took %v with a 50ms per-attempt timeout", elapsed)
		}
	})

	t.Run("timeout alone counts as a failed attempt", func(t *testing.T) {
		t.Parallel()
		r := newTestRouter(t, "stubborn", stubborn)
		r.SetTimeout(50 * time.Millisecond)

		_, err := r.GetResponse(context.Background(), Request{Prompt: "hi"})
		if !errors.Is(err, ErrAllServicesFailed) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want all-failed wrapping a deadline", err)
		}
		if cur := r.Current(); cur != "stubborn" {
			t.Errorf("Current() = %q, want unchanged", cur)
		}
	})
}

func TestRouter_GetResponse_PanickingAdapter(t *testing.T) {
	t.Parallel()

	boom := &mock.Provider{
		IsConfigured: true,
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			panic("boom")
		},
	}
	r := newTestRouter(t, "boom", boom, "ok", okModel("fine"))

	resp, err := r.GetResponse(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if resp.ModelID != "ok" {
		t.Errorf("ModelID = %q, want ok", resp.ModelID)
	}
}

func TestRouter_GetResponse_SkipsOpenCircuit(t *testing.T) {
	t.Parallel()

	a, b := failingModel(), okModel("from b")
	r := NewRouter(RouterConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	_ = r.Register("a", a)
	_ = r.Register("b", b)

	if _, err := r.GetResponse(context.Background(), Request{Prompt: "1"}); err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if err := r.SwitchModel(context.Background(), "a"); err != nil {
		t.Fatalf("SwitchModel: %v", err)
	}
	a.Reset()

	resp, err := r.GetResponse(context.Background(), Request{Prompt: "2"})
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if resp.Attempts != 1 || resp.ModelID != "b" {
		t.Errorf("resp = %+v, want b on first real attempt", resp)
	}
	if a.CallCount() != 0 {
		t.Error("adapter with open circuit was invoked")
	}
}

func TestRouter_GetResponse_CancelledContext(t *testing.T) {
	t.Parallel()

	a := okModel("x")
	r := newTestRouter(t, "a", a)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.GetResponse(ctx, Request{Prompt: "hi"})
	if !errors.Is(err, ErrAllServicesFailed) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if a.CallCount() != 0 {
		t.Error("adapter invoked with cancelled context")
	}
}

func TestRouter_GetResponse_BuildsMessages(t *testing.T) {
	t.Parallel()

	a := okModel("ok")
	r := newTestRouter(t, "a", a)
	_, err := r.GetResponse(context.Background(), Request{
		Prompt:       "How are you?",
		SystemPrompt: "You are a tutor.",
		History: []types.ConversationTurn{
			{UserMessage: "Hi", AIResponse: "Hello!"},
		},
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}

	calls := a.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt != "You are a tutor." || req.MaxTokens != 64 {
		t.Errorf("req = %+v", req)
	}
	var roles []string
	for _, m := range req.Messages {
		roles = append(roles, m.Role)
	}
	if !slices.Equal(roles, []string{"user", "assistant", "user"}) {
		t.Errorf("roles = %v", roles)
	}
	if last := req.Messages[len(req.Messages)-1].Content; last != "How are you?" {
		t.Errorf("last message = %q", last)
	}
}

func TestRouter_TestAllServices(t *testing.T) {
	t.Parallel()

	hanging := &mock.Provider{IsConfigured: true}
	hangingPing := make(chan struct{})
	t.Cleanup(func() { close(hangingPing) })
	hangingRouter := NewRouter(RouterConfig{Timeout: 50 * time.Millisecond})

	offline := &mock.Provider{}
	r := newTestRouter(t,
		"healthy", okModel("x"),
		"broken", &mock.Provider{IsConfigured: true, PingErr: errTest},
		"panics", &mock.Provider{IsConfigured: true, PingPanic: "kaboom"},
		"offline", offline,
	)
	_ = r.SwitchModel(context.Background(), "broken")

	got := r.TestAllServices(context.Background())
	want := map[string]bool{"healthy": true, "broken": false, "panics": false, "offline": false}
	for id, ok := range want {
		if got[id] != ok {
			t.Errorf("TestAllServices()[%q] = %v, want %v", id, got[id], ok)
		}
	}
	if len(got) != len(want) {
		t.Errorf("len = %d, want %d", len(got), len(want))
	}
	if offline.PingCallCount != 0 {
		t.Error("unconfigured adapter was probed")
	}
	if cur := r.Current(); cur != "broken" {
		t.Errorf("Current() = %q, probing must not change it", cur)
	}

	_ = hangingRouter.Register("hanging", &blockingPinger{Provider: hanging, release: hangingPing})
	start := time.Now()
	if res := hangingRouter.TestAllServices(context.Background()); res["hanging"] {
		t.Error("hanging adapter reported healthy")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("probe timeout not applied")
	}
}

// blockingPinger is an adapter whose Ping blocks until release is closed.
type blockingPinger struct {
	*mock.Provider
	release chan struct{}
}

func (b *blockingPinger) Ping(context.Context) error {
	<-b.release
	return nil
}

func TestAllServicesFailedError_Message(t *testing.T) {
	t.Parallel()

	err := &AllServicesFailedError{Attempts: 3, Last: errTest}
	if !strings.Contains(err.Error(), "3 attempt(s)") || !strings.Contains(err.Error(), "test error") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrAllServicesFailed) {
		t.Error("errors.Is(err, ErrAllServicesFailed) = false")
	}
}
