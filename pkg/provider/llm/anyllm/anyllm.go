// Package anyllm provides a universal LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest", "sk-ant-...")
//	p, err := anyllm.NewOllama("llama3", "")
//
// Hosted backends without an API key (neither passed in nor present in the
// backend's environment variable) are built in an unconfigured state: they
// report Configured() == false and refuse every call.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/lingoxa/pkg/provider/llm"
	"github.com/MrWong99/lingoxa/pkg/types"
)

// ErrNotConfigured is returned by every call on a provider that was built
// without credentials.
var ErrNotConfigured = errors.New("anyllm: provider not configured")

// apiKeyEnv maps hosted backends to the environment variable any-llm-go reads
// when no explicit key is supplied. Backends absent from this map run locally
// and need no credentials.
var apiKeyEnv = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"deepseek":  {"DEEPSEEK_API_KEY"},
	"mistral":   {"MISTRAL_API_KEY"},
	"groq":      {"GROQ_API_KEY"},
}

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider // nil when unconfigured
	name    string
	model   string
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o", "claude-3-5-sonnet-latest").
//
// apiKey may be empty; see the package documentation for how that is handled.
// opts are any-llm-go configuration options (e.g., anyllmlib.WithBaseURL).
func New(providerName string, model string, apiKey string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	name := strings.ToLower(providerName)
	if !isSupported(name) {
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}

	p := &Provider{name: name, model: model}
	if apiKey == "" && !hasEnvKey(name) {
		return p, nil
	}
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}

	backend, err := createBackend(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	p.backend = backend
	return p, nil
}

// NewAnthropic creates a Provider backed by Anthropic.
func NewAnthropic(model, apiKey string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("anthropic", model, apiKey, opts...)
}

// NewGemini creates a Provider backed by Google Gemini.
func NewGemini(model, apiKey string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("gemini", model, apiKey, opts...)
}

// NewOllama creates a Provider backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model, apiKey string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, apiKey, opts...)
}

// NewDeepSeek creates a Provider backed by DeepSeek.
func NewDeepSeek(model, apiKey string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("deepseek", model, apiKey, opts...)
}

// NewMistral creates a Provider backed by Mistral AI.
func NewMistral(model, apiKey string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("mistral", model, apiKey, opts...)
}

// NewGroq creates a Provider backed by Groq.
func NewGroq(model, apiKey string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("groq", model, apiKey, opts...)
}

// NewLlamaCpp creates a Provider backed by a running llama.cpp server.
// Without options, it connects to http://127.0.0.1:8080/v1.
func NewLlamaCpp(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("llamacpp", model, "", opts...)
}

// NewLlamaFile creates a Provider backed by a running llamafile server.
func NewLlamaFile(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("llamafile", model, "", opts...)
}

func isSupported(name string) bool {
	switch name {
	case "openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile":
		return true
	}
	return false
}

// hasEnvKey reports whether the backend either needs no key or finds one in
// its environment.
func hasEnvKey(name string) bool {
	vars, hosted := apiKeyEnv[name]
	if !hosted {
		return true
	}
	for _, v := range vars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch providerName {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q", providerName)
	}
}

// Configured implements llm.Provider.
func (p *Provider) Configured() bool {
	return p.backend != nil
}

// Complete implements llm.Provider. any-llm-go does not expose token
// log-probabilities uniformly, so Confidence is always nil.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.backend == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotConfigured, p.name, p.model)
	}
	params := p.buildParams(req)

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	choice := resp.Choices[0]
	result := &llm.CompletionResponse{
		Content: choice.Message.ContentString(),
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// Ping implements llm.Provider with a one-token completion.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.Complete(ctx, llm.CompletionRequest{
		Messages:  []types.Message{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	})
	return err
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return modelCapabilities(p.model)
}

// buildParams converts our CompletionRequest into anyllm CompletionParams.
func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message

	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, m := range req.Messages {
		messages = append(messages, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}

	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}

	return params
}

// convertMessage converts our types.Message to anyllm.Message.
func convertMessage(m types.Message) anyllmlib.Message {
	return anyllmlib.Message{
		Role:    m.Role,
		Content: m.Content,
		Name:    m.Name,
	}
}

// modelCapabilities returns ModelCapabilities based on known model names.
// Unknown models receive sensible defaults.
func modelCapabilities(model string) types.ModelCapabilities {
	caps := types.ModelCapabilities{
		ContextWindow:   128_000,
		MaxOutputTokens: 4_096,
	}

	lower := strings.ToLower(model)

	switch {
	case strings.HasPrefix(lower, "gpt-4o"):
		caps.MaxOutputTokens = 16_384

	case strings.HasPrefix(lower, "gpt-4-turbo"):

	case strings.HasPrefix(lower, "gpt-4"):
		caps.ContextWindow = 8_192

	case strings.Contains(lower, "claude-3-opus"):
		caps.ContextWindow = 200_000

	case strings.HasPrefix(lower, "claude"):
		caps.ContextWindow = 200_000
		caps.MaxOutputTokens = 8_192

	case strings.Contains(lower, "gemini-1.5-pro"):
		caps.ContextWindow = 2_097_152
		caps.MaxOutputTokens = 8_192

	case strings.Contains(lower, "gemini-2.0-flash"), strings.Contains(lower, "gemini-1.5-flash"):
		caps.ContextWindow = 1_048_576
		caps.MaxOutputTokens = 8_192

	case strings.HasPrefix(lower, "gemini"):
		caps.MaxOutputTokens = 8_192
	}

	return caps
}

var _ llm.Provider = (*Provider)(nil)
