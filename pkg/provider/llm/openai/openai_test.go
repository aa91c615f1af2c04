package openai

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/lingoxa/pkg/provider/llm"
	"github.com/MrWong99/lingoxa/pkg/types"
)

// TestConvertMessage_System checks that system role is converted correctly.
func TestConvertMessage_System(t *testing.T) {
	msg := types.Message{Role: "system", Content: "You are helpful."}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

// TestConvertMessage_User checks that user role is converted correctly.
func TestConvertMessage_User(t *testing.T) {
	msg := types.Message{Role: "user", Content: "Hello!"}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

// TestConvertMessage_Assistant checks that assistant role is converted.
func TestConvertMessage_Assistant(t *testing.T) {
	msg := types.Message{Role: "assistant", Content: "Hi there!"}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
}

// TestConvertMessage_UnknownRole checks that unknown roles return an error.
func TestConvertMessage_UnknownRole(t *testing.T) {
	_, err := convertMessage(types.Message{Role: "tool", Content: "x"})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("key", ""); err == nil {
		t.Error("expected error for empty model")
	}
	p, err := New("", "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Configured() {
		t.Error("provider without api key must report Configured() == false")
	}
	p, err = New("sk-test", "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Configured() {
		t.Error("provider with api key must report Configured() == true")
	}
}

func TestConfidenceFromLogprobs(t *testing.T) {
	if got := confidenceFromLogprobs(nil); got != nil {
		t.Errorf("expected nil for empty logprobs, got %v", *got)
	}
	got := confidenceFromLogprobs([]float64{0, 0})
	if got == nil || *got != 1 {
		t.Errorf("expected 1 for zero logprobs, got %v", got)
	}
	got = confidenceFromLogprobs([]float64{math.Log(0.5), math.Log(0.5)})
	if got == nil || math.Abs(*got-0.5) > 1e-9 {
		t.Errorf("expected 0.5, got %v", got)
	}
}

func TestCapabilities(t *testing.T) {
	p, _ := New("k", "gpt-4o-mini", WithLogprobs(true))
	caps := p.Capabilities()
	if !caps.ReportsConfidence {
		t.Error("expected ReportsConfidence with logprobs enabled")
	}
	if caps.MaxOutputTokens != 16_384 {
		t.Errorf("MaxOutputTokens = %d, want 16384", caps.MaxOutputTokens)
	}
}

const chatResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "Great job!"},
    "logprobs": {"content": [
      {"token": "Great", "logprob": 0, "bytes": [], "top_logprobs": []},
      {"token": " job", "logprob": 0, "bytes": [], "top_logprobs": []}
    ]}
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
}`

func TestComplete_HTTP(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatResponse)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/"), WithLogprobs(true), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are a tutor.",
		Messages:     []types.Message{{Role: "user", Content: "I am go home"}},
		Temperature:  0.5,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Great job!" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("TotalTokens = %d, want 12", resp.Usage.TotalTokens)
	}
	if resp.Confidence == nil || *resp.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1", resp.Confidence)
	}
	if !strings.Contains(gotBody, `"logprobs":true`) {
		t.Errorf("request body missing logprobs flag: %s", gotBody)
	}
	if !strings.Contains(gotBody, "You are a tutor.") {
		t.Errorf("request body missing system prompt: %s", gotBody)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p, _ := New("sk-bad", "gpt-4o", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if !strings.HasPrefix(err.Error(), "openai:") {
		t.Errorf("error should be package-prefixed, got %v", err)
	}
}
