package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/lingoxa/pkg/audio"
	"github.com/MrWong99/lingoxa/pkg/provider/tts"
)

// ---- test helpers ----

// sentenceServer answers every synthesis request with a WAV whose samples
// encode the length of the requested sentence, so the output order can be
// checked.
type sentenceServer struct {
	mu       sync.Mutex
	format   audio.Format
	status   int
	requests []*http.Request
	bodies   []ttsRequest
	delay    func(text string) time.Duration
}

func (s *sentenceServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var text string
	switch {
	case r.Method == http.MethodGet && r.URL.Path == apiTTSEndpoint:
		text = r.URL.Query().Get("text")
	case r.Method == http.MethodPost && r.URL.Path == ttsEndpoint:
		var body ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		text = body.Text
		s.mu.Lock()
		s.bodies = append(s.bodies, body)
		s.mu.Unlock()
	default:
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, r)
	status := s.status
	s.mu.Unlock()

	if s.delay != nil {
		time.Sleep(s.delay(text))
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	_, _ = w.Write(audio.EncodeWAV(marker(len(text)), s.format))
}

// marker returns 64 PCM16 samples carrying v.
func marker(v int) []byte {
	b := make([]byte, 128)
	for i := 0; i < len(b); i += 2 {
		binary.LittleEndian.PutUint16(b[i:], uint16(v))
	}
	return b
}

func newServer(t *testing.T, s *sentenceServer) string {
	t.Helper()
	if s.format == (audio.Format{}) {
		s.format = audio.Canonical
	}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv.URL
}

func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// ---- tests ----

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty serverURL")
	}

	p := mustNew(t, "http://localhost:5002/")
	if p.serverURL != "http://localhost:5002" {
		t.Errorf("serverURL = %q, trailing slash not trimmed", p.serverURL)
	}
	if p.language != defaultLanguage {
		t.Errorf("language = %q, want %q", p.language, defaultLanguage)
	}
	if p.apiMode != APIModeStandard {
		t.Errorf("apiMode = %q, want %q", p.apiMode, APIModeStandard)
	}
	if p.httpClient.Timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
	}

	p = mustNew(t, "http://x", WithLanguage("de"), WithTimeout(5*time.Second), WithAPIMode(APIModeXTTS), WithSpeaker("Ana"))
	if p.language != "de" || p.httpClient.Timeout != 5*time.Second || p.apiMode != APIModeXTTS || p.speaker != "Ana" {
		t.Errorf("options not applied: %+v", p)
	}
}

func TestSynthesize_StandardAPI_KeepsSentenceOrder(t *testing.T) {
	t.Parallel()

	// The first sentence is the slowest so out-of-order completion is exercised.
	srv := &sentenceServer{delay: func(text string) time.Duration {
		if strings.HasPrefix(text, "Good") {
			return 50 * time.Millisecond
		}
		return 0
	}}
	p := mustNew(t, newServer(t, srv))

	text := "Good try! You should say \"I am going\". Version 3.14 is fine?"
	wav, err := p.Synthesize(context.Background(), text, "p225")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}

	sentences := []string{"Good try!", "You should say \"I am going\".", "Version 3.14 is fine?"}
	var want []byte
	for _, s := range sentences {
		want = append(want, marker(len(s))...)
	}
	if !bytes.Equal(clip.PCM, want) {
		t.Errorf("PCM = %v, want %v", clip.PCM, want)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.requests) != 3 {
		t.Fatalf("requests = %d, want 3", len(srv.requests))
	}
	for _, r := range srv.requests {
		q := r.URL.Query()
		if q.Get("speaker_id") != "p225" || q.Get("language_id") != "en" {
			t.Errorf("query = %v", q)
		}
		if r.Header.Get("Accept") != "audio/wav" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	t.Parallel()

	srv := &sentenceServer{}
	p := mustNew(t, newServer(t, srv), WithAPIMode(APIModeXTTS), WithSpeaker("Ana Florence"), WithLanguage("en"))

	if _, err := p.Synthesize(context.Background(), "Hello there.", ""); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.bodies) != 1 {
		t.Fatalf("bodies = %d, want 1", len(srv.bodies))
	}
	if b := srv.bodies[0]; b.Text != "Hello there." || b.SpeakerWav != "Ana Florence" || b.Language != "en" {
		t.Errorf("body = %+v", b)
	}
}

func TestSynthesize_XTTSRequiresSpeaker(t *testing.T) {
	t.Parallel()

	p := mustNew(t, "http://localhost:1", WithAPIMode(APIModeXTTS))
	if _, err := p.Synthesize(context.Background(), "Hello.", ""); err == nil {
		t.Error("expected error without a speaker in XTTS mode")
	}
}

func TestSynthesize_OutputSampleRate(t *testing.T) {
	t.Parallel()

	srv := &sentenceServer{format: audio.Format{SampleRate: 22050, Channels: 1}}
	p := mustNew(t, newServer(t, srv), WithOutputSampleRate(16000))

	wav, err := p.Synthesize(context.Background(), "Hi.", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.Format.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", clip.Format.SampleRate)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty text", func(t *testing.T) {
		t.Parallel()
		p := mustNew(t, "http://localhost:1")
		if _, err := p.Synthesize(context.Background(), " \n ", ""); !errors.Is(err, tts.ErrEmptyText) {
			t.Errorf("err = %v, want ErrEmptyText", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()
		p := mustNew(t, newServer(t, &sentenceServer{status: http.StatusInternalServerError}))
		_, err := p.Synthesize(context.Background(), "One. Two.", "")
		if err == nil || !strings.Contains(err.Error(), "status 500") {
			t.Errorf("err = %v, want status 500", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		p := mustNew(t, newServer(t, &sentenceServer{}))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := p.Synthesize(ctx, "Hello.", ""); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"Hello", []string{"Hello"}},
		{"Hello. World!", []string{"Hello.", "World!"}},
		{"Pi is 3.14. Right?", []string{"Pi is 3.14.", "Right?"}},
		{"  Trailing fragment. and more  ", []string{"Trailing fragment.", "and more"}},
	}
	for _, tc := range tests {
		got := splitSentences(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("splitSentences(%q) = %q, want %q", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("splitSentences(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestFindSentenceBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  int
	}{
		{"Hello world", -1},
		{"Hello world.", 11},
		{"Hello. World", 5},
		{"Wait! Really?", 4},
		{"3.14 is pi", -1},
		{"", -1},
	}
	for _, tc := range tests {
		if got := findSentenceBoundary(tc.input); got != tc.want {
			t.Errorf("findSentenceBoundary(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}
