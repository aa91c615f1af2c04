// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (whisper-1 and the gpt-4o transcribe models).
//
// The verbose JSON response format is requested so segment log-probabilities
// and, when asked for, word timings are available.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/lingoxa/pkg/provider/stt"
	"github.com/MrWong99/lingoxa/pkg/types"
)

const defaultModel = oai.AudioModelWhisper1

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	model   string
	timeout time.Duration
	prompt  string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel selects the transcription model. Default: whisper-1.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithPrompt sets a recognition prompt, e.g. a short note that the speaker
// is a Vietnamese learner of English.
func WithPrompt(prompt string) Option {
	return func(c *config) {
		c.prompt = prompt
	}
}

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  oai.AudioModel
	prompt string
}

// New constructs a new OpenAI transcription provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	cfg := &config{model: string(defaultModel)}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Uploads are not retried.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  oai.AudioModel(cfg.model),
		prompt: cfg.prompt,
	}, nil
}

// verboseTranscription holds the verbose_json fields the SDK type does not
// model explicitly.
type verboseTranscription struct {
	Segments []verboseSegment `json:"segments"`
	Words    []verboseWord    `json:"words"`
}

type verboseSegment struct {
	AvgLogprob float64 `json:"avg_logprob"`
}

type verboseWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, wav []byte, opts stt.Options) (*types.TranscriptionResult, error) {
	if len(wav) == 0 {
		return nil, fmt.Errorf("openai stt: %w", stt.ErrEmptyAudio)
	}
	start := time.Now()

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model:          p.model,
		Language:       oai.String(primaryLanguage(opts.LanguageOrDefault())),
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if opts.WithTimestamps {
		params.TimestampGranularities = []string{"word", "segment"}
	}
	if p.prompt != "" {
		params.Prompt = oai.String(p.prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	res := &types.TranscriptionResult{Text: strings.TrimSpace(resp.Text)}
	if res.Text != "" {
		var verbose verboseTranscription
		if raw := resp.RawJSON(); raw != "" {
			if err := sonic.UnmarshalString(raw, &verbose); err != nil {
				return nil, fmt.Errorf("openai stt: parse verbose response: %w", err)
			}
		}
		res.Confidence = confidence(verbose, resp.Logprobs)
		if opts.WithTimestamps {
			for _, w := range verbose.Words {
				res.Words = append(res.Words, types.WordTimestamp{
					Word:  strings.TrimSpace(w.Word),
					Start: time.Duration(w.Start * float64(time.Second)),
					End:   time.Duration(w.End * float64(time.Second)),
					// The API does not grade single words.
					Confidence: res.Confidence,
				})
			}
		}
	}
	res.ProcessingTimeMs = time.Since(start).Milliseconds()
	return res, nil
}

// confidence derives a [0, 1] confidence from token log-probabilities (gpt-4o
// transcribe models) or from segment average log-probabilities (whisper-1).
// Without either it returns 1.
func confidence(v verboseTranscription, logprobs []oai.TranscriptionLogprob) float64 {
	if len(logprobs) > 0 {
		var sum float64
		for _, lp := range logprobs {
			sum += lp.Logprob
		}
		return types.ClampUnit(math.Exp(sum / float64(len(logprobs))))
	}
	if len(v.Segments) > 0 {
		var sum float64
		for _, s := range v.Segments {
			sum += s.AvgLogprob
		}
		return types.ClampUnit(math.Exp(sum / float64(len(v.Segments))))
	}
	return 1
}

func primaryLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}
