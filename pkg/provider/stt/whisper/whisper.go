// Package whisper provides an STT provider backed by a whisper.cpp server.
//
// It uploads each recording to a running whisper-server binary (REST API at
// POST /inference) as multipart/form-data and asks for the verbose JSON
// response so word timings and probabilities are available.
//
// Recordings whose energy never rises above the silence threshold are not
// sent to the server at all; they produce an empty transcription.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithModel("base.en"),
//	)
//	res, err := p.Transcribe(ctx, wav, stt.Options{WithTimestamps: true})
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/MrWong99/lingoxa/pkg/audio"
	"github.com/MrWong99/lingoxa/pkg/provider/stt"
	"github.com/MrWong99/lingoxa/pkg/types"
)

// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
// units) below which a recording is considered silent. The maximum possible
// value for 16-bit audio is 32 767; 300 corresponds to near-silence.
const defaultRMSThreshold = 300.0

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSilenceThreshold sets the RMS level below which a recording is treated
// as silence. Zero or negative disables the check.
func WithSilenceThreshold(rms float64) Option {
	return func(p *Provider) {
		p.silenceRMS = rms
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	silenceRMS float64
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		silenceRMS: defaultRMSThreshold,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, wav []byte, opts stt.Options) (*types.TranscriptionResult, error) {
	if len(wav) == 0 {
		return nil, fmt.Errorf("whisper: %w", stt.ErrEmptyAudio)
	}
	start := time.Now()

	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	if p.silenceRMS > 0 && computeRMS(clip.PCM) < p.silenceRMS {
		return &types.TranscriptionResult{
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	resp, err := p.infer(ctx, wav, opts)
	if err != nil {
		return nil, err
	}

	res := resp.toResult(opts.WithTimestamps)
	res.ProcessingTimeMs = time.Since(start).Milliseconds()
	return res, nil
}

// inferenceResponse is the verbose JSON document returned by /inference.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
		Words      []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

// toResult converts the server response. Confidence is the mean word
// probability when words are reported, otherwise the geometric mean token
// probability derived from the segments' average log-probability, otherwise 1.
func (r *inferenceResponse) toResult(withTimestamps bool) *types.TranscriptionResult {
	text := strings.TrimSpace(r.Text)
	res := &types.TranscriptionResult{Text: text}
	if text == "" {
		return res
	}

	var (
		probSum    float64
		wordCount  int
		logprobSum float64
	)
	for _, seg := range r.Segments {
		logprobSum += seg.AvgLogprob
		for _, w := range seg.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" {
				continue
			}
			probSum += w.Probability
			wordCount++
			if withTimestamps {
				res.Words = append(res.Words, types.WordTimestamp{
					Word:       word,
					Start:      seconds(w.Start),
					End:        seconds(w.End),
					Confidence: types.ClampUnit(w.Probability),
				})
			}
		}
	}

	switch {
	case wordCount > 0:
		res.Confidence = types.ClampUnit(probSum / float64(wordCount))
	case len(r.Segments) > 0:
		res.Confidence = types.ClampUnit(math.Exp(logprobSum / float64(len(r.Segments))))
	default:
		res.Confidence = 1
	}
	return res
}

// infer POSTs the WAV file to the whisper.cpp /inference endpoint.
func (p *Provider) infer(ctx context.Context, wav []byte, opts stt.Options) (*inferenceResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"language":        primaryLanguage(opts.LanguageOrDefault()),
		"response_format": "verbose_json",
	}
	if opts.WithTimestamps {
		fields["word_timestamps"] = "true"
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result inferenceResponse
	if err := sonic.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return &result, nil
}

// primaryLanguage strips the region from a BCP-47 tag ("en-US" → "en");
// whisper.cpp only understands bare language codes.
func primaryLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer. Returns 0 for buffers shorter than one sample.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
