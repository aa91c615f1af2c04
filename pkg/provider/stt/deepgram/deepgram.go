// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// live WebSocket API. It implements the stt.Provider interface.
//
// A recording is streamed to Deepgram in full, followed by a CloseStream
// message; the final results Deepgram returns before closing the socket are
// joined into one transcription.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingoxa/pkg/audio"
	"github.com/MrWong99/lingoxa/pkg/provider/stt"
	"github.com/MrWong99/lingoxa/pkg/types"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"

	// chunkSize is the number of PCM bytes per binary frame (250 ms at 16 kHz mono).
	chunkSize = 8000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Keyword is a vocabulary hint with its boost intensity.
type Keyword struct {
	Word  string
	Boost float64
}

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithEndpoint overrides the live transcription endpoint.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithKeywords boosts lesson vocabulary that learners are expected to use.
func WithKeywords(keywords ...Keyword) Option {
	return func(p *Provider) {
		p.keywords = append(p.keywords, keywords...)
	}
}

// Provider implements stt.Provider backed by the Deepgram live API.
type Provider struct {
	apiKey   string
	model    string
	endpoint string
	keywords []Keyword
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, wav []byte, opts stt.Options) (*types.TranscriptionResult, error) {
	if len(wav) == 0 {
		return nil, fmt.Errorf("deepgram: %w", stt.ErrEmptyAudio)
	}
	start := time.Now()

	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("deepgram: %w", err)
	}

	wsURL, err := p.buildURL(clip.Format, opts)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	var finals []result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sendClip(gctx, conn, clip.PCM)
	})
	g.Go(func() error {
		var err error
		finals, err = readFinals(gctx, conn)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("deepgram: %w", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")

	res := merge(finals, opts.WithTimestamps)
	res.ProcessingTimeMs = time.Since(start).Milliseconds()
	return res, nil
}

// buildURL constructs the Deepgram live endpoint URL for the given clip.
func (p *Provider) buildURL(f audio.Format, opts stt.Options) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", opts.LanguageOrDefault())
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(f.SampleRate))
	q.Set("channels", strconv.Itoa(f.Channels))

	for _, kw := range p.keywords {
		// Deepgram keyword format: word:boost (e.g., "pronunciation:2")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Word, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// sendClip streams the PCM payload and asks Deepgram to flush and close.
func sendClip(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += chunkSize {
		end := min(off+chunkSize, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("send close stream: %w", err)
	}
	return nil
}

// readFinals collects final results until Deepgram sends its Metadata
// summary or closes the socket normally.
func readFinals(ctx context.Context, conn *websocket.Conn) ([]result, error) {
	var finals []result
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return finals, nil
			}
			return nil, fmt.Errorf("read results: %w", err)
		}
		if isMetadata(msg) {
			return finals, nil
		}
		if r, ok := parseDeepgramResponse(msg); ok && r.IsFinal {
			finals = append(finals, r)
		}
	}
}

// merge joins final results into one transcription. Confidence is the mean
// of the non-empty finals' confidences.
func merge(finals []result, withTimestamps bool) *types.TranscriptionResult {
	var (
		parts   []string
		confSum float64
		res     = &types.TranscriptionResult{}
	)
	for _, f := range finals {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		confSum += f.Confidence
		if withTimestamps {
			res.Words = append(res.Words, f.Words...)
		}
	}
	if len(parts) > 0 {
		res.Text = strings.Join(parts, " ")
		res.Confidence = types.ClampUnit(confSum / float64(len(parts)))
	}
	return res
}

// ---- message parsing ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is one parsed Results message.
type result struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Words      []types.WordTimestamp
}

func isMetadata(data []byte) bool {
	var head struct {
		Type string `json:"type"`
	}
	return sonic.Unmarshal(data, &head) == nil && head.Type == "Metadata"
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message.
// Returns (result, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" {
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]types.WordTimestamp, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, types.WordTimestamp{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: types.ClampUnit(w.Confidence),
		})
	}

	return result{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: types.ClampUnit(alt.Confidence),
		Words:      words,
	}, true
}
