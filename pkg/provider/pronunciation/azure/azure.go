// Package azure implements pronunciation.Provider with the Azure AI Speech
// pronunciation assessment feature of the short-audio REST API.
//
// The reference text and grading options travel base64-encoded in the
// Pronunciation-Assessment header next to a 16 kHz mono WAV upload.
package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/MrWong99/lingoxa/pkg/provider/pronunciation"
	"github.com/MrWong99/lingoxa/pkg/types"
)

const (
	endpointFmt     = "https://%s.stt.speech.microsoft.com"
	recognitionPath = "/speech/recognition/conversation/cognitiveservices/v1"
	defaultLanguage = "en-US"
	defaultTimeout  = 10 * time.Second

	// maxErrorBody bounds how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

// Compile-time interface assertion.
var _ pronunciation.Provider = (*Provider)(nil)

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithLanguage sets the recognition locale. Default: en-US.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithEndpoint overrides the regional endpoint, e.g. for a private link.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithTimeout sets the per-request HTTP timeout. Default: 10 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithProsody requests prosody assessment in addition to accuracy and
// fluency. Prosody is only available for en-US.
func WithProsody(enabled bool) Option {
	return func(p *Provider) {
		p.prosody = enabled
	}
}

// Provider implements pronunciation.Provider against Azure AI Speech.
type Provider struct {
	apiKey     string
	endpoint   string
	language   string
	prosody    bool
	httpClient *http.Client
}

// New creates a Provider for the given subscription key and region
// (e.g. "southeastasia"). Both must be non-empty.
func New(apiKey, region string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("azure: apiKey must not be empty")
	}
	if region == "" {
		return nil, errors.New("azure: region must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   fmt.Sprintf(endpointFmt, region),
		language:   defaultLanguage,
		prosody:    true,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// assessmentParams is the JSON carried in the Pronunciation-Assessment header.
type assessmentParams struct {
	ReferenceText           string `json:"ReferenceText"`
	GradingSystem           string `json:"GradingSystem"`
	Granularity             string `json:"Granularity"`
	Dimension               string `json:"Dimension"`
	EnableMiscue            bool   `json:"EnableMiscue"`
	EnableProsodyAssessment bool   `json:"EnableProsodyAssessment,omitempty"`
}

type scores struct {
	AccuracyScore *float64 `json:"AccuracyScore"`
	FluencyScore  *float64 `json:"FluencyScore"`
	ProsodyScore  *float64 `json:"ProsodyScore"`
	ErrorType     string   `json:"ErrorType"`
}

type recognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	NBest             []struct {
		Confidence float64 `json:"Confidence"`
		scores
		PronunciationAssessment *scores `json:"PronunciationAssessment"`
		Words                   []struct {
			Word string `json:"Word"`
			scores
			PronunciationAssessment *scores `json:"PronunciationAssessment"`
		} `json:"Words"`
	} `json:"NBest"`
}

// Analyze implements pronunciation.Provider.
func (p *Provider) Analyze(ctx context.Context, audio []byte, reference string) (*types.PronunciationResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: empty reference text", pronunciation.ErrAnalysisFailed)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", pronunciation.ErrAnalysisFailed)
	}

	header, err := sonic.Marshal(assessmentParams{
		ReferenceText:           reference,
		GradingSystem:           "HundredMark",
		Granularity:             "Word",
		Dimension:               "Comprehensive",
		EnableMiscue:            true,
		EnableProsodyAssessment: p.prosody,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode assessment params: %w", pronunciation.ErrAnalysisFailed, err)
	}

	q := url.Values{}
	q.Set("language", p.language)
	q.Set("format", "detailed")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+recognitionPath+"?"+q.Encode(), bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", pronunciation.ErrAnalysisFailed, err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)
	req.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Pronunciation-Assessment", base64.StdEncoding.EncodeToString(header))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %w", pronunciation.ErrAnalysisFailed, recognitionPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", pronunciation.ErrAnalysisFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rr recognitionResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", pronunciation.ErrAnalysisFailed, err)
	}
	return convert(rr)
}

// convert maps the best recognition hypothesis to a PronunciationResult.
// Scores are reported on a 0-100 scale, either nested under
// PronunciationAssessment or flat on the hypothesis depending on API version.
func convert(rr recognitionResponse) (*types.PronunciationResult, error) {
	if rr.RecognitionStatus != "Success" {
		return nil, fmt.Errorf("%w: recognition status %q", pronunciation.ErrAnalysisFailed, rr.RecognitionStatus)
	}
	if len(rr.NBest) == 0 {
		return nil, fmt.Errorf("%w: no recognition hypotheses", pronunciation.ErrAnalysisFailed)
	}
	best := rr.NBest[0]
	s := pick(best.PronunciationAssessment, best.scores)
	if s.AccuracyScore == nil {
		return nil, fmt.Errorf("%w: response carries no accuracy score", pronunciation.ErrAnalysisFailed)
	}

	res := &types.PronunciationResult{
		Accuracy: unit(*s.AccuracyScore),
		Errors:   []types.WordIssue{},
	}
	switch {
	case s.ProsodyScore != nil:
		res.ProsodyScore = unit(*s.ProsodyScore)
	case s.FluencyScore != nil:
		res.ProsodyScore = unit(*s.FluencyScore)
	default:
		res.ProsodyScore = res.Accuracy
	}

	for _, w := range best.Words {
		ws := pick(w.PronunciationAssessment, w.scores)
		issue, ok := issueTypes[ws.ErrorType]
		if !ok {
			continue
		}
		conf := 1.0
		if ws.AccuracyScore != nil && issue == types.IssueMispronunciation {
			conf = 1 - unit(*ws.AccuracyScore)
		}
		res.Errors = append(res.Errors, types.WordIssue{
			Word:       strings.ToLower(w.Word),
			Issue:      issue,
			Confidence: types.ClampUnit(conf),
		})
	}
	return res, nil
}

// issueTypes maps the Azure miscue error types to word issues. Prosody-only
// types such as UnexpectedBreak are not word issues.
var issueTypes = map[string]types.IssueType{
	"Mispronunciation": types.IssueMispronunciation,
	"Omission":         types.IssueOmission,
	"Insertion":        types.IssueInsertion,
}

func pick(nested *scores, flat scores) scores {
	if nested != nil {
		return *nested
	}
	return flat
}

func unit(hundredMark float64) float64 {
	return types.ClampUnit(hundredMark / 100)
}
