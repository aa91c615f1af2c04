// Package phonetic implements pronunciation.Provider on top of any
// speech-to-text backend that reports word timings.
//
// The recording is transcribed with word timestamps and the recognised words
// are aligned against the reference text with a word-level edit distance.
// Aligned pairs are graded in two stages:
//
//  1. Phonetic similarity: Double Metaphone codes are computed for both words.
//     When the codes overlap the pair is scored by Jaro-Winkler similarity;
//     otherwise the Jaro-Winkler score is halved.
//
//  2. Recognition confidence: the similarity is weighted by the recogniser's
//     confidence in the heard word, so a correct but mumbled word still scores
//     low.
//
// Reference words with no counterpart are omissions, heard words with no
// counterpart are insertions. Prosody is derived from speaking rate and long
// pauses between words.
package phonetic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/lingoxa/pkg/provider/pronunciation"
	"github.com/MrWong99/lingoxa/pkg/provider/stt"
	"github.com/MrWong99/lingoxa/pkg/types"
)

const (
	defaultThreshold = 0.70

	// Speaking rate band, in words per minute, that counts as fluent for
	// conversational English.
	minFluentWPM = 100
	maxFluentWPM = 170

	// longPause is the gap between two words that counts as hesitation.
	longPause = 700 * time.Millisecond
)

// Compile-time interface assertion.
var _ pronunciation.Provider = (*Provider)(nil)

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithThreshold sets the minimum word score below which a word is reported
// as mispronounced. Default: 0.70.
func WithThreshold(threshold float64) Option {
	return func(p *Provider) {
		p.threshold = threshold
	}
}

// WithLanguage sets the language tag passed to the transcriber.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// Provider scores pronunciation by aligning a transcription against the
// reference text. It is safe for concurrent use if the transcriber is.
type Provider struct {
	transcriber stt.Provider
	threshold   float64
	language    string
}

// New returns a Provider that transcribes through transcriber.
func New(transcriber stt.Provider, opts ...Option) (*Provider, error) {
	if transcriber == nil {
		return nil, errors.New("phonetic: transcriber must not be nil")
	}
	p := &Provider{
		transcriber: transcriber,
		threshold:   defaultThreshold,
		language:    stt.DefaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// heardWord is one recognised word.
type heardWord struct {
	text       string
	confidence float64
	start, end time.Duration
}

// Analyze implements pronunciation.Provider.
func (p *Provider) Analyze(ctx context.Context, audio []byte, reference string) (*types.PronunciationResult, error) {
	ref := words(reference)
	if len(ref) == 0 {
		return nil, fmt.Errorf("%w: empty reference text", pronunciation.ErrAnalysisFailed)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: %w", pronunciation.ErrAnalysisFailed, stt.ErrEmptyAudio)
	}

	tr, err := p.transcriber.Transcribe(ctx, audio, stt.Options{WithTimestamps: true, Language: p.language})
	if err != nil {
		return nil, fmt.Errorf("%w: transcribe: %w", pronunciation.ErrAnalysisFailed, err)
	}
	heard := heardWords(tr)
	if len(heard) == 0 {
		return nil, fmt.Errorf("%w: no speech recognised", pronunciation.ErrAnalysisFailed)
	}
	return p.score(ref, heard), nil
}

// score grades the alignment of ref and heard.
func (p *Provider) score(ref []string, heard []heardWord) *types.PronunciationResult {
	var (
		total      float64
		insertions int
		issues     = []types.WordIssue{}
	)
	overall := meanConfidence(heard)

	for _, pr := range align(ref, heard) {
		switch {
		case pr.ref >= 0 && pr.heard >= 0:
			s := pr.similarity * heard[pr.heard].confidence
			total += s
			if s < p.threshold {
				issues = append(issues, types.WordIssue{
					Word:       ref[pr.ref],
					Issue:      types.IssueMispronunciation,
					Confidence: types.ClampUnit(1 - s),
				})
			}
		case pr.ref >= 0:
			issues = append(issues, types.WordIssue{
				Word:       ref[pr.ref],
				Issue:      types.IssueOmission,
				Confidence: overall,
			})
		default:
			insertions++
			issues = append(issues, types.WordIssue{
				Word:       heard[pr.heard].text,
				Issue:      types.IssueInsertion,
				Confidence: heard[pr.heard].confidence,
			})
		}
	}

	accuracy := types.ClampUnit(total / float64(len(ref)+insertions))
	return &types.PronunciationResult{
		Accuracy:     accuracy,
		ProsodyScore: prosody(heard, accuracy),
		Errors:       issues,
	}
}

// pair is one alignment step. An index of -1 means the side is empty.
type pair struct {
	ref, heard int
	similarity float64
}

type op uint8

const (
	opMatch op = iota
	opOmit
	opInsert
)

// align computes a minimum-cost word alignment. Substituting two words costs
// one minus their similarity; omitting or inserting a word costs one.
func align(ref []string, heard []heardWord) []pair {
	n, m := len(ref), len(heard)
	cost := make([][]float64, n+1)
	ops := make([][]op, n+1)
	sims := make([][]float64, n+1)
	for i := range cost {
		cost[i] = make([]float64, m+1)
		ops[i] = make([]op, m+1)
		sims[i] = make([]float64, m+1)
	}
	for i := 1; i <= n; i++ {
		cost[i][0], ops[i][0] = float64(i), opOmit
	}
	for j := 1; j <= m; j++ {
		cost[0][j], ops[0][j] = float64(j), opInsert
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			sim := similarity(ref[i-1], heard[j-1].text)
			sims[i][j] = sim
			best, choice := cost[i-1][j-1]+1-sim, opMatch
			if c := cost[i-1][j] + 1; c < best {
				best, choice = c, opOmit
			}
			if c := cost[i][j-1] + 1; c < best {
				best, choice = c, opInsert
			}
			cost[i][j], ops[i][j] = best, choice
		}
	}

	var out []pair
	for i, j := n, m; i > 0 || j > 0; {
		switch ops[i][j] {
		case opMatch:
			out = append(out, pair{ref: i - 1, heard: j - 1, similarity: sims[i][j]})
			i, j = i-1, j-1
		case opOmit:
			out = append(out, pair{ref: i - 1, heard: -1})
			i--
		default:
			out = append(out, pair{ref: -1, heard: j - 1})
			j--
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// similarity scores how alike two lowercase words sound, in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	jw := matchr.JaroWinkler(a, b, false)
	if codesOverlap(codes(a), codes(b)) {
		return jw
	}
	return jw / 2
}

// codes returns the Double Metaphone codes of word, excluding empty codes.
func codes(word string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	primary, secondary := matchr.DoubleMetaphone(word)
	if primary != "" {
		out[primary] = struct{}{}
	}
	if secondary != "" {
		out[secondary] = struct{}{}
	}
	return out
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// prosody scores speaking rate and hesitation. Without usable word timings
// it falls back to accuracy.
func prosody(heard []heardWord, accuracy float64) float64 {
	var timed []heardWord
	for _, w := range heard {
		if w.end > w.start {
			timed = append(timed, w)
		}
	}
	if len(timed) < 2 {
		return accuracy
	}
	span := timed[len(timed)-1].end - timed[0].start
	if span <= 0 {
		return accuracy
	}

	wpm := float64(len(timed)) / span.Minutes()
	rate := 1.0
	switch {
	case wpm < minFluentWPM:
		rate = wpm / minFluentWPM
	case wpm > maxFluentWPM:
		rate = maxFluentWPM / wpm
	}

	var pauses int
	for i := 1; i < len(timed); i++ {
		if timed[i].start-timed[i-1].end > longPause {
			pauses++
		}
	}
	hesitation := float64(pauses) / float64(len(timed)-1)
	return types.ClampUnit(rate * (1 - hesitation/2))
}

// heardWords extracts recognised words, preferring per-word timings. A word
// without its own confidence inherits the clip confidence.
func heardWords(tr *types.TranscriptionResult) []heardWord {
	clip := tr.Confidence
	if clip <= 0 {
		clip = 1
	}
	var out []heardWord
	if len(tr.Words) > 0 {
		for _, w := range tr.Words {
			text := normalize(w.Word)
			if text == "" {
				continue
			}
			conf := w.Confidence
			if conf <= 0 {
				conf = clip
			}
			out = append(out, heardWord{text: text, confidence: types.ClampUnit(conf), start: w.Start, end: w.End})
		}
		return out
	}
	for _, w := range words(tr.Text) {
		out = append(out, heardWord{text: w, confidence: types.ClampUnit(clip)})
	}
	return out
}

func meanConfidence(heard []heardWord) float64 {
	var sum float64
	for _, w := range heard {
		sum += w.confidence
	}
	return types.ClampUnit(sum / float64(len(heard)))
}

// words splits text into normalised words.
func words(text string) []string {
	var out []string
	for _, f := range strings.Fields(text) {
		if w := normalize(f); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// normalize lowercases w and strips surrounding punctuation, keeping inner
// apostrophes ("don't").
func normalize(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
}
