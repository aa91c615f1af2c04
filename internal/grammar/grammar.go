// Package grammar detects common learner grammar errors in English text.
//
// The [Detector] is rule-based and deterministic: the same input always yields
// the same errors in the same order. It recognises a small set of patterns
// that account for most beginner mistakes:
//
//   - progressive aspect after "be" ("I am go" → "I am going")
//   - subject/be agreement ("I is" → "I am")
//   - third-person singular -s ("he go" → "he goes")
//   - do-support agreement ("she don't" → "she doesn't")
//   - indefinite article before a vowel sound ("a apple" → "an apple")
//   - bare infinitive after a modal ("can to go" → "can go")
//
// The tutor consumes the [Analyzer] interface so a model-backed analyser can
// replace the rules without touching the orchestration.
package grammar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/lingoxa/pkg/types"
)

// ErrAnalysisFailed is returned when grammar analysis could not be performed.
// Callers treat it as "no analysis available", never as a fatal error.
var ErrAnalysisFailed = errors.New("grammar: analysis failed")

// Rule tags attached to every [types.GrammarError].
const (
	RuleProgressive   = "progressive"
	RuleStative       = "stative"
	RuleBeAgreement   = "be-agreement"
	RuleThirdPerson   = "third-person"
	RuleDoAgreement   = "do-agreement"
	RuleArticle       = "article"
	RuleModalInfinite = "modal-infinitive"
)

// Analyzer finds grammar errors in learner text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) ([]types.GrammarError, error)
}

// Detector is the rule-based [Analyzer]. The zero value is ready to use and
// safe for concurrent use.
type Detector struct{}

var _ Analyzer = Detector{}

// Analyze implements [Analyzer]. It only fails when ctx is already done.
func (d Detector) Analyze(ctx context.Context, text string) ([]types.GrammarError, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	return d.Detect(text), nil
}

// Detect returns the grammar errors in text ordered by position. Clean text
// yields an empty, non-nil slice.
func (Detector) Detect(text string) []types.GrammarError {
	toks := tokenize(text)
	out := make([]types.GrammarError, 0)
	for i := range toks {
		for _, rule := range rules {
			if ge, ok := rule(text, toks, i); ok {
				out = append(out, ge)
			}
		}
	}
	return out
}

// Detect runs the default [Detector] over text.
func Detect(text string) []types.GrammarError {
	return Detector{}.Detect(text)
}

// token is one word of the input with its byte offsets.
type token struct {
	text  string // as written
	lower string // lower-cased, curly apostrophes normalised
	start int
	end   int

	// joined is true when only whitespace separates this token from the
	// previous one. Rules never match across punctuation.
	joined bool
}

func tokenize(text string) []token {
	var toks []token
	start := -1
	sawPunct := false
	flush := func(end int) {
		w := text[start:end]
		lower := strings.ToLower(strings.ReplaceAll(w, "’", "'"))
		toks = append(toks, token{
			text:   w,
			lower:  lower,
			start:  start,
			end:    end,
			joined: len(toks) > 0 && !sawPunct,
		})
		start = -1
		sawPunct = false
	}
	for i, r := range text {
		isWord := unicode.IsLetter(r) || ((r == '\'' || r == '’') && start >= 0) ||
			(r == '-' && start >= 0 && letterAt(text, i+1))
		switch {
		case isWord && start < 0:
			start = i
		case !isWord && start >= 0:
			flush(i)
			if !unicode.IsSpace(r) {
				sawPunct = true
			}
		case !isWord && !unicode.IsSpace(r):
			sawPunct = true
		}
	}
	if start >= 0 {
		flush(len(text))
	}
	return toks
}

// letterAt reports whether a letter starts at byte offset i of text.
func letterAt(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsLetter(r)
}

// next returns the token after i if it is joined to it.
func next(toks []token, i int) (token, bool) {
	if i+1 >= len(toks) || !toks[i+1].joined {
		return token{}, false
	}
	return toks[i+1], true
}

// span returns the original text from toks[from] to toks[to] inclusive.
func span(text string, toks []token, from, to int) string {
	return text[toks[from].start:toks[to].end]
}

// rule inspects the token at position i and reports an error starting there.
type rule func(text string, toks []token, i int) (types.GrammarError, bool)

var rules = []rule{
	subjectBeAgreement,
	progressiveAfterBe,
	thirdPersonSingular,
	doAgreement,
	indefiniteArticle,
	modalInfinitive,
}

var (
	subjectPronouns = map[string]bool{"i": true, "you": true, "he": true, "she": true, "we": true, "they": true}
	thirdSingular   = map[string]bool{"he": true, "she": true, "it": true}
	beForms         = map[string]bool{"am": true, "is": true, "are": true, "was": true, "were": true}
	modals          = map[string]bool{
		"can": true, "could": true, "will": true, "would": true, "should": true,
		"must": true, "may": true, "might": true,
	}
	contractedBe = map[string]bool{
		"i'm": true, "you're": true, "he's": true, "she's": true, "we're": true, "they're": true,
	}
	determiners = map[string]bool{
		"the": true, "a": true, "my": true, "your": true, "his": true, "her": true,
		"its": true, "our": true, "their": true, "this": true, "that": true,
	}
	stativeVerbs = map[string]bool{
		"love": true, "want": true, "need": true, "know": true, "understand": true,
	}
	// After be these words read as prepositions ("we are like a family"),
	// never as a verb missing -ing.
	prepositionsAfterBe = map[string]bool{"like": true}
	// A subject pronoun directly after one of these is part of a question or
	// causative ("does he go", "let it go") and takes the bare infinitive.
	bareInfinitiveTriggers = map[string]bool{
		"do": true, "does": true, "did": true, "let": true, "make": true, "makes": true,
		"help": true, "helps": true, "to": true, "can": true, "could": true, "will": true,
		"would": true, "should": true, "must": true, "may": true, "might": true,
		"doesn't": true, "didn't": true, "don't": true, "why": true,
	}
)

// correctBe returns the present or past be form that agrees with subject.
func correctBe(subject string, past bool) string {
	switch subject {
	case "i":
		if past {
			return "was"
		}
		return "am"
	case "he", "she", "it":
		if past {
			return "was"
		}
		return "is"
	default:
		if past {
			return "were"
		}
		return "are"
	}
}

func subjectBeAgreement(text string, toks []token, i int) (types.GrammarError, bool) {
	subj := toks[i].lower
	if !subjectPronouns[subj] && subj != "it" {
		return types.GrammarError{}, false
	}
	be, ok := next(toks, i)
	if !ok || !beForms[be.lower] {
		return types.GrammarError{}, false
	}
	// "were" after a singular subject is often subjunctive ("if I were").
	if be.lower == "were" {
		return types.GrammarError{}, false
	}
	past := be.lower == "was"
	want := correctBe(subj, past)
	if want == be.lower {
		return types.GrammarError{}, false
	}
	return types.GrammarError{
		IncorrectSpan: span(text, toks, i, i+1),
		Correction:    toks[i].text + " " + matchCase(be.text, want),
		Explanation:   fmt.Sprintf("With %q use %q.", toks[i].text, want),
		Rule:          RuleBeAgreement,
	}, true
}

func progressiveAfterBe(text string, toks []token, i int) (types.GrammarError, bool) {
	var beIdx int
	switch {
	case contractedBe[toks[i].lower]:
		beIdx = i
	case subjectPronouns[toks[i].lower]:
		be, ok := next(toks, i)
		if !ok || !beForms[be.lower] {
			return types.GrammarError{}, false
		}
		beIdx = i + 1
	default:
		return types.GrammarError{}, false
	}

	verbIdx := beIdx + 1
	if t, ok := next(toks, beIdx); ok && t.lower == "not" {
		verbIdx++
	}
	if verbIdx >= len(toks) || !toks[verbIdx].joined || !isBaseVerb(toks[verbIdx].lower) {
		return types.GrammarError{}, false
	}
	verb := toks[verbIdx]
	if prepositionsAfterBe[verb.lower] {
		return types.GrammarError{}, false
	}

	if stativeVerbs[verb.lower] {
		return stativeAfterBe(text, toks, i, beIdx, verbIdx)
	}

	// The span starts at the be form so "I am go" is reported as "am go".
	from := beIdx
	words := make([]string, 0, verbIdx-from+1)
	for k := from; k < verbIdx; k++ {
		words = append(words, toks[k].text)
	}
	words = append(words, matchCase(verb.text, ingForm(verb.lower)))
	return types.GrammarError{
		IncorrectSpan: span(text, toks, from, verbIdx),
		Correction:    strings.Join(words, " "),
		Explanation:   "Use be + verb-ing for actions in progress.",
		Rule:          RuleProgressive,
	}, true
}

// stativeAfterBe handles "I am want" style errors, where the verb describes a
// state and the fix is to drop "be" rather than add -ing.
func stativeAfterBe(text string, toks []token, subjIdx, beIdx, verbIdx int) (types.GrammarError, bool) {
	if verbIdx != beIdx+1 {
		return types.GrammarError{}, false
	}
	subj := toks[subjIdx]
	subjText := subj.text
	subjLower := subj.lower
	if beIdx == subjIdx {
		subjText, _, _ = strings.Cut(strings.ReplaceAll(subj.text, "’", "'"), "'")
		subjLower, _, _ = strings.Cut(subj.lower, "'")
	}
	verb := toks[verbIdx]
	form := verb.lower
	if thirdSingular[subjLower] {
		form = thirdPerson(form)
	}
	return types.GrammarError{
		IncorrectSpan: span(text, toks, subjIdx, verbIdx),
		Correction:    subjText + " " + matchCase(verb.text, form),
		Explanation:   fmt.Sprintf("%q describes a state and is not used with be.", verb.lower),
		Rule:          RuleStative,
	}, true
}

func thirdPersonSingular(text string, toks []token, i int) (types.GrammarError, bool) {
	if !thirdSingular[toks[i].lower] {
		return types.GrammarError{}, false
	}
	if i > 0 && toks[i].joined && bareInfinitiveTriggers[toks[i-1].lower] {
		return types.GrammarError{}, false
	}
	verb, ok := next(toks, i)
	if !ok || !isBaseVerb(verb.lower) {
		return types.GrammarError{}, false
	}
	want := thirdPerson(verb.lower)
	return types.GrammarError{
		IncorrectSpan: span(text, toks, i, i+1),
		Correction:    toks[i].text + " " + matchCase(verb.text, want),
		Explanation:   "Add -s or -es to the verb after he, she or it.",
		Rule:          RuleThirdPerson,
	}, true
}

func doAgreement(text string, toks []token, i int) (types.GrammarError, bool) {
	subj := toks[i].lower
	aux, ok := next(toks, i)
	if !ok {
		return types.GrammarError{}, false
	}
	var want string
	switch {
	case thirdSingular[subj] && aux.lower == "don't":
		want = "doesn't"
	case subjectPronouns[subj] && !thirdSingular[subj] && aux.lower == "doesn't":
		want = "don't"
	default:
		return types.GrammarError{}, false
	}
	return types.GrammarError{
		IncorrectSpan: span(text, toks, i, i+1),
		Correction:    toks[i].text + " " + matchCase(aux.text, want),
		Explanation:   fmt.Sprintf("With %q use %q.", toks[i].text, want),
		Rule:          RuleDoAgreement,
	}, true
}

func indefiniteArticle(text string, toks []token, i int) (types.GrammarError, bool) {
	art := toks[i].lower
	if art != "a" && art != "an" {
		return types.GrammarError{}, false
	}
	noun, ok := next(toks, i)
	if !ok || beForms[noun.lower] || modals[noun.lower] {
		return types.GrammarError{}, false
	}
	want := "a"
	if needsAn(noun.lower) {
		want = "an"
	}
	if want == art {
		return types.GrammarError{}, false
	}
	return types.GrammarError{
		IncorrectSpan: span(text, toks, i, i+1),
		Correction:    matchCase(toks[i].text, want) + " " + noun.text,
		Explanation:   "Use \"an\" before a vowel sound and \"a\" before a consonant sound.",
		Rule:          RuleArticle,
	}, true
}

func modalInfinitive(text string, toks []token, i int) (types.GrammarError, bool) {
	if !modals[toks[i].lower] {
		return types.GrammarError{}, false
	}
	w, ok := next(toks, i)
	if !ok {
		return types.GrammarError{}, false
	}

	if w.lower == "to" {
		// "the will to live" uses will as a noun.
		if i > 0 && determiners[toks[i-1].lower] {
			return types.GrammarError{}, false
		}
		verb, ok := next(toks, i+1)
		if !ok || !isBaseVerb(verb.lower) {
			return types.GrammarError{}, false
		}
		return types.GrammarError{
			IncorrectSpan: span(text, toks, i, i+2),
			Correction:    toks[i].text + " " + verb.text,
			Explanation:   fmt.Sprintf("Do not use \"to\" after %q.", toks[i].lower),
			Rule:          RuleModalInfinite,
		}, true
	}

	base, ok := thirdPersonForms[w.lower]
	if !ok {
		base, ok = ingForms[w.lower]
	}
	if !ok {
		return types.GrammarError{}, false
	}
	return types.GrammarError{
		IncorrectSpan: span(text, toks, i, i+1),
		Correction:    toks[i].text + " " + matchCase(w.text, base),
		Explanation:   fmt.Sprintf("Use the base form of the verb after %q.", toks[i].lower),
		Rule:          RuleModalInfinite,
	}, true
}

// matchCase applies the capitalisation of orig to repl: all-caps stays
// all-caps, a leading capital stays a leading capital.
func matchCase(orig, repl string) string {
	if orig == "" || repl == "" {
		return repl
	}
	if len(orig) > 1 && strings.ToUpper(orig) == orig && strings.ToLower(orig) != orig {
		return strings.ToUpper(repl)
	}
	r := []rune(orig)
	if unicode.IsUpper(r[0]) {
		rr := []rune(repl)
		rr[0] = unicode.ToUpper(rr[0])
		return string(rr)
	}
	return repl
}
