package grammar

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		text           string
		wantSpans      []string
		wantCorrection []string
		wantRules      []string
	}{
		{
			name:           "progressive after am",
			text:           "I am go to the kitchen for coffee",
			wantSpans:      []string{"am go"},
			wantCorrection: []string{"am going"},
			wantRules:      []string{RuleProgressive},
		},
		{
			name: "clean progressive",
			text: "I am going to the kitchen for coffee",
		},
		{
			name:           "progressive with not",
			text:           "They are not play football.",
			wantSpans:      []string{"are not play"},
			wantCorrection: []string{"are not playing"},
			wantRules:      []string{RuleProgressive},
		},
		{
			name:           "contracted be",
			text:           "I'm write an email",
			wantSpans:      []string{"I'm write"},
			wantCorrection: []string{"I'm writing"},
			wantRules:      []string{RuleProgressive},
		},
		{
			name:           "doubling and e-drop",
			text:           "She is run. He is make dinner.",
			wantSpans:      []string{"is run", "is make"},
			wantCorrection: []string{"is running", "is making"},
			wantRules:      []string{RuleProgressive, RuleProgressive},
		},
		{
			name:           "stative verb with be",
			text:           "he is want a new phone",
			wantSpans:      []string{"he is want"},
			wantCorrection: []string{"he wants"},
			wantRules:      []string{RuleStative},
		},
		{
			name: "like as a preposition after be",
			text: "We are like a family. They are like brothers and you're like your dad.",
		},
		{
			name: "like after be with not",
			text: "She is not like her sister.",
		},
		{
			name: "hyphenated compound after be",
			text: "You are work-shy. I'm well-known here.",
		},
		{
			name:           "hyphenated compound does not hide a later error",
			text:           "He is a part-time cook and he cook well.",
			wantSpans:      []string{"he cook"},
			wantCorrection: []string{"he cooks"},
			wantRules:      []string{RuleThirdPerson},
		},
		{
			name:           "be agreement",
			text:           "I is happy and they is tired",
			wantSpans:      []string{"I is", "they is"},
			wantCorrection: []string{"I am", "they are"},
			wantRules:      []string{RuleBeAgreement, RuleBeAgreement},
		},
		{
			name:           "past be agreement",
			text:           "You was late",
			wantSpans:      []string{"You was"},
			wantCorrection: []string{"You were"},
			wantRules:      []string{RuleBeAgreement},
		},
		{
			name: "subjunctive were is accepted",
			text: "If I were you, I would rest.",
		},
		{
			name:           "third person",
			text:           "He go to school and she study English",
			wantSpans:      []string{"He go", "she study"},
			wantCorrection: []string{"He goes", "she studies"},
			wantRules:      []string{RuleThirdPerson, RuleThirdPerson},
		},
		{
			name: "question keeps bare infinitive",
			text: "Does he go to school? Let it go.",
		},
		{
			name:           "do agreement",
			text:           "She don't like coffee but I doesn't mind",
			wantSpans:      []string{"She don't", "I doesn't"},
			wantCorrection: []string{"She doesn't", "I don't"},
			wantRules:      []string{RuleDoAgreement, RuleDoAgreement},
		},
		{
			name:           "articles",
			text:           "I ate a apple and an banana in a hour",
			wantSpans:      []string{"a apple", "an banana", "a hour"},
			wantCorrection: []string{"an apple", "a banana", "an hour"},
			wantRules:      []string{RuleArticle, RuleArticle, RuleArticle},
		},
		{
			name: "article exceptions",
			text: "a university, a one-way ticket, an umbrella, a European city",
		},
		{
			name:           "modal with to",
			text:           "You can to swim",
			wantSpans:      []string{"can to swim"},
			wantCorrection: []string{"can swim"},
			wantRules:      []string{RuleModalInfinite},
		},
		{
			name:           "modal with inflected verb",
			text:           "She should goes home. We will going now.",
			wantSpans:      []string{"should goes", "will going"},
			wantCorrection: []string{"should go", "will go"},
			wantRules:      []string{RuleModalInfinite, RuleModalInfinite},
		},
		{
			name: "will as a noun",
			text: "She has the will to live.",
		},
		{
			name: "no match across punctuation",
			text: "Where I am. Go home!",
		},
		{
			name: "empty",
			text: "",
		},
		{
			name: "punctuation only",
			text: "?!... 123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Detect(tt.text)
			if got == nil {
				t.Fatal("Detect returned nil; want non-nil slice")
			}
			if len(got) != len(tt.wantSpans) {
				t.Fatalf("got %d errors %+v, want %d", len(got), got, len(tt.wantSpans))
			}
			for i, ge := range got {
				if ge.IncorrectSpan != tt.wantSpans[i] {
					t.Errorf("[%d] span = %q, want %q", i, ge.IncorrectSpan, tt.wantSpans[i])
				}
				if ge.Correction != tt.wantCorrection[i] {
					t.Errorf("[%d] correction = %q, want %q", i, ge.Correction, tt.wantCorrection[i])
				}
				if ge.Rule != tt.wantRules[i] {
					t.Errorf("[%d] rule = %q, want %q", i, ge.Rule, tt.wantRules[i])
				}
				if ge.Explanation == "" {
					t.Errorf("[%d] missing explanation", i)
				}
				if !strings.Contains(tt.text, ge.IncorrectSpan) {
					t.Errorf("[%d] span %q is not a substring of the input", i, ge.IncorrectSpan)
				}
			}
		})
	}
}

func TestDetect_Deterministic(t *testing.T) {
	t.Parallel()
	const text = "He go to a office and I is tired"
	first := Detect(text)
	for range 10 {
		again := Detect(text)
		if len(again) != len(first) {
			t.Fatalf("non-deterministic length: %d vs %d", len(again), len(first))
		}
		for i := range first {
			if again[i] != first[i] {
				t.Fatalf("non-deterministic result at %d: %+v vs %+v", i, again[i], first[i])
			}
		}
	}
}

func TestDetect_PreservesCase(t *testing.T) {
	t.Parallel()
	got := Detect("A apple")
	if len(got) != 1 || got[0].Correction != "An apple" {
		t.Errorf("got %+v, want correction %q", got, "An apple")
	}
}

func TestDetector_Analyze(t *testing.T) {
	t.Parallel()

	errs, err := Detector{}.Analyze(context.Background(), "I am go home")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 1 {
		t.Errorf("got %d errors, want 1", len(errs))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Detector{}).Analyze(ctx, "I am go home"); !errors.Is(err, ErrAnalysisFailed) {
		t.Errorf("cancelled Analyze err = %v, want ErrAnalysisFailed", err)
	}
}

func TestInflection(t *testing.T) {
	t.Parallel()

	ing := map[string]string{
		"go": "going", "make": "making", "run": "running", "see": "seeing",
		"study": "studying", "visit": "visiting", "come": "coming",
	}
	for base, want := range ing {
		if got := ingForm(base); got != want {
			t.Errorf("ingForm(%q) = %q, want %q", base, got, want)
		}
	}

	third := map[string]string{
		"go": "goes", "do": "does", "watch": "watches", "study": "studies",
		"play": "plays", "have": "has", "wash": "washes", "eat": "eats",
	}
	for base, want := range third {
		if got := thirdPerson(base); got != want {
			t.Errorf("thirdPerson(%q) = %q, want %q", base, got, want)
		}
	}
}
