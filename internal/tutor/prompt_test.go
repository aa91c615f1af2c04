package tutor

import (
	"strings"
	"testing"

	"github.com/MrWong99/lingoxa/internal/grammar"
	"github.com/MrWong99/lingoxa/pkg/types"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	errs := []types.GrammarError{{IncorrectSpan: "am go", Correction: "am going", Explanation: "use -ing after be"}}
	got := buildPrompt("Learner level: A2", "I am go home", errs)
	for _, want := range []string{
		"Learner level: A2\n",
		`Learner said: "I am go home"`,
		`- "am go" should be "am going" (use -ing after be)`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}

	clean := buildPrompt("", "Hello", nil)
	if !strings.HasPrefix(clean, "Learner said") || !strings.Contains(clean, "none") {
		t.Errorf("clean prompt = %q", clean)
	}
}

func TestTemplateExplanation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		errs  []types.GrammarError
		want  []string
	}{
		{
			name:  "no errors",
			reply: "Great job!",
			want:  []string{"không có lỗi", `"Great job!"`},
		},
		{
			name: "known rule",
			errs: []types.GrammarError{{IncorrectSpan: "a apple", Correction: "an apple", Rule: grammar.RuleArticle}},
			want: []string{`"a apple" nên sửa thành "an apple"`, "nguyên âm"},
		},
		{
			name: "unknown rule",
			errs: []types.GrammarError{{IncorrectSpan: "x", Correction: "y", Rule: "custom"}},
			want: []string{`"x" nên sửa thành "y".`},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := templateExplanation(tc.reply, tc.errs)
			if got == "" {
				t.Fatal("empty explanation")
			}
			for _, w := range tc.want {
				if !strings.Contains(got, w) {
					t.Errorf("explanation %q missing %q", got, w)
				}
			}
		})
	}
}

func TestStageString(t *testing.T) {
	t.Parallel()
	if StageTranslating.String() != "translating" || Stage(99).String() != "unknown" {
		t.Errorf("unexpected stage names: %s %s", StageTranslating, Stage(99))
	}
}

func TestSettingsStore(t *testing.T) {
	t.Parallel()

	var zero SettingsStore
	if got := zero.Load(); got.Temperature != DefaultTemperature {
		t.Errorf("zero store Load = %+v, want defaults", got)
	}
	st := NewSettingsStore(Settings{Temperature: 0.1})
	st.Store(Settings{Temperature: 0.9, SystemPrompt: "x"})
	if got := st.Load(); got.Temperature != 0.9 || got.systemPrompt() != "x" || got.adapterTimeout() != defaultAdapterTimeout {
		t.Errorf("Load = %+v", got)
	}
}
