package session

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lingoxa/pkg/types"
)

func turn(i int) types.ConversationTurn {
	return types.ConversationTurn{
		UserMessage: fmt.Sprintf("user %d", i),
		AIResponse:  fmt.Sprintf("tutor %d", i),
		Timestamp:   time.Unix(int64(i), 0),
	}
}

func TestContext_AddTurn_FIFOWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		added     int
		wantLen   int
		wantFirst int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{5, 5, 1},
		{6, 5, 2},
		{7, 5, 3},
		{12, 5, 8},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("added=%d", tt.added), func(t *testing.T) {
			t.Parallel()
			c := NewContext()
			for i := 1; i <= tt.added; i++ {
				c.AddTurn(turn(i))
			}
			if c.Len() != tt.wantLen {
				t.Fatalf("Len() = %d, want %d", c.Len(), tt.wantLen)
			}
			h := c.History()
			if len(h) != tt.wantLen {
				t.Fatalf("len(History()) = %d, want %d", len(h), tt.wantLen)
			}
			for i, got := range h {
				want := turn(tt.wantFirst + i)
				if got != want {
					t.Errorf("History()[%d] = %+v, want %+v", i, got, want)
				}
			}
		})
	}
}

func TestContext_SevenTurnsKeepsThreeToSeven(t *testing.T) {
	t.Parallel()
	c := NewContext()
	for i := 1; i <= 7; i++ {
		c.AddTurn(turn(i))
	}
	h := c.History()
	if h[0].UserMessage != "user 3" || h[4].UserMessage != "user 7" {
		t.Errorf("window = %q..%q, want user 3..user 7", h[0].UserMessage, h[4].UserMessage)
	}
}

func TestContext_HistoryIsCopy(t *testing.T) {
	t.Parallel()
	c := NewContext()
	c.AddTurn(turn(1))
	h := c.History()
	h[0].UserMessage = "mutated"
	if c.History()[0].UserMessage != "user 1" {
		t.Error("mutating History() result changed the stored turn")
	}
}

func TestContext_SetLearnerProfileCopies(t *testing.T) {
	t.Parallel()
	c := NewContext()
	p := &types.LearnerProfile{UserID: "u1", Level: types.LevelB1, CommonErrors: []string{"article"}}
	c.SetLearnerProfile(p)
	p.Level = types.LevelC2
	p.CommonErrors[0] = "changed"
	if c.Level() != types.LevelB1 {
		t.Errorf("Level() = %v, want B1", c.Level())
	}
	if c.Profile().CommonErrors[0] != "article" {
		t.Error("profile common errors aliased caller slice")
	}
	c.SetLearnerProfile(nil)
	if c.Profile() != nil {
		t.Error("SetLearnerProfile(nil) should clear the profile")
	}
}

func TestContext_NeedsVietnameseExplanation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		level    types.Level
		score    *float64
		expected bool
	}{
		{"A1 no score", types.LevelA1, nil, true},
		{"A2 no score", types.LevelA2, nil, true},
		{"A2 high score", types.LevelA2, ptr(0.99), true},
		{"B1 no score", types.LevelB1, nil, false},
		{"B1 low score", types.LevelB1, ptr(0.5), true},
		{"B2 at threshold", types.LevelB2, ptr(0.8), false},
		{"B2 just below threshold", types.LevelB2, ptr(0.79), true},
		{"C1 high score", types.LevelC1, ptr(0.95), false},
		{"C2 low score", types.LevelC2, ptr(0.1), true},
		{"unknown level no score", 0, nil, false},
		{"unknown level low score", 0, ptr(0.3), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewContext()
			if tt.level != 0 {
				c.SetLearnerProfile(&types.LearnerProfile{UserID: "u", Level: tt.level})
			}
			var got bool
			if tt.score == nil {
				got = c.NeedsVietnameseExplanation()
			} else {
				got = c.NeedsVietnameseExplanationAt(*tt.score)
			}
			if got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestContext_ContextSummary(t *testing.T) {
	t.Parallel()
	c := NewContext()
	c.SetLearnerProfile(&types.LearnerProfile{
		UserID:       "u1",
		Level:        types.LevelA2,
		CommonErrors: []string{"progressive", "article", "progressive", " "},
	})
	c.AddTurn(types.ConversationTurn{UserMessage: "I am go home", AIResponse: "I am going home!"})

	got := c.ContextSummary()
	want := "Learner level: A2\n" +
		"Common errors: article, progressive\n" +
		"Recent conversation:\n" +
		"Learner: I am go home\n" +
		"Tutor: I am going home!\n"
	if got != want {
		t.Errorf("ContextSummary() =\n%s\nwant\n%s", got, want)
	}
	if again := c.ContextSummary(); again != got {
		t.Error("ContextSummary() is not deterministic")
	}
}

func TestContext_ProfileSummary(t *testing.T) {
	t.Parallel()
	c := NewContext()
	if got := c.ProfileSummary(); got != "Learner level: unknown\n" {
		t.Errorf("ProfileSummary() without profile = %q", got)
	}

	c.SetLearnerProfile(&types.LearnerProfile{Level: types.LevelB1, CommonErrors: []string{"article"}})
	c.AddTurn(types.ConversationTurn{UserMessage: "I like a apple", AIResponse: "An apple, nice!"})

	want := "Learner level: B1\nCommon errors: article\n"
	if got := c.ProfileSummary(); got != want {
		t.Errorf("ProfileSummary() = %q, want %q", got, want)
	}
	if got := c.ContextSummary(); !strings.HasPrefix(got, want) || !strings.Contains(got, "Learner: I like a apple") {
		t.Errorf("ContextSummary() = %q, want profile followed by history", got)
	}
}

func TestContext_ContextSummaryNoProfile(t *testing.T) {
	t.Parallel()
	got := NewContext().ContextSummary()
	if !strings.Contains(got, "unknown") {
		t.Errorf("expected unknown level, got %q", got)
	}
}

func ptr(f float64) *float64 { return &f }
