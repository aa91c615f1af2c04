// Package session holds the per-learner conversation state for one learning
// session and the pure policy that decides how confident a reply is and
// whether it needs a Vietnamese explanation.
package session

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/lingoxa/pkg/types"
)

// HistoryCapacity is the number of most recent turns a [Context] retains.
const HistoryCapacity = 5

// Context is the rolling conversation window and learner profile for a single
// learning session.
//
// History is a fixed-capacity ring: once HistoryCapacity turns are stored,
// every new turn overwrites the oldest one.
//
// Context is not safe for concurrent use. Callers must serialise access per
// session (the app layer holds a per-session lock for this).
type Context struct {
	turns   [HistoryCapacity]types.ConversationTurn
	start   int // index of the oldest turn
	count   int
	profile *types.LearnerProfile
}

// NewContext returns an empty Context with no learner profile.
func NewContext() *Context {
	return &Context{}
}

// AddTurn appends turn to the history, evicting the oldest turn when the
// window is full.
func (c *Context) AddTurn(turn types.ConversationTurn) {
	if c.count < HistoryCapacity {
		c.turns[(c.start+c.count)%HistoryCapacity] = turn
		c.count++
		return
	}
	c.turns[c.start] = turn
	c.start = (c.start + 1) % HistoryCapacity
}

// SetLearnerProfile stores the profile snapshot used for level-dependent
// decisions. Passing nil clears it.
func (c *Context) SetLearnerProfile(p *types.LearnerProfile) {
	if p == nil {
		c.profile = nil
		return
	}
	cp := *p
	cp.CommonErrors = slices.Clone(p.CommonErrors)
	c.profile = &cp
}

// Profile returns the current learner profile, or nil if none was set.
func (c *Context) Profile() *types.LearnerProfile {
	return c.profile
}

// Level returns the learner's level, or the zero Level when no profile is set.
func (c *Context) Level() types.Level {
	if c.profile == nil {
		return 0
	}
	return c.profile.Level
}

// Len returns the number of turns currently held.
func (c *Context) Len() int {
	return c.count
}

// History returns a copy of the retained turns, oldest first.
func (c *Context) History() []types.ConversationTurn {
	out := make([]types.ConversationTurn, c.count)
	for i := range c.count {
		out[i] = c.turns[(c.start+i)%HistoryCapacity]
	}
	return out
}

// NeedsVietnameseExplanation reports whether a reply should carry a Vietnamese
// explanation when no confidence score is known. Only beginners (A1, A2) get
// one unconditionally.
func (c *Context) NeedsVietnameseExplanation() bool {
	return NeedsExplanation(c.Level(), 0, false)
}

// NeedsVietnameseExplanationAt is like [Context.NeedsVietnameseExplanation]
// but also asks for an explanation when the reply confidence is below
// [ExplanationConfidenceThreshold].
func (c *Context) NeedsVietnameseExplanationAt(confidence float64) bool {
	return NeedsExplanation(c.Level(), confidence, true)
}

// ProfileSummary renders the learner level and common errors as plain text
// for a model prompt. Callers that replay [Context.History] as chat messages
// use it instead of [Context.ContextSummary] so turns are not sent twice.
func (c *Context) ProfileSummary() string {
	if c.profile == nil {
		return "Learner level: unknown\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Learner level: %s\n", c.profile.Level)
	if errs := normaliseTags(c.profile.CommonErrors); len(errs) > 0 {
		fmt.Fprintf(&b, "Common errors: %s\n", strings.Join(errs, ", "))
	}
	return b.String()
}

// ContextSummary renders the profile and history as plain text for inclusion
// in a model prompt. The output is deterministic for a given state.
func (c *Context) ContextSummary() string {
	summary := c.ProfileSummary()
	if c.count == 0 {
		return summary
	}
	var b strings.Builder
	b.WriteString(summary)
	b.WriteString("Recent conversation:\n")
	for _, t := range c.History() {
		fmt.Fprintf(&b, "Learner: %s\n", t.UserMessage)
		fmt.Fprintf(&b, "Tutor: %s\n", t.AIResponse)
	}
	return b.String()
}

// normaliseTags returns the distinct non-empty tags in sorted order.
func normaliseTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
