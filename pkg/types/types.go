// Package types defines the shared types used across all Lingoxa packages.
//
// These types form the lingua franca between providers, the model router,
// the session context and the tutor orchestrator. Each package defines its own
// domain types, but cross-cutting data structures live here to avoid circular
// imports. Every type in this package is a plain value that can be serialised
// to JSON as-is.
package types

import "time"

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// ReportsConfidence indicates the provider can attach a self-reported
	// confidence (e.g. derived from token log-probabilities) to completions.
	ReportsConfidence bool
}

// ConversationTurn is one learner utterance together with the tutor's reply.
// Turns are values; once appended to a session history they are never changed.
type ConversationTurn struct {
	UserMessage string    `json:"userMessage"`
	AIResponse  string    `json:"aiResponse"`
	Timestamp   time.Time `json:"timestamp"`
}

// LearnerProfile is the read-only snapshot of a learner supplied by the
// external profile store at session start.
type LearnerProfile struct {
	UserID string `json:"userId"`
	Level  Level  `json:"level"`

	// CommonErrors is a set of error tags (e.g. "progressive", "article").
	// Order carries no meaning and duplicates are ignored.
	CommonErrors []string `json:"commonErrors,omitempty"`

	TotalSessions int `json:"totalSessions"`
}

// GrammarError is a single grammar problem detected in learner text.
type GrammarError struct {
	// IncorrectSpan is the offending text exactly as the learner wrote it.
	IncorrectSpan string `json:"incorrectSpan"`

	// Correction is the suggested replacement for IncorrectSpan.
	Correction string `json:"correction"`

	// Explanation is an optional short English explanation of the rule.
	Explanation string `json:"explanation,omitempty"`

	// Rule is the machine-readable tag of the rule that fired.
	Rule string `json:"rule,omitempty"`
}

// IssueType classifies a pronunciation problem on a single word.
type IssueType string

const (
	IssueMispronunciation IssueType = "mispronunciation"
	IssueOmission         IssueType = "omission"
	IssueInsertion        IssueType = "insertion"
)

// WordIssue is one word-level pronunciation finding.
type WordIssue struct {
	Word       string    `json:"word"`
	Issue      IssueType `json:"issueType"`
	Confidence float64   `json:"confidence"`
}

// PronunciationResult is the outcome of scoring learner audio against a
// reference text. All scores are in [0, 1].
type PronunciationResult struct {
	Accuracy     float64     `json:"accuracy"`
	ProsodyScore float64     `json:"prosodyScore"`
	Errors       []WordIssue `json:"errors"`
}

// WordTimestamp holds per-word timing from transcription backends that
// support it.
type WordTimestamp struct {
	Word       string        `json:"word"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Confidence float64       `json:"confidence"`
}

// TranscriptionResult is the text recognised from one audio clip.
type TranscriptionResult struct {
	Text string `json:"text"`

	// Confidence is the overall recognition confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// ProcessingTimeMs is the wall-clock time the backend call took.
	ProcessingTimeMs int64 `json:"processingTimeMs"`

	// Words is only populated when timestamps were requested and the backend
	// supports them.
	Words []WordTimestamp `json:"words,omitempty"`
}

// Analysis bundles the learner-facing linguistic analysis of an utterance.
type Analysis struct {
	GrammarErrors []GrammarError       `json:"grammarErrors"`
	Pronunciation *PronunciationResult `json:"pronunciation,omitempty"`
}

// ComponentUsage records which backend capabilities produced a response.
// Used for diagnostics and cost accounting.
type ComponentUsage struct {
	UsedSTT           bool   `json:"usedSTT"`
	UsedPronunciation bool   `json:"usedPronunciation"`
	UsedTTS           bool   `json:"usedTTS"`
	ModelID           string `json:"modelId"`
}

// TutorResponse is the single artifact the orchestrator hands to any
// presentation or transport layer.
type TutorResponse struct {
	ResponseEn string `json:"responseEn"`

	// ResponseVi is the Vietnamese explanation. It is nil whenever the
	// explanation policy decided against one.
	ResponseVi *string `json:"responseVi"`

	Analysis       Analysis       `json:"analysis"`
	Confidence     float64        `json:"confidence"`
	LatencyMs      int64          `json:"latencyMs"`
	ComponentUsage ComponentUsage `json:"componentUsage"`
}

// ClampUnit restricts v to the closed interval [0, 1]. NaN maps to 0.
func ClampUnit(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
