package session

import "github.com/MrWong99/lingoxa/pkg/types"

const (
	// ExplanationConfidenceThreshold is the confidence below which learners at
	// B1 or above still receive a Vietnamese explanation.
	ExplanationConfidenceThreshold = 0.8

	// GrammarErrorPenalty is subtracted from the base confidence of 1.0 for
	// every grammar error detected in the learner's utterance.
	GrammarErrorPenalty = 0.1
)

// ResponseConfidence blends the grammar-based heuristic with the model's own
// confidence. The heuristic is clamp(1 - GrammarErrorPenalty*errorCount); when
// the model reports a confidence the lower of the two wins.
func ResponseConfidence(errorCount int, modelConfidence float64, reported bool) float64 {
	if errorCount < 0 {
		errorCount = 0
	}
	conf := types.ClampUnit(1 - GrammarErrorPenalty*float64(errorCount))
	if reported {
		conf = min(conf, types.ClampUnit(modelConfidence))
	}
	return conf
}

// NeedsExplanation is the Vietnamese-explanation policy. Beginners (A1, A2)
// always get an explanation. Everyone else, including learners with an
// unknown level, gets one only when a confidence is known and falls below
// ExplanationConfidenceThreshold.
func NeedsExplanation(level types.Level, confidence float64, hasConfidence bool) bool {
	if level.IsBeginner() {
		return true
	}
	return hasConfidence && confidence < ExplanationConfidenceThreshold
}

// Decision is the outcome of applying the confidence and explanation policy to
// one reply.
type Decision struct {
	Confidence       float64
	NeedsExplanation bool
}

// Decide computes the reply confidence and the explanation decision together.
func Decide(level types.Level, errorCount int, modelConfidence float64, reported bool) Decision {
	conf := ResponseConfidence(errorCount, modelConfidence, reported)
	return Decision{
		Confidence:       conf,
		NeedsExplanation: NeedsExplanation(level, conf, true),
	}
}
