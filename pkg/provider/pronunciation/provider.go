// Package pronunciation defines the Provider interface for backends that
// score a learner's spoken English against a reference text.
//
// Implementations must be safe for concurrent use.
package pronunciation

import (
	"context"
	"errors"

	"github.com/MrWong99/lingoxa/pkg/types"
)

// ErrAnalysisFailed is wrapped by every error an implementation returns.
// Implementations never substitute a default score for a failed analysis.
var ErrAnalysisFailed = errors.New("pronunciation: analysis failed")

// Provider scores pronunciation.
type Provider interface {
	// Analyze compares the recording in audio (a WAV file) with reference,
	// the text the learner meant to say. Word issues are returned in
	// reference order.
	Analyze(ctx context.Context, audio []byte, reference string) (*types.PronunciationResult, error)
}
