// Package learner provides learner profile snapshots and the per-reply usage
// ledger.
//
// Profiles are owned by an external store; the tutor only reads them at
// session start. Usage records are append-only.
package learner

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/lingoxa/pkg/types"
)

// ErrNotFound is returned when no profile exists for a user.
var ErrNotFound = errors.New("learner: profile not found")

// ProfileSource loads learner profile snapshots.
type ProfileSource interface {
	Profile(ctx context.Context, userID string) (*types.LearnerProfile, error)
}

// UsageRecord is one tutor reply in the usage ledger.
type UsageRecord struct {
	SessionID string
	UserID    string

	// Modality is "text" or "audio".
	Modality string

	Usage         types.ComponentUsage
	Confidence    float64
	LatencyMs     int64
	GrammarErrors int
	Explained     bool
	At            time.Time
}

// NewUsageRecord summarises resp for the ledger.
func NewUsageRecord(sessionID, userID, modality string, resp *types.TutorResponse) UsageRecord {
	return UsageRecord{
		SessionID:     sessionID,
		UserID:        userID,
		Modality:      modality,
		Usage:         resp.ComponentUsage,
		Confidence:    resp.Confidence,
		LatencyMs:     resp.LatencyMs,
		GrammarErrors: len(resp.Analysis.GrammarErrors),
		Explained:     resp.ResponseVi != nil,
		At:            time.Now().UTC(),
	}
}

// UsageRecorder appends records to the usage ledger.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec UsageRecord) error
}

// Store is a profile source that also keeps the usage ledger.
type Store interface {
	ProfileSource
	UsageRecorder
}
