package learner

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/lingoxa/pkg/types"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store]. The zero value is ready to use and safe
// for concurrent use.
type MemStore struct {
	mu       sync.RWMutex
	profiles map[string]types.LearnerProfile
	usage    []UsageRecord
}

// NewMemStore returns a MemStore seeded with profiles.
func NewMemStore(profiles ...types.LearnerProfile) *MemStore {
	s := &MemStore{}
	for _, p := range profiles {
		_ = s.Put(p)
	}
	return s
}

// Put stores or replaces the profile for p.UserID.
func (s *MemStore) Put(p types.LearnerProfile) error {
	if p.UserID == "" {
		return fmt.Errorf("learner: user id must not be empty")
	}
	p.CommonErrors = slices.Clone(p.CommonErrors)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profiles == nil {
		s.profiles = make(map[string]types.LearnerProfile)
	}
	s.profiles[p.UserID] = p
	return nil
}

// Profile implements [ProfileSource]. The returned profile is a copy.
func (s *MemStore) Profile(_ context.Context, userID string) (*types.LearnerProfile, error) {
	s.mu.RLock()
	p, ok := s.profiles[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, userID)
	}
	p.CommonErrors = slices.Clone(p.CommonErrors)
	return &p, nil
}

// RecordUsage implements [UsageRecorder].
func (s *MemStore) RecordUsage(_ context.Context, rec UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, rec)
	return nil
}

// Usage returns a copy of the ledger, oldest first.
func (s *MemStore) Usage() []UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.usage)
}
