// Package mock provides a test double for the pronunciation.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingoxa/pkg/provider/pronunciation"
	"github.com/MrWong99/lingoxa/pkg/types"
)

// AnalyzeCall records a single invocation of Provider.Analyze.
type AnalyzeCall struct {
	Ctx       context.Context
	Audio     []byte
	Reference string
}

// Provider is a mock implementation of pronunciation.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Analyze. A copy is returned on every call. If nil,
	// a perfect score is returned.
	Result *types.PronunciationResult

	// Err, if non-nil, is returned as the error from Analyze.
	Err error

	// Calls records every call to Analyze.
	Calls []AnalyzeCall
}

// Analyze records the call and returns Result, Err.
func (p *Provider) Analyze(ctx context.Context, audio []byte, reference string) (*types.PronunciationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, AnalyzeCall{Ctx: ctx, Audio: audio, Reference: reference})
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result == nil {
		return &types.PronunciationResult{Accuracy: 1, ProsodyScore: 1, Errors: []types.WordIssue{}}, nil
	}
	out := *p.Result
	out.Errors = append([]types.WordIssue{}, p.Result.Errors...)
	return &out, nil
}

// CallCount returns the number of Analyze invocations. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ pronunciation.Provider = (*Provider)(nil)
