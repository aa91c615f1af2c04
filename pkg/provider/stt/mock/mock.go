// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled transcriptions to the tutor and to inspect
// which recordings and options it sent.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: &types.TranscriptionResult{Text: "I am go home", Confidence: 0.9},
//	}
//	res, _ := p.Transcribe(ctx, wav, stt.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingoxa/pkg/provider/stt"
	"github.com/MrWong99/lingoxa/pkg/types"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is the recording passed to Transcribe.
	Audio []byte
	// Opts is the Options value passed to Transcribe.
	Opts stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe. A copy is returned so callers may
	// modify it. If nil, an empty result is returned.
	Result *types.TranscriptionResult

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeFunc, if set, takes precedence over Result and Err. It is
	// called without the internal lock held.
	TranscribeFunc func(ctx context.Context, audio []byte, opts stt.Options) (*types.TranscriptionResult, error)

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, opts stt.Options) (*types.TranscriptionResult, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Audio: audio, Opts: opts})
	fn, res, err := p.TranscribeFunc, p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio, opts)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &types.TranscriptionResult{}, nil
	}
	out := *res
	out.Words = append([]types.WordTimestamp(nil), res.Words...)
	return &out, nil
}

// CallCount returns the number of Transcribe invocations. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent invocation and true, or false if none.
func (p *Provider) LastCall() (TranscribeCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return TranscribeCall{}, false
	}
	return p.Calls[len(p.Calls)-1], true
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
