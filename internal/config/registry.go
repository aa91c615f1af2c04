package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/lingoxa/pkg/provider/llm"
	"github.com/MrWong99/lingoxa/pkg/provider/pronunciation"
	"github.com/MrWong99/lingoxa/pkg/provider/stt"
	"github.com/MrWong99/lingoxa/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// PronunciationFactory builds a pronunciation scorer. transcriber is the
// configured STT backend and may be nil.
type PronunciationFactory func(entry ProviderEntry, transcriber stt.Provider) (pronunciation.Provider, error)

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	llm           map[string]func(ProviderEntry) (llm.Provider, error)
	stt           map[string]func(ProviderEntry) (stt.Provider, error)
	tts           map[string]func(ProviderEntry) (tts.Provider, error)
	pronunciation map[string]PronunciationFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:           make(map[string]func(ProviderEntry) (llm.Provider, error)),
		stt:           make(map[string]func(ProviderEntry) (stt.Provider, error)),
		tts:           make(map[string]func(ProviderEntry) (tts.Provider, error)),
		pronunciation: make(map[string]PronunciationFactory),
	}
}

// RegisterLLM registers a conversational model factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterPronunciation registers a pronunciation scorer factory under name.
func (r *Registry) RegisterPronunciation(name string, factory PronunciationFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pronunciation[name] = factory
}

// Names returns the registered provider names of kind ("llm", "stt", "tts"
// or "pronunciation") in unspecified order.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "llm":
		for n := range r.llm {
			names = append(names, n)
		}
	case "stt":
		for n := range r.stt {
			names = append(names, n)
		}
	case "tts":
		for n := range r.tts {
			names = append(names, n)
		}
	case "pronunciation":
		for n := range r.pronunciation {
			names = append(names, n)
		}
	}
	return names
}

// CreateLLM instantiates a model adapter using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreatePronunciation instantiates a pronunciation scorer using the factory
// registered under entry.Name.
func (r *Registry) CreatePronunciation(entry ProviderEntry, transcriber stt.Provider) (pronunciation.Provider, error) {
	r.mu.RLock()
	factory, ok := r.pronunciation[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: pronunciation/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, transcriber)
}
