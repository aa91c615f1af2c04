package tutor

import (
	"sync/atomic"
	"time"
)

// DefaultTemperature is the sampling temperature used for tutor replies.
const DefaultTemperature = 0.7

// Settings are the hot-reloadable knobs of the tutor.
type Settings struct {
	// SystemPrompt is the tutor persona. Empty means [DefaultSystemPrompt].
	SystemPrompt string

	// Temperature is forwarded to the conversational model.
	Temperature float64

	// MaxTokens caps reply length. Zero leaves the adapter default.
	MaxTokens int

	// PreferredModel is tried first for every reply without becoming the
	// router's current model.
	PreferredModel string

	// AdapterTimeout bounds each transcription, pronunciation and synthesis
	// call. Zero means 10 seconds.
	AdapterTimeout time.Duration
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		Temperature:    DefaultTemperature,
		AdapterTimeout: defaultAdapterTimeout,
	}
}

func (s Settings) systemPrompt() string {
	if s.SystemPrompt == "" {
		return DefaultSystemPrompt
	}
	return s.SystemPrompt
}

func (s Settings) adapterTimeout() time.Duration {
	if s.AdapterTimeout <= 0 {
		return defaultAdapterTimeout
	}
	return s.AdapterTimeout
}

// SettingsStore holds the live [Settings] shared by every session. It is safe
// for concurrent use; Store takes effect for the next call.
type SettingsStore struct {
	v atomic.Pointer[Settings]
}

// NewSettingsStore returns a store holding s.
func NewSettingsStore(s Settings) *SettingsStore {
	st := &SettingsStore{}
	st.Store(s)
	return st
}

// Load returns the current settings.
func (st *SettingsStore) Load() Settings {
	if p := st.v.Load(); p != nil {
		return *p
	}
	return DefaultSettings()
}

// Store replaces the current settings.
func (st *SettingsStore) Store(s Settings) {
	st.v.Store(&s)
}
