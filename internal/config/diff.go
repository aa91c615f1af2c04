package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TutorChanged is true when any hot-reloadable tutor setting changed.
	TutorChanged bool
	Tutor        TutorDiff

	// RestartRequired lists changed settings that only apply after a restart.
	RestartRequired []string
}

// TutorDiff flags the hot-reloadable tutor settings that changed.
type TutorDiff struct {
	SystemPrompt   bool
	Temperature    bool
	MaxTokens      bool
	PreferredModel bool
	AdapterTimeout bool
}

func (t TutorDiff) any() bool {
	return t.SystemPrompt || t.Temperature || t.MaxTokens || t.PreferredModel || t.AdapterTimeout
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	o, n := old.Tutor, new.Tutor
	d.Tutor = TutorDiff{
		SystemPrompt:   o.SystemPrompt != n.SystemPrompt,
		Temperature:    o.Temperature != n.Temperature,
		MaxTokens:      o.MaxTokens != n.MaxTokens,
		PreferredModel: o.PreferredModel != n.PreferredModel,
		AdapterTimeout: o.AdapterTimeout != n.AdapterTimeout,
	}
	d.TutorChanged = d.Tutor.any()

	restart := func(changed bool, field string) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, field)
		}
	}
	restart(old.Server.ListenAddr != new.Server.ListenAddr, "server.listen_addr")
	restart(!modelsEqual(old.Providers.LLM, new.Providers.LLM), "providers.llm")
	restart(!entryEqual(old.Providers.STT, new.Providers.STT), "providers.stt")
	restart(!entriesEqual(old.Providers.TTS, new.Providers.TTS), "providers.tts")
	restart(!entryEqual(old.Providers.Pronunciation, new.Providers.Pronunciation), "providers.pronunciation")
	restart(o.VoiceID != n.VoiceID, "tutor.voice_id")
	restart(o.Language != n.Language, "tutor.language")
	restart(o.SynthesisCacheSize != n.SynthesisCacheSize, "tutor.synthesis_cache_size")
	restart(o.CircuitBreaker != n.CircuitBreaker, "tutor.circuit_breaker")
	restart(old.Learners != new.Learners, "learners")

	return d
}

// entryEqual compares the scalar fields of two entries. Options are compared
// by key count and string form only.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || fmtAny(v) != fmtAny(w) {
			return false
		}
	}
	return true
}

func entriesEqual(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !entryEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func modelsEqual(a, b []ModelEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !entryEqual(a[i].ProviderEntry, b[i].ProviderEntry) {
			return false
		}
	}
	return true
}
