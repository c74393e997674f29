package config

import "slices"

// Diff reports which hot-reloadable settings changed between two
// configurations. Settings outside this set (capture device, sample rate,
// server address) require a restart and are not diffed.
type Diff struct {
	LogLevel  bool
	ActiveSTT bool
	ActiveLLM bool
	VAD       bool
	Prompt    bool
	StopMode  bool
	Retry     bool
}

// Any reports whether at least one hot-reloadable setting changed.
func (d Diff) Any() bool {
	return d.LogLevel || d.ActiveSTT || d.ActiveLLM || d.VAD || d.Prompt || d.StopMode || d.Retry
}

// Compare computes the hot-reloadable differences between old and new.
func Compare(old, new *Config) Diff {
	return Diff{
		LogLevel:  old.Server.LogLevel != new.Server.LogLevel,
		ActiveSTT: old.Providers.ActiveSTT != new.Providers.ActiveSTT,
		ActiveLLM: old.Providers.ActiveLLM != new.Providers.ActiveLLM,
		VAD:       old.VAD != new.VAD,
		Prompt:    !promptEqual(old.Prompt, new.Prompt),
		StopMode:  old.Session.StopMode != new.Session.StopMode,
		Retry:     old.Retry != new.Retry,
	}
}

func promptEqual(a, b PromptConfig) bool {
	return a.MainCustom == b.MainCustom &&
		a.AdvancedEnabled == b.AdvancedEnabled &&
		a.AdvancedCustom == b.AdvancedCustom &&
		a.DictionaryEnabled == b.DictionaryEnabled &&
		slices.Equal(a.Vocabulary, b.Vocabulary)
}
