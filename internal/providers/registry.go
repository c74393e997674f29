// Package providers holds the named registries that map provider identifiers
// to live STT and LLM backend instances.
//
// The pipeline never holds a backend directly. It asks the registry for the
// current provider at the moment an utterance is ready, so a config change
// can swap backends between utterances without restarting anything. A call
// already in flight keeps the instance it captured; only subsequent
// utterances see the new selection.
package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openscrivo/scrivo/pkg/provider/llm"
	"github.com/openscrivo/scrivo/pkg/provider/stt"
)

// Registry tracks named STT and LLM providers and which one of each is
// currently active. All methods are safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	stt        map[string]stt.Provider
	currentSTT string

	llm        map[string]llm.Provider
	currentLLM string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		stt: make(map[string]stt.Provider),
		llm: make(map[string]llm.Provider),
	}
}

// RegisterSTT adds an STT provider under the given name, replacing any
// previous registration. The first registered STT provider becomes current.
func (r *Registry) RegisterSTT(name string, p stt.Provider) error {
	if name == "" {
		return fmt.Errorf("providers: stt provider name must not be empty")
	}
	if p == nil {
		return fmt.Errorf("providers: stt provider %q must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = p
	if r.currentSTT == "" {
		r.currentSTT = name
	}
	return nil
}

// RegisterLLM adds an LLM provider under the given name, replacing any
// previous registration. The first registered LLM provider becomes current.
func (r *Registry) RegisterLLM(name string, p llm.Provider) error {
	if name == "" {
		return fmt.Errorf("providers: llm provider name must not be empty")
	}
	if p == nil {
		return fmt.Errorf("providers: llm provider %q must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = p
	if r.currentLLM == "" {
		r.currentLLM = name
	}
	return nil
}

// SetCurrentSTT switches the active STT provider. Unknown names are rejected
// and the previous selection stays in effect.
func (r *Registry) SetCurrentSTT(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stt[name]; !ok {
		return fmt.Errorf("providers: unknown stt provider %q", name)
	}
	r.currentSTT = name
	return nil
}

// SetCurrentLLM switches the active LLM provider. Unknown names are rejected
// and the previous selection stays in effect.
func (r *Registry) SetCurrentLLM(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.llm[name]; !ok {
		return fmt.Errorf("providers: unknown llm provider %q", name)
	}
	r.currentLLM = name
	return nil
}

// CurrentSTT returns the active STT provider and its registry name.
func (r *Registry) CurrentSTT() (stt.Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.currentSTT == "" {
		return nil, "", fmt.Errorf("providers: no stt provider registered")
	}
	return r.stt[r.currentSTT], r.currentSTT, nil
}

// CurrentLLM returns the active LLM provider and its registry name. A nil
// provider with no error means formatting is disabled: no LLM was registered.
func (r *Registry) CurrentLLM() (llm.Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.currentLLM == "" {
		return nil, "", nil
	}
	return r.llm[r.currentLLM], r.currentLLM, nil
}

// STTNames returns the registered STT provider names, sorted.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.stt)
}

// LLMNames returns the registered LLM provider names, sorted.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.llm)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
