package provider

import (
	"sort"
	"sync"
)

// Factory builds a backend from credentials. The returned value implements
// TextGenerator, AudioSynthesizer, or both.
type Factory func(creds Credentials) (ModelLister, error)

// Registry maps provider kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// NewDefaultRegistry returns a registry with every built-in backend registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindYandexGPT, NewYandexGPT)
	r.Register(KindOpenAI, NewOpenAI)
	r.Register(KindGemini, NewGemini)
	r.Register(KindSpeechKit, NewSpeechKit)
	r.Register(KindDummy, NewDummy)
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind Kind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered kinds sorted by name.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build constructs the backend for kind without checking its modality.
func (r *Registry) Build(kind Kind, creds Credentials) (ModelLister, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, unavailable(kind, "no backend registered")
	}
	if kind.RequiresKey() && creds.APIKey == "" {
		return nil, unavailable(kind, "credential not configured")
	}
	return f(creds)
}

// Text builds a text generator for kind.
func (r *Registry) Text(kind Kind, creds Credentials) (TextGenerator, error) {
	backend, err := r.Build(kind, creds)
	if err != nil {
		return nil, err
	}
	gen, ok := backend.(TextGenerator)
	if !ok {
		return nil, unavailable(kind, "does not generate text")
	}
	return gen, nil
}

// Audio builds an audio synthesizer for kind.
func (r *Registry) Audio(kind Kind, creds Credentials) (AudioSynthesizer, error) {
	backend, err := r.Build(kind, creds)
	if err != nil {
		return nil, err
	}
	synth, ok := backend.(AudioSynthesizer)
	if !ok {
		return nil, unavailable(kind, "does not synthesize audio")
	}
	return synth, nil
}
