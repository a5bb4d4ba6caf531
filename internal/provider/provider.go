// Package provider defines the generation capabilities used by the worker and
// the concrete AI backends that implement them.
package provider

import (
	"context"
	"net/http"
)

// Kind identifies a provider backend. The set is closed; the registry only
// builds kinds it has a factory for.
type Kind string

const (
	KindYandexGPT Kind = "yandexgpt"
	KindOpenAI    Kind = "openai"
	KindGemini    Kind = "gemini"
	KindSpeechKit Kind = "speechkit"
	KindDummy     Kind = "dummy"
)

// Kinds lists every known provider kind.
var Kinds = []Kind{KindYandexGPT, KindOpenAI, KindGemini, KindSpeechKit, KindDummy}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// RequiresKey reports whether the kind needs an API key to be built.
func (k Kind) RequiresKey() bool {
	return k != KindDummy
}

// GeneratesText reports whether the kind's backend is a TextGenerator.
func (k Kind) GeneratesText() bool {
	switch k {
	case KindYandexGPT, KindOpenAI, KindGemini, KindDummy:
		return true
	}
	return false
}

// SynthesizesAudio reports whether the kind's backend is an AudioSynthesizer.
func (k Kind) SynthesizesAudio() bool {
	return k == KindSpeechKit || k == KindDummy
}

// Params tune a single generation call. Zero values fall back to backend defaults.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Voice       string
	Language    string
}

// ModelLister lists the models (or voices) a backend currently offers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// TextGenerator produces poem text from a prompt.
type TextGenerator interface {
	ModelLister
	GeneratePoem(ctx context.Context, prompt string, params Params) (string, error)
}

// AudioSynthesizer turns text into encoded audio (mp3).
type AudioSynthesizer interface {
	ModelLister
	Synthesize(ctx context.Context, text string, params Params) ([]byte, error)
}

// Credentials are the decrypted values a factory needs to build a backend.
// BaseURL overrides the backend's public endpoint.
type Credentials struct {
	APIKey   string
	FolderID string
	BaseURL  string
}

// Provider-call deadlines come from the caller's context, so the client itself
// carries no timeout.
var httpClient = &http.Client{}
