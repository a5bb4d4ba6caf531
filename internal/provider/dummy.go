package provider

import "context"

// DummyPoem is the fixed output of the dummy backend.
const DummyPoem = "Розы красные,\nФиалки синие,\nЭтот стих тестовый,\nИ вы очень сильные!"

// Dummy is a deterministic text and audio backend for tests and local runs.
type Dummy struct{}

// NewDummy is the Factory for KindDummy. It ignores credentials.
func NewDummy(Credentials) (ModelLister, error) {
	return Dummy{}, nil
}

func (Dummy) ListModels(ctx context.Context) ([]string, error) {
	return []string{"dummy-v1"}, nil
}

func (Dummy) GeneratePoem(ctx context.Context, prompt string, params Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", transportError(KindDummy, params.Model, err)
	}
	return DummyPoem, nil
}

// Synthesize returns an ID3 header followed by the text bytes.
func (Dummy) Synthesize(ctx context.Context, text string, params Params) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError(KindDummy, params.Model, err)
	}
	return append([]byte("ID3"), text...), nil
}
