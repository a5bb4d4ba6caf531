package provider

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const openAIDefaultModel = "gpt-4o-mini"

var openAIFallbackModels = []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo"}

// OpenAI generates text with the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI is the Factory for KindOpenAI.
func NewOpenAI(creds Credentials) (ModelLister, error) {
	config := openai.DefaultConfig(creds.APIKey)
	if creds.BaseURL != "" {
		config.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	}
	config.HTTPClient = httpClient
	return &OpenAI{client: openai.NewClientWithConfig(config)}, nil
}

// ListModels returns the chat models visible to the key.
func (o *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, classifyOpenAI(err, "")
	}

	var models []string
	for _, m := range list.Models {
		if strings.Contains(m.ID, "gpt") {
			models = append(models, m.ID)
		}
	}
	if len(models) == 0 {
		return append([]string(nil), openAIFallbackModels...), nil
	}
	sort.Strings(models)
	return models, nil
}

func (o *OpenAI) GeneratePoem(ctx context.Context, prompt string, params Params) (string, error) {
	model := params.Model
	if model == "" {
		model = openAIDefaultModel
	}
	temperature := params.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Ты — поэт."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", classifyOpenAI(err, model)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Err: ErrCall, Provider: KindOpenAI, Model: model, Message: "no choices returned"}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classifyOpenAI(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return Classify(KindOpenAI, model, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return Classify(KindOpenAI, model, reqErr.HTTPStatusCode, reqErr.Error())
	}
	return transportError(KindOpenAI, model, err)
}
