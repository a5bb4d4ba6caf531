package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	yandexGPTURL          = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
	yandexGPTDefaultModel = "yandexgpt/latest"
	defaultSystemPrompt   = "Ты — профессиональный поэт. Пиши смешные, но добрые стихи."
)

// YandexGPT generates text with the Yandex Foundation Models completion API.
type YandexGPT struct {
	apiKey   string
	folderID string
	url      string
}

// NewYandexGPT is the Factory for KindYandexGPT. A cloud folder id is required.
func NewYandexGPT(creds Credentials) (ModelLister, error) {
	if creds.FolderID == "" {
		return nil, unavailable(KindYandexGPT, "folder id not configured")
	}
	url := yandexGPTURL
	if creds.BaseURL != "" {
		url = strings.TrimRight(creds.BaseURL, "/") + "/foundationModels/v1/completion"
	}
	return &YandexGPT{apiKey: creds.APIKey, folderID: creds.FolderID, url: url}, nil
}

// ListModels returns the known model names; the API has no listing endpoint
// scoped to a folder.
func (y *YandexGPT) ListModels(ctx context.Context) ([]string, error) {
	return []string{"yandexgpt/latest", "yandexgpt-lite/latest", "yandexgpt/rc"}, nil
}

type yandexMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type yandexCompletionRequest struct {
	ModelURI          string `json:"modelUri"`
	CompletionOptions struct {
		Stream      bool    `json:"stream"`
		Temperature float64 `json:"temperature"`
		MaxTokens   string  `json:"maxTokens"`
	} `json:"completionOptions"`
	Messages []yandexMessage `json:"messages"`
}

type yandexCompletionResponse struct {
	Result struct {
		Alternatives []struct {
			Message yandexMessage `json:"message"`
			Status  string        `json:"status"`
		} `json:"alternatives"`
	} `json:"result"`
}

func (y *YandexGPT) GeneratePoem(ctx context.Context, prompt string, params Params) (string, error) {
	model := params.Model
	if model == "" {
		model = yandexGPTDefaultModel
	}
	temperature := params.Temperature
	if temperature == 0 {
		temperature = 0.6
	}
	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}

	var payload yandexCompletionRequest
	payload.ModelURI = fmt.Sprintf("gpt://%s/%s", y.folderID, model)
	payload.CompletionOptions.Temperature = temperature
	payload.CompletionOptions.MaxTokens = strconv.Itoa(maxTokens)
	payload.Messages = []yandexMessage{
		{Role: "system", Text: defaultSystemPrompt},
		{Role: "user", Text: prompt},
	}

	body, err := jsonBody(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Api-Key "+y.apiKey)
	req.Header.Set("x-folder-id", y.folderID)

	respBody, err := do(KindYandexGPT, model, req)
	if err != nil {
		return "", err
	}

	var resp yandexCompletionResponse
	if err := decode(KindYandexGPT, model, respBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Result.Alternatives) == 0 {
		return "", &Error{Err: ErrCall, Provider: KindYandexGPT, Model: model, Message: "no alternatives returned"}
	}
	return strings.TrimSpace(resp.Result.Alternatives[0].Message.Text), nil
}
