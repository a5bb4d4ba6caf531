package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-flash-latest"
)

var geminiFallbackModels = []string{"gemini-1.5-flash", "gemini-1.5-pro", "gemini-2.0-flash-exp"}

// Gemini generates text with the Google Generative Language REST API.
type Gemini struct {
	apiKey  string
	baseURL string
}

// NewGemini is the Factory for KindGemini.
func NewGemini(creds Credentials) (ModelLister, error) {
	base := geminiBaseURL
	if creds.BaseURL != "" {
		base = strings.TrimRight(creds.BaseURL, "/")
	}
	return &Gemini{apiKey: creds.APIKey, baseURL: base}, nil
}

type geminiModelList struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

// ListModels returns models that support generateContent.
func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/models?pageSize=200", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", g.apiKey)

	body, err := do(KindGemini, "", req)
	if err != nil {
		return nil, err
	}
	var list geminiModelList
	if err := decode(KindGemini, "", body, &list); err != nil {
		return nil, err
	}

	var models []string
	for _, m := range list.Models {
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				models = append(models, strings.TrimPrefix(m.Name, "models/"))
				break
			}
		}
	}
	if len(models) == 0 {
		return append([]string(nil), geminiFallbackModels...), nil
	}
	sort.Strings(models)
	return models, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		CandidateCount  int     `json:"candidateCount"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

var markupFence = regexp.MustCompile("```(?:html|markdown)?")
var blockquoteTag = regexp.MustCompile(`(?i)</?blockquote>`)

func (g *Gemini) GeneratePoem(ctx context.Context, prompt string, params Params) (string, error) {
	model := params.Model
	if model == "" {
		model = geminiDefaultModel
	}

	var payload geminiGenerateRequest
	payload.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
	payload.GenerationConfig.CandidateCount = 1
	payload.GenerationConfig.MaxOutputTokens = params.MaxTokens
	if payload.GenerationConfig.MaxOutputTokens == 0 {
		payload.GenerationConfig.MaxOutputTokens = 2048
	}
	payload.GenerationConfig.Temperature = params.Temperature
	if payload.GenerationConfig.Temperature == 0 {
		payload.GenerationConfig.Temperature = 0.7
	}

	body, err := jsonBody(payload)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	respBody, err := do(KindGemini, model, req)
	if err != nil {
		return "", err
	}
	var resp geminiGenerateResponse
	if err := decode(KindGemini, model, respBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", &Error{Err: ErrCall, Provider: KindGemini, Model: model, Message: "no candidates returned"}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := markupFence.ReplaceAllString(sb.String(), "")
	text = blockquoteTag.ReplaceAllString(text, "")
	return strings.TrimSpace(text), nil
}
