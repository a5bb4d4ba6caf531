package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	speechKitURL          = "https://tts.api.cloud.yandex.net/speech/v1/tts:synthesize"
	speechKitDefaultVoice = "filipp"
	speechKitDefaultLang  = "ru-RU"
)

// SpeechKit synthesizes speech with Yandex SpeechKit v1. Its "models" are voices.
type SpeechKit struct {
	apiKey   string
	folderID string
	url      string
}

// NewSpeechKit is the Factory for KindSpeechKit.
func NewSpeechKit(creds Credentials) (ModelLister, error) {
	u := speechKitURL
	if creds.BaseURL != "" {
		u = strings.TrimRight(creds.BaseURL, "/") + "/speech/v1/tts:synthesize"
	}
	return &SpeechKit{apiKey: creds.APIKey, folderID: creds.FolderID, url: u}, nil
}

// ListModels returns the voice names.
func (s *SpeechKit) ListModels(ctx context.Context) ([]string, error) {
	return []string{
		"filipp", "alena", "madirus", "omazh", "zahar", "ermil",
		"jane", "oksana", "aleksandr", "kirill", "anton", "marina",
	}, nil
}

func (s *SpeechKit) Synthesize(ctx context.Context, text string, params Params) ([]byte, error) {
	voice := params.Voice
	if voice == "" {
		voice = params.Model
	}
	if voice == "" {
		voice = speechKitDefaultVoice
	}
	lang := params.Language
	if lang == "" {
		lang = speechKitDefaultLang
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("lang", lang)
	form.Set("voice", voice)
	form.Set("format", "mp3")
	if s.folderID != "" {
		form.Set("folderId", s.folderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Api-Key "+s.apiKey)

	audio, err := do(KindSpeechKit, voice, req)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, &Error{Err: ErrCall, Provider: KindSpeechKit, Model: voice, Message: "empty audio"}
	}
	return audio, nil
}
