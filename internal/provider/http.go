package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes bounds how much of a provider response is read; mp3 output
// for a poem is well under this.
const maxResponseBytes = 16 << 20

// do sends req and returns the body of a 2xx response. Anything else is
// classified by status code.
func do(kind Kind, model string, req *http.Request) ([]byte, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, transportError(kind, model, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(kind, model, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, Classify(kind, model, resp.StatusCode, string(body))
	}
	return body, nil
}

// jsonBody encodes v as a request body.
func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return bytes.NewReader(b), nil
}

// decode unmarshals a provider response, treating malformed JSON as a call error.
func decode(kind Kind, model string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &Error{Err: ErrCall, Provider: kind, Model: model, Message: "malformed response: " + err.Error()}
	}
	return nil
}
