// internal/infra/transcribe/client.go
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client sends recordings to a whisper-style transcription endpoint. The
// language is pinned via configuration so short recordings are not
// misdetected.
type Client struct {
	http     *resty.Client
	model    string
	language string
}

func NewClient(baseURL, apiKey, model, language string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	if apiKey != "" {
		httpClient.SetAuthToken(apiKey)
	}
	return &Client{http: httpClient, model: model, language: language}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (c *Client) Transcribe(ctx context.Context, data []byte, filenameHint string) (string, error) {
	var parsed transcriptionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filenameHint, bytes.NewReader(data)).
		SetFormData(map[string]string{
			"model":    c.model,
			"language": c.language,
		}).
		SetResult(&parsed).
		Post("/audio/transcriptions")
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("transcription endpoint returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return parsed.Text, nil
}
