// internal/infra/scoring/client.go
package scoring

import (
	"context"
	"fmt"
	"time"

	domainScoring "course_delivery_bot/internal/domain/scoring"

	"github.com/go-resty/resty/v2"
)

// Client talks to a chat-completions style grading endpoint. The assistant
// is asked to reply with {"score": n, "feedback": "..."}; whatever text it
// actually returns is handed back raw, since models do not always comply and
// the application parses defensively.
type Client struct {
	http  *resty.Client
	model string
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		httpClient.SetAuthToken(apiKey)
	}
	return &Client{http: httpClient, model: model}
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Temperature float64                 `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Score(ctx context.Context, req domainScoring.Request) (string, error) {
	systemPrompt := fmt.Sprintf(
		"Ты проверяешь ответ ученика на задание курса.\n"+
			"Критерии оценки: %s\n"+
			"Максимальный балл: %.0f.\n"+
			"Ответь строго JSON вида {\"score\": число, \"feedback\": \"комментарий для куратора\"}.",
		req.Rubric, req.MaxScore,
	)
	userPrompt := fmt.Sprintf("Задание:\n%s\n\nОтвет ученика:\n%s", req.TaskText, req.AnswerText)

	body := chatCompletionRequest{
		Model: c.model,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
	}

	var parsed chatCompletionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&parsed).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("scoring request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("scoring endpoint returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("scoring endpoint returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
