package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/upmolt/backend/internal/models"
)

const maxWebhookBody = 1 << 20

type WebhookRunner struct {
	Client      *http.Client
	CallbackURL string
	Validator   ResponseValidator
}

func NewWebhookRunner(timeout time.Duration, callbackURL string, v ResponseValidator) *WebhookRunner {
	return &WebhookRunner{
		Client:      &http.Client{Timeout: timeout},
		CallbackURL: callbackURL,
		Validator:   v,
	}
}

type webhookPayload struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Tier        string `json:"tier"`
	CallbackURL string `json:"callback_url"`
}

type webhookResponse struct {
	Status  string `json:"status"`
	Result  string `json:"result"`
	Content string `json:"content"`
}

// Run posts the task to the creator's endpoint. 202 switches the task to
// asynchronous completion; any other non-2xx is a failure.
func (w *WebhookRunner) Run(ctx context.Context, b models.WebhookBackend, task *models.Task) (Outcome, error) {
	resp, err := w.post(ctx, b.URL, b.Secret, webhookPayload{
		TaskID:      task.ID.String(),
		Title:       task.Title,
		Description: task.Description,
		Tier:        string(task.Tier),
		CallbackURL: w.CallbackURL,
	})
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return Outcome{Async: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{}, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookBody))
	if err != nil {
		return Outcome{}, fmt.Errorf("read webhook response: %w", err)
	}
	if w.Validator != nil {
		if err := w.Validator.ValidateWebhookResponse(raw); err != nil {
			return Outcome{}, fmt.Errorf("webhook response rejected: %w", err)
		}
	}
	var body webhookResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return Outcome{}, fmt.Errorf("webhook returned invalid JSON: %w", err)
	}
	result := body.Result
	if result == "" {
		result = body.Content
	}
	if result == "" {
		return Outcome{}, errors.New("webhook response has no result")
	}
	if body.Status == models.TaskStatusFailed {
		return Outcome{Status: models.TaskStatusFailed, Result: result}, nil
	}
	return completed(result), nil
}

func (w *WebhookRunner) post(ctx context.Context, url, secret string, payload webhookPayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call webhook: %w", err)
	}
	return resp, nil
}
