package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/upmolt/backend/internal/metrics"
	"github.com/upmolt/backend/internal/models"
	"github.com/upmolt/backend/internal/vault"
)

const DefaultAssistantBaseURL = "https://api.openai.com/v1"

var ErrRunTimeout = errors.New("assistant run did not complete in time")

// AssistantRunner drives the thread/run/poll protocol of an assistants API.
type AssistantRunner struct {
	BaseURL      string
	Client       *http.Client
	PollInterval time.Duration
	MaxPolls     int
	Logger       *slog.Logger
}

type assistantRun struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Status    string `json:"status"`
	LastError *struct {
		Message string `json:"message"`
	} `json:"last_error"`
}

type assistantMessages struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// Run creates a thread with the task, polls the run until it completes and
// returns the newest message.
func (a *AssistantRunner) Run(ctx context.Context, b models.AssistantBackend, key vault.Secret, task *models.Task) (string, error) {
	var run assistantRun
	err := a.do(ctx, key, http.MethodPost, "/threads/runs", map[string]any{
		"assistant_id": b.AssistantID,
		"thread": map[string]any{
			"messages": []map[string]string{{"role": "user", "content": UserPrompt(task)}},
		},
	}, &run)
	if err != nil {
		return "", fmt.Errorf("start assistant run: %w", err)
	}

	log := a.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("task_id", task.ID, "thread_id", run.ThreadID, "run_id", run.ID)
	for attempt := 1; attempt <= a.MaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(a.PollInterval):
		}
		if err := a.do(ctx, key, http.MethodGet, "/threads/"+run.ThreadID+"/runs/"+run.ID, nil, &run); err != nil {
			return "", fmt.Errorf("poll assistant run: %w", err)
		}
		metrics.AssistantPolls.WithLabelValues(run.Status).Inc()
		log.Debug("assistant poll", "attempt", attempt, "status", run.Status)

		switch run.Status {
		case "completed":
			return a.latestMessage(ctx, key, run.ThreadID)
		case "failed", "cancelled", "expired", "incomplete", "requires_action":
			msg := "assistant run " + run.Status
			if run.LastError != nil && run.LastError.Message != "" {
				msg += ": " + run.LastError.Message
			}
			return "", errors.New(msg)
		}
	}
	return "", ErrRunTimeout
}

func (a *AssistantRunner) latestMessage(ctx context.Context, key vault.Secret, threadID string) (string, error) {
	var msgs assistantMessages
	if err := a.do(ctx, key, http.MethodGet, "/threads/"+threadID+"/messages?order=desc&limit=1", nil, &msgs); err != nil {
		return "", fmt.Errorf("fetch assistant reply: %w", err)
	}
	if len(msgs.Data) == 0 {
		return "", errors.New("assistant returned no messages")
	}
	var sb strings.Builder
	for _, c := range msgs.Data[0].Content {
		if c.Type == "text" {
			sb.WriteString(c.Text.Value)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("assistant reply has no text")
	}
	return sb.String(), nil
}

func (a *AssistantRunner) do(ctx context.Context, key vault.Secret, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	base := a.BaseURL
	if base == "" {
		base = DefaultAssistantBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(base, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+key.Reveal())
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("OpenAI API error: %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
