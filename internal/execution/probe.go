package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upmolt/backend/internal/vault"
)

// ProbeResult reports a creator-initiated connection test.
type ProbeResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ResponseTimeMS int64  `json:"response_time_ms"`
}

// ProbeWebhook sends a synthetic task to url and classifies the reply.
func (w *WebhookRunner) ProbeWebhook(ctx context.Context, url, secret string) ProbeResult {
	start := time.Now()
	resp, err := w.post(ctx, url, secret, webhookPayload{
		TaskID:      fmt.Sprintf("test-%d", start.UnixMilli()),
		Title:       "Test Connection",
		Description: "This is a test request from Upmolt to verify your webhook endpoint.",
		Tier:        "basic",
		CallbackURL: w.CallbackURL,
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return ProbeResult{Message: err.Error(), ResponseTimeMS: elapsed}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return ProbeResult{Success: true, Message: "Endpoint accepted (async mode, returned 202)", ResponseTimeMS: elapsed}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return ProbeResult{Message: fmt.Sprintf("Endpoint returned %d", resp.StatusCode), ResponseTimeMS: elapsed}
	}
	var body webhookResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxWebhookBody)).Decode(&body); err == nil &&
		(body.Result != "" || body.Status != "" || body.Content != "") {
		return ProbeResult{Success: true, Message: "Connection successful, valid response format", ResponseTimeMS: elapsed}
	}
	return ProbeResult{Success: true, Message: "Connection successful, verify the response format matches the expected schema", ResponseTimeMS: elapsed}
}

// ProbeAssistant looks the assistant up with the given key.
func (a *AssistantRunner) ProbeAssistant(ctx context.Context, assistantID string, key vault.Secret) ProbeResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var info struct {
		Name string `json:"name"`
	}
	err := a.do(ctx, key, http.MethodGet, "/assistants/"+assistantID, nil, &info)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return ProbeResult{Message: err.Error(), ResponseTimeMS: elapsed}
	}
	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = assistantID
	}
	return ProbeResult{Success: true, Message: fmt.Sprintf("Connected to assistant %q", name), ResponseTimeMS: elapsed}
}

// ProbeWebhook tests a webhook endpoint with the dispatcher's runner.
func (d *Dispatcher) ProbeWebhook(ctx context.Context, url, secret string) ProbeResult {
	return d.Webhook.ProbeWebhook(ctx, url, secret)
}

func (d *Dispatcher) ProbeAssistant(ctx context.Context, assistantID string, key vault.Secret) ProbeResult {
	return d.Assistant.ProbeAssistant(ctx, assistantID, key)
}
