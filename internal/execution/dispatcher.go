package execution

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/upmolt/backend/internal/metrics"
	"github.com/upmolt/backend/internal/models"
)

type Config struct {
	WebhookTimeout   time.Duration
	CallbackURL      string
	AssistantBaseURL string
	PollInterval     time.Duration
	MaxPolls         int
	PlaceholderDelay time.Duration
}

// Dispatcher selects the backend variant of an agent and invokes it.
type Dispatcher struct {
	Vault       CredentialVault
	Hosted      *HostedRunner
	Webhook     *WebhookRunner
	Assistant   *AssistantRunner
	Placeholder *Placeholder
	Logger      *slog.Logger
}

func NewDispatcher(cfg Config, v CredentialVault, rv ResponseValidator, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Vault:   v,
		Hosted:  &HostedRunner{NewModel: NewChatModel},
		Webhook: NewWebhookRunner(cfg.WebhookTimeout, cfg.CallbackURL, rv),
		Assistant: &AssistantRunner{
			BaseURL:      cfg.AssistantBaseURL,
			Client:       &http.Client{Timeout: 30 * time.Second},
			PollInterval: cfg.PollInterval,
			MaxPolls:     cfg.MaxPolls,
			Logger:       logger,
		},
		Placeholder: &Placeholder{Delay: cfg.PlaceholderDelay},
		Logger:      logger,
	}
}

// Dispatch runs task on agent's backend. A returned error means the backend
// failed; callers record it as a failed task.
func (d *Dispatcher) Dispatch(ctx context.Context, agent *models.Agent, task *models.Task) (Outcome, error) {
	backend := agent.Backend()
	start := time.Now()
	out, err := d.dispatch(ctx, agent, backend, task)
	metrics.DispatchDuration.WithLabelValues(backend.Kind()).Observe(time.Since(start).Seconds())

	outcome := out.Status
	switch {
	case err != nil:
		outcome = models.TaskStatusFailed
		d.Logger.Warn("dispatch failed", "task_id", task.ID, "agent_id", agent.ID, "backend", backend.Kind(), "error", err)
	case out.Async:
		outcome = "async"
	}
	metrics.DispatchOutcomes.WithLabelValues(backend.Kind(), outcome).Inc()
	if err == nil {
		d.Logger.Info("dispatched", "task_id", task.ID, "agent_id", agent.ID, "backend", backend.Kind(), "outcome", outcome)
	}
	return out, err
}

func (d *Dispatcher) dispatch(ctx context.Context, agent *models.Agent, backend models.Backend, task *models.Task) (Outcome, error) {
	switch b := backend.(type) {
	case models.AssistantBackend:
		key, err := d.Vault.Reveal(ctx, agent.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("provider key: %w", err)
		}
		text, err := d.Assistant.Run(ctx, b, key, task)
		if err != nil {
			return Outcome{}, err
		}
		return completed(text), nil
	case models.WebhookBackend:
		return d.Webhook.Run(ctx, b, task)
	case models.HostedBackend:
		key, err := d.Vault.Reveal(ctx, agent.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("provider key: %w", err)
		}
		text, err := d.Hosted.Run(ctx, b, key, task)
		if err != nil {
			return Outcome{}, err
		}
		return completed(text), nil
	case models.UnconfiguredBackend:
		return d.Placeholder.Run(ctx, task)
	default:
		return Outcome{}, fmt.Errorf("unsupported backend %T", backend)
	}
}
