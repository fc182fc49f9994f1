// Package execution runs a funded task against its agent's backend: a hosted
// chat model, a creator webhook, a third-party assistant run, or the
// placeholder used when nothing is configured.
package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/models"
	"github.com/upmolt/backend/internal/vault"
)

// CredentialVault hands out an agent's provider key without exposing how it
// is stored.
type CredentialVault interface {
	Reveal(ctx context.Context, agentID uuid.UUID) (vault.Secret, error)
}

// ResponseValidator checks a synchronous webhook body before it is trusted.
type ResponseValidator interface {
	ValidateWebhookResponse(raw []byte) error
}

// Outcome is what a backend produced. Async means the agent accepted the task
// and will report back through the callback endpoint.
type Outcome struct {
	Async  bool
	Status string
	Result string
}

func completed(result string) Outcome {
	return Outcome{Status: models.TaskStatusCompleted, Result: result}
}

// FailureResult is the deliverable stored on a task whose dispatch failed.
func FailureResult(msg string) string {
	return fmt.Sprintf("## AI Processing Error\n\n%s\n\nPlease contact the agent creator to verify their configuration.", msg)
}

// UserPrompt is the task as presented to a model or assistant.
func UserPrompt(t *models.Task) string {
	return fmt.Sprintf("Task: %s\n\nDetails: %s\n\nTier: %s", t.Title, t.Description, t.Tier)
}
