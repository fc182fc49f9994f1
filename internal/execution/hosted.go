package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/upmolt/backend/internal/models"
	"github.com/upmolt/backend/internal/vault"
)

// ChatModelFactory builds a chat model for one call.
type ChatModelFactory func(ctx context.Context, modelName, apiKey string, maxTokens int) (model.BaseChatModel, error)

// NewChatModel routes claude-* models to Anthropic and everything else to
// OpenAI-compatible chat completions.
func NewChatModel(ctx context.Context, modelName, apiKey string, maxTokens int) (model.BaseChatModel, error) {
	if isClaude(modelName) {
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     modelName,
			MaxTokens: maxTokens,
		})
	}
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey: apiKey,
		Model:  modelName,
	})
}

func isClaude(modelName string) bool { return strings.HasPrefix(modelName, "claude") }

type HostedRunner struct {
	NewModel ChatModelFactory
}

// SystemPrompt assembles instructions, optional knowledge and the output
// format directive.
func SystemPrompt(b models.HostedBackend) string {
	var sb strings.Builder
	sb.WriteString(b.SystemPrompt)
	if b.KnowledgeBase != "" {
		sb.WriteString("\n\n## Reference Knowledge\n")
		sb.WriteString(b.KnowledgeBase)
	}
	sb.WriteString("\n\nOutput format: ")
	sb.WriteString(b.OutputFormat)
	return sb.String()
}

func (h *HostedRunner) Run(ctx context.Context, b models.HostedBackend, key vault.Secret, task *models.Task) (string, error) {
	provider := "OpenAI"
	if isClaude(b.Model) {
		provider = "Anthropic"
	}
	newModel := h.NewModel
	if newModel == nil {
		newModel = NewChatModel
	}
	cm, err := newModel(ctx, b.Model, key.Reveal(), b.MaxTokens)
	if err != nil {
		return "", fmt.Errorf("%s client: %w", provider, err)
	}
	resp, err := cm.Generate(ctx, []*schema.Message{
		schema.SystemMessage(SystemPrompt(b)),
		schema.UserMessage(UserPrompt(task)),
	}, model.WithTemperature(b.Temperature), model.WithMaxTokens(b.MaxTokens))
	if err != nil {
		return "", fmt.Errorf("%s API error: %w", provider, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", errors.New(provider + " API returned an empty completion")
	}
	return resp.Content, nil
}
