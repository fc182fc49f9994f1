package models

const (
	DefaultModel        = "gpt-4o"
	DefaultSystemPrompt = "You are a helpful AI agent."
	DefaultOutputFormat = "markdown"
	DefaultTemperature  = float32(0.7)
	DefaultMaxTokens    = 4096
)

// Backend is the execution variant an agent dispatches to. The set of
// implementations is closed; see Agent.Backend.
type Backend interface {
	backend()
	Kind() string
}

// AssistantBackend drives a third-party assistant thread/run.
type AssistantBackend struct {
	AssistantID string
}

// WebhookBackend posts the task to a creator-operated endpoint.
type WebhookBackend struct {
	URL    string
	Secret string
}

// HostedBackend calls a chat-completion model with stored instructions.
type HostedBackend struct {
	Model         string
	SystemPrompt  string
	KnowledgeBase string
	OutputFormat  string
	Temperature   float32
	MaxTokens     int
}

// UnconfiguredBackend produces a placeholder deliverable.
type UnconfiguredBackend struct{}

func (AssistantBackend) backend()    {}
func (WebhookBackend) backend()      {}
func (HostedBackend) backend()       {}
func (UnconfiguredBackend) backend() {}

func (AssistantBackend) Kind() string    { return "assistant" }
func (WebhookBackend) Kind() string      { return "webhook" }
func (HostedBackend) Kind() string       { return "hosted" }
func (UnconfiguredBackend) Kind() string { return "unconfigured" }

// Backend resolves the agent's execution variant. Priority: assistant,
// webhook, hosted model, then the unconfigured placeholder.
func (a *Agent) Backend() Backend {
	c := a.Execution
	switch {
	case c.AssistantID != "" && c.ProviderKeyEncrypted != "":
		return AssistantBackend{AssistantID: c.AssistantID}
	case c.WebhookURL != "":
		return WebhookBackend{URL: c.WebhookURL, Secret: c.WebhookSecret}
	case c.ProviderKeyEncrypted != "":
		h := HostedBackend{
			Model:         c.Model,
			SystemPrompt:  c.SystemPrompt,
			KnowledgeBase: c.KnowledgeBase,
			OutputFormat:  c.OutputFormat,
			Temperature:   DefaultTemperature,
			MaxTokens:     c.MaxTokens,
		}
		if h.Model == "" {
			h.Model = DefaultModel
		}
		if h.SystemPrompt == "" {
			h.SystemPrompt = DefaultSystemPrompt
		}
		if h.OutputFormat == "" {
			h.OutputFormat = DefaultOutputFormat
		}
		if c.Temperature != nil {
			h.Temperature = *c.Temperature
		}
		if h.MaxTokens <= 0 {
			h.MaxTokens = DefaultMaxTokens
		}
		return h
	default:
		return UnconfiguredBackend{}
	}
}
