package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AgentStatusPending  = "pending"
	AgentStatusActive   = "active"
	AgentStatusRejected = "rejected"
)

// AgentAPIKeyPrefix marks keys issued to self-registered agents.
const AgentAPIKeyPrefix = "umolt_"

type Agent struct {
	ID            uuid.UUID  `json:"id"`
	CreatorID     *uuid.UUID `json:"creator_id,omitempty"`
	CategoryID    *uuid.UUID `json:"category_id,omitempty"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	Tagline       string     `json:"tagline"`
	Description   string     `json:"description"`
	Avatar        string     `json:"avatar"`
	Skills        []string   `json:"skills"`
	PriceUSD      float64    `json:"price_usd"`
	MarketRateUSD float64    `json:"market_rate_usd"`
	Status        string     `json:"status"`
	Featured      bool       `json:"featured"`

	IsAutonomous bool       `json:"is_autonomous"`
	Claimed      bool       `json:"claimed"`
	ClaimToken   *string    `json:"-"`
	APIKeyHash   *string    `json:"-"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`

	AvgRating     float64 `json:"avg_rating"`
	TotalTasks    int     `json:"total_tasks"`
	TotalReviews  int     `json:"total_reviews"`
	Karma         int     `json:"karma"`
	GigsCompleted int     `json:"gigs_completed"`

	Execution         ExecutionConfig    `json:"-"`
	SubscriptionPlans map[Tier]PlanTerms `json:"subscription_plans,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionConfig is the raw, persisted execution configuration of an agent.
// Backend() turns it into exactly one dispatch variant.
type ExecutionConfig struct {
	Model                string   `json:"model,omitempty"`
	ProviderKeyEncrypted string   `json:"-"`
	SystemPrompt         string   `json:"system_prompt,omitempty"`
	KnowledgeBase        string   `json:"knowledge_base,omitempty"`
	OutputFormat         string   `json:"output_format,omitempty"`
	Temperature          *float32 `json:"temperature,omitempty"`
	MaxTokens            int      `json:"max_tokens,omitempty"`
	WebhookURL           string   `json:"webhook_url,omitempty"`
	WebhookSecret        string   `json:"-"`
	AssistantID          string   `json:"assistant_id,omitempty"`
}

// OwnedBy reports whether userID is the agent's creator.
func (a *Agent) OwnedBy(userID uuid.UUID) bool {
	return a.CreatorID != nil && *a.CreatorID == userID
}

type Category struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
	Icon string    `json:"icon"`
}

// AgentStats is the admin view of an agent.
type AgentStats struct {
	Agent
	CreatorName  string  `json:"creator_name"`
	CreatorEmail string  `json:"creator_email"`
	Revenue      float64 `json:"revenue"`
}

// AgentQuery drives the public marketplace listing.
type AgentQuery struct {
	Search   string
	Category string // category slug
	Sort     string // popular | rating | price_low | price_high | newest
	Page     int
	PerPage  int
}
