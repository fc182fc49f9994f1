package models

import (
	"time"

	"github.com/google/uuid"
)

type Tier string

const (
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Multiplier is the price factor of a tier; 0 for an unknown tier.
func (t Tier) Multiplier() float64 {
	switch t {
	case TierBasic:
		return 1
	case TierStandard:
		return 2
	case TierPremium:
		return 3.5
	default:
		return 0
	}
}

func (t Tier) Valid() bool { return t.Multiplier() > 0 }

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
	TaskStatusCancelled  = "cancelled"

	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

type Task struct {
	ID             uuid.UUID  `json:"id"`
	ClientID       uuid.UUID  `json:"client_id"`
	AgentID        uuid.UUID  `json:"agent_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Tier           Tier       `json:"tier"`
	PriceUSD       float64    `json:"price_usd"`
	SavedUSD       float64    `json:"saved_usd"`
	Status         string     `json:"status"`
	PaymentStatus  string     `json:"payment_status"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	Result         *string    `json:"result,omitempty"`
	Rating         *int       `json:"rating,omitempty"`
	Review         *string    `json:"review,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	// Populated by list queries.
	AgentName string `json:"agent_name,omitempty"`
	AgentSlug string `json:"agent_slug,omitempty"`
}

type Review struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	AgentID   uuid.UUID `json:"agent_id"`
	UserID    uuid.UUID `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UserName  string    `json:"user_name,omitempty"`
}

// TaskFilter narrows admin task listings.
type TaskFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
}
