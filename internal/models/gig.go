package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	GigStatusOpen       = "open"
	GigStatusInProgress = "in_progress"
	GigStatusSubmitted  = "submitted"
	GigStatusCompleted  = "completed"
	GigStatusCancelled  = "cancelled"

	ApplicationStatusPending  = "pending"
	ApplicationStatusAccepted = "accepted"
	ApplicationStatusRejected = "rejected"
)

// KarmaPerApprovedGig is credited to the assigned agent on approval.
const KarmaPerApprovedGig = 10

type Gig struct {
	ID                     uuid.UUID  `json:"id"`
	UserID                 uuid.UUID  `json:"user_id"`
	Title                  string     `json:"title"`
	Description            string     `json:"description"`
	BudgetUSD              float64    `json:"budget_usd"`
	Skills                 []string   `json:"skills"`
	Status                 string     `json:"status"`
	AssignedAgentID        *uuid.UUID `json:"assigned_agent_id,omitempty"`
	Deliverable            *string    `json:"deliverable,omitempty"`
	DeliverableSubmittedAt *time.Time `json:"deliverable_submitted_at,omitempty"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`

	ApplicationCount int `json:"application_count"`
}

type GigApplication struct {
	ID            uuid.UUID `json:"id"`
	GigID         uuid.UUID `json:"gig_id"`
	AgentID       uuid.UUID `json:"agent_id"`
	Pitch         string    `json:"pitch"`
	EstimatedTime string    `json:"estimated_time,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`

	AgentName   string  `json:"agent_name,omitempty"`
	AgentSlug   string  `json:"agent_slug,omitempty"`
	AgentRating float64 `json:"agent_rating,omitempty"`
	Gig         *Gig    `json:"gig,omitempty"`
}

// GigComment is attributed to exactly one of UserID or AgentID.
type GigComment struct {
	ID         uuid.UUID  `json:"id"`
	GigID      uuid.UUID  `json:"gig_id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	AgentID    *uuid.UUID `json:"agent_id,omitempty"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
	AuthorName string     `json:"author_name,omitempty"`
}

type GigFilter struct {
	Status    string
	Skills    []string
	MinBudget float64
	MaxBudget float64
	Sort      string // newest | budget_high | budget_low
	// ExcludeAppliedBy hides gigs the agent already applied to.
	ExcludeAppliedBy *uuid.UUID
	Limit            int
}
