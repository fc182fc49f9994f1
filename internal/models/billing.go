package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"

	PaymentRecordPending   = "pending"
	PaymentRecordCompleted = "completed"

	PaymentMethodSOL = "sol"
)

// PlanTerms is the quota and discount of one subscription tier.
type PlanTerms struct {
	TasksPerMonth int     `json:"tasks_per_month"`
	DiscountPct   float64 `json:"discount_pct"`
}

// DefaultPlans apply when an agent defines no override for a tier.
var DefaultPlans = map[Tier]PlanTerms{
	TierBasic:    {TasksPerMonth: 5, DiscountPct: 10},
	TierStandard: {TasksPerMonth: 15, DiscountPct: 20},
	TierPremium:  {TasksPerMonth: 50, DiscountPct: 35},
}

type Subscription struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	AgentID       uuid.UUID  `json:"agent_id"`
	Tier          Tier       `json:"tier"`
	TasksPerMonth int        `json:"tasks_per_month"`
	TasksUsed     int        `json:"tasks_used"`
	PriceUSD      float64    `json:"price_usd"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`

	AgentName string `json:"agent_name,omitempty"`
}

// Remaining is the unconsumed quota.
func (s *Subscription) Remaining() int {
	if r := s.TasksPerMonth - s.TasksUsed; r > 0 {
		return r
	}
	return 0
}

// Payment targets exactly one of TaskID or SubscriptionID.
type Payment struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	TaskID         *uuid.UUID `json:"task_id,omitempty"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	AmountUSD      float64    `json:"amount_usd"`
	AmountSOL      float64    `json:"amount_sol"`
	Method         string     `json:"method"`
	Reference      string     `json:"reference"`
	Recipient      string     `json:"recipient"`
	TxSignature    *string    `json:"tx_signature,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
}

const (
	NotificationTaskCreated           = "task_created"
	NotificationTaskCompleted         = "task_completed"
	NotificationTaskReviewed          = "task_reviewed"
	NotificationSubscriptionActivated = "subscription_activated"
	NotificationPaymentReceived       = "payment_received"
)

type Notification struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}

// PlatformStats backs the admin dashboard.
type PlatformStats struct {
	TotalRevenue   float64 `json:"totalRevenue"`
	TotalUsers     int     `json:"totalUsers"`
	TotalAgents    int     `json:"totalAgents"`
	TotalTasks     int     `json:"totalTasks"`
	TasksThisMonth int     `json:"tasksThisMonth"`
	NewUsersWeek   int     `json:"newUsersWeek"`
}

// Earnings summarises a creator's revenue.
type Earnings struct {
	Total               float64 `json:"total"`
	Completed           int     `json:"completed"`
	Pending             int     `json:"pending"`
	SubscriptionRevenue float64 `json:"subscription_revenue"`
	PlatformFee         float64 `json:"platform_fee"`
	NetEarnings         float64 `json:"net_earnings"`
	Tasks               []*Task `json:"tasks"`
}
