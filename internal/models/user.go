package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	UserRoleClient  = "client"
	UserRoleCreator = "creator"
)

type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	TotalSavedUSD float64   `json:"total_saved_usd"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserSummary is the admin view of a user with spend aggregates.
type UserSummary struct {
	User
	TaskCount  int     `json:"task_count"`
	TotalSpent float64 `json:"total_spent"`
}
