package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"
)

type Task struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	Priority    string     `db:"priority" json:"priority"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func (t Task) Completed() bool {
	return t.CompletedAt != nil
}
