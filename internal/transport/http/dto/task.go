package dto

import (
	"time"

	"task_manager/internal/domain/models"

	"github.com/google/uuid"
)

type CreateTaskRequest struct {
	Name        string     `json:"name" validate:"required,max=200"`
	Description string     `json:"description,omitempty" validate:"omitempty,max=2000"`
	Priority    string     `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// UpdateTaskRequest is a partial update, nil fields are left as they are.
type UpdateTaskRequest struct {
	Name        *string    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Priority    *string    `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

func (r UpdateTaskRequest) Empty() bool {
	return r.Name == nil && r.Description == nil && r.Priority == nil && r.DueDate == nil
}

type TaskResponse struct {
	ID          uuid.UUID  `json:"id" swaggertype:"string" format:"uuid"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type TaskListResponse struct {
	Tasks      []TaskResponse `json:"tasks"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
}

func NewTaskResponse(t models.Task) TaskResponse {
	status := models.TaskStatusPending
	if t.Completed() {
		status = models.TaskStatusCompleted
	}

	return TaskResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Priority:    t.Priority,
		Status:      status,
		DueDate:     t.DueDate,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
