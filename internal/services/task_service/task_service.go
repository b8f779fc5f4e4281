package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"task_manager/internal/domain/models"
	"task_manager/internal/lib/logger/sl"
	"task_manager/internal/repository"
	"task_manager/internal/storage"
	"task_manager/internal/transport/http/dto"

	"github.com/google/uuid"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrInvalidStatus    = errors.New("invalid status filter")
	ErrNothingToUpdate  = errors.New("nothing to update")
	ErrAlreadyCompleted = errors.New("task already completed")
)

const (
	statusAll      = "all"
	defaultPage    = 1
	defaultPerPage = 10
	maxPerPage     = 100
)

// TaskService manages tasks on behalf of their owner. A task of another
// user is reported as not found.
type TaskService struct {
	log  *slog.Logger
	repo repository.TaskRepository
	now  func() time.Time
}

func NewTaskService(log *slog.Logger, repo repository.TaskRepository) *TaskService {
	return &TaskService{log: log, repo: repo, now: time.Now}
}

func (s *TaskService) CreateTask(ctx context.Context, userID uuid.UUID, req dto.CreateTaskRequest) (*dto.TaskResponse, error) {
	const op = "task_service.CreateTask"

	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
	)

	task := models.Task{
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}

	id, err := s.repo.SaveTask(ctx, task)
	if err != nil {
		log.Error("failed to create task", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("task created", slog.String("task_id", id.String()))

	return s.GetTask(ctx, userID, id)
}

func (s *TaskService) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*dto.TaskResponse, error) {
	const op = "task_service.GetTask"

	task, err := s.repo.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, s.wrap(op, err)
	}

	resp := dto.NewTaskResponse(task)

	return &resp, nil
}

func (s *TaskService) ListTasks(ctx context.Context, userID uuid.UUID, status string, page, perPage int) (*dto.TaskListResponse, error) {
	const op = "task_service.ListTasks"

	switch status {
	case "", statusAll, models.TaskStatusPending, models.TaskStatusCompleted:
	default:
		return nil, fmt.Errorf("%s: %w: %q", op, ErrInvalidStatus, status)
	}

	if page < 1 {
		page = defaultPage
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	tasks, total, err := s.repo.GetTasks(ctx, userID, repository.TaskFilter{
		Status:  status,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		s.log.Error("failed to list tasks", slog.String("op", op), sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp := &dto.TaskListResponse{
		Tasks:      make([]dto.TaskResponse, 0, len(tasks)),
		TotalCount: total,
		Page:       page,
		PerPage:    perPage,
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, dto.NewTaskResponse(t))
	}

	return resp, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID uuid.UUID, req dto.UpdateTaskRequest) (*dto.TaskResponse, error) {
	const op = "task_service.UpdateTask"

	if req.Empty() {
		return nil, fmt.Errorf("%s: %w", op, ErrNothingToUpdate)
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.DueDate != nil {
		updates["due_date"] = req.DueDate.UTC()
	}

	if err := s.repo.UpdateTaskFields(ctx, userID, taskID, updates); err != nil {
		return nil, s.wrap(op, err)
	}

	return s.GetTask(ctx, userID, taskID)
}

func (s *TaskService) CompleteTask(ctx context.Context, userID, taskID uuid.UUID) (*dto.TaskResponse, error) {
	const op = "task_service.CompleteTask"

	task, err := s.repo.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, s.wrap(op, err)
	}
	if task.Completed() {
		return nil, fmt.Errorf("%s: %w", op, ErrAlreadyCompleted)
	}

	err = s.repo.UpdateTaskFields(ctx, userID, taskID, map[string]interface{}{
		"completed_at": s.now().UTC(),
	})
	if err != nil {
		return nil, s.wrap(op, err)
	}

	s.log.Info("task completed", slog.String("op", op), slog.String("task_id", taskID.String()))

	return s.GetTask(ctx, userID, taskID)
}

func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error {
	const op = "task_service.DeleteTask"

	if err := s.repo.DeleteTask(ctx, userID, taskID); err != nil {
		return s.wrap(op, err)
	}

	return nil
}

// wrap maps the storage sentinel and logs anything unexpected.
func (s *TaskService) wrap(op string, err error) error {
	if errors.Is(err, storage.ErrTaskNotFound) {
		return fmt.Errorf("%s: %w", op, ErrTaskNotFound)
	}

	s.log.Error("task storage failure", slog.String("op", op), sl.Err(err))

	return fmt.Errorf("%s: %w", op, err)
}
