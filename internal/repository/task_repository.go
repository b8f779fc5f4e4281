package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task_manager/internal/domain/models"
	"task_manager/internal/storage"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	tasksTable     = "tasks"
	defaultPerPage = 10
	maxPerPage     = 100
)

var taskColumns = []string{
	"id", "user_id", "name", "description", "priority", "due_date", "completed_at", "created_at", "updated_at",
}

// updatable columns of a task
var allowedTaskFields = map[string]bool{
	"name":         true,
	"description":  true,
	"priority":     true,
	"due_date":     true,
	"completed_at": true,
}

// TaskRepo stores tasks. Every query is scoped to the owning user.
type TaskRepo struct {
	db DBTX
	sb sq.StatementBuilderType
}

func NewTaskRepository(db *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *TaskRepo) SaveTask(ctx context.Context, task models.Task) (uuid.UUID, error) {
	const op = "repository.task_repository.SaveTask"

	now := time.Now().UTC()

	query, args, err := r.sb.Insert(tasksTable).
		Columns("user_id", "name", "description", "priority", "due_date", "completed_at", "created_at", "updated_at").
		Values(task.UserID, task.Name, task.Description, task.Priority, task.DueDate, task.CompletedAt, now, now).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	var id uuid.UUID
	if err := r.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (r *TaskRepo) GetTask(ctx context.Context, userID, taskID uuid.UUID) (models.Task, error) {
	const op = "repository.task_repository.GetTask"

	query, args, err := r.sb.Select(taskColumns...).
		From(tasksTable).
		Where(sq.Eq{"id": taskID, "user_id": userID}).
		ToSql()
	if err != nil {
		return models.Task{}, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	task, err := scanTask(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Task{}, fmt.Errorf("%s: %w", op, storage.ErrTaskNotFound)
		}

		return models.Task{}, fmt.Errorf("%s: %w", op, err)
	}

	return task, nil
}

// GetTasks returns one page of the user's tasks, newest first, and the total
// number of tasks matching the filter.
func (r *TaskRepo) GetTasks(ctx context.Context, userID uuid.UUID, filter TaskFilter) ([]models.Task, int, error) {
	const op = "repository.task_repository.GetTasks"

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	where := sq.And{sq.Eq{"user_id": userID}}
	switch filter.Status {
	case models.TaskStatusPending:
		where = append(where, sq.Eq{"completed_at": nil})
	case models.TaskStatusCompleted:
		where = append(where, sq.NotEq{"completed_at": nil})
	case "", "all":
	default:
		return nil, 0, fmt.Errorf("%s: invalid status filter %q", op, filter.Status)
	}

	total, err := r.count(ctx, where)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	query, args, err := r.sb.Select(taskColumns...).
		From(tasksTable).
		Where(where).
		OrderBy("created_at DESC", "id").
		Limit(uint64(perPage)).
		Offset(uint64((page - 1) * perPage)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	tasks := make([]models.Task, 0, perPage)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	return tasks, total, nil
}

func (r *TaskRepo) UpdateTaskFields(ctx context.Context, userID, taskID uuid.UUID, updates map[string]interface{}) error {
	const op = "repository.task_repository.UpdateTaskFields"

	if len(updates) == 0 {
		return fmt.Errorf("%s: no fields to update", op)
	}

	builder := r.sb.Update(tasksTable).
		Where(sq.Eq{"id": taskID, "user_id": userID}).
		Set("updated_at", time.Now().UTC())

	for field, value := range updates {
		if !allowedTaskFields[field] {
			return fmt.Errorf("%s: field %q is not updatable", op, field)
		}
		builder = builder.Set(field, value)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTaskNotFound)
	}

	return nil
}

func (r *TaskRepo) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error {
	const op = "repository.task_repository.DeleteTask"

	query, args, err := r.sb.Delete(tasksTable).
		Where(sq.Eq{"id": taskID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTaskNotFound)
	}

	return nil
}

func (r *TaskRepo) count(ctx context.Context, where sq.Sqlizer) (int, error) {
	query, args, err := r.sb.Select("COUNT(*)").
		From(tasksTable).
		Where(where).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("error build query: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("error execute query: %w", err)
	}

	return total, nil
}

func scanTask(row pgx.Row) (models.Task, error) {
	var task models.Task
	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Name,
		&task.Description,
		&task.Priority,
		&task.DueDate,
		&task.CompletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)

	return task, err
}
