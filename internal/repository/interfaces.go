package repository

import (
	"context"

	"task_manager/internal/domain/models"

	"github.com/google/uuid"
)

type UserRepository interface {
	SaveUser(ctx context.Context, user models.User) (uuid.UUID, error)
	User(ctx context.Context, email string) (models.User, error)
	UserExists(ctx context.Context, email, username string) (bool, error)
	GetUserById(ctx context.Context, userID uuid.UUID) (models.User, error)
}

// TokenRepository keeps the ids of refresh tokens that are still redeemable.
type TokenRepository interface {
	// SaveRefreshToken stores a new record.
	SaveRefreshToken(ctx context.Context, token models.RefreshToken) error
	// RefreshTokenExists reports whether id is still stored.
	RefreshTokenExists(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteRefreshToken removes id and reports whether it was there.
	DeleteRefreshToken(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteAllUserTokens removes every record owned by userID.
	DeleteAllUserTokens(ctx context.Context, userID uuid.UUID) error
	// DeleteExpiredTokens removes every record with expire_at <= now.
	DeleteExpiredTokens(ctx context.Context) (int64, error)

	// ReplaceUserTokens purges all records of token.UserID and stores token in one unit.
	ReplaceUserTokens(ctx context.Context, token models.RefreshToken) error
	// RotateRefreshToken deletes oldID and stores token in one unit.
	// It returns false and stores nothing when oldID is absent.
	RotateRefreshToken(ctx context.Context, oldID uuid.UUID, token models.RefreshToken) (bool, error)
}

type TaskFilter struct {
	Status  string
	Page    int
	PerPage int
}

type TaskRepository interface {
	SaveTask(ctx context.Context, task models.Task) (uuid.UUID, error)
	GetTask(ctx context.Context, userID, taskID uuid.UUID) (models.Task, error)
	GetTasks(ctx context.Context, userID uuid.UUID, filter TaskFilter) ([]models.Task, int, error)
	UpdateTaskFields(ctx context.Context, userID, taskID uuid.UUID, updates map[string]interface{}) error
	DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error
}
