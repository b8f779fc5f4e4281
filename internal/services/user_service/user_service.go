package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"task_manager/internal/domain/models"
	"task_manager/internal/lib/logger/sl"
	"task_manager/internal/storage"

	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

type UserProvider interface {
	GetUserById(ctx context.Context, userID uuid.UUID) (models.User, error)
}

type UserService struct {
	log  *slog.Logger
	repo UserProvider
}

func NewUserService(log *slog.Logger, repo UserProvider) *UserService {
	return &UserService{log: log, repo: repo}
}

func (s *UserService) GetUserById(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "user_service.GetUserById"

	user, err := s.repo.GetUserById(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		s.log.Error("failed to get user",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
			sl.Err(err),
		)

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}
