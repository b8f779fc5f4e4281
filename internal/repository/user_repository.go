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
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

type UserRepo struct {
	db DBTX
	sb sq.StatementBuilderType
}

func NewUserRepository(db *pgxpool.Pool) *UserRepo {
	return &UserRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *UserRepo) SaveUser(ctx context.Context, user models.User) (uuid.UUID, error) {
	const op = "repository.user_repository.SaveUser"

	query, args, err := r.sb.Insert("users").
		Columns(
			"email",
			"username",
			"password_hash",
			"created_at",
		).
		Values(
			user.Email,
			user.Username,
			user.PasswordHash,
			time.Now().UTC(),
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	var id uuid.UUID
	err = r.db.QueryRow(ctx, query, args...).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return uuid.Nil, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// User returns user by email
func (r *UserRepo) User(ctx context.Context, email string) (models.User, error) {
	const op = "repository.user_repository.User"

	return r.userBy(ctx, op, sq.Eq{"email": email})
}

func (r *UserRepo) GetUserById(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "repository.user_repository.GetUserById"

	return r.userBy(ctx, op, sq.Eq{"id": userID})
}

func (r *UserRepo) UserExists(ctx context.Context, email, username string) (bool, error) {
	const op = "repository.user_repository.UserExists"

	query, args, err := r.sb.Select("1").
		Prefix("SELECT EXISTS (").
		From("users").
		Where(sq.Or{sq.Eq{"email": email}, sq.Eq{"username": username}}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

func (r *UserRepo) userBy(ctx context.Context, op string, where sq.Sqlizer) (models.User, error) {
	query, args, err := r.sb.Select("id", "email", "username", "password_hash", "created_at").
		From("users").
		Where(where).
		ToSql()
	if err != nil {
		return models.User{}, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	var user models.User
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}
