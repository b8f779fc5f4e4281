package repository

import (
	"context"
	"fmt"
	"time"

	"task_manager/internal/domain/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const refreshTokensTable = "refresh_tokens"

// TokenRepo is the Postgres refresh token store.
type TokenRepo struct {
	db  DBTX
	txb TxBeginner
	sb  sq.StatementBuilderType
}

func NewTokenRepository(db *pgxpool.Pool) *TokenRepo {
	return &TokenRepo{
		db:  db,
		txb: db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *TokenRepo) SaveRefreshToken(ctx context.Context, token models.RefreshToken) error {
	const op = "repository.token_repository.SaveRefreshToken"

	query, args, err := r.sb.Insert(refreshTokensTable).
		Columns("id", "user_id", "expire_at").
		Values(token.ID, token.UserID, token.ExpireAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *TokenRepo) RefreshTokenExists(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "repository.token_repository.RefreshTokenExists"

	query, args, err := r.sb.Select("1").
		Prefix("SELECT EXISTS (").
		From(refreshTokensTable).
		Where(sq.Eq{"id": id}).
		Where(sq.Gt{"expire_at": time.Now().UTC()}).
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

func (r *TokenRepo) DeleteRefreshToken(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "repository.token_repository.DeleteRefreshToken"

	query, args, err := r.sb.Delete(refreshTokensTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *TokenRepo) DeleteAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	const op = "repository.token_repository.DeleteAllUserTokens"

	query, args, err := r.sb.Delete(refreshTokensTable).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *TokenRepo) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	const op = "repository.token_repository.DeleteExpiredTokens"

	query, args, err := r.sb.Delete(refreshTokensTable).
		Where(sq.LtOrEq{"expire_at": time.Now().UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *TokenRepo) ReplaceUserTokens(ctx context.Context, token models.RefreshToken) error {
	const op = "repository.token_repository.ReplaceUserTokens"

	err := r.withUserLock(ctx, token.UserID, func(tr *TokenRepo) error {
		if err := tr.DeleteAllUserTokens(ctx, token.UserID); err != nil {
			return err
		}

		return tr.SaveRefreshToken(ctx, token)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *TokenRepo) RotateRefreshToken(ctx context.Context, oldID uuid.UUID, token models.RefreshToken) (bool, error) {
	const op = "repository.token_repository.RotateRefreshToken"

	var rotated bool

	err := r.withUserLock(ctx, token.UserID, func(tr *TokenRepo) error {
		deleted, err := tr.DeleteRefreshToken(ctx, oldID)
		if err != nil {
			return err
		}
		if !deleted {
			return nil
		}

		if err := tr.SaveRefreshToken(ctx, token); err != nil {
			return err
		}

		rotated = true

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return rotated, nil
}

// withUserLock runs fn in a transaction holding a per-user advisory lock, so
// a login purge and a concurrent rotation of the same user are serialized.
func (r *TokenRepo) withUserLock(ctx context.Context, userID uuid.UUID, fn func(tr *TokenRepo) error) error {
	return WithTx(ctx, r.txb, pgx.TxOptions{}, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", userID.String()); err != nil {
			return fmt.Errorf("lock user tokens: %w", err)
		}

		return fn(&TokenRepo{db: tx, sb: r.sb})
	})
}
