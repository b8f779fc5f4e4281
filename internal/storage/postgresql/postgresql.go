package postgresql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Storage struct {
	db *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.postgresql.New"

	db, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Pool() *pgxpool.Pool {
	return s.db
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Storage) Stop() {
	s.db.Close()
}

// Migrate applies the embedded schema migrations. goose works on
// database/sql, so it gets its own short-lived connection.
func Migrate(ctx context.Context, dsn string) error {
	const op = "storage.postgresql.Migrate"

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
