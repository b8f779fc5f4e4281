package repository

import (
	"github.com/jackc/pgx/v4/pgxpool"
)

type Repository struct {
	db    *pgxpool.Pool
	User  UserRepository
	Token TokenRepository
	Task  TaskRepository
}

// NewRepository builds the Postgres repositories. The token store can be
// swapped afterwards with WithTokenStore.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db:    db,
		User:  NewUserRepository(db),
		Token: NewTokenRepository(db),
		Task:  NewTaskRepository(db),
	}
}

func (r *Repository) WithTokenStore(tokens TokenRepository) *Repository {
	r.Token = tokens
	return r
}

func (r *Repository) Close() {
	r.db.Close()
}
