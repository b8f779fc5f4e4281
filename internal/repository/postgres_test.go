package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"task_manager/internal/domain/models"
	"task_manager/internal/repository"
	"task_manager/internal/storage"
	"task_manager/internal/storage/postgresql"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") != "1" {
		t.Skip("set TEST_INTEGRATION=1 to run postgres tests")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	require.NoError(t, postgresql.Migrate(ctx, dsn))

	pool, err := pgxpool.Connect(ctx, dsn)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	})

	return pool
}

func fakeUser() models.User {
	return models.User{
		Email:        gofakeit.Email(),
		Username:     gofakeit.Username() + gofakeit.DigitN(4),
		PasswordHash: gofakeit.LetterN(60),
	}
}

func mustSaveUser(t *testing.T, repo *repository.UserRepo) uuid.UUID {
	t.Helper()

	id, err := repo.SaveUser(testCtx, fakeUser())
	require.NoError(t, err)

	return id
}

func TestUserRepository(t *testing.T) {
	pool := setupTestDB(t)
	repo := repository.NewUserRepository(pool)

	user := fakeUser()
	id, err := repo.SaveUser(testCtx, user)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	t.Run("by email", func(t *testing.T) {
		got, err := repo.User(testCtx, user.Email)
		require.NoError(t, err)

		assert.Equal(t, id, got.ID)
		assert.Equal(t, user.Username, got.Username)
		assert.Equal(t, user.PasswordHash, got.PasswordHash)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("by id", func(t *testing.T) {
		got, err := repo.GetUserById(testCtx, id)
		require.NoError(t, err)
		assert.Equal(t, user.Email, got.Email)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.User(testCtx, "nobody@example.com")
		assert.ErrorIs(t, err, storage.ErrUserNotFound)

		_, err = repo.GetUserById(testCtx, uuid.New())
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
	})

	t.Run("exists by email or username", func(t *testing.T) {
		ok, err := repo.UserExists(testCtx, user.Email, "someone-else")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.UserExists(testCtx, "else@example.com", user.Username)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.UserExists(testCtx, "else@example.com", "someone-else")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("duplicate email", func(t *testing.T) {
		dup := fakeUser()
		dup.Email = user.Email

		_, err := repo.SaveUser(testCtx, dup)
		assert.ErrorIs(t, err, storage.ErrUserExists)
	})
}

func TestTokenRepository(t *testing.T) {
	pool := setupTestDB(t)
	users := repository.NewUserRepository(pool)

	runTokenStoreSuite(t, func(t *testing.T) (repository.TokenRepository, func() uuid.UUID) {
		_, err := pool.Exec(testCtx, "TRUNCATE refresh_tokens")
		require.NoError(t, err)

		return repository.NewTokenRepository(pool), func() uuid.UUID { return mustSaveUser(t, users) }
	})
}

func TestTokenRepository_ConcurrentRotation(t *testing.T) {
	pool := setupTestDB(t)
	repo := repository.NewTokenRepository(pool)
	userID := mustSaveUser(t, repository.NewUserRepository(pool))

	old := newToken(userID, time.Hour)
	require.NoError(t, repo.SaveRefreshToken(testCtx, old))

	const workers = 8
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		go func() {
			rotated, err := repo.RotateRefreshToken(testCtx, old.ID, newToken(userID, time.Hour))
			assert.NoError(t, err)
			results <- rotated
		}()
	}

	wins := 0
	for i := 0; i < workers; i++ {
		if <-results {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestTaskRepository(t *testing.T) {
	pool := setupTestDB(t)
	users := repository.NewUserRepository(pool)
	repo := repository.NewTaskRepository(pool)

	owner := mustSaveUser(t, users)
	stranger := mustSaveUser(t, users)

	due := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	id, err := repo.SaveTask(testCtx, models.Task{
		UserID:      owner,
		Name:        "write report",
		Description: "quarterly numbers",
		Priority:    models.PriorityHigh,
		DueDate:     &due,
	})
	require.NoError(t, err)

	t.Run("owner reads task", func(t *testing.T) {
		task, err := repo.GetTask(testCtx, owner, id)
		require.NoError(t, err)

		assert.Equal(t, "write report", task.Name)
		assert.Equal(t, models.PriorityHigh, task.Priority)
		require.NotNil(t, task.DueDate)
		assert.True(t, due.Equal(*task.DueDate))
		assert.False(t, task.Completed())
	})

	t.Run("stranger cannot see or touch it", func(t *testing.T) {
		_, err := repo.GetTask(testCtx, stranger, id)
		assert.ErrorIs(t, err, storage.ErrTaskNotFound)

		err = repo.UpdateTaskFields(testCtx, stranger, id, map[string]interface{}{"name": "x"})
		assert.ErrorIs(t, err, storage.ErrTaskNotFound)

		err = repo.DeleteTask(testCtx, stranger, id)
		assert.ErrorIs(t, err, storage.ErrTaskNotFound)
	})

	t.Run("update fields", func(t *testing.T) {
		now := time.Now().UTC()
		err := repo.UpdateTaskFields(testCtx, owner, id, map[string]interface{}{
			"name":         "write final report",
			"completed_at": now,
		})
		require.NoError(t, err)

		task, err := repo.GetTask(testCtx, owner, id)
		require.NoError(t, err)
		assert.Equal(t, "write final report", task.Name)
		assert.True(t, task.Completed())
	})

	t.Run("reject unknown field", func(t *testing.T) {
		err := repo.UpdateTaskFields(testCtx, owner, id, map[string]interface{}{"user_id": stranger})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not updatable")
	})

	t.Run("list with filter and pagination", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := repo.SaveTask(testCtx, models.Task{
				UserID:   owner,
				Name:     fmt.Sprintf("pending %d", i),
				Priority: models.PriorityLow,
			})
			require.NoError(t, err)
		}

		tasks, total, err := repo.GetTasks(testCtx, owner, repository.TaskFilter{Status: "all", Page: 1, PerPage: 10})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Len(t, tasks, 4)

		tasks, total, err = repo.GetTasks(testCtx, owner, repository.TaskFilter{Status: models.TaskStatusPending, Page: 1, PerPage: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, tasks, 2)

		tasks, total, err = repo.GetTasks(testCtx, owner, repository.TaskFilter{Status: models.TaskStatusCompleted})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, tasks, 1)
		assert.Equal(t, id, tasks[0].ID)

		tasks, total, err = repo.GetTasks(testCtx, stranger, repository.TaskFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, tasks)

		_, _, err = repo.GetTasks(testCtx, owner, repository.TaskFilter{Status: "archived"})
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteTask(testCtx, owner, id))

		_, err := repo.GetTask(testCtx, owner, id)
		assert.ErrorIs(t, err, storage.ErrTaskNotFound)
	})
}
