package app

import (
	"context"
	"log/slog"

	httpapp "task_manager/internal/app/http"
	"task_manager/internal/config"
	"task_manager/internal/lib/jwt"
	"task_manager/internal/lib/logger/sl"
	"task_manager/internal/lib/password"
	"task_manager/internal/repository"
	"task_manager/internal/services/auth"
	"task_manager/internal/services/sweeper"
	taskservice "task_manager/internal/services/task_service"
	userservice "task_manager/internal/services/user_service"
	"task_manager/internal/storage/postgresql"
	redisapp "task_manager/internal/storage/redis"
	httprouters "task_manager/internal/transport/http"
)

type App struct {
	log        *slog.Logger
	HTTPServer *httpapp.Server
	Sweeper    *sweeper.Sweeper

	storage     *postgresql.Storage
	redis       *redisapp.Client
	stopSweeper context.CancelFunc
	sweeperDone chan struct{}
}

// New wires every component. It panics when a backing store is unreachable.
func New(log *slog.Logger, cfg *config.Config) *App {
	ctx := context.Background()

	if cfg.Migrations {
		if err := postgresql.Migrate(ctx, cfg.DSN); err != nil {
			panic(err)
		}
	}

	storage, err := postgresql.New(ctx, cfg.DSN)
	if err != nil {
		panic(err)
	}

	repo := repository.NewRepository(storage.Pool())

	var redisClient *redisapp.Client

	switch cfg.TokenStore {
	case config.TokenStoreRedis:
		redisClient = redisapp.NewClient(cfg.Redis.RedisAddr, cfg.Redis.RedisPassword, cfg.Redis.RedisDB)
		if err := redisClient.HealthCheck(ctx); err != nil {
			panic(err)
		}
		repo.WithTokenStore(repository.NewRedisTokenRepo(redisClient))
	case config.TokenStoreMemory:
		log.Warn("refresh tokens are kept in memory and lost on restart")
		repo.WithTokenStore(repository.NewMemoryTokenRepo())
	}

	hasher, err := password.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		panic(err)
	}

	codec := jwt.NewCodec(cfg.Auth.Secret, cfg.Auth.Issuer)

	sessions := auth.New(
		log,
		repo.User,
		repo.User,
		repo.Token,
		codec,
		hasher,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	routers := httprouters.NewRouter(
		log,
		sessions,
		userservice.NewUserService(log, repo.User),
		taskservice.NewTaskService(log, repo.Task),
	)

	server := httpapp.New(log, httpapp.Options{
		Host:         cfg.HTTP.Host,
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, routers, codec, sessions)

	log.Info("application wired", slog.String("token_store", cfg.TokenStore))

	return &App{
		log:        log,
		HTTPServer: server,
		Sweeper:    sweeper.New(log, sessions, cfg.SweepInterval),
		storage:    storage,
		redis:      redisClient,
	}
}

func (a *App) StartSweeper() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopSweeper = cancel
	a.sweeperDone = make(chan struct{})

	go func() {
		defer close(a.sweeperDone)
		a.Sweeper.Run(ctx)
	}()
}

// Stop shuts components down in reverse dependency order.
func (a *App) Stop() {
	const op = "app.Stop"

	log := a.log.With(slog.String("op", op))

	if a.stopSweeper != nil {
		a.stopSweeper()
		<-a.sweeperDone
	}

	if err := a.HTTPServer.Stop(); err != nil {
		log.Error("failed to stop http server", sl.Err(err))
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Error("failed to close redis", sl.Err(err))
		}
	}

	a.storage.Stop()
}
