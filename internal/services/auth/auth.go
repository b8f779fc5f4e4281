package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"task_manager/internal/domain/models"
	"task_manager/internal/lib/jwt"
	"task_manager/internal/lib/logger/sl"
	"task_manager/internal/lib/password"
	"task_manager/internal/metrics"
	"task_manager/internal/repository"
	"task_manager/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserExist          = errors.New("user already exist")
	ErrValidation         = errors.New("validation failed")
)

const (
	eventRegister  = "register"
	eventLogin     = "login"
	eventRefresh   = "refresh"
	eventLogout    = "logout"
	eventLogoutAll = "logout_all"
)

type UserSaver interface {
	SaveUser(ctx context.Context, user models.User) (uuid.UUID, error)
}

type UserProvider interface {
	User(ctx context.Context, email string) (models.User, error)
	UserExists(ctx context.Context, email, username string) (bool, error)
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=72"`
}

// Auth is the session manager. It is the only place that mints or revokes
// tokens; the token store just records which refresh ids are redeemable.
type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	tokens      repository.TokenRepository
	codec       *jwt.Codec
	hasher      *password.Hasher
	validate    *validator.Validate
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokens repository.TokenRepository,
	codec *jwt.Codec,
	hasher *password.Hasher,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		tokens:      tokens,
		codec:       codec,
		hasher:      hasher,
		validate:    validator.New(),
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		now:         time.Now,
	}
}

// Register creates a user. Nothing is written when the email or username is taken.
func (a *Auth) Register(ctx context.Context, input RegisterInput) (id uuid.UUID, err error) {
	const op = "auth.Register"

	defer func() { observe(eventRegister, err) }()

	log := a.log.With(
		slog.String("op", op),
		slog.String("email", input.Email),
	)

	log.Info("registering user")

	if err := a.validate.Struct(input); err != nil {
		log.Warn("invalid register input", sl.Err(err))

		return uuid.Nil, fmt.Errorf("%s: %w: %v", op, ErrValidation, err)
	}

	exists, err := a.usrProvider.UserExists(ctx, input.Email, input.Username)
	if err != nil {
		log.Error("failed to check user existence", sl.Err(err))

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		log.Warn("user already exist")

		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrUserExist)
	}

	hash, err := a.hasher.Hash(input.Password)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	id, err = a.usrSaver.SaveUser(ctx, models.User{
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: hash,
	})
	if err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exist", sl.Err(err))

			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrUserExist)
		}

		log.Error("failed to save user", sl.Err(err))

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("user_id", id.String()))

	return id, nil
}

// Login checks credentials, revokes every earlier refresh token of the user
// and issues a new pair. Unknown email and wrong password fail identically.
func (a *Auth) Login(ctx context.Context, email, pass string) (pair models.TokenPair, err error) {
	const op = "auth.Login"

	defer func() { observe(eventLogin, err) }()

	log := a.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)

	log.Info("attempting to login user")

	user, err := a.usrProvider.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// keep the response time close to a real mismatch
			a.hasher.Verify(pass, a.dummy())
			log.Warn("user not found")

			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if !a.hasher.Verify(pass, user.PasswordHash) {
		log.Warn("invalid credentials")

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err = a.issue(user.ID, func(record models.RefreshToken) error {
		return a.tokens.ReplaceUserTokens(ctx, record)
	})
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in successfully")

	return pair, nil
}

// Refresh redeems a decoded refresh token. The presented id is consumed and
// replaced in one store operation, so a second call with the same token fails.
func (a *Auth) Refresh(ctx context.Context, claims *jwt.RefreshClaims) (pair models.TokenPair, err error) {
	const op = "auth.Refresh"

	defer func() { observe(eventRefresh, err) }()

	log := a.log.With(
		slog.String("op", op),
		slog.String("user_id", claims.Subject),
	)

	pair, err = a.issue(claims.UserID(), func(record models.RefreshToken) error {
		rotated, err := a.tokens.RotateRefreshToken(ctx, claims.TokenID(), record)
		if err != nil {
			return err
		}
		if !rotated {
			return ErrInvalidToken
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			log.Warn("refresh token already redeemed or revoked")
		} else {
			log.Error("failed to rotate refresh token", sl.Err(err))
		}

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("tokens refreshed")

	return pair, nil
}

// Logout revokes the presented refresh token.
func (a *Auth) Logout(ctx context.Context, claims *jwt.RefreshClaims) (err error) {
	const op = "auth.Logout"

	defer func() { observe(eventLogout, err) }()

	deleted, err := a.tokens.DeleteRefreshToken(ctx, claims.TokenID())
	if err != nil {
		a.log.Error("failed to revoke refresh token", slog.String("op", op), sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}
	if !deleted {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return nil
}

// LogoutAll revokes every refresh token of the user.
func (a *Auth) LogoutAll(ctx context.Context, userID uuid.UUID) (err error) {
	const op = "auth.LogoutAll"

	defer func() { observe(eventLogoutAll, err) }()

	if err := a.tokens.DeleteAllUserTokens(ctx, userID); err != nil {
		a.log.Error("failed to revoke user tokens",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
			sl.Err(err),
		)

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *Auth) IsRefreshActive(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	const op = "auth.IsRefreshActive"

	ok, err := a.tokens.RefreshTokenExists(ctx, tokenID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

// SweepExpired drops refresh records whose expiry has passed.
func (a *Auth) SweepExpired(ctx context.Context) (int64, error) {
	const op = "auth.SweepExpired"

	n, err := a.tokens.DeleteExpiredTokens(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// issue signs a new pair and hands the refresh record to persist. Nothing is
// returned unless persist succeeds.
func (a *Auth) issue(userID uuid.UUID, persist func(models.RefreshToken) error) (models.TokenPair, error) {
	// exp travels as whole seconds, keep the stored expiry identical
	now := a.now().Truncate(time.Second)

	record := models.RefreshToken{
		ID:       uuid.New(),
		UserID:   userID,
		ExpireAt: now.Add(a.refreshTTL),
	}

	access, err := a.codec.Encode(a.codec.NewAccessClaims(userID, now, now.Add(a.accessTTL)))
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := a.codec.Encode(a.codec.NewRefreshClaims(record.ID, userID, now, record.ExpireAt))
	if err != nil {
		return models.TokenPair{}, err
	}

	if err := persist(record); err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (a *Auth) dummy() string {
	a.dummyOnce.Do(func() {
		a.dummyHash, _ = a.hasher.Hash(uuid.NewString())
	})

	return a.dummyHash
}

func observe(event string, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailure
	}

	metrics.AuthEvents.WithLabelValues(event, result).Inc()
}
