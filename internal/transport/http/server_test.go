package http_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"task_manager/internal/domain/models"
	"task_manager/internal/lib/jwt"
	"task_manager/internal/lib/logger/handlers/slogdiscard"
	"task_manager/internal/services/auth"
	taskservice "task_manager/internal/services/task_service"
	userservice "task_manager/internal/services/user_service"
	httprouters "task_manager/internal/transport/http"
	"task_manager/internal/transport/http/dto"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Register(ctx context.Context, input auth.RegisterInput) (uuid.UUID, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockSessionService) Login(ctx context.Context, email, password string) (models.TokenPair, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(models.TokenPair), args.Error(1)
}

func (m *MockSessionService) Refresh(ctx context.Context, claims *jwt.RefreshClaims) (models.TokenPair, error) {
	args := m.Called(ctx, claims)
	return args.Get(0).(models.TokenPair), args.Error(1)
}

func (m *MockSessionService) Logout(ctx context.Context, claims *jwt.RefreshClaims) error {
	return m.Called(ctx, claims).Error(0)
}

func (m *MockSessionService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) GetUserById(ctx context.Context, userID uuid.UUID) (models.User, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.User), args.Error(1)
}

type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) CreateTask(ctx context.Context, userID uuid.UUID, req dto.CreateTaskRequest) (*dto.TaskResponse, error) {
	args := m.Called(ctx, userID, req)
	resp, _ := args.Get(0).(*dto.TaskResponse)
	return resp, args.Error(1)
}

func (m *MockTaskService) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*dto.TaskResponse, error) {
	args := m.Called(ctx, userID, taskID)
	resp, _ := args.Get(0).(*dto.TaskResponse)
	return resp, args.Error(1)
}

func (m *MockTaskService) ListTasks(ctx context.Context, userID uuid.UUID, status string, page, perPage int) (*dto.TaskListResponse, error) {
	args := m.Called(ctx, userID, status, page, perPage)
	resp, _ := args.Get(0).(*dto.TaskListResponse)
	return resp, args.Error(1)
}

func (m *MockTaskService) UpdateTask(ctx context.Context, userID, taskID uuid.UUID, req dto.UpdateTaskRequest) (*dto.TaskResponse, error) {
	args := m.Called(ctx, userID, taskID, req)
	resp, _ := args.Get(0).(*dto.TaskResponse)
	return resp, args.Error(1)
}

func (m *MockTaskService) CompleteTask(ctx context.Context, userID, taskID uuid.UUID) (*dto.TaskResponse, error) {
	args := m.Called(ctx, userID, taskID)
	resp, _ := args.Get(0).(*dto.TaskResponse)
	return resp, args.Error(1)
}

func (m *MockTaskService) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error {
	return m.Called(ctx, userID, taskID).Error(0)
}

type validatorStub struct {
	v *validator.Validate
}

func (s validatorStub) Validate(i interface{}) error { return s.v.Struct(i) }

type fixture struct {
	e        *echo.Echo
	sessions *MockSessionService
	users    *MockUserService
	tasks    *MockTaskService
	routers  *httprouters.Routers
}

func newFixture() *fixture {
	f := &fixture{
		e:        echo.New(),
		sessions: new(MockSessionService),
		users:    new(MockUserService),
		tasks:    new(MockTaskService),
	}
	f.e.Validator = validatorStub{v: validator.New()}
	f.routers = httprouters.NewRouter(slogdiscard.NewDiscardLogger(), f.sessions, f.users, f.tasks)

	return f
}

func (f *fixture) context(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	return f.e.NewContext(req, rec), rec
}

// withUser places access claims the way the access gate does.
func withUser(c echo.Context, userID uuid.UUID) {
	codec := jwt.NewCodec("secret", "task.app")
	c.Set("access_claims", codec.NewAccessClaims(userID, time.Now(), time.Now().Add(time.Minute)))
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "created",
			body:       `{"email":"a@x.io","username":"alice","password":"pw123"}`,
			wantStatus: http.StatusCreated,
			wantBody:   `"user_id"`,
		},
		{
			name:       "conflict",
			body:       `{"email":"a@x.io","username":"alice","password":"pw123"}`,
			serviceErr: fmt.Errorf("auth.Register: %w", auth.ErrUserExist),
			wantStatus: http.StatusConflict,
			wantBody:   "user_already_exists",
		},
		{
			name:       "storage failure hides detail",
			body:       `{"email":"a@x.io","username":"alice","password":"pw123"}`,
			serviceErr: errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal_error",
		},
		{
			name:       "malformed json",
			body:       `{"email":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid_request",
		},
		{
			name:       "missing password",
			body:       `{"email":"a@x.io","username":"alice"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.sessions.On("Register", mock.Anything, mock.AnythingOfType("auth.RegisterInput")).
				Return(uuid.New(), tt.serviceErr).Maybe()

			c, rec := f.context(http.MethodPost, "/api/v1/register", tt.body)
			require.NoError(t, f.routers.Register(c))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestLogin(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newFixture()
		f.sessions.On("Login", mock.Anything, "a@x.io", "pw123").
			Return(models.TokenPair{AccessToken: "acc", RefreshToken: "ref"}, nil)

		c, rec := f.context(http.MethodPost, "/api/v1/login", `{"email":"a@x.io","password":"pw123"}`)
		require.NoError(t, f.routers.Login(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"success","data":{"access_token":"acc","refresh_token":"ref"}}`, rec.Body.String())
	})

	t.Run("invalid credentials", func(t *testing.T) {
		f := newFixture()
		f.sessions.On("Login", mock.Anything, "a@x.io", "bad").
			Return(models.TokenPair{}, fmt.Errorf("auth.Login: %w", auth.ErrInvalidCredentials))

		c, rec := f.context(http.MethodPost, "/api/v1/login", `{"email":"a@x.io","password":"bad"}`)
		require.NoError(t, f.routers.Login(c))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "authentication_failed")
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture()
		f.sessions.On("Login", mock.Anything, "a@x.io", "pw123").
			Return(models.TokenPair{}, errors.New("redis down"))

		c, rec := f.context(http.MethodPost, "/api/v1/login", `{"email":"a@x.io","password":"pw123"}`)
		require.NoError(t, f.routers.Login(c))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "redis")
	})
}

func TestRefresh(t *testing.T) {
	codec := jwt.NewCodec("secret", "task.app")
	claims := codec.NewRefreshClaims(uuid.New(), uuid.New(), time.Now(), time.Now().Add(time.Minute))

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "rotated", wantStatus: http.StatusOK},
		{name: "already redeemed", err: fmt.Errorf("auth.Refresh: %w", auth.ErrInvalidToken), wantStatus: http.StatusUnauthorized},
		{name: "store failure", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.sessions.On("Refresh", mock.Anything, claims).Return(models.TokenPair{AccessToken: "a", RefreshToken: "r"}, tt.err)

			c, rec := f.context(http.MethodGet, "/api/v1/refresh", "")
			c.Set("refresh_claims", claims)
			require.NoError(t, f.routers.Refresh(c))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	t.Run("no claims", func(t *testing.T) {
		f := newFixture()

		c, rec := f.context(http.MethodGet, "/api/v1/refresh", "")
		require.NoError(t, f.routers.Refresh(c))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		f.sessions.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	})
}

func TestMe(t *testing.T) {
	userID := uuid.New()

	t.Run("found", func(t *testing.T) {
		f := newFixture()
		f.users.On("GetUserById", mock.Anything, userID).
			Return(models.User{ID: userID, Email: "a@x.io", Username: "alice", PasswordHash: "hash"}, nil)

		c, rec := f.context(http.MethodGet, "/api/v1/users/me", "")
		withUser(c, userID)
		require.NoError(t, f.routers.Me(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "alice")
		assert.NotContains(t, rec.Body.String(), "hash")
	})

	t.Run("deleted user", func(t *testing.T) {
		f := newFixture()
		f.users.On("GetUserById", mock.Anything, userID).
			Return(models.User{}, fmt.Errorf("user_service.GetUserById: %w", userservice.ErrUserNotFound))

		c, rec := f.context(http.MethodGet, "/api/v1/users/me", "")
		withUser(c, userID)
		require.NoError(t, f.routers.Me(c))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTaskErrors(t *testing.T) {
	userID, taskID := uuid.New(), uuid.New()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not found", err: taskservice.ErrTaskNotFound, wantStatus: http.StatusNotFound},
		{name: "already completed", err: taskservice.ErrAlreadyCompleted, wantStatus: http.StatusConflict},
		{name: "unexpected", err: errors.New("pg: timeout"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.tasks.On("CompleteTask", mock.Anything, userID, taskID).Return(nil, fmt.Errorf("op: %w", tt.err))

			c, rec := f.context(http.MethodPost, "/api/v1/tasks/"+taskID.String()+"/complete", "")
			c.SetParamNames("id")
			c.SetParamValues(taskID.String())
			withUser(c, userID)
			require.NoError(t, f.routers.CompleteTask(c))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotContains(t, rec.Body.String(), "pg:")
		})
	}
}

func TestListTasksPassesQuery(t *testing.T) {
	userID := uuid.New()

	f := newFixture()
	f.tasks.On("ListTasks", mock.Anything, userID, "pending", 2, 5).
		Return(&dto.TaskListResponse{Tasks: []dto.TaskResponse{}, Page: 2, PerPage: 5}, nil)

	c, rec := f.context(http.MethodGet, "/api/v1/tasks?status=pending&page=2&per_page=5", "")
	withUser(c, userID)
	require.NoError(t, f.routers.ListTasks(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	f.tasks.AssertExpectations(t)
}
