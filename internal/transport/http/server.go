package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"task_manager/internal/domain/models"
	"task_manager/internal/lib/jwt"
	"task_manager/internal/lib/logger/sl"
	"task_manager/internal/middleware"
	"task_manager/internal/services/auth"
	taskservice "task_manager/internal/services/task_service"
	userservice "task_manager/internal/services/user_service"
	"task_manager/internal/transport/http/dto"
	"task_manager/internal/transport/http/dto/request"
	"task_manager/internal/transport/http/dto/response"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	_ "task_manager/docs"
)

type SessionService interface {
	Register(ctx context.Context, input auth.RegisterInput) (uuid.UUID, error)
	Login(ctx context.Context, email, password string) (models.TokenPair, error)
	Refresh(ctx context.Context, claims *jwt.RefreshClaims) (models.TokenPair, error)
	Logout(ctx context.Context, claims *jwt.RefreshClaims) error
	LogoutAll(ctx context.Context, userID uuid.UUID) error
}

type UserService interface {
	GetUserById(ctx context.Context, userID uuid.UUID) (models.User, error)
}

type TaskService interface {
	CreateTask(ctx context.Context, userID uuid.UUID, req dto.CreateTaskRequest) (*dto.TaskResponse, error)
	GetTask(ctx context.Context, userID, taskID uuid.UUID) (*dto.TaskResponse, error)
	ListTasks(ctx context.Context, userID uuid.UUID, status string, page, perPage int) (*dto.TaskListResponse, error)
	UpdateTask(ctx context.Context, userID, taskID uuid.UUID, req dto.UpdateTaskRequest) (*dto.TaskResponse, error)
	CompleteTask(ctx context.Context, userID, taskID uuid.UUID) (*dto.TaskResponse, error)
	DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error
}

type Routers struct {
	log            *slog.Logger
	SessionService SessionService
	UserService    UserService
	TaskService    TaskService
}

func NewRouter(log *slog.Logger, sessionService SessionService, userService UserService, taskService TaskService) *Routers {
	return &Routers{
		log:            log,
		SessionService: sessionService,
		UserService:    userService,
		TaskService:    taskService,
	}
}

// Health godoc
// @Summary Liveness probe
// @Tags service
// @Produce json
// @Success 200 {object} response.Response
// @Router /health [get]
func (r *Routers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, response.Response{Status: "success", Message: "ok"})
}

// Register godoc
// @Summary Register a new user
// @Description Creates an account. Email and username must be unique.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.UserRegisterInput true "Registration data"
// @Success 201 {object} response.Response{data=object{user_id=string}} "User created"
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 409 {object} response.ErrorResponse "User already exists"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/register [post]
func (r *Routers) Register(c echo.Context) error {
	const op = "http.routers.Register"

	log := r.log.With(
		slog.String("op", op),
	)

	var req dto.UserRegisterInput

	if err := c.Bind(&req); err != nil {
		log.Warn("failed to bind request", sl.Err(err))
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat(""))
	}

	if err := c.Validate(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat(err.Error()))
	}

	userID, err := r.SessionService.Register(c.Request().Context(), auth.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExist):
			return c.JSON(http.StatusConflict, response.ErrUserAlreadyExists())
		case errors.Is(err, auth.ErrValidation):
			return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat(""))
		}

		log.Error("registration failed", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal())
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(map[string]uuid.UUID{
		"user_id": userID,
	}))
}

// Login godoc
// @Summary Log in
// @Description Exchanges email and password for an access and refresh token pair. Earlier refresh tokens of the user are revoked.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body request.LoginRequest true "Credentials"
// @Success 200 {object} response.Response{data=models.TokenPair} "Token pair"
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 401 {object} response.ErrorResponse "Authentication failed"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/login [post]
func (r *Routers) Login(c echo.Context) error {
	const op = "http.routers.Login"

	log := r.log.With(
		slog.String("op", op),
	)

	var req request.LoginRequest

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat(""))
	}

	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat(err.Error()))
	}

	pair, err := r.SessionService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed())
		}

		log.Error("login failed", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal())
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(pair))
}

// Refresh godoc
// @Summary Rotate tokens
// @Description Redeems the refresh token from the Authorization header for a new pair. A refresh token works once.
// @Tags auth
// @Produce json
// @Success 200 {object} response.Response{data=models.TokenPair} "New token pair"
// @Failure 401 {object} response.ErrorResponse "Invalid, expired or already used refresh token"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /api/v1/refresh [get]
func (r *Routers) Refresh(c echo.Context) error {
	const op = "http.routers.Refresh"

	claims, ok := middleware.RefreshClaimsFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed())
	}

	pair, err := r.SessionService.Refresh(c.Request().Context(), claims)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed())
		}

		r.log.Error("refresh failed", slog.String("op", op), sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal())
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(pair))
}

// Logout godoc
// @Summary Revoke the presented refresh token
// @Tags auth
// @Success 204 "Revoked"
// @Failure 401 {object} response.ErrorResponse "Invalid refresh token"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /api/v1/logout [post]
func (r *Routers) Logout(c echo.Context) error {
	const op = "http.routers.Logout"

	claims, ok := middleware.RefreshClaimsFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed())
	}

	if err := r.SessionService.Logout(c.Request().Context(), claims); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed())
		}

		r.log.Error("logout failed", slog.String("op", op), sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal())
	}

	return c.NoContent(http.StatusNoContent)
}

// LogoutAll godoc
// @Summary Revoke every refresh token of the caller
// @Tags auth
// @Success 204 "Revoked"
// @Failure 401 {object} response.ErrorResponse "Invalid access token"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /api/v1/logout/all [post]
func (r *Routers) LogoutAll(c echo.Context) error {
	const op = "http.routers.LogoutAll"

	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed())
	}

	if err := r.SessionService.LogoutAll(c.Request().Context(), userID); err != nil {
		r.log.Error("logout all failed", slog.String("op", op), sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal())
	}

	return c.NoContent(http.StatusNoContent)
}

// Me godoc
// @Summary Current user
// @Tags users
// @Produce json
// @Success 200 {object} response.Response{data=dto.UserResponse}
// @Failure 401 {object} response.ErrorResponse "Invalid access token"
// @Failure 404 {object} response.ErrorResponse "User not found"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /api/v1/users/me [get]
func (r *Routers) Me(c echo.Context) error {
	const op = "http.routers.Me"

	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed())
	}

	user, err := r.UserService.GetUserById(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, userservice.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, response.ErrNotFound("user not found"))
		}

		r.log.Error("failed to get user", slog.String("op", op), sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal())
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.NewUserResponse(user)))
}

// ListTasks godoc
// @Summary List own tasks
// @Tags tasks
// @Produce json
// @Param status query string false "Filter" Enums(all, pending, completed)
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Page size" default(10)
// @Success 200 {object} response.Response{data=dto.TaskListResponse}
// @Failure 400 {object} response.ErrorResponse "Invalid filter"
// @Failure 401 {object} response.ErrorResponse "Invalid access token"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /api/v1/tasks [get]
func (r *Routers) ListTasks(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed())
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))

	list, err := r.TaskService.ListTasks(c.Request().Context(), userID, c.QueryParam("status"), page, perPage)
	if err != nil {
		return r.taskError(c, "http.routers.ListTasks", err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(list))
}

// CreateTask godoc
// @Summary Create a task
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body dto.CreateTaskRequest true "Task"
// @Success 201 {object} response.Response{data=dto.TaskResponse}
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 401 {object} response.ErrorResponse "Invalid access token"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /api/v1/tasks [post]
func (r *Routers) CreateTask(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed())
	}

	var req dto.CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat(""))
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat(err.Error()))
	}

	task, err := r.TaskService.CreateTask(c.Request().Context(), userID, req)
	if err != nil {
		return r.taskError(c, "http.routers.CreateTask", err)
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(task))
}

// GetTask godoc
// @Summary Get a task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID" format(uuid)
// @Success 200 {object} response.Response{data=dto.TaskResponse}
// @Failure 400 {object} response.ErrorResponse "Invalid ID"
// @Failure 401 {object} response.ErrorResponse "Invalid access token"
// @Failure 404 {object} response.ErrorResponse "Task not found"
// @Security BearerAuth
// @Router /api/v1/tasks/{id} [get]
func (r *Routers) GetTask(c echo.Context) error {
	userID, taskID, ok, err := r.taskTarget(c)
	if !ok {
		return err
	}

	task, err := r.TaskService.GetTask(c.Request().Context(), userID, taskID)
	if err != nil {
		return r.taskError(c, "http.routers.GetTask", err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(task))
}

// UpdateTask godoc
// @Summary Update a task
// @Description Partial update, omitted fields keep their value.
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID" format(uuid)
// @Param request body dto.UpdateTaskRequest true "Fields to change"
// @Success 200 {object} response.Response{data=dto.TaskResponse}
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 401 {object} response.ErrorResponse "Invalid access token"
// @Failure 404 {object} response.ErrorResponse "Task not found"
// @Security BearerAuth
// @Router /api/v1/tasks/{id} [patch]
func (r *Routers) UpdateTask(c echo.Context) error {
	userID, taskID, ok, err := r.taskTarget(c)
	if !ok {
		return err
	}

	var req dto.UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat(""))
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat(err.Error()))
	}

	task, err := r.TaskService.UpdateTask(c.Request().Context(), userID, taskID, req)
	if err != nil {
		return r.taskError(c, "http.routers.UpdateTask", err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(task))
}

// CompleteTask godoc
// @Summary Mark a task completed
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID" format(uuid)
// @Success 200 {object} response.Response{data=dto.TaskResponse}
// @Failure 401 {object} response.ErrorResponse "Invalid access token"
// @Failure 404 {object} response.ErrorResponse "Task not found"
// @Failure 409 {object} response.ErrorResponse "Already completed"
// @Security BearerAuth
// @Router /api/v1/tasks/{id}/complete [post]
func (r *Routers) CompleteTask(c echo.Context) error {
	userID, taskID, ok, err := r.taskTarget(c)
	if !ok {
		return err
	}

	task, err := r.TaskService.CompleteTask(c.Request().Context(), userID, taskID)
	if err != nil {
		return r.taskError(c, "http.routers.CompleteTask", err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(task))
}

// DeleteTask godoc
// @Summary Delete a task
// @Tags tasks
// @Param id path string true "Task ID" format(uuid)
// @Success 204 "Deleted"
// @Failure 401 {object} response.ErrorResponse "Invalid access token"
// @Failure 404 {object} response.ErrorResponse "Task not found"
// @Security BearerAuth
// @Router /api/v1/tasks/{id} [delete]
func (r *Routers) DeleteTask(c echo.Context) error {
	userID, taskID, ok, err := r.taskTarget(c)
	if !ok {
		return err
	}

	if err := r.TaskService.DeleteTask(c.Request().Context(), userID, taskID); err != nil {
		return r.taskError(c, "http.routers.DeleteTask", err)
	}

	return c.NoContent(http.StatusNoContent)
}

// taskTarget resolves the caller and the :id param. When ok is false the
// error response has already been written.
func (r *Routers) taskTarget(c echo.Context) (userID, taskID uuid.UUID, ok bool, err error) {
	userID, found := middleware.UserIDFrom(c)
	if !found {
		return uuid.Nil, uuid.Nil, false, c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed())
	}

	taskID, parseErr := uuid.Parse(c.Param("id"))
	if parseErr != nil {
		return uuid.Nil, uuid.Nil, false, c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat("invalid task id"))
	}

	return userID, taskID, true, nil
}

func (r *Routers) taskError(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, taskservice.ErrTaskNotFound):
		return c.JSON(http.StatusNotFound, response.ErrNotFound("task not found"))
	case errors.Is(err, taskservice.ErrInvalidStatus), errors.Is(err, taskservice.ErrNothingToUpdate):
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat(err.Error()))
	case errors.Is(err, taskservice.ErrAlreadyCompleted):
		return c.JSON(http.StatusConflict, response.ErrorResponseWithDetails("already_completed", "task already completed"))
	}

	r.log.Error("task request failed", slog.String("op", op), sl.Err(err))

	return c.JSON(http.StatusInternalServerError, response.ErrInternal())
}
