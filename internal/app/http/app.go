package httpapp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	authmw "task_manager/internal/middleware"
	httprouters "task_manager/internal/transport/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
)

const shutdownTimeout = 10 * time.Second

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

type Options struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	log      *slog.Logger
	e        *echo.Echo
	routers  *httprouters.Routers
	codec    authmw.TokenDecoder
	sessions authmw.RefreshChecker
	addr     string
}

func New(
	log *slog.Logger,
	opts Options,
	routers *httprouters.Routers,
	codec authmw.TokenDecoder,
	sessions authmw.RefreshChecker,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Validator = &CustomValidator{validator: validator.New()}

	e.Server.ReadTimeout = opts.ReadTimeout
	e.Server.WriteTimeout = opts.WriteTimeout

	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(authmw.PrometheusMetrics)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("remote_ip", v.RemoteIP),
				slog.Duration("latency", v.Latency),
			)

			return nil
		},
	}))

	return &Server{
		log:      log,
		e:        e,
		routers:  routers,
		codec:    codec,
		sessions: sessions,
		addr:     net.JoinHostPort(opts.Host, opts.Port),
	}
}

// Handler exposes the router, mostly for httptest.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) BuildRouters() {
	accessGate := authmw.AccessToken(s.log, s.codec)
	refreshGate := authmw.RefreshToken(s.log, s.codec, s.sessions)

	s.e.GET("/health", s.routers.Health)
	s.e.GET("/metrics", echoprometheus.NewHandler())
	s.e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := s.e.Group("/api/v1")
	{
		api.POST("/register", s.routers.Register)
		api.POST("/login", s.routers.Login)
		api.GET("/refresh", s.routers.Refresh, refreshGate)
		api.POST("/logout", s.routers.Logout, refreshGate)
		api.POST("/logout/all", s.routers.LogoutAll, accessGate)

		userGroup := api.Group("/users", accessGate)
		{
			userGroup.GET("/me", s.routers.Me)
		}

		taskGroup := api.Group("/tasks", accessGate)
		{
			taskGroup.GET("", s.routers.ListTasks)
			taskGroup.POST("", s.routers.CreateTask)
			taskGroup.GET("/:id", s.routers.GetTask)
			taskGroup.PATCH("/:id", s.routers.UpdateTask)
			taskGroup.POST("/:id/complete", s.routers.CompleteTask)
			taskGroup.DELETE("/:id", s.routers.DeleteTask)
		}
	}
}

func (s *Server) MustRun() {
	const op = "http.Server.MustRun"

	s.log.Info("starting http server", slog.String("op", op), slog.String("addr", s.addr))

	if err := s.Start(); err != nil {
		panic(err)
	}
}

func (s *Server) Start() error {
	const op = "http.Server.Start"

	if err := s.e.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("%s server stopped: %w", op, err)
	}

	return nil
}

func (s *Server) Stop() error {
	const op = "http.Server.Stop"

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info("stopping http server", slog.String("op", op))

	if err := s.e.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s could not shutdown server gracefully: %w", op, err)
	}

	return nil
}
