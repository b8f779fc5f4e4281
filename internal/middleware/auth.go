package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"task_manager/internal/lib/jwt"
	"task_manager/internal/lib/logger/sl"
	"task_manager/internal/transport/http/dto/response"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	accessClaimsKey  = "access_claims"
	refreshClaimsKey = "refresh_claims"
	bearerPrefix     = "bearer "
)

type TokenDecoder interface {
	DecodeAccess(token string) (*jwt.AccessClaims, error)
	DecodeRefresh(token string) (*jwt.RefreshClaims, error)
}

type RefreshChecker interface {
	IsRefreshActive(ctx context.Context, tokenID uuid.UUID) (bool, error)
}

// AccessToken admits requests carrying a valid access token. Access tokens
// are self-verifying, no store is consulted.
func AccessToken(log *slog.Logger, codec TokenDecoder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request())
			if !ok {
				return unauthorized(c)
			}

			claims, err := codec.DecodeAccess(raw)
			if err != nil {
				log.Debug("access token rejected", sl.Err(err))
				return unauthorized(c)
			}

			c.Set(accessClaimsKey, claims)

			return next(c)
		}
	}
}

// RefreshToken admits requests carrying a valid refresh token whose id is
// still in the store.
func RefreshToken(log *slog.Logger, codec TokenDecoder, sessions RefreshChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			const op = "middleware.RefreshToken"

			raw, ok := bearerToken(c.Request())
			if !ok {
				return unauthorized(c)
			}

			claims, err := codec.DecodeRefresh(raw)
			if err != nil {
				log.Debug("refresh token rejected", sl.Err(err))
				return unauthorized(c)
			}

			active, err := sessions.IsRefreshActive(c.Request().Context(), claims.TokenID())
			if err != nil {
				log.Error("failed to check refresh token", slog.String("op", op), sl.Err(err))
				return c.JSON(http.StatusInternalServerError, response.ErrInternal())
			}
			if !active {
				log.Warn("refresh token revoked or already used",
					slog.String("op", op),
					slog.String("user_id", claims.Subject),
				)
				return unauthorized(c)
			}

			c.Set(refreshClaimsKey, claims)

			return next(c)
		}
	}
}

func AccessClaimsFrom(c echo.Context) (*jwt.AccessClaims, bool) {
	claims, ok := c.Get(accessClaimsKey).(*jwt.AccessClaims)
	return claims, ok
}

func RefreshClaimsFrom(c echo.Context) (*jwt.RefreshClaims, bool) {
	claims, ok := c.Get(refreshClaimsKey).(*jwt.RefreshClaims)
	return claims, ok
}

// UserIDFrom returns the subject of the access token admitted by AccessToken.
func UserIDFrom(c echo.Context) (uuid.UUID, bool) {
	claims, ok := AccessClaimsFrom(c)
	if !ok {
		return uuid.Nil, false
	}

	return claims.UserID(), true
}

// bearerToken reads the Authorization header. The "Bearer " prefix is
// optional.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	if len(header) >= len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		header = strings.TrimSpace(header[len(bearerPrefix):])
	}

	if header == "" || strings.EqualFold(header, strings.TrimSpace(bearerPrefix)) || strings.ContainsAny(header, " \t") {
		return "", false
	}

	return header, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed())
}
