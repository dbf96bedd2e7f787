package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const UsernameKey contextKey = "username"

// Middleware requires a valid Bearer token and stores its subject in the
// Echo context.
func (s *Service) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
		}

		username, err := s.ParseToken(parts[1])
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		c.Set(string(UsernameKey), username)
		return next(c)
	}
}

// GetUsernameFromContext retrieves the user set by Middleware.
func GetUsernameFromContext(c echo.Context) (string, error) {
	name, ok := c.Get(string(UsernameKey)).(string)
	if !ok || name == "" {
		return "", errors.New("username not found in context")
	}
	return name, nil
}
