package middleware

import (
	"relay-api/internal/ctx"
	"relay-api/internal/shared"
	"relay-api/internal/users"

	"github.com/labstack/echo/v4"
)

// UserMiddleware resolves API keys to user metadata. Constructed once at
// startup and injected into the router; no package-level state.
type UserMiddleware struct {
	um *users.UserManager
}

func NewUserMiddleware(um *users.UserManager) *UserMiddleware {
	return &UserMiddleware{um: um}
}

func (m *UserMiddleware) ExtractUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*ctx.Context)
		c.User = nil

		apiKey, err := shared.ExtractAPIKey(c)
		if err != nil {
			return next(c)
		}
		user, err := m.um.GetUserMetadataFromKey(c.Request().Context(), apiKey)
		if err != nil {
			return next(c)
		}
		c.User = user
		c.Log = c.Log.With("user_id", c.User.UserID)
		c.LogValues.UserID = user.UserID
		c.LogValues.Credits = user.Credits
		c.LogValues.Role = user.Role
		return next(c)
	}
}

func (m *UserMiddleware) RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*ctx.Context)
		if c.User == nil {
			return c.String(401, "unauthorized")
		}
		return next(c)
	}
}
