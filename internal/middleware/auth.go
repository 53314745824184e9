package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"wikimod/internal/attribution"
	"wikimod/internal/db"
	"wikimod/internal/models"
	"wikimod/internal/session"
	"wikimod/internal/validation"
)

// Locals keys.
const (
	localUser   = "user"
	localOrigin = "origin"
)

// UserLookup finds registered users.
type UserLookup interface {
	GetUserBySub(ctx context.Context, sub string) (*models.User, error)
}

// AuthMiddleware identifies who is making a request.
type AuthMiddleware struct {
	users UserLookup
}

// NewAuthMiddleware creates a new auth middleware instance.
func NewAuthMiddleware(users UserLookup) *AuthMiddleware {
	return &AuthMiddleware{users: users}
}

// LoadActor records the request origin and loads the actor: the logged in
// user, or an anonymous visitor named by their IP address.
func (m *AuthMiddleware) LoadActor(c fiber.Ctx) error {
	origin := validation.NewOrigin(c.IP(), c.Get("X-Forwarded-For"), c.Get(fiber.HeaderUserAgent))
	c.Locals(localOrigin, origin)

	actor := models.NewAnonymous(origin.IP)
	if sub := session.UserSub(c); sub != "" {
		user, err := m.users.GetUserBySub(c.Context(), sub)
		switch {
		case err == nil:
			actor = user
		case errors.Is(err, db.ErrUserNotFound):
			session.LogOut(c)
		default:
			return err
		}
	}

	c.Locals(localUser, actor)
	return c.Next()
}

// RequireAuth rejects anonymous visitors.
func RequireAuth(c fiber.Ctx) error {
	if Actor(c).IsAnonymous() {
		return fiber.NewError(fiber.StatusUnauthorized, "login required")
	}
	return c.Next()
}

// RequireModerator rejects everyone who cannot moderate.
func RequireModerator(c fiber.Ctx) error {
	actor := Actor(c)
	if actor.IsAnonymous() {
		return fiber.NewError(fiber.StatusUnauthorized, "login required")
	}
	if !actor.IsModerator() {
		return fiber.NewError(fiber.StatusForbidden, "moderator access required")
	}
	return c.Next()
}

// Actor returns the actor loaded by LoadActor. Without it the request is
// treated as coming from an unknown anonymous visitor.
func Actor(c fiber.Ctx) *models.User {
	if u, ok := c.Locals(localUser).(*models.User); ok {
		return u
	}
	return models.NewAnonymous(c.IP())
}

// Origin returns the origin recorded by LoadActor.
func Origin(c fiber.Ctx) models.Origin {
	if o, ok := c.Locals(localOrigin).(models.Origin); ok {
		return o
	}
	return validation.NewOrigin(c.IP(), c.Get("X-Forwarded-For"), c.Get(fiber.HeaderUserAgent))
}

// Context returns the request context carrying the request origin, so that
// stored changes are attributed to it.
func Context(c fiber.Ctx) context.Context {
	return attribution.WithOrigin(c.Context(), Origin(c))
}
