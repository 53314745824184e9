// Package session stores per-visitor state in the fiber session.
package session

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/session"
	redisstore "github.com/gofiber/storage/redis/v3"

	"wikimod/internal/config"
	"wikimod/internal/preload"
)

const (
	keyUserSub    = "user_sub"
	keyOAuthState = "oauth_state"
	keyAnonToken  = "anon_id"
)

// NewStorage returns the redis session storage, or nil to keep sessions in
// memory when no redis URL is configured.
func NewStorage(cfg *config.Config) fiber.Storage {
	if cfg.RedisURL == "" {
		return nil
	}
	return redisstore.New(redisstore.Config{URL: cfg.RedisURL})
}

// NewMiddleware builds the session middleware on top of storage.
func NewMiddleware(cfg *config.Config, storage fiber.Storage) fiber.Handler {
	sc := session.Config{
		CookieSecure:   cfg.TLSEnabled || !cfg.IsDev(),
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	}
	if storage != nil {
		sc.Storage = storage
	}
	handler, _ := session.NewWithStore(sc)
	return handler
}

// Tokens keeps the anonymous preload token of a visitor in their session.
type Tokens struct {
	sess *session.Middleware
}

// TokensFor returns the token store of the current request, or nil if the
// request has no session.
func TokensFor(c fiber.Ctx) preload.TokenStore {
	sess := session.FromContext(c)
	if sess == nil {
		return nil
	}
	return &Tokens{sess: sess}
}

func (t *Tokens) AnonToken() (string, bool) {
	token, _ := t.sess.Get(keyAnonToken).(string)
	return token, token != ""
}

func (t *Tokens) RememberAnonToken(token string) error {
	t.sess.Set(keyAnonToken, token)
	return nil
}

func (t *Tokens) ForgetAnonToken() error {
	t.sess.Delete(keyAnonToken)
	return nil
}

// UserSub returns the OIDC subject of the logged in user, or "".
func UserSub(c fiber.Ctx) string {
	sess := session.FromContext(c)
	if sess == nil {
		return ""
	}
	sub, _ := sess.Get(keyUserSub).(string)
	return sub
}

// LogIn remembers the OIDC subject of the user in the session.
func LogIn(c fiber.Ctx, sub string) {
	if sess := session.FromContext(c); sess != nil {
		sess.Set(keyUserSub, sub)
	}
}

// LogOut forgets the logged in user.
func LogOut(c fiber.Ctx) {
	if sess := session.FromContext(c); sess != nil {
		sess.Delete(keyUserSub)
	}
}

// SetOAuthState remembers the state of a pending login.
func SetOAuthState(c fiber.Ctx, state string) bool {
	sess := session.FromContext(c)
	if sess == nil {
		return false
	}
	sess.Set(keyOAuthState, state)
	return true
}

// TakeOAuthState returns and clears the state of a pending login.
func TakeOAuthState(c fiber.Ctx) string {
	sess := session.FromContext(c)
	if sess == nil {
		return ""
	}
	state, _ := sess.Get(keyOAuthState).(string)
	sess.Delete(keyOAuthState)
	return state
}

// Destroy ends the session.
func Destroy(c fiber.Ctx) error {
	if sess := session.FromContext(c); sess != nil {
		return sess.Destroy()
	}
	return nil
}
