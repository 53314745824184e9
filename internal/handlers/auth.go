package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"wikimod/internal/config"
	"wikimod/internal/db"
	"wikimod/internal/models"
	"wikimod/internal/preload"
	"wikimod/internal/session"
	"wikimod/internal/validation"
)

// UserStore creates and updates accounts on login.
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) (bool, error)
}

// AccountLinker is told about new accounts so it can hand over the changes
// the visitor made before registering.
type AccountLinker interface {
	OnAccountCreated(ctx context.Context, user *models.User, tokens preload.TokenStore) error
}

// AuthHandler handles OIDC authentication flows.
type AuthHandler struct {
	provider     *oidc.Provider
	oauth2Config oauth2.Config
	verifier     *oidc.IDTokenVerifier
	users        UserStore
	linker       AccountLinker
	cfg          *config.Config
}

// NewAuthHandler creates a new auth handler with OIDC configuration.
func NewAuthHandler(ctx context.Context, cfg *config.Config, users UserStore, linker AccountLinker) (*AuthHandler, error) {
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
	if err != nil {
		return nil, err
	}

	oauth2Config := oauth2.Config{
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID})

	return &AuthHandler{
		provider:     provider,
		oauth2Config: oauth2Config,
		verifier:     verifier,
		users:        users,
		linker:       linker,
		cfg:          cfg,
	}, nil
}

// Login initiates the OIDC login flow.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	state := uuid.NewString()
	if !session.SetOAuthState(c, state) {
		return fiber.NewError(fiber.StatusInternalServerError, "session not available")
	}
	return c.Redirect().To(h.oauth2Config.AuthCodeURL(state))
}

// Callback handles the OIDC callback after authentication.
func (h *AuthHandler) Callback(c fiber.Ctx) error {
	if state := session.TakeOAuthState(c); state == "" || state != c.Query("state") {
		return fiber.NewError(fiber.StatusBadRequest, "invalid state")
	}

	oauth2Token, err := h.oauth2Config.Exchange(c.Context(), c.Query("code"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to exchange code")
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "missing id_token")
	}

	idToken, err := h.verifier.Verify(c.Context(), rawIDToken)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id_token")
	}

	claims := make(map[string]any)
	if err := idToken.Claims(&claims); err != nil {
		return err
	}

	// Some providers only put minimal claims in the ID token.
	userInfo, err := h.provider.UserInfo(c.Context(), oauth2.StaticTokenSource(oauth2Token))
	if err == nil {
		var extra map[string]any
		if err := userInfo.Claims(&extra); err == nil {
			for k, v := range extra {
				claims[k] = v
			}
		}
	} else {
		log.Printf("Warning: Failed to fetch userinfo: %v", err)
	}

	if h.cfg.IsDev() {
		log.Printf("OIDC claims received: %v", claims)
	}

	user, err := userFromClaims(claims)
	if err != nil {
		return err
	}

	created, err := h.users.UpsertUser(c.Context(), user)
	if errors.Is(err, db.ErrDuplicateUsername) {
		return fiber.NewError(fiber.StatusConflict, "username already taken")
	}
	if err != nil {
		return err
	}

	if created {
		if err := h.linker.OnAccountCreated(c.Context(), user, session.TokensFor(c)); err != nil {
			// The account exists either way; the drafts stay with the old token.
			log.Printf("Failed to move anonymous changes to %s: %v", user.Name, err)
		}
	}

	session.LogIn(c, user.Sub)
	return c.Redirect().To("/")
}

// Logout clears the user session.
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	if err := session.Destroy(c); err != nil {
		log.Printf("Failed to destroy session: %v", err)
	}
	return c.Redirect().To("/")
}

// userFromClaims builds the account of an OIDC login. The wiki username is
// the preferred_username claim, falling back to name.
func userFromClaims(claims map[string]any) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "missing sub claim")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["preferred_username"].(string)
	if name == "" {
		name, _ = claims["name"].(string)
	}
	if err := validation.ValidateUsername(name); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "account name is not a valid username")
	}

	return &models.User{
		Sub:   sub,
		Email: email,
		Name:  models.NewTitle(models.NSUser, name).Text(),
	}, nil
}
