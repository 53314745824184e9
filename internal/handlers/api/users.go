package api

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"wikimod/internal/db"
	"wikimod/internal/middleware"
	"wikimod/internal/models"
)

// RoleStore changes user rights.
type RoleStore interface {
	UpdateUserRole(ctx context.Context, userID int64, role string) error
}

// UserHandler manages user rights via JSON API.
type UserHandler struct {
	users RoleStore
}

// NewUserHandler creates a new API user handler.
func NewUserHandler(users RoleStore) *UserHandler {
	return &UserHandler{users: users}
}

var assignableRoles = map[string]bool{
	models.RoleUser:          true,
	models.RoleAutomoderated: true,
	models.RoleBot:           true,
	models.RoleModerator:     true,
	models.RoleAdmin:         true,
}

// UpdateRole sets a user's role (admin only).
func (h *UserHandler) UpdateRole(c fiber.Ctx) error {
	currentUser := middleware.Actor(c)
	if !currentUser.IsAdmin() {
		return jsonError(c, fiber.StatusForbidden, "admin access required")
	}

	userID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || userID <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "invalid user id")
	}

	var body struct {
		Role string `json:"role"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if body.Role == "" {
		return jsonError(c, fiber.StatusBadRequest, "role is required")
	}
	if !assignableRoles[body.Role] {
		return jsonError(c, fiber.StatusBadRequest, "invalid role")
	}

	if userID == currentUser.ID && body.Role != models.RoleAdmin {
		return jsonError(c, fiber.StatusBadRequest, "cannot change your own role")
	}

	if err := h.users.UpdateUserRole(c.Context(), userID, body.Role); err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return jsonError(c, fiber.StatusNotFound, "user not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to update role")
	}

	return jsonSuccess(c, fiber.Map{
		"message": "role updated successfully",
	})
}
