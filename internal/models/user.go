package models

import (
	"time"
)

// Role constants
const (
	RoleUser          = "user"
	RoleAutomoderated = "automoderated"
	RoleBot           = "bot"
	RoleModerator     = "moderator"
	RoleAdmin         = "admin"
)

// User is an actor of the wiki: a registered account or an anonymous visitor.
// Anonymous visitors have ID 0 and their IP address as Name.
type User struct {
	ID        int64     `json:"id"`
	Sub       string    `json:"-"` // OIDC subject identifier
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"` // user, automoderated, bot, moderator, admin
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAnonymous returns the actor for a visitor who is not logged in.
func NewAnonymous(ip string) *User {
	return &User{Name: ip, Role: RoleUser}
}

// IsAnonymous returns true if the user has no account.
func (u *User) IsAnonymous() bool {
	return u.ID == 0
}

// IsAdmin returns true if the user is an admin.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsModerator returns true if the user can approve and reject queued changes.
func (u *User) IsModerator() bool {
	return u.Role == RoleModerator || u.Role == RoleAdmin
}

// CanSkipModeration returns true if changes by this user go live without review.
func (u *User) CanSkipModeration() bool {
	if u.IsAnonymous() {
		return false
	}
	switch u.Role {
	case RoleAutomoderated, RoleBot, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// IsBot returns true if the user holds the bot right.
func (u *User) IsBot() bool {
	return !u.IsAnonymous() && (u.Role == RoleBot || u.Role == RoleAdmin)
}

// UserPage returns the title of the user's own page.
func (u *User) UserPage() Title {
	return NewTitle(NSUser, u.Name)
}
