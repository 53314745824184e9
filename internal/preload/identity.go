// Package preload lets authors keep working on their own changes while the
// changes wait for a moderator.
package preload

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"wikimod/internal/db"
	"wikimod/internal/models"
)

// Identity prefixes. Neither character is allowed in a username, so the two
// kinds of identity can never collide.
const (
	registeredPrefix = "["
	anonymousPrefix  = "]"
)

// TokenStore keeps the anonymous token of one visitor, usually in the session.
type TokenStore interface {
	AnonToken() (string, bool)
	RememberAnonToken(token string) error
	ForgetAnonToken() error
}

// Drafts is the part of the queue the correlator reads and rekeys.
type Drafts interface {
	FindPendingEdit(ctx context.Context, preloadID string, title models.Title) (*models.PendingEdit, error)
	RekeyPreloadID(ctx context.Context, from, to string, user *models.User) (int64, error)
}

// Correlator ties queued changes to the visitor who made them.
type Correlator struct {
	drafts   Drafts
	newToken func() string
}

// New creates a correlator over the given queue.
func New(drafts Drafts) *Correlator {
	return &Correlator{drafts: drafts, newToken: randomToken}
}

// IdentityFor returns the preload identity of actor. Registered users are
// identified by name. Anonymous visitors are identified by a token in their
// session; if they have none, a token is created only when create is set.
func (c *Correlator) IdentityFor(actor *models.User, tokens TokenStore, create bool) (string, bool, error) {
	if !actor.IsAnonymous() {
		return registeredPrefix + actor.Name, true, nil
	}
	return c.anonIdentity(tokens, create)
}

func (c *Correlator) anonIdentity(tokens TokenStore, create bool) (string, bool, error) {
	if tokens == nil {
		return "", false, nil
	}
	if token, ok := tokens.AnonToken(); ok {
		return anonymousPrefix + token, true, nil
	}
	if !create {
		return "", false, nil
	}

	token := c.newToken()
	if err := tokens.RememberAnonToken(token); err != nil {
		return "", false, err
	}
	return anonymousPrefix + token, true, nil
}

// FindPendingEdit returns the newest draft of title that actor can continue
// editing, or nil if there is none.
func (c *Correlator) FindPendingEdit(ctx context.Context, actor *models.User, tokens TokenStore, title models.Title) (*models.PendingEdit, error) {
	id, ok, err := c.IdentityFor(actor, tokens, false)
	if err != nil || !ok {
		return nil, err
	}

	pe, err := c.drafts.FindPendingEdit(ctx, id, title)
	if errors.Is(err, db.ErrQueueEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pe, nil
}

// OnAccountCreated hands the anonymous changes of the visitor who just
// registered over to their new account, then forgets the anonymous token.
func (c *Correlator) OnAccountCreated(ctx context.Context, user *models.User, tokens TokenStore) error {
	from, ok, err := c.anonIdentity(tokens, false)
	if err != nil || !ok {
		return err
	}

	n, err := c.drafts.RekeyPreloadID(ctx, from, registeredPrefix+user.Name, user)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("moved anonymous changes to new account", "user", user.Name, "entries", n)
	}
	return tokens.ForgetAnonToken()
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
