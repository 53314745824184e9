// Package moderation applies or discards changes held in the moderation queue.
package moderation

import (
	"context"
	"time"

	"wikimod/internal/models"
	"wikimod/internal/validation"
)

// ContentStore commits changes to the live wiki.
type ContentStore interface {
	PageExists(ctx context.Context, title models.Title) (bool, error)
	CurrentRevisionID(ctx context.Context, title models.Title) (int64, error)
	ContentAt(ctx context.Context, revID int64) (string, error)
	CommitEdit(ctx context.Context, c models.EditCommit) (int64, error)
	CommitUpload(ctx context.Context, c models.UploadCommit) (int64, error)
	CommitMove(ctx context.Context, c models.MoveCommit) (int64, error)
	FinalizeRevision(ctx context.Context, revID int64, ts time.Time, author *models.User) error
}

// Queue is the storage of queued changes.
type Queue interface {
	GetQueueEntry(ctx context.Context, id int64) (*models.QueueEntry, error)
	LockEntry(ctx context.Context, id int64) (func(), error)
	MarkConflict(ctx context.Context, id int64) error
	DeleteQueueEntry(ctx context.Context, id int64) error
	SelectApprovable(ctx context.Context, userText string) ([]int64, error)
	SelectRejectable(ctx context.Context, userText string) ([]int64, error)
	RejectEntry(ctx context.Context, id int64, moderator *models.User) (bool, error)
	RejectEntries(ctx context.Context, ids []int64, moderator *models.User) (int64, error)
	MarkMerged(ctx context.Context, id, revID int64) (bool, error)
	AuthorOf(ctx context.Context, id int64) (string, error)
}

// Directory resolves stored author references to actors.
type Directory interface {
	ResolveActor(ctx context.Context, id int64, name string) (*models.User, error)
}

// AuditLog records moderation actions.
type AuditLog interface {
	RecordLog(ctx context.Context, entry *models.LogEntry) error
}

// Stash tells whether a stashed upload still exists.
type Stash interface {
	Has(ctx context.Context, key string) (bool, error)
}

// Merger combines a queued edit with later changes to the page.
type Merger interface {
	Merge(base, mine, theirs string) (string, bool)
}

// Invalidator is told whenever the set of pending changes shrinks.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// AuthorNotifier tells authors what happened to their changes.
type AuthorNotifier interface {
	NotifyApproved(ctx context.Context, entry *models.QueueEntry, revID int64)
	NotifyRejected(ctx context.Context, entry *models.QueueEntry, moderator *models.User)
}

// Deps are the collaborators of an Engine. Invalidator and Notifier are optional.
type Deps struct {
	Queue       Queue
	Content     ContentStore
	Users       Directory
	Log         AuditLog
	Stash       Stash
	Merger      Merger
	Titles      *validation.TitleParser
	Invalidator Invalidator
	Notifier    AuthorNotifier
}

// Engine approves and rejects queued changes.
type Engine struct {
	Deps
	window time.Duration
	now    func() time.Time
}

// NewEngine creates an engine. Rejected changes can be approved for window
// after they were submitted; a zero window never allows it.
func NewEngine(deps Deps, window time.Duration) *Engine {
	if deps.Titles == nil {
		deps.Titles = validation.DefaultTitleParser()
	}
	if window < 0 {
		window = DefaultReapprovalWindow
	}
	return &Engine{Deps: deps, window: window, now: time.Now}
}

// AuthorOf returns the author of a queued change, for batch actions started
// from one of the author's changes.
func (e *Engine) AuthorOf(ctx context.Context, id int64) (string, error) {
	name, err := e.Queue.AuthorOf(ctx, id)
	if err != nil {
		return "", notFound(err)
	}
	return name, nil
}
