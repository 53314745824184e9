// Package intake decides whether a change goes live at once or waits in the
// moderation queue.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wikimod/internal/attribution"
	"wikimod/internal/metrics"
	"wikimod/internal/models"
)

// ErrNoPreloadID is returned when a change that has to be queued carries no
// preload identity.
var ErrNoPreloadID = errors.New("queued change needs a preload identity")

// QueuedError reports that a change was queued instead of committed.
type QueuedError struct {
	EntryID int64
	Kind    models.PayloadKind
}

func (e *QueuedError) Error() string {
	return fmt.Sprintf("%s %d is pending moderation", e.Kind, e.EntryID)
}

// AsQueued returns the QueuedError in err's chain, if any.
func AsQueued(err error) (*QueuedError, bool) {
	var q *QueuedError
	ok := errors.As(err, &q)
	return q, ok
}

// Committer is the live content store the gate sits in front of.
type Committer interface {
	PageExists(ctx context.Context, title models.Title) (bool, error)
	CurrentRevisionID(ctx context.Context, title models.Title) (int64, error)
	ContentAt(ctx context.Context, revID int64) (string, error)
	CommitEdit(ctx context.Context, c models.EditCommit) (int64, error)
	CommitUpload(ctx context.Context, c models.UploadCommit) (int64, error)
	CommitMove(ctx context.Context, c models.MoveCommit) (int64, error)
	FinalizeRevision(ctx context.Context, revID int64, ts time.Time, author *models.User) error
}

// Queue stores intercepted changes.
type Queue interface {
	EnqueueChange(ctx context.Context, e *models.QueueEntry) error
}

// Uploads holds uploaded files until they are published.
type Uploads interface {
	Put(ctx context.Context, fileName string, data []byte) (string, error)
	Discard(ctx context.Context, key string) error
}

// Invalidator is told when a change is queued.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ModeratorNotifier alerts moderators about queued changes.
type ModeratorNotifier interface {
	NotifyQueued(ctx context.Context, entry *models.QueueEntry)
}

// Deps are the collaborators of a Gate. Invalidator and Notifier are optional.
type Deps struct {
	Store       Committer
	Queue       Queue
	Uploads     Uploads
	Invalidator Invalidator
	Notifier    ModeratorNotifier
}

// Gate passes changes of trusted actors, and changes that say so, through to
// the store. Everything else is queued and reported with a QueuedError.
type Gate struct {
	Committer
	queue       Queue
	uploads     Uploads
	invalidator Invalidator
	notifier    ModeratorNotifier
}

// NewGate creates a gate.
func NewGate(d Deps) *Gate {
	return &Gate{
		Committer:   d.Store,
		queue:       d.Queue,
		uploads:     d.Uploads,
		invalidator: d.Invalidator,
		notifier:    d.Notifier,
	}
}

func passThrough(author *models.User, bypass bool) bool {
	return bypass || author.CanSkipModeration()
}

// CommitEdit saves an edit or queues it.
func (g *Gate) CommitEdit(ctx context.Context, c models.EditCommit) (int64, error) {
	if passThrough(c.Author, c.BypassModeration) {
		return g.Committer.CommitEdit(ctx, c)
	}

	entry := newEntry(ctx, c.Author, c.Title, c.Comment, c.PreloadID, c.Tags)
	entry.Minor = c.Minor
	entry.Bot = c.Bot && c.Author.IsBot()
	entry.Payload = &models.EditPayload{Text: c.Text, BaseRevID: c.BaseRevID}
	return 0, g.enqueue(ctx, entry)
}

// CommitUpload publishes a stashed file or queues it.
func (g *Gate) CommitUpload(ctx context.Context, c models.UploadCommit) (int64, error) {
	if passThrough(c.Author, c.BypassModeration) {
		return g.Committer.CommitUpload(ctx, c)
	}

	entry := newEntry(ctx, c.Author, c.Title, c.Comment, c.PreloadID, c.Tags)
	entry.Payload = &models.UploadPayload{StashKey: c.StashKey, Description: c.Description}
	return 0, g.enqueue(ctx, entry)
}

// CommitMove renames a page or queues the rename.
func (g *Gate) CommitMove(ctx context.Context, c models.MoveCommit) (int64, error) {
	if passThrough(c.Author, c.BypassModeration) {
		return g.Committer.CommitMove(ctx, c)
	}

	entry := newEntry(ctx, c.Author, c.From, c.Comment, c.PreloadID, nil)
	entry.Payload = &models.MovePayload{NewTitle: c.To}
	return 0, g.enqueue(ctx, entry)
}

// Upload is a file submitted through the upload form.
type Upload struct {
	Title       models.Title
	FileName    string
	Data        []byte
	Comment     string
	Description string
	Author      *models.User
	Tags        []string
	PreloadID   string
}

// SubmitUpload stashes the file, then commits or queues it. The stashed copy
// is discarded if neither succeeds.
func (g *Gate) SubmitUpload(ctx context.Context, u Upload) (int64, error) {
	key, err := g.uploads.Put(ctx, u.FileName, u.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to stash upload: %w", err)
	}

	revID, err := g.CommitUpload(ctx, models.UploadCommit{
		Title:       u.Title,
		StashKey:    key,
		Comment:     u.Comment,
		Description: u.Description,
		Author:      u.Author,
		Tags:        u.Tags,
		PreloadID:   u.PreloadID,
	})
	if _, queued := AsQueued(err); err != nil && !queued {
		if derr := g.uploads.Discard(ctx, key); derr != nil {
			slog.Warn("failed to discard stashed upload", "key", key, "error", derr)
		}
	}
	return revID, err
}

func newEntry(ctx context.Context, author *models.User, title models.Title, comment, preloadID string, tags []string) *models.QueueEntry {
	origin, _ := attribution.FromContext(ctx)
	return &models.QueueEntry{
		UserID:    author.ID,
		UserText:  author.Name,
		Title:     title,
		Comment:   comment,
		Origin:    origin,
		PreloadID: preloadID,
		Tags:      tags,
	}
}

func (g *Gate) enqueue(ctx context.Context, entry *models.QueueEntry) error {
	if entry.PreloadID == "" {
		return ErrNoPreloadID
	}
	if err := g.queue.EnqueueChange(ctx, entry); err != nil {
		return fmt.Errorf("failed to queue change: %w", err)
	}

	kind := entry.Payload.Kind()
	metrics.RecordQueued(string(kind))
	slog.Info("change queued for moderation", "id", entry.ID, "kind", kind, "page", entry.Title.String(), "user", entry.UserText)

	if g.invalidator != nil {
		if err := g.invalidator.Invalidate(ctx); err != nil {
			slog.Warn("failed to invalidate pending-change cache", "error", err)
		}
	}
	if g.notifier != nil {
		g.notifier.NotifyQueued(ctx, entry)
	}
	return &QueuedError{EntryID: entry.ID, Kind: kind}
}
