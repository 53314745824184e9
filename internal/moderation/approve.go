package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wikimod/internal/attribution"
	"wikimod/internal/content"
	"wikimod/internal/db"
	"wikimod/internal/metrics"
	"wikimod/internal/models"
	"wikimod/internal/stash"
	"wikimod/internal/tracing"
)

// How an approved change was applied.
const (
	PathCreate = "create"
	PathFast   = "fast"
	PathMerge  = "merge"
	PathUpload = "upload"
	PathMove   = "move"
)

// ApproveResult describes an approved change.
type ApproveResult struct {
	EntryID int64  `json:"entry_id"`
	RevID   int64  `json:"rev_id"`
	Path    string `json:"path"`
}

// BatchResult tallies a batch approval.
type BatchResult struct {
	Approved int `json:"approved"`
	Failed   int `json:"failed"`
}

func notFound(err error) error {
	if errors.Is(err, db.ErrQueueEntryNotFound) || errors.Is(err, db.ErrEntryLocked) {
		return ErrEntryNotFound
	}
	return err
}

// ApproveOne applies a queued change to the wiki on behalf of its author and
// removes it from the queue.
func (e *Engine) ApproveOne(ctx context.Context, id int64, moderator *models.User) (res *ApproveResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "moderation.approve")
	span.SetInt("entry_id", id)
	defer func() {
		tracing.EndSpan(span, err)
		metrics.RecordAction(models.LogApprove, outcome(err))
	}()

	unlock, err := e.Queue.LockEntry(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	defer unlock()

	return e.approveLocked(ctx, id, moderator)
}

func (e *Engine) approveLocked(ctx context.Context, id int64, moderator *models.User) (*ApproveResult, error) {
	entry, err := e.Queue.GetQueueEntry(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if entry.IsMerged() {
		return nil, ErrAlreadyMerged
	}
	if entry.Rejected && !CanReapprove(entry.Timestamp, e.now(), e.window) {
		return nil, ErrRejectedTooLongAgo
	}

	author, err := e.Users.ResolveActor(ctx, entry.UserID, entry.UserText)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve author of change %d: %w", id, err)
	}

	res, err := attribution.Scoped(ctx, entry.Origin, func(ctx context.Context) (*ApproveResult, error) {
		return e.apply(ctx, entry, author)
	})
	if err != nil {
		return nil, err
	}
	res.EntryID = id
	metrics.RecordApprovalPath(res.Path)

	e.finishApproval(ctx, entry, author, moderator, res.RevID)
	return res, nil
}

// apply commits the change held by entry.
func (e *Engine) apply(ctx context.Context, entry *models.QueueEntry, author *models.User) (*ApproveResult, error) {
	switch p := entry.Payload.(type) {
	case *models.UploadPayload:
		return e.applyUpload(ctx, entry, p, author)
	case *models.MovePayload:
		revID, err := e.Content.CommitMove(ctx, models.MoveCommit{
			From:             entry.Title,
			To:               p.NewTitle,
			Comment:          entry.Comment,
			Author:           author,
			BypassModeration: true,
		})
		if err != nil {
			return nil, &CommitError{Err: err}
		}
		return &ApproveResult{RevID: revID, Path: PathMove}, nil
	case *models.EditPayload:
		return e.applyEdit(ctx, entry, p, author)
	}
	return nil, &CommitError{Err: fmt.Errorf("unsupported payload %T", entry.Payload)}
}

func (e *Engine) applyUpload(ctx context.Context, entry *models.QueueEntry, p *models.UploadPayload, author *models.User) (*ApproveResult, error) {
	ok, err := e.Stash.Has(ctx, p.StashKey)
	if err != nil {
		return nil, &CommitError{Err: err}
	}
	if !ok {
		return nil, ErrMissingStashedUpload
	}

	revID, err := e.Content.CommitUpload(ctx, models.UploadCommit{
		Title:            entry.Title,
		StashKey:         p.StashKey,
		Comment:          entry.Comment,
		Description:      p.Description,
		Author:           author,
		Tags:             entry.Tags,
		BypassModeration: true,
	})
	if errors.Is(err, stash.ErrNotFound) {
		return nil, ErrMissingStashedUpload
	}
	if err != nil {
		return nil, &CommitError{Err: err}
	}
	return &ApproveResult{RevID: revID, Path: PathUpload}, nil
}

func (e *Engine) applyEdit(ctx context.Context, entry *models.QueueEntry, p *models.EditPayload, author *models.User) (*ApproveResult, error) {
	commit := models.EditCommit{
		Title:            entry.Title,
		Text:             p.Text,
		Comment:          entry.Comment,
		Author:           author,
		Minor:            entry.Minor,
		Bot:              entry.Bot,
		Tags:             entry.Tags,
		BypassModeration: true,
	}

	exists, err := e.Content.PageExists(ctx, entry.Title)
	if err != nil {
		return nil, &CommitError{Err: err}
	}
	if !exists {
		return e.commitEdit(ctx, commit, PathCreate)
	}

	current, err := e.Content.CurrentRevisionID(ctx, entry.Title)
	if err != nil {
		return nil, &CommitError{Err: err}
	}
	commit.BaseRevID = current
	if current == p.BaseRevID {
		return e.commitEdit(ctx, commit, PathFast)
	}

	// The page changed after the edit was queued.
	var base string
	if p.BaseRevID != 0 {
		base, err = e.Content.ContentAt(ctx, p.BaseRevID)
		if err != nil && !errors.Is(err, db.ErrRevisionNotFound) {
			return nil, &CommitError{Err: err}
		}
	}
	theirs, err := e.Content.ContentAt(ctx, current)
	if err != nil {
		return nil, &CommitError{Err: err}
	}

	merged, ok := e.Merger.Merge(base, p.Text, theirs)
	if !ok {
		if err := e.Queue.MarkConflict(ctx, entry.ID); err != nil {
			return nil, fmt.Errorf("failed to flag conflict on change %d: %w", entry.ID, err)
		}
		return nil, ErrEditConflict
	}
	commit.Text = merged
	return e.commitEdit(ctx, commit, PathMerge)
}

func (e *Engine) commitEdit(ctx context.Context, c models.EditCommit, path string) (*ApproveResult, error) {
	revID, err := e.Content.CommitEdit(ctx, c)
	if errors.Is(err, content.ErrEditConflict) {
		// The page moved on between reading it and saving. Nothing needs a
		// manual merge, so the change stays approvable.
		return nil, ErrEditConflict
	}
	if err != nil {
		return nil, &CommitError{Err: err}
	}
	return &ApproveResult{RevID: revID, Path: path}, nil
}

// finishApproval does the bookkeeping once a change is live. The change is
// already committed, so failures here are logged rather than returned.
func (e *Engine) finishApproval(ctx context.Context, entry *models.QueueEntry, author, moderator *models.User, revID int64) {
	if err := e.Content.FinalizeRevision(ctx, revID, entry.Timestamp, author); err != nil {
		slog.Error("failed to backdate approved revision", "entry_id", entry.ID, "rev_id", revID, "error", err)
	}

	e.record(ctx, &models.LogEntry{
		Action:        models.LogApprove,
		PerformerID:   moderator.ID,
		PerformerText: moderator.Name,
		Target:        entry.Title,
		Params: map[string]any{
			"revid":        revID,
			"modid":        entry.ID,
			"was_rejected": entry.Rejected,
		},
	})

	if err := e.Queue.DeleteQueueEntry(ctx, entry.ID); err != nil {
		slog.Error("failed to remove approved change from queue", "entry_id", entry.ID, "error", err)
		// Keep it from being approved twice.
		if _, err := e.Queue.MarkMerged(ctx, entry.ID, revID); err != nil {
			slog.Error("failed to mark approved change as merged", "entry_id", entry.ID, "error", err)
		}
	}

	e.invalidate(ctx)
	if e.Notifier != nil {
		e.Notifier.NotifyApproved(ctx, entry, revID)
	}
}

// ApproveAll approves every pending change of an author. Uploads go first.
// Changes that fail are counted and skipped.
func (e *Engine) ApproveAll(ctx context.Context, authorName string, moderator *models.User) (res *BatchResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "moderation.approveall")
	span.SetString("author", authorName)
	defer func() {
		tracing.EndSpan(span, err)
		metrics.RecordAction(models.LogApproveAll, outcome(err))
	}()

	userPage, err := e.Titles.MakeTitle(models.NSUser, authorName)
	if err != nil {
		return nil, ErrNothingToApprove
	}

	ids, err := e.Queue.SelectApprovable(ctx, authorName)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNothingToApprove
	}

	res = &BatchResult{}
	for _, id := range ids {
		if _, err := e.ApproveOne(ctx, id, moderator); err != nil {
			slog.Warn("batch approval skipped change", "entry_id", id, "error", err)
			res.Failed++
			continue
		}
		res.Approved++
	}

	if res.Approved > 0 {
		e.record(ctx, &models.LogEntry{
			Action:        models.LogApproveAll,
			PerformerID:   moderator.ID,
			PerformerText: moderator.Name,
			Target:        userPage,
			Params:        map[string]any{"count": res.Approved},
		})
	}
	return res, nil
}

// RecordMerge closes a conflicted change once a moderator has merged it by
// hand into revision revID.
func (e *Engine) RecordMerge(ctx context.Context, id, revID int64, moderator *models.User) (err error) {
	ctx, span := tracing.StartSpan(ctx, "moderation.merge")
	span.SetInt("entry_id", id).SetInt("rev_id", revID)
	defer func() {
		tracing.EndSpan(span, err)
		metrics.RecordAction(models.LogMerge, outcome(err))
	}()

	unlock, err := e.Queue.LockEntry(ctx, id)
	if err != nil {
		return notFound(err)
	}
	defer unlock()

	entry, err := e.Queue.GetQueueEntry(ctx, id)
	if err != nil {
		return notFound(err)
	}
	if entry.IsMerged() {
		return ErrAlreadyMerged
	}
	if !entry.Conflict {
		return ErrNotConflicted
	}

	ok, err := e.Queue.MarkMerged(ctx, id, revID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyMerged
	}

	e.record(ctx, &models.LogEntry{
		Action:        models.LogMerge,
		PerformerID:   moderator.ID,
		PerformerText: moderator.Name,
		Target:        entry.Title,
		Params:        map[string]any{"revid": revID, "modid": id},
	})
	e.invalidate(ctx)
	return nil
}

func (e *Engine) record(ctx context.Context, entry *models.LogEntry) {
	if err := e.Log.RecordLog(ctx, entry); err != nil {
		slog.Error("failed to write moderation log", "action", entry.Action, "target", entry.Target.String(), "error", err)
	}
}

func (e *Engine) invalidate(ctx context.Context) {
	if e.Invalidator == nil {
		return
	}
	if err := e.Invalidator.Invalidate(ctx); err != nil {
		slog.Warn("failed to invalidate pending change cache", "error", err)
	}
}
