package moderation

import (
	"context"

	"wikimod/internal/metrics"
	"wikimod/internal/models"
	"wikimod/internal/tracing"
)

// RejectResult tallies rejected changes.
type RejectResult struct {
	Rejected int `json:"rejected"`
}

// RejectOne discards a queued change. A change that was approved in the
// meantime is reported as not found.
func (e *Engine) RejectOne(ctx context.Context, id int64, moderator *models.User) (res *RejectResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "moderation.reject")
	span.SetInt("entry_id", id)
	defer func() {
		tracing.EndSpan(span, err)
		metrics.RecordAction(models.LogReject, outcome(err))
	}()

	unlock, err := e.Queue.LockEntry(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	defer unlock()

	entry, err := e.Queue.GetQueueEntry(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if entry.IsMerged() {
		return nil, ErrAlreadyMerged
	}

	ok, err := e.Queue.RejectEntry(ctx, id, moderator)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEntryNotFound
	}

	e.record(ctx, &models.LogEntry{
		Action:        models.LogReject,
		PerformerID:   moderator.ID,
		PerformerText: moderator.Name,
		Target:        entry.Title,
		Params: map[string]any{
			"modid":     id,
			"user":      entry.UserID,
			"user_text": entry.UserText,
		},
	})
	e.invalidate(ctx)
	if e.Notifier != nil {
		e.Notifier.NotifyRejected(ctx, entry, moderator)
	}

	return &RejectResult{Rejected: 1}, nil
}

// RejectAll discards every pending change of an author in one update.
func (e *Engine) RejectAll(ctx context.Context, authorName string, moderator *models.User) (res *RejectResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "moderation.rejectall")
	span.SetString("author", authorName)
	defer func() {
		tracing.EndSpan(span, err)
		metrics.RecordAction(models.LogRejectAll, outcome(err))
	}()

	userPage, err := e.Titles.MakeTitle(models.NSUser, authorName)
	if err != nil {
		return nil, ErrNothingToReject
	}

	ids, err := e.Queue.SelectRejectable(ctx, authorName)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNothingToReject
	}

	n, err := e.Queue.RejectEntries(ctx, ids, moderator)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNothingToReject
	}

	e.record(ctx, &models.LogEntry{
		Action:        models.LogRejectAll,
		PerformerID:   moderator.ID,
		PerformerText: moderator.Name,
		Target:        userPage,
		Params:        map[string]any{"count": n},
	})
	e.invalidate(ctx)

	return &RejectResult{Rejected: int(n)}, nil
}
