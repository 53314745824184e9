package api

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"wikimod/internal/middleware"
	"wikimod/internal/models"
	"wikimod/internal/moderation"
	"wikimod/internal/stash"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Moderator performs moderation actions.
type Moderator interface {
	ApproveOne(ctx context.Context, id int64, moderator *models.User) (*moderation.ApproveResult, error)
	ApproveAll(ctx context.Context, authorName string, moderator *models.User) (*moderation.BatchResult, error)
	RejectOne(ctx context.Context, id int64, moderator *models.User) (*moderation.RejectResult, error)
	RejectAll(ctx context.Context, authorName string, moderator *models.User) (*moderation.RejectResult, error)
	RecordMerge(ctx context.Context, id, revID int64, moderator *models.User) error
	AuthorOf(ctx context.Context, id int64) (string, error)
}

// QueueReader lists queued changes.
type QueueReader interface {
	GetQueueEntry(ctx context.Context, id int64) (*models.QueueEntry, error)
	ListPendingEntries(ctx context.Context, limit int) ([]models.QueueEntry, error)
	ListRejectedEntries(ctx context.Context, limit int) ([]models.QueueEntry, error)
}

// PendingWatcher reports the newest pending change.
type PendingWatcher interface {
	NewestPending(ctx context.Context) (time.Time, bool, error)
	HasNewChanges(ctx context.Context, seenAt time.Time) (bool, error)
}

// StashReader reads stashed uploads.
type StashReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// ModerationHandler exposes the moderation queue to moderators.
type ModerationHandler struct {
	engine  Moderator
	queue   QueueReader
	pending PendingWatcher
	stash   StashReader
}

// NewModerationHandler creates a new API moderation handler.
func NewModerationHandler(engine Moderator, queue QueueReader, pending PendingWatcher, stash StashReader) *ModerationHandler {
	return &ModerationHandler{engine: engine, queue: queue, pending: pending, stash: stash}
}

// List returns queued changes. ?folder=rejected lists rejected ones.
func (h *ModerationHandler) List(c fiber.Ctx) error {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return jsonError(c, fiber.StatusBadRequest, "invalid limit")
		}
		limit = min(n, maxListLimit)
	}

	var (
		entries []models.QueueEntry
		err     error
	)
	switch folder := c.Query("folder", "pending"); folder {
	case "pending":
		entries, err = h.queue.ListPendingEntries(c.Context(), limit)
	case "rejected":
		entries, err = h.queue.ListRejectedEntries(c.Context(), limit)
	default:
		return jsonError(c, fiber.StatusBadRequest, "unknown folder")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch queue")
	}

	// Ensure non-null arrays in JSON
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	return jsonSuccess(c, entries)
}

// Notify tells a moderator whether changes arrived since ?since (RFC 3339).
func (h *ModerationHandler) Notify(c fiber.Ctx) error {
	var since time.Time
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid since")
		}
		since = t
	}

	hasNew, err := h.pending.HasNewChanges(c.Context(), since)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to check queue")
	}
	newest, ok, err := h.pending.NewestPending(c.Context())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to check queue")
	}

	resp := fiber.Map{"pending": ok, "has_new": hasNew}
	if ok {
		resp["newest"] = newest
	}
	return jsonSuccess(c, resp)
}

// Approve applies one queued change.
func (h *ModerationHandler) Approve(c fiber.Ctx) error {
	id, ok := entryID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid entry id")
	}

	res, err := h.engine.ApproveOne(c.Context(), id, middleware.Actor(c))
	if err != nil {
		return jsonModerationError(c, err)
	}
	return jsonSuccess(c, fiber.Map{
		"message": moderation.MessageKey(nil),
		"rev_id":  res.RevID,
		"path":    res.Path,
	})
}

// ApproveAll applies every approvable change of the author of entry :id.
func (h *ModerationHandler) ApproveAll(c fiber.Ctx) error {
	id, ok := entryID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid entry id")
	}
	author, err := h.engine.AuthorOf(c.Context(), id)
	if err != nil {
		return jsonModerationError(c, err)
	}

	res, err := h.engine.ApproveAll(c.Context(), author, middleware.Actor(c))
	if err != nil {
		return jsonModerationError(c, err)
	}
	return jsonSuccess(c, fiber.Map{
		"message":  moderation.MessageKey(nil),
		"approved": res.Approved,
		"failed":   res.Failed,
	})
}

// Reject declines one queued change.
func (h *ModerationHandler) Reject(c fiber.Ctx) error {
	id, ok := entryID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid entry id")
	}

	res, err := h.engine.RejectOne(c.Context(), id, middleware.Actor(c))
	if err != nil {
		return jsonModerationError(c, err)
	}
	return jsonSuccess(c, fiber.Map{
		"message":  moderation.MessageKey(nil),
		"rejected": res.Rejected,
	})
}

// RejectAll declines every pending change of the author of entry :id.
func (h *ModerationHandler) RejectAll(c fiber.Ctx) error {
	id, ok := entryID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid entry id")
	}
	author, err := h.engine.AuthorOf(c.Context(), id)
	if err != nil {
		return jsonModerationError(c, err)
	}

	res, err := h.engine.RejectAll(c.Context(), author, middleware.Actor(c))
	if err != nil {
		return jsonModerationError(c, err)
	}
	return jsonSuccess(c, fiber.Map{
		"message":  moderation.MessageKey(nil),
		"rejected": res.Rejected,
	})
}

// Merged records the revision that resolved a conflicted change by hand.
func (h *ModerationHandler) Merged(c fiber.Ctx) error {
	id, ok := entryID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid entry id")
	}

	var body struct {
		RevID int64 `json:"rev_id"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.RevID <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "rev_id is required")
	}

	if err := h.engine.RecordMerge(c.Context(), id, body.RevID, middleware.Actor(c)); err != nil {
		return jsonModerationError(c, err)
	}
	return jsonSuccess(c, fiber.Map{"message": moderation.MessageKey(nil)})
}

// File returns the stashed file of a queued upload, so moderators can look
// at it before approving.
func (h *ModerationHandler) File(c fiber.Ctx) error {
	id, ok := entryID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid entry id")
	}

	entry, err := h.queue.GetQueueEntry(c.Context(), id)
	if err != nil {
		return jsonModerationError(c, moderation.ErrEntryNotFound)
	}
	upload, ok := entry.Payload.(*models.UploadPayload)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "entry is not an upload")
	}

	data, err := h.stash.Get(c.Context(), upload.StashKey)
	if errors.Is(err, stash.ErrNotFound) {
		return jsonModerationError(c, moderation.ErrMissingStashedUpload)
	}
	if err != nil {
		slog.Error("failed to read stashed upload", "id", id, "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "failed to read file")
	}

	return sendFile(c, entry.Title.DBKey, data)
}

// entryID parses the :id route parameter.
func entryID(c fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	return id, err == nil && id > 0
}
