package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"wikimod/internal/db"
	"wikimod/internal/models"
	"wikimod/internal/validation"
)

const defaultFeedLimit = 50

// PageReader reads the live wiki.
type PageReader interface {
	GetPageHistory(ctx context.Context, title models.Title, limit int) ([]models.Revision, error)
	GetRecentChanges(ctx context.Context, limit int) ([]db.RecentChange, error)
	GetFile(ctx context.Context, name string) (*db.FileRecord, error)
}

// PagesHandler serves read-only views of the live wiki.
type PagesHandler struct {
	pages  PageReader
	titles *validation.TitleParser
}

// NewPagesHandler creates a new pages handler.
func NewPagesHandler(pages PageReader, titles *validation.TitleParser) *PagesHandler {
	return &PagesHandler{pages: pages, titles: titles}
}

type historyItem struct {
	RevID     int64     `json:"rev_id"`
	ParentID  int64     `json:"parent_id"`
	User      string    `json:"user"`
	Comment   string    `json:"comment"`
	Minor     bool      `json:"minor"`
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags"`
}

type changeItem struct {
	RevID     int64     `json:"rev_id"`
	Page      string    `json:"page"`
	Kind      string    `json:"kind"`
	User      string    `json:"user"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

type fileInfo struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Description string    `json:"description"`
	User        string    `json:"user"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// History lists the revisions of a page, newest first.
func (h *PagesHandler) History(c fiber.Ctx) error {
	ns, err := strconv.Atoi(c.Params("ns"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid title")
	}
	title, err := h.titles.MakeTitle(ns, c.Params("title"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid title")
	}
	limit, ok := feedLimit(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid limit")
	}

	revs, err := h.pages.GetPageHistory(c.Context(), title, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch history")
	}

	items := make([]historyItem, 0, len(revs))
	for _, r := range revs {
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		items = append(items, historyItem{
			RevID:     r.ID,
			ParentID:  r.ParentID,
			User:      r.UserText,
			Comment:   r.Comment,
			Minor:     r.Minor,
			Timestamp: r.Timestamp,
			Tags:      tags,
		})
	}
	return jsonSuccess(c, fiber.Map{"page": title.String(), "revisions": items})
}

// RecentChanges returns the newest entries of the recent changes feed.
func (h *PagesHandler) RecentChanges(c fiber.Ctx) error {
	limit, ok := feedLimit(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid limit")
	}

	changes, err := h.pages.GetRecentChanges(c.Context(), limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch recent changes")
	}

	items := make([]changeItem, 0, len(changes))
	for _, rc := range changes {
		items = append(items, changeItem{
			RevID:     rc.RevID,
			Page:      rc.Title.String(),
			Kind:      rc.Kind,
			User:      rc.UserText,
			Comment:   rc.Comment,
			Timestamp: rc.Timestamp,
		})
	}
	return jsonSuccess(c, items)
}

// FileInfo returns the metadata of a published file.
func (h *PagesHandler) FileInfo(c fiber.Ctx) error {
	title, err := h.titles.MakeTitle(models.NSFile, c.Params("name"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid file name")
	}

	f, err := h.pages.GetFile(c.Context(), title.DBKey)
	if errors.Is(err, db.ErrFileNotFound) {
		return jsonError(c, fiber.StatusNotFound, "file not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch file")
	}
	return jsonSuccess(c, fileInfo{
		Name:        f.Name,
		Size:        f.Size,
		Description: f.Description,
		User:        f.UserText,
		UploadedAt:  f.CreatedAt,
	})
}

func feedLimit(c fiber.Ctx) (int, bool) {
	v := c.Query("limit")
	if v == "" {
		return defaultFeedLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxListLimit), true
}
