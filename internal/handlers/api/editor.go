package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"wikimod/internal/content"
	"wikimod/internal/db"
	"wikimod/internal/intake"
	"wikimod/internal/middleware"
	"wikimod/internal/models"
	"wikimod/internal/preload"
	"wikimod/internal/session"
	"wikimod/internal/stash"
	"wikimod/internal/validation"
)

const maxUploadBytes = 20 << 20

// Editor is the edit surface: live content plus the intake gate.
type Editor interface {
	CurrentRevisionID(ctx context.Context, title models.Title) (int64, error)
	ContentAt(ctx context.Context, revID int64) (string, error)
	CommitEdit(ctx context.Context, c models.EditCommit) (int64, error)
	SubmitUpload(ctx context.Context, u intake.Upload) (int64, error)
}

// Drafts finds the pending drafts of the current visitor.
type Drafts interface {
	IdentityFor(actor *models.User, tokens preload.TokenStore, create bool) (string, bool, error)
	LoadDraft(ctx context.Context, actor *models.User, tokens preload.TokenStore, title models.Title, section string) (*preload.Draft, error)
}

// PublishedFiles serves published uploads.
type PublishedFiles interface {
	Published(ctx context.Context, fileName string) ([]byte, error)
}

// EditorHandler serves the editor and accepts edits and uploads.
type EditorHandler struct {
	editor Editor
	drafts Drafts
	files  PublishedFiles
	titles *validation.TitleParser
}

// NewEditorHandler creates a new editor handler.
func NewEditorHandler(editor Editor, drafts Drafts, files PublishedFiles, titles *validation.TitleParser) *EditorHandler {
	return &EditorHandler{editor: editor, drafts: drafts, files: files, titles: titles}
}

type editorResponse struct {
	Title     string `json:"title"`
	Text      string `json:"text"`
	Comment   string `json:"comment"`
	BaseRevID int64  `json:"base_rev_id"`
	Pending   bool   `json:"pending"`
	EntryID   int64  `json:"entry_id,omitempty"`
}

// Show returns the text the editor opens with: the visitor's own pending
// draft if there is one, else the current page text.
func (h *EditorHandler) Show(c fiber.Ctx) error {
	title, ok := h.title(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid title")
	}
	section := c.Query("section")
	actor := middleware.Actor(c)

	baseRevID, err := h.editor.CurrentRevisionID(c.Context(), title)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to load page")
	}
	resp := editorResponse{Title: title.String(), BaseRevID: baseRevID}

	draft, err := h.drafts.LoadDraft(c.Context(), actor, session.TokensFor(c), title, section)
	if err != nil {
		slog.Error("failed to load pending draft", "page", title.String(), "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "failed to load draft")
	}
	if draft != nil {
		resp.Text, resp.Comment = draft.Text, draft.Comment
		resp.Pending, resp.EntryID = true, draft.EntryID
		return jsonSuccess(c, resp)
	}

	if baseRevID != 0 && section != preload.NewSection {
		text, err := h.editor.ContentAt(c.Context(), baseRevID)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "failed to load page")
		}
		resp.Text = text
		if n, err := strconv.Atoi(section); err == nil {
			if part, ok := preload.ExtractSection(text, n); ok {
				resp.Text = part
			}
		}
	}
	return jsonSuccess(c, resp)
}

// Save submits an edit. Trusted actors commit directly; everyone else has
// the edit queued and gets 202 Accepted.
func (h *EditorHandler) Save(c fiber.Ctx) error {
	title, ok := h.title(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid title")
	}

	var body struct {
		Text      string   `json:"text"`
		Comment   string   `json:"comment"`
		BaseRevID int64    `json:"base_rev_id"`
		Minor     bool     `json:"minor"`
		Bot       bool     `json:"bot"`
		Tags      []string `json:"tags"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	actor := middleware.Actor(c)
	preloadID, err := h.preloadID(c, actor)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to start session")
	}

	revID, err := h.editor.CommitEdit(middleware.Context(c), models.EditCommit{
		Title:     title,
		Text:      body.Text,
		Comment:   body.Comment,
		BaseRevID: body.BaseRevID,
		Author:    actor,
		Minor:     body.Minor,
		Bot:       body.Bot,
		Tags:      body.Tags,
		PreloadID: preloadID,
	})
	return h.respond(c, revID, err)
}

// Upload submits a file from a multipart form (file, comment, description).
func (h *EditorHandler) Upload(c fiber.Ctx) error {
	title, err := h.titles.MakeTitle(models.NSFile, c.Params("title"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid title")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "file is required")
	}
	if fh.Size > maxUploadBytes {
		return jsonError(c, fiber.StatusRequestEntityTooLarge, "file too large")
	}
	f, err := fh.Open()
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "failed to read file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "failed to read file")
	}

	actor := middleware.Actor(c)
	preloadID, err := h.preloadID(c, actor)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to start session")
	}

	revID, err := h.editor.SubmitUpload(middleware.Context(c), intake.Upload{
		Title:       title,
		FileName:    title.DBKey,
		Data:        data,
		Comment:     c.FormValue("comment"),
		Description: c.FormValue("description"),
		Author:      actor,
		PreloadID:   preloadID,
	})
	return h.respond(c, revID, err)
}

// File serves a published upload.
func (h *EditorHandler) File(c fiber.Ctx) error {
	title, err := h.titles.MakeTitle(models.NSFile, c.Params("name"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid file name")
	}

	data, err := h.files.Published(c.Context(), title.DBKey)
	if errors.Is(err, stash.ErrNotFound) {
		return jsonError(c, fiber.StatusNotFound, "file not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to read file")
	}
	return sendFile(c, title.DBKey, data)
}

// preloadID returns the identity a queued change is filed under. Anonymous
// visitors get a session token the first time they submit something.
func (h *EditorHandler) preloadID(c fiber.Ctx, actor *models.User) (string, error) {
	if actor.CanSkipModeration() {
		return "", nil
	}
	id, _, err := h.drafts.IdentityFor(actor, session.TokensFor(c), true)
	return id, err
}

func (h *EditorHandler) respond(c fiber.Ctx, revID int64, err error) error {
	if q, ok := intake.AsQueued(err); ok {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status": "ok",
			"data": fiber.Map{
				"message":  "moderation-edit-queued",
				"queued":   true,
				"entry_id": q.EntryID,
			},
		})
	}

	switch {
	case err == nil:
		return jsonSuccess(c, fiber.Map{"rev_id": revID, "queued": false})
	case errors.Is(err, content.ErrEditConflict):
		return jsonError(c, fiber.StatusConflict, "edit conflict")
	case errors.Is(err, intake.ErrNoPreloadID):
		return jsonError(c, fiber.StatusBadRequest, "a session is required to edit anonymously")
	case errors.Is(err, db.ErrPageNotFound):
		return jsonError(c, fiber.StatusNotFound, "page not found")
	}
	slog.Error("failed to save change", "error", err)
	return jsonError(c, fiber.StatusInternalServerError, "failed to save change")
}

// title parses the :ns and :title route parameters.
func (h *EditorHandler) title(c fiber.Ctx) (models.Title, bool) {
	ns, err := strconv.Atoi(c.Params("ns"))
	if err != nil {
		return models.Title{}, false
	}
	title, err := h.titles.MakeTitle(ns, c.Params("title"))
	return title, err == nil
}

// sendFile writes file data with a content type guessed from its name.
func sendFile(c fiber.Ctx, name string, data []byte) error {
	if ext := path.Ext(name); ext != "" {
		c.Type(ext)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	return c.Send(data)
}
