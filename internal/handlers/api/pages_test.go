package api

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"

	"wikimod/internal/db"
	"wikimod/internal/models"
	"wikimod/internal/validation"
)

type fakePages struct {
	history map[models.Title][]models.Revision
	changes []db.RecentChange
	files   map[string]*db.FileRecord
	limit   int
}

func (f *fakePages) GetPageHistory(_ context.Context, title models.Title, limit int) ([]models.Revision, error) {
	f.limit = limit
	revs := f.history[title]
	return revs[:min(limit, len(revs))], nil
}

func (f *fakePages) GetRecentChanges(_ context.Context, limit int) ([]db.RecentChange, error) {
	f.limit = limit
	return f.changes[:min(limit, len(f.changes))], nil
}

func (f *fakePages) GetFile(_ context.Context, name string) (*db.FileRecord, error) {
	rec, ok := f.files[name]
	if !ok {
		return nil, db.ErrFileNotFound
	}
	return rec, nil
}

func newPagesApp() (*fiber.App, *fakePages) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	foo := models.NewTitle(models.NSMain, "Foo")
	pages := &fakePages{
		history: map[models.Title][]models.Revision{
			foo: {
				{ID: 12, ParentID: 11, UserText: "Bob", Comment: "second", Timestamp: ts, Tags: []string{"mobile edit"}},
				{ID: 11, UserText: "Alice", Comment: "first", Timestamp: ts.Add(-time.Hour)},
			},
		},
		changes: []db.RecentChange{
			{RevID: 12, Title: foo, Kind: "edit", UserText: "Bob", Timestamp: ts},
			{RevID: 5, Title: models.NewTitle(models.NSFile, "Cat.png"), Kind: "upload", UserText: "Alice", Timestamp: ts.Add(-time.Hour)},
		},
		files: map[string]*db.FileRecord{
			"Cat.png": {Name: "Cat.png", ObjectKey: "files/Cat.png", Size: 4, Description: "A cat", UserText: "Alice", CreatedAt: ts},
		},
	}

	h := NewPagesHandler(pages, validation.DefaultTitleParser())
	app := newTestApp()
	app.Get("/history/:ns/:title", h.History)
	app.Get("/recentchanges", h.RecentChanges)
	app.Get("/files/:name/info", h.FileInfo)
	return app, pages
}

func TestPages_History(t *testing.T) {
	app, _ := newPagesApp()
	cl := newClient(t, app)

	env := decode(t, cl.do("GET", "/history/0/Foo", nil, ""))
	got := decodeData[struct {
		Page      string        `json:"page"`
		Revisions []historyItem `json:"revisions"`
	}](t, env)

	if got.Page != "Foo" {
		t.Errorf("page = %q, want Foo", got.Page)
	}
	if len(got.Revisions) != 2 || got.Revisions[0].RevID != 12 || got.Revisions[1].ParentID != 0 {
		t.Fatalf("revisions = %+v, want 12 then 11", got.Revisions)
	}
	if len(got.Revisions[0].Tags) != 1 || got.Revisions[1].Tags == nil {
		t.Errorf("tags = %v / %v, want [mobile edit] and []", got.Revisions[0].Tags, got.Revisions[1].Tags)
	}

	env = decode(t, cl.do("GET", "/history/0/Missing", nil, ""))
	empty := decodeData[struct {
		Revisions []historyItem `json:"revisions"`
	}](t, env)
	if empty.Revisions == nil || len(empty.Revisions) != 0 {
		t.Errorf("missing page revisions = %v, want empty list", empty.Revisions)
	}

	if resp := cl.do("GET", "/history/x/Foo", nil, ""); resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("bad namespace got %d, want 400", resp.StatusCode)
	}
}

func TestPages_RecentChanges(t *testing.T) {
	app, pages := newPagesApp()
	cl := newClient(t, app)

	env := decode(t, cl.do("GET", "/recentchanges?limit=1", nil, ""))
	items := decodeData[[]changeItem](t, env)
	if len(items) != 1 || items[0].RevID != 12 || items[0].Page != "Foo" {
		t.Errorf("items = %+v, want newest change only", items)
	}

	decode(t, cl.do("GET", "/recentchanges?limit=100000", nil, ""))
	if pages.limit != maxListLimit {
		t.Errorf("limit = %d, want capped at %d", pages.limit, maxListLimit)
	}

	env = decode(t, cl.do("GET", "/recentchanges", nil, ""))
	items = decodeData[[]changeItem](t, env)
	if len(items) != 2 || items[1].Page != "File:Cat.png" || items[1].Kind != "upload" {
		t.Errorf("items = %+v, want both changes", items)
	}
	if pages.limit != defaultFeedLimit {
		t.Errorf("limit = %d, want default %d", pages.limit, defaultFeedLimit)
	}

	if resp := cl.do("GET", "/recentchanges?limit=-1", nil, ""); resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("negative limit got %d, want 400", resp.StatusCode)
	}
}

func TestPages_FileInfo(t *testing.T) {
	app, _ := newPagesApp()
	cl := newClient(t, app)

	env := decode(t, cl.do("GET", "/files/Cat.png/info", nil, ""))
	info := decodeData[fileInfo](t, env)
	if info.Name != "Cat.png" || info.Size != 4 || info.Description != "A cat" || info.User != "Alice" {
		t.Errorf("info = %+v, want Cat.png metadata", info)
	}

	resp := cl.do("GET", "/files/Dog.png/info", nil, "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("missing file got %d, want 404", resp.StatusCode)
	}
}
