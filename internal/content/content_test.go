package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikimod/internal/attribution"
	"wikimod/internal/db"
	"wikimod/internal/models"
	"wikimod/internal/stash"
)

// memPages is an in-memory Pages.
type memPages struct {
	latest    map[models.Title]int64
	revisions map[int64]*models.Revision
	params    map[int64]db.SaveRevisionParams
	files     map[string]*db.FileRecord
	nextID    int64
}

func newMemPages() *memPages {
	return &memPages{
		latest:    make(map[models.Title]int64),
		revisions: make(map[int64]*models.Revision),
		params:    make(map[int64]db.SaveRevisionParams),
		files:     make(map[string]*db.FileRecord),
		nextID:    100,
	}
}

func (m *memPages) LatestRevisionID(_ context.Context, title models.Title) (int64, error) {
	return m.latest[title], nil
}

func (m *memPages) GetRevision(_ context.Context, id int64) (*models.Revision, error) {
	rev, ok := m.revisions[id]
	if !ok {
		return nil, db.ErrRevisionNotFound
	}
	return rev, nil
}

func (m *memPages) SaveRevision(_ context.Context, p db.SaveRevisionParams) (int64, error) {
	latest, exists := m.latest[p.Title]
	switch {
	case exists && p.BaseRevID == 0:
		return 0, db.ErrPageExists
	case exists && p.BaseRevID != latest:
		return 0, db.ErrStaleBaseRevision
	}
	m.nextID++
	m.latest[p.Title] = m.nextID
	m.revisions[m.nextID] = &models.Revision{ID: m.nextID, ParentID: latest, Text: p.Text, UserID: p.Author.ID, UserText: p.Author.Name}
	m.params[m.nextID] = p
	return m.nextID, nil
}

func (m *memPages) MovePage(ctx context.Context, from, to models.Title, p db.SaveRevisionParams) (int64, error) {
	latest, ok := m.latest[from]
	if !ok {
		return 0, db.ErrPageNotFound
	}
	if _, taken := m.latest[to]; taken {
		return 0, db.ErrPageExists
	}
	delete(m.latest, from)
	m.latest[to] = latest
	p.Title, p.Text, p.BaseRevID = to, m.revisions[latest].Text, latest
	return m.SaveRevision(ctx, p)
}

func (m *memPages) FinalizeRevision(_ context.Context, revID int64, ts time.Time, author *models.User) error {
	rev, ok := m.revisions[revID]
	if !ok {
		return db.ErrRevisionNotFound
	}
	rev.Timestamp, rev.UserID, rev.UserText = ts, author.ID, author.Name
	return nil
}

func (m *memPages) SaveFile(_ context.Context, f *db.FileRecord) error {
	m.files[f.Name] = f
	return nil
}

func TestStore_CommitEditRecordsOrigin(t *testing.T) {
	pages := newMemPages()
	store := NewStore(pages, stash.New(stash.NewInMemoryObjectStore()))
	author := &models.User{ID: 7, Name: "Alice", Role: models.RoleUser}
	origin := models.Origin{IP: "192.0.2.1", XFF: "198.51.100.2", UserAgent: "ua"}

	ctx := attribution.WithOrigin(context.Background(), origin)
	revID, err := store.CommitEdit(ctx, models.EditCommit{
		Title:  models.NewTitle(models.NSMain, "Foo"),
		Text:   "Hello",
		Author: author,
		Bot:    true,
	})
	require.NoError(t, err)

	p := pages.params[revID]
	assert.Equal(t, origin, p.Origin)
	assert.False(t, p.Bot, "bot flag needs the bot right")

	text, err := store.ContentAt(ctx, revID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestStore_CommitEditConflict(t *testing.T) {
	pages := newMemPages()
	store := NewStore(pages, stash.New(stash.NewInMemoryObjectStore()))
	author := &models.User{ID: 7, Name: "Alice"}
	title := models.NewTitle(models.NSMain, "Foo")
	ctx := context.Background()

	first, err := store.CommitEdit(ctx, models.EditCommit{Title: title, Text: "A", Author: author})
	require.NoError(t, err)
	_, err = store.CommitEdit(ctx, models.EditCommit{Title: title, Text: "B", BaseRevID: first, Author: author})
	require.NoError(t, err)

	_, err = store.CommitEdit(ctx, models.EditCommit{Title: title, Text: "C", BaseRevID: first, Author: author})
	assert.ErrorIs(t, err, ErrEditConflict)

	_, err = store.CommitEdit(ctx, models.EditCommit{Title: title, Text: "D", Author: author})
	assert.ErrorIs(t, err, ErrEditConflict)
}

func TestStore_CommitUpload(t *testing.T) {
	pages := newMemPages()
	files := stash.New(stash.NewInMemoryObjectStore())
	store := NewStore(pages, files)
	author := &models.User{ID: 3, Name: "Uploader"}
	ctx := context.Background()

	key, err := files.Put(ctx, "Cat.png", []byte("meow"))
	require.NoError(t, err)

	title := models.NewTitle(models.NSFile, "Cat.png")
	revID, err := store.CommitUpload(ctx, models.UploadCommit{
		Title:       title,
		StashKey:    key,
		Description: "A cat",
		Author:      author,
	})
	require.NoError(t, err)

	assert.Equal(t, db.ChangeUpload, pages.params[revID].Kind)
	require.Contains(t, pages.files, "Cat.png")
	assert.Equal(t, int64(4), pages.files["Cat.png"].Size)

	has, err := files.Has(ctx, key)
	require.NoError(t, err)
	assert.False(t, has, "stash entry is cleared after a successful commit")

	_, err = store.CommitUpload(ctx, models.UploadCommit{Title: title, StashKey: key, Author: author})
	assert.True(t, errors.Is(err, stash.ErrNotFound))
}

// failingPages fails the configured write.
type failingPages struct {
	*memPages
	failFile     bool
	failRevision bool
}

var errDBDown = errors.New("database unavailable")

func (f *failingPages) SaveFile(ctx context.Context, r *db.FileRecord) error {
	if f.failFile {
		return errDBDown
	}
	return f.memPages.SaveFile(ctx, r)
}

func (f *failingPages) SaveRevision(ctx context.Context, p db.SaveRevisionParams) (int64, error) {
	if f.failRevision {
		return 0, errDBDown
	}
	return f.memPages.SaveRevision(ctx, p)
}

func TestStore_CommitUploadKeepsStashOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		pages *failingPages
	}{
		{"file record fails", &failingPages{memPages: newMemPages(), failFile: true}},
		{"revision fails", &failingPages{memPages: newMemPages(), failRevision: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := stash.New(stash.NewInMemoryObjectStore())
			store := NewStore(tt.pages, files)
			ctx := context.Background()

			key, err := files.Put(ctx, "Cat.png", []byte("meow"))
			require.NoError(t, err)

			commit := models.UploadCommit{
				Title:       models.NewTitle(models.NSFile, "Cat.png"),
				StashKey:    key,
				Description: "A cat",
				Author:      &models.User{ID: 3, Name: "Uploader"},
			}
			_, err = store.CommitUpload(ctx, commit)
			require.ErrorIs(t, err, errDBDown)

			has, err := files.Has(ctx, key)
			require.NoError(t, err)
			assert.True(t, has, "stash entry survives a failed commit")

			_, err = files.Published(ctx, "Cat.png")
			assert.ErrorIs(t, err, stash.ErrNotFound, "published copy is removed")

			tt.pages.failFile, tt.pages.failRevision = false, false
			revID, err := store.CommitUpload(ctx, commit)
			require.NoError(t, err, "retry succeeds once the database recovers")
			assert.Equal(t, db.ChangeUpload, tt.pages.params[revID].Kind)

			data, err := files.Published(ctx, "Cat.png")
			require.NoError(t, err)
			assert.Equal(t, "meow", string(data))
		})
	}
}

func TestStore_CommitMove(t *testing.T) {
	pages := newMemPages()
	store := NewStore(pages, stash.New(stash.NewInMemoryObjectStore()))
	author := &models.User{ID: 3, Name: "Mover"}
	ctx := context.Background()
	from := models.NewTitle(models.NSMain, "Old")
	to := models.NewTitle(models.NSMain, "New")

	_, err := store.CommitEdit(ctx, models.EditCommit{Title: from, Text: "x", Author: author})
	require.NoError(t, err)

	_, err = store.CommitMove(ctx, models.MoveCommit{From: from, To: to, Author: author})
	require.NoError(t, err)

	exists, err := store.PageExists(ctx, to)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.CommitEdit(ctx, models.EditCommit{Title: from, Text: "y", Author: author})
	require.NoError(t, err)
	_, err = store.CommitMove(ctx, models.MoveCommit{From: from, To: to, Author: author})
	assert.ErrorIs(t, err, ErrEditConflict)
}
