// Package content is the live page store: pages, revisions, recent changes
// and published files.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wikimod/internal/attribution"
	"wikimod/internal/db"
	"wikimod/internal/models"
	"wikimod/internal/stash"
)

// ErrEditConflict is returned when the page changed after the revision a
// commit was based on.
var ErrEditConflict = errors.New("page was changed by someone else")

// Pages is the database access used by Store.
type Pages interface {
	LatestRevisionID(ctx context.Context, title models.Title) (int64, error)
	GetRevision(ctx context.Context, id int64) (*models.Revision, error)
	SaveRevision(ctx context.Context, p db.SaveRevisionParams) (int64, error)
	MovePage(ctx context.Context, from, to models.Title, p db.SaveRevisionParams) (int64, error)
	FinalizeRevision(ctx context.Context, revID int64, ts time.Time, author *models.User) error
	SaveFile(ctx context.Context, f *db.FileRecord) error
}

// Store commits changes to the live wiki. Writes are attributed to the origin
// carried by the context, if any.
type Store struct {
	pages Pages
	files *stash.Stash
}

// NewStore creates a content store.
func NewStore(pages Pages, files *stash.Stash) *Store {
	return &Store{pages: pages, files: files}
}

// PageExists reports whether a page exists.
func (s *Store) PageExists(ctx context.Context, title models.Title) (bool, error) {
	latest, err := s.pages.LatestRevisionID(ctx, title)
	return latest != 0, err
}

// CurrentRevisionID returns the latest revision of a page, or 0 if it does
// not exist.
func (s *Store) CurrentRevisionID(ctx context.Context, title models.Title) (int64, error) {
	return s.pages.LatestRevisionID(ctx, title)
}

// ContentAt returns the text of a revision.
func (s *Store) ContentAt(ctx context.Context, revID int64) (string, error) {
	rev, err := s.pages.GetRevision(ctx, revID)
	if err != nil {
		return "", err
	}
	return rev.Text, nil
}

// CommitEdit saves new page text on top of c.BaseRevID.
func (s *Store) CommitEdit(ctx context.Context, c models.EditCommit) (int64, error) {
	origin, _ := attribution.FromContext(ctx)

	revID, err := s.pages.SaveRevision(ctx, db.SaveRevisionParams{
		Title:     c.Title,
		Text:      c.Text,
		Comment:   c.Comment,
		BaseRevID: c.BaseRevID,
		Author:    c.Author,
		Minor:     c.Minor,
		Bot:       c.Bot && c.Author.IsBot(),
		Tags:      c.Tags,
		Origin:    origin,
	})
	if errors.Is(err, db.ErrStaleBaseRevision) || errors.Is(err, db.ErrPageExists) {
		return 0, ErrEditConflict
	}
	return revID, err
}

// CommitUpload publishes a stashed file and records a revision of its file
// description page. The stash entry is only cleared once the revision is
// saved, so a failed commit can be retried.
func (s *Store) CommitUpload(ctx context.Context, c models.UploadCommit) (int64, error) {
	origin, _ := attribution.FromContext(ctx)

	objectKey, size, err := s.files.Publish(ctx, c.StashKey, c.Title.DBKey)
	if err != nil {
		return 0, err
	}

	revID, err := s.recordUpload(ctx, c, objectKey, size, origin)
	if err != nil {
		if uerr := s.files.Unpublish(ctx, c.Title.DBKey); uerr != nil {
			slog.Warn("failed to remove published file", "file", c.Title.DBKey, "error", uerr)
		}
		return 0, err
	}

	if err := s.files.Discard(ctx, c.StashKey); err != nil {
		slog.Warn("failed to clear stash entry", "key", c.StashKey, "error", err)
	}
	return revID, nil
}

func (s *Store) recordUpload(ctx context.Context, c models.UploadCommit, objectKey string, size int64, origin models.Origin) (int64, error) {
	err := s.pages.SaveFile(ctx, &db.FileRecord{
		Name:        c.Title.DBKey,
		ObjectKey:   objectKey,
		Size:        size,
		Description: c.Description,
		UserID:      c.Author.ID,
		UserText:    c.Author.Name,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record file: %w", err)
	}

	latest, err := s.pages.LatestRevisionID(ctx, c.Title)
	if err != nil {
		return 0, err
	}

	return s.pages.SaveRevision(ctx, db.SaveRevisionParams{
		Title:     c.Title,
		Text:      c.Description,
		Comment:   c.Comment,
		BaseRevID: latest,
		Author:    c.Author,
		Tags:      c.Tags,
		Origin:    origin,
		Kind:      db.ChangeUpload,
	})
}

// CommitMove renames a page.
func (s *Store) CommitMove(ctx context.Context, c models.MoveCommit) (int64, error) {
	origin, _ := attribution.FromContext(ctx)

	revID, err := s.pages.MovePage(ctx, c.From, c.To, db.SaveRevisionParams{
		Comment: c.Comment,
		Author:  c.Author,
		Origin:  origin,
	})
	if errors.Is(err, db.ErrPageExists) {
		return 0, ErrEditConflict
	}
	return revID, err
}

// FinalizeRevision backdates a revision to when its change was submitted and
// attributes it to author.
func (s *Store) FinalizeRevision(ctx context.Context, revID int64, ts time.Time, author *models.User) error {
	return s.pages.FinalizeRevision(ctx, revID, ts, author)
}
