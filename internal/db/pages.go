package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"wikimod/internal/models"
)

// Change kinds written to recent_changes.
const (
	ChangeEdit   = "edit"
	ChangeNew    = "new"
	ChangeUpload = "upload"
	ChangeMove   = "move"
)

// SaveRevisionParams describes a new revision of a page.
type SaveRevisionParams struct {
	Title   models.Title
	Text    string
	Comment string
	// BaseRevID is the revision the text was written against. 0 creates a
	// new page and fails with ErrPageExists if it is already there.
	BaseRevID int64
	Author    *models.User
	Minor     bool
	Bot       bool
	Tags      []string
	Origin    models.Origin
	Kind      string
}

// GetPage retrieves a page by title.
func (d *DB) GetPage(ctx context.Context, title models.Title) (*models.Page, error) {
	query := `
		SELECT id, namespace, title, latest_rev_id, created_at
		FROM pages WHERE namespace = $1 AND title = $2
	`
	var page models.Page
	err := d.Pool.QueryRow(ctx, query, title.Namespace, title.DBKey).Scan(
		&page.ID, &page.Title.Namespace, &page.Title.DBKey, &page.LatestRevID, &page.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// LatestRevisionID returns the current revision of a page, or 0 if the page
// does not exist. Always reads from the primary.
func (d *DB) LatestRevisionID(ctx context.Context, title models.Title) (int64, error) {
	page, err := d.GetPage(ctx, title)
	if errors.Is(err, ErrPageNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return page.LatestRevID, nil
}

// GetRevision retrieves a revision by ID.
func (d *DB) GetRevision(ctx context.Context, id int64) (*models.Revision, error) {
	query := `
		SELECT id, page_id, parent_id, text, comment, user_id, user_text, minor, timestamp, COALESCE(tags, '{}')
		FROM revisions WHERE id = $1
	`
	var rev models.Revision
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&rev.ID, &rev.PageID, &rev.ParentID, &rev.Text, &rev.Comment,
		&rev.UserID, &rev.UserText, &rev.Minor, &rev.Timestamp, &rev.Tags,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRevisionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

// GetPageHistory returns the revisions of a page, newest first.
func (d *DB) GetPageHistory(ctx context.Context, title models.Title, limit int) ([]models.Revision, error) {
	query := `
		SELECT r.id, r.page_id, r.parent_id, r.text, r.comment, r.user_id, r.user_text, r.minor, r.timestamp, COALESCE(r.tags, '{}')
		FROM revisions r
		JOIN pages p ON p.id = r.page_id
		WHERE p.namespace = $1 AND p.title = $2
		ORDER BY r.id DESC
		LIMIT $3
	`
	rows, err := d.Pool.Query(ctx, query, title.Namespace, title.DBKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revs []models.Revision
	for rows.Next() {
		var rev models.Revision
		if err := rows.Scan(
			&rev.ID, &rev.PageID, &rev.ParentID, &rev.Text, &rev.Comment,
			&rev.UserID, &rev.UserText, &rev.Minor, &rev.Timestamp, &rev.Tags,
		); err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

// SaveRevision stores a new revision and makes it the latest revision of the
// page. The base revision check and the write happen in one transaction.
func (d *DB) SaveRevision(ctx context.Context, p SaveRevisionParams) (int64, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var pageID, latest int64
	err = tx.QueryRow(ctx,
		`SELECT id, latest_rev_id FROM pages WHERE namespace = $1 AND title = $2 FOR UPDATE`,
		p.Title.Namespace, p.Title.DBKey,
	).Scan(&pageID, &latest)

	kind := p.Kind
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if p.BaseRevID != 0 {
			return 0, ErrPageNotFound
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO pages (namespace, title) VALUES ($1, $2) RETURNING id`,
			p.Title.Namespace, p.Title.DBKey,
		).Scan(&pageID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return 0, ErrPageExists
			}
			return 0, fmt.Errorf("failed to create page: %w", err)
		}
		if kind == "" {
			kind = ChangeNew
		}
	case err != nil:
		return 0, err
	case p.BaseRevID == 0:
		return 0, ErrPageExists
	case p.BaseRevID != latest:
		return 0, ErrStaleBaseRevision
	}
	if kind == "" {
		kind = ChangeEdit
	}

	revID, err := insertRevision(ctx, tx, pageID, latest, p, kind)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return revID, nil
}

func insertRevision(ctx context.Context, tx pgx.Tx, pageID, parentID int64, p SaveRevisionParams, kind string) (int64, error) {
	var revID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO revisions (page_id, parent_id, text, comment, user_id, user_text, minor, ip, xff, user_agent, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`,
		pageID, parentID, p.Text, p.Comment, p.Author.ID, p.Author.Name, p.Minor,
		p.Origin.IP, p.Origin.XFF, p.Origin.UserAgent, p.Tags,
	).Scan(&revID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert revision: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE pages SET latest_rev_id = $1 WHERE id = $2`, revID, pageID); err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO recent_changes (rev_id, namespace, title, kind, user_id, user_text, comment, minor, bot, ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		revID, p.Title.Namespace, p.Title.DBKey, kind, p.Author.ID, p.Author.Name,
		p.Comment, p.Minor, p.Bot, p.Origin.IP,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert recent change: %w", err)
	}
	return revID, nil
}

// MovePage renames a page and records a null revision carrying the move
// comment. The target title must be free.
func (d *DB) MovePage(ctx context.Context, from, to models.Title, p SaveRevisionParams) (int64, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var pageID, latest int64
	err = tx.QueryRow(ctx,
		`SELECT id, latest_rev_id FROM pages WHERE namespace = $1 AND title = $2 FOR UPDATE`,
		from.Namespace, from.DBKey,
	).Scan(&pageID, &latest)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrPageNotFound
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `UPDATE pages SET namespace = $1, title = $2 WHERE id = $3`,
		to.Namespace, to.DBKey, pageID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrPageExists
		}
		return 0, err
	}

	var text string
	if err := tx.QueryRow(ctx, `SELECT text FROM revisions WHERE id = $1`, latest).Scan(&text); err != nil {
		return 0, fmt.Errorf("failed to load latest revision: %w", err)
	}

	p.Title = to
	p.Text = text
	revID, err := insertRevision(ctx, tx, pageID, latest, p, ChangeMove)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return revID, nil
}

// FinalizeRevision backdates a revision and sets its author. The matching
// recent change keeps the time it was saved at.
func (d *DB) FinalizeRevision(ctx context.Context, revID int64, ts time.Time, author *models.User) error {
	tag, err := d.Pool.Exec(ctx,
		`UPDATE revisions SET timestamp = $1, user_id = $2, user_text = $3 WHERE id = $4`,
		ts, author.ID, author.Name, revID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRevisionNotFound
	}
	return nil
}

// FileRecord is a published upload.
type FileRecord struct {
	Name        string
	ObjectKey   string
	Size        int64
	Description string
	UserID      int64
	UserText    string
	CreatedAt   time.Time
}

// SaveFile records a published file, replacing any previous version.
func (d *DB) SaveFile(ctx context.Context, f *FileRecord) error {
	query := `
		INSERT INTO files (name, object_key, size, description, user_id, user_text)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			object_key = EXCLUDED.object_key,
			size = EXCLUDED.size,
			description = EXCLUDED.description,
			user_id = EXCLUDED.user_id,
			user_text = EXCLUDED.user_text,
			created_at = NOW()
		RETURNING created_at
	`
	return d.Pool.QueryRow(ctx, query,
		f.Name, f.ObjectKey, f.Size, f.Description, f.UserID, f.UserText,
	).Scan(&f.CreatedAt)
}

// GetFile retrieves a published file by name.
func (d *DB) GetFile(ctx context.Context, name string) (*FileRecord, error) {
	query := `
		SELECT name, object_key, size, description, user_id, user_text, created_at
		FROM files WHERE name = $1
	`
	var f FileRecord
	err := d.Pool.QueryRow(ctx, query, name).Scan(
		&f.Name, &f.ObjectKey, &f.Size, &f.Description, &f.UserID, &f.UserText, &f.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// RecentChange is one row of the recent changes feed.
type RecentChange struct {
	RevID     int64
	Title     models.Title
	Kind      string
	UserText  string
	Comment   string
	Timestamp time.Time
}

// GetRecentChanges returns the newest entries of the recent changes feed.
func (d *DB) GetRecentChanges(ctx context.Context, limit int) ([]RecentChange, error) {
	query := `
		SELECT rev_id, namespace, title, kind, user_text, comment, timestamp
		FROM recent_changes
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`
	rows, err := d.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []RecentChange
	for rows.Next() {
		var rc RecentChange
		if err := rows.Scan(&rc.RevID, &rc.Title.Namespace, &rc.Title.DBKey, &rc.Kind, &rc.UserText, &rc.Comment, &rc.Timestamp); err != nil {
			return nil, err
		}
		changes = append(changes, rc)
	}
	return changes, rows.Err()
}
