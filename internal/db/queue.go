package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wikimod/internal/models"
)

const queueColumns = `
	id, timestamp, user_id, user_text, type, namespace, title, page2_namespace, page2_title,
	comment, minor, bot, last_oldid, ip, header_xff, header_ua, preload_id,
	rejected, rejected_by_user, COALESCE(rejected_by_user_text, ''), rejected_batch,
	merged_rev_id, conflict, preloadable, text, stash_key, COALESCE(tags, '{}')
`

func scanQueueEntry(row pgx.Row) (*models.QueueEntry, error) {
	var (
		e         models.QueueEntry
		rowType   string
		text      string
		baseRevID int64
		stashKey  *string
		page2NS   *int
		page2Key  *string
	)
	err := row.Scan(
		&e.ID, &e.Timestamp, &e.UserID, &e.UserText, &rowType, &e.Title.Namespace, &e.Title.DBKey, &page2NS, &page2Key,
		&e.Comment, &e.Minor, &e.Bot, &baseRevID, &e.Origin.IP, &e.Origin.XFF, &e.Origin.UserAgent, &e.PreloadID,
		&e.Rejected, &e.RejectedByID, &e.RejectedByText, &e.RejectedBatch,
		&e.MergedRevID, &e.Conflict, &e.Preloadable, &text, &stashKey, &e.Tags,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQueueEntryNotFound
	}
	if err != nil {
		return nil, err
	}

	var page2 *models.Title
	if page2NS != nil && page2Key != nil {
		page2 = &models.Title{Namespace: *page2NS, DBKey: *page2Key}
	}
	e.Payload = models.DecodePayload(rowType, text, baseRevID, stashKey, page2)
	return &e, nil
}

func collectQueueEntries(rows pgx.Rows) ([]models.QueueEntry, error) {
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EnqueueChange stores a change for review. If the author already has a
// draft of the same page that can be continued, that draft is replaced.
func (d *DB) EnqueueChange(ctx context.Context, e *models.QueueEntry) error {
	var (
		rowType   = string(models.KindEdit)
		text      string
		baseRevID int64
		stashKey  *string
		page2NS   *int
		page2Key  *string
	)
	switch p := e.Payload.(type) {
	case *models.EditPayload:
		text, baseRevID = p.Text, p.BaseRevID
	case *models.UploadPayload:
		text, stashKey = p.Description, &p.StashKey
	case *models.MovePayload:
		rowType = string(models.KindMove)
		page2NS, page2Key = &p.NewTitle.Namespace, &p.NewTitle.DBKey
	default:
		return fmt.Errorf("unsupported payload %T", e.Payload)
	}

	query := `
		INSERT INTO moderation (
			user_id, user_text, type, namespace, title, page2_namespace, page2_title,
			comment, minor, bot, new, last_oldid, ip, header_xff, header_ua, preload_id,
			text, stash_key, tags
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (preload_id, namespace, title) WHERE preloadable AND merged_rev_id IS NULL
		DO UPDATE SET
			timestamp = NOW(),
			user_id = EXCLUDED.user_id,
			user_text = EXCLUDED.user_text,
			type = EXCLUDED.type,
			page2_namespace = EXCLUDED.page2_namespace,
			page2_title = EXCLUDED.page2_title,
			comment = EXCLUDED.comment,
			minor = EXCLUDED.minor,
			bot = EXCLUDED.bot,
			last_oldid = EXCLUDED.last_oldid,
			ip = EXCLUDED.ip,
			header_xff = EXCLUDED.header_xff,
			header_ua = EXCLUDED.header_ua,
			text = EXCLUDED.text,
			stash_key = EXCLUDED.stash_key,
			tags = EXCLUDED.tags,
			rejected = FALSE,
			rejected_by_user = 0,
			rejected_by_user_text = NULL,
			rejected_batch = FALSE,
			conflict = FALSE
		RETURNING id, timestamp, preloadable
	`
	return d.Pool.QueryRow(ctx, query,
		e.UserID, e.UserText, rowType, e.Title.Namespace, e.Title.DBKey, page2NS, page2Key,
		e.Comment, e.Minor, e.Bot, baseRevID == 0 && rowType == string(models.KindEdit), baseRevID,
		e.Origin.IP, e.Origin.XFF, e.Origin.UserAgent, e.PreloadID,
		text, stashKey, e.Tags,
	).Scan(&e.ID, &e.Timestamp, &e.Preloadable)
}

// GetQueueEntry retrieves a queue entry by ID.
func (d *DB) GetQueueEntry(ctx context.Context, id int64) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM moderation WHERE id = $1`
	return scanQueueEntry(d.Pool.QueryRow(ctx, query, id))
}

// ListPendingEntries returns entries waiting for review, newest first.
func (d *DB) ListPendingEntries(ctx context.Context, limit int) ([]models.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM moderation
		WHERE NOT rejected AND merged_rev_id IS NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`
	rows, err := d.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return collectQueueEntries(rows)
}

// ListRejectedEntries returns rejected entries that were never merged, newest first.
func (d *DB) ListRejectedEntries(ctx context.Context, limit int) ([]models.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM moderation
		WHERE rejected AND merged_rev_id IS NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`
	rows, err := d.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return collectQueueEntries(rows)
}

// CountPendingEntries returns the number of entries waiting for review.
func (d *DB) CountPendingEntries(ctx context.Context) (int, error) {
	var count int
	err := d.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM moderation WHERE NOT rejected AND merged_rev_id IS NULL`,
	).Scan(&count)
	return count, err
}

// NewestPendingTimestamp returns the submission time of the newest entry
// waiting for review. ok is false when the queue is empty.
func (d *DB) NewestPendingTimestamp(ctx context.Context) (ts time.Time, ok bool, err error) {
	var newest *time.Time
	err = d.Pool.QueryRow(ctx,
		`SELECT MAX(timestamp) FROM moderation WHERE NOT rejected AND merged_rev_id IS NULL`,
	).Scan(&newest)
	if err != nil || newest == nil {
		return time.Time{}, false, err
	}
	return *newest, true, nil
}

// AuthorOf returns the author name of a queue entry.
func (d *DB) AuthorOf(ctx context.Context, id int64) (string, error) {
	var userText string
	err := d.Pool.QueryRow(ctx, `SELECT user_text FROM moderation WHERE id = $1`, id).Scan(&userText)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrQueueEntryNotFound
	}
	return userText, err
}

// MarkConflict flags an entry whose changes could not be merged automatically.
func (d *DB) MarkConflict(ctx context.Context, id int64) error {
	_, err := d.Pool.Exec(ctx, `UPDATE moderation SET conflict = TRUE WHERE id = $1`, id)
	return err
}

// DeleteQueueEntry removes an entry from the queue.
func (d *DB) DeleteQueueEntry(ctx context.Context, id int64) error {
	_, err := d.Pool.Exec(ctx, `DELETE FROM moderation WHERE id = $1`, id)
	return err
}

// SelectApprovable returns the IDs of an author's entries that can be
// approved in a batch. Uploads come first so that pages using them never
// show a missing file.
func (d *DB) SelectApprovable(ctx context.Context, userText string) ([]int64, error) {
	query := `
		SELECT id FROM moderation
		WHERE user_text = $1 AND NOT rejected AND NOT conflict AND merged_rev_id IS NULL
		ORDER BY stash_key IS NULL, id
	`
	rows, err := d.Pool.Query(ctx, query, userText)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// SelectRejectable returns the IDs of an author's entries that can still be rejected.
func (d *DB) SelectRejectable(ctx context.Context, userText string) ([]int64, error) {
	query := `
		SELECT id FROM moderation
		WHERE user_text = $1 AND NOT rejected AND merged_rev_id IS NULL
		ORDER BY id
	`
	rows, err := d.Pool.Query(ctx, query, userText)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// RejectEntry marks an entry as rejected unless it was merged in the meantime.
// It reports whether a row was changed.
func (d *DB) RejectEntry(ctx context.Context, id int64, moderator *models.User) (bool, error) {
	query := `
		UPDATE moderation SET
			rejected = TRUE,
			rejected_by_user = $2,
			rejected_by_user_text = $3,
			preloadable = FALSE
		WHERE id = $1 AND merged_rev_id IS NULL
	`
	tag, err := d.Pool.Exec(ctx, query, id, moderator.ID, moderator.Name)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RejectEntries rejects the given entries as one batch action. Entries merged
// or rejected since they were selected are left alone.
func (d *DB) RejectEntries(ctx context.Context, ids []int64, moderator *models.User) (int64, error) {
	query := `
		UPDATE moderation SET
			rejected = TRUE,
			rejected_by_user = $2,
			rejected_by_user_text = $3,
			rejected_batch = TRUE,
			preloadable = FALSE
		WHERE id = ANY($1) AND NOT rejected AND merged_rev_id IS NULL
	`
	tag, err := d.Pool.Exec(ctx, query, ids, moderator.ID, moderator.Name)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkMerged records the revision that resolved a conflicted entry. It only
// succeeds once per entry.
func (d *DB) MarkMerged(ctx context.Context, id, revID int64) (bool, error) {
	query := `
		UPDATE moderation SET merged_rev_id = $2, conflict = FALSE, preloadable = FALSE
		WHERE id = $1 AND merged_rev_id IS NULL
	`
	tag, err := d.Pool.Exec(ctx, query, id, revID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FindPendingEdit returns the newest edit of a page that its author can still
// continue working on.
func (d *DB) FindPendingEdit(ctx context.Context, preloadID string, title models.Title) (*models.PendingEdit, error) {
	query := `
		SELECT id, namespace, title, text, comment, timestamp
		FROM moderation
		WHERE preload_id = $1 AND namespace = $2 AND title = $3
			AND preloadable AND merged_rev_id IS NULL
			AND type = 'edit' AND stash_key IS NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`
	var pe models.PendingEdit
	err := d.Pool.QueryRow(ctx, query, preloadID, title.Namespace, title.DBKey).Scan(
		&pe.EntryID, &pe.Title.Namespace, &pe.Title.DBKey, &pe.Text, &pe.Comment, &pe.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQueueEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pe, nil
}

// RekeyPreloadID moves all entries of one preload identity to another and
// attributes them to user. Drafts that would collide with an existing draft of
// the new identity stop being preloadable. Running it twice changes nothing.
func (d *DB) RekeyPreloadID(ctx context.Context, from, to string, user *models.User) (int64, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE moderation m SET preloadable = FALSE
		WHERE m.preload_id = $1 AND m.preloadable AND EXISTS (
			SELECT 1 FROM moderation o
			WHERE o.preload_id = $2 AND o.namespace = m.namespace AND o.title = m.title
				AND o.preloadable AND o.merged_rev_id IS NULL
		)
	`, from, to)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE moderation SET preload_id = $2, user_id = $3, user_text = $4
		WHERE preload_id = $1
	`, from, to, user.ID, user.Name)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
