package db

import (
	"context"

	"wikimod/internal/models"
)

// RecordLog appends an entry to the moderation log.
func (d *DB) RecordLog(ctx context.Context, entry *models.LogEntry) error {
	params := entry.Params
	if params == nil {
		params = map[string]any{}
	}

	query := `
		INSERT INTO moderation_log (action, performer_id, performer_text, namespace, title, params)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, timestamp
	`
	return d.Pool.QueryRow(ctx, query,
		entry.Action, entry.PerformerID, entry.PerformerText,
		entry.Target.Namespace, entry.Target.DBKey, params,
	).Scan(&entry.ID, &entry.Timestamp)
}

// ListLog returns the newest moderation log entries.
func (d *DB) ListLog(ctx context.Context, limit int) ([]models.LogEntry, error) {
	query := `
		SELECT id, action, performer_id, performer_text, namespace, title, params, timestamp
		FROM moderation_log
		ORDER BY id DESC
		LIMIT $1
	`
	rows, err := d.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(
			&e.ID, &e.Action, &e.PerformerID, &e.PerformerText,
			&e.Target.Namespace, &e.Target.DBKey, &e.Params, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
