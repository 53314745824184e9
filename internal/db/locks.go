package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// ClaimTTL is how long a claim on a queue entry lasts before another
// moderator may take it over. It only matters if the holder died without
// releasing the claim.
const ClaimTTL = 5 * time.Minute

const releaseTimeout = 5 * time.Second

// LockEntry claims a queue entry so that only one moderator acts on it at a
// time. It fails with ErrEntryLocked if the entry is claimed elsewhere. The
// claim is a row in moderation_claims, so no connection is held while the
// caller works. The returned function releases the claim.
func (d *DB) LockEntry(ctx context.Context, id int64) (func(), error) {
	var claimed int64
	err := d.Pool.QueryRow(ctx, `
		INSERT INTO moderation_claims (mod_id, claimed_at)
		VALUES ($1, NOW())
		ON CONFLICT (mod_id) DO UPDATE SET claimed_at = NOW()
		WHERE moderation_claims.claimed_at < NOW() - make_interval(secs => $2)
		RETURNING mod_id
	`, id, ClaimTTL.Seconds()).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryLocked
	}
	if err != nil {
		return nil, err
	}

	return func() {
		// The caller's context may already be done; the claim must still go.
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if _, err := d.Pool.Exec(ctx, `DELETE FROM moderation_claims WHERE mod_id = $1`, id); err != nil {
			slog.Error("failed to release queue entry claim", "entry_id", id, "error", err)
		}
	}, nil
}
