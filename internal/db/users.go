package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"wikimod/internal/models"
)

const userColumns = `id, COALESCE(sub, ''), name, email, role, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Sub,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertUser creates or updates a user based on their OIDC subject.
// It reports whether the account was newly created.
func (d *DB) UpsertUser(ctx context.Context, user *models.User) (bool, error) {
	query := `
		INSERT INTO users (sub, name, email, role)
		VALUES ($1, $2, $3, COALESCE($4, 'user'))
		ON CONFLICT (sub) DO UPDATE SET
			email = EXCLUDED.email,
			updated_at = NOW()
		RETURNING id, name, role, created_at, updated_at, (xmax = 0)
	`

	var created bool
	err := d.Pool.QueryRow(ctx, query,
		nullIfEmpty(user.Sub),
		user.Name,
		user.Email,
		nullIfEmpty(user.Role),
	).Scan(&user.ID, &user.Name, &user.Role, &user.CreatedAt, &user.UpdatedAt, &created)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, ErrDuplicateUsername
		}
		return false, err
	}
	return created, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetUserBySub retrieves a user by their OIDC subject identifier.
func (d *DB) GetUserBySub(ctx context.Context, sub string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE sub = $1`
	return scanUser(d.Pool.QueryRow(ctx, query, sub))
}

// GetUserByName retrieves a user by their account name.
func (d *DB) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE name = $1`
	return scanUser(d.Pool.QueryRow(ctx, query, name))
}

// GetUserByID retrieves a user by ID.
func (d *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(d.Pool.QueryRow(ctx, query, id))
}

// ResolveActor returns the actor behind a stored author reference. Authors
// with ID 0 are anonymous visitors identified by their IP address.
func (d *DB) ResolveActor(ctx context.Context, id int64, name string) (*models.User, error) {
	if id == 0 {
		return models.NewAnonymous(name), nil
	}
	return d.GetUserByID(ctx, id)
}

// UpdateUserRole updates a user's role (admin only).
func (d *DB) UpdateUserRole(ctx context.Context, userID int64, role string) error {
	query := `UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2`
	tag, err := d.Pool.Exec(ctx, query, role, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetModeratorEmails returns the email addresses of all moderators.
func (d *DB) GetModeratorEmails(ctx context.Context) ([]string, error) {
	query := `
		SELECT email FROM users
		WHERE role IN ('moderator', 'admin') AND email != ''
		ORDER BY id
	`
	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
