// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx/types"

	"github.com/TatyOko28/refresh-system/internal/core"
)

type Repository interface {
	Insert(ctx context.Context, u *User) error
	ByID(ctx context.Context, id string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	SetEnrichment(ctx context.Context, id string, data types.JSONText) error
}

const selectUser = `
	SELECT id, email, password_hash, first_name, last_name, role,
	       email_verified, enrichment, created_at, updated_at
	FROM users`

type repository struct {
	db core.DBTX
}

// NewRepository works against the pool or a transaction alike.
func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, u *User) error {
	const q = `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, email_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, q,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.EmailVerified,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	switch {
	case core.IsDuplicateKeyError(err):
		return fmt.Errorf("insert user: %w", core.ErrDuplicateKey)
	case err != nil:
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *repository) ByID(ctx context.Context, id string) (*User, error) {
	return r.one(ctx, "user by id", selectUser+` WHERE id = $1`, id)
}

func (r *repository) ByEmail(ctx context.Context, email string) (*User, error) {
	return r.one(ctx, "user by email", selectUser+` WHERE email = $1`, email)
}

func (r *repository) one(ctx context.Context, op, q string, arg any) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, q, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

func (r *repository) EmailTaken(ctx context.Context, email string) (bool, error) {
	var taken bool
	err := r.db.GetContext(ctx, &taken,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email)
	if err != nil {
		return false, fmt.Errorf("email taken: %w", err)
	}
	return taken, nil
}

func (r *repository) SetPasswordHash(ctx context.Context, id, hash string) error {
	return r.touch(ctx, "set password hash", `password_hash = $2`, id, hash)
}

func (r *repository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.touch(ctx, "mark email verified", `email_verified = TRUE`, id)
}

func (r *repository) SetEnrichment(ctx context.Context, id string, data types.JSONText) error {
	return r.touch(ctx, "set enrichment", `enrichment = $2`, id, data)
}

// touch applies set to one row and bumps updated_at. A missing row is
// core.ErrNotFound.
func (r *repository) touch(ctx context.Context, op, set, id string, args ...any) error {
	q := `UPDATE users SET ` + set + `, updated_at = NOW() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, q, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return nil
}
