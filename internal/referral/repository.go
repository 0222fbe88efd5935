// AngelaMos | 2026
// repository.go

package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TatyOko28/refresh-system/internal/core"
)

// Repository is the persistence surface for codes and referral edges. The
// same implementation runs on the pool or inside a transaction.
type Repository interface {
	LockOwner(ctx context.Context, ownerID string) error
	DeactivateAllForOwner(ctx context.Context, ownerID string) (int64, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateCode(ctx context.Context, code *Code) error
	FindActiveByCode(ctx context.Context, code string, now time.Time) (*Code, error)
	LockActiveByCode(ctx context.Context, code string, now time.Time) (*Code, error)
	FindActiveByOwner(ctx context.Context, ownerID string, now time.Time) (*Code, error)
	Deactivate(ctx context.Context, code, ownerID string) error
	DeactivateByID(ctx context.Context, id string) error
	CreateReferral(ctx context.Context, ref *Referral) error
	CountByReferrer(ctx context.Context, referrerID string) (int, error)
	ListByReferrer(ctx context.Context, referrerID string, limit int) ([]Entry, error)
	Totals(ctx context.Context) (*Totals, error)
}

const codeColumns = `id, owner_id, code, is_active, expires_at, created_at`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

// LockOwner takes a row lock on the owner so concurrent rotations for the
// same user serialize.
func (r *repository) LockOwner(ctx context.Context, ownerID string) error {
	query := `
		SELECT id FROM users
		WHERE id = $1
		FOR UPDATE`

	var id string
	err := r.db.GetContext(ctx, &id, query, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lock owner: %w", core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock owner: %w", err)
	}

	return nil
}

func (r *repository) DeactivateAllForOwner(
	ctx context.Context,
	ownerID string,
) (int64, error) {
	query := `
		UPDATE referral_codes
		SET is_active = FALSE
		WHERE owner_id = $1 AND is_active`

	result, err := r.db.ExecContext(ctx, query, ownerID)
	if err != nil {
		return 0, fmt.Errorf("deactivate owner codes: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate owner codes: %w", err)
	}

	return n, nil
}

func (r *repository) CodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM referral_codes WHERE code = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		return false, fmt.Errorf("check code exists: %w", err)
	}

	return exists, nil
}

func (r *repository) CreateCode(ctx context.Context, code *Code) error {
	query := `
		INSERT INTO referral_codes (id, owner_id, code, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &code.CreatedAt, query,
		code.ID,
		code.OwnerID,
		code.Code,
		code.IsActive,
		code.ExpiresAt,
	)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("create code: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create code: %w", err)
	}

	return nil
}

func (r *repository) FindActiveByCode(
	ctx context.Context,
	code string,
	now time.Time,
) (*Code, error) {
	return r.findOne(ctx, "find code", `SELECT `+codeColumns+`
		FROM referral_codes
		WHERE code = $1 AND is_active AND expires_at > $2`, code, now)
}

// LockActiveByCode is FindActiveByCode plus a row lock, so a concurrent
// revoke cannot slip in between verification and linking.
func (r *repository) LockActiveByCode(
	ctx context.Context,
	code string,
	now time.Time,
) (*Code, error) {
	return r.findOne(ctx, "lock code", `SELECT `+codeColumns+`
		FROM referral_codes
		WHERE code = $1 AND is_active AND expires_at > $2
		FOR UPDATE`, code, now)
}

func (r *repository) FindActiveByOwner(
	ctx context.Context,
	ownerID string,
	now time.Time,
) (*Code, error) {
	return r.findOne(ctx, "find owner code", `SELECT `+codeColumns+`
		FROM referral_codes
		WHERE owner_id = $1 AND is_active AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`, ownerID, now)
}

func (r *repository) findOne(
	ctx context.Context,
	op, query string,
	args ...any,
) (*Code, error) {
	var code Code
	err := r.db.GetContext(ctx, &code, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &code, nil
}

func (r *repository) Deactivate(ctx context.Context, code, ownerID string) error {
	query := `
		UPDATE referral_codes
		SET is_active = FALSE
		WHERE code = $1 AND owner_id = $2 AND is_active`

	return r.execOne(ctx, "revoke code", query, code, ownerID)
}

func (r *repository) DeactivateByID(ctx context.Context, id string) error {
	query := `
		UPDATE referral_codes
		SET is_active = FALSE
		WHERE id = $1 AND is_active`

	return r.execOne(ctx, "deactivate code", query, id)
}

func (r *repository) CreateReferral(ctx context.Context, ref *Referral) error {
	query := `
		INSERT INTO referrals (id, referrer_id, referred_id, referral_code_id)
		VALUES ($1, $2, $3, $4)
		RETURNING seq, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		ref.ID,
		ref.ReferrerID,
		ref.ReferredID,
		ref.ReferralCodeID,
	).Scan(&ref.Seq, &ref.CreatedAt)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("create referral: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create referral: %w", err)
	}

	return nil
}

func (r *repository) CountByReferrer(
	ctx context.Context,
	referrerID string,
) (int, error) {
	query := `SELECT COUNT(*) FROM referrals WHERE referrer_id = $1`

	var n int
	if err := r.db.GetContext(ctx, &n, query, referrerID); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}

	return n, nil
}

// ListByReferrer returns edges newest first, with insertion order breaking
// timestamp ties. limit <= 0 returns every edge.
func (r *repository) ListByReferrer(
	ctx context.Context,
	referrerID string,
	limit int,
) ([]Entry, error) {
	query := `
		SELECT r.id, referrer.email AS referrer_email,
		       referred.email AS referred_email, c.code, r.created_at
		FROM referrals r
		JOIN users referrer ON referrer.id = r.referrer_id
		JOIN users referred ON referred.id = r.referred_id
		JOIN referral_codes c ON c.id = r.referral_code_id
		WHERE r.referrer_id = $1
		ORDER BY r.created_at DESC, r.seq ASC`

	args := []any{referrerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	entries := []Entry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}

	return entries, nil
}

func (r *repository) Totals(ctx context.Context) (*Totals, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM referral_codes) AS codes,
			(SELECT COUNT(*) FROM referral_codes
			 WHERE is_active AND expires_at > NOW()) AS active_codes,
			(SELECT COUNT(*) FROM referrals) AS referrals`

	var t Totals
	if err := r.db.GetContext(ctx, &t, query); err != nil {
		return nil, fmt.Errorf("referral totals: %w", err)
	}

	return &t, nil
}

func (r *repository) execOne(
	ctx context.Context,
	op, query string,
	args ...any,
) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rows == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return nil
}
