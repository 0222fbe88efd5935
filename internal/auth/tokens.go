// AngelaMos | 2026
// tokens.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TatyOko28/refresh-system/internal/core"
)

// RefreshToken is the stored half of an opaque refresh token. Only the
// SHA-256 digest of the token is persisted.
type RefreshToken struct {
	ID        string     `db:"id"`
	UserID    string     `db:"user_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at"`
	RevokedAt *time.Time `db:"revoked_at"`
	UserAgent string     `db:"user_agent"`
	IPAddress string     `db:"ip_address"`
}

// RefreshTokens persists refresh tokens. Consume is single use: of two
// concurrent calls with the same hash exactly one succeeds.
type RefreshTokens interface {
	Save(ctx context.Context, t *RefreshToken) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)
	Revoke(ctx context.Context, tokenHash, userID string) error
	Purge(ctx context.Context, expiredBefore time.Time) (int64, error)
}

type tokenStore struct {
	db core.DBTX
}

func NewTokenStore(db core.DBTX) RefreshTokens {
	return &tokenStore{db: db}
}

func (s *tokenStore) Save(ctx context.Context, t *RefreshToken) error {
	const q = `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := s.db.GetContext(ctx, &t.CreatedAt, q,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.UserAgent, t.IPAddress)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// Consume revokes the token and returns it. A miss is reported as
// core.ErrTokenRevoked, core.ErrTokenExpired or core.ErrTokenInvalid.
func (s *tokenStore) Consume(
	ctx context.Context,
	tokenHash string,
	now time.Time,
) (*RefreshToken, error) {
	const q = `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING id, user_id, token_hash, expires_at, created_at, revoked_at, user_agent, ip_address`

	var t RefreshToken
	err := s.db.GetContext(ctx, &t, q, tokenHash, now)
	switch {
	case err == nil:
		return &t, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	return nil, s.explainMiss(ctx, tokenHash, now)
}

func (s *tokenStore) explainMiss(ctx context.Context, tokenHash string, now time.Time) error {
	const q = `SELECT revoked_at, expires_at FROM refresh_tokens WHERE token_hash = $1`

	var row struct {
		RevokedAt *time.Time `db:"revoked_at"`
		ExpiresAt time.Time  `db:"expires_at"`
	}
	err := s.db.GetContext(ctx, &row, q, tokenHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("consume refresh token: %w", core.ErrTokenInvalid)
	case err != nil:
		return fmt.Errorf("consume refresh token: %w", err)
	case row.RevokedAt != nil:
		return fmt.Errorf("consume refresh token: %w", core.ErrTokenRevoked)
	case !row.ExpiresAt.After(now):
		return fmt.Errorf("consume refresh token: %w", core.ErrTokenExpired)
	}
	return fmt.Errorf("consume refresh token: %w", core.ErrTokenInvalid)
}

// Revoke is idempotent and silently ignores tokens of other users.
func (s *tokenStore) Revoke(ctx context.Context, tokenHash, userID string) error {
	const q = `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND user_id = $2 AND revoked_at IS NULL`

	if _, err := s.db.ExecContext(ctx, q, tokenHash, userID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *tokenStore) Purge(ctx context.Context, expiredBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, expiredBefore)
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return n, nil
}
