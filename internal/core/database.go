// AngelaMos | 2026
// database.go

package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/TatyOko28/refresh-system/internal/config"
)

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx, so repositories work
// the same inside and outside a transaction.
type DBTX interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Database is the shared pool plus the transaction retry policy.
type Database struct {
	*sqlx.DB
	attempts int
	backoff  time.Duration
}

const pingTimeout = 5 * time.Second

func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	db, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	// spread reconnects so the whole pool does not recycle at once
	db.SetConnMaxLifetime(withJitter(cfg.ConnMaxLifetime))

	d := &Database{DB: db, attempts: max(cfg.TxAttempts, 1), backoff: 20 * time.Millisecond}
	if err := d.Ping(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, err
	}

	return d, nil
}

func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := d.PingContext(ctx); err != nil {
		return fmt.Errorf("database: ping: %w", err)
	}
	return nil
}

// Tx runs fn in a transaction and commits when fn returns nil. A
// serialization failure or deadlock reruns fn in a fresh transaction, up
// to the configured attempts, so fn must not keep state across calls.
func (d *Database) Tx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = InTx(ctx, d.DB, fn)
		if err == nil || attempt >= d.attempts || !isTxConflict(err) {
			return err
		}

		wait := time.Duration(attempt) * d.backoff
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(withJitter(wait)):
		}
	}
}

// InTx is a single transaction attempt. A panic in fn rolls back and is
// re-raised.
func InTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx: begin: %w", err)
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback() //nolint:errcheck // re-panicking
		}
	}()

	if err := fn(tx); err != nil {
		done = true
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("tx: rollback: %w", rbErr))
		}
		return err
	}

	done = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx: commit: %w", err)
	}
	return nil
}

// isTxConflict reports serialization_failure and deadlock_detected.
func isTxConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	//nolint:gosec // jitter, not a secret
	return d + time.Duration(rand.Int64N(int64(d)/5+1))
}
