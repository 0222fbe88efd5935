// AngelaMos | 2026
// store.go

package referral

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/TatyOko28/refresh-system/internal/core"
)

// UserDirectory is the narrow view of user accounts the referral core
// needs. Create stores an already hashed password and reports
// core.ErrDuplicateKey for a taken email; Find and FindByID report
// core.ErrNotFound.
type UserDirectory interface {
	Create(ctx context.Context, email, passwordHash string, attrs Attrs) (*UserRef, error)
	Exists(ctx context.Context, email string) (bool, error)
	Find(ctx context.Context, email string) (*UserRef, error)
	FindByID(ctx context.Context, id string) (*UserRef, error)
}

// Store hands out repositories bound either to the pool or to a single
// transaction. Everything done through the arguments of fn commits or
// rolls back together. fn may run more than once when the database
// reports a serialization conflict.
type Store interface {
	Codes() Repository
	Users() UserDirectory
	WithinTx(ctx context.Context, fn func(codes Repository, users UserDirectory) error) error
}

type DirectoryFactory func(db core.DBTX) UserDirectory

type sqlStore struct {
	db       *core.Database
	codes    Repository
	users    UserDirectory
	newUsers DirectoryFactory
}

func NewStore(db *core.Database, newUsers DirectoryFactory) Store {
	return &sqlStore{
		db:       db,
		codes:    NewRepository(db.DB),
		users:    newUsers(db.DB),
		newUsers: newUsers,
	}
}

func (s *sqlStore) Codes() Repository {
	return s.codes
}

func (s *sqlStore) Users() UserDirectory {
	return s.users
}

func (s *sqlStore) WithinTx(
	ctx context.Context,
	fn func(codes Repository, users UserDirectory) error,
) error {
	return s.db.Tx(ctx, func(tx *sqlx.Tx) error {
		return fn(NewRepository(tx), s.newUsers(tx))
	})
}
