// AngelaMos | 2026
// directory.go

package user

import (
	"context"

	"github.com/google/uuid"

	"github.com/TatyOko28/refresh-system/internal/core"
	"github.com/TatyOko28/refresh-system/internal/referral"
)

// Directory exposes accounts to the referral core. Bound to a transaction
// handle it takes part in that transaction.
type Directory struct {
	repo Repository
}

func NewDirectory(db core.DBTX) referral.UserDirectory {
	return &Directory{repo: NewRepository(db)}
}

func (d *Directory) Create(
	ctx context.Context,
	email, passwordHash string,
	attrs referral.Attrs,
) (*referral.UserRef, error) {
	u := &User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		FirstName:    attrs.FirstName,
		LastName:     attrs.LastName,
		Role:         RoleUser,
	}
	if err := d.repo.Insert(ctx, u); err != nil {
		return nil, err
	}
	return u.ref(), nil
}

func (d *Directory) Exists(ctx context.Context, email string) (bool, error) {
	return d.repo.EmailTaken(ctx, NormalizeEmail(email))
}

func (d *Directory) Find(ctx context.Context, email string) (*referral.UserRef, error) {
	u, err := d.repo.ByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return u.ref(), nil
}

func (d *Directory) FindByID(ctx context.Context, id string) (*referral.UserRef, error) {
	u, err := d.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.ref(), nil
}

var _ referral.UserDirectory = (*Directory)(nil)
