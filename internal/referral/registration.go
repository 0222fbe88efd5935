// AngelaMos | 2026
// registration.go

package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TatyOko28/refresh-system/internal/config"
	"github.com/TatyOko28/refresh-system/internal/core"
)

// EmailVerifier reports whether an address can receive mail. An error
// means the verifier itself could not answer.
type EmailVerifier interface {
	Verify(ctx context.Context, email string) (bool, error)
}

type Registration struct {
	Code     string
	Email    string
	Password string
	Attrs    Attrs
}

type Registrar struct {
	manager   *Manager
	verifier  EmailVerifier
	hash      func(password string) (string, error)
	singleUse bool
	logger    *slog.Logger
}

func NewRegistrar(
	manager *Manager,
	verifier EmailVerifier,
	cfg config.ReferralConfig,
	logger *slog.Logger,
) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registrar{
		manager:   manager,
		verifier:  verifier,
		hash:      core.HashPassword,
		singleUse: cfg.SingleUse,
		logger:    logger,
	}
}

func (r *Registrar) WithPasswordHasher(hash func(string) (string, error)) *Registrar {
	r.hash = hash
	return r
}

// Register creates the account and its referral edge in one transaction.
// Checks run in a fixed order and the first failure wins: invalid code,
// self-referral, taken email, undeliverable address. Self-referral goes
// before the account check because the owner's own email is always taken.
//
// The password is hashed before the transaction opens. Inside it the user
// row is inserted before the code is locked, so two racing registrations
// for the same email always resolve to KindDuplicateEmail for the loser.
func (r *Registrar) Register(ctx context.Context, reg Registration) (*UserRef, error) {
	const op = "register with referral"

	ctx, span := core.StartSpan(ctx, tracerName, "referral.Register")
	defer span.End()

	ctx, cancel := r.manager.withTimeout(ctx)
	defer cancel()

	email := normalizeEmail(reg.Email)
	store := r.manager.store

	code, err := r.manager.VerifyCode(ctx, reg.Code)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, newError(op, KindInvalidReferralCode, err)
		}
		return nil, r.fail(ctx, op, err)
	}

	owner, err := store.Users().FindByID(ctx, code.OwnerID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, newError(op, KindInvalidReferralCode, err)
		}
		return nil, r.fail(ctx, op, err)
	}
	if normalizeEmail(owner.Email) == email {
		return nil, newError(op, KindSelfReferral, nil)
	}

	exists, err := store.Users().Exists(ctx, email)
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}
	if exists {
		return nil, newError(op, KindDuplicateEmail, nil)
	}

	if r.verifier != nil {
		deliverable, verr := r.verifier.Verify(ctx, email)
		switch {
		case verr != nil:
			r.logger.WarnContext(ctx, "email verification unavailable, continuing",
				"error", verr)
		case !deliverable:
			return nil, newError(op, KindUndeliverableEmail, nil)
		}
	}

	passwordHash, err := r.hash(reg.Password)
	if err != nil {
		return nil, r.fail(ctx, op, fmt.Errorf("hash password: %w", err))
	}

	var created *UserRef
	err = store.WithinTx(ctx, func(codes Repository, users UserDirectory) error {
		user, err := users.Create(ctx, email, passwordHash, reg.Attrs)
		if err != nil {
			if errors.Is(err, core.ErrDuplicateKey) {
				return newError(op, KindDuplicateEmail, err)
			}
			return err
		}

		locked, err := codes.LockActiveByCode(ctx, code.Code, r.manager.now())
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return newError(op, KindInvalidReferralCode, err)
			}
			return err
		}

		edge := &Referral{
			ID:             uuid.New().String(),
			ReferrerID:     locked.OwnerID,
			ReferredID:     user.ID,
			ReferralCodeID: locked.ID,
		}
		if err := codes.CreateReferral(ctx, edge); err != nil {
			if errors.Is(err, core.ErrDuplicateKey) {
				return newError(op, KindDuplicateEmail, err)
			}
			return err
		}

		if r.singleUse {
			if err := codes.DeactivateByID(ctx, locked.ID); err != nil {
				return err
			}
		}

		created = user
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}

	if r.singleUse {
		r.manager.forgetOwner(ctx, code.OwnerID)
	} else {
		r.manager.cache.delete(ctx, statsCacheKey(code.OwnerID))
	}

	span.SetAttributes(
		attribute.String("referrer.id", code.OwnerID),
		attribute.String("referred.id", created.ID),
	)
	r.logger.InfoContext(ctx, "referral registered",
		"referrer_id", code.OwnerID,
		"referred_id", created.ID,
		"code_id", code.ID,
	)

	return created, nil
}

func (r *Registrar) fail(ctx context.Context, op string, err error) error {
	err = classify(op, err)
	core.SetSpanError(ctx, err)
	return err
}
