// AngelaMos | 2026
// service.go

package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TatyOko28/refresh-system/internal/config"
	"github.com/TatyOko28/refresh-system/internal/core"
)

const tracerName = "referral"

// Manager owns the code lifecycle: rotation, lookup, verification and
// revocation.
type Manager struct {
	store  Store
	cache  bestEffort
	gen    *Generator
	cfg    config.ReferralConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(
	store Store,
	cache core.Cache,
	gen *Generator,
	cfg config.ReferralConfig,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:  store,
		cache:  bestEffort{cache: cache, logger: logger},
		gen:    gen,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.OperationTimeout)
}

// CreateCode deactivates every active code of the owner and inserts a fresh
// one in a single transaction. The owner row is locked first so concurrent
// rotations for one owner serialize.
func (m *Manager) CreateCode(
	ctx context.Context,
	ownerID string,
	expiresAt time.Time,
) (*Code, error) {
	const op = "create code"

	ctx, span := core.StartSpan(ctx, tracerName, "referral.CreateCode",
		attribute.String("owner.id", ownerID))
	defer span.End()

	now := m.now()
	if !expiresAt.After(now) {
		return nil, newError(op, KindInvalidExpiry,
			fmt.Errorf("expires_at %s is not after %s",
				expiresAt.Format(time.RFC3339), now.Format(time.RFC3339)))
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var (
		created     *Code
		owner       *UserRef
		deactivated int64
	)
	err := m.store.WithinTx(ctx, func(codes Repository, users UserDirectory) error {
		if err := codes.LockOwner(ctx, ownerID); err != nil {
			return err
		}

		var err error
		owner, err = users.FindByID(ctx, ownerID)
		if err != nil {
			return err
		}

		deactivated, err = codes.DeactivateAllForOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		value, err := m.gen.Generate(ctx, codes.CodeExists)
		if err != nil {
			return err
		}

		code := &Code{
			ID:        uuid.New().String(),
			OwnerID:   ownerID,
			Code:      value,
			IsActive:  true,
			ExpiresAt: expiresAt.UTC(),
		}
		if err := codes.CreateCode(ctx, code); err != nil {
			return err
		}

		created = code
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNotFound):
			err = newError(op, KindNotFound, err)
		case errors.Is(err, core.ErrDuplicateKey):
			// a concurrent insert took the generated value after the
			// existence check; nothing was written, so a retry is safe
			err = newError(op, KindTransient, err)
		}
		return nil, m.fail(ctx, op, err)
	}

	m.cache.set(ctx, codeCacheKey(owner.Email), cacheEntry(ownerID, created.Code),
		boundedTTL(m.cfg.CodeCacheTTL, now, created.ExpiresAt))
	m.cache.delete(ctx, statsCacheKey(ownerID))

	m.logger.InfoContext(ctx, "referral code rotated",
		"owner_id", ownerID,
		"code_id", created.ID,
		"deactivated", deactivated,
	)

	return created, nil
}

// ActiveCodeForEmail returns the owner's active code. A cached value is
// trusted only when it names the user the email resolves to now and the
// store confirms the code is still active for that user. Anything else is
// evicted and the store is consulted.
func (m *Manager) ActiveCodeForEmail(ctx context.Context, email string) (string, error) {
	const op = "active code for email"

	ctx, span := core.StartSpan(ctx, tracerName, "referral.ActiveCodeForEmail")
	defer span.End()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	email = normalizeEmail(email)
	key := codeCacheKey(email)
	now := m.now()

	owner, err := m.store.Users().Find(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			m.cache.delete(ctx, key)
			return "", newError(op, KindNotFound, err)
		}
		return "", m.fail(ctx, op, err)
	}

	if raw, ok := m.cache.get(ctx, key); ok {
		cached, err := m.cachedCode(ctx, raw, owner.ID, now)
		if err != nil {
			return "", m.fail(ctx, op, err)
		}
		if cached != "" {
			return cached, nil
		}
		m.cache.delete(ctx, key)
	}

	code, err := m.store.Codes().FindActiveByOwner(ctx, owner.ID, now)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", newError(op, KindNotFound, err)
		}
		return "", m.fail(ctx, op, err)
	}

	m.cache.set(ctx, key, cacheEntry(owner.ID, code.Code),
		boundedTTL(m.cfg.CodeCacheTTL, now, code.ExpiresAt))

	return code.Code, nil
}

// cachedCode returns the cached code when it still belongs to ownerID and is
// active, or "" when the entry is stale.
func (m *Manager) cachedCode(
	ctx context.Context,
	raw, ownerID string,
	now time.Time,
) (string, error) {
	cachedOwner, value, ok := parseCacheEntry(raw)
	if !ok || cachedOwner != ownerID {
		return "", nil
	}

	code, err := m.store.Codes().FindActiveByCode(ctx, value, now)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return "", nil
	case err != nil:
		return "", err
	case code.OwnerID != ownerID:
		return "", nil
	}
	return code.Code, nil
}

// VerifyCode looks the code up in the store only. The cache is never
// consulted on this path.
func (m *Manager) VerifyCode(ctx context.Context, code string) (*Code, error) {
	const op = "verify code"

	ctx, span := core.StartSpan(ctx, tracerName, "referral.VerifyCode")
	defer span.End()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	found, err := m.store.Codes().FindActiveByCode(ctx, normalizeCode(code), m.now())
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, newError(op, KindNotFound, err)
		}
		return nil, m.fail(ctx, op, err)
	}

	return found, nil
}

// RevokeCode deactivates code if ownerID owns it and it is still active.
// A second revoke of the same code reports KindNotFound.
func (m *Manager) RevokeCode(ctx context.Context, code, ownerID string) error {
	const op = "revoke code"

	ctx, span := core.StartSpan(ctx, tracerName, "referral.RevokeCode",
		attribute.String("owner.id", ownerID))
	defer span.End()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	err := m.store.Codes().Deactivate(ctx, normalizeCode(code), ownerID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return newError(op, KindNotFound, err)
		}
		return m.fail(ctx, op, err)
	}

	m.forgetOwner(ctx, ownerID)

	m.logger.InfoContext(ctx, "referral code revoked", "owner_id", ownerID)

	return nil
}

// forgetOwner drops every cache entry derived from the owner's codes.
func (m *Manager) forgetOwner(ctx context.Context, ownerID string) {
	keys := []string{statsCacheKey(ownerID)}

	owner, err := m.store.Users().FindByID(ctx, ownerID)
	if err != nil {
		m.logger.WarnContext(ctx, "owner lookup for cache eviction failed",
			"owner_id", ownerID, "error", err)
	} else {
		keys = append(keys, codeCacheKey(normalizeEmail(owner.Email)))
	}

	m.cache.delete(ctx, keys...)
}

func (m *Manager) fail(ctx context.Context, op string, err error) error {
	err = classify(op, err)

	if KindOf(err) == KindCodeSpaceExhausted {
		m.logger.ErrorContext(ctx, "referral code space exhausted",
			"code_length", m.cfg.CodeLength,
			"max_attempts", m.cfg.MaxGenerationAttempts,
			"error", err,
		)
	}

	core.SetSpanError(ctx, err)
	return err
}

func cacheEntry(ownerID, code string) string {
	return ownerID + ":" + code
}

func parseCacheEntry(raw string) (ownerID, code string, ok bool) {
	ownerID, code, ok = strings.Cut(raw, ":")
	return ownerID, code, ok && ownerID != "" && code != ""
}
