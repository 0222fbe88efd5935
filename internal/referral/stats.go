// AngelaMos | 2026
// stats.go

package referral

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/TatyOko28/refresh-system/internal/config"
	"github.com/TatyOko28/refresh-system/internal/core"
)

type StatsAggregator struct {
	store   Store
	cache   bestEffort
	ttl     time.Duration
	recent  int
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewStatsAggregator(
	store Store,
	cache core.Cache,
	cfg config.ReferralConfig,
	logger *slog.Logger,
) *StatsAggregator {
	if logger == nil {
		logger = slog.Default()
	}

	return &StatsAggregator{
		store:   store,
		cache:   bestEffort{cache: cache, logger: logger},
		ttl:     cfg.StatsCacheTTL,
		recent:  cfg.RecentLimit,
		timeout: cfg.OperationTimeout,
		logger:  logger,
		now:     time.Now,
	}
}

func (a *StatsAggregator) WithClock(now func() time.Time) *StatsAggregator {
	a.now = now
	return a
}

func (a *StatsAggregator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *StatsAggregator) fail(ctx context.Context, op string, err error) error {
	err = classify(op, err)
	core.SetSpanError(ctx, err)
	return err
}

// Stats returns the referral summary for userID. The whole struct is cached;
// a cached copy never outlives the active code it reports.
func (a *StatsAggregator) Stats(ctx context.Context, userID string) (*Stats, error) {
	const op = "referral stats"

	ctx, span := core.StartSpan(ctx, tracerName, "referral.Stats",
		attribute.String("user.id", userID))
	defer span.End()

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	key := statsCacheKey(userID)
	if raw, ok := a.cache.get(ctx, key); ok {
		var cached Stats
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
		a.cache.delete(ctx, key)
	}

	codes := a.store.Codes()
	now := a.now()

	total, err := codes.CountByReferrer(ctx, userID)
	if err != nil {
		return nil, a.fail(ctx, op, err)
	}

	recent, err := codes.ListByReferrer(ctx, userID, a.recent)
	if err != nil {
		return nil, a.fail(ctx, op, err)
	}

	active, err := codes.FindActiveByOwner(ctx, userID, now)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, a.fail(ctx, op, err)
	}

	stats := &Stats{
		TotalReferrals:  total,
		RecentReferrals: recent,
		ActiveCode:      active,
	}

	ttl := a.ttl
	if active != nil {
		ttl = boundedTTL(ttl, now, active.ExpiresAt)
	}
	if raw, err := json.Marshal(stats); err == nil {
		a.cache.set(ctx, key, string(raw), ttl)
	}

	return stats, nil
}

// Referrals lists every edge where userID is the referrer, newest first.
func (a *StatsAggregator) Referrals(ctx context.Context, userID string) ([]Entry, error) {
	ctx, span := core.StartSpan(ctx, tracerName, "referral.Referrals",
		attribute.String("user.id", userID))
	defer span.End()

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	entries, err := a.store.Codes().ListByReferrer(ctx, userID, 0)
	if err != nil {
		return nil, a.fail(ctx, "list referrals", err)
	}
	return entries, nil
}

func (a *StatsAggregator) Totals(ctx context.Context) (*Totals, error) {
	ctx, span := core.StartSpan(ctx, tracerName, "referral.Totals")
	defer span.End()

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	totals, err := a.store.Codes().Totals(ctx)
	if err != nil {
		return nil, a.fail(ctx, "referral totals", err)
	}
	return totals, nil
}
