// AngelaMos | 2026
// cache.go

package referral

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/TatyOko28/refresh-system/internal/core"
)

func codeCacheKey(email string) string {
	return "referral_code:" + email
}

func statsCacheKey(userID string) string {
	return "referral_stats:" + userID
}

// bestEffort wraps the cache so that failures are logged and swallowed.
// Nothing correctness-critical may depend on what it returns.
type bestEffort struct {
	cache  core.Cache
	logger *slog.Logger
}

func (b bestEffort) get(ctx context.Context, key string) (string, bool) {
	if b.cache == nil {
		return "", false
	}

	val, err := b.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, core.ErrCacheMiss) {
			b.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		}
		return "", false
	}

	return val, true
}

func (b bestEffort) set(ctx context.Context, key, value string, ttl time.Duration) {
	if b.cache == nil || ttl <= 0 {
		return
	}

	if err := b.cache.Set(ctx, key, value, ttl); err != nil {
		b.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

func (b bestEffort) delete(ctx context.Context, keys ...string) {
	if b.cache == nil || len(keys) == 0 {
		return
	}

	if err := b.cache.Delete(ctx, keys...); err != nil {
		b.logger.WarnContext(ctx, "cache delete failed", "keys", keys, "error", err)
	}
}

// boundedTTL never lets an entry outlive the thing it describes.
func boundedTTL(ttl time.Duration, now, expiresAt time.Time) time.Duration {
	if left := expiresAt.Sub(now); left < ttl {
		return left
	}
	return ttl
}
