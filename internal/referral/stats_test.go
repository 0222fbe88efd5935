// AngelaMos | 2026
// stats_test.go

package referral

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) register(t *testing.T, code, email string) {
	t.Helper()

	_, err := f.registrar.Register(context.Background(), Registration{
		Code:     code,
		Email:    email,
		Password: "hunter22",
	})
	require.NoError(t, err)
}

func TestStatsRecentReferralsNewestFirst(t *testing.T) {
	f := newFixture(t)
	alice, code := f.ownerWithCode(t, "alice@example.com")

	for i := 1; i <= 7; i++ {
		f.clock.Advance(time.Minute)
		f.register(t, code.Code, fmt.Sprintf("user%d@example.com", i))
	}

	stats, err := f.stats.Stats(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalReferrals)

	var got []string
	for _, e := range stats.RecentReferrals {
		got = append(got, e.ReferredEmail)
		assert.Equal(t, "alice@example.com", e.ReferrerEmail)
	}
	assert.Equal(t, []string{
		"user7@example.com",
		"user6@example.com",
		"user5@example.com",
		"user4@example.com",
		"user3@example.com",
	}, got)

	require.NotNil(t, stats.ActiveCode)
	assert.Equal(t, code.Code, stats.ActiveCode.Code)
}

func TestStatsTiesKeepInsertionOrder(t *testing.T) {
	f := newFixture(t)
	alice, code := f.ownerWithCode(t, "alice@example.com")

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		f.register(t, code.Code, email)
	}

	stats, err := f.stats.Stats(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, stats.RecentReferrals, 3)
	assert.Equal(t, "a@example.com", stats.RecentReferrals[0].ReferredEmail)
	assert.Equal(t, "b@example.com", stats.RecentReferrals[1].ReferredEmail)
	assert.Equal(t, "c@example.com", stats.RecentReferrals[2].ReferredEmail)
}

func TestStatsWithoutActiveCode(t *testing.T) {
	f := newFixture(t)
	carol := f.store.addUser("carol@example.com")

	stats, err := f.stats.Stats(context.Background(), carol.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalReferrals)
	assert.Empty(t, stats.RecentReferrals)
	assert.Nil(t, stats.ActiveCode)
	assert.Equal(t, time.Hour, f.cache.ttls[statsCacheKey(carol.ID)])
}

func TestStatsServedFromCache(t *testing.T) {
	f := newFixture(t)
	alice, code := f.ownerWithCode(t, "alice@example.com")
	f.register(t, code.Code, "bob@example.com")

	first, err := f.stats.Stats(context.Background(), alice.ID)
	require.NoError(t, err)

	key := statsCacheKey(alice.ID)
	_, ok := f.cache.peek(key)
	require.True(t, ok)

	f.store.failOn("CountByReferrer", context.DeadlineExceeded)

	second, err := f.stats.Stats(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.TotalReferrals, second.TotalReferrals)
	require.Len(t, second.RecentReferrals, 1)
	assert.Equal(t, "bob@example.com", second.RecentReferrals[0].ReferredEmail)

	require.NoError(t, f.cache.Delete(context.Background(), key))
	_, err = f.stats.Stats(context.Background(), alice.ID)
	assert.Equal(t, KindTransient, KindOf(err))
}

func TestStatsCacheTTLBoundedByActiveCode(t *testing.T) {
	f := newFixture(t)
	alice := f.store.addUser("alice@example.com")
	_, err := f.manager.CreateCode(context.Background(), alice.ID,
		f.clock.Now().Add(10*time.Minute))
	require.NoError(t, err)

	_, err = f.stats.Stats(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, f.cache.ttls[statsCacheKey(alice.ID)])
}

func TestStatsRotationInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	alice, first := f.ownerWithCode(t, "alice@example.com")

	stats, err := f.stats.Stats(context.Background(), alice.ID)
	require.NoError(t, err)
	require.NotNil(t, stats.ActiveCode)
	assert.Equal(t, first.Code, stats.ActiveCode.Code)

	second, err := f.manager.CreateCode(context.Background(), alice.ID,
		f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	stats, err = f.stats.Stats(context.Background(), alice.ID)
	require.NoError(t, err)
	require.NotNil(t, stats.ActiveCode)
	assert.Equal(t, second.Code, stats.ActiveCode.Code)
}

func TestReferralsListsEverything(t *testing.T) {
	f := newFixture(t)
	alice, code := f.ownerWithCode(t, "alice@example.com")
	for i := 0; i < 8; i++ {
		f.clock.Advance(time.Second)
		f.register(t, code.Code, fmt.Sprintf("r%d@example.com", i))
	}

	entries, err := f.stats.Referrals(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 8)
	assert.Equal(t, "r7@example.com", entries[0].ReferredEmail)

	totals, err := f.stats.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Totals{Codes: 1, ActiveCodes: 1, Referrals: 8}, totals)
}

// stalledStore blocks the read paths until the caller's context ends.
type stalledStore struct {
	Store
}

func (s stalledStore) Codes() Repository {
	return stalledRepo{s.Store.Codes()}
}

type stalledRepo struct {
	Repository
}

func (stalledRepo) CountByReferrer(ctx context.Context, _ string) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (stalledRepo) ListByReferrer(ctx context.Context, _ string, _ int) ([]Entry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledRepo) Totals(ctx context.Context) (*Totals, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStatsOperationTimeout(t *testing.T) {
	f := newFixture(t)
	alice := f.store.addUser("alice@example.com")

	cfg := testConfig()
	cfg.OperationTimeout = 20 * time.Millisecond
	agg := NewStatsAggregator(stalledStore{f.store}, f.cache, cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	calls := map[string]func() error{
		"stats": func() error {
			_, err := agg.Stats(context.Background(), alice.ID)
			return err
		},
		"referrals": func() error {
			_, err := agg.Referrals(context.Background(), alice.ID)
			return err
		},
		"totals": func() error {
			_, err := agg.Totals(context.Background())
			return err
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			done := make(chan error, 1)
			go func() { done <- call() }()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrTransient)
				assert.ErrorIs(t, err, context.DeadlineExceeded)
			case <-time.After(2 * time.Second):
				t.Fatal("operation did not honour the configured timeout")
			}
		})
	}
}
