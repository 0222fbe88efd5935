// AngelaMos | 2026
// clearbit.go

package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/TatyOko28/refresh-system/internal/config"
	"github.com/TatyOko28/refresh-system/internal/core"
	"github.com/TatyOko28/refresh-system/internal/middleware"
)

const (
	defaultClearbitURL = "https://person.clearbit.com/v2/people/find"
	maxPersonBytes     = 1 << 20
	missMarkerTTL      = time.Hour
)

var ErrPersonNotFound = errors.New("clearbit: person not found")

type Clearbit struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewClearbit(cfg config.ClearbitConfig) *Clearbit {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultClearbitURL
	}

	return &Clearbit{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
	}
}

func (c *Clearbit) FindPerson(ctx context.Context, email string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+"?"+url.Values{"email": {email}}.Encode(),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("clearbit: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clearbit: %w: %v", core.ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPersonNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("clearbit: status %d: %w", resp.StatusCode, core.ErrUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPersonBytes))
	if err != nil {
		return nil, fmt.Errorf("clearbit: read response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("clearbit: response is not json")
	}

	return json.RawMessage(body), nil
}

type PersonFinder interface {
	FindPerson(ctx context.Context, email string) (json.RawMessage, error)
}

type EnrichmentStore interface {
	EnrichmentState(ctx context.Context, userID string) (email string, enriched bool, err error)
	SaveEnrichment(ctx context.Context, userID string, data json.RawMessage) error
}

// Enricher attaches third-party profile data to authenticated users the
// first time they are seen. It never fails the request it rides on.
type Enricher struct {
	finder PersonFinder
	store  EnrichmentStore
	cache  core.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewEnricher(
	finder PersonFinder,
	store EnrichmentStore,
	cache core.Cache,
	ttl time.Duration,
	logger *slog.Logger,
) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Enricher{
		finder: finder,
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func (e *Enricher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := middleware.UserIDFrom(r.Context()); userID != "" {
			e.enrich(r.Context(), userID)
		}
		next.ServeHTTP(w, r)
	})
}

func enrichmentKey(userID string) string {
	return "enrichment:" + userID
}

func (e *Enricher) enrich(ctx context.Context, userID string) {
	key := enrichmentKey(userID)

	_, err := e.cache.Get(ctx, key)
	if err == nil {
		return
	}
	if !errors.Is(err, core.ErrCacheMiss) {
		e.logger.WarnContext(ctx, "enrichment cache unavailable", "error", err)
		return
	}

	email, enriched, err := e.store.EnrichmentState(ctx, userID)
	if err != nil {
		e.logger.WarnContext(ctx, "enrichment state lookup failed",
			"user_id", userID, "error", err)
		return
	}
	if enriched {
		e.mark(ctx, key, "stored", e.ttl)
		return
	}

	// claim the slot so concurrent requests for this user skip the lookup
	e.mark(ctx, key, "pending", missMarkerTTL)

	data, err := e.finder.FindPerson(ctx, email)
	switch {
	case errors.Is(err, ErrPersonNotFound):
		e.logger.InfoContext(ctx, "no enrichment data", "user_id", userID)
		return
	case err != nil:
		e.logger.WarnContext(ctx, "enrichment lookup failed",
			"user_id", userID, "error", err)
		return
	}

	if err := e.store.SaveEnrichment(ctx, userID, data); err != nil {
		e.logger.WarnContext(ctx, "enrichment save failed",
			"user_id", userID, "error", err)
		return
	}

	e.mark(ctx, key, "stored", e.ttl)
}

func (e *Enricher) mark(ctx context.Context, key, value string, ttl time.Duration) {
	if err := e.cache.Set(ctx, key, value, ttl); err != nil {
		e.logger.WarnContext(ctx, "enrichment marker write failed", "error", err)
	}
}
