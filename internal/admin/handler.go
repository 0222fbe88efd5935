// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/TatyOko28/refresh-system/internal/core"
	"github.com/TatyOko28/refresh-system/internal/referral"
)

type ReferralTotals interface {
	Totals(ctx context.Context) (*referral.Totals, error)
}

type Pool interface {
	Ping(ctx context.Context) error
	Stats() sql.DBStats
}

type CachePool interface {
	Ping(ctx context.Context) error
	PoolStats() *redis.PoolStats
}

// Handler serves operator views over the referral engine. Every source is
// optional; a nil one is left out of the response.
type Handler struct {
	referrals ReferralTotals
	db        Pool
	cache     CachePool
}

func NewHandler(referrals ReferralTotals, db Pool, cache CachePool) *Handler {
	return &Handler{referrals: referrals, db: db, cache: cache}
}

func (h *Handler) RegisterRoutes(r chi.Router, guards ...func(http.Handler) http.Handler) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(guards...)
		r.Get("/overview", h.Overview)
		r.Get("/stats/referrals", h.ReferralTotals)
	})
}

type Overview struct {
	Referrals *referral.Totals `json:"referrals,omitempty"`
	Database  *PoolState       `json:"database,omitempty"`
	Cache     *PoolState       `json:"cache,omitempty"`
}

type PoolState struct {
	Healthy bool   `json:"healthy"`
	Open    int    `json:"open"`
	Idle    int    `json:"idle"`
	InUse   int    `json:"in_use,omitempty"`
	Waits   int64  `json:"waits,omitempty"`
	Hits    uint32 `json:"hits,omitempty"`
	Misses  uint32 `json:"misses,omitempty"`
}

// Overview degrades instead of failing: a totals error just drops the
// referral block.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var out Overview

	if h.referrals != nil {
		if totals, err := h.referrals.Totals(ctx); err == nil {
			out.Referrals = totals
		}
	}

	if h.db != nil {
		s := h.db.Stats()
		out.Database = &PoolState{
			Healthy: h.db.Ping(ctx) == nil,
			Open:    s.OpenConnections,
			Idle:    s.Idle,
			InUse:   s.InUse,
			Waits:   s.WaitCount,
		}
	}

	if h.cache != nil {
		s := h.cache.PoolStats()
		out.Cache = &PoolState{
			Healthy: h.cache.Ping(ctx) == nil,
			Open:    int(s.TotalConns),
			Idle:    int(s.IdleConns),
			Hits:    s.Hits,
			Misses:  s.Misses,
		}
	}

	core.OK(w, out)
}

func (h *Handler) ReferralTotals(w http.ResponseWriter, r *http.Request) {
	if h.referrals == nil {
		core.NotFound(w, "referral totals")
		return
	}

	totals, err := h.referrals.Totals(r.Context())
	switch {
	case err == nil:
		core.OK(w, totals)
	case referral.KindOf(err) == referral.KindTransient:
		core.JSONError(w, core.UnavailableError("referral totals temporarily unavailable"))
	default:
		core.InternalServerError(w, err)
	}
}
