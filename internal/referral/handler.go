// AngelaMos | 2026
// handler.go

package referral

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/TatyOko28/refresh-system/internal/auth"
	"github.com/TatyOko28/refresh-system/internal/core"
	"github.com/TatyOko28/refresh-system/internal/middleware"
)

type SessionIssuer interface {
	IssueSession(
		ctx context.Context,
		userID, userAgent, ipAddress string,
	) (*auth.Session, error)
}

type Handler struct {
	manager        *Manager
	registrar      *Registrar
	stats          *StatsAggregator
	sessions       SessionIssuer
	defaultCodeTTL time.Duration
	validator      *validator.Validate
	logger         *slog.Logger
}

var refCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{4,50}$`)

func NewHandler(
	manager *Manager,
	registrar *Registrar,
	stats *StatsAggregator,
	sessions SessionIssuer,
	defaultCodeTTL time.Duration,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	//nolint:errcheck // tag name is static and non-empty
	_ = v.RegisterValidation("refcode", func(fl validator.FieldLevel) bool {
		return refCodePattern.MatchString(fl.Field().String())
	})

	return &Handler{
		manager:        manager,
		registrar:      registrar,
		stats:          stats,
		sessions:       sessions,
		defaultCodeTTL: defaultCodeTTL,
		validator:      v,
		logger:         logger,
	}
}

// RegisterRoutes mounts /referrals. registerLimiter, when non-nil, guards
// the public registration endpoint only.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, registerLimiter func(http.Handler) http.Handler,
) {
	r.Route("/referrals", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if registerLimiter != nil {
				r.Use(registerLimiter)
			}
			r.Post("/register", h.Register)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Get("/", h.ListReferrals)
			r.Get("/stats", h.GetStats)
			r.Post("/codes", h.CreateCode)
			r.Delete("/codes/{code}", h.RevokeCode)
			r.Get("/codes/by-email/{email}", h.GetActiveCode)
		})
	})
}

func (h *Handler) CreateCode(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	var req CreateCodeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			core.BadRequest(w, "invalid request body")
			return
		}
	}

	expiresAt := time.Now().Add(h.defaultCodeTTL)
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	code, err := h.manager.CreateCode(r.Context(), userID, expiresAt)
	if err != nil {
		writeError(w, err)
		return
	}

	core.Created(w, ToCodeResponse(code))
}

func (h *Handler) RevokeCode(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	if err := h.manager.RevokeCode(r.Context(), chi.URLParam(r, "code"), userID); err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) GetActiveCode(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.validator.Var(email, "required,email"); err != nil {
		core.BadRequest(w, "invalid email")
		return
	}

	code, err := h.manager.ActiveCodeForEmail(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ActiveCodeResponse{Code: code})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	stats, err := h.stats.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToStatsResponse(stats))
}

func (h *Handler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	entries, err := h.stats.Referrals(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ReferralsResponse{Referrals: entries})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	user, err := h.registrar.Register(r.Context(), Registration{
		Code:     req.ReferralCode,
		Email:    req.Email,
		Password: req.Password,
		Attrs:    Attrs{FirstName: req.FirstName, LastName: req.LastName},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := RegisterResponse{UserID: user.ID, Email: user.Email}

	if h.sessions != nil {
		session, err := h.sessions.IssueSession(
			r.Context(),
			user.ID,
			r.UserAgent(),
			middleware.ClientIP(r),
		)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "session issue after referral registration failed",
				"user_id", user.ID,
				"error", err,
			)
			resp.LoginRequired = true
		} else {
			resp.Tokens = &session.Tokens
		}
	}

	core.Created(w, resp)
}

type kindResponse struct {
	status  int
	code    string
	message string
}

var kindResponses = map[Kind]kindResponse{
	KindInvalidExpiry: {
		http.StatusBadRequest, "INVALID_EXPIRY", "expiration must be in the future",
	},
	KindInvalidReferralCode: {
		http.StatusBadRequest, "INVALID_REFERRAL_CODE", "referral code is invalid or expired",
	},
	KindDuplicateEmail: {
		http.StatusConflict, "DUPLICATE_EMAIL", "an account with this email already exists",
	},
	KindSelfReferral: {
		http.StatusBadRequest, "SELF_REFERRAL", "you cannot use your own referral code",
	},
	KindUndeliverableEmail: {
		http.StatusBadRequest, "UNDELIVERABLE_EMAIL", "email address cannot receive mail",
	},
	KindNotFound: {
		http.StatusNotFound, "NOT_FOUND", "referral code not found",
	},
	KindTransient: {
		http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "temporarily unavailable, retry the request",
	},
	KindCodeSpaceExhausted: {
		http.StatusInternalServerError, "CODE_SPACE_EXHAUSTED", "could not allocate a referral code",
	},
}

func writeError(w http.ResponseWriter, err error) {
	resp, ok := kindResponses[KindOf(err)]
	if !ok {
		core.InternalServerError(w, err)
		return
	}

	core.JSONError(w, core.NewAppError(err, resp.message, resp.status, resp.code))
}
