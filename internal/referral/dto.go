// AngelaMos | 2026
// dto.go

package referral

import (
	"time"

	"github.com/TatyOko28/refresh-system/internal/auth"
)

type CreateCodeRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

type RegisterRequest struct {
	ReferralCode string `json:"referral_code" validate:"required,refcode"`
	Email        string `json:"email"         validate:"required,email,max=255"`
	Password     string `json:"password"      validate:"required,min=8,max=128"`
	FirstName    string `json:"first_name"    validate:"omitempty,max=100"`
	LastName     string `json:"last_name"     validate:"omitempty,max=100"`
}

type CodeResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	IsActive  bool      `json:"is_active"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type ActiveCodeResponse struct {
	Code string `json:"code"`
}

// RegisterResponse carries tokens when a session could be opened. The
// account exists either way; LoginRequired tells the client to sign in.
type RegisterResponse struct {
	UserID        string          `json:"user_id"`
	Email         string          `json:"email"`
	Tokens        *auth.TokenPair `json:"tokens,omitempty"`
	LoginRequired bool            `json:"login_required,omitempty"`
}

type StatsResponse struct {
	TotalReferrals  int           `json:"total_referrals"`
	RecentReferrals []Entry       `json:"recent_referrals"`
	ActiveCode      *CodeResponse `json:"active_code"`
}

type ReferralsResponse struct {
	Referrals []Entry `json:"referrals"`
}

func ToCodeResponse(c *Code) CodeResponse {
	return CodeResponse{
		ID:        c.ID,
		Code:      c.Code,
		IsActive:  c.IsActive,
		ExpiresAt: c.ExpiresAt,
		CreatedAt: c.CreatedAt,
	}
}

func ToStatsResponse(s *Stats) StatsResponse {
	resp := StatsResponse{
		TotalReferrals:  s.TotalReferrals,
		RecentReferrals: s.RecentReferrals,
	}
	if resp.RecentReferrals == nil {
		resp.RecentReferrals = []Entry{}
	}
	if s.ActiveCode != nil {
		code := ToCodeResponse(s.ActiveCode)
		resp.ActiveCode = &code
	}
	return resp
}
