// AngelaMos | 2026
// dto.go

package user

import (
	"encoding/json"
	"time"
)

// Profile is the caller's own view of their account.
type Profile struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	FirstName     string          `json:"first_name,omitempty"`
	LastName      string          `json:"last_name,omitempty"`
	Role          string          `json:"role"`
	EmailVerified bool            `json:"email_verified"`
	Enrichment    json.RawMessage `json:"enrichment,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func ToProfile(u *User) Profile {
	p := Profile{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
	if u.HasEnrichment() {
		p.Enrichment = json.RawMessage(u.Enrichment.JSONText)
	}
	return p
}
