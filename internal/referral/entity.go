// AngelaMos | 2026
// entity.go

package referral

import (
	"strings"
	"time"
)

type Code struct {
	ID        string    `db:"id"         json:"id"`
	OwnerID   string    `db:"owner_id"   json:"owner_id"`
	Code      string    `db:"code"       json:"code"`
	IsActive  bool      `db:"is_active"  json:"is_active"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Usable reports whether verification would accept the code at now.
func (c *Code) Usable(now time.Time) bool {
	return c.IsActive && now.Before(c.ExpiresAt)
}

type Referral struct {
	ID             string    `db:"id"`
	Seq            int64     `db:"seq"`
	ReferrerID     string    `db:"referrer_id"`
	ReferredID     string    `db:"referred_id"`
	ReferralCodeID string    `db:"referral_code_id"`
	CreatedAt      time.Time `db:"created_at"`
}

// Entry is a referral edge joined with both parties' emails and the code
// that was used.
type Entry struct {
	ID            string    `db:"id"             json:"id"`
	ReferrerEmail string    `db:"referrer_email" json:"referrer_email"`
	ReferredEmail string    `db:"referred_email" json:"referred_email"`
	Code          string    `db:"code"           json:"code"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
}

type Stats struct {
	TotalReferrals  int     `json:"total_referrals"`
	RecentReferrals []Entry `json:"recent_referrals"`
	ActiveCode      *Code   `json:"active_code"`
}

type Totals struct {
	Codes       int `db:"codes"        json:"codes"`
	ActiveCodes int `db:"active_codes" json:"active_codes"`
	Referrals   int `db:"referrals"    json:"referrals"`
}

type UserRef struct {
	ID    string
	Email string
}

type Attrs struct {
	FirstName string
	LastName  string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
