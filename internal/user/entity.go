// AngelaMos | 2026
// entity.go

package user

import (
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/TatyOko28/refresh-system/internal/auth"
	"github.com/TatyOko28/refresh-system/internal/referral"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID            string             `db:"id"`
	Email         string             `db:"email"`
	PasswordHash  string             `db:"password_hash"`
	FirstName     string             `db:"first_name"`
	LastName      string             `db:"last_name"`
	Role          string             `db:"role"`
	EmailVerified bool               `db:"email_verified"`
	Enrichment    types.NullJSONText `db:"enrichment"`
	CreatedAt     time.Time          `db:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at"`
}

func (u *User) HasEnrichment() bool {
	return u.Enrichment.Valid && len(u.Enrichment.JSONText) > 0
}

func (u *User) account() *auth.Account {
	return &auth.Account{
		ID:            u.ID,
		Email:         u.Email,
		PasswordHash:  u.PasswordHash,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
	}
}

func (u *User) ref() *referral.UserRef {
	return &referral.UserRef{ID: u.ID, Email: u.Email}
}

// NormalizeEmail is the stored form of an address. Lookups and the unique
// index both rely on it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
