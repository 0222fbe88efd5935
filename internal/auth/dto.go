// AngelaMos | 2026
// dto.go

package auth

import (
	"time"
)

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type RegisterRequest struct {
	Email     string `json:"email"      validate:"required,email,max=255"`
	Password  string `json:"password"   validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name"  validate:"omitempty,max=100"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=128"`
}

// GoogleAuthRequest carries either an authorization code (server-side flow)
// or an ID token (Google Sign-In credential).
type GoogleAuthRequest struct {
	Code        string `json:"code"         validate:"required_without=IDToken"`
	RedirectURI string `json:"redirect_uri" validate:"required_with=Code"`
	IDToken     string `json:"id_token"     validate:"required_without=Code"`
}

// Client identifies where a session was opened from.
type Client struct {
	UserAgent string
	IP        string
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type AccountView struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

type Session struct {
	User   AccountView `json:"user"`
	Tokens TokenPair   `json:"tokens"`
}
