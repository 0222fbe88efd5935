// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TatyOko28/refresh-system/internal/config"
	"github.com/TatyOko28/refresh-system/internal/core"
	"github.com/TatyOko28/refresh-system/internal/middleware"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

// Account is what sessions need to know about a user.
type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string
	EmailVerified bool
}

type NewAccount struct {
	Email         string
	PasswordHash  string
	FirstName     string
	LastName      string
	EmailVerified bool
}

// Accounts is implemented by the user package. Lookups report
// core.ErrNotFound; OpenAccount reports core.ErrDuplicateKey for a taken
// email.
type Accounts interface {
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	AccountByID(ctx context.Context, id string) (*Account, error)
	OpenAccount(ctx context.Context, a NewAccount) (*Account, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	MarkEmailVerified(ctx context.Context, id string) error
}

// Service opens, rotates and closes sessions. Access tokens are
// stateless; logging out places the token id on a deny list in the cache
// until the token would have expired anyway.
type Service struct {
	accounts   Accounts
	tokens     RefreshTokens
	signer     *Signer
	denied     core.Cache
	google     *GoogleAuthenticator
	refreshTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(
	accounts Accounts,
	tokens RefreshTokens,
	signer *Signer,
	denied core.Cache,
	cfg config.TokenConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		accounts:   accounts,
		tokens:     tokens,
		signer:     signer,
		denied:     denied,
		refreshTTL: cfg.RefreshTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// WithGoogle enables Google sign-in. A nil authenticator leaves it disabled.
func (s *Service) WithGoogle(g *GoogleAuthenticator) *Service {
	s.google = g
	return s
}

func (s *Service) Register(ctx context.Context, req RegisterRequest, c Client) (*Session, error) {
	hash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	acct, err := s.accounts.OpenAccount(ctx, NewAccount{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	})
	if errors.Is(err, core.ErrDuplicateKey) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	return s.open(ctx, acct, c)
}

// Login never tells the caller whether the email exists. A correct
// password on an outdated hash is rehashed in place.
func (s *Service) Login(ctx context.Context, req LoginRequest, c Client) (*Session, error) {
	acct, err := s.accounts.AccountByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("login: %w", err)
	}

	var stored string
	if acct != nil {
		stored = acct.PasswordHash
	}

	ok, stale := core.CheckPasswordOrDecoy(req.Password, stored)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if stale {
		s.rehash(ctx, acct.ID, req.Password)
	}

	return s.open(ctx, acct, c)
}

func (s *Service) rehash(ctx context.Context, userID, password string) {
	hash, err := core.HashPassword(password)
	if err == nil {
		err = s.accounts.SetPasswordHash(ctx, userID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", "user_id", userID, "error", err)
	}
}

// LoginWithGoogle resolves the Google identity and signs the user in,
// opening an account on first use.
func (s *Service) LoginWithGoogle(ctx context.Context, req GoogleAuthRequest, c Client) (*Session, error) {
	if s.google == nil {
		return nil, fmt.Errorf("google login: %w", core.ErrUnavailable)
	}

	id, err := s.google.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.AccountByEmail(ctx, id.Email)
	if errors.Is(err, core.ErrNotFound) {
		acct, err = s.accounts.OpenAccount(ctx, NewAccount{
			Email:         id.Email,
			FirstName:     id.GivenName,
			LastName:      id.FamilyName,
			EmailVerified: id.EmailVerified,
		})
		if errors.Is(err, core.ErrDuplicateKey) {
			acct, err = s.accounts.AccountByEmail(ctx, id.Email)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("google login: %w", err)
	}

	if id.EmailVerified && !acct.EmailVerified {
		if err := s.accounts.MarkEmailVerified(ctx, acct.ID); err != nil {
			s.logger.WarnContext(ctx, "mark email verified failed", "user_id", acct.ID, "error", err)
		} else {
			acct.EmailVerified = true
		}
	}

	return s.open(ctx, acct, c)
}

// IssueSession opens a session for an account that was just created
// elsewhere, such as a referral registration.
func (s *Service) IssueSession(ctx context.Context, userID, userAgent, ip string) (*Session, error) {
	acct, err := s.accounts.AccountByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return s.open(ctx, acct, Client{UserAgent: userAgent, IP: ip})
}

// Refresh trades a refresh token for a new session. The presented token is
// consumed first, so replaying it fails with core.ErrTokenRevoked.
func (s *Service) Refresh(ctx context.Context, raw string, c Client) (*Session, error) {
	old, err := s.tokens.Consume(ctx, core.DigestToken(raw), s.now())
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.AccountByID(ctx, old.UserID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	return s.open(ctx, acct, c)
}

// Logout revokes the refresh token and denies the access token that made
// the call. Unknown refresh tokens are ignored.
func (s *Service) Logout(ctx context.Context, raw string, p *middleware.Principal) error {
	if raw != "" {
		if err := s.tokens.Revoke(ctx, core.DigestToken(raw), p.UserID); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
	}

	ttl := p.ExpiresAt.Sub(s.now())
	if s.denied == nil || p.TokenID == "" || ttl <= 0 {
		return nil
	}
	if err := s.denied.Set(ctx, deniedKey(p.TokenID), "1", ttl); err != nil {
		s.logger.WarnContext(ctx, "access token deny failed", "user_id", p.UserID, "error", err)
	}
	return nil
}

// VerifyToken checks the signature and then the deny list. A cache outage
// lets an otherwise valid token through.
func (s *Service) VerifyToken(ctx context.Context, raw string) (*middleware.Principal, error) {
	p, err := s.signer.Verify(raw)
	if err != nil || s.denied == nil {
		return p, err
	}

	_, err = s.denied.Get(ctx, deniedKey(p.TokenID))
	switch {
	case err == nil:
		return nil, fmt.Errorf("verify: %w", core.ErrTokenRevoked)
	case !errors.Is(err, core.ErrCacheMiss):
		s.logger.DebugContext(ctx, "deny list unavailable", "error", err)
	}
	return p, nil
}

// PurgeExpired drops refresh tokens that expired more than a day ago.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.Purge(ctx, s.now().Add(-24*time.Hour))
}

func (s *Service) open(ctx context.Context, acct *Account, c Client) (*Session, error) {
	access, accessExp, err := s.signer.Sign(acct)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	refresh, err := core.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	err = s.tokens.Save(ctx, &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    acct.ID,
		TokenHash: core.DigestToken(refresh),
		ExpiresAt: s.now().Add(s.refreshTTL),
		UserAgent: c.UserAgent,
		IPAddress: c.IP,
	})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	return &Session{
		User: AccountView{
			ID:            acct.ID,
			Email:         acct.Email,
			Role:          acct.Role,
			EmailVerified: acct.EmailVerified,
		},
		Tokens: TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			ExpiresIn:    int(s.signer.AccessTTL() / time.Second),
			ExpiresAt:    accessExp,
		},
	}, nil
}

func deniedKey(jti string) string {
	return "denied_jti:" + jti
}
