// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/TatyOko28/refresh-system/internal/auth"
	"github.com/TatyOko28/refresh-system/internal/core"
)

// Service owns the users table. It backs sign-in through auth.Accounts and
// profile enrichment through EnrichmentState and SaveEnrichment.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) AccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	u, err := s.repo.ByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return u.account(), nil
}

func (s *Service) AccountByID(ctx context.Context, id string) (*auth.Account, error) {
	u, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.account(), nil
}

func (s *Service) OpenAccount(ctx context.Context, a auth.NewAccount) (*auth.Account, error) {
	u := &User{
		ID:            uuid.NewString(),
		Email:         NormalizeEmail(a.Email),
		PasswordHash:  a.PasswordHash,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Role:          RoleUser,
		EmailVerified: a.EmailVerified,
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return nil, err
	}
	return u.account(), nil
}

func (s *Service) SetPasswordHash(ctx context.Context, id, hash string) error {
	return s.repo.SetPasswordHash(ctx, id, hash)
}

func (s *Service) MarkEmailVerified(ctx context.Context, id string) error {
	return s.repo.MarkEmailVerified(ctx, id)
}

func (s *Service) Me(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("me: %w", core.ErrUnauthorized)
	}
	return s.repo.ByID(ctx, id)
}

// EnrichmentState reports the user's email and whether enrichment data has
// already been stored.
func (s *Service) EnrichmentState(ctx context.Context, userID string) (string, bool, error) {
	u, err := s.repo.ByID(ctx, userID)
	if err != nil {
		return "", false, err
	}
	return u.Email, u.HasEnrichment(), nil
}

func (s *Service) SaveEnrichment(ctx context.Context, userID string, data json.RawMessage) error {
	if !json.Valid(data) {
		return fmt.Errorf("save enrichment: %w", core.ErrInvalidInput)
	}
	return s.repo.SetEnrichment(ctx, userID, types.JSONText(data))
}

var _ auth.Accounts = (*Service)(nil)
