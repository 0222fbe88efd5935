// AngelaMos | 2026
// oauth.go

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"

	"github.com/TatyOko28/refresh-system/internal/config"
	"github.com/TatyOko28/refresh-system/internal/core"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

var ErrGoogleIdentity = errors.New("google identity rejected")

type GoogleIdentity struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

type idTokenValidator func(
	ctx context.Context,
	token, audience string,
) (*idtoken.Payload, error)

type GoogleAuthenticator struct {
	oauth       *oauth2.Config
	validate    idTokenValidator
	userInfoURL string
}

func NewGoogleAuthenticator(cfg config.GoogleOAuthConfig) *GoogleAuthenticator {
	return &GoogleAuthenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		validate:    idtoken.Validate,
		userInfoURL: googleUserInfoURL,
	}
}

// Resolve turns either an authorization code or an ID token into a
// verified Google identity.
func (g *GoogleAuthenticator) Resolve(
	ctx context.Context,
	req GoogleAuthRequest,
) (*GoogleIdentity, error) {
	var (
		identity *GoogleIdentity
		err      error
	)
	if req.IDToken != "" {
		identity, err = g.fromIDToken(ctx, req.IDToken)
	} else {
		identity, err = g.fromCode(ctx, req.Code, req.RedirectURI)
	}
	if err != nil {
		return nil, err
	}

	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	if identity.Email == "" {
		return nil, fmt.Errorf("google: missing email: %w", ErrGoogleIdentity)
	}

	return identity, nil
}

func (g *GoogleAuthenticator) fromIDToken(
	ctx context.Context,
	token string,
) (*GoogleIdentity, error) {
	payload, err := g.validate(ctx, token, g.oauth.ClientID)
	if err != nil {
		return nil, fmt.Errorf("google: validate id token: %w: %v", ErrGoogleIdentity, err)
	}

	identity := &GoogleIdentity{}
	identity.Email, _ = payload.Claims["email"].(string)
	identity.EmailVerified, _ = payload.Claims["email_verified"].(bool)
	identity.GivenName, _ = payload.Claims["given_name"].(string)
	identity.FamilyName, _ = payload.Claims["family_name"].(string)

	return identity, nil
}

func (g *GoogleAuthenticator) fromCode(
	ctx context.Context,
	code, redirectURI string,
) (*GoogleIdentity, error) {
	cfg := *g.oauth
	if redirectURI != "" {
		cfg.RedirectURL = redirectURI
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("google: exchange code: %w: %v", ErrGoogleIdentity, err)
		}
		return nil, fmt.Errorf("google: exchange code: %w: %v", core.ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("google: build userinfo request: %w", err)
	}

	resp, err := cfg.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: fetch userinfo: %w: %v", core.ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"google: userinfo status %d: %w",
			resp.StatusCode,
			ErrGoogleIdentity,
		)
	}

	var identity GoogleIdentity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("google: decode userinfo: %w", err)
	}

	return &identity, nil
}
