// AngelaMos | 2026
// oauth_test.go

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"

	"github.com/TatyOko28/refresh-system/internal/config"
	"github.com/TatyOko28/refresh-system/internal/core"
)

func newGoogleTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`)) //nolint:errcheck // test server
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte( //nolint:errcheck // test server
			`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte( //nolint:errcheck // test server
			`{"email":"Carol@Example.com","email_verified":true,"given_name":"Carol","family_name":"Jones"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGoogle(srv *httptest.Server) *GoogleAuthenticator {
	g := NewGoogleAuthenticator(config.GoogleOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://app.example.com/callback",
	})
	g.oauth.Endpoint = oauth2.Endpoint{
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	g.userInfoURL = srv.URL + "/userinfo"
	return g
}

func TestGoogleResolveCode(t *testing.T) {
	g := newTestGoogle(newGoogleTestServer(t))

	identity, err := g.Resolve(context.Background(), GoogleAuthRequest{
		Code:        "good-code",
		RedirectURI: "https://app.example.com/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", identity.Email)
	assert.True(t, identity.EmailVerified)
	assert.Equal(t, "Carol", identity.GivenName)
	assert.Equal(t, "Jones", identity.FamilyName)
}

func TestGoogleResolveRejectedCode(t *testing.T) {
	g := newTestGoogle(newGoogleTestServer(t))

	_, err := g.Resolve(context.Background(), GoogleAuthRequest{
		Code:        "stolen-code",
		RedirectURI: "https://app.example.com/callback",
	})
	assert.ErrorIs(t, err, ErrGoogleIdentity)
}

func TestGoogleResolveUnreachable(t *testing.T) {
	srv := newGoogleTestServer(t)
	g := newTestGoogle(srv)
	srv.Close()

	_, err := g.Resolve(context.Background(), GoogleAuthRequest{
		Code:        "good-code",
		RedirectURI: "https://app.example.com/callback",
	})
	assert.ErrorIs(t, err, core.ErrUnavailable)
}

func TestGoogleResolveIDToken(t *testing.T) {
	g := newTestGoogle(newGoogleTestServer(t))

	var audience string
	g.validate = func(_ context.Context, token, aud string) (*idtoken.Payload, error) {
		audience = aud
		if token != "signed-id-token" {
			return nil, errors.New("idtoken: invalid signature")
		}
		return &idtoken.Payload{Claims: map[string]any{
			"email":          " Dave@Example.com ",
			"email_verified": true,
			"given_name":     "Dave",
		}}, nil
	}

	identity, err := g.Resolve(context.Background(), GoogleAuthRequest{IDToken: "signed-id-token"})
	require.NoError(t, err)
	assert.Equal(t, "client-id", audience)
	assert.Equal(t, "dave@example.com", identity.Email)
	assert.True(t, identity.EmailVerified)

	_, err = g.Resolve(context.Background(), GoogleAuthRequest{IDToken: "forged"})
	assert.ErrorIs(t, err, ErrGoogleIdentity)
}

func TestGoogleResolveMissingEmail(t *testing.T) {
	g := newTestGoogle(newGoogleTestServer(t))
	g.validate = func(context.Context, string, string) (*idtoken.Payload, error) {
		return &idtoken.Payload{Claims: map[string]any{}}, nil
	}

	_, err := g.Resolve(context.Background(), GoogleAuthRequest{IDToken: "t"})
	assert.ErrorIs(t, err, ErrGoogleIdentity)
}
